package validators

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/yieldvault-backend/pkg/errors"
)

func TestParsePathUUID(t *testing.T) {
	id := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rc := chi.NewRouteContext()
	rc.URLParams.Add("id", id.String())
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))

	got, err := ParsePathUUID(req, "id")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = ParsePathUUID(req, "missing")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestParseDecimal(t *testing.T) {
	value, err := ParseDecimal("amount", " 12.50 ")
	require.NoError(t, err)
	assert.Equal(t, "12.5", value.String())

	_, err = ParseDecimal("amount", "twelve")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestParseQueryDate(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?from=2026-10-01&to=bad", nil)

	from, err := ParseQueryDate(req, "from", time.UTC)
	require.NoError(t, err)
	require.NotNil(t, from)
	assert.Equal(t, 2026, from.Year())

	_, err = ParseQueryDate(req, "to", nil)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	missing, err := ParseQueryDate(req, "since", time.UTC)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

type sampleBody struct {
	Amount string `json:"amount" validate:"required"`
	Token  string `json:"token" validate:"required,max=10"`
}

func TestDecodeJSONBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amount":"5","token":"USDT"}`))
	var body sampleBody
	require.NoError(t, DecodeJSONBody(req, &body))
	assert.Equal(t, "USDT", body.Token)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amount":"5"}`))
	err := DecodeJSONBody(req, &sampleBody{})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, map[string]string{"token": "is required"}, typed.Details())

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amount":"5","token":"X","extra":1}`))
	assert.True(t, pkgerrors.IsCode(DecodeJSONBody(req, &sampleBody{}), pkgerrors.CodeValidation))
}
