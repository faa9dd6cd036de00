package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/yieldvault-backend/api/middleware"
	"github.com/angelmondragon/yieldvault-backend/api/validators"
	pkgerrors "github.com/angelmondragon/yieldvault-backend/pkg/errors"
	"github.com/angelmondragon/yieldvault-backend/pkg/pagination"
)

// adminNamespace derives stable actor ids for admin subjects that are not UUIDs.
var adminNamespace = uuid.MustParse("6f1c2a4e-8d1b-4c55-9a7e-2f0b9c3d5e11")

func accountFromContext(r *http.Request) (uuid.UUID, error) {
	accountID := middleware.AccountIDFromContext(r.Context())
	if accountID == uuid.Nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeForbidden, "account context missing")
	}
	return accountID, nil
}

func adminFromContext(r *http.Request) (uuid.UUID, error) {
	identity := strings.TrimSpace(middleware.IdentityIDFromContext(r.Context()))
	if identity == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "identity context missing")
	}
	if id, err := uuid.Parse(identity); err == nil {
		return id, nil
	}
	return uuid.NewSHA1(adminNamespace, []byte(identity)), nil
}

func pageFromQuery(r *http.Request) (pagination.Params, error) {
	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return pagination.Params{}, err
	}
	return pagination.Params{
		Limit:  limit,
		Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
	}, nil
}
