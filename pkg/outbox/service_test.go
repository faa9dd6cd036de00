package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/yieldvault-backend/pkg/db/dbtest"
	"github.com/angelmondragon/yieldvault-backend/pkg/db/models"
	"github.com/angelmondragon/yieldvault-backend/pkg/enums"
	"github.com/angelmondragon/yieldvault-backend/pkg/logger"
	"github.com/angelmondragon/yieldvault-backend/pkg/outbox/payloads"
)

func TestEmitWritesEnvelope(t *testing.T) {
	ctx := context.Background()
	client := dbtest.Open(t)
	repo := NewRepository(client.DB())
	svc := NewService(repo, logger.Nop())

	entryID := uuid.New()
	accountID := uuid.New()
	at := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		return svc.Emit(ctx, tx, DomainEvent{
			EventType:     enums.EventYieldCredited,
			AggregateType: enums.AggregateLedgerEntry,
			AggregateID:   entryID,
			OccurredAt:    at,
			Data: payloads.YieldCreditedEvent{
				EntryID:   entryID,
				AccountID: accountID,
				Amount:    decimal.RequireFromString("50"),
				Day:       "2026-10-19",
			},
		})
	})
	require.NoError(t, err)

	rows, err := repo.ListByAggregate(ctx, enums.AggregateLedgerEntry, entryID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, enums.EventYieldCredited, rows[0].EventType)

	var envelope PayloadEnvelope
	require.NoError(t, json.Unmarshal(rows[0].Payload, &envelope))
	require.Equal(t, 1, envelope.Version)
	require.Equal(t, "yield_credited", envelope.EventType)
	require.True(t, envelope.OccurredAt.Equal(at))

	var data payloads.YieldCreditedEvent
	require.NoError(t, json.Unmarshal(envelope.Data, &data))
	require.Equal(t, accountID, data.AccountID)
	require.True(t, data.Amount.Equal(decimal.NewFromInt(50)))
}

func TestEmitRollsBackWithTransaction(t *testing.T) {
	ctx := context.Background()
	client := dbtest.Open(t)
	repo := NewRepository(client.DB())
	svc := NewService(repo, nil)
	aggregateID := uuid.New()
	boom := errors.New("boom")

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := svc.Emit(ctx, tx, DomainEvent{
			EventType:     enums.EventDepositConfirmed,
			AggregateType: enums.AggregateLedgerEntry,
			AggregateID:   aggregateID,
			Data:          map[string]string{"k": "v"},
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	rows, err := repo.ListByAggregate(ctx, enums.AggregateLedgerEntry, aggregateID)
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestEmitValidation(t *testing.T) {
	svc := NewService(NewRepository(nil), nil)
	require.Error(t, svc.Emit(context.Background(), nil, DomainEvent{}))

	client := dbtest.Open(t)
	err := svc.Emit(context.Background(), client.DB(), DomainEvent{
		EventType:     "order_created",
		AggregateType: enums.AggregateAccount,
	})
	require.Error(t, err)
}

func TestPublishBookkeeping(t *testing.T) {
	ctx := context.Background()
	client := dbtest.Open(t)
	repo := NewRepository(client.DB())

	base := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
	ids := make([]uuid.UUID, 3)
	for i := range ids {
		row := models.OutboxEvent{
			ID:            uuid.New(),
			EventType:     enums.EventCommissionPaid,
			AggregateType: enums.AggregateLedgerEntry,
			AggregateID:   uuid.New(),
			Payload:       json.RawMessage(`{}`),
			CreatedAt:     base.Add(time.Duration(i) * time.Minute),
		}
		ids[i] = row.ID
		require.NoError(t, repo.Insert(client.DB(), row))
	}

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := repo.FetchUnpublishedForPublish(tx, 10, 3)
		require.NoError(t, err)
		require.Len(t, rows, 3)
		require.Equal(t, ids[0], rows[0].ID)

		require.NoError(t, repo.MarkPublishedTx(tx, ids[0], base))
		require.NoError(t, repo.MarkFailedTx(tx, ids[1], errors.New("topic unavailable")))
		return repo.MarkTerminalTx(tx, ids[2], 3, errors.New("payload rejected"))
	})
	require.NoError(t, err)

	err = client.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := repo.FetchUnpublishedForPublish(tx, 10, 3)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		require.Equal(t, ids[1], rows[0].ID)
		require.Equal(t, 1, rows[0].AttemptCount)
		require.NotNil(t, rows[0].LastError)
		require.Equal(t, "topic unavailable", *rows[0].LastError)
		return nil
	})
	require.NoError(t, err)
}

func TestDeletePublishedBeforeKeepsUndeliveredEvents(t *testing.T) {
	ctx := context.Background()
	client := dbtest.Open(t)
	repo := NewRepository(client.DB())

	base := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	insert := func(at time.Time) uuid.UUID {
		row := models.OutboxEvent{
			ID:            uuid.New(),
			EventType:     enums.EventYieldCredited,
			AggregateType: enums.AggregateLedgerEntry,
			AggregateID:   uuid.New(),
			Payload:       json.RawMessage(`{}`),
			CreatedAt:     at,
		}
		require.NoError(t, repo.Insert(client.DB(), row))
		return row.ID
	}
	published := insert(base)
	parked := insert(base)
	pending := insert(base)
	recent := insert(base.AddDate(0, 1, 0))

	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		require.NoError(t, repo.MarkPublishedTx(tx, published, base))
		require.NoError(t, repo.MarkPublishedTx(tx, recent, base))
		return repo.MarkTerminalTx(tx, parked, 10, errors.New("payload rejected"))
	}))

	var deleted int64
	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		deleted, err = repo.DeletePublishedBefore(ctx, tx, base.AddDate(0, 0, 7))
		return err
	}))
	require.EqualValues(t, 1, deleted)

	var remaining []uuid.UUID
	require.NoError(t, client.DB().Model(&models.OutboxEvent{}).Order("created_at").Pluck("id", &remaining).Error)
	require.ElementsMatch(t, []uuid.UUID{parked, pending, recent}, remaining)

	count, err := repo.CountParked(ctx, nil, 10)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
}
