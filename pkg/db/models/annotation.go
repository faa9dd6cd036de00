package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/yieldvault-backend/pkg/enums"
)

// AnnotationPayload is the per-kind structured metadata attached to an entry.
// Only the pointer types declared in this file implement it.
type AnnotationPayload interface {
	Kind() enums.EntryKind
}

// DepositAnnotation records where a deposit came from and when its principal unlocks.
type DepositAnnotation struct {
	TxHash      string     `json:"tx_hash"`
	Sender      string     `json:"sender"`
	Recipient   string     `json:"recipient"`
	LockedUntil *time.Time `json:"locked_until,omitempty"`
}

func (*DepositAnnotation) Kind() enums.EntryKind { return enums.EntryKindDeposit }

// YieldAnnotation records the inputs of a daily accrual.
type YieldAnnotation struct {
	Day  string          `json:"day"`
	Rate decimal.Decimal `json:"rate"`
	Base decimal.Decimal `json:"base"`
}

func (*YieldAnnotation) Kind() enums.EntryKind { return enums.EntryKindYield }

// CommissionAnnotation records which referee produced a commission.
type CommissionAnnotation struct {
	SourceAccountID uuid.UUID               `json:"source_account_id"`
	Level           enums.ReferralLevel     `json:"level"`
	Trigger         enums.CommissionTrigger `json:"trigger"`
	Rate            decimal.Decimal         `json:"rate"`
	Base            decimal.Decimal         `json:"base"`
	Period          string                  `json:"period,omitempty"`
	SourceEntryID   *uuid.UUID              `json:"source_entry_id,omitempty"`
}

func (*CommissionAnnotation) Kind() enums.EntryKind { return enums.EntryKindCommission }

// WithdrawalAnnotation captures the reservation split so a refund can reverse it exactly.
type WithdrawalAnnotation struct {
	Mode               enums.WithdrawalMode `json:"mode"`
	Destination        string               `json:"destination"`
	RoiDeduction       decimal.Decimal      `json:"roi_deduction"`
	PrincipalDeduction decimal.Decimal      `json:"principal_deduction"`
	FeeRate            decimal.Decimal      `json:"fee_rate"`
	FeeAmount          decimal.Decimal      `json:"fee_amount"`
	NetCryptoAmount    decimal.Decimal      `json:"net_crypto_amount"`
	TransferRef        string               `json:"transfer_ref,omitempty"`
	FailureReason      string               `json:"failure_reason,omitempty"`
	ResolvedBy         *uuid.UUID           `json:"resolved_by,omitempty"`
}

func (*WithdrawalAnnotation) Kind() enums.EntryKind { return enums.EntryKindWithdrawal }

// Annotation stores an AnnotationPayload as {"kind": ..., "data": ...}.
type Annotation struct {
	Payload AnnotationPayload
}

// NewAnnotation wraps payload.
func NewAnnotation(payload AnnotationPayload) Annotation {
	return Annotation{Payload: payload}
}

type annotationEnvelope struct {
	Kind enums.EntryKind `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// Kind returns the payload kind or an empty value when unset.
func (a Annotation) Kind() enums.EntryKind {
	if a.Payload == nil {
		return ""
	}
	return a.Payload.Kind()
}

func (a Annotation) MarshalJSON() ([]byte, error) {
	if a.Payload == nil {
		return []byte("null"), nil
	}
	data, err := json.Marshal(a.Payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(annotationEnvelope{Kind: a.Payload.Kind(), Data: data})
}

func (a *Annotation) UnmarshalJSON(raw []byte) error {
	if len(raw) == 0 || string(raw) == "null" {
		a.Payload = nil
		return nil
	}
	var env annotationEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decode annotation envelope: %w", err)
	}
	payload, err := decodeAnnotation(env.Kind, env.Data)
	if err != nil {
		return err
	}
	a.Payload = payload
	return nil
}

func (a Annotation) Value() (driver.Value, error) {
	if a.Payload == nil {
		return nil, nil
	}
	raw, err := a.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

func (a *Annotation) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		a.Payload = nil
		return nil
	case []byte:
		return a.UnmarshalJSON(v)
	case string:
		return a.UnmarshalJSON([]byte(v))
	default:
		return fmt.Errorf("unsupported annotation source %T", src)
	}
}

func decodeAnnotation(kind enums.EntryKind, data json.RawMessage) (AnnotationPayload, error) {
	var payload AnnotationPayload
	switch kind {
	case enums.EntryKindDeposit:
		payload = &DepositAnnotation{}
	case enums.EntryKindYield:
		payload = &YieldAnnotation{}
	case enums.EntryKindCommission:
		payload = &CommissionAnnotation{}
	case enums.EntryKindWithdrawal:
		payload = &WithdrawalAnnotation{}
	default:
		return nil, fmt.Errorf("unknown annotation kind %q", kind)
	}
	if len(data) > 0 && string(data) != "null" {
		if err := json.Unmarshal(data, payload); err != nil {
			return nil, fmt.Errorf("decode %s annotation: %w", kind, err)
		}
	}
	return payload, nil
}
