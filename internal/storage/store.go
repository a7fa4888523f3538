// Package storage is the dual-write persistence layer: a Redis hot path with
// conditional-create semantics and an append-only per-partition change
// stream, drained asynchronously into the durable Postgres store. Request
// tasks never write the durable store directly while the KV scheme is
// active; the drainer replays the same logical writes.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/payflow-engine/payflow/internal/types"
)

var (
	// ErrDuplicateValue signals another writer already created the record.
	// It doubles as the concurrency-control signal for create-vs-exists
	// races.
	ErrDuplicateValue = errors.New("storage: duplicate value")
	// ErrNotFound signals the record does not exist under the given key.
	ErrNotFound = errors.New("storage: value not found")
	// ErrDatabase wraps durable-store failures.
	ErrDatabase = errors.New("storage: database error")
	// ErrKV marks a replication-path failure distinct from the primary
	// write succeeding.
	ErrKV = errors.New("storage: kv replication error")
)

// Store is the read/write contract the pipeline consumes. Records are
// addressed by (merchant_id, payment_id) and (merchant_id, payment_id,
// attempt_id) composite keys.
type Store interface {
	InsertIntent(ctx context.Context, intent *types.PaymentIntent) error
	UpdateIntent(ctx context.Context, merchantID, paymentID string, patch IntentPatch) (*types.PaymentIntent, error)
	FindIntent(ctx context.Context, merchantID, paymentID string) (*types.PaymentIntent, error)

	InsertAttempt(ctx context.Context, attempt *types.PaymentAttempt) error
	UpdateAttempt(ctx context.Context, merchantID, paymentID, attemptID string, patch AttemptPatch) (*types.PaymentAttempt, error)
	FindAttempt(ctx context.Context, merchantID, paymentID, attemptID string) (*types.PaymentAttempt, error)

	InsertRefund(ctx context.Context, refund *types.Refund) error
	UpdateRefund(ctx context.Context, merchantID, refundID string, patch RefundPatch) (*types.Refund, error)
	FindRefund(ctx context.Context, merchantID, refundID string) (*types.Refund, error)

	InsertCustomer(ctx context.Context, customer *types.Customer) error
	FindCustomer(ctx context.Context, merchantID, customerID string) (*types.Customer, error)
}

// Durable is the fold target of the drainer: idempotent latest-record
// upserts keyed the same way as the Store.
type Durable interface {
	Store
	UpsertIntent(ctx context.Context, intent *types.PaymentIntent) error
	UpsertAttempt(ctx context.Context, attempt *types.PaymentAttempt) error
	UpsertRefund(ctx context.Context, refund *types.Refund) error
	UpsertCustomer(ctx context.Context, customer *types.Customer) error
}

// IntentPatch is a partial update; nil fields are left untouched. Status
// moves are validated against the transition graph.
type IntentPatch struct {
	Status         *types.IntentStatus
	ActiveAttempt  *string
	CustomerID     *string
	AmountCaptured *int64
}

// AttemptPatch is a partial attempt update.
type AttemptPatch struct {
	Status         *types.AttemptStatus
	Connector      *string
	ConnectorTxnID *string
	PaymentMethod  *string
	ErrorCode      *string
	ErrorMessage   *string
	ErrorReason    *string
}

// RefundPatch is a partial refund update.
type RefundPatch struct {
	Status          *types.RefundStatus
	ConnectorRefund *string
	ErrorCode       *string
	ErrorMessage    *string
}

// ErrInvalidTransition is returned when a patch would move an intent
// backward or out of a terminal state.
var ErrInvalidTransition = errors.New("storage: invalid intent status transition")

func applyIntentPatch(intent *types.PaymentIntent, patch IntentPatch) error {
	if patch.Status != nil {
		if !intent.Status.CanTransitionTo(*patch.Status) {
			return ErrInvalidTransition
		}
		intent.Status = *patch.Status
	}
	if patch.ActiveAttempt != nil {
		intent.ActiveAttempt = *patch.ActiveAttempt
	}
	if patch.CustomerID != nil {
		intent.CustomerID = *patch.CustomerID
	}
	if patch.AmountCaptured != nil {
		intent.AmountCaptured = *patch.AmountCaptured
	}
	intent.ModifiedAt = time.Now().UTC()
	return nil
}

func applyAttemptPatch(attempt *types.PaymentAttempt, patch AttemptPatch) {
	if patch.Status != nil {
		attempt.Status = *patch.Status
	}
	if patch.Connector != nil {
		attempt.Connector = *patch.Connector
	}
	// A connector transaction id, once set, is never overwritten by a
	// different value for the same attempt.
	if patch.ConnectorTxnID != nil && attempt.ConnectorTxnID == "" {
		attempt.ConnectorTxnID = *patch.ConnectorTxnID
	}
	if patch.PaymentMethod != nil {
		attempt.PaymentMethod = *patch.PaymentMethod
	}
	if patch.ErrorCode != nil {
		attempt.ErrorCode = *patch.ErrorCode
	}
	if patch.ErrorMessage != nil {
		attempt.ErrorMessage = *patch.ErrorMessage
	}
	if patch.ErrorReason != nil {
		attempt.ErrorReason = *patch.ErrorReason
	}
	attempt.ModifiedAt = time.Now().UTC()
}

func applyRefundPatch(refund *types.Refund, patch RefundPatch) {
	if patch.Status != nil {
		refund.Status = *patch.Status
	}
	if patch.ConnectorRefund != nil && refund.ConnectorRefund == "" {
		refund.ConnectorRefund = *patch.ConnectorRefund
	}
	if patch.ErrorCode != nil {
		refund.ErrorCode = *patch.ErrorCode
	}
	if patch.ErrorMessage != nil {
		refund.ErrorMessage = *patch.ErrorMessage
	}
	refund.ModifiedAt = time.Now().UTC()
}
