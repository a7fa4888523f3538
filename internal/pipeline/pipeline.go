// Package pipeline is the payment operation state machine. Every API
// operation runs the same fixed stage order: validate the request, read or
// create the intent/attempt trackers, resolve customer and payment method
// data, persist the pre-call state, decide whether a connector call is
// needed, execute it, persist the outcome and project the response. No
// flow-specific connector logic lives here; the pipeline only drives
// capability interfaces.
package pipeline

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/payflow-engine/payflow/internal/connector"
	"github.com/payflow-engine/payflow/internal/httpx"
	"github.com/payflow-engine/payflow/internal/merchant"
	"github.com/payflow-engine/payflow/internal/reconcile"
	"github.com/payflow-engine/payflow/internal/storage"
	"github.com/payflow-engine/payflow/internal/types"
)

// Decider chooses the active connector for a new attempt and absorbs call
// outcomes for health scoring.
type Decider interface {
	Choose(candidates []string) (string, error)
	RegisterSuccess(name string, responseTime time.Duration)
	RegisterFailure(name string)
}

// Service wires the pipeline's collaborators. It is safe for concurrent use;
// all mutable state lives in the storage layer.
type Service struct {
	stores    *storage.Selector
	registry  *connector.Registry
	merchants merchant.Repo
	decider   Decider
	client    httpx.Doer
	scheduler reconcile.Scheduler
	log       zerolog.Logger

	// syncBackoff is how far in the future an unknown-outcome attempt is
	// scheduled for reconciliation.
	syncBackoff time.Duration
}

func NewService(
	stores *storage.Selector,
	registry *connector.Registry,
	merchants merchant.Repo,
	decider Decider,
	client httpx.Doer,
	scheduler reconcile.Scheduler,
	log zerolog.Logger,
) *Service {
	return &Service{
		stores:      stores,
		registry:    registry,
		merchants:   merchants,
		decider:     decider,
		client:      client,
		scheduler:   scheduler,
		log:         log.With().Str("component", "pipeline").Logger(),
		syncBackoff: 30 * time.Second,
	}
}

// PaymentResponse is the caller-facing projection of the final persisted
// intent/attempt pair. Callers always see the last durably known status.
type PaymentResponse struct {
	PaymentID      string              `json:"payment_id"`
	MerchantID     string              `json:"merchant_id"`
	Status         types.IntentStatus  `json:"status"`
	Amount         int64               `json:"amount"`
	AmountCaptured int64               `json:"amount_captured,omitempty"`
	Currency       string              `json:"currency"`
	CustomerID     string              `json:"customer_id,omitempty"`
	ClientSecret   string              `json:"client_secret,omitempty"`
	AttemptID      string              `json:"attempt_id,omitempty"`
	AttemptStatus  types.AttemptStatus `json:"attempt_status,omitempty"`
	Connector      string              `json:"connector,omitempty"`
	ConnectorTxnID string              `json:"connector_transaction_id,omitempty"`
	Redirect       *types.RedirectForm `json:"redirect,omitempty"`
	Error          *types.ErrorResponse `json:"error,omitempty"`
}

// RefundResponse projects a refund record.
type RefundResponse struct {
	RefundID        string              `json:"refund_id"`
	PaymentID       string              `json:"payment_id"`
	Amount          int64               `json:"amount"`
	Currency        string              `json:"currency"`
	Status          types.RefundStatus  `json:"status"`
	Connector       string              `json:"connector"`
	ConnectorRefund string              `json:"connector_refund_id,omitempty"`
	Error           *types.ErrorResponse `json:"error,omitempty"`
}

func projectPayment(intent *types.PaymentIntent, attempt *types.PaymentAttempt, errResp *types.ErrorResponse, redirect *types.RedirectForm) *PaymentResponse {
	resp := &PaymentResponse{
		PaymentID:      intent.PaymentID,
		MerchantID:     intent.MerchantID,
		Status:         intent.Status,
		Amount:         intent.Amount,
		AmountCaptured: intent.AmountCaptured,
		Currency:       intent.Currency,
		CustomerID:     intent.CustomerID,
		ClientSecret:   intent.ClientSecret,
		Redirect:       redirect,
		Error:          errResp,
	}
	if attempt != nil {
		resp.AttemptID = attempt.AttemptID
		resp.AttemptStatus = attempt.Status
		resp.Connector = attempt.Connector
		resp.ConnectorTxnID = attempt.ConnectorTxnID
	}
	return resp
}

func projectRefund(refund *types.Refund, errResp *types.ErrorResponse) *RefundResponse {
	return &RefundResponse{
		RefundID:        refund.RefundID,
		PaymentID:       refund.PaymentID,
		Amount:          refund.Amount,
		Currency:        refund.Currency,
		Status:          refund.Status,
		Connector:       refund.Connector,
		ConnectorRefund: refund.ConnectorRefund,
		Error:           errResp,
	}
}
