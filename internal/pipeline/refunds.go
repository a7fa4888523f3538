package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/payflow-engine/payflow/internal/apierror"
	"github.com/payflow-engine/payflow/internal/connector"
	"github.com/payflow-engine/payflow/internal/executor"
	"github.com/payflow-engine/payflow/internal/router"
	"github.com/payflow-engine/payflow/internal/storage"
	"github.com/payflow-engine/payflow/internal/types"
)

// CreateRefundRequest executes a refund against a charged attempt.
type CreateRefundRequest struct {
	MerchantID string `json:"-"`
	PaymentID  string `json:"payment_id"`
	Amount     int64  `json:"amount,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// SyncRefundRequest retrieves, and optionally force-refreshes, a refund.
type SyncRefundRequest struct {
	MerchantID string
	RefundID   string
	ForceSync  bool
}

// refundableStates are the intent statuses a refund may start from.
var refundableStates = []types.IntentStatus{
	types.IntentSucceeded,
	types.IntentPartiallyCaptured,
}

// CreateRefund validates the charge, persists a pending refund tracker and
// runs the connector's refund flow.
func (s *Service) CreateRefund(ctx context.Context, req *CreateRefundRequest) (*RefundResponse, error) {
	intent, attempt, profile, apiErr := s.loadTrackers(ctx, req.MerchantID, req.PaymentID)
	if apiErr != nil {
		return nil, apiErr
	}
	if !statusIn(intent.Status, refundableStates) {
		return nil, apierror.PaymentUnexpectedState(intent.Status, refundableStates)
	}
	if attempt == nil || attempt.ConnectorTxnID == "" {
		return nil, apierror.InvalidRequest("payment has no settled connector transaction to refund")
	}

	amount := req.Amount
	if amount == 0 {
		amount = intent.AmountCaptured
	}
	if amount <= 0 || amount > intent.AmountCaptured {
		return nil, apierror.InvalidRequest("refund amount exceeds the captured amount")
	}

	store := s.stores.ForMerchant(req.MerchantID)
	refund := types.NewRefund(attempt, amount)
	if err := store.InsertRefund(ctx, refund); err != nil {
		return nil, apierror.Internal("failed to persist refund")
	}

	resolved, apiErr := s.resolveConnector(profile, attempt.Connector)
	if apiErr != nil {
		return nil, apiErr
	}
	execReq := types.RefundExecuteRequest{
		RefundID:       refund.RefundID,
		ConnectorTxnID: attempt.ConnectorTxnID,
		Amount:         amount,
		Currency:       refund.Currency,
		Reason:         req.Reason,
	}
	rd, apiErr := buildRefundData(resolved, refund, string(connector.FlowRefundExecute), execReq)
	if apiErr != nil {
		return nil, apiErr
	}
	started := time.Now()
	execErr := executor.Execute(ctx, s.client, resolved, resolved.Connector.RefundExecute(), rd, s.log)
	return s.persistRefundOutcome(ctx, store, refund, rd.Response, rd.Error, execErr, time.Since(started))
}

// SyncRefund returns the persisted refund and, when forced while still
// pending, refreshes it from the connector first.
func (s *Service) SyncRefund(ctx context.Context, req *SyncRefundRequest) (*RefundResponse, error) {
	if req.RefundID == "" {
		return nil, apierror.MissingField("refund_id")
	}
	profile, err := s.merchants.Get(req.MerchantID)
	if err != nil {
		return nil, apierror.NotFound("merchant", req.MerchantID)
	}
	store := s.stores.ForMerchant(req.MerchantID)
	refund, err := store.FindRefund(ctx, req.MerchantID, req.RefundID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apierror.NotFound("refund", req.RefundID)
		}
		return nil, apierror.Internal("failed to load refund")
	}

	if !req.ForceSync || refund.Status != types.RefundPending {
		return projectRefund(refund, nil), nil
	}

	resolved, apiErr := s.resolveConnector(profile, refund.Connector)
	if apiErr != nil {
		return nil, apiErr
	}
	syncReq := types.RefundSyncRequest{
		RefundID:        refund.RefundID,
		ConnectorRefund: refund.ConnectorRefund,
		ConnectorTxnID:  refund.ConnectorTxnID,
	}
	rd, apiErr := buildRefundData(resolved, refund, string(connector.FlowRefundSync), syncReq)
	if apiErr != nil {
		return nil, apiErr
	}
	started := time.Now()
	execErr := executor.Execute(ctx, s.client, resolved, resolved.Connector.RefundSync(), rd, s.log)
	return s.persistRefundOutcome(ctx, store, refund, rd.Response, rd.Error, execErr, time.Since(started))
}

func buildRefundData[Req any](
	resolved *connector.Resolved,
	refund *types.Refund,
	flow string,
	request Req,
) (*router.Data[Req, types.RefundsResponse], *apierror.APIError) {
	cred, err := resolved.Auth.ForCurrency(refund.Currency)
	if err != nil {
		return nil, apierror.Internal("connector credentials are not configured for this currency")
	}
	converted, err := resolved.ConvertAmount(refund.Amount, refund.Currency)
	if err != nil {
		return nil, apierror.Internal("amount conversion failed")
	}
	return &router.Data[Req, types.RefundsResponse]{
		Flow:          flow,
		MerchantID:    refund.MerchantID,
		ConnectorName: refund.Connector,
		PaymentID:     refund.PaymentID,
		AttemptID:     refund.AttemptID,
		Auth:          cred,
		BaseURL:       resolved.BaseURL,
		MinorAmount:   refund.Amount,
		Amount:        converted,
		Currency:      refund.Currency,
		Request:       request,
	}, nil
}

// persistRefundOutcome folds a refund flow result into the refund tracker.
// Unknown outcomes leave the refund pending; the merchant re-syncs it.
func (s *Service) persistRefundOutcome(
	ctx context.Context,
	store storage.Store,
	refund *types.Refund,
	response *types.RefundsResponse,
	connErr *types.ErrorResponse,
	execErr error,
	elapsed time.Duration,
) (*RefundResponse, error) {
	switch {
	case execErr != nil:
		if connector.IsFlowNotSupported(execErr) {
			return nil, mapConnectorError(execErr)
		}
		// Transport or parse failure: outcome unknown, stay pending.
		s.decider.RegisterFailure(refund.Connector)
		s.log.Warn().Err(execErr).Str("refund_id", refund.RefundID).Msg("refund call failed, leaving refund pending")
		return projectRefund(refund, nil), nil

	case connErr != nil:
		s.decider.RegisterFailure(refund.Connector)
		failed := types.RefundFailure
		updated, err := store.UpdateRefund(ctx, refund.MerchantID, refund.RefundID, storage.RefundPatch{
			Status:       &failed,
			ErrorCode:    &connErr.Code,
			ErrorMessage: &connErr.Message,
		})
		if err != nil {
			return nil, apierror.Internal("failed to persist refund failure")
		}
		return projectRefund(updated, connErr), nil

	case response != nil:
		s.decider.RegisterSuccess(refund.Connector, elapsed)
		patch := storage.RefundPatch{Status: &response.Status}
		if response.ConnectorRefund != "" {
			patch.ConnectorRefund = &response.ConnectorRefund
		}
		updated, err := store.UpdateRefund(ctx, refund.MerchantID, refund.RefundID, patch)
		if err != nil {
			return nil, apierror.Internal("failed to persist refund outcome")
		}
		return projectRefund(updated, nil), nil
	}
	return projectRefund(refund, nil), nil
}
