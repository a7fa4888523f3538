package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/payflow-engine/payflow/internal/apierror"
	"github.com/payflow-engine/payflow/internal/connector"
	"github.com/payflow-engine/payflow/internal/executor"
	"github.com/payflow-engine/payflow/internal/httpx"
	"github.com/payflow-engine/payflow/internal/merchant"
	"github.com/payflow-engine/payflow/internal/reconcile"
	"github.com/payflow-engine/payflow/internal/router"
	"github.com/payflow-engine/payflow/internal/storage"
	"github.com/payflow-engine/payflow/internal/types"
)

// CreatePaymentRequest is the inbound payload for payment creation.
type CreatePaymentRequest struct {
	MerchantID    string                   `json:"-"`
	Amount        int64                    `json:"amount"`
	Currency      string                   `json:"currency"`
	CaptureMethod types.CaptureMethod      `json:"capture_method,omitempty"`
	AuthType      types.AuthenticationType `json:"authentication_type,omitempty"`
	CustomerID    string                   `json:"customer_id,omitempty"`
	CustomerName  string                   `json:"customer_name,omitempty"`
	CustomerEmail string                   `json:"customer_email,omitempty"`
	Description   string                   `json:"description,omitempty"`
	ReturnURL     string                   `json:"return_url,omitempty"`
	PaymentMethod *types.PaymentMethodData `json:"payment_method_data,omitempty"`
	Confirm       bool                     `json:"confirm,omitempty"`
}

// ConfirmPaymentRequest confirms an intent against a connector.
type ConfirmPaymentRequest struct {
	MerchantID    string                   `json:"-"`
	PaymentID     string                   `json:"-"`
	PaymentMethod *types.PaymentMethodData `json:"payment_method_data,omitempty"`
	Email         string                   `json:"email,omitempty"`
	BrowserInfo   *types.BrowserInfo       `json:"browser_info,omitempty"`
}

// CapturePaymentRequest captures a previously authorized amount.
type CapturePaymentRequest struct {
	MerchantID      string `json:"-"`
	PaymentID       string `json:"-"`
	AmountToCapture int64  `json:"amount_to_capture,omitempty"`
}

// CancelPaymentRequest voids an uncaptured payment.
type CancelPaymentRequest struct {
	MerchantID string `json:"-"`
	PaymentID  string `json:"-"`
	Reason     string `json:"cancellation_reason,omitempty"`
}

// SyncPaymentRequest retrieves, and optionally force-refreshes, an intent.
type SyncPaymentRequest struct {
	MerchantID string
	PaymentID  string
	ForceSync  bool
}

// CreatePayment establishes the intent tracker and optionally runs the
// confirm pass in the same call.
func (s *Service) CreatePayment(ctx context.Context, req *CreatePaymentRequest) (*PaymentResponse, error) {
	// Stage 1: validate.
	if req.Amount <= 0 {
		return nil, apierror.InvalidRequest("amount must be a positive minor-unit integer")
	}
	if req.Currency == "" {
		return nil, apierror.MissingField("currency")
	}
	profile, err := s.merchants.Get(req.MerchantID)
	if err != nil {
		return nil, apierror.NotFound("merchant", req.MerchantID)
	}
	if req.CaptureMethod == "" {
		req.CaptureMethod = types.CaptureAutomatic
	}
	if req.AuthType == "" {
		req.AuthType = types.AuthNoThreeDS
	}

	store := s.stores.ForMerchant(req.MerchantID)

	// Stage 2: build the tracker.
	intent := types.NewPaymentIntent(req.MerchantID, profile.ProfileID, req.Amount, req.Currency, req.CaptureMethod)
	intent.AuthType = req.AuthType
	intent.Description = req.Description
	intent.ReturnURL = req.ReturnURL
	if intent.ReturnURL == "" {
		intent.ReturnURL = profile.ReturnURL
	}
	if req.PaymentMethod != nil {
		intent.Status = types.IntentRequiresConfirmation
	}

	// Stage 3: resolve customer before the tracker write so the intent
	// carries the reference from the start.
	customerID, apiErr := s.getOrCreateCustomer(ctx, store, req.MerchantID, req.CustomerID, req.CustomerName, req.CustomerEmail)
	if apiErr != nil {
		return nil, apiErr
	}
	intent.CustomerID = customerID

	if err := store.InsertIntent(ctx, intent); err != nil {
		if errors.Is(err, storage.ErrDuplicateValue) {
			return nil, apierror.InvalidRequest("payment already exists")
		}
		return nil, apierror.Internal("failed to persist payment intent")
	}

	// Stage 5: creation itself never calls a connector; confirm-on-create
	// chains straight into the confirm pass.
	if req.Confirm {
		if req.PaymentMethod == nil {
			return nil, apierror.MissingField("payment_method_data")
		}
		return s.ConfirmPayment(ctx, &ConfirmPaymentRequest{
			MerchantID:    req.MerchantID,
			PaymentID:     intent.PaymentID,
			PaymentMethod: req.PaymentMethod,
			Email:         req.CustomerEmail,
		})
	}
	return projectPayment(intent, nil, nil, nil), nil
}

// ConfirmPayment runs the authorize pass: route, call, persist.
func (s *Service) ConfirmPayment(ctx context.Context, req *ConfirmPaymentRequest) (*PaymentResponse, error) {
	// Stage 1: validate.
	if req.PaymentID == "" {
		return nil, apierror.MissingField("payment_id")
	}
	profile, err := s.merchants.Get(req.MerchantID)
	if err != nil {
		return nil, apierror.NotFound("merchant", req.MerchantID)
	}
	store := s.stores.ForMerchant(req.MerchantID)

	// Stage 2: get tracker and check the state is confirmable.
	intent, err := store.FindIntent(ctx, req.MerchantID, req.PaymentID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apierror.NotFound("payment", req.PaymentID)
		}
		return nil, apierror.Internal("failed to load payment intent")
	}
	if !statusIn(intent.Status, confirmAllowedStates) {
		return nil, apierror.PaymentUnexpectedState(intent.Status, confirmAllowedStates)
	}

	// Stage 3: payment method data.
	if req.PaymentMethod == nil {
		return nil, apierror.MissingField("payment_method_data")
	}

	// Routing decides which candidate becomes the active attempt.
	chosen, err := s.decider.Choose(profile.CandidateConnectors())
	if err != nil {
		return nil, apierror.Internal("no connector available for this merchant")
	}
	resolved, apiErr := s.resolveConnector(profile, chosen)
	if apiErr != nil {
		return nil, apiErr
	}

	authType := intent.AuthType
	if authType == "" {
		authType = types.AuthNoThreeDS
	}
	authReq := types.AuthorizeRequest{
		Amount:            intent.Amount,
		Currency:          intent.Currency,
		PaymentMethodData: *req.PaymentMethod,
		CaptureMethod:     intent.CaptureMethod,
		AuthType:          authType,
		Email:             req.Email,
		BrowserInfo:       req.BrowserInfo,
	}
	if err := resolved.Connector.ValidateAuthorize(&authReq); err != nil {
		return nil, mapConnectorError(err)
	}

	attempt := types.NewPaymentAttempt(intent, chosen, authReq.AuthType)
	attempt.PaymentMethod = req.PaymentMethod.Type
	if err := store.InsertAttempt(ctx, attempt); err != nil {
		return nil, apierror.Internal("failed to persist payment attempt")
	}

	// Stage 4: pre-call tracker update commits before the network call so a
	// crash mid-call still leaves an inspectable record.
	processing := types.IntentProcessing
	intent, err = store.UpdateIntent(ctx, intent.MerchantID, intent.PaymentID, storage.IntentPatch{
		Status:        &processing,
		ActiveAttempt: &attempt.AttemptID,
	})
	if err != nil {
		return nil, apierror.Internal("failed to persist pre-call state")
	}

	// Stage 5.
	if ShouldCallConnector(OpConfirm, intent.Status, false) != ActionTrigger {
		return projectPayment(intent, attempt, nil, nil), nil
	}

	// Stage 6: call connector.
	rd, apiErr := buildRouterData(resolved, intent, attempt, string(connector.FlowAuthorize), authReq)
	if apiErr != nil {
		return nil, apiErr
	}
	started := time.Now()
	execErr := executor.Execute(ctx, s.client, resolved, resolved.Connector.Authorize(), rd, s.log)

	// Stage 7: fold the outcome into the trackers.
	return s.persistPaymentOutcome(ctx, store, intent, attempt, rd.Response, rd.Error, execErr, rd.MinorAmount, time.Since(started))
}

// CapturePayment captures an authorized attempt.
func (s *Service) CapturePayment(ctx context.Context, req *CapturePaymentRequest) (*PaymentResponse, error) {
	intent, attempt, profile, apiErr := s.loadTrackers(ctx, req.MerchantID, req.PaymentID)
	if apiErr != nil {
		return nil, apiErr
	}
	if intent.Status != types.IntentRequiresCapture {
		return nil, apierror.PaymentUnexpectedState(intent.Status, []types.IntentStatus{types.IntentRequiresCapture})
	}
	store := s.stores.ForMerchant(req.MerchantID)

	resolved, apiErr := s.resolveConnector(profile, attempt.Connector)
	if apiErr != nil {
		return nil, apiErr
	}

	amount := req.AmountToCapture
	if amount == 0 {
		amount = intent.Amount
	}
	if amount < 0 || amount > intent.Amount {
		return nil, apierror.InvalidRequest("capture amount must be positive and must not exceed the authorized amount")
	}
	captureReq := types.CaptureRequest{
		AmountToCapture: amount,
		Currency:        intent.Currency,
		ConnectorTxnID:  attempt.ConnectorTxnID,
	}
	rd, apiErr := buildRouterData(resolved, intent, attempt, string(connector.FlowCapture), captureReq)
	if apiErr != nil {
		return nil, apiErr
	}
	rd.MinorAmount = amount
	converted, err := resolved.ConvertAmount(amount, intent.Currency)
	if err != nil {
		return nil, apierror.Internal("amount conversion failed")
	}
	rd.Amount = converted

	started := time.Now()
	execErr := executor.Execute(ctx, s.client, resolved, resolved.Connector.Capture(), rd, s.log)
	return s.persistPaymentOutcome(ctx, store, intent, attempt, rd.Response, rd.Error, execErr, rd.MinorAmount, time.Since(started))
}

// CancelPayment voids an uncaptured payment.
func (s *Service) CancelPayment(ctx context.Context, req *CancelPaymentRequest) (*PaymentResponse, error) {
	intent, attempt, profile, apiErr := s.loadTrackers(ctx, req.MerchantID, req.PaymentID)
	if apiErr != nil {
		return nil, apiErr
	}
	if !statusIn(intent.Status, voidAllowedStates) {
		return nil, apierror.PaymentUnexpectedState(intent.Status, voidAllowedStates)
	}
	store := s.stores.ForMerchant(req.MerchantID)

	// An intent that never reached a connector cancels locally.
	if attempt == nil || attempt.ConnectorTxnID == "" {
		cancelled := types.IntentCancelled
		intent, err := store.UpdateIntent(ctx, intent.MerchantID, intent.PaymentID, storage.IntentPatch{Status: &cancelled})
		if err != nil {
			return nil, apierror.Internal("failed to cancel payment")
		}
		return projectPayment(intent, attempt, nil, nil), nil
	}

	resolved, apiErr := s.resolveConnector(profile, attempt.Connector)
	if apiErr != nil {
		return nil, apiErr
	}
	voidReq := types.VoidRequest{ConnectorTxnID: attempt.ConnectorTxnID, Reason: req.Reason}
	rd, apiErr := buildRouterData(resolved, intent, attempt, string(connector.FlowVoid), voidReq)
	if apiErr != nil {
		return nil, apiErr
	}
	started := time.Now()
	execErr := executor.Execute(ctx, s.client, resolved, resolved.Connector.Void(), rd, s.log)
	return s.persistPaymentOutcome(ctx, store, intent, attempt, rd.Response, rd.Error, execErr, rd.MinorAmount, time.Since(started))
}

// SyncPayment returns the persisted state and, when forced on a
// non-terminal intent, refreshes it from the connector first.
func (s *Service) SyncPayment(ctx context.Context, req *SyncPaymentRequest) (*PaymentResponse, error) {
	intent, attempt, profile, apiErr := s.loadTrackers(ctx, req.MerchantID, req.PaymentID)
	if apiErr != nil {
		return nil, apiErr
	}
	store := s.stores.ForMerchant(req.MerchantID)

	if ShouldCallConnector(OpSync, intent.Status, req.ForceSync) != ActionTrigger {
		return projectPayment(intent, attempt, nil, nil), nil
	}
	if attempt == nil {
		return projectPayment(intent, attempt, nil, nil), nil
	}

	resolved, apiErr := s.resolveConnector(profile, attempt.Connector)
	if apiErr != nil {
		return nil, apiErr
	}
	// An attempt whose authorize call never returned has no transaction id;
	// the merchant reference lets connectors look the payment up anyway.
	syncReq := types.SyncRequest{
		ConnectorTxnID:    attempt.ConnectorTxnID,
		MerchantReference: intent.PaymentID,
	}
	rd, apiErr := buildRouterData(resolved, intent, attempt, string(connector.FlowPSync), syncReq)
	if apiErr != nil {
		return nil, apiErr
	}
	started := time.Now()
	execErr := executor.Execute(ctx, s.client, resolved, resolved.Connector.PSync(), rd, s.log)
	return s.persistPaymentOutcome(ctx, store, intent, attempt, rd.Response, rd.Error, execErr, rd.MinorAmount, time.Since(started))
}

// maxReconcileTries caps how often a failing reconcile task is rescheduled
// before the payment is left for manual review.
const maxReconcileTries = 10

// ReconcileTask adapts SyncPayment for the background reconciler. Running it
// on an already-terminal intent is a no-op. A sync that reaches the connector
// but finds the attempt still pending re-enters the queue through the outcome
// fold, so the task keeps cycling until the connector answers or the intent
// goes terminal; a sync that fails outright is rescheduled here with a
// growing delay.
func (s *Service) ReconcileTask(ctx context.Context, task reconcile.Task) error {
	_, err := s.SyncPayment(ctx, &SyncPaymentRequest{
		MerchantID: task.MerchantID,
		PaymentID:  task.PaymentID,
		ForceSync:  true,
	})
	if err == nil {
		return nil
	}
	task.Tries++
	if task.Tries >= maxReconcileTries {
		s.log.Error().Str("payment_id", task.PaymentID).Int("tries", task.Tries).Msg("reconciliation exhausted, payment needs manual review")
		return err
	}
	delay := s.syncBackoff * time.Duration(task.Tries)
	if schedErr := s.scheduler.ScheduleSync(ctx, task, time.Now().Add(delay)); schedErr != nil {
		s.log.Error().Err(schedErr).Str("payment_id", task.PaymentID).Msg("failed to reschedule reconciliation")
	}
	return err
}

// loadTrackers reads the intent and its active attempt.
func (s *Service) loadTrackers(ctx context.Context, merchantID, paymentID string) (*types.PaymentIntent, *types.PaymentAttempt, *merchant.Profile, *apierror.APIError) {
	if paymentID == "" {
		return nil, nil, nil, apierror.MissingField("payment_id")
	}
	profile, err := s.merchants.Get(merchantID)
	if err != nil {
		return nil, nil, nil, apierror.NotFound("merchant", merchantID)
	}
	store := s.stores.ForMerchant(merchantID)
	intent, err := store.FindIntent(ctx, merchantID, paymentID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil, nil, apierror.NotFound("payment", paymentID)
		}
		return nil, nil, nil, apierror.Internal("failed to load payment intent")
	}
	var attempt *types.PaymentAttempt
	if intent.ActiveAttempt != "" {
		attempt, err = store.FindAttempt(ctx, merchantID, paymentID, intent.ActiveAttempt)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return nil, nil, nil, apierror.Internal("failed to load payment attempt")
		}
	}
	return intent, attempt, profile, nil
}

func (s *Service) resolveConnector(profile *merchant.Profile, name string) (*connector.Resolved, *apierror.APIError) {
	cfg, ok := profile.ConnectorConfig(name)
	if !ok {
		return nil, apierror.InvalidConnector(name)
	}
	resolved, err := s.registry.Resolve(name, cfg)
	if err != nil {
		if errors.Is(err, connector.ErrInvalidConnectorName) {
			return nil, apierror.InvalidConnector(name)
		}
		return nil, apierror.Internal(err.Error())
	}
	return resolved, nil
}

// buildRouterData assembles the per-call envelope for a payment flow.
func buildRouterData[Req any](
	resolved *connector.Resolved,
	intent *types.PaymentIntent,
	attempt *types.PaymentAttempt,
	flow string,
	request Req,
) (*router.Data[Req, types.PaymentsResponse], *apierror.APIError) {
	cred, err := resolved.Auth.ForCurrency(intent.Currency)
	if err != nil {
		return nil, apierror.Internal("connector credentials are not configured for this currency")
	}
	converted, err := resolved.ConvertAmount(intent.Amount, intent.Currency)
	if err != nil {
		return nil, apierror.Internal("amount conversion failed")
	}
	return &router.Data[Req, types.PaymentsResponse]{
		Flow:          flow,
		MerchantID:    intent.MerchantID,
		ConnectorName: attempt.Connector,
		PaymentID:     intent.PaymentID,
		AttemptID:     attempt.AttemptID,
		Auth:          cred,
		BaseURL:       resolved.BaseURL,
		MinorAmount:   intent.Amount,
		Amount:        converted,
		Currency:      intent.Currency,
		ReturnURL:     intent.ReturnURL,
		Request:       request,
	}, nil
}

// persistPaymentOutcome is the post-call tracker update shared by every
// payment flow.
func (s *Service) persistPaymentOutcome(
	ctx context.Context,
	store storage.Store,
	intent *types.PaymentIntent,
	attempt *types.PaymentAttempt,
	response *types.PaymentsResponse,
	connErr *types.ErrorResponse,
	execErr error,
	minorAmount int64,
	elapsed time.Duration,
) (*PaymentResponse, error) {
	switch {
	case execErr != nil:
		return s.persistExecutionFailure(ctx, store, intent, attempt, execErr)

	case connErr != nil:
		s.decider.RegisterFailure(attempt.Connector)
		attemptStatus := types.AttemptFailure
		if connErr.AttemptStatus != nil {
			attemptStatus = *connErr.AttemptStatus
		}
		updatedAttempt, err := store.UpdateAttempt(ctx, attempt.MerchantID, attempt.PaymentID, attempt.AttemptID, storage.AttemptPatch{
			Status:       &attemptStatus,
			ErrorCode:    &connErr.Code,
			ErrorMessage: &connErr.Message,
			ErrorReason:  &connErr.Reason,
		})
		if err != nil {
			return nil, apierror.Internal("failed to persist attempt failure")
		}
		intentStatus := attemptStatus.IntentStatus()
		updatedIntent, err := store.UpdateIntent(ctx, intent.MerchantID, intent.PaymentID, storage.IntentPatch{Status: &intentStatus})
		if err != nil {
			return nil, apierror.Internal("failed to persist intent failure")
		}
		if attemptStatus == types.AttemptPending {
			s.scheduleReconcile(ctx, updatedAttempt)
		}
		return projectPayment(updatedIntent, updatedAttempt, connErr, nil), nil

	case response != nil:
		s.decider.RegisterSuccess(attempt.Connector, elapsed)
		patch := storage.AttemptPatch{Status: &response.Status}
		if response.ConnectorTxnID != "" {
			patch.ConnectorTxnID = &response.ConnectorTxnID
		}
		updatedAttempt, err := store.UpdateAttempt(ctx, attempt.MerchantID, attempt.PaymentID, attempt.AttemptID, patch)
		if err != nil {
			return nil, apierror.Internal("failed to persist attempt outcome")
		}
		intentStatus := response.Status.IntentStatus()
		intentPatch := storage.IntentPatch{Status: &intentStatus}
		// The amount sent on this call is what settled, not the intent total.
		// A later sync never lowers an amount a capture already recorded.
		if (response.Status == types.AttemptCharged || response.Status == types.AttemptPartialCharged) && intent.AmountCaptured == 0 {
			intentPatch.AmountCaptured = &minorAmount
		}
		updatedIntent, err := store.UpdateIntent(ctx, intent.MerchantID, intent.PaymentID, intentPatch)
		if err != nil {
			// The money moved but the intent write failed; the reconciler
			// will converge it from the attempt state.
			s.log.Error().Err(err).Str("payment_id", intent.PaymentID).Msg("post-call intent update failed, scheduling reconciliation")
			s.scheduleReconcile(ctx, updatedAttempt)
			return nil, apierror.Internal("failed to persist payment outcome")
		}
		if response.Status == types.AttemptPending || response.Status == types.AttemptCaptureInitiated {
			s.scheduleReconcile(ctx, updatedAttempt)
		}
		return projectPayment(updatedIntent, updatedAttempt, nil, response.Redirect), nil
	}

	// No call happened this pass.
	return projectPayment(intent, attempt, nil, nil), nil
}

// persistExecutionFailure classifies an executor error. Transport failures
// mean the outcome is unknown: the attempt parks in pending and a background
// sync reconciles it. Capability failures surface as API errors without
// touching the trackers.
func (s *Service) persistExecutionFailure(
	ctx context.Context,
	store storage.Store,
	intent *types.PaymentIntent,
	attempt *types.PaymentAttempt,
	execErr error,
) (*PaymentResponse, error) {
	if errors.Is(execErr, httpx.ErrTransport) || errors.Is(execErr, connector.ErrResponseDeserializationFailed) {
		s.decider.RegisterFailure(attempt.Connector)
		pending := types.AttemptPending
		updatedAttempt, err := store.UpdateAttempt(ctx, attempt.MerchantID, attempt.PaymentID, attempt.AttemptID, storage.AttemptPatch{Status: &pending})
		if err != nil {
			return nil, apierror.Internal("failed to persist pending attempt")
		}
		processing := types.IntentProcessing
		updatedIntent, err := store.UpdateIntent(ctx, intent.MerchantID, intent.PaymentID, storage.IntentPatch{Status: &processing})
		if err != nil {
			return nil, apierror.Internal("failed to persist processing intent")
		}
		s.scheduleReconcile(ctx, updatedAttempt)
		return projectPayment(updatedIntent, updatedAttempt, nil, nil), nil
	}
	return nil, mapConnectorError(execErr)
}

func (s *Service) scheduleReconcile(ctx context.Context, attempt *types.PaymentAttempt) {
	if s.scheduler == nil || attempt == nil {
		return
	}
	task := reconcile.Task{
		MerchantID: attempt.MerchantID,
		PaymentID:  attempt.PaymentID,
		AttemptID:  attempt.AttemptID,
		EnqueuedAt: time.Now().UTC(),
	}
	if err := s.scheduler.ScheduleSync(ctx, task, time.Now().Add(s.syncBackoff)); err != nil {
		s.log.Error().Err(err).Str("payment_id", attempt.PaymentID).Msg("failed to schedule reconciliation")
	}
}

// mapConnectorError converts capability errors into API errors.
func mapConnectorError(err error) *apierror.APIError {
	var flowErr *connector.FlowNotSupportedError
	if errors.As(err, &flowErr) {
		return apierror.FlowNotSupported(string(flowErr.Flow), flowErr.Connector)
	}
	var fieldErr *connector.MissingRequiredFieldError
	if errors.As(err, &fieldErr) {
		return apierror.MissingField(fieldErr.Field)
	}
	return apierror.Internal(err.Error())
}
