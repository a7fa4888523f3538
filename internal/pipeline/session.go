package pipeline

import (
	"context"
	"time"

	"github.com/payflow-engine/payflow/internal/apierror"
	"github.com/payflow-engine/payflow/internal/connector"
	"github.com/payflow-engine/payflow/internal/executor"
	"github.com/payflow-engine/payflow/internal/router"
	"github.com/payflow-engine/payflow/internal/types"
)

// CreateSessionRequest asks a connector for a client-side session token.
type CreateSessionRequest struct {
	MerchantID string `json:"-"`
	PaymentID  string `json:"-"`
	Country    string `json:"country,omitempty"`
}

// SessionTokenResponse is the caller-facing session payload.
type SessionTokenResponse struct {
	PaymentID    string `json:"payment_id"`
	Connector    string `json:"connector"`
	SessionToken string `json:"session_token"`
}

// SetupMandateRequest registers a payment method for later off-session use.
type SetupMandateRequest struct {
	MerchantID    string                   `json:"-"`
	Currency      string                   `json:"currency"`
	PaymentMethod *types.PaymentMethodData `json:"payment_method_data"`
	Email         string                   `json:"email,omitempty"`
}

// MandateResponse reports the connector-issued mandate reference.
type MandateResponse struct {
	MandateID string              `json:"mandate_id"`
	Connector string              `json:"connector"`
	Status    types.AttemptStatus `json:"status"`
}

// CreateSession requests a wallet/SDK session token for an open intent. It
// never mutates the trackers; a failed session call costs nothing.
func (s *Service) CreateSession(ctx context.Context, req *CreateSessionRequest) (*SessionTokenResponse, error) {
	intent, _, profile, apiErr := s.loadTrackers(ctx, req.MerchantID, req.PaymentID)
	if apiErr != nil {
		return nil, apiErr
	}
	if intent.Status.IsTerminal() {
		return nil, apierror.PaymentUnexpectedState(intent.Status, confirmAllowedStates)
	}

	chosen, err := s.decider.Choose(profile.CandidateConnectors())
	if err != nil {
		return nil, apierror.Internal("no connector available for this merchant")
	}
	resolved, apiErr := s.resolveConnector(profile, chosen)
	if apiErr != nil {
		return nil, apiErr
	}

	cred, err := resolved.Auth.ForCurrency(intent.Currency)
	if err != nil {
		return nil, apierror.Internal("connector credentials are not configured for this currency")
	}
	converted, err := resolved.ConvertAmount(intent.Amount, intent.Currency)
	if err != nil {
		return nil, apierror.Internal("amount conversion failed")
	}
	rd := &router.Data[types.SessionRequest, types.SessionResponse]{
		Flow:          string(connector.FlowSession),
		MerchantID:    intent.MerchantID,
		ConnectorName: chosen,
		PaymentID:     intent.PaymentID,
		Auth:          cred,
		BaseURL:       resolved.BaseURL,
		MinorAmount:   intent.Amount,
		Amount:        converted,
		Currency:      intent.Currency,
		Request: types.SessionRequest{
			Amount:   intent.Amount,
			Currency: intent.Currency,
			Country:  req.Country,
		},
	}
	if err := executor.Execute(ctx, s.client, resolved, resolved.Connector.Session(), rd, s.log); err != nil {
		return nil, mapConnectorError(err)
	}
	if rd.Error != nil {
		return nil, apierror.Internal(rd.Error.Message)
	}
	return &SessionTokenResponse{
		PaymentID:    intent.PaymentID,
		Connector:    chosen,
		SessionToken: rd.Response.SessionToken,
	}, nil
}

// SetupMandate runs a zero-value registration so the payment method can be
// charged off-session later.
func (s *Service) SetupMandate(ctx context.Context, req *SetupMandateRequest) (*MandateResponse, error) {
	if req.PaymentMethod == nil {
		return nil, apierror.MissingField("payment_method_data")
	}
	if req.Currency == "" {
		return nil, apierror.MissingField("currency")
	}
	profile, err := s.merchants.Get(req.MerchantID)
	if err != nil {
		return nil, apierror.NotFound("merchant", req.MerchantID)
	}

	chosen, err := s.decider.Choose(profile.CandidateConnectors())
	if err != nil {
		return nil, apierror.Internal("no connector available for this merchant")
	}
	resolved, apiErr := s.resolveConnector(profile, chosen)
	if apiErr != nil {
		return nil, apiErr
	}
	cred, err := resolved.Auth.ForCurrency(req.Currency)
	if err != nil {
		return nil, apierror.Internal("connector credentials are not configured for this currency")
	}

	rd := &router.Data[types.SetupMandateRequest, types.PaymentsResponse]{
		Flow:          string(connector.FlowSetupMandate),
		MerchantID:    req.MerchantID,
		ConnectorName: chosen,
		Auth:          cred,
		BaseURL:       resolved.BaseURL,
		Currency:      req.Currency,
		Request: types.SetupMandateRequest{
			PaymentMethodData: *req.PaymentMethod,
			Currency:          req.Currency,
			Email:             req.Email,
		},
	}
	started := time.Now()
	if err := executor.Execute(ctx, s.client, resolved, resolved.Connector.SetupMandate(), rd, s.log); err != nil {
		s.decider.RegisterFailure(chosen)
		return nil, mapConnectorError(err)
	}
	if rd.Error != nil {
		s.decider.RegisterFailure(chosen)
		return nil, apierror.Internal(rd.Error.Message)
	}
	s.decider.RegisterSuccess(chosen, time.Since(started))
	return &MandateResponse{
		MandateID: rd.Response.MandateID,
		Connector: chosen,
		Status:    rd.Response.Status,
	}, nil
}
