// Package connector defines the capability contract every external payment
// service implements. The pipeline only ever calls these interfaces; all
// per-connector translation (field names, signing, status vocabularies) lives
// behind them, so adding a connector never touches the orchestration core.
package connector

import (
	"context"

	"github.com/payflow-engine/payflow/internal/auth"
	"github.com/payflow-engine/payflow/internal/httpx"
	"github.com/payflow-engine/payflow/internal/money"
	"github.com/payflow-engine/payflow/internal/router"
	"github.com/payflow-engine/payflow/internal/types"
)

// Flow identifies one connector capability group.
type Flow string

const (
	FlowAuthorize     Flow = "authorize"
	FlowCapture       Flow = "capture"
	FlowVoid          Flow = "void"
	FlowPSync         Flow = "psync"
	FlowSession       Flow = "session"
	FlowSetupMandate  Flow = "setup_mandate"
	FlowRefundExecute Flow = "refund_execute"
	FlowRefundSync    Flow = "refund_sync"
	FlowAccessToken   Flow = "access_token"
	FlowTokenize      Flow = "tokenize"
)

// FlowHandler is the per-flow request/response behavior of a connector.
//
// BuildRequest returning (nil, nil) means no network call is needed for this
// flow this pass; returning a FlowNotSupportedError means the connector does
// not implement the flow at all. HandleResponse must map the connector's own
// status vocabulary into the canonical sets; it never returns an unmapped
// status.
type FlowHandler[Req, Resp any] interface {
	BuildRequest(ctx context.Context, rd *router.Data[Req, Resp]) (*httpx.Request, error)
	HandleResponse(ctx context.Context, rd *router.Data[Req, Resp], res *httpx.Response) (Resp, error)
}

// Connector is the full capability set of one external payment service.
// Implementations embed Base and override only what they support.
type Connector interface {
	// ID is the stable connector name used by routing and the registry.
	ID() string
	// BaseURL resolves the API host, honoring a per-merchant override.
	BaseURL(cfg MerchantConnector) string
	ContentType() string
	CurrencyUnit() money.Unit
	// AuthHeaders renders merchant credentials into request headers. Fails
	// with ErrFailedToObtainAuthType when the credential shape is wrong for
	// this connector.
	AuthHeaders(a auth.ConnectorAuth) (map[string]string, error)
	// BuildErrorResponse parses a non-2xx body into the canonical error
	// shape. Fails with ErrResponseDeserializationFailed on garbage.
	BuildErrorResponse(res *httpx.Response) (types.ErrorResponse, error)
	// Error5xx maps a 5xx reply. Connectors whose 5xx means "retry later"
	// return an error carrying AttemptPending instead of a hard failure.
	Error5xx(res *httpx.Response) types.ErrorResponse
	// ValidateAuthorize rejects unsupported capture methods or payment
	// method combinations before any network call is attempted.
	ValidateAuthorize(req *types.AuthorizeRequest) error

	Authorize() FlowHandler[types.AuthorizeRequest, types.PaymentsResponse]
	Capture() FlowHandler[types.CaptureRequest, types.PaymentsResponse]
	Void() FlowHandler[types.VoidRequest, types.PaymentsResponse]
	PSync() FlowHandler[types.SyncRequest, types.PaymentsResponse]
	Session() FlowHandler[types.SessionRequest, types.SessionResponse]
	SetupMandate() FlowHandler[types.SetupMandateRequest, types.PaymentsResponse]
	RefundExecute() FlowHandler[types.RefundExecuteRequest, types.RefundsResponse]
	RefundSync() FlowHandler[types.RefundSyncRequest, types.RefundsResponse]
	AccessToken() FlowHandler[types.AccessTokenRequest, types.AccessTokenResponse]
	Tokenize() FlowHandler[types.TokenizeRequest, types.TokenizeResponse]
}

// WebhookConnector is the optional inbound-webhook capability, discovered by
// type assertion on a Connector.
type WebhookConnector interface {
	// VerifySource checks the webhook signature with the merchant's secret.
	VerifySource(body []byte, headers map[string]string, secret []byte) error
	// WebhookReferenceID extracts the payment or refund reference the event
	// belongs to.
	WebhookReferenceID(body []byte) (string, error)
	// WebhookEventType maps the connector event name into the canonical set.
	WebhookEventType(body []byte) (types.WebhookEvent, error)
	// WebhookResourceObject extracts the opaque resource for audit storage.
	WebhookResourceObject(body []byte) ([]byte, error)
}

// Unsupported is the default FlowHandler for flows a connector does not
// implement.
type Unsupported[Req, Resp any] struct {
	Flow      Flow
	Connector string
}

func (u Unsupported[Req, Resp]) BuildRequest(_ context.Context, _ *router.Data[Req, Resp]) (*httpx.Request, error) {
	return nil, &FlowNotSupportedError{Flow: u.Flow, Connector: u.Connector}
}

func (u Unsupported[Req, Resp]) HandleResponse(_ context.Context, _ *router.Data[Req, Resp], _ *httpx.Response) (Resp, error) {
	var zero Resp
	return zero, &FlowNotSupportedError{Flow: u.Flow, Connector: u.Connector}
}

// Base supplies the safe defaults of the capability set: JSON content type,
// minor currency unit, pending-on-5xx, permissive validation and unsupported
// flows everywhere. Connectors embed it and override what they actually do.
type Base struct {
	Name       string
	DefaultURL string
	Unit       money.Unit
}

func (b Base) ID() string { return b.Name }

func (b Base) BaseURL(cfg MerchantConnector) string {
	if cfg.BaseURLOverride != "" {
		return cfg.BaseURLOverride
	}
	return b.DefaultURL
}

func (b Base) ContentType() string { return httpx.ContentTypeJSON }

func (b Base) CurrencyUnit() money.Unit {
	if b.Unit == "" {
		return money.UnitMinor
	}
	return b.Unit
}

func (b Base) AuthHeaders(_ auth.ConnectorAuth) (map[string]string, error) {
	return map[string]string{}, nil
}

func (b Base) BuildErrorResponse(res *httpx.Response) (types.ErrorResponse, error) {
	return types.ErrorResponse{
		StatusCode: res.StatusCode,
		Code:       "UNKNOWN",
		Message:    string(res.Body),
	}, nil
}

func (b Base) Error5xx(res *httpx.Response) types.ErrorResponse {
	status := types.AttemptPending
	return types.ErrorResponse{
		StatusCode:    res.StatusCode,
		Code:          "CONNECTOR_UNAVAILABLE",
		Message:       "connector returned a server error, outcome pending",
		AttemptStatus: &status,
	}
}

func (b Base) ValidateAuthorize(_ *types.AuthorizeRequest) error { return nil }

func (b Base) Authorize() FlowHandler[types.AuthorizeRequest, types.PaymentsResponse] {
	return Unsupported[types.AuthorizeRequest, types.PaymentsResponse]{Flow: FlowAuthorize, Connector: b.Name}
}

func (b Base) Capture() FlowHandler[types.CaptureRequest, types.PaymentsResponse] {
	return Unsupported[types.CaptureRequest, types.PaymentsResponse]{Flow: FlowCapture, Connector: b.Name}
}

func (b Base) Void() FlowHandler[types.VoidRequest, types.PaymentsResponse] {
	return Unsupported[types.VoidRequest, types.PaymentsResponse]{Flow: FlowVoid, Connector: b.Name}
}

func (b Base) PSync() FlowHandler[types.SyncRequest, types.PaymentsResponse] {
	return Unsupported[types.SyncRequest, types.PaymentsResponse]{Flow: FlowPSync, Connector: b.Name}
}

func (b Base) Session() FlowHandler[types.SessionRequest, types.SessionResponse] {
	return Unsupported[types.SessionRequest, types.SessionResponse]{Flow: FlowSession, Connector: b.Name}
}

func (b Base) SetupMandate() FlowHandler[types.SetupMandateRequest, types.PaymentsResponse] {
	return Unsupported[types.SetupMandateRequest, types.PaymentsResponse]{Flow: FlowSetupMandate, Connector: b.Name}
}

func (b Base) RefundExecute() FlowHandler[types.RefundExecuteRequest, types.RefundsResponse] {
	return Unsupported[types.RefundExecuteRequest, types.RefundsResponse]{Flow: FlowRefundExecute, Connector: b.Name}
}

func (b Base) RefundSync() FlowHandler[types.RefundSyncRequest, types.RefundsResponse] {
	return Unsupported[types.RefundSyncRequest, types.RefundsResponse]{Flow: FlowRefundSync, Connector: b.Name}
}

func (b Base) AccessToken() FlowHandler[types.AccessTokenRequest, types.AccessTokenResponse] {
	return Unsupported[types.AccessTokenRequest, types.AccessTokenResponse]{Flow: FlowAccessToken, Connector: b.Name}
}

func (b Base) Tokenize() FlowHandler[types.TokenizeRequest, types.TokenizeResponse] {
	return Unsupported[types.TokenizeRequest, types.TokenizeResponse]{Flow: FlowTokenize, Connector: b.Name}
}
