// Package router holds the transient per-call envelope threaded from the
// operation pipeline through a single connector invocation. A Data value is
// owned by exactly one executor call and is never persisted; its outcome is
// folded back into the payment attempt.
package router

import (
	"github.com/payflow-engine/payflow/internal/auth"
	"github.com/payflow-engine/payflow/internal/money"
	"github.com/payflow-engine/payflow/internal/types"
)

// Data is the generic flow-parameterized RouterData envelope. Req and Resp
// are the flow-specific payload pair; everything else is shared identity and
// context.
type Data[Req, Resp any] struct {
	Flow          string
	MerchantID    string
	ConnectorName string
	PaymentID     string
	AttemptID     string

	Auth        auth.ConnectorAuth
	AccessToken string
	BaseURL     string

	// MinorAmount is the internal representation; Amount is the same value
	// converted into the connector's declared unit.
	MinorAmount int64
	Amount      money.Amount
	Currency    string

	Address    *types.Address
	ReturnURL  string
	WebhookURL string

	Request  Req
	Response *Resp
	Error    *types.ErrorResponse
}

// Succeeded reports whether the connector call produced a success payload.
func (d *Data[Req, Resp]) Succeeded() bool {
	return d.Response != nil && d.Error == nil
}

// Flow-specific aliases used across the pipeline and connectors.
type (
	AuthorizeData     = Data[types.AuthorizeRequest, types.PaymentsResponse]
	CaptureData       = Data[types.CaptureRequest, types.PaymentsResponse]
	VoidData          = Data[types.VoidRequest, types.PaymentsResponse]
	SyncData          = Data[types.SyncRequest, types.PaymentsResponse]
	SessionData       = Data[types.SessionRequest, types.SessionResponse]
	SetupMandateData  = Data[types.SetupMandateRequest, types.PaymentsResponse]
	RefundExecuteData = Data[types.RefundExecuteRequest, types.RefundsResponse]
	RefundSyncData    = Data[types.RefundSyncRequest, types.RefundsResponse]
	AccessTokenData   = Data[types.AccessTokenRequest, types.AccessTokenResponse]
	TokenizeData      = Data[types.TokenizeRequest, types.TokenizeResponse]
)
