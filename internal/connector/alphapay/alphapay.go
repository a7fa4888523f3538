// Package alphapay integrates the Alphapay card processor: JSON API,
// bearer-key auth, amounts in minor units, full authorize/capture/void/sync
// and refund support plus HMAC-signed webhooks.
package alphapay

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"

	json "github.com/json-iterator/go"

	"github.com/payflow-engine/payflow/internal/auth"
	"github.com/payflow-engine/payflow/internal/connector"
	"github.com/payflow-engine/payflow/internal/httpx"
	"github.com/payflow-engine/payflow/internal/money"
	"github.com/payflow-engine/payflow/internal/router"
	"github.com/payflow-engine/payflow/internal/types"
)

type Alphapay struct {
	connector.Base
}

func New() *Alphapay {
	return &Alphapay{
		Base: connector.Base{
			Name:       "alphapay",
			DefaultURL: "https://api.alphapay.example.com",
			Unit:       money.UnitMinor,
		},
	}
}

func (a *Alphapay) AuthHeaders(cred auth.ConnectorAuth) (map[string]string, error) {
	if cred.Kind != auth.KindHeaderKey {
		return nil, fmt.Errorf("%w: alphapay expects header_key credentials, got %s", auth.ErrFailedToObtainAuthType, cred.Kind)
	}
	return map[string]string{"Authorization": "Bearer " + cred.APIKey}, nil
}

// paymentObject is Alphapay's payment resource as returned by every payment
// endpoint.
type paymentObject struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	RedirectURL string `json:"redirect_url,omitempty"`
}

type errorBody struct {
	Error struct {
		Code        string `json:"code"`
		Message     string `json:"message"`
		DeclineCode string `json:"decline_code,omitempty"`
	} `json:"error"`
}

func (a *Alphapay) BuildErrorResponse(res *httpx.Response) (types.ErrorResponse, error) {
	var body errorBody
	if err := httpx.DecodeJSON(res.Body, &body); err != nil {
		return types.ErrorResponse{}, fmt.Errorf("%w: alphapay error body: %v", connector.ErrResponseDeserializationFailed, err)
	}
	failure := types.AttemptFailure
	return types.ErrorResponse{
		StatusCode:     res.StatusCode,
		Code:           body.Error.Code,
		Message:        body.Error.Message,
		AttemptStatus:  &failure,
		NetworkDecline: body.Error.DeclineCode,
	}, nil
}

// mapStatus translates Alphapay's status vocabulary into the canonical set.
func mapStatus(status string) (types.AttemptStatus, error) {
	switch status {
	case "requires_action":
		return types.AttemptAuthenticationPending, nil
	case "authorized":
		return types.AttemptAuthorized, nil
	case "capture_pending":
		return types.AttemptCaptureInitiated, nil
	case "captured":
		return types.AttemptCharged, nil
	case "partially_captured":
		return types.AttemptPartialCharged, nil
	case "processing":
		return types.AttemptPending, nil
	case "declined":
		return types.AttemptFailure, nil
	case "canceled":
		return types.AttemptVoided, nil
	}
	return "", fmt.Errorf("%w: alphapay payment status %q", connector.ErrResponseDeserializationFailed, status)
}

func mapRefundStatus(status string) (types.RefundStatus, error) {
	switch status {
	case "pending":
		return types.RefundPending, nil
	case "succeeded":
		return types.RefundSuccess, nil
	case "failed":
		return types.RefundFailure, nil
	}
	return "", fmt.Errorf("%w: alphapay refund status %q", connector.ErrResponseDeserializationFailed, status)
}

// parsePayment decodes a payment object and projects it into the canonical
// response, enforcing that a transaction id is always present.
func parsePayment(body []byte) (types.PaymentsResponse, error) {
	var obj paymentObject
	if err := httpx.DecodeJSON(body, &obj); err != nil {
		return types.PaymentsResponse{}, fmt.Errorf("%w: alphapay payment: %v", connector.ErrResponseDeserializationFailed, err)
	}
	if obj.ID == "" {
		return types.PaymentsResponse{}, connector.ErrMissingConnectorTransactionID
	}
	status, err := mapStatus(obj.Status)
	if err != nil {
		return types.PaymentsResponse{}, err
	}
	resp := types.PaymentsResponse{Status: status, ConnectorTxnID: obj.ID}
	if obj.RedirectURL != "" {
		resp.Redirect = &types.RedirectForm{URL: obj.RedirectURL, Method: http.MethodGet}
	}
	return resp, nil
}

func (a *Alphapay) Authorize() connector.FlowHandler[types.AuthorizeRequest, types.PaymentsResponse] {
	return authorizeHandler{}
}

type authorizeHandler struct{}

type authorizeBody struct {
	Amount        int64          `json:"amount"`
	Currency      string         `json:"currency"`
	CaptureMode   string         `json:"capture_mode"`
	Reference     string         `json:"reference"`
	ReturnURL     string         `json:"return_url,omitempty"`
	Card          *cardBody      `json:"card,omitempty"`
	WalletToken   string         `json:"wallet_token,omitempty"`
	BillingEmail  string         `json:"billing_email,omitempty"`
	ThreeDSSecure bool           `json:"three_ds"`
	Billing       *types.Address `json:"billing_address,omitempty"`
}

type cardBody struct {
	Number   string `json:"number"`
	ExpMonth string `json:"exp_month"`
	ExpYear  string `json:"exp_year"`
	CVC      string `json:"cvc"`
	Holder   string `json:"holder,omitempty"`
}

func (authorizeHandler) BuildRequest(_ context.Context, rd *router.AuthorizeData) (*httpx.Request, error) {
	captureMode := "auto"
	if rd.Request.CaptureMethod == types.CaptureManual {
		captureMode = "manual"
	}
	body := authorizeBody{
		Amount:        rd.Amount.Int64,
		Currency:      rd.Currency,
		CaptureMode:   captureMode,
		Reference:     rd.PaymentID,
		ReturnURL:     rd.ReturnURL,
		BillingEmail:  rd.Request.Email,
		ThreeDSSecure: rd.Request.AuthType == types.AuthThreeDS,
		Billing:       rd.Address,
	}
	switch {
	case rd.Request.PaymentMethodData.Card != nil:
		card := rd.Request.PaymentMethodData.Card
		body.Card = &cardBody{
			Number:   card.Number,
			ExpMonth: card.ExpMonth,
			ExpYear:  card.ExpYear,
			CVC:      card.CVC,
			Holder:   card.Holder,
		}
	case rd.Request.PaymentMethodData.Wallet != nil:
		body.WalletToken = rd.Request.PaymentMethodData.Wallet.Token
	default:
		return nil, &connector.MissingRequiredFieldError{Field: "payment_method_data"}
	}

	encoded, err := httpx.EncodeJSON(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", connector.ErrRequestEncodingFailed, err)
	}
	return &httpx.Request{
		Method: http.MethodPost,
		URL:    rd.BaseURL + "/v1/payments",
		Body:   encoded,
	}, nil
}

func (authorizeHandler) HandleResponse(_ context.Context, _ *router.AuthorizeData, res *httpx.Response) (types.PaymentsResponse, error) {
	return parsePayment(res.Body)
}

func (a *Alphapay) Capture() connector.FlowHandler[types.CaptureRequest, types.PaymentsResponse] {
	return captureHandler{}
}

type captureHandler struct{}

func (captureHandler) BuildRequest(_ context.Context, rd *router.CaptureData) (*httpx.Request, error) {
	if rd.Request.ConnectorTxnID == "" {
		return nil, &connector.MissingRequiredFieldError{Field: "connector_transaction_id"}
	}
	encoded, err := httpx.EncodeJSON(map[string]int64{"amount": rd.Amount.Int64})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", connector.ErrRequestEncodingFailed, err)
	}
	return &httpx.Request{
		Method: http.MethodPost,
		URL:    fmt.Sprintf("%s/v1/payments/%s/capture", rd.BaseURL, rd.Request.ConnectorTxnID),
		Body:   encoded,
	}, nil
}

func (captureHandler) HandleResponse(_ context.Context, _ *router.CaptureData, res *httpx.Response) (types.PaymentsResponse, error) {
	return parsePayment(res.Body)
}

func (a *Alphapay) Void() connector.FlowHandler[types.VoidRequest, types.PaymentsResponse] {
	return voidHandler{}
}

type voidHandler struct{}

func (voidHandler) BuildRequest(_ context.Context, rd *router.VoidData) (*httpx.Request, error) {
	if rd.Request.ConnectorTxnID == "" {
		return nil, &connector.MissingRequiredFieldError{Field: "connector_transaction_id"}
	}
	return &httpx.Request{
		Method: http.MethodPost,
		URL:    fmt.Sprintf("%s/v1/payments/%s/void", rd.BaseURL, rd.Request.ConnectorTxnID),
	}, nil
}

func (voidHandler) HandleResponse(_ context.Context, _ *router.VoidData, res *httpx.Response) (types.PaymentsResponse, error) {
	return parsePayment(res.Body)
}

func (a *Alphapay) PSync() connector.FlowHandler[types.SyncRequest, types.PaymentsResponse] {
	return syncHandler{}
}

type syncHandler struct{}

func (syncHandler) BuildRequest(_ context.Context, rd *router.SyncData) (*httpx.Request, error) {
	// Alphapay indexes payments by the reference sent at authorize time, so
	// an attempt that never received a transaction id can still be looked up.
	if rd.Request.ConnectorTxnID == "" {
		if rd.Request.MerchantReference == "" {
			return nil, &connector.MissingRequiredFieldError{Field: "connector_transaction_id"}
		}
		return &httpx.Request{
			Method: http.MethodGet,
			URL:    fmt.Sprintf("%s/v1/payments/by_reference/%s", rd.BaseURL, rd.Request.MerchantReference),
		}, nil
	}
	return &httpx.Request{
		Method: http.MethodGet,
		URL:    fmt.Sprintf("%s/v1/payments/%s", rd.BaseURL, rd.Request.ConnectorTxnID),
	}, nil
}

func (syncHandler) HandleResponse(_ context.Context, _ *router.SyncData, res *httpx.Response) (types.PaymentsResponse, error) {
	return parsePayment(res.Body)
}

func (a *Alphapay) RefundExecute() connector.FlowHandler[types.RefundExecuteRequest, types.RefundsResponse] {
	return refundHandler{}
}

type refundObject struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func parseRefund(body []byte) (types.RefundsResponse, error) {
	var obj refundObject
	if err := httpx.DecodeJSON(body, &obj); err != nil {
		return types.RefundsResponse{}, fmt.Errorf("%w: alphapay refund: %v", connector.ErrResponseDeserializationFailed, err)
	}
	status, err := mapRefundStatus(obj.Status)
	if err != nil {
		return types.RefundsResponse{}, err
	}
	return types.RefundsResponse{Status: status, ConnectorRefund: obj.ID}, nil
}

type refundHandler struct{}

func (refundHandler) BuildRequest(_ context.Context, rd *router.RefundExecuteData) (*httpx.Request, error) {
	if rd.Request.ConnectorTxnID == "" {
		return nil, &connector.MissingRequiredFieldError{Field: "connector_transaction_id"}
	}
	encoded, err := httpx.EncodeJSON(map[string]any{
		"payment_id": rd.Request.ConnectorTxnID,
		"amount":     rd.Amount.Int64,
		"reference":  rd.Request.RefundID,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", connector.ErrRequestEncodingFailed, err)
	}
	return &httpx.Request{
		Method: http.MethodPost,
		URL:    rd.BaseURL + "/v1/refunds",
		Body:   encoded,
	}, nil
}

func (refundHandler) HandleResponse(_ context.Context, _ *router.RefundExecuteData, res *httpx.Response) (types.RefundsResponse, error) {
	return parseRefund(res.Body)
}

func (a *Alphapay) RefundSync() connector.FlowHandler[types.RefundSyncRequest, types.RefundsResponse] {
	return refundSyncHandler{}
}

type refundSyncHandler struct{}

func (refundSyncHandler) BuildRequest(_ context.Context, rd *router.RefundSyncData) (*httpx.Request, error) {
	if rd.Request.ConnectorRefund == "" {
		return nil, &connector.MissingRequiredFieldError{Field: "connector_refund_id"}
	}
	return &httpx.Request{
		Method: http.MethodGet,
		URL:    fmt.Sprintf("%s/v1/refunds/%s", rd.BaseURL, rd.Request.ConnectorRefund),
	}, nil
}

func (refundSyncHandler) HandleResponse(_ context.Context, _ *router.RefundSyncData, res *httpx.Response) (types.RefundsResponse, error) {
	return parseRefund(res.Body)
}

// Webhooks

type webhookBody struct {
	EventType string `json:"event_type"`
	Data      struct {
		ID        string `json:"id"`
		Reference string `json:"reference"`
	} `json:"data"`
}

func (a *Alphapay) VerifySource(body []byte, headers map[string]string, secret []byte) error {
	signature := headers["X-Alphapay-Signature"]
	if signature == "" {
		return fmt.Errorf("%w: missing X-Alphapay-Signature", connector.ErrWebhookSourceVerificationFailed)
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return connector.ErrWebhookSourceVerificationFailed
	}
	return nil
}

func (a *Alphapay) WebhookReferenceID(body []byte) (string, error) {
	var event webhookBody
	if err := httpx.DecodeJSON(body, &event); err != nil {
		return "", fmt.Errorf("%w: alphapay webhook: %v", connector.ErrResponseDeserializationFailed, err)
	}
	// Alphapay echoes back the reference we sent at authorize time, which
	// is our payment or refund id.
	if event.Data.Reference == "" {
		return "", connector.ErrMissingConnectorTransactionID
	}
	return event.Data.Reference, nil
}

func (a *Alphapay) WebhookEventType(body []byte) (types.WebhookEvent, error) {
	var event webhookBody
	if err := httpx.DecodeJSON(body, &event); err != nil {
		return types.EventUnsupported, fmt.Errorf("%w: alphapay webhook: %v", connector.ErrResponseDeserializationFailed, err)
	}
	switch event.EventType {
	case "payment.succeeded":
		return types.EventPaymentSucceeded, nil
	case "payment.failed":
		return types.EventPaymentFailed, nil
	case "payment.processing":
		return types.EventPaymentProcessing, nil
	case "payment.canceled":
		return types.EventPaymentCancelled, nil
	case "payment.requires_action":
		return types.EventActionRequired, nil
	case "refund.succeeded":
		return types.EventRefundSucceeded, nil
	case "refund.failed":
		return types.EventRefundFailed, nil
	}
	return types.EventUnsupported, nil
}

func (a *Alphapay) WebhookResourceObject(body []byte) ([]byte, error) {
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := httpx.DecodeJSON(body, &envelope); err != nil {
		return nil, fmt.Errorf("%w: alphapay webhook: %v", connector.ErrResponseDeserializationFailed, err)
	}
	return envelope.Data, nil
}
