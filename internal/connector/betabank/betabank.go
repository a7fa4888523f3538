// Package betabank integrates the Betabank processor: form-urlencoded
// requests signed with a shared secret, amounts as decimal major-unit
// strings. Betabank is sale-only; it has no separate capture step, so the
// capture flow stays unsupported and manual capture is rejected up front.
package betabank

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/payflow-engine/payflow/internal/auth"
	"github.com/payflow-engine/payflow/internal/connector"
	"github.com/payflow-engine/payflow/internal/httpx"
	"github.com/payflow-engine/payflow/internal/money"
	"github.com/payflow-engine/payflow/internal/router"
	"github.com/payflow-engine/payflow/internal/types"
)

type Betabank struct {
	connector.Base
}

func New() *Betabank {
	return &Betabank{
		Base: connector.Base{
			Name:       "betabank",
			DefaultURL: "https://gateway.betabank.example.com",
			Unit:       money.UnitStringMajor,
		},
	}
}

func (b *Betabank) ContentType() string { return httpx.ContentTypeForm }

func (b *Betabank) AuthHeaders(cred auth.ConnectorAuth) (map[string]string, error) {
	if cred.Kind != auth.KindSignatureKey {
		return nil, fmt.Errorf("%w: betabank expects signature_key credentials, got %s", auth.ErrFailedToObtainAuthType, cred.Kind)
	}
	return map[string]string{"X-Api-Key": cred.APIKey, "X-Merchant": cred.Key1}, nil
}

func (b *Betabank) ValidateAuthorize(req *types.AuthorizeRequest) error {
	if req.CaptureMethod == types.CaptureManual {
		return &connector.FlowNotSupportedError{Flow: connector.FlowCapture, Connector: "betabank"}
	}
	if req.PaymentMethodData.Card == nil {
		return &connector.MissingRequiredFieldError{Field: "payment_method_data.card"}
	}
	return nil
}

type responseBody struct {
	TxnID   string `json:"txn_id"`
	State   string `json:"state"`
	Message string `json:"message,omitempty"`
}

type errorResponseBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Reason  string `json:"reason,omitempty"`
}

func (b *Betabank) BuildErrorResponse(res *httpx.Response) (types.ErrorResponse, error) {
	var body errorResponseBody
	if err := httpx.DecodeJSON(res.Body, &body); err != nil {
		return types.ErrorResponse{}, fmt.Errorf("%w: betabank error body: %v", connector.ErrResponseDeserializationFailed, err)
	}
	failure := types.AttemptFailure
	return types.ErrorResponse{
		StatusCode:    res.StatusCode,
		Code:          body.Code,
		Message:       body.Message,
		Reason:        body.Reason,
		AttemptStatus: &failure,
	}, nil
}

func mapState(state string) (types.AttemptStatus, error) {
	switch state {
	case "OK":
		return types.AttemptCharged, nil
	case "WAIT":
		return types.AttemptPending, nil
	case "3DS":
		return types.AttemptAuthenticationPending, nil
	case "DENY":
		return types.AttemptFailure, nil
	case "VOID":
		return types.AttemptVoided, nil
	}
	return "", fmt.Errorf("%w: betabank state %q", connector.ErrResponseDeserializationFailed, state)
}

func parseResponse(body []byte) (types.PaymentsResponse, error) {
	var obj responseBody
	if err := httpx.DecodeJSON(body, &obj); err != nil {
		return types.PaymentsResponse{}, fmt.Errorf("%w: betabank response: %v", connector.ErrResponseDeserializationFailed, err)
	}
	if obj.TxnID == "" {
		return types.PaymentsResponse{}, connector.ErrMissingConnectorTransactionID
	}
	status, err := mapState(obj.State)
	if err != nil {
		return types.PaymentsResponse{}, err
	}
	return types.PaymentsResponse{Status: status, ConnectorTxnID: obj.TxnID}, nil
}

// sign computes the request signature over the sorted field list, the
// scheme Betabank documents for every form endpoint.
func sign(fields map[string]string, secret string) string {
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	var payload strings.Builder
	for _, key := range keys {
		payload.WriteString(key)
		payload.WriteByte('=')
		payload.WriteString(fields[key])
		payload.WriteByte('&')
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload.String()))
	return hex.EncodeToString(mac.Sum(nil))
}

func signedForm(fields map[string]string, secret string) []byte {
	fields["sign"] = sign(fields, secret)
	return httpx.EncodeForm(fields)
}

func (b *Betabank) Authorize() connector.FlowHandler[types.AuthorizeRequest, types.PaymentsResponse] {
	return authorizeHandler{}
}

type authorizeHandler struct{}

func (authorizeHandler) BuildRequest(_ context.Context, rd *router.AuthorizeData) (*httpx.Request, error) {
	card := rd.Request.PaymentMethodData.Card
	if card == nil {
		return nil, &connector.MissingRequiredFieldError{Field: "payment_method_data.card"}
	}
	fields := map[string]string{
		"merchant":  rd.Auth.Key1,
		"amount":    rd.Amount.String,
		"currency":  rd.Currency,
		"reference": rd.PaymentID,
		"pan":       card.Number,
		"exp":       card.ExpMonth + card.ExpYear,
		"cvc":       card.CVC,
	}
	if rd.Request.AuthType == types.AuthThreeDS {
		fields["secure"] = "1"
		fields["return_url"] = rd.ReturnURL
	}
	return &httpx.Request{
		Method: http.MethodPost,
		URL:    rd.BaseURL + "/api/sale",
		Body:   signedForm(fields, rd.Auth.APISecret),
	}, nil
}

func (authorizeHandler) HandleResponse(_ context.Context, _ *router.AuthorizeData, res *httpx.Response) (types.PaymentsResponse, error) {
	return parseResponse(res.Body)
}

func (b *Betabank) Void() connector.FlowHandler[types.VoidRequest, types.PaymentsResponse] {
	return voidHandler{}
}

type voidHandler struct{}

func (voidHandler) BuildRequest(_ context.Context, rd *router.VoidData) (*httpx.Request, error) {
	if rd.Request.ConnectorTxnID == "" {
		return nil, &connector.MissingRequiredFieldError{Field: "connector_transaction_id"}
	}
	fields := map[string]string{
		"merchant": rd.Auth.Key1,
		"txn_id":   rd.Request.ConnectorTxnID,
	}
	return &httpx.Request{
		Method: http.MethodPost,
		URL:    rd.BaseURL + "/api/void",
		Body:   signedForm(fields, rd.Auth.APISecret),
	}, nil
}

func (voidHandler) HandleResponse(_ context.Context, _ *router.VoidData, res *httpx.Response) (types.PaymentsResponse, error) {
	return parseResponse(res.Body)
}

func (b *Betabank) PSync() connector.FlowHandler[types.SyncRequest, types.PaymentsResponse] {
	return syncHandler{}
}

type syncHandler struct{}

func (syncHandler) BuildRequest(_ context.Context, rd *router.SyncData) (*httpx.Request, error) {
	fields := map[string]string{"merchant": rd.Auth.Key1}
	switch {
	case rd.Request.ConnectorTxnID != "":
		fields["txn_id"] = rd.Request.ConnectorTxnID
	case rd.Request.MerchantReference != "":
		// Status lookup by the sale's reference field when the sale call
		// never returned.
		fields["reference"] = rd.Request.MerchantReference
	default:
		return nil, &connector.MissingRequiredFieldError{Field: "connector_transaction_id"}
	}
	return &httpx.Request{
		Method: http.MethodPost,
		URL:    rd.BaseURL + "/api/status",
		Body:   signedForm(fields, rd.Auth.APISecret),
	}, nil
}

func (syncHandler) HandleResponse(_ context.Context, _ *router.SyncData, res *httpx.Response) (types.PaymentsResponse, error) {
	return parseResponse(res.Body)
}

func (b *Betabank) RefundExecute() connector.FlowHandler[types.RefundExecuteRequest, types.RefundsResponse] {
	return refundHandler{}
}

type refundHandler struct{}

func (refundHandler) BuildRequest(_ context.Context, rd *router.RefundExecuteData) (*httpx.Request, error) {
	if rd.Request.ConnectorTxnID == "" {
		return nil, &connector.MissingRequiredFieldError{Field: "connector_transaction_id"}
	}
	fields := map[string]string{
		"merchant":  rd.Auth.Key1,
		"txn_id":    rd.Request.ConnectorTxnID,
		"amount":    rd.Amount.String,
		"reference": rd.Request.RefundID,
	}
	return &httpx.Request{
		Method: http.MethodPost,
		URL:    rd.BaseURL + "/api/refund",
		Body:   signedForm(fields, rd.Auth.APISecret),
	}, nil
}

func (refundHandler) HandleResponse(_ context.Context, _ *router.RefundExecuteData, res *httpx.Response) (types.RefundsResponse, error) {
	var obj responseBody
	if err := httpx.DecodeJSON(res.Body, &obj); err != nil {
		return types.RefundsResponse{}, fmt.Errorf("%w: betabank refund: %v", connector.ErrResponseDeserializationFailed, err)
	}
	var status types.RefundStatus
	switch obj.State {
	case "OK":
		status = types.RefundSuccess
	case "WAIT":
		status = types.RefundPending
	case "DENY":
		status = types.RefundFailure
	default:
		return types.RefundsResponse{}, fmt.Errorf("%w: betabank refund state %q", connector.ErrResponseDeserializationFailed, obj.State)
	}
	return types.RefundsResponse{Status: status, ConnectorRefund: obj.TxnID}, nil
}
