package alphapay

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"testing"

	json "github.com/json-iterator/go"

	"github.com/payflow-engine/payflow/internal/auth"
	"github.com/payflow-engine/payflow/internal/connector"
	"github.com/payflow-engine/payflow/internal/httpx"
	"github.com/payflow-engine/payflow/internal/money"
	"github.com/payflow-engine/payflow/internal/router"
	"github.com/payflow-engine/payflow/internal/types"
)

func TestAuthHeadersRequireHeaderKey(t *testing.T) {
	a := New()
	headers, err := a.AuthHeaders(auth.ConnectorAuth{Kind: auth.KindHeaderKey, APIKey: "sk_live_1"})
	if err != nil {
		t.Fatalf("AuthHeaders: %v", err)
	}
	if headers["Authorization"] != "Bearer sk_live_1" {
		t.Errorf("Authorization = %q", headers["Authorization"])
	}

	if _, err := a.AuthHeaders(auth.ConnectorAuth{Kind: auth.KindSignatureKey}); !errors.Is(err, auth.ErrFailedToObtainAuthType) {
		t.Errorf("wrong-kind error = %v", err)
	}
}

func TestStatusMappingIsTotal(t *testing.T) {
	known := []string{
		"requires_action", "authorized", "capture_pending", "captured",
		"partially_captured", "processing", "declined", "canceled",
	}
	for _, status := range known {
		mapped, err := mapStatus(status)
		if err != nil {
			t.Errorf("mapStatus(%q): %v", status, err)
			continue
		}
		if !mapped.IsValid() {
			t.Errorf("mapStatus(%q) = %q is not canonical", status, mapped)
		}
	}
	if _, err := mapStatus("weird"); !errors.Is(err, connector.ErrResponseDeserializationFailed) {
		t.Errorf("unknown status error = %v", err)
	}
}

func TestAuthorizeRequestShape(t *testing.T) {
	rd := &router.AuthorizeData{
		Flow:      string(connector.FlowAuthorize),
		PaymentID: "pay_1",
		BaseURL:   "https://sandbox.alphapay",
		Amount:    money.Amount{Unit: money.UnitMinor, Int64: 1999},
		Currency:  "USD",
		ReturnURL: "https://merchant.example/return",
		Request: types.AuthorizeRequest{
			CaptureMethod: types.CaptureManual,
			AuthType:      types.AuthThreeDS,
			PaymentMethodData: types.PaymentMethodData{
				Type: "card",
				Card: &types.Card{Number: "4111111111111111", ExpMonth: "01", ExpYear: "2031", CVC: "999"},
			},
		},
	}
	req, err := New().Authorize().BuildRequest(context.Background(), rd)
	if err != nil {
		t.Fatalf("BuildRequest: %v", err)
	}
	if req.URL != "https://sandbox.alphapay/v1/payments" {
		t.Errorf("url = %s", req.URL)
	}

	var body map[string]any
	if err := json.Unmarshal(req.Body, &body); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if body["capture_mode"] != "manual" {
		t.Errorf("capture_mode = %v", body["capture_mode"])
	}
	if body["three_ds"] != true {
		t.Errorf("three_ds = %v", body["three_ds"])
	}
	if body["reference"] != "pay_1" {
		t.Errorf("reference = %v", body["reference"])
	}
}

func TestAuthorizeWithoutMethodDataFailsEarly(t *testing.T) {
	rd := &router.AuthorizeData{Request: types.AuthorizeRequest{}}
	_, err := New().Authorize().BuildRequest(context.Background(), rd)
	var missing *connector.MissingRequiredFieldError
	if !errors.As(err, &missing) {
		t.Fatalf("err = %v", err)
	}
}

func TestHandleResponseDemandsTransactionID(t *testing.T) {
	_, err := New().PSync().HandleResponse(context.Background(), &router.SyncData{},
		&httpx.Response{StatusCode: 200, Body: []byte(`{"status":"captured"}`)})
	if !errors.Is(err, connector.ErrMissingConnectorTransactionID) {
		t.Errorf("err = %v", err)
	}
}

func TestSyncFallsBackToReferenceLookup(t *testing.T) {
	handler := New().PSync()

	req, err := handler.BuildRequest(context.Background(), &router.SyncData{
		BaseURL: "https://sandbox.alphapay",
		Request: types.SyncRequest{ConnectorTxnID: "tx_7", MerchantReference: "pay_7"},
	})
	if err != nil {
		t.Fatalf("BuildRequest: %v", err)
	}
	if req.URL != "https://sandbox.alphapay/v1/payments/tx_7" {
		t.Errorf("url = %s", req.URL)
	}

	req, err = handler.BuildRequest(context.Background(), &router.SyncData{
		BaseURL: "https://sandbox.alphapay",
		Request: types.SyncRequest{MerchantReference: "pay_7"},
	})
	if err != nil {
		t.Fatalf("BuildRequest by reference: %v", err)
	}
	if req.URL != "https://sandbox.alphapay/v1/payments/by_reference/pay_7" {
		t.Errorf("url = %s", req.URL)
	}

	_, err = handler.BuildRequest(context.Background(), &router.SyncData{BaseURL: "https://sandbox.alphapay"})
	var missing *connector.MissingRequiredFieldError
	if !errors.As(err, &missing) {
		t.Errorf("empty sync err = %v", err)
	}
}

func TestCaptureIsUnsupportedFlowFreeConnector(t *testing.T) {
	// Alphapay supports capture; the session flow is the one it lacks.
	_, err := New().Session().BuildRequest(context.Background(), &router.SessionData{})
	if !connector.IsFlowNotSupported(err) {
		t.Errorf("err = %v", err)
	}
}

func TestWebhookVerification(t *testing.T) {
	a := New()
	secret := []byte("whsec_alpha")
	body := []byte(`{"event_type":"payment.succeeded","data":{"id":"tx1","reference":"pay_9"}}`)

	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	signature := hex.EncodeToString(mac.Sum(nil))

	if err := a.VerifySource(body, map[string]string{"X-Alphapay-Signature": signature}, secret); err != nil {
		t.Fatalf("valid signature rejected: %v", err)
	}
	err := a.VerifySource(body, map[string]string{"X-Alphapay-Signature": strings.Repeat("0", 64)}, secret)
	if !errors.Is(err, connector.ErrWebhookSourceVerificationFailed) {
		t.Errorf("bad signature error = %v", err)
	}
	err = a.VerifySource(body, map[string]string{}, secret)
	if !errors.Is(err, connector.ErrWebhookSourceVerificationFailed) {
		t.Errorf("missing signature error = %v", err)
	}
}

func TestWebhookEventAndReference(t *testing.T) {
	a := New()
	body := []byte(`{"event_type":"refund.failed","data":{"id":"rf1","reference":"ref_2"}}`)

	event, err := a.WebhookEventType(body)
	if err != nil {
		t.Fatalf("WebhookEventType: %v", err)
	}
	if event != types.EventRefundFailed {
		t.Errorf("event = %s", event)
	}
	ref, err := a.WebhookReferenceID(body)
	if err != nil {
		t.Fatalf("WebhookReferenceID: %v", err)
	}
	if ref != "ref_2" {
		t.Errorf("reference = %s", ref)
	}

	event, err = a.WebhookEventType([]byte(`{"event_type":"payout.created","data":{"id":"x","reference":"y"}}`))
	if err != nil || event != types.EventUnsupported {
		t.Errorf("unknown event = %s, err = %v", event, err)
	}
}
