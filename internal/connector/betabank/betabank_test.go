package betabank

import (
	"context"
	"errors"
	"net/url"
	"testing"

	"github.com/payflow-engine/payflow/internal/auth"
	"github.com/payflow-engine/payflow/internal/connector"
	"github.com/payflow-engine/payflow/internal/httpx"
	"github.com/payflow-engine/payflow/internal/money"
	"github.com/payflow-engine/payflow/internal/router"
	"github.com/payflow-engine/payflow/internal/types"
)

func TestManualCaptureIsRejectedUpFront(t *testing.T) {
	err := New().ValidateAuthorize(&types.AuthorizeRequest{
		CaptureMethod: types.CaptureManual,
		PaymentMethodData: types.PaymentMethodData{
			Card: &types.Card{Number: "4111111111111111"},
		},
	})
	if !connector.IsFlowNotSupported(err) {
		t.Fatalf("err = %v", err)
	}
}

func TestValidateAuthorizeDemandsCard(t *testing.T) {
	err := New().ValidateAuthorize(&types.AuthorizeRequest{CaptureMethod: types.CaptureAutomatic})
	var missing *connector.MissingRequiredFieldError
	if !errors.As(err, &missing) {
		t.Fatalf("err = %v", err)
	}
}

func TestSignatureIsStableAcrossFieldOrder(t *testing.T) {
	a := sign(map[string]string{"b": "2", "a": "1", "c": "3"}, "secret")
	b := sign(map[string]string{"c": "3", "a": "1", "b": "2"}, "secret")
	if a != b {
		t.Error("signature depends on map iteration order")
	}
	if a == sign(map[string]string{"a": "1", "b": "2", "c": "3"}, "other") {
		t.Error("signature ignores the secret")
	}
}

func TestAuthorizeBuildsSignedForm(t *testing.T) {
	rd := &router.AuthorizeData{
		PaymentID: "pay_7",
		BaseURL:   "https://sandbox.betabank",
		Auth:      auth.ConnectorAuth{Kind: auth.KindSignatureKey, APIKey: "mid", Key1: "terminal", APISecret: "s3cret"},
		Amount:    money.Amount{Unit: money.UnitStringMajor, String: "19.99"},
		Currency:  "USD",
		Request: types.AuthorizeRequest{
			PaymentMethodData: types.PaymentMethodData{
				Card: &types.Card{Number: "4111111111111111", ExpMonth: "12", ExpYear: "30", CVC: "123"},
			},
		},
	}
	req, err := New().Authorize().BuildRequest(context.Background(), rd)
	if err != nil {
		t.Fatalf("BuildRequest: %v", err)
	}
	if req.URL != "https://sandbox.betabank/api/sale" {
		t.Errorf("url = %s", req.URL)
	}

	form, err := url.ParseQuery(string(req.Body))
	if err != nil {
		t.Fatalf("body is not a form: %v", err)
	}
	if form.Get("amount") != "19.99" {
		t.Errorf("amount = %q", form.Get("amount"))
	}
	if form.Get("merchant") != "terminal" {
		t.Errorf("merchant = %q", form.Get("merchant"))
	}
	if form.Get("sign") == "" {
		t.Error("form is unsigned")
	}

	// The sign field covers every other field.
	fields := map[string]string{}
	for key := range form {
		if key != "sign" {
			fields[key] = form.Get(key)
		}
	}
	if form.Get("sign") != sign(fields, "s3cret") {
		t.Error("signature does not match the signed fields")
	}
}

func TestStateMapping(t *testing.T) {
	tests := []struct {
		state string
		want  types.AttemptStatus
	}{
		{"OK", types.AttemptCharged},
		{"WAIT", types.AttemptPending},
		{"3DS", types.AttemptAuthenticationPending},
		{"DENY", types.AttemptFailure},
		{"VOID", types.AttemptVoided},
	}
	for _, tt := range tests {
		got, err := mapState(tt.state)
		if err != nil {
			t.Errorf("mapState(%q): %v", tt.state, err)
			continue
		}
		if got != tt.want {
			t.Errorf("mapState(%q) = %s, want %s", tt.state, got, tt.want)
		}
	}
	if _, err := mapState("HUH"); !errors.Is(err, connector.ErrResponseDeserializationFailed) {
		t.Errorf("unknown state error = %v", err)
	}
}

func TestCaptureFlowStaysUnsupported(t *testing.T) {
	_, err := New().Capture().BuildRequest(context.Background(), &router.CaptureData{})
	if !connector.IsFlowNotSupported(err) {
		t.Errorf("err = %v", err)
	}
}

func TestParseResponseRejectsMissingTxnID(t *testing.T) {
	_, err := New().PSync().HandleResponse(context.Background(), &router.SyncData{},
		&httpx.Response{StatusCode: 200, Body: []byte(`{"state":"OK"}`)})
	if !errors.Is(err, connector.ErrMissingConnectorTransactionID) {
		t.Errorf("err = %v", err)
	}
}
