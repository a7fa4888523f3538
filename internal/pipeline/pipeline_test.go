package pipeline

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/payflow-engine/payflow/internal/apierror"
	"github.com/payflow-engine/payflow/internal/connector"
	"github.com/payflow-engine/payflow/internal/connector/alphapay"
	"github.com/payflow-engine/payflow/internal/connector/betabank"
	"github.com/payflow-engine/payflow/internal/merchant"
	"github.com/payflow-engine/payflow/internal/reconcile"
	"github.com/payflow-engine/payflow/internal/storage"
	"github.com/payflow-engine/payflow/internal/types"
)

// scriptedDoer replays canned connector replies in order and records the
// requests it saw. A nil entry simulates a transport failure.
type scriptedDoer struct {
	replies []*http.Response
	urls    []string
	bodies  [][]byte
	calls   int
}

func (d *scriptedDoer) Do(req *http.Request) (*http.Response, error) {
	var body []byte
	if req.Body != nil {
		body, _ = io.ReadAll(req.Body)
	}
	d.urls = append(d.urls, req.URL.String())
	d.bodies = append(d.bodies, body)
	if d.calls >= len(d.replies) {
		return nil, errors.New("unexpected connector call")
	}
	reply := d.replies[d.calls]
	d.calls++
	if reply == nil {
		return nil, errors.New("connection reset by peer")
	}
	return reply, nil
}

func jsonReply(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(bytes.NewReader([]byte(body))),
	}
}

// firstDecider always routes to the first candidate and counts outcomes.
type firstDecider struct {
	successes int
	failures  int
}

func (d *firstDecider) Choose(candidates []string) (string, error) {
	if len(candidates) == 0 {
		return "", errors.New("no candidates")
	}
	return candidates[0], nil
}

func (d *firstDecider) RegisterSuccess(string, time.Duration) { d.successes++ }
func (d *firstDecider) RegisterFailure(string)                { d.failures++ }

type harness struct {
	service   *Service
	store     *storage.MemoryStore
	scheduler *reconcile.MemoryScheduler
	decider   *firstDecider
	doer      *scriptedDoer
}

func newHarness(t *testing.T, connectorName string, replies ...*http.Response) *harness {
	t.Helper()
	store := storage.NewMemoryStore()
	scheduler := reconcile.NewMemoryScheduler()
	decider := &firstDecider{}
	doer := &scriptedDoer{replies: replies}

	var auth []byte
	if connectorName == "betabank" {
		auth = []byte(`{"auth_type":"signature_key","api_key":"mid_42","key1":"terminal_7","api_secret":"s3cret"}`)
	} else {
		auth = []byte(`{"auth_type":"header_key","api_key":"sk_test_123"}`)
	}
	profiles := merchant.NewStaticRepo(&merchant.Profile{
		MerchantID: "merchant_1",
		ProfileID:  "profile_1",
		Connectors: []connector.MerchantConnector{{
			Connector:       connectorName,
			AuthDocument:    auth,
			BaseURLOverride: "https://sandbox.test",
		}},
	})

	registry := connector.NewRegistry(alphapay.New(), betabank.New())
	selector := storage.NewSelector(store, store, true, nil)
	service := NewService(selector, registry, profiles, decider, doer, scheduler, zerolog.Nop())
	return &harness{service: service, store: store, scheduler: scheduler, decider: decider, doer: doer}
}

func cardData() *types.PaymentMethodData {
	return &types.PaymentMethodData{
		Type: "card",
		Card: &types.Card{Number: "4242424242424242", ExpMonth: "12", ExpYear: "2030", CVC: "123"},
	}
}

func createIntent(t *testing.T, h *harness, capture types.CaptureMethod) *PaymentResponse {
	t.Helper()
	resp, err := h.service.CreatePayment(context.Background(), &CreatePaymentRequest{
		MerchantID:    "merchant_1",
		Amount:        2500,
		Currency:      "USD",
		CaptureMethod: capture,
	})
	if err != nil {
		t.Fatalf("CreatePayment: %v", err)
	}
	return resp
}

func TestConfirmAutomaticCaptureSucceeds(t *testing.T) {
	h := newHarness(t, "alphapay",
		jsonReply(200, `{"id":"alpha_tx_1","status":"captured"}`))
	created := createIntent(t, h, types.CaptureAutomatic)
	if created.Status != types.IntentRequiresPaymentMethod {
		t.Fatalf("created status = %s", created.Status)
	}

	resp, err := h.service.ConfirmPayment(context.Background(), &ConfirmPaymentRequest{
		MerchantID:    "merchant_1",
		PaymentID:     created.PaymentID,
		PaymentMethod: cardData(),
	})
	if err != nil {
		t.Fatalf("ConfirmPayment: %v", err)
	}
	if resp.Status != types.IntentSucceeded {
		t.Errorf("intent status = %s, want succeeded", resp.Status)
	}
	if resp.AttemptStatus != types.AttemptCharged {
		t.Errorf("attempt status = %s, want charged", resp.AttemptStatus)
	}
	if resp.ConnectorTxnID != "alpha_tx_1" {
		t.Errorf("connector txn id = %q", resp.ConnectorTxnID)
	}
	if resp.AmountCaptured != 2500 {
		t.Errorf("amount captured = %d", resp.AmountCaptured)
	}
	if h.decider.successes != 1 {
		t.Errorf("decider successes = %d", h.decider.successes)
	}
	if tasks := h.scheduler.Scheduled(); len(tasks) != 0 {
		t.Errorf("unexpected reconcile tasks: %d", len(tasks))
	}
}

func TestConfirmManualCaptureThenCapture(t *testing.T) {
	h := newHarness(t, "alphapay",
		jsonReply(200, `{"id":"alpha_tx_2","status":"authorized"}`),
		jsonReply(200, `{"id":"alpha_tx_2","status":"captured"}`))
	created := createIntent(t, h, types.CaptureManual)

	resp, err := h.service.ConfirmPayment(context.Background(), &ConfirmPaymentRequest{
		MerchantID:    "merchant_1",
		PaymentID:     created.PaymentID,
		PaymentMethod: cardData(),
	})
	if err != nil {
		t.Fatalf("ConfirmPayment: %v", err)
	}
	if resp.Status != types.IntentRequiresCapture {
		t.Fatalf("post-authorize status = %s, want requires_capture", resp.Status)
	}

	captured, err := h.service.CapturePayment(context.Background(), &CapturePaymentRequest{
		MerchantID: "merchant_1",
		PaymentID:  created.PaymentID,
	})
	if err != nil {
		t.Fatalf("CapturePayment: %v", err)
	}
	if captured.Status != types.IntentSucceeded {
		t.Errorf("post-capture status = %s", captured.Status)
	}
	if captured.AttemptStatus != types.AttemptCharged {
		t.Errorf("attempt status = %s", captured.AttemptStatus)
	}
}

func TestConfirmUnsupportedCaptureMethodLeavesTrackersUntouched(t *testing.T) {
	// betabank has no capture endpoint, so manual-capture authorizations are
	// rejected before any network call.
	h := newHarness(t, "betabank")
	created := createIntent(t, h, types.CaptureManual)

	_, err := h.service.ConfirmPayment(context.Background(), &ConfirmPaymentRequest{
		MerchantID:    "merchant_1",
		PaymentID:     created.PaymentID,
		PaymentMethod: cardData(),
	})
	if err == nil {
		t.Fatal("expected flow-not-supported error")
	}
	if h.doer.calls != 0 {
		t.Errorf("connector was called %d times", h.doer.calls)
	}

	intent, findErr := h.store.FindIntent(context.Background(), "merchant_1", created.PaymentID)
	if findErr != nil {
		t.Fatalf("FindIntent: %v", findErr)
	}
	if intent.Status != types.IntentRequiresPaymentMethod {
		t.Errorf("intent status moved to %s", intent.Status)
	}
	if intent.ActiveAttempt != "" {
		t.Errorf("attempt was created: %s", intent.ActiveAttempt)
	}
}

func TestConfirmDeclinePersistsFailure(t *testing.T) {
	h := newHarness(t, "alphapay",
		jsonReply(402, `{"error":{"code":"card_declined","message":"Insufficient funds","decline_code":"51"}}`))
	created := createIntent(t, h, types.CaptureAutomatic)

	resp, err := h.service.ConfirmPayment(context.Background(), &ConfirmPaymentRequest{
		MerchantID:    "merchant_1",
		PaymentID:     created.PaymentID,
		PaymentMethod: cardData(),
	})
	if err != nil {
		t.Fatalf("ConfirmPayment: %v", err)
	}
	if resp.Status != types.IntentFailed {
		t.Errorf("intent status = %s, want failed", resp.Status)
	}
	if resp.AttemptStatus != types.AttemptFailure {
		t.Errorf("attempt status = %s", resp.AttemptStatus)
	}
	if resp.Error == nil || resp.Error.Code != "card_declined" {
		t.Errorf("error = %+v", resp.Error)
	}
	if h.decider.failures != 1 {
		t.Errorf("decider failures = %d", h.decider.failures)
	}
}

func TestConfirmTransportFailureParksAttemptPending(t *testing.T) {
	h := newHarness(t, "alphapay", nil) // transport failure
	created := createIntent(t, h, types.CaptureAutomatic)

	resp, err := h.service.ConfirmPayment(context.Background(), &ConfirmPaymentRequest{
		MerchantID:    "merchant_1",
		PaymentID:     created.PaymentID,
		PaymentMethod: cardData(),
	})
	if err != nil {
		t.Fatalf("ConfirmPayment: %v", err)
	}
	if resp.Status != types.IntentProcessing {
		t.Errorf("intent status = %s, want processing", resp.Status)
	}
	if resp.AttemptStatus != types.AttemptPending {
		t.Errorf("attempt status = %s, want pending", resp.AttemptStatus)
	}
	tasks := h.scheduler.Scheduled()
	if len(tasks) != 1 {
		t.Fatalf("scheduled tasks = %d, want 1", len(tasks))
	}
	if tasks[0].PaymentID != created.PaymentID {
		t.Errorf("scheduled payment id = %s", tasks[0].PaymentID)
	}
}

func TestForceSyncRefreshesPendingAttempt(t *testing.T) {
	h := newHarness(t, "alphapay",
		nil, // confirm: transport failure, attempt parks pending
		jsonReply(200, `{"id":"alpha_tx_9","status":"captured"}`))
	created := createIntent(t, h, types.CaptureAutomatic)

	if _, err := h.service.ConfirmPayment(context.Background(), &ConfirmPaymentRequest{
		MerchantID:    "merchant_1",
		PaymentID:     created.PaymentID,
		PaymentMethod: cardData(),
	}); err != nil {
		t.Fatalf("ConfirmPayment: %v", err)
	}

	// Plain retrieve must not touch the connector.
	resp, err := h.service.SyncPayment(context.Background(), &SyncPaymentRequest{
		MerchantID: "merchant_1",
		PaymentID:  created.PaymentID,
	})
	if err != nil {
		t.Fatalf("SyncPayment: %v", err)
	}
	if resp.Status != types.IntentProcessing {
		t.Errorf("retrieve status = %s", resp.Status)
	}
	if h.doer.calls != 1 {
		t.Fatalf("retrieve made a connector call")
	}

	// Forced sync refreshes from the processor. The attempt never got a
	// transaction id, so the lookup goes by the merchant reference.
	forced, err := h.service.SyncPayment(context.Background(), &SyncPaymentRequest{
		MerchantID: "merchant_1",
		PaymentID:  created.PaymentID,
		ForceSync:  true,
	})
	if err != nil {
		t.Fatalf("forced SyncPayment: %v", err)
	}
	if forced.Status != types.IntentSucceeded {
		t.Errorf("forced sync status = %s, want succeeded", forced.Status)
	}
	if h.doer.calls != 2 {
		t.Errorf("connector calls = %d, want 2", h.doer.calls)
	}
	if want := "https://sandbox.test/v1/payments/by_reference/" + created.PaymentID; h.doer.urls[1] != want {
		t.Errorf("sync url = %s, want %s", h.doer.urls[1], want)
	}
	if forced.ConnectorTxnID != "alpha_tx_9" {
		t.Errorf("connector txn id = %q", forced.ConnectorTxnID)
	}

	// Terminal intents never sync again, forced or not.
	again, err := h.service.SyncPayment(context.Background(), &SyncPaymentRequest{
		MerchantID: "merchant_1",
		PaymentID:  created.PaymentID,
		ForceSync:  true,
	})
	if err != nil {
		t.Fatalf("terminal SyncPayment: %v", err)
	}
	if again.Status != types.IntentSucceeded {
		t.Errorf("terminal sync status = %s", again.Status)
	}
	if h.doer.calls != 2 {
		t.Errorf("terminal sync hit the connector")
	}
}

func TestCancelBeforeConnectorCallIsLocal(t *testing.T) {
	h := newHarness(t, "alphapay")
	created := createIntent(t, h, types.CaptureAutomatic)

	resp, err := h.service.CancelPayment(context.Background(), &CancelPaymentRequest{
		MerchantID: "merchant_1",
		PaymentID:  created.PaymentID,
		Reason:     "requested_by_customer",
	})
	if err != nil {
		t.Fatalf("CancelPayment: %v", err)
	}
	if resp.Status != types.IntentCancelled {
		t.Errorf("status = %s, want cancelled", resp.Status)
	}
	if h.doer.calls != 0 {
		t.Errorf("local cancel called the connector")
	}
}

func TestCancelAuthorizedPaymentVoidsAtConnector(t *testing.T) {
	h := newHarness(t, "alphapay",
		jsonReply(200, `{"id":"alpha_tx_3","status":"authorized"}`),
		jsonReply(200, `{"id":"alpha_tx_3","status":"canceled"}`))
	created := createIntent(t, h, types.CaptureManual)

	if _, err := h.service.ConfirmPayment(context.Background(), &ConfirmPaymentRequest{
		MerchantID:    "merchant_1",
		PaymentID:     created.PaymentID,
		PaymentMethod: cardData(),
	}); err != nil {
		t.Fatalf("ConfirmPayment: %v", err)
	}

	resp, err := h.service.CancelPayment(context.Background(), &CancelPaymentRequest{
		MerchantID: "merchant_1",
		PaymentID:  created.PaymentID,
	})
	if err != nil {
		t.Fatalf("CancelPayment: %v", err)
	}
	if resp.Status != types.IntentCancelled {
		t.Errorf("status = %s, want cancelled", resp.Status)
	}
	if resp.AttemptStatus != types.AttemptVoided {
		t.Errorf("attempt status = %s, want voided", resp.AttemptStatus)
	}
}

func TestCaptureRejectedOutsideRequiresCapture(t *testing.T) {
	h := newHarness(t, "alphapay")
	created := createIntent(t, h, types.CaptureAutomatic)

	_, err := h.service.CapturePayment(context.Background(), &CapturePaymentRequest{
		MerchantID: "merchant_1",
		PaymentID:  created.PaymentID,
	})
	if err == nil {
		t.Fatal("expected unexpected-state error")
	}
}

func TestRefundFullAmount(t *testing.T) {
	h := newHarness(t, "alphapay",
		jsonReply(200, `{"id":"alpha_tx_4","status":"captured"}`),
		jsonReply(200, `{"id":"alpha_rf_1","status":"succeeded"}`))
	created := createIntent(t, h, types.CaptureAutomatic)

	if _, err := h.service.ConfirmPayment(context.Background(), &ConfirmPaymentRequest{
		MerchantID:    "merchant_1",
		PaymentID:     created.PaymentID,
		PaymentMethod: cardData(),
	}); err != nil {
		t.Fatalf("ConfirmPayment: %v", err)
	}

	refund, err := h.service.CreateRefund(context.Background(), &CreateRefundRequest{
		MerchantID: "merchant_1",
		PaymentID:  created.PaymentID,
	})
	if err != nil {
		t.Fatalf("CreateRefund: %v", err)
	}
	if refund.Status != types.RefundSuccess {
		t.Errorf("refund status = %s", refund.Status)
	}
	if refund.ConnectorRefund != "alpha_rf_1" {
		t.Errorf("connector refund id = %q", refund.ConnectorRefund)
	}
	if refund.Amount != 2500 {
		t.Errorf("refund amount = %d", refund.Amount)
	}
}

func TestRefundRejectsOverRefund(t *testing.T) {
	h := newHarness(t, "alphapay",
		jsonReply(200, `{"id":"alpha_tx_5","status":"captured"}`))
	created := createIntent(t, h, types.CaptureAutomatic)

	if _, err := h.service.ConfirmPayment(context.Background(), &ConfirmPaymentRequest{
		MerchantID:    "merchant_1",
		PaymentID:     created.PaymentID,
		PaymentMethod: cardData(),
	}); err != nil {
		t.Fatalf("ConfirmPayment: %v", err)
	}

	_, err := h.service.CreateRefund(context.Background(), &CreateRefundRequest{
		MerchantID: "merchant_1",
		PaymentID:  created.PaymentID,
		Amount:     99999,
	})
	if err == nil {
		t.Fatal("expected over-refund rejection")
	}
}

func TestRefundRejectedBeforeSettlement(t *testing.T) {
	h := newHarness(t, "alphapay")
	created := createIntent(t, h, types.CaptureAutomatic)

	_, err := h.service.CreateRefund(context.Background(), &CreateRefundRequest{
		MerchantID: "merchant_1",
		PaymentID:  created.PaymentID,
	})
	if err == nil {
		t.Fatal("expected unexpected-state error")
	}
}

func TestConfirmOnCreate(t *testing.T) {
	h := newHarness(t, "alphapay",
		jsonReply(200, `{"id":"alpha_tx_6","status":"captured"}`))

	resp, err := h.service.CreatePayment(context.Background(), &CreatePaymentRequest{
		MerchantID:    "merchant_1",
		Amount:        1200,
		Currency:      "USD",
		Confirm:       true,
		PaymentMethod: cardData(),
	})
	if err != nil {
		t.Fatalf("CreatePayment: %v", err)
	}
	if resp.Status != types.IntentSucceeded {
		t.Errorf("status = %s, want succeeded", resp.Status)
	}
}

func TestCreateRejectsBadAmount(t *testing.T) {
	h := newHarness(t, "alphapay")
	_, err := h.service.CreatePayment(context.Background(), &CreatePaymentRequest{
		MerchantID: "merchant_1",
		Amount:     -5,
		Currency:   "USD",
	})
	if err == nil {
		t.Fatal("expected validation error")
	}
}

func TestReconcileRecoversAuthorizeWithUnknownOutcome(t *testing.T) {
	h := newHarness(t, "alphapay",
		nil, // authorize: transport failure, outcome unknown
		jsonReply(200, `{"id":"alpha_tx_10","status":"captured"}`))
	created := createIntent(t, h, types.CaptureAutomatic)

	if _, err := h.service.ConfirmPayment(context.Background(), &ConfirmPaymentRequest{
		MerchantID:    "merchant_1",
		PaymentID:     created.PaymentID,
		PaymentMethod: cardData(),
	}); err != nil {
		t.Fatalf("ConfirmPayment: %v", err)
	}

	tasks := h.scheduler.Scheduled()
	if len(tasks) != 1 {
		t.Fatalf("scheduled tasks = %d, want 1", len(tasks))
	}
	if err := h.service.ReconcileTask(context.Background(), tasks[0]); err != nil {
		t.Fatalf("ReconcileTask: %v", err)
	}
	if h.doer.calls != 2 {
		t.Errorf("connector calls = %d, want 2", h.doer.calls)
	}

	intent, err := h.store.FindIntent(context.Background(), "merchant_1", created.PaymentID)
	if err != nil {
		t.Fatalf("FindIntent: %v", err)
	}
	if intent.Status != types.IntentSucceeded {
		t.Errorf("intent status after reconcile = %s, want succeeded", intent.Status)
	}
	if intent.AmountCaptured != 2500 {
		t.Errorf("amount captured = %d, want 2500", intent.AmountCaptured)
	}
}

func TestCaptureRejectsAmountAboveAuthorization(t *testing.T) {
	h := newHarness(t, "alphapay",
		jsonReply(200, `{"id":"alpha_tx_11","status":"authorized"}`))
	created := createIntent(t, h, types.CaptureManual)

	if _, err := h.service.ConfirmPayment(context.Background(), &ConfirmPaymentRequest{
		MerchantID:    "merchant_1",
		PaymentID:     created.PaymentID,
		PaymentMethod: cardData(),
	}); err != nil {
		t.Fatalf("ConfirmPayment: %v", err)
	}

	_, err := h.service.CapturePayment(context.Background(), &CapturePaymentRequest{
		MerchantID:      "merchant_1",
		PaymentID:       created.PaymentID,
		AmountToCapture: 999999,
	})
	if err == nil {
		t.Fatal("expected over-capture rejection")
	}
	if h.doer.calls != 1 {
		t.Errorf("over-capture reached the connector: calls = %d", h.doer.calls)
	}

	intent, _ := h.store.FindIntent(context.Background(), "merchant_1", created.PaymentID)
	if intent.Status != types.IntentRequiresCapture {
		t.Errorf("intent status = %s, want requires_capture", intent.Status)
	}
	if intent.AmountCaptured != 0 {
		t.Errorf("amount captured = %d, want 0", intent.AmountCaptured)
	}
}

func TestPartialCaptureRecordsCapturedAmount(t *testing.T) {
	h := newHarness(t, "alphapay",
		jsonReply(200, `{"id":"alpha_tx_12","status":"authorized"}`),
		jsonReply(200, `{"id":"alpha_tx_12","status":"partially_captured"}`))
	created := createIntent(t, h, types.CaptureManual)

	if _, err := h.service.ConfirmPayment(context.Background(), &ConfirmPaymentRequest{
		MerchantID:    "merchant_1",
		PaymentID:     created.PaymentID,
		PaymentMethod: cardData(),
	}); err != nil {
		t.Fatalf("ConfirmPayment: %v", err)
	}

	captured, err := h.service.CapturePayment(context.Background(), &CapturePaymentRequest{
		MerchantID:      "merchant_1",
		PaymentID:       created.PaymentID,
		AmountToCapture: 1000,
	})
	if err != nil {
		t.Fatalf("CapturePayment: %v", err)
	}
	if captured.Status != types.IntentPartiallyCaptured {
		t.Errorf("intent status = %s, want partially_captured", captured.Status)
	}
	if captured.AmountCaptured != 1000 {
		t.Errorf("amount captured = %d, want 1000", captured.AmountCaptured)
	}
	if !bytes.Contains(h.doer.bodies[1], []byte(`"amount":1000`)) {
		t.Errorf("capture body = %s", h.doer.bodies[1])
	}

	// Only what actually settled is refundable.
	if _, err := h.service.CreateRefund(context.Background(), &CreateRefundRequest{
		MerchantID: "merchant_1",
		PaymentID:  created.PaymentID,
		Amount:     2500,
	}); err == nil {
		t.Fatal("expected refund above captured amount to be rejected")
	}
}

func TestRequestedAuthenticationTypeReachesConnector(t *testing.T) {
	h := newHarness(t, "alphapay",
		jsonReply(200, `{"id":"alpha_tx_13","status":"requires_action","redirect_url":"https://3ds.test/challenge"}`))

	resp, err := h.service.CreatePayment(context.Background(), &CreatePaymentRequest{
		MerchantID:    "merchant_1",
		Amount:        2500,
		Currency:      "USD",
		AuthType:      types.AuthThreeDS,
		Confirm:       true,
		PaymentMethod: cardData(),
	})
	if err != nil {
		t.Fatalf("CreatePayment: %v", err)
	}
	if !bytes.Contains(h.doer.bodies[0], []byte(`"three_ds":true`)) {
		t.Errorf("authorize body = %s", h.doer.bodies[0])
	}
	attempt, err := h.store.FindAttempt(context.Background(), "merchant_1", resp.PaymentID, resp.AttemptID)
	if err != nil {
		t.Fatalf("FindAttempt: %v", err)
	}
	if attempt.AuthType != types.AuthThreeDS {
		t.Errorf("attempt auth type = %s, want three_ds", attempt.AuthType)
	}
}

func TestCaptureOnConnectorWithoutCaptureFlow(t *testing.T) {
	h := newHarness(t, "betabank")
	ctx := context.Background()

	// An authorized betabank attempt can only exist through an upstream
	// migration or manual repair; seed the trackers directly.
	intent := types.NewPaymentIntent("merchant_1", "profile_1", 2500, "USD", types.CaptureManual)
	attempt := types.NewPaymentAttempt(intent, "betabank", types.AuthNoThreeDS)
	attempt.Status = types.AttemptAuthorized
	attempt.ConnectorTxnID = "beta_tx_1"
	intent.Status = types.IntentRequiresCapture
	intent.ActiveAttempt = attempt.AttemptID
	if err := h.store.InsertIntent(ctx, intent); err != nil {
		t.Fatalf("InsertIntent: %v", err)
	}
	if err := h.store.InsertAttempt(ctx, attempt); err != nil {
		t.Fatalf("InsertAttempt: %v", err)
	}

	_, err := h.service.CapturePayment(ctx, &CapturePaymentRequest{
		MerchantID: "merchant_1",
		PaymentID:  intent.PaymentID,
	})
	if err == nil {
		t.Fatal("expected flow-not-supported error")
	}
	var apiErr *apierror.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != "IR_19" {
		t.Errorf("error = %v, want IR_19", err)
	}
	if h.doer.calls != 0 {
		t.Errorf("connector was called %d times", h.doer.calls)
	}

	got, _ := h.store.FindIntent(ctx, "merchant_1", intent.PaymentID)
	if got.Status != types.IntentRequiresCapture {
		t.Errorf("intent status = %s, want requires_capture", got.Status)
	}
	gotAttempt, _ := h.store.FindAttempt(ctx, "merchant_1", intent.PaymentID, attempt.AttemptID)
	if gotAttempt.Status != types.AttemptAuthorized {
		t.Errorf("attempt status = %s, want authorized", gotAttempt.Status)
	}
}

func TestRedirectSurfacesToCaller(t *testing.T) {
	h := newHarness(t, "alphapay",
		jsonReply(200, `{"id":"alpha_tx_7","status":"requires_action","redirect_url":"https://3ds.test/challenge"}`))
	created := createIntent(t, h, types.CaptureAutomatic)

	resp, err := h.service.ConfirmPayment(context.Background(), &ConfirmPaymentRequest{
		MerchantID:    "merchant_1",
		PaymentID:     created.PaymentID,
		PaymentMethod: cardData(),
	})
	if err != nil {
		t.Fatalf("ConfirmPayment: %v", err)
	}
	if resp.Status != types.IntentRequiresCustomerAction {
		t.Errorf("status = %s, want requires_customer_action", resp.Status)
	}
	if resp.Redirect == nil || resp.Redirect.URL != "https://3ds.test/challenge" {
		t.Errorf("redirect = %+v", resp.Redirect)
	}
}
