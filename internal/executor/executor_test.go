package executor

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/rs/zerolog"

	"github.com/payflow-engine/payflow/internal/auth"
	"github.com/payflow-engine/payflow/internal/connector"
	"github.com/payflow-engine/payflow/internal/connector/alphapay"
	"github.com/payflow-engine/payflow/internal/httpx"
	"github.com/payflow-engine/payflow/internal/router"
	"github.com/payflow-engine/payflow/internal/types"
)

type replyDoer struct {
	status  int
	body    string
	err     error
	lastReq *http.Request
}

func (d *replyDoer) Do(req *http.Request) (*http.Response, error) {
	d.lastReq = req
	if d.err != nil {
		return nil, d.err
	}
	return &http.Response{
		StatusCode: d.status,
		Header:     http.Header{},
		Body:       io.NopCloser(bytes.NewReader([]byte(d.body))),
	}, nil
}

func resolvedAlphapay() *connector.Resolved {
	return &connector.Resolved{
		Connector: alphapay.New(),
		Auth:      auth.ConnectorAuth{Kind: auth.KindHeaderKey, APIKey: "sk_test"},
		BaseURL:   "https://sandbox.alphapay",
	}
}

func syncData() *router.SyncData {
	return &router.SyncData{
		Flow:          string(connector.FlowPSync),
		ConnectorName: "alphapay",
		PaymentID:     "pay_1",
		AttemptID:     "pay_1_att",
		Auth:          auth.ConnectorAuth{Kind: auth.KindHeaderKey, APIKey: "sk_test"},
		BaseURL:       "https://sandbox.alphapay",
		Request:       types.SyncRequest{ConnectorTxnID: "alpha_tx"},
	}
}

func TestSuccessfulCallFillsResponse(t *testing.T) {
	doer := &replyDoer{status: 200, body: `{"id":"alpha_tx","status":"captured"}`}
	rd := syncData()
	res := resolvedAlphapay()

	if err := Execute(context.Background(), doer, res, res.Connector.PSync(), rd, zerolog.Nop()); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !rd.Succeeded() {
		t.Fatal("call did not succeed")
	}
	if rd.Response.Status != types.AttemptCharged {
		t.Errorf("status = %s", rd.Response.Status)
	}
	if got := doer.lastReq.Header.Get("Authorization"); got != "Bearer sk_test" {
		t.Errorf("Authorization = %q", got)
	}
}

func TestDeclineIsCapturedNotReturned(t *testing.T) {
	doer := &replyDoer{status: 402, body: `{"error":{"code":"card_declined","message":"no"}}`}
	rd := syncData()
	res := resolvedAlphapay()

	if err := Execute(context.Background(), doer, res, res.Connector.PSync(), rd, zerolog.Nop()); err != nil {
		t.Fatalf("a parsed decline must not be an Execute error: %v", err)
	}
	if rd.Error == nil || rd.Error.Code != "card_declined" {
		t.Errorf("error = %+v", rd.Error)
	}
	if rd.Response != nil {
		t.Error("response set alongside error")
	}
}

func Test5xxMapsToPendingOutcome(t *testing.T) {
	doer := &replyDoer{status: 503, body: `upstream unavailable`}
	rd := syncData()
	res := resolvedAlphapay()

	if err := Execute(context.Background(), doer, res, res.Connector.PSync(), rd, zerolog.Nop()); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if rd.Error == nil || rd.Error.AttemptStatus == nil {
		t.Fatalf("error = %+v", rd.Error)
	}
	if *rd.Error.AttemptStatus != types.AttemptPending {
		t.Errorf("attempt status = %s, want pending", *rd.Error.AttemptStatus)
	}
}

func TestTransportFailureSurfacesAsErrTransport(t *testing.T) {
	doer := &replyDoer{err: errors.New("connection refused")}
	rd := syncData()
	res := resolvedAlphapay()

	err := Execute(context.Background(), doer, res, res.Connector.PSync(), rd, zerolog.Nop())
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("err = %v", err)
	}
	if rd.Response != nil || rd.Error != nil {
		t.Error("outcome recorded for an unknown-outcome call")
	}
}

func TestUnsupportedFlowNeverTouchesTheWire(t *testing.T) {
	doer := &replyDoer{status: 200, body: `{}`}
	res := resolvedAlphapay()
	rd := &router.SessionData{Flow: string(connector.FlowSession)}

	err := Execute(context.Background(), doer, res, res.Connector.Session(), rd, zerolog.Nop())
	if !connector.IsFlowNotSupported(err) {
		t.Fatalf("err = %v", err)
	}
	if doer.lastReq != nil {
		t.Error("unsupported flow sent a request")
	}
}

func TestGarbageBodyIsDeserializationFailure(t *testing.T) {
	doer := &replyDoer{status: 200, body: `<html>`}
	rd := syncData()
	res := resolvedAlphapay()

	err := Execute(context.Background(), doer, res, res.Connector.PSync(), rd, zerolog.Nop())
	if !errors.Is(err, connector.ErrResponseDeserializationFailed) {
		t.Fatalf("err = %v", err)
	}
}

var _ httpx.Doer = (*replyDoer)(nil)
