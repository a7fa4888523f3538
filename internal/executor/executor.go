// Package executor drives a single connector capability invocation: build
// the outbound request, send it, and parse the reply into the RouterData
// response slot. One call, no internal retries; retry policy belongs to the
// caller because a transport failure means the outcome is unknown.
package executor

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/payflow-engine/payflow/internal/connector"
	"github.com/payflow-engine/payflow/internal/httpx"
	"github.com/payflow-engine/payflow/internal/router"
)

// ErrTransport is re-exported so callers can classify unknown-outcome
// failures without importing httpx.
var ErrTransport = httpx.ErrTransport

// Execute performs one connector call for a flow. On a parsed connector
// decline the error is captured into rd.Error and Execute returns nil; a
// non-nil return means the call could not be completed (encoding failure,
// unsupported flow, transport failure).
func Execute[Req, Resp any](
	ctx context.Context,
	client httpx.Doer,
	res *connector.Resolved,
	handler connector.FlowHandler[Req, Resp],
	rd *router.Data[Req, Resp],
	log zerolog.Logger,
) error {
	req, err := handler.BuildRequest(ctx, rd)
	if err != nil {
		return err
	}
	if req == nil {
		// Flow needs no network call this pass.
		return nil
	}

	authHeaders, err := res.Connector.AuthHeaders(rd.Auth)
	if err != nil {
		return err
	}
	if req.Headers == nil {
		req.Headers = map[string]string{}
	}
	for name, value := range authHeaders {
		req.Headers[name] = value
	}
	if _, ok := req.Headers["Content-Type"]; !ok && len(req.Body) > 0 {
		req.Headers["Content-Type"] = res.Connector.ContentType()
	}

	started := time.Now()
	reply, err := httpx.Send(ctx, client, req)
	elapsed := time.Since(started)

	event := log.With().
		Str("component", "executor").
		Str("connector", rd.ConnectorName).
		Str("flow", rd.Flow).
		Str("payment_id", rd.PaymentID).
		Str("attempt_id", rd.AttemptID).
		Str("method", req.Method).
		Str("url", req.URL).
		Dur("latency", elapsed).
		RawJSON("request", httpx.RedactBody(req.Body)).
		Logger()

	if err != nil {
		event.Warn().Err(err).Msg("connector call failed at transport level")
		if errors.Is(err, httpx.ErrTransport) {
			return err
		}
		return err
	}

	event.Info().
		Int("status_code", reply.StatusCode).
		RawJSON("response", httpx.RedactBody(reply.Body)).
		Msg("connector call completed")

	switch {
	case reply.StatusCode >= 200 && reply.StatusCode < 300:
		parsed, err := handler.HandleResponse(ctx, rd, reply)
		if err != nil {
			return err
		}
		rd.Response = &parsed
		rd.Error = nil
	case reply.StatusCode >= 500:
		// Some processors mean "try again" by 5xx; the connector decides
		// what attempt status that maps to.
		errResp := res.Connector.Error5xx(reply)
		rd.Error = &errResp
	default:
		errResp, err := res.Connector.BuildErrorResponse(reply)
		if err != nil {
			return err
		}
		rd.Error = &errResp
	}
	return nil
}
