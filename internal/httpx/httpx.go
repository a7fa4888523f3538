package httpx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	json "github.com/json-iterator/go"
)

// ErrTransport wraps timeouts, connection resets and every other failure
// where the request may or may not have reached the processor. The outcome
// is unknown, which is a different thing from a declined payment.
var ErrTransport = errors.New("httpx: transport failure")

// ContentType values connectors declare for their request bodies.
const (
	ContentTypeJSON = "application/json"
	ContentTypeForm = "application/x-www-form-urlencoded"
)

// Request is the outbound request a connector capability assembles.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
}

// Response is the raw connector reply handed back to the capability.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// Doer sends one HTTP request. *http.Client satisfies it; tests inject fakes.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// NewClient builds a pooled HTTP client with a bounded per-call timeout.
func NewClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// Send executes one request and drains the reply. Transport-level failures
// come back wrapped in ErrTransport; any HTTP status is a success here.
func Send(ctx context.Context, client Doer, req *Request) (*Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return nil, fmt.Errorf("httpx: failed to build request: %w", err)
	}
	for name, value := range req.Headers {
		httpReq.Header.Set(name, value)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %v", ErrTransport, err)
	}
	return &Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       body,
	}, nil
}

// EncodeJSON marshals a wire struct with the hot-path JSON codec.
func EncodeJSON(v any) ([]byte, error) {
	data, err := json.ConfigCompatibleWithStandardLibrary.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("httpx: failed to encode request body: %w", err)
	}
	return data, nil
}

// DecodeJSON unmarshals a connector reply body.
func DecodeJSON(data []byte, v any) error {
	if err := json.ConfigCompatibleWithStandardLibrary.Unmarshal(data, v); err != nil {
		return fmt.Errorf("httpx: failed to decode response body: %w", err)
	}
	return nil
}

// EncodeForm renders key/value pairs as application/x-www-form-urlencoded.
func EncodeForm(fields map[string]string) []byte {
	values := url.Values{}
	for k, v := range fields {
		values.Set(k, v)
	}
	return []byte(values.Encode())
}
