package connector

import (
	"errors"
	"fmt"
)

// Sentinel errors for the connector capability surface. All of them are
// attached to the attempt and surfaced as mapped API errors, never as a
// process failure.
var (
	ErrNotImplemented                  = errors.New("connector: capability not implemented")
	ErrRequestEncodingFailed           = errors.New("connector: failed to encode request")
	ErrResponseDeserializationFailed   = errors.New("connector: failed to deserialize response")
	ErrWebhooksNotImplemented          = errors.New("connector: webhooks not implemented")
	ErrWebhookSourceVerificationFailed = errors.New("connector: webhook source verification failed")
	ErrMissingConnectorTransactionID   = errors.New("connector: missing connector transaction id")
	ErrInvalidConnectorName            = errors.New("connector: invalid connector name")
)

// FlowNotSupportedError marks a flow the connector intentionally does not
// implement. The pipeline treats it as terminal and non-retryable for the
// attempt.
type FlowNotSupportedError struct {
	Flow      Flow
	Connector string
}

func (e *FlowNotSupportedError) Error() string {
	return fmt.Sprintf("connector: flow %s not supported by %s", e.Flow, e.Connector)
}

// IsFlowNotSupported reports whether err is a FlowNotSupportedError.
func IsFlowNotSupported(err error) bool {
	var fns *FlowNotSupportedError
	return errors.As(err, &fns)
}

// MissingRequiredFieldError names a field the connector needs and the
// request did not carry. Raised before any network call.
type MissingRequiredFieldError struct {
	Field string
}

func (e *MissingRequiredFieldError) Error() string {
	return fmt.Sprintf("connector: missing required field %q", e.Field)
}
