// Package apierror is the caller-facing error envelope. Connector and
// storage failures are mapped into these before leaving the engine; a raw
// connector error shape never reaches the merchant.
package apierror

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/payflow-engine/payflow/internal/types"
)

// APIError is the structured error returned to callers.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	Reason     string `json:"reason,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func InvalidRequest(message string) *APIError {
	return &APIError{StatusCode: http.StatusBadRequest, Code: "IR_01", Message: message}
}

func MissingField(field string) *APIError {
	return &APIError{
		StatusCode: http.StatusBadRequest,
		Code:       "IR_02",
		Message:    fmt.Sprintf("missing required field %q", field),
	}
}

func NotFound(resource, id string) *APIError {
	return &APIError{
		StatusCode: http.StatusNotFound,
		Code:       "HE_02",
		Message:    fmt.Sprintf("%s %q was not found", resource, id),
	}
}

// PaymentUnexpectedState rejects an operation that is not valid for the
// intent's current status, listing the states it would have been valid in.
func PaymentUnexpectedState(current types.IntentStatus, allowed []types.IntentStatus) *APIError {
	states := make([]string, len(allowed))
	for i, status := range allowed {
		states[i] = string(status)
	}
	return &APIError{
		StatusCode: http.StatusBadRequest,
		Code:       "IR_16",
		Message:    fmt.Sprintf("payment cannot be processed in status %q", current),
		Reason:     "allowed statuses: " + strings.Join(states, ", "),
	}
}

func InvalidConnector(name string) *APIError {
	return &APIError{
		StatusCode: http.StatusBadRequest,
		Code:       "IR_17",
		Message:    fmt.Sprintf("connector %q is not registered", name),
	}
}

func FlowNotSupported(flow, connectorName string) *APIError {
	return &APIError{
		StatusCode: http.StatusBadRequest,
		Code:       "IR_19",
		Message:    fmt.Sprintf("flow %s is not supported by connector %s", flow, connectorName),
	}
}

func Internal(reason string) *APIError {
	return &APIError{
		StatusCode: http.StatusInternalServerError,
		Code:       "HE_00",
		Message:    "an internal error occurred while processing the payment",
		Reason:     reason,
	}
}
