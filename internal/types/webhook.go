package types

// WebhookEvent is the canonical event vocabulary incoming connector webhooks
// are mapped into.
type WebhookEvent string

const (
	EventPaymentSucceeded  WebhookEvent = "payment_succeeded"
	EventPaymentFailed     WebhookEvent = "payment_failed"
	EventPaymentProcessing WebhookEvent = "payment_processing"
	EventPaymentCancelled  WebhookEvent = "payment_cancelled"
	EventActionRequired    WebhookEvent = "payment_action_required"
	EventRefundSucceeded   WebhookEvent = "refund_succeeded"
	EventRefundFailed      WebhookEvent = "refund_failed"
	EventUnsupported       WebhookEvent = "unsupported"
)

// AttemptStatus maps a payment event onto the attempt vocabulary. Returns
// false for refund and unsupported events.
func (e WebhookEvent) AttemptStatus() (AttemptStatus, bool) {
	switch e {
	case EventPaymentSucceeded:
		return AttemptCharged, true
	case EventPaymentFailed:
		return AttemptFailure, true
	case EventPaymentProcessing:
		return AttemptPending, true
	case EventPaymentCancelled:
		return AttemptVoided, true
	case EventActionRequired:
		return AttemptAuthenticationPending, true
	}
	return "", false
}

// RefundStatus maps a refund event onto the refund vocabulary.
func (e WebhookEvent) RefundStatus() (RefundStatus, bool) {
	switch e {
	case EventRefundSucceeded:
		return RefundSuccess, true
	case EventRefundFailed:
		return RefundFailure, true
	}
	return "", false
}
