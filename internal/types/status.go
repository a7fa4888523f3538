package types

// IntentStatus is the merchant-facing overall status of a payment intent.
type IntentStatus string

const (
	IntentRequiresPaymentMethod  IntentStatus = "requires_payment_method"
	IntentRequiresConfirmation   IntentStatus = "requires_confirmation"
	IntentRequiresCapture        IntentStatus = "requires_capture"
	IntentProcessing             IntentStatus = "processing"
	IntentRequiresCustomerAction IntentStatus = "requires_customer_action"
	IntentRequiresMerchantAction IntentStatus = "requires_merchant_action"
	IntentSucceeded              IntentStatus = "succeeded"
	IntentPartiallyCaptured      IntentStatus = "partially_captured"
	IntentFailed                 IntentStatus = "failed"
	IntentCancelled              IntentStatus = "cancelled"
)

// intentGraph is the allowed forward transition set. Terminal states have no
// outgoing edges; cancellation and failure edges are the only "backward" moves.
var intentGraph = map[IntentStatus][]IntentStatus{
	IntentRequiresPaymentMethod: {
		IntentRequiresConfirmation, IntentRequiresCustomerAction,
		IntentProcessing, IntentFailed, IntentCancelled,
	},
	IntentRequiresConfirmation: {
		IntentRequiresCapture, IntentRequiresCustomerAction, IntentRequiresMerchantAction,
		IntentProcessing, IntentSucceeded, IntentFailed, IntentCancelled,
	},
	IntentRequiresCapture: {
		IntentProcessing, IntentSucceeded, IntentPartiallyCaptured,
		IntentFailed, IntentCancelled,
	},
	IntentProcessing: {
		IntentRequiresCapture, IntentRequiresCustomerAction, IntentRequiresMerchantAction,
		IntentSucceeded, IntentPartiallyCaptured, IntentFailed, IntentCancelled,
	},
	IntentRequiresCustomerAction: {
		IntentRequiresCapture, IntentProcessing, IntentRequiresMerchantAction,
		IntentSucceeded, IntentFailed, IntentCancelled,
	},
	IntentRequiresMerchantAction: {
		IntentRequiresCapture, IntentProcessing,
		IntentSucceeded, IntentFailed, IntentCancelled,
	},
	IntentPartiallyCaptured: {IntentSucceeded},
}

// IsTerminal reports whether no further transitions are allowed.
func (s IntentStatus) IsTerminal() bool {
	return s == IntentSucceeded || s == IntentFailed || s == IntentCancelled
}

// CanTransitionTo reports whether moving to target is an allowed edge.
// Self-transitions are allowed everywhere so idempotent updates are no-ops.
func (s IntentStatus) CanTransitionTo(target IntentStatus) bool {
	if s == target {
		return true
	}
	for _, next := range intentGraph[s] {
		if next == target {
			return true
		}
	}
	return false
}

// AttemptStatus is the canonical connector-independent status of one attempt.
// Every connector's HandleResponse must map its own vocabulary into this set.
type AttemptStatus string

const (
	AttemptRequiresPaymentMethod AttemptStatus = "requires_payment_method"
	AttemptRequiresConfirmation  AttemptStatus = "requires_confirmation"
	AttemptAuthenticationPending AttemptStatus = "authentication_pending"
	AttemptAuthenticationFailed  AttemptStatus = "authentication_failed"
	AttemptAuthorized            AttemptStatus = "authorized"
	AttemptAuthorizationFailed   AttemptStatus = "authorization_failed"
	AttemptCaptureInitiated      AttemptStatus = "capture_initiated"
	AttemptCaptureFailed         AttemptStatus = "capture_failed"
	AttemptCharged               AttemptStatus = "charged"
	AttemptPartialCharged        AttemptStatus = "partial_charged"
	AttemptPending               AttemptStatus = "pending"
	AttemptFailure               AttemptStatus = "failure"
	AttemptVoided                AttemptStatus = "voided"
	AttemptVoidInitiated         AttemptStatus = "void_initiated"
	AttemptVoidFailed            AttemptStatus = "void_failed"
	AttemptUnresolved            AttemptStatus = "unresolved"
)

var validAttemptStatuses = map[AttemptStatus]struct{}{
	AttemptRequiresPaymentMethod: {}, AttemptRequiresConfirmation: {},
	AttemptAuthenticationPending: {}, AttemptAuthenticationFailed: {},
	AttemptAuthorized: {}, AttemptAuthorizationFailed: {},
	AttemptCaptureInitiated: {}, AttemptCaptureFailed: {},
	AttemptCharged: {}, AttemptPartialCharged: {},
	AttemptPending: {}, AttemptFailure: {},
	AttemptVoided: {}, AttemptVoidInitiated: {}, AttemptVoidFailed: {},
	AttemptUnresolved: {},
}

// IsValid reports whether s belongs to the canonical set.
func (s AttemptStatus) IsValid() bool {
	_, ok := validAttemptStatuses[s]
	return ok
}

// IsTerminal reports whether the attempt can no longer change on its own.
func (s AttemptStatus) IsTerminal() bool {
	switch s {
	case AttemptCharged, AttemptFailure, AttemptVoided,
		AttemptAuthenticationFailed, AttemptAuthorizationFailed,
		AttemptCaptureFailed, AttemptVoidFailed:
		return true
	}
	return false
}

// IntentStatus projects an attempt status onto the intent it belongs to.
func (s AttemptStatus) IntentStatus() IntentStatus {
	switch s {
	case AttemptRequiresPaymentMethod:
		return IntentRequiresPaymentMethod
	case AttemptRequiresConfirmation:
		return IntentRequiresConfirmation
	case AttemptAuthenticationPending:
		return IntentRequiresCustomerAction
	case AttemptAuthorized:
		return IntentRequiresCapture
	case AttemptCaptureInitiated, AttemptPending, AttemptVoidInitiated:
		return IntentProcessing
	case AttemptCharged:
		return IntentSucceeded
	case AttemptPartialCharged:
		return IntentPartiallyCaptured
	case AttemptVoided:
		return IntentCancelled
	case AttemptUnresolved:
		return IntentRequiresMerchantAction
	case AttemptAuthenticationFailed, AttemptAuthorizationFailed,
		AttemptCaptureFailed, AttemptVoidFailed, AttemptFailure:
		return IntentFailed
	}
	return IntentProcessing
}

// RefundStatus is the canonical status of a refund.
type RefundStatus string

const (
	RefundPending RefundStatus = "pending"
	RefundSuccess RefundStatus = "success"
	RefundFailure RefundStatus = "failure"
)

// IsValid reports whether s belongs to the canonical refund set.
func (s RefundStatus) IsValid() bool {
	return s == RefundPending || s == RefundSuccess || s == RefundFailure
}

// IsTerminal reports whether the refund reached a final state.
func (s RefundStatus) IsTerminal() bool {
	return s == RefundSuccess || s == RefundFailure
}
