package pipeline

import "github.com/payflow-engine/payflow/internal/types"

// OperationKind names one API operation driven through the pipeline.
type OperationKind string

const (
	OpCreate       OperationKind = "payment_create"
	OpConfirm      OperationKind = "payment_confirm"
	OpCapture      OperationKind = "payment_capture"
	OpVoid         OperationKind = "payment_void"
	OpSync         OperationKind = "payment_sync"
	OpRefund       OperationKind = "refund_create"
	OpRefundSync   OperationKind = "refund_sync"
	OpSession      OperationKind = "session_create"
	OpSetupMandate OperationKind = "setup_mandate"
)

// CallConnectorAction is the policy outcome of the should-call decision.
type CallConnectorAction string

const (
	// ActionTrigger performs an external connector call this pass.
	ActionTrigger CallConnectorAction = "trigger"
	// ActionAvoid skips the connector; the response reflects persisted state.
	ActionAvoid CallConnectorAction = "avoid"
	// ActionUpdateStatus folds an already-received connector resource (a
	// webhook payload) into the trackers without any outbound call.
	ActionUpdateStatus CallConnectorAction = "update_status"
)

// ShouldCallConnector is the pure predicate deciding whether this pipeline
// pass needs an external call. It never looks at connector identity.
func ShouldCallConnector(kind OperationKind, status types.IntentStatus, forceSync bool) CallConnectorAction {
	switch kind {
	case OpCreate:
		// Creation only establishes trackers; money moves on confirm.
		return ActionAvoid
	case OpSync:
		if forceSync && !status.IsTerminal() {
			return ActionTrigger
		}
		return ActionAvoid
	case OpConfirm, OpCapture, OpVoid, OpRefund, OpRefundSync, OpSession, OpSetupMandate:
		if status.IsTerminal() && kind != OpRefund && kind != OpRefundSync {
			return ActionAvoid
		}
		return ActionTrigger
	}
	return ActionAvoid
}

// confirmAllowedStates are the intent statuses a confirm may start from.
var confirmAllowedStates = []types.IntentStatus{
	types.IntentRequiresPaymentMethod,
	types.IntentRequiresConfirmation,
}

// voidAllowedStates are the intent statuses a cancellation may start from.
var voidAllowedStates = []types.IntentStatus{
	types.IntentRequiresPaymentMethod,
	types.IntentRequiresConfirmation,
	types.IntentRequiresCapture,
	types.IntentRequiresCustomerAction,
	types.IntentRequiresMerchantAction,
	types.IntentProcessing,
}

func statusIn(status types.IntentStatus, allowed []types.IntentStatus) bool {
	for _, s := range allowed {
		if s == status {
			return true
		}
	}
	return false
}
