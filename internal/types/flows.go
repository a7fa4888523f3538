package types

// Flow-specific request payloads carried in the RouterData envelope. One pair
// of request/response types per connector flow.

type AuthorizeRequest struct {
	Amount            int64              `json:"amount"`
	Currency          string             `json:"currency"`
	PaymentMethodData PaymentMethodData  `json:"payment_method_data"`
	CaptureMethod     CaptureMethod      `json:"capture_method"`
	AuthType          AuthenticationType `json:"authentication_type"`
	Email             string             `json:"email,omitempty"`
	StatementSuffix   string             `json:"statement_suffix,omitempty"`
	BrowserInfo       *BrowserInfo       `json:"browser_info,omitempty"`
	MandateReference  string             `json:"mandate_reference,omitempty"`
}

type CaptureRequest struct {
	AmountToCapture int64  `json:"amount_to_capture"`
	Currency        string `json:"currency"`
	ConnectorTxnID  string `json:"connector_transaction_id"`
}

type VoidRequest struct {
	ConnectorTxnID string `json:"connector_transaction_id"`
	Reason         string `json:"cancellation_reason,omitempty"`
}

type SyncRequest struct {
	ConnectorTxnID string `json:"connector_transaction_id"`
	// MerchantReference is the payment id sent as the order reference at
	// authorize time. Connectors that index by it can sync an attempt whose
	// authorize call never returned a transaction id.
	MerchantReference string `json:"merchant_reference,omitempty"`
}

type SessionRequest struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Country  string `json:"country,omitempty"`
}

type SetupMandateRequest struct {
	PaymentMethodData PaymentMethodData `json:"payment_method_data"`
	Currency          string            `json:"currency"`
	Email             string            `json:"email,omitempty"`
}

type RefundExecuteRequest struct {
	RefundID       string `json:"refund_id"`
	ConnectorTxnID string `json:"connector_transaction_id"`
	Amount         int64  `json:"refund_amount"`
	Currency       string `json:"currency"`
	Reason         string `json:"reason,omitempty"`
}

type RefundSyncRequest struct {
	RefundID        string `json:"refund_id"`
	ConnectorRefund string `json:"connector_refund_id"`
	ConnectorTxnID  string `json:"connector_transaction_id"`
}

type AccessTokenRequest struct {
	AppID  string `json:"app_id"`
	Secret string `json:"secret"`
}

type TokenizeRequest struct {
	PaymentMethodData PaymentMethodData `json:"payment_method_data"`
}

// BrowserInfo is forwarded to connectors for 3DS device fingerprinting.
type BrowserInfo struct {
	UserAgent      string `json:"user_agent,omitempty"`
	AcceptHeader   string `json:"accept_header,omitempty"`
	Language       string `json:"language,omitempty"`
	IPAddress      string `json:"ip_address,omitempty"`
	ScreenHeight   int    `json:"screen_height,omitempty"`
	ScreenWidth    int    `json:"screen_width,omitempty"`
	JavaEnabled    bool   `json:"java_enabled,omitempty"`
	TimezoneOffset int    `json:"timezone_offset,omitempty"`
}

// RedirectForm describes a customer redirection demanded by the connector.
type RedirectForm struct {
	URL    string            `json:"url"`
	Method string            `json:"method"`
	Fields map[string]string `json:"fields,omitempty"`
}

// PaymentsResponse is the canonical success payload for payment flows.
type PaymentsResponse struct {
	Status          AttemptStatus `json:"status"`
	ConnectorTxnID  string        `json:"connector_transaction_id"`
	Redirect        *RedirectForm `json:"redirect,omitempty"`
	MandateID       string        `json:"mandate_id,omitempty"`
	NetworkTxnID    string        `json:"network_transaction_id,omitempty"`
	ConnectorRespID string        `json:"connector_response_reference_id,omitempty"`
}

// RefundsResponse is the canonical success payload for refund flows.
type RefundsResponse struct {
	Status          RefundStatus `json:"status"`
	ConnectorRefund string       `json:"connector_refund_id"`
}

// SessionResponse carries a client session token for wallet/SDK flows.
type SessionResponse struct {
	SessionToken string `json:"session_token"`
}

// AccessTokenResponse is a connector OAuth-style token with its lifetime.
type AccessTokenResponse struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expires_in"`
}

// TokenizeResponse is a connector-issued payment method token.
type TokenizeResponse struct {
	Token string `json:"token"`
}
