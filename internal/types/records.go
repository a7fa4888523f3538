package types

import (
	"time"

	"github.com/google/uuid"
)

// CaptureMethod controls whether a successful authorization is captured
// immediately or by a later explicit capture call.
type CaptureMethod string

const (
	CaptureAutomatic CaptureMethod = "automatic"
	CaptureManual    CaptureMethod = "manual"
)

// AuthenticationType selects the customer authentication flavour.
type AuthenticationType string

const (
	AuthThreeDS   AuthenticationType = "three_ds"
	AuthNoThreeDS AuthenticationType = "no_three_ds"
)

// PaymentIntent is the merchant's intent to collect a payment. Identity
// (PaymentID, MerchantID) is immutable for its lifetime.
type PaymentIntent struct {
	PaymentID      string             `json:"payment_id"`
	MerchantID     string             `json:"merchant_id"`
	ProfileID      string             `json:"profile_id"`
	Status         IntentStatus       `json:"status"`
	Amount         int64              `json:"amount"`
	AmountCaptured int64              `json:"amount_captured"`
	Currency       string             `json:"currency"`
	CustomerID     string             `json:"customer_id,omitempty"`
	CaptureMethod  CaptureMethod      `json:"capture_method"`
	AuthType       AuthenticationType `json:"authentication_type"`
	Description    string             `json:"description,omitempty"`
	ClientSecret   string             `json:"client_secret"`
	ActiveAttempt  string             `json:"active_attempt_id,omitempty"`
	ReturnURL      string             `json:"return_url,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
	ModifiedAt     time.Time          `json:"modified_at"`
}

func NewPaymentIntent(merchantID, profileID string, amount int64, currency string, capture CaptureMethod) *PaymentIntent {
	now := time.Now().UTC()
	paymentID := "pay_" + uuid.NewString()
	return &PaymentIntent{
		PaymentID:     paymentID,
		MerchantID:    merchantID,
		ProfileID:     profileID,
		Status:        IntentRequiresPaymentMethod,
		Amount:        amount,
		Currency:      currency,
		CaptureMethod: capture,
		AuthType:      AuthNoThreeDS,
		ClientSecret:  paymentID + "_secret_" + uuid.NewString(),
		CreatedAt:     now,
		ModifiedAt:    now,
	}
}

// PaymentAttempt is one try to execute an intent against a specific
// connector. Attempts are never deleted, only superseded.
type PaymentAttempt struct {
	AttemptID      string             `json:"attempt_id"`
	PaymentID      string             `json:"payment_id"`
	MerchantID     string             `json:"merchant_id"`
	Connector      string             `json:"connector"`
	Status         AttemptStatus      `json:"status"`
	Amount         int64              `json:"amount"`
	Currency       string             `json:"currency"`
	AuthType       AuthenticationType `json:"authentication_type"`
	CaptureMethod  CaptureMethod      `json:"capture_method"`
	PaymentMethod  string             `json:"payment_method,omitempty"`
	ConnectorTxnID string             `json:"connector_transaction_id,omitempty"`
	ErrorCode      string             `json:"error_code,omitempty"`
	ErrorMessage   string             `json:"error_message,omitempty"`
	ErrorReason    string             `json:"error_reason,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
	ModifiedAt     time.Time          `json:"modified_at"`
}

func NewPaymentAttempt(intent *PaymentIntent, connector string, authType AuthenticationType) *PaymentAttempt {
	now := time.Now().UTC()
	return &PaymentAttempt{
		AttemptID:     intent.PaymentID + "_" + uuid.NewString()[:8],
		PaymentID:     intent.PaymentID,
		MerchantID:    intent.MerchantID,
		Connector:     connector,
		Status:        AttemptRequiresConfirmation,
		Amount:        intent.Amount,
		Currency:      intent.Currency,
		AuthType:      authType,
		CaptureMethod: intent.CaptureMethod,
		CreatedAt:     now,
		ModifiedAt:    now,
	}
}

// Refund tracks one refund request against a charged attempt.
type Refund struct {
	RefundID         string       `json:"refund_id"`
	PaymentID        string       `json:"payment_id"`
	AttemptID        string       `json:"attempt_id"`
	MerchantID       string       `json:"merchant_id"`
	Connector        string       `json:"connector"`
	ConnectorRefund  string       `json:"connector_refund_id,omitempty"`
	ConnectorTxnID   string       `json:"connector_transaction_id"`
	Amount           int64        `json:"amount"`
	Currency         string       `json:"currency"`
	Status           RefundStatus `json:"status"`
	ErrorCode        string       `json:"error_code,omitempty"`
	ErrorMessage     string       `json:"error_message,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
	ModifiedAt       time.Time    `json:"modified_at"`
}

func NewRefund(attempt *PaymentAttempt, amount int64) *Refund {
	now := time.Now().UTC()
	return &Refund{
		RefundID:       "ref_" + uuid.NewString(),
		PaymentID:      attempt.PaymentID,
		AttemptID:      attempt.AttemptID,
		MerchantID:     attempt.MerchantID,
		Connector:      attempt.Connector,
		ConnectorTxnID: attempt.ConnectorTxnID,
		Amount:         amount,
		Currency:       attempt.Currency,
		Status:         RefundPending,
		CreatedAt:      now,
		ModifiedAt:     now,
	}
}

// Customer is the payer record resolved or created by the pipeline.
type Customer struct {
	CustomerID string    `json:"customer_id"`
	MerchantID string    `json:"merchant_id"`
	Name       string    `json:"name,omitempty"`
	Email      string    `json:"email,omitempty"`
	Phone      string    `json:"phone,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

func NewCustomer(merchantID, name, email string) *Customer {
	return &Customer{
		CustomerID: "cus_" + uuid.NewString(),
		MerchantID: merchantID,
		Name:       name,
		Email:      email,
		CreatedAt:  time.Now().UTC(),
	}
}

// Address carries billing/shipping details forwarded to connectors.
type Address struct {
	Line1   string `json:"line1,omitempty"`
	Line2   string `json:"line2,omitempty"`
	City    string `json:"city,omitempty"`
	State   string `json:"state,omitempty"`
	Zip     string `json:"zip,omitempty"`
	Country string `json:"country,omitempty"`
}

// Card is raw card payment-method data. Number and CVC must never appear in
// logs; httpx redaction strips them from connector events.
type Card struct {
	Number   string `json:"card_number"`
	ExpMonth string `json:"card_exp_month"`
	ExpYear  string `json:"card_exp_year"`
	CVC      string `json:"card_cvc"`
	Holder   string `json:"card_holder_name,omitempty"`
	Network  string `json:"card_network,omitempty"`
}

// PaymentMethodData is the tagged union of supported payment method shapes.
type PaymentMethodData struct {
	Type   string  `json:"type"`
	Card   *Card   `json:"card,omitempty"`
	Wallet *Wallet `json:"wallet,omitempty"`
	Token  string  `json:"token,omitempty"`
}

// Wallet is a tokenized wallet payment method.
type Wallet struct {
	Provider string `json:"provider"`
	Token    string `json:"token"`
}

// ErrorResponse is the canonical cross-connector error shape. Raw connector
// error bodies never cross the pipeline boundary; they are parsed into this.
type ErrorResponse struct {
	StatusCode     int            `json:"status_code"`
	Code           string         `json:"code"`
	Message        string         `json:"message"`
	Reason         string         `json:"reason,omitempty"`
	AttemptStatus  *AttemptStatus `json:"attempt_status,omitempty"`
	ConnectorTxnID string         `json:"connector_transaction_id,omitempty"`
	NetworkDecline string         `json:"network_decline_code,omitempty"`
	NetworkAdvice  string         `json:"network_advice_code,omitempty"`
}
