package paymentgateway

import (
	"fmt"
	"time"
)

type SessionStatus string

const (
	SessionStatusInitialized SessionStatus = "initialized"
	SessionStatusProcessing  SessionStatus = "processing"
	SessionStatusSuccess     SessionStatus = "success"
	SessionStatusFailed      SessionStatus = "failed"
)

// Session is the correlation context opened for one checkout attempt.
type Session struct {
	ID        string        `json:"session_id"`
	Amount    int64         `json:"amount"`
	Currency  string        `json:"currency"`
	Status    SessionStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
}

type TransactionStatus string

const (
	TransactionStatusSuccess  TransactionStatus = "success"
	TransactionStatusDeclined TransactionStatus = "declined"
)

type GatewayReference struct {
	Reference string `json:"reference"`
	AuthCode  string `json:"auth_code"`
}

// TransactionRecord is created by the gateway when processing approves a charge.
type TransactionRecord struct {
	TransactionID string            `json:"transaction_id"`
	Status        TransactionStatus `json:"status"`
	Amount        int64             `json:"amount"`
	Currency      string            `json:"currency"`
	PaymentMethod string            `json:"payment_method"`
	Timestamp     time.Time         `json:"timestamp"`
	Gateway       GatewayReference  `json:"gateway"`
}

type ProcessRequest struct {
	SessionID     string `json:"session_id"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	PaymentMethod string `json:"payment_method"`
}

func (r ProcessRequest) Validate() error {
	if r.SessionID == "" {
		return fmt.Errorf("session_id is required")
	}
	if r.Amount <= 0 {
		return fmt.Errorf("amount must be greater than 0")
	}
	if r.Currency == "" {
		return fmt.Errorf("currency is required")
	}
	if r.PaymentMethod == "" {
		return fmt.Errorf("payment_method is required")
	}
	return nil
}

type Verification struct {
	TransactionID string    `json:"transaction_id"`
	Verified      bool      `json:"verified"`
	VerifiedAt    time.Time `json:"verified_at"`
}

const CodePaymentDeclined = "PAYMENT_DECLINED"

// GatewayError is the structured rejection returned by the process stage.
type GatewayError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

type SessionInitError struct {
	Reason string
	Cause  error
}

func (e *SessionInitError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("session init failed: %s: %v", e.Reason, e.Cause)
	}
	return "session init failed: " + e.Reason
}

func (e *SessionInitError) Unwrap() error {
	return e.Cause
}
