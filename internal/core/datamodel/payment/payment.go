package payment

import (
	"database/sql/driver"
	"fmt"
	"time"
)

const (
	StatusSuccess  = "success"
	StatusDeclined = "declined"
	StatusFailed   = "failed"
)

// GatewayJSON is the raw gateway payload. It scans from both text and bytes.
type GatewayJSON []byte

func (j GatewayJSON) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	return string(j), nil
}

func (j *GatewayJSON) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*j = nil
	case []byte:
		*j = append(GatewayJSON(nil), v...)
	case string:
		*j = GatewayJSON(v)
	default:
		return fmt.Errorf("gateway_response: unsupported type %T", src)
	}
	return nil
}

func (j GatewayJSON) MarshalJSON() ([]byte, error) {
	if len(j) == 0 {
		return []byte("null"), nil
	}
	return j, nil
}

// Transaction is one settled checkout attempt. Successful rows are unique by TransactionID.
type Transaction struct {
	ID              int64       `json:"id" gorm:"primaryKey"`
	EnrollmentID    int64       `json:"enrollment_id" gorm:"column:enrollment_id;not null;index"`
	SessionID       string      `json:"session_id" gorm:"column:session_id;not null"`
	TransactionID   *string     `json:"transaction_id,omitempty" gorm:"column:transaction_id;uniqueIndex"`
	Amount          int64       `json:"amount" gorm:"column:amount;not null"`
	Currency        string      `json:"currency" gorm:"column:currency;not null"`
	Status          string      `json:"status" gorm:"column:status;not null"`
	PaymentMethod   string      `json:"payment_method" gorm:"column:payment_method;not null"`
	GatewayResponse GatewayJSON `json:"gateway_response,omitempty" gorm:"column:gateway_response;type:jsonb"`
	FailureCode     *string     `json:"failure_code,omitempty" gorm:"column:failure_code"`
	FailureReason   *string     `json:"failure_reason,omitempty" gorm:"column:failure_reason"`
	ProcessedAt     time.Time   `json:"processed_at" gorm:"column:processed_at;not null"`
	CreatedAt       time.Time   `json:"created_at" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time   `json:"updated_at" gorm:"column:updated_at;autoUpdateTime"`
}

func (Transaction) TableName() string {
	return "payment_transactions"
}
