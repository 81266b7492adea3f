package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypeSessionInitialized = "checkout.session_initialized"
	EventTypePaymentCompleted   = "payment.completed"
	EventTypePaymentFailed      = "payment.failed"
)

type SessionInitializedEvent struct {
	BaseEvent
	SessionID    string `json:"session_id"`
	EnrollmentID int64  `json:"enrollment_id"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
}

func NewSessionInitializedEvent(sessionID string, enrollmentID, amount int64, currency string) *SessionInitializedEvent {
	return &SessionInitializedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeSessionInitialized,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"session_id":    sessionID,
				"enrollment_id": enrollmentID,
				"amount":        amount,
				"currency":      currency,
			},
		},
		SessionID:    sessionID,
		EnrollmentID: enrollmentID,
		Amount:       amount,
		Currency:     currency,
	}
}

type PaymentCompletedEvent struct {
	BaseEvent
	SessionID     string `json:"session_id"`
	EnrollmentID  int64  `json:"enrollment_id"`
	TransactionID string `json:"transaction_id"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	PaymentMethod string `json:"payment_method"`
	CourseTitle   string `json:"course_title"`
	LearnerName   string `json:"learner_name"`
	LearnerEmail  string `json:"-"`
}

func NewPaymentCompletedEvent(sessionID string, enrollmentID int64, transactionID string, amount int64, currency, paymentMethod, courseTitle, learnerName, learnerEmail string) *PaymentCompletedEvent {
	return &PaymentCompletedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypePaymentCompleted,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"session_id":     sessionID,
				"enrollment_id":  enrollmentID,
				"transaction_id": transactionID,
				"amount":         amount,
				"currency":       currency,
				"payment_method": paymentMethod,
			},
		},
		SessionID:     sessionID,
		EnrollmentID:  enrollmentID,
		TransactionID: transactionID,
		Amount:        amount,
		Currency:      currency,
		PaymentMethod: paymentMethod,
		CourseTitle:   courseTitle,
		LearnerName:   learnerName,
		LearnerEmail:  learnerEmail,
	}
}

type PaymentFailedEvent struct {
	BaseEvent
	SessionID     string `json:"session_id"`
	EnrollmentID  int64  `json:"enrollment_id"`
	Amount        int64  `json:"amount"`
	FailureCode   string `json:"failure_code"`
	FailureReason string `json:"failure_reason"`
	Attempt       int    `json:"attempt"`
}

func NewPaymentFailedEvent(sessionID string, enrollmentID, amount int64, failureCode, failureReason string, attempt int) *PaymentFailedEvent {
	return &PaymentFailedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypePaymentFailed,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"session_id":     sessionID,
				"enrollment_id":  enrollmentID,
				"amount":         amount,
				"failure_code":   failureCode,
				"failure_reason": failureReason,
				"attempt":        attempt,
			},
		},
		SessionID:     sessionID,
		EnrollmentID:  enrollmentID,
		Amount:        amount,
		FailureCode:   failureCode,
		FailureReason: failureReason,
		Attempt:       attempt,
	}
}
