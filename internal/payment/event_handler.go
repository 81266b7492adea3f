package payment

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/frahmantamala/course-checkout/internal/core/events"
)

type Receipt struct {
	TransactionID   string
	LearnerName     string
	LearnerEmail    string
	CourseTitle     string
	FormattedAmount string
	PaymentMethod   string
	PaidAt          time.Time
}

type ReceiptSender interface {
	SendReceipt(ctx context.Context, receipt Receipt) error
}

// EventHandler reacts to settled payments. Receipts are sent after the commit, never before.
type EventHandler struct {
	sender    ReceiptSender
	formatter *AmountFormatter
	logger    *slog.Logger
}

func NewEventHandler(sender ReceiptSender, formatter *AmountFormatter, logger *slog.Logger) *EventHandler {
	if formatter == nil {
		formatter = defaultFormatter
	}
	return &EventHandler{
		sender:    sender,
		formatter: formatter,
		logger:    logger,
	}
}

func (h *EventHandler) HandlePaymentCompleted(ctx context.Context, event events.Event) error {
	completed, ok := event.(*events.PaymentCompletedEvent)
	if !ok {
		h.logger.Error("invalid event type for payment completed handler", "event_type", event.EventType())
		return fmt.Errorf("expected PaymentCompletedEvent, got %T", event)
	}

	if completed.LearnerEmail == "" {
		h.logger.Warn("no learner email, skipping receipt",
			"transaction_id", completed.TransactionID,
			"enrollment_id", completed.EnrollmentID)
		return nil
	}

	receipt := Receipt{
		TransactionID:   completed.TransactionID,
		LearnerName:     completed.LearnerName,
		LearnerEmail:    completed.LearnerEmail,
		CourseTitle:     completed.CourseTitle,
		FormattedAmount: h.formatter.Format(completed.Amount),
		PaymentMethod:   completed.PaymentMethod,
		PaidAt:          completed.OccurredAt(),
	}
	if err := h.sender.SendReceipt(ctx, receipt); err != nil {
		h.logger.Error("failed to send payment receipt",
			"error", err,
			"transaction_id", completed.TransactionID,
			"event_id", completed.EventID())
		return fmt.Errorf("send receipt for %s: %w", completed.TransactionID, err)
	}

	h.logger.Info("payment receipt sent",
		"transaction_id", completed.TransactionID,
		"enrollment_id", completed.EnrollmentID,
		"event_id", completed.EventID())
	return nil
}

func (h *EventHandler) HandlePaymentFailed(_ context.Context, event events.Event) error {
	failed, ok := event.(*events.PaymentFailedEvent)
	if !ok {
		return fmt.Errorf("expected PaymentFailedEvent, got %T", event)
	}
	h.logger.Info("payment attempt failed",
		"session_id", failed.SessionID,
		"enrollment_id", failed.EnrollmentID,
		"failure_code", failed.FailureCode,
		"attempt", failed.Attempt)
	return nil
}

func (h *EventHandler) RegisterEventHandlers(eventBus *events.EventBus) {
	eventBus.Subscribe(events.EventTypePaymentCompleted, h.HandlePaymentCompleted)
	eventBus.Subscribe(events.EventTypePaymentFailed, h.HandlePaymentFailed)

	h.logger.Info("payment event handlers registered",
		"handlers", []string{events.EventTypePaymentCompleted, events.EventTypePaymentFailed})
}
