package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/frahmantamala/course-checkout/internal"
	paymentmodel "github.com/frahmantamala/course-checkout/internal/core/datamodel/payment"
	"github.com/sethvargo/go-retry"
)

type TransactionRepository interface {
	// SaveSuccess inserts a successful transaction; created is false when the id was already stored.
	SaveSuccess(ctx context.Context, txn *paymentmodel.Transaction) (created bool, err error)
	SaveFailure(ctx context.Context, txn *paymentmodel.Transaction) error
	GetByTransactionID(ctx context.Context, transactionID string) (*paymentmodel.Transaction, error)
}

// EnrollmentCommitter flips an enrollment to paid. It must accept a repeat of the same transaction id.
type EnrollmentCommitter interface {
	MarkPaid(ctx context.Context, enrollmentID int64, transactionID string) error
}

type CommitRequest struct {
	EnrollmentID    int64
	SessionID       string
	TransactionID   string
	Amount          int64
	Currency        string
	PaymentMethod   MethodKind
	GatewayResponse json.RawMessage
	ProcessedAt     time.Time
}

type FailureRecord struct {
	EnrollmentID  int64
	SessionID     string
	Amount        int64
	Currency      string
	PaymentMethod MethodKind
	Code          internal.ErrorCode
	Reason        string
	Declined      bool
}

type Reconciler struct {
	transactions TransactionRepository
	enrollments  EnrollmentCommitter
	retries      uint64
	delay        time.Duration
	logger       *slog.Logger
}

func NewReconciler(transactions TransactionRepository, enrollments EnrollmentCommitter, retries uint64, delay time.Duration, logger *slog.Logger) *Reconciler {
	if delay <= 0 {
		delay = time.Millisecond
	}
	return &Reconciler{
		transactions: transactions,
		enrollments:  enrollments,
		retries:      retries,
		delay:        delay,
		logger:       logger,
	}
}

// Commit persists a successful charge. Repeating a commit with the same transaction id is a no-op.
func (r *Reconciler) Commit(ctx context.Context, req CommitRequest) error {
	if req.TransactionID == "" {
		return internal.NewValidationError("transaction id is required", internal.ErrCodeValidationFailed)
	}

	attempt := 0
	backoff := retry.WithMaxRetries(r.retries, retry.NewConstant(r.delay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := r.commitOnce(ctx, req)
		if err == nil {
			return nil
		}
		if !retryableCommitError(err) {
			return err
		}
		r.logger.Warn("commit attempt failed, retrying",
			"transaction_id", req.TransactionID,
			"enrollment_id", req.EnrollmentID,
			"attempt", attempt,
			"error", err)
		return retry.RetryableError(err)
	})
	if err != nil {
		r.logger.Error("payment commit failed",
			"transaction_id", req.TransactionID,
			"enrollment_id", req.EnrollmentID,
			"attempts", attempt,
			"error", err)
		if appErr, ok := internal.IsAppError(err); ok && appErr.Type == internal.ErrorTypeConflict {
			return err
		}
		return internal.ErrCommitFailed.WithCause(err)
	}

	r.logger.Info("payment committed",
		"transaction_id", req.TransactionID,
		"enrollment_id", req.EnrollmentID,
		"attempts", attempt)
	return nil
}

func (r *Reconciler) commitOnce(ctx context.Context, req CommitRequest) error {
	txnID := req.TransactionID
	processedAt := req.ProcessedAt
	if processedAt.IsZero() {
		processedAt = time.Now().UTC()
	}

	created, err := r.transactions.SaveSuccess(ctx, &paymentmodel.Transaction{
		EnrollmentID:    req.EnrollmentID,
		SessionID:       req.SessionID,
		TransactionID:   &txnID,
		Amount:          req.Amount,
		Currency:        req.Currency,
		Status:          paymentmodel.StatusSuccess,
		PaymentMethod:   string(req.PaymentMethod),
		GatewayResponse: paymentmodel.GatewayJSON(req.GatewayResponse),
		ProcessedAt:     processedAt,
	})
	if err != nil {
		return fmt.Errorf("save transaction: %w", err)
	}
	if !created {
		existing, err := r.transactions.GetByTransactionID(ctx, txnID)
		if err != nil {
			return fmt.Errorf("load transaction: %w", err)
		}
		if existing.EnrollmentID != req.EnrollmentID {
			return internal.NewConflictError("transaction already recorded for another enrollment", internal.ErrCodeAlreadyPaid)
		}
		r.logger.Debug("transaction already recorded", "transaction_id", txnID)
	}

	if err := r.enrollments.MarkPaid(ctx, req.EnrollmentID, txnID); err != nil {
		return fmt.Errorf("mark enrollment paid: %w", err)
	}
	return nil
}

func retryableCommitError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if appErr, ok := internal.IsAppError(err); ok {
		switch appErr.Type {
		case internal.ErrorTypeConflict, internal.ErrorTypeNotFound, internal.ErrorTypeValidation:
			return false
		}
	}
	return true
}

// RecordFailure stores a declined or failed attempt. Errors are logged, not returned to the flow.
func (r *Reconciler) RecordFailure(ctx context.Context, rec FailureRecord) {
	status := paymentmodel.StatusFailed
	if rec.Declined {
		status = paymentmodel.StatusDeclined
	}
	code := string(rec.Code)
	reason := rec.Reason

	err := r.transactions.SaveFailure(ctx, &paymentmodel.Transaction{
		EnrollmentID:  rec.EnrollmentID,
		SessionID:     rec.SessionID,
		Amount:        rec.Amount,
		Currency:      rec.Currency,
		Status:        status,
		PaymentMethod: string(rec.PaymentMethod),
		FailureCode:   &code,
		FailureReason: &reason,
		ProcessedAt:   time.Now().UTC(),
	})
	if err != nil {
		r.logger.Error("failed to record payment failure",
			"session_id", rec.SessionID,
			"enrollment_id", rec.EnrollmentID,
			"error", err)
	}
}
