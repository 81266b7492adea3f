package enrollment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/frahmantamala/course-checkout/internal"
)

type Service struct {
	repo   RepositoryAPI
	logger *slog.Logger
	now    func() time.Time
}

func NewService(repo RepositoryAPI, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger, now: time.Now}
}

func (s *Service) Lookup(ctx context.Context, id int64) (*Enrollment, error) {
	row, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, internal.ErrEnrollmentNotFound
		}
		return nil, fmt.Errorf("get enrollment %d: %w", id, err)
	}
	return FromRow(row), nil
}

// MarkPaid is idempotent for the same transaction id. A different id on a paid enrollment is a conflict.
func (s *Service) MarkPaid(ctx context.Context, id int64, transactionID string) error {
	updated, err := s.repo.MarkPaid(ctx, id, transactionID, s.now().UTC())
	if err != nil {
		return fmt.Errorf("mark enrollment %d paid: %w", id, err)
	}
	if updated {
		s.logger.Info("enrollment marked paid", "enrollment_id", id, "transaction_id", transactionID)
		return nil
	}

	current, err := s.Lookup(ctx, id)
	if err != nil {
		return err
	}
	if current.IsPaid() && current.TransactionID == transactionID {
		s.logger.Debug("enrollment already marked paid", "enrollment_id", id, "transaction_id", transactionID)
		return nil
	}

	s.logger.Warn("enrollment paid with another transaction",
		"enrollment_id", id,
		"transaction_id", transactionID,
		"existing_transaction_id", current.TransactionID)
	return internal.ErrAlreadyPaid
}
