package postgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	enrollmentDatamodel "github.com/frahmantamala/course-checkout/internal/core/datamodel/enrollment"
	"github.com/frahmantamala/course-checkout/internal/enrollment"
)

const selectEnrollment = `
SELECT e.id, e.payment_status, e.transaction_id, e.paid_at,
       c.id AS course_id, c.title AS course_title, c.fee AS course_fee,
       u.id AS learner_id, u.name AS learner_name, u.email AS learner_email
FROM enrollments e
JOIN courses c ON c.id = e.course_id
JOIN users u ON u.id = e.learner_id
WHERE e.id = ?`

const markPaid = `
UPDATE enrollments
SET payment_status = ?, transaction_id = ?, paid_at = ?, updated_at = ?
WHERE id = ? AND payment_status <> ?`

type EnrollmentRepository struct {
	db *sqlx.DB
}

func NewEnrollmentRepository(db *sqlx.DB) enrollment.RepositoryAPI {
	return &EnrollmentRepository{db: db}
}

func (r *EnrollmentRepository) GetByID(ctx context.Context, id int64) (*enrollmentDatamodel.EnrollmentRow, error) {
	var row enrollmentDatamodel.EnrollmentRow
	if err := r.db.GetContext(ctx, &row, r.db.Rebind(selectEnrollment), id); err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *EnrollmentRepository) MarkPaid(ctx context.Context, id int64, transactionID string, paidAt time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(markPaid),
		enrollmentDatamodel.PaymentStatusCompleted, transactionID, paidAt, paidAt,
		id, enrollmentDatamodel.PaymentStatusCompleted)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
