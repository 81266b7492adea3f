package enrollment

import (
	"context"
	"time"

	enrollmentDatamodel "github.com/frahmantamala/course-checkout/internal/core/datamodel/enrollment"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = enrollmentDatamodel.PaymentStatusPending
	PaymentCompleted PaymentStatus = enrollmentDatamodel.PaymentStatusCompleted
)

type Course struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
	Fee   int64  `json:"fee"`
}

type Learner struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type Enrollment struct {
	ID            int64         `json:"id"`
	Course        Course        `json:"course"`
	Learner       Learner       `json:"learner"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	TransactionID string        `json:"transaction_id,omitempty"`
	PaidAt        *time.Time    `json:"paid_at,omitempty"`
}

func (e *Enrollment) IsPaid() bool {
	return e.PaymentStatus == PaymentCompleted
}

func (e *Enrollment) IsFree() bool {
	return e.Course.Fee == 0
}

func FromRow(row *enrollmentDatamodel.EnrollmentRow) *Enrollment {
	e := &Enrollment{
		ID:            row.ID,
		Course:        Course{ID: row.CourseID, Title: row.CourseTitle, Fee: row.CourseFee},
		Learner:       Learner{ID: row.LearnerID, Name: row.LearnerName, Email: row.LearnerEmail},
		PaymentStatus: PaymentStatus(row.PaymentStatus),
	}
	if row.TransactionID.Valid {
		e.TransactionID = row.TransactionID.String
	}
	if row.PaidAt.Valid {
		t := row.PaidAt.Time
		e.PaidAt = &t
	}
	return e
}

type RepositoryAPI interface {
	GetByID(ctx context.Context, id int64) (*enrollmentDatamodel.EnrollmentRow, error)
	// MarkPaid flips a pending enrollment; updated is false when no pending row matched.
	MarkPaid(ctx context.Context, id int64, transactionID string, paidAt time.Time) (updated bool, err error)
}
