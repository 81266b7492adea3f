package enrollment

import (
	"database/sql"
	"time"
)

const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
)

type Course struct {
	ID        int64     `db:"id" gorm:"primaryKey"`
	Title     string    `db:"title" gorm:"column:title;not null"`
	Fee       int64     `db:"fee" gorm:"column:fee;not null"`
	CreatedAt time.Time `db:"created_at" gorm:"column:created_at;autoCreateTime"`
}

func (Course) TableName() string {
	return "courses"
}

type Learner struct {
	ID        int64     `db:"id" gorm:"primaryKey"`
	Name      string    `db:"name" gorm:"column:name;not null"`
	Email     string    `db:"email" gorm:"column:email;uniqueIndex;not null"`
	Role      string    `db:"role" gorm:"column:role;not null"`
	CreatedAt time.Time `db:"created_at" gorm:"column:created_at;autoCreateTime"`
}

func (Learner) TableName() string {
	return "users"
}

type Enrollment struct {
	ID            int64          `db:"id" gorm:"primaryKey"`
	CourseID      int64          `db:"course_id" gorm:"column:course_id;not null"`
	LearnerID     int64          `db:"learner_id" gorm:"column:learner_id;not null"`
	PaymentStatus string         `db:"payment_status" gorm:"column:payment_status;not null"`
	TransactionID sql.NullString `db:"transaction_id" gorm:"column:transaction_id"`
	PaidAt        sql.NullTime   `db:"paid_at" gorm:"column:paid_at"`
	CreatedAt     time.Time      `db:"created_at" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time      `db:"updated_at" gorm:"column:updated_at;autoUpdateTime"`
}

func (Enrollment) TableName() string {
	return "enrollments"
}

// EnrollmentRow is the joined read model for checkout lookups.
type EnrollmentRow struct {
	ID            int64          `db:"id"`
	PaymentStatus string         `db:"payment_status"`
	TransactionID sql.NullString `db:"transaction_id"`
	PaidAt        sql.NullTime   `db:"paid_at"`
	CourseID      int64          `db:"course_id"`
	CourseTitle   string         `db:"course_title"`
	CourseFee     int64          `db:"course_fee"`
	LearnerID     int64          `db:"learner_id"`
	LearnerName   string         `db:"learner_name"`
	LearnerEmail  string         `db:"learner_email"`
}
