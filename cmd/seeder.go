package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/frahmantamala/course-checkout/internal"
	enrollmentDatamodel "github.com/frahmantamala/course-checkout/internal/core/datamodel/enrollment"
	paymentDatamodel "github.com/frahmantamala/course-checkout/internal/core/datamodel/payment"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with sample data",
	Long:  `Seed users, courses and enrollments for development and testing purposes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		db, err := initDB(cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to init db: %w", err)
		}
		defer db.Close()

		gdb, err := initGorm(db)
		if err != nil {
			return fmt.Errorf("failed to init gorm: %w", err)
		}

		return seed(gdb, clearData, cmd.Printf)
	},
}

var seedUsers = []enrollmentDatamodel.Learner{
	{ID: 7, Name: "Asha Rao", Email: "asha@example.com", Role: string(internal.RoleLearner)},
	{ID: 8, Name: "Vikram Nair", Email: "vikram@example.com", Role: string(internal.RoleLearner)},
	{ID: 20, Name: "Meera Iyer", Email: "meera@example.com", Role: string(internal.RoleEducator)},
	{ID: 30, Name: "Rohan Das", Email: "rohan@example.com", Role: string(internal.RoleCoordinator)},
	{ID: 1, Name: "Platform Admin", Email: "admin@example.com", Role: string(internal.RoleAdmin)},
}

var seedCourses = []enrollmentDatamodel.Course{
	{ID: 3, Title: "Distributed Systems", Fee: 1500},
	{ID: 4, Title: "Go for Backend Engineers", Fee: 2499},
	{ID: 5, Title: "Intro to Version Control", Fee: 0},
}

var seedEnrollments = []enrollmentDatamodel.Enrollment{
	{ID: 11, CourseID: 3, LearnerID: 7, PaymentStatus: enrollmentDatamodel.PaymentStatusPending},
	{ID: 12, CourseID: 5, LearnerID: 7, PaymentStatus: enrollmentDatamodel.PaymentStatusPending},
	{ID: 13, CourseID: 4, LearnerID: 8, PaymentStatus: enrollmentDatamodel.PaymentStatusPending},
}

// seed is idempotent: rows with an existing primary key are left alone.
func seed(db *gorm.DB, clear bool, printf func(string, ...interface{})) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if clear {
			for _, model := range []interface{}{
				&paymentDatamodel.Transaction{},
				&enrollmentDatamodel.Enrollment{},
				&enrollmentDatamodel.Course{},
				&enrollmentDatamodel.Learner{},
			} {
				if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(model).Error; err != nil {
					return fmt.Errorf("failed to clear %T: %w", model, err)
				}
			}
			printf("Cleared existing data\n")
		}

		users := append([]enrollmentDatamodel.Learner(nil), seedUsers...)
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&users).Error; err != nil {
			return fmt.Errorf("failed to seed users: %w", err)
		}
		printf("Seeded %d users\n", len(users))

		courses := append([]enrollmentDatamodel.Course(nil), seedCourses...)
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&courses).Error; err != nil {
			return fmt.Errorf("failed to seed courses: %w", err)
		}
		printf("Seeded %d courses\n", len(courses))

		enrollments := append([]enrollmentDatamodel.Enrollment(nil), seedEnrollments...)
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&enrollments).Error; err != nil {
			return fmt.Errorf("failed to seed enrollments: %w", err)
		}
		printf("Seeded %d enrollments\n", len(enrollments))
		return nil
	})
}
