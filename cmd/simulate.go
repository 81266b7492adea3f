package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/frahmantamala/course-checkout/internal"
	enrollmentDatamodel "github.com/frahmantamala/course-checkout/internal/core/datamodel/enrollment"
	paymentDatamodel "github.com/frahmantamala/course-checkout/internal/core/datamodel/payment"
	"github.com/frahmantamala/course-checkout/internal/core/events"
	"github.com/frahmantamala/course-checkout/internal/enrollment"
	"github.com/frahmantamala/course-checkout/internal/notification"
	"github.com/frahmantamala/course-checkout/internal/payment"
	"github.com/frahmantamala/course-checkout/internal/paymentgateway"
	"github.com/frahmantamala/course-checkout/pkg/logger"
)

type simulateOptions struct {
	amount      int64
	course      string
	method      string
	cardNumber  string
	expiry      string
	cvv         string
	cardholder  string
	upiApp      string
	upiID       string
	successRate float64
	seed        uint64
	fast        bool
	verbose     bool
}

var simOpts = simulateOptions{}

var checkoutCmd = &cobra.Command{
	Use:   "checkout",
	Short: "Checkout tools",
}

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run one checkout through the simulated gateway",
	Long:  `Open a checkout for an in-memory enrollment, pay with the given method and print each processing step.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSimulation(cmd.Context(), simOpts, cmd.OutOrStdout())
	},
}

func init() {
	f := simulateCmd.Flags()
	f.Int64Var(&simOpts.amount, "amount", 1500, "course fee in whole currency units; 0 enrolls for free")
	f.StringVar(&simOpts.course, "course", "Distributed Systems", "course title")
	f.StringVar(&simOpts.method, "method", "card", "card or upi")
	f.StringVar(&simOpts.cardNumber, "card-number", "4111 1111 1111 1111", "card number")
	f.StringVar(&simOpts.expiry, "expiry", "", "card expiry MM/YY; defaults to next year")
	f.StringVar(&simOpts.cvv, "cvv", "123", "card security code")
	f.StringVar(&simOpts.cardholder, "name", "Asha Rao", "cardholder name")
	f.StringVar(&simOpts.upiApp, "upi-app", "gpay", "UPI app id")
	f.StringVar(&simOpts.upiID, "upi-id", "asha@okaxis", "UPI id")
	f.Float64Var(&simOpts.successRate, "success-rate", 0.9, "probability the gateway approves")
	f.Uint64Var(&simOpts.seed, "seed", 0, "seed for a reproducible outcome; random when 0")
	f.BoolVar(&simOpts.fast, "fast", false, "skip gateway delays")
	f.BoolVar(&simOpts.verbose, "verbose", false, "print service logs")

	checkoutCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(checkoutCmd)
}

func runSimulation(ctx context.Context, opts simulateOptions, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	lg := logger.Discard()
	if opts.verbose {
		logger.InitWithWriter(out, "debug", "text")
		lg = logger.LoggerWrapper()
	}

	cfg := internal.DefaultPaymentConfig()
	cfg.SuccessRate = opts.successRate
	cfg.CommitRetryDelay = 10 * time.Millisecond

	const (
		learnerID    = int64(7)
		enrollmentID = int64(11)
	)
	store := newMemoryStore(&enrollmentDatamodel.EnrollmentRow{
		ID:            enrollmentID,
		PaymentStatus: enrollmentDatamodel.PaymentStatusPending,
		CourseID:      3,
		CourseTitle:   opts.course,
		CourseFee:     opts.amount,
		LearnerID:     learnerID,
		LearnerName:   opts.cardholder,
		LearnerEmail:  "learner@example.com",
	})

	simOptions := []paymentgateway.Option{}
	if opts.fast {
		simOptions = append(simOptions, paymentgateway.WithSleeper(paymentgateway.InstantSleeper{}))
	}
	if opts.seed != 0 {
		simOptions = append(simOptions, paymentgateway.WithRand(paymentgateway.SeededRand(opts.seed)))
	}
	gateway := paymentgateway.NewSimulator(paymentgateway.ConfigFromPayment(cfg), lg, simOptions...)

	pool := paymentgateway.NewPool(paymentgateway.PoolConfig{MaxWorkers: 1, JobQueueSize: 1}, lg)
	defer pool.Shutdown()

	bus := events.NewEventBus(lg)
	formatter := payment.NewAmountFormatter(cfg.Locale, cfg.CurrencySymbol)
	payment.NewEventHandler(notification.NewLogSender(lg), formatter, lg).RegisterEventHandlers(bus)
	for _, t := range []string{events.EventTypeSessionInitialized, events.EventTypePaymentCompleted, events.EventTypePaymentFailed} {
		bus.Subscribe(t, func(_ context.Context, e events.Event) error {
			fmt.Fprintf(out, "  event  %s\n", e.EventType())
			return nil
		})
	}

	enrollments := enrollment.NewService(store, lg)
	svc := payment.NewService(payment.ServiceDeps{
		Enrollments: enrollments,
		Initializer: gateway,
		Gateway:     gateway,
		Committer:   payment.NewReconciler(store, enrollments, cfg.CommitRetries, cfg.CommitRetryDelay, lg),
		History:     store,
		Runner:      pool,
		Publisher:   bus,
		Config:      cfg,
		Logger:      lg,
	})

	learner := internal.Principal{UserID: learnerID, Role: internal.RoleLearner}
	snap, err := svc.Open(ctx, learner, enrollmentID)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "checkout %s for %q: %s\n", snap.SessionID, snap.CourseTitle, snap.FormattedAmount)

	var input *payment.PaymentMethodInput
	if !snap.Free {
		input = simulationInput(opts)
		v, _, err := svc.UpdateInput(ctx, learner, snap.SessionID, *input)
		if err != nil {
			return err
		}
		if !v.Valid {
			for _, e := range v.Errors {
				fmt.Fprintf(out, "  invalid %s: %s\n", e.Field, e.Message)
			}
		}
	}

	snap, err = svc.Pay(ctx, learner, snap.SessionID, input)
	if err != nil {
		return err
	}

	snap, err = followSteps(ctx, svc, learner, snap, out)
	if err != nil {
		return err
	}
	drainCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_ = bus.Drain(drainCtx)

	switch {
	case snap.Outcome != nil && snap.Outcome.Transaction != nil:
		fmt.Fprintf(out, "SUCCESS  transaction %s via %s\n", snap.Outcome.Transaction.TransactionID, snap.Outcome.Transaction.PaymentMethod)
		if e, err := enrollments.Lookup(ctx, enrollmentID); err == nil {
			fmt.Fprintf(out, "enrollment %d is %s\n", e.ID, e.PaymentStatus)
		}
	case snap.Outcome != nil && snap.Outcome.Error != nil:
		fmt.Fprintf(out, "FAILED   %s: %s\n", snap.Outcome.Error.Code, snap.Outcome.Error.Message)
	default:
		fmt.Fprintf(out, "ended in state %s\n", snap.State)
	}
	history, err := svc.History(ctx, learner, enrollmentID)
	if err != nil {
		return err
	}
	for _, t := range history {
		ref := "-"
		if t.TransactionID != nil {
			ref = *t.TransactionID
		} else if t.FailureCode != nil {
			ref = *t.FailureCode
		}
		fmt.Fprintf(out, "  record %-8s %s\n", t.Status, ref)
	}
	fmt.Fprintf(out, "%d transaction record(s) stored\n", len(history))
	return nil
}

func simulationInput(opts simulateOptions) *payment.PaymentMethodInput {
	if strings.EqualFold(opts.method, string(payment.MethodUPI)) {
		return &payment.PaymentMethodInput{
			Kind: payment.MethodUPI,
			UPI:  &payment.UPIInput{App: opts.upiApp, ID: opts.upiID},
		}
	}
	expiry := opts.expiry
	if expiry == "" {
		expiry = time.Now().AddDate(1, 0, 0).Format("01/06")
	}
	return &payment.PaymentMethodInput{
		Kind: payment.MethodKind(strings.ToLower(opts.method)),
		Card: &payment.CardInput{
			Number: opts.cardNumber,
			Expiry: expiry,
			CVV:    opts.cvv,
			Name:   opts.cardholder,
		},
	}
}

// followSteps polls the checkout and prints each step as it changes, until it leaves processing.
func followSteps(ctx context.Context, svc *payment.Service, p internal.Principal, snap payment.Snapshot, out io.Writer) (payment.Snapshot, error) {
	seen := map[payment.StepName]payment.StepStatus{}
	report := func(s payment.Snapshot) {
		for _, step := range s.Steps {
			if seen[step.Name] == step.Status || step.Status == payment.StepPending {
				continue
			}
			seen[step.Name] = step.Status
			fmt.Fprintf(out, "  [%-9s] %s\n", step.Status, step.Label)
		}
	}

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		report(snap)
		if snap.State != payment.StateProcessing {
			return snap, nil
		}
		select {
		case <-ctx.Done():
			return snap, ctx.Err()
		case <-ticker.C:
		}
		var err error
		if snap, err = svc.Get(ctx, p, snap.SessionID); err != nil {
			return snap, err
		}
	}
}

// memoryStore backs the simulation with one enrollment and an in-memory transaction table.
type memoryStore struct {
	mu           sync.Mutex
	enrollment   enrollmentDatamodel.EnrollmentRow
	transactions []*paymentDatamodel.Transaction
}

func newMemoryStore(row *enrollmentDatamodel.EnrollmentRow) *memoryStore {
	return &memoryStore{enrollment: *row}
}

func (m *memoryStore) GetByID(_ context.Context, id int64) (*enrollmentDatamodel.EnrollmentRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id != m.enrollment.ID {
		return nil, sql.ErrNoRows
	}
	row := m.enrollment
	return &row, nil
}

func (m *memoryStore) MarkPaid(_ context.Context, id int64, transactionID string, paidAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id != m.enrollment.ID || m.enrollment.PaymentStatus == enrollmentDatamodel.PaymentStatusCompleted {
		return false, nil
	}
	m.enrollment.PaymentStatus = enrollmentDatamodel.PaymentStatusCompleted
	m.enrollment.TransactionID = sql.NullString{String: transactionID, Valid: true}
	m.enrollment.PaidAt = sql.NullTime{Time: paidAt, Valid: true}
	return true, nil
}

func (m *memoryStore) SaveSuccess(_ context.Context, txn *paymentDatamodel.Transaction) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.transactions {
		if t.TransactionID != nil && *t.TransactionID == *txn.TransactionID {
			return false, nil
		}
	}
	txn.ID = int64(len(m.transactions) + 1)
	m.transactions = append(m.transactions, txn)
	return true, nil
}

func (m *memoryStore) SaveFailure(_ context.Context, txn *paymentDatamodel.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	txn.ID = int64(len(m.transactions) + 1)
	txn.TransactionID = nil
	m.transactions = append(m.transactions, txn)
	return nil
}

func (m *memoryStore) GetByTransactionID(_ context.Context, transactionID string) (*paymentDatamodel.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.transactions {
		if t.TransactionID != nil && *t.TransactionID == transactionID {
			return t, nil
		}
	}
	return nil, internal.NewNotFoundError("transaction not found", internal.ErrCodeTransactionMissing)
}

func (m *memoryStore) ListByEnrollment(_ context.Context, enrollmentID int64) ([]*paymentDatamodel.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*paymentDatamodel.Transaction
	for _, t := range m.transactions {
		if t.EnrollmentID == enrollmentID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

