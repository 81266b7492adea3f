package payment

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/frahmantamala/course-checkout/internal"
	paymentmodel "github.com/frahmantamala/course-checkout/internal/core/datamodel/payment"
	gatewaytypes "github.com/frahmantamala/course-checkout/internal/core/datamodel/paymentgateway"
	"github.com/frahmantamala/course-checkout/internal/core/events"
	"github.com/frahmantamala/course-checkout/internal/enrollment"
	"github.com/frahmantamala/course-checkout/internal/paymentgateway"
)

type EnrollmentReader interface {
	Lookup(ctx context.Context, id int64) (*enrollment.Enrollment, error)
}

type SessionInitializer interface {
	InitializePayment(ctx context.Context, amount int64, currency string) (*gatewaytypes.Session, error)
}

type JobRunner interface {
	Submit(job paymentgateway.Job) error
}

type TransactionHistory interface {
	ListByEnrollment(ctx context.Context, enrollmentID int64) ([]*paymentmodel.Transaction, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

// ServiceAPI is what the HTTP layer needs.
type ServiceAPI interface {
	Open(ctx context.Context, p internal.Principal, enrollmentID int64) (Snapshot, error)
	Get(ctx context.Context, p internal.Principal, sessionID string) (Snapshot, error)
	UpdateInput(ctx context.Context, p internal.Principal, sessionID string, in PaymentMethodInput) (MethodValidation, Snapshot, error)
	Pay(ctx context.Context, p internal.Principal, sessionID string, in *PaymentMethodInput) (Snapshot, error)
	Retry(ctx context.Context, p internal.Principal, sessionID string) (Snapshot, error)
	Cancel(ctx context.Context, p internal.Principal, sessionID string) (Snapshot, error)
	History(ctx context.Context, p internal.Principal, enrollmentID int64) ([]*paymentmodel.Transaction, error)
}

type ServiceDeps struct {
	Enrollments EnrollmentReader
	Initializer SessionInitializer
	Gateway     Gateway
	Committer   Committer
	History     TransactionHistory
	Runner      JobRunner
	Locker      Locker
	Registry    *Registry
	Publisher   EventPublisher
	Metrics     *Metrics
	Config      internal.PaymentConfig
	Logger      *slog.Logger
}

type Service struct {
	deps      ServiceDeps
	formatter *AmountFormatter

	tokensMu sync.Mutex
	tokens   map[string]string
}

func NewService(deps ServiceDeps) *Service {
	if deps.Locker == nil {
		deps.Locker = NewMemoryLocker()
	}
	if deps.Registry == nil {
		deps.Registry = NewRegistry(deps.Config.SessionTTL, deps.Logger)
	}
	if deps.Metrics == nil {
		deps.Metrics = NewMetrics(nil)
	}
	return &Service{
		deps:      deps,
		formatter: NewAmountFormatter(deps.Config.Locale, deps.Config.CurrencySymbol),
		tokens:    make(map[string]string),
	}
}

func (s *Service) Registry() *Registry {
	return s.deps.Registry
}

// Open starts a checkout for the enrollment, or returns the one already open.
func (s *Service) Open(ctx context.Context, p internal.Principal, enrollmentID int64) (Snapshot, error) {
	e, err := s.deps.Enrollments.Lookup(ctx, enrollmentID)
	if err != nil {
		return Snapshot{}, err
	}
	if !p.CanActFor(e.Learner.ID) {
		s.deps.Logger.Warn("checkout denied", "enrollment_id", enrollmentID, "user_id", p.UserID, "role", p.Role)
		return Snapshot{}, internal.ErrUnauthorizedAccess
	}
	if e.IsPaid() {
		return Snapshot{}, internal.ErrAlreadyPaid
	}

	if existing, ok := s.deps.Registry.FindOpen(enrollmentID); ok {
		s.deps.Logger.Debug("reusing open checkout", "session_id", existing.SessionID(), "enrollment_id", enrollmentID)
		return existing.Snapshot(), nil
	}

	session, err := s.deps.Initializer.InitializePayment(ctx, e.Course.Fee, s.deps.Config.Currency)
	if err != nil {
		s.deps.Logger.Error("payment session init failed", "enrollment_id", enrollmentID, "error", err)
		return Snapshot{}, internal.ErrSessionInitFailed.WithCause(err)
	}

	order := Order{
		EnrollmentID: e.ID,
		LearnerID:    e.Learner.ID,
		LearnerName:  e.Learner.Name,
		LearnerEmail: e.Learner.Email,
		CourseTitle:  e.Course.Title,
	}
	c := NewCheckout(*session, order, CheckoutDeps{
		Gateway:   s.deps.Gateway,
		Committer: s.deps.Committer,
		Timeout:   s.deps.Config.Timeout,
		Formatter: s.formatter,
		Observer:  s,
		Logger:    s.deps.Logger,
	})
	s.deps.Registry.Put(c)
	s.deps.Metrics.SessionsOpened.Inc()

	s.publish(ctx, events.NewSessionInitializedEvent(session.ID, e.ID, session.Amount, session.Currency))
	s.deps.Logger.Info("checkout opened",
		"session_id", session.ID,
		"enrollment_id", e.ID,
		"amount", session.Amount,
		"free", session.Amount == 0)

	return c.Snapshot(), nil
}

func (s *Service) checkout(p internal.Principal, sessionID string) (*Checkout, error) {
	c, ok := s.deps.Registry.Get(sessionID)
	if !ok {
		return nil, internal.ErrSessionNotFound
	}
	if !p.CanActFor(c.Order().LearnerID) {
		return nil, internal.ErrUnauthorizedAccess
	}
	return c, nil
}

func (s *Service) Get(_ context.Context, p internal.Principal, sessionID string) (Snapshot, error) {
	c, err := s.checkout(p, sessionID)
	if err != nil {
		return Snapshot{}, err
	}
	return c.Snapshot(), nil
}

func (s *Service) UpdateInput(_ context.Context, p internal.Principal, sessionID string, in PaymentMethodInput) (MethodValidation, Snapshot, error) {
	c, err := s.checkout(p, sessionID)
	if err != nil {
		return MethodValidation{}, Snapshot{}, err
	}
	v, err := c.UpdateInput(in)
	return v, c.Snapshot(), err
}

// Pay gates the input and hands the staged run to the worker pool.
// The returned snapshot is processing, or already settled for a free item.
func (s *Service) Pay(ctx context.Context, p internal.Principal, sessionID string, in *PaymentMethodInput) (Snapshot, error) {
	c, err := s.checkout(p, sessionID)
	if err != nil {
		return Snapshot{}, err
	}

	key := LockKey(c.Order().EnrollmentID)
	ttl := s.deps.Config.LockTTL
	if ttl < s.deps.Config.Timeout {
		ttl = s.deps.Config.Timeout + 5*time.Second
	}
	token, ok, err := s.deps.Locker.Acquire(ctx, key, ttl)
	if err != nil {
		return c.Snapshot(), internal.NewInternalError("could not acquire checkout lock", err)
	}
	if !ok {
		return c.Snapshot(), internal.ErrPaymentInProgress
	}
	s.setToken(sessionID, token)

	attempt, err := c.Prepare(ctx, in)
	if err != nil {
		s.release(ctx, c)
		return c.Snapshot(), err
	}
	if attempt == nil {
		return c.Snapshot(), nil
	}

	s.deps.Metrics.InFlight.Inc()
	runCtx := context.WithoutCancel(ctx)
	if err := s.deps.Runner.Submit(paymentgateway.Job{
		SessionID: sessionID,
		Run:       func() { attempt.Run(runCtx) },
		Abort:     func(err error) { attempt.Abort(internal.ErrGatewayError.WithCause(err)) },
	}); err != nil {
		attempt.Abort(internal.ErrGatewayError.WithCause(err))
	}
	return c.Snapshot(), nil
}

func (s *Service) Retry(_ context.Context, p internal.Principal, sessionID string) (Snapshot, error) {
	c, err := s.checkout(p, sessionID)
	if err != nil {
		return Snapshot{}, err
	}
	return c.Retry()
}

// Cancel exits the flow. A charge awaiting persistence is committed in the background.
func (s *Service) Cancel(ctx context.Context, p internal.Principal, sessionID string) (Snapshot, error) {
	c, err := s.checkout(p, sessionID)
	if err != nil {
		return Snapshot{}, err
	}
	snap, err := c.Cancel()
	if err != nil {
		return snap, err
	}
	s.flushPending(ctx, c)
	return snap, nil
}

// History lists the recorded attempts for an enrollment, newest first.
func (s *Service) History(ctx context.Context, p internal.Principal, enrollmentID int64) ([]*paymentmodel.Transaction, error) {
	e, err := s.deps.Enrollments.Lookup(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}
	if !p.CanActFor(e.Learner.ID) {
		return nil, internal.ErrUnauthorizedAccess
	}
	if s.deps.History == nil {
		return []*paymentmodel.Transaction{}, nil
	}
	txns, err := s.deps.History.ListByEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, internal.NewInternalError("failed to load payment history", err)
	}
	if txns == nil {
		txns = []*paymentmodel.Transaction{}
	}
	return txns, nil
}

// flushPending makes a last attempt to persist a charge the user walked away from.
func (s *Service) flushPending(ctx context.Context, c *Checkout) {
	req, ok := c.PendingCommit()
	if !ok {
		return
	}
	runCtx := context.WithoutCancel(ctx)
	err := s.deps.Runner.Submit(paymentgateway.Job{
		SessionID: c.SessionID(),
		Run: func() {
			ctx, cancel := internal.WithTimeout(runCtx, s.deps.Config.Timeout)
			defer cancel()
			if err := s.deps.Committer.Commit(ctx, req); err != nil {
				s.deps.Logger.Error("pending commit still failing",
					"session_id", req.SessionID,
					"transaction_id", req.TransactionID,
					"error", err)
			}
		},
		Abort: func(err error) {
			s.deps.Logger.Error("pending commit dropped on shutdown",
				"session_id", req.SessionID,
				"transaction_id", req.TransactionID,
				"error", err)
		},
	})
	if err != nil {
		s.deps.Logger.Error("could not queue pending commit",
			"session_id", req.SessionID,
			"transaction_id", req.TransactionID,
			"error", err)
	}
}

// OnEvict is passed to Registry.Run.
func (s *Service) OnEvict(c *Checkout) {
	s.flushPending(context.Background(), c)
}

func (s *Service) setToken(sessionID, token string) {
	s.tokensMu.Lock()
	defer s.tokensMu.Unlock()
	s.tokens[sessionID] = token
}

func (s *Service) release(ctx context.Context, c *Checkout) {
	s.tokensMu.Lock()
	token, ok := s.tokens[c.SessionID()]
	delete(s.tokens, c.SessionID())
	s.tokensMu.Unlock()
	if !ok {
		return
	}
	if err := s.deps.Locker.Release(context.WithoutCancel(ctx), LockKey(c.Order().EnrollmentID), token); err != nil {
		s.deps.Logger.Warn("failed to release checkout lock", "session_id", c.SessionID(), "error", err)
	}
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	if s.deps.Publisher == nil {
		return
	}
	if err := s.deps.Publisher.Publish(ctx, event); err != nil {
		s.deps.Logger.Error("failed to publish event", "event_type", event.EventType(), "error", err)
	}
}

func (s *Service) StageFinished(_ string, step StepName, elapsed time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	s.deps.Metrics.StageDuration.WithLabelValues(string(step), result).Observe(elapsed.Seconds())
}

func (s *Service) Settled(ctx context.Context, order Order, snap Snapshot) {
	if c, ok := s.deps.Registry.Get(snap.SessionID); ok {
		s.release(ctx, c)
	}
	if !snap.Free {
		s.deps.Metrics.InFlight.Dec()
	}

	out := snap.Outcome
	switch {
	case out != nil && out.Transaction != nil:
		s.deps.Metrics.Outcomes.WithLabelValues(out.Transaction.PaymentMethod, "success", "").Inc()
		s.publish(ctx, events.NewPaymentCompletedEvent(
			snap.SessionID, order.EnrollmentID, out.Transaction.TransactionID,
			snap.Amount, snap.Currency, out.Transaction.PaymentMethod,
			order.CourseTitle, order.LearnerName, order.LearnerEmail))
	case out != nil && out.Error != nil:
		method := string(MethodFree)
		if snap.Input != nil {
			method = string(snap.Input.Kind)
		}
		s.deps.Metrics.Outcomes.WithLabelValues(method, "failure", string(out.Error.Code)).Inc()
		s.publish(ctx, events.NewPaymentFailedEvent(
			snap.SessionID, order.EnrollmentID, snap.Amount,
			string(out.Error.Code), out.Error.Message, snap.Attempts))
	}
}
