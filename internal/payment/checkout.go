package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/frahmantamala/course-checkout/internal"
	gatewaytypes "github.com/frahmantamala/course-checkout/internal/core/datamodel/paymentgateway"
)

type State string

const (
	StateMethod     State = "method"
	StateDetails    State = "details"
	StateProcessing State = "processing"
	StateSuccess    State = "success"
	StateFailure    State = "failure"
	StateCancelled  State = "cancelled"
)

const tracerName = "github.com/frahmantamala/course-checkout/internal/payment"

// Gateway is the staged processor a checkout drives.
type Gateway interface {
	ValidatePayment(ctx context.Context) error
	ProcessPayment(ctx context.Context, req gatewaytypes.ProcessRequest) (*gatewaytypes.TransactionRecord, error)
	VerifyPayment(ctx context.Context, transactionID string) (*gatewaytypes.Verification, error)
}

type Committer interface {
	Commit(ctx context.Context, req CommitRequest) error
	RecordFailure(ctx context.Context, rec FailureRecord)
}

// Observer is told about stage timings and settled attempts.
type Observer interface {
	StageFinished(sessionID string, step StepName, elapsed time.Duration, err error)
	Settled(ctx context.Context, order Order, snap Snapshot)
}

type nopObserver struct{}

func (nopObserver) StageFinished(string, StepName, time.Duration, error) {}
func (nopObserver) Settled(context.Context, Order, Snapshot)               {}

// Order is the enrollment being paid for.
type Order struct {
	EnrollmentID int64  `json:"enrollment_id"`
	LearnerID    int64  `json:"learner_id"`
	LearnerName  string `json:"learner_name"`
	LearnerEmail string `json:"-"`
	CourseTitle  string `json:"course_title"`
}

type Outcome struct {
	Transaction *gatewaytypes.TransactionRecord `json:"transaction,omitempty"`
	Error       *internal.AppError              `json:"error,omitempty"`
}

// charge is a gateway charge that is not persisted yet. The method summary is
// captured at charge time so a resumed commit records what was actually charged.
type charge struct {
	record   *gatewaytypes.TransactionRecord
	kind     MethodKind
	method   map[string]string
	verified bool
}

type Snapshot struct {
	SessionID       string              `json:"session_id"`
	EnrollmentID    int64               `json:"enrollment_id"`
	CourseTitle     string              `json:"course_title"`
	Amount          int64               `json:"amount"`
	Currency        string              `json:"currency"`
	FormattedAmount string              `json:"formatted_amount"`
	Free            bool                `json:"free"`
	State           State               `json:"state"`
	Steps           []ProcessingStep    `json:"steps"`
	ActiveStep      StepName            `json:"active_step,omitempty"`
	Input           *PaymentMethodInput `json:"input,omitempty"`
	Validation      *MethodValidation   `json:"validation,omitempty"`
	CanPay          bool                `json:"can_pay"`
	Outcome         *Outcome            `json:"outcome,omitempty"`
	Attempts        int                 `json:"attempts"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

type CheckoutDeps struct {
	Gateway   Gateway
	Committer Committer
	Timeout   time.Duration
	Formatter *AmountFormatter
	Observer  Observer
	Now       func() time.Time
	Logger    *slog.Logger
}

// Checkout is the per-session state machine:
// method -> details -> processing -> success | failure, with retry back to method.
type Checkout struct {
	deps   CheckoutDeps
	tracer trace.Tracer

	mu        sync.Mutex
	session   gatewaytypes.Session
	order     Order
	state     State
	steps     *Steps
	input     *PaymentMethodInput
	outcome   *Outcome
	pending   *charge
	attempts  int
	updatedAt time.Time
	done      chan struct{}
}

func NewCheckout(session gatewaytypes.Session, order Order, deps CheckoutDeps) *Checkout {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Formatter == nil {
		deps.Formatter = defaultFormatter
	}
	if deps.Observer == nil {
		deps.Observer = nopObserver{}
	}
	if deps.Timeout <= 0 {
		deps.Timeout = 30 * time.Second
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	deps.Logger = deps.Logger.With("session_id", session.ID, "enrollment_id", order.EnrollmentID)

	done := make(chan struct{})
	close(done)

	return &Checkout{
		deps:      deps,
		tracer:    otel.Tracer(tracerName),
		session:   session,
		order:     order,
		state:     StateMethod,
		steps:     NewSteps(),
		updatedAt: deps.Now(),
		done:      done,
	}
}

func (c *Checkout) SessionID() string { return c.session.ID }

func (c *Checkout) Order() Order { return c.order }

func (c *Checkout) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Checkout) snapshotLocked() Snapshot {
	snap := Snapshot{
		SessionID:       c.session.ID,
		EnrollmentID:    c.order.EnrollmentID,
		CourseTitle:     c.order.CourseTitle,
		Amount:          c.session.Amount,
		Currency:        c.session.Currency,
		FormattedAmount: c.deps.Formatter.Format(c.session.Amount),
		Free:            c.session.Amount == 0,
		State:           c.state,
		Steps:           c.steps.Snapshot(),
		CanPay:          c.canPayLocked(),
		Outcome:         c.outcome,
		Attempts:        c.attempts,
		UpdatedAt:       c.updatedAt,
	}
	if step, ok := c.steps.Active(); ok {
		snap.ActiveStep = step
	}
	if c.input != nil {
		masked := c.input.Masked()
		v := c.input.Validate(c.deps.Now())
		snap.Input = &masked
		snap.Validation = &v
	}
	return snap
}

func (c *Checkout) canPayLocked() bool {
	if c.state != StateMethod && c.state != StateDetails {
		return false
	}
	if c.session.Amount == 0 || c.pending != nil {
		return true
	}
	return c.input != nil && c.input.Validate(c.deps.Now()).Valid
}

// IdleSince reports the last change and whether the checkout may be evicted.
func (c *Checkout) IdleSince() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.updatedAt, c.state != StateProcessing
}

func (c *Checkout) touchLocked() {
	c.updatedAt = c.deps.Now()
}

func (c *Checkout) guardLocked() error {
	switch c.state {
	case StateMethod, StateDetails:
		return nil
	case StateProcessing:
		return internal.ErrPaymentInProgress
	default:
		return internal.ErrInvalidTransition.WithDetails(map[string]string{"state": string(c.state)})
	}
}

// UpdateInput records method details and returns their inline validation. No gateway call is made.
func (c *Checkout) UpdateInput(in PaymentMethodInput) (MethodValidation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.guardLocked(); err != nil {
		return MethodValidation{}, err
	}
	c.input = &in
	c.state = StateDetails
	c.touchLocked()
	return in.Validate(c.deps.Now()), nil
}

// Attempt is one staged run prepared by Prepare.
type Attempt struct {
	c      *Checkout
	method MethodKind
	resume *charge
}

// Prepare gates the Pay action and moves the checkout to processing.
// It returns nil when the checkout settled synchronously (free item).
func (c *Checkout) Prepare(ctx context.Context, in *PaymentMethodInput) (*Attempt, error) {
	c.mu.Lock()

	if err := c.guardLocked(); err != nil {
		c.mu.Unlock()
		return nil, err
	}

	if c.session.Amount == 0 {
		if in != nil {
			c.input = in
		}
		return nil, c.payFreeLocked(ctx)
	}

	if c.pending != nil {
		return c.resumeLocked(in)
	}

	if in != nil {
		c.input = in
	}
	if c.input == nil {
		c.mu.Unlock()
		return nil, internal.NewFieldErrors([]internal.ValidationError{{
			Field: "method", Message: "Select a payment method", Code: string(internal.ErrCodeUnsupportedMethod),
		}})
	}
	if errs := c.input.SubmissionErrors(c.deps.Now()); len(errs) > 0 {
		c.mu.Unlock()
		return nil, internal.NewFieldErrors(errs)
	}

	return c.startLocked(&Attempt{c: c, method: c.input.Kind}), nil
}

// resumeLocked finishes a charge the gateway already took. New details are not
// charged, and details for a different method are refused. It releases c.mu.
func (c *Checkout) resumeLocked(in *PaymentMethodInput) (*Attempt, error) {
	ch := c.pending
	if in != nil && in.Kind != ch.kind {
		c.mu.Unlock()
		return nil, internal.NewFieldErrors([]internal.ValidationError{{
			Field:   "method",
			Message: fmt.Sprintf("A %s payment was already charged for this checkout; pay again to complete it", ch.kind),
			Code:    string(internal.ErrCodeValidationFailed),
		}})
	}

	if ch.verified {
		c.steps.SkipTo(StepComplete)
	} else {
		c.steps.SkipTo(StepVerify)
	}
	return c.startLocked(&Attempt{c: c, method: ch.kind, resume: ch}), nil
}

// startLocked moves the checkout to processing. It releases c.mu.
func (c *Checkout) startLocked(attempt *Attempt) *Attempt {
	c.state = StateProcessing
	c.outcome = nil
	c.done = make(chan struct{})
	c.touchLocked()
	c.mu.Unlock()

	c.deps.Logger.Info("checkout processing started",
		"method", attempt.method,
		"amount", c.session.Amount,
		"resume", attempt.resume != nil)
	return attempt
}

// payFreeLocked settles a zero-amount checkout without running the gateway stages.
// It releases c.mu.
func (c *Checkout) payFreeLocked(ctx context.Context) error {
	ch := c.pending
	if ch == nil {
		now := c.deps.Now().UTC()
		ch = &charge{
			record: &gatewaytypes.TransactionRecord{
				TransactionID: fmt.Sprintf("FREE%d%03d", now.UnixMilli(), c.order.EnrollmentID%1000),
				Status:        gatewaytypes.TransactionStatusSuccess,
				Currency:      c.session.Currency,
				PaymentMethod: string(MethodFree),
				Timestamp:     now,
			},
			kind:     MethodFree,
			method:   map[string]string{"method": string(MethodFree)},
			verified: true,
		}
		c.pending = ch
	}
	c.state = StateProcessing
	c.done = make(chan struct{})
	c.mu.Unlock()

	err := c.deps.Committer.Commit(ctx, c.commitRequest(ch))
	c.settle(ctx, ch.record, err, MethodFree)
	return nil
}

// Run executes the stages under the checkout timeout and settles the outcome.
func (a *Attempt) Run(ctx context.Context) {
	c := a.c
	ctx, cancel := context.WithTimeout(ctx, c.deps.Timeout)
	defer cancel()

	ctx, span := c.tracer.Start(ctx, "checkout.pay", trace.WithAttributes(
		attribute.String("session_id", c.session.ID),
		attribute.Int64("enrollment_id", c.order.EnrollmentID),
		attribute.String("method", string(a.method)),
	))
	defer span.End()

	record, err := a.stages(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	c.settle(ctx, record, err, a.method)
}

// Abort settles a prepared attempt that never ran.
func (a *Attempt) Abort(cause error) {
	a.c.settle(context.Background(), nil, cause, a.method)
}

func (a *Attempt) stages(ctx context.Context) (*gatewaytypes.TransactionRecord, error) {
	c := a.c
	ch := a.resume

	if ch == nil {
		if err := c.stage(ctx, StepValidate, func(ctx context.Context) error {
			return c.deps.Gateway.ValidatePayment(ctx)
		}); err != nil {
			return nil, err
		}

		var record *gatewaytypes.TransactionRecord
		if err := c.stage(ctx, StepProcess, func(ctx context.Context) error {
			rec, err := c.deps.Gateway.ProcessPayment(ctx, gatewaytypes.ProcessRequest{
				SessionID:     c.session.ID,
				Amount:        c.session.Amount,
				Currency:      c.session.Currency,
				PaymentMethod: string(a.method),
			})
			record = rec
			return err
		}); err != nil {
			return nil, err
		}

		// the gateway has taken the money; hold it until the commit succeeds
		ch = c.hold(record, a.method)
	}

	if !ch.verified {
		if err := c.stage(ctx, StepVerify, func(ctx context.Context) error {
			v, err := c.deps.Gateway.VerifyPayment(ctx, ch.record.TransactionID)
			if err != nil {
				return err
			}
			if !v.Verified {
				return fmt.Errorf("transaction %s not verified", ch.record.TransactionID)
			}
			return nil
		}); err != nil {
			return nil, err
		}
		c.mu.Lock()
		ch.verified = true
		c.mu.Unlock()
	}

	if err := c.stage(ctx, StepComplete, func(ctx context.Context) error {
		return c.deps.Committer.Commit(ctx, c.commitRequest(ch))
	}); err != nil {
		return ch.record, err
	}
	return ch.record, nil
}

func (c *Checkout) hold(record *gatewaytypes.TransactionRecord, kind MethodKind) *charge {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := &charge{record: record, kind: kind, method: map[string]string{"method": string(kind)}}
	if c.input != nil {
		ch.method = c.input.Summary()
	}
	c.pending = ch
	return ch
}

func (c *Checkout) stage(ctx context.Context, step StepName, fn func(context.Context) error) error {
	c.mu.Lock()
	err := c.steps.Activate(step)
	c.touchLocked()
	c.mu.Unlock()
	if err != nil {
		return err
	}

	ctx, span := c.tracer.Start(ctx, "checkout.stage."+string(step))
	started := time.Now()
	err = fn(ctx)
	elapsed := time.Since(started)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
	c.deps.Observer.StageFinished(c.session.ID, step, elapsed, err)

	if err != nil {
		c.deps.Logger.Warn("checkout stage failed", "step", step, "error", err)
		return err
	}

	c.mu.Lock()
	err = c.steps.Complete(step)
	c.touchLocked()
	c.mu.Unlock()
	return err
}

func (c *Checkout) commitRequest(ch *charge) CommitRequest {
	record := ch.record
	raw, _ := json.Marshal(map[string]interface{}{
		"transaction": record,
		"method":      ch.method,
	})
	return CommitRequest{
		EnrollmentID:    c.order.EnrollmentID,
		SessionID:       c.session.ID,
		TransactionID:   record.TransactionID,
		Amount:          c.session.Amount,
		Currency:        c.session.Currency,
		PaymentMethod:   MethodKind(record.PaymentMethod),
		GatewayResponse: raw,
		ProcessedAt:     record.Timestamp,
	}
}

func (c *Checkout) settle(ctx context.Context, record *gatewaytypes.TransactionRecord, err error, method MethodKind) {
	var appErr *internal.AppError
	declined := false
	if err != nil {
		appErr, declined = classify(err)
	}

	c.mu.Lock()
	c.attempts++
	if appErr == nil {
		c.state = StateSuccess
		c.outcome = &Outcome{Transaction: record}
		c.pending = nil
	} else {
		c.state = StateFailure
		c.outcome = &Outcome{Error: appErr}
	}
	c.touchLocked()
	snap := c.snapshotLocked()
	close(c.done)
	c.mu.Unlock()

	if appErr != nil {
		c.deps.Logger.Info("checkout failed", "code", appErr.Code, "error", err)
		c.deps.Committer.RecordFailure(context.WithoutCancel(ctx), FailureRecord{
			EnrollmentID:  c.order.EnrollmentID,
			SessionID:     c.session.ID,
			Amount:        c.session.Amount,
			Currency:      c.session.Currency,
			PaymentMethod: method,
			Code:          appErr.Code,
			Reason:        appErr.Message,
			Declined:      declined,
		})
	} else {
		c.deps.Logger.Info("checkout succeeded", "transaction_id", record.TransactionID)
	}

	c.deps.Observer.Settled(context.WithoutCancel(ctx), c.order, snap)
}

// classify maps a staged error to the user-facing failure. The bool reports a gateway decline.
func classify(err error) (*internal.AppError, bool) {
	var gwErr *gatewaytypes.GatewayError
	if errors.As(err, &gwErr) && gwErr.Code == gatewaytypes.CodePaymentDeclined {
		e := internal.ErrPaymentDeclined.WithCause(err)
		if gwErr.Message != "" {
			e.Message = gwErr.Message
		}
		return e, true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		if errors.Is(err, internal.ErrCommitFailed) {
			return internal.ErrCommitFailed.WithCause(err), false
		}
		return internal.ErrGatewayTimeout.WithCause(err), false
	}
	if appErr, ok := internal.IsAppError(err); ok {
		return appErr, false
	}
	return internal.ErrGatewayError.WithCause(err), false
}

// Wait blocks until the current attempt settles and returns the snapshot.
func (c *Checkout) Wait(ctx context.Context) (Snapshot, error) {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()

	select {
	case <-done:
		return c.Snapshot(), nil
	case <-ctx.Done():
		return c.Snapshot(), ctx.Err()
	}
}

// Pay prepares and runs an attempt synchronously.
func (c *Checkout) Pay(ctx context.Context, in *PaymentMethodInput) (Snapshot, error) {
	attempt, err := c.Prepare(ctx, in)
	if err != nil {
		return c.Snapshot(), err
	}
	if attempt != nil {
		attempt.Run(ctx)
	}
	return c.Snapshot(), nil
}

// Retry returns a failed checkout to method selection with cleared input.
func (c *Checkout) Retry() (Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateFailure {
		if c.state == StateProcessing {
			return c.snapshotLocked(), internal.ErrPaymentInProgress
		}
		return c.snapshotLocked(), internal.ErrInvalidTransition.WithDetails(map[string]string{"state": string(c.state)})
	}
	c.state = StateMethod
	c.steps.Reset()
	c.input = nil
	c.outcome = nil
	c.touchLocked()
	return c.snapshotLocked(), nil
}

// PendingCommit returns a charge the gateway took that is not yet persisted.
func (c *Checkout) PendingCommit() (CommitRequest, bool) {
	c.mu.Lock()
	ch := c.pending
	c.mu.Unlock()
	if ch == nil {
		return CommitRequest{}, false
	}
	return c.commitRequest(ch), true
}

// Cancel exits the flow. It is refused while a charge may be in flight.
func (c *Checkout) Cancel() (Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateMethod, StateDetails, StateFailure:
		c.state = StateCancelled
		c.input = nil
		c.touchLocked()
		return c.snapshotLocked(), nil
	case StateProcessing:
		return c.snapshotLocked(), internal.ErrCancelNotAllowed
	default:
		return c.snapshotLocked(), internal.ErrInvalidTransition.WithDetails(map[string]string{"state": string(c.state)})
	}
}
