package payment_test

import (
	"context"
	"errors"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/course-checkout/internal"
	paymentmodel "github.com/frahmantamala/course-checkout/internal/core/datamodel/payment"
	gatewaytypes "github.com/frahmantamala/course-checkout/internal/core/datamodel/paymentgateway"
	"github.com/frahmantamala/course-checkout/internal/core/events"
	"github.com/frahmantamala/course-checkout/internal/enrollment"
	"github.com/frahmantamala/course-checkout/internal/payment"
	"github.com/frahmantamala/course-checkout/internal/paymentgateway"
	"github.com/frahmantamala/course-checkout/pkg/logger"
)

type mockEnrollmentReader struct {
	enrollments map[int64]*enrollment.Enrollment
}

func (m *mockEnrollmentReader) Lookup(_ context.Context, id int64) (*enrollment.Enrollment, error) {
	e, ok := m.enrollments[id]
	if !ok {
		return nil, internal.ErrEnrollmentNotFound
	}
	cp := *e
	return &cp, nil
}

type fakeHistory struct {
	txns map[int64][]*paymentmodel.Transaction
	err  error
}

func (h *fakeHistory) ListByEnrollment(_ context.Context, enrollmentID int64) ([]*paymentmodel.Transaction, error) {
	return h.txns[enrollmentID], h.err
}

type failingInitializer struct{}

func (failingInitializer) InitializePayment(context.Context, int64, string) (*gatewaytypes.Session, error) {
	return nil, errors.New("gateway unavailable")
}

// inlineRunner runs jobs on the caller's goroutine so outcomes are settled when Pay returns.
type inlineRunner struct {
	mu   sync.Mutex
	jobs int
}

func (r *inlineRunner) Submit(job paymentgateway.Job) error {
	r.mu.Lock()
	r.jobs++
	r.mu.Unlock()
	job.Run()
	return nil
}

// closingRunner accepts a job and aborts it, as the pool does for queued jobs on shutdown.
type closingRunner struct{}

func (closingRunner) Submit(job paymentgateway.Job) error {
	job.Abort(paymentgateway.ErrPoolClosed)
	return nil
}

type fullRunner struct{}

func (fullRunner) Submit(paymentgateway.Job) error { return paymentgateway.ErrQueueFull }

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := []string{}
	for _, e := range p.events {
		out = append(out, e.EventType())
	}
	return out
}

func testPaymentConfig() internal.PaymentConfig {
	cfg := internal.DefaultPaymentConfig()
	cfg.Timeout = time.Second
	cfg.LockTTL = time.Minute
	return cfg
}

var _ = Describe("Service", func() {
	var (
		reader    *mockEnrollmentReader
		gateway   *fakeGateway
		committer *fakeCommitter
		runner    payment.JobRunner
		locker    *payment.MemoryLocker
		publisher *recordingPublisher
		history   *fakeHistory
		deps      payment.ServiceDeps
		ctx       context.Context

		learner  = internal.Principal{UserID: 7, Role: internal.RoleLearner}
		other    = internal.Principal{UserID: 8, Role: internal.RoleLearner}
		admin    = internal.Principal{UserID: 1, Role: internal.RoleAdmin}
		educator = internal.Principal{UserID: 7, Role: internal.RoleEducator}
	)

	BeforeEach(func() {
		reader = &mockEnrollmentReader{enrollments: map[int64]*enrollment.Enrollment{
			11: {
				ID:            11,
				Course:        enrollment.Course{ID: 3, Title: "Distributed Systems", Fee: 1500},
				Learner:       enrollment.Learner{ID: 7, Name: "Asha Rao", Email: "asha@example.com"},
				PaymentStatus: enrollment.PaymentPending,
			},
			12: {
				ID:            12,
				Course:        enrollment.Course{ID: 4, Title: "Open Lecture", Fee: 0},
				Learner:       enrollment.Learner{ID: 7, Name: "Asha Rao", Email: "asha@example.com"},
				PaymentStatus: enrollment.PaymentPending,
			},
			13: {
				ID:            13,
				Course:        enrollment.Course{ID: 3, Title: "Distributed Systems", Fee: 1500},
				Learner:       enrollment.Learner{ID: 7, Name: "Asha Rao", Email: "asha@example.com"},
				PaymentStatus: enrollment.PaymentCompleted,
				TransactionID: "TXN1",
			},
		}}
		gateway = &fakeGateway{}
		committer = &fakeCommitter{}
		runner = &inlineRunner{}
		locker = payment.NewMemoryLocker()
		publisher = &recordingPublisher{}
		history = &fakeHistory{txns: map[int64][]*paymentmodel.Transaction{}}
		ctx = context.Background()
	})

	newService := func() *payment.Service {
		cfg := testPaymentConfig()
		sim := paymentgateway.NewSimulator(paymentgateway.ConfigFromPayment(cfg), logger.Discard(),
			paymentgateway.WithSleeper(paymentgateway.InstantSleeper{}))
		deps = payment.ServiceDeps{
			Enrollments: reader,
			Initializer: sim,
			Gateway:     gateway,
			Committer:   committer,
			History:     history,
			Runner:      runner,
			Locker:      locker,
			Publisher:   publisher,
			Config:      cfg,
			Logger:      logger.Discard(),
		}
		return payment.NewService(deps)
	}

	Describe("Open", func() {
		It("opens a checkout for the learner's own enrollment", func() {
			snap, err := newService().Open(ctx, learner, 11)

			Expect(err).ToNot(HaveOccurred())
			Expect(snap.SessionID).To(HavePrefix("session_"))
			Expect(snap.Amount).To(Equal(int64(1500)))
			Expect(snap.Currency).To(Equal("INR"))
			Expect(snap.State).To(Equal(payment.StateMethod))
			Expect(publisher.types()).To(Equal([]string{events.EventTypeSessionInitialized}))
		})

		It("reuses an open checkout for the same enrollment", func() {
			svc := newService()
			first, err := svc.Open(ctx, learner, 11)
			Expect(err).ToNot(HaveOccurred())

			second, err := svc.Open(ctx, learner, 11)

			Expect(err).ToNot(HaveOccurred())
			Expect(second.SessionID).To(Equal(first.SessionID))
			Expect(svc.Registry().Len()).To(Equal(1))
		})

		It("lets an admin act for any learner", func() {
			_, err := newService().Open(ctx, admin, 11)
			Expect(err).ToNot(HaveOccurred())
		})

		It("refuses other learners and non-learner roles", func() {
			_, err := newService().Open(ctx, other, 11)
			Expect(err).To(MatchError(internal.ErrUnauthorizedAccess))

			_, err = newService().Open(ctx, educator, 11)
			Expect(err).To(MatchError(internal.ErrUnauthorizedAccess))
		})

		It("refuses a paid enrollment", func() {
			_, err := newService().Open(ctx, learner, 13)
			Expect(err).To(MatchError(internal.ErrAlreadyPaid))
		})

		It("reports an unknown enrollment", func() {
			_, err := newService().Open(ctx, learner, 99)
			Expect(err).To(MatchError(internal.ErrEnrollmentNotFound))
		})

		It("reports a session that could not be started", func() {
			svc := newService()
			deps.Initializer = failingInitializer{}
			svc = payment.NewService(deps)

			_, err := svc.Open(ctx, learner, 11)

			Expect(err).To(MatchError(internal.ErrSessionInitFailed))
		})
	})

	Describe("Pay", func() {
		It("settles a successful payment and publishes the completion", func() {
			svc := newService()
			opened, _ := svc.Open(ctx, learner, 11)

			snap, err := svc.Pay(ctx, learner, opened.SessionID, validCard())

			Expect(err).ToNot(HaveOccurred())
			Expect(snap.State).To(Equal(payment.StateSuccess))
			Expect(publisher.types()).To(ContainElement(events.EventTypePaymentCompleted))

			completed := publisher.events[len(publisher.events)-1].(*events.PaymentCompletedEvent)
			Expect(completed.LearnerEmail).To(Equal("asha@example.com"))
			Expect(completed.TransactionID).To(Equal(snap.Outcome.Transaction.TransactionID))
		})

		It("releases the enrollment lock once settled", func() {
			svc := newService()
			opened, _ := svc.Open(ctx, learner, 11)
			_, err := svc.Pay(ctx, learner, opened.SessionID, validCard())
			Expect(err).ToNot(HaveOccurred())

			_, ok, err := locker.Acquire(ctx, payment.LockKey(11), time.Minute)
			Expect(err).ToNot(HaveOccurred())
			Expect(ok).To(BeTrue())
		})

		It("refuses to pay while another instance holds the lock", func() {
			svc := newService()
			opened, _ := svc.Open(ctx, learner, 11)
			_, _, _ = locker.Acquire(ctx, payment.LockKey(11), time.Minute)

			_, err := svc.Pay(ctx, learner, opened.SessionID, validCard())

			Expect(err).To(MatchError(internal.ErrPaymentInProgress))
			Expect(gateway.calls()).To(Equal(0))
		})

		It("releases the lock when the input is rejected", func() {
			svc := newService()
			opened, _ := svc.Open(ctx, learner, 11)
			in := validCard()
			in.Card.Number = "1234"

			_, err := svc.Pay(ctx, learner, opened.SessionID, in)
			Expect(err).To(HaveOccurred())

			_, ok, _ := locker.Acquire(ctx, payment.LockKey(11), time.Minute)
			Expect(ok).To(BeTrue())
		})

		It("publishes a failure and allows retry after a decline", func() {
			gateway.processErr = declined()
			svc := newService()
			opened, _ := svc.Open(ctx, learner, 11)

			snap, err := svc.Pay(ctx, learner, opened.SessionID, validUPI())
			Expect(err).ToNot(HaveOccurred())
			Expect(snap.State).To(Equal(payment.StateFailure))
			Expect(publisher.types()).To(ContainElement(events.EventTypePaymentFailed))

			snap, err = svc.Retry(ctx, learner, opened.SessionID)
			Expect(err).ToNot(HaveOccurred())
			Expect(snap.State).To(Equal(payment.StateMethod))
		})

		It("fails the attempt when the worker queue is full", func() {
			runner = fullRunner{}
			svc := newService()
			opened, _ := svc.Open(ctx, learner, 11)

			snap, err := svc.Pay(ctx, learner, opened.SessionID, validCard())

			Expect(err).ToNot(HaveOccurred())
			Expect(snap.State).To(Equal(payment.StateFailure))
			Expect(snap.Outcome.Error.Code).To(Equal(internal.ErrCodeGatewayError))
		})

		It("settles an attempt the pool aborted and frees the lock", func() {
			runner = closingRunner{}
			svc := newService()
			opened, _ := svc.Open(ctx, learner, 11)

			snap, err := svc.Pay(ctx, learner, opened.SessionID, validCard())

			Expect(err).ToNot(HaveOccurred())
			Expect(snap.State).To(Equal(payment.StateFailure))
			Expect(snap.Outcome.Error.Code).To(Equal(internal.ErrCodeGatewayError))
			Expect(gateway.calls()).To(Equal(0))
			Expect(publisher.types()).To(ContainElement(events.EventTypePaymentFailed))

			_, ok, err := locker.Acquire(ctx, payment.LockKey(11), time.Minute)
			Expect(err).ToNot(HaveOccurred())
			Expect(ok).To(BeTrue())
		})

		It("completes a free enrollment synchronously", func() {
			svc := newService()
			opened, err := svc.Open(ctx, learner, 12)
			Expect(err).ToNot(HaveOccurred())
			Expect(opened.Free).To(BeTrue())

			snap, err := svc.Pay(ctx, learner, opened.SessionID, nil)

			Expect(err).ToNot(HaveOccurred())
			Expect(snap.State).To(Equal(payment.StateSuccess))
			Expect(gateway.calls()).To(Equal(0))
			Expect(runner.(*inlineRunner).jobs).To(Equal(0))
		})

		It("hides a session from another learner", func() {
			svc := newService()
			opened, _ := svc.Open(ctx, learner, 11)

			_, err := svc.Pay(ctx, other, opened.SessionID, validCard())

			Expect(err).To(MatchError(internal.ErrUnauthorizedAccess))
		})
	})

	Describe("UpdateInput", func() {
		It("returns inline validation and the updated checkout", func() {
			svc := newService()
			opened, _ := svc.Open(ctx, learner, 11)

			v, snap, err := svc.UpdateInput(ctx, learner, opened.SessionID, *validCard())

			Expect(err).ToNot(HaveOccurred())
			Expect(v.Valid).To(BeTrue())
			Expect(snap.State).To(Equal(payment.StateDetails))
			Expect(snap.CanPay).To(BeTrue())
		})
	})

	Describe("Get", func() {
		It("reports an unknown session", func() {
			_, err := newService().Get(ctx, learner, "session_missing")
			Expect(err).To(MatchError(internal.ErrSessionNotFound))
		})
	})

	Describe("History", func() {
		BeforeEach(func() {
			txnID := "TXN000000000001"
			history.txns[11] = []*paymentmodel.Transaction{
				{ID: 2, EnrollmentID: 11, TransactionID: &txnID, Status: paymentmodel.StatusSuccess},
				{ID: 1, EnrollmentID: 11, Status: paymentmodel.StatusDeclined},
			}
		})

		It("lists the attempts recorded for the learner's enrollment", func() {
			txns, err := newService().History(ctx, learner, 11)

			Expect(err).ToNot(HaveOccurred())
			Expect(txns).To(HaveLen(2))
			Expect(txns[0].Status).To(Equal(paymentmodel.StatusSuccess))
		})

		It("returns an empty list when nothing was recorded", func() {
			txns, err := newService().History(ctx, learner, 12)

			Expect(err).ToNot(HaveOccurred())
			Expect(txns).ToNot(BeNil())
			Expect(txns).To(BeEmpty())
		})

		It("applies the same access rules as checkout", func() {
			_, err := newService().History(ctx, other, 11)
			Expect(err).To(MatchError(internal.ErrUnauthorizedAccess))

			_, err = newService().History(ctx, admin, 11)
			Expect(err).ToNot(HaveOccurred())

			_, err = newService().History(ctx, learner, 99)
			Expect(err).To(MatchError(internal.ErrEnrollmentNotFound))
		})

		It("wraps storage errors", func() {
			history.err = errors.New("connection refused")

			_, err := newService().History(ctx, learner, 11)

			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.StatusCode).To(Equal(500))
		})
	})

	Describe("Cancel", func() {
		It("cancels and lets a new checkout be opened", func() {
			svc := newService()
			opened, _ := svc.Open(ctx, learner, 11)

			snap, err := svc.Cancel(ctx, learner, opened.SessionID)
			Expect(err).ToNot(HaveOccurred())
			Expect(snap.State).To(Equal(payment.StateCancelled))

			reopened, err := svc.Open(ctx, learner, 11)
			Expect(err).ToNot(HaveOccurred())
			Expect(reopened.SessionID).ToNot(Equal(opened.SessionID))
		})

		It("commits a charge left pending by a failed save", func() {
			committer.setErr(internal.ErrCommitFailed)
			svc := newService()
			opened, _ := svc.Open(ctx, learner, 11)
			snap, _ := svc.Pay(ctx, learner, opened.SessionID, validCard())
			Expect(snap.Outcome.Error.Code).To(Equal(internal.ErrCodeCommitFailed))

			committer.setErr(nil)
			_, err := svc.Cancel(ctx, learner, opened.SessionID)

			Expect(err).ToNot(HaveOccurred())
			Expect(committer.commitCount()).To(Equal(2))
		})
	})
})
