package payment_test

import (
	"context"
	"errors"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/course-checkout/internal"
	gatewaytypes "github.com/frahmantamala/course-checkout/internal/core/datamodel/paymentgateway"
	"github.com/frahmantamala/course-checkout/internal/payment"
	"github.com/frahmantamala/course-checkout/pkg/logger"
)

type recordingObserver struct {
	mu      sync.Mutex
	stages  []payment.StepName
	settled []payment.Snapshot
}

func (o *recordingObserver) StageFinished(_ string, step payment.StepName, _ time.Duration, _ error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stages = append(o.stages, step)
}

func (o *recordingObserver) Settled(_ context.Context, _ payment.Order, snap payment.Snapshot) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.settled = append(o.settled, snap)
}

func appCode(err error) internal.ErrorCode {
	appErr, ok := internal.IsAppError(err)
	Expect(ok).To(BeTrue(), "expected an AppError, got %v", err)
	return appErr.Code
}

var _ = Describe("Checkout", func() {
	var (
		gateway   *fakeGateway
		committer *fakeCommitter
		observer  *recordingObserver
		ctx       context.Context
		amount    int64
		timeout   time.Duration
	)

	BeforeEach(func() {
		gateway = &fakeGateway{}
		committer = &fakeCommitter{}
		observer = &recordingObserver{}
		ctx = context.Background()
		amount = 1500
		timeout = time.Second
	})

	newCheckout := func() *payment.Checkout {
		return payment.NewCheckout(
			gatewaytypes.Session{ID: "session_1", Amount: amount, Currency: "INR", Status: gatewaytypes.SessionStatusInitialized},
			payment.Order{EnrollmentID: 11, LearnerID: 7, LearnerName: "Asha Rao", CourseTitle: "Distributed Systems"},
			payment.CheckoutDeps{
				Gateway:   gateway,
				Committer: committer,
				Timeout:   timeout,
				Observer:  observer,
				Now:       fixedNow,
				Logger:    logger.Discard(),
			})
	}

	It("starts at method selection with the formatted amount", func() {
		snap := newCheckout().Snapshot()

		Expect(snap.State).To(Equal(payment.StateMethod))
		Expect(snap.FormattedAmount).To(Equal("₹1,500"))
		Expect(snap.Free).To(BeFalse())
		Expect(snap.CanPay).To(BeFalse())
		Expect(snap.Outcome).To(BeNil())
	})

	Describe("UpdateInput", func() {
		It("moves to details and reports inline validation", func() {
			c := newCheckout()

			v, err := c.UpdateInput(*validCard())

			Expect(err).ToNot(HaveOccurred())
			Expect(v.Valid).To(BeTrue())
			snap := c.Snapshot()
			Expect(snap.State).To(Equal(payment.StateDetails))
			Expect(snap.CanPay).To(BeTrue())
			Expect(snap.Input.Card.Number).To(Equal("************1111"))
		})

		It("keeps pay disabled for an invalid card", func() {
			c := newCheckout()
			in := validCard()
			in.Card.Number = "4111111111111112"

			v, err := c.UpdateInput(*in)

			Expect(err).ToNot(HaveOccurred())
			Expect(v.Valid).To(BeFalse())
			Expect(c.Snapshot().CanPay).To(BeFalse())
			Expect(gateway.calls()).To(Equal(0))
		})
	})

	Describe("Pay", func() {
		It("runs every stage and lands in success", func() {
			c := newCheckout()

			snap, err := c.Pay(ctx, validCard())

			Expect(err).ToNot(HaveOccurred())
			Expect(snap.State).To(Equal(payment.StateSuccess))
			Expect(snap.Outcome.Transaction).ToNot(BeNil())
			Expect(snap.Outcome.Error).To(BeNil())
			Expect(snap.Outcome.Transaction.TransactionID).To(HavePrefix("TXN"))
			Expect(stepStatuses(snap)).To(HaveEach(payment.StepCompleted))
			Expect(observer.stages).To(Equal([]payment.StepName{
				payment.StepValidate, payment.StepProcess, payment.StepVerify, payment.StepComplete,
			}))
			Expect(committer.commitCount()).To(Equal(1))
			Expect(committer.commits[0].EnrollmentID).To(Equal(int64(11)))
			Expect(string(committer.commits[0].GatewayResponse)).ToNot(ContainSubstring("4111111111111111"))
			Expect(snap.Attempts).To(Equal(1))
		})

		It("lands in failure with the decline message when the bank declines", func() {
			gateway.processErr = declined()
			c := newCheckout()

			snap, err := c.Pay(ctx, validUPI())

			Expect(err).ToNot(HaveOccurred())
			Expect(snap.State).To(Equal(payment.StateFailure))
			Expect(snap.Outcome.Transaction).To(BeNil())
			Expect(snap.Outcome.Error.Code).To(Equal(internal.ErrCodePaymentDeclined))
			Expect(snap.Outcome.Error.Message).To(ContainSubstring("declined by the bank"))
			Expect(committer.commitCount()).To(Equal(0))

			failures := committer.failureRecords()
			Expect(failures).To(HaveLen(1))
			Expect(failures[0].Declined).To(BeTrue())
			Expect(failures[0].PaymentMethod).To(Equal(payment.MethodUPI))
		})

		It("leaves the failing step active", func() {
			gateway.processErr = declined()
			c := newCheckout()

			snap, _ := c.Pay(ctx, validCard())

			Expect(stepStatuses(snap)).To(Equal([]payment.StepStatus{
				payment.StepCompleted, payment.StepActive, payment.StepPending, payment.StepPending,
			}))
			Expect(snap.ActiveStep).To(Equal(payment.StepProcess))
		})

		It("reports network failures as gateway errors", func() {
			gateway.processErr = errNetwork
			c := newCheckout()

			snap, _ := c.Pay(ctx, validCard())

			Expect(snap.Outcome.Error.Code).To(Equal(internal.ErrCodeGatewayError))
			Expect(committer.failureRecords()[0].Declined).To(BeFalse())
		})

		It("fails an unverified transaction", func() {
			gateway.unverified = true
			c := newCheckout()

			snap, _ := c.Pay(ctx, validCard())

			Expect(snap.State).To(Equal(payment.StateFailure))
			Expect(snap.ActiveStep).To(Equal(payment.StepVerify))
			Expect(committer.commitCount()).To(Equal(0))
			_, held := c.PendingCommit()
			Expect(held).To(BeTrue())
		})

		It("treats a gateway that never answers as a timeout failure", func() {
			timeout = 50 * time.Millisecond
			gateway.block = make(chan struct{})
			c := newCheckout()

			snap, err := c.Pay(ctx, validCard())

			Expect(err).ToNot(HaveOccurred())
			Expect(snap.State).To(Equal(payment.StateFailure))
			Expect(snap.Outcome.Error.Code).To(Equal(internal.ErrCodeGatewayTimeout))
		})

		It("rejects invalid input without calling the gateway", func() {
			c := newCheckout()
			in := validCard()
			in.Card.CVV = "1"

			_, err := c.Pay(ctx, in)

			Expect(appCode(err)).To(Equal(internal.ErrCodeValidationFailed))
			appErr, _ := internal.IsAppError(err)
			Expect(appErr.StatusCode).To(Equal(422))
			Expect(gateway.calls()).To(Equal(0))
			Expect(c.Snapshot().State).ToNot(Equal(payment.StateProcessing))
		})

		It("requires a method", func() {
			_, err := newCheckout().Pay(ctx, nil)
			Expect(appCode(err)).To(Equal(internal.ErrCodeValidationFailed))
		})

		It("refuses a second pay while processing", func() {
			gateway.block = make(chan struct{})
			c := newCheckout()

			attempt, err := c.Prepare(ctx, validCard())
			Expect(err).ToNot(HaveOccurred())
			Expect(c.Snapshot().State).To(Equal(payment.StateProcessing))

			_, err = c.Prepare(ctx, validCard())
			Expect(err).To(MatchError(internal.ErrPaymentInProgress))

			_, err = c.Cancel()
			Expect(err).To(MatchError(internal.ErrCancelNotAllowed))

			_, err = c.UpdateInput(*validUPI())
			Expect(err).To(MatchError(internal.ErrPaymentInProgress))

			go attempt.Run(ctx)
			close(gateway.block)

			waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()
			snap, err := c.Wait(waitCtx)
			Expect(err).ToNot(HaveOccurred())
			Expect(snap.State).To(Equal(payment.StateSuccess))
			Expect(gateway.calls()).To(Equal(1))
		})

		It("settles an attempt that could not be scheduled", func() {
			c := newCheckout()
			attempt, err := c.Prepare(ctx, validCard())
			Expect(err).ToNot(HaveOccurred())

			attempt.Abort(internal.ErrGatewayError.WithCause(errors.New("queue full")))

			snap := c.Snapshot()
			Expect(snap.State).To(Equal(payment.StateFailure))
			Expect(snap.Outcome.Error.Code).To(Equal(internal.ErrCodeGatewayError))
			Expect(observer.settled).To(HaveLen(1))
		})
	})

	Describe("zero amount", func() {
		BeforeEach(func() {
			amount = 0
		})

		It("is payable without a method", func() {
			c := newCheckout()
			snap := c.Snapshot()
			Expect(snap.Free).To(BeTrue())
			Expect(snap.CanPay).To(BeTrue())
			Expect(snap.FormattedAmount).To(Equal("₹0"))
		})

		It("goes straight to success without the gateway", func() {
			c := newCheckout()

			snap, err := c.Pay(ctx, nil)

			Expect(err).ToNot(HaveOccurred())
			Expect(snap.State).To(Equal(payment.StateSuccess))
			Expect(snap.Outcome.Transaction.TransactionID).To(HavePrefix("FREE"))
			Expect(snap.Outcome.Transaction.PaymentMethod).To(Equal(string(payment.MethodFree)))
			Expect(gateway.calls()).To(Equal(0))
			Expect(committer.commitCount()).To(Equal(1))
			Expect(observer.settled).To(HaveLen(1))
		})
	})

	Describe("commit failure", func() {
		It("keeps the charge and resumes at completion without charging again", func() {
			committer.setErr(internal.ErrCommitFailed.WithCause(errors.New("db down")))
			c := newCheckout()

			snap, err := c.Pay(ctx, validCard())
			Expect(err).ToNot(HaveOccurred())
			Expect(snap.State).To(Equal(payment.StateFailure))
			Expect(snap.Outcome.Error.Code).To(Equal(internal.ErrCodeCommitFailed))
			pending, ok := c.PendingCommit()
			Expect(ok).To(BeTrue())
			Expect(pending.TransactionID).To(Equal("TXN000000000001"))

			_, err = c.Retry()
			Expect(err).ToNot(HaveOccurred())
			Expect(c.Snapshot().CanPay).To(BeTrue())

			committer.setErr(nil)
			snap, err = c.Pay(ctx, nil)

			Expect(err).ToNot(HaveOccurred())
			Expect(snap.State).To(Equal(payment.StateSuccess))
			Expect(snap.Outcome.Transaction.TransactionID).To(Equal("TXN000000000001"))
			Expect(gateway.calls()).To(Equal(1))
			Expect(committer.commitCount()).To(Equal(2))
			_, ok = c.PendingCommit()
			Expect(ok).To(BeFalse())
		})
	})

	Describe("verify failure", func() {
		It("holds the charge and re-verifies on the next pay without charging again", func() {
			gateway.verifyErr = errors.New("verify timeout")
			c := newCheckout()

			snap, err := c.Pay(ctx, validCard())
			Expect(err).ToNot(HaveOccurred())
			Expect(snap.State).To(Equal(payment.StateFailure))
			Expect(committer.commitCount()).To(Equal(0))
			pending, ok := c.PendingCommit()
			Expect(ok).To(BeTrue())
			Expect(pending.TransactionID).To(Equal("TXN000000000001"))

			_, err = c.Retry()
			Expect(err).ToNot(HaveOccurred())
			gateway.mu.Lock()
			gateway.verifyErr = nil
			gateway.mu.Unlock()
			observer.stages = nil

			snap, err = c.Pay(ctx, validCard())

			Expect(err).ToNot(HaveOccurred())
			Expect(snap.State).To(Equal(payment.StateSuccess))
			Expect(snap.Outcome.Transaction.TransactionID).To(Equal("TXN000000000001"))
			Expect(gateway.calls()).To(Equal(1))
			Expect(observer.stages).To(Equal([]payment.StepName{payment.StepVerify, payment.StepComplete}))
			Expect(stepStatuses(snap)).To(HaveEach(payment.StepCompleted))
		})
	})

	Describe("resuming a held charge", func() {
		var c *payment.Checkout

		BeforeEach(func() {
			committer.setErr(internal.ErrCommitFailed.WithCause(errors.New("db down")))
			c = newCheckout()
			snap, err := c.Pay(ctx, validCard())
			Expect(err).ToNot(HaveOccurred())
			Expect(snap.State).To(Equal(payment.StateFailure))

			_, err = c.Retry()
			Expect(err).ToNot(HaveOccurred())
			committer.setErr(nil)
		})

		It("refuses details for a different method", func() {
			_, err := c.Pay(ctx, validUPI())

			Expect(appCode(err)).To(Equal(internal.ErrCodeValidationFailed))
			Expect(c.Snapshot().State).To(Equal(payment.StateMethod))
			Expect(committer.commitCount()).To(Equal(1))
		})

		It("records the method that was charged", func() {
			other := validCard()
			other.Card.Number = "5555 5555 5555 4444"

			snap, err := c.Pay(ctx, other)

			Expect(err).ToNot(HaveOccurred())
			Expect(snap.State).To(Equal(payment.StateSuccess))
			Expect(gateway.calls()).To(Equal(1))
			Expect(committer.commitCount()).To(Equal(2))

			resumed := committer.commits[1]
			Expect(resumed.PaymentMethod).To(Equal(payment.MethodCard))
			Expect(string(resumed.GatewayResponse)).To(ContainSubstring(`"card_type":"visa"`))
			Expect(string(resumed.GatewayResponse)).ToNot(ContainSubstring("4444"))
			Expect(string(resumed.GatewayResponse)).To(Equal(string(committer.commits[0].GatewayResponse)))
		})
	})

	Describe("Retry", func() {
		It("returns a failed checkout to method selection with cleared state", func() {
			gateway.processErr = declined()
			c := newCheckout()
			_, _ = c.Pay(ctx, validCard())

			snap, err := c.Retry()

			Expect(err).ToNot(HaveOccurred())
			Expect(snap.State).To(Equal(payment.StateMethod))
			Expect(snap.Input).To(BeNil())
			Expect(snap.Outcome).To(BeNil())
			Expect(stepStatuses(snap)).To(HaveEach(payment.StepPending))
			Expect(snap.Attempts).To(Equal(1))
		})

		It("allows a new attempt after retry", func() {
			gateway.processErr = declined()
			c := newCheckout()
			_, _ = c.Pay(ctx, validCard())
			_, _ = c.Retry()

			gateway.mu.Lock()
			gateway.processErr = nil
			gateway.mu.Unlock()
			snap, err := c.Pay(ctx, validUPI())

			Expect(err).ToNot(HaveOccurred())
			Expect(snap.State).To(Equal(payment.StateSuccess))
			Expect(snap.Attempts).To(Equal(2))
		})

		It("is refused outside failure", func() {
			c := newCheckout()
			_, err := c.Retry()
			Expect(err).To(MatchError(internal.ErrInvalidTransition))

			_, _ = c.Pay(ctx, validCard())
			_, err = c.Retry()
			Expect(err).To(MatchError(internal.ErrInvalidTransition))
		})
	})

	Describe("Cancel", func() {
		It("exits from method selection and blocks further actions", func() {
			c := newCheckout()

			snap, err := c.Cancel()
			Expect(err).ToNot(HaveOccurred())
			Expect(snap.State).To(Equal(payment.StateCancelled))

			_, err = c.UpdateInput(*validCard())
			Expect(err).To(MatchError(internal.ErrInvalidTransition))
			_, err = c.Pay(ctx, validCard())
			Expect(err).To(MatchError(internal.ErrInvalidTransition))
		})

		It("exits from failure", func() {
			gateway.processErr = declined()
			c := newCheckout()
			_, _ = c.Pay(ctx, validCard())

			snap, err := c.Cancel()
			Expect(err).ToNot(HaveOccurred())
			Expect(snap.State).To(Equal(payment.StateCancelled))
		})

		It("is refused after success", func() {
			c := newCheckout()
			_, _ = c.Pay(ctx, validCard())

			_, err := c.Cancel()
			Expect(err).To(MatchError(internal.ErrInvalidTransition))
		})
	})
})

func stepStatuses(snap payment.Snapshot) []payment.StepStatus {
	out := []payment.StepStatus{}
	for _, st := range snap.Steps {
		out = append(out, st.Status)
	}
	return out
}
