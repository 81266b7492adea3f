package payment_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/course-checkout/internal/payment"
)

func statuses(s *payment.Steps) []payment.StepStatus {
	out := []payment.StepStatus{}
	for _, st := range s.Snapshot() {
		out = append(out, st.Status)
	}
	return out
}

var _ = Describe("Steps", func() {
	var steps *payment.Steps

	BeforeEach(func() {
		steps = payment.NewSteps()
	})

	It("starts with every step pending in order", func() {
		snap := steps.Snapshot()
		Expect(snap).To(HaveLen(4))
		Expect(snap[0].Name).To(Equal(payment.StepValidate))
		Expect(snap[3].Name).To(Equal(payment.StepComplete))
		Expect(statuses(steps)).To(HaveEach(payment.StepPending))
	})

	It("advances one step at a time", func() {
		Expect(steps.Activate(payment.StepValidate)).To(Succeed())
		active, ok := steps.Active()
		Expect(ok).To(BeTrue())
		Expect(active).To(Equal(payment.StepValidate))

		Expect(steps.Complete(payment.StepValidate)).To(Succeed())
		Expect(steps.Activate(payment.StepProcess)).To(Succeed())

		Expect(statuses(steps)).To(Equal([]payment.StepStatus{
			payment.StepCompleted, payment.StepActive, payment.StepPending, payment.StepPending,
		}))
	})

	It("refuses to skip ahead", func() {
		err := steps.Activate(payment.StepVerify)
		Expect(err).To(MatchError(payment.ErrStepOutOfOrder))
	})

	It("refuses to complete a step that is not active", func() {
		Expect(steps.Complete(payment.StepValidate)).To(MatchError(payment.ErrStepOutOfOrder))
	})

	It("skips to a step when resuming", func() {
		steps.SkipTo(payment.StepComplete)
		Expect(steps.Activate(payment.StepComplete)).To(Succeed())
		Expect(statuses(steps)).To(Equal([]payment.StepStatus{
			payment.StepCompleted, payment.StepCompleted, payment.StepCompleted, payment.StepActive,
		}))
	})

	It("resets to all pending", func() {
		Expect(steps.Activate(payment.StepValidate)).To(Succeed())
		steps.Reset()
		Expect(statuses(steps)).To(HaveEach(payment.StepPending))
		_, ok := steps.Active()
		Expect(ok).To(BeFalse())
	})
})
