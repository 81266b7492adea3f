package payment_test

import (
	"context"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	gatewaytypes "github.com/frahmantamala/course-checkout/internal/core/datamodel/paymentgateway"
	"github.com/frahmantamala/course-checkout/internal/payment"
	"github.com/frahmantamala/course-checkout/pkg/logger"
)

var _ = Describe("Registry", func() {
	var registry *payment.Registry

	newCheckout := func(sessionID string, enrollmentID int64, now func() time.Time) *payment.Checkout {
		return payment.NewCheckout(
			gatewaytypes.Session{ID: sessionID, Amount: 1500, Currency: "INR", Status: gatewaytypes.SessionStatusInitialized},
			payment.Order{EnrollmentID: enrollmentID, LearnerID: 7},
			payment.CheckoutDeps{
				Gateway:   &fakeGateway{},
				Committer: &fakeCommitter{},
				Now:       now,
				Logger:    logger.Discard(),
			})
	}

	BeforeEach(func() {
		registry = payment.NewRegistry(30*time.Minute, logger.Discard())
	})

	It("finds the open checkout for an enrollment", func() {
		c := newCheckout("session_a", 11, time.Now)
		registry.Put(c)

		found, ok := registry.FindOpen(11)
		Expect(ok).To(BeTrue())
		Expect(found.SessionID()).To(Equal("session_a"))

		_, ok = registry.FindOpen(12)
		Expect(ok).To(BeFalse())
	})

	It("skips cancelled checkouts when looking for an open one", func() {
		c := newCheckout("session_a", 11, time.Now)
		registry.Put(c)
		_, err := c.Cancel()
		Expect(err).NotTo(HaveOccurred())

		_, ok := registry.FindOpen(11)
		Expect(ok).To(BeFalse())
		_, ok = registry.Get("session_a")
		Expect(ok).To(BeTrue())
	})

	It("evicts only checkouts idle past the ttl", func() {
		registry.Put(newCheckout("stale", 11, fixedNow))
		registry.Put(newCheckout("fresh", 12, time.Now))

		evicted := registry.Sweep()

		Expect(evicted).To(HaveLen(1))
		Expect(evicted[0].SessionID()).To(Equal("stale"))
		Expect(registry.Len()).To(Equal(1))
		_, ok := registry.Get("fresh")
		Expect(ok).To(BeTrue())
	})

	It("hands evicted checkouts to the callback while running", func() {
		registry.Put(newCheckout("stale", 11, fixedNow))

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		var mu sync.Mutex
		var seen []string
		go registry.Run(ctx, 10*time.Millisecond, func(c *payment.Checkout) {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, c.SessionID())
		})

		Eventually(func() []string {
			mu.Lock()
			defer mu.Unlock()
			return append([]string(nil), seen...)
		}).Should(ConsistOf("stale"))
		Expect(registry.Len()).To(BeZero())
	})
})
