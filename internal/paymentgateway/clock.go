package paymentgateway

import (
	"context"
	crand "crypto/rand"
	"math/rand/v2"
	"sync"
	"time"
)

// Sleeper provides the simulated network latency.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type TimerSleeper struct{}

func (TimerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InstantSleeper skips every delay but still honours cancellation.
type InstantSleeper struct{}

func (InstantSleeper) Sleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

type Outcome int

const (
	Approve Outcome = iota
	Decline
)

func (o Outcome) String() string {
	if o == Approve {
		return "approve"
	}
	return "decline"
}

// Decider chooses whether the process stage approves a charge.
type Decider interface {
	Decide(amount int64, method string) Outcome
}

type DeciderFunc func(amount int64, method string) Outcome

func (f DeciderFunc) Decide(amount int64, method string) Outcome {
	return f(amount, method)
}

func AlwaysApprove() Decider {
	return DeciderFunc(func(int64, string) Outcome { return Approve })
}

func AlwaysDecline() Decider {
	return DeciderFunc(func(int64, string) Outcome { return Decline })
}

// RandomDecider approves with probability rate.
type RandomDecider struct {
	mu   sync.Mutex
	rng  *rand.Rand
	rate float64
}

func NewRandomDecider(rate float64, rng *rand.Rand) *RandomDecider {
	if rng == nil {
		rng = SecureRand()
	}
	return &RandomDecider{rng: rng, rate: rate}
}

func (d *RandomDecider) Decide(int64, string) Outcome {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.rng.Float64() < d.rate {
		return Approve
	}
	return Decline
}

// SecureRand returns a ChaCha8 generator seeded from crypto/rand.
func SecureRand() *rand.Rand {
	var seed [32]byte
	_, _ = crand.Read(seed[:])
	return rand.New(rand.NewChaCha8(seed))
}

// SeededRand returns a deterministic generator for tests and simulations.
func SeededRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0xAA_BB_CC_DD))
}
