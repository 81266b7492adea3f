package paymentgateway

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/frahmantamala/course-checkout/internal"
	gatewaytypes "github.com/frahmantamala/course-checkout/internal/core/datamodel/paymentgateway"
	"github.com/google/uuid"
)

const (
	authCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ0123456789"
	declineMessage   = "Payment was declined by the bank. Please try again or use a different payment method."
)

type Config struct {
	InitDelay       time.Duration
	ValidateDelay   time.Duration
	ProcessMinDelay time.Duration
	ProcessMaxDelay time.Duration
	VerifyDelay     time.Duration
	SuccessRate     float64
}

func ConfigFromPayment(p internal.PaymentConfig) Config {
	return Config{
		InitDelay:       p.InitDelay,
		ValidateDelay:   p.ValidateDelay,
		ProcessMinDelay: p.ProcessMinDelay,
		ProcessMaxDelay: p.ProcessMaxDelay,
		VerifyDelay:     p.VerifyDelay,
		SuccessRate:     p.SuccessRate,
	}
}

// Simulator is a timed stand-in for a card/UPI payment processor.
type Simulator struct {
	cfg     Config
	sleeper Sleeper
	decider Decider
	logger  *slog.Logger
	now     func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

type Option func(*Simulator)

func WithSleeper(s Sleeper) Option {
	return func(sim *Simulator) { sim.sleeper = s }
}

func WithDecider(d Decider) Option {
	return func(sim *Simulator) { sim.decider = d }
}

func WithRand(r *rand.Rand) Option {
	return func(sim *Simulator) { sim.rng = r }
}

func WithClock(now func() time.Time) Option {
	return func(sim *Simulator) { sim.now = now }
}

func NewSimulator(cfg Config, logger *slog.Logger, opts ...Option) *Simulator {
	sim := &Simulator{
		cfg:     cfg,
		sleeper: TimerSleeper{},
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(sim)
	}
	if sim.rng == nil {
		sim.rng = SecureRand()
	}
	if sim.decider == nil {
		sim.decider = NewRandomDecider(cfg.SuccessRate, SeededRand(sim.rng.Uint64()))
	}
	return sim
}

// InitializePayment opens a session after the configured init delay.
// A zero amount is accepted; the caller decides how free items are handled.
func (s *Simulator) InitializePayment(ctx context.Context, amount int64, currency string) (*gatewaytypes.Session, error) {
	if amount < 0 {
		return nil, &gatewaytypes.SessionInitError{Reason: fmt.Sprintf("amount %d is negative", amount)}
	}
	if strings.TrimSpace(currency) == "" {
		return nil, &gatewaytypes.SessionInitError{Reason: "currency is required"}
	}

	if err := s.sleeper.Sleep(ctx, s.cfg.InitDelay); err != nil {
		return nil, &gatewaytypes.SessionInitError{Reason: "initialization interrupted", Cause: err}
	}

	session := &gatewaytypes.Session{
		ID:        "session_" + uuid.NewString(),
		Amount:    amount,
		Currency:  currency,
		Status:    gatewaytypes.SessionStatusInitialized,
		CreatedAt: s.now(),
	}

	s.logger.Debug("gateway session initialized",
		"session_id", session.ID,
		"amount", amount,
		"currency", currency)

	return session, nil
}

// ValidatePayment is a progress stage only; input was validated before submission.
func (s *Simulator) ValidatePayment(ctx context.Context) error {
	return s.sleeper.Sleep(ctx, s.cfg.ValidateDelay)
}

func (s *Simulator) ProcessPayment(ctx context.Context, req gatewaytypes.ProcessRequest) (*gatewaytypes.TransactionRecord, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid process request: %w", err)
	}

	delay := s.processLatency()
	if err := s.sleeper.Sleep(ctx, delay); err != nil {
		return nil, err
	}

	if s.decider.Decide(req.Amount, req.PaymentMethod) == Decline {
		s.logger.Info("gateway simulation: payment declined",
			"session_id", req.SessionID,
			"payment_method", req.PaymentMethod,
			"delay_seconds", delay.Seconds())
		return nil, &gatewaytypes.GatewayError{
			Code:    gatewaytypes.CodePaymentDeclined,
			Message: declineMessage,
		}
	}

	record := &gatewaytypes.TransactionRecord{
		TransactionID: "TXN" + s.token(12),
		Status:        gatewaytypes.TransactionStatusSuccess,
		Amount:        req.Amount,
		Currency:      req.Currency,
		PaymentMethod: req.PaymentMethod,
		Timestamp:     s.now().UTC(),
		Gateway: gatewaytypes.GatewayReference{
			Reference: "GW" + s.token(10),
			AuthCode:  s.token(6),
		},
	}

	s.logger.Info("gateway simulation: payment approved",
		"session_id", req.SessionID,
		"transaction_id", record.TransactionID,
		"delay_seconds", delay.Seconds())

	return record, nil
}

// VerifyPayment always confirms; a declined charge never reaches this stage.
func (s *Simulator) VerifyPayment(ctx context.Context, transactionID string) (*gatewaytypes.Verification, error) {
	if transactionID == "" {
		return nil, fmt.Errorf("transaction id is required")
	}
	if err := s.sleeper.Sleep(ctx, s.cfg.VerifyDelay); err != nil {
		return nil, err
	}
	return &gatewaytypes.Verification{
		TransactionID: transactionID,
		Verified:      true,
		VerifiedAt:    s.now().UTC(),
	}, nil
}

func (s *Simulator) processLatency() time.Duration {
	lo, hi := s.cfg.ProcessMinDelay, s.cfg.ProcessMaxDelay
	if hi <= lo {
		return lo
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo + time.Duration(s.rng.Int64N(int64(hi-lo)+1))
}

func (s *Simulator) token(n int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := make([]byte, n)
	for i := range b {
		b[i] = authCodeAlphabet[s.rng.IntN(len(authCodeAlphabet))]
	}
	return string(b)
}
