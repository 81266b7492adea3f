package payment

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Registry holds live checkouts by session id and evicts idle ones.
type Registry struct {
	mu        sync.RWMutex
	checkouts map[string]*Checkout
	ttl       time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

func NewRegistry(ttl time.Duration, logger *slog.Logger) *Registry {
	return &Registry{
		checkouts: make(map[string]*Checkout),
		ttl:       ttl,
		now:       time.Now,
		logger:    logger,
	}
}

func (r *Registry) Put(c *Checkout) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkouts[c.SessionID()] = c
}

func (r *Registry) Get(sessionID string) (*Checkout, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.checkouts[sessionID]
	return c, ok
}

// FindOpen returns a checkout for the enrollment that has not reached success or been cancelled.
func (r *Registry) FindOpen(enrollmentID int64) (*Checkout, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.checkouts {
		if c.Order().EnrollmentID != enrollmentID {
			continue
		}
		switch c.Snapshot().State {
		case StateSuccess, StateCancelled:
			continue
		}
		return c, true
	}
	return nil, false
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.checkouts)
}

// Sweep drops checkouts idle longer than the ttl. Processing checkouts are never evicted.
func (r *Registry) Sweep() []*Checkout {
	cutoff := r.now().Add(-r.ttl)

	r.mu.Lock()
	defer r.mu.Unlock()

	var evicted []*Checkout
	for id, c := range r.checkouts {
		last, evictable := c.IdleSince()
		if evictable && last.Before(cutoff) {
			delete(r.checkouts, id)
			evicted = append(evicted, c)
		}
	}
	return evicted
}

// Run sweeps on every interval until ctx is done. onEvict sees each evicted checkout.
func (r *Registry) Run(ctx context.Context, interval time.Duration, onEvict func(*Checkout)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			evicted := r.Sweep()
			for _, c := range evicted {
				if onEvict != nil {
					onEvict(c)
				}
			}
			if len(evicted) > 0 {
				r.logger.Info("evicted idle checkouts", "count", len(evicted), "remaining", r.Len())
			}
		case <-ctx.Done():
			return
		}
	}
}
