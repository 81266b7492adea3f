package internal

import (
	"context"
	"time"
)

type ctxKey string

const ContextPrincipalKey ctxKey = "principal"

type Role string

const (
	RoleLearner     Role = "learner"
	RoleEducator    Role = "educator"
	RoleCoordinator Role = "coordinator"
	RoleAdmin       Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleLearner, RoleEducator, RoleCoordinator, RoleAdmin:
		return true
	}
	return false
}

// Principal is the authenticated caller attached to a request.
type Principal struct {
	UserID int64
	Role   Role
}

// CanActFor reports whether the principal may check out an enrollment owned by learnerID.
func (p Principal) CanActFor(learnerID int64) bool {
	if p.Role == RoleAdmin {
		return true
	}
	return p.Role == RoleLearner && p.UserID == learnerID
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	p, ok := ctx.Value(ContextPrincipalKey).(Principal)
	return p, ok
}

func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ContextPrincipalKey, p)
}

// WithTimeout returns a context with timeout, defaulting to 5 seconds if duration is zero or negative.
func WithTimeout(ctx context.Context, duration time.Duration) (context.Context, context.CancelFunc) {
	if duration <= 0 {
		duration = 5 * time.Second
	}
	return context.WithTimeout(ctx, duration)
}
