package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/frahmantamala/course-checkout/internal"
)

// Claims represents JWT token claims
type Claims struct {
	UserID int64         `json:"user_id"`
	Role   internal.Role `json:"role"`
	jwt.RegisteredClaims
}

func (c *Claims) Principal() internal.Principal {
	return internal.Principal{UserID: c.UserID, Role: c.Role}
}

// TokenValidator turns a bearer token into claims.
type TokenValidator interface {
	ValidateToken(tokenString string) (*Claims, error)
}

type JWTTokenGenerator struct {
	Secret         []byte
	Issuer         string
	AccessTokenTTL time.Duration
	now            func() time.Time
}
