package tokenizer

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/layer-3/keeper/core"
	"github.com/layer-3/keeper/ports"
)

// Option configures a JWTTokenizer
type Option func(*JWTTokenizer)

// WithClock replaces the time source used for minting and expiry checks.
func WithClock(now func() time.Time) Option {
	return func(j *JWTTokenizer) { j.now = now }
}

// JWTTokenizer implements the Tokenizer interface using HS256 JWTs,
// one secret per signing domain
type JWTTokenizer struct {
	policies map[core.Domain]core.DomainPolicy
	now      func() time.Time
}

// NewJWTTokenizer creates a tokenizer for the given signing domains
func NewJWTTokenizer(policies map[core.Domain]core.DomainPolicy, opts ...Option) ports.Tokenizer {
	j := &JWTTokenizer{
		policies: make(map[core.Domain]core.DomainPolicy, len(policies)),
		now:      time.Now,
	}
	for d, p := range policies {
		j.policies[d] = p
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Mint signs a new token for subject in domain
func (j *JWTTokenizer) Mint(domain core.Domain, subject string) (string, core.Claims, error) {
	policy, ok := j.policies[domain]
	if !ok {
		return "", core.Claims{}, fmt.Errorf("unknown signing domain %q", domain)
	}

	// NumericDate has second precision; truncate so the returned claims
	// match what a later Decode yields.
	now := time.Unix(j.now().Unix(), 0)
	claims := core.Claims{
		ID:        uuid.New().String(),
		Subject:   subject,
		Domain:    domain,
		IssuedAt:  now,
		ExpiresAt: now.Add(policy.TTL),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   claims.Subject,
			ID:        claims.ID,
			ExpiresAt: jwt.NewNumericDate(claims.ExpiresAt),
			IssuedAt:  jwt.NewNumericDate(claims.IssuedAt),
			Audience:  jwt.ClaimStrings{string(domain)},
		},
	})

	signedToken, err := token.SignedString(policy.Secret)
	if err != nil {
		return "", core.Claims{}, fmt.Errorf("failed to sign %s token: %w", domain, err)
	}

	return signedToken, claims, nil
}

// Verify checks signature, audience and expiry of a token in domain
func (j *JWTTokenizer) Verify(domain core.Domain, tokenStr string) (core.Claims, error) {
	policy, ok := j.policies[domain]
	if !ok {
		return core.Claims{}, fmt.Errorf("unknown signing domain %q: %w", domain, core.ErrTokenInvalid)
	}

	token, err := jwt.ParseWithClaims(tokenStr, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		// Validate the signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return policy.Secret, nil
	},
		jwt.WithAudience(string(domain)),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(j.now),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenInvalidAudience):
			return core.Claims{}, fmt.Errorf("%w: %v", core.ErrTokenInvalid, err)
		case errors.Is(err, jwt.ErrTokenExpired):
			return core.Claims{}, fmt.Errorf("%w: %v", core.ErrTokenExpired, err)
		default:
			return core.Claims{}, fmt.Errorf("%w: %v", core.ErrTokenInvalid, err)
		}
	}

	if !token.Valid {
		return core.Claims{}, core.ErrTokenInvalid
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok {
		return core.Claims{}, core.ErrTokenInvalid
	}

	return toCore(claims), nil
}

// Decode extracts the claims of a token without verifying it
func (j *JWTTokenizer) Decode(tokenStr string) (core.Claims, error) {
	claims := &SessionClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, claims); err != nil {
		return core.Claims{}, fmt.Errorf("%w: %v", core.ErrTokenInvalid, err)
	}
	return toCore(claims), nil
}

func toCore(c *SessionClaims) core.Claims {
	claims := core.Claims{
		ID:      c.ID,
		Subject: c.Subject,
	}
	if len(c.Audience) > 0 {
		claims.Domain = core.Domain(c.Audience[0])
	}
	if c.IssuedAt != nil {
		claims.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		claims.ExpiresAt = c.ExpiresAt.Time
	}
	return claims
}
