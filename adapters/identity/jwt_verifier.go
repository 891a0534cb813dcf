package identity

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/layer-3/keeper/core"
	"github.com/layer-3/keeper/ports"
)

// JWTVerifier accepts provider credentials issued as HS256 JWTs by a trusted
// identity provider sharing key with this service
type JWTVerifier struct {
	key      []byte
	issuer   string
	audience string
}

// NewJWTVerifier creates a verifier for tokens from issuer addressed to audience
func NewJWTVerifier(key []byte, issuer, audience string) ports.IdentityVerifier {
	return &JWTVerifier{key: key, issuer: issuer, audience: audience}
}

// Verify validates the provider token and returns its subject
func (v *JWTVerifier) Verify(ctx context.Context, providerToken string) (string, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(v.issuer),
		jwt.WithExpirationRequired(),
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	token, err := jwt.ParseWithClaims(providerToken, &jwt.RegisteredClaims{}, func(token *jwt.Token) (interface{}, error) {
		return v.key, nil
	}, opts...)
	if err != nil {
		return "", fmt.Errorf("%w: %v", core.ErrUnauthenticated, err)
	}

	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", fmt.Errorf("%w: missing subject", core.ErrUnauthenticated)
	}

	return sub, nil
}
