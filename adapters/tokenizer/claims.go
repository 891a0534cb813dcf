package tokenizer

import "github.com/golang-jwt/jwt/v5"

// SessionClaims are the registered claims carried by every token.
// The signing domain travels as the audience.
type SessionClaims struct {
	jwt.RegisteredClaims
}
