package bridge

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// tokenExpired reports whether a JWT bearer token is already expired.
//
// The signature is not verified: this only spares a doomed handshake. Tokens
// that are not JWTs, or carry no exp claim, are treated as not expired and
// the server stays authoritative.
func tokenExpired(token string, now time.Time) (bool, time.Time) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return false, time.Time{}
	}
	if claims.ExpiresAt == nil {
		return false, time.Time{}
	}
	exp := claims.ExpiresAt.Time
	return !exp.After(now), exp
}
