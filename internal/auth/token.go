package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// tokenExpiry reads the exp claim of a JWT without verifying its signature.
// The backend owns the key; the client only needs to know when to stop
// sending the token.
func tokenExpiry(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// computeExpiry returns now+ttl, capped by the token's own exp claim.
func computeExpiry(token string, now time.Time, ttl time.Duration) time.Time {
	expiry := now.Add(ttl)
	if exp, ok := tokenExpiry(token); ok && exp.Before(expiry) {
		return exp
	}
	return expiry
}
