package token

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// IsTokenExpired reports whether the JWT-shaped token's exp claim is in the
// past. Signatures are not checked. Anything that can't be decoded, including
// a token without an exp claim, counts as expired.
func IsTokenExpired(rawToken string) bool {
	return isExpiredAt(rawToken, time.Now())
}

func isExpiredAt(rawToken string, now time.Time) bool {
	exp := ExpiresAt(rawToken)
	if exp.IsZero() {
		return true
	}
	return !now.Before(exp)
}

// ExpiresAt returns the exp claim of a JWT-shaped token, or the zero time when
// it can't be read. Only the payload segment is decoded, so the header's alg
// doesn't matter and padded segments are accepted.
func ExpiresAt(rawToken string) time.Time {
	parts := strings.Split(rawToken, ".")
	if len(parts) != 3 {
		return time.Time{}
	}

	payload, err := jwt.NewParser(jwt.WithPaddingAllowed()).DecodeSegment(parts[1])
	if err != nil {
		return time.Time{}
	}
	claims := jwt.MapClaims{}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return time.Time{}
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}
