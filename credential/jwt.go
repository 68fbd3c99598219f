package credential

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// expiryFromJWT decodes an access token's exp claim without verifying its
// signature (the issuing provider's side of the handshake already vetted
// it); this is used only as a fallback when a refresh response omits an
// explicit expiry and the access token itself is a JWT, which some OAuth
// providers in the pack's retrieval set (outside Copilot's bespoke
// expires_at field) return instead.
func expiryFromJWT(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
