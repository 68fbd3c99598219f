package credential

import (
	"golang.org/x/oauth2"
)

// toOAuth2Token converts the persisted Credential shape to the in-memory
// golang.org/x/oauth2.Token representation, so expiry checks reuse oauth2's
// own Valid() (which builds in a small expiry skew) instead of a
// hand-rolled comparison.
func (c Credential) toOAuth2Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  c.Access,
		RefreshToken: c.Refresh,
		TokenType:    "Bearer",
		Expiry:       c.ExpiresAt(),
	}
}

// fromOAuth2Token converts back, preserving Extra (oauth2.Token has no
// equivalent of the provider-specific extras like Copilot's proxy endpoint).
func fromOAuth2Token(t *oauth2.Token, extra map[string]string) Credential {
	return Credential{
		Type:    TypeOAuth,
		Refresh: t.RefreshToken,
		Access:  t.AccessToken,
		Expires: t.Expiry.UnixMilli(),
		Extra:   extra,
	}
}

// oauthValid reports whether the stored credential's access token is still
// usable, per oauth2.Token.Valid()'s own (access-token-present, not-expired)
// definition.
func oauthValid(c Credential) bool {
	return c.toOAuth2Token().Valid()
}
