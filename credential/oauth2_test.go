package credential

import (
	"testing"
	"time"
)

func TestOauthValidTrueForFutureExpiry(t *testing.T) {
	c := Credential{Type: TypeOAuth, Access: "tok", Expires: time.Now().Add(time.Hour).UnixMilli()}
	if !oauthValid(c) {
		t.Fatalf("oauthValid() = false, want true")
	}
}

func TestOauthValidFalseForPastExpiry(t *testing.T) {
	c := Credential{Type: TypeOAuth, Access: "tok", Expires: time.Now().Add(-time.Hour).UnixMilli()}
	if oauthValid(c) {
		t.Fatalf("oauthValid() = true, want false")
	}
}

func TestOauthValidFalseForEmptyAccessToken(t *testing.T) {
	c := Credential{Type: TypeOAuth, Access: "", Expires: time.Now().Add(time.Hour).UnixMilli()}
	if oauthValid(c) {
		t.Fatalf("oauthValid() with empty access token = true, want false")
	}
}

func TestFromOAuth2TokenRoundTrip(t *testing.T) {
	c := Credential{Type: TypeOAuth, Access: "a", Refresh: "r", Expires: time.Now().Add(time.Hour).UnixMilli()}
	tok := c.toOAuth2Token()
	back := fromOAuth2Token(tok, map[string]string{"proxy-ep": "host"})
	if back.Access != c.Access || back.Refresh != c.Refresh {
		t.Fatalf("fromOAuth2Token(toOAuth2Token(c)) = %+v, want access/refresh to match %+v", back, c)
	}
	if back.Extra["proxy-ep"] != "host" {
		t.Fatalf("fromOAuth2Token() extra = %+v", back.Extra)
	}
}
