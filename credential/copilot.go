package credential

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// CopilotDeviceFlow implements the GitHub Copilot OAuth device-flow + short-
// lived-token exchange: a device code is traded for a GitHub OAuth token
// once, then that bearer is exchanged repeatedly for a short-lived Copilot
// API token that carries the proxy endpoint to call. The request-building
// style follows plain net/http request construction, generalized to
// GitHub's endpoints.
type CopilotDeviceFlow struct {
	Domain   string // e.g. "github.com" / "api.github.com"
	ClientID string
	HTTP     *http.Client
}

func (d *CopilotDeviceFlow) client() *http.Client {
	if d.HTTP != nil {
		return d.HTTP
	}
	return http.DefaultClient
}

// DeviceCode is the response of the device-code request a caller polls
// until the user completes the web verification step.
type DeviceCode struct {
	DeviceCode      string `json:"device_code"`
	UserCode        string `json:"user_code"`
	VerificationURI string `json:"verification_uri"`
	ExpiresIn       int    `json:"expires_in"`
	Interval        int    `json:"interval"`
}

// RequestDeviceCode starts the device flow: POST
// https://{domain}/login/device/code.
func (d *CopilotDeviceFlow) RequestDeviceCode(ctx context.Context) (*DeviceCode, error) {
	form := url.Values{"client_id": {d.ClientID}, "scope": {"read:user"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("https://%s/login/device/code", d.Domain), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := d.client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("credential: copilot device code request: %w", err)
	}
	defer resp.Body.Close()

	var out DeviceCode
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("credential: decode device code response: %w", err)
	}
	return &out, nil
}

// PollAccessToken exchanges a device code for a long-lived GitHub OAuth
// bearer token at .../oauth/access_token.
func (d *CopilotDeviceFlow) PollAccessToken(ctx context.Context, deviceCode string) (string, error) {
	form := url.Values{
		"client_id":   {d.ClientID},
		"device_code": {deviceCode},
		"grant_type":  {"urn:ietf:params:oauth:grant-type:device_code"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("https://%s/login/oauth/access_token", d.Domain), strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := d.client().Do(req)
	if err != nil {
		return "", fmt.Errorf("credential: copilot token poll: %w", err)
	}
	defer resp.Body.Close()

	var out struct {
		AccessToken string `json:"access_token"`
		Error       string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("credential: decode token poll response: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("credential: copilot token poll: %s", out.Error)
	}
	return out.AccessToken, nil
}

// copilotAPIToken is the short-lived exchange response carrying the
// inference proxy endpoint.
type copilotAPIToken struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
}

// RefreshAPIToken exchanges the long-lived GitHub bearer for a short-lived
// Copilot API token at https://api.{domain}/copilot_internal/v2/token, and
// is used as a credential.RefreshFunc. Refresh is always run (the short-
// lived token's lifetime is minutes), so the returned Credential's Expires
// is set from the exchange response, not extended speculatively.
func (d *CopilotDeviceFlow) RefreshAPIToken(ctx context.Context) RefreshFunc {
	return func(provider string, cred Credential) (Credential, error) {
		apiDomain := d.Domain
		if !strings.HasPrefix(apiDomain, "api.") {
			apiDomain = "api." + apiDomain
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet,
			fmt.Sprintf("https://%s/copilot_internal/v2/token", apiDomain), nil)
		if err != nil {
			return Credential{}, err
		}
		req.Header.Set("Authorization", "token "+cred.Refresh)

		resp, err := d.client().Do(req)
		if err != nil {
			return Credential{}, fmt.Errorf("credential: copilot api token exchange: %w", err)
		}
		defer resp.Body.Close()

		var out copilotAPIToken
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return Credential{}, fmt.Errorf("credential: decode api token response: %w", err)
		}

		extra := cred.Extra
		if extra == nil {
			extra = map[string]string{}
		}
		for _, pair := range strings.Split(out.Token, ";") {
			if strings.HasPrefix(pair, "proxy-ep=") {
				extra["proxyEndpoint"] = strings.TrimPrefix(pair, "proxy-ep=")
			}
		}

		return Credential{
			Type:    TypeOAuth,
			Refresh: cred.Refresh, // long-lived GitHub bearer is unchanged
			Access:  out.Token,
			Expires: time.Unix(out.ExpiresAt, 0).UnixMilli(),
			Extra:   extra,
		}, nil
	}
}
