package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/waabox/watchsweep/internal/domain"
)

const (
	traktDefaultBaseURL = "https://api.trakt.tv"
	traktRedirectURI    = "urn:ietf:wg:oauth:2.0:oob"
)

// TraktDeviceFlow implements the OAuth 2.0 Device Authorization Flow for Trakt.
// See https://trakt.docs.apiary.io/#reference/authentication-devices
type TraktDeviceFlow struct {
	clientID     string
	clientSecret string
	baseURL      string
	client       *http.Client
	now          func() time.Time
}

// NewTraktDeviceFlow creates a TraktDeviceFlow.
// Pass an empty baseURL to use the real Trakt API. Pass a test server URL in tests.
func NewTraktDeviceFlow(clientID, clientSecret, baseURL string) *TraktDeviceFlow {
	if baseURL == "" {
		baseURL = traktDefaultBaseURL
	}
	return &TraktDeviceFlow{
		clientID:     clientID,
		clientSecret: clientSecret,
		baseURL:      baseURL,
		client:       &http.Client{Timeout: 15 * time.Second},
		now:          time.Now,
	}
}

// RequestCode requests a device code and user code from Trakt.
// The returned DeviceCode.UserCode must be shown to the user along with VerificationURL.
func (f *TraktDeviceFlow) RequestCode(ctx context.Context) (DeviceCode, error) {
	resp, err := f.postJSON(ctx, "/oauth/device/code", map[string]string{
		"client_id": f.clientID,
	})
	if err != nil {
		return DeviceCode{}, fmt.Errorf("requesting device code: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return DeviceCode{}, providerError("requesting device code", resp)
	}

	var raw struct {
		DeviceCode      string `json:"device_code"`
		UserCode        string `json:"user_code"`
		VerificationURL string `json:"verification_url"`
		ExpiresIn       int    `json:"expires_in"`
		Interval        int    `json:"interval"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return DeviceCode{}, fmt.Errorf("decoding device code response: %w", err)
	}
	return DeviceCode{
		DeviceCode:      raw.DeviceCode,
		UserCode:        raw.UserCode,
		VerificationURL: raw.VerificationURL,
		ExpiresIn:       raw.ExpiresIn,
		Interval:        raw.Interval,
	}, nil
}

// CheckToken asks the token endpoint once whether deviceCode has been confirmed.
// Trakt signals progress with status codes: 200 granted, 400 pending, 404 invalid code,
// 409 already used, 410 expired, 418 denied, 429 slow down.
// Transport failures and 5xx responses are returned as errors for the poller to count.
func (f *TraktDeviceFlow) CheckToken(ctx context.Context, deviceCode string) (TokenStatus, domain.Authorization, error) {
	resp, err := f.postJSON(ctx, "/oauth/device/token", map[string]string{
		"code":          deviceCode,
		"client_id":     f.clientID,
		"client_secret": f.clientSecret,
	})
	if err != nil {
		return TokenPending, domain.Authorization{}, fmt.Errorf("polling token: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		auth, err := f.decodeToken(resp.Body)
		if err != nil {
			return TokenPending, domain.Authorization{}, err
		}
		if auth.AccessToken == "" {
			// server returned neither token nor error code
			return TokenPending, domain.Authorization{}, nil
		}
		return TokenAuthorized, auth, nil
	case http.StatusBadRequest:
		return TokenPending, domain.Authorization{}, nil
	case http.StatusTooManyRequests:
		return TokenSlowDown, domain.Authorization{}, nil
	case http.StatusNotFound:
		return TokenInvalidCode, domain.Authorization{}, nil
	case http.StatusConflict:
		return TokenAlreadyUsed, domain.Authorization{}, nil
	case http.StatusGone:
		return TokenExpired, domain.Authorization{}, nil
	case http.StatusTeapot:
		return TokenDenied, domain.Authorization{}, nil
	default:
		return TokenPending, domain.Authorization{}, providerError("polling token", resp)
	}
}

// RefreshToken exchanges refreshToken for a new Authorization.
func (f *TraktDeviceFlow) RefreshToken(ctx context.Context, refreshToken string) (domain.Authorization, error) {
	resp, err := f.postJSON(ctx, "/oauth/token", map[string]string{
		"refresh_token": refreshToken,
		"client_id":     f.clientID,
		"client_secret": f.clientSecret,
		"redirect_uri":  traktRedirectURI,
		"grant_type":    "refresh_token",
	})
	if err != nil {
		return domain.Authorization{}, fmt.Errorf("refreshing token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.Authorization{}, providerError("refreshing token", resp)
	}
	auth, err := f.decodeToken(resp.Body)
	if err != nil {
		return domain.Authorization{}, err
	}
	if auth.AccessToken == "" {
		return domain.Authorization{}, fmt.Errorf("refreshing token: response carried no access token")
	}
	return auth, nil
}

func (f *TraktDeviceFlow) decodeToken(body io.Reader) (domain.Authorization, error) {
	var raw struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		TokenType    string `json:"token_type"`
		Scope        string `json:"scope"`
		ExpiresIn    int64  `json:"expires_in"`
		CreatedAt    int64  `json:"created_at"`
	}
	if err := json.NewDecoder(body).Decode(&raw); err != nil {
		return domain.Authorization{}, fmt.Errorf("decoding token response: %w", err)
	}
	if raw.CreatedAt == 0 {
		raw.CreatedAt = f.now().Unix()
	}
	auth := domain.Authorization{
		AccessToken:  raw.AccessToken,
		RefreshToken: raw.RefreshToken,
		TokenType:    raw.TokenType,
		Scope:        raw.Scope,
		CreatedAt:    raw.CreatedAt,
		ExpiresIn:    raw.ExpiresIn,
	}
	auth.ExpiresAt = auth.Expiry()
	return auth, nil
}

func (f *TraktDeviceFlow) postJSON(ctx context.Context, path string, payload map[string]string) (*http.Response, error) {
	endpoint, err := url.JoinPath(f.baseURL, path)
	if err != nil {
		return nil, fmt.Errorf("building URL: %w", err)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	return resp, nil
}

func providerError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	msg := string(bytes.TrimSpace(body))
	if len(msg) > 100 {
		msg = msg[:100]
	}
	return &ProviderError{Op: op, StatusCode: resp.StatusCode, Body: msg}
}
