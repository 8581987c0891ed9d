package auth

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/waabox/watchsweep/internal/domain"
)

// refreshLeeway is how close to expiry a token may get before Token refreshes it.
const refreshLeeway = time.Hour

// Refresher exchanges a refresh token for a new Authorization.
type Refresher interface {
	RefreshToken(ctx context.Context, refreshToken string) (domain.Authorization, error)
}

// TokenManager handles silent token refresh for the live Authorization.
// It is an oauth2.TokenSource, so HTTP clients built from it always send a current token.
type TokenManager struct {
	refresher   Refresher
	onRefreshed func(domain.Authorization)

	mu      sync.Mutex
	current domain.Authorization
}

// NewTokenManager creates a TokenManager seeded with current.
// onRefreshed is called with every refreshed Authorization; pass Coordinator.TokenRefreshed to persist it.
func NewTokenManager(refresher Refresher, current domain.Authorization, onRefreshed func(domain.Authorization)) *TokenManager {
	return &TokenManager{
		refresher:   refresher,
		onRefreshed: onRefreshed,
		current:     current,
	}
}

// Token implements oauth2.TokenSource. It refreshes first when the token expires within the leeway.
// A token of unknown expiry, or one without a refresh token, is returned as-is and left to the server to reject.
func (tm *TokenManager) Token() (*oauth2.Token, error) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	expiry := tm.current.Expiry()
	if expiry.IsZero() || time.Until(expiry) > refreshLeeway || tm.current.RefreshToken == "" {
		return toOAuth2(tm.current), nil
	}
	if err := tm.refreshLocked(context.Background()); err != nil {
		return nil, err
	}
	return toOAuth2(tm.current), nil
}

// Refresh forces a refresh using the stored refresh token.
// Returns the new access token or an error.
func (tm *TokenManager) Refresh(ctx context.Context) (string, error) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if err := tm.refreshLocked(ctx); err != nil {
		return "", err
	}
	return tm.current.AccessToken, nil
}

func (tm *TokenManager) refreshLocked(ctx context.Context) error {
	if tm.current.RefreshToken == "" {
		return ErrNoRefreshToken
	}
	refreshed, err := tm.refresher.RefreshToken(ctx, tm.current.RefreshToken)
	if err != nil {
		return fmt.Errorf("refreshing Trakt token: %w", err)
	}
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = tm.current.RefreshToken
	}
	tm.current = refreshed
	if tm.onRefreshed != nil {
		tm.onRefreshed(refreshed)
	}
	return nil
}

// Current returns the live Authorization.
func (tm *TokenManager) Current() domain.Authorization {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return tm.current
}

// HTTPClient returns a client that authorizes every request with the current token.
// A nil base uses http.DefaultTransport.
func (tm *TokenManager) HTTPClient(base http.RoundTripper) *http.Client {
	if base == nil {
		base = http.DefaultTransport
	}
	return &http.Client{
		Timeout:   15 * time.Second,
		Transport: &oauth2.Transport{Source: tm, Base: base},
	}
}

func toOAuth2(a domain.Authorization) *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  a.AccessToken,
		TokenType:    a.TokenType,
		RefreshToken: a.RefreshToken,
		Expiry:       a.Expiry(),
	}
}
