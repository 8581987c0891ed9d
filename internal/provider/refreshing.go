// Package provider wraps watch-history sources with transparent token refresh.
package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/waabox/watchsweep/internal/domain"
)

// AuthExpiredError is returned when both the access token and refresh token are
// invalid, and interactive re-authentication is required.
type AuthExpiredError struct {
	Provider string
	Err      error
}

func (e *AuthExpiredError) Error() string {
	return fmt.Sprintf("%s session expired: re-authentication required (run 'watchsweep login')", e.Provider)
}

func (e *AuthExpiredError) Unwrap() error {
	return e.Err
}

// RefreshingSource wraps a HistorySource and transparently handles 401 errors
// by attempting a silent token refresh. If refresh fails, it returns AuthExpiredError.
type RefreshingSource struct {
	inner     domain.HistorySource
	provider  string
	refreshFn func(context.Context) (string, error)
}

// Ensure RefreshingSource implements HistorySource.
var _ domain.HistorySource = (*RefreshingSource)(nil)

// NewRefreshingSource creates a RefreshingSource.
// refreshFn is called on 401 to attempt a silent token refresh; it returns the new access token.
// The inner source is expected to pick the new token up itself (auth.TokenManager does).
func NewRefreshingSource(
	inner domain.HistorySource,
	providerName string,
	refreshFn func(context.Context) (string, error),
) *RefreshingSource {
	return &RefreshingSource{
		inner:     inner,
		provider:  providerName,
		refreshFn: refreshFn,
	}
}

func (rs *RefreshingSource) HistoryPage(ctx context.Context, query domain.HistoryQuery, page int) (domain.HistoryPage, error) {
	result, err := rs.inner.HistoryPage(ctx, query, page)
	if err == nil || !errors.Is(err, domain.ErrUnauthorized) {
		return result, err
	}
	if _, refreshErr := rs.refreshFn(ctx); refreshErr != nil {
		return domain.HistoryPage{}, &AuthExpiredError{Provider: rs.provider, Err: refreshErr}
	}
	return rs.inner.HistoryPage(ctx, query, page)
}
