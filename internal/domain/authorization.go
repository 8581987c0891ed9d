package domain

import "time"

// Authorization is the OAuth credential issued by the watch-history provider.
// Field names match the provider's token response so the record can be persisted as-is.
type Authorization struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type,omitempty"`
	Scope        string    `json:"scope,omitempty"`
	CreatedAt    int64     `json:"created_at,omitempty"` // unix seconds
	ExpiresIn    int64     `json:"expires_in,omitempty"` // seconds after CreatedAt
	ExpiresAt    time.Time `json:"expires_at,omitzero"`
}

// Usable reports whether the record looks valid enough to skip a fresh device flow.
// Expiry is deliberately not checked here; stale tokens are refreshed on use.
func (a Authorization) Usable() bool {
	return a.AccessToken != ""
}

// Expiry returns ExpiresAt, or CreatedAt+ExpiresIn when only the provider's relative fields are set.
// A zero time means the expiry is unknown.
func (a Authorization) Expiry() time.Time {
	if !a.ExpiresAt.IsZero() {
		return a.ExpiresAt
	}
	if a.CreatedAt > 0 && a.ExpiresIn > 0 {
		return time.Unix(a.CreatedAt+a.ExpiresIn, 0)
	}
	return time.Time{}
}
