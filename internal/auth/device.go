package auth

import (
	"fmt"

	"github.com/waabox/watchsweep/internal/domain"
)

// DeviceCode holds the initial response from a device authorization request.
// It contains the code to show the user and the parameters needed for polling.
type DeviceCode struct {
	DeviceCode      string
	UserCode        string
	VerificationURL string
	ExpiresIn       int // seconds until the device code expires
	Interval        int // minimum polling interval in seconds
}

// TokenStatus classifies a single token-endpoint response.
type TokenStatus int

const (
	TokenPending TokenStatus = iota
	TokenSlowDown
	TokenAuthorized
	TokenDenied
	TokenExpired
	TokenInvalidCode
	TokenAlreadyUsed
)

func (s TokenStatus) String() string {
	switch s {
	case TokenPending:
		return "pending"
	case TokenSlowDown:
		return "slow_down"
	case TokenAuthorized:
		return "authorized"
	case TokenDenied:
		return "denied"
	case TokenExpired:
		return "expired"
	case TokenInvalidCode:
		return "invalid_code"
	case TokenAlreadyUsed:
		return "already_used"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// OutcomeKind is the closed set of terminal poll results.
type OutcomeKind int

const (
	OutcomeAuthenticated OutcomeKind = iota + 1
	OutcomeExpired
	OutcomeAborted
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeAuthenticated:
		return "authenticated"
	case OutcomeExpired:
		return "expired"
	case OutcomeAborted:
		return "aborted"
	default:
		return fmt.Sprintf("outcome(%d)", int(k))
	}
}

// PollOutcome is the single terminal event of an authentication attempt.
// Authorization is set only for OutcomeAuthenticated; Reason only for OutcomeAborted.
type PollOutcome struct {
	Kind          OutcomeKind
	Authorization domain.Authorization
	Reason        error
}

// State is the coordinator's view of the authentication lifecycle.
type State int

const (
	StateNotStarted State = iota
	StatePolling
	StateResolved
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StatePolling:
		return "polling"
	case StateResolved:
		return "resolved"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}
