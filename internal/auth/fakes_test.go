package auth_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/waabox/watchsweep/internal/auth"
	"github.com/waabox/watchsweep/internal/domain"
)

type checkResult struct {
	status auth.TokenStatus
	authz  domain.Authorization
	err    error
}

// fakeFlow replays a script of token responses. The last entry repeats once the script runs out.
type fakeFlow struct {
	mu         sync.Mutex
	code       auth.DeviceCode
	codeErr    error
	script     []checkResult
	codeCalls  int
	checks     int
	checkTimes []time.Time
}

func (f *fakeFlow) RequestCode(ctx context.Context) (auth.DeviceCode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.codeCalls++
	return f.code, f.codeErr
}

func (f *fakeFlow) CheckToken(ctx context.Context, deviceCode string) (auth.TokenStatus, domain.Authorization, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checks++
	f.checkTimes = append(f.checkTimes, time.Now())
	if len(f.script) == 0 {
		return auth.TokenPending, domain.Authorization{}, nil
	}
	r := f.script[0]
	if len(f.script) > 1 {
		f.script = f.script[1:]
	}
	return r.status, r.authz, r.err
}

func (f *fakeFlow) counts() (codeCalls, checks int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.codeCalls, f.checks
}

// outcomeRecorder collects every terminal callback the poller fires.
type outcomeRecorder struct {
	mu       sync.Mutex
	outcomes []auth.PollOutcome
	codes    []auth.DeviceCode
}

func (r *outcomeRecorder) callbacks() auth.Callbacks {
	return auth.Callbacks{
		OnCode: func(c auth.DeviceCode) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.codes = append(r.codes, c)
		},
		OnAuthenticated: func(a domain.Authorization) {
			r.add(auth.PollOutcome{Kind: auth.OutcomeAuthenticated, Authorization: a})
		},
		OnExpired: func() {
			r.add(auth.PollOutcome{Kind: auth.OutcomeExpired})
		},
		OnAborted: func(reason error) {
			r.add(auth.PollOutcome{Kind: auth.OutcomeAborted, Reason: reason})
		},
	}
}

func (r *outcomeRecorder) add(o auth.PollOutcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, o)
}

func (r *outcomeRecorder) all() []auth.PollOutcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]auth.PollOutcome(nil), r.outcomes...)
}

// memStore is an in-memory credential.Store.
type memStore struct {
	mu     sync.Mutex
	record *domain.Authorization
	saves  int
	err    error
}

func (s *memStore) Load() (*domain.Authorization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.record == nil {
		return nil, s.err
	}
	a := *s.record
	return &a, s.err
}

func (s *memStore) Save(a domain.Authorization) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if s.err != nil {
		return s.err
	}
	s.record = &a
	return nil
}

func (s *memStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func waitClosed(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not finish in time")
	}
}

func testAuthorization(token string) domain.Authorization {
	return domain.Authorization{
		AccessToken:  token,
		RefreshToken: token + "_refresh",
		TokenType:    "bearer",
		CreatedAt:    1700000000,
		ExpiresIn:    7776000,
	}
}
