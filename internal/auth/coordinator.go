package auth

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/waabox/watchsweep/internal/credential"
	"github.com/waabox/watchsweep/internal/domain"
	"github.com/waabox/watchsweep/internal/logging"
)

// Coordinator owns the live Authorization and serialises device authorization attempts.
// At most one attempt polls at a time; a concurrent Authenticate fails fast with ErrAuthInProgress.
type Coordinator struct {
	flow       DeviceFlow
	store      credential.Store
	notifier   Notifier
	log        logrus.FieldLogger
	onPoll     func() bool
	pollerOpts []PollerOption

	inProgress atomic.Bool

	mu      sync.Mutex
	state   State
	authz   *domain.Authorization
	failure error
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithNotifier sets where authentication progress is reported.
func WithNotifier(n Notifier) CoordinatorOption {
	return func(c *Coordinator) { c.notifier = n }
}

// WithLogger sets the logger. It is also handed to the poller.
func WithLogger(log logrus.FieldLogger) CoordinatorOption {
	return func(c *Coordinator) { c.log = log }
}

// WithPollHook installs a hook consulted before every token poll; returning false aborts the attempt.
func WithPollHook(fn func() bool) CoordinatorOption {
	return func(c *Coordinator) { c.onPoll = fn }
}

// WithPollerOptions passes options through to every DevicePoller the coordinator builds.
func WithPollerOptions(opts ...PollerOption) CoordinatorOption {
	return func(c *Coordinator) { c.pollerOpts = append(c.pollerOpts, opts...) }
}

// NewCoordinator creates a Coordinator over flow and store.
func NewCoordinator(flow DeviceFlow, store credential.Store, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		flow:     flow,
		store:    store,
		notifier: nopNotifier{},
		log:      logging.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run returns the stored Authorization when one is present, otherwise it authenticates.
// A stored record is returned even if it has expired; refresh happens on use.
func (c *Coordinator) Run(ctx context.Context) (domain.Authorization, error) {
	stored, err := c.store.Load()
	if err != nil {
		return domain.Authorization{}, fmt.Errorf("loading credentials: %w", err)
	}
	if stored != nil && stored.Usable() {
		c.mu.Lock()
		a := *stored
		c.authz = &a
		c.mu.Unlock()
		c.log.Debug("using stored authorization")
		return *stored, nil
	}
	return c.Authenticate(ctx)
}

// Authenticate runs one device authorization attempt and blocks until it ends.
// It returns ErrAuthExpired or an error wrapping ErrAuthAborted when no Authorization was obtained.
func (c *Coordinator) Authenticate(ctx context.Context) (domain.Authorization, error) {
	if !c.inProgress.CompareAndSwap(false, true) {
		c.log.Warn("authentication already started")
		return domain.Authorization{}, ErrAuthInProgress
	}
	defer c.inProgress.Store(false)

	c.mu.Lock()
	c.state = StatePolling
	c.failure = nil
	c.mu.Unlock()

	outcome := make(chan PollOutcome, 1)
	poller := NewDevicePoller(c.flow, Callbacks{
		OnCode: c.notifier.ShowCode,
		OnPoll: c.onPoll,
		OnAuthenticated: func(a domain.Authorization) {
			c.finish(outcome, PollOutcome{Kind: OutcomeAuthenticated, Authorization: a})
		},
		OnExpired: func() {
			c.finish(outcome, PollOutcome{Kind: OutcomeExpired})
		},
		OnAborted: func(reason error) {
			c.finish(outcome, PollOutcome{Kind: OutcomeAborted, Reason: reason})
		},
	}, append([]PollerOption{WithPollerLogger(c.log)}, c.pollerOpts...)...)

	code, err := poller.RequestDeviceCode(ctx)
	if err != nil {
		c.mu.Lock()
		c.state = StateFailed
		c.failure = err
		c.mu.Unlock()
		return domain.Authorization{}, fmt.Errorf("requesting device code: %w", err)
	}
	poller.Start(ctx, code)

	result := <-outcome
	switch result.Kind {
	case OutcomeAuthenticated:
		c.log.Info("authenticated with trakt")
		c.notifier.Authenticated()
		return result.Authorization, nil
	case OutcomeExpired:
		c.log.Info("device code expired before authorization")
		c.notifier.Expired()
		return domain.Authorization{}, ErrAuthExpired
	default:
		c.log.WithError(result.Reason).Warn("authentication aborted")
		c.notifier.Aborted(result.Reason)
		return domain.Authorization{}, fmt.Errorf("%w: %w", ErrAuthAborted, result.Reason)
	}
}

// finish records the terminal outcome and hands it to the waiting caller.
// State, Authorization and the send all happen under c.mu.
func (c *Coordinator) finish(outcome chan<- PollOutcome, o PollOutcome) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch o.Kind {
	case OutcomeAuthenticated:
		a := o.Authorization
		c.authz = &a
		c.state = StateResolved
		if err := c.store.Save(a); err != nil {
			c.log.WithError(err).Warn("authorized but could not save credentials; you will need to re-authenticate next run")
		}
	case OutcomeExpired:
		c.state = StateFailed
		c.failure = ErrAuthExpired
	default:
		c.state = StateFailed
		c.failure = o.Reason
	}
	outcome <- o
}

// TokenRefreshed replaces the live Authorization after a refresh and persists it.
// It never changes State.
func (c *Coordinator) TokenRefreshed(a domain.Authorization) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.authz = &a
	if err := c.store.Save(a); err != nil {
		c.log.WithError(err).Warn("token refreshed but could not save credentials")
		return
	}
	c.log.Debug("refreshed authorization saved")
}

// State returns the current lifecycle state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Failure returns why the last attempt failed, or nil.
func (c *Coordinator) Failure() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failure
}

// Authorization returns the live Authorization and whether one is set.
func (c *Coordinator) Authorization() (domain.Authorization, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.authz == nil {
		return domain.Authorization{}, false
	}
	return *c.authz, true
}
