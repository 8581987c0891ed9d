package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/waabox/watchsweep/internal/domain"
	"github.com/waabox/watchsweep/internal/logging"
)

const (
	defaultPollInterval = 5   // seconds
	defaultCodeLifetime = 600 // seconds
	defaultMaxFailures  = 10
	slowDownStep        = 5 // seconds added per slow-down response
)

// DeviceFlow is the provider side of the device authorization protocol.
type DeviceFlow interface {
	RequestCode(ctx context.Context) (DeviceCode, error)
	CheckToken(ctx context.Context, deviceCode string) (TokenStatus, domain.Authorization, error)
}

// Callbacks receive the poller's lifecycle events. Every field is optional.
// Exactly one of OnAuthenticated, OnExpired and OnAborted fires per Start.
type Callbacks struct {
	OnCode          func(DeviceCode)
	OnPoll          func() bool // return false to stop polling
	OnAuthenticated func(domain.Authorization)
	OnExpired       func()
	OnAborted       func(reason error)
}

// DevicePoller drives one device authorization attempt against a DeviceFlow.
type DevicePoller struct {
	flow        DeviceFlow
	cb          Callbacks
	unit        time.Duration
	maxFailures int
	log         logrus.FieldLogger
	now         func() time.Time
}

// PollerOption configures a DevicePoller.
type PollerOption func(*DevicePoller)

// WithTimeUnit sets the duration of one protocol "second". Tests pass time.Millisecond.
func WithTimeUnit(unit time.Duration) PollerOption {
	return func(p *DevicePoller) { p.unit = unit }
}

// WithMaxFailures sets how many consecutive transient errors end the attempt.
func WithMaxFailures(n int) PollerOption {
	return func(p *DevicePoller) { p.maxFailures = n }
}

// WithPollerLogger sets the logger.
func WithPollerLogger(log logrus.FieldLogger) PollerOption {
	return func(p *DevicePoller) { p.log = log }
}

// WithClock replaces time.Now for the local expiry check.
func WithClock(now func() time.Time) PollerOption {
	return func(p *DevicePoller) { p.now = now }
}

// NewDevicePoller creates a DevicePoller.
func NewDevicePoller(flow DeviceFlow, cb Callbacks, opts ...PollerOption) *DevicePoller {
	p := &DevicePoller{
		flow:        flow,
		cb:          cb,
		unit:        time.Second,
		maxFailures: defaultMaxFailures,
		log:         logging.Discard(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.maxFailures <= 0 {
		p.maxFailures = defaultMaxFailures
	}
	return p
}

// RequestDeviceCode obtains a device code and hands it to OnCode so the user can act on it.
// Errors are returned as-is; the caller decides whether the attempt is over.
func (p *DevicePoller) RequestDeviceCode(ctx context.Context) (DeviceCode, error) {
	code, err := p.flow.RequestCode(ctx)
	if err != nil {
		return DeviceCode{}, err
	}
	if code.Interval <= 0 {
		code.Interval = defaultPollInterval
	}
	if code.ExpiresIn <= 0 {
		code.ExpiresIn = defaultCodeLifetime
	}
	p.log.WithFields(logrus.Fields{
		"user_code":  code.UserCode,
		"url":        code.VerificationURL,
		"expires_in": code.ExpiresIn,
	}).Debug("device code issued")
	if p.cb.OnCode != nil {
		p.cb.OnCode(code)
	}
	return code, nil
}

// Start polls the token endpoint in a new goroutine until a terminal outcome.
// The returned channel is closed once the goroutine has fired its callback and returned.
func (p *DevicePoller) Start(ctx context.Context, code DeviceCode) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.poll(ctx, code)
	}()
	return done
}

func (p *DevicePoller) poll(ctx context.Context, code DeviceCode) {
	seconds := code.Interval
	if seconds <= 0 {
		seconds = defaultPollInterval
	}
	lifetime := code.ExpiresIn
	if lifetime <= 0 {
		lifetime = defaultCodeLifetime
	}
	interval := time.Duration(seconds) * p.unit
	deadline := p.now().Add(time.Duration(lifetime) * p.unit)
	failures := 0

	for attempt := 1; ; attempt++ {
		select {
		case <-ctx.Done():
			p.aborted(ctx.Err())
			return
		case <-time.After(interval):
		}

		if p.cb.OnPoll != nil && !p.cb.OnPoll() {
			p.aborted(ErrPollDeclined)
			return
		}
		if !p.now().Before(deadline) {
			p.expired()
			return
		}

		status, authz, err := p.flow.CheckToken(ctx, code.DeviceCode)
		if err != nil {
			if ctx.Err() != nil {
				p.aborted(ctx.Err())
				return
			}
			var perr *ProviderError
			if errors.As(err, &perr) && !perr.Transient() {
				p.aborted(err)
				return
			}
			failures++
			p.log.WithError(err).WithField("failures", failures).Warn("token poll failed")
			if failures >= p.maxFailures {
				p.aborted(fmt.Errorf("%w: %w", ErrTooManyFailures, err))
				return
			}
			continue
		}
		failures = 0
		p.log.WithFields(logrus.Fields{"attempt": attempt, "status": status}).Debug("token poll")

		switch status {
		case TokenPending:
		case TokenSlowDown:
			interval += slowDownStep * p.unit
		case TokenAuthorized:
			if p.cb.OnAuthenticated != nil {
				p.cb.OnAuthenticated(authz)
			}
			return
		case TokenExpired:
			p.expired()
			return
		case TokenDenied:
			p.aborted(ErrAccessDenied)
			return
		case TokenInvalidCode:
			p.aborted(ErrInvalidDeviceCode)
			return
		case TokenAlreadyUsed:
			p.aborted(ErrCodeAlreadyUsed)
			return
		default:
			p.aborted(fmt.Errorf("unexpected token status %s", status))
			return
		}
	}
}

func (p *DevicePoller) expired() {
	if p.cb.OnExpired != nil {
		p.cb.OnExpired()
	}
}

func (p *DevicePoller) aborted(reason error) {
	if p.cb.OnAborted != nil {
		p.cb.OnAborted(reason)
	}
}
