// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

/*
Package deviceflow drives the polling half of the OAuth2 device authorization grant.

A Machine starts in Initiated once the device code has been issued and moves to Polling on the
first poll. It ends in exactly one terminal state:

	Succeeded  the user signed in and tokens were issued
	Denied     the user refused (access_denied), reported as UserDeclined
	Expired    expired_token or the device code lifetime passed, reported as DeviceFlowExpired
	Failed     any other error

Polls are never closer together than the current interval, and the interval only grows.
*/
package deviceflow

import (
	"context"
	stderrors "errors"
	"fmt"
	"math"
	"time"

	"github.com/himmelblau-idm/msal-go/apps/errors"
	"github.com/himmelblau-idm/msal-go/apps/internal/oauth/ops/accesstokens"
	"github.com/himmelblau-idm/msal-go/apps/internal/slog"
)

// State is the lifecycle state of a device code flow.
type State int

const (
	Initiated State = iota
	Polling
	Succeeded
	Denied
	Expired
	Failed
)

func (s State) String() string {
	switch s {
	case Initiated:
		return "Initiated"
	case Polling:
		return "Polling"
	case Succeeded:
		return "Succeeded"
	case Denied:
		return "Denied"
	case Expired:
		return "Expired"
	case Failed:
		return "Failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Terminal reports whether s has no outgoing transitions.
func (s State) Terminal() bool {
	return s >= Succeeded
}

// Next returns the state reached from s after a poll that returned err. Terminal states never
// change.
func Next(s State, err error) State {
	if s.Terminal() {
		return s
	}
	if err == nil {
		return Succeeded
	}
	switch errors.KindOf(err) {
	case errors.AuthorizationPending, errors.SlowDown:
		return Polling
	case errors.ExpiredToken, errors.DeviceFlowExpired:
		return Expired
	case errors.AccessDenied, errors.UserDeclined:
		return Denied
	}
	return Failed
}

const (
	// minInterval is the floor applied to the polling interval.
	minInterval = time.Second
	// slowDownStep is added to the interval on every slow_down.
	slowDownStep = 5 * time.Second
	// maxInterval is the ceiling a server supplied interval saturates to.
	maxInterval = time.Duration(math.MaxInt64)
)

// seconds converts n to a Duration, saturating at maxInterval.
func seconds(n int64) time.Duration {
	if n > int64(maxInterval/time.Second) {
		return maxInterval
	}
	return time.Duration(n) * time.Second
}

// Poller issues one device code poll.
type Poller func(ctx context.Context) (accesstokens.TokenResponse, error)

// Sleeper waits for d or until ctx is done, whichever happens first.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the default Sleeper.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Option configures a Machine.
type Option func(m *Machine)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) {
		m.now = now
	}
}

// WithSleeper replaces Sleep.
func WithSleeper(s Sleeper) Option {
	return func(m *Machine) {
		m.sleep = s
	}
}

// WithLogger logs state transitions at debug level.
func WithLogger(l *slog.Logger) Option {
	return func(m *Machine) {
		m.logger = l
	}
}

// Machine polls a single device code until it reaches a terminal state. It is not safe for
// concurrent use.
type Machine struct {
	result   accesstokens.DeviceCodeResult
	poll     Poller
	now      func() time.Time
	sleep    Sleeper
	logger   *slog.Logger
	state    State
	interval time.Duration
	lastPoll time.Time
}

// New creates a Machine in state Initiated for result.
func New(result accesstokens.DeviceCodeResult, poll Poller, options ...Option) *Machine {
	m := &Machine{
		result: result,
		poll:   poll,
		now:    time.Now,
		sleep:  Sleep,
		state:  Initiated,
	}
	for _, o := range options {
		o(m)
	}
	m.interval = seconds(int64(result.Interval))
	if m.interval < minInterval {
		m.interval = minInterval
	}
	return m
}

// State returns the current state.
func (m *Machine) State() State {
	return m.state
}

// Interval returns the current polling interval.
func (m *Machine) Interval() time.Duration {
	return m.interval
}

// Result returns the device code being polled.
func (m *Machine) Result() accesstokens.DeviceCodeResult {
	return m.result
}

func (m *Machine) expired() bool {
	return !m.now().Before(m.result.ExpiresOn)
}

// Run polls until the flow ends. authorization_pending and slow_down are absorbed; every other
// outcome ends the flow. ctx is checked before each sleep and each poll. Once the device code has
// expired, DeviceFlowExpired is returned even if ctx is also done.
func (m *Machine) Run(ctx context.Context) (accesstokens.TokenResponse, error) {
	if m.state.Terminal() {
		return accesstokens.TokenResponse{}, errors.New(errors.ClaimsInvalid, "device code flow already ended in state %s", m.state)
	}
	if m.lastPoll.IsZero() {
		m.lastPoll = m.now()
	}
	for {
		if err := m.precheck(ctx); err != nil {
			return accesstokens.TokenResponse{}, err
		}

		wait := m.lastPoll.Add(m.interval).Sub(m.now())
		if remaining := m.result.ExpiresOn.Sub(m.now()); wait > remaining {
			wait = remaining
		}
		if err := m.sleep(ctx, wait); err != nil {
			if m.expired() {
				return accesstokens.TokenResponse{}, m.expire(nil)
			}
			return accesstokens.TokenResponse{}, err
		}

		if err := m.precheck(ctx); err != nil {
			return accesstokens.TokenResponse{}, err
		}
		// The flow expired during the sleep, or the sleep ended early.
		if m.now().Before(m.lastPoll.Add(m.interval)) {
			continue
		}

		m.lastPoll = m.now()
		tr, err := m.poll(ctx)
		next := Next(m.state, err)
		slog.Debug(ctx, m.logger, "device code poll",
			slog.Field("from", m.state.String()), slog.Field("to", next.String()), slog.Field("kind", errors.KindOf(err).String()))
		m.state = next

		switch next {
		case Succeeded:
			return tr, nil
		case Polling:
			if errors.KindOf(err) == errors.SlowDown {
				m.slowDown(err)
			}
		case Expired:
			return accesstokens.TokenResponse{}, m.expire(err)
		case Denied:
			return accesstokens.TokenResponse{}, errors.Wrap(errors.UserDeclined, err, "user declined the device code sign in")
		default:
			return accesstokens.TokenResponse{}, err
		}
	}
}

// precheck ends the flow if it has expired or ctx is done. Expiry takes precedence.
func (m *Machine) precheck(ctx context.Context) error {
	if m.expired() {
		return m.expire(nil)
	}
	return ctx.Err()
}

func (m *Machine) expire(cause error) error {
	m.state = Expired
	return errors.Wrap(errors.DeviceFlowExpired, cause, "device code expired at %s", m.result.ExpiresOn.Format(time.RFC3339))
}

// slowDown grows the interval by slowDownStep, or to the server supplied interval if larger.
func (m *Machine) slowDown(err error) {
	next := m.interval + slowDownStep
	if next < m.interval {
		next = maxInterval
	}
	var e *errors.Error
	if stderrors.As(err, &e) && e.Interval > 0 {
		if override := seconds(int64(e.Interval)); override > next {
			next = override
		}
	}
	m.interval = next
}
