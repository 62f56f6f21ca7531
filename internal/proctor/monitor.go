// Package proctor tracks integrity signals for one attempt session and
// decides when the attempt must be submitted on the student's behalf.
//
// A Monitor is not safe for concurrent use. It is owned by the goroutine
// that serves the attempt's proctor stream.
package proctor

import (
	"context"
	"time"

	"github.com/stemsi/exstem-quiz/internal/timekeeper"
)

// DefaultTolerance is the violation count that triggers auto-submission.
const DefaultTolerance = 3

// Reason records why a submission was requested.
type Reason string

const (
	ReasonViolations Reason = "violations"
	ReasonTimeUp     Reason = "time_up"
	ReasonManual     Reason = "manual"
)

// EventType classifies the outcome of feeding the monitor.
type EventType string

const (
	EventIgnored          EventType = "ignored"
	EventRecorded         EventType = "recorded"
	EventWarning          EventType = "warning"
	EventTick             EventType = "tick"
	EventSubmitted        EventType = "submitted"
	EventAlreadySubmitted EventType = "already_submitted"
	EventSubmitFailed     EventType = "submit_failed"
)

// Event is returned from every Monitor call.
type Event struct {
	Type       EventType
	Kind       Kind
	Reason     Reason
	Violations int
	// Left is the number of further violations tolerated before auto-submission.
	Left             int
	RemainingSeconds int
	Err              error
}

// SubmitFunc performs the attempt submission.
type SubmitFunc func(ctx context.Context) error

// Config configures a Monitor.
type Config struct {
	Tolerance       int
	StartedAt       time.Time
	DurationMinutes int
	// InitialViolations carries the count over from an earlier connection
	// of the same attempt.
	InitialViolations int
	Submit            SubmitFunc
	// Handled reports whether a submit error means the attempt is already
	// submitted elsewhere.
	Handled func(error) bool
}

type submitState int

const (
	stateIdle submitState = iota
	statePending
	stateDone
)

// Monitor is the per-session proctor state.
type Monitor struct {
	cfg        Config
	violations int
	state      submitState
	reason     Reason
}

// NewMonitor creates a Monitor starting at cfg.InitialViolations. A count
// already at the tolerance leaves the monitor pending, so the next Tick submits.
func NewMonitor(cfg Config) *Monitor {
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = DefaultTolerance
	}
	m := &Monitor{cfg: cfg}
	if cfg.InitialViolations > 0 {
		m.violations = cfg.InitialViolations
	}
	if m.violations >= cfg.Tolerance {
		m.state = statePending
		m.reason = ReasonViolations
	}
	return m
}

// Violations returns the number of counted violations.
func (m *Monitor) Violations() int { return m.violations }

// Done reports whether the attempt has been submitted (by us or elsewhere).
func (m *Monitor) Done() bool { return m.state == stateDone }

// Pending reports whether a submission was requested but has not succeeded.
func (m *Monitor) Pending() bool { return m.state == statePending }

// RemainingSeconds returns the time left on the attempt at now.
func (m *Monitor) RemainingSeconds(now time.Time) int {
	return timekeeper.RemainingSeconds(m.cfg.StartedAt, m.cfg.DurationMinutes, now)
}

// Signal feeds one client signal into the monitor.
func (m *Monitor) Signal(ctx context.Context, kind Kind) Event {
	if m.state == stateDone {
		return Event{Type: EventIgnored, Kind: kind, Violations: m.violations}
	}

	if !kind.IsViolation() {
		return Event{Type: EventRecorded, Kind: kind, Violations: m.violations}
	}

	m.violations++
	if m.violations < m.cfg.Tolerance {
		return Event{
			Type:       EventWarning,
			Kind:       kind,
			Violations: m.violations,
			Left:       m.cfg.Tolerance - m.violations,
		}
	}

	ev := m.request(ctx, ReasonViolations)
	ev.Kind = kind
	return ev
}

// Tick advances the monitor clock. It submits once the time is up and
// retries a submission left pending by an earlier failure.
func (m *Monitor) Tick(ctx context.Context, now time.Time) Event {
	switch m.state {
	case stateDone:
		return Event{Type: EventIgnored, Violations: m.violations}
	case statePending:
		return m.attempt(ctx)
	}

	remaining := m.RemainingSeconds(now)
	if remaining == 0 {
		return m.request(ctx, ReasonTimeUp)
	}
	return Event{Type: EventTick, Violations: m.violations, RemainingSeconds: remaining}
}

// Submit requests a manual submission.
func (m *Monitor) Submit(ctx context.Context) Event {
	if m.state == stateDone {
		return Event{Type: EventIgnored, Violations: m.violations}
	}
	return m.request(ctx, ReasonManual)
}

func (m *Monitor) request(ctx context.Context, reason Reason) Event {
	if m.state == stateIdle {
		m.state = statePending
		m.reason = reason
	}
	return m.attempt(ctx)
}

func (m *Monitor) attempt(ctx context.Context) Event {
	err := m.cfg.Submit(ctx)
	switch {
	case err == nil:
		m.state = stateDone
		return Event{Type: EventSubmitted, Reason: m.reason, Violations: m.violations}
	case m.cfg.Handled != nil && m.cfg.Handled(err):
		m.state = stateDone
		return Event{Type: EventAlreadySubmitted, Reason: m.reason, Violations: m.violations}
	default:
		return Event{Type: EventSubmitFailed, Reason: m.reason, Violations: m.violations, Err: err}
	}
}
