// streamaggregator - platform-agnostic live stream ingestion engine
// SPDX-License-Identifier: Apache-2.0
// https://github.com/tomtom215/streamaggregator

package connector

import (
	"errors"
	"fmt"
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/streamaggregator/internal/logging"
	"github.com/tomtom215/streamaggregator/internal/metrics"
)

// State is the operator-facing status of a connector, distinct from
// gobreaker's own closed/half-open/open vocabulary (which is used only at
// the metrics-label translation layer, see stateToFloat/stateToString).
// Mirrors original_source/backend/connectors/base.py's ConnectorStatus.
type State int

const (
	StateActive State = iota
	StatePaused
	StateError
	StateDisabled
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "ACTIVE"
	case StatePaused:
		return "PAUSED"
	case StateError:
		return "ERROR"
	case StateDisabled:
		return "DISABLED"
	default:
		return "UNKNOWN"
	}
}

func (s State) metricValue() float64 {
	return float64(s)
}

// ErrDisabled is returned by Governor.Execute when the connector has been
// administratively disabled.
var ErrDisabled = errors.New("connector: disabled")

// ErrQuotaExhausted is returned when ConsumeQuota would exceed the daily
// limit.
var ErrQuotaExhausted = errors.New("connector: quota exhausted")

// StatusInfo is the JSON-serializable snapshot surfaced at
// /debug/connectors (spec.md §10, grounded on base.py's get_status_info).
type StatusInfo struct {
	Name           string  `json:"name"`
	State          string  `json:"state"`
	QuotaConsumed  int     `json:"quota_consumed"`
	QuotaLimit     int     `json:"quota_limit"`
	QuotaRemaining int     `json:"quota_remaining"`
	ErrorCount     int     `json:"error_count"`
	PausedUntil    *string `json:"paused_until,omitempty"`
}

// Governor wraps a connector with quota accounting and circuit breaking.
// It is safe for concurrent use.
//
// Quota exhaustion and breaker trips both move the connector to StatePaused,
// mirroring original_source/backend/connectors/base.py's pause_connector:
// each sets a cool-off deadline the connector auto-resumes from once it
// passes, independent of an explicit ResetQuota (driven by the scheduler's
// daily cron task) or gobreaker's own half-open trial succeeding.
type Governor struct {
	name string

	mu               sync.Mutex
	quotaConsumed    int
	quotaLimit       int
	disabled         bool
	pausedUntil      time.Time
	quotaPausedUntil time.Time

	cb *gobreaker.CircuitBreaker[any]
}

// quotaCooldown is the default cool-off after a quota-exhaustion pause
// (original_source/backend/connectors/base.py's pause_connector default
// duration_seconds=300), independent of the breaker's own consecutive
// -failure cooldown (GovernorConfig.Timeout).
const quotaCooldown = 300 * time.Second

// GovernorConfig configures a new Governor.
type GovernorConfig struct {
	// Name labels this governor's metrics and log lines, e.g. "helix" or
	// "torrent".
	Name string
	// QuotaLimit is the daily unit ceiling. Zero means unmetered (Torrent
	// is rate-budgeted, not quota-metered, so it passes 0 here).
	QuotaLimit int
	// Disabled marks the connector as administratively off (e.g. the
	// platform is not enabled in config).
	Disabled bool
	// MaxRequests is gobreaker's half-open trial request allowance.
	MaxRequests uint32
	// Interval is gobreaker's closed-state failure count reset window.
	Interval time.Duration
	// Timeout is gobreaker's open-state cooldown before trying half-open.
	Timeout time.Duration
	// ConsecutiveFailuresToTrip opens the breaker once this many
	// consecutive requests fail.
	ConsecutiveFailuresToTrip uint32
}

// NewGovernor builds a Governor with the given configuration, defaulting
// any zero-valued tuning knobs to sane values.
func NewGovernor(cfg GovernorConfig) *Governor {
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = 1
	}
	if cfg.Interval == 0 {
		cfg.Interval = time.Minute
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Minute
	}
	if cfg.ConsecutiveFailuresToTrip == 0 {
		cfg.ConsecutiveFailuresToTrip = 5
	}

	g := &Governor{
		name:       cfg.Name,
		quotaLimit: cfg.QuotaLimit,
		disabled:   cfg.Disabled,
	}

	initial := StateActive
	if cfg.Disabled {
		initial = StateDisabled
	}
	metrics.CircuitBreakerState.WithLabelValues(g.name).Set(initial.metricValue())
	if cfg.QuotaLimit > 0 {
		metrics.QuotaLimit.WithLabelValues(g.name).Set(float64(cfg.QuotaLimit))
	}

	g.cb = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailuresToTrip
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			fromState, toState := breakerStateToGovernorState(from), breakerStateToGovernorState(to)
			logging.Info().Str("connector", name).Str("from", fromState.String()).Str("to", toState.String()).Msg("connector breaker state transition")
			metrics.RecordCircuitBreakerTransition(name, fromState.String(), toState.String(), toState.metricValue())
		},
	})

	return g
}

func breakerStateToGovernorState(s gobreaker.State) State {
	switch s {
	case gobreaker.StateClosed, gobreaker.StateHalfOpen:
		return StateActive
	case gobreaker.StateOpen:
		return StatePaused
	default:
		return StateActive
	}
}

// ForcePause trips the governor into StatePaused until the given instant,
// independent of gobreaker's consecutive-failure counting. This is the
// rate-limit-proximity trip spec.md §7 describes for header-budgeted
// platforms: a single response signals the remaining budget is below a
// safety threshold, and the connector must stop until the upstream's
// declared reset time, not after N further failures.
func (g *Governor) ForcePause(until time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pausedUntil = until
	logging.Warn().Str("connector", g.name).Time("until", until).Msg("connector force-paused")
	metrics.CircuitBreakerState.WithLabelValues(g.name).Set(StatePaused.metricValue())
}

func (g *Governor) forcedPauseActive() bool {
	return !g.pausedUntil.IsZero() && time.Now().Before(g.pausedUntil)
}

func (g *Governor) quotaPauseActive() bool {
	return !g.quotaPausedUntil.IsZero() && time.Now().Before(g.quotaPausedUntil)
}

// Execute runs fn through the circuit breaker and records request-outcome
// metrics, counting gobreaker's open-state and too-many-requests errors as
// rejections. Errors are returned to the caller unchanged.
func (g *Governor) Execute(fn func() (any, error)) (any, error) {
	g.mu.Lock()
	disabled := g.disabled
	paused := g.forcedPauseActive()
	g.mu.Unlock()
	if disabled {
		return nil, ErrDisabled
	}
	if paused {
		metrics.RecordConnectorRequest(g.name, "rejected")
		return nil, fmt.Errorf("connector: %s force-paused", g.name)
	}

	result, err := g.cb.Execute(fn)
	switch {
	case err == nil:
		metrics.RecordConnectorRequest(g.name, "success")
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.RecordConnectorRequest(g.name, "rejected")
	default:
		metrics.RecordConnectorRequest(g.name, "failure")
	}
	return result, err
}

// ConsumeQuota attempts to reserve units against the daily quota. It
// returns ErrQuotaExhausted and moves the governor to StatePaused for
// quotaCooldown if the reservation would exceed QuotaLimit — the same
// pause/auto-resume mechanism ForcePause uses, so the connector retries on
// its own once the cool-off passes rather than staying down until the next
// daily reset-daily-quotas run. A zero QuotaLimit means unmetered and
// always succeeds.
func (g *Governor) ConsumeQuota(units int) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.quotaLimit == 0 {
		return nil
	}
	if g.quotaConsumed+units > g.quotaLimit {
		logging.Warn().Str("connector", g.name).Int("consumed", g.quotaConsumed).Int("limit", g.quotaLimit).Msg("connector quota exhausted")
		g.quotaPausedUntil = time.Now().Add(quotaCooldown)
		metrics.CircuitBreakerState.WithLabelValues(g.name).Set(StatePaused.metricValue())
		return fmt.Errorf("%w: %s %d/%d", ErrQuotaExhausted, g.name, g.quotaConsumed, g.quotaLimit)
	}

	g.quotaConsumed += units
	metrics.QuotaConsumed.WithLabelValues(g.name).Set(float64(g.quotaConsumed))
	return nil
}

// ResetQuota clears the quota counter and any quota-exhaustion pause.
// Called by the scheduler's daily reset-daily-quotas maintenance task
// (spec.md §4.3), and usable as an explicit early resume too.
func (g *Governor) ResetQuota() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.quotaConsumed = 0
	g.quotaPausedUntil = time.Time{}
	metrics.QuotaConsumed.WithLabelValues(g.name).Set(0)
	logging.Info().Str("connector", g.name).Msg("connector quota reset")
}

// IsOperational reports whether the governor will currently accept work:
// not administratively disabled, not paused (forced, quota-exhausted, or
// breaker-tripped).
func (g *Governor) IsOperational() bool {
	g.mu.Lock()
	disabled := g.disabled
	paused := g.forcedPauseActive() || g.quotaPauseActive()
	g.mu.Unlock()
	if disabled || paused {
		return false
	}
	return g.cb.State() != gobreaker.StateOpen
}

// State reports the current operator-facing state.
func (g *Governor) State() State {
	g.mu.Lock()
	disabled := g.disabled
	paused := g.forcedPauseActive() || g.quotaPauseActive()
	g.mu.Unlock()

	switch {
	case disabled:
		return StateDisabled
	case paused, g.cb.State() == gobreaker.StateOpen:
		return StatePaused
	default:
		return StateActive
	}
}

// StatusInfo returns the operator-visible snapshot for /debug/connectors.
func (g *Governor) StatusInfo() StatusInfo {
	g.mu.Lock()
	defer g.mu.Unlock()

	remaining := 0
	if g.quotaLimit > 0 {
		remaining = g.quotaLimit - g.quotaConsumed
		if remaining < 0 {
			remaining = 0
		}
	}

	forcedPaused := g.forcedPauseActive()
	quotaPaused := g.quotaPauseActive()
	paused := forcedPaused || quotaPaused
	var state State
	switch {
	case g.disabled:
		state = StateDisabled
	case paused, g.cb.State() == gobreaker.StateOpen:
		state = StatePaused
	default:
		state = StateActive
	}

	info := StatusInfo{
		Name:           g.name,
		State:          state.String(),
		QuotaConsumed:  g.quotaConsumed,
		QuotaLimit:     g.quotaLimit,
		QuotaRemaining: remaining,
		ErrorCount:     int(g.cb.Counts().ConsecutiveFailures),
	}
	switch {
	case quotaPaused && (!forcedPaused || g.quotaPausedUntil.After(g.pausedUntil)):
		until := g.quotaPausedUntil.Format(time.RFC3339)
		info.PausedUntil = &until
	case forcedPaused:
		until := g.pausedUntil.Format(time.RFC3339)
		info.PausedUntil = &until
	}
	return info
}

// CastResult type-asserts a Governor.Execute result. Mirrors the teacher's
// castResult generic helper in internal/sync/circuit_breaker.go, exported
// here so platform adapters outside this package can reuse it.
func CastResult[T any](result any, err error) (*T, error) {
	if err != nil {
		return nil, err
	}
	typed, ok := result.(*T)
	if !ok {
		return nil, fmt.Errorf("connector: unexpected result type %T", result)
	}
	return typed, nil
}
