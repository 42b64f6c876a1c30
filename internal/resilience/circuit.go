package resilience

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-giftshop/internal/obs"
)

// ErrOpenCircuit is returned when the circuit breaker refuses a request.
var ErrOpenCircuit = errors.New("resilience: circuit breaker open")

// State represents the current breaker state.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// BreakerSettings tunes when a breaker trips and how it recovers.
type BreakerSettings struct {
	// Target names the guarded dependency in logs and metrics, e.g. "ga4".
	Target string
	// MinRequests is the sample size needed before the failure ratio is judged.
	MinRequests int
	// FailureRatio in (0,1] at which the breaker opens.
	FailureRatio float64
	// OpenFor is the cool-off before probes are let through.
	OpenFor time.Duration
	// Window clears closed-state counters periodically so old failures age out.
	Window time.Duration
	// Probes is the number of successful half-open calls required to close.
	Probes int
}

func (s BreakerSettings) normalized() BreakerSettings {
	s.Target = strings.TrimSpace(s.Target)
	if s.Target == "" {
		s.Target = "default"
	}
	if s.MinRequests <= 0 {
		s.MinRequests = 1
	}
	if s.FailureRatio <= 0 {
		s.FailureRatio = 0.5
	}
	if s.FailureRatio > 1 {
		s.FailureRatio = 1
	}
	if s.OpenFor <= 0 {
		s.OpenFor = 30 * time.Second
	}
	if s.Window <= 0 {
		s.Window = 2 * s.OpenFor
	}
	if s.Probes <= 0 {
		s.Probes = 1
	}
	return s
}

// Breaker is a failure-ratio circuit breaker. A nil *Breaker lets everything through.
type Breaker struct {
	cfg    BreakerSettings
	logger zerolog.Logger
	now    func() time.Time

	mu        sync.Mutex
	state     State
	requests  int
	failures  int
	windowEnd time.Time
	openUntil time.Time
	inFlight  int
	probesOK  int
}

// NewBreaker builds a closed breaker.
func NewBreaker(settings BreakerSettings, logger zerolog.Logger) *Breaker {
	b := &Breaker{cfg: settings.normalized(), logger: logger, now: time.Now}
	b.windowEnd = b.now().Add(b.cfg.Window)
	breakerState.WithLabelValues(b.cfg.Target).Set(gaugeValue(Closed))
	return b
}

// Target returns the dependency label.
func (b *Breaker) Target() string {
	if b == nil {
		return "default"
	}
	return b.cfg.Target
}

// State returns the current state, promoting an expired open breaker to half-open.
func (b *Breaker) State() State {
	if b == nil {
		return Closed
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.advanceLocked(context.Background())
	return b.state
}

// Allow reserves a slot for one call. It returns ErrOpenCircuit while the
// breaker is open, or when every half-open probe slot is taken.
func (b *Breaker) Allow(ctx context.Context) error {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.advanceLocked(ctx)

	switch b.state {
	case Open:
		return ErrOpenCircuit
	case HalfOpen:
		if b.inFlight >= b.cfg.Probes {
			return ErrOpenCircuit
		}
	}
	b.inFlight++
	return nil
}

// Report releases the slot taken by Allow and records whether the call failed.
func (b *Breaker) Report(ctx context.Context, err error) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.inFlight > 0 {
		b.inFlight--
	}
	b.advanceLocked(ctx)

	switch b.state {
	case Open:
		return
	case HalfOpen:
		if err != nil {
			b.setStateLocked(ctx, Open)
			return
		}
		b.probesOK++
		if b.probesOK >= b.cfg.Probes {
			b.setStateLocked(ctx, Closed)
		}
		return
	}

	b.requests++
	if err != nil {
		b.failures++
	}
	if b.requests < b.cfg.MinRequests {
		return
	}
	if float64(b.failures)/float64(b.requests) >= b.cfg.FailureRatio {
		b.setStateLocked(ctx, Open)
	}
}

// advanceLocked applies time-based transitions.
func (b *Breaker) advanceLocked(ctx context.Context) {
	now := b.now()
	switch b.state {
	case Open:
		if !now.Before(b.openUntil) {
			b.setStateLocked(ctx, HalfOpen)
		}
	case Closed:
		if !now.Before(b.windowEnd) {
			b.requests, b.failures = 0, 0
			b.windowEnd = now.Add(b.cfg.Window)
		}
	}
}

func (b *Breaker) setStateLocked(ctx context.Context, next State) {
	prev := b.state
	if prev == next {
		return
	}
	now := b.now()
	b.state = next
	b.requests, b.failures, b.probesOK = 0, 0, 0
	switch next {
	case Open:
		b.openUntil = now.Add(b.cfg.OpenFor)
		breakerOpened.WithLabelValues(b.cfg.Target).Inc()
	case Closed:
		b.windowEnd = now.Add(b.cfg.Window)
	}

	breakerState.WithLabelValues(b.cfg.Target).Set(gaugeValue(next))
	breakerTransitions.WithLabelValues(b.cfg.Target, prev.String(), next.String()).Inc()

	logger := obs.LoggerFrom(ctx, b.logger)
	evt := logger.Warn()
	if next == Closed {
		evt = logger.Info()
	}
	evt.Str("target", b.cfg.Target).
		Str("from_state", prev.String()).
		Str("to_state", next.String()).
		Msg("breaker_transition")
}

func gaugeValue(state State) float64 {
	switch state {
	case Closed:
		return 0
	case Open:
		return 1
	case HalfOpen:
		return 2
	default:
		return -1
	}
}
