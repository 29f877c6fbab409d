// Package resilience guards calls to the reference store with a circuit breaker so that a
// store outage fails requests fast instead of queueing them behind dead connections.
package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// State is the position of a breaker.
type State int

const (
	StateClosed   State = iota // queries pass
	StateOpen                  // queries are rejected until the cooldown ends
	StateHalfOpen              // one query is let through to test the store
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned for queries rejected while the store is considered down.
var ErrCircuitOpen = eris.New("store circuit is open")

// Config controls when a breaker opens and for how long.
type Config struct {
	// Threshold is the number of consecutive store failures that opens the circuit.
	Threshold int
	// Cooldown is how long the circuit stays open before a trial call is allowed.
	Cooldown time.Duration
	// Trips reports whether an error counts as a store failure. Defaults to IsStoreFailure.
	Trips func(err error) bool
}

// DefaultConfig opens after 5 consecutive failures and lets a trial call through after 30s.
func DefaultConfig() Config {
	return Config{Threshold: 5, Cooldown: 30 * time.Second}
}

// Snapshot is a point-in-time view of a breaker.
type Snapshot struct {
	Store    string    `json:"store"`
	State    string    `json:"state"`
	Failures int       `json:"failures"`
	OpenedAt time.Time `json:"opened_at,omitzero"`
}

// Breaker tracks the health of one reference store. A nil *Breaker lets every call through.
type Breaker struct {
	store string
	cfg   Config
	now   func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	trial    bool
}

// NewBreaker returns a closed breaker for the named store. Zero config fields take their
// defaults.
func NewBreaker(store string, cfg Config) *Breaker {
	def := DefaultConfig()
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	if cfg.Trips == nil {
		cfg.Trips = IsStoreFailure
	}
	return &Breaker{store: store, cfg: cfg, now: time.Now}
}

// Do runs fn unless the circuit is open, and records its outcome.
func Do[T any](ctx context.Context, b *Breaker, fn func(ctx context.Context) (T, error)) (T, error) {
	if b == nil {
		return fn(ctx)
	}
	var zero T
	if err := b.acquire(); err != nil {
		return zero, err
	}
	val, err := fn(ctx)
	b.release(err)
	return val, err
}

// Snapshot reports the current state.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{
		Store:    b.store,
		State:    b.state.String(),
		Failures: b.failures,
		OpenedAt: b.openedAt,
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) acquire() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cfg.Cooldown {
			return ErrCircuitOpen
		}
		b.setState(StateHalfOpen)
		b.trial = true
		return nil
	case StateHalfOpen:
		if b.trial {
			return ErrCircuitOpen
		}
		b.trial = true
		return nil
	default:
		return nil
	}
}

func (b *Breaker) release(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	wasTrial := b.state == StateHalfOpen
	b.trial = false

	if err == nil || !b.cfg.Trips(err) {
		b.failures = 0
		if wasTrial {
			b.openedAt = time.Time{}
			b.setState(StateClosed)
		}
		return
	}

	b.failures++
	if wasTrial || b.failures >= b.cfg.Threshold {
		b.openedAt = b.now()
		b.setState(StateOpen)
	}
}

func (b *Breaker) setState(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	zap.L().Warn("resilience: store circuit changed state",
		zap.String("store", b.store),
		zap.String("from", from.String()),
		zap.String("to", to.String()),
		zap.Int("failures", b.failures),
	)
}
