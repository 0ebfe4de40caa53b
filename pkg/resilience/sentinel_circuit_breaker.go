// Package resilience provides fault tolerance for outbound delivery calls.
package resilience

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// BreakerState represents the state of a circuit breaker.
type BreakerState int32

const (
	StateClosed   BreakerState = iota // Normal operation, calls pass through
	StateOpen                         // Circuit open, calls fail immediately
	StateHalfOpen                     // Probing whether the channel recovered
)

func (s BreakerState) String() string {
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

// Errors returned by the circuit breaker.
var (
	ErrBreakerOpen     = errors.New("circuit breaker is open")
	ErrTooManyProbes   = errors.New("too many probe requests in half-open state")
	ErrContextCanceled = errors.New("call canceled before execution")
)

// BreakerConfig holds configuration for a circuit breaker.
type BreakerConfig struct {
	Name             string        // Channel name for logging/metrics
	FailureThreshold int           // Consecutive failures before opening (default: 5)
	SuccessThreshold int           // Probe successes to close from half-open (default: 2)
	OpenTimeout      time.Duration // Time to wait before half-open (default: 30s)
	MaxProbes        int           // Max concurrent probes in half-open (default: 1)
}

// DefaultBreakerConfig returns sensible defaults for a delivery channel.
func DefaultBreakerConfig(name string) *BreakerConfig {
	return &BreakerConfig{
		Name:             name,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		OpenTimeout:      30 * time.Second,
		MaxProbes:        1,
	}
}

// Breaker implements the circuit breaker pattern for one delivery channel.
type Breaker struct {
	name string

	state        int32 // atomic: BreakerState
	failureCount int32 // atomic
	successCount int32 // atomic
	probeCount   int32 // atomic

	failureThreshold int
	successThreshold int
	openTimeout      time.Duration
	maxProbes        int

	lastFailure time.Time
	mu          sync.RWMutex

	onStateChange func(name string, from, to BreakerState)
}

// NewBreaker creates a new circuit breaker with the given config.
func NewBreaker(cfg *BreakerConfig) *Breaker {
	if cfg == nil {
		cfg = DefaultBreakerConfig("default")
	}

	return &Breaker{
		name:             cfg.Name,
		state:            int32(StateClosed),
		failureThreshold: cfg.FailureThreshold,
		successThreshold: cfg.SuccessThreshold,
		openTimeout:      cfg.OpenTimeout,
		maxProbes:        cfg.MaxProbes,
	}
}

// OnStateChange sets a callback for state transitions.
func (b *Breaker) OnStateChange(fn func(name string, from, to BreakerState)) {
	b.mu.Lock()
	b.onStateChange = fn
	b.mu.Unlock()
}

// State returns the current state.
func (b *Breaker) State() BreakerState {
	return BreakerState(atomic.LoadInt32(&b.state))
}

// Name returns the breaker name.
func (b *Breaker) Name() string {
	return b.name
}

// Do runs fn with circuit breaker protection. The context is checked
// before execution so a canceled dispatch does not count as a channel
// failure.
func (b *Breaker) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return ErrContextCanceled
	}
	if err := b.beforeCall(); err != nil {
		return err
	}

	err := fn(ctx)
	if errors.Is(err, context.Canceled) {
		// Caller gave up; the channel itself is not at fault.
		b.releaseProbe()
		return err
	}
	b.afterCall(err)
	return err
}

// beforeCall checks whether the call should be allowed.
func (b *Breaker) beforeCall() error {
	switch b.State() {
	case StateClosed:
		return nil

	case StateOpen:
		b.mu.RLock()
		lastFailure := b.lastFailure
		b.mu.RUnlock()

		if time.Since(lastFailure) > b.openTimeout {
			b.setState(StateHalfOpen)
			atomic.StoreInt32(&b.probeCount, 0)
			atomic.StoreInt32(&b.successCount, 0)
			return nil
		}
		return ErrBreakerOpen

	case StateHalfOpen:
		current := atomic.AddInt32(&b.probeCount, 1)
		if int(current) > b.maxProbes {
			atomic.AddInt32(&b.probeCount, -1)
			return ErrTooManyProbes
		}
		return nil
	}

	return nil
}

// afterCall updates state based on the call result.
func (b *Breaker) afterCall(err error) {
	state := b.State()

	if err != nil {
		b.recordFailure()

		switch state {
		case StateClosed:
			failures := atomic.LoadInt32(&b.failureCount)
			if int(failures) >= b.failureThreshold {
				b.setState(StateOpen)
			}

		case StateHalfOpen:
			// Any probe failure reopens the circuit.
			b.setState(StateOpen)
			atomic.AddInt32(&b.probeCount, -1)
		}
	} else {
		b.recordSuccess()

		if state == StateHalfOpen {
			atomic.AddInt32(&b.probeCount, -1)
			successes := atomic.LoadInt32(&b.successCount)
			if int(successes) >= b.successThreshold {
				b.setState(StateClosed)
			}
		}
	}
}

func (b *Breaker) releaseProbe() {
	if b.State() == StateHalfOpen {
		atomic.AddInt32(&b.probeCount, -1)
	}
}

func (b *Breaker) recordFailure() {
	atomic.AddInt32(&b.failureCount, 1)
	atomic.StoreInt32(&b.successCount, 0)

	b.mu.Lock()
	b.lastFailure = time.Now()
	b.mu.Unlock()
}

func (b *Breaker) recordSuccess() {
	atomic.AddInt32(&b.successCount, 1)

	if b.State() == StateClosed {
		atomic.StoreInt32(&b.failureCount, 0)
	}
}

// setState atomically sets the state and triggers the callback.
func (b *Breaker) setState(newState BreakerState) {
	oldState := BreakerState(atomic.SwapInt32(&b.state, int32(newState)))

	if oldState != newState {
		atomic.StoreInt32(&b.failureCount, 0)
		atomic.StoreInt32(&b.successCount, 0)

		b.mu.RLock()
		callback := b.onStateChange
		b.mu.RUnlock()

		if callback != nil {
			callback(b.name, oldState, newState)
		}
	}
}

// Reset forces the breaker to closed state.
func (b *Breaker) Reset() {
	b.setState(StateClosed)
	atomic.StoreInt32(&b.failureCount, 0)
	atomic.StoreInt32(&b.successCount, 0)
	atomic.StoreInt32(&b.probeCount, 0)
}

// BreakerStats is a snapshot of breaker counters.
type BreakerStats struct {
	Name        string
	State       string
	Failures    int
	Successes   int
	LastFailure time.Time
	ProbeCount  int
}

// Stats returns the current snapshot.
func (b *Breaker) Stats() BreakerStats {
	b.mu.RLock()
	lastFailure := b.lastFailure
	b.mu.RUnlock()

	return BreakerStats{
		Name:        b.name,
		State:       b.State().String(),
		Failures:    int(atomic.LoadInt32(&b.failureCount)),
		Successes:   int(atomic.LoadInt32(&b.successCount)),
		LastFailure: lastFailure,
		ProbeCount:  int(atomic.LoadInt32(&b.probeCount)),
	}
}

// Registry holds one breaker per delivery channel.
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
	defaults func(name string) *BreakerConfig
}

// NewRegistry creates a registry. The provided factory supplies the
// config for channels seen for the first time; nil uses defaults.
func NewRegistry(defaults func(name string) *BreakerConfig) *Registry {
	if defaults == nil {
		defaults = DefaultBreakerConfig
	}
	return &Registry{
		breakers: make(map[string]*Breaker),
		defaults: defaults,
	}
}

// Get returns the breaker for a channel, creating it on first use.
func (r *Registry) Get(name string) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[name]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[name]; ok {
		return b
	}
	b = NewBreaker(r.defaults(name))
	r.breakers[name] = b
	return b
}

// AllStats returns statistics for every registered breaker.
func (r *Registry) AllStats() []BreakerStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := make([]BreakerStats, 0, len(r.breakers))
	for _, b := range r.breakers {
		stats = append(stats, b.Stats())
	}
	return stats
}
