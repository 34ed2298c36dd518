package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State is the breaker position.
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	}
	return "unknown"
}

var (
	ErrOpen            = errors.New("circuit breaker is open")
	ErrTooManyRequests = errors.New("too many requests in half-open state")
)

// Config tunes trip and recovery behavior.
type Config struct {
	MaxRequests      uint32        // probe budget while half-open
	Interval         time.Duration // streak reset period while closed, 0 keeps streaks forever
	Timeout          time.Duration // how long open lasts before probing
	FailureThreshold uint32        // consecutive failures that trip the breaker
	SuccessThreshold uint32        // consecutive probe successes that close it again
	OnStateChange    func(name string, from, to State)
}

// DefaultConfig is the tuning used for the memory peer.
func DefaultConfig() Config {
	return Config{
		MaxRequests:      3,
		Interval:         60 * time.Second,
		Timeout:          10 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
	}
}

// CircuitBreaker trips after a run of consecutive failures and recovers by
// letting a bounded number of probes through once the open timeout elapses.
// The epoch counter stops a slow request that started before a transition
// from influencing the state after it.
type CircuitBreaker struct {
	name string
	cfg  Config
	log  *zap.Logger

	mu         sync.RWMutex
	state      State
	epoch      uint64
	failStreak uint32
	okStreak   uint32
	probes     uint32
	deadline   time.Time // streak reset while closed, reopen probe while open
}

func New(name string, cfg Config, logger *zap.Logger) *CircuitBreaker {
	cb := &CircuitBreaker{name: name, cfg: cfg, log: logger}
	if cfg.Interval > 0 {
		cb.deadline = time.Now().Add(cfg.Interval)
	}
	return cb
}

// Execute runs fn if the breaker admits it and records the outcome. A panic
// inside fn counts as a failure and is re-raised.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	epoch, err := cb.admit(time.Now())
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			cb.settle(epoch, false)
			panic(r)
		}
	}()

	err = fn()
	cb.settle(epoch, err == nil)
	return err
}

// State reports the breaker position, advancing open to half-open if the
// timeout has already elapsed.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.tick(time.Now())
	return cb.state
}

// admit decides whether a request may proceed and returns the epoch the
// caller must hand back to settle.
func (cb *CircuitBreaker) admit(now time.Time) (uint64, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.tick(now)

	switch cb.state {
	case StateOpen:
		return cb.epoch, ErrOpen
	case StateHalfOpen:
		if cb.probes >= cb.cfg.MaxRequests {
			return cb.epoch, ErrTooManyRequests
		}
		cb.probes++
	}
	return cb.epoch, nil
}

// settle records a request outcome. Outcomes from a prior epoch are dropped.
func (cb *CircuitBreaker) settle(epoch uint64, ok bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := time.Now()
	cb.tick(now)
	if epoch != cb.epoch {
		return
	}

	switch {
	case ok && cb.state == StateHalfOpen:
		cb.okStreak++
		if cb.okStreak >= cb.cfg.SuccessThreshold {
			cb.transition(StateClosed, now)
		}
	case ok:
		cb.failStreak = 0
	case cb.state == StateHalfOpen:
		cb.transition(StateOpen, now)
	default:
		cb.failStreak++
		if cb.failStreak >= cb.cfg.FailureThreshold {
			cb.transition(StateOpen, now)
		}
	}
}

// tick advances time-driven transitions. Caller holds the lock.
func (cb *CircuitBreaker) tick(now time.Time) {
	switch cb.state {
	case StateClosed:
		if !cb.deadline.IsZero() && now.After(cb.deadline) {
			cb.failStreak = 0
			cb.epoch++
			cb.deadline = now.Add(cb.cfg.Interval)
		}
	case StateOpen:
		if now.After(cb.deadline) {
			cb.transition(StateHalfOpen, now)
		}
	}
}

func (cb *CircuitBreaker) transition(to State, now time.Time) {
	from := cb.state
	if from == to {
		return
	}

	cb.state = to
	cb.epoch++
	cb.failStreak = 0
	cb.okStreak = 0
	cb.probes = 0

	switch to {
	case StateOpen:
		cb.deadline = now.Add(cb.cfg.Timeout)
	case StateClosed:
		if cb.cfg.Interval > 0 {
			cb.deadline = now.Add(cb.cfg.Interval)
		} else {
			cb.deadline = time.Time{}
		}
	default:
		cb.deadline = time.Time{}
	}

	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.name, from, to)
	}
	cb.log.Info("Circuit breaker state changed",
		zap.String("name", cb.name),
		zap.String("from", from.String()),
		zap.String("to", to.String()),
	)
}
