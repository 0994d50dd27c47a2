package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned without calling fn while the breaker is open.
var ErrOpen = errors.New("circuit breaker is open")

type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

type Settings struct {
	Name string
	// MaxFailures consecutive failures open the breaker.
	MaxFailures int
	// Interval after which an isolated failure is forgotten while closed.
	Interval time.Duration
	// Timeout the breaker stays open before letting a probe through.
	Timeout time.Duration
}

type CircuitBreaker struct {
	name        string
	maxFailures int
	interval    time.Duration
	timeout     time.Duration
	failures    int
	lastFailure time.Time
	state       State
	now         func() time.Time
	mu          sync.Mutex
}

func NewCircuitBreaker(settings Settings) *CircuitBreaker {
	if settings.MaxFailures <= 0 {
		settings.MaxFailures = 5
	}
	if settings.Timeout <= 0 {
		settings.Timeout = 30 * time.Second
	}
	return &CircuitBreaker{
		name:        settings.Name,
		maxFailures: settings.MaxFailures,
		interval:    settings.Interval,
		timeout:     settings.Timeout,
		state:       StateClosed,
		now:         time.Now,
	}
}

func (cb *CircuitBreaker) Name() string {
	return cb.name
}

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.currentState()
}

func (cb *CircuitBreaker) currentState() State {
	if cb.state == StateOpen && cb.now().Sub(cb.lastFailure) > cb.timeout {
		cb.state = StateHalfOpen
	}
	return cb.state
}

func (cb *CircuitBreaker) Execute(fn func() error) error {
	cb.mu.Lock()
	if cb.currentState() == StateOpen {
		cb.mu.Unlock()
		return ErrOpen
	}
	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		now := cb.now()
		if cb.interval > 0 && now.Sub(cb.lastFailure) > cb.interval {
			cb.failures = 0
		}
		cb.failures++
		cb.lastFailure = now
		if cb.state == StateHalfOpen || cb.failures >= cb.maxFailures {
			cb.state = StateOpen
		}
		return err
	}

	cb.state = StateClosed
	cb.failures = 0
	return nil
}
