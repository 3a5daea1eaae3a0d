package utils

import (
	"context"
	"errors"
	"sync"
	"time"
)

// CircuitBreaker guards calls to flaky external collaborators (the
// notification publisher). After enough failures it opens and rejects calls
// until a cool-down passes, then lets one probe through.
type CircuitBreaker struct {
	name         string
	maxRequests  uint32
	timeout      time.Duration
	failureRatio float64

	mutex  sync.Mutex
	state  State
	counts Counts
	expiry time.Time
}

type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

type Counts struct {
	Requests       uint32
	TotalSuccesses uint32
	TotalFailures  uint32
}

var ErrCircuitOpen = errors.New("circuit breaker is open")

func NewCircuitBreaker(name string) *CircuitBreaker {
	return &CircuitBreaker{
		name:         name,
		maxRequests:  20,
		timeout:      30 * time.Second,
		failureRatio: 0.6,
		state:        StateClosed,
	}
}

// Execute runs req unless the breaker is open.
func (cb *CircuitBreaker) Execute(ctx context.Context, req func() error) error {
	if err := cb.beforeRequest(); err != nil {
		return err
	}
	err := req()
	cb.afterRequest(err == nil)
	return err
}

func (cb *CircuitBreaker) beforeRequest() error {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	if cb.state == StateOpen {
		if cb.expiry.After(time.Now()) {
			return ErrCircuitOpen
		}
		cb.state = StateHalfOpen
		cb.counts = Counts{}
	}
	cb.counts.Requests++
	return nil
}

func (cb *CircuitBreaker) afterRequest(success bool) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	if success {
		cb.counts.TotalSuccesses++
		if cb.state == StateHalfOpen {
			cb.state = StateClosed
			cb.counts = Counts{}
		}
		return
	}

	cb.counts.TotalFailures++
	if cb.state == StateHalfOpen || cb.readyToTrip() {
		cb.state = StateOpen
		cb.expiry = time.Now().Add(cb.timeout)
	}
}

func (cb *CircuitBreaker) readyToTrip() bool {
	return cb.counts.Requests >= cb.maxRequests &&
		float64(cb.counts.TotalFailures)/float64(cb.counts.Requests) >= cb.failureRatio
}

// CurrentState reports the breaker state, for health reporting.
func (cb *CircuitBreaker) CurrentState() State {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.state
}
