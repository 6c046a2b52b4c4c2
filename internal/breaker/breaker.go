// Package breaker is a circuit breaker for calls to a remote graph server.
package breaker

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned by Do while the breaker refuses calls.
var ErrOpen = errors.New("circuit breaker is open")

// State represents the current state of the circuit breaker
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
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

// Settings configures a Breaker. Zero fields take defaults.
type Settings struct {
	Name        string
	MaxRequests uint32        // calls let through while half-open
	Interval    time.Duration // closed-state counts are cleared this often; 0 never clears
	Timeout     time.Duration // open duration before probing again

	// ReadyToTrip decides from the closed-state counts whether to open.
	ReadyToTrip func(Counts) bool
	// IsFailure classifies call errors. Errors it rejects count as
	// successes, so a server answering "bad request" keeps the circuit
	// closed. Defaults to any non-nil error.
	IsFailure func(error) bool

	OnStateChange func(name string, from, to State)
}

// Counts holds the numbers of requests and their results
type Counts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

func (c *Counts) onSuccess() {
	c.TotalSuccesses++
	c.ConsecutiveSuccesses++
	c.ConsecutiveFailures = 0
}

func (c *Counts) onFailure() {
	c.TotalFailures++
	c.ConsecutiveFailures++
	c.ConsecutiveSuccesses = 0
}

// Breaker is a closed/open/half-open state machine. It is safe for
// concurrent use.
type Breaker struct {
	name          string
	maxRequests   uint32
	interval      time.Duration
	timeout       time.Duration
	readyToTrip   func(Counts) bool
	isFailure     func(error) bool
	onStateChange func(name string, from, to State)

	mu         sync.Mutex
	state      State
	generation uint64
	counts     Counts
	expiry     time.Time
}

// New creates a closed Breaker.
func New(st Settings) *Breaker {
	b := &Breaker{
		name:          st.Name,
		maxRequests:   st.MaxRequests,
		interval:      st.Interval,
		timeout:       st.Timeout,
		readyToTrip:   st.ReadyToTrip,
		isFailure:     st.IsFailure,
		onStateChange: st.OnStateChange,
	}
	if b.maxRequests == 0 {
		b.maxRequests = 1
	}
	if b.timeout == 0 {
		b.timeout = 30 * time.Second
	}
	if b.readyToTrip == nil {
		b.readyToTrip = func(c Counts) bool { return c.ConsecutiveFailures > 5 }
	}
	if b.isFailure == nil {
		b.isFailure = func(err error) bool { return err != nil }
	}
	b.reset(time.Now())
	return b
}

// Name returns the breaker's name
func (b *Breaker) Name() string { return b.name }

// State returns the current state
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current(time.Now())
}

// Counts returns a copy of the counts of the current state.
func (b *Breaker) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current(time.Now())
	return b.counts
}

func (b *Breaker) current(now time.Time) State {
	switch b.state {
	case StateClosed:
		if !b.expiry.IsZero() && b.expiry.Before(now) {
			b.reset(now)
		}
	case StateOpen:
		if b.expiry.Before(now) {
			b.setState(StateHalfOpen, now)
		}
	}
	return b.state
}

func (b *Breaker) setState(to State, now time.Time) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to
	b.reset(now)
	if b.onStateChange != nil {
		b.onStateChange(b.name, from, to)
	}
}

// reset starts a new generation: it clears the counts and sets the expiry
// for the current state. Calls admitted in an older generation no longer
// count.
func (b *Breaker) reset(now time.Time) {
	b.generation++
	b.counts = Counts{}
	switch b.state {
	case StateClosed:
		if b.interval > 0 {
			b.expiry = now.Add(b.interval)
		} else {
			b.expiry = time.Time{}
		}
	case StateOpen:
		b.expiry = now.Add(b.timeout)
	default:
		b.expiry = time.Time{}
	}
}

// Do runs fn unless the breaker is open, and records its outcome. An
// outcome that arrives after the breaker changed generation is dropped.
func (b *Breaker) Do(fn func() error) error {
	b.mu.Lock()
	state := b.current(time.Now())
	if state == StateOpen || (state == StateHalfOpen && b.counts.Requests >= b.maxRequests) {
		b.mu.Unlock()
		return ErrOpen
	}
	generation := b.generation
	b.counts.Requests++
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	now := time.Now()
	b.current(now)
	if b.generation != generation {
		return err
	}
	if b.isFailure(err) {
		b.counts.onFailure()
		switch b.state {
		case StateClosed:
			if b.readyToTrip(b.counts) {
				b.setState(StateOpen, now)
			}
		case StateHalfOpen:
			b.setState(StateOpen, now)
		}
	} else {
		b.counts.onSuccess()
		if b.state == StateHalfOpen {
			b.setState(StateClosed, now)
		}
	}
	return err
}
