package botgateway

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrCircuitOpen = errors.New("bot gateway circuit breaker is open")

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "closed"
}

// Breaker wraps a Gateway and stops calling it after maxFailures
// consecutive failures, until resetTimeout has passed.
type Breaker struct {
	next         Gateway
	maxFailures  int
	resetTimeout time.Duration

	mu              sync.Mutex
	state           State
	failureCount    int
	lastFailureTime time.Time
	now             func() time.Time
}

func NewBreaker(next Gateway, maxFailures int, resetTimeout time.Duration) *Breaker {
	return &Breaker{
		next:         next,
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		state:        StateClosed,
		now:          time.Now,
	}
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.now().Sub(b.lastFailureTime) <= b.resetTimeout {
			return ErrCircuitOpen
		}
		b.state = StateHalfOpen
	case StateHalfOpen:
		// one probe at a time
		return ErrCircuitOpen
	}
	return nil
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if errors.Is(err, context.Canceled) {
		// the caller gave up; release a half-open probe without counting it
		if b.state == StateHalfOpen {
			b.state = StateOpen
		}
		return
	}
	if err == nil {
		b.state = StateClosed
		b.failureCount = 0
		return
	}

	b.failureCount++
	b.lastFailureTime = b.now()
	if b.state == StateHalfOpen || b.failureCount >= b.maxFailures {
		b.state = StateOpen
	}
}

func (b *Breaker) CreateDemo(ctx context.Context, req DemoRequest) (*Demo, error) {
	if err := b.allow(); err != nil {
		return nil, err
	}
	demo, err := b.next.CreateDemo(ctx, req)
	b.record(err)
	return demo, err
}

func (b *Breaker) SendInvoice(ctx context.Context, invoice Invoice) (*Receipt, error) {
	if err := b.allow(); err != nil {
		return nil, err
	}
	receipt, err := b.next.SendInvoice(ctx, invoice)
	b.record(err)
	return receipt, err
}

func (b *Breaker) SendMessage(ctx context.Context, chatID int64, text string) (*Receipt, error) {
	if err := b.allow(); err != nil {
		return nil, err
	}
	receipt, err := b.next.SendMessage(ctx, chatID, text)
	b.record(err)
	return receipt, err
}
