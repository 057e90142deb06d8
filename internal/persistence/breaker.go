package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
)

type BreakerConfig struct {
	Name string
	// Failures is the consecutive failure count that opens the breaker.
	Failures uint32
	// Timeout is how long the breaker stays open before a probe.
	Timeout time.Duration
}

// BreakerStore fails fast while the wrapped store keeps failing. ErrNotFound
// is a normal answer and never counts against the breaker.
type BreakerStore struct {
	next Store
	cb   *gobreaker.CircuitBreaker
}

func NewBreakerStore(next Store, cfg BreakerConfig) *BreakerStore {
	if cfg.Name == "" {
		cfg.Name = "state-store"
	}
	if cfg.Failures == 0 {
		cfg.Failures = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	st := gobreaker.Settings{Name: cfg.Name, Timeout: cfg.Timeout}
	st.ReadyToTrip = func(counts gobreaker.Counts) bool { return counts.ConsecutiveFailures >= cfg.Failures }
	st.IsSuccessful = func(err error) bool { return err == nil || errors.Is(err, ErrNotFound) }
	return &BreakerStore{next: next, cb: gobreaker.NewCircuitBreaker(st)}
}

func (b *BreakerStore) State() gobreaker.State { return b.cb.State() }

func (b *BreakerStore) Get(ctx context.Context, owner, record string) ([]byte, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.Get(ctx, owner, record)
	})
	if err != nil {
		return nil, breakerErr(err)
	}
	data, _ := out.([]byte)
	return data, nil
}

func (b *BreakerStore) Set(ctx context.Context, owner, record string, data []byte) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.next.Set(ctx, owner, record, data)
	})
	return breakerErr(err)
}

func breakerErr(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}
