package persistence

import (
	"context"
	"errors"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrUnavailable wraps failures of a remote store that is reachable only
	// intermittently, including an open circuit breaker.
	ErrUnavailable = errors.New("state store unavailable")
)

// Store keeps engine records keyed by owner and record name.
type Store interface {
	Get(ctx context.Context, owner, record string) ([]byte, error)
	Set(ctx context.Context, owner, record string, data []byte) error
}
