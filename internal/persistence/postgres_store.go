package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Pool is the subset of pgxpool.Pool the postgres stores use.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore keeps one row per owner and record in engine_state.
type PostgresStore struct {
	pool   Pool
	tracer trace.Tracer
}

func NewPostgresStore(pool Pool, tracer trace.Tracer) *PostgresStore {
	return &PostgresStore{pool: pool, tracer: tracer}
}

func (s *PostgresStore) Get(ctx context.Context, owner, record string) ([]byte, error) {
	ctx, span := s.tracer.Start(ctx, "state-postgres.get")
	defer span.End()
	span.SetAttributes(attribute.String("record", record))

	var data []byte
	err := s.pool.QueryRow(ctx, `
SELECT payload
FROM engine_state
WHERE owner = $1 AND record = $2`, owner, record).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: postgres get %s: %v", ErrUnavailable, record, err)
	}
	return data, nil
}

func (s *PostgresStore) Set(ctx context.Context, owner, record string, data []byte) error {
	ctx, span := s.tracer.Start(ctx, "state-postgres.set")
	defer span.End()
	span.SetAttributes(attribute.String("record", record))

	_, err := s.pool.Exec(ctx, `
INSERT INTO engine_state (owner, record, payload, updated_at)
VALUES ($1, $2, $3, NOW())
ON CONFLICT (owner, record) DO UPDATE SET
  payload = EXCLUDED.payload,
  updated_at = NOW()`, owner, record, data)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("%w: postgres set %s: %v", ErrUnavailable, record, err)
	}
	return nil
}
