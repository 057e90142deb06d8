package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type RedisStore struct {
	client redis.Cmdable
	tracer trace.Tracer
	prefix string
}

func NewRedisStore(client redis.Cmdable, tracer trace.Tracer) *RedisStore {
	return &RedisStore{client: client, tracer: tracer, prefix: "oraculum"}
}

func (s *RedisStore) key(owner, record string) string {
	return fmt.Sprintf("%s:%s:%s", s.prefix, owner, record)
}

func (s *RedisStore) Get(ctx context.Context, owner, record string) ([]byte, error) {
	ctx, span := s.tracer.Start(ctx, "state-redis.get")
	defer span.End()
	span.SetAttributes(attribute.String("record", record))

	b, err := s.client.Get(ctx, s.key(owner, record)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: redis get %s: %v", ErrUnavailable, record, err)
	}
	return b, nil
}

func (s *RedisStore) Set(ctx context.Context, owner, record string, data []byte) error {
	ctx, span := s.tracer.Start(ctx, "state-redis.set")
	defer span.End()
	span.SetAttributes(attribute.String("record", record))

	if err := s.client.Set(ctx, s.key(owner, record), data, 0).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("%w: redis set %s: %v", ErrUnavailable, record, err)
	}
	return nil
}
