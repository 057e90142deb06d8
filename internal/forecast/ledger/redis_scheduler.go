package ledger

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisScheduler keeps tasks in a sorted set scored by due time in unix
// milliseconds, so pending checks survive a restart of the process.
type RedisScheduler struct {
	client redis.Cmdable
	key    string
}

func NewRedisScheduler(client redis.Cmdable, owner string) *RedisScheduler {
	if owner == "" {
		owner = "default"
	}
	return &RedisScheduler{client: client, key: fmt.Sprintf("oraculum:%s:verify", owner)}
}

func (s *RedisScheduler) Key() string { return s.key }

func (s *RedisScheduler) Schedule(ctx context.Context, tasks ...Task) error {
	if len(tasks) == 0 {
		return nil
	}
	members := make([]redis.Z, 0, len(tasks))
	for _, t := range tasks {
		members = append(members, redis.Z{Score: float64(t.Due.UnixMilli()), Member: t.Key()})
	}
	if err := s.client.ZAdd(ctx, s.key, members...).Err(); err != nil {
		return fmt.Errorf("zadd verify tasks: %w", err)
	}
	return nil
}

// PopDue claims every task due at now. A member is returned only if this
// caller's ZREM removed it, so concurrent drainers never double-verify.
func (s *RedisScheduler) PopDue(ctx context.Context, now time.Time) ([]Task, error) {
	due, err := s.client.ZRangeByScoreWithScores(ctx, s.key, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("fetch due tasks: %w", err)
	}
	if len(due) == 0 {
		return nil, nil
	}

	pipe := s.client.TxPipeline()
	cmds := make([]*redis.IntCmd, len(due))
	for i, z := range due {
		cmds[i] = pipe.ZRem(ctx, s.key, z.Member)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("claim due tasks: %w", err)
	}

	tasks := make([]Task, 0, len(due))
	for i, z := range due {
		if cmds[i].Val() != 1 {
			continue
		}
		member, ok := z.Member.(string)
		if !ok {
			continue
		}
		id, horizon, err := parseKey(member)
		if err != nil {
			continue
		}
		tasks = append(tasks, Task{ID: id, Horizon: horizon, Due: time.UnixMilli(int64(z.Score)).UTC()})
	}
	return tasks, nil
}

func (s *RedisScheduler) Len(ctx context.Context) (int, error) {
	n, err := s.client.ZCard(ctx, s.key).Result()
	if err != nil {
		return 0, fmt.Errorf("zcard verify tasks: %w", err)
	}
	return int(n), nil
}
