package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"REDIS_URL", "STATE_BACKEND", "SCHEDULER_BACKEND", "VERIFY_POLL_MS", "KAFKA_BROKERS", "TELEGRAM_CHAT_ID", "HTTP_ADDR", "AUTO_ISSUE_SECS"} {
		t.Setenv(k, "")
	}

	cfg := Load()
	if cfg.RedisURL != "localhost:6379" {
		t.Fatalf("expected default redis url, got %s", cfg.RedisURL)
	}
	if cfg.StateBackend != BackendRedis || cfg.SchedulerBackend != BackendMemory {
		t.Fatalf("unexpected backends: %s %s", cfg.StateBackend, cfg.SchedulerBackend)
	}
	if cfg.VerifyPollMS != 1000 || cfg.HTTPAddr != ":8080" || cfg.AutoIssueSecs != 0 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if len(cfg.KafkaBrokers) != 0 {
		t.Fatalf("expected no brokers, got %v", cfg.KafkaBrokers)
	}
	if cfg.TelegramNotifyAbove != 0.75 {
		t.Fatalf("expected notify threshold 0.75, got %v", cfg.TelegramNotifyAbove)
	}
}

func TestLoadWithEnv(t *testing.T) {
	t.Setenv("REDIS_URL", "redis:6379")
	t.Setenv("STATE_BACKEND", "FILE")
	t.Setenv("SCHEDULER_BACKEND", "redis")
	t.Setenv("VERIFY_POLL_MS", "250")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("TELEGRAM_CHAT_ID", "-10042")
	t.Setenv("SNAPSHOT_SYMBOL", "ethusdt")
	t.Setenv("AUTO_ISSUE_SECS", "60")

	cfg := Load()
	if cfg.RedisURL != "redis:6379" || cfg.StateBackend != BackendFile || cfg.SchedulerBackend != BackendRedis {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.VerifyPollMS != 250 || cfg.AutoIssueSecs != 60 {
		t.Fatalf("unexpected intervals: %+v", cfg)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "k2:9092" {
		t.Fatalf("unexpected brokers: %v", cfg.KafkaBrokers)
	}
	if cfg.TelegramChatID != -10042 || cfg.SnapshotSymbol != "ETHUSDT" {
		t.Fatalf("unexpected telegram/symbol: %+v", cfg)
	}

	t.Setenv("VERIFY_POLL_MS", "bad")
	t.Setenv("STATE_BACKEND", "etcd")
	cfg = Load()
	if cfg.VerifyPollMS != 1000 {
		t.Fatalf("invalid poll should fall back to default, got %d", cfg.VerifyPollMS)
	}
	if cfg.StateBackend != BackendRedis {
		t.Fatalf("unsupported backend should fall back to redis, got %s", cfg.StateBackend)
	}
}

func TestPostgresBackendNeedsDatabase(t *testing.T) {
	t.Setenv("STATE_BACKEND", "postgres")
	t.Setenv("DATABASE_URL", "")
	if cfg := Load(); cfg.StateBackend != BackendFile {
		t.Fatalf("expected file fallback, got %s", cfg.StateBackend)
	}

	t.Setenv("DATABASE_URL", "postgres://localhost/oraculum")
	if cfg := Load(); cfg.StateBackend != BackendPostgres {
		t.Fatalf("expected postgres, got %s", cfg.StateBackend)
	}
}
