package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

type Config struct {
	HTTPAddr string
	APIKey   string

	DatabaseURL string
	RedisURL    string

	// EngineOwner namespaces persisted state so several engines can share a store.
	EngineOwner      string
	StateBackend     string
	StateCacheDir    string
	SchedulerBackend string
	EngineConfigFile string

	VerifyPollMS          int
	SnapshotFeedURL       string
	SnapshotSymbol        string
	SnapshotPollSecs      int
	AutoIssueSecs         int
	OptimizerDelaySecs    int
	OptimizerIntervalSecs int

	KafkaBrokers      []string
	KafkaOutcomeTopic string

	ClickHouseHost     string
	ClickHousePort     int
	ClickHouseDatabase string
	ClickHouseUser     string
	ClickHousePassword string

	TelegramBotToken    string
	TelegramChatID      int64
	TelegramNotifyAbove float64

	LogLevel  string
	LogFormat string
}

const (
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendFile     = "file"
	BackendMemory   = "memory"
)

func Load() *Config {
	cfg := &Config{
		APIKey:             os.Getenv("API_KEY"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		RedisURL:           os.Getenv("REDIS_URL"),
		EngineConfigFile:   strings.TrimSpace(os.Getenv("ENGINE_CONFIG_FILE")),
		SnapshotFeedURL:    strings.TrimSpace(os.Getenv("SNAPSHOT_FEED_URL")),
		KafkaOutcomeTopic:  envString("KAFKA_OUTCOME_TOPIC", "oraculum.outcomes"),
		ClickHouseHost:     strings.TrimSpace(os.Getenv("CLICKHOUSE_HOST")),
		ClickHouseDatabase: envString("CLICKHOUSE_DATABASE", "default"),
		ClickHouseUser:     envString("CLICKHOUSE_USER", "default"),
		ClickHousePassword: os.Getenv("CLICKHOUSE_PASSWORD"),
		TelegramBotToken:   os.Getenv("TELEGRAM_BOT_TOKEN"),
	}

	cfg.HTTPAddr = envString("HTTP_ADDR", ":8080")
	cfg.EngineOwner = envString("ENGINE_OWNER", "default")
	cfg.StateCacheDir = envString("STATE_CACHE_DIR", "./data/state")
	cfg.SnapshotSymbol = strings.ToUpper(envString("SNAPSHOT_SYMBOL", "BTCUSDT"))
	cfg.LogLevel = strings.ToLower(envString("LOG_LEVEL", "info"))
	cfg.LogFormat = strings.ToLower(envString("LOG_FORMAT", "json"))

	if cfg.RedisURL == "" {
		log.Warn().Msg("REDIS_URL not set, defaulting to localhost:6379")
		cfg.RedisURL = "localhost:6379"
	}
	if cfg.APIKey == "" {
		log.Warn().Msg("API_KEY not set, state save endpoint is unauthenticated")
	}

	cfg.StateBackend = strings.ToLower(envString("STATE_BACKEND", BackendRedis))
	switch cfg.StateBackend {
	case BackendRedis, BackendFile:
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			log.Warn().Msg("STATE_BACKEND=postgres needs DATABASE_URL, falling back to file")
			cfg.StateBackend = BackendFile
		}
	default:
		log.Warn().Str("value", cfg.StateBackend).Msg("unsupported STATE_BACKEND, defaulting to redis")
		cfg.StateBackend = BackendRedis
	}

	cfg.SchedulerBackend = strings.ToLower(envString("SCHEDULER_BACKEND", BackendMemory))
	if cfg.SchedulerBackend != BackendMemory && cfg.SchedulerBackend != BackendRedis {
		log.Warn().Str("value", cfg.SchedulerBackend).Msg("unsupported SCHEDULER_BACKEND, defaulting to memory")
		cfg.SchedulerBackend = BackendMemory
	}

	cfg.VerifyPollMS = envInt("VERIFY_POLL_MS", 1000)
	cfg.SnapshotPollSecs = envInt("SNAPSHOT_POLL_SECS", 5)
	cfg.AutoIssueSecs = envIntAllowZero("AUTO_ISSUE_SECS", 0)
	cfg.OptimizerDelaySecs = envInt("OPTIMIZER_DELAY_SECS", 300)
	cfg.OptimizerIntervalSecs = envInt("OPTIMIZER_INTERVAL_SECS", 3600)
	cfg.ClickHousePort = envInt("CLICKHOUSE_PORT", 9000)

	for _, b := range strings.Split(os.Getenv("KAFKA_BROKERS"), ",") {
		if b = strings.TrimSpace(b); b != "" {
			cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
		}
	}

	if v := strings.TrimSpace(os.Getenv("TELEGRAM_CHAT_ID")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.TelegramChatID = n
		} else {
			log.Warn().Str("value", v).Msg("invalid TELEGRAM_CHAT_ID, outcome notifications disabled")
		}
	}
	cfg.TelegramNotifyAbove = 0.75
	if v := strings.TrimSpace(os.Getenv("TELEGRAM_NOTIFY_ABOVE")); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil && n >= 0 && n <= 1 {
			cfg.TelegramNotifyAbove = n
		}
	}

	return cfg
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// envInt returns def unless the variable holds a positive integer.
func envInt(key string, def int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
		log.Warn().Str("key", key).Str("value", v).Int("default", def).Msg("invalid integer, using default")
	}
	return def
}

func envIntAllowZero(key string, def int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return def
}
