package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"oraculum/internal/bot"
	"oraculum/internal/cache"
	"oraculum/internal/config"
	"oraculum/internal/db"
	"oraculum/internal/engine"
	"oraculum/internal/forecast/ledger"
	"oraculum/internal/handler"
	"oraculum/internal/job"
	"oraculum/internal/outcome"
	"oraculum/internal/persistence"
	"oraculum/internal/provider"
	"oraculum/internal/ta"
	"oraculum/pkg/clickhouse"
	"oraculum/pkg/kafka"
	"oraculum/pkg/logger"
	"oraculum/pkg/metrics"
	"oraculum/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/trace"

	_ "oraculum/docs"
)

var (
	loadEnvFunc          = godotenv.Load
	loadConfigFunc       = config.Load
	loadTuningFunc       = config.LoadTuning
	initPostgresFunc     = db.InitPostgres
	initRedisFunc        = cache.InitRedis
	newLazyRedisFunc     = cache.NewClient
	initTracerFunc       = tracing.InitTracer
	newClickHouseFunc    = clickhouse.NewClient
	newKafkaProducerFunc = func(brokers []string) (*kafka.Producer, error) {
		return kafka.NewProducer(kafka.WithBrokers(brokers))
	}
	newSnapshotFeedFunc = func(baseURL string, tracer trace.Tracer) job.SnapshotFetcher {
		return provider.NewSnapshotFeed(baseURL, tracer)
	}
	startTelegramBotFunc   = bot.Start
	startBackgroundFunc    = func(ctx context.Context, run func(context.Context)) { go run(ctx) }
	newRouterFunc          = gin.Default
	setupSignalNotify      = signal.Notify
	waitForSignalFunc      = func(quit <-chan os.Signal) { <-quit }
	startHTTPServerFunc    = func(srv *http.Server) error { return srv.ListenAndServe() }
	shutdownHTTPServerFunc = func(srv *http.Server, ctx context.Context) error { return srv.Shutdown(ctx) }
	exitFunc               = os.Exit
)

// @title           Oraculum API
// @version         1.0
// @description     Online self-adjusting ensemble forecasting engine.

// @host      localhost:8080
// @BasePath  /

// @securityDefinitions.apikey  ApiKeyAuth
// @in                          header
// @name                        X-API-Key
func main() {
	_ = loadEnvFunc()

	cfg := loadConfigFunc()

	log, err := logger.New(&logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		log = logger.Nop()
	}
	fatal := func(msg string, err error) {
		log.Error(msg, logger.Error(err))
		exitFunc(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tp, tracer, err := initTracerFunc(ctx)
	if err != nil {
		fatal("failed to initialize tracer", err)
		return
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			log.Warn("error shutting down tracer provider", logger.Error(err))
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec := metrics.New(registry)

	tuning, err := loadTuningFunc(cfg.EngineConfigFile)
	if err != nil {
		fatal("failed to load engine config", err)
		return
	}

	var pool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		pool, err = initPostgresFunc(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Warn("postgres unavailable, archive disabled", logger.Error(err))
			pool = nil
		} else {
			defer pool.Close()
		}
	}

	var rdb *redis.Client
	if cfg.StateBackend == config.BackendRedis || cfg.SchedulerBackend == config.BackendRedis {
		rdb = connectRedis(ctx, cfg.RedisURL, log)
		if rdb != nil {
			defer rdb.Close()
		}
	}

	var scheduler ledger.Scheduler = ledger.NewHeapScheduler()
	if cfg.SchedulerBackend == config.BackendRedis && rdb != nil {
		scheduler = ledger.NewRedisScheduler(rdb, cfg.EngineOwner)
	}

	eng := engine.New(tuning, engine.Deps{
		Logger:    log,
		Tracer:    tracer,
		Metrics:   rec,
		Scheduler: scheduler,
	})

	saver := newStateSaver(cfg, pool, rdb, log, tracer, rec)
	saver.Attach(eng)
	records, origin, err := saver.Load(ctx, engine.RecordNames)
	switch {
	case err != nil && origin == "":
		log.Warn("no saved state loaded, starting fresh", logger.Error(err))
	case origin != "":
		if err := eng.RestoreRecords(ctx, records); err != nil {
			log.Warn("saved state rejected, starting fresh", logger.Error(err), logger.String("origin", origin))
		} else {
			log.Info("saved state loaded", logger.String("origin", origin), logger.Int("records", len(records)))
		}
	}
	eng.SetSaver(saver)
	startBackgroundFunc(ctx, saver.Run)

	var archive *persistence.Archive
	if pool != nil {
		archive = persistence.NewArchive(pool, tracer)
	}

	sinks, closeSinks := buildSinks(ctx, cfg, archive, log)
	defer closeSinks()

	tg, err := startTelegramBotFunc(bot.Config{
		Token:       cfg.TelegramBotToken,
		ChatID:      cfg.TelegramChatID,
		NotifyAbove: cfg.TelegramNotifyAbove,
	}, eng, log)
	if err != nil {
		log.Warn("telegram bot disabled", logger.Error(err))
	}
	if tg != nil {
		sinks = append(sinks, tg)
	}

	dispatcher := outcome.NewDispatcher(outcome.DispatcherConfig{}, log, tracer, rec, sinks...)
	eng.OnFinalized(dispatcher.Enqueue)
	startBackgroundFunc(ctx, dispatcher.Run)

	verifier := job.NewVerifierJob(tracer, log, eng, time.Duration(cfg.VerifyPollMS)*time.Millisecond)
	startBackgroundFunc(ctx, verifier.Start)

	optimizerJob := job.NewOptimizerJob(tracer, log, eng,
		time.Duration(cfg.OptimizerDelaySecs)*time.Second,
		time.Duration(cfg.OptimizerIntervalSecs)*time.Second)
	startBackgroundFunc(ctx, optimizerJob.Start)

	if cfg.SnapshotFeedURL != "" {
		poller := job.NewSnapshotPoller(tracer, log, newSnapshotFeedFunc(cfg.SnapshotFeedURL, tracer), eng,
			cfg.SnapshotSymbol, cfg.SnapshotPollSecs, cfg.AutoIssueSecs)
		poller.SetEnricher(ta.NewEnricher(0).Enrich)
		startBackgroundFunc(ctx, poller.Start)
	} else {
		log.Info("SNAPSHOT_FEED_URL not set, snapshots accepted over HTTP only")
	}

	h := handler.New(tracer, eng)
	h.SetStateStatus(saver)
	h.SetGatherer(registry)
	if archive != nil {
		h.SetHistoryReader(archive)
	}

	r := newRouterFunc()
	r.Use(otelgin.Middleware("oraculum"))

	h.RegisterRoutes(r, cfg.APIKey)
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	go func() {
		if err := startHTTPServerFunc(srv); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal("listen failed", err)
		}
	}()
	log.Info("server started", logger.String("addr", cfg.HTTPAddr), logger.Any("sinks", dispatcher.Sinks()))

	quit := make(chan os.Signal, 1)
	setupSignalNotify(quit, syscall.SIGINT, syscall.SIGTERM)
	waitForSignalFunc(quit)
	log.Info("shutting down server")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := eng.ForceSave(shutdownCtx); err != nil {
		log.Warn("final state save incomplete", logger.Error(err))
	}
	if err := shutdownHTTPServerFunc(srv, shutdownCtx); err != nil {
		log.Error("server forced to shutdown", logger.Error(err))
	}

	log.Info("server exiting")
}

// connectRedis falls back to a lazily dialing client so the state saver can
// run degraded and recover once Redis returns.
func connectRedis(ctx context.Context, addr string, log *logger.Logger) *redis.Client {
	rdb, err := initRedisFunc(ctx, addr)
	if err == nil {
		return rdb
	}
	log.Warn("redis unreachable at startup", logger.Error(err))
	rdb, err = newLazyRedisFunc(addr)
	if err != nil {
		log.Warn("redis disabled", logger.Error(err))
		return nil
	}
	return rdb
}

func newStateSaver(cfg *config.Config, pool *pgxpool.Pool, rdb *redis.Client, log *logger.Logger, tracer trace.Tracer, rec *metrics.Recorder) *persistence.Saver {
	fileCache := persistence.NewFileCache(cfg.StateCacheDir)

	var remote persistence.Store
	switch {
	case cfg.StateBackend == config.BackendRedis && rdb != nil:
		remote = persistence.NewRedisStore(rdb, tracer)
	case cfg.StateBackend == config.BackendPostgres && pool != nil:
		remote = persistence.NewPostgresStore(pool, tracer)
	}

	saverCfg := persistence.DefaultSaverConfig()
	saverCfg.Owner = cfg.EngineOwner
	if remote == nil {
		if cfg.StateBackend != config.BackendFile {
			log.Warn("state backend unavailable, using local file store", logger.String("backend", cfg.StateBackend))
		}
		return persistence.NewSaver(saverCfg, fileCache, nil, log, tracer, rec)
	}
	breaker := persistence.NewBreakerStore(remote, persistence.BreakerConfig{Name: "state-" + cfg.StateBackend})
	return persistence.NewSaver(saverCfg, breaker, fileCache, log, tracer, rec)
}

// buildSinks wires every configured outcome sink. The returned func releases
// their connections.
func buildSinks(ctx context.Context, cfg *config.Config, archive *persistence.Archive, log *logger.Logger) ([]outcome.Sink, func()) {
	var sinks []outcome.Sink
	var closers []func() error

	if archive != nil {
		sinks = append(sinks, outcome.NewArchiveSink(archive))
	}

	if len(cfg.KafkaBrokers) > 0 {
		producer, err := newKafkaProducerFunc(cfg.KafkaBrokers)
		if err != nil {
			log.Warn("kafka sink disabled", logger.Error(err))
		} else {
			sinks = append(sinks, outcome.NewKafkaSink(producer, cfg.KafkaOutcomeTopic))
			closers = append(closers, producer.Close)
		}
	}

	if cfg.ClickHouseHost != "" {
		ch, err := newClickHouseFunc(ctx,
			clickhouse.WithHost(cfg.ClickHouseHost),
			clickhouse.WithPort(cfg.ClickHousePort),
			clickhouse.WithDatabase(cfg.ClickHouseDatabase),
			clickhouse.WithCredentials(cfg.ClickHouseUser, cfg.ClickHousePassword),
			clickhouse.WithAsyncInsert(true),
		)
		if err != nil {
			log.Warn("clickhouse sink disabled", logger.Error(err))
		} else if err := ch.InitSchema(ctx, outcome.VerificationSchema); err != nil {
			log.Warn("clickhouse schema init failed, sink disabled", logger.Error(err))
			_ = ch.Close()
		} else {
			sinks = append(sinks, outcome.NewClickHouseSink(ch))
			closers = append(closers, ch.Close)
		}
	}

	return sinks, func() {
		for _, c := range closers {
			if err := c(); err != nil {
				log.Warn("sink close failed", logger.Error(err))
			}
		}
	}
}
