package persistence

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"oraculum/pkg/logger"
	"oraculum/pkg/metrics"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

// Source produces the records to save.
type Source interface {
	ExportRecords() (map[string][]byte, error)
}

type SaverConfig struct {
	Owner string
	// Debounce is the quiet period after the last Request before saving.
	Debounce time.Duration
	// MinInterval spaces debounced writes.
	MinInterval time.Duration
	MaxTries    uint
	// InitialBackoff is the first retry delay; later ones grow exponentially.
	InitialBackoff time.Duration
}

func DefaultSaverConfig() SaverConfig {
	return SaverConfig{
		Owner:          "default",
		Debounce:       2 * time.Second,
		MinInterval:    30 * time.Second,
		MaxTries:       5,
		InitialBackoff: 500 * time.Millisecond,
	}
}

// Saver writes engine state to a remote store off the hot path. Requests are
// debounced and rate limited; failed writes are retried with exponential
// backoff and, once retries run out, kept in the local cache while the saver
// reports itself degraded.
type Saver struct {
	cfg     SaverConfig
	remote  Store
	cache   Store
	source  Source
	log     *logger.Logger
	tracer  trace.Tracer
	metrics *metrics.Recorder

	limiter    *rate.Limiter
	requests   chan struct{}
	writeMu    sync.Mutex
	degraded   atomic.Bool
	lastSaved  atomic.Int64
	newBackOff func() backoff.BackOff
}

// NewSaver builds a saver. cache may be nil when remote is already local.
func NewSaver(cfg SaverConfig, remote, cache Store, log *logger.Logger, tracer trace.Tracer, rec *metrics.Recorder) *Saver {
	def := DefaultSaverConfig()
	if cfg.Owner == "" {
		cfg.Owner = def.Owner
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = def.Debounce
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = def.MinInterval
	}
	if cfg.MaxTries == 0 {
		cfg.MaxTries = def.MaxTries
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = def.InitialBackoff
	}
	if log == nil {
		log = logger.Nop()
	}
	s := &Saver{
		cfg:      cfg,
		remote:   remote,
		cache:    cache,
		log:      log.With(logger.String("component", "state-saver")),
		tracer:   tracer,
		metrics:  rec,
		limiter:  rate.NewLimiter(rate.Every(cfg.MinInterval), 1),
		requests: make(chan struct{}, 1),
	}
	s.newBackOff = func() backoff.BackOff {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = cfg.InitialBackoff
		return b
	}
	return s
}

// Attach sets the record source. It must be called before Run or Flush.
func (s *Saver) Attach(src Source) { s.source = src }

// Request asks for a save soon. It never blocks.
func (s *Saver) Request() {
	select {
	case s.requests <- struct{}{}:
	default:
	}
}

// Degraded reports whether the last save only reached the local cache.
func (s *Saver) Degraded() bool { return s.degraded.Load() }

// LastSaved is the time of the last successful remote save.
func (s *Saver) LastSaved() time.Time {
	ns := s.lastSaved.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns).UTC()
}

// Run serves requests until ctx is done.
func (s *Saver) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.requests:
		}
		if !s.quiet(ctx) {
			return
		}
		if err := s.limiter.Wait(ctx); err != nil {
			return
		}
		if err := s.save(ctx); err != nil {
			s.log.Warn("state save failed", logger.Error(err))
		}
	}
}

// quiet waits until no request has arrived for the debounce period.
func (s *Saver) quiet(ctx context.Context) bool {
	timer := time.NewTimer(s.cfg.Debounce)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-s.requests:
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(s.cfg.Debounce)
		case <-timer.C:
			return true
		}
	}
}

// Flush saves immediately, bypassing debounce and rate limiting.
func (s *Saver) Flush(ctx context.Context) error {
	s.limiter.Allow()
	return s.save(ctx)
}

func (s *Saver) save(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "state-saver.save")
	defer span.End()

	if s.source == nil {
		return errors.New("state saver has no source")
	}
	records, err := s.source.ExportRecords()
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("export state: %w", err)
	}
	span.SetAttributes(attribute.Int("records", len(records)))

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	start := time.Now()
	_, remoteErr := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, s.writeAll(ctx, s.remote, records)
	},
		backoff.WithBackOff(s.newBackOff()),
		backoff.WithMaxTries(s.cfg.MaxTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			s.log.Debug("retrying state save", logger.Error(err), logger.Duration("next_ms", next))
		}),
	)

	var cacheErr error
	if s.cache != nil {
		cacheErr = s.writeAll(ctx, s.cache, records)
		if cacheErr != nil {
			s.log.Warn("local state cache write failed", logger.Error(cacheErr))
		}
	}

	if remoteErr != nil {
		span.RecordError(remoteErr)
		s.metrics.Save(false)
		if !s.degraded.Swap(true) {
			s.metrics.Degraded(true)
			s.log.Warn("state kept in local cache only", logger.Error(remoteErr))
		}
		return errors.Join(fmt.Errorf("save state: %w", remoteErr), cacheErr)
	}

	s.metrics.Save(true)
	if s.degraded.Swap(false) {
		s.metrics.Degraded(false)
		s.log.Info("state store recovered")
	}
	s.lastSaved.Store(time.Now().UnixNano())
	s.log.Debug("state saved", logger.Int("records", len(records)), logger.Duration("duration_ms", time.Since(start)))
	return nil
}

func (s *Saver) writeAll(ctx context.Context, st Store, records map[string][]byte) error {
	names := make([]string, 0, len(records))
	for name := range records {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := st.Set(ctx, s.cfg.Owner, name, records[name]); err != nil {
			return err
		}
	}
	return nil
}

// Load reads the named records from the remote store, falling back to the
// local cache when the remote is unreachable or holds nothing. The returned
// origin is "remote", "cache" or "" when neither had any record.
func (s *Saver) Load(ctx context.Context, names []string) (map[string][]byte, string, error) {
	ctx, span := s.tracer.Start(ctx, "state-saver.load")
	defer span.End()

	records, err := readAll(ctx, s.remote, s.cfg.Owner, names)
	if err == nil && len(records) > 0 {
		return records, "remote", nil
	}
	if err != nil {
		span.RecordError(err)
		s.log.Warn("remote state unavailable, trying local cache", logger.Error(err))
	}
	if s.cache == nil {
		return nil, "", err
	}
	cached, cacheErr := readAll(ctx, s.cache, s.cfg.Owner, names)
	if cacheErr != nil {
		return nil, "", errors.Join(err, cacheErr)
	}
	if len(cached) == 0 {
		return nil, "", err
	}
	if err != nil {
		s.degraded.Store(true)
		s.metrics.Degraded(true)
	}
	return cached, "cache", nil
}

func readAll(ctx context.Context, st Store, owner string, names []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(names))
	for _, name := range names {
		b, err := st.Get(ctx, owner, name)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[name] = b
	}
	return out, nil
}
