package job

import (
	"context"
	"time"

	"oraculum/internal/domain"
	"oraculum/pkg/logger"

	"go.opentelemetry.io/otel/trace"
)

type SnapshotFetcher interface {
	Fetch(ctx context.Context, symbol string) (domain.MarketSnapshot, error)
}

type SnapshotConsumer interface {
	Observe(ctx context.Context, snap domain.MarketSnapshot)
	LastSnapshot() (domain.MarketSnapshot, bool)
	Issue(ctx context.Context, snap domain.MarketSnapshot, priority domain.Priority) (*domain.Prediction, error)
}

// SnapshotPoller feeds the engine from the snapshot feed and, when enabled,
// issues a low-priority prediction from the latest snapshot on its own
// cadence.
type SnapshotPoller struct {
	tracer        trace.Tracer
	log           *logger.Logger
	feed          SnapshotFetcher
	engine        SnapshotConsumer
	symbol        string
	pollInterval  time.Duration
	issueInterval time.Duration
	enrich        func(domain.MarketSnapshot) domain.MarketSnapshot
}

func NewSnapshotPoller(tracer trace.Tracer, log *logger.Logger, feed SnapshotFetcher, engine SnapshotConsumer, symbol string, pollIntervalSecs, autoIssueSecs int) *SnapshotPoller {
	if pollIntervalSecs <= 0 {
		pollIntervalSecs = 5
	}
	if log == nil {
		log = logger.Nop()
	}
	return &SnapshotPoller{
		tracer:        tracer,
		log:           log.With(logger.String("job", "snapshot-poller"), logger.String("symbol", symbol)),
		feed:          feed,
		engine:        engine,
		symbol:        symbol,
		pollInterval:  time.Duration(pollIntervalSecs) * time.Second,
		issueInterval: time.Duration(autoIssueSecs) * time.Second,
	}
}

// Start blocks until ctx is cancelled.
func (p *SnapshotPoller) Start(ctx context.Context) {
	if p.feed == nil || p.engine == nil {
		p.log.Info("snapshot poller disabled: no feed configured")
		<-ctx.Done()
		return
	}
	p.log.Info("snapshot poller starting")
	if p.issueInterval > 0 {
		go p.pollLoop(ctx, "auto-issue", p.issueInterval, p.autoIssue)
	}
	p.pollLoop(ctx, "snapshot", p.pollInterval, p.poll)
	p.log.Info("snapshot poller stopped")
}

func (p *SnapshotPoller) pollLoop(ctx context.Context, name string, interval time.Duration, fn func(context.Context) error) {
	if err := fn(ctx); err != nil {
		p.log.Warn("poller initial run failed", logger.String("loop", name), logger.Error(err))
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := fn(ctx); err != nil {
				p.log.Warn("poller run failed", logger.String("loop", name), logger.Error(err))
			}
		}
	}
}

// SetEnricher installs a step that fills readings the feed left out before
// the snapshot reaches the engine.
func (p *SnapshotPoller) SetEnricher(fn func(domain.MarketSnapshot) domain.MarketSnapshot) {
	p.enrich = fn
}

func (p *SnapshotPoller) poll(ctx context.Context) error {
	ctx, span := p.tracer.Start(ctx, "snapshot-poller.poll")
	defer span.End()

	snap, err := p.feed.Fetch(ctx, p.symbol)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if p.enrich != nil {
		snap = p.enrich(snap)
	}
	p.engine.Observe(ctx, snap)
	return nil
}

func (p *SnapshotPoller) autoIssue(ctx context.Context) error {
	ctx, span := p.tracer.Start(ctx, "snapshot-poller.auto-issue")
	defer span.End()

	snap, ok := p.engine.LastSnapshot()
	if !ok {
		return nil
	}
	pred, err := p.engine.Issue(ctx, snap, domain.PriorityLow)
	if err != nil {
		span.RecordError(err)
		return err
	}
	p.log.Debug("auto prediction issued",
		logger.String("prediction_id", pred.ID),
		logger.String("direction", string(pred.Result.Direction)),
		logger.Float("confidence", pred.Result.ConfidenceCalibrated))
	return nil
}
