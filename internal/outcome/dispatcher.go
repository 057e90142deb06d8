package outcome

import (
	"context"
	"sync"
	"time"

	"oraculum/internal/domain"
	"oraculum/pkg/logger"
	"oraculum/pkg/metrics"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Sink receives finalized predictions.
type Sink interface {
	Name() string
	Publish(ctx context.Context, p domain.Prediction) error
}

type DispatcherConfig struct {
	QueueSize   int
	SinkTimeout time.Duration
}

// Dispatcher fans finalized predictions out to sinks on its own goroutine so
// sink latency never reaches the engine.
type Dispatcher struct {
	cfg     DispatcherConfig
	sinks   []Sink
	log     *logger.Logger
	tracer  trace.Tracer
	metrics *metrics.Recorder
	queue   chan domain.Prediction

	mu      sync.Mutex
	dropped int
}

func NewDispatcher(cfg DispatcherConfig, log *logger.Logger, tracer trace.Tracer, rec *metrics.Recorder, sinks ...Sink) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = 5 * time.Second
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Dispatcher{
		cfg:     cfg,
		sinks:   sinks,
		log:     log.With(logger.String("component", "outcome-dispatcher")),
		tracer:  tracer,
		metrics: rec,
		queue:   make(chan domain.Prediction, cfg.QueueSize),
	}
}

func (d *Dispatcher) Sinks() []string {
	names := make([]string, len(d.sinks))
	for i, s := range d.sinks {
		names[i] = s.Name()
	}
	return names
}

// Enqueue has the engine.FinalizedHook signature. A full queue drops the
// prediction rather than blocking the verifier.
func (d *Dispatcher) Enqueue(_ context.Context, p domain.Prediction) {
	if len(d.sinks) == 0 {
		return
	}
	select {
	case d.queue <- p:
	default:
		d.mu.Lock()
		d.dropped++
		n := d.dropped
		d.mu.Unlock()
		d.log.Warn("outcome queue full, dropping prediction", logger.String("prediction_id", p.ID), logger.Int("dropped_total", n))
	}
}

func (d *Dispatcher) Dropped() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dropped
}

// Run delivers queued predictions until ctx is done, then drains what is
// already queued.
func (d *Dispatcher) Run(ctx context.Context) {
	if len(d.sinks) == 0 {
		d.log.Info("outcome dispatcher disabled: no sinks configured")
		return
	}
	for {
		select {
		case <-ctx.Done():
			d.drain()
			return
		case p := <-d.queue:
			d.deliver(ctx, p)
		}
	}
}

func (d *Dispatcher) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.SinkTimeout)
	defer cancel()
	for {
		select {
		case p := <-d.queue:
			d.deliver(ctx, p)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, p domain.Prediction) {
	ctx, span := d.tracer.Start(ctx, "outcome.deliver")
	defer span.End()
	span.SetAttributes(attribute.String("prediction_id", p.ID))

	for _, s := range d.sinks {
		sctx, cancel := context.WithTimeout(ctx, d.cfg.SinkTimeout)
		err := s.Publish(sctx, p)
		cancel()
		d.metrics.SinkPublish(s.Name(), err == nil)
		if err != nil {
			span.RecordError(err)
			d.log.Warn("outcome sink failed",
				logger.String("sink", s.Name()),
				logger.String("prediction_id", p.ID),
				logger.Error(err))
		}
	}
}
