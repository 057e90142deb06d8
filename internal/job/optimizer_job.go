package job

import (
	"context"
	"time"

	"oraculum/internal/forecast/optimizer"
	"oraculum/pkg/logger"

	"go.opentelemetry.io/otel/trace"
)

type Optimizer interface {
	Optimize(ctx context.Context) optimizer.Report
}

// OptimizerJob runs the optimizer once after an initial delay, then on a
// fixed interval.
type OptimizerJob struct {
	tracer       trace.Tracer
	log          *logger.Logger
	service      Optimizer
	initialDelay time.Duration
	interval     time.Duration
}

func NewOptimizerJob(tracer trace.Tracer, log *logger.Logger, service Optimizer, initialDelay, interval time.Duration) *OptimizerJob {
	if initialDelay <= 0 {
		initialDelay = 5 * time.Minute
	}
	if interval <= 0 {
		interval = time.Hour
	}
	if log == nil {
		log = logger.Nop()
	}
	return &OptimizerJob{
		tracer:       tracer,
		log:          log.With(logger.String("job", "optimizer")),
		service:      service,
		initialDelay: initialDelay,
		interval:     interval,
	}
}

func (j *OptimizerJob) Start(ctx context.Context) {
	if j.service == nil {
		j.log.Info("optimizer job disabled: no engine")
		<-ctx.Done()
		return
	}
	timer := time.NewTimer(j.initialDelay)
	select {
	case <-ctx.Done():
		timer.Stop()
		return
	case <-timer.C:
	}
	j.runOnce(ctx)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.runOnce(ctx)
		}
	}
}

func (j *OptimizerJob) runOnce(ctx context.Context) {
	ctx, span := j.tracer.Start(ctx, "optimizer-job.run-once")
	defer span.End()

	rep := j.service.Optimize(ctx)
	j.log.Debug("optimizer run complete", logger.Float("learning_rate", rep.LearningRate))
}
