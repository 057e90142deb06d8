package job

import (
	"context"
	"time"

	"oraculum/pkg/logger"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type DueRunner interface {
	RunDue(ctx context.Context, now time.Time) (int, error)
}

// VerifierJob drains due horizon checks on a short poll.
type VerifierJob struct {
	tracer       trace.Tracer
	log          *logger.Logger
	runner       DueRunner
	pollInterval time.Duration
	now          func() time.Time
}

func NewVerifierJob(tracer trace.Tracer, log *logger.Logger, runner DueRunner, pollInterval time.Duration) *VerifierJob {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	if log == nil {
		log = logger.Nop()
	}
	return &VerifierJob{
		tracer:       tracer,
		log:          log.With(logger.String("job", "verifier")),
		runner:       runner,
		pollInterval: pollInterval,
		now:          time.Now,
	}
}

func (j *VerifierJob) Start(ctx context.Context) {
	if j.runner == nil {
		j.log.Info("verifier job disabled: no engine")
		<-ctx.Done()
		return
	}
	j.runOnce(ctx)
	ticker := time.NewTicker(j.pollInterval)
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

func (j *VerifierJob) runOnce(ctx context.Context) {
	ctx, span := j.tracer.Start(ctx, "verifier-job.run-once")
	defer span.End()

	applied, err := j.runner.RunDue(ctx, j.now())
	if err != nil {
		span.RecordError(err)
		j.log.Warn("verification run failed", logger.Error(err))
		return
	}
	span.SetAttributes(attribute.Int("applied", applied))
	if applied > 0 {
		j.log.Debug("verifications applied", logger.Int("count", applied))
	}
}
