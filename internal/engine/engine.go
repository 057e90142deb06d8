package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"oraculum/internal/domain"
	"oraculum/internal/forecast/calibration"
	"oraculum/internal/forecast/ensemble"
	"oraculum/internal/forecast/features"
	"oraculum/internal/forecast/learner"
	"oraculum/internal/forecast/ledger"
	"oraculum/internal/forecast/memory"
	"oraculum/internal/forecast/models"
	"oraculum/internal/forecast/optimizer"
	"oraculum/internal/forecast/scoreboard"
	"oraculum/pkg/logger"
	"oraculum/pkg/metrics"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var ErrNoPrice = ledger.ErrNoPrice

type Config struct {
	Features    features.Config
	Models      models.Config
	Memory      memory.Config
	Ensemble    ensemble.Config
	Calibration calibration.Config
	Scoreboard  scoreboard.Config
	Ledger      ledger.Config
	Learner     learner.Config
	Optimizer   optimizer.Config

	// ReferenceHorizon selects the calibrator applied to live forecasts.
	ReferenceHorizon int
	// SaveEvery requests a save after this many finalized predictions.
	SaveEvery int
	// HighConfidence is the calibrated confidence logged at info level.
	HighConfidence float64
}

func DefaultConfig() Config {
	return Config{
		Features:         features.Config{},
		Models:           models.DefaultConfig(),
		Memory:           memory.DefaultConfig(),
		Ensemble:         ensemble.DefaultConfig(),
		Calibration:      calibration.DefaultConfig(),
		Scoreboard:       scoreboard.DefaultConfig(),
		Ledger:           ledger.DefaultConfig(),
		Learner:          learner.DefaultConfig(),
		Optimizer:        optimizer.DefaultConfig(),
		ReferenceHorizon: 15,
		SaveEvery:        10,
		HighConfidence:   0.75,
	}
}

// Saver persists engine state out of band.
type Saver interface {
	Request()
	Flush(ctx context.Context) error
}

// FinalizedHook receives every prediction as it completes.
type FinalizedHook func(ctx context.Context, p domain.Prediction)

type Deps struct {
	Logger    *logger.Logger
	Tracer    trace.Tracer
	Metrics   *metrics.Recorder
	Scheduler ledger.Scheduler
	Specs     []models.ModelSpec
	Now       func() time.Time
}

// Engine owns every forecasting component. All mutation happens under mu;
// scheduler, saver and hook calls run outside it.
type Engine struct {
	cfg     Config
	log     *logger.Logger
	tracer  trace.Tracer
	metrics *metrics.Recorder
	now     func() time.Time

	mu         sync.Mutex
	registry   *features.Registry
	bank       *models.Bank
	memory     *memory.Memory
	calibrator *calibration.Calibrator
	board      *scoreboard.Board
	aggregator *ensemble.Aggregator
	ledger     *ledger.Ledger
	learner    *learner.Learner
	optimizer  *optimizer.Optimizer
	scheduler  ledger.Scheduler
	saver      Saver
	hooks      []FinalizedHook

	lastSnapshot domain.MarketSnapshot
	hasSnapshot  bool
	// prices holds the last observed price per symbol; checks are only
	// scored against their own prediction's market.
	prices         map[string]float64
	finalizedCount int
}

func New(cfg Config, deps Deps) *Engine {
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}
	if deps.Tracer == nil {
		deps.Tracer = trace.NewNoopTracerProvider().Tracer("engine")
	}
	if deps.Scheduler == nil {
		deps.Scheduler = ledger.NewHeapScheduler()
	}
	if deps.Now == nil {
		deps.Now = func() time.Time { return time.Now().UTC() }
	}
	if cfg.SaveEvery <= 0 {
		cfg.SaveEvery = DefaultConfig().SaveEvery
	}
	if cfg.ReferenceHorizon <= 0 {
		cfg.ReferenceHorizon = DefaultConfig().ReferenceHorizon
	}

	registry := features.NewRegistry(cfg.Features)
	bank := models.NewBank(cfg.Models, registry, deps.Specs)
	mem := memory.New(cfg.Memory)
	cal := calibration.New(cfg.Calibration)
	board := scoreboard.New(cfg.Scoreboard)

	return &Engine{
		cfg:        cfg,
		log:        deps.Logger,
		tracer:     deps.Tracer,
		metrics:    deps.Metrics,
		now:        deps.Now,
		registry:   registry,
		bank:       bank,
		memory:     mem,
		calibrator: cal,
		board:      board,
		aggregator: ensemble.NewAggregator(cfg.Ensemble, bank, registry, mem, cal),
		ledger:     ledger.New(cfg.Ledger),
		learner:    learner.New(cfg.Learner, bank, mem, cal, board),
		optimizer:  optimizer.New(cfg.Optimizer),
		scheduler:  deps.Scheduler,
		prices:     make(map[string]float64),
	}
}

func symbolKey(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// remember records snap as the latest snapshot. Callers hold mu.
func (e *Engine) remember(snap domain.MarketSnapshot) {
	e.lastSnapshot = snap
	e.hasSnapshot = true
	e.prices[symbolKey(snap.Symbol)] = snap.Price
}

// SetSaver attaches the persistence saver once it can read the engine.
func (e *Engine) SetSaver(s Saver) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.saver = s
}

// OnFinalized registers a hook called after each completion.
func (e *Engine) OnFinalized(h FinalizedHook) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hooks = append(e.hooks, h)
}

func (e *Engine) requestSave() {
	e.mu.Lock()
	s := e.saver
	e.mu.Unlock()
	if s != nil {
		s.Request()
	}
}

// Observe records the latest snapshot; its price drives verification of
// predictions for the same symbol.
func (e *Engine) Observe(ctx context.Context, snap domain.MarketSnapshot) {
	_, span := e.tracer.Start(ctx, "engine.observe")
	defer span.End()

	if !snap.HasPrice() {
		return
	}
	e.mu.Lock()
	e.remember(snap)
	e.mu.Unlock()
}

// LastSnapshot returns the most recent priced snapshot.
func (e *Engine) LastSnapshot() (domain.MarketSnapshot, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastSnapshot, e.hasSnapshot
}

// GetPrediction runs the ensemble without recording a prediction.
func (e *Engine) GetPrediction(ctx context.Context, snap domain.MarketSnapshot) (domain.EnsembleResult, error) {
	_, span := e.tracer.Start(ctx, "engine.get-prediction")
	defer span.End()
	start := time.Now()

	snap = e.stamp(snap)
	e.mu.Lock()
	res, _ := e.aggregator.Aggregate(snap, e.cfg.ReferenceHorizon)
	e.mu.Unlock()

	span.SetAttributes(attribute.String("direction", string(res.Direction)))
	e.metrics.Latency("get_prediction", time.Since(start).Seconds())
	return res, nil
}

func (e *Engine) stamp(snap domain.MarketSnapshot) domain.MarketSnapshot {
	if snap.Time.IsZero() {
		snap.Time = e.now()
	}
	return snap
}

// Issue forecasts the snapshot, records the prediction and schedules its
// checks.
func (e *Engine) Issue(ctx context.Context, snap domain.MarketSnapshot, priority domain.Priority) (*domain.Prediction, error) {
	ctx, span := e.tracer.Start(ctx, "engine.issue")
	defer span.End()

	if !snap.HasPrice() {
		return nil, ErrNoPrice
	}
	snap = e.stamp(snap)

	e.mu.Lock()
	e.remember(snap)
	res, vec := e.aggregator.Aggregate(snap, e.cfg.ReferenceHorizon)
	p, tasks, pruned, err := e.ledger.Issue(ledger.Issue{
		Symbol:   snap.Symbol,
		Price:    snap.Price,
		Priority: priority,
		Result:   res,
		Features: vec,
		At:       snap.Time,
	})
	pending := e.ledger.PendingCount()
	patterns := e.memory.Len()
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}

	if err := e.scheduler.Schedule(ctx, tasks...); err != nil {
		span.RecordError(err)
		e.log.Error("schedule verification", logger.String("prediction_id", p.ID), logger.Error(err))
	}
	if len(pruned) > 0 {
		e.log.Warn("pending predictions pruned", logger.Int("count", len(pruned)))
	}

	span.SetAttributes(
		attribute.String("prediction.id", p.ID),
		attribute.String("direction", string(res.Direction)),
		attribute.Float64("confidence", res.ConfidenceCalibrated),
	)
	e.metrics.PredictionIssued(string(res.Direction), string(p.Priority))
	e.metrics.Sizes(patterns, pending)
	if res.ConfidenceCalibrated > e.cfg.HighConfidence {
		e.log.Info("high confidence forecast",
			logger.String("prediction_id", p.ID),
			logger.String("direction", string(res.Direction)),
			logger.Float("confidence", res.ConfidenceCalibrated),
			logger.String("regime", string(res.Regime)))
	}
	e.requestSave()
	return p, nil
}

// RunDue verifies every check due at now against the last observed price
// of the prediction's symbol. Checks for a symbol with no price yet are put
// back, so they wait for its next snapshot.
func (e *Engine) RunDue(ctx context.Context, now time.Time) (int, error) {
	ctx, span := e.tracer.Start(ctx, "engine.run-due")
	defer span.End()

	e.mu.Lock()
	has := len(e.prices) > 0
	e.mu.Unlock()
	if !has {
		return 0, nil
	}

	tasks, err := e.scheduler.PopDue(ctx, now)
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("pop due checks: %w", err)
	}
	if len(tasks) == 0 {
		return 0, nil
	}

	type scored struct {
		horizon int
		success bool
		tally   scoreboard.Tally
	}
	var (
		applied   []scored
		finalized []domain.Prediction
		waiting   []ledger.Task
		saveDue   bool
	)

	e.mu.Lock()
	for _, task := range tasks {
		symbol, ok := e.ledger.Symbol(task.ID)
		if !ok {
			continue
		}
		price, ok := e.prices[symbolKey(symbol)]
		if !ok {
			waiting = append(waiting, task)
			continue
		}
		res := e.ledger.Verify(task.ID, task.Horizon, price, now)
		if !res.Applied {
			continue
		}
		e.board.RecordHorizon(task.Horizon, res.Confidence, res.Verification.Success)
		applied = append(applied, scored{task.Horizon, res.Verification.Success, e.board.Horizon(task.Horizon)})
		if res.Completed == nil {
			continue
		}
		rep := e.learner.Learn(res.Completed, e.optimizer.LearningRate())
		if len(rep.Evicted) > 0 {
			e.log.Debug("patterns evicted", logger.Int("count", len(rep.Evicted)))
		}
		finalized = append(finalized, *res.Completed)
		e.finalizedCount++
		if e.finalizedCount%e.cfg.SaveEvery == 0 {
			saveDue = true
		}
	}
	hooks := append([]FinalizedHook(nil), e.hooks...)
	patterns, pending := e.memory.Len(), e.ledger.PendingCount()
	temps := make(map[int]float64, len(applied))
	for _, a := range applied {
		temps[a.horizon] = e.calibrator.Temperature(a.horizon)
	}
	e.mu.Unlock()

	if len(waiting) > 0 {
		if err := e.scheduler.Schedule(ctx, waiting...); err != nil {
			span.RecordError(err)
			e.log.Error("requeue checks awaiting a price", logger.Int("count", len(waiting)), logger.Error(err))
		}
	}

	for _, a := range applied {
		e.metrics.Verification(a.horizon, a.success)
		e.metrics.HorizonScore(a.horizon, a.tally.WinRate(), a.tally.Brier())
		e.metrics.Temperature(a.horizon, temps[a.horizon])
	}
	e.metrics.Sizes(patterns, pending)
	for _, p := range finalized {
		e.metrics.Finalized(p.Outcome.Success)
		e.log.Info("prediction finalized",
			logger.String("prediction_id", p.ID),
			logger.String("direction", string(p.Result.Direction)),
			logger.Bool("success", p.Outcome.Success),
			logger.Float("avg_change_pct", p.Outcome.AvgPriceChange))
		for _, h := range hooks {
			h(ctx, p)
		}
	}
	if saveDue {
		e.requestSave()
	}
	span.SetAttributes(attribute.Int("checks.applied", len(applied)), attribute.Int("finalized", len(finalized)))
	return len(applied), nil
}

// Optimize runs one optimizer pass and requests a save.
func (e *Engine) Optimize(ctx context.Context) optimizer.Report {
	_, span := e.tracer.Start(ctx, "engine.optimize")
	defer span.End()

	e.mu.Lock()
	rep := e.optimizer.Run(e.now(), e.ledger, e.memory, e.board)
	e.mu.Unlock()

	e.metrics.LearningRate(rep.LearningRate)
	fields := []logger.Field{
		logger.Int("samples", rep.Samples),
		logger.Float("recent_accuracy", rep.RecentAccuracy),
		logger.Float("learning_rate", rep.LearningRate),
		logger.Int("patterns_swept", rep.PatternsSwept),
		logger.Int("stale_swept", len(rep.StaleSwept)),
	}
	if rep.HasBest {
		fields = append(fields, logger.Int("best_horizon", rep.BestHorizon), logger.Float("best_win_rate", rep.BestWinRate))
	}
	e.log.Info("optimization complete", fields...)
	e.requestSave()
	return rep
}

// ForceSave writes state now, bypassing debounce and rate limit.
func (e *Engine) ForceSave(ctx context.Context) error {
	ctx, span := e.tracer.Start(ctx, "engine.force-save")
	defer span.End()

	e.mu.Lock()
	s := e.saver
	e.mu.Unlock()
	if s == nil {
		return nil
	}
	if err := s.Flush(ctx); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// Lookup returns a pending or completed prediction by id.
func (e *Engine) Lookup(id string) (*domain.Prediction, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.Lookup(id)
}

// Recent returns up to n completed predictions, oldest first.
func (e *Engine) Recent(n int) []domain.Prediction {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.Recent(n)
}
