package ensemble

import (
	"math"
	"sort"
	"time"

	"oraculum/internal/domain"
	"oraculum/internal/forecast/features"
	"oraculum/internal/forecast/memory"
	"oraculum/internal/forecast/models"
)

// PatternQuerier finds the closest remembered pattern.
type PatternQuerier interface {
	Query(regime domain.Regime, vec domain.FeatureVector, ctx memory.Context) (domain.PatternMatch, bool)
}

// Calibrator rescales a raw confidence for a horizon.
type Calibrator interface {
	Calibrate(horizon int, p float64) float64
}

type Config struct {
	// DecisionMargin is how far the leading bucket must beat the runner-up.
	DecisionMargin  float64
	ConfidenceFloor float64
	Regime          RegimeConfig
	Buckets         BucketConfig
	Breakout        BreakoutConfig
	Stages          StageConfig
}

func DefaultConfig() Config {
	return Config{
		DecisionMargin:  0.10,
		ConfidenceFloor: 0.35,
		Regime:          RegimeConfig{VolatileScore: 1.5, TrendADX: 25},
		Buckets:         BucketConfig{LowBelow: 0.8, HighAbove: 1.5},
		Breakout:        BreakoutConfig{FakeRisk: 0.6, ContinuationRisk: 0.3, NearLevelPct: 0.3},
		Stages:          DefaultStageConfig(),
	}
}

type Aggregator struct {
	cfg        Config
	bank       *models.Bank
	registry   *features.Registry
	patterns   PatternQuerier
	calibrator Calibrator
	pipeline   Pipeline
}

// NewAggregator wires the bank with optional pattern memory and calibrator;
// either may be nil.
func NewAggregator(cfg Config, bank *models.Bank, registry *features.Registry, patterns PatternQuerier, calibrator Calibrator) *Aggregator {
	return &Aggregator{
		cfg:        cfg,
		bank:       bank,
		registry:   registry,
		patterns:   patterns,
		calibrator: calibrator,
		pipeline:   DefaultPipeline(cfg.Stages),
	}
}

func (a *Aggregator) Pipeline() Pipeline { return a.pipeline }

// Aggregate produces the ensemble forecast for a snapshot together with the
// pattern-memory feature vector it was matched on.
func (a *Aggregator) Aggregate(s domain.MarketSnapshot, referenceHorizon int) (domain.EnsembleResult, domain.FeatureVector) {
	ts := s.Time
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	modelVotes := a.bank.PredictAll(s)
	votes := a.tally(modelVotes)
	direction, top := decide(votes, a.cfg.DecisionMargin)
	base := math.Max(a.cfg.ConfidenceFloor, top)

	volScore := VolatilityScore(s)
	bucket := Bucket(volScore, a.cfg.Buckets)
	regime := DetectRegime(s, volScore, a.cfg.Regime)
	session := SessionAt(ts)
	breakout, risk := Breakout(s, volScore, a.cfg.Breakout)

	vec := a.registry.MemoryVector(s)
	var match *domain.PatternMatch
	if a.patterns != nil && len(vec) > 0 {
		if m, ok := a.patterns.Query(regime, vec, memory.Context{Session: session, VolatilityBucket: bucket}); ok {
			match = &m
		}
	}

	conf, adjustments := a.pipeline.Run(base, StageInput{
		Direction:       direction,
		Regime:          regime,
		Session:         session,
		VolatilityScore: volScore,
		Breakout:        breakout,
		Match:           match,
	})

	calibrated := conf
	if a.calibrator != nil {
		calibrated = a.calibrator.Calibrate(referenceHorizon, conf)
	}

	return domain.EnsembleResult{
		Direction:            direction,
		ConfidenceRaw:        conf,
		ConfidenceCalibrated: calibrated,
		Votes:                votes,
		ModelVotes:           modelVotes,
		Regime:               regime,
		Session:              session,
		VolatilityScore:      volScore,
		VolatilityBucket:     bucket,
		Breakout:             breakout,
		BreakoutRisk:         risk,
		PatternMatch:         match,
		Adjustments:          adjustments,
		ReferenceHorizon:     referenceHorizon,
		Timestamp:            ts,
	}, vec
}

// tally weights each vote by weight*accuracy*confidence and normalizes the
// three buckets to sum to one.
func (a *Aggregator) tally(modelVotes map[string]domain.ModelVote) map[domain.Direction]float64 {
	votes := map[domain.Direction]float64{
		domain.DirectionBull:    0,
		domain.DirectionBear:    0,
		domain.DirectionNeutral: 0,
	}
	total := 0.0
	for _, spec := range a.bank.Specs() {
		v, ok := modelVotes[spec.Name]
		if !ok {
			continue
		}
		w := spec.Weight * spec.Accuracy * v.Confidence
		votes[v.Direction] += w
		total += w
	}
	if total > 0 {
		for d := range votes {
			votes[d] /= total
		}
	}
	return votes
}

// decide picks the leading bucket when it beats the runner-up by margin and
// is directional; everything else is NEUTRAL. Ordering is deterministic.
func decide(votes map[domain.Direction]float64, margin float64) (domain.Direction, float64) {
	order := []domain.Direction{domain.DirectionBull, domain.DirectionBear, domain.DirectionNeutral}
	sort.SliceStable(order, func(i, j int) bool { return votes[order[i]] > votes[order[j]] })
	winner, runnerUp := order[0], order[1]
	top := votes[winner]
	if winner == domain.DirectionNeutral || top-votes[runnerUp] < margin {
		return domain.DirectionNeutral, top
	}
	return winner, top
}
