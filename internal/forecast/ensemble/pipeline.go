package ensemble

import (
	"math"

	"oraculum/internal/domain"
)

// StageInput is the read-only context every adjustment stage sees.
type StageInput struct {
	Direction       domain.Direction
	Regime          domain.Regime
	Session         domain.Session
	VolatilityScore float64
	Breakout        domain.BreakoutClass
	Match           *domain.PatternMatch
}

// Stage maps a confidence to an adjusted confidence.
type Stage struct {
	Name  string
	Apply func(conf float64, in StageInput) float64
}

// Pipeline runs its stages in order and records each step.
type Pipeline []Stage

func (p Pipeline) Run(conf float64, in StageInput) (float64, []domain.Adjustment) {
	adjustments := make([]domain.Adjustment, 0, len(p))
	for _, stage := range p {
		next := stage.Apply(conf, in)
		mult := 1.0
		if conf > 0 {
			mult = next / conf
		}
		adjustments = append(adjustments, domain.Adjustment{Stage: stage.Name, Multiplier: mult, Confidence: next})
		conf = next
	}
	return conf, adjustments
}

// StageConfig holds the multipliers of the default pipeline.
type StageConfig struct {
	Regime                    map[domain.Regime]float64
	Session                   map[domain.Session]float64
	HighVolatilityScore       float64
	HighVolatilityMultiplier  float64
	FakeBreakoutMultiplier    float64
	PatternConflictConfidence float64
	PatternConflictMultiplier float64
	MinConfidence             float64
	MaxConfidence             float64
}

func DefaultStageConfig() StageConfig {
	return StageConfig{
		Regime: map[domain.Regime]float64{
			domain.RegimeTrendingUp:   1.15,
			domain.RegimeTrendingDown: 1.15,
			domain.RegimeRanging:      0.85,
			domain.RegimeVolatile:     0.70,
		},
		Session: map[domain.Session]float64{
			domain.SessionAsia:   0.95,
			domain.SessionEurope: 1.0,
			domain.SessionUS:     1.0,
		},
		HighVolatilityScore:       2.0,
		HighVolatilityMultiplier:  0.85,
		FakeBreakoutMultiplier:    0.80,
		PatternConflictConfidence: 0.7,
		PatternConflictMultiplier: 0.7,
		MinConfidence:             0.05,
		MaxConfidence:             0.95,
	}
}

// DefaultPipeline builds the stages regime, session, volatility, breakout,
// pattern_memory and clamp in that order.
func DefaultPipeline(cfg StageConfig) Pipeline {
	lookup := func(m float64, ok bool) float64 {
		if !ok {
			return 1
		}
		return m
	}
	return Pipeline{
		{Name: "regime", Apply: func(c float64, in StageInput) float64 {
			m, ok := cfg.Regime[in.Regime]
			return c * lookup(m, ok)
		}},
		{Name: "session", Apply: func(c float64, in StageInput) float64 {
			m, ok := cfg.Session[in.Session]
			return c * lookup(m, ok)
		}},
		{Name: "volatility", Apply: func(c float64, in StageInput) float64 {
			if in.VolatilityScore > cfg.HighVolatilityScore {
				return c * cfg.HighVolatilityMultiplier
			}
			return c
		}},
		{Name: "breakout", Apply: func(c float64, in StageInput) float64 {
			if in.Breakout == domain.BreakoutFakeRisk {
				return c * cfg.FakeBreakoutMultiplier
			}
			return c
		}},
		{Name: "pattern_memory", Apply: func(c float64, in StageInput) float64 {
			if in.Match == nil {
				return c
			}
			c = (c + in.Match.SuccessRate) / 2
			if in.Match.Direction != in.Direction && in.Match.Confidence > cfg.PatternConflictConfidence {
				c *= cfg.PatternConflictMultiplier
			}
			return c
		}},
		{Name: "clamp", Apply: func(c float64, _ StageInput) float64 {
			if math.IsNaN(c) {
				return cfg.MinConfidence
			}
			return math.Max(cfg.MinConfidence, math.Min(cfg.MaxConfidence, c))
		}},
	}
}
