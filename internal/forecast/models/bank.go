package models

import (
	"math"

	"oraculum/internal/domain"
	"oraculum/internal/forecast/features"
)

// ModelSpec is one predictor of the bank. Weight and Accuracy are adjusted
// only by the outcome learner.
type ModelSpec struct {
	Name            string   `json:"name"`
	Features        []string `json:"features"`
	Weight          float64  `json:"weight"`
	Accuracy        float64  `json:"accuracy"`
	PredictionsSeen int      `json:"predictions_seen"`
	CorrectSeen     int      `json:"correct_seen"`
}

type Config struct {
	// DecisionThreshold is the probability a side needs to be called.
	DecisionThreshold float64
	// ConfidenceGain scales the distance of the winning probability from 0.5.
	ConfidenceGain     float64
	MaxConfidence      float64
	FallbackConfidence float64
	MinWeight          float64
	MaxWeight          float64
}

func DefaultConfig() Config {
	return Config{
		DecisionThreshold:  0.52,
		ConfidenceGain:     1.0,
		MaxConfidence:      0.95,
		FallbackConfidence: 0.3,
		MinWeight:          0.3,
		MaxWeight:          2.0,
	}
}

const neutralConfidence = 0.5

// DefaultSpecs returns the bank with neutral starting weights.
func DefaultSpecs() []ModelSpec {
	mk := func(name string, weight float64, feats ...string) ModelSpec {
		return ModelSpec{Name: name, Features: feats, Weight: weight, Accuracy: 0.5}
	}
	return []ModelSpec{
		mk("momentum", 1.0, features.RSI, features.StochRSI, features.Momentum, features.RSIDivergence),
		mk("trend", 1.0, features.EMACross, features.MACD, features.ADX, features.Supertrend),
		mk("volume", 1.0, features.Volume, features.OBV, features.CVD, features.WhaleFlow),
		mk("structure", 1.0, features.SupportResist, features.OrderBlocks, features.FVG, features.Liquidity),
		mk("patterns", 1.0, features.CandlePatterns, features.ChartPatterns, features.Divergences),
		mk("mtf", 1.2, features.MTF1m, features.MTF5m, features.MTF15m, features.MTF1h, features.MTF4h),
	}
}

// Bank owns the model specs in a fixed order.
type Bank struct {
	cfg      Config
	registry *features.Registry
	specs    []ModelSpec
}

func NewBank(cfg Config, registry *features.Registry, specs []ModelSpec) *Bank {
	def := DefaultConfig()
	if cfg.DecisionThreshold <= 0.5 || cfg.DecisionThreshold >= 1 {
		cfg.DecisionThreshold = def.DecisionThreshold
	}
	if cfg.ConfidenceGain <= 0 {
		cfg.ConfidenceGain = def.ConfidenceGain
	}
	if cfg.MaxConfidence <= 0 || cfg.MaxConfidence > 1 {
		cfg.MaxConfidence = def.MaxConfidence
	}
	if cfg.FallbackConfidence <= 0 || cfg.FallbackConfidence >= 1 {
		cfg.FallbackConfidence = def.FallbackConfidence
	}
	if cfg.MinWeight <= 0 {
		cfg.MinWeight = def.MinWeight
	}
	if cfg.MaxWeight < cfg.MinWeight {
		cfg.MaxWeight = def.MaxWeight
	}
	if len(specs) == 0 {
		specs = DefaultSpecs()
	}
	b := &Bank{cfg: cfg, registry: registry, specs: make([]ModelSpec, len(specs))}
	copy(b.specs, specs)
	return b
}

func (b *Bank) Config() Config { return b.cfg }

func (b *Bank) Len() int { return len(b.specs) }

// Specs returns a copy of the current specs.
func (b *Bank) Specs() []ModelSpec {
	out := make([]ModelSpec, len(b.specs))
	for i, s := range b.specs {
		s.Features = append([]string(nil), s.Features...)
		out[i] = s
	}
	return out
}

// Spec returns a pointer to the named spec for in-place learning updates.
func (b *Bank) Spec(name string) *ModelSpec {
	for i := range b.specs {
		if b.specs[i].Name == name {
			return &b.specs[i]
		}
	}
	return nil
}

// Restore overwrites learned fields of known models; unknown names are ignored
// so a changed bank layout never fails a restart.
func (b *Bank) Restore(saved []ModelSpec) {
	for _, s := range saved {
		spec := b.Spec(s.Name)
		if spec == nil {
			continue
		}
		spec.Weight = clampRange(s.Weight, b.cfg.MinWeight, b.cfg.MaxWeight)
		spec.Accuracy = clampRange(s.Accuracy, 0, 1)
		if s.PredictionsSeen >= 0 {
			spec.PredictionsSeen = s.PredictionsSeen
		}
		if s.CorrectSeen >= 0 && s.CorrectSeen <= spec.PredictionsSeen {
			spec.CorrectSeen = s.CorrectSeen
		}
	}
}

// PredictAll runs every model against the snapshot.
func (b *Bank) PredictAll(s domain.MarketSnapshot) map[string]domain.ModelVote {
	out := make(map[string]domain.ModelVote, len(b.specs))
	for _, spec := range b.specs {
		out[spec.Name] = b.Predict(spec, s)
	}
	return out
}

// Predict accumulates importance-weighted bull and bear evidence over the
// spec's available features, falling back to price momentum.
func (b *Bank) Predict(spec ModelSpec, s domain.MarketSnapshot) domain.ModelVote {
	var bull, bear float64
	used := 0
	for _, name := range spec.Features {
		v, ok := b.registry.Value(name, s)
		if !ok {
			continue
		}
		accumulate(&bull, &bear, v, b.registry.Importance(name))
		used++
	}

	fallback := false
	if used == 0 {
		v, ok := b.registry.Value(features.PriceROC, s)
		if !ok {
			return domain.ModelVote{Direction: domain.DirectionNeutral, Confidence: b.cfg.FallbackConfidence, Fallback: true}
		}
		accumulate(&bull, &bear, v, 1.0)
		fallback = true
	}

	vote := domain.ModelVote{Direction: domain.DirectionNeutral, Confidence: neutralConfidence, FeaturesUsed: used, Fallback: fallback}
	total := bull + bear
	if total == 0 {
		return vote
	}
	bullProb := bull / total
	bearProb := bear / total
	switch {
	case bullProb > b.cfg.DecisionThreshold:
		vote.Direction = domain.DirectionBull
		vote.Confidence = b.confidence(bullProb)
	case bearProb > b.cfg.DecisionThreshold:
		vote.Direction = domain.DirectionBear
		vote.Confidence = b.confidence(bearProb)
	}
	return vote
}

func (b *Bank) confidence(p float64) float64 {
	return math.Min(b.cfg.MaxConfidence, neutralConfidence+(p-0.5)*b.cfg.ConfidenceGain)
}

func accumulate(bull, bear *float64, v, importance float64) {
	if v > 0 {
		*bull += v * importance
	} else if v < 0 {
		*bear += -v * importance
	}
}

func clampRange(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
