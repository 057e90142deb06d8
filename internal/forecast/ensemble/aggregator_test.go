package ensemble

import (
	"math/rand"
	"testing"
	"time"

	"oraculum/internal/domain"
	"oraculum/internal/forecast/features"
	"oraculum/internal/forecast/memory"
	"oraculum/internal/forecast/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v float64) *float64 { return &v }

var usAfternoon = time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)

type stubPatterns struct {
	match domain.PatternMatch
	found bool
	seen  memory.Context
}

func (s *stubPatterns) Query(_ domain.Regime, _ domain.FeatureVector, ctx memory.Context) (domain.PatternMatch, bool) {
	s.seen = ctx
	return s.match, s.found
}

type halfCalibrator struct{}

func (halfCalibrator) Calibrate(_ int, p float64) float64 { return p / 2 }

func newAggregator(patterns PatternQuerier, cal Calibrator) *Aggregator {
	reg := features.NewRegistry(features.Config{})
	bank := models.NewBank(models.DefaultConfig(), reg, nil)
	return NewAggregator(DefaultConfig(), bank, reg, patterns, cal)
}

func bullishSnapshot() domain.MarketSnapshot {
	return domain.MarketSnapshot{
		Time:      usAfternoon,
		Price:     100.5,
		PrevPrice: 100,
		Indicators: domain.Indicators{
			RSI:      ptr(80),
			StochRSI: ptr(75),
			Momentum: domain.SignalBull,
			EMA:      &domain.EMA{Signal: domain.SignalBull},
			MACD:     &domain.MACD{Histogram: 0.04},
		},
	}
}

func TestBullishSnapshotYieldsBullForecast(t *testing.T) {
	a := newAggregator(nil, nil)
	res, vec := a.Aggregate(bullishSnapshot(), 15)

	assert.Equal(t, domain.DirectionBull, res.Direction)
	assert.InDelta(t, 1.0, res.Votes[domain.DirectionBull], 1e-9)
	assert.Equal(t, domain.RegimeRanging, res.Regime)
	assert.Equal(t, domain.SessionUS, res.Session)
	assert.InDelta(t, 0.85, res.ConfidenceRaw, 1e-9)
	assert.Equal(t, res.ConfidenceRaw, res.ConfidenceCalibrated)
	assert.Equal(t, 15, res.ReferenceHorizon)
	assert.Contains(t, vec, features.PriceROC)

	stages := make([]string, 0, len(res.Adjustments))
	for _, adj := range res.Adjustments {
		stages = append(stages, adj.Stage)
	}
	assert.Equal(t, []string{"regime", "session", "volatility", "breakout", "pattern_memory", "clamp"}, stages)
	assert.InDelta(t, 0.85, res.Adjustments[0].Multiplier, 1e-9)
}

func TestCalibratorOnlyTouchesCalibratedConfidence(t *testing.T) {
	a := newAggregator(nil, halfCalibrator{})
	res, _ := a.Aggregate(bullishSnapshot(), 15)
	assert.InDelta(t, 0.85, res.ConfidenceRaw, 1e-9)
	assert.InDelta(t, 0.425, res.ConfidenceCalibrated, 1e-9)
}

func TestConflictingPatternDampensConfidence(t *testing.T) {
	patterns := &stubPatterns{found: true, match: domain.PatternMatch{
		PatternID: "p", Direction: domain.DirectionBear, Confidence: 0.8, SuccessRate: 0.9,
	}}
	a := newAggregator(patterns, nil)
	res, _ := a.Aggregate(bullishSnapshot(), 15)

	require.NotNil(t, res.PatternMatch)
	assert.InDelta(t, (0.85+0.9)/2*0.7, res.ConfidenceRaw, 1e-9)
	assert.Equal(t, domain.SessionUS, patterns.seen.Session)
	assert.Equal(t, domain.VolatilityNormal, patterns.seen.VolatilityBucket)
}

func TestAgreeingPatternAverages(t *testing.T) {
	patterns := &stubPatterns{found: true, match: domain.PatternMatch{
		Direction: domain.DirectionBull, Confidence: 0.5, SuccessRate: 0.55,
	}}
	res, _ := newAggregator(patterns, nil).Aggregate(bullishSnapshot(), 15)
	assert.InDelta(t, 0.7, res.ConfidenceRaw, 1e-9)
}

func TestDecideRequiresMargin(t *testing.T) {
	cases := []struct {
		name  string
		votes map[domain.Direction]float64
		want  domain.Direction
	}{
		{"clear bull", map[domain.Direction]float64{domain.DirectionBull: 0.6, domain.DirectionBear: 0.3, domain.DirectionNeutral: 0.1}, domain.DirectionBull},
		{"clear bear", map[domain.Direction]float64{domain.DirectionBull: 0.2, domain.DirectionBear: 0.7, domain.DirectionNeutral: 0.1}, domain.DirectionBear},
		{"too close", map[domain.Direction]float64{domain.DirectionBull: 0.45, domain.DirectionBear: 0.40, domain.DirectionNeutral: 0.15}, domain.DirectionNeutral},
		{"neutral leads", map[domain.Direction]float64{domain.DirectionBull: 0.2, domain.DirectionBear: 0.1, domain.DirectionNeutral: 0.7}, domain.DirectionNeutral},
		{"exact tie", map[domain.Direction]float64{domain.DirectionBull: 0.5, domain.DirectionBear: 0.5}, domain.DirectionNeutral},
		{"no votes", map[domain.Direction]float64{}, domain.DirectionNeutral},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, _ := decide(tc.votes, 0.10)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestConfidenceStaysInRangeForArbitrarySnapshots(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	patterns := &stubPatterns{}
	a := newAggregator(patterns, nil)
	signals := []string{domain.SignalBull, domain.SignalBear, domain.SignalNeutral, ""}
	labels := []string{"high", "low", "normal", ""}

	for i := 0; i < 500; i++ {
		patterns.found = rng.Intn(2) == 0
		patterns.match = domain.PatternMatch{
			Direction:   []domain.Direction{domain.DirectionBull, domain.DirectionBear}[rng.Intn(2)],
			Confidence:  rng.Float64(),
			SuccessRate: rng.Float64(),
		}
		price := 50 + rng.Float64()*100
		snap := domain.MarketSnapshot{
			Time:      usAfternoon.Add(time.Duration(rng.Intn(24)) * time.Hour),
			Price:     price,
			PrevPrice: price * (0.95 + rng.Float64()*0.1),
			Indicators: domain.Indicators{
				RSI:      ptr(rng.Float64() * 100),
				Momentum: signals[rng.Intn(len(signals))],
				ADX:      &domain.ADX{Value: rng.Float64() * 60, Trend: signals[rng.Intn(len(signals))]},
			},
			Volatility: labels[rng.Intn(len(labels))],
			ATR:        rng.Float64() * 5,
			ATRAvg:     rng.Float64() * 3,
			Candle:     &domain.Candle{Open: price, Close: price * 1.01, High: price * 1.03, Low: price * 0.98},
		}
		res, _ := a.Aggregate(snap, 5)
		require.True(t, res.Direction.IsValid(), "iteration %d", i)
		require.GreaterOrEqual(t, res.ConfidenceRaw, 0.05, "iteration %d", i)
		require.LessOrEqual(t, res.ConfidenceRaw, 0.95, "iteration %d", i)
	}
}

func TestEmptySnapshotIsNeutralAtFloor(t *testing.T) {
	res, _ := newAggregator(nil, nil).Aggregate(domain.MarketSnapshot{Time: usAfternoon}, 5)
	assert.Equal(t, domain.DirectionNeutral, res.Direction)
	assert.InDelta(t, 1.0*0.85, res.ConfidenceRaw, 1e-9, "all-neutral bucket carries full vote")
}
