package models

import (
	"testing"

	"oraculum/internal/domain"
	"oraculum/internal/forecast/features"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v float64) *float64 { return &v }

func newBank() *Bank {
	return NewBank(DefaultConfig(), features.NewRegistry(features.Config{}), nil)
}

func bullishSnapshot() domain.MarketSnapshot {
	return domain.MarketSnapshot{
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

func TestMomentumAndTrendCallBull(t *testing.T) {
	b := newBank()
	votes := b.PredictAll(bullishSnapshot())

	for _, name := range []string{"momentum", "trend"} {
		v := votes[name]
		assert.Equal(t, domain.DirectionBull, v.Direction, name)
		assert.Greater(t, v.Confidence, 0.55, name)
		assert.LessOrEqual(t, v.Confidence, 0.95, name)
		assert.False(t, v.Fallback, name)
	}
}

func TestModelWithoutFeaturesFallsBackToPriceMomentum(t *testing.T) {
	b := newBank()
	vote := b.Predict(*b.Spec("structure"), domain.MarketSnapshot{Price: 99, PrevPrice: 100})
	assert.True(t, vote.Fallback)
	assert.Equal(t, 0, vote.FeaturesUsed)
	assert.Equal(t, domain.DirectionBear, vote.Direction)
}

func TestModelWithoutAnyInputIsLowConfidenceNeutral(t *testing.T) {
	b := newBank()
	vote := b.Predict(*b.Spec("volume"), domain.MarketSnapshot{})
	assert.Equal(t, domain.DirectionNeutral, vote.Direction)
	assert.Equal(t, DefaultConfig().FallbackConfidence, vote.Confidence)
}

func TestBalancedEvidenceIsNeutral(t *testing.T) {
	b := newBank()
	snap := domain.MarketSnapshot{Indicators: domain.Indicators{RSI: ptr(70), StochRSI: ptr(30)}}
	vote := b.Predict(*b.Spec("momentum"), snap)
	assert.Equal(t, domain.DirectionNeutral, vote.Direction)
	assert.Equal(t, 0.5, vote.Confidence)
}

func TestRestoreClampsAndIgnoresUnknownModels(t *testing.T) {
	b := newBank()
	b.Restore([]ModelSpec{
		{Name: "trend", Weight: 9, Accuracy: 1.4, PredictionsSeen: 40, CorrectSeen: 30},
		{Name: "astrology", Weight: 2},
	})
	spec := b.Spec("trend")
	require.NotNil(t, spec)
	assert.Equal(t, 2.0, spec.Weight)
	assert.Equal(t, 1.0, spec.Accuracy)
	assert.Equal(t, 40, spec.PredictionsSeen)
	assert.Equal(t, 30, spec.CorrectSeen)
	assert.Nil(t, b.Spec("astrology"))
	assert.Len(t, b.Specs(), 6)
}
