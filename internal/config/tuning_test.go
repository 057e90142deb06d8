package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oraculum/internal/engine"
)

func writeTuning(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "engine.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadTuningDefaultsMatchEngine(t *testing.T) {
	cfg, err := LoadTuning("")
	require.NoError(t, err)
	def := engine.DefaultConfig()
	assert.Equal(t, def.Ledger, cfg.Ledger)
	assert.Equal(t, def.Ensemble.DecisionMargin, cfg.Ensemble.DecisionMargin)
	assert.Equal(t, def.Memory, cfg.Memory)
	assert.Equal(t, def.Calibration, cfg.Calibration)
	assert.Equal(t, def.Optimizer, cfg.Optimizer)
	assert.Equal(t, def.ReferenceHorizon, cfg.ReferenceHorizon)
}

func TestLoadTuningOverrides(t *testing.T) {
	path := writeTuning(t, `
horizons: [60, 1, 5]
auto_horizons: [5]
reference_horizon: 5
threshold: 0.2
grace_secs: 30
feature_importance:
  rsi: 1.5
`)
	cfg, err := LoadTuning(path)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 5, 60}, cfg.Ledger.Horizons)
	assert.Equal(t, []int{5}, cfg.Ledger.AutoHorizons)
	assert.Equal(t, 5, cfg.ReferenceHorizon)
	assert.Equal(t, 0.2, cfg.Ledger.Threshold)
	assert.Equal(t, 30*time.Second, cfg.Ledger.Grace)
	assert.Equal(t, 1.5, cfg.Features.Importance["rsi"])
	assert.Equal(t, 0.15, cfg.Ledger.NeutralBand, "unset fields keep defaults")
}

func TestLoadTuningEmptyFile(t *testing.T) {
	cfg, err := LoadTuning(writeTuning(t, ""))
	require.NoError(t, err)
	assert.Equal(t, 15, cfg.ReferenceHorizon)
}

func TestLoadTuningRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"unknown field":      "horizonz: [1]\n",
		"negative horizon":   "horizons: [-5, 15]\n",
		"margin too large":   "decision_margin: 1.5\n",
		"reference missing":  "horizons: [5, 10]\nauto_horizons: [5]\n",
		"auto not a horizon": "horizons: [5, 15]\nauto_horizons: [60]\n",
		"malformed":          "horizons: [5,\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadTuning(writeTuning(t, body))
			assert.Error(t, err)
		})
	}
}

func TestLoadTuningMissingFile(t *testing.T) {
	_, err := LoadTuning(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
