package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"oraculum/internal/engine"
)

// Tuning is the operator-facing subset of engine.Config, read from YAML.
type Tuning struct {
	Horizons     []int   `yaml:"horizons" default:"[2,5,10,15,30,60]" validate:"min=1,dive,gt=0"`
	AutoHorizons []int   `yaml:"auto_horizons" default:"[5,15,60]" validate:"min=1,dive,gt=0"`
	Threshold    float64 `yaml:"threshold" default:"0.1" validate:"gt=0"`
	NeutralBand  float64 `yaml:"neutral_band" default:"0.15" validate:"gt=0"`
	MaxPending   int     `yaml:"max_pending" default:"200" validate:"gt=0"`
	HistoryCap   int     `yaml:"history_cap" default:"500" validate:"gt=0"`
	GraceSecs    int     `yaml:"grace_secs" default:"120" validate:"gte=0"`

	DecisionMargin  float64 `yaml:"decision_margin" default:"0.1" validate:"gte=0,lt=1"`
	ConfidenceFloor float64 `yaml:"confidence_floor" default:"0.35" validate:"gte=0,lt=1"`

	MemoryCapacity    int                `yaml:"memory_capacity" default:"2000" validate:"gt=0"`
	MemoryQueryMin    float64            `yaml:"memory_query_min" default:"0.72" validate:"gt=0,lte=1"`
	MemoryMergeMin    float64            `yaml:"memory_merge_min" default:"0.85" validate:"gt=0,lte=1"`
	CalibrationBuffer int                `yaml:"calibration_buffer" default:"500" validate:"gt=0"`
	CalibrationMinFit int                `yaml:"calibration_min_fit" default:"50" validate:"gt=0"`
	LearningRate      float64            `yaml:"learning_rate" default:"0.05" validate:"gt=0,lte=1"`
	OptimizerWindow   int                `yaml:"optimizer_window" default:"50" validate:"gt=0"`
	ReferenceHorizon  int                `yaml:"reference_horizon" default:"15" validate:"gt=0"`
	SaveEvery         int                `yaml:"save_every" default:"10" validate:"gt=0"`
	HighConfidence    float64            `yaml:"high_confidence" default:"0.75" validate:"gt=0,lte=1"`
	FeatureImportance map[string]float64 `yaml:"feature_importance" validate:"omitempty,dive,gte=0"`
}

var validate = validator.New()

var readFile = os.ReadFile

// LoadTuning reads path into an engine.Config. An empty path yields the
// built-in defaults.
func LoadTuning(path string) (engine.Config, error) {
	var t Tuning
	if path != "" {
		raw, err := readFile(path)
		if err != nil {
			return engine.Config{}, fmt.Errorf("read engine config: %w", err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		if err := dec.Decode(&t); err != nil && !errors.Is(err, io.EOF) {
			return engine.Config{}, fmt.Errorf("parse engine config: %w", err)
		}
	}
	if err := defaults.Set(&t); err != nil {
		return engine.Config{}, fmt.Errorf("apply defaults: %w", err)
	}
	if err := validate.Struct(&t); err != nil {
		return engine.Config{}, fmt.Errorf("invalid engine config: %w", err)
	}
	if !slices.Contains(t.Horizons, t.ReferenceHorizon) {
		return engine.Config{}, fmt.Errorf("invalid engine config: reference_horizon %d is not a configured horizon", t.ReferenceHorizon)
	}
	for _, h := range t.AutoHorizons {
		if !slices.Contains(t.Horizons, h) {
			return engine.Config{}, fmt.Errorf("invalid engine config: auto horizon %d is not a configured horizon", h)
		}
	}
	return t.Apply(engine.DefaultConfig()), nil
}

// Apply overlays t onto cfg.
func (t Tuning) Apply(cfg engine.Config) engine.Config {
	h := slices.Clone(t.Horizons)
	slices.Sort(h)
	cfg.Ledger.Horizons = h
	cfg.Ledger.AutoHorizons = slices.Clone(t.AutoHorizons)
	cfg.Ledger.Threshold = t.Threshold
	cfg.Ledger.NeutralBand = t.NeutralBand
	cfg.Ledger.MaxPending = t.MaxPending
	cfg.Ledger.HistoryCap = t.HistoryCap
	cfg.Ledger.Grace = time.Duration(t.GraceSecs) * time.Second

	cfg.Ensemble.DecisionMargin = t.DecisionMargin
	cfg.Ensemble.ConfidenceFloor = t.ConfidenceFloor

	cfg.Memory.Capacity = t.MemoryCapacity
	cfg.Memory.QueryThreshold = t.MemoryQueryMin
	cfg.Memory.MergeThreshold = t.MemoryMergeMin
	cfg.Calibration.BufferSize = t.CalibrationBuffer
	cfg.Calibration.MinSamples = t.CalibrationMinFit
	cfg.Optimizer.InitialRate = t.LearningRate
	cfg.Optimizer.Window = t.OptimizerWindow

	cfg.ReferenceHorizon = t.ReferenceHorizon
	cfg.SaveEvery = t.SaveEvery
	cfg.HighConfidence = t.HighConfidence
	if len(t.FeatureImportance) > 0 {
		cfg.Features.Importance = t.FeatureImportance
	}
	return cfg
}
