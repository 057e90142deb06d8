package optimizer

import (
	"math"
	"time"

	"oraculum/internal/domain"
	"oraculum/internal/forecast/scoreboard"
)

type Config struct {
	Window                int
	MinSamples            int
	PoorBelow             float64
	GoodAbove             float64
	RaiseFactor           float64
	LowerFactor           float64
	MinRate               float64
	MaxRate               float64
	InitialRate           float64
	BestHorizonMinSamples float64
}

func DefaultConfig() Config {
	return Config{
		Window:                50,
		MinSamples:            20,
		PoorBelow:             0.45,
		GoodAbove:             0.6,
		RaiseFactor:           1.2,
		LowerFactor:           0.9,
		MinRate:               0.01,
		MaxRate:               0.1,
		InitialRate:           0.05,
		BestHorizonMinSamples: 10,
	}
}

// State is the persisted optimizer record.
type State struct {
	LearningRate float64   `json:"learning_rate"`
	Runs         int       `json:"runs"`
	LastRun      time.Time `json:"last_run"`
	BestHorizon  int       `json:"best_horizon"`
}

type Report struct {
	Samples        int
	RecentAccuracy float64
	PreviousRate   float64
	LearningRate   float64
	PatternsSwept  int
	StaleSwept     []string
	BestHorizon    int
	BestWinRate    float64
	HasBest        bool
}

// History is the completed-prediction source.
type History interface {
	Recent(n int) []domain.Prediction
	SweepStale(now time.Time) []string
}

type PatternSweeper interface {
	Sweep(now time.Time) int
}

type HorizonRanker interface {
	BestHorizon(minSamples float64) (int, scoreboard.Tally, bool)
}

type Optimizer struct {
	cfg   Config
	state State
}

func New(cfg Config) *Optimizer {
	def := DefaultConfig()
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = def.MinSamples
	}
	if cfg.MinRate <= 0 || cfg.MaxRate < cfg.MinRate {
		cfg.MinRate, cfg.MaxRate = def.MinRate, def.MaxRate
	}
	if cfg.RaiseFactor <= 1 {
		cfg.RaiseFactor = def.RaiseFactor
	}
	if cfg.LowerFactor <= 0 || cfg.LowerFactor >= 1 {
		cfg.LowerFactor = def.LowerFactor
	}
	if cfg.InitialRate <= 0 {
		cfg.InitialRate = def.InitialRate
	}
	if cfg.BestHorizonMinSamples <= 0 {
		cfg.BestHorizonMinSamples = def.BestHorizonMinSamples
	}
	return &Optimizer{cfg: cfg, state: State{LearningRate: clamp(cfg.InitialRate, cfg.MinRate, cfg.MaxRate)}}
}

func (o *Optimizer) LearningRate() float64 { return o.state.LearningRate }

func (o *Optimizer) State() State { return o.state }

func (o *Optimizer) Restore(st State) {
	if st.LearningRate > 0 && !math.IsNaN(st.LearningRate) {
		st.LearningRate = clamp(st.LearningRate, o.cfg.MinRate, o.cfg.MaxRate)
	} else {
		st.LearningRate = o.state.LearningRate
	}
	o.state = st
}

// Tune adapts the learning rate from the recent accuracy. Poor accuracy
// speeds adaptation, good accuracy slows it.
func (o *Optimizer) Tune(recent []domain.Prediction) (samples int, accuracy float64) {
	if len(recent) > o.cfg.Window {
		recent = recent[len(recent)-o.cfg.Window:]
	}
	wins := 0
	for _, p := range recent {
		if p.Outcome == nil {
			continue
		}
		samples++
		if p.Outcome.Success {
			wins++
		}
	}
	if samples < o.cfg.MinSamples {
		return samples, 0
	}
	accuracy = float64(wins) / float64(samples)
	switch {
	case accuracy < o.cfg.PoorBelow:
		o.state.LearningRate = math.Min(o.cfg.MaxRate, o.state.LearningRate*o.cfg.RaiseFactor)
	case accuracy > o.cfg.GoodAbove:
		o.state.LearningRate = math.Max(o.cfg.MinRate, o.state.LearningRate*o.cfg.LowerFactor)
	}
	return samples, accuracy
}

// Run performs one optimization pass.
func (o *Optimizer) Run(now time.Time, history History, patterns PatternSweeper, ranker HorizonRanker) Report {
	rep := Report{PreviousRate: o.state.LearningRate}
	if history != nil {
		rep.Samples, rep.RecentAccuracy = o.Tune(history.Recent(o.cfg.Window))
		rep.StaleSwept = history.SweepStale(now)
	}
	if patterns != nil {
		rep.PatternsSwept = patterns.Sweep(now)
	}
	if ranker != nil {
		if h, tally, ok := ranker.BestHorizon(o.cfg.BestHorizonMinSamples); ok {
			rep.BestHorizon, rep.BestWinRate, rep.HasBest = h, tally.WinRate(), true
			o.state.BestHorizon = h
		}
	}
	rep.LearningRate = o.state.LearningRate
	o.state.Runs++
	o.state.LastRun = now
	return rep
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
