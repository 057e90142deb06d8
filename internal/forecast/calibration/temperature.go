package calibration

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

const epsilon = 1e-6

type Config struct {
	BufferSize     int
	MinSamples     int
	RefitEvery     int
	MinTemperature float64
	MaxTemperature float64
	GridPoints     int
}

func DefaultConfig() Config {
	return Config{
		BufferSize:     500,
		MinSamples:     50,
		RefitEvery:     10,
		MinTemperature: 0.5,
		MaxTemperature: 3.0,
		GridPoints:     51,
	}
}

// Sample is one (predicted probability, observed outcome) pair.
type Sample struct {
	P       float64 `json:"p"`
	Success bool    `json:"success"`
}

// State is the per-horizon calibration state. Samples is ordered oldest
// first.
type State struct {
	Temperature float64  `json:"temperature"`
	Samples     []Sample `json:"samples"`
	SinceFit    int      `json:"since_fit"`
	Fits        int      `json:"fits"`
}

// Calibrator keeps one temperature per horizon. The zero temperature is
// never stored; unseen horizons calibrate as the identity.
type Calibrator struct {
	cfg    Config
	states map[int]*State
	grid   []float64
}

func New(cfg Config) *Calibrator {
	def := DefaultConfig()
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = def.MinSamples
	}
	if cfg.RefitEvery <= 0 {
		cfg.RefitEvery = def.RefitEvery
	}
	if cfg.MinTemperature <= 0 || cfg.MaxTemperature <= cfg.MinTemperature {
		cfg.MinTemperature, cfg.MaxTemperature = def.MinTemperature, def.MaxTemperature
	}
	if cfg.GridPoints < 2 {
		cfg.GridPoints = def.GridPoints
	}
	return &Calibrator{
		cfg:    cfg,
		states: make(map[int]*State),
		grid:   floats.Span(make([]float64, cfg.GridPoints), cfg.MinTemperature, cfg.MaxTemperature),
	}
}

func (c *Calibrator) state(horizon int) *State {
	st, ok := c.states[horizon]
	if !ok {
		st = &State{Temperature: 1}
		c.states[horizon] = st
	}
	return st
}

// Temperature returns the current temperature for horizon, 1 if unseen.
func (c *Calibrator) Temperature(horizon int) float64 {
	if st, ok := c.states[horizon]; ok {
		return st.Temperature
	}
	return 1
}

// Calibrate maps a raw probability through sigmoid(logit(p)/T).
func (c *Calibrator) Calibrate(horizon int, p float64) float64 {
	return Apply(p, c.Temperature(horizon))
}

// Observe buffers a sample and refits when due. It reports whether a refit
// happened.
func (c *Calibrator) Observe(horizon int, p float64, success bool) bool {
	if math.IsNaN(p) || math.IsInf(p, 0) {
		return false
	}
	st := c.state(horizon)
	st.Samples = append(st.Samples, Sample{P: p, Success: success})
	if over := len(st.Samples) - c.cfg.BufferSize; over > 0 {
		st.Samples = append(st.Samples[:0], st.Samples[over:]...)
	}
	st.SinceFit++
	if len(st.Samples) < c.cfg.MinSamples || st.SinceFit < c.cfg.RefitEvery {
		return false
	}
	st.Temperature = Fit(st.Samples, c.grid)
	st.SinceFit = 0
	st.Fits++
	return true
}

// Fit grid-searches the temperature minimizing total negative
// log-likelihood. T=1 is the incumbent, so the result never scores worse
// than the untransformed probabilities.
func Fit(samples []Sample, grid []float64) float64 {
	best := 1.0
	bestNLL := NLL(samples, 1)
	for _, t := range grid {
		if t <= 0 {
			continue
		}
		if nll := NLL(samples, t); nll < bestNLL {
			best, bestNLL = t, nll
		}
	}
	return best
}

// NLL is the total negative log-likelihood of samples under temperature t.
func NLL(samples []Sample, t float64) float64 {
	total := 0.0
	for _, s := range samples {
		q := clampP(Apply(s.P, t))
		if s.Success {
			total -= math.Log(q)
		} else {
			total -= math.Log(1 - q)
		}
	}
	return total
}

func Apply(p, t float64) float64 {
	if t <= 0 || math.IsNaN(t) {
		t = 1
	}
	p = clampP(p)
	logit := math.Log(p / (1 - p))
	return 1 / (1 + math.Exp(-logit/t))
}

func clampP(p float64) float64 {
	return math.Max(epsilon, math.Min(1-epsilon, p))
}

// States returns deep copies keyed by horizon.
func (c *Calibrator) States() map[int]State {
	out := make(map[int]State, len(c.states))
	for h, st := range c.states {
		cp := *st
		cp.Samples = append([]Sample(nil), st.Samples...)
		out[h] = cp
	}
	return out
}

// Restore replaces all states, dropping invalid temperatures and trimming
// buffers to capacity.
func (c *Calibrator) Restore(saved map[int]State) {
	c.states = make(map[int]*State, len(saved))
	for h, st := range saved {
		cp := st
		if cp.Temperature <= 0 || math.IsNaN(cp.Temperature) || math.IsInf(cp.Temperature, 0) {
			cp.Temperature = 1
		}
		if over := len(cp.Samples) - c.cfg.BufferSize; over > 0 {
			cp.Samples = cp.Samples[over:]
		}
		cp.Samples = append([]Sample(nil), cp.Samples...)
		if cp.SinceFit < 0 {
			cp.SinceFit = 0
		}
		c.states[h] = &cp
	}
}
