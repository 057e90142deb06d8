package scoreboard

import (
	"math"
	"sort"
	"time"
)

const dayLayout = "2006-01-02"

type Config struct {
	// Cap is the sample count above which a tally is halved.
	Cap       float64
	DailyDays int
}

func DefaultConfig() Config {
	return Config{Cap: 10000, DailyDays: 30}
}

// Tally is a running win and Brier aggregate. Counts are floats so that
// rescaling keeps ratios exact.
type Tally struct {
	N             float64 `json:"n"`
	Wins          float64 `json:"wins"`
	BrierSum      float64 `json:"brier_sum"`
	ConfidenceSum float64 `json:"confidence_sum"`
}

func (t *Tally) add(conf float64, success bool, cap float64) {
	outcome := 0.0
	if success {
		outcome = 1
		t.Wins++
	}
	t.N++
	t.BrierSum += (conf - outcome) * (conf - outcome)
	t.ConfidenceSum += conf
	if cap > 0 && t.N > cap {
		t.rescale(0.5)
	}
}

func (t *Tally) rescale(f float64) {
	t.N *= f
	t.Wins *= f
	t.BrierSum *= f
	t.ConfidenceSum *= f
}

func (t Tally) WinRate() float64 {
	if t.N == 0 {
		return 0
	}
	return t.Wins / t.N
}

func (t Tally) Brier() float64 {
	if t.N == 0 {
		return 0
	}
	return t.BrierSum / t.N
}

func (t Tally) MeanConfidence() float64 {
	if t.N == 0 {
		return 0
	}
	return t.ConfidenceSum / t.N
}

// State is the persisted form of a Board.
type State struct {
	Overall  Tally            `json:"overall"`
	Horizons map[int]Tally    `json:"horizons"`
	Daily    map[string]Tally `json:"daily"`
}

// Board keeps the overall tally, one per horizon and one per UTC day.
type Board struct {
	cfg      Config
	overall  Tally
	horizons map[int]*Tally
	daily    map[string]*Tally
}

func New(cfg Config) *Board {
	if cfg.Cap <= 0 || math.IsNaN(cfg.Cap) {
		cfg.Cap = DefaultConfig().Cap
	}
	if cfg.DailyDays <= 0 {
		cfg.DailyDays = DefaultConfig().DailyDays
	}
	return &Board{cfg: cfg, horizons: make(map[int]*Tally), daily: make(map[string]*Tally)}
}

// RecordHorizon scores one verification.
func (b *Board) RecordHorizon(horizon int, conf float64, success bool) {
	t, ok := b.horizons[horizon]
	if !ok {
		t = &Tally{}
		b.horizons[horizon] = t
	}
	t.add(conf, success, b.cfg.Cap)
}

// RecordOutcome scores one finalized prediction on the overall and daily
// tallies.
func (b *Board) RecordOutcome(conf float64, success bool, at time.Time) {
	b.overall.add(conf, success, b.cfg.Cap)
	key := at.UTC().Format(dayLayout)
	t, ok := b.daily[key]
	if !ok {
		t = &Tally{}
		b.daily[key] = t
	}
	t.add(conf, success, b.cfg.Cap)
	b.pruneDaily(at)
}

func (b *Board) pruneDaily(now time.Time) {
	cutoff := now.UTC().AddDate(0, 0, -b.cfg.DailyDays).Format(dayLayout)
	for k := range b.daily {
		if k <= cutoff {
			delete(b.daily, k)
		}
	}
}

func (b *Board) Overall() Tally { return b.overall }

func (b *Board) Horizon(h int) Tally {
	if t, ok := b.horizons[h]; ok {
		return *t
	}
	return Tally{}
}

// Horizons lists horizons with at least one sample, ascending.
func (b *Board) Horizons() []int {
	out := make([]int, 0, len(b.horizons))
	for h := range b.horizons {
		out = append(out, h)
	}
	sort.Ints(out)
	return out
}

// BestHorizon returns the horizon with the highest win rate among those with
// at least minSamples samples; ties go to the shorter horizon.
func (b *Board) BestHorizon(minSamples float64) (int, Tally, bool) {
	best, found := 0, false
	var bestTally Tally
	for _, h := range b.Horizons() {
		t := *b.horizons[h]
		if t.N < minSamples {
			continue
		}
		if !found || t.WinRate() > bestTally.WinRate() {
			best, bestTally, found = h, t, true
		}
	}
	return best, bestTally, found
}

func (b *Board) Export() State {
	st := State{
		Overall:  b.overall,
		Horizons: make(map[int]Tally, len(b.horizons)),
		Daily:    make(map[string]Tally, len(b.daily)),
	}
	for h, t := range b.horizons {
		st.Horizons[h] = *t
	}
	for d, t := range b.daily {
		st.Daily[d] = *t
	}
	return st
}

func (b *Board) Restore(st State) {
	b.overall = sanitize(st.Overall)
	b.horizons = make(map[int]*Tally, len(st.Horizons))
	for h, t := range st.Horizons {
		cp := sanitize(t)
		b.horizons[h] = &cp
	}
	b.daily = make(map[string]*Tally, len(st.Daily))
	for d, t := range st.Daily {
		if _, err := time.Parse(dayLayout, d); err != nil {
			continue
		}
		cp := sanitize(t)
		b.daily[d] = &cp
	}
}

// Daily returns per-day tallies keyed by YYYY-MM-DD.
func (b *Board) Daily() map[string]Tally {
	out := make(map[string]Tally, len(b.daily))
	for d, t := range b.daily {
		out[d] = *t
	}
	return out
}

func sanitize(t Tally) Tally {
	if t.N < 0 || t.Wins < 0 || t.Wins > t.N || math.IsNaN(t.N) {
		return Tally{}
	}
	return t
}
