package engine

import (
	"oraculum/internal/forecast/scoreboard"
)

// ModelStats is one row of GetModelStats.
type ModelStats struct {
	Name        string  `json:"name"`
	Weight      float64 `json:"weight"`
	Accuracy    float64 `json:"accuracy"`
	Predictions int     `json:"predictions"`
	Correct     int     `json:"correct"`
	HitRate     float64 `json:"hit_rate"`
}

type TallyStats struct {
	Samples        float64 `json:"samples"`
	Wins           float64 `json:"wins"`
	Accuracy       float64 `json:"accuracy"`
	Brier          float64 `json:"brier"`
	MeanConfidence float64 `json:"mean_confidence"`
}

type HorizonStats struct {
	TallyStats
	Temperature float64 `json:"temperature"`
}

type Stats struct {
	Overall      TallyStats            `json:"overall"`
	Horizons     map[int]HorizonStats  `json:"horizons"`
	Daily        map[string]TallyStats `json:"daily"`
	BestHorizon  int                   `json:"best_horizon,omitempty"`
	MemorySize   int                   `json:"memory_size"`
	Pending      int                   `json:"pending"`
	Completed    int                   `json:"completed"`
	LearningRate float64               `json:"learning_rate"`
	LastPrice    float64               `json:"last_price,omitempty"`
}

// bestHorizonDisplaySamples is the sample count a horizon needs before it is
// shown as best.
const bestHorizonDisplaySamples = 2

func tallyStats(t scoreboard.Tally) TallyStats {
	return TallyStats{
		Samples:        t.N,
		Wins:           t.Wins,
		Accuracy:       t.WinRate(),
		Brier:          t.Brier(),
		MeanConfidence: t.MeanConfidence(),
	}
}

// GetModelStats reports each model's learned weight and accuracy.
func (e *Engine) GetModelStats() []ModelStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	specs := e.bank.Specs()
	out := make([]ModelStats, 0, len(specs))
	for _, s := range specs {
		row := ModelStats{
			Name:        s.Name,
			Weight:      s.Weight,
			Accuracy:    s.Accuracy,
			Predictions: s.PredictionsSeen,
			Correct:     s.CorrectSeen,
		}
		if s.PredictionsSeen > 0 {
			row.HitRate = float64(s.CorrectSeen) / float64(s.PredictionsSeen)
		}
		out = append(out, row)
	}
	return out
}

// GetStats reports overall and per-horizon accuracy with store sizes.
func (e *Engine) GetStats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := Stats{
		Overall:      tallyStats(e.board.Overall()),
		Horizons:     make(map[int]HorizonStats),
		Daily:        make(map[string]TallyStats),
		MemorySize:   e.memory.Len(),
		Pending:      e.ledger.PendingCount(),
		Completed:    e.ledger.CompletedCount(),
		LearningRate: e.optimizer.LearningRate(),
	}
	for _, h := range e.board.Horizons() {
		st.Horizons[h] = HorizonStats{
			TallyStats:  tallyStats(e.board.Horizon(h)),
			Temperature: e.calibrator.Temperature(h),
		}
	}
	for d, t := range e.board.Daily() {
		st.Daily[d] = tallyStats(t)
	}
	if h, _, ok := e.board.BestHorizon(bestHorizonDisplaySamples); ok {
		st.BestHorizon = h
	}
	if e.hasSnapshot {
		st.LastPrice = e.lastSnapshot.Price
	}
	return st
}
