package learner

import (
	"math"

	"oraculum/internal/domain"
	"oraculum/internal/forecast/calibration"
	"oraculum/internal/forecast/memory"
	"oraculum/internal/forecast/models"
	"oraculum/internal/forecast/scoreboard"
)

type Config struct {
	AccuracyDecay    float64
	MinPredictions   int
	RaiseAbove       float64
	LowerBelow       float64
	WorthConfidence  float64
	WorthMove        float64
	MinVerifications int
}

func DefaultConfig() Config {
	return Config{
		AccuracyDecay:    0.9,
		MinPredictions:   20,
		RaiseAbove:       0.55,
		LowerBelow:       0.45,
		WorthConfidence:  0.7,
		WorthMove:        0.5,
		MinVerifications: 2,
	}
}

// Report summarizes what one finalized prediction taught the engine.
type Report struct {
	ModelsUpdated int
	PatternID     string
	Evicted       []string
	Refits        []int
}

type Learner struct {
	cfg        Config
	bank       *models.Bank
	memory     *memory.Memory
	calibrator *calibration.Calibrator
	board      *scoreboard.Board
}

func New(cfg Config, bank *models.Bank, mem *memory.Memory, cal *calibration.Calibrator, board *scoreboard.Board) *Learner {
	def := DefaultConfig()
	if cfg.AccuracyDecay <= 0 || cfg.AccuracyDecay >= 1 {
		cfg.AccuracyDecay = def.AccuracyDecay
	}
	if cfg.MinPredictions <= 0 {
		cfg.MinPredictions = def.MinPredictions
	}
	if cfg.RaiseAbove <= 0 {
		cfg.RaiseAbove = def.RaiseAbove
	}
	if cfg.LowerBelow <= 0 {
		cfg.LowerBelow = def.LowerBelow
	}
	if cfg.WorthConfidence <= 0 {
		cfg.WorthConfidence = def.WorthConfidence
	}
	if cfg.WorthMove <= 0 {
		cfg.WorthMove = def.WorthMove
	}
	if cfg.MinVerifications <= 0 {
		cfg.MinVerifications = def.MinVerifications
	}
	return &Learner{cfg: cfg, bank: bank, memory: mem, calibrator: cal, board: board}
}

// Learn applies a completed prediction. lr is the current global learning
// rate used for weight nudges.
func (l *Learner) Learn(p *domain.Prediction, lr float64) Report {
	var rep Report
	if p == nil || p.Outcome == nil {
		return rep
	}
	success := p.Outcome.Success
	conf := p.Result.ConfidenceRaw

	rep.ModelsUpdated = l.updateModels(p, success, lr)

	if l.memory != nil && len(p.Features) > 0 && l.WorthLearning(p) {
		rep.PatternID, rep.Evicted = l.memory.Upsert(memory.Observation{
			Regime:    p.Result.Regime,
			Direction: p.Result.Direction,
			Features:  p.Features,
			Context:   memory.Context{Session: p.Result.Session, VolatilityBucket: p.Result.VolatilityBucket},
			Breakout:  p.Result.Breakout,
			Success:   success,
			Return:    p.Outcome.AvgPriceChange,
			At:        p.Outcome.CompletedAt,
		})
	}

	if l.board != nil {
		l.board.RecordOutcome(conf, success, p.Outcome.CompletedAt)
	}
	if l.calibrator != nil {
		for _, v := range p.Verifications {
			if l.calibrator.Observe(v.Horizon, conf, v.Success) {
				rep.Refits = append(rep.Refits, v.Horizon)
			}
		}
	}
	return rep
}

// updateModels credits a model when it agreed with a successful ensemble
// call or disagreed with a failed one.
func (l *Learner) updateModels(p *domain.Prediction, success bool, lr float64) int {
	cfg := l.bank.Config()
	updated := 0
	for name, vote := range p.Result.ModelVotes {
		spec := l.bank.Spec(name)
		if spec == nil {
			continue
		}
		agreed := vote.Direction == p.Result.Direction
		correct := agreed == success

		spec.PredictionsSeen++
		if correct {
			spec.CorrectSeen++
		}
		hitRate := float64(spec.CorrectSeen) / float64(spec.PredictionsSeen)
		spec.Accuracy = spec.Accuracy*l.cfg.AccuracyDecay + hitRate*(1-l.cfg.AccuracyDecay)

		if spec.PredictionsSeen >= l.cfg.MinPredictions {
			switch {
			case spec.Accuracy > l.cfg.RaiseAbove:
				spec.Weight = math.Min(cfg.MaxWeight, spec.Weight+lr)
			case spec.Accuracy < l.cfg.LowerBelow:
				spec.Weight = math.Max(cfg.MinWeight, spec.Weight-lr)
			}
		}
		updated++
	}
	return updated
}

// WorthLearning reports whether an outcome is informative enough to store
// in pattern memory.
func (l *Learner) WorthLearning(p *domain.Prediction) bool {
	if p.Outcome == nil || len(p.Verifications) < l.cfg.MinVerifications {
		return false
	}
	return p.Result.ConfidenceRaw > l.cfg.WorthConfidence ||
		math.Abs(p.Outcome.AvgPriceChange) > l.cfg.WorthMove ||
		p.Result.Breakout == domain.BreakoutFakeRisk ||
		p.Result.Breakout == domain.BreakoutContinuation
}
