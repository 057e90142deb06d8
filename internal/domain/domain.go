package domain

import "time"

type Direction string

const (
	DirectionBull    Direction = "BULL"
	DirectionBear    Direction = "BEAR"
	DirectionNeutral Direction = "NEUTRAL"
)

func (d Direction) IsValid() bool {
	return d == DirectionBull || d == DirectionBear || d == DirectionNeutral
}

type Regime string

const (
	RegimeTrendingUp   Regime = "trending_up"
	RegimeTrendingDown Regime = "trending_down"
	RegimeRanging      Regime = "ranging"
	RegimeVolatile     Regime = "volatile"
)

type Session string

const (
	SessionAsia   Session = "ASIA"
	SessionEurope Session = "EUROPE"
	SessionUS     Session = "US"
)

type VolatilityBucket string

const (
	VolatilityLow    VolatilityBucket = "low"
	VolatilityNormal VolatilityBucket = "normal"
	VolatilityHigh   VolatilityBucket = "high"
)

type BreakoutClass string

const (
	BreakoutNeutral      BreakoutClass = "NEUTRAL"
	BreakoutFakeRisk     BreakoutClass = "FAKE_BREAKOUT_RISK"
	BreakoutContinuation BreakoutClass = "CONTINUATION"
)

type Priority string

const (
	PriorityHigh Priority = "high"
	PriorityLow  Priority = "low"
)

type PredictionState string

const (
	StatePending   PredictionState = "PENDING"
	StateCompleted PredictionState = "COMPLETED"
)

// FeatureVector holds only available features, each in [-1,1].
type FeatureVector map[string]float64

func (v FeatureVector) Clone() FeatureVector {
	if v == nil {
		return nil
	}
	out := make(FeatureVector, len(v))
	for k, x := range v {
		out[k] = x
	}
	return out
}

type ModelVote struct {
	Direction    Direction `json:"direction"`
	Confidence   float64   `json:"confidence"`
	FeaturesUsed int       `json:"features_used"`
	Fallback     bool      `json:"fallback,omitempty"`
}

type PatternMatch struct {
	PatternID   string    `json:"pattern_id"`
	Similarity  float64   `json:"similarity"`
	Confidence  float64   `json:"confidence"`
	Direction   Direction `json:"direction"`
	SuccessRate float64   `json:"success_rate"`
	Occurrences int       `json:"occurrences"`
	AvgReturn   float64   `json:"avg_return"`
}

// Adjustment records one confidence stage applied by the aggregator.
type Adjustment struct {
	Stage      string  `json:"stage"`
	Multiplier float64 `json:"multiplier"`
	Confidence float64 `json:"confidence"`
}

type EnsembleResult struct {
	Direction            Direction             `json:"direction"`
	ConfidenceRaw        float64               `json:"confidence_raw"`
	ConfidenceCalibrated float64               `json:"confidence_calibrated"`
	Votes                map[Direction]float64 `json:"votes"`
	ModelVotes           map[string]ModelVote  `json:"model_votes"`
	Regime               Regime                `json:"regime"`
	Session              Session               `json:"session"`
	VolatilityScore      float64               `json:"volatility_score"`
	VolatilityBucket     VolatilityBucket      `json:"volatility_bucket"`
	Breakout             BreakoutClass         `json:"breakout"`
	BreakoutRisk         float64               `json:"breakout_risk"`
	PatternMatch         *PatternMatch         `json:"pattern_match,omitempty"`
	Adjustments          []Adjustment          `json:"adjustments"`
	ReferenceHorizon     int                   `json:"reference_horizon"`
	Timestamp            time.Time             `json:"timestamp"`
}

type Verification struct {
	Horizon     int       `json:"horizon"`
	PriceChange float64   `json:"price_change"`
	Success     bool      `json:"success"`
	At          time.Time `json:"at"`
}

type Outcome struct {
	Success             bool      `json:"success"`
	AvgPriceChange      float64   `json:"avg_price_change"`
	SuccessRate         float64   `json:"success_rate"`
	WeightedSuccessRate float64   `json:"weighted_success_rate"`
	CompletedAt         time.Time `json:"completed_at"`
}

type Prediction struct {
	ID                string          `json:"id"`
	Symbol            string          `json:"symbol,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	IssuePrice        float64         `json:"issue_price"`
	Priority          Priority        `json:"priority"`
	Horizons          []int           `json:"horizons"`
	CompletionHorizon int             `json:"completion_horizon"`
	Result            EnsembleResult  `json:"result"`
	Features          FeatureVector   `json:"features"`
	Verifications     []Verification  `json:"verifications"`
	Outcome           *Outcome        `json:"outcome,omitempty"`
	State             PredictionState `json:"state"`
}

func (p *Prediction) HasVerification(horizon int) bool {
	for _, v := range p.Verifications {
		if v.Horizon == horizon {
			return true
		}
	}
	return false
}

func (p *Prediction) TracksHorizon(horizon int) bool {
	for _, h := range p.Horizons {
		if h == horizon {
			return true
		}
	}
	return false
}

// Clone returns a deep copy safe to hand out of the engine.
func (p *Prediction) Clone() *Prediction {
	if p == nil {
		return nil
	}
	out := *p
	out.Horizons = append([]int(nil), p.Horizons...)
	out.Features = p.Features.Clone()
	out.Verifications = append([]Verification(nil), p.Verifications...)
	if p.Outcome != nil {
		o := *p.Outcome
		out.Outcome = &o
	}
	out.Result = p.Result.Clone()
	return &out
}

func (r EnsembleResult) Clone() EnsembleResult {
	out := r
	if r.Votes != nil {
		out.Votes = make(map[Direction]float64, len(r.Votes))
		for k, v := range r.Votes {
			out.Votes[k] = v
		}
	}
	if r.ModelVotes != nil {
		out.ModelVotes = make(map[string]ModelVote, len(r.ModelVotes))
		for k, v := range r.ModelVotes {
			out.ModelVotes[k] = v
		}
	}
	if r.PatternMatch != nil {
		m := *r.PatternMatch
		out.PatternMatch = &m
	}
	out.Adjustments = append([]Adjustment(nil), r.Adjustments...)
	return out
}

// Pattern is a summary of past conditions and their outcomes.
// SuccessRate == SuccessCount/Occurrences and Occurrences == SuccessCount+FailCount.
type Pattern struct {
	ID               string           `json:"id"`
	Regime           Regime           `json:"regime"`
	Direction        Direction        `json:"direction"`
	Features         FeatureVector    `json:"features"`
	Session          Session          `json:"session"`
	VolatilityBucket VolatilityBucket `json:"volatility_bucket"`
	Breakout         BreakoutClass    `json:"breakout"`
	Occurrences      int              `json:"occurrences"`
	SuccessCount     int              `json:"success_count"`
	FailCount        int              `json:"fail_count"`
	SuccessRate      float64          `json:"success_rate"`
	AvgReturn        float64          `json:"avg_return"`
	LastOutcome      string           `json:"last_outcome"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

const (
	OutcomeWin  = "win"
	OutcomeLoss = "loss"
)
