package outcome

import (
	"context"
	"time"

	"oraculum/internal/domain"
)

// Publisher is satisfied by *kafka.Producer.
type Publisher interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
}

// Event is the wire form of a finalized prediction.
type Event struct {
	ID                   string                `json:"id"`
	Symbol               string                `json:"symbol,omitempty"`
	Priority             domain.Priority       `json:"priority"`
	Direction            domain.Direction      `json:"direction"`
	ConfidenceRaw        float64               `json:"confidence_raw"`
	ConfidenceCalibrated float64               `json:"confidence_calibrated"`
	Regime               domain.Regime         `json:"regime"`
	Session              domain.Session        `json:"session"`
	IssuePrice           float64               `json:"issue_price"`
	Success              bool                  `json:"success"`
	WeightedSuccessRate  float64               `json:"weighted_success_rate"`
	AvgPriceChange       float64               `json:"avg_price_change"`
	Verifications        []domain.Verification `json:"verifications"`
	IssuedAt             time.Time             `json:"issued_at"`
	CompletedAt          time.Time             `json:"completed_at"`
}

func NewEvent(p domain.Prediction) Event {
	ev := Event{
		ID:                   p.ID,
		Symbol:               p.Symbol,
		Priority:             p.Priority,
		Direction:            p.Result.Direction,
		ConfidenceRaw:        p.Result.ConfidenceRaw,
		ConfidenceCalibrated: p.Result.ConfidenceCalibrated,
		Regime:               p.Result.Regime,
		Session:              p.Result.Session,
		IssuePrice:           p.IssuePrice,
		Verifications:        p.Verifications,
		IssuedAt:             p.CreatedAt,
	}
	if p.Outcome != nil {
		ev.Success = p.Outcome.Success
		ev.WeightedSuccessRate = p.Outcome.WeightedSuccessRate
		ev.AvgPriceChange = p.Outcome.AvgPriceChange
		ev.CompletedAt = p.Outcome.CompletedAt
	}
	return ev
}

// KafkaSink publishes one Event per finalized prediction, keyed by symbol so
// a symbol's outcomes stay ordered.
type KafkaSink struct {
	pub   Publisher
	topic string
}

func NewKafkaSink(pub Publisher, topic string) *KafkaSink {
	if topic == "" {
		topic = "oraculum.outcomes"
	}
	return &KafkaSink{pub: pub, topic: topic}
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) Publish(ctx context.Context, p domain.Prediction) error {
	key := p.Symbol
	if key == "" {
		key = p.ID
	}
	return s.pub.Publish(ctx, s.topic, []byte(key), NewEvent(p))
}
