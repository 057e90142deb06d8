package outcome

import (
	"context"
	"database/sql"
	"fmt"

	"oraculum/internal/domain"
)

// Execer is satisfied by *clickhouse.Client.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// VerificationSchema creates the analytics table, one row per horizon check.
var VerificationSchema = []string{`
CREATE TABLE IF NOT EXISTS forecast_verifications (
  prediction_id String,
  symbol String,
  direction LowCardinality(String),
  regime LowCardinality(String),
  session LowCardinality(String),
  horizon UInt16,
  confidence_raw Float64,
  confidence_calibrated Float64,
  price_change Float64,
  success UInt8,
  final_success UInt8,
  issued_at DateTime64(3, 'UTC'),
  verified_at DateTime64(3, 'UTC')
) ENGINE = MergeTree
ORDER BY (issued_at, prediction_id, horizon)`}

const insertVerification = `
INSERT INTO forecast_verifications (
  prediction_id, symbol, direction, regime, session, horizon,
  confidence_raw, confidence_calibrated, price_change, success, final_success,
  issued_at, verified_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// ClickHouseSink writes each verification of a finalized prediction so
// horizon accuracy can be analysed by regime and session.
type ClickHouseSink struct {
	db Execer
}

func NewClickHouseSink(db Execer) *ClickHouseSink {
	return &ClickHouseSink{db: db}
}

func (s *ClickHouseSink) Name() string { return "clickhouse" }

func (s *ClickHouseSink) Publish(ctx context.Context, p domain.Prediction) error {
	final := uint8(0)
	if p.Outcome != nil && p.Outcome.Success {
		final = 1
	}
	for _, v := range p.Verifications {
		success := uint8(0)
		if v.Success {
			success = 1
		}
		_, err := s.db.ExecContext(ctx, insertVerification,
			p.ID, p.Symbol, string(p.Result.Direction), string(p.Result.Regime), string(p.Result.Session),
			uint16(v.Horizon), p.Result.ConfidenceRaw, p.Result.ConfidenceCalibrated,
			v.PriceChange, success, final, p.CreatedAt.UTC(), v.At.UTC())
		if err != nil {
			return fmt.Errorf("insert verification %s/%d: %w", p.ID, v.Horizon, err)
		}
	}
	return nil
}
