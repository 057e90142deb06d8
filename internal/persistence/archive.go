package persistence

import (
	"context"
	"encoding/json"
	"fmt"

	"oraculum/internal/domain"

	"go.opentelemetry.io/otel/trace"
)

// Archive keeps finalized predictions in forecast_predictions.
type Archive struct {
	pool   Pool
	tracer trace.Tracer
}

func NewArchive(pool Pool, tracer trace.Tracer) *Archive {
	return &Archive{pool: pool, tracer: tracer}
}

func (a *Archive) Upsert(ctx context.Context, p domain.Prediction) error {
	ctx, span := a.tracer.Start(ctx, "forecast-archive.upsert")
	defer span.End()

	if p.Outcome == nil {
		return fmt.Errorf("prediction %s has no outcome", p.ID)
	}
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode prediction: %w", err)
	}
	_, err = a.pool.Exec(ctx, `
INSERT INTO forecast_predictions (
  id, symbol, priority, direction,
  confidence_raw, confidence_calibrated, issue_price,
  success, weighted_success_rate, avg_price_change,
  created_at, completed_at, payload
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
ON CONFLICT (id) DO UPDATE SET
  success = EXCLUDED.success,
  weighted_success_rate = EXCLUDED.weighted_success_rate,
  avg_price_change = EXCLUDED.avg_price_change,
  completed_at = EXCLUDED.completed_at,
  payload = EXCLUDED.payload`,
		p.ID, p.Symbol, string(p.Priority), string(p.Result.Direction),
		p.Result.ConfidenceRaw, p.Result.ConfidenceCalibrated, p.IssuePrice,
		p.Outcome.Success, p.Outcome.WeightedSuccessRate, p.Outcome.AvgPriceChange,
		p.CreatedAt.UTC(), p.Outcome.CompletedAt.UTC(), payload,
	)
	if err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// ListRecent returns the newest archived predictions first.
func (a *Archive) ListRecent(ctx context.Context, limit int) ([]domain.Prediction, error) {
	ctx, span := a.tracer.Start(ctx, "forecast-archive.list-recent")
	defer span.End()

	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := a.pool.Query(ctx, `
SELECT payload
FROM forecast_predictions
ORDER BY completed_at DESC
LIMIT $1`, limit)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Prediction, 0, limit)
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var p domain.Prediction
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode archived prediction: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
