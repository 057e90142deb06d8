package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"oraculum/internal/domain"
	"oraculum/internal/forecast/calibration"
	"oraculum/internal/forecast/models"
	"oraculum/internal/forecast/optimizer"
	"oraculum/internal/forecast/scoreboard"
	"oraculum/pkg/logger"
)

// Persisted record names.
const (
	RecordModels      = "models"
	RecordPatterns    = "patterns"
	RecordScoreboard  = "scoreboard"
	RecordCalibration = "calibration"
	RecordPending     = "pending"
	RecordOptimizer   = "optimizer"
)

// RecordNames lists every record in save order.
var RecordNames = []string{RecordModels, RecordPatterns, RecordScoreboard, RecordCalibration, RecordPending, RecordOptimizer}

// State is everything needed to resume after a restart.
type State struct {
	Models      []models.ModelSpec        `json:"models"`
	Patterns    []domain.Pattern          `json:"patterns"`
	Scoreboard  scoreboard.State          `json:"scoreboard"`
	Calibration map[int]calibration.State `json:"calibration"`
	Pending     []domain.Prediction       `json:"pending"`
	Optimizer   optimizer.State           `json:"optimizer"`
}

// Export copies the engine state.
func (e *Engine) Export() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return State{
		Models:      e.bank.Specs(),
		Patterns:    e.memory.Patterns(),
		Scoreboard:  e.board.Export(),
		Calibration: e.calibrator.States(),
		Pending:     e.ledger.Pending(),
		Optimizer:   e.optimizer.State(),
	}
}

// ExportRecords encodes the state as one JSON document per record.
func (e *Engine) ExportRecords() (map[string][]byte, error) {
	return e.Export().Records()
}

func (s State) Records() (map[string][]byte, error) {
	parts := map[string]any{
		RecordModels:      s.Models,
		RecordPatterns:    s.Patterns,
		RecordScoreboard:  s.Scoreboard,
		RecordCalibration: s.Calibration,
		RecordPending:     s.Pending,
		RecordOptimizer:   s.Optimizer,
	}
	out := make(map[string][]byte, len(parts))
	for name, v := range parts {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", name, err)
		}
		out[name] = b
	}
	return out, nil
}

// StateFromRecords decodes whichever records are present; missing ones keep
// their zero value.
func StateFromRecords(records map[string][]byte) (State, error) {
	var s State
	targets := map[string]any{
		RecordModels:      &s.Models,
		RecordPatterns:    &s.Patterns,
		RecordScoreboard:  &s.Scoreboard,
		RecordCalibration: &s.Calibration,
		RecordPending:     &s.Pending,
		RecordOptimizer:   &s.Optimizer,
	}
	for name, dst := range targets {
		b, ok := records[name]
		if !ok || len(b) == 0 {
			continue
		}
		if err := json.Unmarshal(b, dst); err != nil {
			return State{}, fmt.Errorf("decode %s: %w", name, err)
		}
	}
	return s, nil
}

// Restore loads saved state and re-attaches pending predictions to the
// scheduler.
func (e *Engine) Restore(ctx context.Context, s State) error {
	ctx, span := e.tracer.Start(ctx, "engine.restore")
	defer span.End()

	e.mu.Lock()
	if len(s.Models) > 0 {
		e.bank.Restore(s.Models)
	}
	e.memory.Restore(s.Patterns)
	e.board.Restore(s.Scoreboard)
	e.calibrator.Restore(s.Calibration)
	e.optimizer.Restore(s.Optimizer)
	tasks := e.ledger.Rehydrate(s.Pending, e.now())
	pending, patterns := e.ledger.PendingCount(), e.memory.Len()
	e.mu.Unlock()

	if err := e.scheduler.Schedule(ctx, tasks...); err != nil {
		span.RecordError(err)
		return fmt.Errorf("reschedule pending checks: %w", err)
	}
	e.metrics.Sizes(patterns, pending)
	e.log.Info("engine state restored",
		logger.Int("patterns", patterns),
		logger.Int("pending", pending),
		logger.Int("rescheduled_checks", len(tasks)))
	return nil
}

// RestoreRecords decodes and restores persisted records.
func (e *Engine) RestoreRecords(ctx context.Context, records map[string][]byte) error {
	s, err := StateFromRecords(records)
	if err != nil {
		return err
	}
	return e.Restore(ctx, s)
}
