package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"oraculum/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRow struct {
	values []any
	err    error
}

func (r stubRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *[]byte:
			*p = r.values[i].([]byte)
		default:
			return errors.New("unsupported scan target")
		}
	}
	return nil
}

type stubRows struct {
	rows []stubRow
	pos  int
}

func (r *stubRows) Close()                                       {}
func (r *stubRows) Err() error                                   { return nil }
func (r *stubRows) CommandTag() pgconn.CommandTag                { return pgconn.NewCommandTag("SELECT") }
func (r *stubRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *stubRows) Values() ([]any, error)                       { return r.rows[r.pos-1].values, nil }
func (r *stubRows) RawValues() [][]byte                          { return nil }
func (r *stubRows) Conn() *pgx.Conn                              { return nil }
func (r *stubRows) Scan(dest ...any) error                       { return r.rows[r.pos-1].Scan(dest...) }
func (r *stubRows) Next() bool {
	if r.pos >= len(r.rows) {
		return false
	}
	r.pos++
	return true
}

type execCall struct {
	sql  string
	args []any
}

type stubPool struct {
	execs   []execCall
	execErr error
	row     stubRow
	rows    []stubRow
	queries []execCall
}

func (p *stubPool) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	p.execs = append(p.execs, execCall{sql: sql, args: args})
	return pgconn.NewCommandTag("INSERT 0 1"), p.execErr
}

func (p *stubPool) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	p.queries = append(p.queries, execCall{sql: sql, args: args})
	return &stubRows{rows: p.rows}, nil
}

func (p *stubPool) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	p.queries = append(p.queries, execCall{sql: sql, args: args})
	return p.row
}

func TestPostgresStoreGet(t *testing.T) {
	pool := &stubPool{row: stubRow{values: []any{[]byte(`{"n":1}`)}}}
	s := NewPostgresStore(pool, testTracer)

	b, err := s.Get(context.Background(), "desk", "scoreboard")
	require.NoError(t, err)
	assert.Equal(t, `{"n":1}`, string(b))
	assert.Equal(t, []any{"desk", "scoreboard"}, pool.queries[0].args)

	pool.row = stubRow{err: pgx.ErrNoRows}
	_, err = s.Get(context.Background(), "desk", "scoreboard")
	assert.ErrorIs(t, err, ErrNotFound)

	pool.row = stubRow{err: errors.New("conn closed")}
	_, err = s.Get(context.Background(), "desk", "scoreboard")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestPostgresStoreSetUpserts(t *testing.T) {
	pool := &stubPool{}
	s := NewPostgresStore(pool, testTracer)

	require.NoError(t, s.Set(context.Background(), "desk", "models", []byte(`[]`)))
	require.Len(t, pool.execs, 1)
	assert.Contains(t, pool.execs[0].sql, "ON CONFLICT (owner, record)")
	assert.Equal(t, []any{"desk", "models", []byte(`[]`)}, pool.execs[0].args)

	pool.execErr = errors.New("deadlock")
	assert.ErrorIs(t, s.Set(context.Background(), "desk", "models", nil), ErrUnavailable)
}

func completedPrediction() domain.Prediction {
	at := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	return domain.Prediction{
		ID:         "p1",
		Symbol:     "BTCUSDT",
		CreatedAt:  at,
		IssuePrice: 100,
		Priority:   domain.PriorityHigh,
		Horizons:   []int{5},
		Result:     domain.EnsembleResult{Direction: domain.DirectionBull, ConfidenceRaw: 0.8, ConfidenceCalibrated: 0.7},
		State:      domain.StateCompleted,
		Outcome:    &domain.Outcome{Success: true, WeightedSuccessRate: 1, AvgPriceChange: 0.2, CompletedAt: at.Add(5 * time.Minute)},
	}
}

func TestArchiveUpsert(t *testing.T) {
	pool := &stubPool{}
	a := NewArchive(pool, testTracer)

	require.NoError(t, a.Upsert(context.Background(), completedPrediction()))
	require.Len(t, pool.execs, 1)
	args := pool.execs[0].args
	assert.Equal(t, "p1", args[0])
	assert.Equal(t, "BULL", args[3])
	assert.Equal(t, true, args[7])
	assert.True(t, strings.Contains(pool.execs[0].sql, "ON CONFLICT (id)"))

	p := completedPrediction()
	p.Outcome = nil
	assert.Error(t, a.Upsert(context.Background(), p))
}

func TestArchiveListRecent(t *testing.T) {
	raw, err := json.Marshal(completedPrediction())
	require.NoError(t, err)
	pool := &stubPool{rows: []stubRow{{values: []any{raw}}}}
	a := NewArchive(pool, testTracer)

	got, err := a.ListRecent(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "p1", got[0].ID)
	assert.True(t, got[0].Outcome.Success)
	assert.Equal(t, []any{50}, pool.queries[0].args)
}
