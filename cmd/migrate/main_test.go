package main

import (
	"context"
	"errors"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type fakeRows struct {
	pgx.Rows
	versions []int64
	i        int
}

func (r *fakeRows) Next() bool { r.i++; return r.i <= len(r.versions) }
func (r *fakeRows) Scan(dest ...any) error {
	*(dest[0].(*int64)) = r.versions[r.i-1]
	return nil
}
func (r *fakeRows) Close()     {}
func (r *fakeRows) Err() error { return nil }

type fakeRow struct {
	version int64
	name    string
	err     error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*int64)) = r.version
	*(dest[1].(*string)) = r.name
	return nil
}

type fakeTx struct {
	pgx.Tx
	db *fakeDB
}

func (t *fakeTx) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	if t.db.failOn != "" && strings.Contains(sql, t.db.failOn) {
		return pgconn.CommandTag{}, errors.New("syntax error")
	}
	t.db.txExecs = append(t.db.txExecs, sql)
	return pgconn.CommandTag{}, nil
}
func (t *fakeTx) Commit(context.Context) error   { t.db.commits++; return nil }
func (t *fakeTx) Rollback(context.Context) error { t.db.rollbacks++; return nil }

type fakeDB struct {
	applied   []int64
	txExecs   []string
	failOn    string
	commits   int
	rollbacks int
	row       fakeRow
}

func (d *fakeDB) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}
func (d *fakeDB) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	versions := d.applied
	if strings.Contains(sql, "DESC") {
		n := args[0].(int)
		versions = nil
		for i := len(d.applied) - 1; i >= 0 && len(versions) < n; i-- {
			versions = append(versions, d.applied[i])
		}
	}
	return &fakeRows{versions: versions}, nil
}
func (d *fakeDB) QueryRow(context.Context, string, ...any) pgx.Row { return d.row }
func (d *fakeDB) Begin(context.Context) (pgx.Tx, error)            { return &fakeTx{db: d}, nil }

func mustLoad(t *testing.T) []migration {
	t.Helper()
	migrations, err := loadMigrations(migrationsFS)
	if err != nil {
		t.Fatalf("load migrations: %v", err)
	}
	return migrations
}

func TestLoadMigrations(t *testing.T) {
	migrations := mustLoad(t)
	if len(migrations) != 2 {
		t.Fatalf("expected 2 migrations, got %d", len(migrations))
	}
	if migrations[0].Version != 1 || migrations[0].Name != "engine_state" {
		t.Fatalf("unexpected first migration %d_%s", migrations[0].Version, migrations[0].Name)
	}
	if migrations[1].Version != 2 || !strings.Contains(migrations[1].UpSQL, "forecast_predictions") {
		t.Fatalf("unexpected second migration %d_%s", migrations[1].Version, migrations[1].Name)
	}
	if migrations[0].DownSQL == "" {
		t.Fatal("expected down sql for engine_state")
	}
}

func TestLoadMigrationsRejectsBadSets(t *testing.T) {
	cases := map[string]fstest.MapFS{
		"empty":        {},
		"bad name":     {"migrations/one.up.sql": {Data: []byte("SELECT 1")}},
		"missing down": {"migrations/0001_a.up.sql": {Data: []byte("SELECT 1")}},
		"blank body": {
			"migrations/0001_a.up.sql":   {Data: []byte("  ")},
			"migrations/0001_a.down.sql": {Data: []byte("SELECT 1")},
		},
		"name clash": {
			"migrations/0001_a.up.sql":   {Data: []byte("SELECT 1")},
			"migrations/0001_b.down.sql": {Data: []byte("SELECT 1")},
		},
	}
	for name, fsys := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := loadMigrations(fsys); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestApplyUpSkipsApplied(t *testing.T) {
	migrations := mustLoad(t)
	db := &fakeDB{applied: []int64{1}}

	n, err := applyUp(context.Background(), db, migrations)
	if err != nil {
		t.Fatalf("apply up: %v", err)
	}
	if n != 1 || db.commits != 1 {
		t.Fatalf("expected 1 applied and 1 commit, got %d and %d", n, db.commits)
	}
	if len(db.txExecs) != 2 {
		t.Fatalf("expected 2 statements, got %d", len(db.txExecs))
	}
	if !strings.Contains(db.txExecs[0], "forecast_predictions") {
		t.Fatalf("expected forecast_predictions ddl, got %q", db.txExecs[0])
	}
	if !strings.Contains(db.txExecs[1], "INSERT INTO schema_migrations") {
		t.Fatalf("expected version insert, got %q", db.txExecs[1])
	}
}

func TestApplyUpRollsBackOnFailure(t *testing.T) {
	migrations := mustLoad(t)
	db := &fakeDB{failOn: "forecast_predictions"}

	n, err := applyUp(context.Background(), db, migrations)
	if err == nil {
		t.Fatal("expected error")
	}
	if n != 1 || db.rollbacks != 1 {
		t.Fatalf("expected 1 applied and 1 rollback, got %d and %d", n, db.rollbacks)
	}
}

func TestApplyDown(t *testing.T) {
	migrations := mustLoad(t)
	db := &fakeDB{applied: []int64{1, 2}}

	n, err := applyDown(context.Background(), db, migrations, 1)
	if err != nil {
		t.Fatalf("apply down: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 reverted, got %d", n)
	}
	if !strings.Contains(db.txExecs[0], "DROP TABLE IF EXISTS forecast_predictions") {
		t.Fatalf("unexpected down sql %q", db.txExecs[0])
	}

	if _, err := applyDown(context.Background(), db, migrations, 0); err == nil {
		t.Fatal("expected error for zero steps")
	}
	if _, err := applyDown(context.Background(), &fakeDB{applied: []int64{9}}, migrations, 1); err == nil {
		t.Fatal("expected error for unknown applied version")
	}
}

func TestCurrentVersion(t *testing.T) {
	v, name, err := currentVersion(context.Background(), &fakeDB{row: fakeRow{err: pgx.ErrNoRows}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 0 || name != "" {
		t.Fatalf("expected no version, got %d %q", v, name)
	}

	v, name, err = currentVersion(context.Background(), &fakeDB{row: fakeRow{version: 2, name: "forecast_predictions"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 2 || name != "forecast_predictions" {
		t.Fatalf("expected 2 forecast_predictions, got %d %q", v, name)
	}
}

func TestRun(t *testing.T) {
	orig := openDB
	t.Cleanup(func() { openDB = orig })
	db := &fakeDB{}
	openDB = func(context.Context, string) (database, func(), error) { return db, func() {}, nil }

	ctx := context.Background()
	bad := map[string][]string{
		"no command":      nil,
		"unknown command": {"sideways"},
		"bad steps":       {cmdDown, "zero"},
	}
	for name, args := range bad {
		if err := run(ctx, args, "postgres://x"); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
	if err := run(ctx, []string{cmdUp}, " "); err == nil {
		t.Fatal("blank dsn: expected error")
	}

	if err := run(ctx, []string{cmdUp}, "postgres://x"); err != nil {
		t.Fatalf("up: %v", err)
	}
	if db.commits != 2 {
		t.Fatalf("expected 2 commits, got %d", db.commits)
	}
	if err := run(ctx, []string{cmdStatus}, "postgres://x"); err != nil {
		t.Fatalf("status: %v", err)
	}
}
