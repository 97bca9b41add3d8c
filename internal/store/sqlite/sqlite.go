package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/taktline/takt/internal/process"
	"github.com/taktline/takt/internal/store"
)

// DB implements store.Store for SQLite (modernc.org/sqlite driver, CGO-free).
// DSN is a filesystem path to the database file; use ":memory:" for tests.
type DB struct {
	db *sql.DB
}

// New opens a SQLite database at path.
func New(path string) (*DB, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, errors.New("empty sqlite path")
	}
	if strings.HasPrefix(strings.ToLower(p), "sqlite://") {
		p = p[len("sqlite://"):]
	}
	d, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, err
	}
	// busy timeout helps with short concurrent locks
	_, _ = d.Exec("PRAGMA busy_timeout=3000;")
	return &DB{db: d}, nil
}

func (s *DB) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS processes(
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			kind TEXT NOT NULL,
			state TEXT NOT NULL,
			target_units REAL NOT NULL,
			rate_per_worker REAL NOT NULL,
			completed_units REAL NOT NULL,
			checkpoint_at TIMESTAMP NOT NULL,
			auto_paused BOOLEAN NOT NULL,
			grace_started_at TIMESTAMP NULL,
			started_at TIMESTAMP NULL,
			finished_at TIMESTAMP NULL,
			setup_phase TEXT NOT NULL DEFAULT '',
			setup_accum INTEGER NOT NULL DEFAULT 0,
			setup_since TIMESTAMP NULL,
			rework_phase TEXT NOT NULL DEFAULT '',
			rework_accum INTEGER NOT NULL DEFAULT 0,
			rework_since TIMESTAMP NULL,
			quality_state TEXT NOT NULL DEFAULT '',
			quality_called_at TIMESTAMP NULL,
			quality_arrived_at TIMESTAMP NULL,
			quality_approved_at TIMESTAMP NULL,
			updated_at TIMESTAMP NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS presence(
			id TEXT PRIMARY KEY,
			worker_id TEXT NOT NULL,
			process_id TEXT NOT NULL,
			role TEXT NOT NULL,
			check_in_at TIMESTAMP NOT NULL,
			check_out_at TIMESTAMP NULL,
			justification TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE INDEX IF NOT EXISTS idx_presence_process ON presence(process_id);`,
		`CREATE INDEX IF NOT EXISTS idx_presence_open_worker ON presence(worker_id) WHERE check_out_at IS NULL;`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *DB) Close() error { return s.db.Close() }

func (s *DB) SaveProcess(ctx context.Context, snap process.Snapshot) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO processes(
			id, name, kind, state, target_units, rate_per_worker,
			completed_units, checkpoint_at, auto_paused, grace_started_at,
			started_at, finished_at,
			setup_phase, setup_accum, setup_since,
			rework_phase, rework_accum, rework_since,
			quality_state, quality_called_at, quality_arrived_at, quality_approved_at,
			updated_at)
		VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			name=excluded.name,
			kind=excluded.kind,
			state=excluded.state,
			target_units=excluded.target_units,
			rate_per_worker=excluded.rate_per_worker,
			completed_units=excluded.completed_units,
			checkpoint_at=excluded.checkpoint_at,
			auto_paused=excluded.auto_paused,
			grace_started_at=excluded.grace_started_at,
			started_at=excluded.started_at,
			finished_at=excluded.finished_at,
			setup_phase=excluded.setup_phase,
			setup_accum=excluded.setup_accum,
			setup_since=excluded.setup_since,
			rework_phase=excluded.rework_phase,
			rework_accum=excluded.rework_accum,
			rework_since=excluded.rework_since,
			quality_state=excluded.quality_state,
			quality_called_at=excluded.quality_called_at,
			quality_arrived_at=excluded.quality_arrived_at,
			quality_approved_at=excluded.quality_approved_at,
			updated_at=excluded.updated_at;`,
		snap.ID, snap.Name, string(snap.Kind), string(snap.State),
		snap.TargetUnits, snap.RatePerWorkerPerMinute,
		snap.CompletedUnits, snap.CheckpointAt.UTC(), snap.AutoPaused,
		nullableTime(snap.GraceStartedAt), nullableTime(snap.StartedAt), nullableTime(snap.FinishedAt),
		string(snap.Setup.Phase), snap.Setup.AccumulatedSeconds, nullableTime(snap.Setup.RunningSince),
		string(snap.Rework.Phase), snap.Rework.AccumulatedSeconds, nullableTime(snap.Rework.RunningSince),
		string(snap.Quality.State), nullableTime(snap.Quality.CalledAt),
		nullableTime(snap.Quality.ArrivedAt), nullableTime(snap.Quality.ApprovedAt),
		snap.UpdatedAt.UTC())
	return err
}

const processColumns = `id, name, kind, state, target_units, rate_per_worker,
	completed_units, checkpoint_at, auto_paused, grace_started_at,
	started_at, finished_at,
	setup_phase, setup_accum, setup_since,
	rework_phase, rework_accum, rework_since,
	quality_state, quality_called_at, quality_arrived_at, quality_approved_at,
	updated_at`

func (s *DB) GetProcess(ctx context.Context, id string) (process.Snapshot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+processColumns+` FROM processes WHERE id = ?;`, id)
	snap, err := scanProcess(row)
	if errors.Is(err, sql.ErrNoRows) {
		return process.Snapshot{}, fmt.Errorf("process %s: %w", id, store.ErrNotFound)
	}
	return snap, err
}

func (s *DB) ListProcesses(ctx context.Context) ([]process.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+processColumns+` FROM processes ORDER BY id;`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []process.Snapshot
	for rows.Next() {
		snap, err := scanProcess(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanProcess reads timestamps through store.ParseInstant: depending on the
// driver and the age of a row they come back as time.Time or as ISO strings.
func scanProcess(row rowScanner) (process.Snapshot, error) {
	var (
		snap                              process.Snapshot
		kind, state                       string
		checkpointAt, updatedAt           any
		graceAt, startedAt, finishedAt    any
		setupPhase, reworkPhase, qState   string
		setupSince, reworkSince           any
		qCalledAt, qArrivedAt, qApprovedAt any
	)
	err := row.Scan(&snap.ID, &snap.Name, &kind, &state,
		&snap.TargetUnits, &snap.RatePerWorkerPerMinute,
		&snap.CompletedUnits, &checkpointAt, &snap.AutoPaused,
		&graceAt, &startedAt, &finishedAt,
		&setupPhase, &snap.Setup.AccumulatedSeconds, &setupSince,
		&reworkPhase, &snap.Rework.AccumulatedSeconds, &reworkSince,
		&qState, &qCalledAt, &qArrivedAt, &qApprovedAt,
		&updatedAt)
	if err != nil {
		return process.Snapshot{}, err
	}
	snap.Kind = process.Kind(kind)
	snap.State = process.State(state)
	snap.Setup.Phase = process.TimerPhase(setupPhase)
	snap.Rework.Phase = process.TimerPhase(reworkPhase)
	snap.Quality.State = process.QualityState(qState)
	if snap.CheckpointAt, err = store.ParseInstant(checkpointAt); err != nil {
		return process.Snapshot{}, err
	}
	if snap.UpdatedAt, err = store.ParseInstant(updatedAt); err != nil {
		return process.Snapshot{}, err
	}
	for _, f := range []struct {
		src any
		dst **time.Time
	}{
		{graceAt, &snap.GraceStartedAt},
		{startedAt, &snap.StartedAt},
		{finishedAt, &snap.FinishedAt},
		{setupSince, &snap.Setup.RunningSince},
		{reworkSince, &snap.Rework.RunningSince},
		{qCalledAt, &snap.Quality.CalledAt},
		{qArrivedAt, &snap.Quality.ArrivedAt},
		{qApprovedAt, &snap.Quality.ApprovedAt},
	} {
		if *f.dst, err = store.ParseOptionalInstant(f.src); err != nil {
			return process.Snapshot{}, err
		}
	}
	return snap, nil
}

func (s *DB) InsertPresence(ctx context.Context, rec store.PresenceRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO presence(id, worker_id, process_id, role, check_in_at, check_out_at, justification)
		VALUES(?,?,?,?,?,NULL,'');`,
		rec.ID, rec.WorkerID, rec.ProcessID, string(rec.Role), rec.CheckInAt.UTC())
	return err
}

func (s *DB) ClosePresence(ctx context.Context, recordID string, at time.Time, justification string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE presence SET check_out_at = ?, justification = ?
		WHERE id = ? AND check_out_at IS NULL;`,
		at.UTC(), justification, recordID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("open presence record %s: %w", recordID, store.ErrNotFound)
	}
	return nil
}

func (s *DB) ActiveByProcess(ctx context.Context, processID string) ([]store.PresenceRecord, error) {
	return s.queryPresence(ctx, `
		SELECT id, worker_id, process_id, role, check_in_at, check_out_at, justification
		FROM presence WHERE process_id = ? AND check_out_at IS NULL
		ORDER BY check_in_at, id;`, processID)
}

func (s *DB) ActiveByWorker(ctx context.Context, workerID string) (store.PresenceRecord, bool, error) {
	recs, err := s.queryPresence(ctx, `
		SELECT id, worker_id, process_id, role, check_in_at, check_out_at, justification
		FROM presence WHERE worker_id = ? AND check_out_at IS NULL LIMIT 1;`, workerID)
	if err != nil || len(recs) == 0 {
		return store.PresenceRecord{}, false, err
	}
	return recs[0], true, nil
}

func (s *DB) PresenceHistory(ctx context.Context, processID string) ([]store.PresenceRecord, error) {
	return s.queryPresence(ctx, `
		SELECT id, worker_id, process_id, role, check_in_at, check_out_at, justification
		FROM presence WHERE process_id = ?
		ORDER BY check_in_at, id;`, processID)
}

func (s *DB) queryPresence(ctx context.Context, query string, args ...any) ([]store.PresenceRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []store.PresenceRecord
	for rows.Next() {
		var (
			rec              store.PresenceRecord
			role             string
			checkIn, checkOut any
		)
		if err := rows.Scan(&rec.ID, &rec.WorkerID, &rec.ProcessID, &role,
			&checkIn, &checkOut, &rec.Justification); err != nil {
			return nil, err
		}
		rec.Role = store.Role(role)
		if rec.CheckInAt, err = store.ParseInstant(checkIn); err != nil {
			return nil, err
		}
		if rec.CheckOutAt, err = store.ParseOptionalInstant(checkOut); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
