package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/taktline/takt/internal/process"
	"github.com/taktline/takt/internal/store"
)

// DB implements store.Store for PostgreSQL via the pgx stdlib driver.
type DB struct {
	db *sql.DB
}

func New(dsn string) (*DB, error) {
	d, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &DB{db: d}, nil
}

func (s *DB) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS processes(
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			kind TEXT NOT NULL,
			state TEXT NOT NULL,
			target_units DOUBLE PRECISION NOT NULL,
			rate_per_worker DOUBLE PRECISION NOT NULL,
			completed_units DOUBLE PRECISION NOT NULL,
			checkpoint_at TIMESTAMPTZ NOT NULL,
			auto_paused BOOLEAN NOT NULL,
			grace_started_at TIMESTAMPTZ NULL,
			started_at TIMESTAMPTZ NULL,
			finished_at TIMESTAMPTZ NULL,
			setup_phase TEXT NOT NULL DEFAULT '',
			setup_accum BIGINT NOT NULL DEFAULT 0,
			setup_since TIMESTAMPTZ NULL,
			rework_phase TEXT NOT NULL DEFAULT '',
			rework_accum BIGINT NOT NULL DEFAULT 0,
			rework_since TIMESTAMPTZ NULL,
			quality_state TEXT NOT NULL DEFAULT '',
			quality_called_at TIMESTAMPTZ NULL,
			quality_arrived_at TIMESTAMPTZ NULL,
			quality_approved_at TIMESTAMPTZ NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS presence(
			id TEXT PRIMARY KEY,
			worker_id TEXT NOT NULL,
			process_id TEXT NOT NULL,
			role TEXT NOT NULL,
			check_in_at TIMESTAMPTZ NOT NULL,
			check_out_at TIMESTAMPTZ NULL,
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
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23)
		ON CONFLICT(id) DO UPDATE SET
			name=EXCLUDED.name,
			kind=EXCLUDED.kind,
			state=EXCLUDED.state,
			target_units=EXCLUDED.target_units,
			rate_per_worker=EXCLUDED.rate_per_worker,
			completed_units=EXCLUDED.completed_units,
			checkpoint_at=EXCLUDED.checkpoint_at,
			auto_paused=EXCLUDED.auto_paused,
			grace_started_at=EXCLUDED.grace_started_at,
			started_at=EXCLUDED.started_at,
			finished_at=EXCLUDED.finished_at,
			setup_phase=EXCLUDED.setup_phase,
			setup_accum=EXCLUDED.setup_accum,
			setup_since=EXCLUDED.setup_since,
			rework_phase=EXCLUDED.rework_phase,
			rework_accum=EXCLUDED.rework_accum,
			rework_since=EXCLUDED.rework_since,
			quality_state=EXCLUDED.quality_state,
			quality_called_at=EXCLUDED.quality_called_at,
			quality_arrived_at=EXCLUDED.quality_arrived_at,
			quality_approved_at=EXCLUDED.quality_approved_at,
			updated_at=EXCLUDED.updated_at;`,
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
		`SELECT `+processColumns+` FROM processes WHERE id = $1;`, id)
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

func scanProcess(row rowScanner) (process.Snapshot, error) {
	var (
		snap                            process.Snapshot
		kind, state                     string
		setupPhase, reworkPhase, qState string
		grace, started, finished        sql.NullTime
		setupSince, reworkSince         sql.NullTime
		qCalled, qArrived, qApproved    sql.NullTime
	)
	err := row.Scan(&snap.ID, &snap.Name, &kind, &state,
		&snap.TargetUnits, &snap.RatePerWorkerPerMinute,
		&snap.CompletedUnits, &snap.CheckpointAt, &snap.AutoPaused,
		&grace, &started, &finished,
		&setupPhase, &snap.Setup.AccumulatedSeconds, &setupSince,
		&reworkPhase, &snap.Rework.AccumulatedSeconds, &reworkSince,
		&qState, &qCalled, &qArrived, &qApproved,
		&snap.UpdatedAt)
	if err != nil {
		return process.Snapshot{}, err
	}
	snap.Kind = process.Kind(kind)
	snap.State = process.State(state)
	snap.Setup.Phase = process.TimerPhase(setupPhase)
	snap.Rework.Phase = process.TimerPhase(reworkPhase)
	snap.Quality.State = process.QualityState(qState)
	snap.CheckpointAt = snap.CheckpointAt.UTC()
	snap.UpdatedAt = snap.UpdatedAt.UTC()
	snap.GraceStartedAt = optional(grace)
	snap.StartedAt = optional(started)
	snap.FinishedAt = optional(finished)
	snap.Setup.RunningSince = optional(setupSince)
	snap.Rework.RunningSince = optional(reworkSince)
	snap.Quality.CalledAt = optional(qCalled)
	snap.Quality.ArrivedAt = optional(qArrived)
	snap.Quality.ApprovedAt = optional(qApproved)
	return snap, nil
}

func (s *DB) InsertPresence(ctx context.Context, rec store.PresenceRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO presence(id, worker_id, process_id, role, check_in_at, check_out_at, justification)
		VALUES($1,$2,$3,$4,$5,NULL,'');`,
		rec.ID, rec.WorkerID, rec.ProcessID, string(rec.Role), rec.CheckInAt.UTC())
	return err
}

func (s *DB) ClosePresence(ctx context.Context, recordID string, at time.Time, justification string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE presence SET check_out_at = $1, justification = $2
		WHERE id = $3 AND check_out_at IS NULL;`,
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
		FROM presence WHERE process_id = $1 AND check_out_at IS NULL
		ORDER BY check_in_at, id;`, processID)
}

func (s *DB) ActiveByWorker(ctx context.Context, workerID string) (store.PresenceRecord, bool, error) {
	recs, err := s.queryPresence(ctx, `
		SELECT id, worker_id, process_id, role, check_in_at, check_out_at, justification
		FROM presence WHERE worker_id = $1 AND check_out_at IS NULL LIMIT 1;`, workerID)
	if err != nil || len(recs) == 0 {
		return store.PresenceRecord{}, false, err
	}
	return recs[0], true, nil
}

func (s *DB) PresenceHistory(ctx context.Context, processID string) ([]store.PresenceRecord, error) {
	return s.queryPresence(ctx, `
		SELECT id, worker_id, process_id, role, check_in_at, check_out_at, justification
		FROM presence WHERE process_id = $1
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
			rec      store.PresenceRecord
			role     string
			checkOut sql.NullTime
		)
		if err := rows.Scan(&rec.ID, &rec.WorkerID, &rec.ProcessID, &role,
			&rec.CheckInAt, &checkOut, &rec.Justification); err != nil {
			return nil, err
		}
		rec.Role = store.Role(role)
		rec.CheckInAt = rec.CheckInAt.UTC()
		rec.CheckOutAt = optional(checkOut)
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

func optional(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	u := t.Time.UTC()
	return &u
}
