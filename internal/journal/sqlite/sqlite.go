package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/taktline/takt/internal/journal"
)

// Sink appends journal events to a SQLite table.
type Sink struct {
	db *sql.DB
}

// New opens (or creates) the journal database. DSN accepts a plain path,
// ":memory:", or a "sqlite://" prefixed form.
func New(dsn string) (*Sink, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("empty SQLite DSN")
	}
	if strings.HasPrefix(strings.ToLower(dsn), "sqlite://") {
		dsn = dsn[len("sqlite://"):]
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	s := &Sink{db: db}
	if err := s.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Sink) ensureSchema(ctx context.Context) error {
	// Append-only audit table, no primary key.
	stmt := `CREATE TABLE IF NOT EXISTS process_journal(
		occurred_at TIMESTAMP NOT NULL,
		type TEXT NOT NULL,
		process_id TEXT NOT NULL,
		worker_id TEXT,
		actor TEXT,
		justification TEXT,
		detail TEXT,
		count INTEGER NOT NULL DEFAULT 0
	);`
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_journal_process ON process_journal(process_id, occurred_at);`)
	return err
}

func (s *Sink) Send(ctx context.Context, e journal.Event) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO process_journal(occurred_at, type, process_id, worker_id, actor, justification, detail, count)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?);`,
		e.OccurredAt.UTC(), string(e.Type), e.ProcessID, e.WorkerID,
		e.Actor, e.Justification, e.Detail, e.Count)
	return err
}

func (s *Sink) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
