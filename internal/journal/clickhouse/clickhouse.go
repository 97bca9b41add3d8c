package clickhouse

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/taktline/takt/internal/journal"
)

// Sink forwards journal events to ClickHouse for plant-wide analytics.
type Sink struct {
	conn  driver.Conn
	table string
}

func New(addr, table string) (*Sink, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: "default",
			Username: "default",
			Password: "",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}
	if err := conn.Ping(context.Background()); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}
	if table == "" {
		table = "process_journal"
	}
	return &Sink{conn: conn, table: table}, nil
}

// EnsureSchema creates the journal table if it does not exist.
func (s *Sink) EnsureSchema(ctx context.Context) error {
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		occurred_at DateTime64(3),
		type String,
		process_id String,
		worker_id String,
		actor String,
		justification String,
		detail String,
		count Int32
	) ENGINE = MergeTree() ORDER BY (process_id, occurred_at)`, s.table)
	return s.conn.Exec(ctx, stmt)
}

func (s *Sink) Send(ctx context.Context, e journal.Event) error {
	query := fmt.Sprintf(`INSERT INTO %s (occurred_at, type, process_id, worker_id, actor, justification, detail, count) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, s.table)
	return s.conn.Exec(ctx, query,
		e.OccurredAt,
		string(e.Type),
		e.ProcessID,
		e.WorkerID,
		e.Actor,
		e.Justification,
		e.Detail,
		int32(e.Count),
	)
}

func (s *Sink) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
