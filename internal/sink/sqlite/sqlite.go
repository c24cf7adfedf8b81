package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/patze/bridge/internal/telemetry"
)

// Sink writes envelopes to a SQLite event journal, the default local sink
// when the desktop app runs without any external store.
type Sink struct {
	db *sql.DB
}

// New creates a SQLite sink.
// DSN format:
//   - "sqlite:///path/to/file.db"
//   - "sqlite://:memory:"
//   - "/path/to/file.db" (without prefix)
//   - ":memory:" (in-memory database)
func New(dsn string) (*Sink, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("empty SQLite DSN")
	}

	if strings.HasPrefix(strings.ToLower(dsn), "sqlite://") {
		dsn = strings.TrimPrefix(dsn, "sqlite://")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	sink := &Sink{db: db}
	if err := sink.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return sink, nil
}

func (s *Sink) ensureSchema(ctx context.Context) error {
	stmt := `CREATE TABLE IF NOT EXISTS telemetry_events(
		event_id TEXT PRIMARY KEY,
		ts TIMESTAMP NOT NULL DEFAULT (CURRENT_TIMESTAMP),
		machine_id TEXT NOT NULL,
		severity TEXT NOT NULL,
		type TEXT NOT NULL,
		payload TEXT,
		trace_id TEXT,
		span_id TEXT
	);`
	_, err := s.db.ExecContext(ctx, stmt)
	return err
}

func (s *Sink) Send(ctx context.Context, e telemetry.Envelope) error {
	payload, _ := json.Marshal(e.Payload)
	ts, err := time.Parse(time.RFC3339Nano, e.TS)
	if err != nil {
		ts = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO telemetry_events(event_id, ts, machine_id, severity, type, payload, trace_id, span_id)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?);`,
		e.ID, ts, e.MachineID, string(e.Severity), string(e.Type), string(payload), e.Trace.TraceID, e.Trace.SpanID)
	return err
}

// Count returns the number of journaled events.
func (s *Sink) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM telemetry_events;`).Scan(&n)
	return n, err
}

func (s *Sink) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
