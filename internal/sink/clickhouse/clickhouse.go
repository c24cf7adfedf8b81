package clickhouse

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/patze/bridge/internal/telemetry"
)

// Sink writes envelopes to ClickHouse using the official Go client.
type Sink struct {
	conn  driver.Conn
	table string
}

// New connects to ClickHouse at addr (host:port, native protocol) and
// writes into table.
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

	return &Sink{conn: conn, table: table}, nil
}

func (s *Sink) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func (s *Sink) Send(ctx context.Context, e telemetry.Envelope) error {
	payload, _ := json.Marshal(e.Payload)
	ts, err := time.Parse(time.RFC3339Nano, e.TS)
	if err != nil {
		ts = time.Now().UTC()
	}

	query := fmt.Sprintf(`INSERT INTO %s (version, event_id, ts, machine_id, severity, type, payload, trace_id, span_id) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.table)
	if err := s.conn.Exec(ctx, query,
		e.Version,
		e.ID,
		ts,
		e.MachineID,
		string(e.Severity),
		string(e.Type),
		string(payload),
		e.Trace.TraceID,
		e.Trace.SpanID,
	); err != nil {
		return fmt.Errorf("failed to insert envelope into ClickHouse: %w", err)
	}
	return nil
}
