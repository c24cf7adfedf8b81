package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/patze/bridge/internal/telemetry"
)

func testEnvelope(id string) telemetry.Envelope {
	return telemetry.Envelope{
		Version:   telemetry.SchemaVersion,
		ID:        id,
		TS:        time.Now().UTC().Format(time.RFC3339Nano),
		MachineID: "m1",
		Severity:  telemetry.SeverityInfo,
		Type:      telemetry.EventRunStateChanged,
		Payload: telemetry.RunStateChange{
			RunID: "r1", SessionID: "s1", AgentID: "a1",
			From: telemetry.RunRunning, To: telemetry.RunCompleted,
		},
		Trace: telemetry.Trace{TraceID: "t1", SpanID: "sp1"},
	}
}

func TestSQLiteSink_SendAndCount(t *testing.T) {
	dir := t.TempDir()
	s, err := New(filepath.Join(dir, "events.db"))
	if err != nil {
		t.Fatalf("create sink: %v", err)
	}
	defer func() { _ = s.Close() }()

	ctx := context.Background()
	if err := s.Send(ctx, testEnvelope("ev-1")); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := s.Send(ctx, testEnvelope("ev-2")); err != nil {
		t.Fatalf("send: %v", err)
	}

	n, err := s.Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 events, got %d", n)
	}
}

func TestSQLiteSink_RedeliveryIsIdempotent(t *testing.T) {
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("create sink: %v", err)
	}
	defer func() { _ = s.Close() }()

	ctx := context.Background()
	e := testEnvelope("ev-dup")
	for i := 0; i < 3; i++ {
		if err := s.Send(ctx, e); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}

	n, err := s.Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 event after redelivery, got %d", n)
	}
}

func TestSQLiteSink_DSNPrefix(t *testing.T) {
	s, err := New("sqlite://:memory:")
	if err != nil {
		t.Fatalf("create sink with prefix: %v", err)
	}
	_ = s.Close()

	if _, err := New(""); err == nil {
		t.Fatalf("expected error for empty DSN")
	}
}
