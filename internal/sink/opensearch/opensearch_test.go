package opensearch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/patze/bridge/internal/telemetry"
)

func TestSink_Send(t *testing.T) {
	var gotBody []byte
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/patze-telemetry/_doc" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		b, _ := io.ReadAll(r.Body)
		gotBody = b
		w.WriteHeader(201)
	}))
	defer ts.Close()

	s := New(ts.URL, "patze-telemetry")
	e := telemetry.Envelope{
		Version:   telemetry.SchemaVersion,
		ID:        "ev-1",
		TS:        time.Now().UTC().Format(time.RFC3339Nano),
		MachineID: "m1",
		Severity:  telemetry.SeverityInfo,
		Type:      telemetry.EventMachineHeartbeat,
		Payload:   telemetry.HostStats{CPUPercent: 3.5},
		Trace:     telemetry.Trace{TraceID: "t1", SpanID: "sp1"},
	}
	if err := s.Send(context.Background(), e); err != nil {
		t.Fatalf("send: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(gotBody, &m); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if m["type"] != "machine.heartbeat" {
		t.Fatalf("unexpected doc: %v", m)
	}
}

func TestSink_ErrorStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(503)
	}))
	defer ts.Close()

	s := New(ts.URL, "idx")
	if err := s.Send(context.Background(), telemetry.Envelope{}); err == nil {
		t.Fatalf("expected error on 503 response")
	}
}
