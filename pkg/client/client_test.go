package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/patze/bridge/internal/telemetry"
)

func testDaemon(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "machines": 1})
	})
	mux.HandleFunc("/machines", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]telemetry.MachineInfo{
			{ID: "m1", Label: "Laptop", Kind: "desktop"},
		})
	})
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		if m := r.URL.Query().Get("machine"); m != "" && m != "m1" {
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "unknown machine: " + m})
			return
		}
		_ = json.NewEncoder(w).Encode([]telemetry.Stats{
			{MachineID: "m1", KnownRuns: 3, KnownSessions: 2},
		})
	})
	mux.HandleFunc("/events/recent", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]telemetry.Envelope{
			{ID: "ev-2", Type: telemetry.EventRunStateChanged},
			{ID: "ev-1", Type: telemetry.EventMachineRegistered},
		})
	})
	return httptest.NewServer(mux)
}

func TestClientEndpoints(t *testing.T) {
	srv := testDaemon(t)
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	ctx := context.Background()

	if !c.IsReachable(ctx) {
		t.Fatalf("expected daemon to be reachable")
	}

	machines, err := c.Machines(ctx)
	if err != nil {
		t.Fatalf("machines: %v", err)
	}
	if len(machines) != 1 || machines[0].ID != "m1" {
		t.Fatalf("unexpected machines: %+v", machines)
	}

	stats, err := c.Status(ctx, "")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if len(stats) != 1 || stats[0].KnownRuns != 3 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	events, err := c.RecentEvents(ctx, 10)
	if err != nil {
		t.Fatalf("recent events: %v", err)
	}
	if len(events) != 2 || events[0].ID != "ev-2" {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestClientAPIError(t *testing.T) {
	srv := testDaemon(t)
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	_, err := c.Status(context.Background(), "absent")
	if err == nil {
		t.Fatalf("expected API error for unknown machine")
	}
}

func TestClientUnreachable(t *testing.T) {
	c := New(Config{BaseURL: "http://127.0.0.1:1"})
	if c.IsReachable(context.Background()) {
		t.Fatalf("expected unreachable")
	}
}
