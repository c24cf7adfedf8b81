package poller

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/patze/bridge/internal/config"
	"github.com/patze/bridge/internal/telemetry"
)

// captureSink records every envelope it receives.
type captureSink struct {
	mu     sync.Mutex
	events []telemetry.Envelope
	fail   bool
}

func (c *captureSink) Send(_ context.Context, e telemetry.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return context.DeadlineExceeded
	}
	c.events = append(c.events, e)
	return nil
}

func (c *captureSink) all() []telemetry.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]telemetry.Envelope, len(c.events))
	copy(out, c.events)
	return out
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(nopWriter{}, nil))
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func runtimeServer(t *testing.T, runs *[]telemetry.DetectedRun) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/runs" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(*runs)
	}))
}

func newTestPoller(t *testing.T, url string, cap *captureSink) *Poller {
	t.Helper()
	fanout := NewFanout([]NamedSink{{Name: "capture", Sink: cap}}, discardLogger())
	machine := config.MachineConfig{
		ID:                "m1",
		Label:             "Test Machine",
		Kind:              "test",
		URL:               url,
		PollInterval:      config.DefaultPollInterval,
		HeartbeatInterval: config.DefaultHeartbeatInterval,
	}
	return New(machine, telemetry.Options{}, fanout, discardLogger())
}

func TestPollOnceDeliversEvents(t *testing.T) {
	runs := []telemetry.DetectedRun{
		{ID: "r1", SessionID: "s1", AgentID: "a1", State: telemetry.RunRunning},
	}
	srv := runtimeServer(t, &runs)
	defer srv.Close()

	cap := &captureSink{}
	p := newTestPoller(t, srv.URL, cap)

	p.pollOnce(context.Background())

	got := cap.all()
	// machine.registered, synthetic predecessor chain for r1, session events
	if len(got) == 0 {
		t.Fatalf("expected events from first poll, got none")
	}
	if got[0].Type != telemetry.EventMachineRegistered {
		t.Fatalf("expected machine.registered first, got %s", got[0].Type)
	}
	var sawRun, sawSession bool
	for _, e := range got {
		switch e.Type {
		case telemetry.EventRunStateChanged:
			sawRun = true
		case telemetry.EventSessionStateChanged:
			sawSession = true
		}
		if e.MachineID != "m1" {
			t.Fatalf("wrong machine id on %s: %q", e.Type, e.MachineID)
		}
	}
	if !sawRun || !sawSession {
		t.Fatalf("expected run and session events, got %v", got)
	}
}

func TestPollOnceIdempotent(t *testing.T) {
	runs := []telemetry.DetectedRun{
		{ID: "r1", SessionID: "s1", AgentID: "a1", State: telemetry.RunRunning},
	}
	srv := runtimeServer(t, &runs)
	defer srv.Close()

	cap := &captureSink{}
	p := newTestPoller(t, srv.URL, cap)

	p.pollOnce(context.Background())
	first := len(cap.all())
	p.pollOnce(context.Background())
	if len(cap.all()) != first {
		t.Fatalf("unchanged snapshot produced new events: %d -> %d", first, len(cap.all()))
	}
}

func TestPollOnceSkipsCycleOnFetchError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cap := &captureSink{}
	p := newTestPoller(t, srv.URL, cap)

	p.pollOnce(context.Background())
	if n := len(cap.all()); n != 0 {
		t.Fatalf("failed poll must not advance state or emit, got %d events", n)
	}

	// Mapper state untouched: next successful-looking poll still registers.
	if p.Mapper().Snapshot().KnownRuns != 0 {
		t.Fatalf("mapper state advanced on failed poll")
	}
}

func TestHeartbeatOnce(t *testing.T) {
	runs := []telemetry.DetectedRun{}
	srv := runtimeServer(t, &runs)
	defer srv.Close()

	cap := &captureSink{}
	p := newTestPoller(t, srv.URL, cap)
	p.collect = func() telemetry.HostStats {
		return telemetry.HostStats{CPUPercent: 12.5, MemoryPercent: 40, MemoryUsedMB: 2048}
	}

	p.heartbeatOnce(context.Background())

	got := cap.all()
	if len(got) != 1 || got[0].Type != telemetry.EventMachineHeartbeat {
		t.Fatalf("expected one heartbeat, got %v", got)
	}
	hs, ok := got[0].Payload.(telemetry.HostStats)
	if !ok || hs.CPUPercent != 12.5 {
		t.Fatalf("unexpected heartbeat payload: %v", got[0].Payload)
	}
}

func TestFanoutFailingSinkDoesNotBlockOthers(t *testing.T) {
	bad := &captureSink{fail: true}
	good := &captureSink{}
	fanout := NewFanout([]NamedSink{
		{Name: "bad", Sink: bad},
		{Name: "good", Sink: good},
	}, discardLogger())

	fanout.Dispatch(context.Background(), []telemetry.Envelope{
		{ID: "ev-1", MachineID: "m1", Type: telemetry.EventMachineHeartbeat},
	})

	if len(good.all()) != 1 {
		t.Fatalf("healthy sink missed delivery")
	}
}

func TestFanoutObserverSeesEveryEnvelope(t *testing.T) {
	cap := &captureSink{}
	fanout := NewFanout([]NamedSink{{Name: "capture", Sink: cap}}, discardLogger())

	var observed []string
	fanout.SetObserver(func(e telemetry.Envelope) {
		observed = append(observed, e.ID)
	})

	fanout.Dispatch(context.Background(), []telemetry.Envelope{
		{ID: "ev-1", Type: telemetry.EventMachineHeartbeat},
		{ID: "ev-2", Type: telemetry.EventMachineHeartbeat},
	})

	if len(observed) != 2 || observed[0] != "ev-1" || observed[1] != "ev-2" {
		t.Fatalf("observer missed envelopes: %v", observed)
	}
}
