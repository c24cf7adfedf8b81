package poller

import (
	"context"
	"log/slog"

	"github.com/patze/bridge/internal/metrics"
	"github.com/patze/bridge/internal/sink"
	"github.com/patze/bridge/internal/telemetry"
)

// NamedSink pairs a sink with a short label for logs and metrics.
type NamedSink struct {
	Name string
	Sink sink.Sink
}

// Fanout delivers each envelope to every configured sink. Delivery is
// best-effort per sink: one failing sink does not block the others, and a
// failed delivery is logged and counted, not retried.
type Fanout struct {
	sinks    []NamedSink
	log      *slog.Logger
	observer func(telemetry.Envelope)
}

func NewFanout(sinks []NamedSink, log *slog.Logger) *Fanout {
	if log == nil {
		log = slog.Default()
	}
	return &Fanout{sinks: sinks, log: log}
}

// SetObserver registers a callback invoked for every envelope before sink
// delivery. Used by the status API to keep a recent-events buffer.
func (f *Fanout) SetObserver(fn func(telemetry.Envelope)) {
	f.observer = fn
}

func (f *Fanout) Dispatch(ctx context.Context, events []telemetry.Envelope) {
	for _, e := range events {
		if f.observer != nil {
			f.observer(e)
		}
		metrics.IncEvent(e.MachineID, string(e.Type))
		for _, ns := range f.sinks {
			if err := ns.Sink.Send(ctx, e); err != nil {
				metrics.IncSinkError(ns.Name)
				f.log.Warn("sink delivery failed",
					"sink", ns.Name, "type", string(e.Type), "event_id", e.ID, "error", err)
			}
		}
	}
}

// Close closes every sink that supports it.
func (f *Fanout) Close() {
	for _, ns := range f.sinks {
		if c, ok := ns.Sink.(sink.Closer); ok {
			if err := c.Close(); err != nil {
				f.log.Warn("sink close failed", "sink", ns.Name, "error", err)
			}
		}
	}
}
