// Package bridge turns polled agent-runtime run snapshots into a canonical
// telemetry event stream and ships it to configured sinks. This file is the
// public embedding surface; the cmd/patze-bridge CLI is a thin wrapper over
// it.
package bridge

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	cfg "github.com/patze/bridge/internal/config"
	"github.com/patze/bridge/internal/metrics"
	"github.com/patze/bridge/internal/poller"
	"github.com/patze/bridge/internal/server"
	"github.com/patze/bridge/internal/sink"
	"github.com/patze/bridge/internal/sink/factory"
	"github.com/patze/bridge/internal/telemetry"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type MachineInfo = telemetry.MachineInfo

type DetectedRun = telemetry.DetectedRun

type Envelope = telemetry.Envelope

type Stats = telemetry.Stats

type MapperOptions = telemetry.Options

type Mapper = telemetry.Mapper

type Config = cfg.FileConfig

// NewMapper creates a standalone event mapper for one machine. Embedders
// that do their own polling and delivery only need this.
func NewMapper(machine MachineInfo, opts MapperOptions) *Mapper {
	return telemetry.NewMapper(machine, opts)
}

// LoadConfig reads and validates a TOML config file.
func LoadConfig(path string) (*Config, error) {
	return cfg.Load(path)
}

// Bridge runs the full pipeline: one poller per configured machine, a
// shared fan-out to the configured sinks, and optionally the status API.
type Bridge struct {
	pollers []*poller.Poller
	fanout  *poller.Fanout
	recent  *server.RecentEvents
	httpSrv *http.Server
	log     *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// New builds a Bridge from config. Sink construction failures are fatal:
// a bridge that silently drops its delivery targets is worse than one that
// refuses to start.
func New(fc *Config, log *slog.Logger) (*Bridge, error) {
	if log == nil {
		log = slog.Default()
	}

	sinks := make([]poller.NamedSink, 0, len(fc.Sinks))
	for _, sc := range fc.Sinks {
		s, err := buildSink(sc)
		if err != nil {
			for _, ns := range sinks {
				if c, ok := ns.Sink.(sink.Closer); ok {
					_ = c.Close()
				}
			}
			return nil, err
		}
		sinks = append(sinks, poller.NamedSink{Name: sinkName(sc.DSN), Sink: s})
	}

	fanout := poller.NewFanout(sinks, log)
	recent := server.NewRecentEvents(256)
	fanout.SetObserver(recent.Add)

	opts := fc.MapperOptions()
	pollers := make([]*poller.Poller, 0, len(fc.Machines))
	for _, mc := range fc.Machines {
		pollers = append(pollers, poller.New(mc, opts, fanout, log))
	}

	b := &Bridge{
		pollers: pollers,
		fanout:  fanout,
		recent:  recent,
		log:     log,
	}
	if fc.Server.Enabled {
		b.httpSrv = server.NewServer(fc.Server.Listen, "", pollers, recent)
		log.Info("status API listening", "addr", fc.Server.Listen)
	}
	return b, nil
}

// Start launches one polling goroutine per machine. It is idempotent.
func (b *Bridge) Start(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return
	}
	b.started = true

	ctx, b.cancel = context.WithCancel(ctx)
	b.done = make(chan struct{})

	var wg sync.WaitGroup
	for _, p := range b.pollers {
		wg.Add(1)
		go func(p *poller.Poller) {
			defer wg.Done()
			p.Run(ctx)
		}(p)
	}
	go func() {
		wg.Wait()
		close(b.done)
	}()
}

// Stop cancels polling, waits for the pollers to drain, and closes sinks
// and the status API.
func (b *Bridge) Stop(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel != nil {
		b.cancel()
		select {
		case <-b.done:
		case <-ctx.Done():
		}
	}
	if b.httpSrv != nil {
		_ = b.httpSrv.Shutdown(ctx)
	}
	b.fanout.Close()
	b.started = false
}

// Status returns per-machine working-set counts.
func (b *Bridge) Status() []Stats {
	out := make([]Stats, 0, len(b.pollers))
	for _, p := range b.pollers {
		out = append(out, p.Mapper().Snapshot())
	}
	return out
}

// RecentEvents returns up to n of the latest envelopes, newest first.
func (b *Bridge) RecentEvents(n int) []Envelope {
	return b.recent.Latest(n)
}

func buildSink(sc cfg.SinkConfig) (sink.Sink, error) {
	dsn := strings.TrimSpace(sc.DSN)
	lower := strings.ToLower(dsn)
	if sc.Token != "" && (strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")) {
		return sink.NewIngestSink(dsn, sc.Token), nil
	}
	return factory.NewSinkFromDSN(dsn)
}

func sinkName(dsn string) string {
	if i := strings.Index(dsn, "://"); i > 0 {
		return strings.ToLower(dsn[:i])
	}
	return "sqlite"
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// ServeMetrics starts an HTTP server on addr exposing /metrics using the
// default registry. It blocks in the caller goroutine.
func ServeMetrics(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv.ListenAndServe()
}
