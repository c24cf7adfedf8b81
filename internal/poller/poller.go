// Package poller drives the per-machine polling loop: it fetches raw run
// snapshots from an agent runtime, feeds them through the telemetry mapper,
// and fans the resulting envelopes out to the configured sinks.
package poller

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/patze/bridge/internal/config"
	"github.com/patze/bridge/internal/metrics"
	"github.com/patze/bridge/internal/telemetry"
)

const runsPath = "/v1/runs"

// Poller polls a single machine. One goroutine per machine; the mapper it
// owns is never shared with another poller.
type Poller struct {
	machine config.MachineConfig
	mapper  *telemetry.Mapper
	fanout  *Fanout
	client  *http.Client
	log     *slog.Logger
	collect func() telemetry.HostStats
}

func New(machine config.MachineConfig, opts telemetry.Options, fanout *Fanout, log *slog.Logger) *Poller {
	if log == nil {
		log = slog.Default()
	}
	info := telemetry.MachineInfo{
		ID:    machine.ID,
		Label: machine.Label,
		Kind:  machine.Kind,
	}
	return &Poller{
		machine: machine,
		mapper:  telemetry.NewMapper(info, opts),
		fanout:  fanout,
		client:  &http.Client{Timeout: 10 * time.Second},
		log:     log.With("machine", machine.ID),
		collect: CollectHostStats,
	}
}

// Mapper exposes the underlying mapper for status reporting.
func (p *Poller) Mapper() *telemetry.Mapper {
	return p.mapper
}

// Run polls and heartbeats until ctx is cancelled. A failed poll skips the
// cycle; the mapper state is only ever advanced by snapshots we actually
// received.
func (p *Poller) Run(ctx context.Context) {
	pollTicker := time.NewTicker(p.machine.PollInterval)
	defer pollTicker.Stop()
	hbTicker := time.NewTicker(p.machine.HeartbeatInterval)
	defer hbTicker.Stop()

	p.log.Info("poller started",
		"url", p.machine.URL,
		"poll_interval", p.machine.PollInterval,
		"heartbeat_interval", p.machine.HeartbeatInterval)

	// Immediate first cycle so registration is not delayed by one interval.
	p.pollOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			p.log.Info("poller stopped")
			return
		case <-pollTicker.C:
			p.pollOnce(ctx)
		case <-hbTicker.C:
			p.heartbeatOnce(ctx)
		}
	}
}

func (p *Poller) pollOnce(ctx context.Context) {
	start := time.Now()
	runs, err := p.fetchRuns(ctx)
	if err != nil {
		p.log.Warn("poll failed", "error", err)
		return
	}

	events := p.mapper.Poll(runs)
	metrics.ObservePollDuration(p.machine.ID, time.Since(start).Seconds())

	snap := p.mapper.Snapshot()
	metrics.SetTrackedRuns(p.machine.ID, snap.KnownRuns)
	metrics.SetTrackedSessions(p.machine.ID, snap.KnownSessions)
	if snap.EvictedLastPoll > 0 {
		metrics.AddEvicted(p.machine.ID, snap.EvictedLastPoll)
	}
	p.recordTransitions(events)

	if len(events) > 0 {
		p.log.Debug("poll cycle produced events", "count", len(events), "observed_runs", len(runs))
		p.fanout.Dispatch(ctx, events)
	}
}

func (p *Poller) heartbeatOnce(ctx context.Context) {
	e := p.mapper.Heartbeat(p.collect())
	p.fanout.Dispatch(ctx, []telemetry.Envelope{e})
}

func (p *Poller) recordTransitions(events []telemetry.Envelope) {
	for _, e := range events {
		switch pl := e.Payload.(type) {
		case telemetry.RunStateChange:
			metrics.RecordRunTransition(p.machine.ID, string(pl.From), string(pl.To))
		case telemetry.SessionStateChange:
			metrics.RecordSessionTransition(p.machine.ID, string(pl.From), string(pl.To))
		}
	}
}

// fetchRuns pulls the current run snapshot from the machine's runtime API.
func (p *Poller) fetchRuns(ctx context.Context) ([]telemetry.DetectedRun, error) {
	url := strings.TrimRight(p.machine.URL, "/") + runsPath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("runtime returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var runs []telemetry.DetectedRun
	if err := json.NewDecoder(resp.Body).Decode(&runs); err != nil {
		return nil, fmt.Errorf("decode runs: %w", err)
	}
	return runs, nil
}
