package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/patze/bridge"
	"github.com/patze/bridge/internal/logger"
	"github.com/patze/bridge/pkg/client"
)

// command holds the CLI logic behind each cobra subcommand. out is
// parameterized so tests can capture output.
type command struct {
	out io.Writer
}

func (c command) writer() io.Writer {
	if c.out != nil {
		return c.out
	}
	return os.Stdout
}

func (c command) apiClient(url string, timeout time.Duration) *client.Client {
	cfg := client.DefaultConfig()
	if url != "" {
		cfg.BaseURL = url
	}
	if timeout > 0 {
		cfg.Timeout = timeout
	}
	return client.New(cfg)
}

// Serve runs the bridge daemon until SIGINT/SIGTERM.
func (c command) Serve(flags ServeFlags) error {
	if flags.ConfigPath == "" {
		return fmt.Errorf("config file required. Use --config=bridge.toml or provide as argument")
	}

	fc, err := bridge.LoadConfig(flags.ConfigPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	logCfg := logger.Config{}
	if fc.Log != nil {
		logCfg = *fc.Log
	}
	log := logCfg.New()

	if fc.Metrics.Enabled {
		if err := bridge.RegisterMetricsDefault(); err != nil {
			log.Warn("failed to register metrics", "error", err)
		}
		if fc.Metrics.Listen != "" {
			go func() {
				if err := bridge.ServeMetrics(fc.Metrics.Listen); err != nil {
					log.Error("metrics server error", "error", err)
				}
			}()
		}
	}

	b, err := bridge.New(fc, log)
	if err != nil {
		return fmt.Errorf("failed to build bridge: %w", err)
	}

	ctx := context.Background()
	b.Start(ctx)
	fmt.Fprintf(c.writer(), "patze-bridge polling %d machine(s)\n", len(fc.Machines))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	fmt.Fprintln(c.writer(), "Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	b.Stop(shutdownCtx)
	return nil
}

// Status prints per-machine working-set counts from a running daemon.
func (c command) Status(flags StatusFlags) error {
	cl := c.apiClient(flags.APIUrl, flags.APITimeout)
	ctx, cancel := timeoutCtx(flags.APITimeout)
	defer cancel()

	stats, err := cl.Status(ctx, flags.Machine)
	if err != nil {
		return err
	}
	w := c.writer()
	fmt.Fprintf(w, "%-20s %8s %10s %8s %10s %8s\n",
		"MACHINE", "RUNS", "SESSIONS", "ACTIVE", "TERMINAL", "EVICTED")
	for _, s := range stats {
		fmt.Fprintf(w, "%-20s %8d %10d %8d %10d %8d\n",
			s.MachineID, s.KnownRuns, s.KnownSessions,
			s.ActiveSessions, s.TerminalSessions, s.EvictedLastPoll)
	}
	return nil
}

// Machines prints the machine identities the daemon polls.
func (c command) Machines(flags MachinesFlags) error {
	cl := c.apiClient(flags.APIUrl, flags.APITimeout)
	ctx, cancel := timeoutCtx(flags.APITimeout)
	defer cancel()

	machines, err := cl.Machines(ctx)
	if err != nil {
		return err
	}
	w := c.writer()
	fmt.Fprintf(w, "%-20s %-24s %s\n", "ID", "LABEL", "KIND")
	for _, m := range machines {
		fmt.Fprintf(w, "%-20s %-24s %s\n", m.ID, m.Label, m.Kind)
	}
	return nil
}

// Events prints the latest envelopes, newest first.
func (c command) Events(flags EventsFlags) error {
	cl := c.apiClient(flags.APIUrl, flags.APITimeout)
	ctx, cancel := timeoutCtx(flags.APITimeout)
	defer cancel()

	events, err := cl.RecentEvents(ctx, flags.Limit)
	if err != nil {
		return err
	}
	w := c.writer()
	for _, e := range events {
		fmt.Fprintf(w, "%s  %-8s %-22s machine=%s\n", e.TS, e.Severity, e.Type, e.MachineID)
	}
	if len(events) == 0 {
		fmt.Fprintln(w, "no events")
	}
	return nil
}

func timeoutCtx(timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return context.WithTimeout(context.Background(), timeout)
}
