package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	root := buildRoot(command{})
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildRoot creates the root command with all subcommands attached.
func buildRoot(c command) *cobra.Command {
	globalFlags := &GlobalFlags{}
	statusFlags := &StatusFlags{}
	machinesFlags := &MachinesFlags{}
	eventsFlags := &EventsFlags{}

	root := createRootCommand(globalFlags)
	root.AddCommand(
		createServeCommand(globalFlags, c),
		createStatusCommand(c, statusFlags),
		createMachinesCommand(c, machinesFlags),
		createEventsCommand(c, eventsFlags),
		createVersionCommand(c),
	)
	return root
}

func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "patze-bridge",
		Short: "Agent telemetry bridge",
		Long: `patze-bridge polls agent runtimes for run snapshots, derives a
canonical deduplicated event stream, and ships it to configured sinks.

Examples:
  patze-bridge serve --config=bridge.toml
  patze-bridge status
  patze-bridge events --limit=20 --api-url=http://remote:8088`,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	return root
}

func createServeCommand(globalFlags *GlobalFlags, c command) *cobra.Command {
	return &cobra.Command{
		Use:   "serve [bridge.toml]",
		Short: "Run the bridge daemon",
		Long: `Run the bridge daemon: poll every configured machine, map run
snapshots into telemetry events, and deliver them to the configured sinks.

Examples:
  patze-bridge serve --config=bridge.toml
  patze-bridge serve bridge.toml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath := globalFlags.ConfigPath
			if len(args) > 0 {
				configPath = args[0]
			}
			return c.Serve(ServeFlags{ConfigPath: configPath})
		},
	}
}

func createStatusCommand(c command, flags *StatusFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show per-machine working-set counts",
		Long: `Show the mapper working-set counts of a running daemon.

Examples:
  patze-bridge status
  patze-bridge status --machine=laptop
  patze-bridge status --api-url=http://remote:8088`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Status(*flags)
		},
	}
	cmd.Flags().StringVar(&flags.Machine, "machine", "", "machine id (optional)")
	cmd.Flags().StringVar(&flags.APIUrl, "api-url", "", "daemon URL (e.g. http://host:8088)")
	cmd.Flags().DurationVar(&flags.APITimeout, "api-timeout", 10*time.Second, "request timeout")
	return cmd
}

func createMachinesCommand(c command, flags *MachinesFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "machines",
		Short: "List polled machines",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Machines(*flags)
		},
	}
	cmd.Flags().StringVar(&flags.APIUrl, "api-url", "", "daemon URL (e.g. http://host:8088)")
	cmd.Flags().DurationVar(&flags.APITimeout, "api-timeout", 10*time.Second, "request timeout")
	return cmd
}

func createEventsCommand(c command, flags *EventsFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show recent telemetry events",
		Long: `Show the latest envelopes the daemon emitted, newest first.

Examples:
  patze-bridge events
  patze-bridge events --limit=20`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Events(*flags)
		},
	}
	cmd.Flags().IntVar(&flags.Limit, "limit", 50, "maximum number of events")
	cmd.Flags().StringVar(&flags.APIUrl, "api-url", "", "daemon URL (e.g. http://host:8088)")
	cmd.Flags().DurationVar(&flags.APITimeout, "api-timeout", 10*time.Second, "request timeout")
	return cmd
}

func createVersionCommand(c command) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(c.writer(), "patze-bridge "+version)
			return err
		},
	}
}
