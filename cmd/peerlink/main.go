// Command peerlink runs a fleet agent's peer-to-peer mTLS link and provides
// tooling around it.
//
// Usage:
//
//	peerlink <command> [flags]
//
// Commands:
//
//	run           Start the agent: listener plus supervised peer links
//	certs ensure  Create missing CA and agent certificates
//	certs show    Print certificate details and verify the chain
//	ping          Heartbeat a peer and report round-trip times
//	log view      View a protocol log in human-readable format
//	log export    Export a protocol log to JSON lines or CSV
//	log filter    Write matching protocol log events to a new file
//	log stats     Show statistics about a protocol log
//
// Examples:
//
//	# Run with a configuration file
//	peerlink run --config /etc/peerlink/agent.yaml
//
//	# Check a peer
//	peerlink ping --config agent.toml --count 3 --metrics 10.0.0.2:9443
//
//	# Show only heartbeats from a trace
//	peerlink log view --type heartbeat trace.plog
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/csf-agent/peerlink/cmd/peerlink/commands"
	"github.com/csf-agent/peerlink/pkg/config"
	"github.com/csf-agent/peerlink/pkg/connection"
	"github.com/csf-agent/peerlink/pkg/service"
	"github.com/spf13/cobra"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:           "peerlink",
		Short:         "Agent-to-agent mTLS transport",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Configuration file (.yaml, .yml or .toml)")

	root.AddCommand(
		runCmd(),
		certsCmd(),
		pingCmd(),
		logCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (config.Config, *slog.Logger, error) {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, cfg.NewLogger(os.Stderr), nil
}

// --- run ---

func runCmd() *cobra.Command {
	var peers []string
	var port int
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			if len(peers) > 0 {
				cfg.P2P.Peers = append(cfg.P2P.Peers, peers...)
			}
			if port > 0 {
				cfg.P2P.ListenPort = port
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			svc := service.NewAgentService(cfg,
				service.WithLogger(logger),
				service.WithPeerStateHandler(func(address string, oldState, newState connection.State) {
					logger.Info("peer link", "peer", address, "state", newState.String())
				}))
			if err := svc.Start(ctx); err != nil {
				return err
			}

			<-ctx.Done()
			logger.Info("shutting down")
			return svc.Stop()
		},
	}
	cmd.Flags().StringSliceVar(&peers, "peer", nil, "Additional peer host:port (repeatable)")
	cmd.Flags().IntVar(&port, "port", 0, "Override p2p.listen_port")
	return cmd
}

// --- certs ---

func certsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "certs",
		Short: "Manage the CA and agent certificates",
	}
	cmd.AddCommand(certsEnsureCmd(), certsShowCmd())
	return cmd
}

func certsEnsureCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "ensure",
		Short: "Create missing CA and agent certificates",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			return commands.RunCertsEnsure(cfg, force, logger, cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&force, "generate", false, "Generate even when certs.auto_generate is false")
	return cmd
}

func certsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print certificate details and verify the chain",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			return commands.RunCertsShow(cfg.CertPaths(), cmd.OutOrStdout())
		},
	}
}

// --- ping ---

func pingCmd() *cobra.Command {
	var opts commands.PingOptions
	cmd := &cobra.Command{
		Use:   "ping <host:port>",
		Short: "Heartbeat a peer and report round-trip times",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			opts.Address = args[0]

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()
			return commands.RunPing(ctx, cfg, opts, logger, cmd.OutOrStdout())
		},
	}
	cmd.Flags().IntVarP(&opts.Count, "count", "n", 1, "Number of heartbeats")
	cmd.Flags().DurationVarP(&opts.Interval, "interval", "i", time.Second, "Delay between heartbeats")
	cmd.Flags().BoolVar(&opts.Metrics, "metrics", false, "Also request the peer's metrics")
	return cmd
}

// --- log ---

func logCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Inspect protocol log (.plog) files",
	}
	cmd.AddCommand(logViewCmd(), logExportCmd(), logFilterCmd(), logStatsCmd())
	return cmd
}

func addFilterFlags(cmd *cobra.Command, opts *commands.FilterOptions) {
	cmd.Flags().StringVar(&opts.ConnID, "conn-id", "", "Filter by connection ID")
	cmd.Flags().StringVar(&opts.AgentID, "agent-id", "", "Filter by local agent ID")
	cmd.Flags().StringVar(&opts.PeerID, "peer-id", "", "Filter by peer agent ID")
	cmd.Flags().StringVar(&opts.TimeStart, "time-start", "", "Filter by start time (RFC3339)")
	cmd.Flags().StringVar(&opts.TimeEnd, "time-end", "", "Filter by end time (RFC3339)")
	cmd.Flags().StringVar(&opts.Layer, "layer", "", "Filter by layer (transport, wire, service)")
	cmd.Flags().StringVar(&opts.Direction, "direction", "", "Filter by direction (in, out)")
	cmd.Flags().StringVar(&opts.Category, "category", "", "Filter by category (message, state, error)")
	cmd.Flags().StringVar(&opts.MessageType, "type", "", "Filter by message type (handshake, heartbeat, ...)")
}

func logViewCmd() *cobra.Command {
	var opts commands.FilterOptions
	cmd := &cobra.Command{
		Use:   "view <file.plog>",
		Short: "View a protocol log in human-readable format",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := opts.Build()
			if err != nil {
				return err
			}
			return commands.RunView(args[0], filter, cmd.OutOrStdout())
		},
	}
	addFilterFlags(cmd, &opts)
	return cmd
}

func logExportCmd() *cobra.Command {
	var opts commands.FilterOptions
	var format, output string
	cmd := &cobra.Command{
		Use:   "export <file.plog>",
		Short: "Export a protocol log to JSON lines or CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := opts.Build()
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("failed to create output file: %w", err)
				}
				defer f.Close()
				w = f
			}
			return commands.RunExport(args[0], format, filter, w)
		},
	}
	cmd.Flags().StringVar(&format, "format", commands.FormatJSONL, "Output format (jsonl, csv)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default: stdout)")
	addFilterFlags(cmd, &opts)
	return cmd
}

func logFilterCmd() *cobra.Command {
	var opts commands.FilterOptions
	var output string
	cmd := &cobra.Command{
		Use:   "filter <file.plog>",
		Short: "Write matching protocol log events to a new file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := opts.Build()
			if err != nil {
				return err
			}
			n, err := commands.RunFilter(args[0], output, filter)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Filtered %d events to %s\n", n, output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (required)")
	cmd.MarkFlagRequired("output")
	addFilterFlags(cmd, &opts)
	return cmd
}

func logStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats <file.plog>",
		Short: "Show statistics about a protocol log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return commands.RunStats(args[0], cmd.OutOrStdout())
		},
	}
}
