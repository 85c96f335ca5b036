// Command devicectl talks to a time-clock terminal directly: probe it, dump
// its punches and users, enroll a user, or run a sync against it.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/xelth-com/eckclockgo/internal/buildinfo"
	"github.com/xelth-com/eckclockgo/internal/config"
	"github.com/xelth-com/eckclockgo/internal/terminal"
)

type globalFlags struct {
	addr       string
	timeout    time.Duration
	outputJSON bool
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	g := &globalFlags{}
	syncCfg := config.LoadSyncConfig()

	cmd := &cobra.Command{
		Use:   "devicectl",
		Short: "Inspect and sync time-clock terminals",
		Long: `devicectl speaks the terminal protocol directly.

Examples:
  devicectl probe --addr 10.0.0.20:4370
  devicectl logs --addr 10.0.0.20 --from 2025-01-06
  devicectl enroll --addr 10.0.0.20 --id 42 --name "Ada Lovelace" --card 0042
  devicectl sync --addr 127.0.0.1:4370 --map 1=6f1c2a8e-0000-4000-8000-000000000001
`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&g.addr, "addr", "127.0.0.1", "terminal host[:port]")
	cmd.PersistentFlags().DurationVar(&g.timeout, "timeout", syncCfg.CommandTimeout, "per-command timeout")
	cmd.PersistentFlags().BoolVar(&g.outputJSON, "json", false, "output JSON")

	cmd.AddCommand(
		probeCmd(g, syncCfg),
		logsCmd(g, syncCfg),
		usersCmd(g, syncCfg),
		enrollCmd(g, syncCfg),
		syncCmd(g, syncCfg),
		versionCmd(),
	)
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("devicectl %s (built %s, committed %s)\n", buildinfo.Version(), buildinfo.BuildTime, buildinfo.CommitTime)
		},
	}
}

// signalContext is cancelled on Ctrl-C
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// openSession connects to the terminal named by --addr
func openSession(ctx context.Context, g *globalFlags, cfg *config.SyncConfig) (*terminal.Session, error) {
	addr, err := withDefaultPort(g.addr, cfg.DefaultPort)
	if err != nil {
		return nil, err
	}
	sess := terminal.NewSession(addr, terminal.Options{
		DialTimeout:    cfg.DialTimeout,
		CommandTimeout: g.timeout,
		MaxChunks:      cfg.MaxChunks,
	})
	if err := sess.Connect(ctx); err != nil {
		return nil, err
	}
	return sess, nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
