// Command mc-coordinator runs the Minecraft server coordinator: a
// preflight-checked, lock-protected, sync-daemon-aware launcher for a
// game server replicated across machines by an external sync daemon.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mshontz/mc-coordinator/internal/clock"
	"github.com/mshontz/mc-coordinator/internal/config"
	"github.com/mshontz/mc-coordinator/internal/logging"
	"github.com/mshontz/mc-coordinator/internal/orchestrator"
)

// Version information, set via ldflags at build time.
var (
	version   = "dev"
	gitCommit = "none"
)

var debug bool

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "mc-coordinator",
		Short: "Safe multi-host Minecraft server coordinator",
		Long: `mc-coordinator supervises a Minecraft server process on a host whose
world data is replicated by an external sync daemon, using a file-based
distributed lock to make sure only one host ever runs the server at once.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInteractive(cmd.Context())
		},
	}

	root.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	root.AddCommand(newStatusCmd())
	root.AddCommand(newBackupCmd())
	root.AddCommand(newRestoreCmd())
	root.AddCommand(newVersionCmd())

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "mc-coordinator %s (%s)\n", version, gitCommit)
			return nil
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show lock, sync, and backup status without starting the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			orch, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			orch.StatusReport(cmd.Context())
			return nil
		},
	}
}

func newBackupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Create a backup without starting the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			orch, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Println("[mc-coordinator] Creating backup...")
			info, err := orch.Snapshots.Create()
			if err != nil {
				return fmt.Errorf("backup failed: %w", err)
			}
			fmt.Printf("[mc-coordinator] Backup created: %s\n", info.Name())
			return nil
		},
	}
}

func newRestoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore",
		Short: "Restore the world from a previous backup",
		RunE: func(cmd *cobra.Command, args []string) error {
			orch, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}

			backups, err := orch.Snapshots.List()
			if err != nil {
				return fmt.Errorf("listing backups: %w", err)
			}
			if len(backups) == 0 {
				return fmt.Errorf("no backups available")
			}

			for i, b := range backups {
				fmt.Printf("  %d. %s\n", i+1, b.String())
			}
			fmt.Print("Enter backup number to restore (0 to cancel): ")

			reader := bufio.NewReader(os.Stdin)
			line, _ := reader.ReadString('\n')
			choice, err := strconv.Atoi(strings.TrimSpace(line))
			if err != nil {
				return fmt.Errorf("invalid input")
			}
			if choice == 0 {
				fmt.Println("Cancelled")
				return nil
			}
			if choice < 1 || choice > len(backups) {
				return fmt.Errorf("invalid selection")
			}

			if err := orch.Snapshots.Restore(backups[choice-1]); err != nil {
				return fmt.Errorf("restore failed: %w", err)
			}
			fmt.Println("[mc-coordinator] Restore complete")
			return nil
		},
	}
}

func runInteractive(ctx context.Context) error {
	orch, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	orch.Log.Info().Str("hostname", clock.HostID()).Msg("mc-coordinator starting")
	code := orch.RunInteractive(ctx)
	if code != 0 {
		os.Exit(code)
	}
	return nil
}

// bootstrap loads configuration, sets up the logger, and constructs a
// ready-to-use Orchestrator, shared by every subcommand.
func bootstrap(ctx context.Context) (*orchestrator.Orchestrator, error) {
	binDir := filepath.Dir(os.Args[0])
	hostname := clock.HostID()

	var opts []config.Option
	if path, ok := config.FindConfigFile(binDir); ok {
		opts = append(opts, config.WithConfigFile(path))
	}
	if path, ok := config.FindSecretsFile(binDir); ok {
		opts = append(opts, config.WithSecretsFile(path))
	}

	loader, err := config.NewLoader(hostname, opts...)
	if err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}

	level := cfg.Logging.Level
	if debug {
		level = "DEBUG"
	}

	rotating, err := logging.NewRotatingWriter(cfg.LogFile(), logging.WithCompression(true))
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	logger := logging.New(rotating, level, false)

	return orchestrator.New(cfg, logger), nil
}
