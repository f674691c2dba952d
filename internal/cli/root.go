// Package cli provides the leapbase command-line interface.
package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapbase/internal/cli/commands"
	"github.com/leapstack-labs/leapbase/internal/config"

	_ "github.com/leapstack-labs/leapbase/pkg/backends/duckdb"
	_ "github.com/leapstack-labs/leapbase/pkg/backends/memtab"
	_ "github.com/leapstack-labs/leapbase/pkg/backends/postgres"
	_ "github.com/leapstack-labs/leapbase/pkg/backends/sqlite"
)

var cfgFile string

// Version information (set at build time).
var Version = "0.1.0"

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "leapbase",
		Short: "leapbase - multi-backend data access and workflows",
		Long: `leapbase reads declarative schema definitions and executes queries and
multi-step workflows against SQLite, PostgreSQL, DuckDB and in-memory
tabular sources through one uniform interface.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}

			cfg, err := config.Load(cfgFile, cmd.Root().PersistentFlags())
			if err != nil {
				return err
			}

			level := slog.LevelInfo
			if cfg.Verbose {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

			rt := &commands.Runtime{Config: cfg, Logger: logger}
			cmd.SetContext(commands.WithRuntime(cmd.Context(), rt))
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./leapbase.yaml)")
	rootCmd.PersistentFlags().String("schema-dir", "", "Path to schema definitions directory")
	rootCmd.PersistentFlags().String("journal-path", "", "Path to the workflow run journal")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Verbose output")

	rootCmd.AddCommand(commands.NewVersionCommand(Version))
	rootCmd.AddCommand(commands.NewRunCommand())
	rootCmd.AddCommand(commands.NewRunsCommand())
	rootCmd.AddCommand(commands.NewQueryCommand())
	rootCmd.AddCommand(commands.NewTablesCommand())
	rootCmd.AddCommand(commands.NewValidateCommand())

	return rootCmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("command failed", "error", err)
		os.Exit(1)
	}
}
