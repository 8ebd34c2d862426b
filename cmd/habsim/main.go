package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/GoSim-25-26J-441/habituation-core/pkg/logger"
)

var version = "0.1.0-dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "habsim",
		Short: "Habituation and recovery experiments on ODE models",
		Long: `habsim drives periodic-stimulus experiments on ODE models of
habituation: it integrates pulse trains until the response settles, detects
the habituation point, searches for the recovery time, sweeps hallmark grids,
scores rate robustness and searches rate space.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			envFile, _ := cmd.Flags().GetString("env-file")
			if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("failed to load %s: %w", envFile, err)
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error); defaults to the protocol file's log_level")
	rootCmd.PersistentFlags().String("log-format", "text", "Log format (text or json)")
	rootCmd.PersistentFlags().String("db", "", "SQLite archive for run results")
	rootCmd.PersistentFlags().String("env-file", ".env", "Environment file loaded before running")

	rootCmd.AddCommand(
		newVersionCmd(),
		newModelsCmd(),
		newRunCmd(),
		newGridCmd(),
		newSensitivityCmd(),
		newOptimizeCmd(),
		newServeCmd(),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), map[string]string{"version": version})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "habsim version %s\n", version)
			return nil
		},
	}
}

// setupLogger installs the default logger. The flag wins over fallback.
func setupLogger(cmd *cobra.Command, fallback string) (*slog.Logger, error) {
	level, _ := cmd.Flags().GetString("log-level")
	if level == "" {
		level = fallback
	}
	if level == "" {
		level = "info"
	}
	format, _ := cmd.Flags().GetString("log-format")
	l, err := logger.NewWithFormat(format, level, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	logger.SetDefault(l)
	return l, nil
}

func jsonOutput(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
