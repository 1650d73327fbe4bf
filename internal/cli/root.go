// Package cli implements the contraship command line.
package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/pendergraft/contraship/internal/config"
	"github.com/pendergraft/contraship/internal/observability/metrics"
)

var (
	cfgFile      string
	outputFormat string
	serverURL    string
	apiKey       string
)

// ExitError carries a process exit code out of a command. The report has
// already been printed when it is returned.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// Execute runs the CLI and returns the process exit code
func Execute(version string) int {
	cmd := newRootCmd(version)
	err := cmd.Execute()
	if err == nil {
		return 0
	}

	var exit *ExitError
	if errors.As(err, &exit) {
		return exit.Code
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	return 1
}

func newRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "contraship",
		Short: "Deploy and verify smart contracts across networks",
		Long: `contraship deploys compiled contracts to named networks, waits for
confirmation, and publishes their sources to the network's block explorer.

Networks and defaults come from contraship.toml and the environment.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "project file (default: contraship.toml or .contraship.toml)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "", "output format: text, json or yaml (default: text on a terminal, json otherwise)")

	rootCmd.AddCommand(createDeployCmd())
	rootCmd.AddCommand(createSequenceCmd())
	rootCmd.AddCommand(createVerifyCmd())
	rootCmd.AddCommand(createCheckCmd())
	rootCmd.AddCommand(createArtifactsCmd())
	rootCmd.AddCommand(createNetworksCmd())
	rootCmd.AddCommand(createConfigCmd())
	rootCmd.AddCommand(createHistoryCmd())
	rootCmd.AddCommand(createServeCmd(version))

	return rootCmd
}

// addRemoteFlags adds the flags of commands that can ask a server instead
func addRemoteFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&serverURL, "server", "", "contraship server URL (default: local project, or $CONTRASHIP_SERVER)")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "API key for the server (default: $CONTRASHIP_API_KEY)")
}

// getServer returns the server URL from the flag or environment, empty for
// local mode
func getServer() string {
	if serverURL != "" {
		return serverURL
	}
	return os.Getenv("CONTRASHIP_SERVER")
}

func getAPIKey() string {
	if apiKey != "" {
		return apiKey
	}
	return os.Getenv("CONTRASHIP_API_KEY")
}

// loadConfig loads configuration and sets up logging and metrics. CLI logs
// go to stderr so stdout carries only command output.
func loadConfig(stderr io.Writer) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	logger := setupLogger(cfg.Logging, stderr)
	metrics.Init(cfg.Metrics.Enabled || cfg.Metrics.TextFile != "", "contraship")
	return cfg, logger, nil
}

func setupLogger(cfg config.LoggingConfig, w io.Writer) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Level),
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
