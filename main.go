// Package main provides a loudness meter that records the microphone for a
// fixed time, shows live loudness, and scores the loudest moment.
//
// Usage:
//
//	loudmeter serve [--config path/to/config.json]
//	loudmeter run [--plain]
//
// If --config is not specified, the meter looks for config.json in the same
// directory as the binary.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

// globalFlags holds the persistent flags shared by all commands.
type globalFlags struct {
	configPath string
	logLevel   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:          "loudmeter",
		Short:        "Measure how loud you can get in a timed microphone session",
		Version:      fmt.Sprintf("%s (commit %s, built %s)", Version, Commit, BuildTime),
		SilenceUsage: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return setupLogging(flags.logLevel)
		},
	}

	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "Path to config file (default: config.json next to binary)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	root.AddCommand(
		newServeCmd(flags),
		newRunCmd(flags),
		newDevicesCmd(),
		newVersionCmd(),
	)

	return root
}

// setupLogging installs the default slog text handler at the given level.
func setupLogging(level string) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
	return nil
}

// resolveConfigPath returns path, or config.json next to the binary.
func resolveConfigPath(path string) (string, error) {
	if path != "" {
		return path, nil
	}
	execPath, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("failed to get executable path: %w", err)
	}
	return filepath.Join(filepath.Dir(execPath), "config.json"), nil
}
