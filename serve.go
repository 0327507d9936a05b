package main

import (
	"context"
	"log/slog"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/oszuidwest/zwfm-loudmeter/internal/audio"
	"github.com/oszuidwest/zwfm-loudmeter/internal/config"
	"github.com/oszuidwest/zwfm-loudmeter/internal/eventlog"
	"github.com/oszuidwest/zwfm-loudmeter/internal/server"
	"github.com/oszuidwest/zwfm-loudmeter/internal/session"
	"github.com/oszuidwest/zwfm-loudmeter/internal/update"
	"github.com/oszuidwest/zwfm-loudmeter/internal/util"
)

// shutdownTimeout bounds the graceful HTTP shutdown.
const shutdownTimeout = 30 * time.Second

func newServeCmd(flags *globalFlags) *cobra.Command {
	var defaultEventLog bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the web interface and the session API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), flags, defaultEventLog)
		},
	}
	cmd.Flags().BoolVar(&defaultEventLog, "event-log", false, "Record sessions to the default event log when none is configured")
	return cmd
}

// runServe runs the web server until a shutdown signal arrives.
func runServe(ctx context.Context, flags *globalFlags, defaultEventLog bool) error {
	cfg, err := loadConfig(flags.configPath)
	if err != nil {
		return err
	}
	snap := cfg.Snapshot()

	ffmpegPath := util.ResolveFFmpegPath(snap.FFmpegPath)
	available := captureAvailable(ffmpegPath)
	switch {
	case !available:
		slog.Warn("FFmpeg not found - sessions cannot be started", "configured_path", snap.FFmpegPath)
	case audio.RequiresFFmpeg():
		slog.Info("FFmpeg found", "path", ffmpegPath)
	}

	if snap.ArtifactDir != "" {
		if err := util.CheckPathWritable(snap.ArtifactDir); err != nil {
			return util.WrapError("check artifact directory", err)
		}
	}

	logPath := snap.EventLogPath
	if logPath == "" && defaultEventLog {
		logPath = eventlog.DefaultLogPath()
	}
	var events *eventlog.Logger
	if logPath != "" {
		events, err = eventlog.NewLogger(logPath)
		if err != nil {
			return util.WrapError("open event log", err)
		}
		slog.Info("recording session events", "path", events.Path())
		defer func() {
			if err := events.Close(); err != nil {
				slog.Error("failed to close event log", "error", err)
			}
		}()
	}

	hub := server.NewHub()
	source := audio.NewCaptureSource(snap.AudioInput, ffmpegPath)
	engine := session.New(source, snap.SessionConfig(), hub, session.WithEventLog(events))
	defer engine.Close()

	ctx, stop := signal.NotifyContext(ctx, util.ShutdownSignals()...)
	defer stop()

	var updates *update.Checker
	if snap.UpdateFeedURL != "" {
		updates = update.New(snap.UpdateFeedURL, Version)
		go updates.Run(ctx)
	}

	srv := NewServer(cfg, engine, hub, updates, available)
	httpServer := srv.Start()

	go func() {
		err := cfg.Watch(ctx, func(s config.Snapshot) {
			source.SetDevice(s.AudioInput)
			engine.SetConfig(s.SessionConfig())
			slog.Info("configuration reloaded", "duration", s.Duration, "audio_input", s.AudioInput)
		})
		if err != nil {
			slog.Error("config watcher stopped", "error", err)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}

// captureAvailable reports whether the platform capture tool can run. Only
// platforms that capture through FFmpeg need ffmpegPath.
func captureAvailable(ffmpegPath string) bool {
	return !audio.RequiresFFmpeg() || ffmpegPath != ""
}

// loadConfig resolves the config path and loads it.
func loadConfig(path string) (*config.Config, error) {
	path, err := resolveConfigPath(path)
	if err != nil {
		return nil, err
	}
	slog.Info("using config file", "path", path)

	cfg := config.New(path)
	if err := cfg.Load(); err != nil {
		return nil, util.WrapError("load config", err)
	}
	return cfg, nil
}

func newDevicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List audio input devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			devices := audio.ListDevices()
			if len(devices) == 0 {
				cmd.Println("No audio input devices found.")
				return nil
			}
			for _, d := range devices {
				cmd.Printf("%-24s %s\n", d.ID, d.Name)
			}
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("loudmeter %s\n", Version)
			cmd.Printf("commit:  %s\n", Commit)
			cmd.Printf("built:   %s\n", BuildTime)
		},
	}
}
