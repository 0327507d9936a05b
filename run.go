package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/oszuidwest/zwfm-loudmeter/internal/audio"
	"github.com/oszuidwest/zwfm-loudmeter/internal/session"
	"github.com/oszuidwest/zwfm-loudmeter/internal/tui"
	"github.com/oszuidwest/zwfm-loudmeter/internal/types"
	"github.com/oszuidwest/zwfm-loudmeter/internal/util"
)

type runFlags struct {
	plain    bool
	device   string
	duration time.Duration
	logFile  string
}

func newRunCmd(flags *globalFlags) *cobra.Command {
	rf := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a session in the terminal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSession(cmd, flags, rf)
		},
	}
	cmd.Flags().BoolVar(&rf.plain, "plain", false, "Print readings as plain lines instead of the interactive view")
	cmd.Flags().StringVar(&rf.device, "device", "", "Audio input device (overrides config)")
	cmd.Flags().DurationVar(&rf.duration, "duration", 0, "Session duration (overrides config)")
	cmd.Flags().StringVar(&rf.logFile, "log-file", "", "Write logs to this file while the interactive view runs")
	return cmd
}

// runSession builds an engine from the config and runs sessions in the terminal.
func runSession(cmd *cobra.Command, flags *globalFlags, rf *runFlags) error {
	cfg, err := loadConfig(flags.configPath)
	if err != nil {
		return err
	}
	snap := cfg.Snapshot()

	device := snap.AudioInput
	if rf.device != "" {
		device = rf.device
	}
	sessionCfg := snap.SessionConfig()
	if rf.duration > 0 {
		sessionCfg.Duration = rf.duration
	}

	ffmpegPath := util.ResolveFFmpegPath(snap.FFmpegPath)
	if !captureAvailable(ffmpegPath) {
		return errors.New("FFmpeg not found; install it or set system.ffmpeg_path in the config")
	}
	source := audio.NewCaptureSource(device, ffmpegPath)

	if rf.plain {
		return runPlain(cmd, source, sessionCfg)
	}
	return runInteractive(source, sessionCfg, rf.logFile)
}

// programSender forwards to a program created after the engine.
type programSender struct {
	program *tea.Program
}

func (s *programSender) Send(msg tea.Msg) {
	s.program.Send(msg)
}

// runInteractive runs the Bubble Tea view until the user quits.
func runInteractive(source audio.AmplitudeSource, cfg session.Config, logFile string) error {
	// The view owns the terminal; keep log output off it.
	if logFile != "" {
		f, err := tea.LogToFile(logFile, "loudmeter")
		if err != nil {
			return util.WrapError("open log file", err)
		}
		defer f.Close()
		slog.SetDefault(slog.New(slog.NewTextHandler(f, nil)))
	} else {
		slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
	}

	sender := &programSender{}
	engine := session.New(source, cfg, tui.NewObserver(sender))
	defer engine.Close()

	sender.program = tea.NewProgram(tui.New(engine, cfg.Duration, true))
	final, err := sender.program.Run()
	if err != nil {
		return util.WrapError("run terminal view", err)
	}

	if m, ok := final.(tui.Model); ok {
		if f := m.Failure(); f != nil && f.Reason == types.ReasonPermissionDenied {
			return errors.New(tui.FailureMessage(*f))
		}
	}
	return nil
}

// lineObserver prints session events as plain lines.
type lineObserver struct {
	w io.Writer
}

func (o lineObserver) OnReading(loudness int, recording bool) {
	if recording {
		fmt.Fprintf(o.w, "%3d%%\n", loudness)
	}
}

func (o lineObserver) OnTick(remaining time.Duration) {
	fmt.Fprintf(o.w, "%ds left\n", int((remaining+time.Second-1)/time.Second))
}

func (o lineObserver) OnComplete(result types.SessionResult) {
	fmt.Fprintf(o.w, "Peak loudness: %d%%\n", result.PeakLoudness)
	fmt.Fprintf(o.w, "Score: %d\n", result.Score)
}

func (lineObserver) OnFailed(types.SessionFailure) {}

// runPlain runs a single session, printing readings and the score. Output
// goes through the engine dispatcher, so it is flushed by engine.Close.
func runPlain(cmd *cobra.Command, source audio.AmplitudeSource, cfg session.Config) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), util.ShutdownSignals()...)
	defer stop()

	out := cmd.OutOrStdout()
	engine := session.New(source, cfg, lineObserver{w: out})
	defer engine.Close()

	if err := engine.Start(ctx); err != nil {
		return describeFailure(err)
	}

	_, err := engine.Wait(ctx)
	if errors.Is(err, context.Canceled) {
		if abortErr := engine.Abort(); abortErr != nil {
			slog.Debug("abort after interrupt", "error", abortErr)
		}
		fmt.Fprintln(out, "Aborted.")
		return nil
	}
	if err != nil {
		return describeFailure(err)
	}
	return nil
}

// describeFailure turns a session error into the message shown to the user.
func describeFailure(err error) error {
	failure := types.SessionFailure{Reason: session.FailureReason(err), Message: err.Error()}
	return errors.New(tui.FailureMessage(failure))
}
