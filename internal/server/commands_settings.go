package server

import (
	"log/slog"
	"runtime"

	"github.com/oszuidwest/zwfm-loudmeter/internal/config"
	"github.com/oszuidwest/zwfm-loudmeter/internal/eventlog"
	"github.com/oszuidwest/zwfm-loudmeter/internal/types"
)

// --- Settings handlers ---

// handleSettingsUpdate processes a settings/update command. Changes apply
// to the next session.
func (h *CommandHandler) handleSettingsUpdate(cmd WSCommand, send chan<- any) {
	HandleCommand(cmd, send, func(req *SettingsUpdateRequest) (any, error) {
		if err := h.cfg.UpdateSession(config.SessionUpdate{
			AudioInput:     req.AudioInput,
			DurationMs:     req.DurationMs,
			TickIntervalMs: req.TickIntervalMs,
			PollIntervalMs: req.PollIntervalMs,
			MaxPollErrors:  req.MaxPollErrors,
		}); err != nil {
			return nil, err
		}

		snap := h.cfg.Snapshot()
		h.engine.SetConfig(snap.SessionConfig())
		slog.Info("settings/update: session settings changed",
			"duration", snap.Duration, "poll_interval", snap.PollInterval, "input", snap.AudioInput)
		return Settings(&snap), nil
	})
}

// Settings returns the settings sub-object of status responses.
func Settings(snap *config.Snapshot) types.WSSettings {
	return types.WSSettings{
		AudioInput:     snap.AudioInput,
		DurationMs:     snap.Duration.Milliseconds(),
		TickIntervalMs: snap.TickInterval.Milliseconds(),
		PollIntervalMs: snap.PollInterval.Milliseconds(),
		MaxPollErrors:  snap.MaxPollErrors,
		Platform:       runtime.GOOS,
	}
}

// --- Session log handlers ---

// handleLogList processes a log/list command, returning recent session events.
func (h *CommandHandler) handleLogList(cmd WSCommand, send chan<- any) {
	HandleCommand(cmd, send, func(req *LogListRequest) (any, error) {
		snap := h.cfg.Snapshot()
		if !snap.HasEventLog() {
			return []eventlog.Event{}, nil
		}

		limit := req.Limit
		if limit == 0 {
			limit = DefaultLogEntries
		}
		return eventlog.ReadLast(snap.EventLogPath, limit)
	})
}
