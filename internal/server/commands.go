package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/oszuidwest/zwfm-loudmeter/internal/audio"
	"github.com/oszuidwest/zwfm-loudmeter/internal/config"
	"github.com/oszuidwest/zwfm-loudmeter/internal/session"
	"github.com/oszuidwest/zwfm-loudmeter/internal/types"
)

// Limits for command handling.
const (
	DefaultLogEntries = 50               // Session log entries returned when no limit is given
	startTimeout      = 10 * time.Second // Upper bound for opening the capture device
)

// WSCommand is a command received from a WebSocket client.
type WSCommand struct {
	Type string          `json:"type"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// SessionController is the part of the session engine driven by clients.
type SessionController interface {
	Start(ctx context.Context) error
	Abort() error
	Status() types.SessionStatus
	SetConfig(cfg session.Config)
}

// CommandHandler processes WebSocket commands.
type CommandHandler struct {
	cfg     *config.Config
	engine  SessionController
	devices *audio.DeviceCache
}

// NewCommandHandler creates a new command handler. status/get refreshes
// devices, which may be nil.
func NewCommandHandler(cfg *config.Config, engine SessionController, devices *audio.DeviceCache) *CommandHandler {
	return &CommandHandler{
		cfg:     cfg,
		engine:  engine,
		devices: devices,
	}
}

// Handle processes a WebSocket command and performs the requested action.
// Commands use slash-style format: namespace/action (e.g., "session/start", "settings/update")
func (h *CommandHandler) Handle(cmd WSCommand, send chan<- any, triggerStatusUpdate func()) {
	namespace, action, _ := strings.Cut(cmd.Type, "/")

	switch namespace {
	case "session":
		h.handleSession(action, cmd, send)
	case "settings":
		h.handleSettings(action, cmd, send)
	case "log":
		h.handleLog(action, cmd, send)
	case "status":
		h.handleStatus(action)
	default:
		slog.Warn("unknown WebSocket command", "type", cmd.Type)
	}

	triggerStatusUpdate()
}

// --- Namespace handlers ---

// handleSession routes session/* commands
func (h *CommandHandler) handleSession(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "start":
		HandleAction(cmd, send, h.startSession)
	case "abort":
		HandleAction(cmd, send, h.abortSession)
	case "get":
		SendSuccess(send, cmd.Type, h.engine.Status())
	default:
		slog.Warn("unknown session action", "action", action)
	}
}

// handleSettings routes settings/* commands
func (h *CommandHandler) handleSettings(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "update":
		h.handleSettingsUpdate(cmd, send)
	case "get":
		snap := h.cfg.Snapshot()
		SendSuccess(send, cmd.Type, Settings(&snap))
	default:
		slog.Warn("unknown settings action", "action", action)
	}
}

// handleLog routes log/* commands
func (h *CommandHandler) handleLog(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "list":
		h.handleLogList(cmd, send)
	default:
		slog.Warn("unknown log action", "action", action)
	}
}

// handleStatus routes status/* commands
func (h *CommandHandler) handleStatus(action string) {
	switch action {
	case "get":
		// The triggered status update lists devices again.
		if h.devices != nil {
			h.devices.Invalidate()
		}
	default:
		slog.Warn("unknown status action", "action", action)
	}
}

// --- Session handlers ---

// startSession begins a monitoring session with the current settings.
func (h *CommandHandler) startSession() (any, error) {
	ctx, cancel := context.WithTimeout(context.Background(), startTimeout)
	defer cancel()

	if err := h.engine.Start(ctx); err != nil {
		return nil, err
	}
	return h.engine.Status(), nil
}

// abortSession cancels the running session.
func (h *CommandHandler) abortSession() (any, error) {
	if err := h.engine.Abort(); err != nil {
		return nil, err
	}
	return h.engine.Status(), nil
}
