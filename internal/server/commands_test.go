package server

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/oszuidwest/zwfm-loudmeter/internal/audio"
	"github.com/oszuidwest/zwfm-loudmeter/internal/config"
	"github.com/oszuidwest/zwfm-loudmeter/internal/eventlog"
	"github.com/oszuidwest/zwfm-loudmeter/internal/session"
	"github.com/oszuidwest/zwfm-loudmeter/internal/types"
)

// fakeEngine records calls from the command handler.
type fakeEngine struct {
	startErr error
	abortErr error
	starts   int
	aborts   int
	state    types.SessionState
	cfg      session.Config
}

func (f *fakeEngine) Start(context.Context) error {
	f.starts++
	if f.startErr != nil {
		return f.startErr
	}
	f.state = types.StateRecording
	return nil
}

func (f *fakeEngine) Abort() error {
	f.aborts++
	if f.abortErr != nil {
		return f.abortErr
	}
	f.state = types.StateIdle
	return nil
}

func (f *fakeEngine) Status() types.SessionStatus {
	return types.SessionStatus{State: f.state}
}

func (f *fakeEngine) SetConfig(cfg session.Config) {
	f.cfg = cfg
}

func newTestHandler(t *testing.T) (*CommandHandler, *fakeEngine, *config.Config) {
	t.Helper()
	cfg := config.New(filepath.Join(t.TempDir(), "config.json"))
	if err := cfg.Load(); err != nil {
		t.Fatalf("load config: %v", err)
	}
	engine := &fakeEngine{state: types.StateIdle}
	return NewCommandHandler(cfg, engine, nil), engine, cfg
}

// run sends cmd through the handler and returns the single response.
func run(t *testing.T, h *CommandHandler, cmdType, data string) types.WSCommandResult {
	t.Helper()
	send := make(chan any, 4)
	triggered := false

	cmd := WSCommand{Type: cmdType}
	if data != "" {
		cmd.Data = json.RawMessage(data)
	}
	h.Handle(cmd, send, func() { triggered = true })

	if !triggered {
		t.Error("expected status update to be triggered")
	}
	select {
	case msg := <-send:
		result, ok := msg.(types.WSCommandResult)
		if !ok {
			t.Fatalf("unexpected response type %T", msg)
		}
		if result.Type != cmdType+"_result" {
			t.Errorf("expected type %q, got %q", cmdType+"_result", result.Type)
		}
		return result
	default:
		t.Fatalf("no response for %s", cmdType)
		return types.WSCommandResult{}
	}
}

func TestSessionStartAndAbort(t *testing.T) {
	h, engine, _ := newTestHandler(t)

	result := run(t, h, "session/start", "")
	if !result.Success {
		t.Fatalf("session/start failed: %+v", result.Error)
	}
	if status, ok := result.Data.(types.SessionStatus); !ok || status.State != types.StateRecording {
		t.Errorf("expected recording status, got %+v", result.Data)
	}

	result = run(t, h, "session/abort", "")
	if !result.Success {
		t.Fatalf("session/abort failed: %+v", result.Error)
	}
	if engine.starts != 1 || engine.aborts != 1 {
		t.Errorf("expected one start and one abort, got %d and %d", engine.starts, engine.aborts)
	}
}

func TestSessionStartError(t *testing.T) {
	h, engine, _ := newTestHandler(t)
	engine.startErr = session.ErrInvalidStateTransition

	result := run(t, h, "session/start", "")
	if result.Success {
		t.Fatal("expected session/start to fail")
	}
	if result.Error == nil || len(result.Error.Errors) != 1 {
		t.Fatalf("expected one error, got %+v", result.Error)
	}
	if msg := result.Error.Errors[0].Message; msg != session.ErrInvalidStateTransition.Error() {
		t.Errorf("unexpected error message %q", msg)
	}
}

func TestSessionGet(t *testing.T) {
	h, _, _ := newTestHandler(t)
	result := run(t, h, "session/get", "")
	if !result.Success {
		t.Fatal("session/get failed")
	}
	if status := result.Data.(types.SessionStatus); status.State != types.StateIdle {
		t.Errorf("expected idle, got %q", status.State)
	}
}

func TestSettingsUpdate(t *testing.T) {
	h, engine, cfg := newTestHandler(t)

	result := run(t, h, "settings/update", `{"duration_ms":5000,"audio_input":"hw:1"}`)
	if !result.Success {
		t.Fatalf("settings/update failed: %+v", result.Error)
	}

	snap := cfg.Snapshot()
	if snap.Duration != 5*time.Second || snap.AudioInput != "hw:1" {
		t.Errorf("config not updated: %+v", snap)
	}
	if engine.cfg.Duration != 5*time.Second {
		t.Errorf("engine config not updated: %+v", engine.cfg)
	}
	settings, ok := result.Data.(types.WSSettings)
	if !ok || settings.DurationMs != 5000 {
		t.Errorf("unexpected settings response %+v", result.Data)
	}
}

func TestSettingsUpdateValidation(t *testing.T) {
	tests := []struct {
		name  string
		data  string
		field string
	}{
		{"duration too short", `{"duration_ms":10}`, "duration_ms"},
		{"poll interval too long", `{"poll_interval_ms":10000}`, "poll_interval_ms"},
		{"zero poll errors", `{"max_poll_errors":0}`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, engine, cfg := newTestHandler(t)

			result := run(t, h, "settings/update", tt.data)
			if tt.field == "" {
				if result.Success {
					t.Fatal("expected failure")
				}
				return
			}
			if result.Success {
				t.Fatal("expected validation failure")
			}
			if result.Error == nil || len(result.Error.Errors) == 0 || result.Error.Errors[0].Field != tt.field {
				t.Errorf("expected error on %q, got %+v", tt.field, result.Error)
			}
			if engine.cfg != (session.Config{}) {
				t.Error("engine config changed on invalid update")
			}
			if cfg.Snapshot().Duration != types.DefaultSessionDuration {
				t.Error("config changed on invalid update")
			}
		})
	}
}

func TestSettingsUpdateInvalidJSON(t *testing.T) {
	h, _, _ := newTestHandler(t)
	if result := run(t, h, "settings/update", `{"duration_ms":`); result.Success {
		t.Fatal("expected invalid JSON to fail")
	}
}

func TestLogList(t *testing.T) {
	h, _, cfg := newTestHandler(t)

	result := run(t, h, "log/list", "")
	if !result.Success {
		t.Fatalf("log/list failed: %+v", result.Error)
	}
	if events, ok := result.Data.([]eventlog.Event); !ok || len(events) != 0 {
		t.Errorf("expected no events without a log path, got %+v", result.Data)
	}

	logPath := filepath.Join(t.TempDir(), "sessions.jsonl")
	logger, err := eventlog.NewLogger(logPath)
	if err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{"a", "b", "c"} {
		if err := logger.LogSession(eventlog.SessionCompleted, id, "session completed", nil); err != nil {
			t.Fatal(err)
		}
	}
	if err := logger.Close(); err != nil {
		t.Fatal(err)
	}

	cfg.Log.EventLogPath = logPath
	result = run(t, h, "log/list", `{"limit":2}`)
	if !result.Success {
		t.Fatalf("log/list failed: %+v", result.Error)
	}
	events := result.Data.([]eventlog.Event)
	if len(events) != 2 || events[0].SessionID != "c" {
		t.Errorf("expected newest two events, got %+v", events)
	}

	if result := run(t, h, "log/list", `{"limit":1000}`); result.Success {
		t.Error("expected limit above 500 to be rejected")
	}
}

func TestUnknownCommandTriggersStatus(t *testing.T) {
	h, _, _ := newTestHandler(t)
	send := make(chan any, 1)
	triggered := false
	h.Handle(WSCommand{Type: "bogus/thing"}, send, func() { triggered = true })
	if !triggered {
		t.Error("expected status update")
	}
	if len(send) != 0 {
		t.Error("expected no response for unknown command")
	}
}

func TestStatusGetRefreshesDevices(t *testing.T) {
	cfg := config.New(filepath.Join(t.TempDir(), "config.json"))
	listings := 0
	devices := audio.NewDeviceCache(time.Hour, func() []types.AudioDevice {
		listings++
		return nil
	})
	h := NewCommandHandler(cfg, &fakeEngine{state: types.StateIdle}, devices)

	devices.Devices()
	devices.Devices()
	if listings != 1 {
		t.Fatalf("expected cached listing, got %d listings", listings)
	}

	send := make(chan any, 1)
	triggered := false
	h.Handle(WSCommand{Type: "status/get"}, send, func() {
		triggered = true
		devices.Devices()
	})
	if !triggered {
		t.Fatal("expected status update")
	}
	if listings != 2 {
		t.Errorf("expected status/get to list devices again, got %d listings", listings)
	}
}

func TestHandleActionRecoversPanic(t *testing.T) {
	send := make(chan any, 1)
	HandleAction(WSCommand{Type: "session/start"}, send, func() (any, error) {
		panic("boom")
	})
	result := (<-send).(types.WSCommandResult)
	if result.Success || result.Error.Errors[0].Message != "internal error" {
		t.Errorf("unexpected result %+v", result)
	}
}

func TestTrySendFullChannel(t *testing.T) {
	send := make(chan any, 1)
	if !trySend(send, "x", 1) {
		t.Fatal("expected first send to succeed")
	}
	if trySend(send, "x", 2) {
		t.Error("expected send on full channel to be dropped")
	}
}

func TestCheckOrigin(t *testing.T) {
	tests := []struct {
		origin string
		host   string
		want   bool
	}{
		{"", "example.com", true},
		{"http://localhost:3000", "example.com", true},
		{"http://example.com", "example.com:8080", true},
		{"http://192.168.1.10", "example.com", true},
		{"http://evil.test", "example.com", false},
		{"://bad", "example.com", false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest("GET", "/ws", nil)
		r.Host = tt.host
		if tt.origin != "" {
			r.Header.Set("Origin", tt.origin)
		}
		if got := checkOrigin(r); got != tt.want {
			t.Errorf("checkOrigin(%q, host %q) = %v, want %v", tt.origin, tt.host, got, tt.want)
		}
	}
}
