// Package config provides application configuration management.
package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"

	"github.com/oszuidwest/zwfm-loudmeter/internal/session"
	"github.com/oszuidwest/zwfm-loudmeter/internal/types"
	"github.com/oszuidwest/zwfm-loudmeter/internal/util"
)

// Configuration defaults are used when values are not specified.
const (
	DefaultWebPort = 8080
)

// reloadDebounce coalesces the burst of events editors produce on save.
const reloadDebounce = 100 * time.Millisecond

// validate checks struct tags on load and on update.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return fld.Name
		}
		return name
	})
	return v
}

// SystemConfig holds system-level settings that require restart.
type SystemConfig struct {
	FFmpegPath    string `json:"ffmpeg_path" validate:"omitempty,max=4096"`         // Path to FFmpeg binary (empty = use PATH)
	Port          int    `json:"port" validate:"gte=1,lte=65535"`                   // HTTP server port
	UpdateFeedURL string `json:"update_feed_url" validate:"omitempty,url,max=2048"` // Release feed polled for newer builds (empty = disabled)
}

// AudioConfig holds audio input device settings.
type AudioConfig struct {
	Input string `json:"input" validate:"omitempty,max=256"` // Audio input device identifier
}

// SessionConfig holds the timing of a monitoring session.
type SessionConfig struct {
	DurationMs     int64  `json:"duration_ms" validate:"gte=1000,lte=600000"`    // Total recording time
	TickIntervalMs int64  `json:"tick_interval_ms" validate:"gte=100,lte=60000"` // Countdown tick cadence
	PollIntervalMs int64  `json:"poll_interval_ms" validate:"gte=10,lte=5000"`   // Amplitude sampling cadence
	MaxPollErrors  int    `json:"max_poll_errors" validate:"gte=1,lte=100"`      // Consecutive transient poll errors tolerated
	ArtifactDir    string `json:"artifact_dir" validate:"omitempty,max=4096"`    // Directory for capture artifacts (empty = system temp)
}

// LogConfig holds event log settings.
type LogConfig struct {
	EventLogPath string `json:"event_log_path" validate:"omitempty,max=4096"` // JSON-lines session log (empty = disabled)
}

// Config holds all application configuration. It is safe for concurrent use.
type Config struct {
	System  SystemConfig  `json:"system"`
	Audio   AudioConfig   `json:"audio"`
	Session SessionConfig `json:"session"`
	Log     LogConfig     `json:"log"`

	mu       sync.RWMutex
	filePath string
}

// New creates a new Config with default values.
func New(filePath string) *Config {
	c := &Config{filePath: filePath}
	c.applyDefaults()
	return c
}

// Path returns the file the configuration is loaded from.
func (c *Config) Path() string {
	return c.filePath
}

// Load reads config from file, creating a default if none exists.
func (c *Config) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.filePath)
	if errors.Is(err, os.ErrNotExist) {
		return c.saveLocked()
	}
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	// Decode into a copy so a bad file leaves the current values in place.
	next := c.valuesLocked()
	if err := json.Unmarshal(data, &next); err != nil {
		return util.WrapError("parse config", err)
	}
	next.applyDefaults()
	if err := next.validate(); err != nil {
		return err
	}

	c.System, c.Audio, c.Session, c.Log = next.System, next.Audio, next.Session, next.Log
	return nil
}

// Save persists the configuration to its file.
func (c *Config) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saveLocked()
}

// values is the serialized form of Config.
type values struct {
	System  SystemConfig  `json:"system"`
	Audio   AudioConfig   `json:"audio"`
	Session SessionConfig `json:"session"`
	Log     LogConfig     `json:"log"`
}

func (c *Config) valuesLocked() values {
	return values{System: c.System, Audio: c.Audio, Session: c.Session, Log: c.Log}
}

// validate checks all configuration fields for correctness.
func (v *values) validate() error {
	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			e := verrs[0]
			return fmt.Errorf("invalid %s %v: failed %q validation", e.Field(), e.Value(), e.Tag())
		}
		return util.WrapError("validate config", err)
	}
	for field, path := range map[string]string{
		"artifact_dir":   v.Session.ArtifactDir,
		"event_log_path": v.Log.EventLogPath,
	} {
		if util.IsConfigured(path) {
			if err := util.ValidatePath(field, path); err != nil {
				return err
			}
		}
	}
	if v.Session.TickIntervalMs > v.Session.DurationMs {
		return fmt.Errorf("invalid tick_interval_ms %d: must not exceed duration_ms %d", v.Session.TickIntervalMs, v.Session.DurationMs)
	}
	return nil
}

// applyDefaults sets default values for zero-value fields.
func (v *values) applyDefaults() {
	if v.System.Port == 0 {
		v.System.Port = DefaultWebPort
	}
	if v.Session.DurationMs == 0 {
		v.Session.DurationMs = types.DefaultSessionDuration.Milliseconds()
	}
	if v.Session.TickIntervalMs == 0 {
		v.Session.TickIntervalMs = types.DefaultTickInterval.Milliseconds()
	}
	if v.Session.PollIntervalMs == 0 {
		v.Session.PollIntervalMs = types.DefaultPollInterval.Milliseconds()
	}
	if v.Session.MaxPollErrors == 0 {
		v.Session.MaxPollErrors = types.DefaultMaxPollErrors
	}
}

func (c *Config) applyDefaults() {
	v := c.valuesLocked()
	v.applyDefaults()
	c.System, c.Audio, c.Session, c.Log = v.System, v.Audio, v.Session, v.Log
}

// saveLocked persists configuration. Caller must hold c.mu.
func (c *Config) saveLocked() error {
	data, err := json.MarshalIndent(c.valuesLocked(), "", "  ")
	if err != nil {
		return util.WrapError("marshal config", err)
	}

	dir := filepath.Dir(c.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return util.WrapError("create config directory", err)
	}

	if err := os.WriteFile(c.filePath, data, 0o600); err != nil {
		return util.WrapError("write config", err)
	}

	return nil
}

// --- Updates ---

// SessionUpdate carries optional changes to the session and audio settings.
// Nil fields are left unchanged.
type SessionUpdate struct {
	AudioInput     *string
	DurationMs     *int64
	TickIntervalMs *int64
	PollIntervalMs *int64
	MaxPollErrors  *int
}

// UpdateSession applies u, validates the result and saves the configuration.
// On validation failure nothing is changed.
func (c *Config) UpdateSession(u SessionUpdate) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.valuesLocked()
	if u.AudioInput != nil {
		next.Audio.Input = *u.AudioInput
	}
	if u.DurationMs != nil {
		next.Session.DurationMs = *u.DurationMs
	}
	if u.TickIntervalMs != nil {
		next.Session.TickIntervalMs = *u.TickIntervalMs
	}
	if u.PollIntervalMs != nil {
		next.Session.PollIntervalMs = *u.PollIntervalMs
	}
	if u.MaxPollErrors != nil {
		next.Session.MaxPollErrors = *u.MaxPollErrors
	}
	if err := next.validate(); err != nil {
		return err
	}

	c.Audio, c.Session = next.Audio, next.Session
	return c.saveLocked()
}

// --- Snapshot for atomic reads ---

// Snapshot is a point-in-time copy of configuration values.
type Snapshot struct {
	// System
	FFmpegPath    string
	WebPort       int
	UpdateFeedURL string

	// Audio
	AudioInput string

	// Session
	Duration      time.Duration
	TickInterval  time.Duration
	PollInterval  time.Duration
	MaxPollErrors int
	ArtifactDir   string

	// Log
	EventLogPath string
}

// Snapshot returns a point-in-time copy of all configuration values.
func (c *Config) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Snapshot{
		FFmpegPath:    c.System.FFmpegPath,
		WebPort:       c.System.Port,
		UpdateFeedURL: c.System.UpdateFeedURL,

		AudioInput: c.Audio.Input,

		Duration:      time.Duration(c.Session.DurationMs) * time.Millisecond,
		TickInterval:  time.Duration(c.Session.TickIntervalMs) * time.Millisecond,
		PollInterval:  time.Duration(c.Session.PollIntervalMs) * time.Millisecond,
		MaxPollErrors: c.Session.MaxPollErrors,
		ArtifactDir:   c.Session.ArtifactDir,

		EventLogPath: c.Log.EventLogPath,
	}
}

// SessionConfig returns the engine configuration for the next session.
func (s *Snapshot) SessionConfig() session.Config {
	return session.Config{
		Duration:      s.Duration,
		TickInterval:  s.TickInterval,
		PollInterval:  s.PollInterval,
		MaxPollErrors: s.MaxPollErrors,
		ArtifactDir:   s.ArtifactDir,
	}
}

// HasEventLog reports whether a session event log is configured.
func (s *Snapshot) HasEventLog() bool {
	return s.EventLogPath != ""
}

// --- File watching ---

// Watch reloads the configuration whenever its file changes and calls
// onChange with the new snapshot. Invalid files are logged and ignored.
// It blocks until ctx is cancelled.
func (c *Config) Watch(ctx context.Context, onChange func(Snapshot)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return util.WrapError("create config watcher", err)
	}
	defer watcher.Close()

	// Watch the directory; editors replace files rather than writing in place.
	dir := filepath.Dir(c.filePath)
	if err := watcher.Add(dir); err != nil {
		return util.WrapError("watch config directory", err)
	}

	name := filepath.Base(c.filePath)
	var (
		mu       sync.Mutex
		debounce *time.Timer
	)
	defer func() {
		mu.Lock()
		if debounce != nil {
			debounce.Stop()
		}
		mu.Unlock()
	}()

	reload := func() {
		if ctx.Err() != nil {
			return
		}
		if err := c.Load(); err != nil {
			slog.Warn("ignoring invalid config change", "path", c.filePath, "error", err)
			return
		}
		slog.Info("configuration reloaded", "path", c.filePath)
		if onChange != nil {
			onChange(c.Snapshot())
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			mu.Lock()
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(reloadDebounce, reload)
			mu.Unlock()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("config watcher error", "error", err)
		}
	}
}
