package server

// Request types for WebSocket commands with validation tags.
// Pointer fields are optional; nil leaves the setting unchanged.

// SettingsUpdateRequest is the request body for settings/update.
type SettingsUpdateRequest struct {
	AudioInput     *string `json:"audio_input" validate:"omitempty,max=256"`
	DurationMs     *int64  `json:"duration_ms" validate:"omitempty,gte=1000,lte=600000"`
	TickIntervalMs *int64  `json:"tick_interval_ms" validate:"omitempty,gte=100,lte=60000"`
	PollIntervalMs *int64  `json:"poll_interval_ms" validate:"omitempty,gte=10,lte=5000"`
	MaxPollErrors  *int    `json:"max_poll_errors" validate:"omitempty,gte=1,lte=100"`
}

// LogListRequest is the request body for log/list.
type LogListRequest struct {
	Limit int `json:"limit" validate:"omitempty,gte=1,lte=500"`
}
