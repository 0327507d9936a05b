package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/oszuidwest/zwfm-loudmeter/internal/audio"
	"github.com/oszuidwest/zwfm-loudmeter/internal/config"
	"github.com/oszuidwest/zwfm-loudmeter/internal/server"
	"github.com/oszuidwest/zwfm-loudmeter/internal/session"
	"github.com/oszuidwest/zwfm-loudmeter/internal/types"
	"github.com/oszuidwest/zwfm-loudmeter/internal/update"
)

// Timing of the HTTP and WebSocket handlers.
const (
	statusInterval = 3000 * time.Millisecond // Periodic full status
	startTimeout   = 10 * time.Second        // Upper bound for opening the capture device
)

var indexTmpl = template.Must(template.New("index").Parse(indexHTML))

type indexData struct {
	Version string
	Year    int
}

// Server is an HTTP server that provides the web interface for the loudness meter.
type Server struct {
	config           *config.Config
	engine           server.SessionController
	hub              *server.Hub
	commands         *server.CommandHandler
	devices          *audio.DeviceCache
	updates          *update.Checker
	captureAvailable bool
}

// NewServer returns a new Server driving engine. Session events must be
// delivered to hub by the caller. updates may be nil when no release feed is
// configured.
func NewServer(cfg *config.Config, engine server.SessionController, hub *server.Hub, updates *update.Checker, captureAvailable bool) *Server {
	devices := audio.NewDeviceCache(audio.DefaultDeviceCacheTTL, nil)
	return &Server{
		config:           cfg,
		engine:           engine,
		hub:              hub,
		commands:         server.NewCommandHandler(cfg, engine, devices),
		devices:          devices,
		updates:          updates,
		captureAvailable: captureAvailable,
	}
}

// handleWebSocket handles bidirectional WebSocket communication for real-time updates.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := server.UpgradeConnection(w, r)
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err)
		return
	}

	// Create buffered send channel for thread-safe writes.
	// Only the writer goroutine writes to the connection, preventing race conditions.
	send := make(chan any, 32)
	done := make(chan struct{})
	statusUpdate := make(chan struct{}, 1)

	go s.runWebSocketWriter(conn, send)
	go s.runWebSocketReader(conn, send, done, statusUpdate)

	s.runWebSocketEventLoop(send, done, statusUpdate)
}

// runWebSocketWriter writes messages from the send channel to the connection.
func (s *Server) runWebSocketWriter(conn server.WebSocketConn, send <-chan any) {
	for msg := range send {
		if err := conn.WriteJSON(msg); err != nil {
			// Closing the connection ends the reader; drain until the event loop closes send.
			if err := conn.Close(); err != nil {
				slog.Debug("WebSocket close error", "error", err)
			}
			for range send {
			}
			return
		}
	}
	if err := conn.Close(); err != nil {
		slog.Debug("WebSocket close error", "error", err)
	}
}

// runWebSocketReader reads commands from the connection and dispatches them.
func (s *Server) runWebSocketReader(conn server.WebSocketConn, send chan<- any, done, statusUpdate chan<- struct{}) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in WebSocket reader", "panic", r)
		}
		close(done)
	}()

	for {
		var cmd server.WSCommand
		if err := conn.ReadJSON(&cmd); err != nil {
			return
		}
		s.commands.Handle(cmd, send, func() {
			select {
			case statusUpdate <- struct{}{}:
			default:
			}
		})
	}
}

// runWebSocketEventLoop subscribes the client to session events and sends
// periodic status updates until the reader exits.
func (s *Server) runWebSocketEventLoop(send chan any, done, statusUpdate <-chan struct{}) {
	unsubscribe := s.hub.Subscribe(send)
	statusTicker := time.NewTicker(statusInterval)
	defer statusTicker.Stop()

	closeSend := func() {
		unsubscribe()
		close(send)
	}

	// trySend attempts to send a message, returning false if done is closed
	trySend := func(msg any) bool {
		select {
		case send <- msg:
			return true
		case <-done:
			return false
		}
	}

	// Send initial status
	if !trySend(s.buildWSStatus()) {
		closeSend()
		return
	}

	for {
		select {
		case <-done:
			closeSend()
			return
		case <-statusUpdate:
			if !trySend(s.buildWSStatus()) {
				closeSend()
				return
			}
		case <-statusTicker.C:
			if !trySend(s.buildWSStatus()) {
				closeSend()
				return
			}
		}
	}
}

// buildWSStatus returns the current WebSocket status response.
func (s *Server) buildWSStatus() types.WSStatusResponse {
	cfg := s.config.Snapshot()
	return types.WSStatusResponse{
		Type:             "status",
		CaptureAvailable: s.captureAvailable,
		Session:          s.engine.Status(),
		Devices:          s.devices.Devices(),
		Settings:         server.Settings(&cfg),
		Version:          s.versionInfo(),
	}
}

// versionInfo combines the build information with the latest release check.
func (s *Server) versionInfo() types.VersionInfo {
	rel := s.updates.Status()
	return types.VersionInfo{
		Current:     strings.TrimPrefix(Version, "v"),
		Latest:      rel.Latest,
		ReleaseURL:  rel.URL,
		UpdateAvail: rel.UpdateAvailable,
		Commit:      Commit,
		BuildTime:   BuildTime,
	}
}

// SetupRoutes returns an [http.Handler] configured with all application routes.
func (s *Server) SetupRoutes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(securityHeaders)

	r.Get("/", s.handleIndex)
	r.Get("/app.js", s.handleAppJS)
	r.Get("/ws", s.handleWebSocket)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/session", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"http://localhost:*", "http://127.0.0.1:*"},
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type"},
			MaxAge:         300,
		}))
		r.Get("/", s.handleSessionStatus)
		r.Post("/start", s.handleSessionStart)
		r.Post("/abort", s.handleSessionAbort)
	})

	return r
}

// securityHeaders returns middleware that wraps handlers with security headers.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// handleIndex serves the embedded single-page interface.
func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTmpl.Execute(w, indexData{
		Version: Version,
		Year:    time.Now().Year(),
	}); err != nil {
		slog.Error("failed to write index.html", "error", err)
	}
}

// handleAppJS serves the embedded client script.
func (s *Server) handleAppJS(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/javascript")
	if _, err := w.Write([]byte(appJS)); err != nil {
		slog.Error("failed to write static file", "file", "app.js", "error", err)
	}
}

// handleSessionStatus handles GET /api/session.
func (s *Server) handleSessionStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Status())
}

// handleSessionStart handles POST /api/session/start.
func (s *Server) handleSessionStart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), startTimeout)
	defer cancel()

	if err := s.engine.Start(ctx); err != nil {
		writeJSON(w, statusForError(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Status())
}

// handleSessionAbort handles POST /api/session/abort.
func (s *Server) handleSessionAbort(w http.ResponseWriter, _ *http.Request) {
	if err := s.engine.Abort(); err != nil {
		writeJSON(w, statusForError(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Status())
}

// statusForError maps engine errors to HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, session.ErrInvalidStateTransition):
		return http.StatusConflict
	case errors.Is(err, audio.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, audio.ErrDeviceUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON writes v as a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// Start begins the HTTP server.
// Returns an *http.Server that can be used for graceful shutdown.
func (s *Server) Start() *http.Server {
	addr := fmt.Sprintf(":%d", s.config.Snapshot().WebPort)
	slog.Info("starting web server", "addr", addr)

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.SetupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	return srv
}
