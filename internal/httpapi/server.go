// Package httpapi exposes the offline cache, connectivity state and
// notification gate to local consumers over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hay-kot/criterio"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/hay-kot/shelter/internal/core/notify"
	"github.com/hay-kot/shelter/internal/core/offline"
)

// maxBodyBytes bounds request bodies accepted by the cache and notification
// routes.
const maxBodyBytes = 1 << 20

// Cache is the subset of offline.Cache served by the API.
type Cache interface {
	CacheData(ctx context.Context, key string, data json.RawMessage) error
	GetCachedData(key string) (json.RawMessage, bool)
}

// Connectivity reports the current online state.
type Connectivity interface {
	IsOnline() bool
}

// Notifier is the subset of notify.Notifier served by the API.
type Notifier interface {
	Permission() notify.Permission
	RequestPermission(ctx context.Context) bool
	SendNotification(ctx context.Context, title string, opts notify.Options) bool
}

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// Recorder counts handled requests.
type Recorder interface {
	HTTPRequest(route string, code int)
}

type nopRecorder struct{}

func (nopRecorder) HTTPRequest(string, int) {}

// Deps are the components the server routes to.
type Deps struct {
	Cache        Cache
	Connectivity Connectivity
	Notifier     Notifier
	Ready        ReadinessChecker
}

// Server exposes the API plus health, readiness, and metrics routes.
type Server struct {
	httpServer *http.Server
	deps       Deps
	log        zerolog.Logger
	recorder   Recorder
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithRecorder sets the request metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Server) { s.recorder = r }
}

// NewServer creates an HTTP server listening on addr.
func NewServer(addr string, deps Deps, opts ...Option) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:        addr,
			Handler:     mux,
			ReadTimeout: 10 * time.Second,
			// permission prompts wait on the user, so writes get more room
			WriteTimeout: 2 * time.Minute,
			IdleTimeout:  60 * time.Second,
		},
		deps:     deps,
		log:      zerolog.Nop(),
		recorder: nopRecorder{},
	}
	for _, opt := range opts {
		opt(s)
	}

	s.handle(mux, "PUT /api/cache/{key...}", "cache_put", s.handleCachePut)
	s.handle(mux, "GET /api/cache/{key...}", "cache_get", s.handleCacheGet)
	s.handle(mux, "GET /api/status", "status", s.handleStatus)
	s.handle(mux, "POST /api/notifications/permission", "permission", s.handlePermission)
	s.handle(mux, "POST /api/notifications", "notify", s.handleNotify)

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", handleReady(deps.Ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	return s
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.httpServer.Addr).Msg("http server starting")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handle(mux *http.ServeMux, pattern, route string, h http.HandlerFunc) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		h(sw, r)
		s.recorder.HTTPRequest(route, sw.code)
		s.log.Debug().Str("route", route).Int("code", sw.code).Msg("request")
	})
}

func (s *Server) handleCachePut(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if key == "" {
		writeError(w, http.StatusBadRequest, errors.New("key is required"))
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, err)
		return
	}
	if !json.Valid(body) {
		writeError(w, http.StatusBadRequest, errors.New("body must be a JSON value"))
		return
	}

	err = s.deps.Cache.CacheData(r.Context(), key, body)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, offline.ErrQuotaExceeded):
		writeError(w, http.StatusInsufficientStorage, err)
	case errors.Is(err, offline.ErrEncode):
		writeError(w, http.StatusBadRequest, err)
	default:
		s.log.Error().Err(err).Str("key", key).Msg("cache write failed")
		writeError(w, http.StatusInternalServerError, err)
	}
}

func (s *Server) handleCacheGet(w http.ResponseWriter, r *http.Request) {
	data, ok := s.deps.Cache.GetCachedData(r.PathValue("key"))
	if !ok {
		writeError(w, http.StatusNotFound, offline.ErrNotFound)
		return
	}

	writeJSON(w, http.StatusOK, map[string]json.RawMessage{"data": data})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"online":     s.deps.Connectivity.IsOnline(),
		"permission": s.deps.Notifier.Permission(),
	})
}

func (s *Server) handlePermission(w http.ResponseWriter, r *http.Request) {
	granted := s.deps.Notifier.RequestPermission(r.Context())
	writeJSON(w, http.StatusOK, map[string]bool{"granted": granted})
}

// NotificationRequest is the body of POST /api/notifications.
type NotificationRequest struct {
	Title   string         `json:"title"`
	Options notify.Options `json:"options"`
}

// Validate checks the request for errors using criterio.
func (req NotificationRequest) Validate() error {
	var errs criterio.FieldErrorsBuilder

	if strings.TrimSpace(req.Title) == "" {
		errs = errs.Append("title", fmt.Errorf("cannot be empty"))
	}
	if len(req.Title) > 256 {
		errs = errs.Append("title", fmt.Errorf("must be at most 256 bytes"))
	}

	return errs.ToError()
}

func (s *Server) handleNotify(w http.ResponseWriter, r *http.Request) {
	var req NotificationRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode body: %w", err))
		return
	}

	if err := req.Validate(); err != nil {
		writeValidationError(w, err)
		return
	}

	shown := s.deps.Notifier.SendNotification(r.Context(), req.Title, req.Options)
	writeJSON(w, http.StatusAccepted, map[string]bool{"shown": shown})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func handleReady(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker == nil {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := checker.CheckReadiness(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeValidationError(w http.ResponseWriter, err error) {
	fields := map[string]string{}

	var fieldErrs criterio.FieldErrors
	if errors.As(err, &fieldErrs) {
		for _, fe := range fieldErrs {
			fields[fe.Field] = fe.Err.Error()
		}
	}

	writeJSON(w, http.StatusBadRequest, map[string]any{
		"error":  "validation failed",
		"fields": fields,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}

// statusWriter captures the response code for metrics.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

