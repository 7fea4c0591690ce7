// Package httpapi exposes shares, downloads, archive tasks, the file index
// and download statistics over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"hardwire/internal/hardwire"
	"hardwire/internal/progress"
	"hardwire/internal/share"
)

// FileIndex is the read side of the directory indexer.
type FileIndex interface {
	Tree() []hardwire.IndexEntry
	CachedSize(path string) (int64, bool)
	RescanAndWait(ctx context.Context) error
}

// TaskService submits and inspects archive jobs.
type TaskService interface {
	SubmitArchiveJob(ctx context.Context, in hardwire.ArchiveJobInput) (string, error)
	GetTask(ctx context.Context, id string) (*hardwire.Task, error)
}

// Deps are the collaborators of a Server.
type Deps struct {
	Downloads hardwire.DownloadStore
	Shares    *share.Service
	Tasks     TaskService
	Index     FileIndex
	Events    progress.Publisher
	Feed      *LiveFeed
	PublicURL string
	ShareTTL  time.Duration // 0 creates links that never expire
	Logger    hardwire.Logger
}

// Server holds the HTTP handlers.
type Server struct {
	Deps
}

// NewServer creates a Server.
func NewServer(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = hardwire.NewNopLogger()
	}
	return &Server{Deps: deps}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("OK"))
	})

	r.Get("/s/{shareID}", s.listShare)
	r.Get("/s/{shareID}/{fileID}", s.downloadShared)
	r.Head("/s/{shareID}/{fileID}", s.downloadShared)

	r.Route("/api", func(r chi.Router) {
		r.Post("/shares", s.createShare)

		r.Post("/tasks", s.submitTask)
		r.Get("/tasks/{taskID}", s.getTask)
		r.Get("/tasks/{taskID}/download", s.downloadTaskArchive)

		r.Get("/list_files", s.listFiles)
		r.Post("/files/rescan", s.rescan)

		r.Route("/stats/downloads", func(r chi.Router) {
			r.Get("/", s.downloadStats)
			r.Get("/recent", s.recentDownloads)
			r.Get("/status", s.statusDistribution)
			r.Get("/by_period", s.downloadsByPeriod)
		})
	})

	if s.Feed != nil {
		r.Get("/live_update", s.Feed.ServeHTTP)
	}
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.Logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeError maps service errors onto status codes. Unknown errors are
// logged and reported as 500 without detail.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := mapError(err)
	if status == http.StatusInternalServerError {
		s.Logger.Error("request failed", "path", r.URL.Path, "error", err)
	}
	writeMessage(w, status, msg)
}

func mapError(err error) (int, string) {
	switch {
	case errors.Is(err, hardwire.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, hardwire.ErrShareExpired):
		return http.StatusGone, err.Error()
	case errors.Is(err, hardwire.ErrQueueFull), errors.Is(err, hardwire.ErrQueueClosed),
		errors.Is(err, hardwire.ErrIndexerStopped):
		return http.StatusServiceUnavailable, err.Error()
	case errors.Is(err, hardwire.ErrInvalidArchiveInput), errors.Is(err, share.ErrInvalidPath):
		return http.StatusBadRequest, err.Error()
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}
