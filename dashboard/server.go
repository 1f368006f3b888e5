// Package dashboard exposes the knowledge store over HTTP: entry CRUD,
// ranked search, and a minimal index page.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sagehand/ideakeeper/knowledge"
)

type Server struct {
	store  knowledge.Store
	logger *slog.Logger
	srv    *http.Server
}

type Options struct {
	Addr   string
	Store  knowledge.Store
	Logger *slog.Logger
}

func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{store: opts.Store, logger: logger}
	s.srv = &http.Server{
		Addr:         opts.Addr,
		Handler:      s.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))

	r.Get("/", s.handleIndex)
	r.Route("/api/entries", func(r chi.Router) {
		r.Get("/", s.handleList)
		r.Post("/", s.handleCreate)
		r.Get("/search", s.handleSearch)
		r.Get("/{id}", s.handleGet)
		r.Patch("/{id}", s.handleUpdate)
		r.Delete("/{id}", s.handleDelete)
	})
	return r
}

// Start runs the listener until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("dashboard listening", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.srv.Shutdown(shutdownCtx)
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(`<!doctype html>
<html>
<head><title>ideakeeper</title></head>
<body>
<h1>ideakeeper dashboard</h1>
<p>API endpoints: <code>/api/entries</code>, <code>/api/entries/search?q=...</code></p>
</body>
</html>`))
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	filter := knowledge.ListFilter{
		UserID:   r.URL.Query().Get("user_id"),
		Category: r.URL.Query().Get("category"),
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = limit
	}
	entries, err := s.store.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("list entries failed", "error", err)
		writeError(w, http.StatusInternalServerError, "list failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var entry knowledge.Entry
	if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if entry.UserID == "" || entry.Content == "" {
		writeError(w, http.StatusBadRequest, "user_id and content are required")
		return
	}
	created, err := s.store.Create(r.Context(), entry)
	if err != nil {
		s.logger.Error("create entry failed", "error", err)
		writeError(w, http.StatusInternalServerError, "create failed")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	entry, ok, err := s.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.logger.Error("get entry failed", "error", err)
		writeError(w, http.StatusInternalServerError, "get failed")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "entry not found")
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	opts := knowledge.SearchOptions{
		UserID:   r.URL.Query().Get("user_id"),
		Category: r.URL.Query().Get("category"),
		Limit:    10,
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		opts.Limit = limit
	}
	results, err := s.store.Search(r.Context(), query, opts)
	if err != nil {
		s.logger.Error("search failed", "error", err)
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var patch knowledge.Patch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	patch.ID = chi.URLParam(r, "id")
	if patch.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	entry, err := s.store.Update(r.Context(), patch)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, entry)
	case errors.Is(err, knowledge.ErrNotFound), errors.Is(err, knowledge.ErrNotOwner):
		writeError(w, http.StatusNotFound, "entry not found")
	default:
		s.logger.Error("update entry failed", "error", err)
		writeError(w, http.StatusInternalServerError, "update failed")
	}
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	err := s.store.Delete(r.Context(), chi.URLParam(r, "id"), userID)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, knowledge.ErrNotFound), errors.Is(err, knowledge.ErrNotOwner):
		writeError(w, http.StatusNotFound, "entry not found")
	default:
		s.logger.Error("delete entry failed", "error", err)
		writeError(w, http.StatusInternalServerError, "delete failed")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
