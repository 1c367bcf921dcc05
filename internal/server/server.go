// Package server exposes the chat service and its progress stream over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"ai-datalab/internal/analytics"
	"ai-datalab/internal/chat"
	"ai-datalab/internal/events"
	"ai-datalab/internal/logging"
	"ai-datalab/internal/storage"
)

// Routes are served at the root and again under this prefix.
const apiPrefix = "/api"

type Chatter interface {
	Handle(ctx context.Context, sessionID, message string) (chat.Reply, error)
}

type Stream interface {
	Ready(sessionID string) <-chan struct{}
	Drain(sessionID string) []events.Event
}

type Datasets interface {
	List() ([]string, error)
}

type Options struct {
	Addr           string
	AllowedOrigins []string
	// Heartbeat is the interval of keep-alive comments on idle streams.
	Heartbeat     time.Duration
	Provider      string
	LLMConfigured bool
}

type Server struct {
	opts     Options
	chat     Chatter
	stream   Stream
	datasets Datasets
	recorder storage.Recorder
	now      func() time.Time
	log      *zap.Logger
}

// New builds the server. recorder may be nil, in which case /stats reports
// an empty day.
func New(opts Options, chatter Chatter, stream Stream, datasets Datasets, recorder storage.Recorder, logger *zap.Logger) *Server {
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = 15 * time.Second
	}
	if recorder == nil {
		recorder = storage.Nop{}
	}
	return &Server{
		opts:     opts,
		chat:     chatter,
		stream:   stream,
		datasets: datasets,
		recorder: recorder,
		now:      time.Now,
		log:      logging.OrNop(logger).Named("http"),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	for _, prefix := range []string{"", apiPrefix} {
		mux.HandleFunc("GET "+prefix+"/{$}", s.handleRoot)
		mux.HandleFunc("POST "+prefix+"/chat", s.handleChat)
		mux.HandleFunc("GET "+prefix+"/stream/{session_id}", s.handleStream)
		mux.HandleFunc("GET "+prefix+"/health", s.handleHealth)
		mux.HandleFunc("GET "+prefix+"/datasets", s.handleDatasets)
		mux.HandleFunc("GET "+prefix+"/stats", s.handleStats)
	}
	return s.cors(mux)
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.opts.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", zap.String("addr", s.opts.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	s.log.Info("http server stopped")
	return nil
}

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	reply, err := s.chat.Handle(r.Context(), req.SessionID, req.Message)
	switch {
	case errors.Is(err, chat.ErrEmptyMessage):
		writeDetail(w, http.StatusBadRequest, "Message must not be empty")
		return
	case err != nil:
		writeDetail(w, http.StatusInternalServerError, fmt.Sprintf("Error processing message: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "AI DataLab API", "status": "running"})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":                        "healthy",
		s.opts.Provider + "_configured": s.opts.LLMConfigured,
	})
}

func (s *Server) handleDatasets(w http.ResponseWriter, _ *http.Request) {
	files, err := s.datasets.List()
	if err != nil {
		s.log.Warn("failed to list datasets", zap.Error(err))
		writeDetail(w, http.StatusInternalServerError, "Error listing datasets")
		return
	}
	if files == nil {
		files = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"datasets": files})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	evs, err := s.recorder.LoadInteractions()
	if err != nil {
		s.log.Warn("failed to load interactions", zap.Error(err))
		writeDetail(w, http.StatusInternalServerError, "Error loading interaction log")
		return
	}
	writeJSON(w, http.StatusOK, analytics.AnalyzeDailyLogs(evs, s.now().UTC()))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
