// Package api serves the current profiling snapshot over HTTP.
package api

import (
	"Go2NetProfile/internal/config"
	"Go2NetProfile/internal/model"
	"Go2NetProfile/internal/query"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// ProfileSource is the run manager as seen by the API.
type ProfileSource interface {
	Current() *model.Snapshot
	Upload(ctx context.Context, r io.Reader) (*model.Snapshot, error)
}

// Server is the HTTP front end of the profiling service.
type Server struct {
	source          ProfileSource
	querier         query.Querier
	maxUploadSize   int64
	shutdownTimeout time.Duration
	logger          *zap.Logger
	server          *http.Server
}

// NewServer creates a new Server. querier may be nil, in which case the
// history endpoints report that no history store is configured.
func NewServer(cfg config.APIConfig, source ProfileSource, querier query.Querier, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		source:          source,
		querier:         querier,
		maxUploadSize:   cfg.MaxUploadSize,
		shutdownTimeout: config.Duration(cfg.ShutdownTimeout),
		logger:          logger.Named("api"),
	}
	s.server = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Router builds the route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.healthHandler).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/stats", s.statsHandler).Methods(http.MethodGet)
	api.HandleFunc("/user_profiles", s.profilesHandler).Methods(http.MethodGet)
	api.HandleFunc("/user_profiles/{user}", s.profileHandler).Methods(http.MethodGet)
	api.HandleFunc("/tags", s.tagsHandler).Methods(http.MethodGet)
	api.HandleFunc("/tags/{tag}", s.tagHandler).Methods(http.MethodGet)
	api.HandleFunc("/upload", s.uploadHandler).Methods(http.MethodPost)
	api.HandleFunc("/history/tags", s.historyTagsHandler).Methods(http.MethodGet)
	api.HandleFunc("/history/tags/{tag}", s.historyTagUsersHandler).Methods(http.MethodGet)
	api.HandleFunc("/history/users/{user}", s.historyUserHandler).Methods(http.MethodGet)
	return r
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("API server starting", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("could not listen on %s: %w", s.server.Addr, err)
	}
	return nil
}

// Shutdown stops the server gracefully within the configured timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("API server shutting down...")
	ctx, cancel := context.WithTimeout(ctx, s.shutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	s.logger.Info("API server exited.")
	return nil
}
