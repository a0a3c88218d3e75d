// Package api exposes the catalog and ingestion engine over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/opentv/opentv/internal/config"
	"github.com/opentv/opentv/internal/ingest"
	"github.com/opentv/opentv/internal/log"
	"github.com/opentv/opentv/internal/store"
)

// Server serves the catalog REST API.
type Server struct {
	store  *store.Store
	engine *ingest.Engine
	cfg    *config.Config
	log    zerolog.Logger
	router chi.Router
}

// New wires the router.
func New(st *store.Store, engine *ingest.Engine, cfg *config.Config) *Server {
	s := &Server{
		store:  st,
		engine: engine,
		cfg:    cfg,
		log:    log.WithComponent("api"),
	}
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Minute))

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/sources", s.handleListSources)
		r.Post("/sources", s.handleCreateSource)
		r.Route("/sources/{id}", func(r chi.Router) {
			r.Put("/", s.handleUpdateSource)
			r.Delete("/", s.handleDeleteSource)
			r.Post("/refresh", s.handleRefreshSource)
		})
		r.Post("/refresh", s.handleRefreshAll)

		r.Get("/channels", s.handleSearchChannels)
		r.Route("/channels/{id}", func(r chi.Router) {
			r.Post("/favorite", s.handleSetFavorite)
			r.Post("/hidden", s.handleSetHidden)
			r.Post("/watched", s.handleSetWatched)
			r.Post("/episodes", s.handleFetchEpisodes)
			r.Get("/epg", s.handleEPG)
			r.Get("/stream", s.handleStream)
		})

		r.Get("/favorites/backup", s.handleFavoritesBackup)
		r.Post("/favorites/restore", s.handleFavoritesRestore)
	})
	s.router = r
	return s
}

// Handler returns the http handler for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe blocks until ctx is canceled, then drains in-flight requests.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.log.Info().Str("listen", s.cfg.Listen).Msg("api listening")
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) respond(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error().Err(err).Msg("encode response")
	}
}

func (s *Server) respondErr(w http.ResponseWriter, status int, err error) {
	s.log.Warn().Err(err).Int("status", status).Msg("request failed")
	s.respond(w, status, map[string]string{"error": err.Error()})
}

// emptyList keeps JSON arrays as [] instead of null.
func emptyList[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}
