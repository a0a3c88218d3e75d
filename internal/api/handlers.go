package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/opentv/opentv/internal/catalog"
	"github.com/opentv/opentv/internal/store"
)

func idParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.store.Sources(r.Context())
	if err != nil {
		s.respondErr(w, http.StatusInternalServerError, err)
		return
	}
	s.respond(w, http.StatusOK, emptyList(sources))
}

// handleCreateSource persists a new source and runs its first ingestion. The
// source row only exists if the initial ingest succeeds; both happen in the
// same transaction.
func (s *Server) handleCreateSource(w http.ResponseWriter, r *http.Request) {
	var src catalog.Source
	if err := json.NewDecoder(r.Body).Decode(&src); err != nil {
		s.respondErr(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(src.Name) == "" {
		s.respondErr(w, http.StatusBadRequest, errors.New("source name is required"))
		return
	}
	if err := s.engine.ImportSource(r.Context(), &src); err != nil {
		s.respondErr(w, http.StatusBadGateway, err)
		return
	}
	s.respond(w, http.StatusCreated, src)
}

func (s *Server) handleUpdateSource(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		s.respondErr(w, http.StatusBadRequest, err)
		return
	}
	var src catalog.Source
	if err := json.NewDecoder(r.Body).Decode(&src); err != nil {
		s.respondErr(w, http.StatusBadRequest, err)
		return
	}
	src.ID = id
	if err := s.store.UpdateSource(r.Context(), &src); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.respondErr(w, http.StatusNotFound, err)
			return
		}
		s.respondErr(w, http.StatusInternalServerError, err)
		return
	}
	s.respond(w, http.StatusOK, src)
}

func (s *Server) handleDeleteSource(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		s.respondErr(w, http.StatusBadRequest, err)
		return
	}
	if err := s.store.DeleteSource(r.Context(), id); err != nil {
		s.respondErr(w, http.StatusInternalServerError, err)
		return
	}
	s.respond(w, http.StatusNoContent, nil)
}

func (s *Server) handleRefreshSource(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		s.respondErr(w, http.StatusBadRequest, err)
		return
	}
	src, err := s.store.SourceByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.respondErr(w, http.StatusNotFound, err)
			return
		}
		s.respondErr(w, http.StatusInternalServerError, err)
		return
	}
	if err := s.engine.RefreshSource(r.Context(), &src); err != nil {
		s.respondErr(w, http.StatusBadGateway, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]string{"status": "refreshed"})
}

func (s *Server) handleRefreshAll(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.RefreshAll(r.Context()); err != nil {
		s.respondErr(w, http.StatusBadGateway, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]string{"status": "refreshed"})
}

func (s *Server) handleSearchChannels(w http.ResponseWriter, r *http.Request) {
	q := store.ChannelQuery{
		Name:          r.URL.Query().Get("query"),
		FavoritesOnly: r.URL.Query().Get("favorites") == "true",
		IncludeHidden: r.URL.Query().Get("hidden") == "true",
	}
	if v := r.URL.Query().Get("source_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			s.respondErr(w, http.StatusBadRequest, fmt.Errorf("source_id: %w", err))
			return
		}
		q.SourceID = id
	}
	if v := r.URL.Query().Get("series_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			s.respondErr(w, http.StatusBadRequest, fmt.Errorf("series_id: %w", err))
			return
		}
		q.SeriesID = id
	}
	for _, v := range r.URL.Query()["media_type"] {
		mt, err := strconv.Atoi(v)
		if err != nil {
			s.respondErr(w, http.StatusBadRequest, fmt.Errorf("media_type: %w", err))
			return
		}
		q.MediaTypes = append(q.MediaTypes, catalog.MediaType(mt))
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			s.respondErr(w, http.StatusBadRequest, fmt.Errorf("limit: %w", err))
			return
		}
		q.Limit = n
	}
	channels, err := s.store.SearchChannels(r.Context(), q)
	if err != nil {
		s.respondErr(w, http.StatusInternalServerError, err)
		return
	}
	s.respond(w, http.StatusOK, emptyList(channels))
}

func (s *Server) handleSetFavorite(w http.ResponseWriter, r *http.Request) {
	s.setChannelFlag(w, r, s.store.SetFavorite)
}

func (s *Server) handleSetHidden(w http.ResponseWriter, r *http.Request) {
	s.setChannelFlag(w, r, s.store.SetHidden)
}

func (s *Server) setChannelFlag(w http.ResponseWriter, r *http.Request,
	set func(ctx context.Context, id int64, v bool) error) {

	id, err := idParam(r)
	if err != nil {
		s.respondErr(w, http.StatusBadRequest, err)
		return
	}
	var body struct {
		Value bool `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.respondErr(w, http.StatusBadRequest, err)
		return
	}
	if err := set(r.Context(), id, body.Value); err != nil {
		s.respondErr(w, http.StatusInternalServerError, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]bool{"value": body.Value})
}

func (s *Server) handleSetWatched(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		s.respondErr(w, http.StatusBadRequest, err)
		return
	}
	var body struct {
		Timestamp *int64 `json:"timestamp"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.respondErr(w, http.StatusBadRequest, err)
		return
	}
	ts := time.Now().Unix()
	if body.Timestamp != nil {
		ts = *body.Timestamp
	}
	if err := s.store.SetLastWatched(r.Context(), id, ts); err != nil {
		s.respondErr(w, http.StatusInternalServerError, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]int64{"timestamp": ts})
}

func (s *Server) channelByID(w http.ResponseWriter, r *http.Request) (catalog.Channel, bool) {
	id, err := idParam(r)
	if err != nil {
		s.respondErr(w, http.StatusBadRequest, err)
		return catalog.Channel{}, false
	}
	ch, err := s.store.ChannelByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.respondErr(w, http.StatusNotFound, err)
		} else {
			s.respondErr(w, http.StatusInternalServerError, err)
		}
		return catalog.Channel{}, false
	}
	return ch, true
}

func (s *Server) handleFetchEpisodes(w http.ResponseWriter, r *http.Request) {
	ch, ok := s.channelByID(w, r)
	if !ok {
		return
	}
	if err := s.engine.FetchEpisodes(r.Context(), &ch); err != nil {
		s.respondErr(w, http.StatusBadGateway, err)
		return
	}
	episodes, err := s.store.SearchChannels(r.Context(), store.ChannelQuery{SeriesID: mustSeriesID(&ch), SourceID: ch.SourceID})
	if err != nil {
		s.respondErr(w, http.StatusInternalServerError, err)
		return
	}
	s.respond(w, http.StatusOK, emptyList(episodes))
}

// mustSeriesID reads the upstream series id a container stores in its URL.
// FetchEpisodes already validated it.
func mustSeriesID(ch *catalog.Channel) int64 {
	if ch.URL == nil {
		return 0
	}
	id, _ := strconv.ParseInt(*ch.URL, 10, 64)
	return id
}

func (s *Server) handleEPG(w http.ResponseWriter, r *http.Request) {
	ch, ok := s.channelByID(w, r)
	if !ok {
		return
	}
	epgs, err := s.engine.FetchEPG(r.Context(), &ch)
	if err != nil {
		s.respondErr(w, http.StatusBadGateway, err)
		return
	}
	s.respond(w, http.StatusOK, emptyList(epgs))
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	ch, ok := s.channelByID(w, r)
	if !ok {
		return
	}
	url, err := s.engine.CreateStream(r.Context(), &ch)
	if err != nil {
		s.respondErr(w, http.StatusBadGateway, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]string{"url": url})
}

// favoriteBackup is one exported favorite, keyed by names so a backup survives
// wipes and re-imports where row ids change.
type favoriteBackup struct {
	SourceName  string `json:"source_name"`
	ChannelName string `json:"channel_name"`
}

func (s *Server) handleFavoritesBackup(w http.ResponseWriter, r *http.Request) {
	favorites, err := s.store.SearchChannels(r.Context(), store.ChannelQuery{FavoritesOnly: true, IncludeHidden: true})
	if err != nil {
		s.respondErr(w, http.StatusInternalServerError, err)
		return
	}
	sources, err := s.store.Sources(r.Context())
	if err != nil {
		s.respondErr(w, http.StatusInternalServerError, err)
		return
	}
	names := make(map[int64]string, len(sources))
	for _, src := range sources {
		names[src.ID] = src.Name
	}
	backup := make([]favoriteBackup, 0, len(favorites))
	for _, ch := range favorites {
		backup = append(backup, favoriteBackup{SourceName: names[ch.SourceID], ChannelName: ch.Name})
	}
	s.respond(w, http.StatusOK, backup)
}

func (s *Server) handleFavoritesRestore(w http.ResponseWriter, r *http.Request) {
	var backup []favoriteBackup
	if err := json.NewDecoder(r.Body).Decode(&backup); err != nil {
		s.respondErr(w, http.StatusBadRequest, err)
		return
	}
	restored := 0
	for _, b := range backup {
		src, err := s.store.SourceByName(r.Context(), b.SourceName)
		if err != nil {
			// Source is gone; its favorites can't be replayed.
			continue
		}
		n, err := s.store.SetFavoriteByName(r.Context(), src.ID, b.ChannelName)
		if err != nil {
			s.respondErr(w, http.StatusInternalServerError, err)
			return
		}
		restored += int(n)
	}
	s.respond(w, http.StatusOK, map[string]int{"restored": restored})
}
