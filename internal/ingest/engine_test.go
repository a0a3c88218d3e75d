package ingest

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/opentv/opentv/internal/catalog"
	"github.com/opentv/opentv/internal/config"
	"github.com/opentv/opentv/internal/store"
)

func newTestEngine(t *testing.T) (*Engine, *store.Store) {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	cfg := &config.Config{
		DBPath:                 filepath.Join(dir, "catalog.db"),
		CacheDir:               dir,
		HTTPTimeout:            5 * time.Second,
		DownloadTimeout:        5 * time.Second,
		StalkerPageConcurrency: 4,
	}
	return New(st, cfg), st
}

func writePlaylist(t *testing.T, dir string, channels ...string) string {
	t.Helper()
	content := "#EXTM3U\n"
	for _, name := range channels {
		content += fmt.Sprintf("#EXTINF:-1 tvg-name=%q group-title=\"All\",%s\nhttp://host/%s\n", name, name, name)
	}
	path := filepath.Join(dir, "playlist.m3u")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func channelNames(t *testing.T, st *store.Store, sourceID int64) map[string]catalog.Channel {
	t.Helper()
	chs, err := st.SearchChannels(context.Background(), store.ChannelQuery{SourceID: sourceID, IncludeHidden: true})
	require.NoError(t, err)
	out := map[string]catalog.Channel{}
	for _, ch := range chs {
		out[ch.Name] = ch
	}
	return out
}

func TestImportM3UFileAndIdempotentRefresh(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()
	dir := t.TempDir()
	path := writePlaylist(t, dir, "A", "B", "C")

	src := &catalog.Source{Name: "list", Kind: catalog.KindM3UFile, URL: &path, Enabled: true}
	require.NoError(t, e.ImportSource(ctx, src))
	require.NotZero(t, src.ID)

	n, err := st.CountChannels(ctx, src.ID)
	require.NoError(t, err)
	require.Equal(t, 3, n)

	// Refreshing the unchanged playlist changes nothing.
	require.NoError(t, e.RefreshSource(ctx, src))
	n, err = st.CountChannels(ctx, src.ID)
	require.NoError(t, err)
	require.Equal(t, 3, n)

	groups, err := st.Groups(ctx, src.ID)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	require.Equal(t, "All", groups[0].Name)
}

func TestRefreshPreservesCuratedState(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()
	dir := t.TempDir()
	path := writePlaylist(t, dir, "A", "B", "C")

	src := &catalog.Source{Name: "list", Kind: catalog.KindM3UFile, URL: &path, Enabled: true}
	require.NoError(t, e.ImportSource(ctx, src))

	byName := channelNames(t, st, src.ID)
	require.NoError(t, st.SetFavorite(ctx, byName["A"].ID, true))
	require.NoError(t, st.SetLastWatched(ctx, byName["C"].ID, 100))

	// Upstream drops B and adds D.
	writePlaylist(t, dir, "A", "C", "D")
	require.NoError(t, e.RefreshSource(ctx, src))

	byName = channelNames(t, st, src.ID)
	require.Len(t, byName, 3)
	require.True(t, byName["A"].Favorite)
	require.NotNil(t, byName["C"].LastWatched)
	require.EqualValues(t, 100, *byName["C"].LastWatched)
	_, hasB := byName["B"]
	require.False(t, hasB)
	require.False(t, byName["D"].Favorite)
}

func TestReadM3UFromLink(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "#EXTM3U\n#EXTINF:-1 tvg-name=\"Remote\",Remote\nhttp://host/remote\n")
	}))
	defer srv.Close()

	src := &catalog.Source{Name: "remote", Kind: catalog.KindM3ULink, URL: &srv.URL, Enabled: true}
	require.NoError(t, e.ImportSource(ctx, src))

	byName := channelNames(t, st, src.ID)
	require.Contains(t, byName, "Remote")
}

// xtreamPortal fakes a panel; actions listed in fail return a 500.
func xtreamPortal(t *testing.T, fail map[string]bool) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		action := r.URL.Query().Get("action")
		if fail[action] {
			http.Error(w, "down", http.StatusInternalServerError)
			return
		}
		switch action {
		case "get_live_streams":
			fmt.Fprint(w, `[{"stream_id": 1, "name": "CNN", "category_id": "5"}]`)
		case "get_live_categories":
			fmt.Fprint(w, `[{"category_id": "5", "category_name": "News"}]`)
		case "get_vod_streams":
			fmt.Fprint(w, `[{"stream_id": 2, "name": "Die Hard", "container_extension": "mp4"}]`)
		case "get_vod_categories", "get_series_categories":
			fmt.Fprint(w, `[]`)
		case "get_series":
			fmt.Fprint(w, `[{"series_id": 9, "name": "Lost"}]`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func xtreamSource(portalURL string) *catalog.Source {
	u := portalURL + "/player_api.php"
	return &catalog.Source{
		Name: "panel", Kind: catalog.KindXtream,
		URL: &u, Username: catalog.StrPtr("u"), Password: catalog.StrPtr("p"),
		Enabled: true,
	}
}

func TestReadXtream(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()
	srv := xtreamPortal(t, nil)

	src := xtreamSource(srv.URL)
	require.NoError(t, e.ImportSource(ctx, src))

	byName := channelNames(t, st, src.ID)
	require.Len(t, byName, 3)
	require.Equal(t, catalog.Livestream, byName["CNN"].MediaType)
	require.Equal(t, catalog.Movie, byName["Die Hard"].MediaType)
	require.Equal(t, catalog.Serie, byName["Lost"].MediaType)
	require.Equal(t, "9", *byName["Lost"].URL, "series containers store the upstream id")
	require.Contains(t, *byName["CNN"].URL, "/live/u/p/1.ts")
}

func TestReadXtream_onePipelineFailureCommits(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()
	srv := xtreamPortal(t, map[string]bool{"get_vod_streams": true})

	src := xtreamSource(srv.URL)
	require.NoError(t, e.ImportSource(ctx, src))

	byName := channelNames(t, st, src.ID)
	require.Contains(t, byName, "CNN")
	require.Contains(t, byName, "Lost")
	require.NotContains(t, byName, "Die Hard", "failed pipeline is skipped")
}

func TestReadXtream_twoPipelineFailuresAbortAndKeepCatalog(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()

	srv := xtreamPortal(t, nil)
	src := xtreamSource(srv.URL)
	require.NoError(t, e.ImportSource(ctx, src))
	require.NoError(t, st.SetFavorite(ctx, channelNames(t, st, src.ID)["CNN"].ID, true))

	// Two of three pipelines fail: the refresh must error out and leave the
	// previously ingested catalog untouched.
	failing := xtreamPortal(t, map[string]bool{"get_vod_streams": true, "get_series": true})
	u := failing.URL + "/player_api.php"
	src.URL = &u
	require.Error(t, e.RefreshSource(ctx, src))

	byName := channelNames(t, st, src.ID)
	require.Len(t, byName, 3)
	require.True(t, byName["CNN"].Favorite)
}

func TestFetchEpisodes(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()

	infoRequests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("action") {
		case "get_series_info":
			infoRequests++
			fmt.Fprint(w, `{
				"seasons": [{"season_number": 1, "cover": "http://img/s1.png"}],
				"episodes": {"1": [
					{"id": "101", "title": "Pilot", "container_extension": "mp4", "episode_num": 1, "season": 1},
					{"id": "102", "title": "Two", "container_extension": "mp4", "episode_num": 2, "season": 1},
					{"id": "103", "title": "Lost Tape", "container_extension": "mp4", "episode_num": 1}
				]}
			}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	src := xtreamSource(srv.URL)
	require.NoError(t, st.DoTx(ctx, func(tx *store.Tx) error {
		id, err := tx.CreateOrFindSourceByName(src)
		src.ID = id
		return err
	}))

	series := &catalog.Channel{
		Name: "Lost", URL: catalog.StrPtr("9"), MediaType: catalog.Serie, SourceID: src.ID,
		Image: catalog.StrPtr("http://img/lost.png"),
	}
	require.NoError(t, e.FetchEpisodes(ctx, series))
	require.Equal(t, 1, infoRequests)

	eps, err := st.SearchChannels(ctx, store.ChannelQuery{SeriesID: 9})
	require.NoError(t, err)
	require.Len(t, eps, 3)
	for _, ep := range eps {
		require.Equal(t, catalog.Movie, ep.MediaType)
		require.NotNil(t, ep.SeasonID)
		require.Contains(t, *ep.URL, "/series/u/p/")
	}

	// Second expansion short-circuits on the persisted episodes.
	require.NoError(t, e.FetchEpisodes(ctx, series))
	require.Equal(t, 1, infoRequests)
}

func TestReadStalker(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch q.Get("action") {
		case "handshake":
			fmt.Fprint(w, `{"js": {"token": "tok"}}`)
		case "get_genres":
			fmt.Fprint(w, `{"js": [{"id": "1", "title": "News"}]}`)
		case "get_categories":
			fmt.Fprint(w, `{"js": [{"id": "10", "title": "Drama"}]}`)
		case "get_ordered_list":
			switch q.Get("type") {
			case "itv":
				fmt.Fprint(w, `{"js": {"total_items": 1, "max_page_items": 14, "data": [
					{"id": "7", "name": "CNN", "cmd": "ffmpeg http://portal/7", "tv_genre_id": "1", "tv_archive": 1}]}}`)
			case "vod":
				fmt.Fprint(w, `{"js": {"total_items": 1, "max_page_items": 14, "data": [
					{"id": "8", "name": "Movie", "cmd": "http://portal/m.mp4", "category_id": "10"}]}}`)
			case "series":
				fmt.Fprint(w, `{"js": {"total_items": 1, "max_page_items": 14, "data": [
					{"id": "12", "name": "Lost", "category_id": "10"}]}}`)
			}
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	portal := srv.URL + "/stalker_portal/server/load.php"
	src := &catalog.Source{
		Name: "portal", Kind: catalog.KindStalker,
		URL: &portal, MAC: catalog.StrPtr("00:1A:79:AA:BB:CC"), Enabled: true,
	}
	require.NoError(t, e.ImportSource(ctx, src))

	byName := channelNames(t, st, src.ID)
	require.Len(t, byName, 3)
	require.Equal(t, "ffmpeg http://portal/7", *byName["CNN"].URL, "live channels keep the raw cmd")
	require.Equal(t, catalog.Serie, byName["Lost"].MediaType)
	require.Equal(t, "12", *byName["Lost"].URL)
	require.NotNil(t, byName["CNN"].TvArchive)
	require.True(t, *byName["CNN"].TvArchive)
}

func TestRefreshAll_oneFailureDoesNotStopOthers(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()
	dir := t.TempDir()
	good := writePlaylist(t, dir, "A")

	goodSrc := &catalog.Source{Name: "good", Kind: catalog.KindM3UFile, URL: &good, Enabled: true}
	require.NoError(t, e.ImportSource(ctx, goodSrc))

	missing := filepath.Join(dir, "missing.m3u")
	badSrc := &catalog.Source{Name: "bad", Kind: catalog.KindM3UFile, URL: &missing, Enabled: true}
	require.NoError(t, st.DoTx(ctx, func(tx *store.Tx) error {
		id, err := tx.CreateOrFindSourceByName(badSrc)
		badSrc.ID = id
		return err
	}))

	err := e.RefreshAll(ctx)
	require.Error(t, err)
	require.Contains(t, err.Error(), `source "bad"`)

	n, err := st.CountChannels(ctx, goodSrc.ID)
	require.NoError(t, err)
	require.Equal(t, 1, n, "healthy sources still refreshed")
}
