package stalker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/opentv/opentv/internal/catalog"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewClient(srv.URL+"/stalker_portal/server/load.php", "00:1A:79:AA:BB:CC", "OpenTV", 4, 0, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestNewClient_validation(t *testing.T) {
	if _, err := NewClient("", "00:1A:79:AA:BB:CC", "ua", 4, 0, zerolog.Nop()); err == nil {
		t.Error("missing URL should fail")
	}
	if _, err := NewClient("http://host/load.php", "", "ua", 4, 0, zerolog.Nop()); err == nil {
		t.Error("missing MAC should fail")
	}
	if _, err := NewClient("load.php", "00:1A:79:AA:BB:CC", "ua", 4, 0, zerolog.Nop()); err == nil {
		t.Error("relative URL should fail")
	}
}

func TestHandshakeAndTokenPropagation(t *testing.T) {
	var sawAuth string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Cookie"), "mac=") {
			t.Error("request is missing the mac cookie")
		}
		switch r.URL.Query().Get("action") {
		case "handshake":
			fmt.Fprint(w, `{"js": {"token": "tok-123"}}`)
		case "get_genres":
			sawAuth = r.Header.Get("Authorization")
			fmt.Fprint(w, `{"js": [{"id": "1", "title": "News"}, {"id": 2, "title": "Sports"}]}`)
		}
	}))

	ctx := context.Background()
	if err := c.Handshake(ctx); err != nil {
		t.Fatal(err)
	}
	genres, err := c.Genres(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if sawAuth != "Bearer tok-123" {
		t.Errorf("authorization = %q", sawAuth)
	}
	if genres["1"] != "News" || genres["2"] != "Sports" {
		t.Errorf("genres = %v", genres)
	}
}

func TestHandshake_noToken(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"js": {}}`)
	}))
	if err := c.Handshake(context.Background()); err == nil {
		t.Error("empty token should fail the handshake")
	}
}

func TestCategories_liveIsCallerBug(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request should be made")
	}))
	if _, err := c.Categories(context.Background(), KindLive); err == nil {
		t.Error("live categories must fail without a request")
	}
}

func TestItems_pagesAndDropsFailures(t *testing.T) {
	item := func(id int) string {
		return fmt.Sprintf(`{"id": "%d", "name": "Ch %d", "cmd": "ffmpeg http://host/%d"}`, id, id, id)
	}
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("action") != "get_ordered_list" {
			http.NotFound(w, r)
			return
		}
		switch r.URL.Query().Get("p") {
		case "1":
			fmt.Fprintf(w, `{"js": {"total_items": 5, "max_page_items": 2, "data": [%s, %s]}}`, item(1), item(2))
		case "2":
			http.Error(w, "flaky", http.StatusNotFound)
		case "3":
			fmt.Fprintf(w, `{"js": {"total_items": 5, "max_page_items": 2, "data": [%s]}}`, item(5))
		}
	}))

	items, err := c.Items(context.Background(), KindLive)
	if err != nil {
		t.Fatal(err)
	}
	// Page 2 failed and was dropped; pages 1 and 3 survive.
	if len(items) != 3 {
		t.Fatalf("items = %d, want 3", len(items))
	}
	if items[0].Name != "Ch 1" || items[2].Name != "Ch 5" {
		t.Errorf("items = %+v", items)
	}
}

func TestItems_singlePage(t *testing.T) {
	requests := 0
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		fmt.Fprint(w, `{"js": {"total_items": 1, "max_page_items": 10, "data": [{"id": "1", "name": "Only", "cmd": "http://host/1"}]}}`)
	}))
	items, err := c.Items(context.Background(), KindVOD)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || requests != 1 {
		t.Errorf("items = %d requests = %d", len(items), requests)
	}
}

func TestItems_firstPageFailureIsFatal(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusForbidden)
	}))
	if _, err := c.Items(context.Background(), KindLive); err == nil {
		t.Error("a failed first page must fail the catalog")
	}
}

func TestCreateLink(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("action") != "create_link" || q.Get("cmd") != "ffmpeg http://host/ch/1" {
			http.NotFound(w, r)
			return
		}
		if q.Get("series") == "3" {
			fmt.Fprint(w, `{"js": {"cmd": "ffmpeg http://host/play/episode-3.mp4"}}`)
			return
		}
		fmt.Fprint(w, `{"js": {"cmd": "ffmpeg http://host/play/token.ts"}}`)
	}))

	ctx := context.Background()
	link, err := c.CreateLink(ctx, KindLive, "ffmpeg http://host/ch/1", nil)
	if err != nil {
		t.Fatal(err)
	}
	if link != "http://host/play/token.ts" {
		t.Errorf("link = %q, player prefix should be stripped", link)
	}
	link, err = c.CreateLink(ctx, KindSeries, "ffmpeg http://host/ch/1", catalog.Int64Ptr(3))
	if err != nil {
		t.Fatal(err)
	}
	if link != "http://host/play/episode-3.mp4" {
		t.Errorf("episode link = %q", link)
	}
}

func TestChannelFromItem(t *testing.T) {
	var live Item
	if err := json.Unmarshal([]byte(`{"id": 7, "name": " CNN ", "cmd": "ffmpeg http://host/7", "logo": "http://img/7.png", "tv_archive": "1", "tv_genre_id": 2}`), &live); err != nil {
		t.Fatal(err)
	}
	ch, err := ChannelFromItem(live, KindLive, 4, map[string]string{"2": "News"})
	if err != nil {
		t.Fatal(err)
	}
	if ch.Name != "CNN" || ch.MediaType != catalog.Livestream {
		t.Errorf("channel = %+v", ch)
	}
	if ch.GroupName == nil || *ch.GroupName != "News" {
		t.Errorf("group = %v", ch.GroupName)
	}
	if *ch.URL != "ffmpeg http://host/7" {
		t.Errorf("url should keep the raw cmd, got %q", *ch.URL)
	}
	if ch.TvArchive == nil || !*ch.TvArchive {
		t.Errorf("tv archive = %v", ch.TvArchive)
	}

	// Screenshot fallback when there is no logo.
	vod := Item{Name: "Movie", Cmd: "http://host/m.mp4", ScreenshotURI: catalog.StrPtr("http://img/shot.png")}
	ch, err = ChannelFromItem(vod, KindVOD, 4, nil)
	if err != nil {
		t.Fatal(err)
	}
	if ch.MediaType != catalog.Movie || ch.Image == nil || *ch.Image != "http://img/shot.png" {
		t.Errorf("vod channel = %+v", ch)
	}

	// Series containers store the series id, not the cmd.
	series := Item{ID: "12", Name: "Lost"}
	ch, err = ChannelFromItem(series, KindSeries, 4, nil)
	if err != nil {
		t.Fatal(err)
	}
	if ch.MediaType != catalog.Serie || *ch.URL != "12" {
		t.Errorf("series channel = %+v", ch)
	}

	if _, err := ChannelFromItem(Item{Cmd: "x"}, KindLive, 4, nil); err == nil {
		t.Error("nameless item should fail")
	}
	if _, err := ChannelFromItem(Item{Name: "X"}, KindLive, 4, nil); err == nil {
		t.Error("cmdless live item should fail")
	}
}
