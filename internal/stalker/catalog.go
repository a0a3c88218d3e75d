package stalker

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/opentv/opentv/internal/catalog"
)

// Genre is one row of itv get_genres and of the vod/series get_categories
// endpoints; the portal uses the same id/title shape for both.
type Genre struct {
	ID    catalog.FlexString `json:"id"`
	Title string             `json:"title"`
}

// Item is one catalog row. Live items reference genres via tv_genre_id; VOD
// and series items use category_id. The cmd field is the portal's playback
// command, resolved into a real URL by CreateLink at watch time.
type Item struct {
	ID            catalog.FlexString `json:"id"`
	Name          string             `json:"name"`
	Cmd           string             `json:"cmd"`
	Logo          *string            `json:"logo"`
	ScreenshotURI *string            `json:"screenshot_uri"`
	TvArchive     catalog.FlexInt    `json:"tv_archive"`
	TvGenreID     catalog.FlexString `json:"tv_genre_id"`
	CategoryID    catalog.FlexString `json:"category_id"`
	SeriesNumbers []catalog.FlexInt  `json:"series"` // episode numbers on series items
}

// page is the portal's paged list payload.
type page struct {
	TotalItems   catalog.FlexInt `json:"total_items"`
	MaxPageItems catalog.FlexInt `json:"max_page_items"`
	Data         []Item          `json:"data"`
}

// Genres fetches the live-TV genre map (id -> name).
func (c *Client) Genres(ctx context.Context) (map[string]string, error) {
	var genres []Genre
	if err := c.getJS(ctx, string(KindLive), "get_genres", nil, &genres); err != nil {
		return nil, err
	}
	return genreMap(genres), nil
}

// Categories fetches the category map for VOD or series catalogs. Live TV has
// no categories endpoint; asking for it is a caller bug.
func (c *Client) Categories(ctx context.Context, kind ItemKind) (map[string]string, error) {
	if kind == KindLive {
		return nil, errors.New("stalker: live catalog has genres, not categories")
	}
	var cats []Genre
	if err := c.getJS(ctx, string(kind), "get_categories", nil, &cats); err != nil {
		return nil, err
	}
	return genreMap(cats), nil
}

func genreMap(genres []Genre) map[string]string {
	out := make(map[string]string, len(genres))
	for _, g := range genres {
		if !g.ID.Empty() {
			out[g.ID.String()] = g.Title
		}
	}
	return out
}

// Items pages through one catalog. The first page reveals total_items and
// max_page_items; the remaining pages are fetched concurrently under the
// client's page semaphore and rate limiter. A page that fails is logged and
// dropped from the aggregate rather than failing the whole catalog.
func (c *Client) Items(ctx context.Context, kind ItemKind) ([]Item, error) {
	first, err := c.fetchPage(ctx, kind, nil, 1)
	if err != nil {
		return nil, err
	}
	total := first.TotalItems.Int64
	perPage := first.MaxPageItems.Int64
	if perPage <= 0 || total <= perPage {
		return first.Data, nil
	}
	pages := int((total + perPage - 1) / perPage)

	results := make([][]Item, pages+1)
	results[1] = first.Data
	var wg sync.WaitGroup
	for p := 2; p <= pages; p++ {
		p := p
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.pageSem.Acquire(ctx, 1); err != nil {
				return
			}
			defer c.pageSem.Release(1)
			if err := c.pageLimiter.Wait(ctx); err != nil {
				return
			}
			pg, err := c.fetchPage(ctx, kind, nil, p)
			if err != nil {
				c.log.Warn().Err(err).Str("catalog", string(kind)).Int("page", p).Msg("dropping failed page")
				return
			}
			results[p] = pg.Data
		}()
	}
	wg.Wait()

	var out []Item
	for _, r := range results {
		out = append(out, r...)
	}
	return out, nil
}

// SeriesEpisodes pages through the episode list of one series.
func (c *Client) SeriesEpisodes(ctx context.Context, seriesID string) ([]Item, error) {
	extra := url.Values{"movie_id": []string{seriesID}}
	first, err := c.fetchPage(ctx, KindSeries, extra, 1)
	if err != nil {
		return nil, err
	}
	total := first.TotalItems.Int64
	perPage := first.MaxPageItems.Int64
	out := first.Data
	if perPage <= 0 || total <= perPage {
		return out, nil
	}
	pages := int((total + perPage - 1) / perPage)
	for p := 2; p <= pages; p++ {
		pg, err := c.fetchPage(ctx, KindSeries, extra, p)
		if err != nil {
			c.log.Warn().Err(err).Str("series", seriesID).Int("page", p).Msg("dropping failed page")
			continue
		}
		out = append(out, pg.Data...)
	}
	return out, nil
}

func (c *Client) fetchPage(ctx context.Context, kind ItemKind, extra url.Values, p int) (*page, error) {
	q := url.Values{"p": []string{strconv.Itoa(p)}}
	for k, vals := range extra {
		q[k] = vals
	}
	var pg page
	if err := c.getJS(ctx, string(kind), "get_ordered_list", q, &pg); err != nil {
		return nil, err
	}
	return &pg, nil
}

// CreateLink resolves an item's cmd into a playable URL, optionally for one
// episode of a series. The portal prefixes the URL with a player hint
// ("ffmpeg http://..."); only the URL itself is returned.
func (c *Client) CreateLink(ctx context.Context, kind ItemKind, cmd string, episode *int64) (string, error) {
	extra := url.Values{"cmd": []string{cmd}}
	if episode != nil {
		extra.Set("series", strconv.FormatInt(*episode, 10))
	}
	var payload struct {
		Cmd string `json:"cmd"`
	}
	if err := c.getJS(ctx, string(kind), "create_link", extra, &payload); err != nil {
		return "", err
	}
	link := payload.Cmd
	if i := strings.Index(link, "http"); i > 0 {
		link = link[i:]
	}
	if strings.TrimSpace(link) == "" {
		return "", errors.New("stalker: create_link returned no URL")
	}
	return strings.TrimSpace(link), nil
}

// ChannelFromItem converts one catalog row into a channel. The cmd string is
// stored as the channel URL for live and VOD (resolved at watch time); series
// containers store the upstream series id so episodes can be expanded later.
func ChannelFromItem(item Item, kind ItemKind, sourceID int64, categories map[string]string) (*catalog.Channel, error) {
	name := strings.TrimSpace(item.Name)
	if name == "" {
		return nil, errors.New("stalker: item has no name")
	}
	var mt catalog.MediaType
	var categoryID catalog.FlexString
	switch kind {
	case KindLive:
		mt = catalog.Livestream
		categoryID = item.TvGenreID
	case KindVOD:
		mt = catalog.Movie
		categoryID = item.CategoryID
	case KindSeries:
		mt = catalog.Serie
		categoryID = item.CategoryID
	default:
		return nil, fmt.Errorf("stalker: unknown catalog kind %q", kind)
	}
	ch := &catalog.Channel{
		Name:      name,
		MediaType: mt,
		SourceID:  sourceID,
	}
	if !categoryID.Empty() {
		if group, ok := categories[categoryID.String()]; ok {
			ch.GroupName = catalog.StrPtr(strings.TrimSpace(group))
		}
	}
	if item.Logo != nil && strings.TrimSpace(*item.Logo) != "" {
		ch.Image = catalog.StrPtr(strings.TrimSpace(*item.Logo))
	} else if item.ScreenshotURI != nil && strings.TrimSpace(*item.ScreenshotURI) != "" {
		ch.Image = catalog.StrPtr(strings.TrimSpace(*item.ScreenshotURI))
	}
	if kind == KindSeries {
		if item.ID.Empty() {
			return nil, fmt.Errorf("stalker: series %q has no id", name)
		}
		ch.URL = catalog.StrPtr(item.ID.String())
	} else {
		if strings.TrimSpace(item.Cmd) == "" {
			return nil, fmt.Errorf("stalker: item %q has no cmd", name)
		}
		ch.URL = catalog.StrPtr(strings.TrimSpace(item.Cmd))
	}
	if item.TvArchive.Valid {
		ch.TvArchive = catalog.BoolPtr(item.TvArchive.Int64 == 1)
	}
	return ch, nil
}
