package xtream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/opentv/opentv/internal/catalog"
)

// SeriesInfo is the get_series_info payload: season metadata plus episodes
// keyed by season number (as a string, per the API).
type SeriesInfo struct {
	Seasons  []SeasonInfo         `json:"seasons"`
	Episodes map[string][]Episode `json:"episodes"`
}

// SeasonInfo is one season's metadata within get_series_info.
type SeasonInfo struct {
	SeasonNumber catalog.FlexInt `json:"season_number"`
	Overview     *string         `json:"overview"`
	Cover        *string         `json:"cover"`
	CoverTMDB    *string         `json:"cover_tmdb"`
}

// Image picks the best available season artwork.
func (s *SeasonInfo) Image() *string {
	for _, v := range []*string{s.CoverTMDB, s.Cover, s.Overview} {
		if v != nil && *v != "" {
			return v
		}
	}
	return nil
}

// Episode is one episode within get_series_info.
type Episode struct {
	ID                 catalog.FlexString `json:"id"`
	Title              string             `json:"title"`
	ContainerExtension string             `json:"container_extension"`
	EpisodeNum         catalog.FlexInt    `json:"episode_num"`
	Season             catalog.FlexInt    `json:"season"`
	Info               json.RawMessage    `json:"info"`
}

// Image extracts the episode still from the nested info object, if present.
func (e *Episode) Image() *string {
	if len(e.Info) == 0 {
		return nil
	}
	var info struct {
		MovieImage *string `json:"movie_image"`
	}
	if err := json.Unmarshal(e.Info, &info); err != nil {
		return nil
	}
	if info.MovieImage != nil && *info.MovieImage == "" {
		return nil
	}
	return info.MovieImage
}

// SeasonNumberOrSentinel returns the episode's season number, or the
// uncategorized sentinel when the panel omitted it.
func (e *Episode) SeasonNumberOrSentinel() int64 {
	if e.Season.Valid {
		return e.Season.Int64
	}
	return catalog.UncategorizedSeason
}

// FetchSeriesInfo fetches seasons and episodes for one series. Episodes are
// flattened across the per-season map and sorted by (season, episode number)
// so insertion order is deterministic.
func (c *Client) FetchSeriesInfo(ctx context.Context, seriesID int64) (*SeriesInfo, error) {
	var info SeriesInfo
	extra := url.Values{"series_id": []string{strconv.FormatInt(seriesID, 10)}}
	if err := c.getJSON(ctx, actionSeriesInfo, extra, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// FlatEpisodes returns all episodes ordered by season then episode number.
func (s *SeriesInfo) FlatEpisodes() []Episode {
	var out []Episode
	for _, eps := range s.Episodes {
		out = append(out, eps...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		si, sj := out[i].SeasonNumberOrSentinel(), out[j].SeasonNumberOrSentinel()
		if si != sj {
			return si < sj
		}
		return out[i].EpisodeNum.Int64 < out[j].EpisodeNum.Int64
	})
	return out
}

// SeasonsByNumber indexes season metadata by season number. Seasons without a
// parseable number are skipped; their episodes fall back to a makeshift season.
func (s *SeriesInfo) SeasonsByNumber() map[int64]SeasonInfo {
	out := make(map[int64]SeasonInfo, len(s.Seasons))
	for _, season := range s.Seasons {
		if season.SeasonNumber.Valid {
			out[season.SeasonNumber.Int64] = season
		}
	}
	return out
}

// EpisodeChannel converts an episode into a channel row linked to its series
// and season. Episode playback URLs live under the panel's series path.
func (c *Client) EpisodeChannel(e Episode, sourceID, seriesID, seasonID int64) (*catalog.Channel, error) {
	if e.ID.Empty() {
		return nil, fmt.Errorf("xtream: episode %q has no id", e.Title)
	}
	u, err := c.StreamURL(e.ID.String(), catalog.Serie, catalog.StrPtr(e.ContainerExtension))
	if err != nil {
		return nil, err
	}
	return &catalog.Channel{
		Name:       strings.TrimSpace(e.Title),
		Image:      e.Image(),
		URL:        &u,
		MediaType:  catalog.Movie,
		SourceID:   sourceID,
		SeriesID:   &seriesID,
		SeasonID:   &seasonID,
		EpisodeNum: e.EpisodeNum.Ptr(),
	}, nil
}

// MakeshiftSeason builds the fallback season row for episodes whose season has
// no metadata (or no number at all).
func MakeshiftSeason(number, seriesID, sourceID int64, image *string) *catalog.Season {
	name := fmt.Sprintf("Season %d", number)
	if number == catalog.UncategorizedSeason {
		name = "Uncategorized"
	}
	return &catalog.Season{
		Name:         name,
		Image:        image,
		SeriesID:     seriesID,
		SeasonNumber: number,
		SourceID:     sourceID,
	}
}

// SeasonRow converts season metadata into a catalog season.
func SeasonRow(info SeasonInfo, seriesID, sourceID int64) *catalog.Season {
	return &catalog.Season{
		Name:         fmt.Sprintf("Season %d", info.SeasonNumber.Int64),
		Image:        info.Image(),
		SeriesID:     seriesID,
		SeasonNumber: info.SeasonNumber.Int64,
		SourceID:     sourceID,
	}
}
