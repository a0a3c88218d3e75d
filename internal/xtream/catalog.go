package xtream

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/opentv/opentv/internal/catalog"
)

// Stream is one row of get_live_streams, get_vod_streams or get_series.
// Panels are loose about numeric fields, so ids arrive as FlexInt/FlexString.
type Stream struct {
	StreamID           catalog.FlexInt    `json:"stream_id"`
	Name               string             `json:"name"`
	CategoryID         catalog.FlexString `json:"category_id"`
	StreamIcon         *string            `json:"stream_icon"`
	SeriesID           catalog.FlexString `json:"series_id"`
	Cover              *string            `json:"cover"`
	ContainerExtension *string            `json:"container_extension"`
	TvArchive          catalog.FlexInt    `json:"tv_archive"`
}

// Category is one row of the get_*_categories endpoints.
type Category struct {
	CategoryID   catalog.FlexString `json:"category_id"`
	CategoryName string             `json:"category_name"`
}

// Catalog holds the results of the six catalog endpoints. Each of the three
// content pipelines carries its own error; a failed categories fetch fails the
// pipeline it belongs to, since streams can't be grouped without it.
type Catalog struct {
	Live           []Stream
	LiveCategories []Category
	LiveErr        error

	VOD           []Stream
	VODCategories []Category
	VODErr        error

	Series           []Stream
	SeriesCategories []Category
	SeriesErr        error
}

// FailedPipelines counts how many of the three content pipelines failed.
func (c *Catalog) FailedPipelines() int {
	n := 0
	for _, err := range []error{c.LiveErr, c.VODErr, c.SeriesErr} {
		if err != nil {
			n++
		}
	}
	return n
}

// FetchCatalog hits all six catalog endpoints concurrently and joins the
// results. Pipeline failures are recorded per pipeline instead of aborting the
// whole fetch; the caller decides how many failures it tolerates.
func (c *Client) FetchCatalog(ctx context.Context) *Catalog {
	out := &Catalog{}
	var liveCatsErr, vodCatsErr, seriesCatsErr error

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { out.LiveErr = c.getJSON(ctx, actionLiveStreams, nil, &out.Live); return nil })
	g.Go(func() error { liveCatsErr = c.getJSON(ctx, actionLiveCategories, nil, &out.LiveCategories); return nil })
	g.Go(func() error { out.VODErr = c.getJSON(ctx, actionVODStreams, nil, &out.VOD); return nil })
	g.Go(func() error { vodCatsErr = c.getJSON(ctx, actionVODCategories, nil, &out.VODCategories); return nil })
	g.Go(func() error { out.SeriesErr = c.getJSON(ctx, actionSeries, nil, &out.Series); return nil })
	g.Go(func() error { seriesCatsErr = c.getJSON(ctx, actionSeriesCategories, nil, &out.SeriesCategories); return nil })
	_ = g.Wait()

	if out.LiveErr == nil {
		out.LiveErr = liveCatsErr
	}
	if out.VODErr == nil {
		out.VODErr = vodCatsErr
	}
	if out.SeriesErr == nil {
		out.SeriesErr = seriesCatsErr
	}
	return out
}

// CategoryNames indexes categories by id for group name lookups.
func CategoryNames(cats []Category) map[string]string {
	out := make(map[string]string, len(cats))
	for _, c := range cats {
		if !c.CategoryID.Empty() {
			out[c.CategoryID.String()] = c.CategoryName
		}
	}
	return out
}

// StreamURL synthesizes the playback URL for a stream id. The extension
// defaults to "ts" when the panel omits one.
func (c *Client) StreamURL(streamID string, mt catalog.MediaType, ext *string) (string, error) {
	var kind string
	switch mt {
	case catalog.Livestream:
		kind = "live"
	case catalog.Movie:
		kind = "movie"
	case catalog.Serie:
		kind = "series"
	default:
		return "", fmt.Errorf("xtream: no stream URL for media type %d", mt)
	}
	e := liveStreamExtension
	if ext != nil && *ext != "" {
		e = *ext
	}
	return fmt.Sprintf("%s/%s/%s/%s/%s.%s", c.origin, kind, c.username, c.password, streamID, e), nil
}

// ChannelFromStream converts one catalog row into a channel. Series containers
// store the upstream series id in the URL column; live and VOD rows get a
// synthesized playback URL.
func (c *Client) ChannelFromStream(s Stream, mt catalog.MediaType, sourceID int64, categories map[string]string) (*catalog.Channel, error) {
	name := strings.TrimSpace(s.Name)
	if name == "" {
		return nil, errors.New("xtream: stream has no name")
	}
	ch := &catalog.Channel{
		Name:      name,
		MediaType: mt,
		SourceID:  sourceID,
		StreamID:  s.StreamID.Ptr(),
	}
	if !s.CategoryID.Empty() {
		if group, ok := categories[s.CategoryID.String()]; ok {
			ch.GroupName = catalog.StrPtr(strings.TrimSpace(group))
		}
	}
	if s.StreamIcon != nil && strings.TrimSpace(*s.StreamIcon) != "" {
		ch.Image = catalog.StrPtr(strings.TrimSpace(*s.StreamIcon))
	} else if s.Cover != nil && strings.TrimSpace(*s.Cover) != "" {
		ch.Image = catalog.StrPtr(strings.TrimSpace(*s.Cover))
	}
	if mt == catalog.Serie {
		if s.SeriesID.Empty() {
			return nil, fmt.Errorf("xtream: series %q has no series id", name)
		}
		ch.URL = catalog.StrPtr(s.SeriesID.String())
	} else {
		if !s.StreamID.Valid {
			return nil, fmt.Errorf("xtream: stream %q has no stream id", name)
		}
		u, err := c.StreamURL(fmt.Sprint(s.StreamID.Int64), mt, s.ContainerExtension)
		if err != nil {
			return nil, err
		}
		ch.URL = &u
	}
	if s.TvArchive.Valid {
		ch.TvArchive = catalog.BoolPtr(s.TvArchive.Int64 == 1)
	}
	return ch, nil
}
