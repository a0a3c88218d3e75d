package xtream

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/opentv/opentv/internal/catalog"
)

// epgTimeLayout formats programme times for display in local time.
const epgTimeLayout = "January 02, 15:04"

// timeshiftClockLayout is how panels encode start/stop in epg listings.
const timeshiftClockLayout = "2006-01-02 15:04:05"

type epgResponse struct {
	EPGListings []epgItem `json:"epg_listings"`
}

type epgItem struct {
	ID             catalog.FlexString `json:"id"`
	Title          string             `json:"title"`
	Description    string             `json:"description"`
	StartTimestamp catalog.FlexInt    `json:"start_timestamp"`
	StopTimestamp  catalog.FlexInt    `json:"stop_timestamp"`
	NowPlaying     catalog.FlexInt    `json:"now_playing"`
	HasArchive     catalog.FlexInt    `json:"has_archive"`
	Start          string             `json:"start"`
	End            string             `json:"end"`
}

// ShortEPG fetches the short programme guide for one live stream. Titles and
// descriptions arrive base64-encoded. Programmes that already ended and have
// no catch-up archive are dropped; archived ones get a timeshift URL.
func (c *Client) ShortEPG(ctx context.Context, streamID int64) ([]catalog.EPG, error) {
	var resp epgResponse
	extra := url.Values{"stream_id": []string{strconv.FormatInt(streamID, 10)}}
	if err := c.getJSON(ctx, actionShortEPG, extra, &resp); err != nil {
		return nil, err
	}

	now := c.now()
	var out []catalog.EPG
	for _, item := range resp.EPGListings {
		e, err := c.convertEPG(item, streamID)
		if err != nil {
			c.log.Warn().Err(err).Msg("skipping epg entry")
			continue
		}
		start := time.Unix(e.StartTimestamp, 0)
		if start.Before(now) && !e.HasArchive && !e.NowPlaying {
			continue
		}
		out = append(out, *e)
	}
	return out, nil
}

func (c *Client) convertEPG(item epgItem, streamID int64) (*catalog.EPG, error) {
	if item.ID.Empty() {
		return nil, fmt.Errorf("epg entry has no id")
	}
	if !item.StartTimestamp.Valid || !item.StopTimestamp.Valid {
		return nil, fmt.Errorf("epg entry %s has no timestamps", item.ID)
	}
	title, err := base64.StdEncoding.DecodeString(item.Title)
	if err != nil {
		return nil, fmt.Errorf("epg entry %s: decode title: %w", item.ID, err)
	}
	desc, err := base64.StdEncoding.DecodeString(item.Description)
	if err != nil {
		return nil, fmt.Errorf("epg entry %s: decode description: %w", item.ID, err)
	}
	e := &catalog.EPG{
		EPGID:          item.ID.String(),
		Title:          string(title),
		Description:    string(desc),
		StartTime:      time.Unix(item.StartTimestamp.Int64, 0).Local().Format(epgTimeLayout),
		EndTime:        time.Unix(item.StopTimestamp.Int64, 0).Local().Format(epgTimeLayout),
		StartTimestamp: item.StartTimestamp.Int64,
		HasArchive:     item.HasArchive.Valid && item.HasArchive.Int64 == 1,
		NowPlaying:     item.NowPlaying.Valid && item.NowPlaying.Int64 == 1,
	}
	if e.HasArchive {
		ts, err := c.timeshiftURL(item.Start, item.End, streamID)
		if err != nil {
			return nil, fmt.Errorf("epg entry %s: %w", item.ID, err)
		}
		e.TimeshiftURL = &ts
	}
	return e, nil
}

// timeshiftURL builds the catch-up playback URL for an archived programme:
// origin/streaming/timeshift.php with credentials, stream id, the programme
// start (YYYY-MM-DD:HH-MM) and its duration in minutes.
func (c *Client) timeshiftURL(start, end string, streamID int64) (string, error) {
	startT, err := time.Parse(timeshiftClockLayout, start)
	if err != nil {
		return "", fmt.Errorf("parse start %q: %w", start, err)
	}
	endT, err := time.Parse(timeshiftClockLayout, end)
	if err != nil {
		return "", fmt.Errorf("parse end %q: %w", end, err)
	}
	duration := int64(endT.Sub(startT).Minutes())

	u, err := url.Parse(c.origin)
	if err != nil {
		return "", err
	}
	u.Path = "/streaming/timeshift.php"
	q := url.Values{}
	q.Set("username", c.username)
	q.Set("password", c.password)
	q.Set("stream", strconv.FormatInt(streamID, 10))
	q.Set("start", startT.Format("2006-01-02:15-04"))
	q.Set("duration", strconv.FormatInt(duration, 10))
	u.RawQuery = q.Encode()
	return u.String(), nil
}
