// Package catalog holds the normalized relational model shared by every
// ingestion path: sources, groups, channels, seasons and the ephemeral
// per-refresh preserve snapshot.
package catalog

import "strings"

// MediaType classifies what a channel row is.
type MediaType int

const (
	Livestream MediaType = 1 // live stream with a direct playback URL
	Movie      MediaType = 2 // VOD entry; also used for series episodes
	Serie      MediaType = 3 // series container; URL holds the upstream series id
	GroupRow   MediaType = 4 // group marker
	SeasonRow  MediaType = 5 // season marker
)

// SourceKind identifies which ingestion path a source uses.
type SourceKind int

const (
	KindM3UFile SourceKind = 1
	KindM3ULink SourceKind = 2
	KindXtream  SourceKind = 3
	KindStalker SourceKind = 4
	KindCustom  SourceKind = 5
)

func (k SourceKind) String() string {
	switch k {
	case KindM3UFile:
		return "m3u_file"
	case KindM3ULink:
		return "m3u_link"
	case KindXtream:
		return "xtream"
	case KindStalker:
		return "stalker"
	case KindCustom:
		return "custom"
	}
	return "unknown"
}

// Source is one configured provider. Identity (ID) is assigned on first
// persistence; Name is unique across all sources.
type Source struct {
	ID         int64      `json:"id"`
	Name       string     `json:"name"`
	Kind       SourceKind `json:"kind"`
	URL        *string    `json:"url,omitempty"`      // file path, M3U link, or panel base URL
	Username   *string    `json:"username,omitempty"` // Xtream
	Password   *string    `json:"password,omitempty"` // Xtream
	MAC        *string    `json:"mac,omitempty"`      // Stalker
	UserAgent  *string    `json:"user_agent,omitempty"`
	MaxStreams int        `json:"max_streams"`
	UseTvgID   bool       `json:"use_tvg_id"` // prefer tvg-id over trailing display name as fallback
	Enabled    bool       `json:"enabled"`
}

// DefaultUserAgent is sent upstream when a source has no user agent of its own.
const DefaultUserAgent = "OpenTV"

// EffectiveUserAgent returns the source's user agent, or DefaultUserAgent when
// it is empty or whitespace-only.
func (s *Source) EffectiveUserAgent() string {
	if s.UserAgent == nil {
		return DefaultUserAgent
	}
	if ua := strings.TrimSpace(*s.UserAgent); ua != "" {
		return ua
	}
	return DefaultUserAgent
}

// Group is a named category scoped to one source; (Name, SourceID) is unique.
// MediaType is nil for legacy/mixed groups.
type Group struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	Image     *string    `json:"image,omitempty"`
	SourceID  int64      `json:"source_id"`
	MediaType *MediaType `json:"media_type,omitempty"`
}

// Channel is a playable unit. For series containers, URL stores the upstream
// series id instead of a playback URL. The compound identity
// (Name, SourceID, URL, SeriesID, SeasonID) is what makes re-ingestion
// idempotent.
type Channel struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	GroupName   *string   `json:"group,omitempty"` // pre-reconcile; resolved to GroupID during ingest
	GroupID     *int64    `json:"group_id,omitempty"`
	Image       *string   `json:"image,omitempty"`
	URL         *string   `json:"url,omitempty"`
	MediaType   MediaType `json:"media_type"`
	SourceID    int64     `json:"source_id"`
	StreamID    *int64    `json:"stream_id,omitempty"`
	SeriesID    *int64    `json:"series_id,omitempty"`
	SeasonID    *int64    `json:"season_id,omitempty"`
	EpisodeNum  *int64    `json:"episode_num,omitempty"`
	Favorite    bool      `json:"favorite"`
	LastWatched *int64    `json:"last_watched,omitempty"` // unix seconds
	Hidden      bool      `json:"hidden"`
	TvArchive   *bool     `json:"tv_archive,omitempty"`
}

// Season groups episodes of a series; (SeriesID, SeasonNumber, SourceID) is
// unique. A synthetic "Uncategorized" season (see UncategorizedSeason) is used
// when upstream omits a season number.
type Season struct {
	ID           int64   `json:"id"`
	Name         string  `json:"name"`
	Image        *string `json:"image,omitempty"`
	SeriesID     int64   `json:"series_id"`
	SeasonNumber int64   `json:"season_number"`
	SourceID     int64   `json:"source_id"`
}

// UncategorizedSeason is the sentinel season number for episodes whose
// upstream season is absent or unparseable.
const UncategorizedSeason int64 = -9999

// ChannelHTTPHeaders carries per-channel HTTP header directives collected from
// #EXTVLCOPT lines. A value is only persisted when at least one field is set.
type ChannelHTTPHeaders struct {
	ID         int64   `json:"id"`
	ChannelID  int64   `json:"channel_id"`
	Referrer   *string `json:"referrer,omitempty"`
	UserAgent  *string `json:"user_agent,omitempty"`
	HTTPOrigin *string `json:"http_origin,omitempty"`
}

// Empty reports whether no header directive line populated a known field.
func (h *ChannelHTTPHeaders) Empty() bool {
	return h.Referrer == nil && h.UserAgent == nil && h.HTTPOrigin == nil
}

// ChannelPreserve is the ephemeral snapshot of user-curated state taken before
// a wipe-refresh and replayed by name match after reinsertion. It never
// outlives the refresh transaction (except through explicit favorites backup).
type ChannelPreserve struct {
	Name        string `json:"name"`
	Favorite    bool   `json:"favorite"`
	LastWatched *int64 `json:"last_watched,omitempty"`
	Hidden      bool   `json:"hidden"`
}

// EPG is one normalized short-EPG entry for a live channel.
type EPG struct {
	EPGID          string  `json:"epg_id"`
	Title          string  `json:"title"`
	Description    string  `json:"description"`
	StartTime      string  `json:"start_time"` // human-readable, local time
	EndTime        string  `json:"end_time"`
	StartTimestamp int64   `json:"start_timestamp"`
	TimeshiftURL   *string `json:"timeshift_url,omitempty"`
	HasArchive     bool    `json:"has_archive"`
	NowPlaying     bool    `json:"now_playing"`
}

// StrPtr returns a pointer to s; a convenience for optional columns.
func StrPtr(s string) *string { return &s }

// Int64Ptr returns a pointer to v.
func Int64Ptr(v int64) *int64 { return &v }

// BoolPtr returns a pointer to v.
func BoolPtr(v bool) *bool { return &v }
