package store

import (
	"database/sql"
	"fmt"

	"github.com/opentv/opentv/internal/catalog"
)

// CreateOrFindSourceByName returns the id of the source with src.Name,
// inserting it with all connection parameters when absent.
func (t *Tx) CreateOrFindSourceByName(src *catalog.Source) (int64, error) {
	var id int64
	err := t.tx.QueryRow(`SELECT id FROM sources WHERE name = ?`, src.Name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, fmt.Errorf("find source %q: %w", src.Name, err)
	}
	res, err := t.tx.Exec(`
		INSERT INTO sources (name, source_type, url, username, password, mac, user_agent, max_streams, use_tvg_id, enabled)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		src.Name, int(src.Kind), src.URL, src.Username, src.Password, src.MAC,
		src.UserAgent, src.MaxStreams, boolInt(src.UseTvgID), boolInt(src.Enabled),
	)
	if err != nil {
		return 0, fmt.Errorf("insert source %q: %w", src.Name, err)
	}
	return res.LastInsertId()
}

// GroupCache memoizes (group name -> id) for one refresh so repeated group
// references don't round-trip to storage.
type GroupCache map[string]int64

// SetChannelGroup resolves ch.GroupName to a group id (creating the group on
// first reference) and stores it in ch.GroupID. No-op when the channel has no
// group. mediaType is the group's media-type hint; nil for mixed/legacy groups.
func (t *Tx) SetChannelGroup(cache GroupCache, ch *catalog.Channel, sourceID int64, mediaType *catalog.MediaType) error {
	if ch.GroupName == nil || *ch.GroupName == "" {
		return nil
	}
	name := *ch.GroupName
	if id, ok := cache[name]; ok {
		ch.GroupID = &id
		return nil
	}
	id, err := t.GetOrInsertGroup(name, sourceID, mediaType)
	if err != nil {
		return err
	}
	cache[name] = id
	ch.GroupID = &id
	return nil
}

// GetOrInsertGroup inserts the (name, source) group if missing and returns its
// id. Existing groups are never updated by ingestion.
func (t *Tx) GetOrInsertGroup(name string, sourceID int64, mediaType *catalog.MediaType) (int64, error) {
	var mt any
	if mediaType != nil {
		mt = int(*mediaType)
	}
	res, err := t.tx.Exec(
		`INSERT OR IGNORE INTO groups (name, source_id, media_type) VALUES (?, ?, ?)`,
		name, sourceID, mt,
	)
	if err != nil {
		return 0, fmt.Errorf("insert group %q: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return res.LastInsertId()
	}
	var id int64
	if err := t.tx.QueryRow(
		`SELECT id FROM groups WHERE name = ? AND source_id = ?`, name, sourceID,
	).Scan(&id); err != nil {
		return 0, fmt.Errorf("find group %q: %w", name, err)
	}
	return id, nil
}

// InsertChannel upserts a channel row on the identity key
// (name, source_id, url, series_id, season_id). On conflict the mutable fields
// are overwritten while user-curated state (favorite, last_watched, hidden)
// is left alone. Returns the channel's row id.
func (t *Tx) InsertChannel(ch *catalog.Channel) (int64, error) {
	var id int64
	err := t.tx.QueryRow(`
		INSERT INTO channels
			(name, group_id, image, url, media_type, source_id, stream_id, series_id, season_id, episode_num, tv_archive)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (name, source_id, coalesce(url, ''), coalesce(series_id, -1), coalesce(season_id, -1))
		DO UPDATE SET
			group_id = excluded.group_id,
			image = excluded.image,
			url = excluded.url,
			media_type = excluded.media_type,
			stream_id = excluded.stream_id,
			episode_num = excluded.episode_num,
			tv_archive = excluded.tv_archive
		RETURNING id`,
		ch.Name, ch.GroupID, ch.Image, ch.URL, int(ch.MediaType), ch.SourceID,
		ch.StreamID, ch.SeriesID, ch.SeasonID, ch.EpisodeNum, boolIntPtr(ch.TvArchive),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert channel %q: %w", ch.Name, err)
	}
	ch.ID = id
	return id, nil
}

// InsertChannelHeaders persists the HTTP header directives for a channel.
// Callers must not pass an empty header set (see ChannelHTTPHeaders.Empty).
func (t *Tx) InsertChannelHeaders(h *catalog.ChannelHTTPHeaders) error {
	_, err := t.tx.Exec(`
		INSERT INTO channel_http_headers (channel_id, referrer, user_agent, http_origin)
		VALUES (?, ?, ?, ?)`,
		h.ChannelID, h.Referrer, h.UserAgent, h.HTTPOrigin,
	)
	if err != nil {
		return fmt.Errorf("insert channel headers: %w", err)
	}
	return nil
}

// InsertSeason upserts a season on (series_id, season_number, source_id),
// overwriting name and image on conflict. Returns the season's row id.
func (t *Tx) InsertSeason(season *catalog.Season) (int64, error) {
	var id int64
	err := t.tx.QueryRow(`
		INSERT INTO seasons (name, image, series_id, season_number, source_id)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (series_id, season_number, source_id)
		DO UPDATE SET name = excluded.name, image = excluded.image
		RETURNING id`,
		season.Name, season.Image, season.SeriesID, season.SeasonNumber, season.SourceID,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert season %d: %w", season.SeasonNumber, err)
	}
	season.ID = id
	return id, nil
}

// Wipe deletes the source's entire catalog: channels (headers cascade),
// seasons and groups. The source row itself survives.
func (t *Tx) Wipe(sourceID int64) error {
	for _, q := range []string{
		`DELETE FROM channels WHERE source_id = ?`,
		`DELETE FROM seasons WHERE source_id = ?`,
		`DELETE FROM groups WHERE source_id = ?`,
	} {
		if _, err := t.tx.Exec(q, sourceID); err != nil {
			return fmt.Errorf("wipe source %d: %w", sourceID, err)
		}
	}
	return nil
}

// ChannelPreserve snapshots user-curated state for the source's channels that
// carry any (favorite or last-watched). Series episodes are excluded; they are
// re-fetched on demand and not preserved across a refresh.
func (t *Tx) ChannelPreserve(sourceID int64) ([]catalog.ChannelPreserve, error) {
	rows, err := t.tx.Query(`
		SELECT name, favorite, last_watched, hidden FROM channels
		WHERE source_id = ? AND (favorite = 1 OR last_watched IS NOT NULL)
		AND series_id IS NULL`,
		sourceID,
	)
	if err != nil {
		return nil, fmt.Errorf("snapshot preserve: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []catalog.ChannelPreserve
	for rows.Next() {
		var p catalog.ChannelPreserve
		var fav, hidden int
		var lastWatched sql.NullInt64
		if err := rows.Scan(&p.Name, &fav, &lastWatched, &hidden); err != nil {
			return nil, err
		}
		p.Favorite = fav == 1
		p.Hidden = hidden == 1
		if lastWatched.Valid {
			p.LastWatched = &lastWatched.Int64
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// RestorePreserve replays a snapshot onto freshly inserted channels by name
// match. Channels the upstream renamed or removed simply don't match; that is
// not an error.
func (t *Tx) RestorePreserve(sourceID int64, snapshot []catalog.ChannelPreserve) error {
	stmt, err := t.tx.Prepare(`
		UPDATE channels SET favorite = ?, last_watched = ?, hidden = ?
		WHERE source_id = ? AND name = ?`)
	if err != nil {
		return fmt.Errorf("restore preserve: %w", err)
	}
	defer func() { _ = stmt.Close() }()
	for _, p := range snapshot {
		if _, err := stmt.Exec(boolInt(p.Favorite), p.LastWatched, boolInt(p.Hidden), sourceID, p.Name); err != nil {
			return fmt.Errorf("restore preserve %q: %w", p.Name, err)
		}
	}
	return nil
}

// SeriesHasEpisodes reports whether episodes for the series are already
// persisted; used to short-circuit redundant episode fetches.
func (t *Tx) SeriesHasEpisodes(seriesID, sourceID int64) (bool, error) {
	var one int
	err := t.tx.QueryRow(`
		SELECT 1 FROM channels WHERE series_id = ? AND source_id = ? LIMIT 1`,
		seriesID, sourceID,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Analyze refreshes SQLite's query planner statistics after a bulk ingest.
func (t *Tx) Analyze() error {
	_, err := t.tx.Exec(`ANALYZE`)
	return err
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func boolIntPtr(b *bool) any {
	if b == nil {
		return nil
	}
	return boolInt(*b)
}
