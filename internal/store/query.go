package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/opentv/opentv/internal/catalog"
)

const sourceColumns = `id, name, source_type, url, username, password, mac, user_agent, max_streams, use_tvg_id, enabled`

func scanSource(row interface{ Scan(...any) error }) (catalog.Source, error) {
	var s catalog.Source
	var kind int
	var useTvgID, enabled int
	err := row.Scan(&s.ID, &s.Name, &kind, &s.URL, &s.Username, &s.Password,
		&s.MAC, &s.UserAgent, &s.MaxStreams, &useTvgID, &enabled)
	if err != nil {
		return s, err
	}
	s.Kind = catalog.SourceKind(kind)
	s.UseTvgID = useTvgID == 1
	s.Enabled = enabled == 1
	return s, nil
}

// Sources returns all configured sources ordered by name.
func (s *Store) Sources(ctx context.Context) ([]catalog.Source, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sourceColumns+` FROM sources ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []catalog.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	return out, rows.Err()
}

// EnabledSources returns the sources eligible for refresh-all.
func (s *Store) EnabledSources(ctx context.Context) ([]catalog.Source, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sourceColumns+` FROM sources WHERE enabled = 1 ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []catalog.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	return out, rows.Err()
}

// SourceByID fetches one source; returns sql.ErrNoRows when absent.
func (s *Store) SourceByID(ctx context.Context, id int64) (catalog.Source, error) {
	return scanSource(s.db.QueryRowContext(ctx, `SELECT `+sourceColumns+` FROM sources WHERE id = ?`, id))
}

// SourceByName fetches one source by its unique name; returns sql.ErrNoRows
// when absent.
func (s *Store) SourceByName(ctx context.Context, name string) (catalog.Source, error) {
	return scanSource(s.db.QueryRowContext(ctx, `SELECT `+sourceColumns+` FROM sources WHERE name = ?`, name))
}

// DeleteSource removes a source; groups, channels and seasons cascade.
func (s *Store) DeleteSource(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sources WHERE id = ?`, id)
	return err
}

// UpdateSource persists settings edits for an existing source.
func (s *Store) UpdateSource(ctx context.Context, src *catalog.Source) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sources SET url = ?, username = ?, password = ?, mac = ?, user_agent = ?,
			max_streams = ?, use_tvg_id = ?, enabled = ?
		WHERE id = ?`,
		src.URL, src.Username, src.Password, src.MAC, src.UserAgent,
		src.MaxStreams, boolInt(src.UseTvgID), boolInt(src.Enabled), src.ID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update source %d: %w", src.ID, sql.ErrNoRows)
	}
	return nil
}

const channelColumns = `id, name, group_id, image, url, media_type, source_id, stream_id, series_id, season_id, episode_num, favorite, last_watched, hidden, tv_archive`

func scanChannel(row interface{ Scan(...any) error }) (catalog.Channel, error) {
	var c catalog.Channel
	var mt, fav, hidden int
	var lastWatched sql.NullInt64
	var tvArchive sql.NullInt64
	err := row.Scan(&c.ID, &c.Name, &c.GroupID, &c.Image, &c.URL, &mt, &c.SourceID,
		&c.StreamID, &c.SeriesID, &c.SeasonID, &c.EpisodeNum, &fav, &lastWatched, &hidden, &tvArchive)
	if err != nil {
		return c, err
	}
	c.MediaType = catalog.MediaType(mt)
	c.Favorite = fav == 1
	c.Hidden = hidden == 1
	if lastWatched.Valid {
		c.LastWatched = &lastWatched.Int64
	}
	if tvArchive.Valid {
		b := tvArchive.Int64 == 1
		c.TvArchive = &b
	}
	return c, nil
}

// ChannelByID fetches one channel; returns sql.ErrNoRows when absent.
func (s *Store) ChannelByID(ctx context.Context, id int64) (catalog.Channel, error) {
	return scanChannel(s.db.QueryRowContext(ctx, `SELECT `+channelColumns+` FROM channels WHERE id = ?`, id))
}

// ChannelQuery filters SearchChannels. Zero values mean "no filter".
type ChannelQuery struct {
	Name          string // substring match, case-insensitive (LIKE)
	SourceID      int64
	MediaTypes    []catalog.MediaType
	GroupID       int64
	FavoritesOnly bool
	IncludeHidden bool
	SeriesID      int64 // episodes of one series
	Limit         int
	Offset        int
}

// SearchChannels returns channels matching q ordered by name.
func (s *Store) SearchChannels(ctx context.Context, q ChannelQuery) ([]catalog.Channel, error) {
	query := `SELECT ` + channelColumns + ` FROM channels WHERE 1=1`
	var args []any
	if q.Name != "" {
		query += ` AND name LIKE ? COLLATE NOCASE`
		args = append(args, "%"+q.Name+"%")
	}
	if q.SourceID != 0 {
		query += ` AND source_id = ?`
		args = append(args, q.SourceID)
	}
	if len(q.MediaTypes) > 0 {
		query += ` AND media_type IN (`
		for i, mt := range q.MediaTypes {
			if i > 0 {
				query += `,`
			}
			query += `?`
			args = append(args, int(mt))
		}
		query += `)`
	}
	if q.GroupID != 0 {
		query += ` AND group_id = ?`
		args = append(args, q.GroupID)
	}
	if q.SeriesID != 0 {
		query += ` AND series_id = ?`
		args = append(args, q.SeriesID)
	}
	if q.FavoritesOnly {
		query += ` AND favorite = 1`
	}
	if !q.IncludeHidden {
		query += ` AND hidden = 0`
	}
	query += ` ORDER BY name`
	if q.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, q.Limit, q.Offset)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []catalog.Channel
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

// CountChannels returns the channel count for a source (0 = all sources).
func (s *Store) CountChannels(ctx context.Context, sourceID int64) (int, error) {
	query, args := `SELECT COUNT(*) FROM channels`, []any{}
	if sourceID != 0 {
		query += ` WHERE source_id = ?`
		args = append(args, sourceID)
	}
	var n int
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&n)
	return n, err
}

// SetFavorite toggles a channel's favorite flag.
func (s *Store) SetFavorite(ctx context.Context, channelID int64, favorite bool) error {
	_, err := s.db.ExecContext(ctx, `UPDATE channels SET favorite = ? WHERE id = ?`, boolInt(favorite), channelID)
	return err
}

// SetHidden toggles a channel's hidden flag.
func (s *Store) SetHidden(ctx context.Context, channelID int64, hidden bool) error {
	_, err := s.db.ExecContext(ctx, `UPDATE channels SET hidden = ? WHERE id = ?`, boolInt(hidden), channelID)
	return err
}

// SetFavoriteByName marks channels by (source, name); used when replaying a
// favorites backup. A name that no longer exists matches nothing, which is
// fine. Returns how many rows matched.
func (s *Store) SetFavoriteByName(ctx context.Context, sourceID int64, name string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE channels SET favorite = 1 WHERE source_id = ? AND name = ?`, sourceID, name)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// SetLastWatched records the last-watched timestamp (unix seconds).
func (s *Store) SetLastWatched(ctx context.Context, channelID int64, watchedAt int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE channels SET last_watched = ? WHERE id = ?`, watchedAt, channelID)
	return err
}

// Groups returns a source's groups ordered by name.
func (s *Store) Groups(ctx context.Context, sourceID int64) ([]catalog.Group, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, image, source_id, media_type FROM groups WHERE source_id = ? ORDER BY name`, sourceID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []catalog.Group
	for rows.Next() {
		var g catalog.Group
		var mt sql.NullInt64
		if err := rows.Scan(&g.ID, &g.Name, &g.Image, &g.SourceID, &mt); err != nil {
			return nil, err
		}
		if mt.Valid {
			m := catalog.MediaType(mt.Int64)
			g.MediaType = &m
		}
		out = append(out, g)
	}
	return out, rows.Err()
}
