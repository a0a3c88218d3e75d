package ingest

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"github.com/opentv/opentv/internal/catalog"
	"github.com/opentv/opentv/internal/metrics"
	"github.com/opentv/opentv/internal/stalker"
	"github.com/opentv/opentv/internal/store"
)

func (e *Engine) stalkerClient(src *catalog.Source) (*stalker.Client, error) {
	var rawURL, mac string
	if src.URL != nil {
		rawURL = *src.URL
	}
	if src.MAC != nil {
		mac = *src.MAC
	}
	return stalker.NewClient(rawURL, mac, src.EffectiveUserAgent(),
		e.cfg.StalkerPageConcurrency, e.cfg.StalkerPageRate,
		e.log.With().Str("source", src.Name).Logger())
}

// stalkerPipeline is one fetched portal catalog with its category map.
type stalkerPipeline struct {
	kind       stalker.ItemKind
	items      []stalker.Item
	categories map[string]string
	err        error
}

// ReadStalker ingests the portal's live, VOD and series catalogs. All
// fetching happens before the transaction opens. Failed pages within a
// catalog are already dropped by the client; a whole pipeline failing is
// tolerated unless every pipeline fails, which leaves nothing to ingest.
func (e *Engine) ReadStalker(ctx context.Context, src *catalog.Source, wipe bool) error {
	client, err := e.stalkerClient(src)
	if err != nil {
		return err
	}
	hctx, cancel := context.WithTimeout(ctx, e.cfg.HTTPTimeout)
	defer cancel()
	if err := client.Handshake(hctx); err != nil {
		return fmt.Errorf("ingest: stalker handshake: %w", err)
	}

	pipelines := []stalkerPipeline{
		{kind: stalker.KindLive},
		{kind: stalker.KindVOD},
		{kind: stalker.KindSeries},
	}
	failed := 0
	for i := range pipelines {
		p := &pipelines[i]
		p.err = e.fetchStalkerPipeline(ctx, client, p)
		if p.err != nil {
			failed++
			metrics.IncEndpointFailure(src.Kind.String(), string(p.kind))
			e.log.Error().Err(p.err).Str("source", src.Name).Str("catalog", string(p.kind)).Msg("catalog fetch failed")
		}
	}
	if failed == len(pipelines) {
		return errors.New("ingest: all stalker catalogs failed")
	}

	return e.catalogTx(ctx, src, wipe, func(tx *store.Tx) error {
		total := 0
		for _, p := range pipelines {
			if p.err != nil {
				continue
			}
			cache := store.GroupCache{}
			mt := mediaTypeForKind(p.kind)
			for _, item := range p.items {
				ch, err := stalker.ChannelFromItem(item, p.kind, src.ID, p.categories)
				if err != nil {
					e.log.Warn().Err(err).Str("source", src.Name).Msg("skipping item")
					continue
				}
				if err := tx.SetChannelGroup(cache, ch, src.ID, &mt); err != nil {
					e.log.Warn().Err(err).Str("channel", ch.Name).Msg("could not resolve group")
				}
				if _, err := tx.InsertChannel(ch); err != nil {
					e.log.Warn().Err(err).Str("channel", ch.Name).Msg("could not insert channel")
					continue
				}
				total++
			}
		}
		metrics.RecordChannelsIngested(src.Name, src.Kind.String(), total)
		e.log.Info().Str("source", src.Name).Int("channels", total).Msg("stalker catalog ingested")
		return nil
	})
}

func (e *Engine) fetchStalkerPipeline(ctx context.Context, client *stalker.Client, p *stalkerPipeline) error {
	fctx, cancel := context.WithTimeout(ctx, e.cfg.HTTPTimeout)
	defer cancel()
	var err error
	if p.kind == stalker.KindLive {
		p.categories, err = client.Genres(fctx)
	} else {
		p.categories, err = client.Categories(fctx, p.kind)
	}
	if err != nil {
		return err
	}
	p.items, err = client.Items(fctx, p.kind)
	return err
}

func mediaTypeForKind(kind stalker.ItemKind) catalog.MediaType {
	switch kind {
	case stalker.KindVOD:
		return catalog.Movie
	case stalker.KindSeries:
		return catalog.Serie
	default:
		return catalog.Livestream
	}
}

var seasonNumberRe = regexp.MustCompile(`(\d+)\s*$`)

// fetchStalkerEpisodes expands a portal series: each returned item is one
// season carrying the episode numbers it contains. Episode rows keep the
// season's cmd as their URL; CreateStream resolves it with the episode number
// at watch time.
func (e *Engine) fetchStalkerEpisodes(ctx context.Context, src *catalog.Source, ch *catalog.Channel) error {
	seriesID, err := strconv.ParseInt(*ch.URL, 10, 64)
	if err != nil {
		return fmt.Errorf("ingest: series id %q: %w", *ch.URL, err)
	}
	var has bool
	if err := e.store.DoTx(ctx, func(tx *store.Tx) error {
		var err error
		has, err = tx.SeriesHasEpisodes(seriesID, src.ID)
		return err
	}); err != nil {
		return err
	}
	if has {
		return nil
	}

	client, err := e.stalkerClient(src)
	if err != nil {
		return err
	}
	fctx, cancel := context.WithTimeout(ctx, e.cfg.HTTPTimeout)
	defer cancel()
	if err := client.Handshake(fctx); err != nil {
		return fmt.Errorf("ingest: stalker handshake: %w", err)
	}
	seasons, err := client.SeriesEpisodes(fctx, *ch.URL)
	if err != nil {
		return err
	}

	return e.store.DoTx(ctx, func(tx *store.Tx) error {
		inserted := 0
		for i, season := range seasons {
			number := int64(i + 1)
			if m := seasonNumberRe.FindStringSubmatch(season.Name); m != nil {
				if n, err := strconv.ParseInt(m[1], 10, 64); err == nil {
					number = n
				}
			}
			row := &catalog.Season{
				Name:         season.Name,
				Image:        ch.Image,
				SeriesID:     seriesID,
				SeasonNumber: number,
				SourceID:     src.ID,
			}
			seasonID, err := tx.InsertSeason(row)
			if err != nil {
				return err
			}
			for _, epNum := range season.SeriesNumbers {
				if !epNum.Valid {
					continue
				}
				epCh := &catalog.Channel{
					Name:       fmt.Sprintf("%s. Episode %d", season.Name, epNum.Int64),
					Image:      ch.Image,
					URL:        catalog.StrPtr(season.Cmd),
					MediaType:  catalog.Movie,
					SourceID:   src.ID,
					SeriesID:   &seriesID,
					SeasonID:   &seasonID,
					EpisodeNum: epNum.Ptr(),
				}
				if _, err := tx.InsertChannel(epCh); err != nil {
					e.log.Warn().Err(err).Str("episode", epCh.Name).Msg("could not insert episode")
					continue
				}
				inserted++
			}
		}
		e.log.Info().Str("series", ch.Name).Int("episodes", inserted).Msg("episodes ingested")
		return nil
	})
}

// CreateStream resolves a channel's stored portal cmd into a concrete
// playback URL. Only Stalker channels need this indirection; everything else
// already stores a playable URL.
func (e *Engine) CreateStream(ctx context.Context, ch *catalog.Channel) (string, error) {
	src, err := e.store.SourceByID(ctx, ch.SourceID)
	if err != nil {
		return "", fmt.Errorf("ingest: load source: %w", err)
	}
	if src.Kind != catalog.KindStalker {
		if ch.URL == nil {
			return "", errors.New("ingest: channel has no URL")
		}
		return *ch.URL, nil
	}
	if ch.URL == nil {
		return "", errors.New("ingest: channel has no portal cmd")
	}
	client, err := e.stalkerClient(&src)
	if err != nil {
		return "", err
	}
	fctx, cancel := context.WithTimeout(ctx, e.cfg.HTTPTimeout)
	defer cancel()
	if err := client.Handshake(fctx); err != nil {
		return "", fmt.Errorf("ingest: stalker handshake: %w", err)
	}
	kind := stalker.KindLive
	if ch.MediaType == catalog.Movie {
		kind = stalker.KindVOD
	}
	return client.CreateLink(fctx, kind, *ch.URL, ch.EpisodeNum)
}
