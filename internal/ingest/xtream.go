package ingest

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/opentv/opentv/internal/catalog"
	"github.com/opentv/opentv/internal/metrics"
	"github.com/opentv/opentv/internal/store"
	"github.com/opentv/opentv/internal/xtream"
)

func (e *Engine) xtreamClient(src *catalog.Source) (*xtream.Client, error) {
	var rawURL, user, pass string
	if src.URL != nil {
		rawURL = *src.URL
	}
	if src.Username != nil {
		user = *src.Username
	}
	if src.Password != nil {
		pass = *src.Password
	}
	return xtream.NewClient(rawURL, user, pass, src.EffectiveUserAgent(),
		e.log.With().Str("source", src.Name).Logger())
}

// ReadXtream ingests all three Xtream content pipelines. The six endpoint
// fetches run concurrently and are joined before the transaction opens. One
// failed pipeline is tolerated (its content is skipped for this refresh); two
// or more failures abort the refresh with the previous catalog intact.
func (e *Engine) ReadXtream(ctx context.Context, src *catalog.Source, wipe bool) error {
	client, err := e.xtreamClient(src)
	if err != nil {
		return err
	}
	fctx, cancel := context.WithTimeout(ctx, e.cfg.HTTPTimeout)
	defer cancel()
	cat := client.FetchCatalog(fctx)
	for pipeline, perr := range map[string]error{
		"live": cat.LiveErr, "vod": cat.VODErr, "series": cat.SeriesErr,
	} {
		if perr != nil {
			metrics.IncEndpointFailure(src.Kind.String(), pipeline)
			e.log.Error().Err(perr).Str("source", src.Name).Str("pipeline", pipeline).Msg("pipeline failed")
		}
	}
	if cat.FailedPipelines() >= 2 {
		return fmt.Errorf("ingest: %d of 3 xtream pipelines failed", cat.FailedPipelines())
	}

	return e.catalogTx(ctx, src, wipe, func(tx *store.Tx) error {
		total := 0
		if cat.LiveErr == nil {
			total += e.processXtream(tx, client, src, cat.Live, cat.LiveCategories, catalog.Livestream)
		}
		if cat.VODErr == nil {
			total += e.processXtream(tx, client, src, cat.VOD, cat.VODCategories, catalog.Movie)
		}
		if cat.SeriesErr == nil {
			total += e.processXtream(tx, client, src, cat.Series, cat.SeriesCategories, catalog.Serie)
		}
		metrics.RecordChannelsIngested(src.Name, src.Kind.String(), total)
		e.log.Info().Str("source", src.Name).Int("channels", total).Msg("xtream catalog ingested")
		// Query planner statistics go stale after a bulk reload.
		return tx.Analyze()
	})
}

// processXtream inserts one pipeline's streams. A record that fails to
// convert or persist is logged and skipped; the pipeline keeps going.
func (e *Engine) processXtream(tx *store.Tx, client *xtream.Client, src *catalog.Source,
	streams []xtream.Stream, cats []xtream.Category, mt catalog.MediaType) int {

	categories := xtream.CategoryNames(cats)
	cache := store.GroupCache{}
	mtCopy := mt
	n := 0
	for _, s := range streams {
		ch, err := client.ChannelFromStream(s, mt, src.ID, categories)
		if err != nil {
			e.log.Warn().Err(err).Str("source", src.Name).Msg("skipping stream")
			continue
		}
		if err := tx.SetChannelGroup(cache, ch, src.ID, &mtCopy); err != nil {
			e.log.Warn().Err(err).Str("channel", ch.Name).Msg("could not resolve group")
		}
		if _, err := tx.InsertChannel(ch); err != nil {
			e.log.Warn().Err(err).Str("channel", ch.Name).Msg("could not insert channel")
			continue
		}
		n++
	}
	return n
}

// FetchEpisodes expands a series container into persisted episode rows. It is
// idempotent: when episodes already exist for the series nothing is fetched.
func (e *Engine) FetchEpisodes(ctx context.Context, ch *catalog.Channel) error {
	if ch.MediaType != catalog.Serie {
		return fmt.Errorf("ingest: channel %q is not a series", ch.Name)
	}
	if ch.URL == nil {
		return errors.New("ingest: series has no upstream id")
	}
	src, err := e.store.SourceByID(ctx, ch.SourceID)
	if err != nil {
		return fmt.Errorf("ingest: load source: %w", err)
	}
	switch src.Kind {
	case catalog.KindXtream:
		return e.fetchXtreamEpisodes(ctx, &src, ch)
	case catalog.KindStalker:
		return e.fetchStalkerEpisodes(ctx, &src, ch)
	default:
		return fmt.Errorf("ingest: source kind %s has no episode expansion", src.Kind)
	}
}

func (e *Engine) fetchXtreamEpisodes(ctx context.Context, src *catalog.Source, ch *catalog.Channel) error {
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

	client, err := e.xtreamClient(src)
	if err != nil {
		return err
	}
	fctx, cancel := context.WithTimeout(ctx, e.cfg.HTTPTimeout)
	defer cancel()
	info, err := client.FetchSeriesInfo(fctx, seriesID)
	if err != nil {
		return err
	}

	seasons := info.SeasonsByNumber()
	episodes := info.FlatEpisodes()
	return e.store.DoTx(ctx, func(tx *store.Tx) error {
		seasonIDs := map[int64]int64{}
		inserted := 0
		for _, ep := range episodes {
			number := ep.SeasonNumberOrSentinel()
			seasonID, ok := seasonIDs[number]
			if !ok {
				var row *catalog.Season
				if meta, found := seasons[number]; found {
					row = xtream.SeasonRow(meta, seriesID, src.ID)
				} else {
					row = xtream.MakeshiftSeason(number, seriesID, src.ID, ch.Image)
				}
				seasonID, err = tx.InsertSeason(row)
				if err != nil {
					return err
				}
				seasonIDs[number] = seasonID
			}
			epCh, err := client.EpisodeChannel(ep, src.ID, seriesID, seasonID)
			if err != nil {
				e.log.Warn().Err(err).Str("series", ch.Name).Msg("skipping episode")
				continue
			}
			if _, err := tx.InsertChannel(epCh); err != nil {
				e.log.Warn().Err(err).Str("episode", epCh.Name).Msg("could not insert episode")
				continue
			}
			inserted++
		}
		e.log.Info().Str("series", ch.Name).Int("episodes", inserted).Msg("episodes ingested")
		return nil
	})
}

// FetchEPG returns the short programme guide for a live channel. Only Xtream
// sources expose an EPG endpoint.
func (e *Engine) FetchEPG(ctx context.Context, ch *catalog.Channel) (epgs []catalog.EPG, err error) {
	defer func() { metrics.IncEPGRequest(err) }()
	src, err := e.store.SourceByID(ctx, ch.SourceID)
	if err != nil {
		return nil, fmt.Errorf("ingest: load source: %w", err)
	}
	if src.Kind != catalog.KindXtream {
		return nil, fmt.Errorf("ingest: source kind %s has no EPG", src.Kind)
	}
	if ch.StreamID == nil {
		return nil, errors.New("ingest: channel has no stream id")
	}
	client, err := e.xtreamClient(&src)
	if err != nil {
		return nil, err
	}
	fctx, cancel := context.WithTimeout(ctx, e.cfg.HTTPTimeout)
	defer cancel()
	return client.ShortEPG(fctx, *ch.StreamID)
}
