// Package ingest orchestrates source refreshes. Each refresh runs the
// source's ingestion path (M3U parse, Xtream multi-fetch, Stalker multi-fetch)
// inside one catalog transaction, with the wipe-and-preserve protocol keeping
// favorites and watch history across the wipe.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/opentv/opentv/internal/catalog"
	"github.com/opentv/opentv/internal/config"
	"github.com/opentv/opentv/internal/log"
	"github.com/opentv/opentv/internal/metrics"
	"github.com/opentv/opentv/internal/store"
)

// Engine runs ingestion against one catalog store.
type Engine struct {
	store *store.Store
	cfg   *config.Config
	log   zerolog.Logger
}

// New builds an engine.
func New(st *store.Store, cfg *config.Config) *Engine {
	return &Engine{
		store: st,
		cfg:   cfg,
		log:   log.WithComponent("ingest"),
	}
}

// ImportSource creates (or finds) the source row and runs its first ingestion
// without wiping. src.ID is populated on return.
func (e *Engine) ImportSource(ctx context.Context, src *catalog.Source) error {
	return e.run(ctx, src, false)
}

// RefreshSource re-ingests one existing source under the wipe-and-preserve
// protocol. Custom sources have no upstream and refresh to a no-op.
func (e *Engine) RefreshSource(ctx context.Context, src *catalog.Source) error {
	if src.ID == 0 {
		return errors.New("ingest: refresh needs a persisted source")
	}
	return e.run(ctx, src, true)
}

// RefreshAll refreshes every enabled source in turn. One source failing does
// not stop the others; all failures are joined into the returned error.
func (e *Engine) RefreshAll(ctx context.Context) error {
	sources, err := e.store.EnabledSources(ctx)
	if err != nil {
		return fmt.Errorf("ingest: list sources: %w", err)
	}
	var errs []error
	for i := range sources {
		src := sources[i]
		if err := e.RefreshSource(ctx, &src); err != nil {
			e.log.Error().Err(err).Str("source", src.Name).Msg("refresh failed")
			errs = append(errs, fmt.Errorf("source %q: %w", src.Name, err))
		}
	}
	return errors.Join(errs...)
}

func (e *Engine) run(ctx context.Context, src *catalog.Source, wipe bool) (err error) {
	start := time.Now()
	kind := src.Kind.String()
	defer func() {
		metrics.IncRefresh(kind, err)
		metrics.ObserveRefreshDuration(kind, time.Since(start).Seconds())
	}()

	switch src.Kind {
	case catalog.KindM3UFile:
		err = e.ReadM3U(ctx, src, wipe)
	case catalog.KindM3ULink:
		err = e.ReadM3UFromLink(ctx, src, wipe)
	case catalog.KindXtream:
		err = e.ReadXtream(ctx, src, wipe)
	case catalog.KindStalker:
		err = e.ReadStalker(ctx, src, wipe)
	case catalog.KindCustom:
		// Custom sources are user-curated; there is nothing upstream to pull.
		// First import still has to create the source row.
		if !wipe {
			err = e.catalogTx(ctx, src, false, func(*store.Tx) error { return nil })
		}
	default:
		err = fmt.Errorf("ingest: unknown source kind %d", src.Kind)
	}
	return err
}

// catalogTx wraps fn in the refresh protocol: snapshot curated state, wipe,
// reingest, restore, all inside one transaction. With wipe false it instead
// creates-or-finds the source row and populates src.ID.
func (e *Engine) catalogTx(ctx context.Context, src *catalog.Source, wipe bool, fn func(tx *store.Tx) error) error {
	return e.store.DoTx(ctx, func(tx *store.Tx) error {
		var preserve []catalog.ChannelPreserve
		if wipe {
			var err error
			preserve, err = tx.ChannelPreserve(src.ID)
			if err != nil {
				// Refresh still proceeds; losing the snapshot is better than
				// losing the refresh.
				e.log.Warn().Err(err).Int64("source", src.ID).Msg("could not snapshot curated state")
				preserve = nil
			}
			if err := tx.Wipe(src.ID); err != nil {
				return err
			}
		} else {
			id, err := tx.CreateOrFindSourceByName(src)
			if err != nil {
				return err
			}
			src.ID = id
		}
		if err := fn(tx); err != nil {
			return err
		}
		if wipe {
			return tx.RestorePreserve(src.ID, preserve)
		}
		return nil
	})
}

// txSink feeds parsed channels into the reconciler, resolving groups through
// the per-refresh cache and attaching header rows when a block carried any.
type txSink struct {
	tx       *store.Tx
	cache    store.GroupCache
	sourceID int64
}

func (s *txSink) Channel(ch *catalog.Channel, headers *catalog.ChannelHTTPHeaders) error {
	if err := s.tx.SetChannelGroup(s.cache, ch, s.sourceID, nil); err != nil {
		return err
	}
	id, err := s.tx.InsertChannel(ch)
	if err != nil {
		return err
	}
	if headers != nil && !headers.Empty() {
		headers.ChannelID = id
		if err := s.tx.InsertChannelHeaders(headers); err != nil {
			return err
		}
	}
	return nil
}
