package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/opentv/opentv/internal/catalog"
	"github.com/opentv/opentv/internal/httpclient"
	"github.com/opentv/opentv/internal/m3u"
	"github.com/opentv/opentv/internal/metrics"
	"github.com/opentv/opentv/internal/store"
)

// ReadM3U ingests a playlist from the path in src.URL.
func (e *Engine) ReadM3U(ctx context.Context, src *catalog.Source, wipe bool) error {
	if src.URL == nil || *src.URL == "" {
		return errors.New("ingest: m3u source has no file path")
	}
	return e.parseM3UPath(ctx, src, wipe, *src.URL)
}

// ReadM3UFromLink downloads the remote playlist to the cache directory, then
// ingests the local copy. Parsing never reads from the network directly; a
// broken connection mid-download fails before the catalog is touched.
func (e *Engine) ReadM3UFromLink(ctx context.Context, src *catalog.Source, wipe bool) error {
	if src.URL == nil || *src.URL == "" {
		return errors.New("ingest: m3u source has no link")
	}
	dctx, cancel := context.WithTimeout(ctx, e.cfg.DownloadTimeout)
	defer cancel()
	client := httpclient.WithUserAgent(
		httpclient.WithTimeout(e.cfg.DownloadTimeout), src.EffectiveUserAgent())
	path := e.cfg.M3UTempPath(src.ID)
	if err := httpclient.DownloadToFile(dctx, client, *src.URL, path); err != nil {
		return fmt.Errorf("ingest: fetch playlist: %w", err)
	}
	return e.parseM3UPath(ctx, src, wipe, path)
}

func (e *Engine) parseM3UPath(ctx context.Context, src *catalog.Source, wipe bool, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("ingest: open playlist: %w", err)
	}
	defer f.Close()

	return e.catalogTx(ctx, src, wipe, func(tx *store.Tx) error {
		sink := &txSink{tx: tx, cache: store.GroupCache{}, sourceID: src.ID}
		parser := &m3u.Parser{
			SourceID:    src.ID,
			PreferTvgID: src.UseTvgID,
			Log:         e.log.With().Str("source", src.Name).Logger(),
		}
		n, err := parser.Parse(f, sink)
		if err != nil {
			return fmt.Errorf("ingest: parse playlist: %w", err)
		}
		metrics.RecordChannelsIngested(src.Name, src.Kind.String(), n)
		e.log.Info().Str("source", src.Name).Int("channels", n).Msg("playlist ingested")
		return nil
	})
}
