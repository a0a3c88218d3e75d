// Command opentv: IPTV catalog daemon and ingestion tool.
//
//	serve        Run the catalog API daemon (refresh on demand via HTTP)
//	add          Add a source and run its first ingestion
//	refresh      Refresh one source by name
//	refresh-all  Refresh every enabled source
//	sources      List configured sources
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/opentv/opentv/internal/api"
	"github.com/opentv/opentv/internal/catalog"
	"github.com/opentv/opentv/internal/config"
	"github.com/opentv/opentv/internal/ingest"
	"github.com/opentv/opentv/internal/log"
	"github.com/opentv/opentv/internal/store"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	addCmd := flag.NewFlagSet("add", flag.ExitOnError)
	addName := addCmd.String("name", "", "unique source name (required)")
	addKind := addCmd.String("kind", "", "m3u_file | m3u_link | xtream | stalker | custom (required)")
	addURL := addCmd.String("url", "", "file path, playlist link, panel or portal URL")
	addUser := addCmd.String("username", "", "xtream username")
	addPass := addCmd.String("password", "", "xtream password")
	addMAC := addCmd.String("mac", "", "stalker MAC address")
	addUA := addCmd.String("user-agent", "", "custom upstream user agent")
	addTvgID := addCmd.Bool("use-tvg-id", false, "prefer tvg-id over display name when tvg-name is absent")

	refreshCmd := flag.NewFlagSet("refresh", flag.ExitOnError)
	refreshName := refreshCmd.String("name", "", "source name (required)")

	cfg := config.Load()
	log.Configure(log.Config{Console: cfg.LogConsole})
	logger := log.WithComponent("main")
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		logger.Fatal().Err(err).Str("db", cfg.DBPath).Msg("open catalog")
	}
	defer st.Close()
	engine := ingest.New(st, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch os.Args[1] {
	case "serve":
		srv := api.New(st, engine, cfg)
		if err := srv.ListenAndServe(ctx); err != nil {
			logger.Fatal().Err(err).Msg("api server failed")
		}

	case "add":
		_ = addCmd.Parse(os.Args[2:])
		src, err := sourceFromFlags(*addName, *addKind, *addURL, *addUser, *addPass, *addMAC, *addUA, *addTvgID)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		if err := engine.ImportSource(ctx, src); err != nil {
			logger.Fatal().Err(err).Str("source", src.Name).Msg("import failed")
		}
		n, _ := st.CountChannels(ctx, src.ID)
		fmt.Printf("source %q added (id %d, %d channels)\n", src.Name, src.ID, n)

	case "refresh":
		_ = refreshCmd.Parse(os.Args[2:])
		if *refreshName == "" {
			fmt.Fprintln(os.Stderr, "refresh: -name is required")
			os.Exit(2)
		}
		src, err := st.SourceByName(ctx, *refreshName)
		if err != nil {
			logger.Fatal().Err(err).Str("source", *refreshName).Msg("source not found")
		}
		if err := engine.RefreshSource(ctx, &src); err != nil {
			logger.Fatal().Err(err).Str("source", src.Name).Msg("refresh failed")
		}
		n, _ := st.CountChannels(ctx, src.ID)
		fmt.Printf("source %q refreshed (%d channels)\n", src.Name, n)

	case "refresh-all":
		if err := engine.RefreshAll(ctx); err != nil {
			logger.Fatal().Err(err).Msg("refresh-all finished with failures")
		}
		fmt.Println("all sources refreshed")

	case "sources":
		sources, err := st.Sources(ctx)
		if err != nil {
			logger.Fatal().Err(err).Msg("list sources")
		}
		for _, src := range sources {
			n, _ := st.CountChannels(ctx, src.ID)
			state := "enabled"
			if !src.Enabled {
				state = "disabled"
			}
			fmt.Printf("%4d  %-20s %-9s %-8s %6d channels\n", src.ID, src.Name, src.Kind, state, n)
		}

	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q\n", os.Args[1])
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: opentv <serve|add|refresh|refresh-all|sources> [flags]")
}

func sourceFromFlags(name, kind, url, user, pass, mac, ua string, useTvgID bool) (*catalog.Source, error) {
	if name == "" {
		return nil, fmt.Errorf("add: -name is required")
	}
	kinds := map[string]catalog.SourceKind{
		"m3u_file": catalog.KindM3UFile,
		"m3u_link": catalog.KindM3ULink,
		"xtream":   catalog.KindXtream,
		"stalker":  catalog.KindStalker,
		"custom":   catalog.KindCustom,
	}
	k, ok := kinds[kind]
	if !ok {
		return nil, fmt.Errorf("add: unknown kind %q", kind)
	}
	src := &catalog.Source{Name: name, Kind: k, UseTvgID: useTvgID, Enabled: true, MaxStreams: 1}
	if url != "" {
		src.URL = &url
	}
	if user != "" {
		src.Username = &user
	}
	if pass != "" {
		src.Password = &pass
	}
	if mac != "" {
		src.MAC = &mac
	}
	if ua != "" {
		src.UserAgent = &ua
	}
	return src, nil
}
