// Command searchengine is the minimal ambient entrypoint for the
// property-search engine: it loads configuration, wires a real
// redis.Client-backed engine.Engine against in-memory fake oracles, and
// runs rebuild_index once. HTTP/RPC delivery is out of scope per spec §1,
// so this binary serves nothing further — it is a smoke-test harness, not
// a service.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bookn/propertysearch/elog"
	"github.com/bookn/propertysearch/engine"
	"github.com/bookn/propertysearch/enginecfg"
	"github.com/bookn/propertysearch/version"
)

func main() {
	var (
		configFile  = flag.String("config", "", "path to a YAML/TOML/JSON config file (optional; env vars always apply)")
		envPrefix   = flag.String("env-prefix", "SEARCHENGINE", "environment variable prefix")
		showVersion = flag.Bool("version", false, "print build info and exit")
	)
	flag.Parse()

	if *showVersion {
		info := version.GetBuildInfo()
		fmt.Printf("searchengine built with %s, main module %s@%s\n", info.GoVersion, info.MainModule, info.MainVersion)
		return
	}

	log := elog.With(elog.New(elog.DefaultConfig()), map[string]any{"component": "searchengine"})

	var cfg enginecfg.EngineConfig
	var err error
	if *configFile != "" {
		cfg, err = enginecfg.LoadFile(*configFile, *envPrefix)
	} else {
		cfg = enginecfg.LoadFromEnv(*envPrefix)
	}
	if err != nil {
		log.WithError(err).Error("failed to load configuration")
		os.Exit(1)
	}

	fakes := newFakeOracles()

	eng, err := engine.New(cfg, fakes.oracles(), log)
	if err != nil {
		log.WithError(err).Error("failed to build engine")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := eng.Start(ctx); err != nil {
		log.WithError(err).Error("failed to start engine")
		os.Exit(1)
	}
	defer eng.Stop()

	log.Info("rebuilding index from the authoritative store")
	if err := eng.RebuildIndex(ctx); err != nil {
		log.WithError(err).Error("rebuild_index failed")
		os.Exit(1)
	}
	log.Info("rebuild_index completed")
}
