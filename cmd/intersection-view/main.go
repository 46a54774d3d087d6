package main

import (
	"context"
	"database/sql"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/intersection-view/db"
	"github.com/thatsimonsguy/intersection-view/internal/api"
	"github.com/thatsimonsguy/intersection-view/internal/config"
	"github.com/thatsimonsguy/intersection-view/internal/control"
	"github.com/thatsimonsguy/intersection-view/internal/datadog"
	"github.com/thatsimonsguy/intersection-view/internal/env"
	"github.com/thatsimonsguy/intersection-view/internal/logging"
	"github.com/thatsimonsguy/intersection-view/internal/model"
	"github.com/thatsimonsguy/intersection-view/internal/notifications"
	"github.com/thatsimonsguy/intersection-view/internal/registry"
	"github.com/thatsimonsguy/intersection-view/internal/session"
	"github.com/thatsimonsguy/intersection-view/internal/stream"
	"github.com/thatsimonsguy/intersection-view/internal/topology"
	"github.com/thatsimonsguy/intersection-view/internal/view"
	"github.com/thatsimonsguy/intersection-view/system/shutdown"
)

func main() {
	cfg := config.Load()
	env.Cfg = &cfg
	logging.Init(cfg.LogLevel, cfg.LogFile)
	datadog.InitMetrics()
	notifications.Init(cfg.Ntfy.URL, cfg.Ntfy.Topic)

	log.Info().
		Str("registry", cfg.RegistryURL).
		Str("control", cfg.ControlURL).
		Int("bridges", len(cfg.Bridges)).
		Bool("reconnect", cfg.Reconnect.Enabled).
		Msg("Starting intersection view service")

	groups, err := topology.ParseTable(cfg.DirectionGroups)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid direction_groups")
	}

	var cache *sql.DB
	cache, err = db.Open(cfg.CacheDB)
	if err != nil {
		log.Warn().Err(err).Str("path", cfg.CacheDB).Msg("Registry snapshot unavailable, continuing without it")
	}

	loader := registry.NewLoader(registry.NewClient(cfg.RegistryURL, cfg.CommandTimeout()), cache)

	ctx, cancel := context.WithCancel(context.Background())

	hub := session.NewHub(ctx, session.Options{
		Streams:      stream.NewManager(streamOptions(cfg)),
		Commander:    control.NewDispatcher(cfg.ControlURL, cfg.CommandTimeout()),
		Roads:        loader,
		Groups:       groups,
		Fields:       viewFields(cfg.AnalyticsFields),
		PrimaryGroup: primaryGroup(cfg.Bridges),
	})

	if roads, err := loader.ListRoads(ctx); err != nil {
		log.Warn().Err(err).Msg("Registry not reachable at startup")
	} else {
		log.Info().Int("roads", len(roads)).Msg("Registry loaded")
	}

	server := api.NewServer(hub)

	shutdown.Register(func() {
		if cache != nil {
			cache.Close()
		}
		datadog.Close()
	})
	shutdown.Register(func() {
		hub.CloseAll()
		cancel()
	})
	shutdown.Register(func() {
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		if err := server.Shutdown(sctx); err != nil {
			log.Warn().Err(err).Msg("API server did not stop cleanly")
		}
	})

	go func() {
		if err := server.Start(cfg.ListenPort); err != nil {
			shutdown.ShutdownWithError(err, "API server stopped")
		}
	}()

	shutdown.WaitForSignal(context.Background())
}

func streamOptions(cfg config.Config) stream.Options {
	bridges := make([]stream.BridgeEndpoint, 0, len(cfg.Bridges))
	for _, b := range cfg.Bridges {
		bridges = append(bridges, stream.BridgeEndpoint{ID: model.GroupID(b.ID), URL: b.URL})
	}
	return stream.Options{
		AnalyticsURL: cfg.AnalyticsURL,
		Bridges:      bridges,
		Strategy:     reconnectStrategy(cfg.Reconnect),
	}
}

func reconnectStrategy(rc config.Reconnect) stream.Strategy {
	if !rc.Enabled {
		return stream.NoReconnect{}
	}
	return stream.Backoff{
		MaxRetries: rc.MaxRetries,
		Initial:    time.Duration(rc.InitialIntervalMS) * time.Millisecond,
		Max:        time.Duration(rc.MaxIntervalMS) * time.Millisecond,
		Multiplier: rc.Multiplier,
		Jitter:     rc.Jitter,
	}
}

func viewFields(f config.AnalyticsFields) view.Fields {
	return view.Fields{
		TotalDown:   config.Enabled(f.TotalDown),
		FPS:         config.Enabled(f.FPS),
		DownByClass: config.Enabled(f.DownByClass),
	}
}

// primaryGroup is the group whose countdown the info panel shows: the first bridge.
func primaryGroup(bridges []config.Bridge) model.GroupID {
	if len(bridges) == 0 {
		return ""
	}
	return model.GroupID(bridges[0].ID)
}
