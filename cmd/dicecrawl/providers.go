package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/cory-johannsen/dicecrawl/internal/config"
	"github.com/cory-johannsen/dicecrawl/internal/frontend/handlers"
	"github.com/cory-johannsen/dicecrawl/internal/frontend/telnet"
	"github.com/cory-johannsen/dicecrawl/internal/game/character"
	"github.com/cory-johannsen/dicecrawl/internal/game/combat"
	"github.com/cory-johannsen/dicecrawl/internal/game/dice"
	"github.com/cory-johannsen/dicecrawl/internal/game/encounter"
	"github.com/cory-johannsen/dicecrawl/internal/game/reveal"
	"github.com/cory-johannsen/dicecrawl/internal/game/session"
	"github.com/cory-johannsen/dicecrawl/internal/narrative"
	"github.com/cory-johannsen/dicecrawl/internal/observability"
	"github.com/cory-johannsen/dicecrawl/internal/peersync"
	"github.com/cory-johannsen/dicecrawl/internal/scripting"
	"github.com/cory-johannsen/dicecrawl/internal/server"
	"github.com/cory-johannsen/dicecrawl/internal/storage/postgres"
)

// App is the assembled server.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	lifecycle *server.Lifecycle
	hub       *peersync.Hub
	manager   *session.Manager
}

// Run starts snapshot replication and every service, blocking until shutdown.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if a.hub.Enabled() {
		go func() {
			err := a.hub.Run(ctx, func(snap peersync.Snapshot) {
				n := a.manager.ApplySnapshot(snap)
				a.logger.Debug("peer snapshot applied",
					zap.String("room", snap.Room),
					zap.String("origin", snap.Origin),
					zap.Int("games", n),
				)
			})
			if err != nil && ctx.Err() == nil {
				a.logger.Error("snapshot sync stopped", zap.Error(err))
			}
		}()
	}
	return a.lifecycle.Run(ctx)
}

func provideLogger(cfg config.Config) (*zap.Logger, func(), error) {
	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		return nil, nil, err
	}
	return logger, func() { _ = logger.Sync() }, nil
}

func provideRoller(logger *zap.Logger) *dice.Roller {
	return dice.NewLoggedRoller(dice.NewCryptoSource(), logger)
}

func provideCatalog(cfg config.Config, logger *zap.Logger) (*encounter.Catalog, error) {
	start := time.Now()
	presets, err := character.LoadPresets(cfg.Content.EnemiesFile)
	if err != nil {
		return nil, fmt.Errorf("loading enemies: %w", err)
	}
	spawns := encounter.DefaultSpawnTable()
	if cfg.Content.SpawnFile != "" {
		if spawns, err = encounter.LoadSpawnTable(cfg.Content.SpawnFile); err != nil {
			return nil, fmt.Errorf("loading spawn table: %w", err)
		}
	}
	logger.Info("content loaded",
		zap.Int("presets", len(presets)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return encounter.NewCatalog(presets, spawns), nil
}

// provideNarrator builds the fallback chain for the configured mode. The
// template narrator always closes the chain.
func provideNarrator(cfg config.Config, roller *dice.Roller, logger *zap.Logger) (narrative.Narrator, func(), error) {
	nc := cfg.Narrative
	var (
		chain   []narrative.Narrator
		cleanup = func() {}
	)
	switch nc.Mode {
	case "anthropic":
		n, err := narrative.NewAnthropicNarrator(narrative.AnthropicConfig{
			APIKey:    nc.APIKey,
			Model:     nc.Model,
			MaxTokens: nc.MaxTokens,
			Timeout:   nc.Timeout,
		})
		if err != nil {
			return nil, nil, err
		}
		chain = append(chain, n)
	case "lua":
		mgr := scripting.NewManager(roller, logger)
		n, err := narrative.NewLuaNarrator(mgr, cfg.Content.NarrativeScript, nc.InstructionLimit)
		if err != nil {
			mgr.Close()
			return nil, nil, err
		}
		chain = append(chain, n)
		cleanup = mgr.Close
	}
	chain = append(chain, narrative.NewTemplateNarrator(roller.Source()))
	logger.Info("narrator ready", zap.String("mode", nc.Mode), zap.Int("chain", len(chain)))
	return narrative.NewFallback(logger, chain...), cleanup, nil
}

func provideSyncService(logger *zap.Logger) *peersync.Service {
	return peersync.NewService(logger.Named("sync"))
}

// provideHub connects the transports for the configured sync mode. In grpc
// mode this node always serves the sync service; PeerAddr additionally
// dials a remote node.
func provideHub(ctx context.Context, cfg config.Config, svc *peersync.Service, logger *zap.Logger) (*peersync.Hub, func(), error) {
	origin, err := os.Hostname()
	if err != nil || origin == "" {
		origin = "node"
	}
	origin = origin + "-" + uuid.NewString()[:8]

	var transports []peersync.Transport
	switch cfg.Sync.Mode {
	case "redis":
		t, err := peersync.DialRedis(ctx, cfg.Sync.RedisAddr, cfg.Sync.RedisChannel, logger)
		if err != nil {
			return nil, nil, err
		}
		transports = append(transports, t)
	case "grpc":
		transports = append(transports, svc.Transport())
		if cfg.Sync.PeerAddr != "" {
			t, err := peersync.DialGRPC(cfg.Sync.PeerAddr, logger)
			if err != nil {
				return nil, nil, err
			}
			transports = append(transports, t)
		}
	}
	hub := peersync.NewHub(origin, logger.Named("hub"), transports...)
	logger.Info("snapshot sync configured",
		zap.String("mode", cfg.Sync.Mode),
		zap.String("origin", origin),
		zap.Int("transports", len(transports)),
	)
	return hub, func() { _ = hub.Close() }, nil
}

// provideJournal connects the combat journal when it is enabled. The result
// is a nil interface otherwise, which session.Game treats as disabled.
func provideJournal(ctx context.Context, cfg config.Config, logger *zap.Logger) (session.Journal, func(), error) {
	if !cfg.Journal.Enabled {
		return nil, func() {}, nil
	}
	start := time.Now()
	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to database: %w", err)
	}
	if err := pool.Health(ctx, 5*time.Second); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("checking journal database: %w", err)
	}
	logger.Info("database connected",
		zap.String("host", cfg.Database.Host),
		zap.Duration("elapsed", time.Since(start)),
	)
	return pool.Journal(), pool.Close, nil
}

func provideDeps(cfg config.Config, catalog *encounter.Catalog, narrator narrative.Narrator, roller *dice.Roller, journal session.Journal, hub *peersync.Hub, logger *zap.Logger) session.Deps {
	deps := session.Deps{
		Catalog:  catalog,
		Narrator: narrator,
		Roller:   roller,
		Clock:    reveal.SystemClock{},
		Timings: reveal.Timings{
			Rolling:     cfg.Reveal.Rolling,
			Stagger:     cfg.Reveal.Stagger,
			RevealHold:  cfg.Reveal.RevealHold,
			CritBuildup: cfg.Reveal.CritBuildup,
			Clash:       cfg.Reveal.Clash,
			Impact:      cfg.Reveal.Impact,
		},
		TickInterval: cfg.Reveal.Tick,
		Options: combat.Options{
			FleeDC:     cfg.Combat.FleeDC,
			PotionHeal: cfg.Combat.PotionHealExpr,
			ItemHeal:   cfg.Combat.ItemHeal,
		},
		ChestGold: cfg.Combat.ChestGoldExpr,
		PartySize: cfg.Combat.PartySize,
		Journal:   journal,
		Logger:    logger,
	}
	if hub.Enabled() {
		deps.Publisher = hub
	}
	return deps
}

func provideManager() *session.Manager {
	return session.NewManager()
}

func provideGameHandler(cfg config.Config, manager *session.Manager, deps session.Deps, logger *zap.Logger) *handlers.GameHandler {
	room := cfg.Sync.Room
	if room == "" {
		room = "lobby"
	}
	return handlers.NewGameHandler(manager, deps, room, handlers.IdleSettings{
		Timeout: cfg.Telnet.IdleTimeout,
		Grace:   cfg.Telnet.IdleGrace,
		Tick:    time.Second,
	}, logger.Named("handler"))
}

func provideAcceptor(cfg config.Config, h *handlers.GameHandler, logger *zap.Logger) *telnet.Acceptor {
	return telnet.NewAcceptor(cfg.Telnet, h, logger.Named("telnet"))
}

// provideLifecycle registers the telnet acceptor and, in grpc sync mode, the
// sync gRPC server.
func provideLifecycle(cfg config.Config, acceptor *telnet.Acceptor, svc *peersync.Service, logger *zap.Logger) *server.Lifecycle {
	lc := server.NewLifecycle(logger)
	lc.Add("telnet", acceptor)
	if cfg.Sync.Mode == "grpc" {
		srv := grpc.NewServer()
		svc.Register(srv)
		lc.Add("grpc-sync", &server.FuncService{
			StartFn: func() error {
				lis, err := net.Listen("tcp", cfg.Sync.Addr())
				if err != nil {
					return fmt.Errorf("listening on %s: %w", cfg.Sync.Addr(), err)
				}
				logger.Info("sync service listening", zap.String("addr", lis.Addr().String()))
				return srv.Serve(lis)
			},
			StopFn: srv.GracefulStop,
		})
	}
	return lc
}

func provideApp(cfg config.Config, logger *zap.Logger, lc *server.Lifecycle, hub *peersync.Hub, manager *session.Manager) *App {
	return &App{cfg: cfg, logger: logger, lifecycle: lc, hub: hub, manager: manager}
}
