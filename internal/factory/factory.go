package factory

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/mcoot/skirmish/internal/admin"
	"github.com/mcoot/skirmish/internal/catalog"
	"github.com/mcoot/skirmish/internal/config"
	"github.com/mcoot/skirmish/internal/dependencies/clock"
	"github.com/mcoot/skirmish/internal/dependencies/random"
	"github.com/mcoot/skirmish/internal/metrics"
	"github.com/mcoot/skirmish/internal/scheduler"
	"github.com/mcoot/skirmish/internal/securechannel"
	"github.com/mcoot/skirmish/internal/server"
	"github.com/mcoot/skirmish/internal/services/auth"
	"github.com/mcoot/skirmish/internal/services/battle"
	"github.com/mcoot/skirmish/internal/services/connmgr"
	"github.com/mcoot/skirmish/internal/services/maintenance"
	"github.com/mcoot/skirmish/internal/services/matchmaking"
	"github.com/mcoot/skirmish/internal/services/roster"
	"github.com/mcoot/skirmish/internal/services/session"
	"github.com/mcoot/skirmish/internal/services/team"
	"github.com/mcoot/skirmish/internal/storage"
	"github.com/mcoot/skirmish/internal/storage/cache"
	"github.com/mcoot/skirmish/internal/storage/memory"
	redisstorage "github.com/mcoot/skirmish/internal/storage/redis"
	"github.com/mcoot/skirmish/internal/transport/udp"
)

// App contains all wired application components
type App struct {
	Config config.Config
	Logger *slog.Logger

	// Storage: Accounts is the write-back cache every service uses, Backend the store behind it
	Backend  storage.AccountStore
	Accounts *cache.Cache

	// External dependencies
	Clock  clock.Clock
	Random random.Random

	// Observability
	Registry *prometheus.Registry
	Metrics  metrics.Metrics

	Catalog *catalog.Static

	// Services
	Maintenance *maintenance.Mode
	Sessions    *session.Registry
	Builder     *roster.Builder
	Gateway     *udp.Gateway
	Battles     *battle.Service
	Engine      *matchmaking.Engine
	Auth        *auth.Service
	Teams       *team.Service
	Connections *connmgr.Manager

	// Transport
	Channels  securechannel.Factory
	ServerKey *securechannel.KeyPair // nil when crypto is disabled
	Server    *server.Server

	// Operations
	Admin       *admin.Service
	Commands    *admin.Commands
	AdminServer *admin.Server
	Scheduler   *scheduler.Scheduler

	closers []io.Closer
}

// dependencies are the parts New and NewTestApp choose differently
type dependencies struct {
	backend   storage.AccountStore
	clock     clock.Clock
	random    random.Random
	channels  securechannel.Factory
	serverKey *securechannel.KeyPair
	authCfg   auth.Config
	simulator battle.Simulator
	closers   []io.Closer
}

// New creates a production App from cfg
func New(cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	deps := dependencies{
		clock:   clock.New(),
		random:  random.New(),
		authCfg: auth.DefaultConfig(),
	}
	deps.authCfg.MinClientMajor = cfg.MinClientMajor

	switch cfg.StorageType {
	case config.StorageTypeMemory, "":
		deps.backend = memory.New()
	case config.StorageTypeRedis:
		redisCfg := redisstorage.DefaultConfig()
		redisCfg.URL = cfg.RedisURL
		redisCfg.PoolSize = cfg.RedisPool
		store, err := redisstorage.New(redisCfg)
		if err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		deps.backend = store
		deps.closers = append(deps.closers, store)
	default:
		return nil, fmt.Errorf("invalid storage type %q", cfg.StorageType)
	}

	if cfg.CryptoEnabled {
		keys, err := serverKeys(cfg.ServerSecretKey, logger)
		if err != nil {
			return nil, err
		}
		deps.channels = securechannel.NewNaClFactory(keys, deps.random)
		deps.serverKey = &keys
	} else {
		logger.Warn("secure channel disabled, client payloads are not encrypted")
		deps.channels = securechannel.NewPlainFactory(deps.random)
	}

	sim := battle.NewLocalSimulator(deps.random)
	if cfg.BattleTimeScale > 0 {
		sim.Scale = cfg.BattleTimeScale
	}
	deps.simulator = sim

	return newWithDependencies(cfg, deps, logger)
}

func serverKeys(hexKey string, logger *slog.Logger) (securechannel.KeyPair, error) {
	if hexKey != "" {
		return securechannel.KeyPairFromHex(hexKey)
	}
	keys, err := securechannel.GenerateKeyPair()
	if err != nil {
		return securechannel.KeyPair{}, fmt.Errorf("generate server key: %w", err)
	}
	logger.Warn("no server key configured, generated an ephemeral one")
	return keys, nil
}

// newWithDependencies wires every component on top of deps
func newWithDependencies(cfg config.Config, deps dependencies, logger *slog.Logger) (*App, error) {
	var cat *catalog.Static
	var err error
	if cfg.CatalogPath != "" {
		cat, err = catalog.LoadFromFile(cfg.CatalogPath)
	} else {
		cat, err = catalog.NewDefault()
	}
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(registry)

	accounts := cache.New(deps.backend, logger)
	mode := maintenance.NewMode(cfg.Maintenance, logger)
	sessions := session.NewRegistry(deps.clock, logger)
	builder := roster.NewBuilder(deps.random)

	gateway := udp.New(udp.Config{Addr: cfg.UDPAddr, PublicHost: cfg.PublicHost}, nil, logger)
	battles := battle.NewService(sessions, gateway, deps.simulator, m, logger)

	engine := matchmaking.NewEngine(matchmaking.Config{
		TickInterval:   cfg.TickInterval(),
		SearchTimeout:  cfg.SearchTimeout(),
		StatusInterval: cfg.StatusInterval(),
	}, deps.clock, cat, builder, battles, m, logger)

	events := cfg.Events()
	if events == nil {
		events = cat.Events()
	}
	if err := engine.SetEvents(events); err != nil {
		return nil, fmt.Errorf("activate events: %w", err)
	}

	authService := auth.New(accounts, mode, deps.clock, deps.random, deps.authCfg, logger)
	teams := team.NewService(sessions, engine, battles, cat, builder, logger)
	connections := connmgr.NewManager(sessions, deps.clock, cfg.HeartbeatWindow(), logger)

	srvCfg := server.DefaultConfig()
	srvCfg.Addr = cfg.TCPAddr
	srv := server.New(srvCfg, server.Deps{
		Sessions:    sessions,
		Engine:      engine,
		Teams:       teams,
		Auth:        authService,
		Accounts:    accounts,
		Catalog:     cat,
		Channels:    deps.channels,
		Connections: connections,
		Maintenance: mode,
		Metrics:     m,
		Clock:       deps.clock,
	}, logger)

	adminService := admin.NewService(admin.Deps{
		Sessions:    sessions,
		Engine:      engine,
		Teams:       teams,
		Accounts:    accounts,
		Catalog:     cat,
		Connections: connections,
		Battles:     battles,
		Maintenance: mode,
		Clock:       deps.clock,
	}, cfg.LeaderboardSize, logger)
	commands := admin.NewCommands(adminService)

	adminCfg := admin.DefaultServerConfig()
	adminCfg.Addr = cfg.AdminAddr
	adminServer := admin.NewServer(admin.NewRouter(admin.RouterConfig{
		Logger:   logger,
		Clock:    deps.clock,
		Service:  adminService,
		Commands: commands,
		Gatherer: registry,
	}), adminCfg, logger)

	app := &App{
		Config:      cfg,
		Logger:      logger,
		Backend:     deps.backend,
		Accounts:    accounts,
		Clock:       deps.clock,
		Random:      deps.random,
		Registry:    registry,
		Metrics:     m,
		Catalog:     cat,
		Maintenance: mode,
		Sessions:    sessions,
		Builder:     builder,
		Gateway:     gateway,
		Battles:     battles,
		Engine:      engine,
		Auth:        authService,
		Teams:       teams,
		Connections: connections,
		Channels:    deps.channels,
		ServerKey:   deps.serverKey,
		Server:      srv,
		Admin:       adminService,
		Commands:    commands,
		AdminServer: adminServer,
		Scheduler:   scheduler.New(logger),
		closers:     deps.closers,
	}
	if err := app.registerTasks(); err != nil {
		return nil, err
	}
	return app, nil
}

func (a *App) registerTasks() error {
	if err := a.Scheduler.Add("matchmaking-tick", a.Config.TickInterval(), a.tick); err != nil {
		return err
	}
	if err := a.Scheduler.Add("connection-reconcile", a.Config.ReaperInterval(), a.reconcile); err != nil {
		return err
	}
	if err := a.Scheduler.Add("account-flush", a.Config.FlushInterval(), a.Flush); err != nil {
		return err
	}
	return a.Scheduler.Add("leaderboard-refresh", a.Config.LeaderboardInterval(), a.Admin.RefreshLeaderboard)
}

func (a *App) tick(ctx context.Context) error {
	a.Engine.Tick(ctx)
	return nil
}

func (a *App) reconcile(ctx context.Context) error {
	if closed := a.Connections.Reconcile(ctx); closed > 0 {
		a.Metrics.SessionsActive(a.Sessions.Count())
	}
	return nil
}

// Flush writes dirty accounts back to the store
func (a *App) Flush(ctx context.Context) error {
	saved, err := a.Accounts.Flush(ctx)
	a.Metrics.AccountsFlushed(saved, a.Accounts.DirtyCount())
	return err
}

// Listen binds the TCP, UDP and admin sockets so bind errors surface before Run
func (a *App) Listen() error {
	if err := a.Server.Listen(); err != nil {
		return err
	}
	if err := a.Gateway.Listen(); err != nil {
		return fmt.Errorf("listen udp %s: %w", a.Config.UDPAddr, err)
	}
	return a.AdminServer.Listen()
}

// Run serves until ctx is cancelled, then stops every subsystem and flushes accounts
func (a *App) Run(ctx context.Context) error {
	if a.Server.Addr() == nil {
		if err := a.Listen(); err != nil {
			return err
		}
	}
	if err := a.Admin.RefreshLeaderboard(ctx); err != nil {
		a.Logger.Warn("initial leaderboard refresh failed", slog.String("error", err.Error()))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.Server.Serve(gctx) })
	g.Go(func() error { return a.Gateway.Serve(gctx) })
	g.Go(func() error { return a.AdminServer.Serve(gctx) })
	g.Go(func() error { return a.Scheduler.Run(gctx) })
	err := g.Wait()

	a.Battles.Close()
	if ferr := a.Flush(context.WithoutCancel(ctx)); ferr != nil {
		a.Logger.Error("final account flush failed", slog.String("error", ferr.Error()))
	}
	a.Logger.Info("shutdown complete", slog.Int("accounts_pending", a.Accounts.DirtyCount()))
	return err
}

// Close releases storage connections
func (a *App) Close() error {
	var first error
	for _, c := range a.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
