// Package app wires config, stores, engines, dispatcher and the HTTP API
// into one runnable unit.
package app

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"tmatic/internal/config"
	"tmatic/internal/engine"
	"tmatic/internal/event"
	"tmatic/internal/instrument"
	"tmatic/internal/logger"
	"tmatic/internal/store/eventlog"
	"tmatic/internal/store/sqlite"
	reconhttp "tmatic/internal/transport/http"
)

type App struct {
	cfg        *config.Config
	cfgPath    string
	catalog    *instrument.Catalog
	ledger     *sqlite.Store
	reconLog   *eventlog.Store
	normalizer *event.Normalizer
	notifier   *engine.Notifier
	dispatcher *engine.Dispatcher
	server     *reconhttp.Server
}

// New builds the full pipeline from config. cfgPath is kept for hot reload.
func New(cfg *config.Config, cfgPath string) (*App, error) {
	catalog, err := loadCatalog(cfg.InstrumentsPath)
	if err != nil {
		return nil, err
	}
	ledgerStore, err := sqlite.Open(cfg.Ledger.DatabasePath)
	if err != nil {
		return nil, err
	}
	reconLog, err := eventlog.Open(cfg.Ledger.EventLogPath)
	if err != nil {
		return nil, err
	}
	normalizer, err := event.NewNormalizer()
	if err != nil {
		return nil, err
	}

	notifier := engine.NewNotifier(cfg.Dispatch.NotifyCapacity)
	appender := engine.NewAsyncAppender(ledgerStore, cfg.Ledger.AppendQueue)
	dispatcher := engine.NewDispatcher(notifier, appender, reconLog, cfg.Dispatch.QueueCapacity)

	for _, mc := range cfg.Markets {
		eng, err := engine.New(engine.Config{
			Market:     mc.Name,
			Account:    mc.Account,
			Catalog:    catalog,
			Store:      ledgerStore,
			Appender:   appender,
			Notifier:   notifier,
			Strategies: mc.Strategies,
		})
		if err != nil {
			return nil, fmt.Errorf("building engine for %s: %w", mc.Name, err)
		}
		rows, err := ledgerStore.LoadPositions(context.Background(), mc.Name, mc.Account)
		if err != nil {
			return nil, fmt.Errorf("restoring positions for %s: %w", mc.Name, err)
		}
		eng.Restore(rows)
		applyLimits(eng, mc)
		if err := dispatcher.Register(eng); err != nil {
			return nil, err
		}
		logger.Infof("market %s registered: %d strategies, %d restored positions",
			mc.Name, len(mc.Strategies), len(rows))
	}

	a := &App{
		cfg:        cfg,
		cfgPath:    cfgPath,
		catalog:    catalog,
		ledger:     ledgerStore,
		reconLog:   reconLog,
		normalizer: normalizer,
		notifier:   notifier,
		dispatcher: dispatcher,
	}
	if cfg.HTTP.Enabled {
		server, err := reconhttp.NewServer(reconhttp.ServerConfig{
			Addr:       cfg.HTTP.Listen,
			Dispatcher: dispatcher,
			Trades:     ledgerStore,
			ReconLog:   reconLog,
			Notifier:   notifier,
		})
		if err != nil {
			return nil, err
		}
		a.server = server
	}
	return a, nil
}

func loadCatalog(path string) (*instrument.Catalog, error) {
	if path == "" {
		return instrument.NewCatalog(), nil
	}
	return instrument.LoadCatalog(path)
}

func applyLimits(eng *engine.Engine, mc config.MarketConfig) {
	for _, lim := range mc.Limits {
		key := instrument.Key{Symbol: lim.Symbol, Market: mc.Name}
		eng.SetLimit(lim.Strategy, key, lim.Limit)
	}
}

// Submit normalizes one raw adapter record and queues it for its market.
func (a *App) Submit(ctx context.Context, market string, raw []byte) error {
	ev, err := a.normalizer.Normalize(raw)
	if err != nil {
		if eng, ok := a.dispatcher.Engine(market); ok {
			eng.Counters.Malformed.Add(1)
		}
		logger.Warnf("%s: dropping event: %v", market, err)
		return err
	}
	return a.dispatcher.Submit(ctx, market, ev)
}

// Dispatcher exposes the pipeline for adapters and tests.
func (a *App) Dispatcher() *engine.Dispatcher { return a.dispatcher }

// Run blocks until ctx is canceled or a component fails.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.dispatcher.Run(ctx) })
	if a.server != nil {
		g.Go(func() error { return a.server.Run(ctx) })
	}
	if a.cfgPath != "" {
		g.Go(func() error { return config.Watch(ctx, a.cfgPath, a.applyConfig) })
	}
	err := g.Wait()
	if closeErr := a.reconLog.Close(); closeErr != nil {
		logger.Warnf("closing recon log: %v", closeErr)
	}
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}

// applyConfig picks up the runtime-changeable settings from a reloaded
// config: tracked strategies and position limits.
func (a *App) applyConfig(cfg *config.Config) {
	for _, mc := range cfg.Markets {
		eng, ok := a.dispatcher.Engine(mc.Name)
		if !ok {
			logger.Warnf("config reload: market %s cannot be added at runtime", mc.Name)
			continue
		}
		for _, name := range mc.Strategies {
			eng.TrackStrategy(name)
		}
		applyLimits(eng, mc)
	}
}
