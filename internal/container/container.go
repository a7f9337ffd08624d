package container

import (
	"context"
	"fmt"

	"statsuite/adapters/estimators"
	"statsuite/adapters/postgres"
	"statsuite/adapters/sqlite"
	"statsuite/app"
	"statsuite/internal"
	"statsuite/internal/classifier"
	"statsuite/internal/config"
	"statsuite/internal/dispatch"
	"statsuite/internal/errors"
	"statsuite/internal/provenance"
	"statsuite/internal/registry"
	"statsuite/ports"
)

// Container holds all application dependencies and manages their lifecycle
type Container struct {
	Config *config.Config
	Logger *internal.Logger

	// Infrastructure
	Store ports.ProvenanceStore // nil for the memory driver

	// Engine components
	Registry   *registry.Registry
	Classifier *classifier.Classifier
	Tracker    *provenance.Tracker
	Suite      *dispatch.Suite

	// Application services
	AnalysisService *app.AnalysisService
}

// New wires config, logger, provenance store, tracker, registry, suite and
// service in that order
func New(ctx context.Context, cfg *config.Config) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	level, _ := internal.ParseLogLevel(cfg.Log.Level)
	c := &Container{
		Config: cfg,
		Logger: internal.NewLogger(level, cfg.Log.Format),
	}

	if err := c.initStore(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize provenance store: %w", err)
	}
	if err := c.initEngine(); err != nil {
		c.closeStore()
		return nil, fmt.Errorf("failed to initialize engine: %w", err)
	}

	c.Logger.Info("container initialized: %d methods, provenance driver %s", len(c.Registry.All()), cfg.Provenance.Driver)
	return c, nil
}

// initStore opens and migrates the configured provenance backend
func (c *Container) initStore(ctx context.Context) error {
	driver := c.Config.Provenance.Driver
	var store ports.ProvenanceStore
	switch driver {
	case config.DriverMemory, "":
		return nil
	case config.DriverSQLite:
		s, err := sqlite.Open(c.Config.Provenance.DSN)
		if err != nil {
			return errors.WithCode(errors.CodeStoreError, errors.Wrapf(err, "open %s provenance store", driver))
		}
		store = s
	case config.DriverPostgres:
		s, err := postgres.Connect(ctx, c.Config.Provenance.DSN)
		if err != nil {
			return errors.WithCode(errors.CodeStoreError, errors.Wrapf(err, "open %s provenance store", driver))
		}
		store = s
	default:
		return fmt.Errorf("unknown provenance driver %q", driver)
	}

	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return errors.Wrapf(err, "migrate %s provenance store", driver)
	}
	c.Store = store
	return nil
}

// initEngine builds the registry and dispatch suite
func (c *Container) initEngine() error {
	c.Registry = registry.New()
	if err := estimators.RegisterBuiltins(c.Registry); err != nil {
		return err
	}

	var sink ports.ProvenanceSink
	var reader ports.ProvenanceReader
	if c.Store != nil {
		sink, reader = c.Store, c.Store
	}
	c.Tracker = provenance.NewTracker(sink, c.Config.Provenance.QueueSize, c.Logger.Named("provenance"))
	c.Classifier = classifier.New(c.Config.Suite.MinSeriesLength, c.Logger.Named("classify"))
	c.Suite = dispatch.New(c.Registry, c.Classifier, c.Tracker, c.Config.Suite, c.Logger.Named("dispatch"))
	c.AnalysisService = app.NewAnalysisService(c.Suite, reader, c.Logger.Named("analysis"))
	return nil
}

func (c *Container) closeStore() {
	if c.Store != nil {
		if err := c.Store.Close(); err != nil {
			c.Logger.Warn("closing provenance store: %v", err)
		}
	}
}

// Shutdown drains pending provenance records and closes the store
func (c *Container) Shutdown(ctx context.Context) error {
	var firstErr error
	if c.Tracker != nil {
		if err := c.Tracker.Close(ctx); err != nil {
			firstErr = err
		}
	}
	if c.Store != nil {
		if err := c.Store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	_ = c.Logger.Sync()
	return firstErr
}
