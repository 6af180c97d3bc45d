// Package application wires settings, storage, the versioning engine and the
// record use cases into one App shared by the CLI and the MCP server.
package application

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/vestalhq/vestal/internal/config"
	"github.com/vestalhq/vestal/internal/database"
	"github.com/vestalhq/vestal/internal/gormstore"
	"github.com/vestalhq/vestal/internal/kvstore"
	"github.com/vestalhq/vestal/internal/logger"
	"github.com/vestalhq/vestal/internal/metrics"
	"github.com/vestalhq/vestal/internal/services"
	"github.com/vestalhq/vestal/internal/usecase"
	"github.com/vestalhq/vestal/internal/versioning"
)

type Options struct {
	// DBPath overrides the record database location.
	DBPath string
	// ConfigDir is searched first for vestal.yaml.
	ConfigDir string
	// LogLevel overrides the configured level when non-empty.
	LogLevel string
}

type App struct {
	Settings *config.Settings
	Logger   zerolog.Logger
	Registry *prometheus.Registry
	Records  *usecase.Record

	dbCtx   *database.Context
	closers []func() error
}

// Open loads settings and builds the App. Close releases every connection.
func Open(opts Options) (*App, error) {
	settings, err := config.Load(opts.ConfigDir)
	if err != nil {
		return nil, err
	}
	if opts.LogLevel != "" {
		settings.LogLevel = opts.LogLevel
	}

	log := logger.New(logger.Config{Level: settings.LogLevel, Pretty: settings.LogPretty})
	registry := prometheus.NewRegistry()

	dbCtx, err := database.CreateDatabase(opts.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create database: %w", err)
	}
	app := &App{
		Settings: settings,
		Logger:   log,
		Registry: registry,
		dbCtx:    dbCtx,
		closers:  []func() error{func() error { return database.CloseDatabase(dbCtx) }},
	}

	store, err := app.openStore()
	if err != nil {
		_ = app.Close()
		return nil, err
	}

	engine := versioning.New(store,
		versioning.WithLogger(logger.Component(log, "versioning")),
		versioning.WithObserver(metrics.New(registry)),
	)
	records := services.NewRecordService(dbCtx, engine, Kinds(settings),
		services.WithSaveOnRemove(settings.Versioning.SaveOnRemove),
		services.WithLogger(logger.Component(log, "records")),
	)
	app.Records = usecase.NewRecord(records)

	log.Debug().Str("backend", settings.Versions.Backend).Strs("kinds", records.Kinds()).Msg("application ready")
	return app, nil
}

func (a *App) openStore() (versioning.Store, error) {
	switch backend := a.Settings.Versions.Backend; backend {
	case config.BackendPostgres, config.BackendMySQL:
		db, err := gormstore.Open(backend, a.Settings.Versions.DSN)
		if err != nil {
			return nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("%s handle: %w", backend, err)
		}
		a.closers = append(a.closers, sqlDB.Close)

		store := gormstore.New(db)
		if err := store.AutoMigrate(); err != nil {
			return nil, err
		}
		return store, nil
	case config.BackendBadger:
		badgerLog := logger.Component(a.Logger, "kvstore")
		store, err := kvstore.Open(kvstore.Config{
			Path:       a.Settings.Versions.Path,
			SyncWrites: true,
			Logger:     &badgerLog,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store.Close)
		return store, nil
	default:
		return database.NewVersionRepository(a.dbCtx), nil
	}
}

// Close releases connections in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for _, closeFn := range slices.Backward(a.closers) {
		if err := closeFn(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Kinds converts the configured kinds, sorted by name.
func Kinds(settings *config.Settings) []services.Kind {
	kinds := make([]services.Kind, 0, len(settings.Kinds))
	for _, name := range slices.Sorted(maps.Keys(settings.Kinds)) {
		k := settings.Kinds[name]
		kinds = append(kinds, services.Kind{
			Name:    name,
			Columns: k.Columns,
			Policy:  k.Policy(),
			Anchors: k.Anchors,
		})
	}
	return kinds
}
