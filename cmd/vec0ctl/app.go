package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"

	"github.com/viant/vec0/engine"
	"github.com/viant/vec0/index"
	"github.com/viant/vec0/logging"
	"github.com/viant/vec0/storage"
	"github.com/viant/vec0/vec"
	"github.com/viant/vec0/vecadmin"
)

// app holds the resources shared by every command.
type app struct {
	cfg      *Config
	logger   *logging.Logger
	registry *index.Registry
	db       *sql.DB
	host     storage.Host
}

func openApp(cfg *Config, logOut io.Writer) (*app, error) {
	logger := logging.FromConfig(logOut, cfg.Log.Level, cfg.Log.Format)
	opts := []index.Option{index.WithLogger(logger), index.WithMemoryLimit(cfg.MemoryLimit)}
	if cfg.Storage.BadgerDir != "" {
		b, err := storage.NewBadger(storage.BadgerOptions{Dir: cfg.Storage.BadgerDir, Logger: logger})
		if err != nil {
			return nil, err
		}
		opts = append(opts, index.WithBackend(b))
	}
	registry := index.NewRegistry(opts...)
	db, err := engine.Open(cfg.Database)
	if err != nil {
		_ = registry.Close(context.Background())
		return nil, fmt.Errorf("open %s: %w", cfg.Database, err)
	}
	// One connection keeps :memory: databases and vtab connects stable.
	db.SetMaxOpenConns(1)
	if _, err := vec.RegisterAs(db, cfg.Module, registry); err != nil {
		_ = db.Close()
		_ = registry.Close(context.Background())
		return nil, err
	}
	if err := vecadmin.Register(db, registry); err != nil {
		_ = db.Close()
		_ = registry.Close(context.Background())
		return nil, err
	}
	host, err := storage.ResolveHost(context.Background(), db)
	if err != nil {
		_ = db.Close()
		_ = registry.Close(context.Background())
		return nil, err
	}
	logger.Debug("vec0ctl ready", "database", cfg.Database, "host", host.ID, "module", cfg.Module, "badger", cfg.Storage.BadgerDir)
	return &app{cfg: cfg, logger: logger, registry: registry, db: db, host: host}, nil
}

// Close disconnects the SQLite tables, which flushes them into the host
// database or the Badger directory, then closes the registry.
func (a *app) Close() error {
	return errors.Join(a.db.Close(), a.registry.Close(context.Background()))
}

// admin connects table through the registry and runs an admin command on it.
func (a *app) admin(ctx context.Context, command, table string) ([]vecadmin.Row, error) {
	t, err := a.registry.Connect(ctx, a.database(), table, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = a.registry.Disconnect(ctx, t) }()
	return vecadmin.Run(ctx, a.registry, a.host.ID, command+":"+table)
}

// database is the registry name of the main schema of the host database.
func (a *app) database() string {
	return index.Database(a.host.ID, "main")
}
