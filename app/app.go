// Package app wires the HR engine's components from a config.Config. Both
// binaries build on it.
package app

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/warp/hr-engine/absence"
	"github.com/warp/hr-engine/config"
	"github.com/warp/hr-engine/employee"
	"github.com/warp/hr-engine/notify"
	"github.com/warp/hr-engine/probation"
	"github.com/warp/hr-engine/storage"
	"github.com/warp/hr-engine/store/gormstore"
	"github.com/warp/hr-engine/store/memory"
	"github.com/warp/hr-engine/store/sqlite"
)

// Store is everything a persistence backend provides.
type Store interface {
	absence.TxStore
	employee.Store
	notify.Store
}

// App holds the wired components. Close releases them.
type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	Store    Store
	Files    storage.FileStore
	Notifier *notify.Notifier
	Absences *absence.Service
	Scanner  *probation.Scanner

	closers []io.Closer
}

// New builds the store, file storage, notifier with its sinks and the domain
// services.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	store, err := OpenStore(cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	a.Store = store
	if c, ok := store.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}

	files, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize file storage: %w", err)
	}
	a.Files = files

	var sinks []notify.Sink
	if len(cfg.Notify.KafkaBrokers) > 0 {
		k := notify.NewKafkaSink(cfg.Notify.KafkaBrokers, cfg.Notify.KafkaTopic)
		sinks = append(sinks, k)
		a.closers = append(a.closers, k)
	}
	if cfg.Notify.TelegramToken != "" {
		tg, err := notify.NewTelegramSink(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID)
		if err != nil {
			a.Close()
			return nil, err
		}
		sinks = append(sinks, tg)
	}

	a.Notifier = notify.NewNotifier(store, logger, sinks...)
	a.Notifier.Messages = notify.NewCatalog(notify.Lang(cfg.Notify.Language))
	a.Absences = absence.NewService(store, store, files, a.Notifier, logger)
	a.Scanner = probation.NewScanner(store, a.Notifier, logger)

	logger.Info("application wired",
		zap.String("database", cfg.Database.Type),
		zap.Bool("orm", cfg.Database.ORM),
		zap.String("storage", cfg.Storage.Type),
		zap.Bool("encrypted_files", cfg.Storage.EncryptKey != ""),
		zap.Int("sinks", len(sinks)),
	)
	return a, nil
}

// OpenStore picks the persistence backend.
func OpenStore(cfg config.DatabaseConfig, logger *zap.Logger) (Store, error) {
	switch {
	case cfg.Type == "memory":
		logger.Warn("using in-memory store, data is lost on exit")
		return memory.New(), nil
	case cfg.Type == "postgres":
		s, err := gormstore.Open(gormstore.DialectPostgres, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres: %w", err)
		}
		return s, nil
	case cfg.Type == "sqlite" && cfg.ORM:
		s, err := gormstore.Open(gormstore.DialectSQLite, cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite via gorm: %w", err)
		}
		return s, nil
	case cfg.Type == "sqlite":
		s, err := sqlite.New(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}

// Close releases resources in reverse order of creation.
func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}
