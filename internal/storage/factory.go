package storage

import (
	"fmt"

	"github.com/onesync/clonecore/internal/config"
	"github.com/onesync/clonecore/internal/storage/gormstore"
	"github.com/onesync/clonecore/internal/storage/memory"
	"github.com/rs/zerolog"
)

// NewBackend creates a journal backend based on configuration.
func NewBackend(cfg config.StorageConfig, log zerolog.Logger) (Backend, error) {
	switch cfg.Type {
	case "", "memory":
		return memory.New(cfg.Memory), nil
	case "sqlite":
		return gormstore.New(gormstore.Config{
			Dialect:       gormstore.DialectSQLite,
			SQLitePath:    cfg.SQLitePath,
			FlushInterval: cfg.FlushInterval,
			QueueSize:     cfg.QueueSize,
		}, log), nil
	case "postgres":
		return gormstore.New(gormstore.Config{
			Dialect:       gormstore.DialectPostgres,
			Postgres:      cfg.Postgres,
			FlushInterval: cfg.FlushInterval,
			QueueSize:     cfg.QueueSize,
		}, log), nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
