// Package gormstore implements the journal on SQLite or PostgreSQL through
// GORM, with internal queues drained by a background writer goroutine.
package gormstore

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/onesync/clonecore/internal/config"
	"github.com/onesync/clonecore/internal/queue"
	"github.com/onesync/clonecore/pkg/core"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Dialect selects the database driver.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// ErrQueueFull is returned when a record arrives while its write queue is full.
var ErrQueueFull = errors.New("journal queue full")

// Config holds configuration for the GORM journal.
type Config struct {
	Dialect       Dialect
	SQLitePath    string
	Postgres      config.PostgresConfig
	FlushInterval time.Duration
	QueueSize     int
}

// queues holds the write queues for batch insertion.
type queues struct {
	Ownership   *queue.Queue[OwnershipChange]
	Sessions    *queue.Queue[PlayerSession]
	Exhaustions *queue.Queue[PoolExhaustion]
}

func newQueues(limit int) *queues {
	return &queues{
		Ownership:   queue.NewBounded[OwnershipChange](limit),
		Sessions:    queue.NewBounded[PlayerSession](limit),
		Exhaustions: queue.NewBounded[PoolExhaustion](limit),
	}
}

// Backend implements storage.Backend with queue-based batch writes.
type Backend struct {
	cfg     Config
	db      *gorm.DB
	log     zerolog.Logger
	queues  *queues
	dropped atomic.Uint64

	writeMu  sync.Mutex
	stopChan chan struct{}
	done     chan struct{}
}

// New creates a journal that opens its own connection on Init.
func New(cfg Config, log zerolog.Logger) *Backend {
	return &Backend{cfg: cfg, log: log}
}

// NewWithDB creates a journal on an existing connection.
func NewWithDB(db *gorm.DB, cfg Config, log zerolog.Logger) *Backend {
	return &Backend{cfg: cfg, db: db, log: log}
}

// Init connects if needed, migrates the schema and starts the writer.
func (b *Backend) Init() error {
	b.queues = newQueues(b.cfg.QueueSize)

	if b.db == nil {
		db, err := b.open()
		if err != nil {
			return err
		}
		b.db = db
	}

	b.log.Info().Str("dialect", b.db.Name()).Msg("Migrating journal schema")
	if err := b.db.AutoMigrate(Models...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}

	b.stopChan = make(chan struct{})
	b.done = make(chan struct{})
	go b.writeLoop()
	return nil
}

func (b *Backend) open() (*gorm.DB, error) {
	switch b.cfg.Dialect {
	case DialectPostgres:
		db, err := openPostgres(b.cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to access sql interface: %w", err)
		}
		if err = sqlDB.Ping(); err != nil {
			return nil, fmt.Errorf("failed to validate connection: %w", err)
		}
		sqlDB.SetMaxOpenConns(10)
		b.log.Info().Str("host", b.cfg.Postgres.Host).Msg("Connected to journal database")
		return db, nil
	case DialectSQLite, "":
		db, err := openSQLite(b.cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite journal: %w", err)
		}
		b.log.Info().Str("path", b.cfg.SQLitePath).Msg("Using SQLite journal")
		return db, nil
	default:
		return nil, fmt.Errorf("unknown dialect: %s", b.cfg.Dialect)
	}
}

// Close stops the writer, flushes what is left and closes the connection.
func (b *Backend) Close() error {
	if b.stopChan == nil {
		return nil
	}
	close(b.stopChan)
	<-b.done
	b.stopChan = nil

	err := b.Flush()
	if sqlDB, dbErr := b.db.DB(); dbErr == nil {
		err = errors.Join(err, sqlDB.Close())
	}
	return err
}

// DB exposes the underlying connection.
func (b *Backend) DB() *gorm.DB {
	return b.db
}

// Dropped returns the number of records rejected because a queue was full.
func (b *Backend) Dropped() uint64 {
	return b.dropped.Load()
}

func push[T any](b *Backend, q *queue.Queue[T], item T) error {
	if q.Push(item) == 0 {
		b.dropped.Add(1)
		return ErrQueueFull
	}
	return nil
}

// RecordOwnershipChange queues an ownership record.
func (b *Backend) RecordOwnershipChange(c *core.OwnershipChange) error {
	return push(b, b.queues.Ownership, ownershipRow(*c))
}

// RecordPlayerSession queues a join or drop record.
func (b *Backend) RecordPlayerSession(s *core.PlayerSession) error {
	return push(b, b.queues.Sessions, sessionRow(*s))
}

// RecordPoolExhaustion writes the record immediately. Pool exhaustion ends
// the process, so it cannot wait for the writer.
func (b *Backend) RecordPoolExhaustion(p *core.PoolExhaustion) error {
	row, err := exhaustionRow(*p)
	if err != nil {
		return fmt.Errorf("failed to encode pool entries: %w", err)
	}
	if err := push(b, b.queues.Exhaustions, row); err != nil {
		return err
	}
	return b.Flush()
}

// Flush writes every queued record.
func (b *Backend) Flush() error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	return errors.Join(
		writeQueue(b.db, b.queues.Ownership, "ownership_changes", b.log),
		writeQueue(b.db, b.queues.Sessions, "player_sessions", b.log),
		writeQueue(b.db, b.queues.Exhaustions, "pool_exhaustions", b.log),
	)
}

func (b *Backend) writeLoop() {
	defer close(b.done)

	interval := b.cfg.FlushInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			start := time.Now()
			if err := b.Flush(); err != nil {
				continue
			}
			b.log.Trace().Dur("duration", time.Since(start)).Msg("Flushed journal")
		}
	}
}

// writeQueue inserts all items of q in one transaction. Items go back on the
// queue when the insert fails.
func writeQueue[T any](db *gorm.DB, q *queue.Queue[T], name string, log zerolog.Logger) error {
	if db == nil || q.Empty() {
		return nil
	}

	items := q.GetAndEmpty()
	tx := db.Begin()
	if err := tx.Create(&items).Error; err != nil {
		log.Error().Err(err).Str("table", name).Int("rows", len(items)).Msg("Error writing journal batch")
		tx.Rollback()
		q.Push(items...)
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return tx.Commit().Error
}
