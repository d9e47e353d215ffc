// Package memory keeps the forensic journal in memory and optionally exports
// it to a JSON file when closed.
package memory

import (
	"sync"
	"time"

	"github.com/onesync/clonecore/internal/config"
	"github.com/onesync/clonecore/pkg/core"
)

// Backend stores journal records in memory.
type Backend struct {
	cfg     config.MemoryConfig
	started time.Time

	ownership   []core.OwnershipChange
	sessions    []core.PlayerSession
	exhaustions []core.PoolExhaustion

	lastExportPath string
	mu             sync.RWMutex
}

// New creates a new memory backend.
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{cfg: cfg}
}

// Init marks the start of the journal.
func (b *Backend) Init() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.started = time.Now()
	return nil
}

// Close exports the journal when an export directory is configured.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cfg.ExportDir == "" {
		return nil
	}
	return b.exportJSON()
}

// RecordOwnershipChange appends an ownership record.
func (b *Backend) RecordOwnershipChange(c *core.OwnershipChange) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ownership = append(b.ownership, *c)
	return nil
}

// RecordPlayerSession appends a join or drop record.
func (b *Backend) RecordPlayerSession(s *core.PlayerSession) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sessions = append(b.sessions, *s)
	return nil
}

// RecordPoolExhaustion appends a pool exhaustion record.
func (b *Backend) RecordPoolExhaustion(p *core.PoolExhaustion) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec := *p
	rec.Entries = append([]core.PoolEntry(nil), p.Entries...)
	b.exhaustions = append(b.exhaustions, rec)
	return nil
}

// OwnershipChanges returns a copy of the ownership records.
func (b *Backend) OwnershipChanges() []core.OwnershipChange {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]core.OwnershipChange(nil), b.ownership...)
}

// PlayerSessions returns a copy of the session records.
func (b *Backend) PlayerSessions() []core.PlayerSession {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]core.PlayerSession(nil), b.sessions...)
}

// PoolExhaustions returns a copy of the pool exhaustion records.
func (b *Backend) PoolExhaustions() []core.PoolExhaustion {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]core.PoolExhaustion(nil), b.exhaustions...)
}

// GetExportedFilePath returns the path of the last export, or "".
func (b *Backend) GetExportedFilePath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportPath
}
