// Package storage defines the forensic journal the sync core writes to.
package storage

import "github.com/onesync/clonecore/pkg/core"

// Backend is the interface all journal implementations must satisfy.
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	RecordOwnershipChange(c *core.OwnershipChange) error
	RecordPlayerSession(s *core.PlayerSession) error
	RecordPoolExhaustion(p *core.PoolExhaustion) error
}

// Flusher is an optional interface for backends that buffer writes.
type Flusher interface {
	Flush() error
}

// Exportable is an optional interface for backends that produce a file on
// close.
type Exportable interface {
	GetExportedFilePath() string
}
