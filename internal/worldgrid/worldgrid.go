// Package worldgrid answers whether the local player owns ambient population
// at a world position, based on the sector grid the server replicates.
package worldgrid

import (
	"encoding/binary"
	"log/slog"
	"math"

	"github.com/onesync/clonecore/internal/config"
	"github.com/onesync/clonecore/internal/native"
	"github.com/onesync/clonecore/internal/players"
	"github.com/onesync/clonecore/pkg/core"
	"github.com/onesync/clonecore/pkg/wire"
	geom "github.com/peterstace/simplefeatures/geom"
)

// Grid layouts. The legacy grid has one bucket per physical index with
// {u8 x, u8 y, u8 slot} entries; the current grid is a single bucket of
// {u8 x, u8 y, u16 netId} entries.
const (
	LegacyBuckets      = 256
	LegacyEntries      = 12
	LegacyEntrySize    = 3
	LegacySize         = LegacyBuckets * LegacyEntries * LegacyEntrySize
	LegacySectorSize   = 75
	CurrentEntries     = 32
	CurrentEntrySize   = 4
	CurrentSize        = CurrentEntries * CurrentEntrySize
	CurrentSectorSize  = 150
	worldOffset        = 8192
	defaultOriginRange = 424.0
)

// Config selects the grid layout and the origin range.
type Config struct {
	// LegacyBelowProtocol is the first server protocol using the current grid.
	LegacyBelowProtocol uint64
	// OriginRange suppresses ownership further than this from the focus.
	OriginRange float64
}

// DefaultConfig returns the built-in grid settings.
func DefaultConfig() Config {
	return Config{
		LegacyBelowProtocol: config.LegacyGridBelowProtocol,
		OriginRange:         defaultOriginRange,
	}
}

// ConfigFromSettings converts the loaded configuration.
func ConfigFromSettings(c config.GridConfig) Config {
	cfg := DefaultConfig()
	if c.LegacyBelowProtocol != 0 {
		cfg.LegacyBelowProtocol = c.LegacyBelowProtocol
	}
	if c.OriginRange > 0 {
		cfg.OriginRange = c.OriginRange
	}
	return cfg
}

// Partition holds both grid buffers. Only the reliable handlers write to
// them; Owns only reads.
type Partition struct {
	players   *players.Registry
	transport native.Transport
	focus     native.WorldFocus
	cfg       Config
	log       *slog.Logger

	legacyGrid  [LegacySize]byte
	currentGrid [CurrentSize]byte

	// bytes the server has written since the last reset; an entry only
	// counts once all of its bytes have been written
	legacyWritten  [LegacySize]bool
	currentWritten [CurrentSize]bool
}

// New creates a partition with empty grids.
func New(reg *players.Registry, transport native.Transport, focus native.WorldFocus, cfg Config, logger *slog.Logger) *Partition {
	p := &Partition{
		players:   reg,
		transport: transport,
		focus:     focus,
		cfg:       cfg,
		log:       logger,
	}
	p.Reset()
	return p
}

// Reset empties both grids. Entries the server has not written since match
// no player, whatever their contents.
func (p *Partition) Reset() {
	p.legacyGrid = [LegacySize]byte{}
	p.currentGrid = [CurrentSize]byte{}
	p.legacyWritten = [LegacySize]bool{}
	p.currentWritten = [CurrentSize]bool{}
}

// Legacy reports whether the connected server speaks the legacy grid.
func (p *Partition) Legacy() bool {
	return p.transport.ServerProtocol() < p.cfg.LegacyBelowProtocol
}

// UpdateLegacy applies a msgWorldGrid update. Updates that would write past
// the end of the grid are dropped.
func (p *Partition) UpdateLegacy(u wire.GridUpdate) bool {
	if !inBounds(u, LegacySize) {
		p.log.Debug("dropping out-of-bounds world grid update", "base", u.Base, "len", len(u.Data))
		return false
	}
	copy(p.legacyGrid[u.Base:], u.Data)
	markWritten(p.legacyWritten[u.Base:], len(u.Data))
	return true
}

// UpdateCurrent applies a msgWorldGrid3 update.
func (p *Partition) UpdateCurrent(u wire.GridUpdate) bool {
	if !inBounds(u, CurrentSize) {
		p.log.Debug("dropping out-of-bounds world grid update", "base", u.Base, "len", len(u.Data))
		return false
	}
	copy(p.currentGrid[u.Base:], u.Data)
	markWritten(p.currentWritten[u.Base:], len(u.Data))
	return true
}

// HandleLegacyFrame decodes and applies a raw msgWorldGrid frame.
func (p *Partition) HandleLegacyFrame(frame []byte) {
	u, err := wire.DecodeGrid(frame)
	if err != nil {
		p.log.Debug("dropping malformed world grid frame", "error", err)
		return
	}
	p.UpdateLegacy(u)
}

// HandleCurrentFrame decodes and applies a raw msgWorldGrid3 frame.
func (p *Partition) HandleCurrentFrame(frame []byte) {
	u, err := wire.DecodeGrid3(frame)
	if err != nil {
		p.log.Debug("dropping malformed world grid frame", "error", err)
		return
	}
	p.UpdateCurrent(u)
}

func inBounds(u wire.GridUpdate, size int) bool {
	return uint64(u.Base)+uint64(len(u.Data)) <= uint64(size)
}

func markWritten(mask []bool, n int) {
	for i := range mask[:n] {
		mask[i] = true
	}
}

func written(mask []bool, off, size int) bool {
	for _, w := range mask[off : off+size] {
		if !w {
			return false
		}
	}
	return true
}

// Owns reports whether the local player owns the sector containing pos.
func (p *Partition) Owns(pos core.Vector3) bool {
	local := p.players.Local()
	if local == nil {
		return false
	}
	if p.Legacy() {
		return p.ownsLegacy(pos, local.PhysicalIndex())
	}
	return p.ownsCurrent(pos, local.NetID)
}

func sector(v float32, size int) int {
	return int(math.Max(float64(v)+worldOffset, 0)) / size
}

func (p *Partition) ownsLegacy(pos core.Vector3, index uint8) bool {
	x, y := sector(pos.X, LegacySectorSize), sector(pos.Y, LegacySectorSize)

	start := int(index) * LegacyEntries * LegacyEntrySize
	for i := 0; i < LegacyEntries; i++ {
		off := start + i*LegacyEntrySize
		if !written(p.legacyWritten[:], off, LegacyEntrySize) {
			continue
		}
		e := p.legacyGrid[off:]
		if int(e[0]) == x && int(e[1]) == y && e[2] == index {
			return true
		}
	}
	return false
}

func (p *Partition) ownsCurrent(pos core.Vector3, netID uint16) bool {
	x, y := sector(pos.X, CurrentSectorSize), sector(pos.Y, CurrentSectorSize)

	owned := false
	for i := 0; i < CurrentEntries; i++ {
		off := i * CurrentEntrySize
		if !written(p.currentWritten[:], off, CurrentEntrySize) {
			continue
		}
		e := p.currentGrid[off:]
		if int(e[0]) == x && int(e[1]) == y && binary.LittleEndian.Uint16(e[2:]) == netID {
			owned = true
			break
		}
	}
	if !owned {
		return false
	}
	return p.nearOrigin(pos)
}

// nearOrigin is true when no focus is known or pos lies within OriginRange
// of it on the ground plane.
func (p *Partition) nearOrigin(pos core.Vector3) bool {
	if p.focus == nil {
		return true
	}
	origin, ok := p.focus.Origin()
	if !ok {
		return true
	}
	d := toXY(pos).Sub(toXY(origin))
	return d.X*d.X+d.Y*d.Y <= p.cfg.OriginRange*p.cfg.OriginRange
}

func toXY(v core.Vector3) geom.XY {
	return geom.XY{X: float64(v.X), Y: float64(v.Y)}
}
