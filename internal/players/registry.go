// Package players owns participant identity and virtualizes the engine's
// 32-slot physical index space over the wider logical index space.
package players

import (
	"log/slog"
	"slices"
	"time"

	"github.com/onesync/clonecore/internal/native"
	"github.com/onesync/clonecore/internal/statebag"
	"github.com/onesync/clonecore/pkg/core"
)

// PlaceholderNetID is reported for the synthetic index-31 player.
const PlaceholderNetID uint16 = 0xFFFF

// Player is one participant bound to an engine player structure.
type Player struct {
	NetID       uint16
	Native      native.NetPlayer
	Local       bool
	Placeholder bool
}

// PhysicalIndex returns the index currently written in the engine structure.
func (p *Player) PhysicalIndex() uint8 {
	return p.Native.PhysicalIndex()
}

// SessionRecorder receives join and drop records.
type SessionRecorder interface {
	RecordPlayerSession(s *core.PlayerSession) error
}

// Option configures a Registry.
type Option func(*Registry)

// WithJournal records joins and drops.
func WithJournal(j SessionRecorder) Option {
	return func(r *Registry) { r.journal = j }
}

// WithClock overrides time.Now for journal records.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// Registry is the single source of truth for participants. It is not safe
// for concurrent use; every call happens on the frame loop.
type Registry struct {
	pool    native.PlayerPool
	bags    *statebag.Store
	journal SessionRecorder
	log     *slog.Logger
	now     func() time.Time

	byNetID       map[uint16]*Player
	byIndex       [core.MaxPlayers]*Player
	netIDByNative map[native.NetPlayer]uint16
	ordered       []*Player
	remote        []*Player
	local         *Player
	placeholder   *Player

	// next automatic remote index; survives Reset
	nextIndex uint8
}

// New creates an empty registry.
func New(pool native.PlayerPool, bags *statebag.Store, logger *slog.Logger, opts ...Option) *Registry {
	r := &Registry{
		pool:          pool,
		bags:          bags,
		log:           logger,
		now:           time.Now,
		byNetID:       make(map[uint16]*Player),
		netIDByNative: make(map[native.NetPlayer]uint16),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RegisterLocalPlayer binds the engine's local player to the slot the server
// assigned. It does nothing when np is not the engine's local player.
func (r *Registry) RegisterLocalPlayer(netID uint16, slotID int, np native.NetPlayer) *Player {
	if np == nil || np != r.pool.LocalPlayer() {
		r.log.Debug("ignoring local registration for foreign player", "netId", netID)
		return nil
	}
	if slotID < 0 || slotID >= core.MaxPlayers || uint8(slotID) == core.SentinelIndex {
		r.log.Warn("server assigned an unusable local slot", "netId", netID, "slot", slotID)
		return nil
	}

	p := &Player{NetID: netID, Native: np, Local: true}
	r.insert(p, uint8(slotID))
	r.local = p

	r.log.Info("local player registered", "netId", netID, "index", slotID)
	return p
}

// RegisterRemotePlayer allocates an engine structure for a remote client and
// places it at slot, or at the next free counter index when slot is
// core.AutoSlot.
func (r *Registry) RegisterRemotePlayer(netID uint16, slot int) *Player {
	var idx uint8
	switch {
	case slot == core.AutoSlot, slot == int(core.SentinelIndex):
		idx = r.allocateIndex()
	case slot < 0 || slot >= core.MaxPlayers:
		r.log.Warn("remote slot out of range", "netId", netID, "slot", slot)
		return nil
	default:
		idx = uint8(slot)
	}

	p := &Player{NetID: netID, Native: r.pool.Allocate()}
	r.insert(p, idx)

	r.log.Debug("remote player registered", "netId", netID, "index", idx)
	return p
}

// allocateIndex advances the counter past the sentinel and occupied slots.
// When every slot is taken it returns the counter value and the occupant is
// dropped by insert.
func (r *Registry) allocateIndex() uint8 {
	for range core.MaxPlayers {
		idx := r.nextIndex
		r.nextIndex++
		if idx == core.SentinelIndex {
			continue
		}
		if r.byIndex[idx] == nil {
			return idx
		}
	}
	idx := r.nextIndex
	r.nextIndex++
	if idx == core.SentinelIndex {
		idx = r.nextIndex
		r.nextIndex++
	}
	return idx
}

func (r *Registry) insert(p *Player, idx uint8) {
	if old, ok := r.byNetID[p.NetID]; ok {
		r.log.Warn("duplicate net id, dropping stale player", "netId", p.NetID, "index", old.PhysicalIndex())
		r.Drop(old.NetID)
	}
	if old := r.byIndex[idx]; old != nil {
		r.log.Warn("slot collision, dropping stale player", "index", idx, "stale", old.NetID, "netId", p.NetID)
		r.Drop(old.NetID)
	}

	p.Native.SetPhysicalIndex(idx)

	r.byNetID[p.NetID] = p
	r.byIndex[idx] = p
	r.netIDByNative[p.Native] = p.NetID

	r.ordered = append(r.ordered, p)
	sortByIndex(r.ordered)
	if !p.Local {
		r.remote = append(r.remote, p)
		sortByIndex(r.remote)
	}

	r.bags.Register(core.StateBagName(p.NetID))
	r.record(p, idx, true)
}

// Drop removes a participant. The engine structure of a remote player is
// reset but stays with the engine pool.
func (r *Registry) Drop(netID uint16) bool {
	p, ok := r.byNetID[netID]
	if !ok {
		r.log.Debug("drop for unknown player", "netId", netID)
		return false
	}

	// the ped back-reference does not survive Reset
	ped := p.Native.Ped()
	idx := p.PhysicalIndex()

	if !p.Local {
		p.Native.Reset()
	}

	r.ordered = removePlayer(r.ordered, p)
	r.remote = removePlayer(r.remote, p)
	if r.byIndex[idx] == p {
		r.byIndex[idx] = nil
	} else {
		// index was rewritten underneath us; find the slot by identity
		for i, q := range r.byIndex {
			if q == p {
				r.byIndex[i] = nil
			}
		}
	}
	delete(r.byNetID, netID)
	delete(r.netIDByNative, p.Native)
	r.bags.Unregister(core.StateBagName(netID))

	if ped != nil && !p.Local {
		r.pool.DetachPed(ped)
	}
	if r.local == p {
		r.local = nil
	}

	r.record(p, idx, false)
	r.log.Debug("player dropped", "netId", netID, "index", idx)
	return true
}

// Reset tears down every binding. Remote engine structures are reset; the
// local player keeps its structure and only loses its bindings. The
// automatic index counter is not rewound.
func (r *Registry) Reset() {
	for _, p := range r.ordered {
		if !p.Local {
			p.Native.Reset()
		}
		r.bags.Unregister(core.StateBagName(p.NetID))
	}

	clear(r.byNetID)
	clear(r.netIDByNative)
	r.byIndex = [core.MaxPlayers]*Player{}
	r.ordered = nil
	r.remote = nil
	r.local = nil
}

// ByIndex returns the player at logical index i, or nil.
func (r *Registry) ByIndex(i int) *Player {
	if i < 0 || i >= core.MaxPlayers {
		return nil
	}
	return r.byIndex[i]
}

// ByNetID returns the player with the given network id, or nil.
func (r *Registry) ByNetID(netID uint16) *Player {
	return r.byNetID[netID]
}

// NetIDOf is the reverse lookup from an engine structure.
func (r *Registry) NetIDOf(np native.NetPlayer) (uint16, bool) {
	id, ok := r.netIDByNative[np]
	return id, ok
}

// ByNative returns the player bound to an engine structure, or nil.
func (r *Registry) ByNative(np native.NetPlayer) *Player {
	id, ok := r.netIDByNative[np]
	if !ok {
		return nil
	}
	return r.byNetID[id]
}

// Local returns the local player, or nil before registration.
func (r *Registry) Local() *Player {
	return r.local
}

// All returns every player sorted by physical index. Callers must not modify it.
func (r *Registry) All() []*Player {
	return r.ordered
}

// Remote returns the remote players sorted by physical index. Callers must not modify it.
func (r *Registry) Remote() []*Player {
	return r.remote
}

// Len returns the number of registered players.
func (r *Registry) Len() int {
	return len(r.byNetID)
}

// Placeholder returns the synthetic index-31 player, allocating it on first
// use. It is never part of the lookup maps or ordered views.
func (r *Registry) Placeholder() *Player {
	if r.placeholder == nil {
		np := r.pool.Allocate()
		np.SetPhysicalIndex(core.SentinelIndex)
		r.placeholder = &Player{NetID: PlaceholderNetID, Native: np, Placeholder: true}
	}
	return r.placeholder
}

// WithPhysicalIndex runs fn with np's index temporarily set to idx.
func WithPhysicalIndex(np native.NetPlayer, idx uint8, fn func()) {
	prev := np.PhysicalIndex()
	np.SetPhysicalIndex(idx)
	defer np.SetPhysicalIndex(prev)
	fn()
}

func (r *Registry) record(p *Player, idx uint8, joined bool) {
	if r.journal == nil {
		return
	}
	err := r.journal.RecordPlayerSession(&core.PlayerSession{
		Time:          r.now(),
		NetID:         p.NetID,
		PhysicalIndex: idx,
		Local:         p.Local,
		Joined:        joined,
	})
	if err != nil {
		r.log.Warn("failed to journal player session", "netId", p.NetID, "error", err)
	}
}

func sortByIndex(list []*Player) {
	slices.SortFunc(list, func(a, b *Player) int {
		return int(a.PhysicalIndex()) - int(b.PhysicalIndex())
	})
}

func removePlayer(list []*Player, p *Player) []*Player {
	return slices.DeleteFunc(list, func(q *Player) bool { return q == p })
}
