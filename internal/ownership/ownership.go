// Package ownership decides and executes transfers of authority over
// network objects between players.
package ownership

import (
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/onesync/clonecore/internal/native"
	"github.com/onesync/clonecore/internal/players"
	"github.com/onesync/clonecore/pkg/core"
)

// Fallback selects what GetOwner reports when a sentinel owner cannot be
// resolved to a registered player.
type Fallback string

const (
	FallbackPlaceholder Fallback = "placeholder"
	FallbackNone        Fallback = "none"
)

// ParseFallback maps a config value to a Fallback, defaulting to the placeholder.
func ParseFallback(s string) Fallback {
	if Fallback(s) == FallbackNone {
		return FallbackNone
	}
	return FallbackPlaceholder
}

// ChangeRecorder receives ownership journal records.
type ChangeRecorder interface {
	RecordOwnershipChange(c *core.OwnershipChange) error
}

// Protocol implements ownership lookups and transfers. Like the registry it
// runs on the frame loop only.
type Protocol struct {
	players  *players.Registry
	tracker  native.ObjectTracker
	natives  native.ControlNatives
	journal  ChangeRecorder
	log      *slog.Logger
	fallback Fallback
	now      func() time.Time
}

// Option configures a Protocol.
type Option func(*Protocol)

// WithJournal records every transfer the protocol starts.
func WithJournal(j ChangeRecorder) Option {
	return func(p *Protocol) { p.journal = j }
}

// WithFallback selects what GetOwner reports for unresolvable owners.
func WithFallback(f Fallback) Option {
	return func(p *Protocol) { p.fallback = f }
}

// WithClock overrides the journal timestamp source.
func WithClock(now func() time.Time) Option {
	return func(p *Protocol) { p.now = now }
}

// New creates a Protocol.
func New(reg *players.Registry, tracker native.ObjectTracker, natives native.ControlNatives, logger *slog.Logger, opts ...Option) *Protocol {
	p := &Protocol{
		players:  reg,
		tracker:  tracker,
		natives:  natives,
		log:      logger,
		fallback: FallbackPlaceholder,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// GetOwner returns the authoritative player for obj. A non-sentinel owner
// slot always means the local player.
func (p *Protocol) GetOwner(obj native.NetworkObject) *players.Player {
	if obj.OwnerSlot() != core.SentinelIndex {
		return p.players.Local()
	}

	if clientID, ok := p.tracker.GetClientId(obj); ok {
		if owner := p.players.ByNetID(clientID); owner != nil {
			return owner
		}
	}

	if p.fallback == FallbackNone {
		return nil
	}
	return p.players.Placeholder()
}

// GetPendingOwner returns the target of an in-flight transfer, or nil.
func (p *Protocol) GetPendingOwner(obj native.NetworkObject) *players.Player {
	slot := obj.PendingOwnerSlot()
	if slot == core.NoPendingOwner {
		return nil
	}

	var target *players.Player
	if slot == core.SentinelIndex {
		clientID, ok := p.tracker.GetPendingClientId(obj)
		if !ok {
			return nil
		}
		target = p.players.ByNetID(clientID)
	} else {
		target = p.players.ByIndex(int(slot))
	}

	if target == nil || !target.Native.HasPlayerInfo() {
		return nil
	}
	return target
}

// RequestTransfer starts migrating obj to target. It reports false when
// there is nothing to do. Occupants of vehicles follow their carrier.
func (p *Protocol) RequestTransfer(obj native.NetworkObject, target *players.Player, transferType int) bool {
	owner := p.GetOwner(obj)
	if owner == nil || target == nil {
		return false
	}
	from := owner.PhysicalIndex()
	if target.PhysicalIndex() == from {
		return false
	}

	p.markPending(obj, target)

	if obj.EntityType().CarriesOccupants() {
		for _, occ := range obj.Occupants() {
			if occ == nil || occ.IsRemote() || occ.EntityType() == core.EntityObject {
				continue
			}
			p.RequestTransfer(occ, target, transferType)
		}
	}

	p.natives.PassControl(obj, target.Native, transferType)
	p.record(obj, from, target, core.TransferRequested)
	return true
}

// SetOwner reassigns obj unconditionally through the engine and, when the
// owner actually changed, tracks the new owner out of band. Every remote
// owner shares the sentinel slot, so a move between two remote players is
// detected by comparing the resolved owners rather than the raw slot.
func (p *Protocol) SetOwner(obj native.NetworkObject, newOwner *players.Player) {
	if newOwner == nil {
		return
	}
	if newOwner.Local {
		p.log.Warn("local player taking ownership",
			"object", obj.ObjectID(),
			"type", obj.EntityType().String(),
			"stack", string(debug.Stack()))
	}

	before := obj.OwnerSlot()
	previous := p.GetOwner(obj)
	p.natives.SetOwner(obj, newOwner.Native)
	if obj.OwnerSlot() == before && (before != core.SentinelIndex || previous == newOwner) {
		return
	}

	p.markPending(obj, newOwner)
	p.record(obj, before, newOwner, core.TransferAssigned)
}

// CanTransfer asks the engine whether obj may pass to player.
func (p *Protocol) CanTransfer(obj native.NetworkObject, player *players.Player, transferType int) bool {
	if player == nil {
		return false
	}
	ok, reason := obj.CanPassControl(player.Native, transferType)
	if !ok {
		p.log.Debug("control pass rejected",
			"object", obj.ObjectID(),
			"netId", player.NetID,
			"transferType", transferType,
			"reason", reason)
	}
	return ok
}

// Objects lists every object the tracker knows with its resolved owner.
func (p *Protocol) Objects() []core.ObjectInfo {
	list := p.tracker.GetObjectList()
	out := make([]core.ObjectInfo, 0, len(list))
	for _, obj := range list {
		if obj == nil {
			continue
		}
		info := core.ObjectInfo{ObjectID: obj.ObjectID(), Type: obj.EntityType().String()}
		if owner := p.GetOwner(obj); owner != nil && !owner.Placeholder {
			info.OwnerNetID = owner.NetID
			info.Local = owner.Local
			info.Resolved = true
		}
		out = append(out, info)
	}
	return out
}

// Delete removes objectID from the tracker. Unknown ids are ignored and
// reported as false. force skips the engine's own ownership checks.
func (p *Protocol) Delete(objectID uint16, force bool) bool {
	for _, obj := range p.tracker.GetObjectList() {
		if obj != nil && obj.ObjectID() == objectID {
			p.tracker.DeleteObjectId(objectID, force)
			p.tracker.Logf("delete: object %d (force %v)", objectID, force)
			return true
		}
	}
	return false
}

func (p *Protocol) markPending(obj native.NetworkObject, target *players.Player) {
	p.tracker.ReleaseObjectId(obj.ObjectID())
	obj.SetPendingOwnerSlot(core.SentinelIndex)
	p.tracker.SetTargetOwner(obj, target.NetID)
	p.tracker.Logf("markPending: object %d pending to client %d", obj.ObjectID(), target.NetID)
}

func (p *Protocol) record(obj native.NetworkObject, from uint8, to *players.Player, kind core.TransferKind) {
	if p.journal == nil {
		return
	}
	err := p.journal.RecordOwnershipChange(&core.OwnershipChange{
		Time:       p.now(),
		ObjectID:   obj.ObjectID(),
		EntityType: obj.EntityType(),
		FromIndex:  from,
		ToNetID:    to.NetID,
		ToIndex:    to.PhysicalIndex(),
		Kind:       kind,
		Local:      to.Local,
	})
	if err != nil {
		p.log.Warn("failed to journal ownership change", "object", obj.ObjectID(), "error", err)
	}
}
