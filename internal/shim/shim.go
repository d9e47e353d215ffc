// Package shim is the boundary between patched engine call sites and the
// sync core. Every hook forwards to the engine's original implementation
// unless OneSync is enabled, in which case the core answers instead.
package shim

import (
	"bytes"
	"log/slog"

	"github.com/onesync/clonecore/internal/native"
	"github.com/onesync/clonecore/internal/onesync"
	"github.com/onesync/clonecore/internal/players"
	"github.com/onesync/clonecore/pkg/core"
)

// FireApplicabilityAll is the applicability mask that sends fires to every
// remote player.
const FireApplicabilityAll uint32 = 1 << 31

// Originals holds the engine implementations the hooks replaced. Nil entries
// behave as no-ops returning the zero value.
type Originals struct {
	AddEvent                    func(ev native.GameEvent)
	SendGameEvent               func(ev native.GameEvent) bool
	ExecuteNetGameEvent         func(ev native.GameEvent, r *bytes.Reader, source, target native.NetPlayer, eventID uint16)
	GetPlayerOwner              func(obj native.NetworkObject) native.NetPlayer
	GetPendingPlayerOwner       func(obj native.NetworkObject) native.NetPlayer
	PassObjectControl           func(player native.NetPlayer, obj native.NetworkObject, transferType int)
	SetOwner                    func(obj native.NetworkObject, player native.NetPlayer)
	CanPassControl              func(obj native.NetworkObject, player native.NetPlayer, transferType int) bool
	DoesLocalPlayerOwnWorldGrid func(pos core.Vector3) bool
	GetFireApplicability        func(ev native.GameEvent, pos core.Vector3) uint32
	SendAlterWantedLevel        func()
	PlayerTauntDecide           func(source native.NetPlayer) bool
	UnkEventMgr                 func(player native.NetPlayer)
	GetPlayerByIndex            func(idx int) native.NetPlayer
	GetAllPlayers               func() []native.NetPlayer
}

// Hooks implements every patched call site.
type Hooks struct {
	core *onesync.Core
	orig Originals
	log  *slog.Logger
}

// New creates the hook set for c.
func New(c *onesync.Core, orig Originals, logger *slog.Logger) *Hooks {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hooks{core: c, orig: orig, log: logger}
}

func (h *Hooks) enabled() bool {
	return h.core.Enabled()
}

// AddEvent queues an outbound event for replication.
func (h *Hooks) AddEvent(ev native.GameEvent) {
	if !h.enabled() {
		if h.orig.AddEvent != nil {
			h.orig.AddEvent(ev)
		}
		return
	}
	h.core.Events().Enqueue(ev)
}

// SendGameEvent is the engine's direct send. Under OneSync the queue sends
// instead, so the call is swallowed and reported as successful.
func (h *Hooks) SendGameEvent(ev native.GameEvent) bool {
	if !h.enabled() {
		return h.orig.SendGameEvent != nil && h.orig.SendGameEvent(ev)
	}
	return true
}

// ExecuteNetGameEvent is the terminal step of inbound handling. Events the
// core is decoding are decided by the core after their handler returns, so
// the engine reaching this step from inside one is a no-op. Otherwise the
// event is decided here and stays owned by the engine, which frees it.
func (h *Hooks) ExecuteNetGameEvent(ev native.GameEvent, r *bytes.Reader, source, target native.NetPlayer, eventID uint16) {
	if !h.enabled() {
		if h.orig.ExecuteNetGameEvent != nil {
			h.orig.ExecuteNetGameEvent(ev, r, source, target, eventID)
		}
		return
	}
	if h.core.Events().Deserializing() {
		return
	}
	h.core.Events().Decide(ev, source, target, r, eventID)
}

// GetPlayerOwner resolves the authoritative player of obj.
func (h *Hooks) GetPlayerOwner(obj native.NetworkObject) native.NetPlayer {
	if !h.enabled() {
		if h.orig.GetPlayerOwner == nil {
			return nil
		}
		return h.orig.GetPlayerOwner(obj)
	}
	return nativeOf(h.core.Ownership().GetOwner(obj))
}

// GetPendingPlayerOwner resolves the target of an in-flight transfer.
func (h *Hooks) GetPendingPlayerOwner(obj native.NetworkObject) native.NetPlayer {
	if !h.enabled() {
		if h.orig.GetPendingPlayerOwner == nil {
			return nil
		}
		return h.orig.GetPendingPlayerOwner(obj)
	}
	return nativeOf(h.core.Ownership().GetPendingOwner(obj))
}

// PassObjectControl starts a transfer of obj to player.
func (h *Hooks) PassObjectControl(player native.NetPlayer, obj native.NetworkObject, transferType int) {
	if !h.enabled() {
		if h.orig.PassObjectControl != nil {
			h.orig.PassObjectControl(player, obj, transferType)
		}
		return
	}
	target := h.resolve(player)
	if target == nil {
		h.log.Debug("control pass to unknown player", "object", obj.ObjectID())
		return
	}
	h.core.Ownership().RequestTransfer(obj, target, transferType)
}

// SetOwner reassigns obj unconditionally.
func (h *Hooks) SetOwner(obj native.NetworkObject, player native.NetPlayer) {
	if !h.enabled() {
		if h.orig.SetOwner != nil {
			h.orig.SetOwner(obj, player)
		}
		return
	}
	owner := h.resolve(player)
	if owner == nil {
		h.log.Debug("owner change to unknown player", "object", obj.ObjectID())
		return
	}
	h.core.Ownership().SetOwner(obj, owner)
}

// CanPassControl asks whether obj may move to player.
func (h *Hooks) CanPassControl(obj native.NetworkObject, player native.NetPlayer, transferType int) bool {
	if !h.enabled() {
		return h.orig.CanPassControl != nil && h.orig.CanPassControl(obj, player, transferType)
	}
	return h.core.Ownership().CanTransfer(obj, h.resolve(player), transferType)
}

// DoesLocalPlayerOwnWorldGrid decides ambient population authority at pos.
func (h *Hooks) DoesLocalPlayerOwnWorldGrid(pos core.Vector3) bool {
	if !h.enabled() {
		return h.orig.DoesLocalPlayerOwnWorldGrid != nil && h.orig.DoesLocalPlayerOwnWorldGrid(pos)
	}
	return h.core.Grid().Owns(pos)
}

// GetFireApplicability sends every fire to every remote player under OneSync.
func (h *Hooks) GetFireApplicability(ev native.GameEvent, pos core.Vector3) uint32 {
	if !h.enabled() {
		if h.orig.GetFireApplicability == nil {
			return 0
		}
		return h.orig.GetFireApplicability(ev, pos)
	}
	return FireApplicabilityAll
}

// SendAlterWantedLevel drops the send when the event pool is full. This
// check applies with and without OneSync.
func (h *Hooks) SendAlterWantedLevel() {
	if !h.core.Events().HasPoolSpace() {
		h.log.Debug("wanted level change skipped, event pool full")
		return
	}
	if h.orig.SendAlterWantedLevel != nil {
		h.orig.SendAlterWantedLevel()
	}
}

// PlayerTauntDecide accepts taunts from players without a ped. The
// placeholder player never has one.
func (h *Hooks) PlayerTauntDecide(source native.NetPlayer) bool {
	if source == nil || source.Ped() == nil {
		return true
	}
	return h.orig.PlayerTauntDecide == nil || h.orig.PlayerTauntDecide(source)
}

// GamerHandleValid always rejects: the placeholder player carries no gamer
// handle, so cash metrics are never reported.
func (h *Hooks) GamerHandleValid() bool {
	return false
}

// UnkEventMgr is an event manager pass that assumes at most 32 players. It
// does not run under OneSync.
func (h *Hooks) UnkEventMgr(player native.NetPlayer) {
	if !h.enabled() && h.orig.UnkEventMgr != nil {
		h.orig.UnkEventMgr(player)
	}
}

// GetPlayerByIndex translates an engine index. The sentinel index always
// yields the placeholder.
func (h *Hooks) GetPlayerByIndex(idx int) native.NetPlayer {
	if !h.enabled() {
		if h.orig.GetPlayerByIndex == nil {
			return nil
		}
		return h.orig.GetPlayerByIndex(idx)
	}
	if idx == int(core.SentinelIndex) {
		return h.core.Players().Placeholder().Native
	}
	return nativeOf(h.core.Players().ByIndex(idx))
}

// GetAllPlayers lists every player ordered by physical index.
func (h *Hooks) GetAllPlayers() []native.NetPlayer {
	if !h.enabled() {
		if h.orig.GetAllPlayers == nil {
			return nil
		}
		return h.orig.GetAllPlayers()
	}
	return natives(h.core.Players().All())
}

// GetRemotePlayers lists the remote players ordered by physical index.
func (h *Hooks) GetRemotePlayers() []native.NetPlayer {
	return natives(h.core.Players().Remote())
}

// GetLocalPlayer returns the registered local player structure, or nil.
func (h *Hooks) GetLocalPlayer() native.NetPlayer {
	return nativeOf(h.core.Players().Local())
}

// NetworkUpdate is called once per frame from the engine's network update.
// It runs the core's tick: queued reliable commands, then the event queue.
func (h *Hooks) NetworkUpdate() {
	h.core.Tick()
}

// OnEventPoolExhausted is called by the engine when it cannot allocate an
// event. It does not return.
func (h *Hooks) OnEventPoolExhausted() {
	h.core.Events().FatalPoolExhausted()
}

// resolve maps an engine structure back to a player. The placeholder is
// recognized by identity since it is never registered.
func (h *Hooks) resolve(np native.NetPlayer) *players.Player {
	if np == nil {
		return nil
	}
	reg := h.core.Players()
	if p := reg.ByNative(np); p != nil {
		return p
	}
	if ph := reg.Placeholder(); ph.Native == np {
		return ph
	}
	return nil
}

func nativeOf(p *players.Player) native.NetPlayer {
	if p == nil {
		return nil
	}
	return p.Native
}

func natives(list []*players.Player) []native.NetPlayer {
	out := make([]native.NetPlayer, len(list))
	for i, p := range list {
		out[i] = p.Native
	}
	return out
}
