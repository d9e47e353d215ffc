// Package native declares the engine-side collaborators the sync core drives.
// Implementations live in the interop layer; package sim provides an
// in-memory engine for tests and the demo driver.
package native

import (
	"bytes"

	"github.com/onesync/clonecore/pkg/core"
)

// NetPlayer is the engine's per-participant structure.
type NetPlayer interface {
	PhysicalIndex() uint8
	SetPhysicalIndex(idx uint8)
	// HasPlayerInfo reports whether the engine considers the player alive.
	HasPlayerInfo() bool
	// Ped returns the character entity bound to the player, or nil.
	Ped() NetworkObject
	// Reset clears the structure for reuse. The memory stays with the engine pool.
	Reset()
}

// PlayerPool hands out engine player structures.
type PlayerPool interface {
	LocalPlayer() NetPlayer
	// Allocate returns a fresh structure for a remote participant.
	Allocate() NetPlayer
	// DetachPed unbinds a character entity from a player that has been reset.
	DetachPed(ped NetworkObject)
}

// NetworkObject is a handle to an engine network object.
type NetworkObject interface {
	ObjectID() uint16
	EntityType() core.EntityType
	OwnerSlot() uint8
	PendingOwnerSlot() uint8
	SetPendingOwnerSlot(slot uint8)
	IsRemote() bool
	// Occupants returns the networked entities riding in the object.
	Occupants() []NetworkObject
	// CanPassControl evaluates the engine's eligibility predicate. reason is
	// the engine rejection code when ok is false.
	CanPassControl(player NetPlayer, transferType int) (ok bool, reason int)
}

// ObjectTracker is the replicated object id bookkeeping.
type ObjectTracker interface {
	GetClientId(obj NetworkObject) (uint16, bool)
	GetPendingClientId(obj NetworkObject) (uint16, bool)
	SetTargetOwner(obj NetworkObject, clientID uint16)
	ReleaseObjectId(objectID uint16)
	DeleteObjectId(objectID uint16, force bool)
	GetObjectList() []NetworkObject
	Logf(format string, args ...any)
}

// ControlNatives are the engine's own ownership entry points that the core
// delegates to after doing its bookkeeping.
type ControlNatives interface {
	PassControl(obj NetworkObject, player NetPlayer, transferType int)
	SetOwner(obj NetworkObject, player NetPlayer)
}

// GameEvent is a native replicated event instance.
type GameEvent interface {
	Type() uint16
	Name() string
	// EventID returns the id the event carries itself, if any.
	EventID() (uint16, bool)
	Equals(other GameEvent) bool
	HasTimedOut() bool
	MustPersist() bool
	RequiresReply() bool

	Prepare(buf *bytes.Buffer, source, target NetPlayer)
	PrepareExtraData(buf *bytes.Buffer, isReply bool, source, target NetPlayer)
	PrepareReply(buf *bytes.Buffer, source NetPlayer)

	HandleReply(r *bytes.Reader, source NetPlayer)
	HandleExtraData(r *bytes.Reader, isReply bool, source, target NetPlayer)
	Decide(source, target NetPlayer) bool

	// IsInScope is only valid for players whose physical index is below 32.
	IsInScope(player NetPlayer) bool
	Destroy()
}

// EventHandler deserializes an inbound event and hands it back to the core.
//
// The core owns the decision for events it received: after Handle returns it
// runs Decide on the event and then destroys it. Handle must only decode.
// Bindings that wrap an engine handler which goes on to call the hooked
// execute step are tolerated; the hook sees the core mid-decode and leaves
// the event alone.
type EventHandler interface {
	// Handle decodes the payload into a GameEvent, or returns nil to drop it.
	Handle(r *bytes.Reader, source, target NetPlayer, eventID uint16) GameEvent
}

// EventHandlerTable is the engine's handler list. ResolveHandler only
// returns handlers that passed the engine's own validity checks.
type EventHandlerTable interface {
	MaxEventType() uint16
	ResolveHandler(eventType uint16) (EventHandler, bool)
	NameFromType(eventType uint16) string
}

// EventPool exposes the engine's fixed-capacity event pool.
type EventPool interface {
	Located() bool
	HasSpace() bool
	// Occupancy returns live instances per event name.
	Occupancy() map[string]int
}

// Transport is the reliable network link to the server. Every callback it
// registers is invoked on the frame loop.
type Transport interface {
	ServerNetID() uint16
	ServerSlotID() int
	ServerProtocol() uint64
	NetBitVersion() int
	SendReliableCommand(name string, payload []byte)
	AddReliableHandler(name string, handler func(payload []byte))

	// OnClientInfo subscribes to client announcements, the local client's
	// own included.
	OnClientInfo(fn func(info core.ClientInfo))
	// OnClientDropped subscribes to clients leaving the session.
	OnClientDropped(fn func(netID uint16))
	// OnDisconnect subscribes to the loss of the server connection.
	OnDisconnect(fn func())
}

// WorldFocus reports the point the simulation is currently centered on.
type WorldFocus interface {
	Origin() (core.Vector3, bool)
}
