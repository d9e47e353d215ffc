package sim

import (
	"fmt"
	"slices"

	"github.com/onesync/clonecore/internal/native"
	"github.com/onesync/clonecore/pkg/core"
)

// Object is a simulated network object.
type Object struct {
	ID      uint16
	Type    core.EntityType
	Owner   uint8
	Pending uint8
	Remote  bool
	Riders  []*Object
	Reject  int // non-zero makes CanPassControl fail with this reason
}

// NewObject returns a locally owned object with no pending transfer.
func NewObject(id uint16, typ core.EntityType, owner uint8) *Object {
	return &Object{ID: id, Type: typ, Owner: owner, Pending: core.NoPendingOwner}
}

func (o *Object) ObjectID() uint16 { return o.ID }
func (o *Object) EntityType() core.EntityType { return o.Type }
func (o *Object) OwnerSlot() uint8 { return o.Owner }
func (o *Object) PendingOwnerSlot() uint8 { return o.Pending }
func (o *Object) SetPendingOwnerSlot(slot uint8) { o.Pending = slot }
func (o *Object) IsRemote() bool { return o.Remote }

func (o *Object) Occupants() []native.NetworkObject {
	out := make([]native.NetworkObject, len(o.Riders))
	for i, r := range o.Riders {
		out[i] = r
	}
	return out
}

func (o *Object) CanPassControl(player native.NetPlayer, transferType int) (bool, int) {
	if o.Reject != 0 {
		return false, o.Reject
	}
	return true, 0
}

// Tracker is a simulated object id tracker.
type Tracker struct {
	Clients  map[uint16]uint16
	Pendings map[uint16]uint16
	Released []uint16
	Deleted  []uint16
	Objects  []*Object
	Lines    []string
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		Clients:  make(map[uint16]uint16),
		Pendings: make(map[uint16]uint16),
	}
}

func (t *Tracker) GetClientId(obj native.NetworkObject) (uint16, bool) {
	id, ok := t.Clients[obj.ObjectID()]
	return id, ok
}

func (t *Tracker) GetPendingClientId(obj native.NetworkObject) (uint16, bool) {
	id, ok := t.Pendings[obj.ObjectID()]
	return id, ok
}

func (t *Tracker) SetTargetOwner(obj native.NetworkObject, clientID uint16) {
	t.Pendings[obj.ObjectID()] = clientID
}

func (t *Tracker) ReleaseObjectId(objectID uint16) {
	t.Released = append(t.Released, objectID)
}

func (t *Tracker) DeleteObjectId(objectID uint16, force bool) {
	t.Deleted = append(t.Deleted, objectID)
	delete(t.Clients, objectID)
	delete(t.Pendings, objectID)
	t.Objects = slices.DeleteFunc(t.Objects, func(o *Object) bool { return o.ID == objectID })
}

func (t *Tracker) GetObjectList() []native.NetworkObject {
	out := make([]native.NetworkObject, len(t.Objects))
	for i, o := range t.Objects {
		out[i] = o
	}
	return out
}

func (t *Tracker) Logf(format string, args ...any) {
	t.Lines = append(t.Lines, fmt.Sprintf(format, args...))
}

// ControlCall records one delegated native call.
type ControlCall struct {
	ObjectID uint16
	Player   native.NetPlayer
	Transfer int
}

// Natives records control-pass and owner reassignment calls. SetOwner moves
// the object's owner slot the way the engine does: the local player's index
// for local ownership, the sentinel for anyone else.
type Natives struct {
	Local  native.NetPlayer
	Passes []ControlCall
	Owners []ControlCall
}

func (n *Natives) PassControl(obj native.NetworkObject, player native.NetPlayer, transferType int) {
	n.Passes = append(n.Passes, ControlCall{ObjectID: obj.ObjectID(), Player: player, Transfer: transferType})
}

func (n *Natives) SetOwner(obj native.NetworkObject, player native.NetPlayer) {
	n.Owners = append(n.Owners, ControlCall{ObjectID: obj.ObjectID(), Player: player})
	o, ok := obj.(*Object)
	if !ok {
		return
	}
	if player == n.Local {
		o.Owner = n.Local.PhysicalIndex()
	} else {
		o.Owner = core.SentinelIndex
	}
}
