package core

import "strconv"

// Index space limits. The logical index space covers every slot the server can
// hand out; only the first NativePlayerLimit indices are meaningful to native code.
const (
	MaxPlayers        = 256
	NativePlayerLimit = 32

	// SentinelIndex marks an owner or pending owner that has to be resolved
	// out-of-band through the object tracker, and doubles as the index of the
	// synthetic placeholder player.
	SentinelIndex uint8 = 31

	// NoPendingOwner is stored in an object's pending owner field when no
	// transfer is in flight.
	NoPendingOwner uint8 = 0xFF

	// AutoSlot asks the registry to pick a physical index itself.
	AutoSlot = -1
)

// StateBagName returns the replicated state store key for a player.
func StateBagName(netID uint16) string {
	return "player:" + strconv.FormatUint(uint64(netID), 10)
}

// ClientInfo is delivered by the transport when a client joins the session.
type ClientInfo struct {
	NetID  uint16
	SlotID int
	Name   string
}
