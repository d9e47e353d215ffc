package core

import "time"

// OwnershipChange records a transfer of authority over a network object.
type OwnershipChange struct {
	Time       time.Time    `json:"time"`
	ObjectID   uint16       `json:"objectId"`
	EntityType EntityType   `json:"entityType"`
	FromIndex  uint8        `json:"fromIndex"`
	ToNetID    uint16       `json:"toNetId"`
	ToIndex    uint8        `json:"toIndex"`
	Kind       TransferKind `json:"kind"`
	Local      bool         `json:"local"`
}

// TransferKind separates requested migrations from unconditional reassignments.
type TransferKind string

const (
	TransferRequested TransferKind = "request"
	TransferAssigned  TransferKind = "assign"
)

// PlayerSession records a join or drop of a participant.
type PlayerSession struct {
	Time          time.Time `json:"time"`
	NetID         uint16    `json:"netId"`
	PhysicalIndex uint8     `json:"physicalIndex"`
	Local         bool      `json:"local"`
	Name          string    `json:"name,omitempty"`
	Joined        bool      `json:"joined"`
}

// PoolExhaustion captures the event pool occupancy at the moment it ran out.
type PoolExhaustion struct {
	Time    time.Time   `json:"time"`
	Entries []PoolEntry `json:"entries"`
}

// PoolEntry is the live instance count for one event name.
type PoolEntry struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}
