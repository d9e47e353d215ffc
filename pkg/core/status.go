package core

import "time"

// Status is a point-in-time snapshot of the sync core.
type Status struct {
	Time              time.Time `json:"time"`
	Enabled           bool      `json:"enabled"`
	ServerNetID       uint16    `json:"serverNetId"`
	Players           int       `json:"players"`
	RemotePlayers     int       `json:"remotePlayers"`
	LiveEvents        int       `json:"liveEvents"`
	UnsentEvents      int       `json:"unsentEvents"`
	PendingRedispatch int       `json:"pendingRedispatch"`
	DeferredCommands  int       `json:"deferredCommands"`
	TrackedObjects    int       `json:"trackedObjects"`
	LocalObjects      int       `json:"localObjects"`
	LegacyGrid        bool      `json:"legacyGrid"`
}
