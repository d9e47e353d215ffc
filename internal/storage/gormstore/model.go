package gormstore

import (
	"encoding/json"
	"time"

	"github.com/onesync/clonecore/pkg/core"
	"gorm.io/datatypes"
)

// OwnershipChange is the journal row for a transfer of authority.
type OwnershipChange struct {
	ID         uint      `gorm:"primarykey;autoIncrement;"`
	Time       time.Time `gorm:"index:idx_ownership_time;"`
	ObjectID   uint16    `gorm:"index:idx_ownership_object;"`
	EntityType string    `gorm:"size:32;"`
	FromIndex  uint8
	ToNetID    uint16 `gorm:"index:idx_ownership_to;"`
	ToIndex    uint8
	Kind       string `gorm:"size:16;"`
	Local      bool
}

func (*OwnershipChange) TableName() string {
	return "ownership_changes"
}

// PlayerSession is the journal row for a join or drop.
type PlayerSession struct {
	ID            uint      `gorm:"primarykey;autoIncrement;"`
	Time          time.Time `gorm:"index:idx_session_time;"`
	NetID         uint16    `gorm:"index:idx_session_net_id;"`
	PhysicalIndex uint8
	Local         bool
	Name          string `gorm:"size:64;"`
	Joined        bool
}

func (*PlayerSession) TableName() string {
	return "player_sessions"
}

// PoolExhaustion is the journal row for an event pool exhaustion. Entries
// holds the per-name occupancy as JSON.
type PoolExhaustion struct {
	ID      uint `gorm:"primarykey;autoIncrement;"`
	Time    time.Time
	Total   int
	Entries datatypes.JSON
}

func (*PoolExhaustion) TableName() string {
	return "pool_exhaustions"
}

// Models lists every table the journal migrates.
var Models = []any{
	&OwnershipChange{},
	&PlayerSession{},
	&PoolExhaustion{},
}

func ownershipRow(c core.OwnershipChange) OwnershipChange {
	return OwnershipChange{
		Time:       c.Time,
		ObjectID:   c.ObjectID,
		EntityType: c.EntityType.String(),
		FromIndex:  c.FromIndex,
		ToNetID:    c.ToNetID,
		ToIndex:    c.ToIndex,
		Kind:       string(c.Kind),
		Local:      c.Local,
	}
}

func sessionRow(s core.PlayerSession) PlayerSession {
	return PlayerSession{
		Time:          s.Time,
		NetID:         s.NetID,
		PhysicalIndex: s.PhysicalIndex,
		Local:         s.Local,
		Name:          s.Name,
		Joined:        s.Joined,
	}
}

func exhaustionRow(p core.PoolExhaustion) (PoolExhaustion, error) {
	entries := p.Entries
	if entries == nil {
		entries = []core.PoolEntry{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return PoolExhaustion{}, err
	}
	total := 0
	for _, e := range p.Entries {
		total += e.Count
	}
	return PoolExhaustion{Time: p.Time, Total: total, Entries: datatypes.JSON(data)}, nil
}
