package events

import (
	"fmt"
	"strings"

	"github.com/onesync/clonecore/pkg/core"
)

// PoolExhaustedError describes the engine event pool at the moment it ran out.
type PoolExhaustedError struct {
	Entries []core.PoolEntry
}

func (e *PoolExhaustedError) Error() string {
	var sb strings.Builder
	sb.WriteString("ran out of event pool space")
	if len(e.Entries) > 0 {
		sb.WriteString("\n\nPool usage:")
		for _, entry := range e.Entries {
			fmt.Fprintf(&sb, "\n  %s: %d entries", entry.Name, entry.Count)
		}
	}
	return sb.String()
}

// PoolUsage returns the engine pool occupancy, most frequent first.
func (q *Queue) PoolUsage() []core.PoolEntry {
	return sortedEntries(q.pool.Occupancy())
}

// FatalPoolExhausted records the pool usage and panics with a
// *PoolExhaustedError. The engine cannot continue without pool space.
func (q *Queue) FatalPoolExhausted() {
	err := &PoolExhaustedError{Entries: q.PoolUsage()}

	if q.journal != nil {
		rec := &core.PoolExhaustion{Time: q.now(), Entries: err.Entries}
		if jerr := q.journal.RecordPoolExhaustion(rec); jerr != nil {
			q.log.Warn("failed to journal pool exhaustion", "error", jerr)
		}
	}
	q.log.Error("event pool exhausted", "entries", len(err.Entries), "summary", err.Error())
	panic(err)
}
