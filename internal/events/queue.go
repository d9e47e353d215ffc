// Package events replicates native game events to remote clients through the
// server and feeds inbound events back to the engine's handlers.
package events

import (
	"cmp"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/onesync/clonecore/internal/config"
	"github.com/onesync/clonecore/internal/native"
	"github.com/onesync/clonecore/internal/players"
	"github.com/onesync/clonecore/internal/queue"
	"github.com/onesync/clonecore/internal/util"
	"github.com/onesync/clonecore/pkg/core"
)

// Config bounds the queue.
type Config struct {
	Expiry     time.Duration
	MaxPayload int
	Blacklist  []string
	RateLimits []config.RateLimit
}

// DefaultConfig mirrors the engine's own limits.
func DefaultConfig() Config {
	return Config{
		Expiry:     5 * time.Second,
		MaxPayload: 1024,
		Blacklist:  slices.Clone(config.DefaultEventBlacklist),
		RateLimits: []config.RateLimit{
			{Name: "ALTER_WANTED_LEVEL_EVENT", Max: 5},
			{Name: "PED_SPEECH_", Prefix: true, Max: 50},
		},
	}
}

// ConfigFromSettings converts the loaded configuration.
func ConfigFromSettings(c config.EventsConfig) Config {
	cfg := DefaultConfig()
	if c.Expiry > 0 {
		cfg.Expiry = c.Expiry
	}
	if c.MaxPayload > 0 {
		cfg.MaxPayload = c.MaxPayload
	}
	if c.Blacklist != nil {
		cfg.Blacklist = c.Blacklist
	}
	if c.RateLimits != nil {
		cfg.RateLimits = c.RateLimits
	}
	return cfg
}

// Events whose state changes once they have been sent. Comparing them
// against a new instance is not reliable.
var unsafeToCompare = map[string]struct{}{
	"WEAPON_DAMAGE_EVENT":               {},
	"GIVE_WEAPON_EVENT":                 {},
	"NETWORK_UPDATE_SYNCED_SCENE_EVENT": {},
	"NETWORK_GIVE_PICKUP_REWARDS_EVENT": {},
	"SCRIPTED_GAME_EVENT":               {},
}

// PoolRecorder receives event pool exhaustion records.
type PoolRecorder interface {
	RecordPoolExhaustion(p *core.PoolExhaustion) error
}

// Option configures a Queue.
type Option func(*Queue)

// WithJournal records pool exhaustion.
func WithJournal(j PoolRecorder) Option {
	return func(q *Queue) { q.journal = j }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// WithConfig replaces DefaultConfig.
func WithConfig(cfg Config) Option {
	return func(q *Queue) { q.cfg = cfg }
}

type key struct {
	ident uint32
	id    uint16
}

type entry struct {
	ev       native.GameEvent
	name     string
	inserted time.Time
	sent     bool
}

type inbound struct {
	frame []byte
	v2    bool
}

// Queue holds outbound events until they are sent and expire, and replays
// inbound events the engine asked to see again. Like the registry it lives
// on the frame loop and is not safe for concurrent use.
type Queue struct {
	players   *players.Registry
	handlers  native.EventHandlerTable
	pool      native.EventPool
	transport native.Transport
	journal   PoolRecorder
	log       *slog.Logger
	now       func() time.Time
	cfg       Config
	metrics   *metrics

	events     map[key]*entry
	redispatch *queue.Queue[inbound]
	nextID     uint16

	lastRejected bool
	// set while an EventHandler decodes an inbound event
	deserializing bool

	// resolved lazily from the handler table
	tablesReady      bool
	blacklistedTypes map[uint16]struct{}
	typeByHash       map[uint32]uint16
	hashByType       map[uint16]uint32
}

// New creates an empty queue.
func New(reg *players.Registry, handlers native.EventHandlerTable, pool native.EventPool,
	transport native.Transport, logger *slog.Logger, opts ...Option) (*Queue, error) {
	q := &Queue{
		players:    reg,
		handlers:   handlers,
		pool:       pool,
		transport:  transport,
		log:        logger,
		now:        time.Now,
		cfg:        DefaultConfig(),
		events:     make(map[key]*entry),
		redispatch: queue.New[inbound](),
	}
	for _, opt := range opts {
		opt(q)
	}

	m, err := newMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to create event metrics: %w", err)
	}
	q.metrics = m
	return q, nil
}

// v2 reports whether the connection uses hashed event identities.
func (q *Queue) v2() bool {
	return q.transport.NetBitVersion() >= 4
}

func (q *Queue) resolveTables() {
	if q.tablesReady {
		return
	}
	q.tablesReady = true
	q.blacklistedTypes = make(map[uint16]struct{})
	q.typeByHash = make(map[uint32]uint16)
	q.hashByType = make(map[uint16]uint32)

	last := q.handlers.MaxEventType()
	for t := uint16(0); ; t++ {
		if name := q.handlers.NameFromType(t); name != "" {
			h := util.Joaat(name)
			q.typeByHash[h] = t
			q.hashByType[t] = h
			if slices.Contains(q.cfg.Blacklist, name) {
				q.blacklistedTypes[t] = struct{}{}
			}
		}
		if t == last {
			break
		}
	}
}

func (q *Queue) blacklisted(eventType uint16) bool {
	q.resolveTables()
	_, ok := q.blacklistedTypes[eventType]
	return ok
}

// identFor returns the key identity of an event type on this connection.
func (q *Queue) identFor(eventType uint16) (uint32, bool) {
	if !q.v2() {
		return uint32(eventType), true
	}
	q.resolveTables()
	h, ok := q.hashByType[eventType]
	return h, ok
}

// Enqueue takes ownership of ev. It returns false when the event was
// dropped, in which case ev has already been destroyed.
func (q *Queue) Enqueue(ev native.GameEvent) bool {
	name := ev.Name()
	if reason := q.admit(ev, name); reason != "" {
		q.log.Debug("dropping outbound event", "event", name, "reason", reason)
		q.metrics.dropped(reason)
		ev.Destroy()
		return false
	}

	id, ok := ev.EventID()
	if !ok {
		id = q.nextID
		q.nextID++
	}

	ident, ok := q.identFor(ev.Type())
	if !ok {
		q.log.Debug("dropping outbound event without a name", "type", ev.Type())
		q.metrics.dropped("unnamed")
		ev.Destroy()
		return false
	}

	k := key{ident: ident, id: id}
	if _, exists := q.events[k]; exists {
		q.metrics.dropped("collision")
		ev.Destroy()
		return false
	}
	q.events[k] = &entry{ev: ev, name: name, inserted: q.now()}
	q.metrics.enqueued()
	q.metrics.setLive(len(q.events))
	return true
}

func (q *Queue) admit(ev native.GameEvent, name string) string {
	if q.blacklisted(ev.Type()) {
		return "blacklist"
	}
	for _, rl := range q.cfg.RateLimits {
		if !util.MatchName(name, rl.Name, rl.Prefix) {
			continue
		}
		// PED_SPEECH_ style limits count every name sharing the prefix.
		if q.countMatching(rl) >= rl.Max {
			return "rate limit"
		}
	}
	for _, e := range q.events {
		if _, unsafe := unsafeToCompare[e.name]; unsafe && e.sent {
			continue
		}
		if e.ev.Equals(ev) {
			return "duplicate"
		}
	}
	return ""
}

func (q *Queue) countMatching(rl config.RateLimit) int {
	n := 0
	for _, e := range q.events {
		if util.MatchName(e.name, rl.Name, rl.Prefix) {
			n++
		}
	}
	return n
}

func (q *Queue) sortedKeys() []key {
	keys := make([]key, 0, len(q.events))
	for k := range q.events {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b key) int {
		if c := cmp.Compare(a.ident, b.ident); c != 0 {
			return c
		}
		return cmp.Compare(a.id, b.id)
	})
	return keys
}

// Tick sends every unsent event, expires old ones and replays rejected
// inbound events. It does nothing until the engine's event pool is located.
func (q *Queue) Tick() {
	if !q.pool.Located() {
		return
	}

	now := q.now()
	for _, k := range q.sortedKeys() {
		e := q.events[k]
		if !e.sent {
			q.send(k, e.ev)
			e.sent = true
		}
		if e.ev.HasTimedOut() || now.Sub(e.inserted) >= q.cfg.Expiry {
			e.ev.Destroy()
			delete(q.events, k)
			q.metrics.expired()
		}
	}
	q.metrics.setLive(len(q.events))

	// Events rejected again during the replay land in the fresh queue.
	batch := q.redispatch.GetAndEmpty()
	for _, in := range batch {
		q.metrics.redispatched()
		q.HandleInbound(in.frame, in.v2)
	}
}

// Clear destroys every queued event and forgets pending replays. The event
// id counter keeps running.
func (q *Queue) Clear() {
	for k, e := range q.events {
		e.ev.Destroy()
		delete(q.events, k)
	}
	q.redispatch.Clear()
	q.lastRejected = false
	q.metrics.setLive(0)
}

// Len returns the number of live outbound events.
func (q *Queue) Len() int {
	return len(q.events)
}

// Unsent returns the number of live events not yet sent.
func (q *Queue) Unsent() int {
	n := 0
	for _, e := range q.events {
		if !e.sent {
			n++
		}
	}
	return n
}

// PendingRedispatch returns the number of inbound events waiting for replay.
func (q *Queue) PendingRedispatch() int {
	return q.redispatch.Len()
}

// Deserializing reports whether an inbound event is being decoded by its
// handler. The queue decides such events itself once Handle returns.
func (q *Queue) Deserializing() bool {
	return q.deserializing
}

// LastRejected reports whether the last decided event asked to be replayed.
func (q *Queue) LastRejected() bool {
	return q.lastRejected
}

// HasPoolSpace reports whether the engine can allocate another event.
func (q *Queue) HasPoolSpace() bool {
	return q.pool.HasSpace()
}

// Snapshot lists live events per name, most frequent first.
func (q *Queue) Snapshot() []core.PoolEntry {
	counts := make(map[string]int)
	for _, e := range q.events {
		counts[e.name]++
	}
	return sortedEntries(counts)
}

func sortedEntries(counts map[string]int) []core.PoolEntry {
	out := make([]core.PoolEntry, 0, len(counts))
	for name, n := range counts {
		out = append(out, core.PoolEntry{Name: name, Count: n})
	}
	slices.SortFunc(out, func(a, b core.PoolEntry) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
	return out
}
