// Package onesync holds the Core context: the single object that owns the
// player registry, ownership protocol, event queue and world grid for one
// connection and routes the server's reliable commands into them.
package onesync

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/onesync/clonecore/internal/config"
	"github.com/onesync/clonecore/internal/dispatcher"
	"github.com/onesync/clonecore/internal/events"
	"github.com/onesync/clonecore/internal/monitor"
	"github.com/onesync/clonecore/internal/native"
	"github.com/onesync/clonecore/internal/ownership"
	"github.com/onesync/clonecore/internal/players"
	"github.com/onesync/clonecore/internal/statebag"
	"github.com/onesync/clonecore/internal/worldgrid"
	"github.com/onesync/clonecore/pkg/core"
	"github.com/onesync/clonecore/pkg/wire"
)

// Journal receives forensic records from every component.
type Journal interface {
	players.SessionRecorder
	ownership.ChangeRecorder
	events.PoolRecorder
}

// Config selects the Core's behavior.
type Config struct {
	Enabled             bool
	UnresolvedOwner     ownership.Fallback
	DeferredBacklogWarn int
	Events              events.Config
	Grid                worldgrid.Config
}

// DefaultConfig returns the built-in settings with OneSync enabled.
func DefaultConfig() Config {
	return Config{
		Enabled:             true,
		UnresolvedOwner:     ownership.FallbackPlaceholder,
		DeferredBacklogWarn: 1024,
		Events:              events.DefaultConfig(),
		Grid:                worldgrid.DefaultConfig(),
	}
}

// ConfigFromSettings builds a Config from the loaded settings.
func ConfigFromSettings(sc config.OneSyncConfig, ev config.EventsConfig, grid config.GridConfig) Config {
	cfg := Config{
		Enabled:             sc.Enabled,
		UnresolvedOwner:     ownership.ParseFallback(sc.UnresolvedOwner),
		DeferredBacklogWarn: ev.DeferredBacklogWarn,
		Events:              events.ConfigFromSettings(ev),
		Grid:                worldgrid.ConfigFromSettings(grid),
	}
	if cfg.DeferredBacklogWarn <= 0 {
		cfg.DeferredBacklogWarn = 1024
	}
	return cfg
}

// Dependencies holds the engine collaborators and ambient services.
type Dependencies struct {
	Transport native.Transport
	Pool      native.PlayerPool
	Tracker   native.ObjectTracker
	Natives   native.ControlNatives
	Handlers  native.EventHandlerTable
	EventPool native.EventPool
	Focus     native.WorldFocus

	Logger           *slog.Logger
	DispatcherLogger dispatcher.Logger
	Journal          Journal
	Monitor          *monitor.Service
	Clock            func() time.Time
	Config           Config
}

// Core is the per-process sync context. Everything except Dispatch, the
// counters and LogAttrs runs on the frame loop.
type Core struct {
	deps Dependencies
	cfg  Config
	log  *slog.Logger
	now  func() time.Time

	bags       *statebag.Store
	players    *players.Registry
	ownership  *ownership.Protocol
	events     *events.Queue
	grid       *worldgrid.Partition
	dispatcher *dispatcher.Dispatcher

	attached bool

	// mirrors for readers off the frame loop
	serverNetID atomic.Uint32
	playerCount atomic.Int64
	liveEvents  atomic.Int64
}

// New builds a Core and every component it owns.
func New(deps Dependencies) (*Core, error) {
	if deps.Transport == nil || deps.Pool == nil || deps.Tracker == nil || deps.Natives == nil ||
		deps.Handlers == nil || deps.EventPool == nil {
		return nil, errors.New("onesync: missing engine collaborator")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.DispatcherLogger == nil {
		deps.DispatcherLogger = deps.Logger
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}

	c := &Core{
		deps: deps,
		cfg:  deps.Config,
		log:  deps.Logger,
		now:  deps.Clock,
		bags: statebag.NewStore(),
	}

	playerOpts := []players.Option{players.WithClock(deps.Clock)}
	ownerOpts := []ownership.Option{ownership.WithClock(deps.Clock), ownership.WithFallback(c.cfg.UnresolvedOwner)}
	eventOpts := []events.Option{events.WithClock(deps.Clock), events.WithConfig(c.cfg.Events)}
	if deps.Journal != nil {
		playerOpts = append(playerOpts, players.WithJournal(deps.Journal))
		ownerOpts = append(ownerOpts, ownership.WithJournal(deps.Journal))
		eventOpts = append(eventOpts, events.WithJournal(deps.Journal))
	}

	c.players = players.New(deps.Pool, c.bags, c.log.With("component", "players"), playerOpts...)
	c.ownership = ownership.New(c.players, deps.Tracker, deps.Natives, c.log.With("component", "ownership"), ownerOpts...)

	var err error
	c.events, err = events.New(c.players, deps.Handlers, deps.EventPool, deps.Transport,
		c.log.With("component", "events"), eventOpts...)
	if err != nil {
		return nil, err
	}

	c.grid = worldgrid.New(c.players, deps.Transport, deps.Focus, c.cfg.Grid, c.log.With("component", "worldgrid"))

	c.dispatcher, err = dispatcher.New(deps.DispatcherLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to create dispatcher: %w", err)
	}
	return c, nil
}

// Attach subscribes the core to the transport: client joins and drops,
// disconnects, and the reliable commands. Reliable frames are parked in the
// dispatcher and processed by the next Tick; none are dropped for lack of
// room.
func (c *Core) Attach() {
	if c.attached {
		return
	}
	c.attached = true

	t := c.deps.Transport
	t.OnClientInfo(func(info core.ClientInfo) { c.OnClientInfoReceived(info) })
	t.OnClientDropped(func(netID uint16) { c.OnClientInfoDropped(netID) })
	t.OnDisconnect(c.Teardown)

	warn := c.cfg.DeferredBacklogWarn
	c.dispatcher.Register(wire.CmdNetGameEvent, c.onGameEvent(false), dispatcher.Deferred(warn))
	c.dispatcher.Register(wire.CmdNetGameEventV2, c.onGameEvent(true), dispatcher.Deferred(warn))
	c.dispatcher.Register(wire.CmdWorldGrid, c.onGrid(c.grid.HandleLegacyFrame), dispatcher.Deferred(warn))
	c.dispatcher.Register(wire.CmdWorldGrid3, c.onGrid(c.grid.HandleCurrentFrame), dispatcher.Deferred(warn))

	for _, cmd := range []string{wire.CmdNetGameEvent, wire.CmdNetGameEventV2, wire.CmdWorldGrid, wire.CmdWorldGrid3} {
		t.AddReliableHandler(cmd, func(payload []byte) {
			// the transport reuses its receive buffer
			frame := append([]byte(nil), payload...)
			if _, err := c.dispatcher.Dispatch(dispatcher.Event{Command: cmd, Payload: frame}); err != nil {
				c.log.Error("reliable command not queued", "command", cmd, "error", err)
			}
		})
	}
	c.log.Info("reliable handlers attached", "serverNetId", c.deps.Transport.ServerNetID())
}

func (c *Core) onGameEvent(v2 bool) dispatcher.HandlerFunc {
	return func(e dispatcher.Event) (any, error) {
		if !c.cfg.Enabled {
			return nil, nil
		}
		c.events.HandleInbound(e.Payload, v2)
		return nil, nil
	}
}

func (c *Core) onGrid(apply func([]byte)) dispatcher.HandlerFunc {
	return func(e dispatcher.Event) (any, error) {
		if !c.cfg.Enabled {
			return nil, nil
		}
		apply(e.Payload)
		return nil, nil
	}
}

// OnClientInfoReceived registers a joining client. The entry whose id matches
// the server-assigned id is the local player.
func (c *Core) OnClientInfoReceived(info core.ClientInfo) *players.Player {
	if !c.cfg.Enabled {
		return nil
	}
	defer c.refreshCounters()

	t := c.deps.Transport
	if info.NetID == t.ServerNetID() {
		return c.players.RegisterLocalPlayer(info.NetID, t.ServerSlotID(), c.deps.Pool.LocalPlayer())
	}
	return c.players.RegisterRemotePlayer(info.NetID, info.SlotID)
}

// OnClientInfoDropped removes a leaving client.
func (c *Core) OnClientInfoDropped(netID uint16) bool {
	if !c.cfg.Enabled {
		return false
	}
	defer c.refreshCounters()
	return c.players.Drop(netID)
}

// Tick runs one network update: queued reliable commands first, then the
// event queue, then the status snapshot.
func (c *Core) Tick() {
	if !c.cfg.Enabled {
		return
	}
	c.dispatcher.Drain()
	c.events.Tick()
	c.refreshCounters()

	if c.deps.Monitor != nil && c.deps.Monitor.Due(c.now()) {
		c.deps.Monitor.Offer(c.Status())
	}
}

// Teardown clears all per-connection state on disconnect.
func (c *Core) Teardown() {
	c.events.Clear()
	c.players.Reset()
	c.grid.Reset()
	c.bags.Reset()
	if n := c.dispatcher.Discard(); n > 0 {
		c.log.Debug("discarded queued commands", "count", n)
	}
	c.refreshCounters()
	c.log.Info("connection state cleared")
}

// Enabled reports whether OneSync virtualization is active.
func (c *Core) Enabled() bool {
	return c.cfg.Enabled
}

// Status returns a snapshot of the core.
func (c *Core) Status() core.Status {
	objects := c.ownership.Objects()
	local := 0
	for _, o := range objects {
		if o.Local {
			local++
		}
	}
	return core.Status{
		Time:              c.now(),
		Enabled:           c.cfg.Enabled,
		ServerNetID:       c.deps.Transport.ServerNetID(),
		Players:           c.players.Len(),
		RemotePlayers:     len(c.players.Remote()),
		LiveEvents:        c.events.Len(),
		UnsentEvents:      c.events.Unsent(),
		PendingRedispatch: c.events.PendingRedispatch(),
		DeferredCommands:  c.dispatcher.Pending(),
		TrackedObjects:    len(objects),
		LocalObjects:      local,
		LegacyGrid:        c.grid.Legacy(),
	}
}

func (c *Core) refreshCounters() {
	c.serverNetID.Store(uint32(c.deps.Transport.ServerNetID()))
	c.playerCount.Store(int64(c.players.Len()))
	c.liveEvents.Store(int64(c.events.Len()))
}

// LogAttrs feeds the logging context handler. Safe from any goroutine.
func (c *Core) LogAttrs() []slog.Attr {
	return []slog.Attr{
		slog.Int("serverNetId", int(c.serverNetID.Load())),
		slog.Int64("players", c.playerCount.Load()),
		slog.Int64("liveEvents", c.liveEvents.Load()),
	}
}

func (c *Core) Players() *players.Registry { return c.players }

func (c *Core) Ownership() *ownership.Protocol { return c.ownership }

func (c *Core) Events() *events.Queue { return c.events }

func (c *Core) Grid() *worldgrid.Partition { return c.grid }

func (c *Core) StateBags() *statebag.Store { return c.bags }

// Dispatcher exposes the command router so console commands can share it.
func (c *Core) Dispatcher() *dispatcher.Dispatcher { return c.dispatcher }
