package main

import (
	"errors"
	"strconv"

	"github.com/onesync/clonecore/internal/dispatcher"
	"github.com/onesync/clonecore/internal/host"
	"github.com/onesync/clonecore/internal/onesync"
	"github.com/onesync/clonecore/pkg/cfxinterface"
	"github.com/onesync/clonecore/pkg/core"
)

var errNoCore = errors.New("core not started")

const (
	// logWriteCommand lacks the ':' prefix, so the console cannot reach it.
	logWriteCommand = "log.write"
	logBufferSize   = 256
)

// PlayerInfo is one row of the :PLAYERS: reply.
type PlayerInfo struct {
	NetID uint16 `json:"netId"`
	Index uint8  `json:"index"`
	Local bool   `json:"local"`
}

// EventsInfo is the :EVENTS: reply.
type EventsInfo struct {
	Live              int              `json:"live"`
	Unsent            int              `json:"unsent"`
	PendingRedispatch int              `json:"pendingRedispatch"`
	PoolSpace         bool             `json:"poolSpace"`
	ByName            []core.PoolEntry `json:"byName"`
}

// registerConsoleHandlers installs the console commands on d. They read the
// running core at call time, so the same set serves the early dispatcher and
// the core's own.
func registerConsoleHandlers(d *dispatcher.Dispatcher) {
	d.Register(":VERSION:", func(e dispatcher.Event) (any, error) {
		return []string{CurrentVersion, BuildDate}, nil
	})

	d.Register(":INIT:", func(e dispatcher.Event) (any, error) {
		dir := cfxinterface.ModuleDir()
		if len(e.Args) > 0 && e.Args[0] != "" {
			dir = e.Args[0]
		}
		if err := bootstrap(dir); err != nil {
			return nil, err
		}
		return LogFilePath, nil
	})

	// log lines from the host are written off the frame loop
	d.Register(logWriteCommand, func(e dispatcher.Event) (any, error) {
		SlogManager.WriteLog(":LOG:", e.Args[1], e.Args[0])
		return nil, nil
	}, dispatcher.Buffered(logBufferSize))

	d.Register(":LOG:", func(e dispatcher.Event) (any, error) {
		if len(e.Args) < 2 {
			return nil, errors.New("usage: :LOG:|level|message")
		}
		return d.Dispatch(dispatcher.Event{Command: logWriteCommand, Args: e.Args, Timestamp: e.Timestamp})
	})

	d.Register(cfxinterface.StartCommand, func(e dispatcher.Event) (any, error) {
		engine, err := host.Open()
		if err != nil {
			return nil, err
		}
		c, _, err := startCore(engine)
		if err != nil {
			return nil, err
		}
		return c.Status(), nil
	})

	d.Register(cfxinterface.StopCommand, withCore(func(c *onesync.Core, e dispatcher.Event) (any, error) {
		stopCore()
		return nil, nil
	}))

	d.Register(":STATUS:", withCore(func(c *onesync.Core, e dispatcher.Event) (any, error) {
		return c.Status(), nil
	}))

	d.Register(":PLAYERS:", withCore(func(c *onesync.Core, e dispatcher.Event) (any, error) {
		list := c.Players().All()
		if len(e.Args) > 0 && e.Args[0] == "remote" {
			list = c.Players().Remote()
		}
		out := make([]PlayerInfo, 0, len(list))
		for _, p := range list {
			out = append(out, PlayerInfo{NetID: p.NetID, Index: p.PhysicalIndex(), Local: p.Local})
		}
		return out, nil
	}))

	d.Register(":PLAYER:", withCore(func(c *onesync.Core, e dispatcher.Event) (any, error) {
		if len(e.Args) == 0 {
			return nil, errors.New("usage: :PLAYER:|netId")
		}
		id, err := strconv.ParseUint(e.Args[0], 10, 16)
		if err != nil {
			return nil, err
		}
		p := c.Players().ByNetID(uint16(id))
		if p == nil {
			return nil, errors.New("no such player")
		}
		var state map[string]any
		if bag, ok := c.StateBags().Get(core.StateBagName(p.NetID)); ok {
			state = bag.Data
		}
		return map[string]any{
			"netId": p.NetID,
			"index": p.PhysicalIndex(),
			"local": p.Local,
			"state": state,
		}, nil
	}))

	d.Register(":OBJECTS:", withCore(func(c *onesync.Core, e dispatcher.Event) (any, error) {
		return c.Ownership().Objects(), nil
	}))

	d.Register(":DELETE_OBJECT:", withCore(func(c *onesync.Core, e dispatcher.Event) (any, error) {
		if len(e.Args) == 0 {
			return nil, errors.New("usage: :DELETE_OBJECT:|objectId[|force]")
		}
		id, err := strconv.ParseUint(e.Args[0], 10, 16)
		if err != nil {
			return nil, err
		}
		force := len(e.Args) > 1 && e.Args[1] == "force"
		if !c.Ownership().Delete(uint16(id), force) {
			return nil, errors.New("no such object")
		}
		return nil, nil
	}))

	d.Register(":EVENTS:", withCore(func(c *onesync.Core, e dispatcher.Event) (any, error) {
		q := c.Events()
		return EventsInfo{
			Live:              q.Len(),
			Unsent:            q.Unsent(),
			PendingRedispatch: q.PendingRedispatch(),
			PoolSpace:         q.HasPoolSpace(),
			ByName:            q.Snapshot(),
		}, nil
	}))
}

func withCore(h func(*onesync.Core, dispatcher.Event) (any, error)) dispatcher.HandlerFunc {
	return func(e dispatcher.Event) (any, error) {
		c := activeCore.Load()
		if c == nil {
			return nil, errNoCore
		}
		return h(c, e)
	}
}
