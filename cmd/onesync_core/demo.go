package main

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/onesync/clonecore/internal/config"
	"github.com/onesync/clonecore/internal/host"
	"github.com/onesync/clonecore/internal/native"
	"github.com/onesync/clonecore/internal/native/sim"
	"github.com/onesync/clonecore/internal/shim"
	"github.com/onesync/clonecore/pkg/cfxinterface"
	"github.com/onesync/clonecore/pkg/core"
	"github.com/onesync/clonecore/pkg/wire"
)

const (
	demoEventType  uint16 = 7
	demoEventName         = "DEMO_EVENT"
	demoLocalNetID uint16 = 1
	demoFirstNetID uint16 = 100
)

type demoConfig struct {
	Dir     string
	Players int
	Ticks   int
}

// demoReport summarizes what the simulated engine saw.
type demoReport struct {
	EventFrames   int
	ControlPasses int
	Ownerships    int
	OwnsOrigin    bool
}

// runDemo drives a core against the simulated engine: more remote players
// than the engine has slots, one event and one control pass per tick, and
// a world grid that gives the local player the origin sector.
func runDemo(cfg demoConfig, w io.Writer) (demoReport, error) {
	var report demoReport
	if err := bootstrap(cfg.Dir); err != nil {
		return report, err
	}

	transport := sim.NewTransport(demoLocalNetID, 0)
	transport.Protocol = config.LegacyGridBelowProtocol
	pool := sim.NewPool()
	natives := &sim.Natives{Local: pool.Local}
	handlers := sim.NewHandlers(64)
	handlers.Add(demoEventType, demoEventName, sim.HandlerFunc(
		func(r *bytes.Reader, source, target native.NetPlayer, eventID uint16) native.GameEvent {
			return &sim.Event{T: demoEventType, N: demoEventName, Accept: true}
		}))

	var hooks *shim.Hooks
	host.Register(func() (host.Engine, error) {
		return host.Engine{
			Transport: transport,
			Pool:      pool,
			Tracker:   sim.NewTracker(),
			Natives:   natives,
			Handlers:  handlers,
			EventPool: sim.NewEventPool(),
			Focus:     &sim.Focus{Set: true},
			Bind:      func(h *shim.Hooks) { hooks = h },
		}, nil
	})

	if reply := cfxinterface.Call(cfxinterface.StartCommand); !strings.HasPrefix(reply, `["ok"`) {
		return report, fmt.Errorf("starting core: %s", reply)
	}
	defer cfxinterface.Call(cfxinterface.StopCommand)

	transport.Join(core.ClientInfo{NetID: demoLocalNetID, SlotID: 0})
	for i := 0; i < cfg.Players; i++ {
		transport.Join(core.ClientInfo{NetID: demoFirstNetID + uint16(i), SlotID: core.AutoSlot})
	}
	transport.Deliver(wire.CmdWorldGrid3, wire.EncodeGrid3(wire.GridUpdate{Data: []byte{54, 54, byte(demoLocalNetID), 0}}))

	remotes := hooks.GetRemotePlayers()
	for tick := 0; tick < cfg.Ticks; tick++ {
		hooks.AddEvent(&sim.Event{T: demoEventType, N: demoEventName, Data: []byte{byte(tick)}})

		if len(remotes) > 0 {
			target := remotes[tick%len(remotes)]
			obj := sim.NewObject(uint16(tick+1), core.EntityAutomobile, 0)
			if hooks.CanPassControl(obj, target, 0) {
				hooks.PassObjectControl(target, obj, 0)
			}

			frame, err := wire.EncodeInbound(wire.InboundEvent{
				Source:  demoFirstNetID,
				EventID: uint16(tick),
				Ident:   uint32(demoEventType),
				Payload: []byte{byte(tick)},
			}, false)
			if err == nil {
				transport.Deliver(wire.CmdNetGameEvent, frame)
			}
		}

		hooks.NetworkUpdate()
	}

	if cfg.Players > 0 {
		transport.Leave(demoFirstNetID)
	}

	fmt.Fprintln(w, cfxinterface.Call(":STATUS:"))
	fmt.Fprintln(w, cfxinterface.Call(":EVENTS:"))
	fmt.Fprintln(w, cfxinterface.Call(":PLAYERS:"))

	report = demoReport{
		EventFrames:   len(transport.SentNamed(wire.CmdNetGameEvent)),
		ControlPasses: len(natives.Passes),
		Ownerships:    len(natives.Owners),
		OwnsOrigin:    hooks.DoesLocalPlayerOwnWorldGrid(core.Vector3{}),
	}
	fmt.Fprintf(w, "event frames sent: %d, control passes: %d, owns origin sector: %v\n",
		report.EventFrames, report.ControlPasses, report.OwnsOrigin)
	return report, nil
}
