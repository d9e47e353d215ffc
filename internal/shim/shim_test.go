package shim

import (
	"bytes"
	"testing"

	"github.com/onesync/clonecore/internal/native"
	"github.com/onesync/clonecore/internal/native/sim"
	"github.com/onesync/clonecore/internal/onesync"
	"github.com/onesync/clonecore/pkg/core"
	"github.com/onesync/clonecore/pkg/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type env struct {
	hooks    *Hooks
	core     *onesync.Core
	pool     *sim.Pool
	tracker  *sim.Tracker
	natives  *sim.Natives
	evPool   *sim.EventPool
	handlers *sim.Handlers
	calls    map[string]int
}

func newEnv(t *testing.T, enabled bool) *env {
	t.Helper()
	e := &env{
		pool:     sim.NewPool(),
		tracker:  sim.NewTracker(),
		evPool:   sim.NewEventPool(),
		handlers: sim.NewHandlers(20),
		calls:    make(map[string]int),
	}
	e.natives = &sim.Natives{Local: e.pool.Local}
	e.handlers.Add(1, "TEST_EVENT", nil)

	cfg := onesync.DefaultConfig()
	cfg.Enabled = enabled
	c, err := onesync.New(onesync.Dependencies{
		Transport: sim.NewTransport(7, 3),
		Pool:      e.pool,
		Tracker:   e.tracker,
		Natives:   e.natives,
		Handlers:  e.handlers,
		EventPool: e.evPool,
		Config:    cfg,
	})
	require.NoError(t, err)
	e.core = c
	e.hooks = New(c, e.originals(), nil)
	return e
}

func (e *env) originals() Originals {
	hit := func(name string) { e.calls[name]++ }
	return Originals{
		AddEvent:      func(native.GameEvent) { hit("AddEvent") },
		SendGameEvent: func(native.GameEvent) bool { hit("SendGameEvent"); return false },
		ExecuteNetGameEvent: func(native.GameEvent, *bytes.Reader, native.NetPlayer, native.NetPlayer, uint16) {
			hit("ExecuteNetGameEvent")
		},
		GetPlayerOwner:        func(native.NetworkObject) native.NetPlayer { hit("GetPlayerOwner"); return nil },
		GetPendingPlayerOwner: func(native.NetworkObject) native.NetPlayer { hit("GetPendingPlayerOwner"); return nil },
		PassObjectControl:     func(native.NetPlayer, native.NetworkObject, int) { hit("PassObjectControl") },
		SetOwner:              func(native.NetworkObject, native.NetPlayer) { hit("SetOwner") },
		CanPassControl: func(native.NetworkObject, native.NetPlayer, int) bool {
			hit("CanPassControl")
			return true
		},
		DoesLocalPlayerOwnWorldGrid: func(core.Vector3) bool { hit("DoesLocalPlayerOwnWorldGrid"); return true },
		GetFireApplicability:        func(native.GameEvent, core.Vector3) uint32 { hit("GetFireApplicability"); return 3 },
		SendAlterWantedLevel:        func() { hit("SendAlterWantedLevel") },
		PlayerTauntDecide:           func(native.NetPlayer) bool { hit("PlayerTauntDecide"); return false },
		UnkEventMgr:                 func(native.NetPlayer) { hit("UnkEventMgr") },
		GetPlayerByIndex:            func(int) native.NetPlayer { hit("GetPlayerByIndex"); return nil },
		GetAllPlayers:               func() []native.NetPlayer { hit("GetAllPlayers"); return nil },
	}
}

// join registers the local player (net id 7, slot 3) and a remote (net id 42).
func (e *env) join() {
	e.core.OnClientInfoReceived(core.ClientInfo{NetID: 7, SlotID: 3})
	e.core.OnClientInfoReceived(core.ClientInfo{NetID: 42, SlotID: 40})
}

func TestPassThroughWhenDisabled(t *testing.T) {
	e := newEnv(t, false)
	h := e.hooks
	obj := sim.NewObject(1, core.EntityAutomobile, 3)
	ev := &sim.Event{T: 1, N: "TEST_EVENT"}

	h.AddEvent(ev)
	assert.False(t, h.SendGameEvent(ev))
	h.ExecuteNetGameEvent(ev, bytes.NewReader(nil), nil, nil, 1)
	assert.Nil(t, h.GetPlayerOwner(obj))
	assert.Nil(t, h.GetPendingPlayerOwner(obj))
	h.PassObjectControl(nil, obj, 0)
	h.SetOwner(obj, nil)
	assert.True(t, h.CanPassControl(obj, nil, 0))
	assert.True(t, h.DoesLocalPlayerOwnWorldGrid(core.Vector3{}))
	assert.Equal(t, uint32(3), h.GetFireApplicability(ev, core.Vector3{}))
	h.UnkEventMgr(nil)
	assert.Nil(t, h.GetPlayerByIndex(31))
	assert.Nil(t, h.GetAllPlayers())

	for _, name := range []string{
		"AddEvent", "SendGameEvent", "ExecuteNetGameEvent", "GetPlayerOwner", "GetPendingPlayerOwner",
		"PassObjectControl", "SetOwner", "CanPassControl", "DoesLocalPlayerOwnWorldGrid",
		"GetFireApplicability", "UnkEventMgr", "GetPlayerByIndex", "GetAllPlayers",
	} {
		assert.Equal(t, 1, e.calls[name], name)
	}
	assert.Equal(t, 0, e.core.Events().Len())
	assert.Equal(t, 0, ev.Decisions)
}

func TestPassThroughWithoutOriginals(t *testing.T) {
	e := newEnv(t, false)
	h := New(e.core, Originals{}, nil)
	obj := sim.NewObject(1, core.EntityAutomobile, 3)

	assert.NotPanics(t, func() {
		h.AddEvent(&sim.Event{})
		assert.False(t, h.SendGameEvent(&sim.Event{}))
		assert.Nil(t, h.GetPlayerOwner(obj))
		assert.False(t, h.CanPassControl(obj, nil, 0))
		assert.Zero(t, h.GetFireApplicability(nil, core.Vector3{}))
		h.UnkEventMgr(nil)
	})
}

func TestEventHooks(t *testing.T) {
	e := newEnv(t, true)
	e.join()
	h := e.hooks

	ev := &sim.Event{T: 1, N: "TEST_EVENT"}
	h.AddEvent(ev)
	assert.Equal(t, 1, e.core.Events().Len())
	assert.True(t, h.SendGameEvent(ev))

	inbound := &sim.Event{T: 1, N: "TEST_EVENT", Accept: true}
	h.ExecuteNetGameEvent(inbound, bytes.NewReader(nil), e.core.Players().ByNetID(42).Native, e.pool.Local, 9)
	assert.Equal(t, 1, inbound.Decisions)

	h.UnkEventMgr(nil)
	assert.Zero(t, e.calls["AddEvent"]+e.calls["SendGameEvent"]+e.calls["ExecuteNetGameEvent"]+e.calls["UnkEventMgr"])
}

func TestGetPlayerOwner(t *testing.T) {
	e := newEnv(t, true)
	e.join()
	remote := e.core.Players().ByNetID(42).Native

	tests := []struct {
		name   string
		owner  uint8
		client uint16
		known  bool
		want   func() native.NetPlayer
	}{
		{"local slot", 3, 0, false, func() native.NetPlayer { return e.pool.Local }},
		{"tracked remote", core.SentinelIndex, 42, true, func() native.NetPlayer { return remote }},
		{"unresolved", core.SentinelIndex, 0, false, func() native.NetPlayer { return e.core.Players().Placeholder().Native }},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obj := sim.NewObject(uint16(100+i), core.EntityPed, tt.owner)
			if tt.known {
				e.tracker.Clients[obj.ID] = tt.client
			}
			assert.Same(t, tt.want(), e.hooks.GetPlayerOwner(obj))
		})
	}
}

func TestTransferHooks(t *testing.T) {
	e := newEnv(t, true)
	e.join()
	h := e.hooks
	remote := e.core.Players().ByNetID(42).Native

	obj := sim.NewObject(5, core.EntityAutomobile, 3)
	assert.True(t, h.CanPassControl(obj, remote, 0))
	h.PassObjectControl(remote, obj, 2)

	assert.Equal(t, core.SentinelIndex, obj.Pending)
	assert.Equal(t, uint16(42), e.tracker.Pendings[5])
	require.Len(t, e.natives.Passes, 1)
	assert.Equal(t, 2, e.natives.Passes[0].Transfer)
	assert.Same(t, remote, h.GetPendingPlayerOwner(obj))

	h.SetOwner(obj, remote)
	assert.Len(t, e.natives.Owners, 1)

	// unknown engine structures are ignored
	stranger := sim.NewPlayer(9)
	h.PassObjectControl(stranger, sim.NewObject(6, core.EntityPed, 3), 0)
	h.SetOwner(sim.NewObject(7, core.EntityPed, 3), stranger)
	assert.Len(t, e.natives.Passes, 1)
	assert.Len(t, e.natives.Owners, 1)
	assert.False(t, h.CanPassControl(obj, stranger, 0))
}

func TestPlayerLookups(t *testing.T) {
	e := newEnv(t, true)
	e.join()
	h := e.hooks

	placeholder := h.GetPlayerByIndex(int(core.SentinelIndex))
	require.NotNil(t, placeholder)
	assert.Equal(t, core.SentinelIndex, placeholder.PhysicalIndex())
	assert.Same(t, e.pool.Local, h.GetPlayerByIndex(3))
	assert.Nil(t, h.GetPlayerByIndex(200))
	assert.Nil(t, h.GetPlayerByIndex(-1))

	all := h.GetAllPlayers()
	require.Len(t, all, 2)
	assert.Equal(t, uint8(3), all[0].PhysicalIndex())
	assert.Equal(t, uint8(40), all[1].PhysicalIndex())
	assert.Len(t, h.GetRemotePlayers(), 1)
	assert.Same(t, e.pool.Local, h.GetLocalPlayer())
}

func TestFireAndGrid(t *testing.T) {
	e := newEnv(t, true)
	e.join()

	assert.Equal(t, FireApplicabilityAll, e.hooks.GetFireApplicability(nil, core.Vector3{}))
	assert.False(t, e.hooks.DoesLocalPlayerOwnWorldGrid(core.Vector3{}))
}

func TestSendAlterWantedLevelNeedsPoolSpace(t *testing.T) {
	for _, enabled := range []bool{true, false} {
		e := newEnv(t, enabled)

		e.evPool.Space = false
		e.hooks.SendAlterWantedLevel()
		assert.Zero(t, e.calls["SendAlterWantedLevel"])

		e.evPool.Space = true
		e.hooks.SendAlterWantedLevel()
		assert.Equal(t, 1, e.calls["SendAlterWantedLevel"])
	}
}

func TestPlayerTauntDecide(t *testing.T) {
	e := newEnv(t, true)

	noPed := sim.NewPlayer(4)
	assert.True(t, e.hooks.PlayerTauntDecide(noPed))
	assert.True(t, e.hooks.PlayerTauntDecide(nil))
	assert.Zero(t, e.calls["PlayerTauntDecide"])

	withPed := sim.NewPlayer(5)
	withPed.PedObj = sim.NewObject(8, core.EntityPed, 5)
	assert.False(t, e.hooks.PlayerTauntDecide(withPed))
	assert.Equal(t, 1, e.calls["PlayerTauntDecide"])
}

func TestGamerHandleValid(t *testing.T) {
	assert.False(t, newEnv(t, true).hooks.GamerHandleValid())
	assert.False(t, newEnv(t, false).hooks.GamerHandleValid())
}

func TestOnEventPoolExhausted(t *testing.T) {
	e := newEnv(t, true)
	e.evPool.Live["PED_SPEECH_CREATE_EVENT"] = 3

	assert.PanicsWithError(t,
		"ran out of event pool space\n\nPool usage:\n  PED_SPEECH_CREATE_EVENT: 3 entries",
		e.hooks.OnEventPoolExhausted)
}

func TestExecuteFromInsideHandlerDecidesOnce(t *testing.T) {
	e := newEnv(t, true)
	e.join()

	var decoded *sim.Event
	e.handlers.Add(2, "WRAPPED_EVENT", sim.HandlerFunc(
		func(r *bytes.Reader, source, target native.NetPlayer, eventID uint16) native.GameEvent {
			decoded = &sim.Event{T: 2, N: "WRAPPED_EVENT", Accept: true}
			// the engine handler runs its own execute step before returning
			e.hooks.ExecuteNetGameEvent(decoded, r, source, target, eventID)
			return decoded
		}))

	frame, err := wire.EncodeInbound(wire.InboundEvent{Source: 42, EventID: 5, Ident: 2}, false)
	require.NoError(t, err)
	e.core.Events().HandleInbound(frame, false)

	require.NotNil(t, decoded)
	assert.Equal(t, 1, decoded.Decisions)
	assert.Equal(t, 1, decoded.Destroyed)
	assert.False(t, e.core.Events().Deserializing())

	// outside a decode the hook decides on its own and leaves the event alive
	direct := &sim.Event{T: 2, N: "WRAPPED_EVENT", Accept: true}
	e.hooks.ExecuteNetGameEvent(direct, bytes.NewReader(nil), e.core.Players().ByNetID(42).Native, e.pool.Local, 6)
	assert.Equal(t, 1, direct.Decisions)
	assert.Zero(t, direct.Destroyed)
}
