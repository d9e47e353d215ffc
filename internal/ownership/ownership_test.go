package ownership

import (
	"bytes"
	"io"
	"log/slog"
	"testing"

	"github.com/onesync/clonecore/internal/native/sim"
	"github.com/onesync/clonecore/internal/players"
	"github.com/onesync/clonecore/internal/statebag"
	"github.com/onesync/clonecore/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type changeLog struct {
	changes []core.OwnershipChange
}

func (l *changeLog) RecordOwnershipChange(c *core.OwnershipChange) error {
	l.changes = append(l.changes, *c)
	return nil
}

type fixture struct {
	reg     *players.Registry
	pool    *sim.Pool
	tracker *sim.Tracker
	natives *sim.Natives
	journal *changeLog
	proto   *Protocol
	local   *players.Player
	logs    *bytes.Buffer
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		pool:    sim.NewPool(),
		tracker: sim.NewTracker(),
		journal: &changeLog{},
		logs:    &bytes.Buffer{},
	}
	logger := slog.New(slog.NewTextHandler(f.logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	f.reg = players.New(f.pool, statebag.NewStore(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	f.natives = &sim.Natives{Local: f.pool.LocalPlayer()}
	f.proto = New(f.reg, f.tracker, f.natives, logger, append([]Option{WithJournal(f.journal)}, opts...)...)
	f.local = f.reg.RegisterLocalPlayer(1, 0, f.pool.LocalPlayer())
	require.NotNil(t, f.local)
	return f
}

func TestParseFallback(t *testing.T) {
	assert.Equal(t, FallbackNone, ParseFallback("none"))
	assert.Equal(t, FallbackPlaceholder, ParseFallback("placeholder"))
	assert.Equal(t, FallbackPlaceholder, ParseFallback(""))
}

func TestGetOwner(t *testing.T) {
	f := newFixture(t)
	remote := f.reg.RegisterRemotePlayer(42, core.AutoSlot)

	local := sim.NewObject(1, core.EntityPed, 0)
	assert.Same(t, f.local, f.proto.GetOwner(local))

	tracked := sim.NewObject(2, core.EntityPed, core.SentinelIndex)
	f.tracker.Clients[2] = 42
	assert.Same(t, remote, f.proto.GetOwner(tracked))

	unknown := sim.NewObject(3, core.EntityPed, core.SentinelIndex)
	owner := f.proto.GetOwner(unknown)
	require.NotNil(t, owner)
	assert.True(t, owner.Placeholder)
}

func TestGetOwner_FallbackNone(t *testing.T) {
	f := newFixture(t, WithFallback(FallbackNone))

	obj := sim.NewObject(3, core.EntityPed, core.SentinelIndex)
	f.tracker.Clients[3] = 999

	assert.Nil(t, f.proto.GetOwner(obj))
}

func TestGetPendingOwner(t *testing.T) {
	f := newFixture(t)
	remote := f.reg.RegisterRemotePlayer(42, 4)

	tests := []struct {
		name    string
		pending uint8
		setup   func()
		want    *players.Player
	}{
		{"no transfer", core.NoPendingOwner, func() {}, nil},
		{"sentinel resolves out of band", core.SentinelIndex, func() { f.tracker.Pendings[9] = 42 }, remote},
		{"sentinel without pending id", core.SentinelIndex, func() { delete(f.tracker.Pendings, 9) }, nil},
		{"sentinel to unknown player", core.SentinelIndex, func() { f.tracker.Pendings[9] = 77 }, nil},
		{"direct index", 4, func() {}, remote},
		{"direct empty index", 6, func() {}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obj := sim.NewObject(9, core.EntityPed, 0)
			obj.Pending = tt.pending
			tt.setup()
			assert.Equal(t, tt.want, f.proto.GetPendingOwner(obj))
		})
	}
}

func TestGetPendingOwner_DeadPlayer(t *testing.T) {
	f := newFixture(t)
	remote := f.reg.RegisterRemotePlayer(42, 4)
	remote.Native.(*sim.Player).Info = false

	obj := sim.NewObject(9, core.EntityPed, 0)
	obj.Pending = core.SentinelIndex
	f.tracker.Pendings[9] = 42

	assert.Nil(t, f.proto.GetPendingOwner(obj))
}

func TestRequestTransfer(t *testing.T) {
	f := newFixture(t)
	target := f.reg.RegisterRemotePlayer(42, core.AutoSlot)
	obj := sim.NewObject(5, core.EntityPed, 0)

	require.True(t, f.proto.RequestTransfer(obj, target, 0))

	assert.Equal(t, core.SentinelIndex, obj.Pending)
	assert.Equal(t, []uint16{5}, f.tracker.Released)
	pending := f.proto.GetPendingOwner(obj)
	require.NotNil(t, pending)
	assert.Equal(t, uint16(42), pending.NetID)
	require.Len(t, f.natives.Passes, 1)
	assert.Same(t, target.Native, f.natives.Passes[0].Player)

	require.Len(t, f.journal.changes, 1)
	c := f.journal.changes[0]
	assert.Equal(t, core.TransferRequested, c.Kind)
	assert.Equal(t, uint16(42), c.ToNetID)
	assert.Equal(t, uint8(0), c.FromIndex)
}

func TestRequestTransfer_Noops(t *testing.T) {
	t.Run("already owned by target", func(t *testing.T) {
		f := newFixture(t)
		obj := sim.NewObject(5, core.EntityPed, 0)

		assert.False(t, f.proto.RequestTransfer(obj, f.local, 0))
		assert.Equal(t, core.NoPendingOwner, obj.Pending)
		assert.Empty(t, f.natives.Passes)
		assert.Nil(t, f.proto.GetPendingOwner(obj))
	})

	t.Run("no resolvable owner", func(t *testing.T) {
		f := newFixture(t, WithFallback(FallbackNone))
		target := f.reg.RegisterRemotePlayer(42, core.AutoSlot)
		obj := sim.NewObject(5, core.EntityPed, core.SentinelIndex)

		assert.False(t, f.proto.RequestTransfer(obj, target, 0))
		assert.Equal(t, core.NoPendingOwner, obj.Pending)
		assert.Empty(t, f.tracker.Released)
	})

	t.Run("nil target", func(t *testing.T) {
		f := newFixture(t)
		assert.False(t, f.proto.RequestTransfer(sim.NewObject(5, core.EntityPed, 0), nil, 0))
	})
}

func TestRequestTransfer_VehicleOccupantsFollow(t *testing.T) {
	f := newFixture(t)
	target := f.reg.RegisterRemotePlayer(42, core.AutoSlot)

	driver := sim.NewObject(11, core.EntityPed, 0)
	remotePassenger := sim.NewObject(12, core.EntityPed, 0)
	remotePassenger.Remote = true
	cargo := sim.NewObject(13, core.EntityObject, 0)
	trailer := sim.NewObject(14, core.EntityTrailer, 0)
	trailerRider := sim.NewObject(15, core.EntityPed, 0)
	trailer.Riders = []*sim.Object{trailerRider}

	car := sim.NewObject(10, core.EntityAutomobile, 0)
	car.Riders = []*sim.Object{driver, remotePassenger, cargo, trailer}

	require.True(t, f.proto.RequestTransfer(car, target, 0))

	for _, o := range []*sim.Object{car, driver, trailer, trailerRider} {
		assert.Equal(t, core.SentinelIndex, o.Pending, "object %d", o.ID)
		assert.Equal(t, uint16(42), f.tracker.Pendings[o.ID], "object %d", o.ID)
	}
	for _, o := range []*sim.Object{remotePassenger, cargo} {
		assert.Equal(t, core.NoPendingOwner, o.Pending, "object %d", o.ID)
	}
	assert.Len(t, f.natives.Passes, 4)
}

func TestRequestTransfer_PedDoesNotRecurse(t *testing.T) {
	f := newFixture(t)
	target := f.reg.RegisterRemotePlayer(42, core.AutoSlot)

	ped := sim.NewObject(20, core.EntityPed, 0)
	ped.Riders = []*sim.Object{sim.NewObject(21, core.EntityPed, 0)}

	f.proto.RequestTransfer(ped, target, 0)

	assert.Equal(t, core.NoPendingOwner, ped.Riders[0].Pending)
}

func TestSetOwner(t *testing.T) {
	f := newFixture(t)
	target := f.reg.RegisterRemotePlayer(42, core.AutoSlot)
	obj := sim.NewObject(5, core.EntityPed, 0)

	f.proto.SetOwner(obj, target)

	assert.Equal(t, core.SentinelIndex, obj.Owner)
	assert.Equal(t, core.SentinelIndex, obj.Pending)
	assert.Equal(t, uint16(42), f.tracker.Pendings[5])
	require.Len(t, f.journal.changes, 1)
	assert.Equal(t, core.TransferAssigned, f.journal.changes[0].Kind)
	assert.NotContains(t, f.logs.String(), "local player taking ownership")
}

func TestSetOwner_UnchangedReturnsEarly(t *testing.T) {
	f := newFixture(t)
	obj := sim.NewObject(5, core.EntityPed, 0)

	f.proto.SetOwner(obj, f.local)

	assert.Len(t, f.natives.Owners, 1, "native reassignment always runs")
	assert.Equal(t, core.NoPendingOwner, obj.Pending)
	assert.Empty(t, f.tracker.Released)
	assert.Empty(t, f.journal.changes)
	assert.Contains(t, f.logs.String(), "local player taking ownership")
	assert.Contains(t, f.logs.String(), "goroutine", "stack trace attached")
}

func TestSetOwner_RemoteToRemote(t *testing.T) {
	f := newFixture(t)
	first := f.reg.RegisterRemotePlayer(42, core.AutoSlot)
	second := f.reg.RegisterRemotePlayer(43, core.AutoSlot)

	obj := sim.NewObject(5, core.EntityPed, core.SentinelIndex)
	f.tracker.Clients[5] = 42

	f.proto.SetOwner(obj, first)
	assert.Empty(t, f.journal.changes, "already owned by the same remote player")
	assert.NotContains(t, f.tracker.Pendings, uint16(5))

	f.proto.SetOwner(obj, second)
	assert.Equal(t, core.SentinelIndex, obj.Owner)
	assert.Equal(t, uint16(43), f.tracker.Pendings[5])
	require.Len(t, f.journal.changes, 1)
	assert.Equal(t, uint16(43), f.journal.changes[0].ToNetID)
	assert.Equal(t, core.SentinelIndex, f.journal.changes[0].FromIndex)
}

func TestCanTransfer(t *testing.T) {
	f := newFixture(t)
	target := f.reg.RegisterRemotePlayer(42, core.AutoSlot)

	ok := sim.NewObject(1, core.EntityPed, 0)
	assert.True(t, f.proto.CanTransfer(ok, target, 0))

	blocked := sim.NewObject(2, core.EntityPed, 0)
	blocked.Reject = 7
	assert.False(t, f.proto.CanTransfer(blocked, target, 0))
	assert.Contains(t, f.logs.String(), "reason=7")

	assert.False(t, f.proto.CanTransfer(ok, nil, 0))
}

func TestDropMidTransfer(t *testing.T) {
	tests := []struct {
		name     string
		fallback Fallback
	}{
		{"placeholder", FallbackPlaceholder},
		{"none", FallbackNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, WithFallback(tt.fallback))
			p := f.reg.RegisterRemotePlayer(42, core.AutoSlot)

			obj := sim.NewObject(5, core.EntityPed, 0)
			require.True(t, f.proto.RequestTransfer(obj, p, 0))

			// engine completes the migration, then the new owner leaves
			obj.Owner = core.SentinelIndex
			f.tracker.Clients[5] = 42
			require.True(t, f.reg.Drop(42))

			owner := f.proto.GetOwner(obj)
			if tt.fallback == FallbackNone {
				assert.Nil(t, owner)
			} else {
				require.NotNil(t, owner)
				assert.True(t, owner.Placeholder)
			}
			assert.Nil(t, f.proto.GetPendingOwner(obj))
		})
	}
}

func TestObjectsAndDelete(t *testing.T) {
	f := newFixture(t)
	f.reg.RegisterRemotePlayer(42, core.AutoSlot)

	mine := sim.NewObject(1, core.EntityAutomobile, f.local.PhysicalIndex())
	theirs := sim.NewObject(2, core.EntityPed, core.SentinelIndex)
	orphan := sim.NewObject(3, core.EntityObject, core.SentinelIndex)
	f.tracker.Clients[2] = 42
	f.tracker.Clients[3] = 99
	f.tracker.Objects = []*sim.Object{mine, theirs, orphan}

	assert.Equal(t, []core.ObjectInfo{
		{ObjectID: 1, Type: "Automobile", OwnerNetID: f.local.NetID, Local: true, Resolved: true},
		{ObjectID: 2, Type: "Ped", OwnerNetID: 42, Resolved: true},
		{ObjectID: 3, Type: "Object"},
	}, f.proto.Objects())

	assert.False(t, f.proto.Delete(77, true))
	assert.Empty(t, f.tracker.Deleted)

	assert.True(t, f.proto.Delete(3, true))
	assert.Equal(t, []uint16{3}, f.tracker.Deleted)
	assert.Len(t, f.proto.Objects(), 2)
	assert.NotContains(t, f.tracker.Clients, uint16(3))
}
