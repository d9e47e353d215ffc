package events

import (
	"bytes"
	"slices"

	"github.com/onesync/clonecore/internal/native"
	"github.com/onesync/clonecore/internal/players"
	"github.com/onesync/clonecore/pkg/core"
	"github.com/onesync/clonecore/pkg/wire"
)

// Synced scene events evaluate scope against the players' real indices.
var keepsPhysicalIndex = map[string]struct{}{
	"REQUEST_NETWORK_SYNCED_SCENE_EVENT": {},
	"START_NETWORK_SYNCED_SCENE_EVENT":   {},
	"STOP_NETWORK_SYNCED_SCENE_EVENT":    {},
	"UPDATE_NETWORK_SYNCED_SCENE_EVENT":  {},
}

func (q *Queue) send(k key, ev native.GameEvent) {
	var payload bytes.Buffer
	source := q.players.Placeholder().Native
	ev.Prepare(&payload, source, nil)
	ev.PrepareExtraData(&payload, false, source, nil)

	if payload.Len() > q.cfg.MaxPayload {
		q.log.Warn("outbound event payload exceeds buffer",
			"event", ev.Name(), "size", payload.Len(), "max", q.cfg.MaxPayload)
		q.metrics.dropped("payload")
		return
	}

	targets := q.scopeTargets(ev)
	if len(targets) > wire.MaxTargets {
		q.log.Warn("truncating event target list", "event", ev.Name(), "targets", len(targets))
		targets = targets[:wire.MaxTargets]
	}

	q.transmit(wire.OutboundEvent{
		Targets: targets,
		EventID: k.id,
		Ident:   k.ident,
		Payload: payload.Bytes(),
	})
}

// scopeTargets asks the event which registered players should receive it.
// The engine's scope checks only address 32 players, so each player is
// presented as index 31 (or 0 for the local player) during its check.
func (q *Queue) scopeTargets(ev native.GameEvent) []uint16 {
	_, keep := keepsPhysicalIndex[ev.Name()]
	local := q.players.Local()

	var targets []uint16
	for _, p := range q.players.All() {
		if !p.Native.HasPlayerInfo() {
			continue
		}
		inScope := false
		check := func() { inScope = ev.IsInScope(p.Native) }
		switch {
		case keep:
			check()
		case p == local:
			players.WithPhysicalIndex(p.Native, 0, check)
		default:
			players.WithPhysicalIndex(p.Native, core.SentinelIndex, check)
		}
		if !inScope {
			continue
		}
		if i, found := slices.BinarySearch(targets, p.NetID); !found {
			targets = slices.Insert(targets, i, p.NetID)
		}
	}
	return targets
}

func (q *Queue) transmit(out wire.OutboundEvent) {
	v2 := q.v2()
	frame, err := wire.EncodeEvent(out, v2)
	if err != nil {
		q.log.Warn("failed to encode event frame", "eventId", out.EventID, "error", err)
		return
	}
	cmd := wire.CmdNetGameEvent
	if v2 {
		cmd = wire.CmdNetGameEventV2
	}
	q.transport.SendReliableCommand(cmd, frame)
	q.metrics.sent(out.IsReply)
}
