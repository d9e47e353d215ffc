package events

import (
	"bytes"
	"slices"

	"github.com/onesync/clonecore/internal/native"
	"github.com/onesync/clonecore/internal/players"
	"github.com/onesync/clonecore/pkg/core"
	"github.com/onesync/clonecore/pkg/wire"
)

// HandleInbound processes a msgNetGameEvent frame relayed by the server.
// Malformed frames and unknown event types are dropped.
func (q *Queue) HandleInbound(frame []byte, v2 bool) {
	in, err := wire.DecodeEvent(frame, v2)
	if err != nil {
		q.log.Debug("dropping malformed event frame", "size", len(frame), "error", err)
		return
	}
	if !v2 && in.Ident > uint32(q.handlers.MaxEventType()) {
		q.log.Debug("dropping event with unknown type", "type", in.Ident)
		return
	}

	source := q.sourcePlayer(in.Source)
	r := bytes.NewReader(in.Payload)

	if in.IsReply {
		q.handleReply(key{ident: in.Ident, id: in.EventID}, r, source)
		return
	}

	eventType := uint16(in.Ident)
	if v2 {
		q.resolveTables()
		t, ok := q.typeByHash[in.Ident]
		if !ok {
			q.log.Debug("dropping event with unknown hash", "hash", in.Ident)
			return
		}
		eventType = t
	}
	if q.blacklisted(eventType) {
		return
	}
	handler, ok := q.handlers.ResolveHandler(eventType)
	if !ok {
		return
	}

	q.lastRejected = false
	target := q.localNative()
	players.WithPhysicalIndex(source, core.SentinelIndex, func() {
		q.deserializing = true
		ev := handler.Handle(r, source, target, in.EventID)
		q.deserializing = false
		if ev == nil {
			return
		}
		q.Decide(ev, source, target, r, in.EventID)
		ev.Destroy()
	})

	if q.lastRejected {
		q.redispatch.Push(inbound{frame: slices.Clone(frame), v2: v2})
	}
}

func (q *Queue) handleReply(k key, r *bytes.Reader, source native.NetPlayer) {
	e, ok := q.events[k]
	if !ok {
		return
	}
	e.ev.HandleReply(r, source)
	e.ev.HandleExtraData(r, true, source, q.localNative())
	e.ev.Destroy()
	delete(q.events, k)
	q.metrics.setLive(len(q.events))
}

// Decide runs the event's accept predicate. Accepted events read their extra
// data and reply to the source if they need to. A rejected event that must
// persist and has not timed out is marked for replay on the next tick.
func (q *Queue) Decide(ev native.GameEvent, source, target native.NetPlayer, r *bytes.Reader, eventID uint16) bool {
	q.lastRejected = false

	if !ev.Decide(source, target) {
		q.lastRejected = !ev.HasTimedOut() && ev.MustPersist()
		return false
	}
	if r != nil {
		ev.HandleExtraData(r, false, source, target)
	}
	if !ev.RequiresReply() {
		return true
	}

	var payload bytes.Buffer
	ev.PrepareReply(&payload, source)
	ev.PrepareExtraData(&payload, true, source, nil)

	ident, ok := q.identFor(ev.Type())
	if !ok {
		return true
	}
	var targets []uint16
	if netID, ok := q.players.NetIDOf(source); ok {
		targets = []uint16{netID}
	}
	q.transmit(wire.OutboundEvent{
		Targets: targets,
		EventID: eventID,
		IsReply: true,
		Ident:   ident,
		Payload: payload.Bytes(),
	})
	return true
}

func (q *Queue) sourcePlayer(netID uint16) native.NetPlayer {
	if p := q.players.ByNetID(netID); p != nil {
		return p.Native
	}
	return q.players.Placeholder().Native
}

func (q *Queue) localNative() native.NetPlayer {
	if p := q.players.Local(); p != nil {
		return p.Native
	}
	return nil
}
