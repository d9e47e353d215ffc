// Package wire encodes and decodes the reliable command frames exchanged with
// the server. All integers are little-endian.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Reliable command names.
const (
	CmdNetGameEvent   = "msgNetGameEvent"
	CmdNetGameEventV2 = "msgNetGameEventV2"
	CmdWorldGrid      = "msgWorldGrid"
	CmdWorldGrid3     = "msgWorldGrid3"
)

// MaxTargets is the largest target list an outbound frame can carry.
const MaxTargets = 255

var (
	// ErrShortFrame is returned when a frame ends before a declared field.
	ErrShortFrame = errors.New("wire: short frame")
	// ErrPayloadTooLarge is returned when a payload does not fit its length field.
	ErrPayloadTooLarge = errors.New("wire: payload too large")
	// ErrTooManyTargets is returned when an outbound target list exceeds MaxTargets.
	ErrTooManyTargets = errors.New("wire: too many targets")
)

// OutboundEvent is a game event addressed to a set of clients. Ident is the
// native event type in V1 frames and the name hash in V2 frames.
type OutboundEvent struct {
	Targets []uint16
	EventID uint16
	IsReply bool
	Ident   uint32
	Payload []byte
}

// InboundEvent is a game event relayed by the server from another client.
type InboundEvent struct {
	Source  uint16
	EventID uint16
	IsReply bool
	Ident   uint32
	Payload []byte
}

// GridUpdate overwrites a byte range of a world grid buffer.
type GridUpdate struct {
	Base uint32
	Data []byte
}

func identSize(v2 bool) int {
	if v2 {
		return 4
	}
	return 2
}

func putIdent(b []byte, ident uint32, v2 bool) []byte {
	if v2 {
		return binary.LittleEndian.AppendUint32(b, ident)
	}
	return binary.LittleEndian.AppendUint16(b, uint16(ident))
}

// EncodeEvent builds an outbound msgNetGameEvent frame, or its V2 variant
// when v2 is set.
func EncodeEvent(ev OutboundEvent, v2 bool) ([]byte, error) {
	if len(ev.Targets) > MaxTargets {
		return nil, fmt.Errorf("%w: %d", ErrTooManyTargets, len(ev.Targets))
	}
	if len(ev.Payload) > 0xFFFF {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(ev.Payload))
	}
	if !v2 && ev.Ident > 0xFFFF {
		return nil, fmt.Errorf("wire: event type %d does not fit a V1 frame", ev.Ident)
	}

	size := 1 + 2*len(ev.Targets) + 2 + 1 + identSize(v2) + 2 + len(ev.Payload)
	b := make([]byte, 0, size)

	b = append(b, byte(len(ev.Targets)))
	for _, t := range ev.Targets {
		b = binary.LittleEndian.AppendUint16(b, t)
	}
	b = binary.LittleEndian.AppendUint16(b, ev.EventID)
	b = append(b, boolByte(ev.IsReply))
	b = putIdent(b, ev.Ident, v2)
	b = binary.LittleEndian.AppendUint16(b, uint16(len(ev.Payload)))
	b = append(b, ev.Payload...)
	return b, nil
}

// DecodeEvent parses an inbound msgNetGameEvent frame. Inbound frames carry
// the source client in place of the target list. The payload aliases b.
func DecodeEvent(b []byte, v2 bool) (InboundEvent, error) {
	r := reader{b: b}
	var ev InboundEvent

	ev.Source = r.u16()
	ev.EventID = r.u16()
	ev.IsReply = r.u8() != 0
	if v2 {
		ev.Ident = r.u32()
	} else {
		ev.Ident = uint32(r.u16())
	}
	n := int(r.u16())
	ev.Payload = r.bytes(n)

	if r.short {
		return InboundEvent{}, ErrShortFrame
	}
	return ev, nil
}

// EncodeInbound builds a frame in the inbound layout. Servers and test
// harnesses use it to relay events to a client.
func EncodeInbound(ev InboundEvent, v2 bool) ([]byte, error) {
	if len(ev.Payload) > 0xFFFF {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(ev.Payload))
	}
	b := make([]byte, 0, 2+2+1+identSize(v2)+2+len(ev.Payload))
	b = binary.LittleEndian.AppendUint16(b, ev.Source)
	b = binary.LittleEndian.AppendUint16(b, ev.EventID)
	b = append(b, boolByte(ev.IsReply))
	b = putIdent(b, ev.Ident, v2)
	b = binary.LittleEndian.AppendUint16(b, uint16(len(ev.Payload)))
	b = append(b, ev.Payload...)
	return b, nil
}

// DecodeGrid parses a msgWorldGrid frame (u16 fields).
func DecodeGrid(b []byte) (GridUpdate, error) {
	r := reader{b: b}
	base := uint32(r.u16())
	n := int(r.u16())
	data := r.bytes(n)
	if r.short {
		return GridUpdate{}, ErrShortFrame
	}
	return GridUpdate{Base: base, Data: data}, nil
}

// DecodeGrid3 parses a msgWorldGrid3 frame (u32 fields).
func DecodeGrid3(b []byte) (GridUpdate, error) {
	r := reader{b: b}
	base := r.u32()
	n := r.u32()
	if uint64(n) > uint64(len(b)) {
		return GridUpdate{}, ErrShortFrame
	}
	data := r.bytes(int(n))
	if r.short {
		return GridUpdate{}, ErrShortFrame
	}
	return GridUpdate{Base: base, Data: data}, nil
}

// EncodeGrid builds a msgWorldGrid frame.
func EncodeGrid(u GridUpdate) ([]byte, error) {
	if u.Base > 0xFFFF || len(u.Data) > 0xFFFF {
		return nil, fmt.Errorf("%w: base %d len %d", ErrPayloadTooLarge, u.Base, len(u.Data))
	}
	b := make([]byte, 0, 4+len(u.Data))
	b = binary.LittleEndian.AppendUint16(b, uint16(u.Base))
	b = binary.LittleEndian.AppendUint16(b, uint16(len(u.Data)))
	return append(b, u.Data...), nil
}

// EncodeGrid3 builds a msgWorldGrid3 frame.
func EncodeGrid3(u GridUpdate) []byte {
	b := make([]byte, 0, 8+len(u.Data))
	b = binary.LittleEndian.AppendUint32(b, u.Base)
	b = binary.LittleEndian.AppendUint32(b, uint32(len(u.Data)))
	return append(b, u.Data...)
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}

type reader struct {
	b     []byte
	off   int
	short bool
}

func (r *reader) take(n int) []byte {
	if r.short || n < 0 || r.off+n > len(r.b) {
		r.short = true
		return nil
	}
	s := r.b[r.off : r.off+n]
	r.off += n
	return s
}

func (r *reader) u8() uint8 {
	if s := r.take(1); s != nil {
		return s[0]
	}
	return 0
}

func (r *reader) u16() uint16 {
	if s := r.take(2); s != nil {
		return binary.LittleEndian.Uint16(s)
	}
	return 0
}

func (r *reader) u32() uint32 {
	if s := r.take(4); s != nil {
		return binary.LittleEndian.Uint32(s)
	}
	return 0
}

func (r *reader) bytes(n int) []byte {
	s := r.take(n)
	if s == nil && n == 0 && !r.short {
		return []byte{}
	}
	return s
}
