package sim

import (
	"bytes"
	"io"

	"github.com/onesync/clonecore/internal/native"
	"github.com/onesync/clonecore/pkg/core"
)

// Event is a simulated game event. Two events are equal when they share a
// type and a non-empty Key.
type Event struct {
	T          uint16
	N          string
	ID         uint16
	HasID      bool
	Key        string
	Data       []byte
	TimedOut   bool
	Persist    bool
	NeedsReply bool
	Accept     bool
	Scope      func(p native.NetPlayer) bool

	Destroyed    int
	EqualsCalls  int
	Replies      int
	ExtraData    int
	Decisions    int
	ScopeIndices []uint8
	WideScopes   int // scope checks made with an index the engine cannot address
	ReplyData    []byte
}

func (e *Event) Type() uint16 { return e.T }
func (e *Event) Name() string { return e.N }

func (e *Event) EventID() (uint16, bool) { return e.ID, e.HasID }

func (e *Event) Equals(other native.GameEvent) bool {
	e.EqualsCalls++
	o, ok := other.(*Event)
	return ok && o.T == e.T && e.Key != "" && o.Key == e.Key
}

func (e *Event) HasTimedOut() bool { return e.TimedOut }
func (e *Event) MustPersist() bool { return e.Persist }
func (e *Event) RequiresReply() bool { return e.NeedsReply }

func (e *Event) Prepare(buf *bytes.Buffer, source, target native.NetPlayer) {
	buf.Write(e.Data)
}

func (e *Event) PrepareExtraData(buf *bytes.Buffer, isReply bool, source, target native.NetPlayer) {}

func (e *Event) PrepareReply(buf *bytes.Buffer, source native.NetPlayer) {
	buf.Write(e.ReplyData)
}

func (e *Event) HandleReply(r *bytes.Reader, source native.NetPlayer) {
	e.Replies++
	_, _ = io.Copy(io.Discard, r)
}

func (e *Event) HandleExtraData(r *bytes.Reader, isReply bool, source, target native.NetPlayer) {
	e.ExtraData++
}

func (e *Event) Decide(source, target native.NetPlayer) bool {
	e.Decisions++
	return e.Accept
}

func (e *Event) IsInScope(p native.NetPlayer) bool {
	e.ScopeIndices = append(e.ScopeIndices, p.PhysicalIndex())
	if p.PhysicalIndex() >= core.NativePlayerLimit {
		e.WideScopes++
	}
	if e.Scope == nil {
		return true
	}
	return e.Scope(p)
}

func (e *Event) Destroy() { e.Destroyed++ }

// HandlerFunc adapts a function to native.EventHandler.
type HandlerFunc func(r *bytes.Reader, source, target native.NetPlayer, eventID uint16) native.GameEvent

func (f HandlerFunc) Handle(r *bytes.Reader, source, target native.NetPlayer, eventID uint16) native.GameEvent {
	return f(r, source, target, eventID)
}

// Handlers is a simulated handler table.
type Handlers struct {
	Max      uint16
	Names    map[uint16]string
	Handlers map[uint16]native.EventHandler
}

// NewHandlers returns a table covering types 0..max.
func NewHandlers(max uint16) *Handlers {
	return &Handlers{
		Max:      max,
		Names:    make(map[uint16]string),
		Handlers: make(map[uint16]native.EventHandler),
	}
}

// Add registers a named handler.
func (h *Handlers) Add(eventType uint16, name string, handler native.EventHandler) {
	h.Names[eventType] = name
	if handler != nil {
		h.Handlers[eventType] = handler
	}
}

func (h *Handlers) MaxEventType() uint16 { return h.Max }

func (h *Handlers) ResolveHandler(eventType uint16) (native.EventHandler, bool) {
	handler, ok := h.Handlers[eventType]
	return handler, ok
}

func (h *Handlers) NameFromType(eventType uint16) string { return h.Names[eventType] }

// EventPool is a simulated event pool.
type EventPool struct {
	Found bool
	Space bool
	Live  map[string]int
}

// NewEventPool returns a located pool with room to spare.
func NewEventPool() *EventPool {
	return &EventPool{Found: true, Space: true, Live: make(map[string]int)}
}

func (p *EventPool) Located() bool { return p.Found }
func (p *EventPool) HasSpace() bool { return p.Space }
func (p *EventPool) Occupancy() map[string]int { return p.Live }

// Frame is one reliable command sent through the Transport.
type Frame struct {
	Name    string
	Payload []byte
}

// Transport is a simulated reliable link.
type Transport struct {
	NetID      uint16
	Slot       int
	Protocol   uint64
	BitVersion int
	Sent       []Frame
	handlers   map[string]func([]byte)

	joined       []func(core.ClientInfo)
	dropped      []func(uint16)
	disconnected []func()
}

// NewTransport returns a link for the client with the given server ids.
func NewTransport(netID uint16, slot int) *Transport {
	return &Transport{NetID: netID, Slot: slot, handlers: make(map[string]func([]byte))}
}

func (t *Transport) ServerNetID() uint16 { return t.NetID }
func (t *Transport) ServerSlotID() int { return t.Slot }
func (t *Transport) ServerProtocol() uint64 { return t.Protocol }
func (t *Transport) NetBitVersion() int { return t.BitVersion }

func (t *Transport) SendReliableCommand(name string, payload []byte) {
	t.Sent = append(t.Sent, Frame{Name: name, Payload: append([]byte(nil), payload...)})
}

func (t *Transport) AddReliableHandler(name string, handler func([]byte)) {
	t.handlers[name] = handler
}

func (t *Transport) OnClientInfo(fn func(core.ClientInfo)) {
	t.joined = append(t.joined, fn)
}

func (t *Transport) OnClientDropped(fn func(uint16)) {
	t.dropped = append(t.dropped, fn)
}

func (t *Transport) OnDisconnect(fn func()) {
	t.disconnected = append(t.disconnected, fn)
}

// Join announces a client to every subscriber.
func (t *Transport) Join(info core.ClientInfo) {
	for _, fn := range t.joined {
		fn(info)
	}
}

// Leave announces a client drop to every subscriber.
func (t *Transport) Leave(netID uint16) {
	for _, fn := range t.dropped {
		fn(netID)
	}
}

// Disconnect reports the loss of the server link.
func (t *Transport) Disconnect() {
	for _, fn := range t.disconnected {
		fn()
	}
}

// Deliver feeds a server frame to the registered handler.
func (t *Transport) Deliver(name string, payload []byte) bool {
	h, ok := t.handlers[name]
	if !ok {
		return false
	}
	h(payload)
	return true
}

// SentNamed returns the frames sent under name.
func (t *Transport) SentNamed(name string) []Frame {
	var out []Frame
	for _, f := range t.Sent {
		if f.Name == name {
			out = append(out, f)
		}
	}
	return out
}

// Focus is a fixed simulation origin.
type Focus struct {
	Pos core.Vector3
	Set bool
}

func (f *Focus) Origin() (core.Vector3, bool) { return f.Pos, f.Set }
