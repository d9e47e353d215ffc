package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Event is a command delivered to the core, either a reliable network
// message or a console command.
type Event struct {
	Command   string
	Payload   []byte
	Args      []string
	Timestamp time.Time
}

// HandlerFunc processes an event and returns a result.
type HandlerFunc func(Event) (any, error)

// Logger interface for pluggable logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Option configures handler registration.
type Option func(*config)

type config struct {
	bufferSize  int
	logged      bool
	deferred    bool
	backlogWarn int
}

// Buffered makes the handler async with a queue of the given size. Events
// that find the queue full are dropped, so only use it for commands whose
// loss is harmless.
func Buffered(size int) Option {
	return func(c *config) {
		c.bufferSize = size
	}
}

// Logged adds debug logging to the handler.
func Logged() Option {
	return func(c *config) {
		c.logged = true
	}
}

// Deferred parks events until the next Drain call. Handlers registered this
// way run on whichever goroutine calls Drain, which is the frame loop.
// Deferred events are never dropped. Once more than backlogWarn of one
// command wait for a Drain the backlog is logged, once per Drain cycle.
func Deferred(backlogWarn int) Option {
	return func(c *config) {
		c.deferred = true
		c.backlogWarn = backlogWarn
	}
}

type deferredEvent struct {
	event   Event
	handler HandlerFunc
}

// Dispatcher routes events to registered handlers.
type Dispatcher struct {
	handlers map[string]HandlerFunc
	logger   Logger

	// OTEL metrics
	queueSize metric.Int64ObservableGauge
	processed metric.Int64Counter
	dropped   metric.Int64Counter

	// Track buffers for gauge callback
	mu      sync.RWMutex
	buffers map[string]chan Event
	closed  bool

	deferMu  sync.Mutex
	deferred []deferredEvent
	warnAt   map[string]int
	pending  map[string]int
	warned   map[string]bool
}

// New creates a new Dispatcher with the given logger.
// Uses the global OTel meter for metrics (no-op if not configured).
func New(logger Logger) (*Dispatcher, error) {
	d := &Dispatcher{
		handlers: make(map[string]HandlerFunc),
		buffers:  make(map[string]chan Event),
		warnAt:   make(map[string]int),
		pending:  make(map[string]int),
		warned:   make(map[string]bool),
		logger:   logger,
	}

	m := meter()

	var err error

	d.queueSize, err = m.Int64ObservableGauge(
		"dispatcher.queue.size",
		metric.WithDescription("Current number of events waiting for a handler"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating queue size gauge: %w", err)
	}

	_, err = m.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			d.mu.RLock()
			for cmd, buf := range d.buffers {
				o.ObserveInt64(d.queueSize, int64(len(buf)),
					metric.WithAttributes(attribute.String("command", cmd)))
			}
			d.mu.RUnlock()

			d.deferMu.Lock()
			for cmd, n := range d.pending {
				o.ObserveInt64(d.queueSize, int64(n),
					metric.WithAttributes(attribute.String("command", cmd)))
			}
			d.deferMu.Unlock()
			return nil
		},
		d.queueSize,
	)
	if err != nil {
		return nil, fmt.Errorf("registering queue callback: %w", err)
	}

	d.processed, err = m.Int64Counter(
		"dispatcher.events.processed",
		metric.WithDescription("Total events processed"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating processed counter: %w", err)
	}

	d.dropped, err = m.Int64Counter(
		"dispatcher.events.dropped",
		metric.WithDescription("Total events dropped due to full queue"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating dropped counter: %w", err)
	}

	return d, nil
}

// Register adds a handler for the given command with optional configuration.
func (d *Dispatcher) Register(command string, h HandlerFunc, opts ...Option) {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}

	handler := h

	if cfg.logged {
		handler = d.withLogging(command, handler)
	}

	switch {
	case cfg.deferred:
		handler = d.withDeferral(command, cfg.backlogWarn, handler)
	case cfg.bufferSize > 0:
		handler = d.withBuffer(command, cfg.bufferSize, handler)
	}

	d.mu.Lock()
	d.handlers[command] = handler
	d.mu.Unlock()
}

// Dispatch routes an event to its registered handler.
func (d *Dispatcher) Dispatch(e Event) (any, error) {
	d.mu.RLock()
	h, ok := d.handlers[e.Command]
	d.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown command: %s", e.Command)
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	return h(e)
}

// HasHandler returns true if a handler is registered for the command.
func (d *Dispatcher) HasHandler(command string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.handlers[command]
	return ok
}

// Pending returns the number of deferred events waiting for Drain.
func (d *Dispatcher) Pending() int {
	d.deferMu.Lock()
	defer d.deferMu.Unlock()
	return len(d.deferred)
}

// Drain runs every deferred event in arrival order and returns how many ran.
// Events deferred by the handlers themselves wait for the next call.
func (d *Dispatcher) Drain() int {
	d.deferMu.Lock()
	batch := d.deferred
	d.deferred = nil
	clear(d.pending)
	clear(d.warned)
	d.deferMu.Unlock()

	for _, de := range batch {
		if _, err := de.handler(de.event); err != nil {
			d.logger.Error("deferred event failed", "command", de.event.Command, "error", err)
		}
		d.processed.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("command", de.event.Command)))
	}
	return len(batch)
}

// Discard forgets every deferred event without running it.
func (d *Dispatcher) Discard() int {
	d.deferMu.Lock()
	defer d.deferMu.Unlock()
	n := len(d.deferred)
	d.deferred = nil
	clear(d.pending)
	clear(d.warned)
	return n
}

// Close stops the goroutines behind buffered handlers. Events already queued
// still run; later dispatches to buffered commands fail.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	for _, buf := range d.buffers {
		close(buf)
	}
}

func (d *Dispatcher) withDeferral(command string, backlogWarn int, h HandlerFunc) HandlerFunc {
	d.deferMu.Lock()
	d.warnAt[command] = backlogWarn
	d.deferMu.Unlock()

	return func(e Event) (any, error) {
		d.deferMu.Lock()
		d.pending[command]++
		d.deferred = append(d.deferred, deferredEvent{event: e, handler: h})
		n := d.pending[command]
		warn := d.warnAt[command] > 0 && n > d.warnAt[command] && !d.warned[command]
		if warn {
			d.warned[command] = true
		}
		d.deferMu.Unlock()

		if warn {
			d.logger.Info("deferred backlog growing", "command", command, "pending", n)
		}
		return "deferred", nil
	}
}

func (d *Dispatcher) withBuffer(command string, size int, h HandlerFunc) HandlerFunc {
	buffer := make(chan Event, size)

	d.mu.Lock()
	d.buffers[command] = buffer
	d.mu.Unlock()

	cmdAttr := attribute.String("command", command)

	go func() {
		for e := range buffer {
			if _, err := h(e); err != nil {
				d.logger.Error("buffered event failed", "command", command, "error", err)
			}
			d.processed.Add(context.Background(), 1, metric.WithAttributes(cmdAttr))
		}
	}()

	return func(e Event) (any, error) {
		d.mu.RLock()
		defer d.mu.RUnlock()
		if d.closed {
			return nil, fmt.Errorf("dispatcher closed: %s", command)
		}
		select {
		case buffer <- e:
			return "queued", nil
		default:
			d.dropped.Add(context.Background(), 1, metric.WithAttributes(cmdAttr))
			return nil, fmt.Errorf("queue full: %s", command)
		}
	}
}

func (d *Dispatcher) withLogging(command string, h HandlerFunc) HandlerFunc {
	return func(e Event) (any, error) {
		start := time.Now()
		d.logger.Debug("handling event", "command", command, "bytes", len(e.Payload), "args", len(e.Args))

		result, err := h(e)

		if err != nil {
			d.logger.Error("event failed", "command", command, "duration", time.Since(start), "error", err)
		} else {
			d.logger.Debug("event complete", "command", command, "duration", time.Since(start))
		}

		return result, err
	}
}
