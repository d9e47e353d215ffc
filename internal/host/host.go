// Package host is where the engine bindings meet the library entry points.
// The interop layer registers a Provider from its init; the library calls it
// once the host's network library exists and builds the core on the result.
package host

import (
	"errors"
	"fmt"
	"sync"

	"github.com/onesync/clonecore/internal/native"
	"github.com/onesync/clonecore/internal/shim"
)

// ErrNoEngine is returned by Open before any Provider has been registered.
var ErrNoEngine = errors.New("no engine bindings registered")

// Engine bundles the host collaborators a core is built on.
type Engine struct {
	Transport native.Transport
	Pool      native.PlayerPool
	Tracker   native.ObjectTracker
	Natives   native.ControlNatives
	Handlers  native.EventHandlerTable
	EventPool native.EventPool
	Focus     native.WorldFocus
	Originals shim.Originals

	// Bind receives the hook set once the core is running, so the bindings
	// can route the patched call sites into it. Optional.
	Bind func(*shim.Hooks)
}

// Provider builds the engine bindings.
type Provider func() (Engine, error)

var (
	mu       sync.Mutex
	provider Provider
)

// Register installs the bindings provider, replacing any earlier one.
func Register(p Provider) {
	if p == nil {
		panic("host: Register called with nil provider")
	}
	mu.Lock()
	provider = p
	mu.Unlock()
}

// Open runs the registered provider.
func Open() (Engine, error) {
	mu.Lock()
	p := provider
	mu.Unlock()
	if p == nil {
		return Engine{}, ErrNoEngine
	}
	e, err := p()
	if err != nil {
		return Engine{}, fmt.Errorf("building engine bindings: %w", err)
	}
	if e.Transport == nil {
		return Engine{}, errors.New("engine bindings have no transport")
	}
	return e, nil
}

// Reset forgets the registered provider.
func Reset() {
	mu.Lock()
	provider = nil
	mu.Unlock()
}
