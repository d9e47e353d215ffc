package cfxinterface

import (
	"github.com/onesync/clonecore/internal/dispatcher"
)

// configStruct is the central configuration used by this library
type configStruct struct {
	// version is returned by OneSyncVersion
	version string

	// dispatcher routes console commands
	dispatcher *dispatcher.Dispatcher
}

// Init method initializes the config struct
func (c *configStruct) Init() {
	c.version = "No version set"
}

// SetVersion sets the string returned by OneSyncVersion.
func SetVersion(version string) {
	Config.version = version
}

// SetDispatcher sets the dispatcher console commands are routed through.
func SetDispatcher(d *dispatcher.Dispatcher) {
	Config.dispatcher = d
}

// GetDispatcher returns the configured dispatcher, or nil if not set
func GetDispatcher() *dispatcher.Dispatcher {
	return Config.dispatcher
}
