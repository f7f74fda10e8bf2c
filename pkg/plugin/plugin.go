// Package plugin lets optional extensions observe the server without being able to change it. A plugin is handed a
// Host with exactly two capabilities: registering an Observer for connection events and reading a copy of the state.
package plugin

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

var ErrUnknownPlugin = errors.New("unknown plugin")

// SessionInfo identifies a connection to observers.
type SessionInfo struct {
	ID         string
	RemoteAddr string
}

// Observer receives connection lifecycle events. Callbacks run on the connection's goroutine and must not block.
// Maps passed to Updated are copies.
type Observer interface {
	Connected(SessionInfo)
	Disconnected(SessionInfo)
	Updated(s SessionInfo, payload map[string]interface{}, ts int64)
}

// Host is the capability set given to plugins.
type Host interface {
	Observe(Observer)
	// Snapshot returns a deep copy of the current state.
	Snapshot() map[string]interface{}
}

type Plugin interface {
	Name() string
	Init(host Host, logger *slog.Logger) error
}

var (
	registryLock sync.Mutex
	registry     = map[string]func() Plugin{}
)

// Register makes a plugin available to Load under name. It panics on duplicate names.
func Register(name string, factory func() Plugin) {
	registryLock.Lock()
	defer registryLock.Unlock()
	if _, ok := registry[name]; ok {
		panic(fmt.Sprintf("plugin %q registered twice", name))
	}
	registry[name] = factory
}

// Available lists the registered plugin names in sorted order.
func Available() []string {
	registryLock.Lock()
	defer registryLock.Unlock()
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Load initialises each named plugin against host. A plugin that is unknown or fails to initialise is logged and
// skipped so the remaining plugins still load. The names of the loaded plugins are returned.
func Load(host Host, names []string, logger *slog.Logger) []string {
	if logger == nil {
		logger = slog.Default()
	}
	loaded := make([]string, 0, len(names))
	for _, name := range names {
		if err := loadOne(host, name, logger); err != nil {
			logger.Error("failed to load plugin", "plugin", name, "err", err)
			continue
		}
		logger.Info("plugin loaded", "plugin", name)
		loaded = append(loaded, name)
	}
	return loaded
}

func loadOne(host Host, name string, logger *slog.Logger) (err error) {
	registryLock.Lock()
	factory, ok := registry[name]
	registryLock.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPlugin, name)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("plugin panicked during init: %v", r)
		}
	}()
	p := factory()
	return p.Init(host, logger.With("plugin", p.Name()))
}
