package client

import (
	"encoding/json"
	"io"
	"log/slog"
	"sync"

	"github.com/astromechza/syncity/pkg/lww"
	"github.com/astromechza/syncity/pkg/protocol"
)

// Mirror is the client's local copy of the shared state. Every change is rendered to the output writer as indented
// JSON.
type Mirror struct {
	mu     sync.Mutex
	state  map[string]interface{}
	out    io.Writer
	logger *slog.Logger
}

func NewMirror(out io.Writer, logger *slog.Logger) *Mirror {
	if out == nil {
		out = io.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Mirror{state: make(map[string]interface{}), out: out, logger: logger}
}

// Apply merges a frame received from the server. An init frame replaces the local state, an update frame overwrites
// only its payload keys. Other frames are ignored and false is returned.
func (m *Mirror) Apply(f protocol.Frame) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch f.Type {
	case protocol.TypeInit:
		m.state = lww.CloneMap(f.State)
	case protocol.TypeUpdate:
		for k, v := range f.Payload {
			m.state[k] = v
		}
	default:
		return false
	}
	m.renderLocked()
	return true
}

// Edit applies payload optimistically and returns the update frame that carries it to the server.
func (m *Mirror) Edit(payload map[string]interface{}, ts int64) protocol.Frame {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range payload {
		m.state[k] = v
	}
	m.renderLocked()
	return protocol.NewUpdate(lww.CloneMap(payload), ts)
}

func (m *Mirror) State() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return lww.CloneMap(m.state)
}

func (m *Mirror) Render() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.renderLocked()
}

func (m *Mirror) renderLocked() {
	raw, err := json.MarshalIndent(m.state, "", "  ")
	if err != nil {
		m.logger.Error("failed to render state", "err", err)
		return
	}
	if _, err := m.out.Write(append(raw, '\n')); err != nil {
		m.logger.Error("failed to write out", "err", err)
	}
}
