// Package hub owns the authoritative state and the set of connected sessions. Every session event runs under one
// lock, so updates are resolved and fanned out strictly in arrival order and never interleave.
package hub

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/astromechza/syncity/pkg/lww"
	"github.com/astromechza/syncity/pkg/plugin"
	"github.com/astromechza/syncity/pkg/protocol"
)

// RelayMode selects what is broadcast to peers after an update is resolved.
type RelayMode string

const (
	// RelayAccepted relays only the keys the resolver accepted. Nothing is sent if every key was rejected.
	RelayAccepted RelayMode = "accepted"
	// RelayVerbatim relays the sender's payload as received, including rejected keys.
	RelayVerbatim RelayMode = "verbatim"
)

func ParseRelayMode(s string) (RelayMode, error) {
	switch RelayMode(s) {
	case RelayAccepted, RelayVerbatim:
		return RelayMode(s), nil
	case "":
		return RelayAccepted, nil
	default:
		return "", fmt.Errorf("unknown relay mode %q", s)
	}
}

// Recorder is told about every batch of accepted writes.
type Recorder interface {
	Record(origin string, ts int64, accepted map[string]interface{}) error
}

type Options struct {
	Relay RelayMode
	// SendBuffer is the number of outbound frames queued per session. A session that falls further behind is closed.
	SendBuffer int
	Recorder   Recorder
	Logger     *slog.Logger
}

type Hub struct {
	mu        sync.Mutex
	store     *lww.Store
	sessions  map[*Session]struct{}
	observers []plugin.Observer

	relay      RelayMode
	sendBuffer int
	recorder   Recorder
	logger     *slog.Logger
	upgrader   websocket.Upgrader
}

func New(opts Options) *Hub {
	if opts.Relay == "" {
		opts.Relay = RelayAccepted
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 256
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Hub{
		store:      lww.NewStore(),
		sessions:   make(map[*Session]struct{}),
		relay:      opts.Relay,
		sendBuffer: opts.SendBuffer,
		recorder:   opts.Recorder,
		logger:     opts.Logger.With("component", "hub"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Observe registers a plugin observer. It implements plugin.Host.
func (h *Hub) Observe(o plugin.Observer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.observers = append(h.observers, o)
}

// Snapshot returns a deep copy of the current state. It implements plugin.Host.
func (h *Hub) Snapshot() map[string]interface{} {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.store.Snapshot()
}

// Sessions returns the number of open sessions.
func (h *Hub) Sessions() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// ServeHTTP upgrades the request to a websocket and runs the session until the connection closes.
func (h *Hub) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	conn, err := h.upgrader.Upgrade(writer, request, nil)
	if err != nil {
		h.logger.Error("failed to upgrade", "err", err)
		return
	}
	s := newSession(h, conn, request.RemoteAddr)
	if err := h.join(s); err != nil {
		h.logger.Error("failed to open session", "session", s.id, "err", err)
		_ = conn.Close()
		return
	}
	s.run()
}

// Close force-closes every open session.
func (h *Hub) Close() {
	h.mu.Lock()
	sessions := make([]*Session, 0, len(h.sessions))
	for s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.Unlock()
	for _, s := range sessions {
		_ = s.conn.Close()
	}
}

// join queues the init snapshot as the session's first frame and registers it, atomically with respect to updates,
// so no update resolved after the snapshot can be delivered before it.
func (h *Hub) join(s *Session) error {
	h.mu.Lock()
	raw, err := protocol.Encode(protocol.NewInit(h.store.Snapshot()))
	if err != nil {
		h.mu.Unlock()
		return err
	}
	s.send <- raw
	s.state = StateOpen
	h.sessions[s] = struct{}{}
	count := len(h.sessions)
	observers := h.observers
	h.mu.Unlock()

	s.logger.Info("client connected", "remote", s.remoteAddr, "sessions", count)
	for _, o := range observers {
		o.Connected(s.info())
	}
	return nil
}

func (h *Hub) leave(s *Session) {
	h.mu.Lock()
	if s.state == StateClosed {
		h.mu.Unlock()
		return
	}
	s.state = StateClosed
	delete(h.sessions, s)
	close(s.send)
	count := len(h.sessions)
	observers := h.observers
	h.mu.Unlock()

	s.logger.Info("client disconnected", "sessions", count)
	for _, o := range observers {
		o.Disconnected(s.info())
	}
}

// handle resolves a validated update from s and relays it to the other sessions.
func (h *Hub) handle(s *Session, f protocol.Frame) {
	h.mu.Lock()
	accepted := h.store.Apply(f.Payload, f.Timestamp)
	if len(accepted) < len(f.Payload) {
		s.logger.Debug("rejected stale writes", "timestamp", f.Timestamp, "keys", len(f.Payload), "accepted", len(accepted))
	}
	if h.recorder != nil && len(accepted) > 0 {
		if err := h.recorder.Record(s.id, f.Timestamp, accepted); err != nil {
			s.logger.Error("failed to record history", "err", err)
		}
	}

	relay := f.Payload
	if h.relay == RelayAccepted {
		relay = accepted
	}
	if len(relay) > 0 || h.relay == RelayVerbatim {
		h.broadcastLocked(protocol.NewUpdate(relay, f.Timestamp), s)
	}

	var copied map[string]interface{}
	observers := h.observers
	if len(observers) > 0 {
		copied = lww.CloneMap(f.Payload)
	}
	h.mu.Unlock()

	for _, o := range observers {
		o.Updated(s.info(), lww.CloneMap(copied), f.Timestamp)
	}
}

// broadcastLocked delivers f to every open session except origin. It never blocks: a session whose send buffer is
// full has its connection closed, so its client reconnects and resyncs from a fresh init snapshot instead of
// silently missing the frame. h.mu must be held.
func (h *Hub) broadcastLocked(f protocol.Frame, origin *Session) {
	raw, err := protocol.Encode(f)
	if err != nil {
		h.logger.Error("failed to encode broadcast", "err", err)
		return
	}
	for s := range h.sessions {
		if s == origin || s.state != StateOpen {
			continue
		}
		select {
		case s.send <- raw:
		default:
			s.logger.Warn("send buffer full, closing session")
			_ = s.conn.Close()
		}
	}
}
