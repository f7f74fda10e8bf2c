package hub

import (
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/astromechza/syncity/pkg/plugin"
	"github.com/astromechza/syncity/pkg/protocol"
)

type State int

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session is one client connection. state and send are guarded by the hub lock; send is closed when the session
// leaves.
type Session struct {
	id         string
	remoteAddr string
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	state      State
	logger     *slog.Logger
}

func newSession(h *Hub, conn *websocket.Conn, remoteAddr string) *Session {
	id := uuid.NewString()
	return &Session{
		id:         id,
		remoteAddr: remoteAddr,
		hub:        h,
		conn:       conn,
		send:       make(chan []byte, h.sendBuffer),
		state:      StateConnecting,
		logger:     h.logger.With("session", id),
	}
}

func (s *Session) info() plugin.SessionInfo {
	return plugin.SessionInfo{ID: s.id, RemoteAddr: s.remoteAddr}
}

// run pumps outbound frames on a goroutine and reads inbound frames until the connection fails.
func (s *Session) run() {
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.writePump()
	}()
	s.readPump()
	s.hub.leave(s)
	<-done
}

func (s *Session) readPump() {
	defer s.conn.Close()
	for {
		f, err := protocol.ReadFrame(s.conn)
		if err != nil {
			if errors.Is(err, protocol.ErrMalformed) {
				s.logger.Warn("discarding frame", "err", err)
				continue
			}
			if websocket.IsUnexpectedCloseError(errors.Unwrap(err), websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Info("connection error", "err", err)
			}
			return
		}
		if f.Type != protocol.TypeUpdate || f.Validate() != nil {
			continue
		}
		s.hub.handle(s, f)
	}
}

func (s *Session) writePump() {
	defer s.conn.Close()
	for raw := range s.send {
		if err := s.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
			s.logger.Info("failed to write message", "err", err)
			return
		}
	}
	_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
