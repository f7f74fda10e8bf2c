package protocol

import (
	"fmt"

	"github.com/gorilla/websocket"
)

// ReadFrame reads the next text frame from conn. Binary frames are skipped. A decoding failure is returned wrapped
// in ErrMalformed and leaves the connection usable; any other error means the connection is gone.
func ReadFrame(conn *websocket.Conn) (Frame, error) {
	for {
		mt, p, err := conn.ReadMessage()
		if err != nil {
			return Frame{}, fmt.Errorf("failed to read message: %w", err)
		}
		switch mt {
		case websocket.TextMessage:
			return Decode(p)
		default:
		}
	}
}

func WriteFrame(conn *websocket.Conn, f Frame) error {
	raw, err := Encode(f)
	if err != nil {
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}
