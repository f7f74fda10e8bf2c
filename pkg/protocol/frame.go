// Package protocol defines the JSON text frames exchanged between clients and the server.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
)

type Type string

const (
	// TypeInit carries a full snapshot of the server state, sent once per connection.
	TypeInit Type = "init"
	// TypeUpdate carries a batch of key writes that share one timestamp.
	TypeUpdate Type = "update"
)

var (
	// ErrMalformed is returned when a frame is not valid JSON.
	ErrMalformed = errors.New("malformed frame")
	// ErrIncomplete is returned when an update frame lacks its payload or timestamp.
	ErrIncomplete = errors.New("incomplete frame")
)

// Frame is any message on the wire. Which fields are meaningful depends on Type.
type Frame struct {
	Type      Type                   `json:"type"`
	State     map[string]interface{} `json:"state,omitempty"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Timestamp int64                  `json:"timestamp,omitempty"`
}

func NewInit(state map[string]interface{}) Frame {
	return Frame{Type: TypeInit, State: state}
}

// NewUpdate builds an update frame. ts is milliseconds since the epoch.
func NewUpdate(payload map[string]interface{}, ts int64) Frame {
	return Frame{Type: TypeUpdate, Payload: payload, Timestamp: ts}
}

// MarshalJSON encodes only the fields that belong to the frame type, so an init frame with no keys still carries an
// empty state object.
func (f Frame) MarshalJSON() ([]byte, error) {
	switch f.Type {
	case TypeInit:
		state := f.State
		if state == nil {
			state = map[string]interface{}{}
		}
		return json.Marshal(struct {
			Type  Type                   `json:"type"`
			State map[string]interface{} `json:"state"`
		}{f.Type, state})
	case TypeUpdate:
		return json.Marshal(struct {
			Type      Type                   `json:"type"`
			Payload   map[string]interface{} `json:"payload"`
			Timestamp int64                  `json:"timestamp"`
		}{f.Type, f.Payload, f.Timestamp})
	default:
		type plain Frame
		return json.Marshal(plain(f))
	}
}

// UnmarshalJSON accepts any JSON number as the timestamp. Fractional milliseconds are truncated toward zero.
func (f *Frame) UnmarshalJSON(raw []byte) error {
	type plain Frame
	var aux struct {
		plain
		Timestamp json.RawMessage `json:"timestamp"`
	}
	if err := json.Unmarshal(raw, &aux); err != nil {
		return err
	}
	ts, err := parseTimestamp(aux.Timestamp)
	if err != nil {
		return err
	}
	*f = Frame(aux.plain)
	f.Timestamp = ts
	return nil
}

func parseTimestamp(raw json.RawMessage) (int64, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, nil
	}
	if ts, err := strconv.ParseInt(string(raw), 10, 64); err == nil {
		return ts, nil
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, fmt.Errorf("timestamp %s is not a number", raw)
	}
	if v >= math.MaxInt64 || v <= math.MinInt64 {
		return 0, fmt.Errorf("timestamp %s is out of range", raw)
	}
	return int64(v), nil
}

// Validate reports ErrIncomplete for an update frame without a payload or with a zero timestamp. Frames of other
// types are not checked.
func (f Frame) Validate() error {
	if f.Type != TypeUpdate {
		return nil
	}
	if f.Payload == nil {
		return fmt.Errorf("%w: missing payload", ErrIncomplete)
	}
	if f.Timestamp == 0 {
		return fmt.Errorf("%w: missing timestamp", ErrIncomplete)
	}
	return nil
}

func Encode(f Frame) ([]byte, error) {
	raw, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s frame: %w", f.Type, err)
	}
	return raw, nil
}

func Decode(raw []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return f, nil
}
