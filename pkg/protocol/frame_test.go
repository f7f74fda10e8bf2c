package protocol

import (
	"errors"
	"testing"
)

func TestEncodeInitWithEmptyState(t *testing.T) {
	raw, err := Encode(NewInit(nil))
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != `{"type":"init","state":{}}` {
		t.Fatalf("got %s", raw)
	}
}

func TestEncodeUpdate(t *testing.T) {
	raw, err := Encode(NewUpdate(map[string]interface{}{"x": 1}, 100))
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != `{"type":"update","payload":{"x":1},"timestamp":100}` {
		t.Fatalf("got %s", raw)
	}
}

func TestDecode(t *testing.T) {
	for _, tc := range []struct {
		name    string
		raw     string
		decode  error
		invalid error
	}{
		{name: "update", raw: `{"type":"update","payload":{"x":1},"timestamp":100}`},
		{name: "not json", raw: `{"type":`, decode: ErrMalformed},
		{name: "string timestamp", raw: `{"type":"update","payload":{},"timestamp":"100"}`, decode: ErrMalformed},
		{name: "huge timestamp", raw: `{"type":"update","payload":{},"timestamp":1e300}`, decode: ErrMalformed},
		{name: "null timestamp", raw: `{"type":"update","payload":{"x":1},"timestamp":null}`, invalid: ErrIncomplete},
		{name: "missing payload", raw: `{"type":"update","timestamp":100}`, invalid: ErrIncomplete},
		{name: "null payload", raw: `{"type":"update","payload":null,"timestamp":100}`, invalid: ErrIncomplete},
		{name: "missing timestamp", raw: `{"type":"update","payload":{"x":1}}`, invalid: ErrIncomplete},
		{name: "empty payload is present", raw: `{"type":"update","payload":{},"timestamp":7}`},
		{name: "unknown type is not validated", raw: `{"type":"ping"}`},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f, err := Decode([]byte(tc.raw))
			if !errors.Is(err, tc.decode) {
				t.Fatalf("decode err = %v, want %v", err, tc.decode)
			}
			if err != nil {
				return
			}
			if err := f.Validate(); !errors.Is(err, tc.invalid) {
				t.Fatalf("validate err = %v, want %v", err, tc.invalid)
			}
		})
	}
}

func TestDecodeTimestamp(t *testing.T) {
	for raw, want := range map[string]int64{
		`1700000000000`:   1700000000000,
		`1700000000000.5`: 1700000000000,
		`1.7e12`:          1700000000000,
		`-2.9`:            -2,
	} {
		f, err := Decode([]byte(`{"type":"update","payload":{"x":1},"timestamp":` + raw + `}`))
		if err != nil {
			t.Fatalf("%s: %v", raw, err)
		}
		if f.Timestamp != want || f.Payload["x"] != 1.0 || f.Type != TypeUpdate {
			t.Fatalf("%s: got %+v", raw, f)
		}
	}
}

func TestDecodeInit(t *testing.T) {
	f, err := Decode([]byte(`{"type":"init","state":{"a":"b"}}`))
	if err != nil {
		t.Fatal(err)
	}
	if f.Type != TypeInit || f.State["a"] != "b" {
		t.Fatalf("got %+v", f)
	}
}
