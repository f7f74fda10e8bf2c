package client

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/astromechza/syncity/pkg/localstore"
	"github.com/astromechza/syncity/pkg/protocol"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func update(key string, value interface{}, ts int64) protocol.Frame {
	return protocol.NewUpdate(map[string]interface{}{key: value}, ts)
}

func TestQueueFlushPreservesOrder(t *testing.T) {
	storage := localstore.NewMemory()
	q, err := NewQueue(storage, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range []string{"e1", "e2", "e3"} {
		if err := q.Push(update("k", v, int64(100+i))); err != nil {
			t.Fatal(err)
		}
	}

	var got []string
	sent, err := q.Flush(func(f protocol.Frame) error {
		got = append(got, f.Payload["k"].(string))
		return nil
	})
	if err != nil || sent != 3 {
		t.Fatalf("sent %d, err %v", sent, err)
	}
	if len(got) != 3 || got[0] != "e1" || got[1] != "e2" || got[2] != "e3" {
		t.Fatalf("order = %v", got)
	}
	if q.Len() != 0 {
		t.Fatalf("len = %d", q.Len())
	}
	if raw, _ := storage.Load(QueueRecord); raw != nil {
		t.Fatalf("record not cleared: %s", raw)
	}
}

func TestQueueSurvivesRestart(t *testing.T) {
	storage := localstore.NewMemory()
	q, err := NewQueue(storage, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	_ = q.Push(update("a", "1", 1))
	_ = q.Push(update("b", "2", 2))

	restored, err := NewQueue(storage, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	items := restored.Items()
	if len(items) != 2 || items[0].Payload["a"] != "1" || items[1].Timestamp != 2 || items[1].Type != protocol.TypeUpdate {
		t.Fatalf("items = %+v", items)
	}
}

func TestQueueFlushFailureKeepsRemainder(t *testing.T) {
	storage := localstore.NewMemory()
	q, _ := NewQueue(storage, quietLogger())
	for i := int64(1); i <= 3; i++ {
		_ = q.Push(update("k", i, i))
	}

	calls := 0
	sent, err := q.Flush(func(f protocol.Frame) error {
		calls++
		if calls == 2 {
			return errors.New("connection dropped")
		}
		return nil
	})
	if err == nil || sent != 1 {
		t.Fatalf("sent %d, err %v", sent, err)
	}
	items := q.Items()
	if len(items) != 2 || items[0].Timestamp != 2 || items[1].Timestamp != 3 {
		t.Fatalf("remaining = %+v", items)
	}

	restored, _ := NewQueue(storage, quietLogger())
	if restored.Len() != 2 {
		t.Fatalf("persisted len = %d", restored.Len())
	}
}

func TestQueueRejectsCorruptRecord(t *testing.T) {
	storage := localstore.NewMemory()
	_ = storage.Save(QueueRecord, []byte("{"))
	if _, err := NewQueue(storage, quietLogger()); err == nil {
		t.Fatal("expected error")
	}
}
