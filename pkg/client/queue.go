package client

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/astromechza/syncity/pkg/localstore"
	"github.com/astromechza/syncity/pkg/protocol"
)

// QueueRecord is the storage record that holds the serialized offline queue.
const QueueRecord = "syncityOfflineQueue"

// Queue holds update frames that could not be sent yet, in the order they were made. The whole queue is rewritten to
// storage on every change and the record is removed once the queue drains.
type Queue struct {
	mu      sync.Mutex
	items   []protocol.Frame
	storage localstore.Storage
	logger  *slog.Logger
}

// NewQueue restores any queue previously persisted in storage.
func NewQueue(storage localstore.Storage, logger *slog.Logger) (*Queue, error) {
	if logger == nil {
		logger = slog.Default()
	}
	q := &Queue{storage: storage, logger: logger}
	raw, err := storage.Load(QueueRecord)
	if err != nil {
		return nil, fmt.Errorf("failed to load offline queue: %w", err)
	}
	if raw != nil {
		if err := json.Unmarshal(raw, &q.items); err != nil {
			return nil, fmt.Errorf("failed to decode offline queue: %w", err)
		}
		logger.Info("restored offline queue", "items", len(q.items))
	}
	return q, nil
}

func (q *Queue) Push(f protocol.Frame) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, f)
	return q.persistLocked()
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) Items() []protocol.Frame {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]protocol.Frame(nil), q.items...)
}

// Flush sends queued frames in order. Each frame leaves the queue only after send returns nil for it, so a failure
// part way through keeps the failed frame and everything after it. Delivery is at-least-once: a frame is sent again
// if the process stops between sending it and persisting the shorter queue.
func (q *Queue) Flush(send func(protocol.Frame) error) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	sent := 0
	for len(q.items) > 0 {
		if err := send(q.items[0]); err != nil {
			return sent, err
		}
		q.items = q.items[1:]
		sent++
		if err := q.persistLocked(); err != nil {
			return sent, err
		}
	}
	return sent, nil
}

func (q *Queue) persistLocked() error {
	if len(q.items) == 0 {
		if err := q.storage.Remove(QueueRecord); err != nil {
			return fmt.Errorf("failed to clear offline queue: %w", err)
		}
		return nil
	}
	raw, err := json.Marshal(q.items)
	if err != nil {
		return fmt.Errorf("failed to encode offline queue: %w", err)
	}
	if err := q.storage.Save(QueueRecord, raw); err != nil {
		return fmt.Errorf("failed to persist offline queue: %w", err)
	}
	return nil
}
