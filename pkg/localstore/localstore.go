// Package localstore provides small durable stores of named records, used by clients to keep data across restarts.
package localstore

import (
	"fmt"
	"sync"
)

// Storage loads, saves and removes named records. Load returns nil data and no error when the record does not exist.
type Storage interface {
	Load(name string) ([]byte, error)
	Save(name string, data []byte) error
	Remove(name string) error
	Close() error
}

// Open returns the storage backend named by kind ("memory", "sqlite" or "bolt") at path.
func Open(kind, path string) (Storage, error) {
	switch kind {
	case "", "memory":
		return NewMemory(), nil
	case "sqlite":
		s, err := OpenSQLite(path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "bolt":
		b, err := OpenBolt(path)
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unknown storage kind %q", kind)
	}
}

// Memory keeps records in process memory only.
type Memory struct {
	mu      sync.Mutex
	records map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{records: make(map[string][]byte)}
}

func (m *Memory) Load(name string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.records[name]; ok {
		return append([]byte(nil), v...), nil
	}
	return nil, nil
}

func (m *Memory) Save(name string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[name] = append([]byte(nil), data...)
	return nil
}

func (m *Memory) Remove(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, name)
	return nil
}

func (m *Memory) Close() error { return nil }
