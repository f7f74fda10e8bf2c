// Package lww holds the authoritative key-value state and resolves concurrent writes to it with per-key
// last-write-wins timestamp comparison.
package lww

// Store maps keys to values and records the timestamp of the last accepted write for each key. It is not safe
// for concurrent use, the owner must serialize calls.
type Store struct {
	values map[string]interface{}
	stamps map[string]int64
}

func NewStore() *Store {
	return &Store{
		values: make(map[string]interface{}),
		stamps: make(map[string]int64),
	}
}

// Resolve decides whether value written at ts replaces the current value of key. The write is accepted when no
// timestamp is recorded for the key or ts is greater than or equal to the recorded one; equal timestamps favour the
// incoming write. The returned value is what the store holds for the key afterwards.
func (s *Store) Resolve(key string, value interface{}, ts int64) (interface{}, bool) {
	if last, ok := s.stamps[key]; !ok || ts >= last {
		s.stamps[key] = ts
		s.values[key] = value
		return value, true
	}
	return s.values[key], false
}

// Apply resolves every key of payload independently and returns the subset that was accepted. There is no
// atomicity across keys, so a batch may be partially accepted.
func (s *Store) Apply(payload map[string]interface{}, ts int64) map[string]interface{} {
	accepted := make(map[string]interface{}, len(payload))
	for key, value := range payload {
		if stored, ok := s.Resolve(key, value, ts); ok {
			accepted[key] = stored
		}
	}
	return accepted
}

func (s *Store) Get(key string) (interface{}, bool) {
	v, ok := s.values[key]
	return v, ok
}

// Timestamp returns the timestamp of the last accepted write for key.
func (s *Store) Timestamp(key string) (int64, bool) {
	ts, ok := s.stamps[key]
	return ts, ok
}

func (s *Store) Len() int {
	return len(s.values)
}

// Snapshot returns a deep copy of the current values that the caller may keep or modify freely.
func (s *Store) Snapshot() map[string]interface{} {
	return CloneMap(s.values)
}

// CloneMap deep copies a decoded JSON object.
func CloneMap(in map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return CloneMap(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
