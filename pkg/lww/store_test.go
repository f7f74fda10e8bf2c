package lww

import (
	"reflect"
	"testing"
)

func TestResolve(t *testing.T) {
	for _, tc := range []struct {
		name      string
		seed      *int64
		ts        int64
		wantValue interface{}
		wantTs    int64
		accepted  bool
	}{
		{name: "no prior record", seed: nil, ts: 10, wantValue: "new", wantTs: 10, accepted: true},
		{name: "newer write", seed: ptr(10), ts: 20, wantValue: "new", wantTs: 20, accepted: true},
		{name: "equal timestamp favours incoming", seed: ptr(10), ts: 10, wantValue: "new", wantTs: 10, accepted: true},
		{name: "older write rejected", seed: ptr(10), ts: 5, wantValue: "old", wantTs: 10, accepted: false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			s := NewStore()
			if tc.seed != nil {
				s.Resolve("k", "old", *tc.seed)
			}
			got, ok := s.Resolve("k", "new", tc.ts)
			if ok != tc.accepted {
				t.Fatalf("accepted = %v, want %v", ok, tc.accepted)
			}
			if got != tc.wantValue {
				t.Errorf("returned %v, want %v", got, tc.wantValue)
			}
			if v, _ := s.Get("k"); v != tc.wantValue {
				t.Errorf("stored %v, want %v", v, tc.wantValue)
			}
			if ts, _ := s.Timestamp("k"); ts != tc.wantTs {
				t.Errorf("timestamp %d, want %d", ts, tc.wantTs)
			}
		})
	}
}

func TestApplyPartialBatch(t *testing.T) {
	s := NewStore()
	s.Apply(map[string]interface{}{"a": 1.0}, 100)
	accepted := s.Apply(map[string]interface{}{"a": 2.0, "b": 3.0}, 50)
	if !reflect.DeepEqual(accepted, map[string]interface{}{"b": 3.0}) {
		t.Fatalf("accepted = %v", accepted)
	}
	want := map[string]interface{}{"a": 1.0, "b": 3.0}
	if got := s.Snapshot(); !reflect.DeepEqual(got, want) {
		t.Fatalf("snapshot = %v, want %v", got, want)
	}
}

func TestApplyIsIdempotent(t *testing.T) {
	once := NewStore()
	twice := NewStore()
	payload := map[string]interface{}{"x": "v", "y": []interface{}{1.0, 2.0}}
	once.Apply(payload, 42)
	twice.Apply(payload, 42)
	twice.Apply(payload, 42)
	if !reflect.DeepEqual(once.Snapshot(), twice.Snapshot()) {
		t.Fatalf("replay changed state: %v vs %v", once.Snapshot(), twice.Snapshot())
	}
	ts1, _ := once.Timestamp("x")
	ts2, _ := twice.Timestamp("x")
	if ts1 != ts2 {
		t.Fatalf("replay changed timestamp: %d vs %d", ts1, ts2)
	}
}

func TestLateWriteFromSecondClientRejected(t *testing.T) {
	s := NewStore()
	s.Apply(map[string]interface{}{"x": 1.0}, 100)
	s.Apply(map[string]interface{}{"x": 2.0}, 50)
	if v, _ := s.Get("x"); v != 1.0 {
		t.Errorf("x = %v, want 1", v)
	}
	if ts, _ := s.Timestamp("x"); ts != 100 {
		t.Errorf("timestamp = %d, want 100", ts)
	}
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	s := NewStore()
	s.Apply(map[string]interface{}{"obj": map[string]interface{}{"a": "b"}}, 1)
	snap := s.Snapshot()
	snap["obj"].(map[string]interface{})["a"] = "mutated"
	snap["extra"] = true
	if v, _ := s.Get("obj"); v.(map[string]interface{})["a"] != "b" {
		t.Errorf("store was mutated through snapshot: %v", v)
	}
	if s.Len() != 1 {
		t.Errorf("len = %d, want 1", s.Len())
	}
}

func ptr(v int64) *int64 { return &v }
