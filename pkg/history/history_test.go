package history

import (
	"io"
	"log/slog"
	"os"
	"reflect"
	"sort"
	"testing"

	"github.com/automerge/automerge-go"
)

func TestRecordAndDump(t *testing.T) {
	j := New(quietLogger())
	if err := j.Record("s1", 100, map[string]interface{}{"x": 1.0, "name": "a"}); err != nil {
		t.Fatal(err)
	}
	if err := j.Record("s2", 200, map[string]interface{}{"x": 2.0}); err != nil {
		t.Fatal(err)
	}
	if n, err := j.Changes(); err != nil || n != 2 {
		t.Fatalf("changes = %d, %v", n, err)
	}

	path, err := j.Dump(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	doc, err := automerge.Load(raw)
	if err != nil {
		t.Fatal(err)
	}
	v, err := doc.Path("x").Get()
	if err != nil {
		t.Fatal(err)
	}
	if v.Interface() != 2.0 {
		t.Fatalf("x = %v", v.Interface())
	}
	changes, err := doc.Changes()
	if err != nil {
		t.Fatal(err)
	}
	origin, ts, err := ParseCommitMessage(changes[1].Message())
	if err != nil || origin != "s2" || ts != 200 {
		t.Fatalf("commit = %q %d %v", origin, ts, err)
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// keysAt returns the sorted root keys of doc as of the given change.
func keysAt(t *testing.T, doc *automerge.Doc, ch *automerge.Change) []string {
	t.Helper()
	forked, err := doc.Fork(ch.Hash())
	if err != nil {
		t.Fatal(err)
	}
	keys, err := forked.RootMap().Keys()
	if err != nil {
		t.Fatal(err)
	}
	sort.Strings(keys)
	return keys
}

func TestEmptyKeyIsSkipped(t *testing.T) {
	j := New(quietLogger())
	if err := j.Record("s1", 100, map[string]interface{}{"a": "from-s1", "": "x"}); err != nil {
		t.Fatal(err)
	}
	if err := j.Record("s2", 200, map[string]interface{}{"b": 1.0}); err != nil {
		t.Fatal(err)
	}
	doc, err := j.Doc()
	if err != nil {
		t.Fatal(err)
	}
	changes, err := doc.Changes()
	if err != nil {
		t.Fatal(err)
	}
	if len(changes) != 2 {
		t.Fatalf("changes = %d", len(changes))
	}
	if changes[0].Message() != "s1@100" || !reflect.DeepEqual(keysAt(t, doc, changes[0]), []string{"a"}) {
		t.Fatalf("first commit = %q %v", changes[0].Message(), keysAt(t, doc, changes[0]))
	}
	if changes[1].Message() != "s2@200" || !reflect.DeepEqual(keysAt(t, doc, changes[1]), []string{"a", "b"}) {
		t.Fatalf("second commit = %q %v", changes[1].Message(), keysAt(t, doc, changes[1]))
	}
}

func TestFailedBatchLeavesNothingBehind(t *testing.T) {
	j := New(quietLogger())
	if err := j.Record("s0", 10, map[string]interface{}{"base": true}); err != nil {
		t.Fatal(err)
	}
	actor := func() string {
		j.mu.Lock()
		defer j.mu.Unlock()
		return j.doc.ActorID()
	}
	before := actor()

	err := j.Record("s1", 100, map[string]interface{}{
		"a":      "from-s1",
		"nested": map[string]interface{}{"": 1.0},
	})
	if err == nil {
		t.Fatal("expected the nested empty key to fail")
	}
	if err := j.Record("s2", 200, map[string]interface{}{"b": 1.0}); err != nil {
		t.Fatal(err)
	}

	doc, err := j.Doc()
	if err != nil {
		t.Fatal(err)
	}
	changes, err := doc.Changes()
	if err != nil {
		t.Fatal(err)
	}
	if len(changes) != 2 || changes[1].Message() != "s2@200" {
		t.Fatalf("changes = %d", len(changes))
	}
	if got := keysAt(t, doc, changes[1]); !reflect.DeepEqual(got, []string{"b", "base"}) {
		t.Fatalf("keys after s2 = %v", got)
	}
	if actor() != before {
		t.Fatalf("actor changed from %s to %s", before, actor())
	}
}

func TestParseCommitMessage(t *testing.T) {
	if _, _, err := ParseCommitMessage("nope"); err == nil {
		t.Fatal("expected error")
	}
	if _, _, err := ParseCommitMessage("s@x"); err == nil {
		t.Fatal("expected error")
	}
	origin, ts, err := ParseCommitMessage(CommitMessage("a@b", 7))
	if err != nil || origin != "a@b" || ts != 7 {
		t.Fatalf("got %q %d %v", origin, ts, err)
	}
}
