// Package history keeps a debugging journal of accepted writes. Each accepted batch becomes one commit in an
// automerge document, so the document's change graph shows which session set which keys and when. The journal is
// write-only from the server's point of view: it is dumped on shutdown for inspection and never loaded back.
package history

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/automerge/automerge-go"
)

type Journal struct {
	mu     sync.Mutex
	doc    *automerge.Doc
	logger *slog.Logger
}

func New(logger *slog.Logger) *Journal {
	if logger == nil {
		logger = slog.Default()
	}
	return &Journal{doc: automerge.New(), logger: logger.With("component", "history")}
}

// Record sets every accepted key in the document and commits them as one change. The commit message is
// origin@timestamp. Keys the document cannot hold are skipped. If a write fails the batch is rolled back, so nothing
// from it leaks into a later commit.
func (j *Journal) Record(origin string, ts int64, accepted map[string]interface{}) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	heads := j.doc.Heads()
	for key, value := range accepted {
		if key == "" {
			j.logger.Warn("skipping key the journal cannot hold", "origin", origin, "timestamp", ts, "key", key)
			continue
		}
		if err := j.doc.Path(key).Set(value); err != nil {
			if rerr := j.rollbackLocked(heads); rerr != nil {
				return fmt.Errorf("failed to roll back after setting %q: %w", key, rerr)
			}
			return fmt.Errorf("failed to set %q: %w", key, err)
		}
	}
	if _, err := j.doc.Commit(CommitMessage(origin, ts), automerge.CommitOptions{AllowEmpty: true}); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// rollbackLocked replaces the document with a fork at heads, dropping any uncommitted operations. The actor is kept
// so the dump file name does not change.
func (j *Journal) rollbackLocked(heads []automerge.ChangeHash) error {
	actor := j.doc.ActorID()
	doc := automerge.New()
	if len(heads) > 0 {
		var err error
		if doc, err = j.doc.Fork(heads...); err != nil {
			return err
		}
	}
	if err := doc.SetActorID(actor); err != nil {
		return err
	}
	j.doc = doc
	return nil
}

// Changes returns the number of commits recorded so far.
func (j *Journal) Changes() (int, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	changes, err := j.doc.Changes()
	if err != nil {
		return 0, fmt.Errorf("failed to generate changes: %w", err)
	}
	return len(changes), nil
}

// Doc returns a fork of the journal document that the caller can read without holding the journal lock.
func (j *Journal) Doc() (*automerge.Doc, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.doc.Fork()
}

// Dump writes the journal document into dir and returns the file path.
func (j *Journal) Dump(dir string) (string, error) {
	j.mu.Lock()
	raw := j.doc.Save()
	actor := j.doc.ActorID()
	j.mu.Unlock()

	if dir == "" {
		dir = os.TempDir()
	}
	tf := filepath.Join(dir, actor+".automerge")
	if err := os.WriteFile(tf, raw, 0o644); err != nil {
		return "", fmt.Errorf("failed to dump journal: %w", err)
	}
	return tf, nil
}

func CommitMessage(origin string, ts int64) string {
	return origin + "@" + strconv.FormatInt(ts, 10)
}

// ParseCommitMessage splits a message produced by CommitMessage.
func ParseCommitMessage(msg string) (string, int64, error) {
	i := strings.LastIndex(msg, "@")
	if i < 0 {
		return "", 0, fmt.Errorf("not a journal commit: %q", msg)
	}
	ts, err := strconv.ParseInt(msg[i+1:], 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("bad timestamp in %q: %w", msg, err)
	}
	return msg[:i], ts, nil
}
