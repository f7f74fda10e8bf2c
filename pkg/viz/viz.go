package viz

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/automerge/automerge-go"
	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"
)

// RenderKeyHistory draws the change graph of a journal document as SVG. Each node is labelled with the commit
// message and the value of key as of that change.
func RenderKeyHistory(doc *automerge.Doc, key string, outputPath string) error {
	g := graphviz.New()
	defer g.Close()

	graph, err := g.Graph()
	if err != nil {
		return fmt.Errorf("failed to setup graph: %w", err)
	}
	defer graph.Close()

	changes, err := doc.Changes()
	if err != nil {
		return fmt.Errorf("failed to generate changes: %w", err)
	}

	nodeMap := make(map[string]*cgraph.Node)
	var edgeCounter uint64
	for _, change := range changes {
		label, err := KeyLabel(doc, change, key)
		if err != nil {
			return err
		}
		n, err := graph.CreateNode(change.Hash().String())
		if err != nil {
			return fmt.Errorf("failed to create node: %w", err)
		}
		n.SetLabel(label)
		nodeMap[n.Name()] = n

		for _, hash := range change.Dependencies() {
			parent, ok := nodeMap[hash.String()]
			if !ok {
				continue
			}
			if _, err := graph.CreateEdge(strconv.Itoa(int(atomic.AddUint64(&edgeCounter, 1))), parent, n); err != nil {
				return fmt.Errorf("failed to create edge: %w", err)
			}
		}
	}

	var buff bytes.Buffer
	if err := g.Render(graph, graphviz.SVG, &buff); err != nil {
		return fmt.Errorf("failed to render: %w", err)
	}
	if err := os.WriteFile(outputPath, buff.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", outputPath, err)
	}
	return nil
}

// KeyLabel describes change as "<hash prefix> <message> <key>=<json value>", reading the value of key from the
// document as it was at that change.
func KeyLabel(doc *automerge.Doc, change *automerge.Change, key string) (string, error) {
	docAt, err := doc.Fork(change.Hash())
	if err != nil {
		return "", fmt.Errorf("failed to checkout %s: %w", change.Hash(), err)
	}
	var raw interface{}
	if value, err := docAt.Path(key).Get(); err == nil {
		raw = value.Interface()
	}
	encoded, err := json.Marshal(raw)
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s: %w", change.Hash(), err)
	}
	return fmt.Sprintf("%s %s %s=%s", change.Hash().String()[:8], change.Message(), key, encoded), nil
}

// RenderToTemp renders the history of key into a new file in the temp directory and returns its path.
func RenderToTemp(doc *automerge.Doc, key string) (string, error) {
	tf := filepath.Join(os.TempDir(), fmt.Sprintf("%d%d.svg", time.Now().UnixNano(), rand.Int()))
	if err := RenderKeyHistory(doc, key, tf); err != nil {
		return "", err
	}
	return tf, nil
}
