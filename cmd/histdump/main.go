package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/automerge/automerge-go"

	"github.com/astromechza/syncity/pkg/history"
	"github.com/astromechza/syncity/pkg/viz"
)

func main() {
	if err := mainInner(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func mainInner() error {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{})))

	keyVar := flag.String("key", "", "render the history of this key as svg into the temp dir")
	flag.Parse()
	if flag.NArg() != 1 {
		return fmt.Errorf("expected one position argument: the journal file to read")
	}
	f, err := os.Open(flag.Arg(0))
	if err != nil {
		return fmt.Errorf("failed to open input file: %w", err)
	}
	defer f.Close()
	buff, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("failed to read input file: %w", err)
	}
	doc, err := automerge.Load(buff)
	if err != nil {
		return fmt.Errorf("failed to load doc: %w", err)
	}
	buff = nil
	slog.Info("loaded journal", "contents", doc.RootMap().GoString())

	changes, err := doc.Changes()
	if err != nil {
		return fmt.Errorf("failed to generate changes: %w", err)
	}
	for i, change := range changes {
		origin, ts, err := history.ParseCommitMessage(change.Message())
		if err != nil {
			slog.Warn("skipping change", "i", i, "err", err)
			continue
		}
		present := "-"
		if forked, err := doc.Fork(change.Hash()); err == nil {
			if k, err := forked.RootMap().Keys(); err == nil {
				present = fmt.Sprint(k)
			}
		}
		fmt.Printf("%4d %s session=%s timestamp=%d present=%s\n", i, change.Hash().String()[:8], origin, ts, present)
	}

	if *keyVar != "" {
		svgPath, err := viz.RenderToTemp(doc, *keyVar)
		if err != nil {
			return fmt.Errorf("failed to render: %w", err)
		}
		slog.Info("rendered", "key", *keyVar, "path", "file://"+svgPath)
	}
	return nil
}
