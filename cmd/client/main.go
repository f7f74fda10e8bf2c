package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/astromechza/syncity/pkg/client"
	"github.com/astromechza/syncity/pkg/discovery"
	"github.com/astromechza/syncity/pkg/localstore"
)

func main() {
	if err := mainInner(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func mainInner() error {
	addrVar := flag.String("addr", "127.0.0.1:3000", "the server address to connect to")
	discoverVar := flag.Bool("discover", false, "find the server over mDNS instead of using -addr")
	storeVar := flag.String("store", "sqlite", "where the offline queue is kept: memory, sqlite or bolt")
	storePathVar := flag.String("store-path", "syncity-client.db", "file backing the sqlite or bolt store")
	initialVar := flag.Duration("reconnect-initial", 3*time.Second, "first delay before reconnecting")
	maxVar := flag.Duration("reconnect-max", time.Minute, "upper bound on the reconnect delay")
	verboseVar := flag.Bool("verbose", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verboseVar {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addr := *addrVar
	if *discoverVar {
		lookupCtx, lookupCancel := context.WithTimeout(ctx, 5*time.Second)
		found, err := discovery.Lookup(lookupCtx)
		lookupCancel()
		if err != nil {
			return fmt.Errorf("failed to discover server: %w", err)
		}
		slog.Info("discovered server", "addr", found)
		addr = found
	}
	u := url.URL{Scheme: "ws", Host: addr, Path: "/ws"}

	storage, err := localstore.Open(*storeVar, *storePathVar)
	if err != nil {
		return fmt.Errorf("failed to open local store: %w", err)
	}
	defer storage.Close()

	c, err := client.New(client.Options{
		URL:              u.String(),
		Storage:          storage,
		Output:           os.Stdout,
		ReconnectInitial: *initialVar,
		ReconnectMax:     *maxVar,
	})
	if err != nil {
		return err
	}
	if n := c.Pending(); n > 0 {
		slog.Info("offline updates waiting from a previous run", "items", n)
	}

	wg := new(sync.WaitGroup)
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = c.Run(ctx)
		slog.Info("stopped sync")
	}()

	go readCommands(c, cancel)

	exit := make(chan os.Signal, 1) // we need to reserve to buffer size 1, so the notifier are not blocked
	signal.Notify(exit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-exit:
		slog.Info("Signal caught", "sig", sig)
	case <-ctx.Done():
	}
	cancel()

	wg.Wait()
	return nil
}

// readCommands turns stdin lines into edits. "key=value" sets key, with value parsed as JSON when it is valid JSON
// and used as a plain string otherwise. "/offline" and "/online" simulate losing and regaining connectivity, and
// "/state" prints the local state again. EOF stops the client.
func readCommands(c *client.Client, stop func()) {
	defer stop()
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/offline":
			c.SetOnline(false)
			continue
		case "/online":
			c.SetOnline(true)
			continue
		case "/state":
			c.Render()
			continue
		}
		key, raw, ok := strings.Cut(line, "=")
		if !ok || key == "" {
			slog.Warn("expected key=value", "line", line)
			continue
		}
		var value interface{}
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			value = raw
		}
		c.Edit(map[string]interface{}{key: value})
	}
	if err := scanner.Err(); err != nil {
		slog.Error("failed to read input", "err", err)
	}
}
