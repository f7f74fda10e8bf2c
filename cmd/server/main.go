package main

import (
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/astromechza/syncity/pkg/config"
	"github.com/astromechza/syncity/pkg/discovery"
	"github.com/astromechza/syncity/pkg/history"
	"github.com/astromechza/syncity/pkg/hub"
	"github.com/astromechza/syncity/pkg/plugin"
	"github.com/astromechza/syncity/pkg/viz"
)

func main() {
	if err := mainInner(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func mainInner() error {
	configVar := flag.String("config", "", "optional yaml config file")
	portVar := flag.Int("port", 0, "the port to listen on, overrides config and PORT")
	staticVar := flag.String("static", "", "directory of static client files to serve")
	relayVar := flag.String("relay", "", "what to relay to peers: accepted or verbatim")
	pluginsVar := flag.String("plugins", "", "comma separated plugins to load, available: "+strings.Join(plugin.Available(), ","))
	historyVar := flag.Bool("history", false, "journal accepted writes and dump them on shutdown")
	mdnsVar := flag.Bool("mdns", false, "advertise the server over mDNS")
	verboseVar := flag.Bool("verbose", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verboseVar {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	cfg, err := config.Load(*configVar)
	if err != nil {
		return err
	}
	if *portVar != 0 {
		cfg.Port = *portVar
	}
	if *staticVar != "" {
		cfg.StaticDir = *staticVar
	}
	if *relayVar != "" {
		cfg.Relay = *relayVar
	}
	if *pluginsVar != "" {
		cfg.Plugins = strings.Split(*pluginsVar, ",")
	}
	if *historyVar {
		cfg.History.Enabled = true
	}
	if *mdnsVar {
		cfg.MDNS = true
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	relay, err := hub.ParseRelayMode(cfg.Relay)
	if err != nil {
		return err
	}

	var journal *history.Journal
	opts := hub.Options{Relay: relay, SendBuffer: cfg.SendBuffer}
	if cfg.History.Enabled {
		journal = history.New(slog.Default())
		opts.Recorder = journal
	}
	h := hub.New(opts)
	plugin.Load(h, cfg.Plugins, slog.Default())

	httpServer := &http.Server{Addr: cfg.Addr(), Handler: hub.NewRouter(h, cfg.StaticDir, slog.Default())}

	if cfg.MDNS {
		withdraw, err := discovery.Advertise(cfg.Port)
		if err != nil {
			slog.Error("failed to advertise", "err", err)
		} else {
			defer withdraw()
			slog.Info("advertising over mDNS", "service", discovery.Service, "port", cfg.Port)
		}
	}

	wg := new(sync.WaitGroup)
	wg.Add(1)
	go func() {
		defer wg.Done()
		slog.Info("Syncity server running", "addr", cfg.Addr(), "relay", relay)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server listen failed", "err", err)
		}
	}()

	exit := make(chan os.Signal, 1) // we need to reserve to buffer size 1, so the notifier are not blocked
	signal.Notify(exit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-exit
	slog.Info("Signal caught", "sig", sig)
	_ = httpServer.Close()
	h.Close()

	wg.Wait()

	if journal != nil {
		dumpJournal(journal, cfg.History)
	}
	return nil
}

func dumpJournal(journal *history.Journal, cfg config.History) {
	path, err := journal.Dump(cfg.DumpDir)
	if err != nil {
		slog.Error("failed to dump", "err", err)
		return
	}
	slog.Info("dumped", "path", path)
	if cfg.RenderKey == "" {
		return
	}
	doc, err := journal.Doc()
	if err != nil {
		slog.Error("failed to fork journal", "err", err)
		return
	}
	svgPath := strings.TrimSuffix(path, filepath.Ext(path)) + "." + cfg.RenderKey + ".svg"
	if err := viz.RenderKeyHistory(doc, cfg.RenderKey, svgPath); err != nil {
		slog.Error("failed to render", "key", cfg.RenderKey, "err", err)
	} else {
		slog.Info("rendered", "key", cfg.RenderKey, "path", "file://"+svgPath)
	}
}
