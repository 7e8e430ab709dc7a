// Command tabfreeze keeps frozen domains from spawning new tabs in a
// Chromium driven over the DevTools protocol.
//
//	tabfreeze -config tabfreeze.yaml [-log-level debug] [-dry-run] [-mcp]
//
// -dry-run swaps the browser for an in-memory host so the control API and
// storage can be exercised without Chromium. That host only has the tabs
// listed under dry_run.tabs in the config; their ids are logged at startup. -mcp serves the management
// tools over stdio; logs always go to stderr.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hazyhaar/tabfreeze/api"
	"github.com/hazyhaar/tabfreeze/config"
	"github.com/hazyhaar/tabfreeze/domainstore"
	"github.com/hazyhaar/tabfreeze/freezer"
	"github.com/hazyhaar/tabfreeze/host"
	"github.com/hazyhaar/tabfreeze/host/cdp"
	"github.com/hazyhaar/tabfreeze/host/memhost"
	"github.com/hazyhaar/tabfreeze/kvstore"
	"github.com/hazyhaar/tabfreeze/observability"
	"github.com/hazyhaar/tabfreeze/watch"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to YAML config (defaults when empty)")
	logLevel := flag.String("log-level", "", "override log level (debug, info, warn, error)")
	dryRun := flag.Bool("dry-run", false, "use an in-memory host instead of a browser")
	mcpStdio := flag.Bool("mcp", false, "serve MCP tools on stdin/stdout")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadFile(*configPath)
		if err != nil {
			slog.Error("load config", "path", *configPath, "error", err)
			os.Exit(1)
		}
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	var lvl slog.Level
	switch cfg.LogLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, *dryRun, *mcpStdio, logger); err != nil {
		logger.Error("tabfreeze", "error", err)
		os.Exit(1)
	}
	logger.Info("tabfreeze stopped")
}

func run(ctx context.Context, cfg *config.Config, dryRun, mcpStdio bool, logger *slog.Logger) error {
	kv, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer kv.Close()
	store := domainstore.New(kv, logger)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(reg)

	var (
		h       host.Host
		surface api.Surface
	)
	if dryRun {
		mh := memhost.New(256)
		for _, tab := range mh.Seed(cfg.DryRun.Tabs) {
			logger.Info("dry run: tab opened", "tab_id", tab.ID, "url", tab.URL)
		}
		h, surface = mh, mh
		logger.Info("dry run: in-memory host", "tabs", len(cfg.DryRun.Tabs))
	} else {
		b := cdp.New(cdp.Config{
			RemoteURL:   cfg.Browser.Remote,
			Headless:    cfg.Browser.Headless,
			Stealth:     cfg.Browser.Stealth,
			Bin:         cfg.Browser.Bin,
			UserDataDir: cfg.Browser.UserDataDir,
			Flags:       cfg.Browser.Flags,
			Logger:      logger,
		})
		if err := b.Start(ctx); err != nil {
			return err
		}
		defer b.Close()
		h, surface = b, b
	}

	f, err := freezer.New(freezer.Config{
		Tabs:      h,
		Action:    h,
		Menus:     h,
		Store:     store,
		Icons:     freezer.Icons{Frozen: cfg.Icons.Frozen, Normal: cfg.Icons.Normal},
		MenuTitle: cfg.Menu.Title,
		Metrics:   metrics,
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	if err := f.Install(ctx); err != nil {
		return err
	}

	srv, err := api.New(api.Options{
		Freezer:   f,
		Surface:   surface,
		Gatherer:  reg,
		TokenHash: cfg.API.TokenHash,
		MaxConns:  cfg.API.MaxConns,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errc := make(chan error, 3)

	// Other processes may write the same store; rescope the menu when the
	// revision moves.
	w := watch.New(store.Revision, watch.Options{
		Interval: cfg.Watch.Interval,
		Debounce: cfg.Watch.Debounce,
		Logger:   logger,
	})
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.OnChange(ctx, func() error {
			f.Presenter().SyncMenu(ctx)
			return nil
		})
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := srv.Serve(ctx, cfg.API.Addr); err != nil {
			errc <- err
			cancel()
		}
	}()

	if mcpStdio {
		ms := mcp.NewServer(&mcp.Implementation{Name: "tabfreeze", Version: version}, nil)
		f.RegisterMCP(ms)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := ms.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
				errc <- fmt.Errorf("mcp: %w", err)
				cancel()
			}
		}()
	}

	logger.Info("tabfreeze running", "version", version, "api", cfg.API.Addr, "store", cfg.Store.Driver, "frozen", len(f.Domains(ctx)))
	runErr := f.Run(ctx, h.Events())
	cancel()
	wg.Wait()
	close(errc)

	if err, ok := <-errc; ok {
		return err
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

func openStore(ctx context.Context, sc config.StoreConfig) (kvstore.Store, error) {
	switch sc.Driver {
	case "memory":
		return kvstore.NewMemory(), nil
	case "redis":
		return kvstore.OpenRedis(ctx, kvstore.RedisOptions{
			Addr:     sc.RedisAddr,
			Password: sc.RedisPassword,
			DB:       sc.RedisDB,
			Prefix:   sc.Prefix,
		})
	default:
		return kvstore.OpenSQLite(sc.Path)
	}
}
