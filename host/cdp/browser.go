// Package cdp implements host.Host over the Chrome DevTools Protocol with
// go-rod. It either launches a local Chromium or attaches to one already
// running (remote debugging URL), watches page targets, and turns target
// lifecycle notifications into host events.
//
// The protocol has no extension toolbar or context menu, so the action and
// menu are rendered into a host.Surface that the control API exposes.
package cdp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/tabfreeze/host"
)

// Config configures the browser adapter.
type Config struct {
	// RemoteURL is the DevTools WebSocket URL of an external browser.
	// Empty launches a local one.
	RemoteURL string
	Headless  bool
	// Stealth creates force-opened tabs through go-rod/stealth.
	Stealth     bool
	Bin         string
	UserDataDir string
	// Flags are extra launch flags, "name" or "name=value".
	Flags []string
	// EventBuffer sizes the event channel. Default: 256.
	EventBuffer int
	Logger      *slog.Logger
}

func (c *Config) defaults() {
	if c.EventBuffer <= 0 {
		c.EventBuffer = 256
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Browser is a host.Host backed by a live browser.
type Browser struct {
	*host.Surface

	cfg     Config
	browser *rod.Browser
	lnch    *launcher.Launcher
	events  chan host.Event

	mu    sync.Mutex
	pages map[host.TabID]string // known page targets -> last committed URL

	stopOnce sync.Once
	cancel   context.CancelFunc
	done     chan struct{}
}

var _ host.Host = (*Browser)(nil)

// New returns an unstarted Browser.
func New(cfg Config) *Browser {
	cfg.defaults()
	b := &Browser{
		cfg:    cfg,
		events: make(chan host.Event, cfg.EventBuffer),
		pages:  make(map[host.TabID]string),
		done:   make(chan struct{}),
	}
	b.Surface = host.NewSurface(func(_ context.Context, id host.TabID) bool {
		b.mu.Lock()
		defer b.mu.Unlock()
		_, ok := b.pages[id]
		return ok
	})
	return b
}

// Start connects to the browser, seeds the known page targets and starts
// translating target events. The event channel closes when ctx is done or
// Close is called.
func (b *Browser) Start(ctx context.Context) error {
	log := b.cfg.Logger

	wsURL := b.cfg.RemoteURL
	if wsURL != "" {
		log.Info("cdp: connecting to remote", "url", wsURL)
	} else {
		l := launcher.New().Headless(b.cfg.Headless)
		if b.cfg.Bin != "" {
			l = l.Bin(b.cfg.Bin)
		}
		if b.cfg.UserDataDir != "" {
			l = l.UserDataDir(b.cfg.UserDataDir)
		}
		for _, f := range b.cfg.Flags {
			name, value, hasValue := strings.Cut(strings.TrimLeft(f, "-"), "=")
			if hasValue {
				l = l.Set(flags.Flag(name), value)
			} else {
				l = l.Set(flags.Flag(name))
			}
		}
		u, err := l.Launch()
		if err != nil {
			return fmt.Errorf("cdp: launch: %w", err)
		}
		wsURL = u
		b.lnch = l
		log.Info("cdp: launched local browser", "url", wsURL, "headless", b.cfg.Headless)
	}

	runCtx, cancel := context.WithCancel(ctx)
	b.cancel = cancel

	rb := rod.New().ControlURL(wsURL).Context(runCtx)
	if err := rb.Connect(); err != nil {
		cancel()
		b.cleanupLauncher()
		return fmt.Errorf("cdp: connect: %w", err)
	}
	b.browser = rb

	targets, err := proto.TargetGetTargets{}.Call(rb)
	if err != nil {
		b.Close()
		return fmt.Errorf("cdp: list targets: %w", err)
	}
	b.mu.Lock()
	for _, info := range targets.TargetInfos {
		if info.Type == proto.TargetTargetInfoTypePage {
			b.pages[host.TabID(info.TargetID)] = info.URL
		}
	}
	b.mu.Unlock()

	wait := rb.EachEvent(
		func(e *proto.TargetTargetCreated) { b.onCreated(runCtx, e.TargetInfo) },
		func(e *proto.TargetTargetInfoChanged) { b.onChanged(runCtx, e.TargetInfo) },
		func(e *proto.TargetTargetDestroyed) { b.onDestroyed(host.TabID(e.TargetID)) },
	)
	if err := (proto.TargetSetDiscoverTargets{Discover: true}).Call(rb); err != nil {
		b.Close()
		return fmt.Errorf("cdp: discover targets: %w", err)
	}

	go func() {
		defer close(b.done)
		defer close(b.events)
		wait()
	}()

	log.Info("cdp: watching targets", "pages", len(targets.TargetInfos))
	return nil
}

// Events returns the host event stream.
func (b *Browser) Events() <-chan host.Event { return b.events }

// Close disconnects (and kills a locally launched browser).
func (b *Browser) Close() error {
	var err error
	b.stopOnce.Do(func() {
		if b.cancel != nil {
			b.cancel()
		}
		if b.browser != nil && b.lnch != nil {
			err = b.browser.Close()
		}
		b.cleanupLauncher()
	})
	return err
}

func (b *Browser) cleanupLauncher() {
	if b.lnch != nil {
		b.lnch.Cleanup()
		b.lnch = nil
	}
}

func (b *Browser) onCreated(ctx context.Context, info *proto.TargetTargetInfo) {
	if info == nil || info.Type != proto.TargetTargetInfoTypePage {
		return
	}
	id := host.TabID(info.TargetID)
	b.mu.Lock()
	b.pages[id] = ""
	b.mu.Unlock()

	// Nothing is committed yet when the target appears: the initial URL
	// is the one the tab is about to load.
	b.emit(ctx, host.Event{Kind: host.TabCreated, Tab: host.TabRef{
		ID:         id,
		PendingURL: info.URL,
		OpenerID:   host.TabID(info.OpenerID),
	}})
}

func (b *Browser) onChanged(ctx context.Context, info *proto.TargetTargetInfo) {
	if info == nil || info.Type != proto.TargetTargetInfoTypePage {
		return
	}
	id := host.TabID(info.TargetID)
	b.mu.Lock()
	prev, known := b.pages[id]
	b.pages[id] = info.URL
	b.mu.Unlock()

	// Title-only changes also arrive here; only a new URL counts as a load.
	if known && prev == info.URL {
		return
	}
	b.emit(ctx, host.Event{Kind: host.TabUpdated, Status: host.StatusComplete, Tab: tabRef(info)})
}

func (b *Browser) onDestroyed(id host.TabID) {
	b.mu.Lock()
	delete(b.pages, id)
	b.mu.Unlock()
	b.Forget(id)
}

func (b *Browser) emit(ctx context.Context, ev host.Event) {
	select {
	case b.events <- ev:
	case <-ctx.Done():
	}
}

func tabRef(info *proto.TargetTargetInfo) host.TabRef {
	return host.TabRef{
		ID:       host.TabID(info.TargetID),
		URL:      info.URL,
		OpenerID: host.TabID(info.OpenerID),
	}
}

// errNoBrowser is returned by tab calls before Start.
var errNoBrowser = errors.New("cdp: browser not started")
