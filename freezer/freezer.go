// Package freezer is the freeze core: the tab guard that closes tabs
// spawned from frozen domains, the toggle behind the action button, the
// presenter that keeps icons and the override menu item in sync, and the
// dispatcher that turns host events into those reactions.
//
// Every host event is handled on its own goroutine. Nothing orders two
// events against each other; the only shared state is the frozen-domain
// record (serialized by domainstore.Update) and the blocked-tab counter.
package freezer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/hazyhaar/tabfreeze/domainstore"
	"github.com/hazyhaar/tabfreeze/host"
	"github.com/hazyhaar/tabfreeze/idgen"
	"github.com/hazyhaar/tabfreeze/observability"
	"github.com/hazyhaar/tabfreeze/policy"
)

// ErrEmptyDomain is returned by Remove for a blank domain.
var ErrEmptyDomain = errors.New("freezer: domain is required")

// DefaultMenuTitle is the title of the override item.
const DefaultMenuTitle = "Open new tab (override freeze)"

// Config wires a Freezer.
type Config struct {
	Tabs   host.Tabs
	Action host.Action
	Menus  host.Menus
	Store  *domainstore.Store

	Icons     Icons  // zero value uses DefaultIcons
	MenuTitle string // empty uses DefaultMenuTitle

	Metrics *observability.Metrics // nil registers on a private registry
	Logger  *slog.Logger
	NewID   idgen.Generator
}

// Freezer owns the guard, toggle, presenter and override handler.
type Freezer struct {
	guard     *Guard
	toggler   *Toggler
	presenter *Presenter
	overrider *Overrider
	tabs      host.Tabs
	store     *domainstore.Store
	metrics   *observability.Metrics
	logger    *slog.Logger
	newID     idgen.Generator
}

// New validates cfg and builds the components. The blocked-tab counter is
// created here and lives as long as the Freezer.
func New(cfg Config) (*Freezer, error) {
	if cfg.Tabs == nil || cfg.Action == nil || cfg.Menus == nil {
		return nil, errors.New("freezer: Tabs, Action and Menus are required")
	}
	if cfg.Store == nil {
		return nil, errors.New("freezer: Store is required")
	}
	if cfg.Icons == (Icons{}) {
		cfg.Icons = DefaultIcons
	}
	if cfg.MenuTitle == "" {
		cfg.MenuTitle = DefaultMenuTitle
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observability.NewMetrics(nil)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.NewID == nil {
		cfg.NewID = idgen.Default
	}

	p := &Presenter{
		tabs:      cfg.Tabs,
		action:    cfg.Action,
		menus:     cfg.Menus,
		store:     cfg.Store,
		icons:     cfg.Icons,
		menuTitle: cfg.MenuTitle,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
	}
	return &Freezer{
		presenter: p,
		guard: &Guard{
			tabs:      cfg.Tabs,
			action:    cfg.Action,
			store:     cfg.Store,
			presenter: p,
			counter:   NewCounter(),
			metrics:   cfg.Metrics,
			logger:    cfg.Logger,
		},
		toggler: &Toggler{
			store:     cfg.Store,
			presenter: p,
			metrics:   cfg.Metrics,
			logger:    cfg.Logger,
		},
		overrider: &Overrider{
			tabs:      cfg.Tabs,
			presenter: p,
			metrics:   cfg.Metrics,
			logger:    cfg.Logger,
		},
		tabs:    cfg.Tabs,
		store:   cfg.Store,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
		newID:   cfg.NewID,
	}, nil
}

// Guard returns the tab guard.
func (f *Freezer) Guard() *Guard { return f.guard }

// Presenter returns the presentation sync.
func (f *Freezer) Presenter() *Presenter { return f.presenter }

// Install creates the override menu item and scopes it to the persisted
// frozen set. Call once at startup.
func (f *Freezer) Install(ctx context.Context) error {
	if err := f.presenter.Install(ctx); err != nil {
		return fmt.Errorf("freezer: install menu: %w", err)
	}
	return nil
}

// Run dispatches events until ctx is done or events is closed, then waits
// for in-flight reactions.
func (f *Freezer) Run(ctx context.Context, events <-chan host.Event) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				f.Handle(ctx, ev)
			}()
		}
	}
}

// Handle runs the reaction for one event synchronously.
func (f *Freezer) Handle(ctx context.Context, ev host.Event) {
	f.metrics.Events.WithLabelValues(ev.Kind.String()).Inc()
	f.logger.Debug("freezer: event", "event_id", f.newID(), "kind", ev.Kind.String(), "tab_id", ev.Tab.ID)

	switch ev.Kind {
	case host.TabCreated:
		f.guard.Handle(ctx, ev.Tab)
	case host.TabUpdated:
		if ev.Status == host.StatusComplete {
			f.presenter.RefreshTab(ctx, ev.Tab)
		}
	case host.TabActivated:
		f.presenter.RefreshTabID(ctx, ev.Tab.ID)
	case host.ActionClicked:
		if _, _, err := f.toggler.Toggle(ctx, ev.Tab); err != nil && !errors.Is(err, ErrNotToggleable) {
			f.logger.Warn("freezer: toggle failed", "tab_id", ev.Tab.ID, "error", err)
		}
	case host.MenuClicked:
		f.overrider.Open(ctx, ev.Tab, ev.MenuItemID, ev.LinkURL)
	default:
		f.logger.Warn("freezer: unknown event kind", "kind", int(ev.Kind))
	}
}

// ToggleTab resolves id and toggles its domain, for callers that only know
// the tab id (control API).
func (f *Freezer) ToggleTab(ctx context.Context, id host.TabID) (string, bool, error) {
	tab, err := f.tabs.Get(ctx, id)
	if err != nil {
		return "", false, err
	}
	f.metrics.Events.WithLabelValues(host.ActionClicked.String()).Inc()
	return f.toggler.Toggle(ctx, tab)
}

// ActivateTab refreshes the action of id.
func (f *Freezer) ActivateTab(ctx context.Context, id host.TabID) {
	f.metrics.Events.WithLabelValues(host.TabActivated.String()).Inc()
	f.presenter.RefreshTabID(ctx, id)
}

// ForceOpen handles a menu click coming from a caller that knows the
// source tab id only.
func (f *Freezer) ForceOpen(ctx context.Context, sourceID host.TabID, itemID, link string) (host.TabRef, bool, error) {
	source, err := f.tabs.Get(ctx, sourceID)
	if err != nil {
		return host.TabRef{}, false, err
	}
	f.metrics.Events.WithLabelValues(host.MenuClicked.String()).Inc()
	tab, ok := f.overrider.Open(ctx, source, itemID, link)
	return tab, ok, nil
}

// Domains returns the frozen hostnames, sorted.
func (f *Freezer) Domains(ctx context.Context) []string {
	return f.store.Get(ctx).Frozen()
}

// IsFrozen reports whether url is on a frozen domain.
func (f *Freezer) IsFrozen(ctx context.Context, url string) bool {
	return policy.IsFrozen(url, f.store.Get(ctx))
}

// Remove unfreezes domain from the management surface and rescopes the
// menu. domain is trimmed and lowercased like HostnameOf output; the
// normalized name is returned.
func (f *Freezer) Remove(ctx context.Context, domain string) (string, bool, error) {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" {
		return "", false, ErrEmptyDomain
	}
	was, err := f.store.Remove(ctx, domain)
	if err != nil {
		return domain, false, fmt.Errorf("freezer: remove %s: %w", domain, err)
	}
	f.presenter.SyncMenu(ctx)
	f.logger.Info("freezer: domain removed", "domain", domain, "was_frozen", was)
	return domain, was, nil
}

// Reset unfreezes everything and rescopes the menu.
func (f *Freezer) Reset(ctx context.Context) error {
	if err := f.store.Clear(ctx); err != nil {
		return fmt.Errorf("freezer: reset: %w", err)
	}
	f.presenter.SyncMenu(ctx)
	f.logger.Info("freezer: all domains removed")
	return nil
}

// Blocked returns the blocked-tab counts since startup.
func (f *Freezer) Blocked() map[string]int { return f.guard.counter.Snapshot() }
