package freezer

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/hazyhaar/tabfreeze/domainstore"
	"github.com/hazyhaar/tabfreeze/host"
	"github.com/hazyhaar/tabfreeze/host/memhost"
	"github.com/hazyhaar/tabfreeze/kvstore"
	"github.com/hazyhaar/tabfreeze/observability"
	"github.com/hazyhaar/tabfreeze/policy"
)

type fixture struct {
	host    *memhost.Host
	store   *domainstore.Store
	metrics *observability.Metrics
	f       *Freezer
}

func newFixture(t *testing.T, frozen policy.Domains) *fixture {
	t.Helper()
	ctx := context.Background()
	h := memhost.New(16)
	store := domainstore.New(kvstore.NewMemory(), nil)
	if frozen != nil {
		if err := store.Set(ctx, frozen); err != nil {
			t.Fatal(err)
		}
	}
	m := observability.NewMetrics(nil)
	f, err := New(Config{Tabs: h, Action: h, Menus: h, Store: store, Metrics: m})
	if err != nil {
		t.Fatal(err)
	}
	if err := f.Install(ctx); err != nil {
		t.Fatal(err)
	}
	return &fixture{host: h, store: store, metrics: m, f: f}
}

func TestNewRequiresCapabilities(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error for empty config")
	}
	h := memhost.New(1)
	if _, err := New(Config{Tabs: h, Action: h, Menus: h}); err == nil {
		t.Fatal("expected error for missing store")
	}
}

func TestToggleFreezesAndUnfreezes(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, nil)
	tab := fx.host.AddTab(host.TabRef{URL: "https://a.com/x"})

	domain, frozen, err := fx.f.ToggleTab(ctx, tab.ID)
	if err != nil {
		t.Fatal(err)
	}
	if domain != "a.com" || !frozen {
		t.Fatalf("toggle = (%q, %v), want (a.com, true)", domain, frozen)
	}
	if got := fx.store.Get(ctx); !reflect.DeepEqual(got, policy.Domains{"a.com": true}) {
		t.Fatalf("mapping = %v", got)
	}
	r, _ := fx.host.Render(tab.ID)
	if r.Icon != DefaultIcons.Frozen || r.Title != "TURN OFF Freezing" {
		t.Fatalf("render after freeze = %+v", r)
	}
	item, _ := fx.host.Menu(ForceOpenMenuID)
	if !item.Visible || !reflect.DeepEqual(item.Patterns, []string{"*://a.com/*"}) {
		t.Fatalf("menu after freeze = %+v", item)
	}

	_, frozen, err = fx.f.ToggleTab(ctx, tab.ID)
	if err != nil || frozen {
		t.Fatalf("second toggle = %v, %v", frozen, err)
	}
	if got := fx.store.Get(ctx); len(got) != 0 {
		t.Fatalf("mapping after second toggle = %v, want empty", got)
	}
	r, _ = fx.host.Render(tab.ID)
	if r.Icon != DefaultIcons.Normal || r.Title != "TURN ON Freezing" {
		t.Fatalf("render after unfreeze = %+v", r)
	}
	item, _ = fx.host.Menu(ForceOpenMenuID)
	if item.Visible || len(item.Patterns) != 0 {
		t.Fatalf("menu after unfreeze = %+v", item)
	}

	if got := testutil.ToFloat64(fx.metrics.Toggles.WithLabelValues("frozen")); got != 1 {
		t.Fatalf("frozen toggles = %v", got)
	}
}

func TestToggleKeepsOtherDomains(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, policy.Domains{"b.com": true})
	tab := fx.host.AddTab(host.TabRef{URL: "https://a.com/"})

	fx.f.ToggleTab(ctx, tab.ID)
	fx.f.ToggleTab(ctx, tab.ID)
	if got := fx.store.Get(ctx); !reflect.DeepEqual(got, policy.Domains{"b.com": true}) {
		t.Fatalf("mapping after double toggle = %v", got)
	}
}

func TestToggleMalformedURL(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, nil)
	tab := fx.host.AddTab(host.TabRef{URL: "not a url"})

	if _, _, err := fx.f.ToggleTab(ctx, tab.ID); !errors.Is(err, ErrNotToggleable) {
		t.Fatalf("err = %v, want ErrNotToggleable", err)
	}
	if len(fx.store.Get(ctx)) != 0 {
		t.Fatal("malformed url changed the mapping")
	}
}

func TestToggleMissingTab(t *testing.T) {
	fx := newFixture(t, nil)
	if _, _, err := fx.f.ToggleTab(context.Background(), "gone"); !errors.Is(err, host.ErrTabNotFound) {
		t.Fatalf("err = %v, want ErrTabNotFound", err)
	}
}

func TestGuardBlocksTabFromFrozenOpener(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, policy.Domains{"a.com": true})
	opener := fx.host.AddTab(host.TabRef{URL: "https://a.com/page"})
	spawned := fx.host.AddTab(host.TabRef{OpenerID: opener.ID, PendingURL: "https://ads.example/"})

	if !fx.f.Guard().Handle(ctx, spawned) {
		t.Fatal("tab not blocked")
	}
	if _, open := fx.host.Tab(spawned.ID); open {
		t.Fatal("spawned tab still open")
	}
	if got := fx.f.Guard().Counter().Count("a.com"); got != 1 {
		t.Fatalf("counter = %d, want 1", got)
	}
	r, _ := fx.host.Render(opener.ID)
	if r.Badge != "1" {
		t.Fatalf("opener badge = %q, want 1", r.Badge)
	}

	second := fx.host.AddTab(host.TabRef{OpenerID: opener.ID, PendingURL: "https://ads.example/2"})
	fx.f.Guard().Handle(ctx, second)
	r, _ = fx.host.Render(opener.ID)
	if r.Badge != "2" {
		t.Fatalf("opener badge = %q, want 2", r.Badge)
	}
	if got := testutil.ToFloat64(fx.metrics.TabsBlocked.WithLabelValues("a.com")); got != 2 {
		t.Fatalf("blocked metric = %v", got)
	}
}

func TestGuardManualNewTabExempt(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, policy.Domains{"a.com": true})
	opener := fx.host.AddTab(host.TabRef{URL: "https://a.com/page"})
	manual := fx.host.AddTab(host.TabRef{OpenerID: opener.ID, PendingURL: "chrome://newtab/", URL: ""})

	if fx.f.Guard().Handle(ctx, manual) {
		t.Fatal("manual new tab was blocked")
	}
	if _, open := fx.host.Tab(manual.ID); !open {
		t.Fatal("manual new tab was removed")
	}
	if len(fx.host.Removed()) != 0 {
		t.Fatalf("removed = %v", fx.host.Removed())
	}
}

func TestGuardSkips(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, policy.Domains{"a.com": true})
	noURL := fx.host.AddTab(host.TabRef{})
	other := fx.host.AddTab(host.TabRef{URL: "https://b.com/"})

	tests := []struct {
		name string
		tab  host.TabRef
	}{
		{"no opener", host.TabRef{ID: "n1", PendingURL: "https://x.com/"}},
		{"opener gone", host.TabRef{ID: "n2", OpenerID: "vanished"}},
		{"opener without url", host.TabRef{ID: "n3", OpenerID: noURL.ID}},
		{"opener not frozen", host.TabRef{ID: "n4", OpenerID: other.ID, PendingURL: "https://x.com/"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx.host.AddTab(tt.tab)
			if fx.f.Guard().Handle(ctx, tt.tab) {
				t.Fatal("tab blocked")
			}
			if _, open := fx.host.Tab(tt.tab.ID); !open {
				t.Fatal("tab removed")
			}
		})
	}
}

func TestGuardNotFrozenRendersNewTab(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, nil)
	opener := fx.host.AddTab(host.TabRef{URL: "https://b.com/"})
	child := fx.host.AddTab(host.TabRef{OpenerID: opener.ID, PendingURL: "https://c.com/"})

	fx.f.Guard().Handle(ctx, child)
	r, ok := fx.host.Render(child.ID)
	if !ok || r.Icon != DefaultIcons.Normal {
		t.Fatalf("child render = %+v (ok=%v)", r, ok)
	}
}

func TestGuardOpenerClosedBeforeBadge(t *testing.T) {
	ctx := context.Background()
	h := memhost.New(1)
	store := domainstore.New(kvstore.NewMemory(), nil)
	store.Set(ctx, policy.Domains{"a.com": true})

	opener := h.AddTab(host.TabRef{URL: "https://a.com/"})
	child := h.AddTab(host.TabRef{OpenerID: opener.ID, PendingURL: "https://x/"})

	// Close the opener as soon as the child is removed, before the badge lands.
	tabs := &closingTabs{Host: h, onRemove: func() { h.CloseTab(opener.ID) }}
	f, err := New(Config{Tabs: tabs, Action: h, Menus: h, Store: store})
	if err != nil {
		t.Fatal(err)
	}
	if !f.Guard().Handle(ctx, child) {
		t.Fatal("child not blocked")
	}
	if f.Guard().Counter().Count("a.com") != 1 {
		t.Fatal("counter not incremented")
	}
}

type closingTabs struct {
	*memhost.Host
	onRemove func()
}

func (c *closingTabs) Remove(ctx context.Context, id host.TabID) error {
	err := c.Host.Remove(ctx, id)
	c.onRemove()
	return err
}

func TestMenuScoping(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, policy.Domains{"a.com": true, "b.com": true})

	item, ok := fx.host.Menu(ForceOpenMenuID)
	if !ok {
		t.Fatal("menu item not installed")
	}
	if !item.Visible || !reflect.DeepEqual(item.Patterns, []string{"*://a.com/*", "*://b.com/*"}) {
		t.Fatalf("menu = %+v", item)
	}
	if item.Title != DefaultMenuTitle || !reflect.DeepEqual(item.Contexts, []string{"link"}) {
		t.Fatalf("menu metadata = %+v", item)
	}

	if _, _, err := fx.f.Remove(ctx, "a.com"); err != nil {
		t.Fatal(err)
	}
	item, _ = fx.host.Menu(ForceOpenMenuID)
	if !reflect.DeepEqual(item.Patterns, []string{"*://b.com/*"}) {
		t.Fatalf("patterns after removal = %v", item.Patterns)
	}

	if err := fx.f.Reset(ctx); err != nil {
		t.Fatal(err)
	}
	item, _ = fx.host.Menu(ForceOpenMenuID)
	if item.Visible {
		t.Fatal("menu visible with nothing frozen")
	}
	if got := fx.f.Domains(ctx); len(got) != 0 {
		t.Fatalf("domains after reset = %v", got)
	}
}

func TestRemoveNormalizesDomain(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, policy.Domains{"a.com": true, "b.com": true})

	domain, was, err := fx.f.Remove(ctx, "  A.Com ")
	if err != nil {
		t.Fatal(err)
	}
	if domain != "a.com" || !was {
		t.Fatalf("Remove = (%q, %v), want (a.com, true)", domain, was)
	}
	if got := fx.f.Domains(ctx); !reflect.DeepEqual(got, []string{"b.com"}) {
		t.Fatalf("domains = %v", got)
	}
	if _, _, err := fx.f.Remove(ctx, "   "); !errors.Is(err, ErrEmptyDomain) {
		t.Fatalf("blank domain err = %v", err)
	}
}

func TestInstallStartsHiddenWhenEmpty(t *testing.T) {
	fx := newFixture(t, nil)
	item, _ := fx.host.Menu(ForceOpenMenuID)
	if item.Visible {
		t.Fatal("menu visible on empty set")
	}
}

func TestForceOpen(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, policy.Domains{"a.com": true})
	src := fx.host.AddTab(host.TabRef{URL: "https://a.com/", Index: 3})

	tab, ok, err := fx.f.ForceOpen(ctx, src.ID, ForceOpenMenuID, "https://a.com/article")
	if err != nil || !ok {
		t.Fatalf("ForceOpen = %v, %v", ok, err)
	}
	if tab.Index != 4 || tab.URL != "https://a.com/article" || tab.OpenerID != "" {
		t.Fatalf("created tab = %+v", tab)
	}

	// The created tab has no opener, so the guard leaves it alone.
	if fx.f.Guard().Handle(ctx, tab) {
		t.Fatal("force-opened tab was blocked")
	}

	if _, ok, _ := fx.f.ForceOpen(ctx, src.ID, ForceOpenMenuID, "https://elsewhere.com/"); ok {
		t.Fatal("out-of-scope link force-opened")
	}
	if _, ok, _ := fx.f.ForceOpen(ctx, src.ID, "other-item", "https://a.com/x"); ok {
		t.Fatal("other menu item force-opened")
	}
	if _, ok, _ := fx.f.ForceOpen(ctx, src.ID, ForceOpenMenuID, ""); ok {
		t.Fatal("empty link force-opened")
	}
	if _, _, err := fx.f.ForceOpen(ctx, "gone", ForceOpenMenuID, "https://a.com/"); !errors.Is(err, host.ErrTabNotFound) {
		t.Fatalf("missing source err = %v", err)
	}
	if got := len(fx.host.Created()); got != 1 {
		t.Fatalf("created %d tabs, want 1", got)
	}
}

func TestHandleTabUpdatedAndActivated(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, policy.Domains{"a.com": true})
	tab := fx.host.AddTab(host.TabRef{URL: "https://a.com/"})

	fx.f.Handle(ctx, host.Event{Kind: host.TabUpdated, Tab: tab, Status: "loading"})
	if _, ok := fx.host.Render(tab.ID); ok {
		t.Fatal("loading status must not render")
	}

	fx.f.Handle(ctx, host.Event{Kind: host.TabUpdated, Tab: tab, Status: host.StatusComplete})
	r, _ := fx.host.Render(tab.ID)
	if r.Icon != DefaultIcons.Frozen {
		t.Fatalf("render after complete = %+v", r)
	}

	other := fx.host.AddTab(host.TabRef{URL: "https://b.com/"})
	fx.f.Handle(ctx, host.Event{Kind: host.TabActivated, Tab: host.TabRef{ID: other.ID}})
	r, _ = fx.host.Render(other.ID)
	if r.Icon != DefaultIcons.Normal || r.Title != "TURN ON Freezing" {
		t.Fatalf("render after activate = %+v", r)
	}

	// Activation of a vanished tab is a no-op.
	fx.f.Handle(ctx, host.Event{Kind: host.TabActivated, Tab: host.TabRef{ID: "gone"}})
}

func TestRunDispatchesEvents(t *testing.T) {
	fx := newFixture(t, nil)
	tab := fx.host.AddTab(host.TabRef{URL: "https://a.com/"})

	done := make(chan error, 1)
	go func() { done <- fx.f.Run(context.Background(), fx.host.Events()) }()

	fx.host.Emit(host.Event{Kind: host.ActionClicked, Tab: tab})
	fx.host.Close()

	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after channel close")
	}
	if !fx.f.IsFrozen(context.Background(), "https://a.com/other") {
		t.Fatal("action click not applied")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	fx := newFixture(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- fx.f.Run(ctx, fx.host.Events()) }()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run err = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestConcurrentTogglesOfDifferentDomains(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, nil)
	hosts := []string{"a.com", "b.com", "c.com", "d.com", "e.com"}

	var wg sync.WaitGroup
	for _, h := range hosts {
		tab := fx.host.AddTab(host.TabRef{URL: "https://" + h + "/"})
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := fx.f.ToggleTab(ctx, tab.ID); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	if got := fx.f.Domains(ctx); !reflect.DeepEqual(got, hosts) {
		t.Fatalf("domains = %v, want %v", got, hosts)
	}
}

func TestCounter(t *testing.T) {
	c := NewCounter()
	if c.Count("a.com") != 0 {
		t.Fatal("fresh counter not zero")
	}
	c.Inc("a.com")
	if n := c.Inc("a.com"); n != 2 {
		t.Fatalf("Inc = %d, want 2", n)
	}
	c.Inc("b.com")
	if got := c.Snapshot(); !reflect.DeepEqual(got, map[string]int{"a.com": 2, "b.com": 1}) {
		t.Fatalf("Snapshot = %v", got)
	}
}
