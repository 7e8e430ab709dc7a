package freezer

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/hazyhaar/tabfreeze/domainstore"
	"github.com/hazyhaar/tabfreeze/host"
	"github.com/hazyhaar/tabfreeze/observability"
	"github.com/hazyhaar/tabfreeze/policy"
)

// ForceOpenMenuID is the id of the override context-menu item.
const ForceOpenMenuID = "tabBlockerForceOpenLink"

// Action titles, naming what a click would do.
const (
	TitleFrozen = "TURN OFF Freezing"
	TitleNormal = "TURN ON Freezing"
)

// Icons are the action assets for both states.
type Icons struct {
	Frozen string `yaml:"frozen"`
	Normal string `yaml:"normal"`
}

// DefaultIcons match the packaged assets.
var DefaultIcons = Icons{
	Frozen: "images/icons/icon128frozen.png",
	Normal: "images/icons/icon128.png",
}

// Presenter keeps the action of each tab and the override menu item in
// line with the frozen set.
type Presenter struct {
	tabs      host.Tabs
	action    host.Action
	menus     host.Menus
	store     *domainstore.Store
	icons     Icons
	menuTitle string
	metrics   *observability.Metrics
	logger    *slog.Logger

	menuMu  sync.Mutex // orders SyncMenu so a stale pattern set never lands last
	matcher *policy.Matcher
}

// SyncTab renders tabID as frozen or not.
func (p *Presenter) SyncTab(ctx context.Context, tabID host.TabID, frozen bool) {
	icon, title := p.icons.Normal, TitleNormal
	if frozen {
		icon, title = p.icons.Frozen, TitleFrozen
	}
	if err := p.action.SetIcon(ctx, tabID, icon); err != nil {
		p.hostError("set_icon", err, "tab_id", tabID)
		return
	}
	if err := p.action.SetTitle(ctx, tabID, title); err != nil {
		p.hostError("set_title", err, "tab_id", tabID)
	}
}

// RefreshTab renders tab from its own URL (or pending URL while nothing is
// committed). Tabs without any URL are left alone.
func (p *Presenter) RefreshTab(ctx context.Context, tab host.TabRef) {
	u := tab.URL
	if u == "" {
		u = tab.PendingURL
	}
	if u == "" {
		return
	}
	p.SyncTab(ctx, tab.ID, policy.IsFrozen(u, p.store.Get(ctx)))
}

// RefreshTabID resolves id first; a vanished tab is a no-op.
func (p *Presenter) RefreshTabID(ctx context.Context, id host.TabID) {
	tab, err := p.tabs.Get(ctx, id)
	if err != nil {
		p.logger.Debug("freezer: refresh skipped, tab gone", "tab_id", id, "error", err)
		return
	}
	p.RefreshTab(ctx, tab)
}

// Install creates the override item hidden, then scopes it.
func (p *Presenter) Install(ctx context.Context) error {
	err := p.menus.CreateMenu(ctx, host.MenuItem{
		ID:       ForceOpenMenuID,
		Title:    p.menuTitle,
		Contexts: []string{"link"},
		Visible:  false,
	})
	if err != nil {
		p.hostError("create_menu", err)
		return err
	}
	p.SyncMenu(ctx)
	return nil
}

// SyncMenu shows the override item only when something is frozen and
// scopes it to links on frozen hosts.
func (p *Presenter) SyncMenu(ctx context.Context) {
	p.menuMu.Lock()
	defer p.menuMu.Unlock()

	domains := p.store.Get(ctx)
	patterns := policy.MenuPatterns(domains)
	p.metrics.Frozen.Set(float64(len(patterns)))

	m, err := policy.NewMatcher(patterns)
	if err != nil {
		// Hostnames from url.Hostname never carry glob syntax we reject,
		// but an external writer might have stored one.
		p.logger.Warn("freezer: menu patterns rejected", "patterns", patterns, "error", err)
		m, _ = policy.NewMatcher(nil)
	}
	p.matcher = m

	err = p.menus.UpdateMenu(ctx, ForceOpenMenuID, host.MenuUpdate{
		Patterns: patterns,
		Visible:  len(patterns) > 0,
	})
	if err != nil {
		p.hostError("update_menu", err)
		return
	}
	p.logger.Debug("freezer: menu synced", "patterns", patterns)
}

// LinkInScope reports whether the override item applies to link.
func (p *Presenter) LinkInScope(link string) bool {
	p.menuMu.Lock()
	m := p.matcher
	p.menuMu.Unlock()
	return m != nil && m.Match(link)
}

func (p *Presenter) hostError(op string, err error, args ...any) {
	p.metrics.HostErrors.WithLabelValues(op).Inc()
	if errors.Is(err, host.ErrTabNotFound) {
		p.logger.Debug("freezer: tab gone during "+op, append(args, "error", err)...)
		return
	}
	p.logger.Warn("freezer: host call failed", append(args, "op", op, "error", err)...)
}
