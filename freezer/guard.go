package freezer

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/hazyhaar/tabfreeze/domainstore"
	"github.com/hazyhaar/tabfreeze/host"
	"github.com/hazyhaar/tabfreeze/observability"
	"github.com/hazyhaar/tabfreeze/policy"
)

// Guard closes tabs spawned from pages on frozen domains.
type Guard struct {
	tabs      host.Tabs
	action    host.Action
	store     *domainstore.Store
	presenter *Presenter
	counter   *Counter
	metrics   *observability.Metrics
	logger    *slog.Logger
}

// Counter exposes the blocked-tab counts.
func (g *Guard) Counter() *Counter { return g.counter }

// Handle reacts to a newly created tab and reports whether it was closed.
func (g *Guard) Handle(ctx context.Context, newTab host.TabRef) bool {
	log := g.logger.With("tab_id", newTab.ID)

	if newTab.OpenerID == "" {
		log.Debug("freezer: no opener, not attributable")
		return false
	}

	opener, err := g.tabs.Get(ctx, newTab.OpenerID)
	if err != nil {
		log.Debug("freezer: opener gone", "opener_id", newTab.OpenerID, "error", err)
		return false
	}
	if opener.URL == "" {
		return false
	}

	if policy.IsManualNewTabOpen(newTab.PendingURL, newTab.URL) {
		log.Debug("freezer: manual new tab, exempt", "pending_url", newTab.PendingURL)
		return false
	}

	domains := g.store.Get(ctx)
	if !policy.IsFrozen(opener.URL, domains) {
		g.presenter.SyncTab(ctx, newTab.ID, false)
		return false
	}

	domain, _ := policy.HostnameOf(opener.URL)
	if err := g.tabs.Remove(ctx, newTab.ID); err != nil {
		g.presenter.hostError("remove_tab", err, "tab_id", newTab.ID)
		return false
	}

	n := g.counter.Inc(domain)
	g.metrics.TabsBlocked.WithLabelValues(domain).Inc()
	if err := g.action.SetBadgeText(ctx, opener.ID, strconv.Itoa(n)); err != nil {
		g.presenter.hostError("set_badge", err, "tab_id", opener.ID)
	}
	log.Info("freezer: tab blocked", "domain", domain, "opener_id", opener.ID, "blocked", n)
	return true
}
