package freezer

import (
	"context"
	"log/slog"

	"github.com/hazyhaar/tabfreeze/host"
	"github.com/hazyhaar/tabfreeze/observability"
)

// Overrider opens links through the force-open menu item. Tabs it creates
// carry no opener, so the Guard never attributes them to a frozen page.
type Overrider struct {
	tabs      host.Tabs
	presenter *Presenter
	metrics   *observability.Metrics
	logger    *slog.Logger
}

// Open handles a menu click. ok is false when the click is not a
// force-open on an in-scope link.
func (o *Overrider) Open(ctx context.Context, source host.TabRef, itemID, link string) (host.TabRef, bool) {
	if itemID != ForceOpenMenuID || link == "" || source.ID == "" {
		return host.TabRef{}, false
	}
	if !o.presenter.LinkInScope(link) {
		o.logger.Debug("freezer: force-open outside menu scope", "link", link)
		return host.TabRef{}, false
	}
	tab, err := o.tabs.Create(ctx, host.CreateProperties{URL: link, Index: source.Index + 1})
	if err != nil {
		o.presenter.hostError("create_tab", err, "link", link)
		return host.TabRef{}, false
	}
	o.metrics.ForceOpens.Inc()
	o.logger.Info("freezer: link force-opened", "link", link, "tab_id", tab.ID, "source_id", source.ID)
	return tab, true
}
