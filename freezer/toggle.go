package freezer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hazyhaar/tabfreeze/domainstore"
	"github.com/hazyhaar/tabfreeze/host"
	"github.com/hazyhaar/tabfreeze/observability"
	"github.com/hazyhaar/tabfreeze/policy"
)

// ErrNotToggleable is returned for tabs whose URL has no hostname.
var ErrNotToggleable = errors.New("freezer: tab has no resolvable hostname")

// Toggler flips the frozen state of a tab's domain on action click.
type Toggler struct {
	store     *domainstore.Store
	presenter *Presenter
	metrics   *observability.Metrics
	logger    *slog.Logger
}

// Toggle flips tab's domain and returns the domain and its new state.
func (t *Toggler) Toggle(ctx context.Context, tab host.TabRef) (string, bool, error) {
	domain, ok := policy.HostnameOf(tab.URL)
	if !ok {
		t.logger.Debug("freezer: toggle ignored", "tab_id", tab.ID, "url", tab.URL)
		return "", false, ErrNotToggleable
	}

	var frozen bool
	_, err := t.store.Update(ctx, func(d policy.Domains) (policy.Domains, error) {
		wasFrozen := policy.IsFrozen(tab.URL, d)
		if wasFrozen {
			delete(d, domain)
		} else {
			d[domain] = true
		}
		frozen = !wasFrozen
		t.presenter.SyncTab(ctx, tab.ID, frozen)
		return d, nil
	})
	if err != nil {
		t.logger.Error("freezer: toggle not persisted", "domain", domain, "error", err)
		return domain, frozen, fmt.Errorf("freezer: toggle %s: %w", domain, err)
	}

	state := "unfrozen"
	if frozen {
		state = "frozen"
	}
	t.metrics.Toggles.WithLabelValues(state).Inc()
	t.logger.Info("freezer: domain toggled", "domain", domain, "frozen", frozen)

	t.presenter.SyncMenu(ctx)
	return domain, frozen, nil
}
