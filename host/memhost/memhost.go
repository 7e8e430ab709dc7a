// Package memhost is an in-memory host.Host. Tabs live in a map, events are
// pushed by the test (or the dry-run CLI) through Emit, and renders go to a
// host.Surface that only accepts tabs the map still holds.
package memhost

import (
	"context"
	"fmt"
	"sync"

	"github.com/hazyhaar/tabfreeze/host"
)

// Host is safe for concurrent use.
type Host struct {
	*host.Surface

	mu      sync.Mutex
	tabs    map[host.TabID]host.TabRef
	removed []host.TabID
	created []host.TabRef
	next    int
	events  chan host.Event
}

var _ host.Host = (*Host)(nil)

// New returns a host with an event buffer of size buffer.
func New(buffer int) *Host {
	h := &Host{
		tabs:   make(map[host.TabID]host.TabRef),
		events: make(chan host.Event, buffer),
	}
	h.Surface = host.NewSurface(func(_ context.Context, id host.TabID) bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		_, ok := h.tabs[id]
		return ok
	})
	return h
}

// AddTab registers tab (assigning an id when empty) and returns it.
func (h *Host) AddTab(tab host.TabRef) host.TabRef {
	h.mu.Lock()
	defer h.mu.Unlock()
	if tab.ID == "" {
		h.next++
		tab.ID = host.TabID(fmt.Sprintf("tab-%d", h.next))
	}
	h.tabs[tab.ID] = tab
	return tab
}

// Seed opens one tab per URL, indexed in order, and returns them.
func (h *Host) Seed(urls []string) []host.TabRef {
	tabs := make([]host.TabRef, 0, len(urls))
	for i, u := range urls {
		tabs = append(tabs, h.AddTab(host.TabRef{URL: u, Index: i}))
	}
	return tabs
}

// CloseTab drops a tab without recording it as removed by the core.
func (h *Host) CloseTab(id host.TabID) {
	h.mu.Lock()
	delete(h.tabs, id)
	h.mu.Unlock()
	h.Forget(id)
}

// Tab returns the tab with id, if it is still open.
func (h *Host) Tab(id host.TabID) (host.TabRef, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	t, ok := h.tabs[id]
	return t, ok
}

// Removed returns the ids closed through Remove, in order.
func (h *Host) Removed() []host.TabID {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]host.TabID(nil), h.removed...)
}

// Created returns the tabs opened through Create, in order.
func (h *Host) Created() []host.TabRef {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]host.TabRef(nil), h.created...)
}

func (h *Host) Get(_ context.Context, id host.TabID) (host.TabRef, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	t, ok := h.tabs[id]
	if !ok {
		return host.TabRef{}, fmt.Errorf("memhost: get %s: %w", id, host.ErrTabNotFound)
	}
	return t, nil
}

func (h *Host) Remove(_ context.Context, id host.TabID) error {
	h.mu.Lock()
	_, ok := h.tabs[id]
	if ok {
		delete(h.tabs, id)
		h.removed = append(h.removed, id)
	}
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("memhost: remove %s: %w", id, host.ErrTabNotFound)
	}
	h.Forget(id)
	return nil
}

func (h *Host) Create(_ context.Context, props host.CreateProperties) (host.TabRef, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next++
	tab := host.TabRef{
		ID:    host.TabID(fmt.Sprintf("tab-%d", h.next)),
		URL:   props.URL,
		Index: props.Index,
	}
	h.tabs[tab.ID] = tab
	h.created = append(h.created, tab)
	return tab, nil
}

// Events returns the event stream.
func (h *Host) Events() <-chan host.Event { return h.events }

// Emit queues an event. It blocks when the buffer is full.
func (h *Host) Emit(ev host.Event) { h.events <- ev }

// Close ends the event stream.
func (h *Host) Close() { close(h.events) }
