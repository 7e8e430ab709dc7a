// Package host defines the browser capabilities the freeze core calls
// through: tab lookup and lifecycle, the per-tab action (icon, title,
// badge), the context menu, and the event stream that drives everything.
//
// Implementations: host/cdp (a real Chromium over the DevTools protocol)
// and host/memhost (in-memory, for tests and dry runs). Both render the
// action and menu through Surface.
package host

import (
	"context"
	"errors"
)

// ErrTabNotFound is returned when a tab id no longer resolves.
var ErrTabNotFound = errors.New("host: tab not found")

// TabID identifies a tab. CDP target ids are opaque strings; the empty id
// means "none".
type TabID string

// TabRef is a read-only snapshot of a tab. It may be stale as soon as it
// is returned.
type TabRef struct {
	ID         TabID  `json:"id"`
	URL        string `json:"url"`
	PendingURL string `json:"pending_url,omitempty"`
	OpenerID   TabID  `json:"opener_id,omitempty"`
	Index      int    `json:"index"`
}

// CreateProperties describes a tab to open.
type CreateProperties struct {
	URL   string
	Index int
}

// Tabs looks up, closes and opens tabs.
type Tabs interface {
	Get(ctx context.Context, id TabID) (TabRef, error)
	Remove(ctx context.Context, id TabID) error
	Create(ctx context.Context, props CreateProperties) (TabRef, error)
}

// Action renders the per-tab action button.
type Action interface {
	SetIcon(ctx context.Context, id TabID, path string) error
	SetTitle(ctx context.Context, id TabID, title string) error
	SetBadgeText(ctx context.Context, id TabID, text string) error
}

// MenuItem is a context-menu entry.
type MenuItem struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Contexts []string `json:"contexts"`
	// Patterns restricts the item to links matching these match patterns.
	Patterns []string `json:"patterns"`
	Visible  bool     `json:"visible"`
}

// MenuUpdate changes the mutable parts of a MenuItem.
type MenuUpdate struct {
	Patterns []string
	Visible  bool
}

// Menus creates and updates context-menu items.
type Menus interface {
	CreateMenu(ctx context.Context, item MenuItem) error
	UpdateMenu(ctx context.Context, id string, upd MenuUpdate) error
}

// Host bundles every capability.
type Host interface {
	Tabs
	Action
	Menus
	Events() <-chan Event
}
