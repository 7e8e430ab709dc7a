package host

import (
	"context"
	"fmt"
	"sync"
)

// RenderState is what the action button of one tab currently shows.
type RenderState struct {
	Icon  string `json:"icon,omitempty"`
	Title string `json:"title,omitempty"`
	Badge string `json:"badge,omitempty"`
}

// Change is published to subscribers after every render or menu mutation.
// Exactly one of Render / Menu is set.
type Change struct {
	TabID  TabID        `json:"tab_id,omitempty"`
	Render *RenderState `json:"render,omitempty"`
	Menu   *MenuItem    `json:"menu,omitempty"`
}

// Surface is an in-memory Action + Menus implementation. CDP has no
// extension toolbar, so the daemon keeps what it would have drawn here
// and publishes it to the control API.
type Surface struct {
	mu     sync.RWMutex
	tabs   map[TabID]RenderState
	menus  map[string]MenuItem
	order  []string
	subs   map[int]chan Change
	nextID int

	// exists, when set, rejects renders against tabs the browser no longer has.
	exists func(ctx context.Context, id TabID) bool
}

// NewSurface returns an empty surface. exists may be nil.
func NewSurface(exists func(ctx context.Context, id TabID) bool) *Surface {
	return &Surface{
		tabs:   make(map[TabID]RenderState),
		menus:  make(map[string]MenuItem),
		subs:   make(map[int]chan Change),
		exists: exists,
	}
}

var (
	_ Action = (*Surface)(nil)
	_ Menus  = (*Surface)(nil)
)

func (s *Surface) SetIcon(ctx context.Context, id TabID, path string) error {
	return s.render(ctx, id, func(r *RenderState) { r.Icon = path })
}

func (s *Surface) SetTitle(ctx context.Context, id TabID, title string) error {
	return s.render(ctx, id, func(r *RenderState) { r.Title = title })
}

func (s *Surface) SetBadgeText(ctx context.Context, id TabID, text string) error {
	return s.render(ctx, id, func(r *RenderState) { r.Badge = text })
}

func (s *Surface) render(ctx context.Context, id TabID, mutate func(*RenderState)) error {
	if id == "" {
		return ErrTabNotFound
	}
	if s.exists != nil && !s.exists(ctx, id) {
		return fmt.Errorf("host: render %s: %w", id, ErrTabNotFound)
	}
	s.mu.Lock()
	r := s.tabs[id]
	mutate(&r)
	s.tabs[id] = r
	s.mu.Unlock()

	s.publish(Change{TabID: id, Render: &r})
	return nil
}

// Render returns the state of tab id.
func (s *Surface) Render(id TabID) (RenderState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.tabs[id]
	return r, ok
}

// Forget drops the render state of a closed tab.
func (s *Surface) Forget(id TabID) {
	s.mu.Lock()
	delete(s.tabs, id)
	s.mu.Unlock()
}

func (s *Surface) CreateMenu(_ context.Context, item MenuItem) error {
	if item.ID == "" {
		return fmt.Errorf("host: menu item needs an id")
	}
	s.mu.Lock()
	if _, dup := s.menus[item.ID]; dup {
		s.mu.Unlock()
		return fmt.Errorf("host: menu item %q already exists", item.ID)
	}
	item.Patterns = append([]string(nil), item.Patterns...)
	s.menus[item.ID] = item
	s.order = append(s.order, item.ID)
	s.mu.Unlock()

	s.publish(Change{Menu: &item})
	return nil
}

func (s *Surface) UpdateMenu(_ context.Context, id string, upd MenuUpdate) error {
	s.mu.Lock()
	item, ok := s.menus[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("host: no menu item with id %q", id)
	}
	item.Patterns = append([]string(nil), upd.Patterns...)
	item.Visible = upd.Visible
	s.menus[id] = item
	s.mu.Unlock()

	s.publish(Change{Menu: &item})
	return nil
}

// Menu returns the menu item with id.
func (s *Surface) Menu(id string) (MenuItem, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.menus[id]
	return item, ok
}

// Menus returns every menu item in creation order.
func (s *Surface) Menus() []MenuItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]MenuItem, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.menus[id])
	}
	return out
}

// Subscribe returns a channel of changes and a cancel func. Slow
// subscribers drop changes rather than block renders.
func (s *Surface) Subscribe(buffer int) (<-chan Change, func()) {
	ch := make(chan Change, buffer)
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = ch
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
			close(ch)
		})
	}
}

func (s *Surface) publish(c Change) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- c:
		default:
		}
	}
}
