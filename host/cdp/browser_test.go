package cdp

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/go-rod/rod/lib/cdp"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/tabfreeze/host"
)

func page(id, url, opener string) *proto.TargetTargetInfo {
	return &proto.TargetTargetInfo{
		TargetID: proto.TargetTargetID(id),
		Type:     proto.TargetTargetInfoTypePage,
		URL:      url,
		OpenerID: proto.TargetTargetID(opener),
	}
}

func next(t *testing.T, b *Browser) host.Event {
	t.Helper()
	select {
	case ev := <-b.events:
		return ev
	default:
		t.Fatal("no event")
		return host.Event{}
	}
}

func TestCreatedCarriesPendingURL(t *testing.T) {
	b := New(Config{})
	ctx := context.Background()

	b.onCreated(ctx, page("T2", "https://a.com/x", "T1"))

	ev := next(t, b)
	if ev.Kind != host.TabCreated {
		t.Fatalf("kind: got %v", ev.Kind)
	}
	if ev.Tab.URL != "" || ev.Tab.PendingURL != "https://a.com/x" {
		t.Errorf("urls: %+v", ev.Tab)
	}
	if ev.Tab.OpenerID != "T1" {
		t.Errorf("opener: got %q", ev.Tab.OpenerID)
	}
}

func TestNonPageTargetsIgnored(t *testing.T) {
	b := New(Config{})
	info := page("W1", "https://a.com/sw.js", "")
	info.Type = "service_worker"

	b.onCreated(context.Background(), info)
	b.onChanged(context.Background(), info)

	if len(b.events) != 0 {
		t.Fatalf("got %d events for a worker target", len(b.events))
	}
}

func TestChangedOnlyOnNewURL(t *testing.T) {
	b := New(Config{})
	ctx := context.Background()

	b.onCreated(ctx, page("T1", "https://a.com/", ""))
	next(t, b)

	b.onChanged(ctx, page("T1", "https://a.com/", ""))
	ev := next(t, b)
	if ev.Kind != host.TabUpdated || ev.Status != host.StatusComplete || ev.Tab.URL != "https://a.com/" {
		t.Fatalf("first commit: %+v", ev)
	}

	// Same URL again (title change).
	b.onChanged(ctx, page("T1", "https://a.com/", ""))
	if len(b.events) != 0 {
		t.Fatal("duplicate update emitted")
	}

	b.onChanged(ctx, page("T1", "https://b.com/", ""))
	if ev := next(t, b); ev.Tab.URL != "https://b.com/" {
		t.Fatalf("navigation: %+v", ev)
	}
}

func TestDestroyedForgetsSurface(t *testing.T) {
	b := New(Config{})
	ctx := context.Background()
	b.onCreated(ctx, page("T1", "", ""))

	if err := b.SetTitle(ctx, "T1", "hello"); err != nil {
		t.Fatalf("set title on known tab: %v", err)
	}
	b.onDestroyed("T1")

	if got, ok := b.Render("T1"); ok {
		t.Errorf("render state survived destroy: %+v", got)
	}
	if err := b.SetTitle(ctx, "T1", "again"); !errors.Is(err, host.ErrTabNotFound) {
		t.Errorf("set title on destroyed tab: got %v", err)
	}
}

func TestMapErr(t *testing.T) {
	notFound := &cdp.Error{Code: -32602, Message: "No target with given id found"}
	if err := mapErr("get", "T9", fmt.Errorf("wrapped: %w", notFound)); !errors.Is(err, host.ErrTabNotFound) {
		t.Errorf("not found: got %v", err)
	}

	other := &cdp.Error{Code: -32000, Message: "Internal error"}
	err := mapErr("remove", "T9", other)
	if errors.Is(err, host.ErrTabNotFound) {
		t.Errorf("internal error mapped to not found")
	}
	var ce *cdp.Error
	if !errors.As(err, &ce) {
		t.Errorf("cause lost: %v", err)
	}
}

func TestCallsBeforeStart(t *testing.T) {
	b := New(Config{})
	ctx := context.Background()
	if _, err := b.Get(ctx, "T1"); !errors.Is(err, errNoBrowser) {
		t.Errorf("Get: %v", err)
	}
	if err := b.Remove(ctx, "T1"); !errors.Is(err, errNoBrowser) {
		t.Errorf("Remove: %v", err)
	}
	if _, err := b.Create(ctx, host.CreateProperties{URL: "https://a.com"}); !errors.Is(err, errNoBrowser) {
		t.Errorf("Create: %v", err)
	}
}
