package cdp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-rod/rod/lib/cdp"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/hazyhaar/tabfreeze/host"
)

// Get returns the current target info of id.
func (b *Browser) Get(ctx context.Context, id host.TabID) (host.TabRef, error) {
	if b.browser == nil {
		return host.TabRef{}, errNoBrowser
	}
	res, err := proto.TargetGetTargetInfo{TargetID: proto.TargetTargetID(id)}.Call(b.browser.Context(ctx))
	if err != nil {
		return host.TabRef{}, mapErr("get", id, err)
	}
	if res.TargetInfo == nil || res.TargetInfo.Type != proto.TargetTargetInfoTypePage {
		return host.TabRef{}, fmt.Errorf("cdp: get %s: %w", id, host.ErrTabNotFound)
	}
	return tabRef(res.TargetInfo), nil
}

// Remove closes the target.
func (b *Browser) Remove(ctx context.Context, id host.TabID) error {
	if b.browser == nil {
		return errNoBrowser
	}
	if _, err := (proto.TargetCloseTarget{TargetID: proto.TargetTargetID(id)}).Call(b.browser.Context(ctx)); err != nil {
		return mapErr("remove", id, err)
	}
	b.onDestroyed(id)
	return nil
}

// Create opens a page at props.URL. The protocol has no tab strip order,
// so props.Index is not applied.
func (b *Browser) Create(ctx context.Context, props host.CreateProperties) (host.TabRef, error) {
	if b.browser == nil {
		return host.TabRef{}, errNoBrowser
	}
	rb := b.browser.Context(ctx)

	if b.cfg.Stealth {
		page, err := stealth.Page(rb)
		if err != nil {
			return host.TabRef{}, fmt.Errorf("cdp: stealth page: %w", err)
		}
		if err := page.Navigate(props.URL); err != nil {
			page.Close()
			return host.TabRef{}, fmt.Errorf("cdp: navigate %s: %w", props.URL, err)
		}
		return host.TabRef{ID: host.TabID(page.TargetID), URL: props.URL, Index: props.Index}, nil
	}

	res, err := proto.TargetCreateTarget{URL: props.URL}.Call(rb)
	if err != nil {
		return host.TabRef{}, fmt.Errorf("cdp: create target: %w", err)
	}
	return host.TabRef{ID: host.TabID(res.TargetID), URL: props.URL, Index: props.Index}, nil
}

// mapErr turns "no such target" protocol errors into host.ErrTabNotFound.
func mapErr(op string, id host.TabID, err error) error {
	var cdpErr *cdp.Error
	if errors.As(err, &cdpErr) && strings.Contains(strings.ToLower(cdpErr.Message), "no target") {
		return fmt.Errorf("cdp: %s %s: %w", op, id, host.ErrTabNotFound)
	}
	return fmt.Errorf("cdp: %s %s: %w", op, id, err)
}
