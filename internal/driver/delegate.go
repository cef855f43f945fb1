package driver

import (
	"context"

	"github.com/conneroisu/payload/internal/binding"
)

// maxClickDepth bounds chains of click proxies.
const maxClickDepth = 8

// TriggerAutoLoad activates the given elements, or every auto-load marker in
// the bound context when none are given, and waits for all of them.
func (d *Driver) TriggerAutoLoad(ctx context.Context, els ...binding.Element) error {
	if len(els) == 0 {
		scope, err := d.bound()
		if err != nil {
			return err
		}
		els = scope.Find(d.selectors.autoLoad)
	}

	return d.autoLoad(ctx, els)
}

// Click delivers a click to el: a bound link or button issues its request
// unless disabled or vetoed, and an element with a click attribute proxies
// the click to the elements its selector matches.
func (d *Driver) Click(ctx context.Context, el binding.Element) error {
	return d.click(ctx, el, 0)
}

func (d *Driver) click(ctx context.Context, el binding.Element, depth int) error {
	if depth > maxClickDepth {
		d.logger.Warn(ctx, nil, "click proxy chain too deep", "tag", el.Tag())
		return nil
	}

	if d.isLink(el) {
		if err := d.clickRequest(ctx, el); err != nil {
			return err
		}
	}

	sel, ok := el.Attr(d.selectors.prefix + "click")
	if !ok || sel == "" {
		return nil
	}
	scope, err := d.bound()
	if err != nil {
		return err
	}
	for _, target := range scope.Find(sel) {
		if err := d.click(ctx, target, depth+1); err != nil {
			return err
		}
	}

	return nil
}

func (d *Driver) clickRequest(ctx context.Context, el binding.Element) error {
	if el.Disabled() {
		return nil
	}
	if !d.opts.APIOnClick(ctx, el) {
		return nil
	}

	return d.Request(ctx, el, nil)
}

// Submit delivers a submit to a bound form, subject to the submit gate.
func (d *Driver) Submit(ctx context.Context, form binding.Element) error {
	if !d.isForm(form) {
		return nil
	}
	if !d.opts.APIOnSubmit(ctx, form) {
		return nil
	}

	return d.Request(ctx, form, nil)
}

// activate is the auto-load entry point: bound forms submit, bound links and
// buttons click. Other elements are ignored.
func (d *Driver) activate(ctx context.Context, el binding.Element) error {
	switch {
	case d.isForm(el):
		return d.Submit(ctx, el)
	case d.isLink(el):
		return d.clickRequest(ctx, el)
	}

	return nil
}

func (d *Driver) isBound(el binding.Element) bool {
	if _, ok := el.Attr(d.selectors.prefix + "url"); ok {
		return true
	}
	_, ok := el.Attr(d.selectors.prefix + "selector")

	return ok
}

func (d *Driver) isLink(el binding.Element) bool {
	switch el.Tag() {
	case "a", "button":
		return d.isBound(el)
	}

	return false
}

func (d *Driver) isForm(el binding.Element) bool {
	return el.Tag() == "form" && d.isBound(el)
}
