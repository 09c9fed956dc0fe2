package guard

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/net/html"

	"github.com/conneroisu/perfguard/internal/dom"
	perrors "github.com/conneroisu/perfguard/internal/errors"
	"github.com/conneroisu/perfguard/internal/exclusion"
)

// guardedDocument decorates the document that was current when tracing
// started. Reads and writes outside protected zones pass straight through.
type guardedDocument struct {
	inner    dom.Document
	session  *Session
	registry *exclusion.Registry
	disabled atomic.Bool
}

var _ dom.Document = (*guardedDocument)(nil)

func (d *guardedDocument) disable() { d.disabled.Store(true) }

type access struct {
	op       OpType
	method   string
	target   *html.Node
	property string
	value    string
	// vetoable writes are blocked unless a trusted caller is on the stack.
	vetoable bool
}

// inspect records a if its target is protected and reports whether the call
// must be suppressed. Any failure while inspecting lets the call through.
func (d *guardedDocument) inspect(a access) (blocked bool) {
	if d.disabled.Load() || a.target == nil {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			err := perrors.FromPanic(perrors.ErrCodeInternalError, r)
			d.session.logger.Warn(context.Background(), err, "Interception failed, call passed through",
				"method", a.method)
			blocked = false
		}
	}()

	zone := d.registry.Nearest(a.target)
	if zone == nil {
		return false
	}

	opts := d.session.opts
	stack := captureStack(opts.StackDepth)
	rec := ModificationRecord{
		Type:       a.op,
		Method:     a.method,
		TargetTag:  dom.Describe(a.target),
		Zone:       dom.Describe(zone),
		Property:   a.property,
		Value:      a.value,
		StackTrace: formatStack(stack),
		Trusted:    trusted(stack, opts.TrustedCallers),
		Timestamp:  time.Now(),
	}
	if len(stack) > 0 {
		rec.Origin = stack[0].String()
	} else {
		rec.Origin = "unknown"
	}
	rec.Blocked = a.vetoable && !rec.Trusted

	if opts.OnRecord != nil {
		opts.OnRecord(rec)
	}
	d.session.append(rec)
	return rec.Blocked
}

// contains matches s against list after normalizing both the way the
// underlying document normalizes names before writing them.
func contains(list []string, s string) bool {
	s = dom.NormalizeName(s)
	for _, v := range list {
		if dom.NormalizeName(v) == s {
			return true
		}
	}
	return false
}

func (d *guardedDocument) Root() *html.Node            { return d.inner.Root() }
func (d *guardedDocument) DocumentElement() *html.Node { return d.inner.DocumentElement() }
func (d *guardedDocument) Head() *html.Node            { return d.inner.Head() }

func (d *guardedDocument) QuerySelector(selector string) (*html.Node, error) {
	n, err := d.inner.QuerySelector(selector)
	if err == nil && n != nil {
		d.inspect(access{op: OpQuerySelector, method: "QuerySelector", target: n, value: selector})
	}
	return n, err
}

func (d *guardedDocument) QuerySelectorAll(selector string) ([]*html.Node, error) {
	nodes, err := d.inner.QuerySelectorAll(selector)
	if err != nil || d.disabled.Load() {
		return nodes, err
	}
	var first *html.Node
	count := 0
	for _, n := range nodes {
		if d.registry.IsInExcludedTree(n) {
			if first == nil {
				first = n
			}
			count++
		}
	}
	if first != nil {
		d.inspect(access{
			op:       OpQuerySelectorAll,
			method:   "QuerySelectorAll",
			target:   first,
			property: selector,
			value:    strconv.Itoa(count),
		})
	}
	return nodes, err
}

func (d *guardedDocument) GetAttribute(n *html.Node, name string) (string, bool) {
	return d.inner.GetAttribute(n, name)
}

func (d *guardedDocument) SetAttribute(n *html.Node, name, value string) error {
	name = dom.NormalizeName(name)
	if d.inspect(access{
		op:       OpSetAttribute,
		method:   "SetAttribute",
		target:   n,
		property: name,
		value:    value,
		vetoable: contains(d.session.opts.VetoAttributes, name),
	}) {
		return nil
	}
	return d.inner.SetAttribute(n, name, value)
}

func (d *guardedDocument) RemoveAttribute(n *html.Node, name string) error {
	name = dom.NormalizeName(name)
	if d.inspect(access{
		op:       OpSetAttribute,
		method:   "RemoveAttribute",
		target:   n,
		property: name,
		vetoable: contains(d.session.opts.VetoAttributes, name),
	}) {
		return nil
	}
	return d.inner.RemoveAttribute(n, name)
}

func (d *guardedDocument) HasClass(n *html.Node, class string) bool {
	return d.inner.HasClass(n, class)
}

func (d *guardedDocument) AddClass(n *html.Node, class string) error {
	if d.inspect(access{
		op:       OpSetAttribute,
		method:   "AddClass",
		target:   n,
		property: "class",
		value:    class,
		vetoable: contains(d.session.opts.VetoAttributes, "class"),
	}) {
		return nil
	}
	return d.inner.AddClass(n, class)
}

func (d *guardedDocument) RemoveClass(n *html.Node, class string) error {
	if d.inspect(access{
		op:       OpSetAttribute,
		method:   "RemoveClass",
		target:   n,
		property: "class",
		value:    class,
		vetoable: contains(d.session.opts.VetoAttributes, "class"),
	}) {
		return nil
	}
	return d.inner.RemoveClass(n, class)
}

func (d *guardedDocument) SetStyleProperty(n *html.Node, property, value, priority string) error {
	property = dom.NormalizeName(property)
	if d.inspect(access{
		op:       OpSetProperty,
		method:   "SetStyleProperty",
		target:   n,
		property: property,
		value:    value,
		vetoable: priority != "important" && contains(d.session.opts.VetoProperties, property),
	}) {
		return nil
	}
	return d.inner.SetStyleProperty(n, property, value, priority)
}

func (d *guardedDocument) CreateElement(tag string) *html.Node {
	return d.inner.CreateElement(tag)
}

func (d *guardedDocument) AppendChild(parent, child *html.Node) error {
	return d.inner.AppendChild(parent, child)
}

func (d *guardedDocument) SetTextContent(n *html.Node, text string) error {
	return d.inner.SetTextContent(n, text)
}

func (d *guardedDocument) BoundingClientRect(n *html.Node) (dom.Rect, error) {
	return d.inner.BoundingClientRect(n)
}

func (d *guardedDocument) ViewportHeight() float64 { return d.inner.ViewportHeight() }
