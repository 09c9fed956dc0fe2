// Package exclusion decides whether a node sits inside a protected zone that
// automatic optimization must leave alone.
package exclusion

import (
	"fmt"

	"golang.org/x/net/html"

	"github.com/conneroisu/perfguard/internal/dom"
)

// Default marker attribute and value.
const (
	DefaultAttribute = "data-exclude-optimization"
	DefaultValue     = "true"
)

// Registry answers protected-zone membership by walking the ancestor chain.
// It holds no per-node state, so membership always reflects the current tree.
type Registry struct {
	attribute string
	value     string
}

// New returns a registry for the given marker. Empty arguments fall back to
// the defaults.
func New(attribute, value string) *Registry {
	if attribute == "" {
		attribute = DefaultAttribute
	}
	if value == "" {
		value = DefaultValue
	}
	return &Registry{attribute: attribute, value: value}
}

// Default returns a registry for data-exclude-optimization="true".
func Default() *Registry {
	return New(DefaultAttribute, DefaultValue)
}

// IsInExcludedTree reports whether n or any ancestor carries the marker.
func (r *Registry) IsInExcludedTree(n *html.Node) bool {
	return r.Nearest(n) != nil
}

// Nearest returns the closest marked element at or above n.
func (r *Registry) Nearest(n *html.Node) *html.Node {
	return dom.Closest(n, r.marks)
}

// IsMarker reports whether n itself is a protected zone root.
func (r *Registry) IsMarker(n *html.Node) bool {
	return n != nil && n.Type == html.ElementNode && r.marks(n)
}

func (r *Registry) marks(n *html.Node) bool {
	v, ok := dom.Attr(n, r.attribute)
	return ok && v == r.value
}

// Attribute returns the marker attribute name.
func (r *Registry) Attribute() string { return r.attribute }

// Selector returns the CSS attribute selector matching zone roots.
func (r *Registry) Selector() string {
	return fmt.Sprintf("[%s=%q]", r.attribute, r.value)
}
