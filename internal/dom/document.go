// Package dom is the DOM access layer every perfguard component goes through.
//
// Optimizer and preloader code never touch *html.Node fields directly when
// mutating: they call a Document. The Facade lets a different Document be
// swapped in at runtime, which is how the mutation guard intercepts writes
// without patching anything global.
package dom

import (
	"golang.org/x/net/html"
)

// Rect is an element's bounding box relative to the top of the viewport.
type Rect struct {
	Top    float64 `json:"top" yaml:"top"`
	Left   float64 `json:"left" yaml:"left"`
	Width  float64 `json:"width" yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
}

// Bottom returns the bottom edge of the rectangle.
func (r Rect) Bottom() float64 {
	return r.Top + r.Height
}

// Document is the access facade over a live page.
//
// Implementations are not safe for concurrent use; callers serialize access
// through the event loop.
type Document interface {
	Root() *html.Node
	DocumentElement() *html.Node
	Head() *html.Node

	QuerySelector(selector string) (*html.Node, error)
	QuerySelectorAll(selector string) ([]*html.Node, error)

	GetAttribute(n *html.Node, name string) (string, bool)
	SetAttribute(n *html.Node, name, value string) error
	RemoveAttribute(n *html.Node, name string) error

	HasClass(n *html.Node, class string) bool
	AddClass(n *html.Node, class string) error
	RemoveClass(n *html.Node, class string) error

	// SetStyleProperty writes one inline style declaration. priority is
	// either empty or "important".
	SetStyleProperty(n *html.Node, property, value, priority string) error

	CreateElement(tag string) *html.Node
	AppendChild(parent, child *html.Node) error
	// SetTextContent replaces every child of n with a single text node.
	SetTextContent(n *html.Node, text string) error

	BoundingClientRect(n *html.Node) (Rect, error)
	ViewportHeight() float64
}
