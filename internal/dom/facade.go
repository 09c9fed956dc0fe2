package dom

import (
	"sync"

	"golang.org/x/net/html"

	perrors "github.com/conneroisu/perfguard/internal/errors"
)

var (
	// ErrSealed is returned by Swap on a facade that no longer accepts
	// replacements.
	ErrSealed = perrors.NewGuardError(perrors.ErrCodeFacadeSealed, "dom facade is sealed", nil)
	// ErrSwapConflict is returned by Swap when the installed document is not
	// the one the caller expected to replace.
	ErrSwapConflict = perrors.NewGuardError("ERR_FACADE_CONFLICT", "dom facade holds a different document", nil)
)

// Facade is a Document that forwards every call to a replaceable
// implementation. Code that must be interceptable holds the Facade, never the
// underlying document.
type Facade struct {
	mu      sync.RWMutex
	current Document
	sealed  bool
}

// NewFacade returns a facade forwarding to doc.
func NewFacade(doc Document) *Facade {
	return &Facade{current: doc}
}

// Current returns the installed implementation.
func (f *Facade) Current() Document {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.current
}

// Swap replaces expected with next. It fails if the facade is sealed or if
// expected is no longer installed.
func (f *Facade) Swap(expected, next Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sealed {
		return ErrSealed
	}
	if f.current != expected {
		return ErrSwapConflict
	}
	f.current = next
	return nil
}

// Seal prevents further swaps.
func (f *Facade) Seal() {
	f.mu.Lock()
	f.sealed = true
	f.mu.Unlock()
}

// Sealed reports whether Seal has been called.
func (f *Facade) Sealed() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.sealed
}

func (f *Facade) Root() *html.Node            { return f.Current().Root() }
func (f *Facade) DocumentElement() *html.Node { return f.Current().DocumentElement() }
func (f *Facade) Head() *html.Node            { return f.Current().Head() }

func (f *Facade) QuerySelector(selector string) (*html.Node, error) {
	return f.Current().QuerySelector(selector)
}

func (f *Facade) QuerySelectorAll(selector string) ([]*html.Node, error) {
	return f.Current().QuerySelectorAll(selector)
}

func (f *Facade) GetAttribute(n *html.Node, name string) (string, bool) {
	return f.Current().GetAttribute(n, name)
}

func (f *Facade) SetAttribute(n *html.Node, name, value string) error {
	return f.Current().SetAttribute(n, name, value)
}

func (f *Facade) RemoveAttribute(n *html.Node, name string) error {
	return f.Current().RemoveAttribute(n, name)
}

func (f *Facade) HasClass(n *html.Node, class string) bool {
	return f.Current().HasClass(n, class)
}

func (f *Facade) AddClass(n *html.Node, class string) error {
	return f.Current().AddClass(n, class)
}

func (f *Facade) RemoveClass(n *html.Node, class string) error {
	return f.Current().RemoveClass(n, class)
}

func (f *Facade) SetStyleProperty(n *html.Node, property, value, priority string) error {
	return f.Current().SetStyleProperty(n, property, value, priority)
}

func (f *Facade) CreateElement(tag string) *html.Node {
	return f.Current().CreateElement(tag)
}

func (f *Facade) AppendChild(parent, child *html.Node) error {
	return f.Current().AppendChild(parent, child)
}

func (f *Facade) SetTextContent(n *html.Node, text string) error {
	return f.Current().SetTextContent(n, text)
}

func (f *Facade) BoundingClientRect(n *html.Node) (Rect, error) {
	return f.Current().BoundingClientRect(n)
}

func (f *Facade) ViewportHeight() float64 {
	return f.Current().ViewportHeight()
}
