package dom

import (
	"fmt"
	"io"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	perrors "github.com/conneroisu/perfguard/internal/errors"
)

// DefaultViewportHeight is used when no viewport height is configured.
const DefaultViewportHeight = 800

// HTMLDocument is a Document backed by an x/net/html tree.
type HTMLDocument struct {
	root           *html.Node
	layout         Layout
	viewportHeight float64
	selectors      map[string]cascadia.Selector
}

// Option configures an HTMLDocument.
type Option func(*HTMLDocument)

// WithLayout sets the geometry source used by BoundingClientRect.
func WithLayout(l Layout) Option {
	return func(d *HTMLDocument) {
		d.layout = l
	}
}

// WithViewportHeight sets the viewport height in CSS pixels.
func WithViewportHeight(h float64) Option {
	return func(d *HTMLDocument) {
		if h > 0 {
			d.viewportHeight = h
		}
	}
}

// Parse reads markup and returns a document over the parsed tree.
func Parse(r io.Reader, opts ...Option) (*HTMLDocument, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, perrors.WrapIO(err, perrors.ErrCodeValidationFailed, "parse HTML")
	}
	return NewHTMLDocument(root, opts...), nil
}

// ParseString is Parse over an in-memory string.
func ParseString(markup string, opts ...Option) (*HTMLDocument, error) {
	return Parse(strings.NewReader(markup), opts...)
}

// NewHTMLDocument wraps an already parsed tree.
func NewHTMLDocument(root *html.Node, opts ...Option) *HTMLDocument {
	d := &HTMLDocument{
		root:           root,
		viewportHeight: DefaultViewportHeight,
		selectors:      make(map[string]cascadia.Selector),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Render writes the document back out as HTML.
func (d *HTMLDocument) Render(w io.Writer) error {
	return html.Render(w, d.root)
}

// String renders the document, returning an empty string on failure.
func (d *HTMLDocument) String() string {
	var b strings.Builder
	if err := d.Render(&b); err != nil {
		return ""
	}
	return b.String()
}

// SetLayout replaces the geometry source.
func (d *HTMLDocument) SetLayout(l Layout) {
	d.layout = l
}

func (d *HTMLDocument) Root() *html.Node { return d.root }

func (d *HTMLDocument) DocumentElement() *html.Node {
	return FindElement(d.root, "html")
}

func (d *HTMLDocument) Head() *html.Node {
	return FindElement(d.root, "head")
}

func (d *HTMLDocument) compile(selector string) (cascadia.Selector, error) {
	if sel, ok := d.selectors[selector]; ok {
		return sel, nil
	}
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return nil, perrors.ErrInvalidSelector(selector, err)
	}
	d.selectors[selector] = sel
	return sel, nil
}

func (d *HTMLDocument) QuerySelector(selector string) (*html.Node, error) {
	sel, err := d.compile(selector)
	if err != nil {
		return nil, err
	}
	return sel.MatchFirst(d.root), nil
}

func (d *HTMLDocument) QuerySelectorAll(selector string) ([]*html.Node, error) {
	sel, err := d.compile(selector)
	if err != nil {
		return nil, err
	}
	return sel.MatchAll(d.root), nil
}

func (d *HTMLDocument) GetAttribute(n *html.Node, name string) (string, bool) {
	return Attr(n, name)
}

func (d *HTMLDocument) SetAttribute(n *html.Node, name, value string) error {
	if err := requireElement(n); err != nil {
		return err
	}
	name = NormalizeName(name)
	if name == "" {
		return perrors.NewValidationError(perrors.ErrCodeValidationFailed, "empty attribute name")
	}
	setAttr(n, name, value)
	return nil
}

func (d *HTMLDocument) RemoveAttribute(n *html.Node, name string) error {
	if err := requireElement(n); err != nil {
		return err
	}
	removeAttr(n, NormalizeName(name))
	return nil
}

func (d *HTMLDocument) HasClass(n *html.Node, class string) bool {
	return HasClassName(n, class)
}

func (d *HTMLDocument) AddClass(n *html.Node, class string) error {
	if err := requireElement(n); err != nil {
		return err
	}
	if HasClassName(n, class) {
		return nil
	}
	setAttr(n, "class", strings.Join(append(Classes(n), class), " "))
	return nil
}

func (d *HTMLDocument) RemoveClass(n *html.Node, class string) error {
	if err := requireElement(n); err != nil {
		return err
	}
	if !HasClassName(n, class) {
		return nil
	}
	var kept []string
	for _, c := range Classes(n) {
		if c != class {
			kept = append(kept, c)
		}
	}
	setAttr(n, "class", strings.Join(kept, " "))
	return nil
}

func (d *HTMLDocument) SetStyleProperty(n *html.Node, property, value, priority string) error {
	if err := requireElement(n); err != nil {
		return err
	}
	property = NormalizeName(property)
	if property == "" {
		return perrors.NewValidationError(perrors.ErrCodeValidationFailed, "empty style property")
	}
	style, _ := Attr(n, "style")
	decls, err := parseInlineStyle(style)
	if err != nil {
		return err
	}
	if value == "" {
		decls = removeDeclaration(decls, property)
	} else {
		decls = upsertDeclaration(decls, declaration{
			property:  property,
			value:     strings.TrimSpace(value),
			important: priority == "important",
		})
	}
	if rendered := renderInlineStyle(decls); rendered != "" {
		setAttr(n, "style", rendered)
	} else {
		removeAttr(n, "style")
	}
	return nil
}

func (d *HTMLDocument) CreateElement(tag string) *html.Node {
	tag = strings.ToLower(tag)
	return &html.Node{
		Type:     html.ElementNode,
		Data:     tag,
		DataAtom: atom.Lookup([]byte(tag)),
	}
}

func (d *HTMLDocument) AppendChild(parent, child *html.Node) error {
	if parent == nil || child == nil {
		return perrors.NewValidationError(perrors.ErrCodeValidationFailed, "append requires parent and child")
	}
	if child.Parent != nil {
		child.Parent.RemoveChild(child)
	}
	parent.AppendChild(child)
	return nil
}

func (d *HTMLDocument) SetTextContent(n *html.Node, text string) error {
	if err := requireElement(n); err != nil {
		return err
	}
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		c = next
	}
	if text != "" {
		n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	}
	return nil
}

func (d *HTMLDocument) BoundingClientRect(n *html.Node) (Rect, error) {
	if d.layout == nil {
		return Rect{}, perrors.ErrLayoutUnavailable(Describe(n))
	}
	return d.layout.Rect(n)
}

func (d *HTMLDocument) ViewportHeight() float64 {
	return d.viewportHeight
}

func requireElement(n *html.Node) error {
	if n == nil || n.Type != html.ElementNode {
		return perrors.NewValidationError(perrors.ErrCodeValidationFailed,
			fmt.Sprintf("expected element node, got %s", Describe(n)))
	}
	return nil
}
