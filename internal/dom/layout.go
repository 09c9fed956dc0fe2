package dom

import (
	"fmt"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"gopkg.in/yaml.v3"

	perrors "github.com/conneroisu/perfguard/internal/errors"
)

// Layout supplies element geometry. A browser computes this from CSS; outside
// a browser it comes from measurements or estimates.
type Layout interface {
	Rect(n *html.Node) (Rect, error)
}

// StaticLayout holds measured rectangles keyed by node.
type StaticLayout map[*html.Node]Rect

// Rect implements Layout.
func (s StaticLayout) Rect(n *html.Node) (Rect, error) {
	if r, ok := s[n]; ok {
		return r, nil
	}
	return Rect{}, perrors.ErrLayoutUnavailable(Describe(n))
}

// ChainLayout asks each layout in turn and returns the first answer.
type ChainLayout []Layout

// Rect implements Layout.
func (c ChainLayout) Rect(n *html.Node) (Rect, error) {
	var lastErr error
	for _, l := range c {
		r, err := l.Rect(n)
		if err == nil {
			return r, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = perrors.ErrLayoutUnavailable(Describe(n))
	}
	return Rect{}, lastErr
}

// LayoutRule places every element matching Selector at a fixed rectangle.
type LayoutRule struct {
	Selector string  `yaml:"selector"`
	Top      float64 `yaml:"top"`
	Left     float64 `yaml:"left"`
	Width    float64 `yaml:"width"`
	Height   float64 `yaml:"height"`
}

// LayoutSpec is the on-disk layout description used by the CLI.
type LayoutSpec struct {
	ViewportHeight float64      `yaml:"viewport_height"`
	Elements       []LayoutRule `yaml:"elements"`
}

// ParseLayoutSpec decodes a YAML layout description.
func ParseLayoutSpec(data []byte) (*LayoutSpec, error) {
	var spec LayoutSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, perrors.WrapConfig(err, perrors.ErrCodeConfigInvalid, "parse layout file")
	}
	if spec.ViewportHeight < 0 {
		return nil, perrors.NewValidationError(perrors.ErrCodeValidationFailed,
			fmt.Sprintf("viewport_height must not be negative, got %v", spec.ViewportHeight))
	}
	return &spec, nil
}

type compiledRule struct {
	sel  cascadia.Selector
	rect Rect
}

// SelectorLayout resolves geometry by the first matching selector rule.
type SelectorLayout struct {
	rules []compiledRule
}

// NewSelectorLayout compiles the rules of spec.
func NewSelectorLayout(rules []LayoutRule) (*SelectorLayout, error) {
	compiled := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		sel, err := cascadia.Compile(r.Selector)
		if err != nil {
			return nil, perrors.ErrInvalidSelector(r.Selector, err)
		}
		compiled = append(compiled, compiledRule{
			sel:  sel,
			rect: Rect{Top: r.Top, Left: r.Left, Width: r.Width, Height: r.Height},
		})
	}
	return &SelectorLayout{rules: compiled}, nil
}

// Rect implements Layout.
func (s *SelectorLayout) Rect(n *html.Node) (Rect, error) {
	for _, r := range s.rules {
		if r.sel.Match(n) {
			return r.rect, nil
		}
	}
	return Rect{}, perrors.ErrLayoutUnavailable(Describe(n))
}

var flowBlocks = map[string]bool{
	"p": true, "h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"li": true, "blockquote": true, "pre": true, "table": true, "form": true,
	"header": true, "footer": true, "nav": true,
}

// FlowLayout estimates positions by stacking images and text blocks in
// document order. It is a fallback for markup that has never been rendered;
// the estimate is computed once per document root.
type FlowLayout struct {
	ImageHeight float64
	BlockHeight float64
	Width       float64

	root  *html.Node
	rects map[*html.Node]Rect
}

// NewFlowLayout returns a flow estimate with the given image and text block heights.
func NewFlowLayout(imageHeight, blockHeight float64) *FlowLayout {
	return &FlowLayout{ImageHeight: imageHeight, BlockHeight: blockHeight, Width: 1280}
}

// Rect implements Layout.
func (f *FlowLayout) Rect(n *html.Node) (Rect, error) {
	root := n
	for root.Parent != nil {
		root = root.Parent
	}
	if f.rects == nil || f.root != root {
		f.measure(root)
	}
	if r, ok := f.rects[n]; ok {
		return r, nil
	}
	return Rect{}, perrors.ErrLayoutUnavailable(Describe(n))
}

func (f *FlowLayout) measure(root *html.Node) {
	f.root = root
	f.rects = make(map[*html.Node]Rect)
	var y float64

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch {
			case n.Data == "img" || n.Data == "video" || n.Data == "iframe":
				f.rects[n] = Rect{Top: y, Width: f.Width, Height: f.ImageHeight}
				y += f.ImageHeight
				return
			case flowBlocks[n.Data]:
				f.rects[n] = Rect{Top: y, Width: f.Width, Height: f.BlockHeight}
				start := y
				y += f.BlockHeight
				for c := n.FirstChild; c != nil; c = c.NextSibling {
					walk(c)
				}
				if r := f.rects[n]; y-start > r.Height {
					r.Height = y - start
					f.rects[n] = r
				}
				return
			default:
				start := y
				for c := n.FirstChild; c != nil; c = c.NextSibling {
					walk(c)
				}
				f.rects[n] = Rect{Top: start, Width: f.Width, Height: y - start}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
}
