//go:build property
// +build property

package optimizer

import (
	"fmt"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"golang.org/x/net/html"

	"github.com/conneroisu/perfguard/internal/dom"
	"github.com/conneroisu/perfguard/internal/exclusion"
	"github.com/conneroisu/perfguard/internal/logging"
	"github.com/conneroisu/perfguard/internal/platform"
)

// buildPage lays out one image per top offset; protected[i] puts image i
// inside a marked section, animated[i] gives it an animation class.
func buildPage(tops []int, protected, animated []bool) (*dom.HTMLDocument, error) {
	var b strings.Builder
	b.WriteString("<html><head></head><body>")
	var rules []dom.LayoutRule
	for i, top := range tops {
		class := ""
		if i < len(animated) && animated[i] {
			class = ` class="animate-fade-in"`
		}
		img := fmt.Sprintf(`<img id="img-%d"%s src="/%d.jpg">`, i, class, i)
		if i < len(protected) && protected[i] {
			fmt.Fprintf(&b, `<div data-exclude-optimization="true"><span>%s</span></div>`, img)
		} else {
			b.WriteString(img)
		}
		rules = append(rules, dom.LayoutRule{Selector: fmt.Sprintf("#img-%d", i), Top: float64(top), Height: 200})
	}
	b.WriteString("</body></html>")

	doc, err := dom.ParseString(b.String(), dom.WithViewportHeight(800))
	if err != nil {
		return nil, err
	}
	layout, err := dom.NewSelectorLayout(rules)
	if err != nil {
		return nil, err
	}
	doc.SetLayout(layout)
	return doc, nil
}

func newOptimizer(doc *dom.HTMLDocument) *Optimizer {
	pl := &platform.Platform{
		Document: dom.NewFacade(doc),
		Media:    platform.StaticMedia{ReducedMotion: true},
	}
	return New(pl, exclusion.Default(), logging.NewNopLogger(), Options{})
}

func TestOptimizerProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("image pass is idempotent", prop.ForAll(
		func(tops []int, protected, animated []bool) bool {
			doc, err := buildPage(tops, protected, animated)
			if err != nil {
				return false
			}
			opt := newOptimizer(doc)
			opt.Run()
			once := doc.String()
			opt.Run()
			return once == doc.String()
		},
		gen.SliceOfN(12, gen.IntRange(0, 6000)),
		gen.SliceOfN(12, gen.Bool()),
		gen.SliceOfN(12, gen.Bool()),
	))

	properties.Property("protected images never receive hints", prop.ForAll(
		func(tops []int, protected, animated []bool) bool {
			doc, err := buildPage(tops, protected, animated)
			if err != nil {
				return false
			}
			registry := exclusion.Default()
			newOptimizer(doc).Run()

			images, err := doc.QuerySelectorAll("img")
			if err != nil {
				return false
			}
			for _, img := range images {
				if !registry.IsInExcludedTree(img) {
					continue
				}
				if touched(doc, img) {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(12, gen.IntRange(0, 6000)),
		gen.SliceOfN(12, gen.Bool()),
		gen.SliceOfN(12, gen.Bool()),
	))

	properties.Property("hints follow viewport thresholds", prop.ForAll(
		func(tops []int) bool {
			doc, err := buildPage(tops, nil, nil)
			if err != nil {
				return false
			}
			newOptimizer(doc).Run()
			for i, top := range tops {
				img, _ := doc.QuerySelector(fmt.Sprintf("#img-%d", i))
				_, lazy := doc.GetAttribute(img, "loading")
				_, low := doc.GetAttribute(img, "fetchpriority")
				if lazy != (top > 800) || low != (top > 1600) {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(12, gen.IntRange(0, 6000)),
	))

	properties.TestingRun(t)
}

func touched(doc dom.Document, n *html.Node) bool {
	if _, ok := doc.GetAttribute(n, "loading"); ok {
		return true
	}
	if _, ok := doc.GetAttribute(n, "fetchpriority"); ok {
		return true
	}
	for _, c := range []string{ClassAnimationRunning, ClassAnimationPaused, ClassMotionReduced} {
		if doc.HasClass(n, c) {
			return true
		}
	}
	return false
}
