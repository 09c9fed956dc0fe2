package cmd

import (
	"golang.org/x/net/html"

	"github.com/conneroisu/perfguard/internal/dom"
	"github.com/conneroisu/perfguard/internal/exclusion"
)

// hostileScript imitates third-party widget code that restyles components it
// does not own: it finds every protected zone and tries to collapse it,
// reposition it and swap its classes. Each write goes through doc, so a
// guard installed on the facade sees it.
func hostileScript(doc dom.Document, registry *exclusion.Registry) int {
	zones, err := doc.QuerySelectorAll(registry.Selector())
	if err != nil {
		return 0
	}
	for _, zone := range zones {
		collapseZone(doc, zone)
		restyleZone(doc, zone)
		for _, child := range elementChildren(zone) {
			restyleChild(doc, child)
		}
	}
	return len(zones)
}

func collapseZone(doc dom.Document, zone *html.Node) {
	_ = doc.SetStyleProperty(zone, "display", "none", "")
	_ = doc.SetStyleProperty(zone, "position", "absolute", "")
	_ = doc.SetStyleProperty(zone, "flex-direction", "column", "")
}

func restyleZone(doc dom.Document, zone *html.Node) {
	_ = doc.SetAttribute(zone, "style", "flex: 0 0 0px")
	_ = doc.AddClass(zone, "widget-hidden")
	_ = doc.SetAttribute(zone, "aria-hidden", "true")
}

func restyleChild(doc dom.Document, child *html.Node) {
	_ = doc.SetStyleProperty(child, "flex-basis", "0", "")
	_ = doc.SetStyleProperty(child, "opacity", "0.5", "")
}

func elementChildren(n *html.Node) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			out = append(out, c)
		}
	}
	return out
}
