package chrome

import (
	"encoding/json"
	"strconv"

	"golang.org/x/net/html"

	"github.com/conneroisu/perfguard/internal/dom"
	perrors "github.com/conneroisu/perfguard/internal/errors"
)

const idxAttr = "data-perfguard-idx"

// MeasuredRect is the page-relative geometry of one element.
type MeasuredRect struct {
	Index  int     `json:"idx"`
	Top    float64 `json:"top"`
	Left   float64 `json:"left"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Snapshot is a serialised page plus element measurements.
type Snapshot struct {
	URL            string         `json:"url"`
	ViewportHeight float64        `json:"viewport_height"`
	ReducedMotion  bool           `json:"reduced_motion"`
	HTML           string         `json:"html"`
	Rects          []MeasuredRect `json:"rects"`
}

// DecodeSnapshot parses the JSON produced by the snapshot script.
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, perrors.Wrap(err, perrors.ErrorTypeValidation, perrors.ErrCodeValidationFailed, "decode page snapshot")
	}
	return &s, nil
}

// Document parses the snapshot markup into a document whose layout is the
// measured geometry. The index attributes the script stamped on elements are
// stripped after matching.
func (s *Snapshot) Document() (*dom.HTMLDocument, error) {
	doc, err := dom.ParseString(s.HTML, dom.WithViewportHeight(s.ViewportHeight))
	if err != nil {
		return nil, err
	}

	byIndex := make(map[int]dom.Rect, len(s.Rects))
	for _, r := range s.Rects {
		byIndex[r.Index] = dom.Rect{Top: r.Top, Left: r.Left, Width: r.Width, Height: r.Height}
	}

	layout := dom.StaticLayout{}
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if v, ok := dom.Attr(n, idxAttr); ok {
				if i, err := strconv.Atoi(v); err == nil {
					if r, found := byIndex[i]; found {
						layout[n] = r
					}
				}
				_ = doc.RemoveAttribute(n, idxAttr)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc.Root())

	doc.SetLayout(layout)
	return doc, nil
}
