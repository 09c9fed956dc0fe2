// Package preload inserts <link rel="preload"> hints for critical resources
// once the page has spare capacity.
package preload

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/net/html"

	"github.com/conneroisu/perfguard/internal/dom"
	perrors "github.com/conneroisu/perfguard/internal/errors"
	"github.com/conneroisu/perfguard/internal/logging"
	"github.com/conneroisu/perfguard/internal/platform"
)

// Type is the kind of resource being preloaded.
type Type string

const (
	TypeImage  Type = "image"
	TypeStyle  Type = "style"
	TypeScript Type = "script"
	TypeFont   Type = "font"
)

// As returns the value of the link "as" attribute for t.
func (t Type) As() (string, bool) {
	switch t {
	case TypeImage, TypeStyle, TypeScript, TypeFont:
		return string(t), true
	default:
		return "", false
	}
}

// Resource describes one critical resource.
type Resource struct {
	URL  string `json:"url" yaml:"url" mapstructure:"url"`
	Type Type   `json:"type" yaml:"type" mapstructure:"type"`
}

// Defaults for scheduling.
const (
	DefaultIdleTimeout   = 2 * time.Second
	DefaultFallbackDelay = time.Second
)

// Options tunes scheduling.
type Options struct {
	IdleTimeout   time.Duration
	FallbackDelay time.Duration
}

// Preloader adds preload hints to the document head.
type Preloader struct {
	doc       dom.Document
	scheduler platform.Scheduler
	logger    logging.Logger
	opts      Options
}

// New creates a preloader. doc should be the page facade so that writes are
// visible to any installed guard.
func New(doc dom.Document, scheduler platform.Scheduler, logger logging.Logger, opts Options) *Preloader {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = DefaultIdleTimeout
	}
	if opts.FallbackDelay <= 0 {
		opts.FallbackDelay = DefaultFallbackDelay
	}
	return &Preloader{
		doc:       doc,
		scheduler: scheduler,
		logger:    logger.WithComponent("preload"),
		opts:      opts,
	}
}

// PreloadCriticalResources schedules Apply for idle time, bounded by the idle
// timeout. Without idle scheduling it runs after the fallback delay.
func (p *Preloader) PreloadCriticalResources(resources []Resource) {
	if len(resources) == 0 {
		return
	}
	resources = append([]Resource(nil), resources...)
	ctx := context.Background()

	if p.scheduler == nil {
		p.logger.Debug(ctx, "No scheduler available, preloading immediately")
		p.Apply(resources)
		return
	}

	_, err := p.scheduler.RequestIdle(func(didTimeout bool) {
		if didTimeout {
			p.logger.Debug(ctx, "Idle timeout reached, preloading anyway")
		}
		p.Apply(resources)
	}, p.opts.IdleTimeout)
	if err == nil {
		return
	}

	p.logger.Debug(ctx, "Idle scheduling unavailable, using fixed delay",
		"delay_ms", p.opts.FallbackDelay.Milliseconds(), "reason", err.Error())
	p.scheduler.AfterFunc(p.opts.FallbackDelay, func() { p.Apply(resources) })
}

// Apply inserts a preload link for every resource not already hinted and
// returns how many links were added. It must run on the event loop.
func (p *Preloader) Apply(resources []Resource) int {
	ctx := context.Background()
	head := p.doc.Head()
	if head == nil {
		p.logger.Warn(ctx, perrors.NewElementError(perrors.ErrCodeMissingElement, "document has no head", nil),
			"Skipping preload")
		return 0
	}

	existing, err := p.existingHrefs()
	if err != nil {
		p.logger.Warn(ctx, err, "Could not inspect existing preload links")
		return 0
	}

	added := 0
	for _, r := range resources {
		as, ok := r.Type.As()
		if !ok {
			p.logger.Warn(ctx, perrors.NewValidationError(perrors.ErrCodeValidationFailed,
				fmt.Sprintf("unknown resource type %q", r.Type)), "Skipping resource", "url", r.URL)
			continue
		}
		if r.URL == "" || existing[r.URL] {
			continue
		}
		if err := p.insert(head, r, as); err != nil {
			p.logger.Warn(ctx, err, "Preload link insertion failed", "url", r.URL)
			continue
		}
		existing[r.URL] = true
		added++
	}
	if added > 0 {
		p.logger.Debug(ctx, "Preload hints added", "count", added)
	}
	return added
}

func (p *Preloader) existingHrefs() (map[string]bool, error) {
	links, err := p.doc.QuerySelectorAll(`link[rel="preload"]`)
	if err != nil {
		return nil, err
	}
	hrefs := make(map[string]bool, len(links))
	for _, l := range links {
		if href, ok := p.doc.GetAttribute(l, "href"); ok {
			hrefs[href] = true
		}
	}
	return hrefs, nil
}

func (p *Preloader) insert(head *html.Node, r Resource, as string) error {
	link := p.doc.CreateElement("link")
	attrs := [][2]string{{"rel", "preload"}, {"href", r.URL}, {"as", as}}
	if r.Type == TypeFont {
		attrs = append(attrs, [2]string{"crossorigin", "anonymous"})
	}
	for _, a := range attrs {
		if err := p.doc.SetAttribute(link, a[0], a[1]); err != nil {
			return err
		}
	}
	return p.doc.AppendChild(head, link)
}
