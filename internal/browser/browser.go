// Package browser defines the headless browser capability the scraper drives
// and ships two drivers for it: a Rod-backed Chromium driver and a static,
// JavaScript-free driver built on goquery and htmlquery.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/IshaanNene/PanelGoat/internal/config"
)

// Kind selects the expression language of a Locator.
type Kind string

const (
	KindCSS   Kind = "css"
	KindXPath Kind = "xpath"
)

// Locator matches live elements. When Text is set, a matching element must
// also contain Text in its rendered text (case-insensitive).
type Locator struct {
	Kind Kind
	Expr string
	Text string
}

// CSS builds a CSS locator.
func CSS(expr string) Locator { return Locator{Kind: KindCSS, Expr: expr} }

// CSSText builds a CSS locator that also requires the element text to contain text.
func CSSText(expr, text string) Locator { return Locator{Kind: KindCSS, Expr: expr, Text: text} }

// XPath builds an XPath locator.
func XPath(expr string) Locator { return Locator{Kind: KindXPath, Expr: expr} }

func (l Locator) String() string {
	kind := l.Kind
	if kind == "" {
		kind = KindCSS
	}
	if l.Text != "" {
		return fmt.Sprintf("%s:%s:has-text(%q)", kind, l.Expr, l.Text)
	}
	return fmt.Sprintf("%s:%s", kind, l.Expr)
}

// WaitPolicy controls when Navigate considers a page loaded.
type WaitPolicy int

const (
	// WaitLoad waits for the load event.
	WaitLoad WaitPolicy = iota
	// WaitNetworkIdle additionally waits until network activity stops.
	WaitNetworkIdle
)

// Driver acquires browser sessions.
type Driver interface {
	// Open starts a session and returns its page. Closing the page releases
	// the whole session.
	Open(ctx context.Context) (Page, error)

	// Name returns the driver identifier.
	Name() string
}

// Page is a live document in a browser session.
type Page interface {
	// Navigate loads url. A settle timeout returns types.ErrSettleTimeout
	// after the document has been loaded as far as it got.
	Navigate(ctx context.Context, url string, wait WaitPolicy) error

	// WaitFor polls for an element matching loc until ctx is done.
	// It returns types.ErrNotFound when nothing matched in time.
	WaitFor(ctx context.Context, loc Locator) (Element, error)

	// Query returns the first element matching the CSS selector without
	// waiting, or types.ErrNotFound.
	Query(ctx context.Context, css string) (Element, error)

	// QueryAll returns all elements matching the CSS selector without waiting.
	QueryAll(ctx context.Context, css string) ([]Element, error)

	Title(ctx context.Context) (string, error)
	HTML(ctx context.Context) (string, error)
	URL() string

	// Close releases the page and its session.
	Close() error
}

// Element is a handle to a node resolved at some point in time. It is not
// guaranteed to stay valid after the page navigates or mutates.
type Element interface {
	Fill(ctx context.Context, text string) error
	Click(ctx context.Context) error
	Text(ctx context.Context) (string, error)
	Attribute(ctx context.Context, name string) (string, bool, error)

	// NextSiblingText returns the text of the next element sibling.
	NextSiblingText(ctx context.Context) (string, bool, error)

	Query(ctx context.Context, css string) (Element, error)
	QueryAll(ctx context.Context, css string) ([]Element, error)
}

// NewDriver creates the driver selected by cfg.Driver.
func NewDriver(cfg *config.BrowserConfig, logger *slog.Logger) (Driver, error) {
	switch cfg.Driver {
	case "rod":
		return NewRodDriver(cfg, logger), nil
	case "static":
		return NewStaticDriver(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unsupported browser driver: %s", cfg.Driver)
	}
}

// Settle waits d, the fixed delay that lets a page finish asynchronous
// updates after an action. It returns early with ctx.Err() on cancellation.
func Settle(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
