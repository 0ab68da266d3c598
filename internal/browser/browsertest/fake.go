// Package browsertest provides a scriptable in-memory browser.Page for tests
// that need to observe the exact sequence of interactions.
package browsertest

import (
	"context"
	"fmt"
	"sync"

	"github.com/IshaanNene/PanelGoat/internal/browser"
	"github.com/IshaanNene/PanelGoat/internal/types"
)

// Page is a fake browser.Page. Elements are registered per locator string;
// WaitFor on an unregistered locator blocks until ctx is done, like a real
// driver polling for a selector that never appears.
type Page struct {
	mu       sync.Mutex
	elements map[string]*Element
	events   []string
	url      string
	title    string
	html     string
	closed   bool

	// NavigateErr is returned by Navigate when set.
	NavigateErr error
	// OnNavigate runs after a successful Navigate.
	OnNavigate func(url string)
}

// NewPage returns an empty fake page.
func NewPage() *Page {
	return &Page{elements: make(map[string]*Element)}
}

// Add registers el under loc and returns it.
func (p *Page) Add(loc browser.Locator, el *Element) *Element {
	p.mu.Lock()
	defer p.mu.Unlock()
	el.page = p
	p.elements[loc.String()] = el
	return el
}

// Remove unregisters loc.
func (p *Page) Remove(loc browser.Locator) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.elements, loc.String())
}

// SetTitle sets the document title.
func (p *Page) SetTitle(title string) {
	p.mu.Lock()
	p.title = title
	p.mu.Unlock()
}

// SetHTML sets the serialized document.
func (p *Page) SetHTML(html string) {
	p.mu.Lock()
	p.html = html
	p.mu.Unlock()
}

// Events returns the recorded interactions in order.
func (p *Page) Events() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

// Closed reports whether Close was called.
func (p *Page) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Page) record(format string, args ...any) {
	p.mu.Lock()
	p.events = append(p.events, fmt.Sprintf(format, args...))
	p.mu.Unlock()
}

func (p *Page) Navigate(ctx context.Context, url string, wait browser.WaitPolicy) error {
	p.record("navigate %s", url)
	if p.NavigateErr != nil {
		return p.NavigateErr
	}
	p.mu.Lock()
	p.url = url
	p.mu.Unlock()
	if p.OnNavigate != nil {
		p.OnNavigate(url)
	}
	return nil
}

func (p *Page) WaitFor(ctx context.Context, loc browser.Locator) (browser.Element, error) {
	p.record("wait %s", loc)
	p.mu.Lock()
	el, ok := p.elements[loc.String()]
	p.mu.Unlock()
	if ok {
		return el, nil
	}
	<-ctx.Done()
	return nil, fmt.Errorf("%w: %s", types.ErrNotFound, loc)
}

func (p *Page) Query(ctx context.Context, css string) (browser.Element, error) {
	p.mu.Lock()
	el, ok := p.elements[browser.CSS(css).String()]
	p.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrNotFound, css)
	}
	return el, nil
}

func (p *Page) QueryAll(ctx context.Context, css string) ([]browser.Element, error) {
	el, err := p.Query(ctx, css)
	if err != nil {
		return nil, nil
	}
	return []browser.Element{el}, nil
}

func (p *Page) Title(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.title, nil
}

func (p *Page) HTML(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.html, nil
}

func (p *Page) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

func (p *Page) Close() error {
	p.record("close")
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

// Element is a fake browser.Element identified by Name in recorded events.
type Element struct {
	Name    string
	Value   string
	Content string
	Attrs   map[string]string
	Sibling *string

	// OnFill runs after the fill is recorded.
	OnFill func(text string)
	// OnClick runs after the click is recorded.
	OnClick func()
	// ClickErr is returned by Click when set.
	ClickErr error

	page *Page
}

func (e *Element) Fill(ctx context.Context, text string) error {
	e.page.record("fill %s", e.Name)
	e.Value = text
	if e.OnFill != nil {
		e.OnFill(text)
	}
	return nil
}

func (e *Element) Click(ctx context.Context) error {
	e.page.record("click %s", e.Name)
	if e.ClickErr != nil {
		return e.ClickErr
	}
	if e.OnClick != nil {
		e.OnClick()
	}
	return nil
}

func (e *Element) Text(ctx context.Context) (string, error) { return e.Content, nil }

func (e *Element) Attribute(ctx context.Context, name string) (string, bool, error) {
	v, ok := e.Attrs[name]
	return v, ok, nil
}

func (e *Element) NextSiblingText(ctx context.Context) (string, bool, error) {
	if e.Sibling == nil {
		return "", false, nil
	}
	return *e.Sibling, true, nil
}

func (e *Element) Query(ctx context.Context, css string) (browser.Element, error) {
	return nil, fmt.Errorf("%w: %s", types.ErrNotFound, css)
}

func (e *Element) QueryAll(ctx context.Context, css string) ([]browser.Element, error) {
	return nil, nil
}

// Driver hands out a fixed Page.
type Driver struct {
	Page    browser.Page
	OpenErr error
	Opened  int
}

func (d *Driver) Open(ctx context.Context) (browser.Page, error) {
	d.Opened++
	if d.OpenErr != nil {
		return nil, d.OpenErr
	}
	return d.Page, nil
}

func (d *Driver) Name() string { return "fake" }
