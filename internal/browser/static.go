package browser

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/IshaanNene/PanelGoat/internal/config"
	"github.com/IshaanNene/PanelGoat/internal/types"
)

// StaticDriver implements Driver without JavaScript: pages are fetched over
// HTTP and queried with goquery (CSS) and htmlquery (XPath). Clicking an
// anchor follows its href and clicking a submit control submits its form.
type StaticDriver struct {
	cfg    *config.BrowserConfig
	logger *slog.Logger
}

// NewStaticDriver creates a static driver.
func NewStaticDriver(cfg *config.BrowserConfig, logger *slog.Logger) *StaticDriver {
	return &StaticDriver{
		cfg:    cfg,
		logger: logger.With("component", "static_driver"),
	}
}

// Name returns the driver identifier.
func (d *StaticDriver) Name() string { return "static" }

// Open starts a session with a fresh cookie jar and a blank document.
func (d *StaticDriver) Open(ctx context.Context) (Page, error) {
	client, err := newSessionClient(d.cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrBrowserUnavailable, err)
	}
	p := &StaticPage{
		client:      client,
		userAgent:   d.cfg.UserAgent,
		maxBodySize: d.cfg.MaxBodySize,
		logger:      d.logger,
	}
	if err := p.setContent(nil, []byte("<html><head></head><body></body></html>")); err != nil {
		return nil, err
	}
	return p, nil
}

// OpenDocument wraps an already-captured HTML document, e.g. a saved page,
// in a Page. Links and forms resolve against pageURL.
func OpenDocument(pageURL string, r io.Reader, logger *slog.Logger) (*StaticPage, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var base *url.URL
	if pageURL != "" {
		if base, err = url.Parse(pageURL); err != nil {
			return nil, fmt.Errorf("parse page URL: %w", err)
		}
	}
	p := &StaticPage{
		client: http.DefaultClient,
		logger: logger.With("component", "static_driver"),
	}
	if err := p.setContent(base, data); err != nil {
		return nil, err
	}
	return p, nil
}

// StaticPage is a parsed, immutable-until-navigation HTML document.
type StaticPage struct {
	client      *http.Client
	userAgent   string
	maxBodySize int64
	logger      *slog.Logger

	url *url.URL
	doc *goquery.Document
}

func (p *StaticPage) setContent(u *url.URL, data []byte) error {
	root, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("parse document: %w", err)
	}
	p.doc = goquery.NewDocumentFromNode(root)
	p.url = u
	return nil
}

// Navigate loads rawURL, resolved against the current document. file://
// URLs are read from disk. Wait policies are satisfied once the body is read.
func (p *StaticPage) Navigate(ctx context.Context, rawURL string, _ WaitPolicy) error {
	target, err := p.resolve(rawURL)
	if err != nil {
		return err
	}

	if target.Scheme == "file" {
		data, err := os.ReadFile(target.Path)
		if err != nil {
			return err
		}
		return p.setContent(target, data)
	}

	body, final, err := p.fetch(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	p.logger.Debug("document loaded", "url", final.String(), "size", len(body))
	return p.setContent(final, body)
}

func (p *StaticPage) resolve(rawURL string) (*url.URL, error) {
	ref, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}
	if p.url != nil {
		ref = p.url.ResolveReference(ref)
	}
	ref.Fragment = ""
	return ref, nil
}

// WaitFor evaluates loc once; a static document never changes while waiting.
func (p *StaticPage) WaitFor(ctx context.Context, loc Locator) (Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", types.ErrNotFound, loc, err)
	}
	sel, err := p.find(p.doc.Selection, loc)
	if err != nil {
		return nil, err
	}
	if sel.Length() == 0 {
		return nil, fmt.Errorf("%w: %s", types.ErrNotFound, loc)
	}
	return &staticElement{page: p, sel: sel.First()}, nil
}

// find evaluates loc within scope.
func (p *StaticPage) find(scope *goquery.Selection, loc Locator) (*goquery.Selection, error) {
	var sel *goquery.Selection
	switch loc.Kind {
	case KindXPath:
		var nodes []*html.Node
		for _, n := range scope.Nodes {
			found, err := htmlquery.QueryAll(n, loc.Expr)
			if err != nil {
				return nil, fmt.Errorf("invalid xpath %q: %w", loc.Expr, err)
			}
			nodes = append(nodes, found...)
		}
		sel = p.doc.FindNodes(nodes...)
	default:
		sel = scope.Find(loc.Expr)
	}

	if loc.Text != "" {
		sel = sel.FilterFunction(func(_ int, s *goquery.Selection) bool {
			return containsFold(s.Text(), loc.Text)
		})
	}
	return sel, nil
}

func (p *StaticPage) Query(ctx context.Context, css string) (Element, error) {
	return queryFirst(p, p.doc.Selection, css)
}

func (p *StaticPage) QueryAll(ctx context.Context, css string) ([]Element, error) {
	return wrapSelection(p, p.doc.Find(css)), nil
}

func (p *StaticPage) Title(ctx context.Context) (string, error) {
	return normalizeText(p.doc.Find("title").First().Text()), nil
}

func (p *StaticPage) HTML(ctx context.Context) (string, error) {
	return p.doc.Html()
}

func (p *StaticPage) URL() string {
	if p.url == nil {
		return ""
	}
	return p.url.String()
}

func (p *StaticPage) Close() error {
	if p.client != nil && p.client != http.DefaultClient {
		p.client.CloseIdleConnections()
	}
	return nil
}

// submit sends form the way a browser would when submitter is activated.
func (p *StaticPage) submit(ctx context.Context, form, submitter *goquery.Selection) error {
	action, _ := form.Attr("action")
	target, err := p.resolve(action)
	if err != nil {
		return err
	}

	values := formValues(form, submitter)
	method := strings.ToUpper(strings.TrimSpace(form.AttrOr("method", http.MethodGet)))

	var body []byte
	var final *url.URL
	if method == http.MethodPost {
		body, final, err = p.fetch(ctx, http.MethodPost, target, values)
	} else {
		target.RawQuery = values.Encode()
		body, final, err = p.fetch(ctx, http.MethodGet, target, nil)
	}
	if err != nil {
		return fmt.Errorf("submit form: %w", err)
	}
	p.logger.Debug("form submitted", "method", method, "url", final.String())
	return p.setContent(final, body)
}

// formValues collects the successful controls of form.
func formValues(form, submitter *goquery.Selection) url.Values {
	values := url.Values{}
	form.Find("input, select, textarea").Each(func(_ int, s *goquery.Selection) {
		name, ok := s.Attr("name")
		if !ok || name == "" {
			return
		}
		if _, disabled := s.Attr("disabled"); disabled {
			return
		}

		switch goquery.NodeName(s) {
		case "textarea":
			values.Add(name, s.AttrOr("value", s.Text()))
		case "select":
			opt := s.Find("option[selected]").First()
			if opt.Length() == 0 {
				opt = s.Find("option").First()
			}
			if opt.Length() > 0 {
				values.Add(name, opt.AttrOr("value", normalizeText(opt.Text())))
			}
		default:
			switch strings.ToLower(s.AttrOr("type", "text")) {
			case "submit", "button", "image", "reset":
				return
			case "checkbox", "radio":
				if _, checked := s.Attr("checked"); !checked {
					return
				}
				values.Add(name, s.AttrOr("value", "on"))
			default:
				values.Add(name, s.AttrOr("value", ""))
			}
		}
	})

	if submitter != nil {
		if name := submitter.AttrOr("name", ""); name != "" {
			values.Add(name, submitter.AttrOr("value", ""))
		}
	}
	return values
}

// staticElement implements Element over a single-node goquery selection.
type staticElement struct {
	page *StaticPage
	sel  *goquery.Selection
}

func (e *staticElement) Fill(ctx context.Context, text string) error {
	if goquery.NodeName(e.sel) == "textarea" {
		e.sel.SetText(text)
	}
	e.sel.SetAttr("value", text)
	return nil
}

// Click follows anchors and submits forms. Other elements have no effect
// without JavaScript.
func (e *staticElement) Click(ctx context.Context) error {
	node := goquery.NodeName(e.sel)

	if node == "a" {
		if href, ok := e.sel.Attr("href"); ok && !strings.HasPrefix(strings.TrimSpace(href), "javascript:") {
			return e.page.Navigate(ctx, href, WaitLoad)
		}
	}

	if isSubmitControl(e.sel) {
		form := e.sel.Closest("form")
		if form.Length() > 0 {
			return e.page.submit(ctx, form, e.sel)
		}
	}

	e.page.logger.Debug("click has no effect without javascript", "element", node)
	return nil
}

func isSubmitControl(s *goquery.Selection) bool {
	typ := strings.ToLower(s.AttrOr("type", ""))
	switch goquery.NodeName(s) {
	case "button":
		return typ == "" || typ == "submit"
	case "input":
		return typ == "submit" || typ == "image"
	}
	return false
}

func (e *staticElement) Text(ctx context.Context) (string, error) {
	return normalizeText(e.sel.Text()), nil
}

func (e *staticElement) Attribute(ctx context.Context, name string) (string, bool, error) {
	v, ok := e.sel.Attr(name)
	return v, ok, nil
}

func (e *staticElement) NextSiblingText(ctx context.Context) (string, bool, error) {
	next := e.sel.Next()
	if next.Length() == 0 {
		return "", false, nil
	}
	return next.Text(), true, nil
}

func (e *staticElement) Query(ctx context.Context, css string) (Element, error) {
	return queryFirst(e.page, e.sel, css)
}

func (e *staticElement) QueryAll(ctx context.Context, css string) ([]Element, error) {
	return wrapSelection(e.page, e.sel.Find(css)), nil
}

func queryFirst(p *StaticPage, scope *goquery.Selection, css string) (Element, error) {
	sel := scope.Find(css)
	if sel.Length() == 0 {
		return nil, fmt.Errorf("%w: %s", types.ErrNotFound, css)
	}
	return &staticElement{page: p, sel: sel.First()}, nil
}

func wrapSelection(p *StaticPage, sel *goquery.Selection) []Element {
	out := make([]Element, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		out = append(out, &staticElement{page: p, sel: s})
	})
	return out
}

// normalizeText approximates innerText: whitespace runs collapse to one space.
func normalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
