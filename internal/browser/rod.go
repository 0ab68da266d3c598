package browser

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/IshaanNene/PanelGoat/internal/config"
	"github.com/IshaanNene/PanelGoat/internal/types"
)

// requestIdleWindow is how long the network must stay quiet to count as idle.
const requestIdleWindow = 500 * time.Millisecond

// closeTimeout bounds tab and browser teardown. Close runs detached from the
// run context, which is often already cancelled by then.
const closeTimeout = 5 * time.Second

// RodDriver implements Driver with a headless Chromium controlled by Rod.
type RodDriver struct {
	cfg    *config.BrowserConfig
	logger *slog.Logger
}

// NewRodDriver creates a Rod-backed driver. No browser is started until Open.
func NewRodDriver(cfg *config.BrowserConfig, logger *slog.Logger) *RodDriver {
	return &RodDriver{
		cfg:    cfg,
		logger: logger.With("component", "rod_driver"),
	}
}

// Name returns the driver identifier.
func (d *RodDriver) Name() string { return "rod" }

// Open launches (or connects to) Chromium and opens a single page.
func (d *RodDriver) Open(ctx context.Context) (Page, error) {
	controlURL := d.cfg.RemoteURL

	var l *launcher.Launcher
	if controlURL == "" {
		l = d.launcher(ctx)
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("%w: launch browser: %v", types.ErrBrowserUnavailable, err)
		}
		controlURL = u
	}

	browser := rod.New().Context(ctx).ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		killLauncher(l)
		return nil, fmt.Errorf("%w: connect browser: %v", types.ErrBrowserUnavailable, err)
	}

	var page *rod.Page
	var err error
	if d.cfg.Stealth {
		page, err = stealth.Page(browser)
	} else {
		page, err = browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	}
	if err != nil {
		_ = browser.Close()
		killLauncher(l)
		return nil, fmt.Errorf("%w: open page: %v", types.ErrBrowserUnavailable, err)
	}

	// Set custom User-Agent if provided
	if ua := d.cfg.UserAgent; ua != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: ua}); err != nil {
			d.logger.Warn("failed to set user agent", "error", err)
		}
	}

	d.logger.Debug("browser session opened",
		"remote", d.cfg.RemoteURL != "",
		"stealth", d.cfg.Stealth,
		"headless", d.cfg.Headless,
	)

	return &rodPage{
		page:     page,
		browser:  browser,
		launcher: l,
		remote:   d.cfg.RemoteURL != "",
		logger:   d.logger,
	}, nil
}

// launcher configures a local Chromium launch.
func (d *RodDriver) launcher(ctx context.Context) *launcher.Launcher {
	l := launcher.New().
		Context(ctx).
		Headless(d.cfg.Headless).
		Set("disable-gpu").
		Set("disable-dev-shm-usage").
		Set("no-sandbox").
		Set("disable-setuid-sandbox").
		Set("disable-blink-features", "AutomationControlled")

	if d.cfg.Bin != "" {
		l = l.Bin(d.cfg.Bin)
	}
	if d.cfg.Proxy != "" {
		l = l.Proxy(d.cfg.Proxy)
	}
	if d.cfg.WindowSize != "" {
		l = l.Set("window-size", d.cfg.WindowSize)
	}
	return l
}

func killLauncher(l *launcher.Launcher) {
	if l == nil {
		return
	}
	l.Kill()
	l.Cleanup()
}

// rodPage implements Page over a Rod page.
type rodPage struct {
	page     *rod.Page
	browser  *rod.Browser
	launcher *launcher.Launcher
	remote   bool
	logger   *slog.Logger
}

func (p *rodPage) Navigate(ctx context.Context, url string, wait WaitPolicy) error {
	pg := p.page.Context(ctx)

	var waitIdle func()
	if wait == WaitNetworkIdle {
		waitIdle = pg.WaitRequestIdle(requestIdleWindow, nil, nil, nil)
	}

	if err := pg.Navigate(url); err != nil {
		return err
	}

	if err := pg.WaitLoad(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %v", types.ErrSettleTimeout, err)
		}
		return err
	}

	if waitIdle != nil {
		waitIdle()
		if ctx.Err() != nil {
			return fmt.Errorf("%w: network not idle: %v", types.ErrSettleTimeout, ctx.Err())
		}
	}
	return nil
}

func (p *rodPage) WaitFor(ctx context.Context, loc Locator) (Element, error) {
	pg := p.page.Context(ctx)

	var el *rod.Element
	var err error
	switch {
	case loc.Kind == KindXPath:
		el, err = pg.ElementX(loc.Expr)
		if err == nil && loc.Text != "" {
			text, terr := el.Text()
			if terr != nil || !containsFold(text, loc.Text) {
				err = fmt.Errorf("text %q not present", loc.Text)
			}
		}
	case loc.Text != "":
		el, err = pg.ElementR(loc.Expr, textPattern(loc.Text))
	default:
		el, err = pg.Element(loc.Expr)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", types.ErrNotFound, loc, err)
	}
	return &rodElement{el: el}, nil
}

func (p *rodPage) Query(ctx context.Context, css string) (Element, error) {
	els, err := p.page.Context(ctx).Elements(css)
	if err != nil {
		return nil, err
	}
	if len(els) == 0 {
		return nil, fmt.Errorf("%w: %s", types.ErrNotFound, css)
	}
	return &rodElement{el: els.First()}, nil
}

func (p *rodPage) QueryAll(ctx context.Context, css string) ([]Element, error) {
	els, err := p.page.Context(ctx).Elements(css)
	if err != nil {
		return nil, err
	}
	return wrapRodElements(els), nil
}

func (p *rodPage) Title(ctx context.Context) (string, error) {
	info, err := p.page.Context(ctx).Info()
	if err != nil {
		return "", err
	}
	return info.Title, nil
}

func (p *rodPage) HTML(ctx context.Context) (string, error) {
	return p.page.Context(ctx).HTML()
}

func (p *rodPage) URL() string {
	info, err := p.page.Info()
	if err != nil || info == nil {
		return ""
	}
	return info.URL
}

// Close closes the page and, for locally launched browsers, the browser
// process and its profile directory.
func (p *rodPage) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()

	err := p.page.Context(ctx).Close()
	if p.remote {
		p.logger.Debug("remote tab closed")
		return err
	}
	if cerr := p.browser.Context(ctx).Close(); cerr != nil && err == nil {
		err = cerr
	}
	killLauncher(p.launcher)
	p.logger.Debug("browser session closed")
	return err
}

// rodElement implements Element over a Rod element.
type rodElement struct {
	el *rod.Element
}

func (e *rodElement) Fill(ctx context.Context, text string) error {
	el := e.el.Context(ctx)
	_ = el.SelectAllText()
	return el.Input(text)
}

func (e *rodElement) Click(ctx context.Context) error {
	return e.el.Context(ctx).Click(proto.InputMouseButtonLeft, 1)
}

func (e *rodElement) Text(ctx context.Context) (string, error) {
	return e.el.Context(ctx).Text()
}

func (e *rodElement) Attribute(ctx context.Context, name string) (string, bool, error) {
	v, err := e.el.Context(ctx).Attribute(name)
	if err != nil {
		return "", false, err
	}
	if v == nil {
		return "", false, nil
	}
	return *v, true, nil
}

func (e *rodElement) NextSiblingText(ctx context.Context) (string, bool, error) {
	res, err := e.el.Context(ctx).Eval(`() => this.nextElementSibling ? this.nextElementSibling.textContent : null`)
	if err != nil {
		return "", false, err
	}
	if res.Value.Nil() {
		return "", false, nil
	}
	return res.Value.Str(), true, nil
}

func (e *rodElement) Query(ctx context.Context, css string) (Element, error) {
	els, err := e.el.Context(ctx).Elements(css)
	if err != nil {
		return nil, err
	}
	if len(els) == 0 {
		return nil, fmt.Errorf("%w: %s", types.ErrNotFound, css)
	}
	return &rodElement{el: els.First()}, nil
}

func (e *rodElement) QueryAll(ctx context.Context, css string) ([]Element, error) {
	els, err := e.el.Context(ctx).Elements(css)
	if err != nil {
		return nil, err
	}
	return wrapRodElements(els), nil
}

func wrapRodElements(els rod.Elements) []Element {
	out := make([]Element, len(els))
	for i, el := range els {
		out[i] = &rodElement{el: el}
	}
	return out
}

// textPattern builds the case-insensitive JS regex Rod's ElementR expects.
func textPattern(text string) string {
	return "/" + strings.ReplaceAll(regexp.QuoteMeta(text), "/", `\/`) + "/i"
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
