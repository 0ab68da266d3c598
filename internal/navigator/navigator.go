// Package navigator loads pages, enters views and decides which extraction
// shape applies to a URL.
package navigator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/IshaanNene/PanelGoat/internal/browser"
	"github.com/IshaanNene/PanelGoat/internal/locator"
	"github.com/IshaanNene/PanelGoat/internal/types"
)

// Navigator drives page loads and view transitions.
type Navigator struct {
	navTimeout     time.Duration
	locatorTimeout time.Duration
	logger         *slog.Logger
}

// New creates a Navigator. navTimeout bounds each page load and
// locatorTimeout each view locator attempt.
func New(navTimeout, locatorTimeout time.Duration, logger *slog.Logger) *Navigator {
	return &Navigator{
		navTimeout:     navTimeout,
		locatorTimeout: locatorTimeout,
		logger:         logger.With("component", "navigator"),
	}
}

// Open loads url and waits for the network to go idle. When the page loads
// but never settles the timeout is logged and Open succeeds with whatever
// rendered. Any other failure is a *types.NavigationError.
func (n *Navigator) Open(ctx context.Context, page browser.Page, url string) error {
	navCtx, cancel := context.WithTimeout(ctx, n.navTimeout)
	defer cancel()

	start := time.Now()
	err := page.Navigate(navCtx, url, browser.WaitNetworkIdle)
	switch {
	case err == nil:
		n.logger.Debug("page loaded", "url", url, "duration", time.Since(start))
		return nil
	case errors.Is(err, types.ErrSettleTimeout) && ctx.Err() == nil:
		n.logger.Warn("page did not settle, continuing with partial load",
			"url", url,
			"timeout", n.navTimeout,
		)
		return nil
	default:
		timeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, types.ErrSettleTimeout)
		return &types.NavigationError{URL: url, Timeout: timeout, Err: err}
	}
}

// EnterView activates the first control in list that resolves, then waits
// settle. It returns false when no control matched.
func (n *Navigator) EnterView(ctx context.Context, page browser.Page, list locator.List, settle time.Duration) (bool, error) {
	el, idx, err := locator.Resolve(ctx, page, list, n.locatorTimeout)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			n.logger.Warn("view control not found", "locators", len(list))
			return false, nil
		}
		return false, err
	}

	if err := el.Click(ctx); err != nil {
		return false, &types.NavigationError{URL: page.URL(), Err: fmt.Errorf("activate %s: %w", list[idx], err)}
	}
	if err := browser.Settle(ctx, settle); err != nil {
		return false, err
	}

	n.logger.Info("entered view", "locator", list[idx].String(), "url", page.URL())
	return true, nil
}
