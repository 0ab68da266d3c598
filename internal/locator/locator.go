// Package locator resolves an element from an ordered list of alternative
// locators. Lists are data: the catalog below holds the defaults for the
// admin panel and every list can be replaced from configuration.
package locator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/IshaanNene/PanelGoat/internal/browser"
	"github.com/IshaanNene/PanelGoat/internal/types"
)

// List is an ordered locator list. Earlier entries have priority.
type List []browser.Locator

// Resolve tries each locator in order, giving each its own timeout, and
// returns the first element found with its index in list. When nothing
// matches it returns types.ErrNotFound. Cancellation of ctx itself is
// returned as ctx.Err(), never as ErrNotFound.
func Resolve(ctx context.Context, page browser.Page, list List, timeout time.Duration) (browser.Element, int, error) {
	for i, loc := range list {
		if err := ctx.Err(); err != nil {
			return nil, -1, err
		}

		el, err := waitOne(ctx, page, loc, timeout)
		if err == nil {
			return el, i, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, -1, ctxErr
		}
		// Any other failure, including a malformed expression, only
		// disqualifies this entry.
	}
	return nil, -1, fmt.Errorf("%w: none of %d locators matched", types.ErrNotFound, len(list))
}

func waitOne(ctx context.Context, page browser.Page, loc browser.Locator, timeout time.Duration) (browser.Element, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return page.WaitFor(attemptCtx, loc)
}

// Present reports whether any locator in list matches within timeout.
func Present(ctx context.Context, page browser.Page, list List, timeout time.Duration) (bool, error) {
	_, _, err := Resolve(ctx, page, list, timeout)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, types.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}
