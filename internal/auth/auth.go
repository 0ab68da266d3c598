// Package auth performs a form login against the current page.
package auth

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

// Status is the kind of a login outcome.
type Status string

const (
	StatusSuccess       Status = "success"
	StatusFieldNotFound Status = "field_not_found"
	StatusIndeterminate Status = "indeterminate"
	StatusSkipped       Status = "skipped"
)

// Outcome is the result of a login attempt. Field is set only for
// StatusFieldNotFound and names the missing control.
type Outcome struct {
	Status Status
	Field  string
}

func (o Outcome) String() string {
	if o.Status == StatusFieldNotFound {
		return fmt.Sprintf("%s(%s)", o.Status, o.Field)
	}
	return string(o.Status)
}

// Err returns the FieldNotFoundError for a FieldNotFound outcome, nil otherwise.
func (o Outcome) Err() error {
	if o.Status == StatusFieldNotFound {
		return &types.FieldNotFoundError{Field: o.Field}
	}
	return nil
}

// Credentials for the login form.
type Credentials struct {
	Username string
	Password string
}

// Empty reports whether either credential is missing.
func (c Credentials) Empty() bool {
	return c.Username == "" || c.Password == ""
}

// Timing bounds every wait the authenticator performs.
type Timing struct {
	// Locator is the budget for each individual locator attempt.
	Locator time.Duration
	// Settle is the fixed delay after activating the submit control.
	Settle time.Duration
	// Indicator is the budget for each logged-in indicator probe.
	Indicator time.Duration
}

// Authenticator fills and submits a login form.
type Authenticator struct {
	catalog *locator.Catalog
	timing  Timing
	logger  *slog.Logger

	// sleep is replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates an Authenticator using the catalog's username, password,
// submit and logged-in lists.
func New(catalog *locator.Catalog, timing Timing, logger *slog.Logger) *Authenticator {
	return &Authenticator{
		catalog: catalog,
		timing:  timing,
		logger:  logger.With("component", "auth"),
		sleep:   browser.Settle,
	}
}

// Login fills the username and password fields, then resolves and activates
// the submit control, waits the settle delay and probes for a logged-in
// indicator. A missing form control aborts before anything is submitted.
// Errors are returned only for browser failures and cancellation.
func (a *Authenticator) Login(ctx context.Context, page browser.Page, creds Credentials) (Outcome, error) {
	if creds.Empty() {
		a.logger.Info("no credentials configured, skipping login")
		return Outcome{Status: StatusSkipped}, nil
	}

	if out, err := a.fill(ctx, page, a.catalog.Username, types.FieldUsername, creds.Username); out != nil || err != nil {
		return deref(out), err
	}
	if out, err := a.fill(ctx, page, a.catalog.Password, types.FieldPassword, creds.Password); out != nil || err != nil {
		return deref(out), err
	}

	// Some forms only render the submit control once both fields hold a value.
	submit, idx, err := locator.Resolve(ctx, page, a.catalog.Submit, a.timing.Locator)
	if err != nil {
		return a.notFound(types.FieldSubmit, err)
	}
	a.logger.Debug("submit control resolved", "locator", a.catalog.Submit[idx].String())

	if err := submit.Click(ctx); err != nil {
		return Outcome{}, fmt.Errorf("activate submit: %w", err)
	}
	if err := a.sleep(ctx, a.timing.Settle); err != nil {
		return Outcome{}, err
	}

	ok, err := locator.Present(ctx, page, a.catalog.LoggedIn, a.timing.Indicator)
	if err != nil {
		return Outcome{}, err
	}
	if !ok {
		a.logger.Warn("login indicator not found, continuing", "url", page.URL())
		return Outcome{Status: StatusIndeterminate}, nil
	}

	a.logger.Info("login successful", "url", page.URL())
	return Outcome{Status: StatusSuccess}, nil
}

// fill resolves a form field and types value into it. A non-nil outcome
// means the field was not found.
func (a *Authenticator) fill(ctx context.Context, page browser.Page, list locator.List, field, value string) (*Outcome, error) {
	el, idx, err := locator.Resolve(ctx, page, list, a.timing.Locator)
	if err != nil {
		out, err := a.notFound(field, err)
		if err != nil {
			return nil, err
		}
		return &out, nil
	}
	a.logger.Debug("login field resolved", "field", field, "locator", list[idx].String())

	if err := el.Fill(ctx, value); err != nil {
		return nil, fmt.Errorf("fill %s: %w", field, err)
	}
	return nil, nil
}

func (a *Authenticator) notFound(field string, err error) (Outcome, error) {
	if !errors.Is(err, types.ErrNotFound) {
		return Outcome{}, err
	}
	a.logger.Warn("login form field not found", "field", field)
	return Outcome{Status: StatusFieldNotFound, Field: field}, nil
}

func deref(o *Outcome) Outcome {
	if o == nil {
		return Outcome{}
	}
	return *o
}
