package locator

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IshaanNene/PanelGoat/internal/browser"
	"github.com/IshaanNene/PanelGoat/internal/browser/browsertest"
	"github.com/IshaanNene/PanelGoat/internal/config"
	"github.com/IshaanNene/PanelGoat/internal/types"
)

const budget = 20 * time.Millisecond

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func TestResolveFirstMatchWins(t *testing.T) {
	page := browsertest.NewPage()
	page.Add(browser.CSS("#b"), &browsertest.Element{Name: "b"})
	page.Add(browser.CSS("#c"), &browsertest.Element{Name: "c"})

	list := List{browser.CSS("#a"), browser.CSS("#b"), browser.CSS("#c")}
	el, idx, err := Resolve(context.Background(), page, list, budget)
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
	assert.Equal(t, "b", el.(*browsertest.Element).Name)

	// #a was tried first and given its own budget; #c was never tried.
	assert.Equal(t, []string{"wait css:#a", "wait css:#b"}, page.Events())
}

func TestResolveNothingMatches(t *testing.T) {
	page := browsertest.NewPage()
	list := List{browser.CSS("#a"), browser.CSS("#b")}

	start := time.Now()
	_, idx, err := Resolve(context.Background(), page, list, budget)
	assert.True(t, errors.Is(err, types.ErrNotFound))
	assert.Equal(t, -1, idx)
	assert.GreaterOrEqual(t, time.Since(start), 2*budget)
}

func TestResolveEmptyList(t *testing.T) {
	_, _, err := Resolve(context.Background(), browsertest.NewPage(), nil, budget)
	assert.True(t, errors.Is(err, types.ErrNotFound))
}

func TestResolveParentCancelled(t *testing.T) {
	page := browsertest.NewPage()
	ctx, cancel := context.WithTimeout(context.Background(), budget)
	defer cancel()

	list := List{browser.CSS("#a"), browser.CSS("#b"), browser.CSS("#c")}
	_, _, err := Resolve(ctx, page, list, time.Second)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.False(t, errors.Is(err, types.ErrNotFound))
	assert.Len(t, page.Events(), 1)
}

func TestResolveAgainstDocument(t *testing.T) {
	doc := `<form><input id="login-username"><input type="email" name="email"></form>`
	page, err := browser.OpenDocument("", strings.NewReader(doc), testLogger)
	require.NoError(t, err)

	_, idx, err := Resolve(context.Background(), page, DefaultCatalog().Username, budget)
	require.NoError(t, err)
	assert.Equal(t, 1, idx, "name=email outranks id*=username")
}

func TestPresent(t *testing.T) {
	page := browsertest.NewPage()
	ok, err := Present(context.Background(), page, List{browser.CSS(".user-menu")}, budget)
	require.NoError(t, err)
	assert.False(t, ok)

	page.Add(browser.CSS(".user-menu"), &browsertest.Element{Name: "menu"})
	ok, err = Present(context.Background(), page, List{browser.CSS(".user-menu")}, budget)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFromConfig(t *testing.T) {
	c := FromConfig(map[string][]config.LocatorConfig{
		Submit:    {{Kind: "xpath", Expr: "//button[@id='go']"}, {Expr: "a", Text: "Enter"}},
		"unknown": {{Expr: "div"}},
		Password:  nil,
	})

	require.Len(t, c.Submit, 2)
	assert.Equal(t, browser.XPath("//button[@id='go']"), c.Submit[0])
	assert.Equal(t, browser.CSSText("a", "Enter"), c.Submit[1])
	assert.Equal(t, DefaultCatalog().Password, c.Password)
	assert.Equal(t, DefaultCatalog().Username, c.Username)
}
