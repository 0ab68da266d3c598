package locator

import (
	"github.com/IshaanNene/PanelGoat/internal/browser"
	"github.com/IshaanNene/PanelGoat/internal/config"
)

// Catalog names, also the keys of the locators config section.
const (
	Username  = "username"
	Password  = "password"
	Submit    = "submit"
	LoggedIn  = "logged_in"
	Analytics = "analytics"
)

// Catalog holds the locator lists used by login and navigation.
type Catalog struct {
	Username  List
	Password  List
	Submit    List
	LoggedIn  List
	Analytics List
}

// DefaultCatalog returns the built-in lists for the admin panel.
func DefaultCatalog() *Catalog {
	css, text := browser.CSS, browser.CSSText
	return &Catalog{
		Username: List{
			css(`input[name="username"]`),
			css(`input[name="email"]`),
			css(`input[type="email"]`),
			css(`input[id*="username"]`),
			css(`input[id*="email"]`),
			css(`input[placeholder*="username"]`),
			css(`input[placeholder*="email"]`),
		},
		Password: List{
			css(`input[name="password"]`),
			css(`input[type="password"]`),
			css(`input[id*="password"]`),
			css(`input[placeholder*="password"]`),
		},
		Submit: List{
			css(`a[href*="login"]`),
			css(`button[class*="login"]`),
			css(`a[class*="login"]`),
			css(`[data-testid="login"]`),
			css(`.login-button`),
			css(`#login-button`),
			text("a", "Login"),
			text("button", "Login"),
			text("a", "Sign In"),
			text("button", "Sign In"),
			css(`button[type="submit"]`),
			css(`input[type="submit"]`),
		},
		LoggedIn: List{
			css(`a[href*="logout"]`),
			text("button", "Logout"),
			text("a", "Logout"),
			css(`.user-menu`),
			css(`.profile-menu`),
		},
		Analytics: List{
			css(`a[href*="analytics"]`),
			css(`button[class*="analytics"]`),
			css(`a[class*="analytics"]`),
			css(`[data-testid="analytics"]`),
			css(`.analytics-button`),
			css(`#analytics-button`),
			text("a", "Analytics"),
			text("button", "Analytics"),
			text("li", "Analytics"),
			text("nav a", "Analytics"),
			text(".sidebar a", "Analytics"),
			text(".menu a", "Analytics"),
		},
	}
}

// FromConfig returns the default catalog with every list named in overrides
// replaced wholesale. Unknown names are ignored.
func FromConfig(overrides map[string][]config.LocatorConfig) *Catalog {
	c := DefaultCatalog()
	for name, entries := range overrides {
		if len(entries) == 0 {
			continue
		}
		list := fromEntries(entries)
		switch name {
		case Username:
			c.Username = list
		case Password:
			c.Password = list
		case Submit:
			c.Submit = list
		case LoggedIn:
			c.LoggedIn = list
		case Analytics:
			c.Analytics = list
		}
	}
	return c
}

func fromEntries(entries []config.LocatorConfig) List {
	list := make(List, 0, len(entries))
	for _, e := range entries {
		kind := browser.KindCSS
		if e.Kind == string(browser.KindXPath) {
			kind = browser.KindXPath
		}
		list = append(list, browser.Locator{Kind: kind, Expr: e.Expr, Text: e.Text})
	}
	return list
}
