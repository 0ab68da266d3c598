package navigator

import (
	"net/url"
	"strings"

	"github.com/IshaanNene/PanelGoat/internal/config"
)

// Shape selects the extraction behavior for a site.
type Shape string

const (
	// ShapeAdminPanel enters the analytics view and extracts the metrics table.
	ShapeAdminPanel Shape = "admin_panel"
	// ShapeQuotes extracts .quote entries.
	ShapeQuotes Shape = "quotes"
	// ShapeGeneric extracts the title, headings and leading paragraphs.
	ShapeGeneric Shape = "generic"
)

// Route maps a URL pattern to a Shape.
type Route struct {
	Pattern string
	Shape   Shape
}

// Router is a static URL pattern table. The first route whose pattern is a
// substring of the URL's host and path wins; unmatched URLs are generic.
type Router struct {
	routes []Route
}

// NewRouter creates a router from routes in priority order.
func NewRouter(routes []Route) *Router {
	return &Router{routes: routes}
}

// RouterFromConfig builds a router from the routes config section.
func RouterFromConfig(routes []config.RouteConfig) *Router {
	out := make([]Route, 0, len(routes))
	for _, r := range routes {
		out = append(out, Route{Pattern: strings.ToLower(r.Pattern), Shape: Shape(r.Shape)})
	}
	return NewRouter(out)
}

// Match returns the shape for rawURL.
func (r *Router) Match(rawURL string) Shape {
	target := strings.ToLower(rawURL)
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		target = strings.ToLower(u.Host + u.Path)
	}
	for _, route := range r.routes {
		if route.Pattern != "" && strings.Contains(target, strings.ToLower(route.Pattern)) {
			return route.Shape
		}
	}
	return ShapeGeneric
}
