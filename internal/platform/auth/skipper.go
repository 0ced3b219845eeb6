package auth

import (
	"strings"

	"github.com/labstack/echo/v4"
)

// Routes is a list of route patterns. A pattern ending in "/*" matches
// everything below that prefix; any other pattern must match exactly.
type Routes []string

// Match reports whether route is covered by one of the patterns.
func (r Routes) Match(route string) bool {
	for _, p := range r {
		if prefix, ok := strings.CutSuffix(p, "*"); ok {
			if strings.HasPrefix(route, prefix) {
				return true
			}
			continue
		}
		if p == route {
			return true
		}
	}
	return false
}

// PublicRoutes are served without resolving an identity.
var PublicRoutes = Routes{"/health", "/health/*", "/metrics"}

// Skipper reports whether the matched route bypasses identity resolution.
func Skipper(c echo.Context) bool {
	return PublicRoutes.Match(c.Path())
}
