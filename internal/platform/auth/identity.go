// Package auth carries the caller identity supplied by the external identity
// provider. Tokens are decoded, not verified: credential checks belong to
// the provider in front of this service.
package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// Role is the capability tag of the caller.
type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
	RoleAdmin   Role = "admin"
)

var validRoles = map[Role]bool{RolePatient: true, RoleDoctor: true, RoleAdmin: true}

// User is the identity attached to a request.
type User struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// Anonymous reports whether no identity was supplied.
func (u User) Anonymous() bool { return u.ID == "" }

type contextKey string

const userKey contextKey = "user"

// Header names accepted when no bearer token is present.
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
)

// Claims is the token payload read by IdentityMiddleware.
type Claims struct {
	jwt.RegisteredClaims
	Role  string   `json:"role"`
	Roles []string `json:"roles"`
}

// WithUser returns ctx carrying u.
func WithUser(ctx context.Context, u User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

// UserFromContext returns the identity on ctx, or the zero User.
func UserFromContext(ctx context.Context) User {
	u, _ := ctx.Value(userKey).(User)
	return u
}

// IdentityMiddleware resolves the caller from a bearer token's sub/role
// claims, falling back to the X-User-ID and X-User-Role headers. Requests
// without either pass through anonymously; a malformed token or unknown
// role is rejected with 401. Public infrastructure routes are not inspected.
func IdentityMiddleware() echo.MiddlewareFunc {
	parser := jwt.NewParser()
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if Skipper(c) {
				return next(c)
			}
			req := c.Request()
			var u User

			if authHeader := req.Header.Get("Authorization"); authHeader != "" {
				parts := strings.SplitN(authHeader, " ", 2)
				if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
					return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
				}
				claims := &Claims{}
				if _, _, err := parser.ParseUnverified(parts[1], claims); err != nil {
					return echo.NewHTTPError(http.StatusUnauthorized, "malformed token")
				}
				u.ID = claims.Subject
				u.Role = Role(claims.Role)
				if u.Role == "" && len(claims.Roles) > 0 {
					u.Role = Role(claims.Roles[0])
				}
			} else {
				u.ID = strings.TrimSpace(req.Header.Get(HeaderUserID))
				u.Role = Role(strings.ToLower(strings.TrimSpace(req.Header.Get(HeaderUserRole))))
			}

			if u.ID != "" && !validRoles[u.Role] {
				return echo.NewHTTPError(http.StatusUnauthorized, "unknown role")
			}
			if !u.Anonymous() {
				c.Set("user_id", u.ID)
				c.SetRequest(req.WithContext(WithUser(req.Context(), u)))
			}
			return next(c)
		}
	}
}
