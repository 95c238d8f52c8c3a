package auth

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

type contextKey string

const (
	UserIDKey    contextKey = "user_id"
	UserRolesKey contextKey = "user_roles"
)

// Claims are the token claims the service reads. Roles may be issued at the
// top level or, as Keycloak does, under realm_access.
type Claims struct {
	jwt.RegisteredClaims
	PreferredUsername string      `json:"preferred_username,omitempty"`
	Email             string      `json:"email,omitempty"`
	Roles             []string    `json:"roles,omitempty"`
	RealmAccess       RealmAccess `json:"realm_access,omitempty"`
}

type RealmAccess struct {
	Roles []string `json:"roles,omitempty"`
}

// EffectiveRoles returns the lower-cased roles, preferring the top-level claim.
func (c *Claims) EffectiveRoles() []string {
	src := c.Roles
	if len(src) == 0 {
		src = c.RealmAccess.Roles
	}
	roles := make([]string, 0, len(src))
	for _, r := range src {
		roles = append(roles, strings.ToLower(strings.TrimPrefix(r, "ROLE_")))
	}
	return roles
}

type JWTConfig struct {
	Issuer   string
	Audience string
	JWKSURL  string
	// SigningKey is used for development/testing only
	SigningKey []byte
}

// JWTMiddleware verifies bearer tokens. With a SigningKey tokens are HS256;
// otherwise RS256 keys come from JWKSURL, discovered from Issuer when unset.
func JWTMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	keyfunc := jwtKeyfunc(cfg)

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256"})}
	if len(cfg.SigningKey) == 0 {
		opts = []jwt.ParserOption{jwt.WithValidMethods([]string{"RS256"})}
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
			}

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(parts[1], claims, keyfunc, opts...)
			if err != nil || !token.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			if claims.Subject == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "token has no subject")
			}

			ctx := c.Request().Context()
			ctx = context.WithValue(ctx, UserIDKey, claims.Subject)
			ctx = context.WithValue(ctx, UserRolesKey, claims.EffectiveRoles())
			c.SetRequest(c.Request().WithContext(ctx))
			c.Set("user_id", claims.Subject)

			return next(c)
		}
	}
}

func jwtKeyfunc(cfg JWTConfig) jwt.Keyfunc {
	if len(cfg.SigningKey) > 0 {
		return func(*jwt.Token) (interface{}, error) { return cfg.SigningKey, nil }
	}

	var (
		mu   sync.Mutex
		keys *KeySet
	)
	return func(t *jwt.Token) (interface{}, error) {
		mu.Lock()
		if keys == nil {
			url := cfg.JWKSURL
			if url == "" {
				discovered, err := DiscoverJWKSURL(cfg.Issuer)
				if err != nil {
					mu.Unlock()
					return nil, err
				}
				url = discovered
			}
			keys = NewKeySet(url, defaultJWKSCacheTTL)
		}
		ks := keys
		mu.Unlock()
		return ks.Keyfunc(t)
	}
}

// DevAuthMiddleware is a permissive middleware for development. Requests
// without a token act as an admin "dev-user"; X-Dev-User and X-Dev-Roles
// override the identity so other roles can be exercised locally.
func DevAuthMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			subject := req.Header.Get("X-Dev-User")
			if subject == "" {
				subject = "dev-user"
			}
			roles := []string{RoleAdmin}
			if raw := req.Header.Get("X-Dev-Roles"); raw != "" {
				roles = roles[:0]
				for _, r := range strings.Split(raw, ",") {
					if r = strings.ToLower(strings.TrimSpace(r)); r != "" {
						roles = append(roles, r)
					}
				}
			}
			ctx := req.Context()
			ctx = context.WithValue(ctx, UserIDKey, subject)
			ctx = context.WithValue(ctx, UserRolesKey, roles)
			c.SetRequest(req.WithContext(ctx))
			c.Set("user_id", subject)
			return next(c)
		}
	}
}

func UserIDFromContext(ctx context.Context) string {
	uid, _ := ctx.Value(UserIDKey).(string)
	return uid
}

func RolesFromContext(ctx context.Context) []string {
	roles, _ := ctx.Value(UserRolesKey).([]string)
	return roles
}

