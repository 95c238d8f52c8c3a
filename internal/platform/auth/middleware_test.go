package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

var testSigningKey = []byte("test-secret-key-for-unit-tests-only")

func createTestToken(t *testing.T, claims Claims, key []byte) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenStr, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return tokenStr
}

func runJWT(t *testing.T, header string, handler echo.HandlerFunc) error {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	c := e.NewContext(req, httptest.NewRecorder())
	if handler == nil {
		handler = func(c echo.Context) error { return c.String(http.StatusOK, "ok") }
	}
	return JWTMiddleware(JWTConfig{SigningKey: testSigningKey})(handler)(c)
}

func expectUnauthorized(t *testing.T, err error) {
	t.Helper()
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T (%v)", err, err)
	}
	if httpErr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", httpErr.Code)
	}
}

func TestJWTMiddleware_MissingHeader(t *testing.T) {
	expectUnauthorized(t, runJWT(t, "", nil))
}

func TestJWTMiddleware_InvalidFormat(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"no bearer prefix", "Token abc123"},
		{"missing token", "Bearer"},
		{"empty value", "Bearer "},
		{"basic auth", "Basic dXNlcjpwYXNz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectUnauthorized(t, runJWT(t, tt.header, nil))
		})
	}
}

func TestJWTMiddleware_ValidToken(t *testing.T) {
	tokenStr := createTestToken(t, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "receptionist-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		Roles: []string{"receptionist"},
	}, testSigningKey)

	var handlerCalled bool
	err := runJWT(t, "Bearer "+tokenStr, func(c echo.Context) error {
		handlerCalled = true
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !handlerCalled {
		t.Error("handler was not called")
	}
}

func TestJWTMiddleware_ExpiredToken(t *testing.T) {
	tokenStr := createTestToken(t, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "receptionist-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
		},
	}, testSigningKey)

	expectUnauthorized(t, runJWT(t, "Bearer "+tokenStr, nil))
}

func TestJWTMiddleware_WrongKey(t *testing.T) {
	tokenStr := createTestToken(t, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "receptionist-1"},
	}, []byte("another-key"))

	expectUnauthorized(t, runJWT(t, "Bearer "+tokenStr, nil))
}

func TestJWTMiddleware_MissingSubject(t *testing.T) {
	tokenStr := createTestToken(t, Claims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}, testSigningKey)

	expectUnauthorized(t, runJWT(t, "Bearer "+tokenStr, nil))
}

func TestJWTMiddleware_ClaimsExtraction(t *testing.T) {
	tokenStr := createTestToken(t, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "dentist-1-2",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		RealmAccess: RealmAccess{Roles: []string{"ROLE_Dentist", "offline_access"}},
	}, testSigningKey)

	err := runJWT(t, "Bearer "+tokenStr, func(c echo.Context) error {
		ctx := c.Request().Context()
		if uid := UserIDFromContext(ctx); uid != "dentist-1-2" {
			t.Errorf("expected user_id=dentist-1-2, got %s", uid)
		}
		roles := RolesFromContext(ctx)
		if len(roles) != 2 || roles[0] != "dentist" || roles[1] != "offline_access" {
			t.Errorf("expected roles=[dentist offline_access], got %v", roles)
		}
		if c.Get("user_id") != "dentist-1-2" {
			t.Errorf("expected user_id on echo context, got %v", c.Get("user_id"))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestClaims_EffectiveRolesPrefersTopLevel(t *testing.T) {
	c := Claims{Roles: []string{"Receptionist"}, RealmAccess: RealmAccess{Roles: []string{"admin"}}}
	roles := c.EffectiveRoles()
	if len(roles) != 1 || roles[0] != "receptionist" {
		t.Errorf("expected [receptionist], got %v", roles)
	}
}

func TestDevAuthMiddleware_Defaults(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

	err := DevAuthMiddleware()(func(c echo.Context) error {
		actor := ActorFromContext(c.Request().Context())
		if actor.Subject != "dev-user" || !actor.IsAdmin() {
			t.Errorf("expected admin dev-user, got %+v", actor)
		}
		return nil
	})(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDevAuthMiddleware_Overrides(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Dev-User", "patient-1-4")
	req.Header.Set("X-Dev-Roles", " Patient , ")
	c := e.NewContext(req, httptest.NewRecorder())

	err := DevAuthMiddleware()(func(c echo.Context) error {
		actor := ActorFromContext(c.Request().Context())
		if actor.Subject != "patient-1-4" {
			t.Errorf("expected patient-1-4, got %s", actor.Subject)
		}
		if len(actor.Roles) != 1 || actor.Roles[0] != RolePatient {
			t.Errorf("expected [patient], got %v", actor.Roles)
		}
		return nil
	})(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
