package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

var testSecret = []byte("test-secret")

func doRequest(t *testing.T, mw echo.MiddlewareFunc, token string, handler echo.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := mw(handler)(c)
	if err != nil {
		e.HTTPErrorHandler(err, c)
	}
	return rec
}

func okHandler(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}

func TestJWTMiddleware_ValidToken(t *testing.T) {
	token, err := IssueToken(testSecret, "dispatcher-1", "", []string{"dispatcher"}, time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	var gotRoles []string
	rec := doRequest(t, JWTMiddleware(testSecret), token, func(c echo.Context) error {
		gotRoles = RolesFromContext(c.Request().Context())
		return c.NoContent(http.StatusOK)
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(gotRoles) != 1 || gotRoles[0] != "dispatcher" {
		t.Errorf("expected dispatcher role in context, got %v", gotRoles)
	}
}

func TestJWTMiddleware_AmbulanceBinding(t *testing.T) {
	token, err := IssueToken(testSecret, "crew-7", "AMB-7", []string{"ambulance"}, time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	var gotAmbulance string
	rec := doRequest(t, JWTMiddleware(testSecret), token, func(c echo.Context) error {
		gotAmbulance = AmbulanceIDFromContext(c.Request().Context())
		return c.NoContent(http.StatusOK)
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if gotAmbulance != "AMB-7" {
		t.Errorf("expected ambulance binding AMB-7, got %q", gotAmbulance)
	}
}

func TestJWTMiddleware_MissingHeader(t *testing.T) {
	rec := doRequest(t, JWTMiddleware(testSecret), "", okHandler)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestJWTMiddleware_WrongSecret(t *testing.T) {
	token, err := IssueToken([]byte("other-secret"), "x", "", []string{"admin"}, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	rec := doRequest(t, JWTMiddleware(testSecret), token, okHandler)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestJWTMiddleware_ExpiredToken(t *testing.T) {
	token, err := IssueToken(testSecret, "x", "", []string{"admin"}, -time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	rec := doRequest(t, JWTMiddleware(testSecret), token, okHandler)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestDevAuthMiddleware_Defaults(t *testing.T) {
	var gotRoles []string
	rec := doRequest(t, DevAuthMiddleware(), "", func(c echo.Context) error {
		gotRoles = RolesFromContext(c.Request().Context())
		return c.NoContent(http.StatusOK)
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(gotRoles) != 1 || gotRoles[0] != "admin" {
		t.Errorf("expected admin default, got %v", gotRoles)
	}
}
