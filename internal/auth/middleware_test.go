package auth

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/textsql/textsql/internal/catalog"
)

type fakeAuthenticator struct {
	users map[string]catalog.User
	err   error
}

func (f fakeAuthenticator) Authenticate(_ context.Context, token string) (catalog.User, error) {
	if f.err != nil {
		return catalog.User{}, f.err
	}
	user, ok := f.users[token]
	if !ok {
		return catalog.User{}, ErrUnauthorized
	}
	return user, nil
}

func TestMiddlewareRequiresBearerToken(t *testing.T) {
	mw := Middleware(slog.New(slog.NewJSONHandler(io.Discard, nil)), fakeAuthenticator{})
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	for _, header := range []string{"", "Basic abc", "Bearer", "Bearer    "} {
		req := httptest.NewRequest(http.MethodGet, "/api/user/profile", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("header %q: status = %d, want %d", header, rr.Code, http.StatusUnauthorized)
		}
		if rr.Header().Get("WWW-Authenticate") != "Bearer" {
			t.Fatalf("header %q: missing WWW-Authenticate", header)
		}
		var body map[string]any
		if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body["error_code"] != "UNAUTHORIZED" || body["detail"] != "Not authenticated" {
			t.Fatalf("body = %#v", body)
		}
	}
}

func TestMiddlewareRejectsInvalidToken(t *testing.T) {
	for _, authErr := range []error{nil, errors.New("catalog down")} {
		mw := Middleware(nil, fakeAuthenticator{err: authErr})
		handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler should not run")
		}))

		req := httptest.NewRequest(http.MethodGet, "/api/user/profile", nil)
		req.Header.Set("Authorization", "Bearer unknown")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d", rr.Code)
		}
	}
}

func TestMiddlewareInjectsIdentity(t *testing.T) {
	mw := Middleware(nil, fakeAuthenticator{users: map[string]catalog.User{
		"tok-1": {ID: 7, Username: "ada", Email: "ada@example.com", IsActive: true},
	}})
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFromContext(r.Context())
		if !ok {
			t.Fatal("expected identity in context")
		}
		if identity.UserID != 7 || identity.Username != "ada" {
			t.Fatalf("identity = %+v", identity)
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/user/profile", nil)
	req.Header.Set("Authorization", "bearer tok-1")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rr.Code)
	}
}
