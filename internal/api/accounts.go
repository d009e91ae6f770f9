package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/textsql/textsql/internal/auth"
	"github.com/textsql/textsql/internal/catalog"
	"github.com/textsql/textsql/internal/config"
)

type registerRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type providerLoginRequest struct {
	IDToken string `json:"id_token"`
}

type userResponse struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

func newUserResponse(user catalog.User) userResponse {
	return userResponse{ID: user.ID, Email: user.Email, Username: user.Username, CreatedAt: user.CreatedAt}
}

func handleRegister(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !configured(w, r, deps.Auth != nil, "registration") {
		return
	}
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := deps.Auth.Register(r.Context(), req.Email, req.Username, req.Password)
	switch {
	case errors.Is(err, catalog.ErrConflict):
		writeError(r.Context(), w, http.StatusBadRequest, "USER_EXISTS", "Email or username already registered", false, nil)
		return
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_INPUT", err.Error(), false, nil)
		return
	case err != nil:
		writeInternal(deps, w, r, "REGISTER_FAILED", "failed to register user", err)
		return
	}
	writeJSON(w, http.StatusOK, newUserResponse(user))
}

// handleLogin accepts the OAuth2 password form: username and password as
// form fields.
func handleLogin(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !configured(w, r, deps.Auth != nil, "login") {
		return
	}
	if err := r.ParseForm(); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_FORM", "invalid login form", false, map[string]any{"details": err.Error()})
		return
	}
	username := strings.TrimSpace(r.PostForm.Get("username"))
	password := r.PostForm.Get("password")
	if username == "" || password == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "CREDENTIALS_REQUIRED", "username and password are required", false, nil)
		return
	}

	token, err := deps.Auth.Login(r.Context(), username, password)
	if err != nil {
		writeAuthError(deps, w, r, err, "Incorrect username or password")
		return
	}
	writeJSON(w, http.StatusOK, token)
}

func handleProviderLogin(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !deps.ProviderEnabled || deps.Auth == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "PROVIDER_DISABLED", auth.ErrProviderDisabled.Error(), false, nil)
		return
	}
	var req providerLoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.IDToken) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "ID_TOKEN_REQUIRED", "id_token is required", false, nil)
		return
	}

	token, err := deps.Auth.LoginWithProvider(r.Context(), req.IDToken)
	switch {
	case errors.Is(err, auth.ErrProviderDisabled):
		writeError(r.Context(), w, http.StatusNotImplemented, "PROVIDER_DISABLED", err.Error(), false, nil)
		return
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_INPUT", err.Error(), false, nil)
		return
	case err != nil:
		writeAuthError(deps, w, r, err, "Could not validate credentials")
		return
	}
	writeJSON(w, http.StatusOK, token)
}

func handleProfile(deps Dependencies, _ config.Config, w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if !configured(w, r, deps.Catalog != nil, "catalog") {
		return
	}
	user, err := deps.Catalog.GetUserByID(r.Context(), identity.UserID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			writeError(r.Context(), w, http.StatusNotFound, "USER_NOT_FOUND", "user not found", false, nil)
			return
		}
		writeInternal(deps, w, r, "CATALOG_ERROR", "failed to load user", err)
		return
	}
	writeJSON(w, http.StatusOK, newUserResponse(user))
}

func writeAuthError(deps Dependencies, w http.ResponseWriter, r *http.Request, err error, message string) {
	if errors.Is(err, auth.ErrUnauthorized) {
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeError(r.Context(), w, http.StatusUnauthorized, "UNAUTHORIZED", message, false, nil)
		return
	}
	writeInternal(deps, w, r, "AUTH_FAILED", "authentication failed", err)
}
