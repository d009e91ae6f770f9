package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/textsql/textsql/internal/auth"
	"github.com/textsql/textsql/internal/catalog"
	"github.com/textsql/textsql/internal/config"
	"github.com/textsql/textsql/internal/dataset"
	"github.com/textsql/textsql/internal/nl2sql"
	"github.com/textsql/textsql/internal/observability"
	"github.com/textsql/textsql/internal/pipeline"
	"github.com/textsql/textsql/internal/query"
)

const (
	apiName    = "Text-to-SQL API"
	apiVersion = "1.0.0"
)

type ReadinessCheck func(ctx context.Context) error

// AuthService is what the account endpoints and the bearer middleware use.
type AuthService interface {
	auth.Authenticator
	Register(ctx context.Context, email, username, password string) (catalog.User, error)
	Login(ctx context.Context, username, password string) (auth.Token, error)
	LoginWithProvider(ctx context.Context, providerToken string) (auth.Token, error)
}

// Catalog is the part of the metadata repository the handlers read and
// write directly.
type Catalog interface {
	GetUserByID(ctx context.Context, id int64) (catalog.User, error)
	CreateDatabase(ctx context.Context, in catalog.CreateDatabaseInput) (catalog.Database, error)
	GetDatabase(ctx context.Context, userID, databaseID int64) (catalog.Database, error)
	ListDatabases(ctx context.Context, userID int64) ([]catalog.Database, error)
	InsertQueryRecord(ctx context.Context, in catalog.InsertQueryRecordInput) (catalog.QueryRecord, error)
	ListQueryRecords(ctx context.Context, userID int64, limit int) ([]catalog.QueryRecord, error)
}

// QuestionRunner runs questions and journals the attempts.
type QuestionRunner interface {
	Run(ctx context.Context, session *pipeline.Session, question string) (pipeline.Attempt, error)
	Reject(ctx context.Context, session *pipeline.Session, question string, cause error) pipeline.Attempt
}

type Datasets interface {
	Upload(ctx context.Context, storePath, owner, filename string, body io.Reader) (dataset.Upload, error)
	Restore(ctx context.Context, storePath, key string) (dataset.Upload, error)
	ArchiveEnabled() bool
	MaxBytes() int64
}

// StoreProbe checks that an existing store can be opened.
type StoreProbe func(ctx context.Context, path string) error

type Dependencies struct {
	Logger            *slog.Logger
	Readiness         ReadinessCheck
	DependencyTimeout time.Duration
	Auth              AuthService
	// ProviderEnabled reports whether /api/auth/google is served.
	ProviderEnabled bool
	Catalog         Catalog
	Questions       QuestionRunner
	Introspector    query.Introspector
	Probe           StoreProbe
	Model           nl2sql.Model
	Datasets        Datasets
}

type route struct {
	pattern string
	handler func(Dependencies, config.Config, http.ResponseWriter, *http.Request)
}

var protectedRoutes = []route{
	{"GET /api/user/profile", handleProfile},
	{"POST /api/query/execute", handleExecute},
	{"GET /api/query/history", handleHistory},
	{"POST /api/query/explain", handleExplain},
	{"POST /api/chat", handleChat},
	{"POST /api/database/add", handleAddDatabase},
	{"GET /api/database/list", handleListDatabases},
	{"GET /api/database/{id}/schema", handleDatabaseSchema},
	{"POST /api/datasets/upload", handleUpload},
	{"POST /api/datasets/restore", handleRestore},
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"message": apiName, "version": apiVersion})
	})

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name})
	})

	mux.HandleFunc("GET /ready", func(w http.ResponseWriter, r *http.Request) {
		if deps.Readiness == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
			return
		}
		timeout := deps.DependencyTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := deps.Readiness(ctx); err != nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error(), true, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})

	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /api/auth/register", func(w http.ResponseWriter, r *http.Request) {
		handleRegister(deps, w, r)
	})
	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		handleLogin(deps, w, r)
	})
	mux.HandleFunc("POST /api/auth/google", func(w http.ResponseWriter, r *http.Request) {
		handleProviderLogin(deps, w, r)
	})

	protected := http.NewServeMux()
	for _, rt := range protectedRoutes {
		protected.HandleFunc(rt.pattern, func(w http.ResponseWriter, r *http.Request) {
			rt.handler(deps, cfg, w, r)
		})
	}

	var protectedHandler http.Handler = protected
	if deps.Auth == nil {
		if deps.Logger != nil {
			deps.Logger.Error("auth service missing; protected routes are disabled")
		}
		protectedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeError(r.Context(), w, http.StatusInternalServerError, "AUTH_MIDDLEWARE_MISSING", "auth service is not configured", false, nil)
		})
	} else {
		protectedHandler = auth.Middleware(deps.Logger, deps.Auth)(protectedHandler)
	}
	for _, rt := range protectedRoutes {
		mux.Handle(rt.pattern, protectedHandler)
	}

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
		CORSMiddleware(cfg.HTTP.CORSOrigins),
		observability.MetricsMiddleware,
	}
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	return chain(mux, middlewares...)
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError writes the error envelope. detail repeats message for clients
// that read the FastAPI-style field.
func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, map[string]any{
		"error_code": code,
		"message":    message,
		"detail":     message,
		"retryable":  retryable,
		"context":    extra,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid request body", false, map[string]any{"details": err.Error()})
		return false
	}
	return true
}

func requireIdentity(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(r.Context(), w, http.StatusUnauthorized, "UNAUTHORIZED", "Not authenticated", false, nil)
		return auth.Identity{}, false
	}
	return identity, true
}

func writeInternal(deps Dependencies, w http.ResponseWriter, r *http.Request, code, message string, err error) {
	if deps.Logger != nil {
		deps.Logger.ErrorContext(r.Context(), message,
			slog.String("trace_id", observability.TraceIDFromContext(r.Context())),
			slog.String("error", err.Error()),
		)
	}
	writeError(r.Context(), w, http.StatusInternalServerError, code, message, true, map[string]any{"details": err.Error()})
}

// configured writes 501 and reports false when a dependency is missing.
func configured(w http.ResponseWriter, r *http.Request, ok bool, what string) bool {
	if !ok {
		writeError(r.Context(), w, http.StatusNotImplemented, "NOT_CONFIGURED", what+" is not configured", false, nil)
	}
	return ok
}
