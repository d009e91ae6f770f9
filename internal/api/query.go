package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/textsql/textsql/internal/catalog"
	"github.com/textsql/textsql/internal/chart"
	"github.com/textsql/textsql/internal/config"
	"github.com/textsql/textsql/internal/nl2sql"
	"github.com/textsql/textsql/internal/pipeline"
)

type executeRequest struct {
	Question   string `json:"question"`
	DatabaseID *int64 `json:"database_id"`
	Explain    bool   `json:"explain"`
}

type executeResponse struct {
	SQLQuery      string           `json:"sql_query"`
	Results       []map[string]any `json:"results"`
	Columns       []string         `json:"columns"`
	ExecutionTime float64          `json:"execution_time"`
	Error         string           `json:"error,omitempty"`
	Explanation   string           `json:"explanation,omitempty"`
	Chart         *chart.Spec      `json:"chart,omitempty"`
}

var errDatabaseNotFound = errors.New("database not found")

func handleExecute(deps Dependencies, cfg config.Config, w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if !configured(w, r, deps.Questions != nil && deps.Catalog != nil, "query execution") {
		return
	}

	var req executeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "QUESTION_REQUIRED", "question is required", false, nil)
		return
	}

	session := &pipeline.Session{
		StorePath: cfg.Store.DefaultPath,
		Recorder:  pipeline.UserJournal{Journal: deps.Catalog, UserID: identity.UserID},
		Explain:   req.Explain,
	}
	if req.DatabaseID != nil {
		database, err := deps.Catalog.GetDatabase(r.Context(), identity.UserID, *req.DatabaseID)
		switch {
		case errors.Is(err, catalog.ErrNotFound):
			deps.Questions.Reject(r.Context(), session, req.Question, errDatabaseNotFound)
			writeError(r.Context(), w, http.StatusNotFound, "DATABASE_NOT_FOUND", "Database not found", false, map[string]any{"database_id": *req.DatabaseID})
			return
		case err != nil:
			writeInternal(deps, w, r, "CATALOG_ERROR", "failed to resolve database", err)
			return
		}
		session.StorePath = database.Path
	}

	attempt, err := deps.Questions.Run(r.Context(), session, req.Question)
	if err != nil {
		writeStageError(w, r, attempt, err)
		return
	}

	response := executeResponse{
		SQLQuery:      attempt.SQL,
		Results:       []map[string]any{},
		Columns:       []string{},
		ExecutionTime: attempt.Duration.Seconds(),
		Explanation:   attempt.Explanation,
	}
	if attempt.Outcome.Failed() {
		response.Error = attempt.Outcome.Error
	} else if result := attempt.Outcome.Result; result != nil {
		response.Results = result.Records()
		response.Columns = result.Columns
		if spec, ok := chart.Suggest(*result); ok {
			response.Chart = &spec
		}
	}
	writeJSON(w, http.StatusOK, response)
}

func writeStageError(w http.ResponseWriter, r *http.Request, attempt pipeline.Attempt, err error) {
	code := "PIPELINE_FAILED"
	var stageErr *pipeline.StageError
	if errors.As(err, &stageErr) {
		switch stageErr.Stage {
		case pipeline.StageSchema:
			code = "SCHEMA_UNAVAILABLE"
		case pipeline.StageGenerate:
			code = "GENERATION_FAILED"
			if errors.Is(err, nl2sql.ErrNotConfigured) {
				code = "AI_NOT_CONFIGURED"
			}
		case pipeline.StageExecute:
			code = "STORE_UNAVAILABLE"
		}
	}
	extra := map[string]any{
		"stage":          string(attempt.Stage),
		"execution_time": attempt.Duration.Seconds(),
	}
	if attempt.SQLGenerated {
		extra["sql_query"] = attempt.SQL
	}
	message := err.Error()
	if attempt.Err != nil {
		message = attempt.Err.Error()
	}
	writeError(r.Context(), w, http.StatusInternalServerError, code, message, false, extra)
}

func handleHistory(deps Dependencies, _ config.Config, w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if !configured(w, r, deps.Catalog != nil, "catalog") {
		return
	}

	limit := catalog.DefaultHistoryLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be a positive integer", false, map[string]any{"limit": raw})
			return
		}
		limit = parsed
	}

	records, err := deps.Catalog.ListQueryRecords(r.Context(), identity.UserID, catalog.NormalizeHistoryLimit(limit))
	if err != nil {
		writeInternal(deps, w, r, "CATALOG_ERROR", "failed to load query history", err)
		return
	}
	if records == nil {
		records = []catalog.QueryRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}
