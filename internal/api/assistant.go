package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/textsql/textsql/internal/config"
	"github.com/textsql/textsql/internal/nl2sql"
)

type explainRequest struct {
	SQL string `json:"sql"`
}

type chatRequest struct {
	Message string `json:"message"`
}

func handleExplain(deps Dependencies, _ config.Config, w http.ResponseWriter, r *http.Request) {
	if !configured(w, r, deps.Model != nil, "model") {
		return
	}
	var req explainRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.SQL) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "SQL_REQUIRED", "sql is required", false, nil)
		return
	}

	explanation, err := deps.Model.Explain(r.Context(), req.SQL)
	if err != nil {
		writeCompletionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"explanation": explanation})
}

func handleChat(deps Dependencies, _ config.Config, w http.ResponseWriter, r *http.Request) {
	if !configured(w, r, deps.Model != nil, "model") {
		return
	}
	var req chatRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "MESSAGE_REQUIRED", "message is required", false, nil)
		return
	}

	answer, err := deps.Model.Chat(r.Context(), req.Message)
	if err != nil {
		writeCompletionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"response": answer})
}

func writeCompletionError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, nl2sql.ErrNotConfigured) {
		writeError(r.Context(), w, http.StatusServiceUnavailable, "AI_NOT_CONFIGURED", err.Error(), false, nil)
		return
	}
	writeError(r.Context(), w, http.StatusBadGateway, "COMPLETION_FAILED", "model completion failed", true, map[string]any{"details": err.Error()})
}
