package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/textsql/textsql/internal/catalog"
	"github.com/textsql/textsql/internal/config"
	"github.com/textsql/textsql/internal/query"
)

type addDatabaseRequest struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

func handleAddDatabase(deps Dependencies, _ config.Config, w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if !configured(w, r, deps.Catalog != nil && deps.Probe != nil, "database registration") {
		return
	}

	var req addDatabaseRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Path = strings.TrimSpace(req.Path)
	if req.Name == "" || req.Path == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "NAME_AND_PATH_REQUIRED", "name and path are required", false, nil)
		return
	}

	if err := deps.Probe(r.Context(), req.Path); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "DATABASE_UNREACHABLE", "Cannot connect to database: "+err.Error(), false, map[string]any{"path": req.Path})
		return
	}

	database, err := deps.Catalog.CreateDatabase(r.Context(), catalog.CreateDatabaseInput{
		UserID: identity.UserID,
		Name:   req.Name,
		Path:   req.Path,
	})
	if err != nil {
		writeInternal(deps, w, r, "CATALOG_ERROR", "failed to register database", err)
		return
	}
	writeJSON(w, http.StatusOK, database)
}

func handleListDatabases(deps Dependencies, _ config.Config, w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if !configured(w, r, deps.Catalog != nil, "catalog") {
		return
	}

	databases, err := deps.Catalog.ListDatabases(r.Context(), identity.UserID)
	if err != nil {
		writeInternal(deps, w, r, "CATALOG_ERROR", "failed to list databases", err)
		return
	}
	if databases == nil {
		databases = []catalog.Database{}
	}
	writeJSON(w, http.StatusOK, databases)
}

func handleDatabaseSchema(deps Dependencies, _ config.Config, w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if !configured(w, r, deps.Catalog != nil && deps.Introspector != nil, "schema inspection") {
		return
	}

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_DATABASE_ID", "database id must be a positive integer", false, map[string]any{"id": r.PathValue("id")})
		return
	}

	database, err := deps.Catalog.GetDatabase(r.Context(), identity.UserID, id)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			writeError(r.Context(), w, http.StatusNotFound, "DATABASE_NOT_FOUND", "Database not found", false, map[string]any{"database_id": id})
			return
		}
		writeInternal(deps, w, r, "CATALOG_ERROR", "failed to resolve database", err)
		return
	}

	schema, err := deps.Introspector.Introspect(r.Context(), database.Path)
	if err != nil {
		writeInternal(deps, w, r, "SCHEMA_UNAVAILABLE", query.ErrSchemaUnavailable.Error(), err)
		return
	}
	tables := schema.Tables
	if tables == nil {
		tables = []query.Table{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"schema": schema.String(), "tables": tables})
}
