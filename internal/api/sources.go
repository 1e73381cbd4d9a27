package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"regexp"

	"github.com/eric0324/falcon-bridge/internal/registry"
	"github.com/eric0324/falcon-bridge/internal/store"
	"go.uber.org/zap"
)

// sourceNamePattern keeps source names usable as stable identifiers in
// rules, tool scopes and bridge messages.
var sourceNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]{1,63}$`)

func (d *Dependencies) handleCreateSource(w http.ResponseWriter, r *http.Request) {
	var req CreateSourceReq
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if !sourceNamePattern.MatchString(req.Name) {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "name must be lowercase snake_case, 2-64 characters"})
		return
	}
	if !registry.IsKnownSourceType(req.SourceType) {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "unknown source_type"})
		return
	}
	if len(req.Config) > 0 && !json.Valid(req.Config) {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "config must be valid JSON"})
		return
	}

	source, err := d.Store.CreateSource(r.Context(), store.CreateSourceParams{
		Name:        req.Name,
		DisplayName: req.DisplayName,
		SourceType:  req.SourceType,
		Config:      req.Config,
	})
	if err != nil {
		d.Logger.Error("failed to create source", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to create source"})
		return
	}

	d.Registry.InvalidateSources()
	writeJSON(w, http.StatusCreated, sourceToResp(source))
}

func (d *Dependencies) handleListSources(w http.ResponseWriter, r *http.Request) {
	sources, err := d.Store.ListSources(r.Context())
	if err != nil {
		d.Logger.Error("failed to list sources", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to list sources"})
		return
	}

	resp := make([]SourceResp, 0, len(sources))
	for _, s := range sources {
		resp = append(resp, sourceToResp(s))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (d *Dependencies) handleGetSource(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("source_name")
	source, err := d.Store.GetSource(r.Context(), name)
	if err != nil {
		d.Logger.Error("failed to get source", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to get source"})
		return
	}
	if source == nil {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Source not found."})
		return
	}
	writeJSON(w, http.StatusOK, sourceToResp(source))
}

func (d *Dependencies) handleUpdateSource(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("source_name")

	var req UpdateSourceReq
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if req.Config != nil && !json.Valid(*req.Config) {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "config must be valid JSON"})
		return
	}

	source, err := d.Store.UpdateSource(r.Context(), name, store.UpdateSourceParams{
		DisplayName: req.DisplayName,
		Config:      req.Config,
		IsActive:    req.IsActive,
	})
	if err != nil {
		d.Logger.Error("failed to update source", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to update source"})
		return
	}
	if source == nil {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Source not found."})
		return
	}

	d.Registry.InvalidateSources()
	writeJSON(w, http.StatusOK, sourceToResp(source))
}

func (d *Dependencies) handleDeleteSource(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("source_name")
	err := d.Store.DeleteSource(r.Context(), name)
	if errors.Is(err, store.ErrInUse) {
		writeJSON(w, http.StatusConflict, ErrorResp{Detail: "Source is referenced by permission rules or tools"})
		return
	}
	if err == sql.ErrNoRows {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Source not found."})
		return
	}
	if err != nil {
		d.Logger.Error("failed to delete source", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to delete source"})
		return
	}

	d.Registry.InvalidateSources()
	w.WriteHeader(http.StatusNoContent)
}

func sourceToResp(s *store.Source) SourceResp {
	return SourceResp{
		Name:        s.Name,
		DisplayName: s.DisplayName,
		SourceType:  s.SourceType,
		Config:      s.Config,
		IsActive:    s.IsActive,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
}
