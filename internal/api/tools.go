package api

import (
	"database/sql"
	"net/http"

	"github.com/eric0324/falcon-bridge/internal/registry"
	"github.com/eric0324/falcon-bridge/internal/store"
	"go.uber.org/zap"
)

func (d *Dependencies) handleCreateTool(w http.ResponseWriter, r *http.Request) {
	var req CreateToolReq
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if req.Name == "" || len(req.Name) > 255 {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "name must be 1-255 characters"})
		return
	}
	if req.AuthorID == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "author_id is required"})
		return
	}
	if !registry.IsValidVisibility(req.Visibility) {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "visibility must be private, department, company or public"})
		return
	}

	tool, err := d.Store.CreateTool(r.Context(), store.CreateToolParams{
		Name:           req.Name,
		AuthorID:       req.AuthorID,
		Department:     req.Department,
		Visibility:     req.Visibility,
		AllowedSources: req.AllowedSources,
	})
	if err != nil {
		d.Logger.Error("failed to create tool", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to create tool"})
		return
	}
	writeJSON(w, http.StatusCreated, toolToResp(tool))
}

func (d *Dependencies) handleListTools(w http.ResponseWriter, r *http.Request) {
	tools, err := d.Store.ListTools(r.Context())
	if err != nil {
		d.Logger.Error("failed to list tools", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to list tools"})
		return
	}

	resp := make([]ToolResp, 0, len(tools))
	for _, t := range tools {
		resp = append(resp, toolToResp(t))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (d *Dependencies) handleGetTool(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("tool_id")
	tool, err := d.Store.GetTool(r.Context(), id)
	if err != nil {
		d.Logger.Error("failed to get tool", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to get tool"})
		return
	}
	if tool == nil {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Tool not found."})
		return
	}
	writeJSON(w, http.StatusOK, toolToResp(tool))
}

func (d *Dependencies) handleUpdateTool(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("tool_id")

	var req UpdateToolReq
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if req.Name != nil && (len(*req.Name) == 0 || len(*req.Name) > 255) {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "name must be 1-255 characters"})
		return
	}
	if req.Visibility != nil && !registry.IsValidVisibility(*req.Visibility) {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "visibility must be private, department, company or public"})
		return
	}

	tool, err := d.Store.UpdateTool(r.Context(), id, store.UpdateToolParams{
		Name:           req.Name,
		Visibility:     req.Visibility,
		AllowedSources: req.AllowedSources,
	})
	if err != nil {
		d.Logger.Error("failed to update tool", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to update tool"})
		return
	}
	if tool == nil {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Tool not found."})
		return
	}

	d.Registry.InvalidateTool(id)
	writeJSON(w, http.StatusOK, toolToResp(tool))
}

func (d *Dependencies) handleDeleteTool(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("tool_id")
	err := d.Store.DeleteTool(r.Context(), id)
	if err == sql.ErrNoRows {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Tool not found."})
		return
	}
	if err != nil {
		d.Logger.Error("failed to delete tool", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to delete tool"})
		return
	}

	d.Registry.InvalidateTool(id)
	w.WriteHeader(http.StatusNoContent)
}

func toolToResp(t *store.Tool) ToolResp {
	var dept *string
	if t.Department.Valid {
		dept = &t.Department.String
	}
	return ToolResp{
		ID:             t.ID,
		Name:           t.Name,
		AuthorID:       t.AuthorID,
		Department:     dept,
		Visibility:     t.Visibility,
		AllowedSources: emptyIfNil(t.AllowedSources),
		CreatedAt:      t.CreatedAt,
		UpdatedAt:      t.UpdatedAt,
	}
}
