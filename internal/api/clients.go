package api

import (
	"database/sql"
	"net/http"

	"github.com/eric0324/falcon-bridge/internal/store"
	"go.uber.org/zap"
)

func (d *Dependencies) handleCreateClient(w http.ResponseWriter, r *http.Request) {
	var req CreateClientReq
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if req.Name == "" || len(req.Name) > 255 {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "name must be 1-255 characters"})
		return
	}

	client, plainKey, err := d.Store.CreateClient(r.Context(), req.Name)
	if err != nil {
		d.Logger.Error("failed to create client", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to create client"})
		return
	}

	writeJSON(w, http.StatusCreated, CreateClientResp{
		ID:           client.ID,
		Name:         client.Name,
		APIKey:       plainKey,
		APIKeyPrefix: client.APIKeyPrefix,
		IsActive:     client.IsActive,
		CreatedAt:    client.CreatedAt,
	})
}

func (d *Dependencies) handleListClients(w http.ResponseWriter, r *http.Request) {
	clients, err := d.Store.ListClients(r.Context())
	if err != nil {
		d.Logger.Error("failed to list clients", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to list clients"})
		return
	}

	resp := make([]ClientResp, 0, len(clients))
	for _, c := range clients {
		resp = append(resp, clientToResp(c))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (d *Dependencies) handleGetClient(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("client_id")
	client, err := d.Store.GetClient(r.Context(), id)
	if err != nil {
		d.Logger.Error("failed to get client", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to get client"})
		return
	}
	if client == nil {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Client not found."})
		return
	}
	writeJSON(w, http.StatusOK, clientToResp(client))
}

func (d *Dependencies) handleUpdateClient(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("client_id")

	var req UpdateClientReq
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if req.Name != nil && (len(*req.Name) == 0 || len(*req.Name) > 255) {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "name must be 1-255 characters"})
		return
	}

	client, err := d.Store.UpdateClient(r.Context(), id, store.UpdateClientParams{
		Name:     req.Name,
		IsActive: req.IsActive,
	})
	if err != nil {
		d.Logger.Error("failed to update client", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to update client"})
		return
	}
	if client == nil {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Client not found."})
		return
	}
	writeJSON(w, http.StatusOK, clientToResp(client))
}

func (d *Dependencies) handleDeleteClient(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("client_id")
	err := d.Store.DeleteClient(r.Context(), id)
	if err == sql.ErrNoRows {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Client not found."})
		return
	}
	if err != nil {
		d.Logger.Error("failed to delete client", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to delete client"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (d *Dependencies) handleRotateKey(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("client_id")
	client, plainKey, err := d.Store.RotateAPIKey(r.Context(), id)
	if err != nil {
		d.Logger.Error("failed to rotate key", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to rotate API key"})
		return
	}
	writeJSON(w, http.StatusOK, RotateKeyResp{
		APIKey:       plainKey,
		APIKeyPrefix: client.APIKeyPrefix,
	})
}

func clientToResp(c *store.Client) ClientResp {
	return ClientResp{
		ID:           c.ID,
		Name:         c.Name,
		APIKeyPrefix: c.APIKeyPrefix,
		IsActive:     c.IsActive,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}
