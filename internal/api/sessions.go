package api

import (
	"net/http"

	"go.uber.org/zap"
)

// handleCreateSession issues a bridge session token. The caller is the
// trusted embedding app (authenticated by its client key); it asserts the
// invoking user's department here, and nothing downstream can widen it.
func (d *Dependencies) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionReq
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if req.ToolID == "" || req.UserID == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "tool_id and user_id are required"})
		return
	}

	token, err := d.Sessions.Issue(req.ToolID, req.UserID, req.Department)
	if err != nil {
		d.Logger.Error("failed to issue bridge session", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to issue session"})
		return
	}

	writeJSON(w, http.StatusCreated, CreateSessionResp{
		Token:     token,
		ExpiresIn: int(d.SessionTTL.Seconds()),
	})
}
