package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/eric0324/falcon-bridge/internal/bridge"
	"github.com/eric0324/falcon-bridge/internal/session"
	"go.uber.org/zap"
)

// maxBridgeBody bounds one bridge message. Sandboxed callers have no
// business sending more than this.
const maxBridgeBody = 1 << 20 // 1 MiB

// handleBridge carries one bridge message across the trust boundary:
// client key (middleware) + session token identify the caller, then the
// message is dispatched. A malformed message yields 204 with no body, the
// HTTP equivalent of the channel's silent drop.
func (d *Dependencies) handleBridge(w http.ResponseWriter, r *http.Request) {
	client := clientFromContext(r.Context())

	token := r.Header.Get("X-Bridge-Session")
	if token == "" {
		writeJSON(w, http.StatusUnauthorized, ErrorResp{Detail: "Missing X-Bridge-Session header"})
		return
	}
	sess, err := d.Sessions.Verify(token)
	if err != nil {
		if errors.Is(err, session.ErrExpiredToken) {
			writeJSON(w, http.StatusUnauthorized, ErrorResp{Detail: "Bridge session expired"})
			return
		}
		writeJSON(w, http.StatusUnauthorized, ErrorResp{Detail: "Invalid bridge session"})
		return
	}

	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBridgeBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Failed to read request body"})
		return
	}
	defer func() { _ = r.Body.Close() }()

	resp, err := d.Bridge.Dispatch(r.Context(), raw, bridge.Identity{
		ClientID:   client.ID,
		ToolID:     sess.ToolID,
		UserID:     sess.UserID,
		Department: sess.Department,
	})
	if err != nil {
		// Infrastructure failure: fail the request, never fake a denial.
		d.Logger.Error("bridge dispatch failed",
			zap.String("client_id", client.ID),
			zap.String("tool_id", sess.ToolID),
			zap.Error(err),
		)
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "Bridge temporarily unavailable"})
		return
	}
	if resp == nil {
		// Malformed message: dropped without an answer.
		w.WriteHeader(http.StatusNoContent)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}
