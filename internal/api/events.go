package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/eric0324/falcon-bridge/internal/chread"
	"go.uber.org/zap"
)

func (d *Dependencies) handleListDecisions(w http.ResponseWriter, r *http.Request) {
	if d.Reader == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "ClickHouse not configured"})
		return
	}

	q := r.URL.Query()
	clientID := q.Get("client_id")
	if clientID == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "client_id query parameter is required"})
		return
	}

	params := chread.ListDecisionsParams{
		ClientID: clientID,
		Page:     queryInt(q, "page", 1),
		PageSize: queryInt(q, "page_size", 50),
	}
	if params.PageSize > 200 {
		params.PageSize = 200
	}
	if params.Page < 1 {
		params.Page = 1
	}

	if v := q.Get("tool_id"); v != "" {
		params.ToolID = &v
	}
	if v := q.Get("user_id"); v != "" {
		params.UserID = &v
	}
	if v := q.Get("department"); v != "" {
		params.Department = &v
	}
	if v := q.Get("decision"); v != "" {
		params.Decision = &v
	}
	if v := q.Get("source"); v != "" {
		params.Source = &v
	}
	if v := q.Get("start_time"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			params.StartTime = &t
		}
	}
	if v := q.Get("end_time"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			params.EndTime = &t
		}
	}

	decisions, total, err := d.Reader.ListDecisions(r.Context(), params)
	if err != nil {
		d.Logger.Error("failed to list decisions", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to list decisions"})
		return
	}

	resp := DecisionListResp{
		Decisions: make([]DecisionResp, 0, len(decisions)),
		Total:     total,
		Page:      params.Page,
		PageSize:  params.PageSize,
	}
	for _, dec := range decisions {
		resp.Decisions = append(resp.Decisions, decisionRowToResp(dec))
	}

	writeJSON(w, http.StatusOK, resp)
}

func (d *Dependencies) handleGetDecision(w http.ResponseWriter, r *http.Request) {
	if d.Reader == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "ClickHouse not configured"})
		return
	}

	requestID := r.PathValue("request_id")
	clientID := r.URL.Query().Get("client_id")
	if clientID == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "client_id query parameter is required"})
		return
	}

	decision, err := d.Reader.GetDecision(r.Context(), clientID, requestID)
	if err != nil {
		d.Logger.Error("failed to get decision", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to get decision"})
		return
	}
	if decision == nil {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Decision not found."})
		return
	}

	writeJSON(w, http.StatusOK, decisionRowToResp(*decision))
}

func (d *Dependencies) handleGetAnalytics(w http.ResponseWriter, r *http.Request) {
	if d.Reader == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "ClickHouse not configured"})
		return
	}

	q := r.URL.Query()
	clientID := q.Get("client_id")
	if clientID == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "client_id query parameter is required"})
		return
	}

	days := queryInt(q, "days", 7)
	if days < 1 {
		days = 1
	}
	if days > 90 {
		days = 90
	}

	result, err := d.Reader.GetAnalytics(r.Context(), clientID, days)
	if err != nil {
		d.Logger.Error("failed to get analytics", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to get analytics"})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func decisionRowToResp(d chread.DecisionRow) DecisionResp {
	return DecisionResp{
		RequestID:     d.RequestID,
		ClientID:      d.ClientID,
		ToolID:        d.ToolID,
		UserID:        d.UserID,
		Department:    d.Department,
		Operation:     d.Operation,
		SourceName:    nilIfEmpty(d.SourceName),
		TableName:     nilIfEmpty(d.TableName),
		Decision:      d.Decision,
		DenyReason:    nilIfEmpty(d.DenyReason),
		ColumnsAsked:  d.ColumnsAsked,
		ColumnsServed: d.ColumnsServed,
		ExecutorError: d.ExecutorError == 1,
		LatencyMs:     d.LatencyMs,
		Timestamp:     d.Timestamp,
	}
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func queryInt(q interface{ Get(string) string }, key string, defaultVal int) int {
	v := q.Get(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}
