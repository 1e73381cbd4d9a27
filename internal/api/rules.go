package api

import (
	"database/sql"
	"net/http"
	"strings"

	"github.com/eric0324/falcon-bridge/internal/store"
	"go.uber.org/zap"
)

func (d *Dependencies) handleListRules(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("source_name")
	rules, err := d.Store.ListRules(r.Context(), &name, nil)
	if err != nil {
		d.Logger.Error("failed to list rules", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to list rules"})
		return
	}

	resp := make([]RuleResp, 0, len(rules))
	for _, rule := range rules {
		resp = append(resp, ruleToResp(rule))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (d *Dependencies) handleGetRule(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("source_name")
	department := r.PathValue("department")

	rule, err := d.Store.GetRule(r.Context(), name, department)
	if err != nil {
		d.Logger.Error("failed to get rule", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to get rule"})
		return
	}
	if rule == nil {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Rule not found."})
		return
	}
	writeJSON(w, http.StatusOK, ruleToResp(rule))
}

// handleUpsertRule has PUT semantics: the stored rule for (source, department)
// becomes exactly the request body.
func (d *Dependencies) handleUpsertRule(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("source_name")
	department := r.PathValue("department")

	var req UpsertRuleReq
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	for _, list := range [][]string{
		req.ReadTables, req.WriteTables, req.DeleteTables,
		req.ReadBlockedColumns, req.WriteBlockedColumns,
	} {
		for _, entry := range list {
			if strings.TrimSpace(entry) == "" {
				writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "table and column names must be non-empty"})
				return
			}
		}
	}

	// The rule must point at a real source; a typo here would otherwise sit
	// silently granting nothing.
	source, err := d.Store.GetSource(r.Context(), name)
	if err != nil {
		d.Logger.Error("failed to check source for rule", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to save rule"})
		return
	}
	if source == nil {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Source not found."})
		return
	}

	rule, err := d.Store.UpsertRule(r.Context(), store.UpsertRuleParams{
		SourceName:          name,
		Department:          department,
		ReadTables:          req.ReadTables,
		WriteTables:         req.WriteTables,
		DeleteTables:        req.DeleteTables,
		ReadBlockedColumns:  req.ReadBlockedColumns,
		WriteBlockedColumns: req.WriteBlockedColumns,
	})
	if err != nil {
		d.Logger.Error("failed to upsert rule", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to save rule"})
		return
	}

	d.Registry.InvalidateRules(department)
	writeJSON(w, http.StatusOK, ruleToResp(rule))
}

func (d *Dependencies) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("source_name")
	department := r.PathValue("department")

	err := d.Store.DeleteRule(r.Context(), name, department)
	if err == sql.ErrNoRows {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Rule not found."})
		return
	}
	if err != nil {
		d.Logger.Error("failed to delete rule", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to delete rule"})
		return
	}

	d.Registry.InvalidateRules(department)
	w.WriteHeader(http.StatusNoContent)
}

func ruleToResp(rule *store.Rule) RuleResp {
	return RuleResp{
		SourceName:          rule.SourceName,
		Department:          rule.Department,
		ReadTables:          emptyIfNil(rule.ReadTables),
		WriteTables:         emptyIfNil(rule.WriteTables),
		DeleteTables:        emptyIfNil(rule.DeleteTables),
		ReadBlockedColumns:  emptyIfNil(rule.ReadBlockedColumns),
		WriteBlockedColumns: emptyIfNil(rule.WriteBlockedColumns),
		CreatedAt:           rule.CreatedAt,
		UpdatedAt:           rule.UpdatedAt,
	}
}

func emptyIfNil(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}
