package api

import (
	"errors"
	"net/http"

	"github.com/eric0324/falcon-bridge/internal/resolver"
	"go.uber.org/zap"
)

// handleResolve previews what a department can reach, using the same
// resolver the bridge authorizes against. Pass department= empty (or omit
// it) to preview the default fallback.
func (d *Dependencies) handleResolve(w http.ResponseWriter, r *http.Request) {
	department := r.URL.Query().Get("department")

	grants, err := d.Resolver.Resolve(r.Context(), department)
	if err != nil {
		if errors.Is(err, resolver.ErrStoreUnavailable) {
			writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "Permission store unavailable"})
			return
		}
		d.Logger.Error("failed to resolve department", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to resolve"})
		return
	}

	resp := ResolveResp{
		Department: department,
		Grants:     make([]GrantResp, 0, len(grants)),
	}
	for _, g := range grants {
		resp.Grants = append(resp.Grants, GrantResp{
			Source:              g.Source.Name,
			DisplayName:         g.Source.DisplayName,
			SourceType:          string(g.Source.Type),
			ReadTables:          emptyIfNil(g.ReadTables),
			WriteTables:         emptyIfNil(g.WriteTables),
			DeleteTables:        emptyIfNil(g.DeleteTables),
			ReadBlockedColumns:  emptyIfNil(g.ReadBlockedColumns),
			WriteBlockedColumns: emptyIfNil(g.WriteBlockedColumns),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}
