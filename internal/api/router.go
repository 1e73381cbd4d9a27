package api

import (
	"net/http"
	"time"

	"github.com/eric0324/falcon-bridge/internal/bridge"
	"github.com/eric0324/falcon-bridge/internal/chread"
	"github.com/eric0324/falcon-bridge/internal/registry"
	"github.com/eric0324/falcon-bridge/internal/resolver"
	"github.com/eric0324/falcon-bridge/internal/session"
	"github.com/eric0324/falcon-bridge/internal/store"
	"go.uber.org/zap"
)

// Dependencies holds shared state injected into all HTTP handlers.
type Dependencies struct {
	Store      *store.Store
	Registry   *registry.PostgresRegistry
	Resolver   *resolver.Resolver
	Bridge     *bridge.Handler
	Sessions   *session.Issuer
	Reader     *chread.Reader // nil if ClickHouse unavailable
	Logger     *zap.Logger
	CacheTTL   time.Duration
	SessionTTL time.Duration
}

// NewRouter builds the HTTP mux with all routes wired up.
func NewRouter(deps *Dependencies) http.Handler {
	mux := http.NewServeMux()

	// Bridge endpoints (auth required via Bearer fbk_ key)
	mux.HandleFunc("POST /v1/bridge", deps.authMiddleware(deps.handleBridge))
	mux.HandleFunc("POST /v1/bridge/sessions", deps.authMiddleware(deps.handleCreateSession))

	// Client CRUD (no auth, dashboard auth added later)
	mux.HandleFunc("POST /api/falcon/clients", deps.handleCreateClient)
	mux.HandleFunc("GET /api/falcon/clients", deps.handleListClients)
	mux.HandleFunc("GET /api/falcon/clients/{client_id}", deps.handleGetClient)
	mux.HandleFunc("PATCH /api/falcon/clients/{client_id}", deps.handleUpdateClient)
	mux.HandleFunc("DELETE /api/falcon/clients/{client_id}", deps.handleDeleteClient)
	mux.HandleFunc("POST /api/falcon/clients/{client_id}/rotate-key", deps.handleRotateKey)

	// Data source CRUD (no auth)
	mux.HandleFunc("POST /api/falcon/sources", deps.handleCreateSource)
	mux.HandleFunc("GET /api/falcon/sources", deps.handleListSources)
	mux.HandleFunc("GET /api/falcon/sources/{source_name}", deps.handleGetSource)
	mux.HandleFunc("PATCH /api/falcon/sources/{source_name}", deps.handleUpdateSource)
	mux.HandleFunc("DELETE /api/falcon/sources/{source_name}", deps.handleDeleteSource)

	// Permission rules (no auth)
	mux.HandleFunc("GET /api/falcon/sources/{source_name}/permissions", deps.handleListRules)
	mux.HandleFunc("GET /api/falcon/sources/{source_name}/permissions/{department}", deps.handleGetRule)
	mux.HandleFunc("PUT /api/falcon/sources/{source_name}/permissions/{department}", deps.handleUpsertRule)
	mux.HandleFunc("DELETE /api/falcon/sources/{source_name}/permissions/{department}", deps.handleDeleteRule)

	// Tool CRUD (no auth)
	mux.HandleFunc("POST /api/falcon/tools", deps.handleCreateTool)
	mux.HandleFunc("GET /api/falcon/tools", deps.handleListTools)
	mux.HandleFunc("GET /api/falcon/tools/{tool_id}", deps.handleGetTool)
	mux.HandleFunc("PATCH /api/falcon/tools/{tool_id}", deps.handleUpdateTool)
	mux.HandleFunc("DELETE /api/falcon/tools/{tool_id}", deps.handleDeleteTool)

	// Resolver preview (no auth)
	mux.HandleFunc("GET /api/falcon/resolve", deps.handleResolve)

	// Decision audit & analytics (no auth)
	mux.HandleFunc("GET /api/falcon/events", deps.handleListDecisions)
	mux.HandleFunc("GET /api/falcon/events/{request_id}", deps.handleGetDecision)
	mux.HandleFunc("GET /api/falcon/analytics", deps.handleGetAnalytics)

	// Health check
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return corsMiddleware(requestLogging(mux, deps.Logger))
}
