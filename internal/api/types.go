package api

import (
	"encoding/json"
	"time"
)

// --- Bridge sessions ---

// CreateSessionReq is the JSON body for POST /v1/bridge/sessions. The
// embedding app, not the sandbox, supplies the department.
type CreateSessionReq struct {
	ToolID     string `json:"tool_id"`
	UserID     string `json:"user_id"`
	Department string `json:"department,omitempty"`
}

// CreateSessionResp returns the signed session token.
type CreateSessionResp struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in"`
}

// --- Client CRUD ---

// CreateClientReq is the JSON body for POST /api/falcon/clients.
type CreateClientReq struct {
	Name string `json:"name"`
}

// CreateClientResp includes the plaintext API key (shown once).
type CreateClientResp struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	APIKey       string    `json:"api_key"`
	APIKeyPrefix string    `json:"api_key_prefix"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
}

// UpdateClientReq is the JSON body for PATCH /api/falcon/clients/{id}.
type UpdateClientReq struct {
	Name     *string `json:"name,omitempty"`
	IsActive *bool   `json:"is_active,omitempty"`
}

// ClientResp is the client shape without the plaintext key.
type ClientResp struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	APIKeyPrefix string    `json:"api_key_prefix"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// RotateKeyResp includes the new plaintext API key (shown once).
type RotateKeyResp struct {
	APIKey       string `json:"api_key"`
	APIKeyPrefix string `json:"api_key_prefix"`
}

// --- Data source CRUD ---

// CreateSourceReq is the JSON body for POST /api/falcon/sources.
type CreateSourceReq struct {
	Name        string          `json:"name"`
	DisplayName string          `json:"display_name"`
	SourceType  string          `json:"source_type"`
	Config      json.RawMessage `json:"config,omitempty"`
}

// UpdateSourceReq is the JSON body for PATCH /api/falcon/sources/{name}.
type UpdateSourceReq struct {
	DisplayName *string          `json:"display_name,omitempty"`
	Config      *json.RawMessage `json:"config,omitempty"`
	IsActive    *bool            `json:"is_active,omitempty"`
}

// SourceResp is the admin-facing source shape. This is the only surface
// that returns the connection config.
type SourceResp struct {
	Name        string          `json:"name"`
	DisplayName string          `json:"display_name"`
	SourceType  string          `json:"source_type"`
	Config      json.RawMessage `json:"config"`
	IsActive    bool            `json:"is_active"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// --- Permission rules ---

// UpsertRuleReq is the JSON body for PUT .../permissions/{department}.
// The stored rule becomes exactly this body (PUT semantics).
type UpsertRuleReq struct {
	ReadTables          []string `json:"read_tables"`
	WriteTables         []string `json:"write_tables"`
	DeleteTables        []string `json:"delete_tables"`
	ReadBlockedColumns  []string `json:"read_blocked_columns"`
	WriteBlockedColumns []string `json:"write_blocked_columns"`
}

// RuleResp is a permission rule in API shape.
type RuleResp struct {
	SourceName          string    `json:"source_name"`
	Department          string    `json:"department"`
	ReadTables          []string  `json:"read_tables"`
	WriteTables         []string  `json:"write_tables"`
	DeleteTables        []string  `json:"delete_tables"`
	ReadBlockedColumns  []string  `json:"read_blocked_columns"`
	WriteBlockedColumns []string  `json:"write_blocked_columns"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// --- Tool CRUD ---

// CreateToolReq is the JSON body for POST /api/falcon/tools.
type CreateToolReq struct {
	Name           string   `json:"name"`
	AuthorID       string   `json:"author_id"`
	Department     *string  `json:"department,omitempty"`
	Visibility     string   `json:"visibility"`
	AllowedSources []string `json:"allowed_sources"`
}

// UpdateToolReq is the JSON body for PATCH /api/falcon/tools/{id}.
type UpdateToolReq struct {
	Name           *string   `json:"name,omitempty"`
	Visibility     *string   `json:"visibility,omitempty"`
	AllowedSources *[]string `json:"allowed_sources,omitempty"`
}

// ToolResp is a tool in API shape.
type ToolResp struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	AuthorID       string    `json:"author_id"`
	Department     *string   `json:"department"`
	Visibility     string    `json:"visibility"`
	AllowedSources []string  `json:"allowed_sources"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// --- Resolver preview ---

// GrantResp is one resolved source grant, as shown in the admin preview.
type GrantResp struct {
	Source              string   `json:"source"`
	DisplayName         string   `json:"display_name"`
	SourceType          string   `json:"source_type"`
	ReadTables          []string `json:"read_tables"`
	WriteTables         []string `json:"write_tables"`
	DeleteTables        []string `json:"delete_tables"`
	ReadBlockedColumns  []string `json:"read_blocked_columns"`
	WriteBlockedColumns []string `json:"write_blocked_columns"`
}

// ResolveResp is the output of GET /api/falcon/resolve.
type ResolveResp struct {
	Department string      `json:"department"`
	Grants     []GrantResp `json:"grants"`
}

// --- Decision events ---

// DecisionResp mirrors one row of the bridge_decisions audit table.
type DecisionResp struct {
	RequestID     string    `json:"request_id"`
	ClientID      string    `json:"client_id"`
	ToolID        string    `json:"tool_id"`
	UserID        string    `json:"user_id"`
	Department    string    `json:"department"`
	Operation     string    `json:"operation"`
	SourceName    *string   `json:"source_name"`
	TableName     *string   `json:"table_name"`
	Decision      string    `json:"decision"`
	DenyReason    *string   `json:"deny_reason"`
	ColumnsAsked  uint32    `json:"columns_asked"`
	ColumnsServed uint32    `json:"columns_served"`
	ExecutorError bool      `json:"executor_error"`
	LatencyMs     float32   `json:"latency_ms"`
	Timestamp     time.Time `json:"timestamp"`
}

// DecisionListResp is the paginated decision listing.
type DecisionListResp struct {
	Decisions []DecisionResp `json:"decisions"`
	Total     int            `json:"total"`
	Page      int            `json:"page"`
	PageSize  int            `json:"page_size"`
}

// ErrorResp is a standard error response body.
type ErrorResp struct {
	Detail string `json:"detail"`
}
