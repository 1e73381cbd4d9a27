package registry

import "context"

// SourceCatalog enumerates active data sources.
type SourceCatalog interface {
	// ActiveSources returns every data source with is_active=true.
	ActiveSources(ctx context.Context) ([]DataSource, error)
}

// RuleProvider returns validated permission rules for one department key.
// Callers pass the literal DefaultDepartment to fetch fallback rules.
type RuleProvider interface {
	RulesForDepartment(ctx context.Context, department string) ([]PermissionRule, error)
}

// ToolProvider returns a tool's bridge-relevant projection by id.
// Returns nil (no error) when the tool does not exist.
type ToolProvider interface {
	GetTool(ctx context.Context, toolID string) (*Tool, error)
}
