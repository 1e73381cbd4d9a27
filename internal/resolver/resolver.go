// Package resolver computes, for a department, which data sources are
// reachable and the effective table/column scope for each.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/eric0324/falcon-bridge/internal/registry"
	"go.uber.org/zap"
)

// ErrStoreUnavailable distinguishes "cannot check permissions" from
// "checked and found no access". Callers must treat it as a hard failure,
// never as a denial.
var ErrStoreUnavailable = errors.New("permission store unavailable")

// SourceGrant is one reachable data source with its effective allow-lists.
type SourceGrant struct {
	Source              registry.DataSource
	ReadTables          []string
	WriteTables         []string
	DeleteTables        []string
	ReadBlockedColumns  []string
	WriteBlockedColumns []string
}

// CanRead reports whether table is in the read allow-list.
func (g *SourceGrant) CanRead(table string) bool { return contains(g.ReadTables, table) }

// CanWrite reports whether table is in the write allow-list.
func (g *SourceGrant) CanWrite(table string) bool { return contains(g.WriteTables, table) }

// CanDelete reports whether table is in the delete allow-list.
func (g *SourceGrant) CanDelete(table string) bool { return contains(g.DeleteTables, table) }

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Resolver derives accessible sources from the registry's read-only inputs.
// It is stateless and safe for concurrent use.
type Resolver struct {
	catalog registry.SourceCatalog
	rules   registry.RuleProvider
	logger  *zap.Logger
}

// New creates a Resolver over the given catalog and rule provider.
func New(catalog registry.SourceCatalog, rules registry.RuleProvider, logger *zap.Logger) *Resolver {
	return &Resolver{catalog: catalog, rules: rules, logger: logger}
}

// Resolve returns the sources reachable by the given department, ordered by
// source name. An empty department means "no department assigned" and falls
// back entirely to the "default" rules. A source with no rule for either
// the department or "default" is excluded (fail-closed). Inactive sources
// never appear: the catalog only enumerates active ones.
func (r *Resolver) Resolve(ctx context.Context, department string) ([]SourceGrant, error) {
	sources, err := r.catalog.ActiveSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	var deptRules []registry.PermissionRule
	if department != "" && department != registry.DefaultDepartment {
		deptRules, err = r.rules.RulesForDepartment(ctx, department)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}
	defaultRules, err := r.rules.RulesForDepartment(ctx, registry.DefaultDepartment)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	bySource := make(map[string]registry.PermissionRule, len(defaultRules))
	for _, rule := range defaultRules {
		bySource[rule.SourceName] = rule
	}
	// Department rules take precedence over the default fallback per source.
	for _, rule := range deptRules {
		bySource[rule.SourceName] = rule
	}

	grants := make([]SourceGrant, 0, len(bySource))
	for _, src := range sources {
		rule, ok := bySource[src.Name]
		if !ok {
			continue
		}
		grants = append(grants, SourceGrant{
			Source:              src,
			ReadTables:          rule.ReadTables,
			WriteTables:         rule.WriteTables,
			DeleteTables:        rule.DeleteTables,
			ReadBlockedColumns:  rule.ReadBlockedColumns,
			WriteBlockedColumns: rule.WriteBlockedColumns,
		})
	}

	// Deterministic order for testability; rules pointing at sources missing
	// from the active catalog were dropped above.
	sort.Slice(grants, func(i, j int) bool {
		return grants[i].Source.Name < grants[j].Source.Name
	})
	return grants, nil
}

// Grant returns the single grant for one source name, or nil when the
// department cannot reach it.
func (r *Resolver) Grant(ctx context.Context, department, sourceName string) (*SourceGrant, error) {
	grants, err := r.Resolve(ctx, department)
	if err != nil {
		return nil, err
	}
	for i := range grants {
		if grants[i].Source.Name == sourceName {
			return &grants[i], nil
		}
	}
	return nil, nil
}
