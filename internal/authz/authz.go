// Package authz decides whether a tool's bridge request may touch a data
// source, by intersecting department permissions with the tool's own
// declared source scope.
package authz

import (
	"context"

	"github.com/eric0324/falcon-bridge/internal/registry"
	"github.com/eric0324/falcon-bridge/internal/resolver"
)

// Operation is the kind of bridge request being authorized.
type Operation string

const (
	OpRead        Operation = "read"
	OpWrite       Operation = "write"
	OpDelete      Operation = "delete"
	OpListSchema  Operation = "list-schema"
	OpListSources Operation = "list-sources"
)

// DenyReason is one of the five attributable denial causes. Unknown source
// and unknown table deliberately collapse into the source/table reasons so
// callers cannot distinguish "does not exist" from "not permitted".
type DenyReason string

const (
	DenyUnscoped           DenyReason = "unscoped"
	DenySourceNotPermitted DenyReason = "source not permitted for department"
	DenyTableNotPermitted  DenyReason = "table not permitted"
	DenyBlockedColumn      DenyReason = "blocked column present"
	DenyUnknownOperation   DenyReason = "unknown operation"
)

// Request is the transient value object being authorized. Columns carries
// the read projection, Params the filter column set, Payload the write
// column set.
type Request struct {
	Operation  Operation
	DataSource string
	Table      string
	Columns    []string
	Params     map[string]any
	Payload    map[string]any
}

// Decision is the authorization outcome. Exactly one of Allowed/Reason is
// meaningful. For allowed reads, Columns is the effective column filter
// (the request projection minus blocked columns) and BlockedColumns lists
// the columns the executor must strip when no projection was requested.
// For list-sources, Sources holds the scoped grant list.
type Decision struct {
	Allowed        bool
	Reason         DenyReason
	Columns        []string
	BlockedColumns []string
	Grant          *resolver.SourceGrant
	Sources        []resolver.SourceGrant
}

func deny(reason DenyReason) Decision {
	return Decision{Reason: reason}
}

// Authorizer is a pure decision function over resolver output and tool
// scope. It performs no I/O against data sources.
type Authorizer struct {
	resolver *resolver.Resolver
}

// New creates an Authorizer over the given resolver.
func New(r *resolver.Resolver) *Authorizer {
	return &Authorizer{resolver: r}
}

// Authorize evaluates req for the given tool under the invoking user's
// department. A non-nil error is always infrastructure
// (resolver.ErrStoreUnavailable), never a permission outcome.
func (a *Authorizer) Authorize(ctx context.Context, tool *registry.Tool, department string, req Request) (Decision, error) {
	// Discovery: always allowed, scoped to the intersection of department
	// permissions and the tool's declared sources so a tool can never learn
	// about sources it was not scoped to.
	if req.Operation == OpListSources {
		grants, err := a.resolver.Resolve(ctx, department)
		if err != nil {
			return Decision{}, err
		}
		scoped := make([]resolver.SourceGrant, 0, len(grants))
		for _, g := range grants {
			if tool.AllowsSource(g.Source.Name) {
				scoped = append(scoped, g)
			}
		}
		return Decision{Allowed: true, Sources: scoped}, nil
	}

	switch req.Operation {
	case OpRead, OpWrite, OpDelete, OpListSchema:
	default:
		return deny(DenyUnknownOperation), nil
	}

	// The tool's declared scope is a hard ceiling regardless of what the
	// department would otherwise permit.
	if !tool.AllowsSource(req.DataSource) {
		return deny(DenyUnscoped), nil
	}

	// Department permissions can only narrow; they are re-checked at call
	// time against the invoking user's current department.
	grant, err := a.resolver.Grant(ctx, department, req.DataSource)
	if err != nil {
		return Decision{}, err
	}
	if grant == nil {
		return deny(DenySourceNotPermitted), nil
	}

	switch req.Operation {
	case OpRead:
		if !grant.CanRead(req.Table) {
			return deny(DenyTableNotPermitted), nil
		}
		// Filter params on a blocked column would turn the row count into
		// an equality oracle on values the projection hides.
		if anyKeyIn(req.Params, grant.ReadBlockedColumns) {
			return deny(DenyBlockedColumn), nil
		}
		return Decision{
			Allowed:        true,
			Columns:        subtract(req.Columns, grant.ReadBlockedColumns),
			BlockedColumns: grant.ReadBlockedColumns,
			Grant:          grant,
		}, nil

	case OpListSchema:
		// Schema listing follows the read allow-list. Blocked columns are
		// excluded from the returned schema so they cannot be discovered
		// indirectly.
		if !grant.CanRead(req.Table) {
			return deny(DenyTableNotPermitted), nil
		}
		return Decision{
			Allowed:        true,
			BlockedColumns: grant.ReadBlockedColumns,
			Grant:          grant,
		}, nil

	case OpWrite:
		if !grant.CanWrite(req.Table) {
			return deny(DenyTableNotPermitted), nil
		}
		// Writes are all-or-nothing: silently redacting a column could
		// corrupt caller expectations, so one blocked column rejects the
		// whole payload.
		for col := range req.Payload {
			if contains(grant.WriteBlockedColumns, col) {
				return deny(DenyBlockedColumn), nil
			}
		}
		return Decision{Allowed: true, Grant: grant}, nil

	case OpDelete:
		if !grant.CanDelete(req.Table) {
			return deny(DenyTableNotPermitted), nil
		}
		// Same oracle through rows_affected.
		if anyKeyIn(req.Params, grant.ReadBlockedColumns) {
			return deny(DenyBlockedColumn), nil
		}
		return Decision{Allowed: true, Grant: grant}, nil
	}

	return deny(DenyUnknownOperation), nil
}

// subtract returns requested minus blocked, preserving request order.
// Membership in the allow-list never un-blocks a column: the blocklist is
// a strict subtraction applied after the table is confirmed allowed.
func subtract(requested, blocked []string) []string {
	if len(requested) == 0 {
		return nil
	}
	out := make([]string, 0, len(requested))
	for _, col := range requested {
		if !contains(blocked, col) {
			out = append(out, col)
		}
	}
	return out
}

func anyKeyIn(params map[string]any, blocked []string) bool {
	for k := range params {
		if contains(blocked, k) {
			return true
		}
	}
	return false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
