package authz

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/eric0324/falcon-bridge/internal/registry"
	"github.com/eric0324/falcon-bridge/internal/resolver"
	"go.uber.org/zap"
)

type fakeCatalog struct {
	sources []registry.DataSource
	err     error
}

func (f *fakeCatalog) ActiveSources(_ context.Context) ([]registry.DataSource, error) {
	return f.sources, f.err
}

type fakeRules struct {
	byDept map[string][]registry.PermissionRule
}

func (f *fakeRules) RulesForDepartment(_ context.Context, dept string) ([]registry.PermissionRule, error) {
	return f.byDept[dept], nil
}

// engineeringAuthorizer builds the fixture shared by the scenario tests:
// department "engineering" has a rule on demo_postgres with read access to
// four tables and "password" read-blocked; "default" grants writes on
// demo_api's posts and comments tables.
func engineeringAuthorizer() *Authorizer {
	logger, _ := zap.NewDevelopment()
	catalog := &fakeCatalog{sources: []registry.DataSource{
		{Name: "demo_api", Type: registry.SourceRESTAPI, IsActive: true},
		{Name: "demo_postgres", Type: registry.SourcePostgres, IsActive: true},
	}}
	rules := &fakeRules{byDept: map[string][]registry.PermissionRule{
		"engineering": {{
			SourceName:          "demo_postgres",
			Department:          "engineering",
			ReadTables:          []string{"users", "orders", "products", "logs"},
			WriteTables:         []string{"orders"},
			DeleteTables:        []string{"logs"},
			ReadBlockedColumns:  []string{"password"},
			WriteBlockedColumns: []string{"role"},
		}},
		"default": {{
			SourceName:  "demo_api",
			Department:  "default",
			WriteTables: []string{"posts", "comments"},
		}},
	}}
	return New(resolver.New(catalog, rules, logger))
}

func scopedTool(sources ...string) *registry.Tool {
	return &registry.Tool{
		ID:             "tool-1",
		AuthorID:       "user-1",
		Visibility:     registry.VisibilityDepartment,
		AllowedSources: sources,
	}
}

func TestAuthorize_ReadStripsBlockedColumns(t *testing.T) {
	// Scenario A: read users with columns [id, password] → Allow, [id].
	a := engineeringAuthorizer()

	dec, err := a.Authorize(context.Background(), scopedTool("demo_postgres"), "engineering", Request{
		Operation:  OpRead,
		DataSource: "demo_postgres",
		Table:      "users",
		Columns:    []string{"id", "password"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !dec.Allowed {
		t.Fatalf("expected allow, got deny(%s)", dec.Reason)
	}
	if !reflect.DeepEqual(dec.Columns, []string{"id"}) {
		t.Fatalf("expected effective columns [id], got %v", dec.Columns)
	}
}

func TestAuthorize_TableNotPermitted(t *testing.T) {
	// Scenario B: read a table outside readTables.
	a := engineeringAuthorizer()

	dec, err := a.Authorize(context.Background(), scopedTool("demo_postgres"), "engineering", Request{
		Operation:  OpRead,
		DataSource: "demo_postgres",
		Table:      "secrets",
	})
	if err != nil {
		t.Fatal(err)
	}
	if dec.Allowed || dec.Reason != DenyTableNotPermitted {
		t.Fatalf("expected deny(table not permitted), got %+v", dec)
	}
}

func TestAuthorize_ToolScopeIsHardCeiling(t *testing.T) {
	// Scenario C: the department has full rights to demo_postgres but the
	// tool only declared demo_api.
	a := engineeringAuthorizer()

	dec, err := a.Authorize(context.Background(), scopedTool("demo_api"), "engineering", Request{
		Operation:  OpRead,
		DataSource: "demo_postgres",
		Table:      "users",
	})
	if err != nil {
		t.Fatal(err)
	}
	if dec.Allowed || dec.Reason != DenyUnscoped {
		t.Fatalf("expected deny(unscoped), got %+v", dec)
	}
}

func TestAuthorize_DefaultRuleWrite(t *testing.T) {
	// Scenario D: user without a department writes via the default rule.
	a := engineeringAuthorizer()

	dec, err := a.Authorize(context.Background(), scopedTool("demo_api"), "", Request{
		Operation:  OpWrite,
		DataSource: "demo_api",
		Table:      "comments",
		Payload:    map[string]any{"body": "hi"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !dec.Allowed {
		t.Fatalf("expected allow via default rule, got deny(%s)", dec.Reason)
	}
}

func TestAuthorize_WriteBlockedColumnRejectsWholePayload(t *testing.T) {
	a := engineeringAuthorizer()

	dec, err := a.Authorize(context.Background(), scopedTool("demo_postgres"), "engineering", Request{
		Operation:  OpWrite,
		DataSource: "demo_postgres",
		Table:      "orders",
		Payload:    map[string]any{"status": "shipped", "role": "admin"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if dec.Allowed || dec.Reason != DenyBlockedColumn {
		t.Fatalf("expected deny(blocked column present), got %+v", dec)
	}
}

func TestAuthorize_ReadFilterOnBlockedColumnDenied(t *testing.T) {
	// Filtering by a blocked column and counting rows would reveal its
	// values even though the projection strips it.
	a := engineeringAuthorizer()

	dec, err := a.Authorize(context.Background(), scopedTool("demo_postgres"), "engineering", Request{
		Operation:  OpRead,
		DataSource: "demo_postgres",
		Table:      "users",
		Columns:    []string{"id"},
		Params:     map[string]any{"password": "guess"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if dec.Allowed || dec.Reason != DenyBlockedColumn {
		t.Fatalf("expected deny(blocked column present), got %+v", dec)
	}
}

func TestAuthorize_DeleteFilterOnBlockedColumnDenied(t *testing.T) {
	a := engineeringAuthorizer()

	dec, err := a.Authorize(context.Background(), scopedTool("demo_postgres"), "engineering", Request{
		Operation:  OpDelete,
		DataSource: "demo_postgres",
		Table:      "logs",
		Params:     map[string]any{"password": "guess"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if dec.Allowed || dec.Reason != DenyBlockedColumn {
		t.Fatalf("expected deny(blocked column present), got %+v", dec)
	}

	// Filters on unblocked columns still pass.
	dec, err = a.Authorize(context.Background(), scopedTool("demo_postgres"), "engineering", Request{
		Operation:  OpRead,
		DataSource: "demo_postgres",
		Table:      "users",
		Params:     map[string]any{"email": "a@example.com"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !dec.Allowed {
		t.Fatalf("expected allow for unblocked filter, got deny(%s)", dec.Reason)
	}
}

func TestAuthorize_SourceNotPermittedForDepartment(t *testing.T) {
	// The tool declares demo_postgres but the marketing department has no
	// rule for it. Tool scope cannot escape department permissions.
	a := engineeringAuthorizer()

	dec, err := a.Authorize(context.Background(), scopedTool("demo_postgres"), "marketing", Request{
		Operation:  OpRead,
		DataSource: "demo_postgres",
		Table:      "users",
	})
	if err != nil {
		t.Fatal(err)
	}
	if dec.Allowed || dec.Reason != DenySourceNotPermitted {
		t.Fatalf("expected deny(source not permitted for department), got %+v", dec)
	}
}

func TestAuthorize_ListSchemaExcludesBlockedColumns(t *testing.T) {
	a := engineeringAuthorizer()

	dec, err := a.Authorize(context.Background(), scopedTool("demo_postgres"), "engineering", Request{
		Operation:  OpListSchema,
		DataSource: "demo_postgres",
		Table:      "users",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !dec.Allowed {
		t.Fatalf("expected allow, got deny(%s)", dec.Reason)
	}
	if !reflect.DeepEqual(dec.BlockedColumns, []string{"password"}) {
		t.Fatalf("expected password to be stripped from schema, got %v", dec.BlockedColumns)
	}
}

func TestAuthorize_ListSchemaDeniedOnUnreadableTable(t *testing.T) {
	a := engineeringAuthorizer()

	dec, err := a.Authorize(context.Background(), scopedTool("demo_postgres"), "engineering", Request{
		Operation:  OpListSchema,
		DataSource: "demo_postgres",
		Table:      "secrets",
	})
	if err != nil {
		t.Fatal(err)
	}
	if dec.Allowed || dec.Reason != DenyTableNotPermitted {
		t.Fatalf("expected deny(table not permitted), got %+v", dec)
	}
}

func TestAuthorize_ListSourcesIntersectsToolScope(t *testing.T) {
	a := engineeringAuthorizer()

	dec, err := a.Authorize(context.Background(), scopedTool("demo_postgres"), "engineering", Request{
		Operation: OpListSources,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !dec.Allowed {
		t.Fatalf("expected allow, got deny(%s)", dec.Reason)
	}
	// engineering can reach demo_api (default rule) and demo_postgres, but
	// the tool only declared demo_postgres.
	if len(dec.Sources) != 1 || dec.Sources[0].Source.Name != "demo_postgres" {
		t.Fatalf("expected only demo_postgres, got %+v", dec.Sources)
	}
}

func TestAuthorize_DeleteAllowList(t *testing.T) {
	a := engineeringAuthorizer()
	tool := scopedTool("demo_postgres")

	dec, err := a.Authorize(context.Background(), tool, "engineering", Request{
		Operation:  OpDelete,
		DataSource: "demo_postgres",
		Table:      "logs",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !dec.Allowed {
		t.Fatalf("expected delete on logs to be allowed, got deny(%s)", dec.Reason)
	}

	dec, err = a.Authorize(context.Background(), tool, "engineering", Request{
		Operation:  OpDelete,
		DataSource: "demo_postgres",
		Table:      "users", // read-allowed but not delete-allowed
	})
	if err != nil {
		t.Fatal(err)
	}
	if dec.Allowed || dec.Reason != DenyTableNotPermitted {
		t.Fatalf("expected deny(table not permitted), got %+v", dec)
	}
}

func TestAuthorize_UnknownOperation(t *testing.T) {
	a := engineeringAuthorizer()

	dec, err := a.Authorize(context.Background(), scopedTool("demo_postgres"), "engineering", Request{
		Operation:  Operation("drop-everything"),
		DataSource: "demo_postgres",
	})
	if err != nil {
		t.Fatal(err)
	}
	if dec.Allowed || dec.Reason != DenyUnknownOperation {
		t.Fatalf("expected deny(unknown operation), got %+v", dec)
	}
}

func TestAuthorize_StoreFailurePropagates(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	catalog := &fakeCatalog{err: context.DeadlineExceeded}
	a := New(resolver.New(catalog, &fakeRules{}, logger))

	_, err := a.Authorize(context.Background(), scopedTool("demo_postgres"), "engineering", Request{
		Operation:  OpRead,
		DataSource: "demo_postgres",
		Table:      "users",
	})
	if !errors.Is(err, resolver.ErrStoreUnavailable) {
		t.Fatalf("infrastructure failure must not become a denial, got %v", err)
	}
}
