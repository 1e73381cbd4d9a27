package resolver

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/eric0324/falcon-bridge/internal/registry"
	"go.uber.org/zap"
)

// fakeCatalog and fakeRules are in-memory registry stand-ins.
type fakeCatalog struct {
	sources []registry.DataSource
	err     error
}

func (f *fakeCatalog) ActiveSources(_ context.Context) ([]registry.DataSource, error) {
	return f.sources, f.err
}

type fakeRules struct {
	byDept map[string][]registry.PermissionRule
	err    error
}

func (f *fakeRules) RulesForDepartment(_ context.Context, dept string) ([]registry.PermissionRule, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.byDept[dept], nil
}

func newTestResolver(catalog *fakeCatalog, rules *fakeRules) *Resolver {
	logger, _ := zap.NewDevelopment()
	return New(catalog, rules, logger)
}

func src(name string) registry.DataSource {
	return registry.DataSource{Name: name, Type: registry.SourcePostgres, IsActive: true}
}

func TestResolve_NoRuleMeansNoAccess(t *testing.T) {
	catalog := &fakeCatalog{sources: []registry.DataSource{src("demo_postgres")}}
	rules := &fakeRules{byDept: map[string][]registry.PermissionRule{}}
	r := newTestResolver(catalog, rules)

	grants, err := r.Resolve(context.Background(), "engineering")
	if err != nil {
		t.Fatal(err)
	}
	if len(grants) != 0 {
		t.Fatalf("expected no grants without rules, got %d", len(grants))
	}
}

func TestResolve_DefaultFallbackForNoDepartment(t *testing.T) {
	catalog := &fakeCatalog{sources: []registry.DataSource{src("demo_api")}}
	rules := &fakeRules{byDept: map[string][]registry.PermissionRule{
		"default": {{
			SourceName:  "demo_api",
			Department:  "default",
			WriteTables: []string{"posts", "comments"},
		}},
	}}
	r := newTestResolver(catalog, rules)

	grants, err := r.Resolve(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	if len(grants) != 1 {
		t.Fatalf("expected 1 grant via default rule, got %d", len(grants))
	}
	if !grants[0].CanWrite("comments") {
		t.Fatal("expected write access to comments")
	}
}

func TestResolve_DepartmentRuleOverridesDefault(t *testing.T) {
	catalog := &fakeCatalog{sources: []registry.DataSource{src("demo_postgres")}}
	rules := &fakeRules{byDept: map[string][]registry.PermissionRule{
		"default": {{
			SourceName: "demo_postgres",
			Department: "default",
			ReadTables: []string{"public_stats"},
		}},
		"engineering": {{
			SourceName: "demo_postgres",
			Department: "engineering",
			ReadTables: []string{"users", "orders"},
		}},
	}}
	r := newTestResolver(catalog, rules)

	grants, err := r.Resolve(context.Background(), "engineering")
	if err != nil {
		t.Fatal(err)
	}
	if len(grants) != 1 {
		t.Fatalf("expected 1 grant, got %d", len(grants))
	}
	if grants[0].CanRead("public_stats") {
		t.Fatal("department rule must replace the default rule, not merge with it")
	}
	if !grants[0].CanRead("users") {
		t.Fatal("expected read access to users")
	}
}

func TestResolve_InactiveSourceExcluded(t *testing.T) {
	// Scenario E: the catalog only lists active sources, so a rule pointing
	// at a deactivated source grants nothing.
	catalog := &fakeCatalog{sources: nil}
	rules := &fakeRules{byDept: map[string][]registry.PermissionRule{
		"engineering": {{
			SourceName: "retired_db",
			Department: "engineering",
			ReadTables: []string{"users"},
		}},
	}}
	r := newTestResolver(catalog, rules)

	grants, err := r.Resolve(context.Background(), "engineering")
	if err != nil {
		t.Fatal(err)
	}
	if len(grants) != 0 {
		t.Fatalf("expected rule for inactive source to be dropped, got %d grants", len(grants))
	}
}

func TestResolve_DeterministicOrderAndIdempotence(t *testing.T) {
	catalog := &fakeCatalog{sources: []registry.DataSource{
		src("zeta_db"), src("alpha_db"), src("mid_db"),
	}}
	rule := func(name string) registry.PermissionRule {
		return registry.PermissionRule{SourceName: name, Department: "ops", ReadTables: []string{"t"}}
	}
	rules := &fakeRules{byDept: map[string][]registry.PermissionRule{
		"ops": {rule("zeta_db"), rule("alpha_db"), rule("mid_db")},
	}}
	r := newTestResolver(catalog, rules)

	first, err := r.Resolve(context.Background(), "ops")
	if err != nil {
		t.Fatal(err)
	}
	second, err := r.Resolve(context.Background(), "ops")
	if err != nil {
		t.Fatal(err)
	}

	var names []string
	for _, g := range first {
		names = append(names, g.Source.Name)
	}
	want := []string{"alpha_db", "mid_db", "zeta_db"}
	if !reflect.DeepEqual(names, want) {
		t.Fatalf("expected stable name order %v, got %v", want, names)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatal("two resolves with no rule changes must be identical")
	}
}

func TestResolve_StoreFailureIsNotADenial(t *testing.T) {
	catalog := &fakeCatalog{err: context.DeadlineExceeded}
	rules := &fakeRules{}
	r := newTestResolver(catalog, rules)

	_, err := r.Resolve(context.Background(), "engineering")
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestGrant_MissingSource(t *testing.T) {
	catalog := &fakeCatalog{sources: []registry.DataSource{src("demo_postgres")}}
	rules := &fakeRules{byDept: map[string][]registry.PermissionRule{
		"engineering": {{
			SourceName: "demo_postgres",
			Department: "engineering",
			ReadTables: []string{"users"},
		}},
	}}
	r := newTestResolver(catalog, rules)

	g, err := r.Grant(context.Background(), "engineering", "demo_postgres")
	if err != nil {
		t.Fatal(err)
	}
	if g == nil {
		t.Fatal("expected grant for demo_postgres")
	}

	g, err = r.Grant(context.Background(), "engineering", "shadow_db")
	if err != nil {
		t.Fatal(err)
	}
	if g != nil {
		t.Fatal("expected nil grant for unknown source")
	}
}
