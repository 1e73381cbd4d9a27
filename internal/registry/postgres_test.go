package registry

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"go.uber.org/zap"
)

// mockRowStore is a test helper with canned rows and call counting.
type mockRowStore struct {
	sources []sourceRow
	rules   []ruleRow
	tool    *toolRow
	err     error

	sourceCalls int
	ruleCalls   int
	toolCalls   int
}

func (m *mockRowStore) ListActiveSources(_ context.Context) ([]sourceRow, error) {
	m.sourceCalls++
	if m.err != nil {
		return nil, m.err
	}
	return m.sources, nil
}

func (m *mockRowStore) ListRulesForDepartment(_ context.Context, _ string) ([]ruleRow, error) {
	m.ruleCalls++
	if m.err != nil {
		return nil, m.err
	}
	return m.rules, nil
}

func (m *mockRowStore) LookupTool(_ context.Context, _ string) (*toolRow, error) {
	m.toolCalls++
	if m.err != nil {
		return nil, m.err
	}
	if m.tool == nil {
		return nil, sql.ErrNoRows
	}
	return m.tool, nil
}

func newTestRegistry(store rowStore) *PostgresRegistry {
	logger, _ := zap.NewDevelopment()
	return newPostgresRegistryWithStore(store, 30*time.Second, 30*time.Second, logger)
}

func TestRegistry_RulesCacheHit(t *testing.T) {
	store := &mockRowStore{
		rules: []ruleRow{{
			SourceName:  "demo_postgres",
			Department:  "engineering",
			ReadTables:  `["users","orders"]`,
			WriteTables: `[]`,
		}},
	}
	reg := newTestRegistry(store)

	rules, err := reg.RulesForDepartment(context.Background(), "engineering")
	if err != nil {
		t.Fatal(err)
	}
	if len(rules) != 1 {
		t.Fatalf("expected 1 rule, got %d", len(rules))
	}
	if store.ruleCalls != 1 {
		t.Fatalf("expected 1 DB call, got %d", store.ruleCalls)
	}

	// Second call is a cache hit
	if _, err := reg.RulesForDepartment(context.Background(), "engineering"); err != nil {
		t.Fatal(err)
	}
	if store.ruleCalls != 1 {
		t.Fatalf("expected still 1 DB call (cache hit), got %d", store.ruleCalls)
	}
}

func TestRegistry_MalformedRuleSkipped(t *testing.T) {
	store := &mockRowStore{
		rules: []ruleRow{
			{
				SourceName: "good",
				Department: "engineering",
				ReadTables: `["users"]`,
			},
			{
				SourceName: "bad",
				Department: "engineering",
				ReadTables: `["users", 42]`, // non-string entry
			},
		},
	}
	reg := newTestRegistry(store)

	rules, err := reg.RulesForDepartment(context.Background(), "engineering")
	if err != nil {
		t.Fatal(err)
	}
	if len(rules) != 1 {
		t.Fatalf("expected malformed rule to be rejected, got %d rules", len(rules))
	}
	if rules[0].SourceName != "good" {
		t.Fatalf("expected good rule to survive, got %s", rules[0].SourceName)
	}
}

func TestRegistry_MalformedSourceSkipped(t *testing.T) {
	store := &mockRowStore{
		sources: []sourceRow{
			{Name: "demo_postgres", SourceType: "postgres", IsActive: true},
			{Name: "mystery", SourceType: "quantum_db", IsActive: true},
		},
	}
	reg := newTestRegistry(store)

	sources, err := reg.ActiveSources(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(sources) != 1 {
		t.Fatalf("expected unknown source type to be excluded, got %d sources", len(sources))
	}
	if sources[0].Name != "demo_postgres" {
		t.Fatalf("expected demo_postgres, got %s", sources[0].Name)
	}
}

func TestRegistry_ToolNotFoundNegativeCache(t *testing.T) {
	store := &mockRowStore{}
	reg := newTestRegistry(store)

	tool, err := reg.GetTool(context.Background(), "missing")
	if err != nil {
		t.Fatal(err)
	}
	if tool != nil {
		t.Fatal("expected nil for missing tool")
	}
	if store.toolCalls != 1 {
		t.Fatalf("expected 1 DB call, got %d", store.toolCalls)
	}

	// Negative cache hit, no second DB call
	tool, _ = reg.GetTool(context.Background(), "missing")
	if tool != nil {
		t.Fatal("expected nil from negative cache")
	}
	if store.toolCalls != 1 {
		t.Fatalf("expected still 1 DB call (negative cache), got %d", store.toolCalls)
	}
}

func TestRegistry_ToolParse(t *testing.T) {
	store := &mockRowStore{
		tool: &toolRow{
			ID:             "tool-1",
			Name:           "headcount-dashboard",
			AuthorID:       "user-9",
			Department:     sql.NullString{String: "engineering", Valid: true},
			Visibility:     "department",
			AllowedSources: `["demo_postgres","demo_api"]`,
		},
	}
	reg := newTestRegistry(store)

	tool, err := reg.GetTool(context.Background(), "tool-1")
	if err != nil {
		t.Fatal(err)
	}
	if tool == nil {
		t.Fatal("expected tool")
	}
	if tool.Visibility != VisibilityDepartment {
		t.Fatalf("expected department visibility, got %s", tool.Visibility)
	}
	if !tool.AllowsSource("demo_api") {
		t.Fatal("expected demo_api in scope")
	}
	if tool.AllowsSource("demo_clickhouse") {
		t.Fatal("demo_clickhouse must not be in scope")
	}
}

func TestRegistry_DBError(t *testing.T) {
	store := &mockRowStore{err: context.DeadlineExceeded}
	reg := newTestRegistry(store)

	if _, err := reg.RulesForDepartment(context.Background(), "engineering"); err == nil {
		t.Fatal("expected error on DB failure")
	}
	if _, err := reg.ActiveSources(context.Background()); err == nil {
		t.Fatal("expected error on DB failure")
	}
}
