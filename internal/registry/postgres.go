package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	defaultRuleTTL    = 30 * time.Second
	defaultCatalogTTL = 30 * time.Second
	defaultToolTTL    = 60 * time.Second

	refreshTimeout = 5 * time.Second
)

// rowStore abstracts the raw DB queries for testability.
type rowStore interface {
	ListActiveSources(ctx context.Context) ([]sourceRow, error)
	ListRulesForDepartment(ctx context.Context, department string) ([]ruleRow, error)
	LookupTool(ctx context.Context, toolID string) (*toolRow, error)
}

type sourceRow struct {
	Name        string
	DisplayName string
	SourceType  string
	Config      []byte
	IsActive    bool
}

type ruleRow struct {
	SourceName          string
	Department          string
	ReadTables          string // JSONB as string
	WriteTables         string
	DeleteTables        string
	ReadBlockedColumns  string
	WriteBlockedColumns string
}

type toolRow struct {
	ID             string
	Name           string
	AuthorID       string
	Department     sql.NullString
	Visibility     string
	AllowedSources string // JSONB as string
}

// sqlRowStore is the real implementation using *sql.DB.
type sqlRowStore struct {
	db *sql.DB
}

func (s *sqlRowStore) ListActiveSources(ctx context.Context) ([]sourceRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, display_name, source_type, config, is_active
		FROM data_sources
		WHERE is_active = true
		ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("ListActiveSources: %w", err)
	}
	defer rows.Close()

	var out []sourceRow
	for rows.Next() {
		var r sourceRow
		if err := rows.Scan(&r.Name, &r.DisplayName, &r.SourceType, &r.Config, &r.IsActive); err != nil {
			return nil, fmt.Errorf("ListActiveSources: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqlRowStore) ListRulesForDepartment(ctx context.Context, department string) ([]ruleRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source_name, department, read_tables, write_tables, delete_tables,
		       read_blocked_columns, write_blocked_columns
		FROM permission_rules
		WHERE department = $1
		ORDER BY source_name`, department)
	if err != nil {
		return nil, fmt.Errorf("ListRulesForDepartment: %w", err)
	}
	defer rows.Close()

	var out []ruleRow
	for rows.Next() {
		var r ruleRow
		if err := rows.Scan(&r.SourceName, &r.Department, &r.ReadTables, &r.WriteTables,
			&r.DeleteTables, &r.ReadBlockedColumns, &r.WriteBlockedColumns); err != nil {
			return nil, fmt.Errorf("ListRulesForDepartment: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqlRowStore) LookupTool(ctx context.Context, toolID string) (*toolRow, error) {
	var r toolRow
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, author_id, department, visibility, allowed_sources
		FROM tools WHERE id = $1`, toolID,
	).Scan(&r.ID, &r.Name, &r.AuthorID, &r.Department, &r.Visibility, &r.AllowedSources)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// PostgresRegistry serves validated DataSource, PermissionRule and Tool
// records with per-concern TTL caches. Rule caching is keyed by department,
// which bounds how long a revoked rule keeps granting access.
type PostgresRegistry struct {
	store rowStore

	sources *swrCache[[]DataSource]
	rules   *swrCache[[]PermissionRule]
	tools   *swrCache[*Tool]

	logger *zap.Logger
}

// PostgresRegistryConfig configures the PostgresRegistry.
type PostgresRegistryConfig struct {
	DB      *sql.DB
	RuleTTL time.Duration
	ToolTTL time.Duration
	Logger  *zap.Logger
}

// NewPostgresRegistry creates a registry backed by PostgreSQL.
func NewPostgresRegistry(cfg PostgresRegistryConfig) *PostgresRegistry {
	return newPostgresRegistryWithStore(&sqlRowStore{db: cfg.DB}, cfg.RuleTTL, cfg.ToolTTL, cfg.Logger)
}

// newPostgresRegistryWithStore injects a rowStore for testing.
func newPostgresRegistryWithStore(store rowStore, ruleTTL, toolTTL time.Duration, logger *zap.Logger) *PostgresRegistry {
	if ruleTTL == 0 {
		ruleTTL = defaultRuleTTL
	}
	if toolTTL == 0 {
		toolTTL = defaultToolTTL
	}
	return &PostgresRegistry{
		store:   store,
		sources: newSWRCache[[]DataSource](defaultCatalogTTL),
		rules:   newSWRCache[[]PermissionRule](ruleTTL),
		tools:   newSWRCache[*Tool](toolTTL),
		logger:  logger,
	}
}

const catalogKey = "_catalog"

// ActiveSources implements SourceCatalog.
func (r *PostgresRegistry) ActiveSources(ctx context.Context) ([]DataSource, error) {
	if cached, hit, needsRefresh := r.sources.get(catalogKey); hit {
		if needsRefresh {
			go r.refreshSources()
		}
		return cached, nil
	}

	sources, err := r.fetchSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("ActiveSources: %w", err)
	}
	r.sources.set(catalogKey, sources)
	return sources, nil
}

func (r *PostgresRegistry) fetchSources(ctx context.Context) ([]DataSource, error) {
	rows, err := r.store.ListActiveSources(ctx)
	if err != nil {
		return nil, err
	}
	sources := make([]DataSource, 0, len(rows))
	for _, row := range rows {
		ds, err := parseSourceRow(row)
		if err != nil {
			// A misconfigured source must not take the catalog down;
			// it is excluded, which fails closed for everything scoped to it.
			r.logger.Warn("skipping malformed data source",
				zap.String("source", row.Name),
				zap.Error(err),
			)
			continue
		}
		sources = append(sources, ds)
	}
	return sources, nil
}

func (r *PostgresRegistry) refreshSources() {
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	sources, err := r.fetchSources(ctx)
	if err != nil {
		r.logger.Warn("background source catalog refresh failed", zap.Error(err))
		r.sources.delete(catalogKey)
		return
	}
	r.sources.set(catalogKey, sources)
}

// RulesForDepartment implements RuleProvider.
func (r *PostgresRegistry) RulesForDepartment(ctx context.Context, department string) ([]PermissionRule, error) {
	if cached, hit, needsRefresh := r.rules.get(department); hit {
		if needsRefresh {
			go r.refreshRules(department)
		}
		return cached, nil
	}

	rules, err := r.fetchRules(ctx, department)
	if err != nil {
		return nil, fmt.Errorf("RulesForDepartment: %w", err)
	}
	r.rules.set(department, rules)
	return rules, nil
}

func (r *PostgresRegistry) fetchRules(ctx context.Context, department string) ([]PermissionRule, error) {
	rows, err := r.store.ListRulesForDepartment(ctx, department)
	if err != nil {
		return nil, err
	}
	rules := make([]PermissionRule, 0, len(rows))
	for _, row := range rows {
		rule, err := parseRuleRow(row)
		if err != nil {
			// Reject malformed rows at the boundary. Excluding the rule
			// fails closed: the source simply grants nothing.
			r.logger.Warn("skipping malformed permission rule",
				zap.String("source", row.SourceName),
				zap.String("department", row.Department),
				zap.Error(err),
			)
			continue
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func (r *PostgresRegistry) refreshRules(department string) {
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	rules, err := r.fetchRules(ctx, department)
	if err != nil {
		r.logger.Warn("background rule refresh failed",
			zap.String("department", department),
			zap.Error(err),
		)
		r.rules.delete(department)
		return
	}
	r.rules.set(department, rules)
}

// GetTool implements ToolProvider. A missing tool is negatively cached.
func (r *PostgresRegistry) GetTool(ctx context.Context, toolID string) (*Tool, error) {
	if cached, hit, needsRefresh := r.tools.get(toolID); hit {
		if needsRefresh {
			go r.refreshTool(toolID)
		}
		return cached, nil
	}

	tool, err := r.fetchTool(ctx, toolID)
	if err != nil {
		if err == sql.ErrNoRows {
			r.tools.set(toolID, nil)
			return nil, nil
		}
		return nil, fmt.Errorf("GetTool: %w", err)
	}
	r.tools.set(toolID, tool)
	return tool, nil
}

func (r *PostgresRegistry) fetchTool(ctx context.Context, toolID string) (*Tool, error) {
	row, err := r.store.LookupTool(ctx, toolID)
	if err != nil {
		return nil, err
	}
	return parseToolRow(row)
}

func (r *PostgresRegistry) refreshTool(toolID string) {
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	tool, err := r.fetchTool(ctx, toolID)
	if err != nil {
		if err == sql.ErrNoRows {
			r.tools.set(toolID, nil)
			return
		}
		r.logger.Warn("background tool refresh failed",
			zap.String("tool_id", toolID),
			zap.Error(err),
		)
		r.tools.delete(toolID)
		return
	}
	r.tools.set(toolID, tool)
}

// InvalidateRules drops cached rules for a department after an admin edit,
// so changes take effect without waiting out the TTL.
func (r *PostgresRegistry) InvalidateRules(department string) {
	r.rules.delete(department)
}

// InvalidateSources drops the cached source catalog.
func (r *PostgresRegistry) InvalidateSources() {
	r.sources.delete(catalogKey)
}

// InvalidateTool drops one cached tool.
func (r *PostgresRegistry) InvalidateTool(toolID string) {
	r.tools.delete(toolID)
}

func parseSourceRow(row sourceRow) (DataSource, error) {
	st, err := validateSourceType(row.SourceType)
	if err != nil {
		return DataSource{}, err
	}
	cfg := json.RawMessage(row.Config)
	if len(cfg) > 0 && !json.Valid(cfg) {
		return DataSource{}, fmt.Errorf("%w: source %q config is not valid JSON", ErrMalformedRule, row.Name)
	}
	return DataSource{
		Name:        row.Name,
		DisplayName: row.DisplayName,
		Type:        st,
		Config:      cfg,
		IsActive:    row.IsActive,
	}, nil
}

func parseRuleRow(row ruleRow) (PermissionRule, error) {
	rule := PermissionRule{
		SourceName: row.SourceName,
		Department: row.Department,
	}

	var err error
	if rule.ReadTables, err = parseNameList(row.ReadTables, "read_tables"); err != nil {
		return PermissionRule{}, err
	}
	if rule.WriteTables, err = parseNameList(row.WriteTables, "write_tables"); err != nil {
		return PermissionRule{}, err
	}
	if rule.DeleteTables, err = parseNameList(row.DeleteTables, "delete_tables"); err != nil {
		return PermissionRule{}, err
	}
	if rule.ReadBlockedColumns, err = parseNameList(row.ReadBlockedColumns, "read_blocked_columns"); err != nil {
		return PermissionRule{}, err
	}
	if rule.WriteBlockedColumns, err = parseNameList(row.WriteBlockedColumns, "write_blocked_columns"); err != nil {
		return PermissionRule{}, err
	}
	return rule, nil
}

func parseToolRow(row *toolRow) (*Tool, error) {
	vis, err := validateVisibility(row.Visibility)
	if err != nil {
		return nil, err
	}
	allowed, err := parseNameList(row.AllowedSources, "allowed_sources")
	if err != nil {
		return nil, err
	}
	tool := &Tool{
		ID:             row.ID,
		Name:           row.Name,
		AuthorID:       row.AuthorID,
		Visibility:     vis,
		AllowedSources: allowed,
	}
	if row.Department.Valid {
		tool.Department = row.Department.String
	}
	return tool, nil
}
