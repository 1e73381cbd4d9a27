package executor

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/eric0324/falcon-bridge/internal/registry"
	"go.uber.org/zap"
)

// identPattern is the only shape accepted for table and column names before
// they are interpolated into a statement. Values never take this path;
// they always go through placeholders.
var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// sqlSourceConfig is the config blob shape for relational sources.
type sqlSourceConfig struct {
	DSN string `json:"dsn"`
}

// SQLExecutor runs structured reads, writes, deletes and schema listings
// against PostgreSQL data sources. Connection pools are cached per source
// and keyed by a hash of the source config, so an edited DSN gets a fresh
// pool instead of a stale one.
type SQLExecutor struct {
	mu     sync.Mutex
	pools  map[string]*pooledDB
	logger *zap.Logger
}

type pooledDB struct {
	db      *sql.DB
	cfgHash string
}

// NewSQLExecutor creates a SQLExecutor.
func NewSQLExecutor(logger *zap.Logger) *SQLExecutor {
	return &SQLExecutor{
		pools:  make(map[string]*pooledDB),
		logger: logger,
	}
}

// Close closes all cached pools.
func (e *SQLExecutor) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for name, p := range e.pools {
		if err := p.db.Close(); err != nil {
			e.logger.Warn("closing source pool failed", zap.String("source", name), zap.Error(err))
		}
		delete(e.pools, name)
	}
}

func (e *SQLExecutor) pool(source registry.DataSource) (*sql.DB, error) {
	sum := sha256.Sum256(source.Config)
	cfgHash := hex.EncodeToString(sum[:])

	e.mu.Lock()
	defer e.mu.Unlock()

	if p, ok := e.pools[source.Name]; ok {
		if p.cfgHash == cfgHash {
			return p.db, nil
		}
		// Config changed under us, retire the old pool.
		_ = p.db.Close()
		delete(e.pools, source.Name)
	}

	var cfg sqlSourceConfig
	if err := json.Unmarshal(source.Config, &cfg); err != nil {
		return nil, fmt.Errorf("SQLExecutor: source %q config: %w", source.Name, err)
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("SQLExecutor: source %q has no dsn", source.Name)
	}

	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("SQLExecutor: open %q: %w", source.Name, err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	e.pools[source.Name] = &pooledDB{db: db, cfgHash: cfgHash}
	return db, nil
}

// Execute implements Executor for relational sources.
func (e *SQLExecutor) Execute(ctx context.Context, req Request) (json.RawMessage, error) {
	// Raw SQL passthrough cannot be column-filtered, so it is refused even
	// though the wire shape carries the field.
	if req.SQL != "" {
		return nil, fmt.Errorf("%w: raw sql", ErrUnsupported)
	}

	db, err := e.pool(req.Source)
	if err != nil {
		return nil, err
	}

	switch req.Operation {
	case "read":
		return e.read(ctx, db, req)
	case "write":
		return e.write(ctx, db, req)
	case "delete":
		return e.delete(ctx, db, req)
	case "list-schema":
		return e.listSchema(ctx, db, req)
	default:
		return nil, fmt.Errorf("%w: operation %q", ErrUnsupported, req.Operation)
	}
}

const readLimit = 500

func (e *SQLExecutor) read(ctx context.Context, db *sql.DB, req Request) (json.RawMessage, error) {
	projection := "*"
	if len(req.Columns) > 0 {
		quoted, err := quoteIdents(req.Columns)
		if err != nil {
			return nil, err
		}
		projection = strings.Join(quoted, ", ")
	}

	table, err := quoteIdent(req.Table)
	if err != nil {
		return nil, err
	}

	where, args, err := buildWhere(req.Params, 1)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT %s FROM %s%s LIMIT %d", projection, table, where, readLimit)
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	defer rows.Close()

	results, err := scanRows(rows)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}

	// SELECT * must still honor the blocklist.
	if len(req.Columns) == 0 {
		for _, row := range results {
			stripBlocked(row, req.BlockedColumns)
		}
	}
	return marshalResult(map[string]any{"rows": results, "count": len(results)})
}

func (e *SQLExecutor) write(ctx context.Context, db *sql.DB, req Request) (json.RawMessage, error) {
	if len(req.Payload) == 0 {
		return nil, fmt.Errorf("write: empty payload")
	}

	table, err := quoteIdent(req.Table)
	if err != nil {
		return nil, err
	}

	cols := make([]string, 0, len(req.Payload))
	for col := range req.Payload {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	quoted, err := quoteIdents(cols)
	if err != nil {
		return nil, err
	}

	placeholders := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, col := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = req.Payload[col]
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(quoted, ", "), strings.Join(placeholders, ", "))
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("write: %w", err)
	}
	n, _ := res.RowsAffected()
	return marshalResult(map[string]any{"rows_affected": n})
}

func (e *SQLExecutor) delete(ctx context.Context, db *sql.DB, req Request) (json.RawMessage, error) {
	if len(req.Params) == 0 {
		// An unfiltered DELETE would empty the table. Require a filter.
		return nil, fmt.Errorf("delete: filter params required")
	}

	table, err := quoteIdent(req.Table)
	if err != nil {
		return nil, err
	}
	where, args, err := buildWhere(req.Params, 1)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("DELETE FROM %s%s", table, where)
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("delete: %w", err)
	}
	n, _ := res.RowsAffected()
	return marshalResult(map[string]any{"rows_affected": n})
}

// columnInfo is one entry in a list-schema result.
type columnInfo struct {
	Name     string `json:"name"`
	DataType string `json:"data_type"`
	Nullable bool   `json:"nullable"`
}

func (e *SQLExecutor) listSchema(ctx context.Context, db *sql.DB, req Request) (json.RawMessage, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT column_name, data_type, is_nullable
		FROM information_schema.columns
		WHERE table_name = $1
		ORDER BY ordinal_position`, req.Table)
	if err != nil {
		return nil, fmt.Errorf("listSchema: %w", err)
	}
	defer rows.Close()

	blocked := make(map[string]bool, len(req.BlockedColumns))
	for _, col := range req.BlockedColumns {
		blocked[col] = true
	}

	var cols []columnInfo
	for rows.Next() {
		var name, dataType, nullable string
		if err := rows.Scan(&name, &dataType, &nullable); err != nil {
			return nil, fmt.Errorf("listSchema: %w", err)
		}
		if blocked[name] {
			continue
		}
		cols = append(cols, columnInfo{
			Name:     name,
			DataType: dataType,
			Nullable: nullable == "YES",
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listSchema: %w", err)
	}
	return marshalResult(map[string]any{"table": req.Table, "columns": cols})
}

// buildWhere turns equality params into a WHERE clause with placeholders,
// in sorted key order for determinism.
func buildWhere(params map[string]any, firstArg int) (string, []any, error) {
	if len(params) == 0 {
		return "", nil, nil
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	conds := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys))
	for i, k := range keys {
		col, err := quoteIdent(k)
		if err != nil {
			return "", nil, err
		}
		conds = append(conds, fmt.Sprintf("%s = $%d", col, firstArg+i))
		args = append(args, params[k])
	}
	return " WHERE " + strings.Join(conds, " AND "), args, nil
}

// scanRows converts *sql.Rows into row maps.
func scanRows(rows *sql.Rows) ([]map[string]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	results := make([]map[string]any, 0)
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			v := values[i]
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			row[col] = v
		}
		results = append(results, row)
	}
	return results, rows.Err()
}

func quoteIdent(name string) (string, error) {
	if !identPattern.MatchString(name) {
		return "", fmt.Errorf("invalid identifier %q", name)
	}
	return `"` + name + `"`, nil
}

func quoteIdents(names []string) ([]string, error) {
	out := make([]string, len(names))
	for i, n := range names {
		q, err := quoteIdent(n)
		if err != nil {
			return nil, err
		}
		out[i] = q
	}
	return out, nil
}

func marshalResult(v any) (json.RawMessage, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshalResult: %w", err)
	}
	return b, nil
}
