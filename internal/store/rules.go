package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Rule represents a row in the permission_rules table. Table and column
// lists are stored as JSONB arrays.
type Rule struct {
	SourceName          string
	Department          string
	ReadTables          []string
	WriteTables         []string
	DeleteTables        []string
	ReadBlockedColumns  []string
	WriteBlockedColumns []string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// UpsertRuleParams holds the full rule body. Upsert has PUT semantics: the
// stored rule becomes exactly this, there are no partial merges.
type UpsertRuleParams struct {
	SourceName          string
	Department          string
	ReadTables          []string
	WriteTables         []string
	DeleteTables        []string
	ReadBlockedColumns  []string
	WriteBlockedColumns []string
}

const ruleColumns = `source_name, department, read_tables, write_tables, delete_tables,
	       read_blocked_columns, write_blocked_columns, created_at, updated_at`

func scanRule(row interface{ Scan(...any) error }) (*Rule, error) {
	var r Rule
	var readT, writeT, deleteT, readBC, writeBC []byte
	if err := row.Scan(&r.SourceName, &r.Department, &readT, &writeT, &deleteT,
		&readBC, &writeBC, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	for _, pair := range []struct {
		raw []byte
		dst *[]string
	}{
		{readT, &r.ReadTables},
		{writeT, &r.WriteTables},
		{deleteT, &r.DeleteTables},
		{readBC, &r.ReadBlockedColumns},
		{writeBC, &r.WriteBlockedColumns},
	} {
		if err := json.Unmarshal(pair.raw, pair.dst); err != nil {
			return nil, err
		}
	}
	return &r, nil
}

func listJSON(list []string) json.RawMessage {
	if list == nil {
		list = []string{}
	}
	raw, _ := json.Marshal(list)
	return raw
}

// UpsertRule creates or fully replaces the rule for (source, department).
func (s *Store) UpsertRule(ctx context.Context, params UpsertRuleParams) (*Rule, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO permission_rules
			(source_name, department, read_tables, write_tables, delete_tables,
			 read_blocked_columns, write_blocked_columns)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (source_name, department) DO UPDATE SET
			read_tables           = EXCLUDED.read_tables,
			write_tables          = EXCLUDED.write_tables,
			delete_tables         = EXCLUDED.delete_tables,
			read_blocked_columns  = EXCLUDED.read_blocked_columns,
			write_blocked_columns = EXCLUDED.write_blocked_columns,
			updated_at            = now()
		RETURNING `+ruleColumns,
		params.SourceName, params.Department,
		listJSON(params.ReadTables), listJSON(params.WriteTables), listJSON(params.DeleteTables),
		listJSON(params.ReadBlockedColumns), listJSON(params.WriteBlockedColumns),
	)
	rule, err := scanRule(row)
	if err != nil {
		return nil, fmt.Errorf("UpsertRule: %w", err)
	}
	return rule, nil
}

// ListRules returns rules, optionally filtered by source and/or department.
func (s *Store) ListRules(ctx context.Context, sourceName, department *string) ([]*Rule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+ruleColumns+`
		FROM permission_rules
		WHERE ($1::text IS NULL OR source_name = $1)
		  AND ($2::text IS NULL OR department = $2)
		ORDER BY source_name, department`,
		sourceName, department)
	if err != nil {
		return nil, fmt.Errorf("ListRules: %w", err)
	}
	defer rows.Close()

	var rules []*Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("ListRules: %w", err)
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// GetRule returns the rule for (source, department), or nil if not found.
func (s *Store) GetRule(ctx context.Context, sourceName, department string) (*Rule, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+ruleColumns+`
		FROM permission_rules
		WHERE source_name = $1 AND department = $2`,
		sourceName, department)
	rule, err := scanRule(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetRule: %w", err)
	}
	return rule, nil
}

// DeleteRule deletes the rule for (source, department).
func (s *Store) DeleteRule(ctx context.Context, sourceName, department string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM permission_rules
		WHERE source_name = $1 AND department = $2`,
		sourceName, department)
	if err != nil {
		return fmt.Errorf("DeleteRule: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
