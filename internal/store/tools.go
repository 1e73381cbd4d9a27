package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Tool represents a row in the tools table. AllowedSources is the tool's
// declared source scope, stored as a JSONB array.
type Tool struct {
	ID             string
	Name           string
	AuthorID       string
	Department     sql.NullString
	Visibility     string
	AllowedSources []string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// CreateToolParams holds fields for tool creation.
type CreateToolParams struct {
	Name           string
	AuthorID       string
	Department     *string
	Visibility     string
	AllowedSources []string
}

// UpdateToolParams holds optional fields for partial tool updates.
// AllowedSources replaces the whole scope when non-nil.
type UpdateToolParams struct {
	Name           *string
	Visibility     *string
	AllowedSources *[]string
}

const toolColumns = `id, name, author_id, department, visibility, allowed_sources, created_at, updated_at`

func scanTool(row interface{ Scan(...any) error }) (*Tool, error) {
	var t Tool
	var allowed []byte
	if err := row.Scan(&t.ID, &t.Name, &t.AuthorID, &t.Department,
		&t.Visibility, &allowed, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(allowed, &t.AllowedSources); err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateTool inserts a new tool.
func (s *Store) CreateTool(ctx context.Context, params CreateToolParams) (*Tool, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO tools (name, author_id, department, visibility, allowed_sources)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+toolColumns,
		params.Name, params.AuthorID, params.Department, params.Visibility,
		listJSON(params.AllowedSources),
	)
	tool, err := scanTool(row)
	if err != nil {
		return nil, fmt.Errorf("CreateTool: %w", err)
	}
	return tool, nil
}

// ListTools returns all tools ordered by created_at DESC.
func (s *Store) ListTools(ctx context.Context) ([]*Tool, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+toolColumns+` FROM tools ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("ListTools: %w", err)
	}
	defer rows.Close()

	var tools []*Tool
	for rows.Next() {
		tool, err := scanTool(rows)
		if err != nil {
			return nil, fmt.Errorf("ListTools: %w", err)
		}
		tools = append(tools, tool)
	}
	return tools, rows.Err()
}

// GetTool returns a tool by ID, or nil if not found.
func (s *Store) GetTool(ctx context.Context, id string) (*Tool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+toolColumns+` FROM tools WHERE id = $1`, id)
	tool, err := scanTool(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetTool: %w", err)
	}
	return tool, nil
}

// UpdateTool applies a partial update to a tool. Only non-nil fields are changed.
func (s *Store) UpdateTool(ctx context.Context, id string, params UpdateToolParams) (*Tool, error) {
	var allowed interface{}
	if params.AllowedSources != nil {
		allowed = listJSON(*params.AllowedSources)
	}

	row := s.db.QueryRowContext(ctx, `
		UPDATE tools SET
			name            = COALESCE($2, name),
			visibility      = COALESCE($3, visibility),
			allowed_sources = COALESCE($4, allowed_sources),
			updated_at      = now()
		WHERE id = $1
		RETURNING `+toolColumns,
		id, params.Name, params.Visibility, allowed,
	)
	tool, err := scanTool(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("UpdateTool: %w", err)
	}
	return tool, nil
}

// DeleteTool deletes a tool by ID.
func (s *Store) DeleteTool(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM tools WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("DeleteTool: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
