package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Source represents a row in the data_sources table. Config is the opaque
// connection blob interpreted by the matching executor; the admin API is the
// only surface that ever returns it.
type Source struct {
	Name        string
	DisplayName string
	SourceType  string
	Config      json.RawMessage
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CreateSourceParams holds fields for source creation.
type CreateSourceParams struct {
	Name        string
	DisplayName string
	SourceType  string
	Config      json.RawMessage
}

// UpdateSourceParams holds optional fields for partial source updates.
type UpdateSourceParams struct {
	DisplayName *string
	Config      *json.RawMessage
	IsActive    *bool
}

// CreateSource inserts a new data source.
func (s *Store) CreateSource(ctx context.Context, params CreateSourceParams) (*Source, error) {
	cfg := params.Config
	if cfg == nil {
		cfg = json.RawMessage(`{}`)
	}

	var src Source
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO data_sources (name, display_name, source_type, config)
		VALUES ($1, $2, $3, $4)
		RETURNING name, display_name, source_type, config, is_active, created_at, updated_at`,
		params.Name, params.DisplayName, params.SourceType, cfg,
	).Scan(&src.Name, &src.DisplayName, &src.SourceType, &src.Config,
		&src.IsActive, &src.CreatedAt, &src.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("CreateSource: %w", err)
	}
	return &src, nil
}

// ListSources returns all data sources, active and inactive, ordered by name.
func (s *Store) ListSources(ctx context.Context) ([]*Source, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, display_name, source_type, config, is_active, created_at, updated_at
		FROM data_sources ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("ListSources: %w", err)
	}
	defer rows.Close()

	var sources []*Source
	for rows.Next() {
		var src Source
		if err := rows.Scan(&src.Name, &src.DisplayName, &src.SourceType, &src.Config,
			&src.IsActive, &src.CreatedAt, &src.UpdatedAt); err != nil {
			return nil, fmt.Errorf("ListSources: %w", err)
		}
		sources = append(sources, &src)
	}
	return sources, rows.Err()
}

// GetSource returns a data source by name, or nil if not found.
func (s *Store) GetSource(ctx context.Context, name string) (*Source, error) {
	var src Source
	err := s.db.QueryRowContext(ctx, `
		SELECT name, display_name, source_type, config, is_active, created_at, updated_at
		FROM data_sources WHERE name = $1`, name,
	).Scan(&src.Name, &src.DisplayName, &src.SourceType, &src.Config,
		&src.IsActive, &src.CreatedAt, &src.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetSource: %w", err)
	}
	return &src, nil
}

// UpdateSource applies a partial update to a source. Only non-nil fields are changed.
func (s *Store) UpdateSource(ctx context.Context, name string, params UpdateSourceParams) (*Source, error) {
	var src Source
	err := s.db.QueryRowContext(ctx, `
		UPDATE data_sources SET
			display_name = COALESCE($2, display_name),
			config       = COALESCE($3, config),
			is_active    = COALESCE($4, is_active),
			updated_at   = now()
		WHERE name = $1
		RETURNING name, display_name, source_type, config, is_active, created_at, updated_at`,
		name, params.DisplayName, nullableJSON(params.Config), params.IsActive,
	).Scan(&src.Name, &src.DisplayName, &src.SourceType, &src.Config,
		&src.IsActive, &src.CreatedAt, &src.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("UpdateSource: %w", err)
	}
	return &src, nil
}

// DeleteSource deletes a data source by name. Returns ErrInUse when
// permission rules or tool scopes still reference it, so the caller can map
// that to a conflict rather than silently orphaning rules.
func (s *Store) DeleteSource(ctx context.Context, name string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("DeleteSource: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var refs int
	err = tx.QueryRowContext(ctx, `
		SELECT (SELECT count(*) FROM permission_rules WHERE source_name = $1)
		     + (SELECT count(*) FROM tools WHERE allowed_sources @> to_jsonb(ARRAY[$1::text]))`,
		name,
	).Scan(&refs)
	if err != nil {
		return fmt.Errorf("DeleteSource: %w", err)
	}
	if refs > 0 {
		return ErrInUse
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM data_sources WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("DeleteSource: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return sql.ErrNoRows
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("DeleteSource: %w", err)
	}
	return nil
}

// nullableJSON returns nil (SQL NULL) if the pointer is nil, otherwise the raw bytes.
func nullableJSON(v *json.RawMessage) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
