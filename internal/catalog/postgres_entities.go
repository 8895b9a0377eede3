package catalog

import (
	"context"
	"database/sql"
	"fmt"
)

// Tool, query and credential rows are low-volume CRUD; they go straight to
// the DB without the collector cache.

func (s *PostgresStore) GetTool(ctx context.Context, id string) (*Tool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, kind, base_url, auth_type, enabled, created_at
		FROM tools
		WHERE id = $1 OR name = $1
	`, id)

	var t Tool
	if err := row.Scan(&t.ID, &t.Name, &t.Kind, &t.BaseURL, &t.AuthType, &t.Enabled, &t.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("GetTool: %w", err)
	}
	return &t, nil
}

func (s *PostgresStore) ListTools(ctx context.Context) ([]*Tool, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, kind, base_url, auth_type, enabled, created_at
		FROM tools
		ORDER BY created_at, name
	`)
	if err != nil {
		return nil, fmt.Errorf("ListTools: %w", err)
	}
	defer rows.Close()

	var out []*Tool
	for rows.Next() {
		var t Tool
		if err := rows.Scan(&t.ID, &t.Name, &t.Kind, &t.BaseURL, &t.AuthType, &t.Enabled, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("ListTools: %w", err)
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SaveTool(ctx context.Context, t *Tool) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tools (id, name, kind, base_url, auth_type, enabled, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			kind = EXCLUDED.kind,
			base_url = EXCLUDED.base_url,
			auth_type = EXCLUDED.auth_type,
			enabled = EXCLUDED.enabled
	`, t.ID, t.Name, t.Kind, t.BaseURL, t.AuthType, t.Enabled, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("SaveTool: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteTool(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM tools WHERE id = $1`, id); err != nil {
		return fmt.Errorf("DeleteTool: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetQuery(ctx context.Context, id string) (*Query, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tool_id, name, template, parameters, created_at
		FROM queries
		WHERE id = $1
	`, id)

	var q Query
	var params string
	if err := row.Scan(&q.ID, &q.ToolID, &q.Name, &q.Template, &params, &q.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("GetQuery: %w", err)
	}
	if err := unmarshalJSONB(params, &q.Parameters); err != nil {
		return nil, fmt.Errorf("GetQuery: parameters: %w", err)
	}
	return &q, nil
}

func (s *PostgresStore) SaveQuery(ctx context.Context, q *Query) error {
	params, err := marshalJSONB(q.Parameters)
	if err != nil {
		return fmt.Errorf("SaveQuery: parameters: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO queries (id, tool_id, name, template, parameters, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			tool_id = EXCLUDED.tool_id,
			name = EXCLUDED.name,
			template = EXCLUDED.template,
			parameters = EXCLUDED.parameters
	`, q.ID, q.ToolID, q.Name, q.Template, params, q.CreatedAt)
	if err != nil {
		return fmt.Errorf("SaveQuery: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteQuery(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM queries WHERE id = $1`, id); err != nil {
		return fmt.Errorf("DeleteQuery: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveCredential(ctx context.Context, c *Credential) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO credentials (id, tool_id, name, ciphertext, nonce, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			tool_id = EXCLUDED.tool_id,
			name = EXCLUDED.name,
			ciphertext = EXCLUDED.ciphertext,
			nonce = EXCLUDED.nonce
	`, c.ID, c.ToolID, c.Name, c.Ciphertext, c.Nonce, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("SaveCredential: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListCredentialsForTool(ctx context.Context, toolID string) ([]*Credential, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tool_id, name, ciphertext, nonce, created_at
		FROM credentials
		WHERE tool_id = $1
		ORDER BY created_at
	`, toolID)
	if err != nil {
		return nil, fmt.Errorf("ListCredentialsForTool: %w", err)
	}
	defer rows.Close()

	var out []*Credential
	for rows.Next() {
		var c Credential
		if err := rows.Scan(&c.ID, &c.ToolID, &c.Name, &c.Ciphertext, &c.Nonce, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("ListCredentialsForTool: %w", err)
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DeleteCredential(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM credentials WHERE id = $1`, id); err != nil {
		return fmt.Errorf("DeleteCredential: %w", err)
	}
	return nil
}
