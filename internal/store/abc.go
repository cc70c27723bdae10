package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const abcColumns = `id, user_id, activating_event, beliefs, consequences, mood_before, mood_after, shared_with_therapist, analysis, analyzed_at, created_at, updated_at`

func scanAbcSchema(scan func(...any) error) (AbcSchema, error) {
	var schema AbcSchema
	var analysis []byte
	err := scan(
		&schema.ID,
		&schema.UserID,
		&schema.ActivatingEvent,
		&schema.Beliefs,
		&schema.Consequences,
		&schema.MoodBefore,
		&schema.MoodAfter,
		&schema.SharedWithTherapist,
		&analysis,
		&schema.AnalyzedAt,
		&schema.CreatedAt,
		&schema.UpdatedAt,
	)
	if err != nil {
		return AbcSchema{}, err
	}
	if len(analysis) > 0 {
		schema.Analysis = json.RawMessage(analysis)
	}
	return schema, nil
}

func (s *PostgresStore) CreateAbcSchema(ctx context.Context, schema AbcSchema) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO abc_schemas (id, user_id, activating_event, beliefs, consequences, mood_before, mood_after, shared_with_therapist)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, schema.ID, schema.UserID, schema.ActivatingEvent, schema.Beliefs, schema.Consequences,
		schema.MoodBefore, schema.MoodAfter, schema.SharedWithTherapist)
	if err != nil {
		return fmt.Errorf("create abc schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAbcSchema(ctx context.Context, schemaID string) (AbcSchema, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+abcColumns+` FROM abc_schemas WHERE id=$1`, schemaID)
	return scanAbcSchema(row.Scan)
}

// ListAbcSchemas pages through a single user's thought records newest
// first. Page is 1-indexed.
func (s *PostgresStore) ListAbcSchemas(ctx context.Context, userID string, page, pageSize int) ([]AbcSchema, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM abc_schemas WHERE user_id=$1`, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count abc schemas: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+abcColumns+`
		FROM abc_schemas
		WHERE user_id=$1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("list abc schemas: %w", err)
	}
	defer rows.Close()

	items := make([]AbcSchema, 0, pageSize)
	for rows.Next() {
		schema, err := scanAbcSchema(rows.Scan)
		if err != nil {
			return nil, 0, fmt.Errorf("scan abc schema: %w", err)
		}
		items = append(items, schema)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate abc schemas: %w", err)
	}
	return items, total, nil
}

func (s *PostgresStore) UpdateAbcSchema(ctx context.Context, schema AbcSchema) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE abc_schemas
		SET activating_event=$2, beliefs=$3, consequences=$4, mood_before=$5, mood_after=$6,
			shared_with_therapist=$7, updated_at=NOW()
		WHERE id=$1
	`, schema.ID, schema.ActivatingEvent, schema.Beliefs, schema.Consequences,
		schema.MoodBefore, schema.MoodAfter, schema.SharedWithTherapist)
	if err != nil {
		return fmt.Errorf("update abc schema: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update abc schema rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SaveAbcAnalysis overwrites any previous analysis for the record.
func (s *PostgresStore) SaveAbcAnalysis(ctx context.Context, schemaID string, analysis json.RawMessage, analyzedAt time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE abc_schemas SET analysis=$2, analyzed_at=$3, updated_at=NOW() WHERE id=$1
	`, schemaID, []byte(analysis), analyzedAt)
	if err != nil {
		return fmt.Errorf("save abc analysis: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("save abc analysis rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) DeleteAbcSchema(ctx context.Context, schemaID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM abc_schemas WHERE id=$1`, schemaID)
	if err != nil {
		return fmt.Errorf("delete abc schema: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete abc schema rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) GetAbcSchemasByIDs(ctx context.Context, userID string, ids []string) ([]AbcSchema, error) {
	if len(ids) == 0 {
		return []AbcSchema{}, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+abcColumns+`
		FROM abc_schemas
		WHERE user_id=$1 AND id = ANY($2)
		ORDER BY created_at DESC
	`, userID, ids)
	if err != nil {
		return nil, fmt.Errorf("get abc schemas by ids: %w", err)
	}
	defer rows.Close()

	items := make([]AbcSchema, 0, len(ids))
	for rows.Next() {
		schema, err := scanAbcSchema(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan abc schema: %w", err)
		}
		items = append(items, schema)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate abc schemas: %w", err)
	}
	return items, nil
}
