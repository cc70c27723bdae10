package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const moodScaleColumns = `id, user_id, name, COALESCE(description, ''), is_default, levels, created_at, updated_at`

func scanMoodScale(scan func(...any) error) (MoodScale, error) {
	var scale MoodScale
	var levels []byte
	err := scan(
		&scale.ID,
		&scale.UserID,
		&scale.Name,
		&scale.Description,
		&scale.IsDefault,
		&levels,
		&scale.CreatedAt,
		&scale.UpdatedAt,
	)
	if err != nil {
		return MoodScale{}, err
	}
	if err := json.Unmarshal(levels, &scale.Levels); err != nil {
		return MoodScale{}, fmt.Errorf("decode scale levels: %w", err)
	}
	return scale, nil
}

func (s *PostgresStore) CreateMoodScale(ctx context.Context, scale MoodScale) error {
	levels, err := json.Marshal(scale.Levels)
	if err != nil {
		return fmt.Errorf("encode scale levels: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO mood_scales (id, user_id, name, description, is_default, levels)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, scale.ID, scale.UserID, scale.Name, scale.Description, scale.IsDefault, levels)
	if err != nil {
		return fmt.Errorf("create mood scale: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetMoodScale(ctx context.Context, scaleID string) (MoodScale, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+moodScaleColumns+` FROM mood_scales WHERE id=$1`, scaleID)
	return scanMoodScale(row.Scan)
}

// ListMoodScales returns the caller's scales, default scale first, then
// newest first.
func (s *PostgresStore) ListMoodScales(ctx context.Context, userID string) ([]MoodScale, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+moodScaleColumns+`
		FROM mood_scales
		WHERE user_id=$1
		ORDER BY is_default DESC, created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list mood scales: %w", err)
	}
	defer rows.Close()

	items := make([]MoodScale, 0)
	for rows.Next() {
		scale, err := scanMoodScale(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan mood scale: %w", err)
		}
		items = append(items, scale)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mood scales: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpdateMoodScale(ctx context.Context, scale MoodScale) error {
	levels, err := json.Marshal(scale.Levels)
	if err != nil {
		return fmt.Errorf("encode scale levels: %w", err)
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE mood_scales
		SET name=$2, description=$3, is_default=$4, levels=$5, updated_at=NOW()
		WHERE id=$1
	`, scale.ID, scale.Name, scale.Description, scale.IsDefault, levels)
	if err != nil {
		return fmt.Errorf("update mood scale: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update mood scale rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ClearDefaultMoodScale unsets the default flag on all of the user's
// scales. Callers run it before promoting a new default.
func (s *PostgresStore) ClearDefaultMoodScale(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE mood_scales SET is_default=FALSE, updated_at=NOW() WHERE user_id=$1 AND is_default`, userID)
	if err != nil {
		return fmt.Errorf("clear default mood scale: %w", err)
	}
	return nil
}

const moodEntryColumns = `id, user_id, mood_level, mood_scale_id, COALESCE(notes, ''), created_at, updated_at`

func scanMoodEntry(scan func(...any) error) (MoodEntry, error) {
	var entry MoodEntry
	err := scan(
		&entry.ID,
		&entry.UserID,
		&entry.MoodLevel,
		&entry.MoodScaleID,
		&entry.Notes,
		&entry.CreatedAt,
		&entry.UpdatedAt,
	)
	if err != nil {
		return MoodEntry{}, err
	}
	return entry, nil
}

func (s *PostgresStore) CreateMoodEntry(ctx context.Context, entry MoodEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO mood_entries (id, user_id, mood_level, mood_scale_id, notes)
		VALUES ($1, $2, $3, $4, $5)
	`, entry.ID, entry.UserID, entry.MoodLevel, entry.MoodScaleID, entry.Notes)
	if err != nil {
		return fmt.Errorf("create mood entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetMoodEntry(ctx context.Context, entryID string) (MoodEntry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+moodEntryColumns+` FROM mood_entries WHERE id=$1`, entryID)
	return scanMoodEntry(row.Scan)
}

// ListMoodEntries returns the user's entries newest first, optionally
// bounded to a [from, to) window.
func (s *PostgresStore) ListMoodEntries(ctx context.Context, userID string, from, to *time.Time) ([]MoodEntry, error) {
	query := `SELECT ` + moodEntryColumns + ` FROM mood_entries WHERE user_id=$1`
	args := []any{userID}
	if from != nil {
		args = append(args, *from)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if to != nil {
		args = append(args, *to)
		query += fmt.Sprintf(" AND created_at < $%d", len(args))
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list mood entries: %w", err)
	}
	defer rows.Close()

	items := make([]MoodEntry, 0)
	for rows.Next() {
		entry, err := scanMoodEntry(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan mood entry: %w", err)
		}
		items = append(items, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mood entries: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpdateMoodEntry(ctx context.Context, entry MoodEntry) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE mood_entries
		SET mood_level=$2, mood_scale_id=$3, notes=$4, updated_at=NOW()
		WHERE id=$1
	`, entry.ID, entry.MoodLevel, entry.MoodScaleID, entry.Notes)
	if err != nil {
		return fmt.Errorf("update mood entry: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update mood entry rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// GetMoodEntriesByIDs resolves a set of ledger-referenced entries for a
// single patient. Missing IDs are silently dropped.
func (s *PostgresStore) GetMoodEntriesByIDs(ctx context.Context, userID string, ids []string) ([]MoodEntry, error) {
	if len(ids) == 0 {
		return []MoodEntry{}, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+moodEntryColumns+`
		FROM mood_entries
		WHERE user_id=$1 AND id = ANY($2)
		ORDER BY created_at DESC
	`, userID, ids)
	if err != nil {
		return nil, fmt.Errorf("get mood entries by ids: %w", err)
	}
	defer rows.Close()

	items := make([]MoodEntry, 0, len(ids))
	for rows.Next() {
		entry, err := scanMoodEntry(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan mood entry: %w", err)
		}
		items = append(items, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mood entries: %w", err)
	}
	return items, nil
}
