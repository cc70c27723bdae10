package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Catalog exercises are seeded by migration and read-only at runtime.

const exerciseColumns = `id, title, description, category, duration_minutes`

func (s *PostgresStore) ListExercises(ctx context.Context) ([]Exercise, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+exerciseColumns+` FROM exercises ORDER BY category, title`)
	if err != nil {
		return nil, fmt.Errorf("list exercises: %w", err)
	}
	defer rows.Close()

	items := make([]Exercise, 0)
	for rows.Next() {
		var ex Exercise
		if err := rows.Scan(&ex.ID, &ex.Title, &ex.Description, &ex.Category, &ex.DurationMinutes); err != nil {
			return nil, fmt.Errorf("scan exercise: %w", err)
		}
		items = append(items, ex)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate exercises: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetExercise(ctx context.Context, exerciseID string) (Exercise, error) {
	var ex Exercise
	err := s.db.QueryRowContext(ctx, `SELECT `+exerciseColumns+` FROM exercises WHERE id=$1`, exerciseID).
		Scan(&ex.ID, &ex.Title, &ex.Description, &ex.Category, &ex.DurationMinutes)
	if err != nil {
		return Exercise{}, err
	}
	return ex, nil
}

const templateColumns = `id, therapist_id, title, COALESCE(description, ''), instructions, category, original_template_id, is_active, created_at, updated_at`

func scanTemplate(scan func(...any) error) (ExerciseTemplate, error) {
	var tpl ExerciseTemplate
	err := scan(
		&tpl.ID,
		&tpl.TherapistID,
		&tpl.Title,
		&tpl.Description,
		&tpl.Instructions,
		&tpl.Category,
		&tpl.OriginalTemplateID,
		&tpl.IsActive,
		&tpl.CreatedAt,
		&tpl.UpdatedAt,
	)
	if err != nil {
		return ExerciseTemplate{}, err
	}
	return tpl, nil
}

func (s *PostgresStore) CreateExerciseTemplate(ctx context.Context, tpl ExerciseTemplate) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO exercise_templates (id, therapist_id, title, description, instructions, category, original_template_id, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, tpl.ID, tpl.TherapistID, tpl.Title, tpl.Description, tpl.Instructions, tpl.Category, tpl.OriginalTemplateID, tpl.IsActive)
	if err != nil {
		return fmt.Errorf("create exercise template: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetExerciseTemplate(ctx context.Context, templateID string) (ExerciseTemplate, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+templateColumns+` FROM exercise_templates WHERE id=$1`, templateID)
	return scanTemplate(row.Scan)
}

func (s *PostgresStore) ListExerciseTemplates(ctx context.Context, therapistID string) ([]ExerciseTemplate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+templateColumns+`
		FROM exercise_templates
		WHERE therapist_id=$1 AND is_active
		ORDER BY created_at DESC
	`, therapistID)
	if err != nil {
		return nil, fmt.Errorf("list exercise templates: %w", err)
	}
	defer rows.Close()

	items := make([]ExerciseTemplate, 0)
	for rows.Next() {
		tpl, err := scanTemplate(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan exercise template: %w", err)
		}
		items = append(items, tpl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate exercise templates: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpdateExerciseTemplate(ctx context.Context, tpl ExerciseTemplate) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE exercise_templates
		SET title=$2, description=$3, instructions=$4, category=$5, updated_at=NOW()
		WHERE id=$1
	`, tpl.ID, tpl.Title, tpl.Description, tpl.Instructions, tpl.Category)
	if err != nil {
		return fmt.Errorf("update exercise template: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update exercise template rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeactivateExerciseTemplate soft-deletes a template. Existing
// assignments keep resolving against it.
func (s *PostgresStore) DeactivateExerciseTemplate(ctx context.Context, templateID string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE exercise_templates SET is_active=FALSE, updated_at=NOW() WHERE id=$1
	`, templateID)
	if err != nil {
		return fmt.Errorf("deactivate exercise template: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("deactivate exercise template rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

const assignmentColumns = `a.id, a.template_id, a.therapist_id, a.patient_id, a.abc_schema_id, COALESCE(a.note, ''), a.created_at, t.title, t.category`

func scanAssignment(scan func(...any) error) (ExerciseAssignment, error) {
	var asg ExerciseAssignment
	err := scan(
		&asg.ID,
		&asg.TemplateID,
		&asg.TherapistID,
		&asg.PatientID,
		&asg.AbcSchemaID,
		&asg.Note,
		&asg.CreatedAt,
		&asg.TemplateTitle,
		&asg.TemplateCategory,
	)
	if err != nil {
		return ExerciseAssignment{}, err
	}
	return asg, nil
}

func (s *PostgresStore) CreateExerciseAssignment(ctx context.Context, asg ExerciseAssignment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO exercise_assignments (id, template_id, therapist_id, patient_id, abc_schema_id, note)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, asg.ID, asg.TemplateID, asg.TherapistID, asg.PatientID, asg.AbcSchemaID, asg.Note)
	if err != nil {
		return fmt.Errorf("create exercise assignment: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetExerciseAssignment(ctx context.Context, assignmentID string) (ExerciseAssignment, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+assignmentColumns+`
		FROM exercise_assignments a
		JOIN exercise_templates t ON t.id = a.template_id
		WHERE a.id=$1
	`, assignmentID)
	return scanAssignment(row.Scan)
}

func (s *PostgresStore) ListPatientAssignments(ctx context.Context, patientID string) ([]ExerciseAssignment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+assignmentColumns+`
		FROM exercise_assignments a
		JOIN exercise_templates t ON t.id = a.template_id
		WHERE a.patient_id=$1
		ORDER BY a.created_at DESC
	`, patientID)
	if err != nil {
		return nil, fmt.Errorf("list patient assignments: %w", err)
	}
	defer rows.Close()
	return collectAssignments(rows)
}

func (s *PostgresStore) ListTherapistAssignments(ctx context.Context, therapistID, patientID string) ([]ExerciseAssignment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+assignmentColumns+`
		FROM exercise_assignments a
		JOIN exercise_templates t ON t.id = a.template_id
		WHERE a.therapist_id=$1 AND a.patient_id=$2
		ORDER BY a.created_at DESC
	`, therapistID, patientID)
	if err != nil {
		return nil, fmt.Errorf("list therapist assignments: %w", err)
	}
	defer rows.Close()
	return collectAssignments(rows)
}

func collectAssignments(rows *sql.Rows) ([]ExerciseAssignment, error) {
	items := make([]ExerciseAssignment, 0)
	for rows.Next() {
		asg, err := scanAssignment(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		items = append(items, asg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate assignments: %w", err)
	}
	return items, nil
}

const completionColumns = `id, user_id, exercise_kind, exercise_id, mood_before, mood_after, effectiveness, COALESCE(notes, ''), created_at`

func scanCompletion(scan func(...any) error) (ExerciseCompletion, error) {
	var c ExerciseCompletion
	err := scan(
		&c.ID,
		&c.UserID,
		&c.ExerciseKind,
		&c.ExerciseID,
		&c.MoodBefore,
		&c.MoodAfter,
		&c.Effectiveness,
		&c.Notes,
		&c.CreatedAt,
	)
	if err != nil {
		return ExerciseCompletion{}, err
	}
	return c, nil
}

func (s *PostgresStore) CreateExerciseCompletion(ctx context.Context, c ExerciseCompletion) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO exercise_completions (id, user_id, exercise_kind, exercise_id, mood_before, mood_after, effectiveness, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, c.ID, c.UserID, c.ExerciseKind, c.ExerciseID, c.MoodBefore, c.MoodAfter, c.Effectiveness, c.Notes)
	if err != nil {
		return fmt.Errorf("create exercise completion: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetExerciseCompletion(ctx context.Context, completionID string) (ExerciseCompletion, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+completionColumns+` FROM exercise_completions WHERE id=$1`, completionID)
	return scanCompletion(row.Scan)
}

func (s *PostgresStore) ListExerciseCompletions(ctx context.Context, userID string) ([]ExerciseCompletion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+completionColumns+`
		FROM exercise_completions
		WHERE user_id=$1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list exercise completions: %w", err)
	}
	defer rows.Close()

	items := make([]ExerciseCompletion, 0)
	for rows.Next() {
		c, err := scanCompletion(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan completion: %w", err)
		}
		items = append(items, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate completions: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetExerciseCompletionsByIDs(ctx context.Context, userID string, ids []string) ([]ExerciseCompletion, error) {
	if len(ids) == 0 {
		return []ExerciseCompletion{}, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+completionColumns+`
		FROM exercise_completions
		WHERE user_id=$1 AND id = ANY($2)
		ORDER BY created_at DESC
	`, userID, ids)
	if err != nil {
		return nil, fmt.Errorf("get completions by ids: %w", err)
	}
	defer rows.Close()

	items := make([]ExerciseCompletion, 0, len(ids))
	for rows.Next() {
		c, err := scanCompletion(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan completion: %w", err)
		}
		items = append(items, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate completions: %w", err)
	}
	return items, nil
}
