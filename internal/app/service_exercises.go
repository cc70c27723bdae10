package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"reframe/api/internal/store"
	"reframe/api/internal/util"
)

func (s *Service) ListExercises(ctx context.Context) ([]map[string]any, error) {
	exercises, err := s.store.ListExercises(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(exercises))
	for _, ex := range exercises {
		items = append(items, exercisePayload(ex))
	}
	return items, nil
}

func exercisePayload(ex store.Exercise) map[string]any {
	return map[string]any{
		"id":              ex.ID,
		"title":           ex.Title,
		"description":     ex.Description,
		"category":        ex.Category,
		"durationMinutes": ex.DurationMinutes,
	}
}

// ListAssignments lists the exercises assigned to the calling patient.
func (s *Service) ListAssignments(ctx context.Context, session Session) ([]map[string]any, error) {
	assignments, err := s.store.ListPatientAssignments(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(assignments))
	for _, asg := range assignments {
		items = append(items, assignmentPayload(asg))
	}
	return items, nil
}

func assignmentPayload(asg store.ExerciseAssignment) map[string]any {
	return map[string]any{
		"id":          asg.ID,
		"templateId":  asg.TemplateID,
		"therapistId": asg.TherapistID,
		"patientId":   asg.PatientID,
		"abcSchemaId": asg.AbcSchemaID,
		"note":        asg.Note,
		"title":       asg.TemplateTitle,
		"category":    asg.TemplateCategory,
		"createdAt":   asg.CreatedAt,
	}
}

func (s *Service) ListCompletions(ctx context.Context, session Session) ([]map[string]any, error) {
	completions, err := s.store.ListExerciseCompletions(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(completions))
	for _, c := range completions {
		items = append(items, completionPayload(c))
	}
	return items, nil
}

// CompleteExercise records a completion against either a catalog
// exercise or an assignment addressed to the caller.
func (s *Service) CompleteExercise(ctx context.Context, session Session, input CompletionInput) (map[string]any, error) {
	if input.MoodBefore < 1 || input.MoodBefore > defaultMoodRange || input.MoodAfter < 1 || input.MoodAfter > defaultMoodRange {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", fmt.Sprintf("moodBefore and moodAfter must be between 1 and %d", defaultMoodRange), nil)
	}

	switch input.ExerciseKind {
	case store.ExerciseKindCatalog:
		if _, err := s.store.GetExercise(ctx, input.ExerciseID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Unknown catalog exercise", nil)
			}
			return nil, err
		}
	case store.ExerciseKindAssignment:
		asg, err := s.store.GetExerciseAssignment(ctx, input.ExerciseID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Unknown assignment", nil)
			}
			return nil, err
		}
		if asg.PatientID != session.UserID {
			return nil, domainError(http.StatusForbidden, "ACCESS_DENIED", "Not your assignment", nil)
		}
	default:
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "exerciseKind must be catalog or assignment", nil)
	}

	completion := store.ExerciseCompletion{
		ID:            util.NewID("cmp"),
		UserID:        session.UserID,
		ExerciseKind:  input.ExerciseKind,
		ExerciseID:    input.ExerciseID,
		MoodBefore:    input.MoodBefore,
		MoodAfter:     input.MoodAfter,
		Effectiveness: effectiveness(input.MoodBefore, input.MoodAfter),
		Notes:         strings.TrimSpace(input.Notes),
	}
	if err := s.store.CreateExerciseCompletion(ctx, completion); err != nil {
		return nil, err
	}

	completion.CreatedAt = time.Now()
	return completionPayload(completion), nil
}

// effectiveness maps a mood delta onto [0,1]. A mood drop counts as
// zero, not negative.
func effectiveness(before, after int) float64 {
	delta := float64(after-before) / float64(defaultMoodRange)
	if delta < 0 {
		return 0
	}
	return delta
}

func completionPayload(c store.ExerciseCompletion) map[string]any {
	return map[string]any{
		"id":            c.ID,
		"exerciseKind":  c.ExerciseKind,
		"exerciseId":    c.ExerciseID,
		"moodBefore":    c.MoodBefore,
		"moodAfter":     c.MoodAfter,
		"effectiveness": c.Effectiveness,
		"notes":         c.Notes,
		"createdAt":     c.CreatedAt,
	}
}
