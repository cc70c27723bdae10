package app

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"time"

	"reframe/api/internal/access"
	"reframe/api/internal/store"
	"reframe/api/internal/util"
)

func (s *Service) ListPatients(ctx context.Context, session Session) ([]map[string]any, error) {
	patients, err := s.store.ListTherapistPatients(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(patients))
	for _, p := range patients {
		items = append(items, userPayload(p))
	}
	return items, nil
}

// AddPatient links a patient to the calling therapist by email.
func (s *Service) AddPatient(ctx context.Context, session Session, patientEmail string) (map[string]any, error) {
	patientEmail = strings.TrimSpace(patientEmail)
	if patientEmail == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "email is required", nil)
	}

	patient, err := s.store.GetUserByEmail(ctx, patientEmail)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domainError(http.StatusNotFound, "NOT_FOUND", "No account with that email", nil)
		}
		return nil, err
	}
	if patient.Role != string(access.RolePatient) {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "That account is not a patient", nil)
	}

	edge := store.TherapistPatient{
		ID:          util.NewID("tp"),
		TherapistID: session.UserID,
		PatientID:   patient.ID,
	}
	if err := s.store.CreateTherapistPatient(ctx, edge); err != nil {
		return nil, err
	}
	return userPayload(patient), nil
}

// RemovePatient deletes the assignment edge. Ledger rows survive, but
// without the edge the therapist loses all access to shared data.
func (s *Service) RemovePatient(ctx context.Context, session Session, patientID string) error {
	removed, err := s.store.DeleteTherapistPatient(ctx, session.UserID, patientID)
	if err != nil {
		return err
	}
	if !removed {
		return domainError(http.StatusNotFound, "NOT_FOUND", "Patient is not assigned to you", nil)
	}
	return nil
}

// PatientAbcSchemas lists a linked patient's full thought-record
// history. Access rides on the assignment edge, not the ledger.
func (s *Service) PatientAbcSchemas(ctx context.Context, session Session, patientID string, page int) (map[string]any, error) {
	if err := s.requireEdge(ctx, session, patientID); err != nil {
		return nil, err
	}
	if page < 1 {
		page = 1
	}

	schemas, total, err := s.store.ListAbcSchemas(ctx, patientID, page, abcPageSize)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(schemas))
	for _, schema := range schemas {
		items = append(items, s.abcSchemaPayload(schema))
	}
	return map[string]any{
		"schemas":  items,
		"total":    total,
		"page":     page,
		"pageSize": abcPageSize,
	}, nil
}

// PatientSharedData resolves the ledger into the patient's shared mood
// entries, thought records, and completions. Ledger rows whose target
// record was deleted are dropped silently.
func (s *Service) PatientSharedData(ctx context.Context, session Session, patientID string) (map[string]any, error) {
	if err := s.requireEdge(ctx, session, patientID); err != nil {
		return nil, err
	}

	entryIDs, err := s.store.ListSharedDataIDs(ctx, session.UserID, patientID, store.SharedTypeMoodEntry)
	if err != nil {
		return nil, err
	}
	entries, err := s.store.GetMoodEntriesByIDs(ctx, patientID, entryIDs)
	if err != nil {
		return nil, err
	}

	schemaIDs, err := s.store.ListSharedDataIDs(ctx, session.UserID, patientID, store.SharedTypeAbcSchema)
	if err != nil {
		return nil, err
	}
	schemas, err := s.store.GetAbcSchemasByIDs(ctx, patientID, schemaIDs)
	if err != nil {
		return nil, err
	}

	completionIDs, err := s.store.ListSharedDataIDs(ctx, session.UserID, patientID, store.SharedTypeExerciseCompletion)
	if err != nil {
		return nil, err
	}
	completions, err := s.store.GetExerciseCompletionsByIDs(ctx, patientID, completionIDs)
	if err != nil {
		return nil, err
	}

	entryItems := make([]map[string]any, 0, len(entries))
	for _, entry := range entries {
		entryItems = append(entryItems, moodEntryPayload(entry))
	}
	schemaItems := make([]map[string]any, 0, len(schemas))
	for _, schema := range schemas {
		schemaItems = append(schemaItems, s.abcSchemaPayload(schema))
	}
	completionItems := make([]map[string]any, 0, len(completions))
	for _, c := range completions {
		completionItems = append(completionItems, completionPayload(c))
	}

	return map[string]any{
		"moodEntries":         entryItems,
		"abcSchemas":          schemaItems,
		"exerciseCompletions": completionItems,
	}, nil
}

func (s *Service) requireEdge(ctx context.Context, session Session, patientID string) error {
	linked, err := s.store.HasTherapistPatient(ctx, session.UserID, patientID)
	if err != nil {
		return err
	}
	if !linked {
		return domainError(http.StatusForbidden, "ACCESS_DENIED", "Patient is not assigned to you", nil)
	}
	return nil
}

// Exercise templates.

func (s *Service) ListTemplates(ctx context.Context, session Session) ([]map[string]any, error) {
	templates, err := s.store.ListExerciseTemplates(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(templates))
	for _, tpl := range templates {
		items = append(items, templatePayload(tpl))
	}
	return items, nil
}

func (s *Service) CreateTemplate(ctx context.Context, session Session, input TemplateInput) (map[string]any, error) {
	if err := validateTemplateInput(input); err != nil {
		return nil, err
	}

	tpl := store.ExerciseTemplate{
		ID:           util.NewID("tpl"),
		TherapistID:  session.UserID,
		Title:        strings.TrimSpace(input.Title),
		Description:  strings.TrimSpace(input.Description),
		Instructions: strings.TrimSpace(input.Instructions),
		Category:     strings.TrimSpace(input.Category),
		IsActive:     true,
	}
	if err := s.store.CreateExerciseTemplate(ctx, tpl); err != nil {
		return nil, err
	}

	tpl.CreatedAt = time.Now()
	tpl.UpdatedAt = tpl.CreatedAt
	return templatePayload(tpl), nil
}

func (s *Service) UpdateTemplate(ctx context.Context, session Session, templateID string, input TemplateInput) (map[string]any, error) {
	tpl, err := s.ownedTemplate(ctx, session, templateID)
	if err != nil {
		return nil, err
	}
	if err := validateTemplateInput(input); err != nil {
		return nil, err
	}

	tpl.Title = strings.TrimSpace(input.Title)
	tpl.Description = strings.TrimSpace(input.Description)
	tpl.Instructions = strings.TrimSpace(input.Instructions)
	tpl.Category = strings.TrimSpace(input.Category)
	if err := s.store.UpdateExerciseTemplate(ctx, tpl); err != nil {
		return nil, err
	}

	tpl.UpdatedAt = time.Now()
	return templatePayload(tpl), nil
}

// DeleteTemplate deactivates a template. Existing assignments keep
// pointing at it and stay completable.
func (s *Service) DeleteTemplate(ctx context.Context, session Session, templateID string) error {
	if _, err := s.ownedTemplate(ctx, session, templateID); err != nil {
		return err
	}
	return s.store.DeactivateExerciseTemplate(ctx, templateID)
}

// DuplicateTemplate copies a template into a new editable row that
// back-references the original.
func (s *Service) DuplicateTemplate(ctx context.Context, session Session, templateID string) (map[string]any, error) {
	original, err := s.ownedTemplate(ctx, session, templateID)
	if err != nil {
		return nil, err
	}

	dup := store.ExerciseTemplate{
		ID:                 util.NewID("tpl"),
		TherapistID:        session.UserID,
		Title:              original.Title + " (copy)",
		Description:        original.Description,
		Instructions:       original.Instructions,
		Category:           original.Category,
		OriginalTemplateID: &original.ID,
		IsActive:           true,
	}
	if err := s.store.CreateExerciseTemplate(ctx, dup); err != nil {
		return nil, err
	}

	dup.CreatedAt = time.Now()
	dup.UpdatedAt = dup.CreatedAt
	return templatePayload(dup), nil
}

func (s *Service) ownedTemplate(ctx context.Context, session Session, templateID string) (store.ExerciseTemplate, error) {
	tpl, err := s.store.GetExerciseTemplate(ctx, templateID)
	if err != nil {
		return store.ExerciseTemplate{}, err
	}
	if tpl.TherapistID != session.UserID {
		return store.ExerciseTemplate{}, domainError(http.StatusForbidden, "ACCESS_DENIED", "Not your template", nil)
	}
	return tpl, nil
}

func validateTemplateInput(input TemplateInput) error {
	if strings.TrimSpace(input.Title) == "" {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}
	if strings.TrimSpace(input.Instructions) == "" {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "instructions are required", nil)
	}
	return nil
}

func templatePayload(tpl store.ExerciseTemplate) map[string]any {
	return map[string]any{
		"id":                 tpl.ID,
		"title":              tpl.Title,
		"description":        tpl.Description,
		"instructions":       tpl.Instructions,
		"category":           tpl.Category,
		"originalTemplateId": tpl.OriginalTemplateID,
		"isActive":           tpl.IsActive,
		"createdAt":          tpl.CreatedAt,
		"updatedAt":          tpl.UpdatedAt,
	}
}

// Assignments.

func (s *Service) ListTherapistAssignments(ctx context.Context, session Session, patientID string) ([]map[string]any, error) {
	if err := s.requireEdge(ctx, session, patientID); err != nil {
		return nil, err
	}
	assignments, err := s.store.ListTherapistAssignments(ctx, session.UserID, patientID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(assignments))
	for _, asg := range assignments {
		items = append(items, assignmentPayload(asg))
	}
	return items, nil
}

// AssignExercise assigns one of the therapist's templates to a linked
// patient, optionally pinned to one of the patient's thought records.
func (s *Service) AssignExercise(ctx context.Context, session Session, input AssignmentInput) (map[string]any, error) {
	if input.TemplateID == "" || input.PatientID == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "templateId and patientId are required", nil)
	}
	if err := s.requireEdge(ctx, session, input.PatientID); err != nil {
		return nil, err
	}

	tpl, err := s.ownedTemplate(ctx, session, input.TemplateID)
	if err != nil {
		return nil, err
	}
	if !tpl.IsActive {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "template is no longer active", nil)
	}

	if input.AbcSchemaID != nil && *input.AbcSchemaID != "" {
		schema, err := s.store.GetAbcSchema(ctx, *input.AbcSchemaID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Thought record not found", nil)
			}
			return nil, err
		}
		if schema.UserID != input.PatientID {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "abcSchemaId does not belong to the patient", nil)
		}
	}

	asg := store.ExerciseAssignment{
		ID:          util.NewID("asg"),
		TemplateID:  tpl.ID,
		TherapistID: session.UserID,
		PatientID:   input.PatientID,
		AbcSchemaID: input.AbcSchemaID,
		Note:        strings.TrimSpace(input.Note),
	}
	if err := s.store.CreateExerciseAssignment(ctx, asg); err != nil {
		return nil, err
	}

	asg.CreatedAt = time.Now()
	asg.TemplateTitle = tpl.Title
	asg.TemplateCategory = tpl.Category
	return assignmentPayload(asg), nil
}
