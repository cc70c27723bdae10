package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"reframe/api/internal/access"
	"reframe/api/internal/analysis"
	"reframe/api/internal/search"
	"reframe/api/internal/store"
	"reframe/api/internal/util"
)

const abcPageSize = 10

func (s *Service) ListAbcSchemas(ctx context.Context, session Session, page int) (map[string]any, error) {
	if page < 1 {
		page = 1
	}
	schemas, total, err := s.store.ListAbcSchemas(ctx, session.UserID, page, abcPageSize)
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

func (s *Service) CreateAbcSchema(ctx context.Context, session Session, input AbcSchemaInput) (map[string]any, error) {
	if err := validateAbcInput(input); err != nil {
		return nil, err
	}

	schema := store.AbcSchema{
		ID:              util.NewID("abc"),
		UserID:          session.UserID,
		ActivatingEvent: strings.TrimSpace(input.ActivatingEvent),
		Beliefs:         strings.TrimSpace(input.Beliefs),
		Consequences:    strings.TrimSpace(input.Consequences),
		MoodBefore:      input.MoodBefore,
		MoodAfter:       input.MoodAfter,
	}
	if err := s.store.CreateAbcSchema(ctx, schema); err != nil {
		return nil, err
	}

	s.indexSchema(schema)

	// Analysis is fire-and-forget: the record is durable regardless of
	// whether the call succeeds.
	if s.analyzer != nil {
		go func() {
			if err := s.runAnalysis(context.Background(), schema); err != nil {
				log.Printf("analysis: schema %s: %v", schema.ID, err)
			}
		}()
	}

	schema.CreatedAt = time.Now()
	schema.UpdatedAt = schema.CreatedAt
	return s.abcSchemaPayload(schema), nil
}

func (s *Service) GetAbcSchema(ctx context.Context, session Session, schemaID string) (map[string]any, error) {
	schema, err := s.readableAbcSchema(ctx, session, schemaID)
	if err != nil {
		return nil, err
	}
	return s.abcSchemaPayload(schema), nil
}

func (s *Service) UpdateAbcSchema(ctx context.Context, session Session, schemaID string, input AbcSchemaInput) (map[string]any, error) {
	schema, err := s.ownedAbcSchema(ctx, session, schemaID)
	if err != nil {
		return nil, err
	}
	if err := validateAbcInput(input); err != nil {
		return nil, err
	}

	schema.ActivatingEvent = strings.TrimSpace(input.ActivatingEvent)
	schema.Beliefs = strings.TrimSpace(input.Beliefs)
	schema.Consequences = strings.TrimSpace(input.Consequences)
	schema.MoodBefore = input.MoodBefore
	schema.MoodAfter = input.MoodAfter
	if err := s.store.UpdateAbcSchema(ctx, schema); err != nil {
		return nil, err
	}

	s.indexSchema(schema)

	schema.UpdatedAt = time.Now()
	return s.abcSchemaPayload(schema), nil
}

func (s *Service) DeleteAbcSchema(ctx context.Context, session Session, schemaID string) error {
	if _, err := s.ownedAbcSchema(ctx, session, schemaID); err != nil {
		return err
	}
	if err := s.store.DeleteAbcSchema(ctx, schemaID); err != nil {
		return err
	}
	if s.search != nil {
		s.search.DeleteRecord(schemaID)
	}
	return nil
}

// AnalyzeAbcSchema re-runs analysis synchronously and returns the
// updated record. Safe to call while a create-time analysis is still
// in flight; the last call to complete wins.
func (s *Service) AnalyzeAbcSchema(ctx context.Context, session Session, schemaID string) (map[string]any, error) {
	schema, err := s.ownedAbcSchema(ctx, session, schemaID)
	if err != nil {
		return nil, err
	}
	if s.analyzer == nil {
		return nil, domainError(http.StatusBadGateway, "ANALYSIS_FAILED", "Analysis is not configured", nil)
	}

	if err := s.runAnalysis(ctx, schema); err != nil {
		return nil, domainError(http.StatusBadGateway, "ANALYSIS_FAILED", "Analysis failed", nil)
	}

	updated, err := s.store.GetAbcSchema(ctx, schemaID)
	if err != nil {
		return nil, err
	}
	return s.abcSchemaPayload(updated), nil
}

// runAnalysis calls the analyzer under the configured timeout and
// overwrites the record's analysis on success. On failure the record
// keeps its previous analysis, possibly none.
func (s *Service) runAnalysis(ctx context.Context, schema store.AbcSchema) error {
	s.analyzingMu.Lock()
	s.analyzing[schema.ID] = struct{}{}
	s.analyzingMu.Unlock()
	defer func() {
		s.analyzingMu.Lock()
		delete(s.analyzing, schema.ID)
		s.analyzingMu.Unlock()
	}()

	catalog, err := s.store.ListExercises(ctx)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	catalogInput := make([]analysis.CatalogExercise, 0, len(catalog))
	for _, ex := range catalog {
		catalogInput = append(catalogInput, analysis.CatalogExercise{
			ID:       ex.ID,
			Title:    ex.Title,
			Category: ex.Category,
		})
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.AnalysisTimeout)
	defer cancel()

	result, err := s.analyzer.Analyze(callCtx, analysis.Input{
		ActivatingEvent: schema.ActivatingEvent,
		Beliefs:         schema.Beliefs,
		Consequences:    schema.Consequences,
		Catalog:         catalogInput,
	})
	if err != nil {
		return err
	}

	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode analysis: %w", err)
	}
	return s.store.SaveAbcAnalysis(ctx, schema.ID, raw, time.Now())
}

func (s *Service) isAnalyzing(schemaID string) bool {
	s.analyzingMu.Lock()
	defer s.analyzingMu.Unlock()
	_, ok := s.analyzing[schemaID]
	return ok
}

func (s *Service) ownedAbcSchema(ctx context.Context, session Session, schemaID string) (store.AbcSchema, error) {
	schema, err := s.store.GetAbcSchema(ctx, schemaID)
	if err != nil {
		return store.AbcSchema{}, err
	}
	if schema.UserID != session.UserID {
		return store.AbcSchema{}, domainError(http.StatusForbidden, "ACCESS_DENIED", "Not your thought record", nil)
	}
	return schema, nil
}

// readableAbcSchema allows the owner, or a therapist linked to the
// owner by an assignment edge. The sharedWithTherapist flag does not
// gate reads here; it only drives the shared-with-me listing.
func (s *Service) readableAbcSchema(ctx context.Context, session Session, schemaID string) (store.AbcSchema, error) {
	schema, err := s.store.GetAbcSchema(ctx, schemaID)
	if err != nil {
		return store.AbcSchema{}, err
	}
	if schema.UserID == session.UserID {
		return schema, nil
	}
	if session.Role == string(access.RoleTherapist) {
		linked, err := s.store.HasTherapistPatient(ctx, session.UserID, schema.UserID)
		if err != nil {
			return store.AbcSchema{}, err
		}
		if linked {
			return schema, nil
		}
	}
	return store.AbcSchema{}, domainError(http.StatusForbidden, "ACCESS_DENIED", "Not your thought record", nil)
}

func validateAbcInput(input AbcSchemaInput) error {
	if strings.TrimSpace(input.ActivatingEvent) == "" {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "activatingEvent is required", nil)
	}
	if strings.TrimSpace(input.Beliefs) == "" {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "beliefs is required", nil)
	}
	if strings.TrimSpace(input.Consequences) == "" {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "consequences is required", nil)
	}
	for name, value := range map[string]*int{"moodBefore": input.MoodBefore, "moodAfter": input.MoodAfter} {
		if value != nil && (*value < 1 || *value > defaultMoodRange) {
			return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", fmt.Sprintf("%s must be between 1 and %d", name, defaultMoodRange), nil)
		}
	}
	return nil
}

func (s *Service) indexSchema(schema store.AbcSchema) {
	if s.search == nil {
		return
	}
	s.search.IndexRecord(search.RecordDoc{
		ID:              schema.ID,
		UserID:          schema.UserID,
		ActivatingEvent: schema.ActivatingEvent,
		Beliefs:         schema.Beliefs,
		Consequences:    schema.Consequences,
	})
}

func (s *Service) abcSchemaPayload(schema store.AbcSchema) map[string]any {
	status := "unanalyzed"
	if s.isAnalyzing(schema.ID) {
		status = "analyzing"
	} else if schema.AnalyzedAt != nil {
		status = "analyzed"
	}

	var results any
	if len(schema.Analysis) > 0 {
		results = json.RawMessage(schema.Analysis)
	}

	return map[string]any{
		"id":                  schema.ID,
		"userId":              schema.UserID,
		"activatingEvent":     schema.ActivatingEvent,
		"beliefs":             schema.Beliefs,
		"consequences":        schema.Consequences,
		"moodBefore":          schema.MoodBefore,
		"moodAfter":           schema.MoodAfter,
		"sharedWithTherapist": schema.SharedWithTherapist,
		"analysisResults":     results,
		"analysisStatus":      status,
		"analyzedAt":          schema.AnalyzedAt,
		"createdAt":           schema.CreatedAt,
		"updatedAt":           schema.UpdatedAt,
	}
}
