package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"reframe/api/internal/store"
	"reframe/api/internal/util"
)

// defaultMoodRange is the level range used when an entry has no scale.
const defaultMoodRange = 7

func (s *Service) ListMoodScales(ctx context.Context, session Session) ([]map[string]any, error) {
	scales, err := s.store.ListMoodScales(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(scales))
	for _, scale := range scales {
		items = append(items, moodScalePayload(scale))
	}
	return items, nil
}

func (s *Service) CreateMoodScale(ctx context.Context, session Session, input MoodScaleInput) (map[string]any, error) {
	if err := validateScaleInput(input); err != nil {
		return nil, err
	}

	if input.IsDefault {
		if err := s.store.ClearDefaultMoodScale(ctx, session.UserID); err != nil {
			return nil, err
		}
	}

	scale := store.MoodScale{
		ID:          util.NewID("sc"),
		UserID:      session.UserID,
		Name:        strings.TrimSpace(input.Name),
		Description: strings.TrimSpace(input.Description),
		IsDefault:   input.IsDefault,
		Levels:      input.Levels,
	}
	if err := s.store.CreateMoodScale(ctx, scale); err != nil {
		return nil, err
	}

	scale.CreatedAt = time.Now()
	scale.UpdatedAt = scale.CreatedAt
	return moodScalePayload(scale), nil
}

func (s *Service) UpdateMoodScale(ctx context.Context, session Session, scaleID string, input MoodScaleInput) (map[string]any, error) {
	scale, err := s.ownedMoodScale(ctx, session, scaleID)
	if err != nil {
		return nil, err
	}
	if err := validateScaleInput(input); err != nil {
		return nil, err
	}

	scale.Name = strings.TrimSpace(input.Name)
	scale.Description = strings.TrimSpace(input.Description)
	scale.Levels = input.Levels
	if err := s.store.UpdateMoodScale(ctx, scale); err != nil {
		return nil, err
	}

	scale.UpdatedAt = time.Now()
	return moodScalePayload(scale), nil
}

// SetDefaultMoodScale promotes one scale to default, demoting any other.
func (s *Service) SetDefaultMoodScale(ctx context.Context, session Session, scaleID string) (map[string]any, error) {
	scale, err := s.ownedMoodScale(ctx, session, scaleID)
	if err != nil {
		return nil, err
	}

	if err := s.store.ClearDefaultMoodScale(ctx, session.UserID); err != nil {
		return nil, err
	}
	scale.IsDefault = true
	if err := s.store.UpdateMoodScale(ctx, scale); err != nil {
		return nil, err
	}
	return moodScalePayload(scale), nil
}

func (s *Service) ownedMoodScale(ctx context.Context, session Session, scaleID string) (store.MoodScale, error) {
	scale, err := s.store.GetMoodScale(ctx, scaleID)
	if err != nil {
		return store.MoodScale{}, err
	}
	if scale.UserID != session.UserID {
		return store.MoodScale{}, domainError(http.StatusForbidden, "ACCESS_DENIED", "Not your mood scale", nil)
	}
	return scale, nil
}

func validateScaleInput(input MoodScaleInput) error {
	if strings.TrimSpace(input.Name) == "" {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
	}
	if _, ok := validScaleSizes[len(input.Levels)]; !ok {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "levels must have 3, 5, 7, 9, or 10 entries", nil)
	}
	for i, level := range input.Levels {
		if level.Level != i+1 {
			return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "levels must be numbered contiguously from 1", nil)
		}
		if strings.TrimSpace(level.Title) == "" {
			return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", fmt.Sprintf("level %d is missing a title", level.Level), nil)
		}
		if _, ok := allowedLevelCategories[level.Category]; !ok {
			return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", fmt.Sprintf("level %d has an unknown category", level.Level), nil)
		}
	}
	return nil
}

func moodScalePayload(scale store.MoodScale) map[string]any {
	return map[string]any{
		"id":          scale.ID,
		"name":        scale.Name,
		"description": scale.Description,
		"isDefault":   scale.IsDefault,
		"levels":      scale.Levels,
		"createdAt":   scale.CreatedAt,
		"updatedAt":   scale.UpdatedAt,
	}
}

func (s *Service) ListMoodEntries(ctx context.Context, session Session, from, to *time.Time) ([]map[string]any, error) {
	entries, err := s.store.ListMoodEntries(ctx, session.UserID, from, to)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(entries))
	for _, entry := range entries {
		items = append(items, moodEntryPayload(entry))
	}
	return items, nil
}

func (s *Service) CreateMoodEntry(ctx context.Context, session Session, input MoodEntryInput) (map[string]any, error) {
	if err := s.validateMoodLevel(ctx, session, input); err != nil {
		return nil, err
	}

	entry := store.MoodEntry{
		ID:          util.NewID("me"),
		UserID:      session.UserID,
		MoodLevel:   input.MoodLevel,
		MoodScaleID: input.MoodScaleID,
		Notes:       strings.TrimSpace(input.Notes),
	}
	if err := s.store.CreateMoodEntry(ctx, entry); err != nil {
		return nil, err
	}

	entry.CreatedAt = time.Now()
	entry.UpdatedAt = entry.CreatedAt
	return moodEntryPayload(entry), nil
}

// UpdateMoodEntry edits an entry in place. Entries are never deleted;
// the mood history is an audit trail.
func (s *Service) UpdateMoodEntry(ctx context.Context, session Session, entryID string, input MoodEntryInput) (map[string]any, error) {
	entry, err := s.store.GetMoodEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if entry.UserID != session.UserID {
		return nil, domainError(http.StatusForbidden, "ACCESS_DENIED", "Not your mood entry", nil)
	}
	if err := s.validateMoodLevel(ctx, session, input); err != nil {
		return nil, err
	}

	entry.MoodLevel = input.MoodLevel
	entry.MoodScaleID = input.MoodScaleID
	entry.Notes = strings.TrimSpace(input.Notes)
	if err := s.store.UpdateMoodEntry(ctx, entry); err != nil {
		return nil, err
	}

	entry.UpdatedAt = time.Now()
	return moodEntryPayload(entry), nil
}

// validateMoodLevel checks the level against the referenced scale, or
// the default 1..7 range when no scale is given.
func (s *Service) validateMoodLevel(ctx context.Context, session Session, input MoodEntryInput) error {
	max := defaultMoodRange
	if input.MoodScaleID != nil && *input.MoodScaleID != "" {
		scale, err := s.ownedMoodScale(ctx, session, *input.MoodScaleID)
		if err != nil {
			return err
		}
		max = len(scale.Levels)
	}
	if input.MoodLevel < 1 || input.MoodLevel > max {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", fmt.Sprintf("moodLevel must be between 1 and %d", max), nil)
	}
	return nil
}

func moodEntryPayload(entry store.MoodEntry) map[string]any {
	return map[string]any{
		"id":          entry.ID,
		"moodLevel":   entry.MoodLevel,
		"moodScaleId": entry.MoodScaleID,
		"notes":       entry.Notes,
		"createdAt":   entry.CreatedAt,
		"updatedAt":   entry.UpdatedAt,
	}
}
