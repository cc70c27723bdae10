package app

import (
	"context"
	"database/sql"
	"errors"
	"net/http"

	"reframe/api/internal/store"
	"reframe/api/internal/util"
)

// ShareData appends one row to the sharing ledger, making a single
// record visible to a single assigned therapist. Sharing is idempotent
// and there is no unshare.
func (s *Service) ShareData(ctx context.Context, session Session, dataType, dataID, therapistID string) (map[string]any, error) {
	if err := s.verifyShareTarget(ctx, session, dataType, dataID); err != nil {
		return nil, err
	}

	therapistID, err := s.resolveTherapist(ctx, session, therapistID)
	if err != nil {
		return nil, err
	}

	rec, err := s.store.CreateSharedData(ctx, store.SharedData{
		ID:          util.NewID("shr"),
		PatientID:   session.UserID,
		TherapistID: therapistID,
		DataType:    dataType,
		DataID:      dataID,
	})
	if err != nil {
		return nil, err
	}

	if dataType == store.SharedTypeAbcSchema {
		schema, err := s.store.GetAbcSchema(ctx, dataID)
		if err != nil {
			return nil, err
		}
		if !schema.SharedWithTherapist {
			schema.SharedWithTherapist = true
			if err := s.store.UpdateAbcSchema(ctx, schema); err != nil {
				return nil, err
			}
		}
	}

	return sharePayload(rec), nil
}

func (s *Service) ListShares(ctx context.Context, session Session) ([]map[string]any, error) {
	shares, err := s.store.ListPatientShares(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(shares))
	for _, rec := range shares {
		items = append(items, sharePayload(rec))
	}
	return items, nil
}

// verifyShareTarget ensures the shared record exists and belongs to
// the calling patient. Runs before any write.
func (s *Service) verifyShareTarget(ctx context.Context, session Session, dataType, dataID string) error {
	var ownerID string
	var err error

	switch dataType {
	case store.SharedTypeMoodEntry:
		var entry store.MoodEntry
		entry, err = s.store.GetMoodEntry(ctx, dataID)
		ownerID = entry.UserID
	case store.SharedTypeAbcSchema:
		var schema store.AbcSchema
		schema, err = s.store.GetAbcSchema(ctx, dataID)
		ownerID = schema.UserID
	case store.SharedTypeExerciseCompletion:
		var completion store.ExerciseCompletion
		completion, err = s.store.GetExerciseCompletion(ctx, dataID)
		ownerID = completion.UserID
	default:
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "unknown data type", nil)
	}

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domainError(http.StatusNotFound, "NOT_FOUND", "Record not found", nil)
		}
		return err
	}
	if ownerID != session.UserID {
		return domainError(http.StatusForbidden, "ACCESS_DENIED", "Not your record", nil)
	}
	return nil
}

// resolveTherapist picks the share recipient: an explicitly named
// therapist must be assigned to the patient; with no name given the
// patient's single assigned therapist is used.
func (s *Service) resolveTherapist(ctx context.Context, session Session, therapistID string) (string, error) {
	therapists, err := s.store.ListPatientTherapists(ctx, session.UserID)
	if err != nil {
		return "", err
	}
	if len(therapists) == 0 {
		return "", domainError(http.StatusConflict, "NO_THERAPIST_ASSIGNED", "You have no assigned therapist", nil)
	}

	if therapistID == "" {
		if len(therapists) > 1 {
			return "", domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "therapistId is required when multiple therapists are assigned", nil)
		}
		return therapists[0].ID, nil
	}

	for _, t := range therapists {
		if t.ID == therapistID {
			return therapistID, nil
		}
	}
	return "", domainError(http.StatusForbidden, "ACCESS_DENIED", "Therapist is not assigned to you", nil)
}

func sharePayload(rec store.SharedData) map[string]any {
	return map[string]any{
		"id":          rec.ID,
		"therapistId": rec.TherapistID,
		"dataType":    rec.DataType,
		"dataId":      rec.DataID,
		"sharedAt":    rec.SharedAt,
	}
}
