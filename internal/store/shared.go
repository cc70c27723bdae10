package store

import (
	"context"
	"fmt"
)

// The sharing ledger is append-only. Re-sharing the same record to the
// same therapist resolves to the row written the first time; there is
// no unshare.

// CreateSharedData inserts a ledger row and returns it as stored. On a
// duplicate share the original row's id and shared_at come back, so
// the unique index never surfaces as an error.
func (s *PostgresStore) CreateSharedData(ctx context.Context, rec SharedData) (SharedData, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO shared_data (id, patient_id, therapist_id, data_type, data_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (patient_id, therapist_id, data_type, data_id)
		DO UPDATE SET data_id = EXCLUDED.data_id
		RETURNING id, shared_at
	`, rec.ID, rec.PatientID, rec.TherapistID, rec.DataType, rec.DataID).Scan(&rec.ID, &rec.SharedAt)
	if err != nil {
		return SharedData{}, fmt.Errorf("create shared data: %w", err)
	}
	return rec, nil
}

// ListSharedDataIDs returns the IDs of a patient's records of one type
// shared with a therapist, most recently shared first.
func (s *PostgresStore) ListSharedDataIDs(ctx context.Context, therapistID, patientID, dataType string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT data_id
		FROM shared_data
		WHERE therapist_id=$1 AND patient_id=$2 AND data_type=$3
		ORDER BY shared_at DESC
	`, therapistID, patientID, dataType)
	if err != nil {
		return nil, fmt.Errorf("list shared data ids: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan shared data id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate shared data: %w", err)
	}
	return ids, nil
}

func (s *PostgresStore) ListPatientShares(ctx context.Context, patientID string) ([]SharedData, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, patient_id, therapist_id, data_type, data_id, shared_at
		FROM shared_data
		WHERE patient_id=$1
		ORDER BY shared_at DESC
	`, patientID)
	if err != nil {
		return nil, fmt.Errorf("list patient shares: %w", err)
	}
	defer rows.Close()

	items := make([]SharedData, 0)
	for rows.Next() {
		var rec SharedData
		if err := rows.Scan(&rec.ID, &rec.PatientID, &rec.TherapistID, &rec.DataType, &rec.DataID, &rec.SharedAt); err != nil {
			return nil, fmt.Errorf("scan shared data: %w", err)
		}
		items = append(items, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate shared data: %w", err)
	}
	return items, nil
}
