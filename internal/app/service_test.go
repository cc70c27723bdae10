package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"reframe/api/internal/analysis"
	"reframe/api/internal/config"
	"reframe/api/internal/store"
)

type fakeStore struct {
	getUserByIDFn                 func(context.Context, string) (store.User, error)
	getUserByEmailFn              func(context.Context, string) (store.User, error)
	hasTherapistPatientFn         func(context.Context, string, string) (bool, error)
	listPatientTherapistsFn       func(context.Context, string) ([]store.User, error)
	deleteTherapistPatientFn      func(context.Context, string, string) (bool, error)
	createTherapistPatientFn      func(context.Context, store.TherapistPatient) error
	getMoodScaleFn                func(context.Context, string) (store.MoodScale, error)
	createMoodScaleFn             func(context.Context, store.MoodScale) error
	clearDefaultMoodScaleFn       func(context.Context, string) error
	getMoodEntryFn                func(context.Context, string) (store.MoodEntry, error)
	getMoodEntriesByIDsFn         func(context.Context, string, []string) ([]store.MoodEntry, error)
	createAbcSchemaFn             func(context.Context, store.AbcSchema) error
	getAbcSchemaFn                func(context.Context, string) (store.AbcSchema, error)
	updateAbcSchemaFn             func(context.Context, store.AbcSchema) error
	saveAbcAnalysisFn             func(context.Context, string, json.RawMessage, time.Time) error
	getAbcSchemasByIDsFn          func(context.Context, string, []string) ([]store.AbcSchema, error)
	listExercisesFn               func(context.Context) ([]store.Exercise, error)
	getExerciseFn                 func(context.Context, string) (store.Exercise, error)
	getExerciseTemplateFn         func(context.Context, string) (store.ExerciseTemplate, error)
	createExerciseTemplateFn      func(context.Context, store.ExerciseTemplate) error
	getExerciseAssignmentFn       func(context.Context, string) (store.ExerciseAssignment, error)
	createExerciseCompletionFn    func(context.Context, store.ExerciseCompletion) error
	getExerciseCompletionFn       func(context.Context, string) (store.ExerciseCompletion, error)
	getExerciseCompletionsByIDsFn func(context.Context, string, []string) ([]store.ExerciseCompletion, error)
	createSharedDataFn            func(context.Context, store.SharedData) (store.SharedData, error)
	listSharedDataIDsFn           func(context.Context, string, string, string) ([]string, error)
	isAccessTokenRevokedFn        func(context.Context, string) (bool, error)
}

func (f *fakeStore) GetUserByID(ctx context.Context, userID string) (store.User, error) {
	if f.getUserByIDFn != nil {
		return f.getUserByIDFn(ctx, userID)
	}
	return store.User{ID: userID, DisplayName: "Pat", Role: "patient"}, nil
}
func (f *fakeStore) GetUserByEmail(ctx context.Context, email string) (store.User, error) {
	if f.getUserByEmailFn != nil {
		return f.getUserByEmailFn(ctx, email)
	}
	return store.User{}, sql.ErrNoRows
}
func (f *fakeStore) SaveRefreshSession(context.Context, string, string, time.Time) error { return nil }
func (f *fakeStore) LookupRefreshSession(context.Context, string) (store.User, error) {
	return store.User{}, sql.ErrNoRows
}
func (f *fakeStore) RevokeRefreshSession(context.Context, string) error { return nil }
func (f *fakeStore) RevokeAccessToken(context.Context, string, time.Time) error {
	return nil
}
func (f *fakeStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	if f.isAccessTokenRevokedFn != nil {
		return f.isAccessTokenRevokedFn(ctx, jti)
	}
	return false, nil
}

func (f *fakeStore) CreateTherapistPatient(ctx context.Context, edge store.TherapistPatient) error {
	if f.createTherapistPatientFn != nil {
		return f.createTherapistPatientFn(ctx, edge)
	}
	return nil
}
func (f *fakeStore) DeleteTherapistPatient(ctx context.Context, therapistID, patientID string) (bool, error) {
	if f.deleteTherapistPatientFn != nil {
		return f.deleteTherapistPatientFn(ctx, therapistID, patientID)
	}
	return false, nil
}
func (f *fakeStore) HasTherapistPatient(ctx context.Context, therapistID, patientID string) (bool, error) {
	if f.hasTherapistPatientFn != nil {
		return f.hasTherapistPatientFn(ctx, therapistID, patientID)
	}
	return false, nil
}
func (f *fakeStore) ListTherapistPatients(context.Context, string) ([]store.User, error) {
	return nil, nil
}
func (f *fakeStore) ListPatientTherapists(ctx context.Context, patientID string) ([]store.User, error) {
	if f.listPatientTherapistsFn != nil {
		return f.listPatientTherapistsFn(ctx, patientID)
	}
	return nil, nil
}

func (f *fakeStore) CreateMoodScale(ctx context.Context, scale store.MoodScale) error {
	if f.createMoodScaleFn != nil {
		return f.createMoodScaleFn(ctx, scale)
	}
	return nil
}
func (f *fakeStore) GetMoodScale(ctx context.Context, scaleID string) (store.MoodScale, error) {
	if f.getMoodScaleFn != nil {
		return f.getMoodScaleFn(ctx, scaleID)
	}
	return store.MoodScale{}, sql.ErrNoRows
}
func (f *fakeStore) ListMoodScales(context.Context, string) ([]store.MoodScale, error) {
	return nil, nil
}
func (f *fakeStore) UpdateMoodScale(context.Context, store.MoodScale) error { return nil }
func (f *fakeStore) ClearDefaultMoodScale(ctx context.Context, userID string) error {
	if f.clearDefaultMoodScaleFn != nil {
		return f.clearDefaultMoodScaleFn(ctx, userID)
	}
	return nil
}

func (f *fakeStore) CreateMoodEntry(context.Context, store.MoodEntry) error { return nil }
func (f *fakeStore) GetMoodEntry(ctx context.Context, entryID string) (store.MoodEntry, error) {
	if f.getMoodEntryFn != nil {
		return f.getMoodEntryFn(ctx, entryID)
	}
	return store.MoodEntry{}, sql.ErrNoRows
}
func (f *fakeStore) ListMoodEntries(context.Context, string, *time.Time, *time.Time) ([]store.MoodEntry, error) {
	return nil, nil
}
func (f *fakeStore) UpdateMoodEntry(context.Context, store.MoodEntry) error { return nil }
func (f *fakeStore) GetMoodEntriesByIDs(ctx context.Context, userID string, ids []string) ([]store.MoodEntry, error) {
	if f.getMoodEntriesByIDsFn != nil {
		return f.getMoodEntriesByIDsFn(ctx, userID, ids)
	}
	return nil, nil
}

func (f *fakeStore) CreateAbcSchema(ctx context.Context, schema store.AbcSchema) error {
	if f.createAbcSchemaFn != nil {
		return f.createAbcSchemaFn(ctx, schema)
	}
	return nil
}
func (f *fakeStore) GetAbcSchema(ctx context.Context, schemaID string) (store.AbcSchema, error) {
	if f.getAbcSchemaFn != nil {
		return f.getAbcSchemaFn(ctx, schemaID)
	}
	return store.AbcSchema{}, sql.ErrNoRows
}
func (f *fakeStore) ListAbcSchemas(context.Context, string, int, int) ([]store.AbcSchema, int, error) {
	return nil, 0, nil
}
func (f *fakeStore) UpdateAbcSchema(ctx context.Context, schema store.AbcSchema) error {
	if f.updateAbcSchemaFn != nil {
		return f.updateAbcSchemaFn(ctx, schema)
	}
	return nil
}
func (f *fakeStore) DeleteAbcSchema(context.Context, string) error { return nil }
func (f *fakeStore) SaveAbcAnalysis(ctx context.Context, schemaID string, raw json.RawMessage, at time.Time) error {
	if f.saveAbcAnalysisFn != nil {
		return f.saveAbcAnalysisFn(ctx, schemaID, raw, at)
	}
	return nil
}
func (f *fakeStore) GetAbcSchemasByIDs(ctx context.Context, userID string, ids []string) ([]store.AbcSchema, error) {
	if f.getAbcSchemasByIDsFn != nil {
		return f.getAbcSchemasByIDsFn(ctx, userID, ids)
	}
	return nil, nil
}

func (f *fakeStore) ListExercises(ctx context.Context) ([]store.Exercise, error) {
	if f.listExercisesFn != nil {
		return f.listExercisesFn(ctx)
	}
	return nil, nil
}
func (f *fakeStore) GetExercise(ctx context.Context, exerciseID string) (store.Exercise, error) {
	if f.getExerciseFn != nil {
		return f.getExerciseFn(ctx, exerciseID)
	}
	return store.Exercise{}, sql.ErrNoRows
}
func (f *fakeStore) CreateExerciseTemplate(ctx context.Context, tpl store.ExerciseTemplate) error {
	if f.createExerciseTemplateFn != nil {
		return f.createExerciseTemplateFn(ctx, tpl)
	}
	return nil
}
func (f *fakeStore) GetExerciseTemplate(ctx context.Context, templateID string) (store.ExerciseTemplate, error) {
	if f.getExerciseTemplateFn != nil {
		return f.getExerciseTemplateFn(ctx, templateID)
	}
	return store.ExerciseTemplate{}, sql.ErrNoRows
}
func (f *fakeStore) ListExerciseTemplates(context.Context, string) ([]store.ExerciseTemplate, error) {
	return nil, nil
}
func (f *fakeStore) UpdateExerciseTemplate(context.Context, store.ExerciseTemplate) error {
	return nil
}
func (f *fakeStore) DeactivateExerciseTemplate(context.Context, string) error { return nil }
func (f *fakeStore) CreateExerciseAssignment(context.Context, store.ExerciseAssignment) error {
	return nil
}
func (f *fakeStore) GetExerciseAssignment(ctx context.Context, assignmentID string) (store.ExerciseAssignment, error) {
	if f.getExerciseAssignmentFn != nil {
		return f.getExerciseAssignmentFn(ctx, assignmentID)
	}
	return store.ExerciseAssignment{}, sql.ErrNoRows
}
func (f *fakeStore) ListPatientAssignments(context.Context, string) ([]store.ExerciseAssignment, error) {
	return nil, nil
}
func (f *fakeStore) ListTherapistAssignments(context.Context, string, string) ([]store.ExerciseAssignment, error) {
	return nil, nil
}
func (f *fakeStore) CreateExerciseCompletion(ctx context.Context, completion store.ExerciseCompletion) error {
	if f.createExerciseCompletionFn != nil {
		return f.createExerciseCompletionFn(ctx, completion)
	}
	return nil
}
func (f *fakeStore) GetExerciseCompletion(ctx context.Context, completionID string) (store.ExerciseCompletion, error) {
	if f.getExerciseCompletionFn != nil {
		return f.getExerciseCompletionFn(ctx, completionID)
	}
	return store.ExerciseCompletion{}, sql.ErrNoRows
}
func (f *fakeStore) ListExerciseCompletions(context.Context, string) ([]store.ExerciseCompletion, error) {
	return nil, nil
}
func (f *fakeStore) GetExerciseCompletionsByIDs(ctx context.Context, userID string, ids []string) ([]store.ExerciseCompletion, error) {
	if f.getExerciseCompletionsByIDsFn != nil {
		return f.getExerciseCompletionsByIDsFn(ctx, userID, ids)
	}
	return nil, nil
}

func (f *fakeStore) CreateSharedData(ctx context.Context, rec store.SharedData) (store.SharedData, error) {
	if f.createSharedDataFn != nil {
		return f.createSharedDataFn(ctx, rec)
	}
	rec.SharedAt = time.Now()
	return rec, nil
}
func (f *fakeStore) ListSharedDataIDs(ctx context.Context, therapistID, patientID, dataType string) ([]string, error) {
	if f.listSharedDataIDsFn != nil {
		return f.listSharedDataIDsFn(ctx, therapistID, patientID, dataType)
	}
	return nil, nil
}
func (f *fakeStore) ListPatientShares(context.Context, string) ([]store.SharedData, error) {
	return nil, nil
}

func (f *fakeStore) Ping(context.Context) error { return nil }

type fakeAnalyzer struct {
	analyzeFn func(context.Context, analysis.Input) (analysis.Result, error)
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, input analysis.Input) (analysis.Result, error) {
	if f.analyzeFn != nil {
		return f.analyzeFn(ctx, input)
	}
	return analysis.Result{}, nil
}

func newTestService(fs *fakeStore) *Service {
	return &Service{
		cfg: config.Config{
			JWTSecret:       "test-secret",
			AccessTTL:       15 * time.Minute,
			RefreshTTL:      30 * 24 * time.Hour,
			AnalysisTimeout: time.Second,
		},
		store:     fs,
		sessions:  fs,
		analyzing: make(map[string]struct{}),
	}
}

func patientSession() Session {
	return Session{UserID: "usr_pat", UserName: "Pat", Role: "patient"}
}

func therapistSession() Session {
	return Session{UserID: "usr_ther", UserName: "Sam", Role: "therapist"}
}

func requireDomainCode(t *testing.T, err error, code string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", code)
	}
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError %s, got %v", code, err)
	}
	if domainErr.Code != code {
		t.Fatalf("expected code %s, got %s", code, domainErr.Code)
	}
}

func TestCompleteExerciseComputesEffectiveness(t *testing.T) {
	var saved store.ExerciseCompletion
	fs := &fakeStore{
		getExerciseFn: func(_ context.Context, exerciseID string) (store.Exercise, error) {
			return store.Exercise{ID: exerciseID, Title: "Box Breathing"}, nil
		},
		createExerciseCompletionFn: func(_ context.Context, completion store.ExerciseCompletion) error {
			saved = completion
			return nil
		},
	}
	svc := newTestService(fs)

	_, err := svc.CompleteExercise(context.Background(), patientSession(), CompletionInput{
		ExerciseKind: store.ExerciseKindCatalog,
		ExerciseID:   "exr_box_breathing",
		MoodBefore:   2,
		MoodAfter:    6,
	})
	if err != nil {
		t.Fatalf("CompleteExercise() error = %v", err)
	}

	want := 4.0 / 7.0
	if saved.Effectiveness < want-1e-9 || saved.Effectiveness > want+1e-9 {
		t.Fatalf("expected effectiveness %v, got %v", want, saved.Effectiveness)
	}
}

func TestCompleteExerciseClampsMoodDropToZero(t *testing.T) {
	var saved store.ExerciseCompletion
	fs := &fakeStore{
		getExerciseFn: func(_ context.Context, exerciseID string) (store.Exercise, error) {
			return store.Exercise{ID: exerciseID}, nil
		},
		createExerciseCompletionFn: func(_ context.Context, completion store.ExerciseCompletion) error {
			saved = completion
			return nil
		},
	}
	svc := newTestService(fs)

	_, err := svc.CompleteExercise(context.Background(), patientSession(), CompletionInput{
		ExerciseKind: store.ExerciseKindCatalog,
		ExerciseID:   "exr_body_scan",
		MoodBefore:   6,
		MoodAfter:    2,
	})
	if err != nil {
		t.Fatalf("CompleteExercise() error = %v", err)
	}
	if saved.Effectiveness != 0 {
		t.Fatalf("expected effectiveness 0 for a mood drop, got %v", saved.Effectiveness)
	}
}

func TestCompleteExerciseRejectsForeignAssignment(t *testing.T) {
	fs := &fakeStore{
		getExerciseAssignmentFn: func(_ context.Context, assignmentID string) (store.ExerciseAssignment, error) {
			return store.ExerciseAssignment{ID: assignmentID, PatientID: "usr_other"}, nil
		},
	}
	svc := newTestService(fs)

	_, err := svc.CompleteExercise(context.Background(), patientSession(), CompletionInput{
		ExerciseKind: store.ExerciseKindAssignment,
		ExerciseID:   "asg_1",
		MoodBefore:   3,
		MoodAfter:    5,
	})
	requireDomainCode(t, err, "ACCESS_DENIED")
}

func TestCompleteExerciseRejectsUnknownKind(t *testing.T) {
	svc := newTestService(&fakeStore{})

	_, err := svc.CompleteExercise(context.Background(), patientSession(), CompletionInput{
		ExerciseKind: "freeform",
		ExerciseID:   "exr_1",
		MoodBefore:   3,
		MoodAfter:    5,
	})
	requireDomainCode(t, err, "VALIDATION_ERROR")
}

func TestShareDataRequiresAssignedTherapist(t *testing.T) {
	createCalls := 0
	fs := &fakeStore{
		getMoodEntryFn: func(_ context.Context, entryID string) (store.MoodEntry, error) {
			return store.MoodEntry{ID: entryID, UserID: "usr_pat"}, nil
		},
		listPatientTherapistsFn: func(context.Context, string) ([]store.User, error) {
			return nil, nil
		},
		createSharedDataFn: func(_ context.Context, rec store.SharedData) (store.SharedData, error) {
			createCalls++
			return rec, nil
		},
	}
	svc := newTestService(fs)

	_, err := svc.ShareData(context.Background(), patientSession(), store.SharedTypeMoodEntry, "me_1", "")
	requireDomainCode(t, err, "NO_THERAPIST_ASSIGNED")
	if createCalls != 0 {
		t.Fatalf("expected no ledger write, got %d", createCalls)
	}
}

func TestShareDataRejectsUnassignedTherapist(t *testing.T) {
	fs := &fakeStore{
		getMoodEntryFn: func(_ context.Context, entryID string) (store.MoodEntry, error) {
			return store.MoodEntry{ID: entryID, UserID: "usr_pat"}, nil
		},
		listPatientTherapistsFn: func(context.Context, string) ([]store.User, error) {
			return []store.User{{ID: "usr_ther"}}, nil
		},
	}
	svc := newTestService(fs)

	_, err := svc.ShareData(context.Background(), patientSession(), store.SharedTypeMoodEntry, "me_1", "usr_stranger")
	requireDomainCode(t, err, "ACCESS_DENIED")
}

func TestShareDataRejectsForeignRecordBeforeWrite(t *testing.T) {
	createCalls := 0
	fs := &fakeStore{
		getMoodEntryFn: func(_ context.Context, entryID string) (store.MoodEntry, error) {
			return store.MoodEntry{ID: entryID, UserID: "usr_other"}, nil
		},
		createSharedDataFn: func(_ context.Context, rec store.SharedData) (store.SharedData, error) {
			createCalls++
			return rec, nil
		},
	}
	svc := newTestService(fs)

	_, err := svc.ShareData(context.Background(), patientSession(), store.SharedTypeMoodEntry, "me_1", "usr_ther")
	requireDomainCode(t, err, "ACCESS_DENIED")
	if createCalls != 0 {
		t.Fatalf("expected no ledger write for a foreign record, got %d", createCalls)
	}
}

func TestShareDataDefaultsToSingleTherapist(t *testing.T) {
	var saved store.SharedData
	fs := &fakeStore{
		getMoodEntryFn: func(_ context.Context, entryID string) (store.MoodEntry, error) {
			return store.MoodEntry{ID: entryID, UserID: "usr_pat"}, nil
		},
		listPatientTherapistsFn: func(context.Context, string) ([]store.User, error) {
			return []store.User{{ID: "usr_ther"}}, nil
		},
		createSharedDataFn: func(_ context.Context, rec store.SharedData) (store.SharedData, error) {
			saved = rec
			rec.SharedAt = time.Now()
			return rec, nil
		},
	}
	svc := newTestService(fs)

	_, err := svc.ShareData(context.Background(), patientSession(), store.SharedTypeMoodEntry, "me_1", "")
	if err != nil {
		t.Fatalf("ShareData() error = %v", err)
	}
	if saved.TherapistID != "usr_ther" {
		t.Fatalf("expected share to default to the single therapist, got %q", saved.TherapistID)
	}
	if saved.PatientID != "usr_pat" || saved.DataType != store.SharedTypeMoodEntry || saved.DataID != "me_1" {
		t.Fatalf("unexpected ledger row %+v", saved)
	}
}

func TestShareDataRequiresTherapistIDWhenAmbiguous(t *testing.T) {
	fs := &fakeStore{
		getMoodEntryFn: func(_ context.Context, entryID string) (store.MoodEntry, error) {
			return store.MoodEntry{ID: entryID, UserID: "usr_pat"}, nil
		},
		listPatientTherapistsFn: func(context.Context, string) ([]store.User, error) {
			return []store.User{{ID: "usr_ther"}, {ID: "usr_ther2"}}, nil
		},
	}
	svc := newTestService(fs)

	_, err := svc.ShareData(context.Background(), patientSession(), store.SharedTypeMoodEntry, "me_1", "")
	requireDomainCode(t, err, "VALIDATION_ERROR")
}

func TestShareDataIsIdempotent(t *testing.T) {
	firstShared := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	ledger := make([]store.SharedData, 0)
	fs := &fakeStore{
		getMoodEntryFn: func(_ context.Context, entryID string) (store.MoodEntry, error) {
			return store.MoodEntry{ID: entryID, UserID: "usr_pat"}, nil
		},
		listPatientTherapistsFn: func(context.Context, string) ([]store.User, error) {
			return []store.User{{ID: "usr_ther"}}, nil
		},
		createSharedDataFn: func(_ context.Context, rec store.SharedData) (store.SharedData, error) {
			for _, existing := range ledger {
				if existing.PatientID == rec.PatientID && existing.TherapistID == rec.TherapistID &&
					existing.DataType == rec.DataType && existing.DataID == rec.DataID {
					return existing, nil
				}
			}
			rec.SharedAt = firstShared
			ledger = append(ledger, rec)
			return rec, nil
		},
	}
	svc := newTestService(fs)

	first, err := svc.ShareData(context.Background(), patientSession(), store.SharedTypeMoodEntry, "me_1", "")
	if err != nil {
		t.Fatalf("ShareData() error = %v", err)
	}
	second, err := svc.ShareData(context.Background(), patientSession(), store.SharedTypeMoodEntry, "me_1", "")
	if err != nil {
		t.Fatalf("ShareData() second call error = %v", err)
	}

	if len(ledger) != 1 {
		t.Fatalf("expected one ledger row after re-share, got %d", len(ledger))
	}
	if second["id"] != first["id"] {
		t.Fatalf("expected re-share to return the original row id %v, got %v", first["id"], second["id"])
	}
	if !second["sharedAt"].(time.Time).Equal(firstShared) {
		t.Fatalf("expected re-share to keep the original sharedAt, got %v", second["sharedAt"])
	}
}

func TestShareAbcSchemaSetsSharedFlag(t *testing.T) {
	flagSet := false
	fs := &fakeStore{
		getAbcSchemaFn: func(_ context.Context, schemaID string) (store.AbcSchema, error) {
			return store.AbcSchema{ID: schemaID, UserID: "usr_pat"}, nil
		},
		listPatientTherapistsFn: func(context.Context, string) ([]store.User, error) {
			return []store.User{{ID: "usr_ther"}}, nil
		},
		updateAbcSchemaFn: func(_ context.Context, schema store.AbcSchema) error {
			if schema.SharedWithTherapist {
				flagSet = true
			}
			return nil
		},
	}
	svc := newTestService(fs)

	_, err := svc.ShareData(context.Background(), patientSession(), store.SharedTypeAbcSchema, "abc_1", "")
	if err != nil {
		t.Fatalf("ShareData() error = %v", err)
	}
	if !flagSet {
		t.Fatalf("expected sharedWithTherapist to be set on the record")
	}
}

func TestTherapistReadsAbcSchemaThroughEdge(t *testing.T) {
	fs := &fakeStore{
		getAbcSchemaFn: func(_ context.Context, schemaID string) (store.AbcSchema, error) {
			// Not flagged as shared; the assignment edge alone grants reads.
			return store.AbcSchema{ID: schemaID, UserID: "usr_pat", SharedWithTherapist: false}, nil
		},
		hasTherapistPatientFn: func(_ context.Context, therapistID, patientID string) (bool, error) {
			return therapistID == "usr_ther" && patientID == "usr_pat", nil
		},
	}
	svc := newTestService(fs)

	payload, err := svc.GetAbcSchema(context.Background(), therapistSession(), "abc_1")
	if err != nil {
		t.Fatalf("GetAbcSchema() error = %v", err)
	}
	if payload["id"] != "abc_1" {
		t.Fatalf("expected record abc_1, got %v", payload["id"])
	}
}

func TestTherapistWithoutEdgeCannotReadAbcSchema(t *testing.T) {
	fs := &fakeStore{
		getAbcSchemaFn: func(_ context.Context, schemaID string) (store.AbcSchema, error) {
			return store.AbcSchema{ID: schemaID, UserID: "usr_pat", SharedWithTherapist: true}, nil
		},
	}
	svc := newTestService(fs)

	_, err := svc.GetAbcSchema(context.Background(), therapistSession(), "abc_1")
	requireDomainCode(t, err, "ACCESS_DENIED")
}

func TestPatientSharedDataDropsDanglingLedgerRows(t *testing.T) {
	fs := &fakeStore{
		hasTherapistPatientFn: func(context.Context, string, string) (bool, error) {
			return true, nil
		},
		listSharedDataIDsFn: func(_ context.Context, _, _, dataType string) ([]string, error) {
			if dataType == store.SharedTypeMoodEntry {
				return []string{"me_1", "me_deleted"}, nil
			}
			return nil, nil
		},
		getMoodEntriesByIDsFn: func(_ context.Context, _ string, ids []string) ([]store.MoodEntry, error) {
			return []store.MoodEntry{{ID: "me_1", UserID: "usr_pat", MoodLevel: 4}}, nil
		},
	}
	svc := newTestService(fs)

	payload, err := svc.PatientSharedData(context.Background(), therapistSession(), "usr_pat")
	if err != nil {
		t.Fatalf("PatientSharedData() error = %v", err)
	}
	entries := payload["moodEntries"].([]map[string]any)
	if len(entries) != 1 {
		t.Fatalf("expected 1 resolvable entry, got %d", len(entries))
	}
}

func TestPatientSharedDataRequiresEdge(t *testing.T) {
	svc := newTestService(&fakeStore{})

	_, err := svc.PatientSharedData(context.Background(), therapistSession(), "usr_pat")
	requireDomainCode(t, err, "ACCESS_DENIED")
}

func TestRemovePatientNotAssigned(t *testing.T) {
	svc := newTestService(&fakeStore{})

	err := svc.RemovePatient(context.Background(), therapistSession(), "usr_pat")
	requireDomainCode(t, err, "NOT_FOUND")
}

func TestAddPatientRejectsTherapistAccount(t *testing.T) {
	fs := &fakeStore{
		getUserByEmailFn: func(_ context.Context, email string) (store.User, error) {
			return store.User{ID: "usr_x", Email: email, Role: "therapist"}, nil
		},
	}
	svc := newTestService(fs)

	_, err := svc.AddPatient(context.Background(), therapistSession(), "colleague@example.com")
	requireDomainCode(t, err, "VALIDATION_ERROR")
}

func TestDuplicateTemplateBackReferencesOriginal(t *testing.T) {
	var saved store.ExerciseTemplate
	fs := &fakeStore{
		getExerciseTemplateFn: func(_ context.Context, templateID string) (store.ExerciseTemplate, error) {
			return store.ExerciseTemplate{
				ID:           templateID,
				TherapistID:  "usr_ther",
				Title:        "Worry Postponement",
				Instructions: "Write down the worry",
				IsActive:     true,
			}, nil
		},
		createExerciseTemplateFn: func(_ context.Context, tpl store.ExerciseTemplate) error {
			saved = tpl
			return nil
		},
	}
	svc := newTestService(fs)

	_, err := svc.DuplicateTemplate(context.Background(), therapistSession(), "tpl_1")
	if err != nil {
		t.Fatalf("DuplicateTemplate() error = %v", err)
	}
	if saved.Title != "Worry Postponement (copy)" {
		t.Fatalf("expected copied title, got %q", saved.Title)
	}
	if saved.OriginalTemplateID == nil || *saved.OriginalTemplateID != "tpl_1" {
		t.Fatalf("expected back reference to tpl_1, got %v", saved.OriginalTemplateID)
	}
	if saved.ID == "tpl_1" {
		t.Fatalf("expected a new id for the duplicate")
	}
}

func TestAssignExerciseRejectsInactiveTemplate(t *testing.T) {
	fs := &fakeStore{
		hasTherapistPatientFn: func(context.Context, string, string) (bool, error) {
			return true, nil
		},
		getExerciseTemplateFn: func(_ context.Context, templateID string) (store.ExerciseTemplate, error) {
			return store.ExerciseTemplate{ID: templateID, TherapistID: "usr_ther", IsActive: false}, nil
		},
	}
	svc := newTestService(fs)

	_, err := svc.AssignExercise(context.Background(), therapistSession(), AssignmentInput{
		TemplateID: "tpl_1",
		PatientID:  "usr_pat",
	})
	requireDomainCode(t, err, "VALIDATION_ERROR")
}

func TestAssignExerciseRejectsForeignAbcSchema(t *testing.T) {
	fs := &fakeStore{
		hasTherapistPatientFn: func(context.Context, string, string) (bool, error) {
			return true, nil
		},
		getExerciseTemplateFn: func(_ context.Context, templateID string) (store.ExerciseTemplate, error) {
			return store.ExerciseTemplate{ID: templateID, TherapistID: "usr_ther", IsActive: true}, nil
		},
		getAbcSchemaFn: func(_ context.Context, schemaID string) (store.AbcSchema, error) {
			return store.AbcSchema{ID: schemaID, UserID: "usr_other"}, nil
		},
	}
	svc := newTestService(fs)

	schemaID := "abc_1"
	_, err := svc.AssignExercise(context.Background(), therapistSession(), AssignmentInput{
		TemplateID:  "tpl_1",
		PatientID:   "usr_pat",
		AbcSchemaID: &schemaID,
	})
	requireDomainCode(t, err, "VALIDATION_ERROR")
}

func TestCreateMoodScaleValidation(t *testing.T) {
	svc := newTestService(&fakeStore{})
	session := patientSession()

	levels := func(n int) []store.MoodScaleLevel {
		out := make([]store.MoodScaleLevel, 0, n)
		for i := 1; i <= n; i++ {
			out = append(out, store.MoodScaleLevel{Level: i, Title: "Level", Category: "normal"})
		}
		return out
	}

	cases := []struct {
		name  string
		input MoodScaleInput
	}{
		{"missing name", MoodScaleInput{Levels: levels(5)}},
		{"bad size", MoodScaleInput{Name: "Scale", Levels: levels(4)}},
		{"bad category", MoodScaleInput{Name: "Scale", Levels: func() []store.MoodScaleLevel {
			ls := levels(3)
			ls[1].Category = "ecstatic"
			return ls
		}()}},
		{"non-contiguous", MoodScaleInput{Name: "Scale", Levels: func() []store.MoodScaleLevel {
			ls := levels(3)
			ls[2].Level = 5
			return ls
		}()}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateMoodScale(context.Background(), session, tc.input)
			requireDomainCode(t, err, "VALIDATION_ERROR")
		})
	}

	if _, err := svc.CreateMoodScale(context.Background(), session, MoodScaleInput{Name: "Bipolar 10", Levels: levels(10)}); err != nil {
		t.Fatalf("expected a 10-level scale to be accepted, got %v", err)
	}
}

func TestCreateMoodEntryValidatesAgainstScale(t *testing.T) {
	fs := &fakeStore{
		getMoodScaleFn: func(_ context.Context, scaleID string) (store.MoodScale, error) {
			return store.MoodScale{
				ID:     scaleID,
				UserID: "usr_pat",
				Levels: []store.MoodScaleLevel{
					{Level: 1, Title: "Low", Category: "depression"},
					{Level: 2, Title: "Flat", Category: "normal"},
					{Level: 3, Title: "High", Category: "elevation"},
				},
			}, nil
		},
	}
	svc := newTestService(fs)
	scaleID := "sc_1"

	_, err := svc.CreateMoodEntry(context.Background(), patientSession(), MoodEntryInput{
		MoodLevel:   5,
		MoodScaleID: &scaleID,
	})
	requireDomainCode(t, err, "VALIDATION_ERROR")

	if _, err := svc.CreateMoodEntry(context.Background(), patientSession(), MoodEntryInput{
		MoodLevel:   3,
		MoodScaleID: &scaleID,
	}); err != nil {
		t.Fatalf("expected level 3 on a 3-level scale to pass, got %v", err)
	}
}

func TestAnalyzeAbcSchemaPersistsResult(t *testing.T) {
	var savedRaw json.RawMessage
	fs := &fakeStore{
		getAbcSchemaFn: func(_ context.Context, schemaID string) (store.AbcSchema, error) {
			analyzedAt := time.Now()
			if len(savedRaw) > 0 {
				return store.AbcSchema{ID: schemaID, UserID: "usr_pat", Analysis: savedRaw, AnalyzedAt: &analyzedAt}, nil
			}
			return store.AbcSchema{ID: schemaID, UserID: "usr_pat"}, nil
		},
		listExercisesFn: func(context.Context) ([]store.Exercise, error) {
			return []store.Exercise{{ID: "exr_box_breathing", Title: "Box Breathing", Category: "relaxation"}}, nil
		},
		saveAbcAnalysisFn: func(_ context.Context, schemaID string, raw json.RawMessage, _ time.Time) error {
			savedRaw = raw
			return nil
		},
	}
	svc := newTestService(fs)
	svc.analyzer = &fakeAnalyzer{
		analyzeFn: func(_ context.Context, input analysis.Input) (analysis.Result, error) {
			if len(input.Catalog) != 1 {
				t.Fatalf("expected the catalog to be passed to the analyzer, got %d entries", len(input.Catalog))
			}
			return analysis.Result{
				Distortions: []analysis.Distortion{{Type: "catastrophizing", Description: "Worst case assumed", Confidence: 0.9}},
				Recommendations: []analysis.Recommendation{
					{ExerciseID: "exr_box_breathing", Reason: "Grounding first", Effectiveness: 0.7},
				},
			}, nil
		},
	}

	payload, err := svc.AnalyzeAbcSchema(context.Background(), patientSession(), "abc_1")
	if err != nil {
		t.Fatalf("AnalyzeAbcSchema() error = %v", err)
	}
	if len(savedRaw) == 0 {
		t.Fatalf("expected analysis to be persisted")
	}
	if payload["analysisStatus"] != "analyzed" {
		t.Fatalf("expected status analyzed, got %v", payload["analysisStatus"])
	}

	var result analysis.Result
	if err := json.Unmarshal(savedRaw, &result); err != nil {
		t.Fatalf("persisted analysis is not valid JSON: %v", err)
	}
	if len(result.Distortions) != 1 || result.Distortions[0].Type != "catastrophizing" {
		t.Fatalf("unexpected persisted distortions %+v", result.Distortions)
	}
}

func TestAnalyzeAbcSchemaMapsFailure(t *testing.T) {
	saveCalls := 0
	fs := &fakeStore{
		getAbcSchemaFn: func(_ context.Context, schemaID string) (store.AbcSchema, error) {
			return store.AbcSchema{ID: schemaID, UserID: "usr_pat"}, nil
		},
		saveAbcAnalysisFn: func(context.Context, string, json.RawMessage, time.Time) error {
			saveCalls++
			return nil
		},
	}
	svc := newTestService(fs)
	svc.analyzer = &fakeAnalyzer{
		analyzeFn: func(context.Context, analysis.Input) (analysis.Result, error) {
			return analysis.Result{}, analysis.ErrFailed
		},
	}

	_, err := svc.AnalyzeAbcSchema(context.Background(), patientSession(), "abc_1")
	requireDomainCode(t, err, "ANALYSIS_FAILED")
	if saveCalls != 0 {
		t.Fatalf("expected no partial write on a failed analysis, got %d", saveCalls)
	}
}

func TestAnalyzeAbcSchemaWithoutAnalyzer(t *testing.T) {
	fs := &fakeStore{
		getAbcSchemaFn: func(_ context.Context, schemaID string) (store.AbcSchema, error) {
			return store.AbcSchema{ID: schemaID, UserID: "usr_pat"}, nil
		},
	}
	svc := newTestService(fs)

	_, err := svc.AnalyzeAbcSchema(context.Background(), patientSession(), "abc_1")
	requireDomainCode(t, err, "ANALYSIS_FAILED")
}

func TestAbcSchemaPayloadReportsAnalyzing(t *testing.T) {
	svc := newTestService(&fakeStore{})
	svc.analyzing["abc_1"] = struct{}{}

	payload := svc.abcSchemaPayload(store.AbcSchema{ID: "abc_1", UserID: "usr_pat"})
	if payload["analysisStatus"] != "analyzing" {
		t.Fatalf("expected status analyzing, got %v", payload["analysisStatus"])
	}

	payload = svc.abcSchemaPayload(store.AbcSchema{ID: "abc_2", UserID: "usr_pat"})
	if payload["analysisStatus"] != "unanalyzed" {
		t.Fatalf("expected status unanalyzed, got %v", payload["analysisStatus"])
	}
}

func TestSessionRoundTrip(t *testing.T) {
	fs := &fakeStore{
		getUserByIDFn: func(_ context.Context, userID string) (store.User, error) {
			return store.User{ID: userID, DisplayName: "Pat", Role: "patient"}, nil
		},
	}
	svc := newTestService(fs)

	issued, err := svc.CreateSession(context.Background(), "usr_pat")
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if issued.RefreshToken == "" {
		t.Fatalf("expected a refresh token")
	}

	parsed, err := svc.SessionFromToken(context.Background(), issued.Token)
	if err != nil {
		t.Fatalf("SessionFromToken() error = %v", err)
	}
	if parsed.UserID != "usr_pat" || parsed.Role != "patient" {
		t.Fatalf("unexpected session %+v", parsed)
	}
}

func TestSessionFromTokenRejectsRevokedJTI(t *testing.T) {
	fs := &fakeStore{
		isAccessTokenRevokedFn: func(context.Context, string) (bool, error) {
			return true, nil
		},
	}
	svc := newTestService(fs)

	issued, err := svc.CreateSession(context.Background(), "usr_pat")
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if _, err := svc.SessionFromToken(context.Background(), issued.Token); err == nil {
		t.Fatalf("expected revoked token to be rejected")
	}
}
