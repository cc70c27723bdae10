package store

import (
	"encoding/json"
	"time"
)

type User struct {
	ID                    string
	DisplayName           string
	Email                 string
	PasswordHash          string
	Role                  string
	IsEmailVerified       bool
	VerificationToken     string
	VerificationExpiresAt *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// TherapistPatient is the assignment edge between a therapist and a
// patient. Its existence is what grants a therapist access to the
// patient's thought records.
type TherapistPatient struct {
	ID          string
	TherapistID string
	PatientID   string
	CreatedAt   time.Time
}

// MoodScaleLevel is one step of a mood scale. Levels are stored as an
// ordered JSON array on the scale row.
type MoodScaleLevel struct {
	Level       int      `json:"level"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Indicators  []string `json:"indicators"`
	Category    string   `json:"category"`
}

type MoodScale struct {
	ID          string
	UserID      string
	Name        string
	Description string
	IsDefault   bool
	Levels      []MoodScaleLevel
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type MoodEntry struct {
	ID          string
	UserID      string
	MoodLevel   int
	MoodScaleID *string
	Notes       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// AbcSchema is a CBT thought record: activating event, beliefs,
// consequences. Analysis holds the raw JSON produced by the analysis
// gateway; nil until the first successful analysis.
type AbcSchema struct {
	ID                  string
	UserID              string
	ActivatingEvent     string
	Beliefs             string
	Consequences        string
	MoodBefore          *int
	MoodAfter           *int
	SharedWithTherapist bool
	Analysis            json.RawMessage
	AnalyzedAt          *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Exercise is a row of the read-only CBT exercise catalog, seeded by
// migration before the service accepts traffic.
type Exercise struct {
	ID              string
	Title           string
	Description     string
	Category        string
	DurationMinutes int
}

type ExerciseTemplate struct {
	ID                 string
	TherapistID        string
	Title              string
	Description        string
	Instructions       string
	Category           string
	OriginalTemplateID *string
	IsActive           bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

type ExerciseAssignment struct {
	ID          string
	TemplateID  string
	TherapistID string
	PatientID   string
	AbcSchemaID *string
	Note        string
	CreatedAt   time.Time
	// Joined template fields for API responses
	TemplateTitle    string
	TemplateCategory string
}

// ExerciseCompletion records a patient's submission against either a
// catalog exercise or an assignment. ExerciseKind discriminates which
// table ExerciseID resolves against.
type ExerciseCompletion struct {
	ID            string
	UserID        string
	ExerciseKind  string
	ExerciseID    string
	MoodBefore    int
	MoodAfter     int
	Effectiveness float64
	Notes         string
	CreatedAt     time.Time
}

const (
	ExerciseKindCatalog    = "catalog"
	ExerciseKindAssignment = "assignment"
)

// SharedData is one row of the append-only sharing ledger: a single
// record of a single type made visible to a single therapist.
type SharedData struct {
	ID          string
	PatientID   string
	TherapistID string
	DataType    string
	DataID      string
	SharedAt    time.Time
}

const (
	SharedTypeMoodEntry          = "mood_entry"
	SharedTypeAbcSchema          = "abc_schema"
	SharedTypeExerciseCompletion = "exercise_completion"
)
