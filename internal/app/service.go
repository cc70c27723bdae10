package app

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"reframe/api/internal/access"
	"reframe/api/internal/analysis"
	"reframe/api/internal/auth"
	"reframe/api/internal/authpw"
	"reframe/api/internal/config"
	"reframe/api/internal/email"
	"reframe/api/internal/search"
	"reframe/api/internal/store"
	"reframe/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Role         string
	JTI          string
	ExpiresAt    time.Time
}

type MoodScaleInput struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	IsDefault   bool                   `json:"isDefault"`
	Levels      []store.MoodScaleLevel `json:"levels"`
}

type MoodEntryInput struct {
	MoodLevel   int     `json:"moodLevel"`
	MoodScaleID *string `json:"moodScaleId"`
	Notes       string  `json:"notes"`
}

type AbcSchemaInput struct {
	ActivatingEvent string `json:"activatingEvent"`
	Beliefs         string `json:"beliefs"`
	Consequences    string `json:"consequences"`
	MoodBefore      *int   `json:"moodBefore"`
	MoodAfter       *int   `json:"moodAfter"`
}

type ShareInput struct {
	TherapistID string `json:"therapistId"`
}

type CompletionInput struct {
	ExerciseKind string `json:"exerciseKind"`
	ExerciseID   string `json:"exerciseId"`
	MoodBefore   int    `json:"moodBefore"`
	MoodAfter    int    `json:"moodAfter"`
	Notes        string `json:"notes"`
}

type TemplateInput struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	Instructions string `json:"instructions"`
	Category     string `json:"category"`
}

type AssignmentInput struct {
	TemplateID  string  `json:"templateId"`
	PatientID   string  `json:"patientId"`
	AbcSchemaID *string `json:"abcSchemaId"`
	Note        string  `json:"note"`
}

// validScaleSizes are the level counts a custom mood scale may have.
var validScaleSizes = map[int]struct{}{3: {}, 5: {}, 7: {}, 9: {}, 10: {}}

var allowedLevelCategories = map[string]struct{}{
	"depression": {},
	"normal":     {},
	"elevation":  {},
	"mania":      {},
}

type dataStore interface {
	GetUserByID(context.Context, string) (store.User, error)
	GetUserByEmail(context.Context, string) (store.User, error)
	SaveRefreshSession(context.Context, string, string, time.Time) error
	LookupRefreshSession(context.Context, string) (store.User, error)
	RevokeRefreshSession(context.Context, string) error
	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)

	CreateTherapistPatient(context.Context, store.TherapistPatient) error
	DeleteTherapistPatient(context.Context, string, string) (bool, error)
	HasTherapistPatient(context.Context, string, string) (bool, error)
	ListTherapistPatients(context.Context, string) ([]store.User, error)
	ListPatientTherapists(context.Context, string) ([]store.User, error)

	CreateMoodScale(context.Context, store.MoodScale) error
	GetMoodScale(context.Context, string) (store.MoodScale, error)
	ListMoodScales(context.Context, string) ([]store.MoodScale, error)
	UpdateMoodScale(context.Context, store.MoodScale) error
	ClearDefaultMoodScale(context.Context, string) error

	CreateMoodEntry(context.Context, store.MoodEntry) error
	GetMoodEntry(context.Context, string) (store.MoodEntry, error)
	ListMoodEntries(context.Context, string, *time.Time, *time.Time) ([]store.MoodEntry, error)
	UpdateMoodEntry(context.Context, store.MoodEntry) error
	GetMoodEntriesByIDs(context.Context, string, []string) ([]store.MoodEntry, error)

	CreateAbcSchema(context.Context, store.AbcSchema) error
	GetAbcSchema(context.Context, string) (store.AbcSchema, error)
	ListAbcSchemas(context.Context, string, int, int) ([]store.AbcSchema, int, error)
	UpdateAbcSchema(context.Context, store.AbcSchema) error
	DeleteAbcSchema(context.Context, string) error
	SaveAbcAnalysis(context.Context, string, json.RawMessage, time.Time) error
	GetAbcSchemasByIDs(context.Context, string, []string) ([]store.AbcSchema, error)

	ListExercises(context.Context) ([]store.Exercise, error)
	GetExercise(context.Context, string) (store.Exercise, error)
	CreateExerciseTemplate(context.Context, store.ExerciseTemplate) error
	GetExerciseTemplate(context.Context, string) (store.ExerciseTemplate, error)
	ListExerciseTemplates(context.Context, string) ([]store.ExerciseTemplate, error)
	UpdateExerciseTemplate(context.Context, store.ExerciseTemplate) error
	DeactivateExerciseTemplate(context.Context, string) error
	CreateExerciseAssignment(context.Context, store.ExerciseAssignment) error
	GetExerciseAssignment(context.Context, string) (store.ExerciseAssignment, error)
	ListPatientAssignments(context.Context, string) ([]store.ExerciseAssignment, error)
	ListTherapistAssignments(context.Context, string, string) ([]store.ExerciseAssignment, error)
	CreateExerciseCompletion(context.Context, store.ExerciseCompletion) error
	GetExerciseCompletion(context.Context, string) (store.ExerciseCompletion, error)
	ListExerciseCompletions(context.Context, string) ([]store.ExerciseCompletion, error)
	GetExerciseCompletionsByIDs(context.Context, string, []string) ([]store.ExerciseCompletion, error)

	CreateSharedData(context.Context, store.SharedData) (store.SharedData, error)
	ListSharedDataIDs(context.Context, string, string, string) ([]string, error)
	ListPatientShares(context.Context, string) ([]store.SharedData, error)

	Ping(ctx context.Context) error
}

// refreshStore is the subset of session storage that can live in Redis
// instead of Postgres.
type refreshStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions refreshStore
	authpw   *authpw.Service
	mailer   *email.Service
	search   *search.Service
	analyzer analysis.Analyzer

	// ids of abc schemas with an analysis call in flight
	analyzingMu sync.Mutex
	analyzing   map[string]struct{}
}

func New(cfg config.Config, dataStore *store.PostgresStore, searchService *search.Service, analyzer analysis.Analyzer) *Service {
	return &Service{
		cfg:       cfg,
		store:     dataStore,
		sessions:  dataStore,
		authpw:    authpw.NewService(dataStore),
		search:    searchService,
		analyzer:  analyzer,
		analyzing: make(map[string]struct{}),
	}
}

// NewWithSessionStore builds a Service whose refresh tokens live in the
// given store (Redis) instead of Postgres.
func NewWithSessionStore(cfg config.Config, dataStore *store.PostgresStore, sessions refreshStore, searchService *search.Service, analyzer analysis.Analyzer) *Service {
	service := New(cfg, dataStore, searchService, analyzer)
	service.sessions = sessions
	return service
}

// SetMailer attaches an SMTP mailer used for verification and reset
// emails. When unset, tokens are surfaced in dev responses instead.
func (s *Service) SetMailer(mailer *email.Service) {
	s.mailer = mailer
}

// Bootstrap runs startup work that needs the full stack: reindexing
// thought records into Meilisearch when it is available.
func (s *Service) Bootstrap(ctx context.Context) error {
	if s.search != nil {
		s.search.ReindexAllFromPG(ctx)
	}
	return nil
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) AuthPasswordService() *authpw.Service {
	return s.authpw
}

// SMTPConfigured reports whether verification emails can be sent.
func (s *Service) SMTPConfigured() bool {
	return s.mailer != nil && s.mailer.IsConfigured()
}

// SendVerificationEmail is best effort; signup already succeeded.
func (s *Service) SendVerificationEmail(to, userName, token string) error {
	if !s.SMTPConfigured() {
		return nil
	}
	return s.mailer.SendVerificationEmail(to, userName, s.cfg.CORSOrigin+"/verify-email?token="+token)
}

func (s *Service) SendPasswordResetEmail(to, userName, token string) error {
	if !s.SMTPConfigured() {
		return nil
	}
	return s.mailer.SendPasswordResetEmail(to, userName, s.cfg.CORSOrigin+"/reset-password?token="+token)
}

// CreateSession issues access+refresh tokens for a signed-in user.
func (s *Service) CreateSession(ctx context.Context, userID string) (Session, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:  user.ID,
		Name: user.DisplayName,
		Role: user.Role,
		JTI:  jti,
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		Role:         user.Role,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	user, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	// Redis only stores the user id; reload the rest
	if user.Role == "" || user.DisplayName == "" {
		user, err = s.store.GetUserByID(ctx, user.ID)
		if err != nil {
			return Session{}, err
		}
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		Role:      user.Role,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

func (s *Service) Can(role string, action access.Action) bool {
	return access.Can(access.Normalize(role), action)
}

// SearchRecords searches the caller's own thought records. With no
// search backend configured it returns an empty result set.
func (s *Service) SearchRecords(ctx context.Context, session Session, text string, limit, offset int) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: text}
	}
	return s.search.Search(search.Query{
		Text:   text,
		UserID: session.UserID,
		Limit:  limit,
		Offset: offset,
	})
}

// ListTherapists lists the therapists assigned to the calling patient.
func (s *Service) ListTherapists(ctx context.Context, session Session) ([]map[string]any, error) {
	therapists, err := s.store.ListPatientTherapists(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(therapists))
	for _, t := range therapists {
		items = append(items, userPayload(t))
	}
	return items, nil
}

func userPayload(user store.User) map[string]any {
	return map[string]any{
		"id":          user.ID,
		"displayName": user.DisplayName,
		"email":       user.Email,
		"role":        user.Role,
	}
}
