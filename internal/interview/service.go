package interview

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"careercoach/internal/config"
	"careercoach/internal/events"
	"careercoach/internal/media"
	"careercoach/internal/models"
	"careercoach/internal/oracle"
	"careercoach/internal/redis"
	"careercoach/internal/storage"

	"github.com/google/uuid"
)

const (
	recordCachePrefix = "interview:record:"
	recordCacheTTL    = 10 * time.Minute
	maxAudioBytes     = 25 << 20
)

// OracleResolver picks the AI oracle a caller's requests go to.
type OracleResolver interface {
	ForUser(ctx context.Context, userID int64) (oracle.Oracle, error)
}

// ProfileSource supplies a user's career profile. A nil profile means the
// user has not completed onboarding.
type ProfileSource interface {
	Profile(ctx context.Context, userID int64) (*models.Profile, error)
}

// RecordCache stores serialised session records. *redis.Client satisfies it.
type RecordCache interface {
	GetJSON(ctx context.Context, key string, dest any) error
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// MediaOpener reads back previously uploaded recordings.
type MediaOpener interface {
	Open(ctx context.Context, key string) (io.ReadCloser, string, error)
}

type Options struct {
	DB       *storage.DB
	Oracles  OracleResolver
	Events   events.Publisher
	Cache    RecordCache
	Media    MediaOpener
	Profiles ProfileSource

	// TranscribeOnSave transcribes uploaded media when a response arrives
	// without a transcript.
	TranscribeOnSave bool
	// TranscriptionFailure is config.TranscriptionDegrade or
	// config.TranscriptionFail.
	TranscriptionFailure string
	Now                  func() time.Time
}

// Service runs the interview session lifecycle for authenticated callers.
type Service struct {
	db               *storage.DB
	oracles          OracleResolver
	events           events.Publisher
	cache            RecordCache
	media            MediaOpener
	profiles         ProfileSource
	transcribeOnSave bool
	failOnTranscript bool
	now              func() time.Time
}

func NewService(opts Options) (*Service, error) {
	if opts.DB == nil {
		return nil, errors.New("interview service requires a database")
	}
	if opts.Oracles == nil {
		return nil, errors.New("interview service requires an oracle resolver")
	}
	s := &Service{
		db:               opts.DB,
		oracles:          opts.Oracles,
		events:           opts.Events,
		cache:            opts.Cache,
		media:            opts.Media,
		profiles:         opts.Profiles,
		transcribeOnSave: opts.TranscribeOnSave,
		failOnTranscript: opts.TranscriptionFailure == config.TranscriptionFail,
		now:              opts.Now,
	}
	if s.events == nil {
		s.events = events.NopPublisher{}
	}
	if rc, ok := s.cache.(*redis.Client); ok && rc == nil {
		s.cache = nil
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s, nil
}

// ResponseInput is what a caller submits for one question.
type ResponseInput struct {
	MediaURL   string `json:"video_url"`
	MediaKey   string `json:"media_key"`
	Transcript string `json:"transcript"`
	Duration   int    `json:"duration"`
}

// CompletionResult is returned once a session is finalised.
type CompletionResult struct {
	Session         *models.Session         `json:"interview"`
	Feedback        *models.Feedback        `json:"feedback"`
	Recommendations []models.Recommendation `json:"recommendations"`
}

func (s *Service) authorize(ctx context.Context, userID int64) error {
	if userID <= 0 {
		return ErrUnauthorized
	}
	ok, err := s.userExists(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUserNotFound
	}
	return nil
}

// Create validates settings, asks the oracle for questions and persists a new
// in-progress session.
func (s *Service) Create(ctx context.Context, userID int64, settings models.Settings) (*models.Session, error) {
	if err := s.authorize(ctx, userID); err != nil {
		return nil, err
	}
	settings, err := s.withProfileDefaults(ctx, userID, settings)
	if err != nil {
		return nil, err
	}
	settings, err = normalizeSettings(settings)
	if err != nil {
		return nil, err
	}
	o, err := s.oracles.ForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	generated, err := o.GenerateQuestions(ctx, settings)
	if err != nil {
		return nil, oracleErr("generate questions", err)
	}
	questions, err := s.fitQuestions(generated, settings)
	if err != nil {
		return nil, err
	}

	now := s.now()
	sess := &models.Session{
		Token:     uuid.NewString(),
		UserID:    userID,
		Settings:  settings,
		Questions: questions,
		Responses: []models.Response{},
		Status:    models.StatusInProgress,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.insertInterview(ctx, sess); err != nil {
		return nil, err
	}
	s.publish(ctx, events.InterviewCreated, sess, map[string]any{"question_count": len(questions)})
	return sess, nil
}

// withProfileDefaults fills a blank industry and empty skill list from the
// caller's onboarding profile.
func (s *Service) withProfileDefaults(ctx context.Context, userID int64, settings models.Settings) (models.Settings, error) {
	if s.profiles == nil {
		return settings, nil
	}
	profile, err := s.profiles.Profile(ctx, userID)
	if err != nil {
		return settings, fmt.Errorf("load profile: %w", err)
	}
	if profile == nil {
		return settings, nil
	}
	if strings.TrimSpace(settings.Industry) == "" {
		settings.Industry = profile.Industry
	}
	if len(settings.Skills) == 0 {
		settings.Skills = append([]string(nil), profile.Skills...)
	}
	return settings, nil
}

// SaveResponse records the caller's answer to one question. Each question
// accepts exactly one response.
func (s *Service) SaveResponse(ctx context.Context, userID int64, token, questionID string, in ResponseInput) (*models.Response, error) {
	if err := s.authorize(ctx, userID); err != nil {
		return nil, err
	}
	questionID = strings.TrimSpace(questionID)
	var problems []string
	if questionID == "" {
		problems = append(problems, "Question id is required")
	}
	if in.Duration < 0 {
		problems = append(problems, "Duration cannot be negative")
	}
	if len(problems) > 0 {
		return nil, &ValidationError{Subject: "response", Problems: problems}
	}

	sess, err := s.loadOwned(ctx, userID, token)
	if err != nil {
		return nil, err
	}
	if sess.Status == models.StatusCompleted {
		return nil, ErrAlreadyCompleted
	}
	question, ok := sess.FindQuestion(questionID)
	if !ok {
		return nil, ErrQuestionNotFound
	}
	if sess.HasResponse(questionID) {
		return nil, ErrResponseExists
	}

	transcript := strings.TrimSpace(in.Transcript)
	if transcript == "" && in.MediaKey != "" && s.transcribeOnSave {
		transcript, err = s.transcribeMedia(ctx, userID, in.MediaKey)
		if err != nil {
			if s.failOnTranscript || errors.Is(err, ErrMediaNotFound) {
				return nil, err
			}
			log.Printf("interview %s: transcription degraded for question %s: %v", token, questionID, err)
			transcript = ""
		}
	}

	resp := &models.Response{
		QuestionID: question.ID,
		Question:   question.Question,
		Category:   question.Category,
		MediaURL:   in.MediaURL,
		Transcript: transcript,
		Duration:   in.Duration,
		RecordedAt: s.now(),
	}
	if transcript != "" {
		o, err := s.oracles.ForUser(ctx, userID)
		if err != nil {
			return nil, err
		}
		analysis, err := o.AnalyzeResponse(ctx, oracle.AnalysisRequest{
			Question:   question.Question,
			Category:   question.Category,
			Transcript: transcript,
			Duration:   in.Duration,
			Industry:   sess.Settings.Industry,
			Role:       sess.Settings.Role,
		})
		if err != nil {
			return nil, oracleErr("analyze response", err)
		}
		resp.Analysis = analysis
	}

	if err := s.appendResponse(ctx, sess.ID, resp); err != nil {
		return nil, err
	}
	s.invalidate(ctx, token)
	s.publish(ctx, events.InterviewResponseSaved, sess, map[string]any{
		"question_id": resp.QuestionID,
		"analyzed":    resp.Analysis != nil,
	})
	return resp, nil
}

func (s *Service) transcribeMedia(ctx context.Context, userID int64, key string) (string, error) {
	if s.media == nil || !media.OwnedBy(key, userID) {
		return "", ErrMediaNotFound
	}
	body, contentType, err := s.media.Open(ctx, key)
	if err != nil {
		if errors.Is(err, media.ErrNotFound) || errors.Is(err, media.ErrInvalidKey) {
			return "", ErrMediaNotFound
		}
		return "", fmt.Errorf("%w: %w", ErrTranscriptionFailed, err)
	}
	defer body.Close()
	data, err := io.ReadAll(io.LimitReader(body, maxAudioBytes+1))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrTranscriptionFailed, err)
	}
	if len(data) > maxAudioBytes {
		return "", fmt.Errorf("%w: recording exceeds %d bytes", ErrTranscriptionFailed, maxAudioBytes)
	}
	return s.transcribe(ctx, userID, oracle.Audio{Data: data, MimeType: contentType})
}

// Transcribe converts a recording to text. Unlike transcription during save,
// a failure here is always returned to the caller.
func (s *Service) Transcribe(ctx context.Context, userID int64, audio oracle.Audio) (string, error) {
	if err := s.authorize(ctx, userID); err != nil {
		return "", err
	}
	if len(audio.Data) == 0 {
		return "", &ValidationError{Subject: "audio", Problems: []string{"Audio data is required"}}
	}
	return s.transcribe(ctx, userID, audio)
}

func (s *Service) transcribe(ctx context.Context, userID int64, audio oracle.Audio) (string, error) {
	o, err := s.oracles.ForUser(ctx, userID)
	if err != nil {
		return "", err
	}
	text, err := o.Transcribe(ctx, audio)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrTranscriptionFailed, err)
	}
	return strings.TrimSpace(text), nil
}

// Complete aggregates the response log, asks the oracle for overall feedback
// and finalises the session. A completed session cannot be completed again.
func (s *Service) Complete(ctx context.Context, userID int64, token string) (*CompletionResult, error) {
	if err := s.authorize(ctx, userID); err != nil {
		return nil, err
	}
	sess, err := s.loadOwned(ctx, userID, token)
	if err != nil {
		return nil, err
	}
	if sess.Status == models.StatusCompleted {
		return nil, ErrAlreadyCompleted
	}

	duration := totalDuration(sess.Responses)
	avg := averageScores(sess.Responses)

	summaries := make([]oracle.ResponseSummary, 0, len(sess.Responses))
	for _, r := range sess.Responses {
		summary := oracle.ResponseSummary{Question: r.Question, Category: r.Category, Duration: r.Duration}
		if r.Analysis != nil && r.Analysis.Scores != nil {
			scores := *r.Analysis.Scores
			summary.Scores = &scores
		}
		summaries = append(summaries, summary)
	}
	o, err := s.oracles.ForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	feedback, err := o.GenerateFeedback(ctx, oracle.FeedbackRequest{
		Industry:      sess.Settings.Industry,
		Role:          sess.Settings.Role,
		TotalDuration: duration,
		Responses:     summaries,
	})
	if err != nil {
		return nil, oracleErr("generate feedback", err)
	}
	if feedback == nil {
		feedback = &models.Feedback{}
	}
	raw, err := json.Marshal(feedback)
	if err != nil {
		return nil, fmt.Errorf("encode feedback: %w", err)
	}

	now := s.now()
	summary := &models.Summary{
		CompletedAt:     now,
		Duration:        duration,
		OverallScore:    avg.Overall,
		ConfidenceScore: avg.Confidence,
		ClarityScore:    avg.Clarity,
		ContentScore:    avg.Content,
		Strengths:       nonNil(feedback.PerformanceSummary.Strengths),
		Improvements:    nonNil(feedback.PerformanceSummary.Weaknesses),
		Feedback:        raw,
	}
	if err := s.markCompleted(ctx, sess.ID, summary, now); err != nil {
		return nil, err
	}
	s.invalidate(ctx, token)

	sess.Status = models.StatusCompleted
	sess.UpdatedAt = now
	sess.Summary = summary
	s.publish(ctx, events.InterviewCompleted, sess, map[string]any{
		"duration":      duration,
		"overall_score": summary.OverallScore,
	})
	return &CompletionResult{
		Session:         sess,
		Feedback:        feedback,
		Recommendations: recommendations(avg, feedback),
	}, nil
}

// Get returns one session owned by userID. Only completed sessions are
// served from the record cache.
func (s *Service) Get(ctx context.Context, userID int64, token string) (*models.Session, error) {
	if err := s.authorize(ctx, userID); err != nil {
		return nil, err
	}
	if cached, ok := s.cachedSession(ctx, token); ok {
		if cached.UserID != userID {
			return nil, ErrNotFound
		}
		return cached, nil
	}
	sess, err := s.loadOwned(ctx, userID, token)
	if err != nil {
		return nil, err
	}
	if sess.Status == models.StatusCompleted {
		s.cacheSession(ctx, sess)
	}
	return sess, nil
}

// List returns the caller's sessions, newest first.
func (s *Service) List(ctx context.Context, userID int64) ([]*models.Session, error) {
	if err := s.authorize(ctx, userID); err != nil {
		return nil, err
	}
	return s.listOwned(ctx, userID)
}

// Delete removes a session and its responses. Uploaded media is left alone.
func (s *Service) Delete(ctx context.Context, userID int64, token string) error {
	if err := s.authorize(ctx, userID); err != nil {
		return err
	}
	if _, err := s.deleteOwned(ctx, userID, token); err != nil {
		return err
	}
	s.invalidate(ctx, token)
	s.publish(ctx, events.InterviewDeleted, &models.Session{Token: token, UserID: userID}, nil)
	return nil
}

// Question returns a single question of an in-progress session, used to time
// a recording.
func (s *Service) Question(ctx context.Context, userID int64, token, questionID string) (models.Question, error) {
	sess, err := s.Get(ctx, userID, token)
	if err != nil {
		return models.Question{}, err
	}
	if sess.Status == models.StatusCompleted {
		return models.Question{}, ErrAlreadyCompleted
	}
	q, ok := sess.FindQuestion(questionID)
	if !ok {
		return models.Question{}, ErrQuestionNotFound
	}
	return q, nil
}

func (s *Service) cachedSession(ctx context.Context, token string) (*models.Session, bool) {
	if s.cache == nil {
		return nil, false
	}
	var sess models.Session
	if err := s.cache.GetJSON(ctx, recordCachePrefix+token, &sess); err != nil {
		if !errors.Is(err, redis.ErrCacheMiss) {
			log.Printf("interview cache read %s: %v", token, err)
		}
		return nil, false
	}
	if sess.Status != models.StatusCompleted {
		return nil, false
	}
	return &sess, true
}

// cacheSession stores a completed record. Completed records only change by
// deletion, so the row is rechecked after the write: a Delete that committed
// in between has already evicted, and the stale copy is dropped here.
func (s *Service) cacheSession(ctx context.Context, sess *models.Session) {
	if s.cache == nil {
		return
	}
	key := recordCachePrefix + sess.Token
	if err := s.cache.SetJSON(ctx, key, sess, recordCacheTTL); err != nil {
		log.Printf("interview cache write %s: %v", sess.Token, err)
		return
	}
	exists, err := s.interviewExists(ctx, sess.ID)
	if err != nil || !exists {
		s.invalidate(ctx, sess.Token)
	}
}

func (s *Service) invalidate(ctx context.Context, token string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, recordCachePrefix+token); err != nil {
		log.Printf("interview cache evict %s: %v", token, err)
	}
}

func (s *Service) publish(ctx context.Context, kind string, sess *models.Session, data any) {
	evt := events.Event{
		Type:         kind,
		SessionToken: sess.Token,
		UserID:       sess.UserID,
		OccurredAt:   s.now(),
		Data:         data,
	}
	if err := s.events.Publish(ctx, evt); err != nil {
		log.Printf("publish %s for %s: %v", kind, sess.Token, err)
	}
}

func nonNil(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}
