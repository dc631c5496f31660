package interview

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"careercoach/internal/config"
	"careercoach/internal/events"
	"careercoach/internal/media"
	"careercoach/internal/models"
	"careercoach/internal/oracle"
	"careercoach/internal/redis"
	"careercoach/internal/storage"
)

type fakeOracle struct {
	mu            sync.Mutex
	questions     []models.Question
	questionsErr  error
	analyses      map[string]*models.Analysis
	analyzeErr    error
	feedback      *models.Feedback
	feedbackErr   error
	transcript    string
	transcribeErr error

	questionCalls int
	analyzeCalls  int
	feedbackCalls int
	lastFeedback  oracle.FeedbackRequest
	lastSettings  models.Settings
}

func (f *fakeOracle) GenerateQuestions(ctx context.Context, settings models.Settings) ([]models.Question, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.questionCalls++
	f.lastSettings = settings
	if f.questionsErr != nil {
		return nil, f.questionsErr
	}
	if f.questions != nil {
		return f.questions, nil
	}
	out := make([]models.Question, settings.QuestionCount)
	for i := range out {
		out[i] = models.Question{
			ID:        fmt.Sprintf("q%d", i+1),
			Question:  fmt.Sprintf("Question %d for %s", i+1, settings.Role),
			Category:  settings.Categories[i%len(settings.Categories)],
			TimeLimit: settings.TimePerQuestion,
			KeyPoints: []string{"point"},
		}
	}
	return out, nil
}

func (f *fakeOracle) AnalyzeResponse(ctx context.Context, req oracle.AnalysisRequest) (*models.Analysis, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.analyzeCalls++
	if f.analyzeErr != nil {
		return nil, f.analyzeErr
	}
	if a, ok := f.analyses[req.Transcript]; ok {
		return a, nil
	}
	return &models.Analysis{Scores: &models.Scores{Clarity: 75, Content: 75, Confidence: 75, Relevance: 75, Overall: 75}}, nil
}

func (f *fakeOracle) GenerateFeedback(ctx context.Context, req oracle.FeedbackRequest) (*models.Feedback, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.feedbackCalls++
	f.lastFeedback = req
	if f.feedbackErr != nil {
		return nil, f.feedbackErr
	}
	return f.feedback, nil
}

func (f *fakeOracle) Transcribe(ctx context.Context, audio oracle.Audio) (string, error) {
	if f.transcribeErr != nil {
		return "", f.transcribeErr
	}
	return f.transcript, nil
}

type staticResolver struct {
	o   oracle.Oracle
	err error
}

func (r staticResolver) ForUser(ctx context.Context, userID int64) (oracle.Oracle, error) {
	return r.o, r.err
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, evt events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

type memoryMedia map[string][]byte

func (m memoryMedia) Open(ctx context.Context, key string) (io.ReadCloser, string, error) {
	data, ok := m[key]
	if !ok {
		return nil, "", media.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), "audio/webm", nil
}

type staticProfiles struct {
	profile *models.Profile
	err     error
}

func (p staticProfiles) Profile(ctx context.Context, userID int64) (*models.Profile, error) {
	return p.profile, p.err
}

type memoryCache struct {
	mu        sync.Mutex
	entries   map[string][]byte
	hits      int
	beforeSet func()
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: make(map[string][]byte)}
}

func (c *memoryCache) GetJSON(ctx context.Context, key string, dest any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.entries[key]
	if !ok {
		return redis.ErrCacheMiss
	}
	c.hits++
	return json.Unmarshal(raw, dest)
}

func (c *memoryCache) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	c.mu.Lock()
	hook := c.beforeSet
	c.beforeSet = nil
	c.mu.Unlock()
	if hook != nil {
		hook()
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = raw
	return nil
}

func (c *memoryCache) Del(ctx context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.entries, k)
	}
	return nil
}

func (c *memoryCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

type fixture struct {
	db     *storage.DB
	oracle *fakeOracle
	pub    *recordingPublisher
	svc    *Service
}

var newFixture = func(t *testing.T, mutate func(*Options)) *fixture {
	t.Helper()
	cfg := &config.Config{
		Databases: map[string]config.DatabaseConfig{"sqlite3": {DSN: ":memory:"}},
	}
	db, err := storage.Open("sqlite3", cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := storage.Migrate(db); err != nil {
		t.Fatalf("migrate db: %v", err)
	}
	for _, id := range []int64{1, 2} {
		if _, err := db.Exec(`INSERT INTO users (id, username, password_hash, created_at) VALUES (?, ?, '', ?)`,
			id, fmt.Sprintf("user_%d", id), time.Now().UTC()); err != nil {
			t.Fatalf("insert user: %v", err)
		}
	}

	fo := &fakeOracle{
		feedback: &models.Feedback{
			OverallScores:      models.FeedbackScores{Overall: 68},
			PerformanceSummary: models.PerformanceSummary{Strengths: []string{"structured answers"}},
		},
	}
	pub := &recordingPublisher{}
	var clockMu sync.Mutex
	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	opts := Options{
		DB:      db,
		Oracles: staticResolver{o: fo},
		Events:  pub,
		Now: func() time.Time {
			clockMu.Lock()
			defer clockMu.Unlock()
			clock = clock.Add(time.Second)
			return clock
		},
	}
	if mutate != nil {
		mutate(&opts)
	}
	svc, err := NewService(opts)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return &fixture{db: db, oracle: fo, pub: pub, svc: svc}
}

func validSettings() models.Settings {
	return models.Settings{
		Industry:        "Technology",
		Role:            "Backend Engineer",
		Difficulty:      models.DifficultyIntermediate,
		QuestionCount:   3,
		TimePerQuestion: 120,
		Categories:      []models.Category{models.CategoryBehavioral, models.CategoryTechnical},
	}
}

func TestCreateReturnsRequestedQuestionCount(t *testing.T) {
	ctx := context.Background()
	for count := MinQuestions; count <= MaxQuestions; count++ {
		f := newFixture(t, nil)
		settings := validSettings()
		settings.QuestionCount = count
		sess, err := f.svc.Create(ctx, 1, settings)
		if err != nil {
			t.Fatalf("Create(count=%d): %v", count, err)
		}
		if len(sess.Questions) != count {
			t.Fatalf("expected %d questions, got %d", count, len(sess.Questions))
		}
		if sess.Status != models.StatusInProgress || sess.Token == "" || len(sess.Responses) != 0 {
			t.Fatalf("unexpected new session %+v", sess)
		}
	}
}

func TestCreateFitsOracleQuestions(t *testing.T) {
	f := newFixture(t, nil)
	f.oracle.questions = []models.Question{
		{ID: "a", Question: "one", Category: "unknown", TimeLimit: 5},
		{ID: "a", Question: "two", Category: models.CategoryTechnical, TimeLimit: 90},
		{Question: "three", Category: models.CategoryBehavioral, TimeLimit: 90},
		{ID: "d", Question: "four", Category: models.CategoryBehavioral, TimeLimit: 90},
	}
	sess, err := f.svc.Create(context.Background(), 1, validSettings())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(sess.Questions) != 3 {
		t.Fatalf("extra questions should be dropped, got %d", len(sess.Questions))
	}
	ids := map[string]bool{}
	for _, q := range sess.Questions {
		if q.ID == "" || ids[q.ID] {
			t.Fatalf("question ids not unique: %+v", sess.Questions)
		}
		ids[q.ID] = true
	}
	if sess.Questions[0].Category != models.CategoryBehavioral || sess.Questions[0].TimeLimit != 120 {
		t.Fatalf("first question not repaired: %+v", sess.Questions[0])
	}

	f.oracle.questions = f.oracle.questions[:2]
	if _, err := f.svc.Create(context.Background(), 1, validSettings()); !errors.Is(err, ErrOracleFailed) {
		t.Fatalf("expected ErrOracleFailed for short question set, got %v", err)
	}
}

func TestCreateValidationListsEveryProblem(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.svc.Create(context.Background(), 1, models.Settings{QuestionCount: 20, TimePerQuestion: 10})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(verr.Problems) != 5 {
		t.Fatalf("expected 5 problems, got %v", verr.Problems)
	}
	if !strings.HasPrefix(verr.Error(), "Invalid settings: Industry is required, Role is required") {
		t.Fatalf("unexpected message %q", verr.Error())
	}
	if f.oracle.questionCalls != 0 {
		t.Fatalf("oracle must not be called on invalid settings")
	}
}

func TestUnauthorizedBeforeValidation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	if _, err := f.svc.Create(ctx, 0, models.Settings{}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("Create: expected ErrUnauthorized, got %v", err)
	}
	if _, err := f.svc.SaveResponse(ctx, 0, "x", "", ResponseInput{Duration: -1}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("SaveResponse: expected ErrUnauthorized, got %v", err)
	}
	if _, err := f.svc.Complete(ctx, 0, "x"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("Complete: expected ErrUnauthorized, got %v", err)
	}
	if _, err := f.svc.List(ctx, 0); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("List: expected ErrUnauthorized, got %v", err)
	}
	if _, err := f.svc.Transcribe(ctx, 0, oracle.Audio{}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("Transcribe: expected ErrUnauthorized, got %v", err)
	}
	if _, err := f.svc.List(ctx, 99); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("List: expected ErrUserNotFound, got %v", err)
	}
}

func TestCreateOracleFailurePersistsNothing(t *testing.T) {
	f := newFixture(t, nil)
	f.oracle.questionsErr = errors.New("upstream 500")
	if _, err := f.svc.Create(context.Background(), 1, validSettings()); !errors.Is(err, ErrOracleFailed) {
		t.Fatalf("expected ErrOracleFailed, got %v", err)
	}
	list, err := f.svc.List(context.Background(), 1)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected no sessions, got %d", len(list))
	}
}

func TestSaveResponseAnalyzesOnlyWithTranscript(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	sess, err := f.svc.Create(ctx, 1, validSettings())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	resp, err := f.svc.SaveResponse(ctx, 1, sess.Token, "q1", ResponseInput{MediaURL: "/media/1/a.webm", Duration: 40})
	if err != nil {
		t.Fatalf("SaveResponse without transcript: %v", err)
	}
	if resp.Analysis != nil || f.oracle.analyzeCalls != 0 {
		t.Fatalf("no analysis expected without transcript")
	}

	resp, err = f.svc.SaveResponse(ctx, 1, sess.Token, "q2", ResponseInput{Transcript: "I built a queue", Duration: 55})
	if err != nil {
		t.Fatalf("SaveResponse with transcript: %v", err)
	}
	if resp.Analysis == nil || resp.Analysis.Scores == nil || resp.Analysis.Scores.Overall != 75 {
		t.Fatalf("expected analysis, got %+v", resp.Analysis)
	}

	got, err := f.svc.Get(ctx, 1, sess.Token)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got.Responses) != 2 || got.Responses[0].QuestionID != "q1" || got.Responses[1].Analysis == nil {
		t.Fatalf("unexpected response log %+v", got.Responses)
	}
	if got.Responses[0].MediaURL != "/media/1/a.webm" || got.Responses[1].Category != models.CategoryTechnical {
		t.Fatalf("response fields not persisted: %+v", got.Responses)
	}
}

func TestSaveResponseRejections(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	sess, err := f.svc.Create(ctx, 1, validSettings())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := f.svc.SaveResponse(ctx, 1, sess.Token, "nope", ResponseInput{Duration: 10}); !errors.Is(err, ErrQuestionNotFound) {
		t.Fatalf("expected ErrQuestionNotFound, got %v", err)
	}
	var verr *ValidationError
	if _, err := f.svc.SaveResponse(ctx, 1, sess.Token, " ", ResponseInput{Duration: -3}); !errors.As(err, &verr) || len(verr.Problems) != 2 {
		t.Fatalf("expected two validation problems, got %v", err)
	}
	if _, err := f.svc.SaveResponse(ctx, 1, "missing", "q1", ResponseInput{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if _, err := f.svc.SaveResponse(ctx, 1, sess.Token, "q1", ResponseInput{Duration: 10}); err != nil {
		t.Fatalf("first save: %v", err)
	}
	if _, err := f.svc.SaveResponse(ctx, 1, sess.Token, "q1", ResponseInput{Duration: 20}); !errors.Is(err, ErrResponseExists) {
		t.Fatalf("expected ErrResponseExists, got %v", err)
	}

	f.oracle.analyzeErr = errors.New("bad json")
	if _, err := f.svc.SaveResponse(ctx, 1, sess.Token, "q2", ResponseInput{Transcript: "text"}); !errors.Is(err, ErrOracleFailed) {
		t.Fatalf("expected ErrOracleFailed, got %v", err)
	}
	got, err := f.svc.Get(ctx, 1, sess.Token)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got.Responses) != 1 {
		t.Fatalf("failed analysis must not save a response, log=%+v", got.Responses)
	}
}

func TestConcurrentSavesRecordOneResponse(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	sess, err := f.svc.Create(ctx, 1, validSettings())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	var wg sync.WaitGroup
	results := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.SaveResponse(ctx, 1, sess.Token, "q1", ResponseInput{Duration: 10})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	saved := 0
	for err := range results {
		switch {
		case err == nil:
			saved++
		case errors.Is(err, ErrResponseExists):
		default:
			t.Fatalf("unexpected error %v", err)
		}
	}
	if saved != 1 {
		t.Fatalf("expected exactly one saved response, got %d", saved)
	}
}

func TestCompleteAveragesAnalysedResponses(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.oracle.analyses = map[string]*models.Analysis{
		"first":  {Scores: &models.Scores{Clarity: 80, Content: 60, Confidence: 70, Overall: 70}},
		"second": {Scores: &models.Scores{Clarity: 60, Content: 80, Confidence: 50, Overall: 63.3}},
	}
	sess, err := f.svc.Create(ctx, 1, validSettings())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	for qid, in := range map[string]ResponseInput{
		"q1": {Transcript: "first", Duration: 30},
		"q2": {Transcript: "second", Duration: 45},
		"q3": {Duration: 15},
	} {
		if _, err := f.svc.SaveResponse(ctx, 1, sess.Token, qid, in); err != nil {
			t.Fatalf("SaveResponse(%s): %v", qid, err)
		}
	}

	result, err := f.svc.Complete(ctx, 1, sess.Token)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	summary := result.Session.Summary
	if summary == nil || result.Session.Status != models.StatusCompleted {
		t.Fatalf("session not completed: %+v", result.Session)
	}
	if summary.OverallScore == nil || math.Abs(*summary.OverallScore-66.65) > 1e-9 {
		t.Fatalf("expected overall 66.65, got %v", summary.OverallScore)
	}
	if *summary.ClarityScore != 70 || *summary.ContentScore != 70 || *summary.ConfidenceScore != 60 {
		t.Fatalf("unexpected averages %+v", summary)
	}
	if summary.Duration != 90 || f.oracle.lastFeedback.TotalDuration != 90 {
		t.Fatalf("expected total duration 90, got %d", summary.Duration)
	}
	if len(summary.Strengths) != 1 || summary.Improvements == nil || len(summary.Improvements) != 0 {
		t.Fatalf("unexpected strengths/improvements %+v / %+v", summary.Strengths, summary.Improvements)
	}

	if len(result.Recommendations) != 1 || result.Recommendations[0].Area != "Confidence Building" {
		t.Fatalf("unexpected recommendations %+v", result.Recommendations)
	}

	stored, err := f.svc.Get(ctx, 1, sess.Token)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.Summary == nil || math.Abs(*stored.Summary.OverallScore-66.65) > 1e-9 || len(stored.Summary.Feedback) == 0 {
		t.Fatalf("summary not persisted: %+v", stored.Summary)
	}
}

func TestCompleteWithoutAnalysisLeavesScoresAbsent(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	sess, err := f.svc.Create(ctx, 1, validSettings())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := f.svc.SaveResponse(ctx, 1, sess.Token, "q1", ResponseInput{Duration: 12}); err != nil {
		t.Fatalf("SaveResponse: %v", err)
	}
	result, err := f.svc.Complete(ctx, 1, sess.Token)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	s := result.Session.Summary
	if s.OverallScore != nil || s.ClarityScore != nil || s.ContentScore != nil || s.ConfidenceScore != nil {
		t.Fatalf("expected absent averages, got %+v", s)
	}
	stored, err := f.svc.Get(ctx, 1, sess.Token)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.Summary == nil || stored.Summary.OverallScore != nil {
		t.Fatalf("expected stored null averages, got %+v", stored.Summary)
	}
}

func TestCompleteTwiceIsRejectedWithoutMutation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	sess, err := f.svc.Create(ctx, 1, validSettings())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	first, err := f.svc.Complete(ctx, 1, sess.Token)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	calls := f.oracle.feedbackCalls

	if _, err := f.svc.Complete(ctx, 1, sess.Token); !errors.Is(err, ErrAlreadyCompleted) {
		t.Fatalf("expected ErrAlreadyCompleted, got %v", err)
	}
	if f.oracle.feedbackCalls != calls {
		t.Fatalf("rejected completion must not reach the oracle")
	}
	stored, err := f.svc.Get(ctx, 1, sess.Token)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !stored.Summary.CompletedAt.Equal(first.Session.Summary.CompletedAt) || !stored.UpdatedAt.Equal(first.Session.UpdatedAt) {
		t.Fatalf("completed session was mutated: %+v", stored.Summary)
	}
	if _, err := f.svc.SaveResponse(ctx, 1, sess.Token, "q1", ResponseInput{}); !errors.Is(err, ErrAlreadyCompleted) {
		t.Fatalf("expected ErrAlreadyCompleted on save, got %v", err)
	}
}

func TestCompleteOracleFailureKeepsSessionOpen(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	sess, err := f.svc.Create(ctx, 1, validSettings())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	f.oracle.feedbackErr = errors.New("timeout")
	if _, err := f.svc.Complete(ctx, 1, sess.Token); !errors.Is(err, ErrOracleFailed) {
		t.Fatalf("expected ErrOracleFailed, got %v", err)
	}
	stored, err := f.svc.Get(ctx, 1, sess.Token)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.Status != models.StatusInProgress || stored.Summary != nil {
		t.Fatalf("failed completion must not persist, got %+v", stored)
	}
}

func TestOtherUsersSeeNotFound(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	sess, err := f.svc.Create(ctx, 1, validSettings())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := f.svc.Get(ctx, 2, sess.Token); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get: expected ErrNotFound, got %v", err)
	}
	if _, err := f.svc.SaveResponse(ctx, 2, sess.Token, "q1", ResponseInput{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("SaveResponse: expected ErrNotFound, got %v", err)
	}
	if _, err := f.svc.Complete(ctx, 2, sess.Token); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Complete: expected ErrNotFound, got %v", err)
	}
	if err := f.svc.Delete(ctx, 2, sess.Token); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Delete: expected ErrNotFound, got %v", err)
	}
	if _, err := f.svc.Question(ctx, 2, sess.Token, "q1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Question: expected ErrNotFound, got %v", err)
	}
	list, err := f.svc.List(ctx, 2)
	if err != nil || len(list) != 0 {
		t.Fatalf("List for other user: %v, %d sessions", err, len(list))
	}
	if _, err := f.svc.Get(ctx, 1, sess.Token); err != nil {
		t.Fatalf("owner lost access: %v", err)
	}
}

func TestDeleteThenGetIsNotFound(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	sess, err := f.svc.Create(ctx, 1, validSettings())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := f.svc.SaveResponse(ctx, 1, sess.Token, "q1", ResponseInput{Duration: 5}); err != nil {
		t.Fatalf("SaveResponse: %v", err)
	}
	if err := f.svc.Delete(ctx, 1, sess.Token); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := f.svc.Get(ctx, 1, sess.Token); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := f.svc.Delete(ctx, 1, sess.Token); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete: expected ErrNotFound, got %v", err)
	}
	var n int
	if err := f.db.QueryRow(`SELECT COUNT(*) FROM video_interview_responses`).Scan(&n); err != nil || n != 0 {
		t.Fatalf("responses left behind: %d (%v)", n, err)
	}

	want := []string{events.InterviewCreated, events.InterviewResponseSaved, events.InterviewDeleted}
	if got := f.pub.types(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected events %v", got)
	}
}

func TestListNewestFirst(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	var tokens []string
	for i := 0; i < 3; i++ {
		sess, err := f.svc.Create(ctx, 1, validSettings())
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		tokens = append(tokens, sess.Token)
	}
	if _, err := f.svc.SaveResponse(ctx, 1, tokens[0], "q2", ResponseInput{Duration: 8}); err != nil {
		t.Fatalf("SaveResponse: %v", err)
	}
	list, err := f.svc.List(ctx, 1)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 3 || list[0].Token != tokens[2] || list[2].Token != tokens[0] {
		t.Fatalf("unexpected order %v", list)
	}
	if len(list[2].Responses) != 1 || len(list[0].Responses) != 0 {
		t.Fatalf("responses not attached to their sessions")
	}
}

func TestQuestionLookup(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	sess, err := f.svc.Create(ctx, 1, validSettings())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	q, err := f.svc.Question(ctx, 1, sess.Token, "q2")
	if err != nil || q.TimeLimit != 120 {
		t.Fatalf("Question: %+v, %v", q, err)
	}
	if _, err := f.svc.Question(ctx, 1, sess.Token, "q9"); !errors.Is(err, ErrQuestionNotFound) {
		t.Fatalf("expected ErrQuestionNotFound, got %v", err)
	}
}

func TestTranscriptionPolicy(t *testing.T) {
	ctx := context.Background()
	store := memoryMedia{"1/answer.webm": []byte("audio")}

	degrade := newFixture(t, func(o *Options) {
		o.Media = store
		o.TranscribeOnSave = true
		o.TranscriptionFailure = config.TranscriptionDegrade
	})
	degrade.oracle.transcribeErr = errors.New("provider down")
	sess, err := degrade.svc.Create(ctx, 1, validSettings())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	resp, err := degrade.svc.SaveResponse(ctx, 1, sess.Token, "q1", ResponseInput{MediaKey: "1/answer.webm", Duration: 20})
	if err != nil {
		t.Fatalf("degrade policy should save: %v", err)
	}
	if resp.Transcript != "" || resp.Analysis != nil {
		t.Fatalf("expected empty transcript without analysis, got %+v", resp)
	}
	if _, err := degrade.svc.SaveResponse(ctx, 1, sess.Token, "q2", ResponseInput{MediaKey: "2/other.webm"}); !errors.Is(err, ErrMediaNotFound) {
		t.Fatalf("foreign media key: expected ErrMediaNotFound, got %v", err)
	}

	fail := newFixture(t, func(o *Options) {
		o.Media = store
		o.TranscribeOnSave = true
		o.TranscriptionFailure = config.TranscriptionFail
	})
	fail.oracle.transcribeErr = errors.New("provider down")
	sess, err = fail.svc.Create(ctx, 1, validSettings())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := fail.svc.SaveResponse(ctx, 1, sess.Token, "q1", ResponseInput{MediaKey: "1/answer.webm"}); !errors.Is(err, ErrTranscriptionFailed) {
		t.Fatalf("fail policy: expected ErrTranscriptionFailed, got %v", err)
	}

	fail.oracle.transcribeErr = nil
	fail.oracle.transcript = " spoken answer "
	resp, err = fail.svc.SaveResponse(ctx, 1, sess.Token, "q1", ResponseInput{MediaKey: "1/answer.webm"})
	if err != nil {
		t.Fatalf("SaveResponse: %v", err)
	}
	if resp.Transcript != "spoken answer" || resp.Analysis == nil {
		t.Fatalf("expected transcribed and analysed response, got %+v", resp)
	}
}

func TestTranscribeIsHardFailure(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	var verr *ValidationError
	if _, err := f.svc.Transcribe(ctx, 1, oracle.Audio{}); !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	f.oracle.transcribeErr = oracle.ErrTranscriptionUnsupported
	if _, err := f.svc.Transcribe(ctx, 1, oracle.Audio{Data: []byte("x")}); !errors.Is(err, ErrTranscriptionFailed) {
		t.Fatalf("expected ErrTranscriptionFailed, got %v", err)
	}
}

func TestNoAPIKeySurfaces(t *testing.T) {
	f := newFixture(t, func(o *Options) {
		o.Oracles = staticResolver{err: oracle.ErrNoAPIKey}
	})
	if _, err := f.svc.Create(context.Background(), 1, validSettings()); !errors.Is(err, oracle.ErrNoAPIKey) {
		t.Fatalf("expected ErrNoAPIKey, got %v", err)
	}
}

func TestCompleteIgnoresAnalysesWithoutScores(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.oracle.analyses = map[string]*models.Analysis{
		"scored":   {Scores: &models.Scores{Clarity: 80, Content: 80, Confidence: 80, Relevance: 80, Overall: 80}},
		"unscored": {Feedback: "answer was cut short"},
	}
	sess, err := f.svc.Create(ctx, 1, validSettings())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := f.svc.SaveResponse(ctx, 1, sess.Token, "q1", ResponseInput{Transcript: "scored", Duration: 20}); err != nil {
		t.Fatalf("SaveResponse(q1): %v", err)
	}
	unscored, err := f.svc.SaveResponse(ctx, 1, sess.Token, "q2", ResponseInput{Transcript: "unscored", Duration: 20})
	if err != nil {
		t.Fatalf("SaveResponse(q2): %v", err)
	}
	if unscored.Analysis == nil || unscored.Analysis.Scores != nil {
		t.Fatalf("expected an analysis without scores, got %+v", unscored.Analysis)
	}

	result, err := f.svc.Complete(ctx, 1, sess.Token)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	s := result.Session.Summary
	if s.OverallScore == nil || *s.OverallScore != 80 || *s.ClarityScore != 80 || *s.ContentScore != 80 || *s.ConfidenceScore != 80 {
		t.Fatalf("expected averages of 80, got %+v", s)
	}
	if len(result.Recommendations) != 0 {
		t.Fatalf("expected no recommendations, got %+v", result.Recommendations)
	}
	sent := f.oracle.lastFeedback.Responses
	if len(sent) != 2 || sent[0].Scores == nil || sent[1].Scores != nil {
		t.Fatalf("unexpected feedback summaries %+v", sent)
	}
}

func TestRecordCacheSkipsInProgressSessions(t *testing.T) {
	cache := newMemoryCache()
	f := newFixture(t, func(o *Options) { o.Cache = cache })
	ctx := context.Background()
	sess, err := f.svc.Create(ctx, 1, validSettings())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := f.svc.Get(ctx, 1, sess.Token); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if cache.size() != 0 {
		t.Fatalf("in-progress session should not be cached")
	}
	if _, err := f.svc.SaveResponse(ctx, 1, sess.Token, "q1", ResponseInput{Duration: 10}); err != nil {
		t.Fatalf("SaveResponse: %v", err)
	}
	got, err := f.svc.Get(ctx, 1, sess.Token)
	if err != nil || len(got.Responses) != 1 {
		t.Fatalf("expected the new response, got %+v, %v", got, err)
	}

	if _, err := f.svc.Complete(ctx, 1, sess.Token); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	for i := 0; i < 2; i++ {
		got, err := f.svc.Get(ctx, 1, sess.Token)
		if err != nil || got.Status != models.StatusCompleted {
			t.Fatalf("Get after complete: %+v, %v", got, err)
		}
	}
	if cache.size() != 1 || cache.hits != 1 {
		t.Fatalf("expected one cached record served once, size=%d hits=%d", cache.size(), cache.hits)
	}
	if _, err := f.svc.Get(ctx, 2, sess.Token); !errors.Is(err, ErrNotFound) {
		t.Fatalf("other user read cached record: %v", err)
	}
}

func TestRecordCacheDropsCopyWrittenAfterDelete(t *testing.T) {
	cache := newMemoryCache()
	f := newFixture(t, func(o *Options) { o.Cache = cache })
	ctx := context.Background()
	sess, err := f.svc.Create(ctx, 1, validSettings())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := f.svc.Complete(ctx, 1, sess.Token); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	cache.beforeSet = func() {
		if err := f.svc.Delete(ctx, 1, sess.Token); err != nil {
			t.Errorf("Delete: %v", err)
		}
	}
	if _, err := f.svc.Get(ctx, 1, sess.Token); err != nil {
		t.Fatalf("Get racing delete: %v", err)
	}
	if cache.size() != 0 {
		t.Fatalf("stale record left in cache")
	}
	if _, err := f.svc.Get(ctx, 1, sess.Token); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestCreateFallsBackToProfile(t *testing.T) {
	profile := &models.Profile{Industry: "Healthcare", Skills: []string{"Triage", "EHR"}}
	f := newFixture(t, func(o *Options) { o.Profiles = staticProfiles{profile: profile} })
	ctx := context.Background()

	settings := validSettings()
	settings.Industry = " "
	sess, err := f.svc.Create(ctx, 1, settings)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if sess.Settings.Industry != "Healthcare" || len(sess.Settings.Skills) != 2 {
		t.Fatalf("profile defaults not applied: %+v", sess.Settings)
	}
	if got := f.oracle.lastSettings.Skills; len(got) != 2 || got[0] != "Triage" {
		t.Fatalf("oracle did not receive profile skills: %v", got)
	}
	stored, err := f.svc.Get(ctx, 1, sess.Token)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.Settings.Industry != "Healthcare" || len(stored.Settings.Skills) != 2 || stored.Settings.Skills[1] != "EHR" {
		t.Fatalf("skills not persisted: %+v", stored.Settings)
	}

	explicit := validSettings()
	explicit.Skills = []string{"Go"}
	sess, err = f.svc.Create(ctx, 1, explicit)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if sess.Settings.Industry != "Technology" || len(sess.Settings.Skills) != 1 || sess.Settings.Skills[0] != "Go" {
		t.Fatalf("explicit settings overridden: %+v", sess.Settings)
	}
}

func TestCreateWithoutProfileStillValidates(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.Profiles = staticProfiles{} })
	settings := validSettings()
	settings.Industry = ""
	_, err := f.svc.Create(context.Background(), 1, settings)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if f.oracle.questionCalls != 0 {
		t.Fatalf("oracle called despite invalid settings")
	}
}
