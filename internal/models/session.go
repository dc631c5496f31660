package models

import (
	"encoding/json"
	"time"
)

type Difficulty string

const (
	DifficultyBeginner     Difficulty = "beginner"
	DifficultyIntermediate Difficulty = "intermediate"
	DifficultyAdvanced     Difficulty = "advanced"
)

type Category string

const (
	CategoryBehavioral  Category = "behavioral"
	CategoryTechnical   Category = "technical"
	CategorySituational Category = "situational"
)

type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// Settings is the configuration a caller picks when starting a session.
type Settings struct {
	Industry        string     `json:"industry"`
	Role            string     `json:"role"`
	Difficulty      Difficulty `json:"difficulty"`
	QuestionCount   int        `json:"question_count"`
	TimePerQuestion int        `json:"time_per_question"`
	Categories      []Category `json:"categories"`
	JobDescription  string     `json:"job_description,omitempty"`
	Skills          []string   `json:"skills,omitempty"`
}

// Criteria tells the candidate what each score dimension looks for.
type Criteria struct {
	Clarity    string `json:"clarity"`
	Content    string `json:"content"`
	Confidence string `json:"confidence"`
}

// Question is one generated interview prompt.
type Question struct {
	ID                 string   `json:"id"`
	Question           string   `json:"question"`
	Category           Category `json:"category"`
	TimeLimit          int      `json:"time_limit"`
	KeyPoints          []string `json:"key_points"`
	EvaluationCriteria Criteria `json:"evaluation_criteria"`
}

// Scores are the per-response ratings on a 0-100 scale.
type Scores struct {
	Clarity    float64 `json:"clarity"`
	Content    float64 `json:"content"`
	Confidence float64 `json:"confidence"`
	Relevance  float64 `json:"relevance"`
	Overall    float64 `json:"overall"`
}

type Suggestion struct {
	Area       string `json:"area"`
	Suggestion string `json:"suggestion"`
	Priority   string `json:"priority"`
}

// Analysis is the oracle's evaluation of one transcript.
type Analysis struct {
	Scores                *Scores      `json:"scores,omitempty"`
	Strengths             []string     `json:"strengths"`
	Improvements          []string     `json:"improvements"`
	Feedback              string       `json:"feedback"`
	KeywordMatches        []string     `json:"keyword_matches"`
	SuggestedImprovements []Suggestion `json:"suggested_improvements"`
}

// Response is an entry of the session's append-only response log.
type Response struct {
	QuestionID string    `json:"question_id"`
	Question   string    `json:"question"`
	Category   Category  `json:"category"`
	MediaURL   string    `json:"video_url"`
	Transcript string    `json:"transcript"`
	Duration   int       `json:"duration"`
	Analysis   *Analysis `json:"analysis"`
	RecordedAt time.Time `json:"recorded_at"`
}

type FeedbackScores struct {
	Clarity     float64 `json:"clarity"`
	Content     float64 `json:"content"`
	Confidence  float64 `json:"confidence"`
	Consistency float64 `json:"consistency"`
	Overall     float64 `json:"overall"`
}

type PerformanceSummary struct {
	Strengths       []string `json:"strengths"`
	Weaknesses      []string `json:"weaknesses"`
	StandoutMoments []string `json:"standout_moments"`
	ConcerningAreas []string `json:"concerning_areas"`
}

type CategoryScore struct {
	Score    float64 `json:"score"`
	Feedback string  `json:"feedback"`
}

type ImprovementStep struct {
	Priority    string   `json:"priority"`
	Area        string   `json:"area"`
	ActionSteps []string `json:"action_steps"`
	Resources   []string `json:"resources"`
}

type Readiness struct {
	Level     string   `json:"level"`
	Reasoning string   `json:"reasoning"`
	NextSteps []string `json:"next_steps"`
}

// Feedback is the oracle's assessment of a whole session.
type Feedback struct {
	OverallScores       FeedbackScores           `json:"overall_scores"`
	PerformanceSummary  PerformanceSummary       `json:"performance_summary"`
	CategoryBreakdown   map[string]CategoryScore `json:"category_breakdown"`
	ImprovementPlan     []ImprovementStep        `json:"improvement_plan"`
	ReadinessAssessment Readiness                `json:"readiness_assessment"`
}

// Summary is written once, when the session completes. Score fields stay nil
// when no response carried an analysis.
type Summary struct {
	CompletedAt     time.Time       `json:"completed_at"`
	Duration        int             `json:"duration"`
	OverallScore    *float64        `json:"overall_score"`
	ConfidenceScore *float64        `json:"confidence_score"`
	ClarityScore    *float64        `json:"clarity_score"`
	ContentScore    *float64        `json:"content_score"`
	Strengths       []string        `json:"strengths"`
	Improvements    []string        `json:"improvements"`
	Feedback        json.RawMessage `json:"feedback"`
}

// Session is a single mock interview owned by one user.
type Session struct {
	ID        int64      `json:"id"`
	Token     string     `json:"session_token"`
	UserID    int64      `json:"user_id"`
	Settings  Settings   `json:"settings"`
	Questions []Question `json:"questions"`
	Responses []Response `json:"responses"`
	Status    Status     `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	Summary   *Summary   `json:"summary,omitempty"`
}

// FindQuestion returns the question with the given id.
func (s *Session) FindQuestion(id string) (Question, bool) {
	for _, q := range s.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}

// HasResponse reports whether the log already holds an answer for id.
func (s *Session) HasResponse(questionID string) bool {
	for _, r := range s.Responses {
		if r.QuestionID == questionID {
			return true
		}
	}
	return false
}

// Recommendation is a practice suggestion derived from weak scores.
type Recommendation struct {
	Area      string   `json:"area"`
	Exercises []string `json:"exercises"`
	Priority  string   `json:"priority"`
}
