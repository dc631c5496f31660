package oracle

import (
	"context"
	"errors"
	"strings"

	"careercoach/internal/models"
)

var (
	// ErrMalformed reports a reply that is not the expected JSON document.
	ErrMalformed = errors.New("oracle returned malformed json")
	// ErrTranscriptionUnsupported is returned by providers without audio input.
	ErrTranscriptionUnsupported = errors.New("transcription not supported by provider")
	// ErrNoAPIKey means neither the caller nor the server has a provider key.
	ErrNoAPIKey = errors.New("api token not configured")
)

// Audio is a recorded answer handed to Transcribe.
type Audio struct {
	Data     []byte
	MimeType string
}

// ResponseSummary is what GenerateFeedback sees of each logged response.
type ResponseSummary struct {
	Question string          `json:"question"`
	Category models.Category `json:"category"`
	Scores   *models.Scores  `json:"scores,omitempty"`
	Duration int             `json:"duration"`
}

// FeedbackRequest carries the whole-session context for GenerateFeedback.
type FeedbackRequest struct {
	Industry      string
	Role          string
	TotalDuration int
	Responses     []ResponseSummary
}

// AnalysisRequest carries one answer for AnalyzeResponse.
type AnalysisRequest struct {
	Question   string
	Category   models.Category
	Transcript string
	Duration   int
	Industry   string
	Role       string
}

// Oracle is the generative AI backend used by interview sessions.
type Oracle interface {
	GenerateQuestions(ctx context.Context, settings models.Settings) ([]models.Question, error)
	AnalyzeResponse(ctx context.Context, req AnalysisRequest) (*models.Analysis, error)
	GenerateFeedback(ctx context.Context, req FeedbackRequest) (*models.Feedback, error)
	Transcribe(ctx context.Context, audio Audio) (string, error)
}

// CleanJSON strips a surrounding markdown code fence from a model reply.
func CleanJSON(input string) string {
	clean := strings.TrimSpace(input)
	if strings.HasPrefix(clean, "```json") {
		clean = strings.TrimPrefix(clean, "```json")
	} else if strings.HasPrefix(clean, "```") {
		clean = strings.TrimPrefix(clean, "```")
	}
	clean = strings.TrimLeft(clean, "\r\n")
	clean = strings.TrimSuffix(clean, "```")
	return strings.TrimSpace(clean)
}
