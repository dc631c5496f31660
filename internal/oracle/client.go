package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"careercoach/internal/models"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"
)

// Client implements Oracle on top of an eino chat model. Transcription needs
// a genai client and is only available for the gemini provider.
type Client struct {
	chat      model.BaseChatModel
	genai     *genai.Client
	modelName string
	now       func() time.Time
}

// NewClient wraps an existing chat model. genaiClient may be nil.
func NewClient(chat model.BaseChatModel, genaiClient *genai.Client, modelName string) *Client {
	return &Client{chat: chat, genai: genaiClient, modelName: modelName, now: time.Now}
}

// Dial builds a client for provider using apiKey.
func Dial(ctx context.Context, provider, modelName, baseURL, apiKey string) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("api key for %s not configured", provider)
	}
	switch provider {
	case "openai":
		chat, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL: baseURL,
			Model:   modelName,
			APIKey:  apiKey,
		})
		if err != nil {
			return nil, fmt.Errorf("init openai model: %w", err)
		}
		return NewClient(chat, nil, modelName), nil
	case "gemini":
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  apiKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, fmt.Errorf("init gemini client: %w", err)
		}
		chat, err := gemini.NewChatModel(ctx, &gemini.Config{
			Client: client,
			Model:  modelName,
		})
		if err != nil {
			return nil, fmt.Errorf("init gemini model: %w", err)
		}
		return NewClient(chat, client, modelName), nil
	case "claude":
		var baseURLPtr *string
		if baseURL != "" {
			baseURLPtr = &baseURL
		}
		chat, err := claude.NewChatModel(ctx, &claude.Config{
			APIKey:    apiKey,
			Model:     modelName,
			BaseURL:   baseURLPtr,
			MaxTokens: 4000,
		})
		if err != nil {
			return nil, fmt.Errorf("init claude model: %w", err)
		}
		return NewClient(chat, nil, modelName), nil
	default:
		return nil, fmt.Errorf("invalid provider: %s", provider)
	}
}

// GenerateQuestions asks for a question set. Ids missing from the reply are
// filled in; the caller decides what to do with a set of the wrong size.
func (c *Client) GenerateQuestions(ctx context.Context, settings models.Settings) ([]models.Question, error) {
	var doc struct {
		Questions []models.Question `json:"questions"`
	}
	if err := c.generateJSON(ctx, questionsPrompt(settings), &doc); err != nil {
		return nil, fmt.Errorf("generate questions: %w", err)
	}
	stamp := c.now().UnixNano()
	for i := range doc.Questions {
		q := &doc.Questions[i]
		if strings.TrimSpace(q.ID) == "" {
			q.ID = fmt.Sprintf("q_%d_%d", stamp, i)
		}
		q.Category = models.Category(strings.ToLower(strings.TrimSpace(string(q.Category))))
	}
	return doc.Questions, nil
}

// AnalyzeResponse scores one transcript.
func (c *Client) AnalyzeResponse(ctx context.Context, req AnalysisRequest) (*models.Analysis, error) {
	var analysis models.Analysis
	if err := c.generateJSON(ctx, analysisPrompt(req), &analysis); err != nil {
		return nil, fmt.Errorf("analyze response: %w", err)
	}
	return &analysis, nil
}

// GenerateFeedback summarises a completed session.
func (c *Client) GenerateFeedback(ctx context.Context, req FeedbackRequest) (*models.Feedback, error) {
	prompt, err := feedbackPrompt(req)
	if err != nil {
		return nil, err
	}
	var feedback models.Feedback
	if err := c.generateJSON(ctx, prompt, &feedback); err != nil {
		return nil, fmt.Errorf("generate feedback: %w", err)
	}
	return &feedback, nil
}

// Transcribe sends the recording inline to gemini.
func (c *Client) Transcribe(ctx context.Context, audio Audio) (string, error) {
	if c.genai == nil {
		return "", ErrTranscriptionUnsupported
	}
	if len(audio.Data) == 0 {
		return "", errors.New("audio is empty")
	}
	mimeType := audio.MimeType
	if mimeType == "" {
		mimeType = "audio/webm"
	}
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(transcribePrompt),
			genai.NewPartFromBytes(audio.Data, mimeType),
		}, genai.RoleUser),
	}
	resp, err := c.genai.Models.GenerateContent(ctx, c.modelName, contents, nil)
	if err != nil {
		return "", fmt.Errorf("transcribe audio: %w", err)
	}
	return strings.TrimSpace(resp.Text()), nil
}

func (c *Client) generateJSON(ctx context.Context, prompt string, dest any) error {
	reply, err := c.chat.Generate(ctx, []*schema.Message{
		{Role: schema.System, Content: systemPrompt},
		{Role: schema.User, Content: prompt},
	})
	if err != nil {
		return err
	}
	if reply == nil {
		return ErrMalformed
	}
	if err := json.Unmarshal([]byte(CleanJSON(reply.Content)), dest); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}
