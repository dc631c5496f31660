package oracle

import (
	"encoding/json"
	"fmt"
	"strings"

	"careercoach/internal/models"
)

const systemPrompt = `You are an experienced interview coach. Reply with a single JSON document and nothing else.`

func questionsPrompt(s models.Settings) string {
	categories := make([]string, 0, len(s.Categories))
	for _, c := range s.Categories {
		categories = append(categories, string(c))
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Generate %d interview questions for a %s position in the %s industry.\n\n", s.QuestionCount, s.Role, s.Industry)
	fmt.Fprintf(&b, "Difficulty level: %s\n", s.Difficulty)
	fmt.Fprintf(&b, "Include categories: %s\n", strings.Join(categories, ", "))
	fmt.Fprintf(&b, "Default time limit: %d seconds\n", s.TimePerQuestion)
	if len(s.Skills) > 0 {
		fmt.Fprintf(&b, "Candidate skills: %s\n", strings.Join(s.Skills, ", "))
	}
	if jd := strings.TrimSpace(s.JobDescription); jd != "" {
		fmt.Fprintf(&b, "\nTailor the questions to this job description:\n%s\n", jd)
	}
	b.WriteString(`
For each question provide the question text, its category (one of the requested
categories), the key points a strong answer covers, a time limit between 60 and
300 seconds, and evaluation criteria.

Return JSON in this format:
{
  "questions": [
    {
      "id": "unique_id",
      "question": "Question text",
      "category": "behavioral|technical|situational",
      "time_limit": 120,
      "key_points": ["point1", "point2", "point3"],
      "evaluation_criteria": {
        "clarity": "What to look for in clarity",
        "content": "What content points to evaluate",
        "confidence": "Confidence indicators to assess"
      }
    }
  ]
}
`)
	fmt.Fprintf(&b, "\nMake the questions relevant to %s and appropriate for %s candidates. Mix the requested categories.", s.Industry, s.Difficulty)
	return b.String()
}

func analysisPrompt(r AnalysisRequest) string {
	return fmt.Sprintf(`Analyze this video interview response for a %s position in %s.

Question: %q
Category: %s
Response transcript: %q
Response duration: %d seconds

Return JSON in this format:
{
  "scores": {"clarity": 0-100, "content": 0-100, "confidence": 0-100, "relevance": 0-100, "overall": 0-100},
  "strengths": ["strength1", "strength2"],
  "improvements": ["improvement1", "improvement2"],
  "feedback": "Detailed constructive feedback",
  "keyword_matches": ["relevant keywords mentioned"],
  "suggested_improvements": [
    {"area": "area to improve", "suggestion": "specific suggestion", "priority": "high|medium|low"}
  ]
}

Be constructive and specific. Judge communication clarity and structure, content
relevance and depth, confidence and professionalism, industry knowledge and
answer completeness.`, r.Role, r.Industry, r.Question, r.Category, r.Transcript, r.Duration)
}

func feedbackPrompt(r FeedbackRequest) (string, error) {
	summary, err := json.MarshalIndent(r.Responses, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode response summary: %w", err)
	}
	return fmt.Sprintf(`Generate feedback for a complete video interview session.

Position: %s in %s
Total duration: %d seconds

Individual response analysis:
%s

Return JSON in this format:
{
  "overall_scores": {"clarity": 0-100, "content": 0-100, "confidence": 0-100, "consistency": 0-100, "overall": 0-100},
  "performance_summary": {
    "strengths": ["key strengths"],
    "weaknesses": ["areas needing improvement"],
    "standout_moments": ["memorable positive moments"],
    "concerning_areas": ["areas of concern"]
  },
  "category_breakdown": {
    "behavioral": {"score": 0-100, "feedback": "feedback"},
    "technical": {"score": 0-100, "feedback": "feedback"},
    "situational": {"score": 0-100, "feedback": "feedback"}
  },
  "improvement_plan": [
    {"priority": "high|medium|low", "area": "area to improve", "action_steps": ["step1"], "resources": ["resource1"]}
  ],
  "readiness_assessment": {
    "level": "ready|needs_practice|significant_improvement_needed",
    "reasoning": "explanation",
    "next_steps": ["recommended next steps"]
  }
}

Be honest but constructive and give actionable feedback.`, r.Role, r.Industry, r.TotalDuration, summary), nil
}

const transcribePrompt = `Transcribe the speech in this recording verbatim. Return only the transcript text without commentary. Return an empty reply if nobody speaks.`
