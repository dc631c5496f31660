package interview

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"careercoach/internal/models"
)

const (
	MinQuestions          = 3
	MaxQuestions          = 10
	MinSecondsPerQuestion = 60
	MaxSecondsPerQuestion = 300

	MaxJobDescriptionRunes = 4000
	MaxSkills              = 30
)

// normalizeSettings trims the settings, applies the default difficulty and
// returns every violated rule at once.
func normalizeSettings(in models.Settings) (models.Settings, error) {
	s := in
	s.Industry = strings.TrimSpace(s.Industry)
	s.Role = strings.TrimSpace(s.Role)
	s.JobDescription = truncateRunes(strings.TrimSpace(s.JobDescription), MaxJobDescriptionRunes)
	s.Skills = normalizeSkills(s.Skills)
	s.Difficulty = models.Difficulty(strings.ToLower(strings.TrimSpace(string(s.Difficulty))))
	if s.Difficulty == "" {
		s.Difficulty = models.DifficultyIntermediate
	}

	var problems []string
	if s.Industry == "" {
		problems = append(problems, "Industry is required")
	}
	if s.Role == "" {
		problems = append(problems, "Role is required")
	}
	if s.QuestionCount < MinQuestions || s.QuestionCount > MaxQuestions {
		problems = append(problems, fmt.Sprintf("Question count must be between %d and %d", MinQuestions, MaxQuestions))
	}
	if s.TimePerQuestion < MinSecondsPerQuestion || s.TimePerQuestion > MaxSecondsPerQuestion {
		problems = append(problems, fmt.Sprintf("Time per question must be between %d and %d seconds", MinSecondsPerQuestion, MaxSecondsPerQuestion))
	}
	switch s.Difficulty {
	case models.DifficultyBeginner, models.DifficultyIntermediate, models.DifficultyAdvanced:
	default:
		problems = append(problems, fmt.Sprintf("Unknown difficulty %q", s.Difficulty))
	}

	seen := make(map[models.Category]bool)
	categories := make([]models.Category, 0, len(s.Categories))
	for _, c := range s.Categories {
		c = models.Category(strings.ToLower(strings.TrimSpace(string(c))))
		if !knownCategory(c) {
			problems = append(problems, fmt.Sprintf("Unknown question category %q", c))
			continue
		}
		if !seen[c] {
			seen[c] = true
			categories = append(categories, c)
		}
	}
	if len(s.Categories) == 0 {
		problems = append(problems, "At least one question category must be selected")
	}
	s.Categories = categories

	if len(problems) > 0 {
		return s, &ValidationError{Subject: "settings", Problems: problems}
	}
	return s, nil
}

func knownCategory(c models.Category) bool {
	switch c {
	case models.CategoryBehavioral, models.CategoryTechnical, models.CategorySituational:
		return true
	}
	return false
}

// fitQuestions trims the oracle's set to the requested size and repairs ids,
// categories and time limits so every question is addressable.
func (s *Service) fitQuestions(questions []models.Question, settings models.Settings) ([]models.Question, error) {
	if len(questions) < settings.QuestionCount {
		return nil, fmt.Errorf("%w: generated %d questions, want %d", ErrOracleFailed, len(questions), settings.QuestionCount)
	}
	out := make([]models.Question, settings.QuestionCount)
	copy(out, questions[:settings.QuestionCount])

	stamp := s.now().UnixNano()
	seen := make(map[string]bool, len(out))
	for i := range out {
		q := &out[i]
		q.ID = strings.TrimSpace(q.ID)
		if q.ID == "" || seen[q.ID] {
			for n := 0; q.ID == "" || seen[q.ID]; n++ {
				q.ID = fmt.Sprintf("q_%d_%d", stamp, i+n*len(out))
			}
		}
		seen[q.ID] = true
		if !knownCategory(q.Category) {
			q.Category = settings.Categories[i%len(settings.Categories)]
		}
		if q.TimeLimit < MinSecondsPerQuestion || q.TimeLimit > MaxSecondsPerQuestion {
			q.TimeLimit = settings.TimePerQuestion
		}
		if q.KeyPoints == nil {
			q.KeyPoints = []string{}
		}
	}
	return out, nil
}

func truncateRunes(text string, limit int) string {
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	return strings.TrimSpace(string(runes[:limit]))
}

func normalizeSkills(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, skill := range in {
		skill = strings.TrimSpace(skill)
		key := strings.ToLower(skill)
		if skill == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, skill)
		if len(out) == MaxSkills {
			break
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
