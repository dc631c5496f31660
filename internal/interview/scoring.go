package interview

import (
	"careercoach/internal/models"
)

// RecommendationThreshold is the score below which a practice area is
// recommended.
const RecommendationThreshold = 70.0

// averages holds the mean of each score over analysed responses. A nil
// field means no response carried a scored analysis.
type averages struct {
	Clarity    *float64
	Content    *float64
	Confidence *float64
	Overall    *float64
}

func averageScores(responses []models.Response) averages {
	var n int
	var clarity, content, confidence, overall float64
	for _, r := range responses {
		if r.Analysis == nil || r.Analysis.Scores == nil {
			continue
		}
		n++
		clarity += r.Analysis.Scores.Clarity
		content += r.Analysis.Scores.Content
		confidence += r.Analysis.Scores.Confidence
		overall += r.Analysis.Scores.Overall
	}
	if n == 0 {
		return averages{}
	}
	mean := func(sum float64) *float64 {
		v := sum / float64(n)
		return &v
	}
	return averages{
		Clarity:    mean(clarity),
		Content:    mean(content),
		Confidence: mean(confidence),
		Overall:    mean(overall),
	}
}

func totalDuration(responses []models.Response) int {
	total := 0
	for _, r := range responses {
		total += r.Duration
	}
	return total
}

var practiceAreas = []struct {
	area      string
	priority  string
	exercises []string
	score     func(averages) *float64
}{
	{
		area:     "Communication Clarity",
		priority: "high",
		exercises: []string{
			"Practice speaking slowly and clearly",
			"Record yourself answering common questions",
			"Work on eliminating filler words",
		},
		score: func(a averages) *float64 { return a.Clarity },
	},
	{
		area:     "Confidence Building",
		priority: "high",
		exercises: []string{
			"Practice power poses before interviews",
			"Prepare and memorize key talking points",
			"Mock interview practice with friends or family",
		},
		score: func(a averages) *float64 { return a.Confidence },
	},
	{
		area:     "Content Preparation",
		priority: "medium",
		exercises: []string{
			"Research common interview questions for your field",
			"Prepare STAR method examples",
			"Study the company and role requirements",
		},
		score: func(a averages) *float64 { return a.Content },
	},
}

// recommendations thresholds the averaged scores. Sessions without any
// analysed response fall back to the oracle's overall scores.
func recommendations(avg averages, feedback *models.Feedback) []models.Recommendation {
	if avg.Overall == nil && feedback != nil && feedback.OverallScores.Overall > 0 {
		s := feedback.OverallScores
		avg = averages{Clarity: &s.Clarity, Content: &s.Content, Confidence: &s.Confidence, Overall: &s.Overall}
	}
	out := []models.Recommendation{}
	for _, p := range practiceAreas {
		v := p.score(avg)
		if v == nil || *v >= RecommendationThreshold {
			continue
		}
		exercises := make([]string, len(p.exercises))
		copy(exercises, p.exercises)
		out = append(out, models.Recommendation{Area: p.area, Exercises: exercises, Priority: p.priority})
	}
	return out
}
