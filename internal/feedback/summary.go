package feedback

import (
	"fmt"
	"math"
	"sort"

	"github.com/hyperjump/kaiwa/internal/models"
)

// Policy selects how per-question results combine into the session score.
type Policy string

const (
	// PolicyMean averages the per-question overall scores.
	PolicyMean Policy = "mean"
	// PolicyStarWeighted blends 0.2 active listening with 0.8 STAR average on the 1-5 scale.
	PolicyStarWeighted Policy = "star_weighted"
)

// ParsePolicy converts s to a Policy. "" selects PolicyStarWeighted.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "":
		return PolicyStarWeighted, nil
	case PolicyMean, PolicyStarWeighted:
		return Policy(s), nil
	}
	return "", fmt.Errorf("%w: unknown scoring policy %q", models.ErrInvalidArgument, s)
}

const (
	activeListeningWeight = 0.2
	starWeight            = 0.8
	// averageCandidate is the reference score for ComparisonToAverage.
	averageCandidate = 70
	trendMinEntries  = 3
	trendThreshold   = 5
	defaultTopN      = 3
	maxTopN          = 5
)

// Recommendation tiers keyed by overall score.
const (
	RecommendationLow  = "Consider practicing with the STAR method more frequently"
	RecommendationMid  = "Good foundation - focus on adding more specific examples"
	RecommendationHigh = "Excellent performance - ready for real interviews!"
)

// StarComposite is 0.2*activeListening + 0.8*STAR average, normalized from the 1-5 scale to 0-1.
func StarComposite(fb models.QuestionFeedback) float64 {
	return (activeListeningWeight*float64(fb.ActiveListening) + starWeight*fb.STAR.Average()) / 5
}

// composite is a question's contribution to the session score on 0-1.
func composite(fb models.QuestionFeedback, policy Policy) float64 {
	if policy == PolicyMean {
		return fb.OverallScore / 100
	}
	return StarComposite(fb)
}

// Summarize derives the session summary from its ordered feedback history.
func Summarize(sessionID, userID string, history []models.QuestionFeedback, policy Policy, topN, totalQuestions int) *models.SessionSummary {
	if policy == "" {
		policy = PolicyStarWeighted
	}
	if topN <= 0 {
		topN = defaultTopN
	}
	if topN > maxTopN {
		topN = maxTopN
	}
	if totalQuestions < len(history) {
		totalQuestions = len(history)
	}

	s := &models.SessionSummary{
		SessionID:             sessionID,
		UserID:                userID,
		ScoringPolicy:         string(policy),
		QuestionsAnswered:     len(history),
		TotalQuestions:        totalQuestions,
		CategoryScores:        map[models.Category]float64{},
		AggregatedStrengths:   []string{},
		AggregatedGrowthAreas: []string{},
		Recommendations:       []string{},
	}
	if len(history) == 0 {
		return s
	}

	var sum float64
	for _, fb := range history {
		sum += composite(fb, policy)
	}
	s.OverallScore = math.Round(100 * sum / float64(len(history)))
	s.ComparisonToAverage = s.OverallScore - averageCandidate
	s.CategoryScores = categoryScores(history)
	s.AggregatedStrengths = topByFrequency(history, func(fb models.QuestionFeedback) []string { return fb.Strengths }, topN)
	s.AggregatedGrowthAreas = topByFrequency(history, func(fb models.QuestionFeedback) []string { return fb.GrowthAreas }, topN)
	s.Trend = Trend(overallScores(history))
	s.Recommendations = []string{Recommendation(s.OverallScore)}
	return s
}

// Trend compares the mean of the first half of scores with the second half, split at len/2.
// It returns "" for fewer than three scores.
func Trend(scores []float64) string {
	if len(scores) < trendMinEntries {
		return ""
	}
	mid := len(scores) / 2
	first, second := mean(scores[:mid]), mean(scores[mid:])
	switch {
	case second > first+trendThreshold:
		return models.TrendImproving
	case second < first-trendThreshold:
		return models.TrendDeclining
	default:
		return models.TrendStable
	}
}

// Recommendation maps an overall score to its fixed tier.
func Recommendation(overall float64) string {
	switch {
	case overall < 60:
		return RecommendationLow
	case overall < 80:
		return RecommendationMid
	default:
		return RecommendationHigh
	}
}

func categoryScores(history []models.QuestionFeedback) map[models.Category]float64 {
	sums := map[models.Category]float64{}
	counts := map[models.Category]int{}
	for _, fb := range history {
		if fb.Category == "" {
			continue
		}
		sums[fb.Category] += fb.OverallScore
		counts[fb.Category]++
	}
	out := make(map[models.Category]float64, len(sums))
	for c, s := range sums {
		out[c] = s / float64(counts[c])
	}
	return out
}

// topByFrequency flattens items across history and returns the n most frequent, ties broken by
// first appearance.
func topByFrequency(history []models.QuestionFeedback, items func(models.QuestionFeedback) []string, n int) []string {
	counts := map[string]int{}
	var order []string
	for _, fb := range history {
		for _, s := range items(fb) {
			if counts[s] == 0 {
				order = append(order, s)
			}
			counts[s]++
		}
	}
	sort.SliceStable(order, func(i, j int) bool { return counts[order[i]] > counts[order[j]] })
	if len(order) > n {
		order = order[:n]
	}
	if order == nil {
		return []string{}
	}
	return order
}

func overallScores(history []models.QuestionFeedback) []float64 {
	out := make([]float64, len(history))
	for i, fb := range history {
		out[i] = fb.OverallScore
	}
	return out
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var s float64
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}
