package models

import "time"

// STARScores holds the 1-5 rubric scores for Situation, Task, Action, Result.
type STARScores struct {
	Situation int `json:"situation"`
	Task      int `json:"task"`
	Action    int `json:"action"`
	Result    int `json:"result"`
}

// Average is the mean of the four scores.
func (s STARScores) Average() float64 {
	return float64(s.Situation+s.Task+s.Action+s.Result) / 4
}

// Pacing labels derived from word count.
const (
	PacingTooBrief = "too_brief"
	PacingGood     = "good"
	PacingTooLong  = "too_long"
)

// DeliveryMetrics are computed deterministically from the answer text.
type DeliveryMetrics struct {
	WordCount           int     `json:"word_count"`
	FillerWords         int     `json:"filler_words"`
	SpeakingTimeSeconds float64 `json:"speaking_time_seconds"`
	Pacing              string  `json:"pacing"`
}

// QuestionFeedback is appended once per answered question and never edited.
type QuestionFeedback struct {
	QuestionID             string            `json:"question_id"`
	Question               string            `json:"question"`
	Category               Category          `json:"category"`
	Response               string            `json:"response"`
	OverallScore           float64           `json:"overall_score"`
	ActiveListening        int               `json:"active_listening"`
	ActiveListeningInsight string            `json:"active_listening_insight,omitempty"`
	STAR                   STARScores        `json:"star_scores"`
	STARInsights           map[string]string `json:"star_insights,omitempty"`
	Strengths              []string          `json:"strengths"`
	GrowthAreas            []string          `json:"growth_areas"`
	Delivery               DeliveryMetrics   `json:"delivery"`
	JudgeDegraded          bool              `json:"judge_degraded,omitempty"`
	CreatedAt              time.Time         `json:"created_at"`
}

// Trend labels.
const (
	TrendImproving = "improving"
	TrendDeclining = "declining"
	TrendStable    = "stable"
)

// SessionSummary is recomputed on demand from a session's feedback history.
type SessionSummary struct {
	SessionID             string               `json:"session_id"`
	UserID                string               `json:"user_id"`
	OverallScore          float64              `json:"overall_score"`
	ScoringPolicy         string               `json:"scoring_policy"`
	QuestionsAnswered     int                  `json:"questions_answered"`
	TotalQuestions        int                  `json:"total_questions"`
	CategoryScores        map[Category]float64 `json:"category_scores"`
	AggregatedStrengths   []string             `json:"aggregated_strengths"`
	AggregatedGrowthAreas []string             `json:"aggregated_growth_areas"`
	Trend                 string               `json:"trend,omitempty"`
	Recommendations       []string             `json:"recommendations"`
	ComparisonToAverage   float64              `json:"comparison_to_average"`
}
