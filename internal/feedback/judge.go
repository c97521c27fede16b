package feedback

import (
	"context"
	"strings"

	"github.com/hyperjump/kaiwa/internal/models"
)

// Score is one rubric dimension on the 1-5 scale with a short explanation.
type Score struct {
	Score   int    `json:"score"`
	Insight string `json:"insight"`
}

// Rubric is what a judge returns for one answer. Its JSON form is the reply format requested from
// LLM judges.
type Rubric struct {
	ActiveListening Score    `json:"activeListening"`
	Situation       Score    `json:"situation"`
	Task            Score    `json:"task"`
	Action          Score    `json:"action"`
	Result          Score    `json:"result"`
	Strengths       []string `json:"strengths"`
	GrowthAreas     []string `json:"growthAreas"`
	// Overall, when set, is the judge's own 0-100 score for the answer.
	Overall *float64 `json:"overall,omitempty"`
}

// Judge scores an answer against the STAR rubric.
type Judge interface {
	Score(ctx context.Context, question, response, jobContext string) (*Rubric, error)
}

// neutralScore replaces missing or out-of-range rubric scores.
const neutralScore = 3

// DefaultRubric is the neutral result used whenever the judge is unavailable.
func DefaultRubric() *Rubric {
	return &Rubric{
		ActiveListening: Score{Score: neutralScore, Insight: "Response noted."},
		Situation:       Score{Score: neutralScore, Insight: "Context provided."},
		Task:            Score{Score: neutralScore, Insight: "Role explained."},
		Action:          Score{Score: neutralScore, Insight: "Actions described."},
		Result:          Score{Score: neutralScore, Insight: "Outcomes mentioned."},
		Strengths:       []string{"Clear communication", "Relevant example"},
		GrowthAreas:     []string{"Add specifics", "Quantify results"},
	}
}

// Normalize clamps every score into 1-5, treating 0 as missing, and trims list entries.
func (r *Rubric) Normalize() {
	for _, s := range []*Score{&r.ActiveListening, &r.Situation, &r.Task, &r.Action, &r.Result} {
		switch {
		case s.Score == 0:
			s.Score = neutralScore
		case s.Score < 1:
			s.Score = 1
		case s.Score > 5:
			s.Score = 5
		}
	}
	r.Strengths = cleanList(r.Strengths)
	r.GrowthAreas = cleanList(r.GrowthAreas)
	if r.Overall != nil {
		v := *r.Overall
		if v < 0 {
			v = 0
		}
		if v > 100 {
			v = 100
		}
		r.Overall = &v
	}
}

// STAR returns the four STAR scores.
func (r *Rubric) STAR() models.STARScores {
	return models.STARScores{
		Situation: r.Situation.Score,
		Task:      r.Task.Score,
		Action:    r.Action.Score,
		Result:    r.Result.Score,
	}
}

// Insights maps STAR dimension names to their explanations.
func (r *Rubric) Insights() map[string]string {
	return map[string]string{
		"situation": r.Situation.Insight,
		"task":      r.Task.Insight,
		"action":    r.Action.Insight,
		"result":    r.Result.Insight,
	}
}

func cleanList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, s := range items {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// NopJudge always fails, so every answer receives the default rubric.
type NopJudge struct{}

func (NopJudge) Score(context.Context, string, string, string) (*Rubric, error) {
	return nil, models.NewCollaboratorError("judge", "score", errNoJudge)
}
