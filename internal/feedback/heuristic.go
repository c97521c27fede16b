package feedback

import (
	"context"
	"errors"
	"strings"

	"github.com/hyperjump/kaiwa/pkg/utils"
)

var errNoJudge = errors.New("no judge configured")

// STAR keyword cues matched as lower-case substrings.
var (
	situationCues = []string{"when", "while", "during"}
	taskCues      = []string{"needed", "required", "had to", "goal"}
	actionCues    = []string{"i did", "i made", "i created", "i developed"}
	resultCues    = []string{"result", "outcome", "achieved", "improved"}
)

const (
	cuePresent = 4
	cueAbsent  = 2
)

// HeuristicJudge scores answers from length and STAR keyword cues without any remote call.
type HeuristicJudge struct{}

// Score never fails.
func (HeuristicJudge) Score(ctx context.Context, question, response, jobContext string) (*Rubric, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	words := utils.WordCount(response)
	length, lengthInsight := lengthScore(words)
	lower := strings.ToLower(response)

	r := &Rubric{
		ActiveListening: Score{Score: length, Insight: lengthInsight},
		Situation:       cueScore(lower, situationCues, "Sets the scene.", "Describe the situation first."),
		Task:            cueScore(lower, taskCues, "States the goal.", "Say what you needed to achieve."),
		Action:          cueScore(lower, actionCues, "Owns the actions taken.", "Describe what you did yourself."),
		Result:          cueScore(lower, resultCues, "Reports an outcome.", "Close with the outcome."),
	}

	if words >= 20 {
		r.Strengths = append(r.Strengths, lengthInsight)
	} else {
		r.GrowthAreas = append(r.GrowthAreas, lengthInsight)
	}
	r.Strengths = append(r.Strengths, "Shows understanding of the question")

	if r.STAR().Average() < neutralScore {
		r.GrowthAreas = append(r.GrowthAreas, "Consider using the STAR method more explicitly")
	} else {
		r.Strengths = append(r.Strengths, "Good use of STAR method")
	}
	if strings.ContainsAny(response, "%0123456789") {
		r.Strengths = append(r.Strengths, "Good use of metrics")
	} else {
		r.GrowthAreas = append(r.GrowthAreas, "Include specific metrics or outcomes")
	}
	return r, nil
}

func lengthScore(words int) (int, string) {
	switch {
	case words < 20:
		return 2, "Consider providing more detail in your response."
	case words < 50:
		return 3, "Good level of detail."
	case words < 150:
		return 4, "Great comprehensive response."
	default:
		return 5, "Excellent thorough response."
	}
}

func cueScore(lower string, cues []string, hit, miss string) Score {
	if utils.ContainsAny(lower, cues...) {
		return Score{Score: cuePresent, Insight: hit}
	}
	return Score{Score: cueAbsent, Insight: miss}
}
