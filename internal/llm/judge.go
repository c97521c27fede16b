package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/hyperjump/kaiwa/internal/feedback"
	"github.com/hyperjump/kaiwa/internal/models"
	"github.com/hyperjump/kaiwa/pkg/utils"
)

const judgePrompt = `Analyze this interview response. Rate 1-5 for each STAR category.

QUESTION: %s
RESPONSE: %s
JOB CONTEXT: %s

Return JSON only:
{"activeListening": {"score": 1-5, "insight": "..."},
 "situation": {"score": 1-5, "insight": "..."},
 "task": {"score": 1-5, "insight": "..."},
 "action": {"score": 1-5, "insight": "..."},
 "result": {"score": 1-5, "insight": "..."},
 "strengths": ["...", "..."],
 "growthAreas": ["...", "..."]}`

const (
	judgeSystem      = "Return only valid JSON."
	judgeMaxTokens   = 500
	judgeTemperature = 0.3
)

var errNoJSON = errors.New("reply contains no JSON object")

// Judge scores answers by asking a chat model for the STAR rubric.
type Judge struct {
	chat Chatter
}

// NewJudge creates a judge over chat.
func NewJudge(chat Chatter) *Judge {
	return &Judge{chat: chat}
}

// Score implements feedback.Judge. Any failure is a CollaboratorError so the aggregator can
// substitute its default rubric.
func (j *Judge) Score(ctx context.Context, question, response, jobContext string) (*feedback.Rubric, error) {
	if jobContext == "" {
		jobContext = "General"
	}
	prompt := fmt.Sprintf(judgePrompt, question, response, utils.Truncate(jobContext, 500))
	text, err := j.chat.Chat(ctx, []Message{
		{Role: "system", Content: judgeSystem},
		{Role: "user", Content: prompt},
	}, ChatOptions{MaxTokens: judgeMaxTokens, Temperature: judgeTemperature, JSON: true})
	if err != nil {
		return nil, models.NewCollaboratorError(collaboratorName, "score", err)
	}
	r, err := ParseRubric(text)
	if err != nil {
		return nil, models.NewCollaboratorError(collaboratorName, "score", err)
	}
	return r, nil
}

// ParseRubric decodes the JSON object spanning the first '{' to the last '}' of text, which
// tolerates prose or code fences around it.
func ParseRubric(text string) (*feedback.Rubric, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, errNoJSON
	}
	var r feedback.Rubric
	if err := json.Unmarshal([]byte(text[start:end+1]), &r); err != nil {
		return nil, fmt.Errorf("decode rubric: %w", err)
	}
	return &r, nil
}
