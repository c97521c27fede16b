package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/hyperjump/kaiwa/internal/models"
	"github.com/hyperjump/kaiwa/pkg/utils"
)

const technicalQuestionPrompt = `Based on this candidate's background and job requirements:

%s

Generate ONE specific technical interview question that:
1. References a specific skill from their background
2. Relates to the job requirements
3. Asks about challenges or practical application

Question #%d of %d.
Return ONLY the question, no preamble.`

const softSkillQuestionPrompt = `Based on this job context:

%s

Generate ONE behavioral STAR question about: teamwork, communication, or problem-solving.

Question #%d of %d.
Start with "Tell me about a time when..." or "Describe a situation where..."
Return ONLY the question.`

const (
	interviewerSystem = "You are an experienced technical interviewer."
	coachSystem       = "You are a professional interview coach."
)

// Generator phrases interview questions and short conversational feedback.
type Generator struct {
	chat      Chatter
	maxTokens int
	temp      float64
}

// NewGenerator creates a generator over chat.
func NewGenerator(chat Chatter, maxTokens int, temperature float64) *Generator {
	if maxTokens <= 0 {
		maxTokens = 200
	}
	return &Generator{chat: chat, maxTokens: maxTokens, temp: temperature}
}

// GenerateQuestion returns one question for category grounded in contextSummary. Technical
// questions use the technical prompt; every other category uses the behavioral one.
func (g *Generator) GenerateQuestion(ctx context.Context, category models.Category, contextSummary string, number, total int) (string, error) {
	if total <= 0 {
		total = 5
	}
	tmpl := softSkillQuestionPrompt
	if category == models.CategoryTechnical {
		tmpl = technicalQuestionPrompt
	}
	prompt := fmt.Sprintf(tmpl, contextSummary, number, total)
	text, err := g.chat.Chat(ctx, []Message{
		{Role: "system", Content: interviewerSystem},
		{Role: "user", Content: prompt},
	}, ChatOptions{MaxTokens: g.maxTokens, Temperature: g.temp})
	if err != nil {
		return "", models.NewCollaboratorError(collaboratorName, "generate_question", err)
	}
	return cleanQuestion(text), nil
}

// GenerateFeedbackText returns two encouraging sentences about response. Failures are collaborator
// errors; callers fall back to the canned acknowledgement.
func (g *Generator) GenerateFeedbackText(ctx context.Context, question, response string) (string, error) {
	prompt := "Give brief encouraging feedback (2 sentences) on this answer: " + utils.Truncate(response, 500)
	if question != "" {
		prompt = "Question: " + question + "\n\n" + prompt
	}
	text, err := g.chat.Chat(ctx, []Message{
		{Role: "system", Content: coachSystem},
		{Role: "user", Content: prompt},
	}, ChatOptions{MaxTokens: 100, Temperature: g.temp})
	if err != nil {
		return "", models.NewCollaboratorError(collaboratorName, "generate_feedback", err)
	}
	return strings.TrimSpace(text), nil
}

const questionQuotes = "\"'“”"

// cleanQuestion drops wrapping quotes and a leading "Question:" label, in either nesting order.
func cleanQuestion(s string) string {
	s = strings.Trim(strings.TrimSpace(s), questionQuotes)
	if len(s) >= len("question:") && strings.EqualFold(s[:len("question:")], "question:") {
		s = s[len("question:"):]
	}
	return strings.Trim(strings.TrimSpace(s), questionQuotes)
}
