package interview

import (
	"strings"

	"github.com/hyperjump/kaiwa/internal/models"
)

// Menu-style copy.
const (
	greetingText = "Welcome to your Mock Interview!\n\n" +
		"I'm your AI interviewer today. I've reviewed your resume and job requirements.\n\n" +
		"When you're ready, just say 'I'm ready' or 'Yes'."

	menuText = "Please choose an interview section:\n\n" +
		"1. Self-Introduction - Tell me about yourself\n" +
		"2. Technical Questions - Based on your skills\n" +
		"3. Soft-Skill Questions - Behavioral questions\n\n" +
		"Say the number or section name. Say 'STOP' to return here."

	stopText       = "Let's take a break.\n\n" + menuText
	notReadyText   = "Let me know when you're ready!"
	badChoiceText  = "Please say 1, 2, or 3."
	sectionEndText = "Section complete! "
	endedText      = "Interview session has ended."

	// fallbackFeedbackText replies to an answer when no feedback text can be generated.
	fallbackFeedbackText = "That's a great point. Can you elaborate?"
)

// Flat-style copy.
const (
	firstQuestionPrefix = "Let's begin the interview. "
	nextQuestionPrefix  = "Good answer. Here's the next question: "
	completionText      = "Thank you for completing the interview! Here's your overall feedback."
)

// SelfIntroQuestions open the self-introduction section, in order.
var SelfIntroQuestions = []string{
	"Please introduce yourself and give me a brief overview of your background.",
	"Why are you interested in this particular role?",
	"Why are you looking to leave your current position?",
	"What makes you the best fit for this position?",
	"What are your greatest strengths and areas for improvement?",
}

var readyWords = []string{"ready", "yes", "start", "begin", "ok", "okay", "sure"}

// isReady matches readiness words as case-insensitive substrings.
func isReady(msg string) bool {
	lower := strings.ToLower(msg)
	for _, w := range readyWords {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

// isStop reports whether msg asks to return to the menu.
func isStop(msg string) bool {
	return strings.Contains(strings.ToLower(msg), "stop")
}

// parseSection maps a menu choice to its section state, checking self-introduction first, then
// technical, then soft skills.
func parseSection(msg string) (models.State, bool) {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "1") || strings.Contains(lower, "self") || strings.Contains(lower, "intro"):
		return models.StateSelfIntro, true
	case strings.Contains(lower, "2") || strings.Contains(lower, "tech"):
		return models.StateTechnical, true
	case strings.Contains(lower, "3") || strings.Contains(lower, "soft") || strings.Contains(lower, "behavior"):
		return models.StateSoftSkill, true
	}
	return "", false
}

// sectionCategory is the question category served by a menu section.
func sectionCategory(s models.State) models.Category {
	switch s {
	case models.StateSelfIntro:
		return models.CategorySelfIntroduction
	case models.StateTechnical:
		return models.CategoryTechnical
	default:
		return models.CategorySoftSkills
	}
}
