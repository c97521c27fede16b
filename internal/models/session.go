package models

import "time"

// Style selects which state table drives a session.
type Style string

const (
	// StyleMenu is the Greeting → Menu → section loop.
	StyleMenu Style = "menu"
	// StyleFlat is the Started → InProgress → Completed fixed-length sequence.
	StyleFlat Style = "flat"
)

// Valid reports whether s is a known style.
func (s Style) Valid() bool { return s == StyleMenu || s == StyleFlat }

// State is the closed set of session states across both styles.
type State string

const (
	StateGreeting  State = "greeting"
	StateMenu      State = "menu"
	StateSelfIntro State = "self_intro"
	StateTechnical State = "technical"
	StateSoftSkill State = "soft_skill"
	StateComplete  State = "complete"

	StateStarted    State = "started"
	StateInProgress State = "in_progress"
	StateCompleted  State = "completed"
)

// IsSection reports whether s is one of the menu-style question sections.
func (s State) IsSection() bool {
	return s == StateSelfIntro || s == StateTechnical || s == StateSoftSkill
}

// Terminal reports whether no message can move the session out of s.
func (s State) Terminal() bool {
	return s == StateComplete || s == StateCompleted
}

// SessionConfig fixes how a session selects and scores questions.
type SessionConfig struct {
	Style        Style      `json:"style"`
	Categories   []Category `json:"categories"`
	Difficulty   Difficulty `json:"difficulty,omitempty"`
	MaxQuestions int        `json:"max_questions"`
	SectionLimit int        `json:"section_limit"`
	RAGID        string     `json:"rag_id,omitempty"`
	JobContext   string     `json:"job_context,omitempty"`
}

// Response is one recorded answer.
type Response struct {
	QuestionID string    `json:"question_id"`
	Text       string    `json:"text"`
	Timestamp  time.Time `json:"timestamp"`
}

// Turn is the single history entry appended by every transition.
type Turn struct {
	UserMessage string    `json:"user_message,omitempty"`
	Reply       string    `json:"reply"`
	From        State     `json:"from"`
	To          State     `json:"to"`
	QuestionID  string    `json:"question_id,omitempty"`
	At          time.Time `json:"at"`
}

// Session is the full per-session state. Mutated only by the state machine.
type Session struct {
	ID                   string             `json:"session_id"`
	UserID               string             `json:"user_id"`
	Config               SessionConfig      `json:"config"`
	State                State              `json:"state"`
	SectionQuestionIndex int                `json:"section_question_index"`
	CurrentQuestionIndex int                `json:"current_question_index"`
	CurrentCategoryIdx   int                `json:"current_category_index"`
	CurrentQuestion      *Question          `json:"current_question,omitempty"`
	AskedQuestionIDs     []string           `json:"asked_question_ids"`
	Responses            []Response         `json:"responses"`
	FeedbackHistory      []QuestionFeedback `json:"feedback_history"`
	History              []Turn             `json:"history"`
	CreatedAt            time.Time          `json:"created_at"`
	UpdatedAt            time.Time          `json:"updated_at"`
}

// HasAsked reports whether id was already served in this session.
func (s *Session) HasAsked(id string) bool {
	for _, a := range s.AskedQuestionIDs {
		if a == id {
			return true
		}
	}
	return false
}

// MarkAsked appends id to the asked set, keeping it duplicate-free.
func (s *Session) MarkAsked(id string) {
	if id == "" || s.HasAsked(id) {
		return
	}
	s.AskedQuestionIDs = append(s.AskedQuestionIDs, id)
}

// Clone returns a deep copy, so a transition can be applied and discarded without touching s.
func (s *Session) Clone() *Session {
	c := *s
	c.Config.Categories = append([]Category(nil), s.Config.Categories...)
	if s.CurrentQuestion != nil {
		q := *s.CurrentQuestion
		c.CurrentQuestion = &q
	}
	c.AskedQuestionIDs = append([]string(nil), s.AskedQuestionIDs...)
	c.Responses = append([]Response(nil), s.Responses...)
	c.FeedbackHistory = append([]QuestionFeedback(nil), s.FeedbackHistory...)
	c.History = append([]Turn(nil), s.History...)
	return &c
}
