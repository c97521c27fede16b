// Package interview drives mock-interview sessions through the menu and flat state tables.
package interview

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hyperjump/kaiwa/internal/events"
	"github.com/hyperjump/kaiwa/internal/feedback"
	"github.com/hyperjump/kaiwa/internal/models"
	"github.com/hyperjump/kaiwa/internal/questionbank"
	"github.com/hyperjump/kaiwa/internal/retrieval"
	"github.com/hyperjump/kaiwa/internal/storage"
	"github.com/hyperjump/kaiwa/pkg/utils"
	"go.uber.org/zap"
)

// FeedbackTexter phrases a short conversational reply to an answer.
type FeedbackTexter interface {
	GenerateFeedbackText(ctx context.Context, question, response string) (string, error)
}

// Options holds session defaults.
type Options struct {
	Style        models.Style
	SectionLimit int
	MaxQuestions int
	SessionTTL   time.Duration
	Categories   []models.Category
	// TextTimeout bounds each feedback-text call.
	TextTimeout time.Duration
}

// Deps are the collaborators a Service drives. Generator, Texter, Context and Events are
// optional.
type Deps struct {
	Store      storage.SessionStore
	Banks      *questionbank.Manager
	Context    questionbank.ContextProvider
	Generator  questionbank.QuestionGenerator
	Texter     FeedbackTexter
	Aggregator *feedback.Aggregator
	Events     events.Publisher
	Logger     *zap.Logger
}

// StartRequest opens a session. Zero fields take the service defaults.
type StartRequest struct {
	UserID       string                `json:"user_id"`
	Style        models.Style          `json:"style,omitempty"`
	Categories   []models.Category     `json:"categories,omitempty"`
	Difficulty   models.Difficulty     `json:"difficulty,omitempty"`
	MaxQuestions int                   `json:"max_questions,omitempty"`
	SectionLimit int                   `json:"section_limit,omitempty"`
	RAGID        string                `json:"rag_id,omitempty"`
	JobContext   string                `json:"job_context,omitempty"`
	Analysis     *models.MatchAnalysis `json:"matchwise_data,omitempty"`
}

// Reply is the result of one session operation.
type Reply struct {
	SessionID            string                   `json:"session_id"`
	Response             string                   `json:"response"`
	State                models.State             `json:"state"`
	SectionQuestionIndex int                      `json:"section_question_index"`
	QuestionIndex        int                      `json:"current_question_index"`
	Question             *models.Question         `json:"question,omitempty"`
	Feedback             *models.QuestionFeedback `json:"feedback,omitempty"`
	Summary              *models.SessionSummary   `json:"summary,omitempty"`
	SessionComplete      bool                     `json:"session_complete"`
	NextAction           string                   `json:"next_action"`
}

// outcome is what a transition produced, before it is committed.
type outcome struct {
	response string
	question *models.Question
	feedback *models.QuestionFeedback
	summary  *models.SessionSummary
}

// Service owns session state. Messages for one session are applied one at a time; different
// sessions proceed in parallel.
type Service struct {
	store      storage.SessionStore
	banks      *questionbank.Manager
	texter     FeedbackTexter
	aggregator *feedback.Aggregator
	events     events.Publisher
	logger     *zap.Logger
	opts       Options

	flatChain    *questionbank.Chain
	introChain   *questionbank.Chain
	sectionChain *questionbank.Chain

	locks *utils.KeyedMutex
	now   func() time.Time
	newID func() string
}

// NewService wires a session service.
func NewService(deps Deps, opts Options) *Service {
	logger := utils.OrNop(deps.Logger)
	if !opts.Style.Valid() {
		opts.Style = models.StyleMenu
	}
	if opts.SectionLimit <= 0 {
		opts.SectionLimit = 5
	}
	if opts.MaxQuestions <= 0 {
		opts.MaxQuestions = 10
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 24 * time.Hour
	}
	if len(opts.Categories) == 0 {
		opts.Categories = append([]models.Category(nil), models.AllCategories...)
	}
	if opts.TextTimeout <= 0 {
		opts.TextTimeout = 30 * time.Second
	}
	if deps.Events == nil {
		deps.Events = events.Nop{}
	}

	personalized := questionbank.PersonalizedProvider{Bank: deps.Banks.Personalized}
	general := questionbank.GeneralProvider{Bank: deps.Banks.General}
	fallback := questionbank.FallbackProvider{}

	return &Service{
		store:      deps.Store,
		banks:      deps.Banks,
		texter:     deps.Texter,
		aggregator: deps.Aggregator,
		events:     deps.Events,
		logger:     logger,
		opts:       opts,
		flatChain:  questionbank.NewChain(logger, personalized, general, fallback),
		introChain: questionbank.NewChain(logger,
			questionbank.StaticProvider{Label: "self_intro", Category: models.CategorySelfIntroduction, Questions: SelfIntroQuestions},
			general, fallback),
		sectionChain: questionbank.NewChain(logger,
			questionbank.GeneratedProvider{Generator: deps.Generator, Context: deps.Context},
			personalized, general, fallback),
		locks: utils.NewKeyedMutex(),
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// Start creates a session. When the request carries a match analysis and names no rag id, a
// personalized bank is built for it first; a failed build leaves the session on the general bank.
func (s *Service) Start(ctx context.Context, req StartRequest) (*models.Session, *Reply, error) {
	cfg, err := s.sessionConfig(req)
	if err != nil {
		return nil, nil, err
	}

	if req.Analysis != nil && cfg.RAGID == "" && s.banks.Personalized != nil {
		rag, err := s.banks.Personalized.Build(ctx, models.PersonalizedRAGRequest{
			UserID:          req.UserID,
			Analysis:        *req.Analysis,
			FocusCategories: cfg.Categories,
			Difficulty:      cfg.Difficulty,
			NumQuestions:    cfg.MaxQuestions,
		})
		if err != nil {
			s.logger.Warn("personalized bank build failed, using general bank",
				zap.String("user_id", req.UserID),
				zap.Error(err))
		} else {
			cfg.RAGID = rag.RAGID
			s.publish(ctx, events.Event{Type: events.RAGBuilt, UserID: rag.UserID, RAGID: rag.RAGID})
		}
	}

	now := s.now().UTC()
	sess := &models.Session{
		ID:               s.newID(),
		UserID:           req.UserID,
		Config:           cfg,
		State:            models.StateStarted,
		AskedQuestionIDs: []string{},
		Responses:        []models.Response{},
		FeedbackHistory:  []models.QuestionFeedback{},
		History:          []models.Turn{},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	var greeting string
	if cfg.Style == models.StyleMenu {
		sess.State = models.StateGreeting
		greeting = greetingText
		sess.History = append(sess.History, models.Turn{Reply: greeting, To: models.StateGreeting, At: now})
	}

	if err := s.store.SaveSession(context.WithoutCancel(ctx), sess, s.opts.SessionTTL); err != nil {
		return nil, nil, fmt.Errorf("save session: %w", err)
	}
	s.logger.Info("session started",
		zap.String("session_id", sess.ID),
		zap.String("user_id", sess.UserID),
		zap.String("style", string(cfg.Style)),
		zap.String("rag_id", cfg.RAGID))
	s.publish(ctx, events.Event{Type: events.SessionStarted, SessionID: sess.ID, UserID: sess.UserID,
		RAGID: cfg.RAGID, State: string(sess.State)})

	return sess, s.reply(sess, outcome{response: greeting}), nil
}

func (s *Service) sessionConfig(req StartRequest) (models.SessionConfig, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return models.SessionConfig{}, fmt.Errorf("%w: user_id is required", models.ErrInvalidArgument)
	}
	cfg := models.SessionConfig{
		Style:        req.Style,
		Categories:   req.Categories,
		Difficulty:   req.Difficulty,
		MaxQuestions: req.MaxQuestions,
		SectionLimit: req.SectionLimit,
		RAGID:        req.RAGID,
		JobContext:   req.JobContext,
	}
	if cfg.Style == "" {
		cfg.Style = s.opts.Style
	}
	if !cfg.Style.Valid() {
		return cfg, fmt.Errorf("%w: unknown style %q", models.ErrInvalidArgument, cfg.Style)
	}
	if len(cfg.Categories) == 0 {
		cfg.Categories = append([]models.Category(nil), s.opts.Categories...)
	}
	for _, c := range cfg.Categories {
		if !c.Valid() {
			return cfg, fmt.Errorf("%w: unknown category %q", models.ErrInvalidArgument, c)
		}
	}
	if cfg.Difficulty != "" && !cfg.Difficulty.Valid() {
		return cfg, fmt.Errorf("%w: unknown difficulty %q", models.ErrInvalidArgument, cfg.Difficulty)
	}
	if cfg.MaxQuestions <= 0 {
		cfg.MaxQuestions = s.opts.MaxQuestions
	}
	if cfg.SectionLimit <= 0 {
		cfg.SectionLimit = s.opts.SectionLimit
	}
	return cfg, nil
}

// Message applies one user message. The session is loaded, the transition is applied to a copy,
// and the copy is saved; a failed transition leaves the stored session untouched.
func (s *Service) Message(ctx context.Context, sessionID, text string) (*Reply, error) {
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	cur, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	next := cur.Clone()

	var out outcome
	if next.Config.Style == models.StyleFlat {
		out, err = s.flat(ctx, next, text)
	} else {
		out, err = s.menu(ctx, next, text)
	}
	if err != nil {
		return nil, err
	}

	if err := s.commit(ctx, cur.State, next, text, out); err != nil {
		return nil, err
	}

	if out.feedback != nil {
		s.publish(ctx, events.Event{Type: events.SessionAnswered, SessionID: next.ID, UserID: next.UserID,
			State: string(next.State), QuestionID: out.feedback.QuestionID, Score: out.feedback.OverallScore})
	}
	if out.summary != nil && !cur.State.Terminal() {
		s.publish(ctx, events.Event{Type: events.SessionCompleted, SessionID: next.ID, UserID: next.UserID,
			State: string(next.State), Score: out.summary.OverallScore})
	}
	return s.reply(next, out), nil
}

// commit appends the turn, saves the session and records any new feedback. None of it is
// cancelled with ctx.
func (s *Service) commit(ctx context.Context, from models.State, sess *models.Session, text string, out outcome) error {
	ctx = context.WithoutCancel(ctx)
	now := s.now().UTC()
	turn := models.Turn{UserMessage: text, Reply: out.response, From: from, To: sess.State, At: now}
	if out.question != nil {
		turn.QuestionID = out.question.ID
	}
	sess.History = append(sess.History, turn)
	sess.UpdatedAt = now

	if err := s.store.SaveSession(ctx, sess, s.opts.SessionTTL); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	if out.feedback != nil {
		if err := s.aggregator.Record(ctx, sess.ID, sess.UserID, out.feedback); err != nil {
			s.logger.Error("record feedback failed",
				zap.String("session_id", sess.ID),
				zap.Error(err))
		}
	}
	return nil
}

// Get returns the stored session.
func (s *Service) Get(ctx context.Context, sessionID string) (*models.Session, error) {
	return s.store.GetSession(ctx, sessionID)
}

// End moves the session to its terminal state and returns the final summary. Ending an ended
// session only repeats the notice.
func (s *Service) End(ctx context.Context, sessionID string) (*Reply, error) {
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	cur, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	next := cur.Clone()
	summary := s.summarize(next)
	if cur.State.Terminal() {
		return s.reply(next, outcome{response: endedText, summary: summary}), nil
	}

	next.State = models.StateComplete
	if next.Config.Style == models.StyleFlat {
		next.State = models.StateCompleted
	}
	next.CurrentQuestion = nil
	out := outcome{response: completionText, summary: summary}
	if err := s.commit(ctx, cur.State, next, "", out); err != nil {
		return nil, err
	}
	s.logger.Info("session ended",
		zap.String("session_id", next.ID),
		zap.Int("answered", len(next.FeedbackHistory)))
	s.publish(ctx, events.Event{Type: events.SessionCompleted, SessionID: next.ID, UserID: next.UserID,
		State: string(next.State), Score: summary.OverallScore})
	return s.reply(next, out), nil
}

// Feedback summarizes a session. Once the session itself has expired the summary is rebuilt
// from the feedback store.
func (s *Service) Feedback(ctx context.Context, sessionID string) (*models.SessionSummary, error) {
	sess, err := s.store.GetSession(ctx, sessionID)
	if err == nil {
		return s.summarize(sess), nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}
	return s.aggregator.SessionSummary(ctx, sessionID, 0)
}

func (s *Service) summarize(sess *models.Session) *models.SessionSummary {
	return s.aggregator.Summarize(sess.ID, sess.UserID, sess.FeedbackHistory, len(sess.AskedQuestionIDs))
}

// serve asks chain for the next question and records it as asked and current.
func (s *Service) serve(ctx context.Context, sess *models.Session, chain *questionbank.Chain, cat models.Category, index, total int) (*models.Question, error) {
	q, provider, err := chain.Next(ctx, questionbank.Request{
		SessionID:        sess.ID,
		UserID:           sess.UserID,
		RAGID:            sess.Config.RAGID,
		Category:         cat,
		Difficulty:       sess.Config.Difficulty,
		Exclude:          sess.AskedQuestionIDs,
		Index:            index,
		Total:            total,
		ContextNamespace: retrieval.NamespaceForUser(sess.UserID),
	})
	if err != nil {
		return nil, err
	}
	s.logger.Debug("question served",
		zap.String("session_id", sess.ID),
		zap.String("question_id", q.ID),
		zap.String("provider", provider))
	sess.MarkAsked(q.ID)
	sess.CurrentQuestion = q
	return q, nil
}

// answer records the response to the current question and scores it.
func (s *Service) answer(ctx context.Context, sess *models.Session, text string) *models.QuestionFeedback {
	q := sess.CurrentQuestion
	if q == nil {
		q = &models.Question{}
	}
	sess.Responses = append(sess.Responses, models.Response{QuestionID: q.ID, Text: text, Timestamp: s.now().UTC()})
	fb := s.aggregator.Score(ctx, sess.ID, q, text, sess.Config.JobContext)
	sess.FeedbackHistory = append(sess.FeedbackHistory, *fb)
	return fb
}

// feedbackText asks the texter for a short reply, falling back to a fixed line.
func (s *Service) feedbackText(ctx context.Context, sess *models.Session, answer string) string {
	if s.texter == nil {
		return fallbackFeedbackText
	}
	var question string
	if sess.CurrentQuestion != nil {
		question = sess.CurrentQuestion.Text
	}
	tctx, cancel := context.WithTimeout(ctx, s.opts.TextTimeout)
	defer cancel()
	text, err := s.texter.GenerateFeedbackText(tctx, question, answer)
	if err != nil || strings.TrimSpace(text) == "" {
		s.logger.Warn("feedback text unavailable, using fallback",
			zap.String("session_id", sess.ID),
			zap.Error(err))
		return fallbackFeedbackText
	}
	return text
}

func (s *Service) reply(sess *models.Session, out outcome) *Reply {
	r := &Reply{
		SessionID:            sess.ID,
		Response:             out.response,
		State:                sess.State,
		SectionQuestionIndex: sess.SectionQuestionIndex,
		QuestionIndex:        sess.CurrentQuestionIndex,
		Question:             out.question,
		Feedback:             out.feedback,
		Summary:              out.summary,
		SessionComplete:      sess.State.Terminal(),
		NextAction:           "continue",
	}
	if r.SessionComplete {
		r.NextAction = "complete"
	}
	return r
}

func (s *Service) publish(ctx context.Context, e events.Event) {
	if e.At.IsZero() {
		e.At = s.now().UTC()
	}
	if err := s.events.Publish(ctx, e); err != nil {
		s.logger.Warn("publish event failed",
			zap.String("type", e.Type),
			zap.Error(err))
	}
}
