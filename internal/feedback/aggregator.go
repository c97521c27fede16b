// Package feedback scores interview answers and aggregates per-session results.
package feedback

import (
	"context"
	"fmt"
	"time"

	"github.com/hyperjump/kaiwa/internal/models"
	"github.com/hyperjump/kaiwa/pkg/utils"
	"go.uber.org/zap"
)

// Store keeps each session's ordered feedback history. LoadFeedback returns an error wrapping
// models.ErrNotFound for sessions that have none.
type Store interface {
	AppendFeedback(ctx context.Context, sessionID, userID string, fb *models.QuestionFeedback) error
	LoadFeedback(ctx context.Context, sessionID string) (userID string, history []models.QuestionFeedback, err error)
}

// Options tunes an Aggregator.
type Options struct {
	Policy       Policy
	TopN         int
	JudgeTimeout time.Duration
}

// Aggregator scores answers through a Judge and summarizes session histories.
type Aggregator struct {
	judge  Judge
	store  Store
	opts   Options
	logger *zap.Logger
	now    func() time.Time
}

// NewAggregator creates an aggregator. A nil judge yields the default rubric for every answer.
func NewAggregator(judge Judge, store Store, opts Options, logger *zap.Logger) *Aggregator {
	if judge == nil {
		judge = NopJudge{}
	}
	if opts.Policy == "" {
		opts.Policy = PolicyStarWeighted
	}
	if opts.JudgeTimeout <= 0 {
		opts.JudgeTimeout = 30 * time.Second
	}
	return &Aggregator{
		judge:  judge,
		store:  store,
		opts:   opts,
		logger: utils.OrNop(logger),
		now:    time.Now,
	}
}

// Policy reports the configured scoring policy.
func (a *Aggregator) Policy() Policy { return a.opts.Policy }

// AnalyzeResponse scores response to q and appends the result to the session's history. A failed
// or timed-out judge degrades to DefaultRubric instead of failing.
func (a *Aggregator) AnalyzeResponse(ctx context.Context, sessionID, userID string, q *models.Question, response, jobContext string) (*models.QuestionFeedback, error) {
	fb := a.Score(ctx, sessionID, q, response, jobContext)
	if err := a.Record(ctx, sessionID, userID, fb); err != nil {
		return nil, err
	}
	return fb, nil
}

// Record appends fb to the session's history. The write is not cancelled with ctx.
func (a *Aggregator) Record(ctx context.Context, sessionID, userID string, fb *models.QuestionFeedback) error {
	if err := a.store.AppendFeedback(context.WithoutCancel(ctx), sessionID, userID, fb); err != nil {
		return fmt.Errorf("append feedback: %w", err)
	}
	return nil
}

// Score computes the feedback for one answer without recording it.
func (a *Aggregator) Score(ctx context.Context, sessionID string, q *models.Question, response, jobContext string) *models.QuestionFeedback {
	if q == nil {
		q = &models.Question{}
	}
	jctx, cancel := context.WithTimeout(ctx, a.opts.JudgeTimeout)
	rubric, err := a.judge.Score(jctx, q.Text, response, jobContext)
	cancel()
	degraded := false
	if err != nil || rubric == nil {
		a.logger.Warn("judge unavailable, using default rubric",
			zap.String("session_id", sessionID),
			zap.String("question_id", q.ID),
			zap.Error(err))
		rubric = DefaultRubric()
		degraded = true
	}
	rubric.Normalize()

	fb := &models.QuestionFeedback{
		QuestionID:             q.ID,
		Question:               q.Text,
		Category:               q.Category,
		Response:               response,
		ActiveListening:        rubric.ActiveListening.Score,
		ActiveListeningInsight: rubric.ActiveListening.Insight,
		STAR:                   rubric.STAR(),
		STARInsights:           rubric.Insights(),
		Strengths:              rubric.Strengths,
		GrowthAreas:            rubric.GrowthAreas,
		Delivery:               Delivery(response),
		JudgeDegraded:          degraded,
		CreatedAt:              a.now().UTC(),
	}
	if rubric.Overall != nil {
		fb.OverallScore = *rubric.Overall
	} else {
		fb.OverallScore = 100 * StarComposite(*fb)
	}
	return fb
}

// SessionSummary recomputes the summary from the stored history. totalQuestions is the number of
// questions served so far; it never drops below the number answered.
func (a *Aggregator) SessionSummary(ctx context.Context, sessionID string, totalQuestions int) (*models.SessionSummary, error) {
	userID, history, err := a.store.LoadFeedback(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return Summarize(sessionID, userID, history, a.opts.Policy, a.opts.TopN, totalQuestions), nil
}

// Summarize applies the aggregator's policy to an in-memory history.
func (a *Aggregator) Summarize(sessionID, userID string, history []models.QuestionFeedback, totalQuestions int) *models.SessionSummary {
	return Summarize(sessionID, userID, history, a.opts.Policy, a.opts.TopN, totalQuestions)
}
