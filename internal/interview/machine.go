package interview

import (
	"context"

	"github.com/hyperjump/kaiwa/internal/models"
	"github.com/hyperjump/kaiwa/internal/questionbank"
	"go.uber.org/zap"
)

// menu applies the Greeting → Menu → section table. "stop" is checked before any state rule in
// every state except Greeting and the terminal one.
func (s *Service) menu(ctx context.Context, sess *models.Session, text string) (outcome, error) {
	switch {
	case sess.State.Terminal():
		return outcome{response: endedText}, nil

	case sess.State != models.StateGreeting && isStop(text):
		sess.State = models.StateMenu
		sess.SectionQuestionIndex = 0
		sess.CurrentQuestion = nil
		return outcome{response: stopText}, nil

	case sess.State == models.StateGreeting:
		if !isReady(text) {
			return outcome{response: notReadyText}, nil
		}
		sess.State = models.StateMenu
		return outcome{response: menuText}, nil

	case sess.State == models.StateMenu:
		section, ok := parseSection(text)
		if !ok {
			return outcome{response: badChoiceText}, nil
		}
		sess.State = section
		sess.SectionQuestionIndex = 0
		q, err := s.serve(ctx, sess, s.chainFor(section), sectionCategory(section), 0, sess.Config.SectionLimit)
		if err != nil {
			return outcome{}, err
		}
		return outcome{response: q.Text, question: q}, nil

	case sess.State.IsSection():
		fb := s.answer(ctx, sess, text)
		reply := s.feedbackText(ctx, sess, text)
		sess.SectionQuestionIndex++
		if sess.SectionQuestionIndex >= sess.Config.SectionLimit {
			sess.State = models.StateMenu
			sess.SectionQuestionIndex = 0
			sess.CurrentQuestion = nil
			return outcome{response: reply + "\n\n" + sectionEndText + menuText, feedback: fb}, nil
		}
		q, err := s.serve(ctx, sess, s.chainFor(sess.State), sectionCategory(sess.State), sess.SectionQuestionIndex, sess.Config.SectionLimit)
		if err != nil {
			return outcome{}, err
		}
		return outcome{response: reply + "\n\n---\n\n" + q.Text, question: q, feedback: fb}, nil
	}

	s.logger.Warn("message in state without transition",
		zap.String("session_id", sess.ID),
		zap.String("state", string(sess.State)))
	return outcome{response: menuText}, nil
}

func (s *Service) chainFor(section models.State) *questionbank.Chain {
	if section == models.StateSelfIntro {
		return s.introChain
	}
	return s.sectionChain
}

// flat applies the Started → InProgress → Completed table. Questions rotate through the
// session's categories, one category per served question.
func (s *Service) flat(ctx context.Context, sess *models.Session, text string) (outcome, error) {
	switch sess.State {
	case models.StateStarted:
		q, err := s.serveRotating(ctx, sess)
		if err != nil {
			return outcome{}, err
		}
		sess.State = models.StateInProgress
		return outcome{response: firstQuestionPrefix + q.Text, question: q}, nil

	case models.StateInProgress:
		fb := s.answer(ctx, sess, text)
		if sess.CurrentQuestionIndex >= sess.Config.MaxQuestions-1 {
			sess.State = models.StateCompleted
			sess.CurrentQuestion = nil
			return outcome{response: completionText, feedback: fb, summary: s.summarize(sess)}, nil
		}
		sess.CurrentQuestionIndex++
		q, err := s.serveRotating(ctx, sess)
		if err != nil {
			return outcome{}, err
		}
		return outcome{response: nextQuestionPrefix + q.Text, question: q, feedback: fb}, nil

	case models.StateCompleted:
		return outcome{response: endedText}, nil
	}

	s.logger.Warn("message in state without transition",
		zap.String("session_id", sess.ID),
		zap.String("state", string(sess.State)))
	if sess.CurrentQuestion != nil {
		return outcome{response: sess.CurrentQuestion.Text}, nil
	}
	return outcome{response: endedText}, nil
}

func (s *Service) serveRotating(ctx context.Context, sess *models.Session) (*models.Question, error) {
	cats := sess.Config.Categories
	cat := cats[sess.CurrentCategoryIdx%len(cats)]
	q, err := s.serve(ctx, sess, s.flatChain, cat, sess.CurrentQuestionIndex, sess.Config.MaxQuestions)
	if err != nil {
		return nil, err
	}
	sess.CurrentCategoryIdx = (sess.CurrentCategoryIdx + 1) % len(cats)
	return q, nil
}
