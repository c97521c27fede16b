package questionbank

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/hyperjump/kaiwa/internal/models"
	"github.com/hyperjump/kaiwa/pkg/utils"
	"go.uber.org/zap"
)

// Request describes the next question a session needs.
type Request struct {
	SessionID  string
	UserID     string
	RAGID      string
	Category   models.Category
	Difficulty models.Difficulty
	// Exclude holds every id already served in the session.
	Exclude []string
	// Index is the position of the question within its section.
	Index int
	// Total is the number of questions the section will ask.
	Total int
	// ContextNamespace names the user's retrieval namespace, if any.
	ContextNamespace string
}

// Provider yields a question or an error. A miss is reported as an error wrapping
// models.ErrNotFound.
type Provider interface {
	Name() string
	Next(ctx context.Context, req Request) (*models.Question, error)
}

// Chain tries providers in order and returns the first question produced.
type Chain struct {
	providers []Provider
	logger    *zap.Logger
}

// NewChain creates a chain over providers.
func NewChain(logger *zap.Logger, providers ...Provider) *Chain {
	return &Chain{providers: providers, logger: utils.OrNop(logger)}
}

// Next returns the first non-nil question. Provider failures are logged and skipped.
func (c *Chain) Next(ctx context.Context, req Request) (*models.Question, string, error) {
	for _, p := range c.providers {
		q, err := p.Next(ctx, req)
		switch {
		case err == nil && q != nil:
			return q, p.Name(), nil
		case err == nil || errors.Is(err, models.ErrNotFound):
			c.logger.Debug("question provider missed",
				zap.String("provider", p.Name()),
				zap.String("session_id", req.SessionID),
				zap.String("category", string(req.Category)))
		case ctx.Err() != nil:
			return nil, "", ctx.Err()
		default:
			c.logger.Warn("question provider failed",
				zap.String("provider", p.Name()),
				zap.String("session_id", req.SessionID),
				zap.Error(err))
		}
	}
	return nil, "", models.NewNotFound("question", string(req.Category))
}

// PersonalizedProvider serves from the session's personalized bank.
type PersonalizedProvider struct {
	Bank *PersonalizedBank
}

func (PersonalizedProvider) Name() string { return "personalized" }

func (p PersonalizedProvider) Next(ctx context.Context, req Request) (*models.Question, error) {
	if req.RAGID == "" || p.Bank == nil {
		return nil, models.ErrNotFound
	}
	return p.Bank.GetRandom(ctx, req.RAGID, req.Category, req.Difficulty, req.Exclude)
}

// GeneralProvider serves from the curated general bank.
type GeneralProvider struct {
	Bank *GeneralBank
}

func (GeneralProvider) Name() string { return "general" }

func (p GeneralProvider) Next(ctx context.Context, req Request) (*models.Question, error) {
	return p.Bank.GetRandom(ctx, req.Category, req.Difficulty, req.Exclude)
}

// StaticProvider serves a fixed question list by index.
type StaticProvider struct {
	Label     string
	Category  models.Category
	Questions []string
}

func (p StaticProvider) Name() string { return p.Label }

func (p StaticProvider) Next(_ context.Context, req Request) (*models.Question, error) {
	if req.Index < 0 || req.Index >= len(p.Questions) {
		return nil, models.ErrNotFound
	}
	id := fmt.Sprintf("%s_%d", p.Label, req.Index)
	for _, ex := range req.Exclude {
		if ex == id {
			return nil, models.ErrNotFound
		}
	}
	return &models.Question{
		ID:         id,
		Text:       p.Questions[req.Index],
		Category:   p.Category,
		Difficulty: models.DifficultyEasy,
		Tags:       []string{"introduction"},
	}, nil
}

// ContextProvider retrieves résumé/job context for question generation.
type ContextProvider interface {
	TechnicalContext(ctx context.Context, namespace string) (string, error)
	SoftSkillsContext(ctx context.Context, namespace string) (string, error)
}

// QuestionGenerator phrases one new question grounded in a context summary.
type QuestionGenerator interface {
	GenerateQuestion(ctx context.Context, category models.Category, contextSummary string, number, total int) (string, error)
}

// GeneratedProvider asks a generator for a question grounded in the user's retrieved context.
// It misses when the user has no context yet.
type GeneratedProvider struct {
	Generator QuestionGenerator
	Context   ContextProvider
}

func (GeneratedProvider) Name() string { return "generated" }

func (p GeneratedProvider) Next(ctx context.Context, req Request) (*models.Question, error) {
	if p.Generator == nil || p.Context == nil || req.ContextNamespace == "" {
		return nil, models.ErrNotFound
	}
	var summary string
	var err error
	if req.Category == models.CategoryTechnical {
		summary, err = p.Context.TechnicalContext(ctx, req.ContextNamespace)
	} else {
		summary, err = p.Context.SoftSkillsContext(ctx, req.ContextNamespace)
	}
	if err != nil {
		return nil, err
	}
	if summary == "" {
		return nil, models.ErrNotFound
	}
	text, err := p.Generator.GenerateQuestion(ctx, req.Category, summary, req.Index+1, req.Total)
	if err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, models.ErrNotFound
	}
	sum := md5.Sum([]byte(text))
	id := fmt.Sprintf("generated_%s_%s", req.Category, hex.EncodeToString(sum[:])[:8])
	if slices.Contains(req.Exclude, id) {
		return nil, models.ErrNotFound
	}
	return &models.Question{
		ID:          id,
		Text:        text,
		Category:    req.Category,
		Subcategory: "generated",
		Difficulty:  orMedium(req.Difficulty),
		Tags:        []string{"generated"},
	}, nil
}

// FallbackQuestion is served when every other provider misses.
const FallbackQuestion = "Tell me about a challenging project you've worked on and how you handled it."

// FallbackProvider always yields the generic question. Its id is numbered by how many questions the
// session has already been served, so it never repeats an id.
type FallbackProvider struct{}

func (FallbackProvider) Name() string { return "fallback" }

func (FallbackProvider) Next(_ context.Context, req Request) (*models.Question, error) {
	return &models.Question{
		ID:         fmt.Sprintf("fallback_%d", len(req.Exclude)),
		Text:       FallbackQuestion,
		Category:   req.Category,
		Difficulty: orMedium(req.Difficulty),
		Tags:       []string{"general", "behavioral"},
	}, nil
}

func orMedium(d models.Difficulty) models.Difficulty {
	if d == "" {
		return models.DifficultyMedium
	}
	return d
}
