package main

import (
	"context"
	"fmt"

	"github.com/hyperjump/kaiwa/internal/chunker"
	"github.com/hyperjump/kaiwa/internal/config"
	"github.com/hyperjump/kaiwa/internal/embedding"
	"github.com/hyperjump/kaiwa/internal/events"
	"github.com/hyperjump/kaiwa/internal/feedback"
	"github.com/hyperjump/kaiwa/internal/interview"
	"github.com/hyperjump/kaiwa/internal/keyword"
	"github.com/hyperjump/kaiwa/internal/llm"
	"github.com/hyperjump/kaiwa/internal/models"
	"github.com/hyperjump/kaiwa/internal/questionbank"
	"github.com/hyperjump/kaiwa/internal/retrieval"
	"github.com/hyperjump/kaiwa/internal/storage"
	"github.com/hyperjump/kaiwa/internal/vector"
	"go.uber.org/zap"
)

// Components holds everything a command may need, built from one config.
type Components struct {
	Store      storage.Store
	Vectors    vector.Store
	Embedder   embedding.Embedder
	Keywords   *keyword.QuestionIndex
	Retrieval  *retrieval.Service
	Banks      *questionbank.Manager
	LLM        *llm.Chain
	Aggregator *feedback.Aggregator
	Interviews *interview.Service
	Events     events.Publisher
}

// Close releases every component in reverse construction order.
func (c *Components) Close() {
	if c.Events != nil {
		_ = c.Events.Close()
	}
	if c.LLM != nil {
		_ = c.LLM.Close()
	}
	if c.Keywords != nil {
		_ = c.Keywords.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Vectors != nil {
		_ = c.Vectors.Close()
	}
	if c.Store != nil {
		_ = c.Store.Close()
	}
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (_ *Components, err error) {
	c := &Components{}
	defer func() {
		if err != nil {
			c.Close()
		}
	}()

	c.Store, err = storage.New(ctx, cfg.Storage, storage.Options{FeedbackTTL: cfg.Interview.SessionTTL}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	c.Embedder, err = embedding.New(cfg.Embedding, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	c.Vectors, err = vector.NewStore(cfg.Vector, c.Embedder.Dimensions(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vector store: %w", err)
	}
	logger.Info("vector store initialized",
		zap.String("backend", cfg.Vector.Backend),
		zap.Int("dimensions", c.Embedder.Dimensions()))

	c.Keywords, err = keyword.NewQuestionIndex()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize keyword index: %w", err)
	}

	ch := chunker.NewChunker(cfg.Retrieval.ChunkSize, cfg.Retrieval.ChunkOverlap).
		WithSections(cfg.Retrieval.SectionMaxWords, cfg.Retrieval.SectionChunkSize)
	c.Retrieval = retrieval.NewService(c.Vectors, c.Embedder, ch, retrieval.Options{
		DefaultK: cfg.Retrieval.DefaultK,
		ContextK: cfg.Retrieval.ContextK,
	}, logger)

	general := questionbank.NewGeneralBank(c.Vectors, c.Embedder, c.Keywords, cfg.QuestionBank.CuratedPath, logger)
	if err := general.EnsureGeneral(ctx); err != nil {
		return nil, fmt.Errorf("failed to load general question bank: %w", err)
	}
	personalized := questionbank.NewPersonalizedBank(c.Vectors, c.Embedder, c.Store, questionbank.PersonalizedOptions{
		TTL:         cfg.QuestionBank.PersonalizedTTL,
		DefaultSize: cfg.QuestionBank.DefaultPersonalizedSize,
		Domain:      cfg.QuestionBank.Domain,
	}, logger)
	c.Banks = questionbank.NewManager(general, personalized)

	c.LLM, err = llm.New(cfg.LLM, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize llm providers: %w", err)
	}

	policy, err := feedback.ParsePolicy(cfg.Feedback.ScoringPolicy)
	if err != nil {
		return nil, err
	}
	c.Aggregator = feedback.NewAggregator(feedbackJudge(cfg.Feedback.Judge, c.LLM, logger), c.Store, feedback.Options{
		Policy:       policy,
		TopN:         cfg.Feedback.TopN,
		JudgeTimeout: cfg.Feedback.JudgeTimeout,
	}, logger)

	c.Events = events.Nop{}
	if cfg.Events.NATSURL != "" {
		pub, err := events.Connect(cfg.Events.NATSURL, cfg.Events.SubjectPrefix)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to nats: %w", err)
		}
		c.Events = pub
		logger.Info("publishing events", zap.String("nats_url", cfg.Events.NATSURL))
	}

	categories, err := parseCategories(cfg.Interview.Categories)
	if err != nil {
		return nil, err
	}
	deps := interview.Deps{
		Store:      c.Store,
		Banks:      c.Banks,
		Context:    c.Retrieval,
		Aggregator: c.Aggregator,
		Events:     c.Events,
		Logger:     logger,
	}
	// Generator and Texter stay nil interfaces unless a provider is configured.
	if c.LLM != nil {
		gen := llm.NewGenerator(c.LLM, cfg.LLM.MaxTokens, cfg.LLM.Temperature)
		deps.Generator = gen
		deps.Texter = gen
	}
	c.Interviews = interview.NewService(deps, interview.Options{
		Style:        models.Style(cfg.Interview.Style),
		SectionLimit: cfg.Interview.SectionLimit,
		MaxQuestions: cfg.Interview.MaxQuestions,
		SessionTTL:   cfg.Interview.SessionTTL,
		Categories:   categories,
		TextTimeout:  cfg.LLM.Timeout,
	})
	return c, nil
}

// feedbackJudge selects the answer judge. "llm" without a configured provider degrades to the
// heuristic judge; "none" yields nil, which scores every answer with the default rubric.
func feedbackJudge(kind string, chain *llm.Chain, logger *zap.Logger) feedback.Judge {
	switch kind {
	case "none":
		return nil
	case "heuristic":
		return feedback.HeuristicJudge{}
	default:
		if chain == nil {
			logger.Warn("no llm providers configured, using heuristic judge")
			return feedback.HeuristicJudge{}
		}
		return llm.NewJudge(chain)
	}
}

func parseCategories(names []string) ([]models.Category, error) {
	out := make([]models.Category, 0, len(names))
	for _, n := range names {
		c, err := models.ParseCategory(n)
		if err != nil {
			return nil, fmt.Errorf("interview.categories: %w", err)
		}
		out = append(out, c)
	}
	return out, nil
}
