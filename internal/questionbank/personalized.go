package questionbank

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hyperjump/kaiwa/internal/embedding"
	"github.com/hyperjump/kaiwa/internal/models"
	"github.com/hyperjump/kaiwa/internal/vector"
	"github.com/hyperjump/kaiwa/pkg/utils"
	"go.uber.org/zap"
)

// Registry persists personalized bank entries. GetRAG returns an error wrapping
// models.ErrNotFound for unknown ids.
type Registry interface {
	SaveRAG(ctx context.Context, rag *models.PersonalizedRAG) error
	GetRAG(ctx context.Context, ragID string) (*models.PersonalizedRAG, error)
	DeleteRAG(ctx context.Context, ragID string) error
	CountRAGs(ctx context.Context) (int, error)
}

// Defaults for personalized banks.
const (
	DefaultPersonalizedTTL  = 7 * 24 * time.Hour
	DefaultPersonalizedSize = 20
	maxPersonalizedSize     = 100
)

// PersonalizedOptions tunes a PersonalizedBank. Zero values take the defaults above.
type PersonalizedOptions struct {
	TTL         time.Duration
	DefaultSize int
	Domain      string
	Extractor   Extractor
}

// PersonalizedBank builds and serves per-user question banks. Each bank's questions live in the
// vector namespace named by its rag id; the registry holds ownership and expiry.
type PersonalizedBank struct {
	store     vector.Store
	embedder  embedding.Embedder
	registry  Registry
	extractor Extractor
	ttl       time.Duration
	size      int
	domain    string
	locks     *utils.KeyedMutex
	logger    *zap.Logger

	now  func() time.Time
	intn func(int) int
}

// NewPersonalizedBank creates a personalized bank manager.
func NewPersonalizedBank(store vector.Store, embedder embedding.Embedder, registry Registry, opts PersonalizedOptions, logger *zap.Logger) *PersonalizedBank {
	if opts.TTL <= 0 {
		opts.TTL = DefaultPersonalizedTTL
	}
	if opts.DefaultSize <= 0 {
		opts.DefaultSize = DefaultPersonalizedSize
	}
	if opts.Extractor == nil {
		opts.Extractor = RegexExtractor{}
	}
	return &PersonalizedBank{
		store:     store,
		embedder:  embedder,
		registry:  registry,
		extractor: opts.Extractor,
		ttl:       opts.TTL,
		size:      opts.DefaultSize,
		domain:    opts.Domain,
		locks:     utils.NewKeyedMutex(),
		logger:    utils.OrNop(logger),
		now:       time.Now,
	}
}

// Build generates a personalized question set from the request's match analysis, indexes it under
// a fresh rag id and registers it with an expiry of now + TTL.
func (p *PersonalizedBank) Build(ctx context.Context, req models.PersonalizedRAGRequest) (*models.PersonalizedRAG, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return nil, fmt.Errorf("%w: user_id is required", models.ErrInvalidArgument)
	}
	n := req.NumQuestions
	if n <= 0 {
		n = p.size
	}
	if n > maxPersonalizedSize {
		return nil, fmt.Errorf("%w: num_questions must be at most %d", models.ErrInvalidArgument, maxPersonalizedSize)
	}
	for _, c := range req.FocusCategories {
		if !c.Valid() {
			return nil, fmt.Errorf("%w: unknown category %q", models.ErrInvalidArgument, c)
		}
	}
	if req.Difficulty != "" && !req.Difficulty.Valid() {
		return nil, fmt.Errorf("%w: unknown difficulty %q", models.ErrInvalidArgument, req.Difficulty)
	}

	unlock := p.locks.Lock(req.UserID)
	defer unlock()

	start := p.now()
	analysis := req.Analysis
	resume := p.extractor.ExtractResume(analysis.ResumeText)
	if len(analysis.KeywordsMatched) == 0 {
		analysis.KeywordsMatched = MatchKeywords(resume, p.extractor.ExtractJob(analysis.JobDescription))
	}
	questions := GenerateQuestions(GenerateInput{
		Analysis:   analysis,
		Resume:     resume,
		Focus:      req.FocusCategories,
		Difficulty: req.Difficulty,
		Count:      n,
		Domain:     p.domain,
	})

	ragID, err := p.newRAGID(ctx, req.UserID, start)
	if err != nil {
		return nil, err
	}
	records, err := embedQuestions(ctx, p.embedder, questions)
	if err != nil {
		return nil, err
	}

	commit := context.WithoutCancel(ctx)
	if err := p.store.Upsert(commit, ragID, records); err != nil {
		return nil, fmt.Errorf("upsert %s: %w", ragID, err)
	}
	rag := &models.PersonalizedRAG{
		RAGID:             ragID,
		UserID:            req.UserID,
		Status:            "ready",
		QuestionCount:     len(questions),
		CategoriesCovered: categoriesCovered(questions),
		FocusAreas:        focusAreas(analysis),
		CreatedAt:         start.UTC(),
		ExpiresAt:         start.Add(p.ttl).UTC(),
	}
	if err := p.registry.SaveRAG(commit, rag); err != nil {
		if derr := p.store.Delete(commit, ragID); derr != nil {
			p.logger.Warn("failed to drop orphaned namespace", zap.String("rag_id", ragID), zap.Error(derr))
		}
		return nil, fmt.Errorf("register %s: %w", ragID, err)
	}

	p.logger.Info("personalized bank built",
		zap.String("rag_id", ragID),
		zap.String("user_id", req.UserID),
		zap.Int("questions", len(questions)),
		zap.Duration("elapsed", p.now().Sub(start)))
	return rag, nil
}

// newRAGID returns "rag_{user}_{8 hex of md5(user_unixSeconds)}", suffixed when that id is taken.
func (p *PersonalizedBank) newRAGID(ctx context.Context, userID string, at time.Time) (string, error) {
	sum := md5.Sum([]byte(fmt.Sprintf("%s_%d", userID, at.Unix())))
	base := fmt.Sprintf("rag_%s_%s", userID, hex.EncodeToString(sum[:])[:8])
	id := base
	for i := 2; ; i++ {
		_, err := p.registry.GetRAG(ctx, id)
		if errors.Is(err, models.ErrNotFound) {
			return id, nil
		}
		if err != nil {
			return "", err
		}
		id = fmt.Sprintf("%s_%d", base, i)
	}
}

// Info returns the registry entry of ragID. Unknown and expired banks are NotFound.
func (p *PersonalizedBank) Info(ctx context.Context, ragID string) (*models.PersonalizedRAG, error) {
	rag, err := p.registry.GetRAG(ctx, ragID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.NewNotFound("personalized rag", ragID)
		}
		return nil, err
	}
	if rag.Expired(p.now()) {
		p.logger.Debug("personalized bank expired", zap.String("rag_id", ragID), zap.Time("expires_at", rag.ExpiresAt))
		return nil, models.NewNotFound("personalized rag", ragID)
	}
	return rag, nil
}

// GetRandom picks uniformly among the bank's questions of cat (any category when empty) that match
// difficulty and are not in exclude.
func (p *PersonalizedBank) GetRandom(ctx context.Context, ragID string, cat models.Category, difficulty models.Difficulty, exclude []string) (*models.Question, error) {
	if _, err := p.Info(ctx, ragID); err != nil {
		return nil, err
	}
	q, ok, err := pickRandom(ctx, p.store, []string{ragID}, questionFilter(cat, difficulty), exclude, p.intn)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, models.NewNotFound("question", ragID)
	}
	return q, nil
}

// Query ranks the bank's questions by semantic similarity to text.
func (p *PersonalizedBank) Query(ctx context.Context, ragID, text string, k int) ([]*models.Question, error) {
	if _, err := p.Info(ctx, ragID); err != nil {
		return nil, err
	}
	if k <= 0 {
		k = 5
	}
	return querySemantic(ctx, p.store, p.embedder, ragID, text, k, nil)
}

// Stats tabulates the bank's questions.
func (p *PersonalizedBank) Stats(ctx context.Context, ragID string) (*Stats, error) {
	rag, err := p.Info(ctx, ragID)
	if err != nil {
		return nil, err
	}
	records, err := p.store.Get(ctx, ragID, nil)
	if err != nil {
		return nil, err
	}
	s := newStats()
	s.add(records)
	s.LastUpdated = rag.CreatedAt
	return s, nil
}

// Delete removes the bank's namespace and registry entry. Unknown ids are NotFound; expired ones
// are still removed.
func (p *PersonalizedBank) Delete(ctx context.Context, ragID string) error {
	if _, err := p.registry.GetRAG(ctx, ragID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.NewNotFound("personalized rag", ragID)
		}
		return err
	}
	commit := context.WithoutCancel(ctx)
	if err := p.store.Delete(commit, ragID); err != nil {
		return fmt.Errorf("delete %s: %w", ragID, err)
	}
	if err := p.registry.DeleteRAG(commit, ragID); err != nil {
		return fmt.Errorf("unregister %s: %w", ragID, err)
	}
	p.logger.Info("personalized bank deleted", zap.String("rag_id", ragID))
	return nil
}

// Count is the number of registered banks, expired ones included.
func (p *PersonalizedBank) Count(ctx context.Context) (int, error) {
	return p.registry.CountRAGs(ctx)
}
