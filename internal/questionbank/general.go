// Package questionbank maintains the curated general question bank and per-user personalized
// banks, and chains question providers into a fallback sequence for interview sessions.
package questionbank

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hyperjump/kaiwa/internal/embedding"
	"github.com/hyperjump/kaiwa/internal/keyword"
	"github.com/hyperjump/kaiwa/internal/models"
	"github.com/hyperjump/kaiwa/internal/vector"
	"github.com/hyperjump/kaiwa/pkg/utils"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// namespacePrefix prefixes every general category namespace.
const namespacePrefix = "prerag_"

// Namespace returns the vector namespace of a general category collection.
func Namespace(cat models.Category) string {
	return namespacePrefix + string(cat)
}

// Stats tabulates question counts.
type Stats struct {
	Total             int                       `json:"total_questions"`
	ByCategory        map[models.Category]int   `json:"by_category"`
	ByDifficulty      map[models.Difficulty]int `json:"by_difficulty"`
	PersonalizedBanks int                       `json:"personalized_banks"`
	LastUpdated       time.Time                 `json:"last_updated"`
}

func newStats() *Stats {
	s := &Stats{
		ByCategory:   make(map[models.Category]int),
		ByDifficulty: make(map[models.Difficulty]int, len(models.AllDifficulties)),
	}
	for _, d := range models.AllDifficulties {
		s.ByDifficulty[d] = 0
	}
	return s
}

func (s *Stats) add(records []models.VectorRecord) {
	for _, r := range records {
		s.Total++
		s.ByCategory[models.Category(r.Metadata[models.MetaCategory])]++
		s.ByDifficulty[models.Difficulty(r.Metadata[models.MetaDifficulty])]++
	}
}

// GeneralBank holds one collection per category built from the curated set.
type GeneralBank struct {
	store       vector.Store
	embedder    embedding.Embedder
	index       *keyword.QuestionIndex
	curatedPath string
	logger      *zap.Logger

	// buildMu serializes EnsureGeneral and Rebuild.
	buildMu sync.Mutex

	mu      sync.RWMutex
	curated CuratedSet
	updated time.Time

	intn func(int) int
}

// NewGeneralBank creates a general bank. index may be nil, in which case keyword search is
// unavailable.
func NewGeneralBank(store vector.Store, embedder embedding.Embedder, index *keyword.QuestionIndex, curatedPath string, logger *zap.Logger) *GeneralBank {
	return &GeneralBank{
		store:       store,
		embedder:    embedder,
		index:       index,
		curatedPath: curatedPath,
		logger:      utils.OrNop(logger),
	}
}

// EnsureGeneral builds every category collection that does not exist yet. Existing collections
// are left untouched.
func (b *GeneralBank) EnsureGeneral(ctx context.Context) error {
	b.buildMu.Lock()
	defer b.buildMu.Unlock()

	set, err := b.curatedSet()
	if err != nil {
		return err
	}
	built := 0
	for _, cat := range models.AllCategories {
		ok, err := b.store.Exists(ctx, Namespace(cat))
		if err != nil {
			return err
		}
		if ok || len(set[cat]) == 0 {
			continue
		}
		if err := b.buildCategory(ctx, cat, set[cat]); err != nil {
			return err
		}
		built++
	}
	if err := b.reindex(ctx, set); err != nil {
		return err
	}
	b.touch()
	b.logger.Info("general question bank ready",
		zap.Int("questions", set.Len()),
		zap.Int("collections_built", built))
	return nil
}

// Rebuild reloads the curated set and regenerates every category collection from it.
func (b *GeneralBank) Rebuild(ctx context.Context) error {
	b.buildMu.Lock()
	defer b.buildMu.Unlock()

	set, err := LoadCurated(b.curatedPath)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, cat := range models.AllCategories {
		g.Go(func() error {
			if len(set[cat]) == 0 {
				return b.store.Delete(context.WithoutCancel(gctx), Namespace(cat))
			}
			return b.buildCategory(gctx, cat, set[cat])
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("rebuild general bank: %w", err)
	}

	b.mu.Lock()
	b.curated = set
	b.mu.Unlock()
	if err := b.reindex(ctx, set); err != nil {
		return err
	}
	b.touch()
	b.logger.Info("general question bank rebuilt", zap.Int("questions", set.Len()))
	return nil
}

func (b *GeneralBank) buildCategory(ctx context.Context, cat models.Category, questions []*models.Question) error {
	records, err := embedQuestions(ctx, b.embedder, questions)
	if err != nil {
		return err
	}
	if err := b.store.Upsert(context.WithoutCancel(ctx), Namespace(cat), records); err != nil {
		return fmt.Errorf("upsert %s: %w", Namespace(cat), err)
	}
	b.logger.Debug("category collection built",
		zap.String("category", string(cat)),
		zap.Int("questions", len(records)))
	return nil
}

func (b *GeneralBank) reindex(ctx context.Context, set CuratedSet) error {
	if b.index == nil {
		return nil
	}
	if err := b.index.Replace(ctx, set.All()); err != nil {
		return fmt.Errorf("index curated questions: %w", err)
	}
	return nil
}

func (b *GeneralBank) curatedSet() (CuratedSet, error) {
	b.mu.RLock()
	set := b.curated
	b.mu.RUnlock()
	if set != nil {
		return set, nil
	}
	set, err := LoadCurated(b.curatedPath)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	b.curated = set
	b.mu.Unlock()
	return set, nil
}

func (b *GeneralBank) touch() {
	b.mu.Lock()
	b.updated = time.Now()
	b.mu.Unlock()
}

// Questions returns the curated questions of cat in file order.
func (b *GeneralBank) Questions(cat models.Category) []*models.Question {
	set, err := b.curatedSet()
	if err != nil {
		return nil
	}
	return set[cat]
}

// GetRandom picks uniformly among the questions of cat that match difficulty (when set) and are
// not in exclude. An empty cat draws from every category.
func (b *GeneralBank) GetRandom(ctx context.Context, cat models.Category, difficulty models.Difficulty, exclude []string) (*models.Question, error) {
	namespaces := []string{Namespace(cat)}
	if cat == "" {
		namespaces = make([]string, len(models.AllCategories))
		for i, c := range models.AllCategories {
			namespaces[i] = Namespace(c)
		}
	}
	q, ok, err := pickRandom(ctx, b.store, namespaces, questionFilter(cat, difficulty), exclude, b.intn)
	if err != nil {
		return nil, err
	}
	if !ok {
		what := string(cat)
		if what == "" {
			what = "any category"
		}
		return nil, models.NewNotFound("question", what)
	}
	return q, nil
}

// Query ranks questions by semantic similarity to text. An empty cat searches every category and
// merges the results.
func (b *GeneralBank) Query(ctx context.Context, text string, k int, cat models.Category) ([]*models.Question, error) {
	if k <= 0 {
		k = 5
	}
	cats := models.AllCategories
	if cat != "" {
		cats = []models.Category{cat}
	}
	var out []*models.Question
	for _, c := range cats {
		qs, err := querySemantic(ctx, b.store, b.embedder, Namespace(c), text, k, nil)
		if err != nil {
			return nil, err
		}
		out = append(out, qs...)
	}
	sort.SliceStable(out, func(i, j int) bool { return *out[i].RelevanceScore > *out[j].RelevanceScore })
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

// Search runs a keyword query over the curated set.
func (b *GeneralBank) Search(ctx context.Context, text string, limit int, opts *keyword.SearchOptions) ([]keyword.Hit, error) {
	if b.index == nil {
		return nil, fmt.Errorf("%w: keyword index not configured", models.ErrInvalidState)
	}
	return b.index.Search(ctx, text, limit, opts)
}

// Suggest proposes a spelling correction for a keyword query.
func (b *GeneralBank) Suggest(text string) (string, bool) {
	if b.index == nil {
		return "", false
	}
	return b.index.Suggest(text, 2)
}

// Stats scans every category collection.
func (b *GeneralBank) Stats(ctx context.Context) (*Stats, error) {
	s := newStats()
	for _, cat := range models.AllCategories {
		records, err := b.store.Get(ctx, Namespace(cat), nil)
		if err != nil {
			return nil, err
		}
		s.ByCategory[cat] = 0
		s.add(records)
	}
	b.mu.RLock()
	s.LastUpdated = b.updated
	b.mu.RUnlock()
	return s, nil
}
