package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hyperjump/kaiwa/internal/keyword"
	"github.com/hyperjump/kaiwa/internal/models"
	"golang.org/x/sync/errgroup"
)

const (
	defaultLimit      = 10
	maxLimit          = 100
	defaultCandidates = 50
)

// Bank is the question source searched by the engine.
type Bank interface {
	Search(ctx context.Context, text string, limit int, opts *keyword.SearchOptions) ([]keyword.Hit, error)
	Query(ctx context.Context, text string, k int, cat models.Category) ([]*models.Question, error)
	Suggest(text string) (string, bool)
}

// Query is one hybrid search request. Nil weights default to 0.5 each; a zero weight disables
// that side.
type Query struct {
	Text           string            `json:"query"`
	Limit          int               `json:"limit,omitempty"`
	Category       models.Category   `json:"category,omitempty"`
	Difficulty     models.Difficulty `json:"difficulty,omitempty"`
	KeywordWeight  *float64          `json:"keyword_weight,omitempty"`
	SemanticWeight *float64          `json:"semantic_weight,omitempty"`
	Fuzzy          bool              `json:"fuzzy,omitempty"`
	MinScore       float64           `json:"min_score,omitempty"`
}

// Validate applies defaults and rejects unusable queries.
func (q *Query) Validate() error {
	q.Text = strings.TrimSpace(q.Text)
	if q.Text == "" {
		return fmt.Errorf("%w: query text is required", models.ErrInvalidArgument)
	}
	if q.Limit <= 0 {
		q.Limit = defaultLimit
	}
	if q.Limit > maxLimit {
		q.Limit = maxLimit
	}
	half := 0.5
	if q.KeywordWeight == nil {
		q.KeywordWeight = &half
	}
	if q.SemanticWeight == nil {
		q.SemanticWeight = &half
	}
	if *q.KeywordWeight < 0 || *q.SemanticWeight < 0 {
		return fmt.Errorf("%w: weights must not be negative", models.ErrInvalidArgument)
	}
	if *q.KeywordWeight == 0 && *q.SemanticWeight == 0 {
		return fmt.Errorf("%w: keyword and semantic search are both disabled", models.ErrInvalidArgument)
	}
	return nil
}

// Result is one ranked question.
type Result struct {
	Question      *models.Question `json:"question"`
	Score         float64          `json:"score"`
	KeywordScore  float64          `json:"keyword_score"`
	SemanticScore float64          `json:"semantic_score"`
	Rank          int              `json:"rank"`
}

// Response is the outcome of a hybrid search.
type Response struct {
	Query      string    `json:"query"`
	Results    []*Result `json:"results"`
	Total      int       `json:"total"`
	QueryTime  int64     `json:"query_time_ms"`
	Suggestion string    `json:"suggestion,omitempty"`
}

// Engine runs hybrid (keyword + semantic) search over a question bank.
type Engine struct {
	bank       Bank
	candidates int
}

// NewEngine creates an engine that fetches up to candidates questions from each side before
// fusing. candidates <= 0 selects 50.
func NewEngine(bank Bank, candidates int) *Engine {
	if candidates <= 0 {
		candidates = defaultCandidates
	}
	return &Engine{bank: bank, candidates: candidates}
}

// Search runs both sides concurrently, fuses them and returns the top Limit questions. A query
// with no results carries a spelling suggestion when one exists.
func (e *Engine) Search(ctx context.Context, query *Query) (*Response, error) {
	startTime := time.Now()
	if err := query.Validate(); err != nil {
		return nil, err
	}

	var (
		hits     []keyword.Hit
		semantic []*models.Question
	)
	g, gctx := errgroup.WithContext(ctx)
	if *query.KeywordWeight > 0 {
		g.Go(func() error {
			var err error
			hits, err = e.bank.Search(gctx, query.Text, e.candidates, &keyword.SearchOptions{
				Category:     query.Category,
				Difficulty:   query.Difficulty,
				FuzzyEnabled: query.Fuzzy,
			})
			if err != nil {
				return fmt.Errorf("keyword search failed: %w", err)
			}
			return nil
		})
	}
	if *query.SemanticWeight > 0 {
		g.Go(func() error {
			qs, err := e.bank.Query(gctx, query.Text, e.candidates, query.Category)
			if err != nil {
				return fmt.Errorf("semantic search failed: %w", err)
			}
			for _, q := range qs {
				if query.Difficulty == "" || q.Difficulty == query.Difficulty {
					semantic = append(semantic, q)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	byID := make(map[string]*models.Question, len(hits)+len(semantic))
	for _, h := range hits {
		byID[h.Question.ID] = h.Question
	}
	for _, q := range semantic {
		if _, ok := byID[q.ID]; !ok {
			byID[q.ID] = q
		}
	}

	fused := Fuse(NormalizeKeywordScores(hits), SemanticScores(semantic), *query.KeywordWeight, *query.SemanticWeight)
	if query.MinScore > 0 {
		filtered := fused[:0]
		for _, r := range fused {
			if r.Score >= query.MinScore {
				filtered = append(filtered, r)
			}
		}
		fused = filtered
	}

	resp := &Response{
		Query:   query.Text,
		Results: make([]*Result, 0, min(len(fused), query.Limit)),
		Total:   len(fused),
	}
	for i, f := range fused {
		if i == query.Limit {
			break
		}
		resp.Results = append(resp.Results, &Result{
			Question:      byID[f.QuestionID],
			Score:         f.Score,
			KeywordScore:  f.KeywordScore,
			SemanticScore: f.SemanticScore,
			Rank:          i + 1,
		})
	}
	if len(resp.Results) == 0 {
		if s, ok := e.bank.Suggest(query.Text); ok {
			resp.Suggestion = s
		}
	}
	resp.QueryTime = time.Since(startTime).Milliseconds()
	return resp, nil
}
