// Package keyword provides full-text search over the curated question bank using Bleve.
package keyword

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	keywordanalyzer "github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
	"github.com/hyperjump/kaiwa/internal/models"
)

// SearchOptions optional parameters for keyword search. Nil means use defaults.
type SearchOptions struct {
	// Category restricts hits to one question category.
	Category models.Category
	// Difficulty restricts hits to one difficulty.
	Difficulty models.Difficulty
	// FuzzyEnabled enables typo-tolerant matching within Fuzziness edits (default 1).
	FuzzyEnabled bool
	Fuzziness    int
}

// Hit is a single keyword search result.
type Hit struct {
	Question *models.Question `json:"question"`
	Score    float64          `json:"score"`
}

// questionDoc is the indexed form of a question.
type questionDoc struct {
	Text        string `json:"question"`
	Tags        string `json:"tags"`
	Subcategory string `json:"subcategory"`
	Category    string `json:"category"`
	Difficulty  string `json:"difficulty"`
}

// Question text outranks tag and subcategory matches.
const (
	questionBoost = 2.0
	tagBoost      = 1.0
)

// QuestionIndex is an in-memory Bleve index over a question set. Replace swaps in a freshly
// built index, so searches never see a half-indexed set.
type QuestionIndex struct {
	mu        sync.RWMutex
	index     bleve.Index
	questions map[string]*models.Question
}

// NewQuestionIndex returns an empty index.
func NewQuestionIndex() (*QuestionIndex, error) {
	idx, err := bleve.NewMemOnly(newMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &QuestionIndex{index: idx, questions: map[string]*models.Question{}}, nil
}

func newMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()

	// Standard analyzer (lowercase + tokenize, no stemming) so "kubernetes" matches exactly.
	text := bleve.NewTextFieldMapping()
	text.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("question", text)
	docMapping.AddFieldMappingsAt("tags", text)
	docMapping.AddFieldMappingsAt("subcategory", text)

	exact := bleve.NewTextFieldMapping()
	exact.Analyzer = keywordanalyzer.Name
	docMapping.AddFieldMappingsAt("category", exact)
	docMapping.AddFieldMappingsAt("difficulty", exact)

	im.DefaultMapping = docMapping
	return im
}

// Replace rebuilds the index from questions.
func (q *QuestionIndex) Replace(ctx context.Context, questions []*models.Question) error {
	idx, err := bleve.NewMemOnly(newMapping())
	if err != nil {
		return fmt.Errorf("failed to create Bleve index: %w", err)
	}
	byID := make(map[string]*models.Question, len(questions))
	batch := idx.NewBatch()
	for _, question := range questions {
		if err := ctx.Err(); err != nil {
			_ = idx.Close()
			return err
		}
		byID[question.ID] = question
		if err := batch.Index(question.ID, questionDoc{
			Text:        question.Text,
			Tags:        strings.ReplaceAll(strings.Join(question.Tags, " "), "_", " "),
			Subcategory: strings.ReplaceAll(question.Subcategory, "_", " "),
			Category:    string(question.Category),
			Difficulty:  string(question.Difficulty),
		}); err != nil {
			_ = idx.Close()
			return fmt.Errorf("index question %s: %w", question.ID, err)
		}
	}
	if err := idx.Batch(batch); err != nil {
		_ = idx.Close()
		return fmt.Errorf("Bleve batch failed: %w", err)
	}

	q.mu.Lock()
	old := q.index
	q.index = idx
	q.questions = byID
	q.mu.Unlock()
	return old.Close()
}

// Search runs a boosted match over question text, tags and subcategory and returns up to limit hits.
func (q *QuestionIndex) Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]Hit, error) {
	if limit <= 0 {
		limit = 10
	}
	if opts == nil {
		opts = &SearchOptions{}
	}
	terms := tokenizeQuery(query)
	if len(terms) == 0 {
		return nil, nil
	}

	fields := []struct {
		name  string
		boost float64
	}{{"question", questionBoost}, {"tags", tagBoost}, {"subcategory", tagBoost}}
	var should []blevequery.Query
	for _, f := range fields {
		should = append(should, buildFieldQuery(query, terms, f.name, f.boost, opts))
	}
	var top blevequery.Query = bleve.NewDisjunctionQuery(should...)
	if opts.Category != "" || opts.Difficulty != "" {
		must := []blevequery.Query{top}
		if opts.Category != "" {
			tq := bleve.NewTermQuery(string(opts.Category))
			tq.SetField("category")
			must = append(must, tq)
		}
		if opts.Difficulty != "" {
			tq := bleve.NewTermQuery(string(opts.Difficulty))
			tq.SetField("difficulty")
			must = append(must, tq)
		}
		top = bleve.NewConjunctionQuery(must...)
	}

	req := bleve.NewSearchRequest(top)
	req.Size = limit

	q.mu.RLock()
	defer q.mu.RUnlock()
	results, err := q.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	out := make([]Hit, 0, len(results.Hits))
	for _, hit := range results.Hits {
		if question, ok := q.questions[hit.ID]; ok {
			out = append(out, Hit{Question: question, Score: hit.Score})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

// buildFieldQuery matches terms within one field, as fuzzy term queries when requested.
func buildFieldQuery(query string, terms []string, field string, boost float64, opts *SearchOptions) blevequery.Query {
	if !opts.FuzzyEnabled {
		mq := bleve.NewMatchQuery(query)
		mq.SetField(field)
		mq.SetBoost(boost)
		return mq
	}
	fuzziness := opts.Fuzziness
	if fuzziness <= 0 {
		fuzziness = 1
	}
	queries := make([]blevequery.Query, 0, len(terms))
	for _, term := range terms {
		fq := bleve.NewFuzzyQuery(term)
		fq.SetFuzziness(fuzziness)
		fq.SetField(field)
		fq.SetBoost(boost)
		queries = append(queries, fq)
	}
	return bleve.NewDisjunctionQuery(queries...)
}

// DocCount returns the number of indexed questions.
func (q *QuestionIndex) DocCount() (uint64, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.index.DocCount()
}

// Close closes the Bleve index.
func (q *QuestionIndex) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.index.Close()
}

// tokenizeQuery splits query into lowercase terms, filtering out empty strings.
func tokenizeQuery(query string) []string {
	return strings.Fields(strings.ToLower(query))
}
