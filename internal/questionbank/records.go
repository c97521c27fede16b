package questionbank

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/hyperjump/kaiwa/internal/embedding"
	"github.com/hyperjump/kaiwa/internal/models"
	"github.com/hyperjump/kaiwa/internal/vector"
)

// listSeparator joins tags and evaluation criteria inside record metadata. Criteria are prose and
// may contain commas.
const listSeparator = "|"

func toRecord(q *models.Question, vec []float32) models.VectorRecord {
	meta := models.Metadata{
		models.MetaCategory:   string(q.Category),
		models.MetaDifficulty: string(q.Difficulty),
		models.MetaTags:       strings.Join(q.Tags, listSeparator),
	}
	meta[models.MetaSubcategory] = q.Subcategory
	if q.Subcategory == "" {
		meta[models.MetaSubcategory] = "general"
	}
	if q.SampleAnswer != "" {
		meta[models.MetaSampleAnswer] = q.SampleAnswer
	}
	if len(q.EvaluationCriteria) > 0 {
		meta[models.MetaEvaluationCriteria] = strings.Join(q.EvaluationCriteria, listSeparator)
	}
	return models.VectorRecord{ID: q.ID, Vector: vec, Document: q.Text, Metadata: meta}
}

func fromRecord(r models.VectorRecord) *models.Question {
	q := &models.Question{
		ID:           r.ID,
		Text:         r.Document,
		Category:     models.Category(r.Metadata[models.MetaCategory]),
		Subcategory:  r.Metadata[models.MetaSubcategory],
		Difficulty:   models.Difficulty(r.Metadata[models.MetaDifficulty]),
		Tags:         splitList(r.Metadata[models.MetaTags]),
		SampleAnswer: r.Metadata[models.MetaSampleAnswer],
	}
	if q.Difficulty == "" {
		q.Difficulty = models.DifficultyMedium
	}
	if q.Tags == nil {
		q.Tags = []string{}
	}
	q.EvaluationCriteria = splitList(r.Metadata[models.MetaEvaluationCriteria])
	return q
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, listSeparator)
}

func questionFilter(cat models.Category, diff models.Difficulty) map[string]string {
	filter := map[string]string{}
	if cat != "" {
		filter[models.MetaCategory] = string(cat)
	}
	if diff != "" {
		filter[models.MetaDifficulty] = string(diff)
	}
	return filter
}

// embedQuestions embeds question texts and pairs each with its vector.
func embedQuestions(ctx context.Context, embedder embedding.Embedder, questions []*models.Question) ([]models.VectorRecord, error) {
	texts := make([]string, len(questions))
	for i, q := range questions {
		texts[i] = q.Text
	}
	vecs, err := embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed questions: %w", err)
	}
	records := make([]models.VectorRecord, len(questions))
	for i, q := range questions {
		records[i] = toRecord(q, vecs[i])
	}
	return records, nil
}

// pickRandom selects uniformly among the records of namespaces that match filter and are not in
// exclude.
func pickRandom(ctx context.Context, store vector.Store, namespaces []string, filter map[string]string, exclude []string, intn func(int) int) (*models.Question, bool, error) {
	var records []models.VectorRecord
	for _, ns := range namespaces {
		rs, err := store.Get(ctx, ns, filter)
		if err != nil {
			return nil, false, err
		}
		records = append(records, rs...)
	}
	skip := make(map[string]bool, len(exclude))
	for _, id := range exclude {
		skip[id] = true
	}
	var available []models.VectorRecord
	for _, r := range records {
		if !skip[r.ID] {
			available = append(available, r)
		}
	}
	if len(available) == 0 {
		return nil, false, nil
	}
	if intn == nil {
		intn = rand.IntN
	}
	return fromRecord(available[intn(len(available))]), true, nil
}

// querySemantic embeds text and returns up to k questions with relevance = 1 - distance.
func querySemantic(ctx context.Context, store vector.Store, embedder embedding.Embedder, namespace, text string, k int, filter map[string]string) ([]*models.Question, error) {
	vec, err := embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits, err := store.Query(ctx, namespace, vec, k, filter)
	if err != nil {
		return nil, err
	}
	out := make([]*models.Question, len(hits))
	for i, h := range hits {
		q := fromRecord(h.Record)
		rel := 1 - h.Distance
		q.RelevanceScore = &rel
		out[i] = q
	}
	return out, nil
}
