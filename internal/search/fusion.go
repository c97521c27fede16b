// Package search provides hybrid (keyword + semantic) question search and result fusion.
package search

import (
	"sort"

	"github.com/hyperjump/kaiwa/internal/keyword"
	"github.com/hyperjump/kaiwa/internal/models"
)

// FusedResult holds a question id and fused keyword/semantic scores.
type FusedResult struct {
	QuestionID    string
	Score         float64
	KeywordScore  float64
	SemanticScore float64
}

// NormalizeKeywordScores normalizes keyword scores to [0,1] by max.
func NormalizeKeywordScores(hits []keyword.Hit) map[string]float64 {
	normalized := make(map[string]float64, len(hits))
	if len(hits) == 0 {
		return normalized
	}
	maxScore := hits[0].Score
	for _, h := range hits {
		if h.Score > maxScore {
			maxScore = h.Score
		}
	}
	for _, h := range hits {
		if maxScore > 0 {
			normalized[h.Question.ID] = h.Score / maxScore
		} else {
			normalized[h.Question.ID] = 0
		}
	}
	return normalized
}

// SemanticScores maps question id to relevance, clamped to [0,1]. Questions without a relevance
// score are skipped.
func SemanticScores(qs []*models.Question) map[string]float64 {
	scores := make(map[string]float64, len(qs))
	for _, q := range qs {
		if q.RelevanceScore == nil {
			continue
		}
		s := *q.RelevanceScore
		if s < 0 {
			s = 0
		}
		if s > 1 {
			s = 1
		}
		if prev, ok := scores[q.ID]; !ok || s > prev {
			scores[q.ID] = s
		}
	}
	return scores
}

// Fuse merges keyword and semantic score maps with weights and returns results sorted by score,
// ties broken by id.
func Fuse(keywordScores, semanticScores map[string]float64, keywordWeight, semanticWeight float64) []*FusedResult {
	scoreMap := make(map[string]*FusedResult, len(keywordScores)+len(semanticScores))
	for id, score := range keywordScores {
		scoreMap[id] = &FusedResult{QuestionID: id, KeywordScore: score}
	}
	for id, score := range semanticScores {
		if result, exists := scoreMap[id]; exists {
			result.SemanticScore = score
		} else {
			scoreMap[id] = &FusedResult{QuestionID: id, SemanticScore: score}
		}
	}
	results := make([]*FusedResult, 0, len(scoreMap))
	for _, result := range scoreMap {
		result.Score = (keywordWeight * result.KeywordScore) + (semanticWeight * result.SemanticScore)
		results = append(results, result)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].QuestionID < results[j].QuestionID
	})
	return results
}
