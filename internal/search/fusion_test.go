package search

import (
	"testing"

	"github.com/hyperjump/kaiwa/internal/keyword"
	"github.com/hyperjump/kaiwa/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(f float64) *float64 { return &f }

func TestNormalizeKeywordScores(t *testing.T) {
	hits := []keyword.Hit{
		{Question: &models.Question{ID: "a"}, Score: 2},
		{Question: &models.Question{ID: "b"}, Score: 4},
		{Question: &models.Question{ID: "c"}, Score: 1},
	}
	m := NormalizeKeywordScores(hits)
	require.Len(t, m, 3)
	assert.Equal(t, 1.0, m["b"])
	assert.Equal(t, 0.5, m["a"])
	assert.Equal(t, 0.25, m["c"])

	assert.Empty(t, NormalizeKeywordScores(nil))

	zero := NormalizeKeywordScores([]keyword.Hit{{Question: &models.Question{ID: "z"}}})
	assert.Equal(t, 0.0, zero["z"])
}

func TestSemanticScores(t *testing.T) {
	qs := []*models.Question{
		{ID: "q1", RelevanceScore: ptr(0.9)},
		{ID: "q2", RelevanceScore: ptr(-0.2)},
		{ID: "q3"},
		{ID: "q4", RelevanceScore: ptr(1.4)},
	}
	m := SemanticScores(qs)
	assert.Equal(t, map[string]float64{"q1": 0.9, "q2": 0, "q4": 1}, m)
}

func TestFuse(t *testing.T) {
	kw := map[string]float64{"d1": 1.0, "d2": 0.5}
	sem := map[string]float64{"d1": 0.5, "d2": 1.0, "d3": 0.2}
	results := Fuse(kw, sem, 0.7, 0.3)
	require.Len(t, results, 3)

	assert.Equal(t, "d1", results[0].QuestionID)
	assert.InDelta(t, 0.85, results[0].Score, 1e-9)
	assert.Equal(t, 1.0, results[0].KeywordScore)
	assert.Equal(t, 0.5, results[0].SemanticScore)

	assert.Equal(t, "d2", results[1].QuestionID)
	assert.InDelta(t, 0.65, results[1].Score, 1e-9)

	assert.Equal(t, "d3", results[2].QuestionID)
	assert.Equal(t, 0.0, results[2].KeywordScore)
	assert.InDelta(t, 0.06, results[2].Score, 1e-9)
}

func TestFuseTiesBrokenByID(t *testing.T) {
	results := Fuse(map[string]float64{"b": 1, "a": 1}, nil, 1, 0)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].QuestionID)
	assert.Equal(t, "b", results[1].QuestionID)
}
