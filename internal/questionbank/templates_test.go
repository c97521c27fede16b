package questionbank

import (
	"strings"
	"testing"

	"github.com/hyperjump/kaiwa/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countTagged(qs []*models.Question, tag string) int {
	n := 0
	for _, q := range qs {
		if q.HasTag(tag) {
			n++
		}
	}
	return n
}

func TestGenerateQuestions_Scenario(t *testing.T) {
	qs := GenerateQuestions(GenerateInput{
		Analysis: models.MatchAnalysis{
			Strengths:       []string{"Python", "ML pipelines"},
			Gaps:            []string{"Kubernetes"},
			KeywordsMatched: []string{"PyTorch"},
		},
		Count: 10,
	})

	require.Len(t, qs, 10)
	assert.GreaterOrEqual(t, countTagged(qs, "gap"), 1)
	assert.GreaterOrEqual(t, countTagged(qs, "strength"), 1)

	seen := map[string]bool{}
	for _, q := range qs {
		assert.False(t, seen[q.ID], "duplicate id %s", q.ID)
		seen[q.ID] = true
	}

	assert.Equal(t, "strength_0", qs[0].ID)
	assert.Equal(t, models.CategoryTechnical, qs[0].Category)
	assert.Equal(t, "Can you explain your experience with Python?", qs[0].Text)
	assert.Equal(t, []string{"python", "strength"}, qs[0].Tags)

	assert.Equal(t, "strength_1", qs[1].ID)
	assert.Equal(t, models.CategoryBehavioral, qs[1].Category)
	assert.Equal(t, []string{"ml_pipelines", "strength"}, qs[1].Tags)

	assert.Equal(t, "gap_0", qs[2].ID)
	assert.Equal(t, models.CategoryBehavioral, qs[2].Category)
	assert.Contains(t, qs[2].Text, "Kubernetes")

	assert.Equal(t, "skill_0", qs[3].ID)
	assert.Equal(t, "What challenges have you faced when working with PyTorch?", qs[3].Text)

	assert.Equal(t, "generic_4", qs[4].ID)
	assert.Equal(t, "How would you contribute to our team given your background in AI/ML?", qs[4].Text)
	assert.Equal(t, "generic_9", qs[9].ID)
}

func TestGenerateQuestions_GapsAlwaysMedium(t *testing.T) {
	qs := GenerateQuestions(GenerateInput{
		Analysis:   models.MatchAnalysis{Gaps: []string{"Go", "Rust", "Scala"}},
		Difficulty: models.DifficultyHard,
		Count:      10,
	})
	for _, q := range qs {
		if q.HasTag("gap") {
			assert.Equal(t, models.DifficultyMedium, q.Difficulty)
			assert.Equal(t, SubcategoryGap, q.Subcategory)
		} else {
			assert.Equal(t, models.DifficultyHard, q.Difficulty)
		}
	}
	assert.Equal(t, models.CategoryBehavioral, qs[0].Category)
	assert.Equal(t, models.CategoryScenario, qs[1].Category)
	assert.Equal(t, models.CategoryBehavioral, qs[2].Category)
}

func TestGenerateQuestions_AllocationCaps(t *testing.T) {
	many := []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"}
	qs := GenerateQuestions(GenerateInput{
		Analysis: models.MatchAnalysis{Strengths: many, Gaps: many, KeywordsMatched: many},
		Count:    10,
	})
	require.Len(t, qs, 10)
	assert.Equal(t, 4, countTagged(qs, "strength"))
	assert.Equal(t, 3, countTagged(qs, "gap"))
	assert.Equal(t, 3, countTagged(qs, "matched_skill"))
	assert.Zero(t, countTagged(qs, "general"))
}

func TestGenerateQuestions_SkillTemplatesOffset(t *testing.T) {
	qs := GenerateQuestions(GenerateInput{
		Analysis: models.MatchAnalysis{Strengths: []string{"SQL"}, KeywordsMatched: []string{"SQL"}},
		Focus:    []models.Category{models.CategoryScenario},
		Count:    10,
	})
	var strength, skill string
	for _, q := range qs {
		switch {
		case q.HasTag("strength"):
			strength = q.Text
		case q.HasTag("matched_skill"):
			skill = q.Text
		}
	}
	assert.NotEqual(t, strength, skill)
	assert.True(t, strings.HasPrefix(skill, "A client wants to use SQL"), skill)
}

func TestGenerateQuestions_CompanyAndBackground(t *testing.T) {
	qs := GenerateQuestions(GenerateInput{
		Analysis: models.MatchAnalysis{Strengths: []string{"Go", "Python", "SQL"}},
		Resume:   ResumeSignals{Skills: []string{"Go"}, Companies: []string{"Acme Corp"}},
		Focus:    []models.Category{models.CategoryBehavioral},
		Count:    10,
	})
	assert.Equal(t, "How did you handle a challenge related to SQL in your work at Acme Corp?", qs[2].Text)
	assert.Equal(t, "How would you contribute to our team given your background in Go?", qs[len(qs)-1].Text)
}

func TestGenerateQuestions_SelfIntroFocusHasNoTemplates(t *testing.T) {
	qs := GenerateQuestions(GenerateInput{
		Analysis: models.MatchAnalysis{Strengths: []string{"Go", "Python"}},
		Focus:    []models.Category{models.CategorySelfIntroduction},
		Count:    5,
	})
	require.Len(t, qs, 5)
	assert.Zero(t, countTagged(qs, "strength"))
}

func TestFocusAreas(t *testing.T) {
	got := focusAreas(models.MatchAnalysis{
		Strengths:       []string{"Python", "SQL", "Go", "Java"},
		Gaps:            []string{"Kubernetes", "Python", "Rust"},
		KeywordsMatched: []string{"SQL", "Airflow"},
	})
	assert.Equal(t, []string{"Python", "SQL", "Go", "Kubernetes", "Airflow"}, got)
}
