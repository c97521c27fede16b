package models

import "fmt"

// Category is the interview question category.
type Category string

const (
	CategorySelfIntroduction Category = "self_introduction"
	CategoryTechnical        Category = "technical"
	CategoryBehavioral       Category = "behavioral"
	CategorySoftSkills       Category = "soft_skills"
	CategoryScenario         Category = "scenario"
)

// AllCategories lists every category in canonical order.
var AllCategories = []Category{
	CategorySelfIntroduction,
	CategoryTechnical,
	CategoryBehavioral,
	CategorySoftSkills,
	CategoryScenario,
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	for _, k := range AllCategories {
		if c == k {
			return true
		}
	}
	return false
}

// ParseCategory converts s to a Category.
func ParseCategory(s string) (Category, error) {
	c := Category(s)
	if !c.Valid() {
		return "", fmt.Errorf("%w: unknown category %q", ErrInvalidArgument, s)
	}
	return c, nil
}

// Difficulty is the question difficulty.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// AllDifficulties lists every difficulty in ascending order.
var AllDifficulties = []Difficulty{DifficultyEasy, DifficultyMedium, DifficultyHard}

// Valid reports whether d is a known difficulty.
func (d Difficulty) Valid() bool {
	return d == DifficultyEasy || d == DifficultyMedium || d == DifficultyHard
}

// ParseDifficulty converts s to a Difficulty. The empty string yields "" (no filter).
func ParseDifficulty(s string) (Difficulty, error) {
	if s == "" {
		return "", nil
	}
	d := Difficulty(s)
	if !d.Valid() {
		return "", fmt.Errorf("%w: unknown difficulty %q", ErrInvalidArgument, s)
	}
	return d, nil
}

// Question is an interview question. Read-only once surfaced in a session.
type Question struct {
	ID                 string     `json:"id" yaml:"id,omitempty"`
	Text               string     `json:"question" yaml:"question"`
	Category           Category   `json:"category" yaml:"category,omitempty"`
	Subcategory        string     `json:"subcategory,omitempty" yaml:"subcategory,omitempty"`
	Difficulty         Difficulty `json:"difficulty" yaml:"difficulty,omitempty"`
	Tags               []string   `json:"tags" yaml:"tags,omitempty"`
	SampleAnswer       string     `json:"sample_answer,omitempty" yaml:"sample_answer,omitempty"`
	EvaluationCriteria []string   `json:"evaluation_criteria,omitempty" yaml:"evaluation_criteria,omitempty"`
	RelevanceScore     *float64   `json:"relevance_score,omitempty" yaml:"-"`
}

// HasTag reports whether q carries tag.
func (q *Question) HasTag(tag string) bool {
	for _, t := range q.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
