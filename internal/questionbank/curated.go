package questionbank

import (
	"crypto/md5"
	_ "embed"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/hyperjump/kaiwa/internal/models"
	"gopkg.in/yaml.v3"
)

//go:embed curated.yaml
var curatedYAML []byte

// CuratedSet is the static general-purpose question set, grouped by category.
type CuratedSet map[models.Category][]*models.Question

// LoadCurated reads the curated set from path, or the embedded default when path is empty.
func LoadCurated(path string) (CuratedSet, error) {
	if path == "" {
		return ParseCurated(curatedYAML)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read curated questions: %w", err)
	}
	return ParseCurated(data)
}

// ParseCurated decodes a YAML document mapping category names to question lists. Ids are derived
// from the category and question text, so they are stable across rebuilds.
func ParseCurated(data []byte) (CuratedSet, error) {
	var raw map[string][]*models.Question
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse curated questions: %w", err)
	}
	set := make(CuratedSet, len(raw))
	for name, questions := range raw {
		cat, err := models.ParseCategory(name)
		if err != nil {
			return nil, err
		}
		seen := make(map[string]bool, len(questions))
		for i, q := range questions {
			if q == nil || strings.TrimSpace(q.Text) == "" {
				return nil, fmt.Errorf("%w: %s question %d has no text", models.ErrInvalidArgument, cat, i)
			}
			q.Category = cat
			if q.Difficulty == "" {
				q.Difficulty = models.DifficultyMedium
			}
			if !q.Difficulty.Valid() {
				return nil, fmt.Errorf("%w: %s question %d: unknown difficulty %q", models.ErrInvalidArgument, cat, i, q.Difficulty)
			}
			q.ID = QuestionID(cat, q.Text)
			if seen[q.ID] {
				return nil, fmt.Errorf("%w: duplicate %s question %q", models.ErrInvalidArgument, cat, q.Text)
			}
			seen[q.ID] = true
			set[cat] = append(set[cat], q)
		}
	}
	return set, nil
}

// QuestionID is "{category}_{first 16 hex digits of md5(text)}".
func QuestionID(cat models.Category, text string) string {
	sum := md5.Sum([]byte(text))
	return fmt.Sprintf("%s_%s", cat, hex.EncodeToString(sum[:])[:16])
}

// All returns every question in canonical category order.
func (s CuratedSet) All() []*models.Question {
	var out []*models.Question
	for _, cat := range models.AllCategories {
		out = append(out, s[cat]...)
	}
	return out
}

// Len is the total number of questions.
func (s CuratedSet) Len() int {
	n := 0
	for _, qs := range s {
		n += len(qs)
	}
	return n
}
