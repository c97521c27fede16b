package questionbank

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/hyperjump/kaiwa/internal/models"
)

// categoryTemplates phrase strength and matched-skill questions. Placeholders: {skill}, {domain},
// {company}.
var categoryTemplates = map[models.Category][]string{
	models.CategoryTechnical: {
		"Can you explain your experience with {skill}?",
		"How have you applied {skill} in your previous projects?",
		"What challenges have you faced when working with {skill}?",
		"Describe a project where you used {skill} to solve a complex problem.",
		"How would you approach improving {skill} implementation in a production environment?",
		"What are the key considerations when using {skill} for {domain}?",
		"Can you walk me through your approach to debugging {skill}-related issues?",
		"How do you stay updated with the latest developments in {skill}?",
	},
	models.CategoryBehavioral: {
		"Tell me about a time when you had to learn {skill} quickly for a project.",
		"Describe a situation where your knowledge of {skill} made a significant impact.",
		"How did you handle a challenge related to {skill} in your work at {company}?",
		"Give an example of when you collaborated with others on a {skill} project.",
		"Tell me about a time when you had to explain {skill} to non-technical stakeholders.",
	},
	models.CategoryScenario: {
		"If you were tasked with implementing {skill} from scratch, how would you approach it?",
		"Your team is facing performance issues with {skill}. How would you diagnose and fix this?",
		"A client wants to use {skill} for a use case you think is inappropriate. How do you handle this?",
		"You need to choose between {skill} and an alternative approach. What factors do you consider?",
	},
	models.CategorySoftSkills: {
		"How do you prioritize learning new skills like {skill} alongside your regular work?",
		"Describe how you would mentor a junior developer on {skill}.",
		"How do you handle disagreements about technical approaches when using {skill}?",
	},
}

// gapTemplates phrase gap-preparation questions. Placeholder: {gap}.
var gapTemplates = []string{
	"The job requires {gap}. While this may not be your primary experience, how would you approach learning it?",
	"Tell me about any exposure you've had to {gap}, even in a limited capacity.",
	"How would you bridge the gap in {gap} to meet the role's requirements?",
	"If you were to work on a project involving {gap}, what would be your learning strategy?",
	"What transferable skills from your experience could help you succeed with {gap}?",
}

// defaultFocus is used when a request names no focus categories.
var defaultFocus = []models.Category{
	models.CategoryTechnical,
	models.CategoryBehavioral,
	models.CategoryScenario,
	models.CategorySoftSkills,
}

// Subcategories of generated questions.
const (
	SubcategoryStrength = "strength_showcase"
	SubcategoryGap      = "gap_preparation"
	SubcategorySkill    = "skill_demonstration"
	SubcategoryGeneral  = "general"
)

// GenerateInput is everything question generation depends on.
type GenerateInput struct {
	Analysis   models.MatchAnalysis
	Resume     ResumeSignals
	Focus      []models.Category
	Difficulty models.Difficulty
	Count      int
	Domain     string
}

// GenerateQuestions allocates Count questions across strengths (40%), gaps (30%) and matched
// keywords (30%), pads with generic contribution questions and truncates to Count.
func GenerateQuestions(in GenerateInput) []*models.Question {
	focus := in.Focus
	if len(focus) == 0 {
		focus = defaultFocus
	}
	domain := in.Domain
	if domain == "" {
		domain = "AI/ML"
	}
	difficulty := in.Difficulty
	if difficulty == "" {
		difficulty = models.DifficultyMedium
	}
	company := func(fallback string) string {
		if len(in.Resume.Companies) > 0 {
			return in.Resume.Companies[0]
		}
		return fallback
	}

	var out []*models.Question

	strengths := limit(in.Analysis.Strengths, in.Count*4/10)
	for i, strength := range strengths {
		cat := focus[i%len(focus)]
		templates := categoryTemplates[cat]
		if len(templates) == 0 {
			continue
		}
		out = append(out, &models.Question{
			ID:          fmt.Sprintf("strength_%d", i),
			Text:        fill(templates[i%len(templates)], strength, domain, company("your previous role")),
			Category:    cat,
			Subcategory: SubcategoryStrength,
			Difficulty:  difficulty,
			Tags:        []string{tagOf(strength), "strength"},
			EvaluationCriteria: []string{
				"Demonstrates expertise in " + strength,
				"Provides concrete examples",
				"Shows depth of knowledge",
			},
		})
	}

	gaps := limit(in.Analysis.Gaps, in.Count*3/10)
	for i, gap := range gaps {
		cat := models.CategoryBehavioral
		if i%2 == 1 {
			cat = models.CategoryScenario
		}
		out = append(out, &models.Question{
			ID:          fmt.Sprintf("gap_%d", i),
			Text:        strings.ReplaceAll(gapTemplates[i%len(gapTemplates)], "{gap}", gap),
			Category:    cat,
			Subcategory: SubcategoryGap,
			Difficulty:  models.DifficultyMedium,
			Tags:        []string{tagOf(gap), "gap", "growth"},
			EvaluationCriteria: []string{
				"Acknowledges the gap honestly",
				"Shows willingness to learn",
				"Identifies transferable skills",
			},
		})
	}

	skills := limit(in.Analysis.KeywordsMatched, in.Count*3/10)
	for i, skill := range skills {
		cat := focus[i%len(focus)]
		templates := categoryTemplates[cat]
		if len(templates) == 0 {
			continue
		}
		out = append(out, &models.Question{
			ID:          fmt.Sprintf("skill_%d", i),
			Text:        fill(templates[(i+2)%len(templates)], skill, domain+" engineering", company("your experience")),
			Category:    cat,
			Subcategory: SubcategorySkill,
			Difficulty:  difficulty,
			Tags:        []string{tagOf(skill), "matched_skill"},
			EvaluationCriteria: []string{
				"Shows practical experience with " + skill,
				"Connects to job requirements",
				"Demonstrates impact",
			},
		})
	}

	background := domain
	if len(in.Resume.Skills) > 0 {
		background = in.Resume.Skills[0]
	}
	for len(out) < in.Count {
		out = append(out, &models.Question{
			ID:                 fmt.Sprintf("generic_%d", len(out)),
			Text:               fmt.Sprintf("How would you contribute to our team given your background in %s?", background),
			Category:           models.CategoryBehavioral,
			Subcategory:        SubcategoryGeneral,
			Difficulty:         difficulty,
			Tags:               []string{"general", "contribution"},
			EvaluationCriteria: []string{"Shows enthusiasm", "Identifies value-add", "Team orientation"},
		})
	}
	return limitQuestions(out, in.Count)
}

func fill(template, skill, domain, company string) string {
	return strings.NewReplacer("{skill}", skill, "{domain}", domain, "{company}", company).Replace(template)
}

// tagOf lower-cases s and joins its words with "_". Commas and the metadata list separator count
// as word breaks so one signal stays one tag.
func tagOf(s string) string {
	words := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return unicode.IsSpace(r) || r == ',' || strings.ContainsRune(listSeparator, r)
	})
	return strings.Join(words, "_")
}

func limitQuestions(qs []*models.Question, n int) []*models.Question {
	if n >= 0 && len(qs) > n {
		return qs[:n]
	}
	return qs
}

// focusAreas is the de-duplicated union of the top 3 strengths, top 2 gaps and top 3 matched
// keywords.
func focusAreas(a models.MatchAnalysis) []string {
	var all []string
	all = append(all, limit(a.Strengths, 3)...)
	all = append(all, limit(a.Gaps, 2)...)
	all = append(all, limit(a.KeywordsMatched, 3)...)
	return dedupe(all)
}

func categoriesCovered(qs []*models.Question) []models.Category {
	seen := make(map[models.Category]bool)
	var out []models.Category
	for _, q := range qs {
		if !seen[q.Category] {
			seen[q.Category] = true
			out = append(out, q.Category)
		}
	}
	return out
}
