package models

import "time"

// MatchAnalysis carries the résumé/job signals that seed a personalized bank.
type MatchAnalysis struct {
	ResumeText      string             `json:"resume_text"`
	JobDescription  string             `json:"job_description"`
	MatchScore      float64            `json:"match_score"`
	Strengths       []string           `json:"strengths"`
	Gaps            []string           `json:"gaps"`
	Recommendations []string           `json:"recommendations,omitempty"`
	SkillsMatch     map[string]float64 `json:"skills_match,omitempty"`
	KeywordsMatched []string           `json:"keywords_matched"`
	KeywordsMissing []string           `json:"keywords_missing,omitempty"`
}

// PersonalizedRAGRequest asks for a personalized bank for one user.
type PersonalizedRAGRequest struct {
	UserID          string        `json:"user_id"`
	Analysis        MatchAnalysis `json:"matchwise_data"`
	FocusCategories []Category    `json:"focus_categories,omitempty"`
	Difficulty      Difficulty    `json:"difficulty_preference,omitempty"`
	NumQuestions    int           `json:"num_questions,omitempty"`
}

// PersonalizedRAG is the registry entry of a personalized bank. Its questions live in the vector
// namespace named by RAGID.
type PersonalizedRAG struct {
	RAGID             string     `json:"rag_id"`
	UserID            string     `json:"user_id"`
	Status            string     `json:"status"`
	QuestionCount     int        `json:"question_bank_size"`
	CategoriesCovered []Category `json:"categories_covered"`
	FocusAreas        []string   `json:"focus_areas"`
	CreatedAt         time.Time  `json:"created_at"`
	ExpiresAt         time.Time  `json:"expires_at"`
}

// Expired reports whether the bank is past its expiry at now.
func (r *PersonalizedRAG) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && now.After(r.ExpiresAt)
}
