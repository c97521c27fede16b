package questionbank

import (
	"regexp"
	"strings"
)

// ResumeSignals are the structured facts pulled from résumé text.
type ResumeSignals struct {
	Skills    []string `json:"skills"`
	Companies []string `json:"companies"`
}

// JobSignals are the structured facts pulled from a job posting.
type JobSignals struct {
	RequiredSkills  []string `json:"required_skills"`
	PreferredSkills []string `json:"preferred_skills"`
}

// Extractor pulls structured signals from free text. Results are best effort and may be empty.
type Extractor interface {
	ExtractResume(text string) ResumeSignals
	ExtractJob(text string) JobSignals
}

var (
	skillPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:skills?|technologies|technology|tools?)[\s:]+([^\n]+)`),
		regexp.MustCompile(`(?i)(?:proficient in|experienced with|expertise in)[\s:]+([^\n]+)`),
	}
	companyPattern   = regexp.MustCompile(`(?:\bat|@|worked at|employed by)[ \t]+([A-Z][A-Za-z \t]+(?:Inc|Corp|LLC|Ltd)?)`)
	requiredPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:required|must have|essential)[\s:]+([^\n]+)`),
		regexp.MustCompile(`(?i)requirements?[\s:]+([^\n]+)`),
	}
	preferredPattern = regexp.MustCompile(`(?i)(?:preferred|nice to have|bonus)[\s:]+([^\n]+)`)
	listSplit        = regexp.MustCompile(`[,;|]`)
)

const (
	maxSkills          = 20
	maxCompanies       = 5
	maxRequiredSkills  = 15
	maxPreferredSkills = 10
)

// RegexExtractor matches labelled lists ("Skills: a, b") and company mentions.
type RegexExtractor struct{}

// ExtractResume finds skill lists and employer names.
func (RegexExtractor) ExtractResume(text string) ResumeSignals {
	var skills []string
	for _, re := range skillPatterns {
		skills = append(skills, captureLists(re, text)...)
	}
	var companies []string
	for _, m := range companyPattern.FindAllStringSubmatch(text, -1) {
		companies = append(companies, strings.TrimSpace(m[1]))
	}
	return ResumeSignals{
		Skills:    limit(dedupe(skills), maxSkills),
		Companies: limit(dedupe(companies), maxCompanies),
	}
}

// ExtractJob finds required and preferred skill lists.
func (RegexExtractor) ExtractJob(text string) JobSignals {
	var required []string
	for _, re := range requiredPatterns {
		required = append(required, captureLists(re, text)...)
	}
	return JobSignals{
		RequiredSkills:  limit(dedupe(required), maxRequiredSkills),
		PreferredSkills: limit(dedupe(captureLists(preferredPattern, text)), maxPreferredSkills),
	}
}

func captureLists(re *regexp.Regexp, text string) []string {
	var out []string
	for _, m := range re.FindAllStringSubmatch(text, -1) {
		for _, part := range listSplit.Split(m[1], -1) {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

// MatchKeywords returns the résumé skills that also appear, case-insensitively, among the job's
// required or preferred skills. Order follows the résumé.
func MatchKeywords(resume ResumeSignals, job JobSignals) []string {
	wanted := make(map[string]bool)
	for _, s := range append(append([]string(nil), job.RequiredSkills...), job.PreferredSkills...) {
		wanted[strings.ToLower(s)] = true
	}
	var out []string
	for _, s := range resume.Skills {
		if wanted[strings.ToLower(s)] {
			out = append(out, s)
		}
	}
	return out
}

// dedupe removes repeats keeping first occurrence.
func dedupe(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, s := range items {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func limit(items []string, n int) []string {
	if len(items) > n {
		return items[:n]
	}
	return items
}
