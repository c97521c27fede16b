// Package cli formats command output for the kaiwa CLI.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/hyperjump/kaiwa/internal/models"
	"github.com/hyperjump/kaiwa/internal/questionbank"
	"github.com/hyperjump/kaiwa/internal/retrieval"
	"github.com/hyperjump/kaiwa/internal/search"
	"github.com/hyperjump/kaiwa/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

const rule = "─────────────────────────────────────────────────────────"

// ParseFormat converts s to an OutputFormat. "" selects OutputText.
func ParseFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(s)) {
	case "", OutputText:
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	}
	return "", fmt.Errorf("unknown output format %q (want text or json)", s)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteQuestions writes questions, one block each.
func WriteQuestions(w io.Writer, qs []*models.Question, format OutputFormat) error {
	if format == OutputJSON {
		if qs == nil {
			qs = []*models.Question{}
		}
		return writeJSON(w, map[string]any{"questions": qs})
	}
	if len(qs) == 0 {
		fmt.Fprintln(w, "No questions found.")
		return nil
	}
	for i, q := range qs {
		writeQuestion(w, i+1, q, "")
	}
	return nil
}

func writeQuestion(w io.Writer, rank int, q *models.Question, score string) {
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "%d. [%s/%s] %s%s\n", rank, q.Category, q.Difficulty, q.ID, score)
	fmt.Fprintf(w, "%s\n", q.Text)
	if len(q.Tags) > 0 {
		fmt.Fprintf(w, "Tags: %s\n", strings.Join(q.Tags, ", "))
	}
	fmt.Fprintln(w)
}

// WriteResults writes hybrid search results. An empty result set shows the suggestion, if any.
func WriteResults(w io.Writer, resp *search.Response, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, resp)
	}
	fmt.Fprintf(w, "\nFound %d questions for %q (%dms)\n\n", resp.Total, resp.Query, resp.QueryTime)
	if len(resp.Results) == 0 && resp.Suggestion != "" {
		fmt.Fprintf(w, "Did you mean: %s\n", resp.Suggestion)
		return nil
	}
	for _, r := range resp.Results {
		writeQuestion(w, r.Rank, r.Question,
			fmt.Sprintf(" | Score: %.4f (keyword %.2f, semantic %.2f)", r.Score, r.KeywordScore, r.SemanticScore))
	}
	return nil
}

// WriteContext writes retrieved context fragments.
func WriteContext(w io.Writer, namespace string, hits []models.ScoredRecord, format OutputFormat) error {
	if format == OutputJSON {
		for i := range hits {
			hits[i].Record.Vector = nil
		}
		if hits == nil {
			hits = []models.ScoredRecord{}
		}
		return writeJSON(w, map[string]any{
			"namespace": namespace,
			"context":   retrieval.JoinContext(hits),
			"results":   hits,
		})
	}
	if len(hits) == 0 {
		fmt.Fprintf(w, "No context in %s.\n", namespace)
		return nil
	}
	for i, h := range hits {
		fmt.Fprintln(w, rule)
		fmt.Fprintf(w, "%d. [%s] %s | Similarity: %.4f\n", i+1,
			strings.ToUpper(h.Record.Metadata[models.MetaSource]), h.Record.ID, h.Similarity)
		fmt.Fprintf(w, "\n%s\n\n", utils.Truncate(h.Record.Document, 300))
	}
	return nil
}

// WriteBuildStats writes the result of building a user context.
func WriteBuildStats(w io.Writer, stats *retrieval.BuildStats, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, stats)
	}
	fmt.Fprintf(w, "Built %s: %d chunks (%d resume, %d job posting)\n",
		stats.Namespace, stats.TotalChunks, stats.ResumeChunks, stats.JobChunks)
	return nil
}

// WriteStats writes question-bank statistics with categories in sorted order.
func WriteStats(w io.Writer, stats *questionbank.Stats, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, stats)
	}
	fmt.Fprintf(w, "Total questions:     %d\n", stats.Total)
	fmt.Fprintf(w, "Personalized banks:  %d\n", stats.PersonalizedBanks)
	if !stats.LastUpdated.IsZero() {
		fmt.Fprintf(w, "Last updated:        %s\n", stats.LastUpdated.Format("2006-01-02 15:04:05"))
	}
	cats := make([]string, 0, len(stats.ByCategory))
	for c := range stats.ByCategory {
		cats = append(cats, string(c))
	}
	sort.Strings(cats)
	fmt.Fprintln(w, "By category:")
	for _, c := range cats {
		fmt.Fprintf(w, "  %-18s %d\n", c, stats.ByCategory[models.Category(c)])
	}
	fmt.Fprintln(w, "By difficulty:")
	for _, d := range models.AllDifficulties {
		fmt.Fprintf(w, "  %-18s %d\n", d, stats.ByDifficulty[d])
	}
	return nil
}
