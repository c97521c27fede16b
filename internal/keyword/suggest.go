package keyword

import (
	"sort"
	"strings"
)

// Suggest returns query with every term that is absent from the question text dictionary
// replaced by the closest known term within maxDistance edits, preferring frequent terms.
// The second result reports whether anything changed.
func (q *QuestionIndex) Suggest(query string, maxDistance int) (string, bool) {
	if maxDistance <= 0 {
		maxDistance = 2
	}
	dict, err := q.terms("question")
	if err != nil || len(dict) == 0 {
		return query, false
	}
	known := make([]string, 0, len(dict))
	for t := range dict {
		known = append(known, t)
	}
	sort.Strings(known)

	terms := tokenizeQuery(query)
	changed := false
	for i, term := range terms {
		if _, ok := dict[term]; ok {
			continue
		}
		best, bestDist, bestFreq := "", maxDistance+1, uint64(0)
		for _, cand := range known {
			if abs(len(cand)-len(term)) > maxDistance {
				continue
			}
			d := levenshtein(term, cand)
			if d < bestDist || (d == bestDist && dict[cand] > bestFreq) {
				best, bestDist, bestFreq = cand, d, dict[cand]
			}
		}
		if best != "" {
			terms[i] = best
			changed = true
		}
	}
	if !changed {
		return query, false
	}
	return strings.Join(terms, " "), true
}

// terms reads the dictionary of field with per-term document counts.
func (q *QuestionIndex) terms(field string) (map[string]uint64, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	fd, err := q.index.FieldDict(field)
	if err != nil {
		return nil, err
	}
	defer fd.Close()
	out := make(map[string]uint64)
	for {
		entry, err := fd.Next()
		if err != nil {
			return nil, err
		}
		if entry == nil {
			return out, nil
		}
		out[entry.Term] = entry.Count
	}
}

// levenshtein is the rune-wise edit distance between a and b.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}
	row := make([]int, len(rb)+1)
	for j := range row {
		row[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		diag := row[0]
		row[0] = i
		for j := 1; j <= len(rb); j++ {
			up := row[j]
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			row[j] = minInt(row[j]+1, row[j-1]+1, diag+cost)
			diag = up
		}
	}
	return row[len(rb)]
}

func minInt(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
