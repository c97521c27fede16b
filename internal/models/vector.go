// Package models defines the entities shared by retrieval, question banks, sessions and feedback.
package models

// Chunk is a bounded segment of source text produced by the chunker. Immutable once created.
type Chunk struct {
	ID      string `json:"id"`
	Source  string `json:"source"`
	Ordinal int    `json:"ordinal"`
	Text    string `json:"text"`
}

// Source labels for chunks and their vector records.
const (
	SourceResume     = "resume"
	SourceJobPosting = "job_posting"
)

// Metadata keys used on vector records. Records never carry keys outside this set.
const (
	MetaSource             = "source"
	MetaChunkIndex         = "chunk_index"
	MetaCategory           = "category"
	MetaSubcategory        = "subcategory"
	MetaDifficulty         = "difficulty"
	MetaTags               = "tags"
	MetaSampleAnswer       = "sample_answer"
	MetaEvaluationCriteria = "evaluation_criteria"
)

// Metadata is the fixed-key string map attached to a vector record.
type Metadata map[string]string

// Matches reports whether every key/value in filter is present in m with an equal value.
func (m Metadata) Matches(filter map[string]string) bool {
	for k, v := range filter {
		got, ok := m[k]
		if !ok || got != v {
			return false
		}
	}
	return true
}

// Clone returns a copy of m.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// VectorRecord is one entry of a namespace: an id unique within the namespace, its embedding,
// the embedded document text and its metadata.
type VectorRecord struct {
	ID       string    `json:"id"`
	Vector   []float32 `json:"vector,omitempty"`
	Document string    `json:"document"`
	Metadata Metadata  `json:"metadata,omitempty"`
}

// ScoredRecord is a query hit. Distance is always 1 - Similarity.
type ScoredRecord struct {
	Record     VectorRecord `json:"record"`
	Similarity float64      `json:"similarity"`
	Distance   float64      `json:"distance"`
}
