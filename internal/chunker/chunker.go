// Package chunker splits résumé and job-posting text into bounded, overlapping segments for embedding.
package chunker

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"github.com/hyperjump/kaiwa/internal/models"
)

// Default window sizes, in words.
const (
	DefaultChunkSize        = 500
	DefaultChunkOverlap     = 50
	DefaultSectionMaxWords  = 600
	DefaultSectionChunkSize = 400
)

// sectionHeaders are the recognized section openers, matched case-insensitively at line start.
var sectionHeaders = []string{
	"EXPERIENCE",
	"EDUCATION",
	"SKILLS",
	"SUMMARY",
	"ABOUT",
	"REQUIREMENTS",
	"RESPONSIBILITIES",
	"QUALIFICATIONS",
}

// capsHeader matches "ALL CAPS WORDS:" style headers.
var capsHeader = regexp.MustCompile(`^[A-Z][A-Z\s]{3,}:`)

// Chunker splits text into overlapping word-based chunks.
type Chunker struct {
	chunkSize        int
	chunkOverlap     int
	sectionMaxWords  int
	sectionChunkSize int
}

// NewChunker creates a chunker with the given size and overlap (in words).
// Sections longer than DefaultSectionMaxWords are re-chunked with DefaultSectionChunkSize.
func NewChunker(chunkSize, chunkOverlap int) *Chunker {
	return &Chunker{
		chunkSize:        chunkSize,
		chunkOverlap:     chunkOverlap,
		sectionMaxWords:  DefaultSectionMaxWords,
		sectionChunkSize: DefaultSectionChunkSize,
	}
}

// WithSections overrides the section-aware limits. Non-positive values keep the current setting.
func (c *Chunker) WithSections(maxWords, chunkSize int) *Chunker {
	if maxWords > 0 {
		c.sectionMaxWords = maxWords
	}
	if chunkSize > 0 {
		c.sectionChunkSize = chunkSize
	}
	return c
}

// Chunk splits text into chunks of at most chunkSize words; consecutive chunks share chunkOverlap words.
func (c *Chunker) Chunk(source, text string) []models.Chunk {
	return c.window(source, strings.Fields(text), c.chunkSize, 0)
}

// ChunkBySections splits text on section headers first. Sections over the section limit are
// word-window chunked; the rest become one chunk each. Ordinals run across all sections.
func (c *Chunker) ChunkBySections(source, text string) []models.Chunk {
	var chunks []models.Chunk
	for _, section := range SplitSections(text) {
		words := strings.Fields(section)
		if len(words) > c.sectionMaxWords {
			chunks = append(chunks, c.window(source, words, c.sectionChunkSize, len(chunks))...)
			continue
		}
		chunks = append(chunks, newChunk(source, len(chunks), strings.Join(words, " ")))
	}
	return chunks
}

func (c *Chunker) window(source string, words []string, size, firstOrdinal int) []models.Chunk {
	if len(words) == 0 {
		return nil
	}
	if size <= 0 {
		size = DefaultChunkSize
	}
	step := size - c.chunkOverlap
	if step <= 0 {
		step = 1
	}
	chunks := make([]models.Chunk, 0, len(words)/step+1)
	for i := 0; i < len(words); i += step {
		end := i + size
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, newChunk(source, firstOrdinal+len(chunks), strings.Join(words[i:end], " ")))
		if end >= len(words) {
			break
		}
	}
	return chunks
}

func newChunk(source string, ordinal int, text string) models.Chunk {
	return models.Chunk{
		ID:      fmt.Sprintf("%s_%d_%s", source, ordinal, uuid.New().String()[:8]),
		Source:  source,
		Ordinal: ordinal,
		Text:    text,
	}
}

// SplitSections breaks text before every line that opens a recognized section.
// Parts are trimmed and empty parts dropped.
func SplitSections(text string) []string {
	lines := strings.Split(text, "\n")
	var parts []string
	var cur strings.Builder
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			parts = append(parts, s)
		}
		cur.Reset()
	}
	for i, line := range lines {
		if i > 0 && isSectionHeader(line) {
			flush()
		}
		if cur.Len() > 0 {
			cur.WriteByte('\n')
		}
		cur.WriteString(line)
	}
	flush()
	return parts
}

func isSectionHeader(line string) bool {
	trimmed := strings.TrimLeftFunc(line, unicode.IsSpace)
	upper := strings.ToUpper(trimmed)
	for _, h := range sectionHeaders {
		if strings.HasPrefix(upper, h) {
			return true
		}
	}
	return capsHeader.MatchString(trimmed)
}

// Preprocess normalizes text before chunking (trim, collapse whitespace runs within a line).
func Preprocess(text string) string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	for i, line := range lines {
		lines[i] = strings.Join(strings.Fields(line), " ")
	}
	return strings.Join(lines, "\n")
}
