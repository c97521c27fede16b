// Package extract turns uploaded résumés and job postings into plain text.
package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hyperjump/kaiwa/internal/models"
)

const collaboratorName = "extractor"

// Extractor extracts plain text from document files.
type Extractor struct{}

// NewExtractor returns a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract reads the file at path and returns its text content.
func (e *Extractor) Extract(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return e.ExtractBytes(content, strings.ToLower(filepath.Ext(path)))
}

// ExtractNamed extracts content using the extension of filename, as sent with an upload.
func (e *Extractor) ExtractNamed(filename string, content []byte) (string, error) {
	return e.ExtractBytes(content, strings.ToLower(filepath.Ext(filename)))
}

// ExtractBytes extracts text from content based on the given extension, which includes the
// leading dot (e.g. ".pdf"). Plain-text and unknown extensions are returned as UTF-8 text; parse
// failures are collaborator errors.
func (e *Extractor) ExtractBytes(content []byte, ext string) (string, error) {
	var (
		text string
		err  error
	)
	switch ext {
	case ".pdf":
		text, err = extractPDF(content)
	case ".docx":
		text, err = extractDOCX(content)
	case ".odt", ".rtf":
		text, err = extractWithCat(content)
	default:
		return extractPlain(content)
	}
	if err != nil {
		return "", models.NewCollaboratorError(collaboratorName, strings.TrimPrefix(ext, "."), err)
	}
	return strings.TrimSpace(text), nil
}

// Supported reports whether ext has a dedicated decoder.
func Supported(ext string) bool {
	switch strings.ToLower(ext) {
	case ".pdf", ".docx", ".odt", ".rtf", ".txt", ".md":
		return true
	}
	return false
}
