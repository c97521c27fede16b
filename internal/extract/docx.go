package extract

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"html"
	"io"
	"regexp"
	"strings"
)

const (
	docxDefaultBody  = "word/document.xml"
	docxContentTypes = "[Content_Types].xml"
	docxBodyType     = "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"
)

var (
	// paragraphTag matches one <w:p> element but not <w:pPr> and friends.
	paragraphTag = regexp.MustCompile(`(?s)<w:p[ >].*?</w:p>`)
	runTextTag   = regexp.MustCompile(`<w:t[^>]*>([^<]*)</w:t>`)
	overrideTag  = regexp.MustCompile(`<Override[^>]*/?>`)
	partNameAttr = regexp.MustCompile(`PartName="([^"]+)"`)
)

var errZipEntryMissing = errors.New("entry not found")

// extractDOCX returns the text of a .docx, one line per paragraph. Runs inside a paragraph are
// concatenated as stored, so section headings stay on their own lines for the chunker.
func extractDOCX(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("not a zip: %w", err)
	}
	body := docxBodyPath(zr)
	doc, err := readZipEntry(zr, body)
	if err != nil {
		return "", fmt.Errorf("%s: %w", body, err)
	}

	var lines []string
	for _, para := range paragraphTag.FindAllString(string(doc), -1) {
		var b strings.Builder
		for _, run := range runTextTag.FindAllStringSubmatch(para, -1) {
			b.WriteString(html.UnescapeString(run[1]))
		}
		if line := strings.TrimSpace(b.String()); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n"), nil
}

// docxBodyPath locates the main document part through [Content_Types].xml, falling back to
// word/document.xml.
func docxBodyPath(zr *zip.Reader) string {
	types, err := readZipEntry(zr, docxContentTypes)
	if err != nil {
		return docxDefaultBody
	}
	for _, override := range overrideTag.FindAllString(string(types), -1) {
		if !strings.Contains(override, `ContentType="`+docxBodyType+`"`) {
			continue
		}
		if m := partNameAttr.FindStringSubmatch(override); m != nil {
			return strings.TrimPrefix(m[1], "/")
		}
	}
	return docxDefaultBody
}

func readZipEntry(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return nil, errZipEntryMissing
}
