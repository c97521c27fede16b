package extract

import "github.com/lu4p/cat"

// extractWithCat handles OpenDocument text and RTF, detected from the content itself.
func extractWithCat(content []byte) (string, error) {
	return cat.FromBytes(content)
}
