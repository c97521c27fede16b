package feedback

import (
	"strings"

	"github.com/hyperjump/kaiwa/internal/models"
	"github.com/hyperjump/kaiwa/pkg/utils"
)

// FillerWords are counted as case-insensitive substrings, so "like" also matches "likely".
var FillerWords = []string{"um", "uh", "like", "you know", "basically", "actually", "literally", "honestly"}

const (
	wordsPerMinute = 150
	briefBelow     = 50
	longAbove      = 350
)

// Delivery computes word count, filler count, estimated speaking time and pacing for text.
func Delivery(text string) models.DeliveryMetrics {
	wc := utils.WordCount(text)
	lower := strings.ToLower(text)
	fillers := 0
	for _, f := range FillerWords {
		fillers += strings.Count(lower, f)
	}
	pacing := models.PacingGood
	switch {
	case wc < briefBelow:
		pacing = models.PacingTooBrief
	case wc > longAbove:
		pacing = models.PacingTooLong
	}
	return models.DeliveryMetrics{
		WordCount:           wc,
		FillerWords:         fillers,
		SpeakingTimeSeconds: float64(wc) / wordsPerMinute * 60,
		Pacing:              pacing,
	}
}
