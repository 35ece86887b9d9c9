package classify

import (
	"context"
	"unicode/utf8"

	"github.com/groupguard/groupguard/automod/helpers"

	"github.com/abadojack/whatlanggo"
)

// Language identification using trigram statistics, fully in-process.
type WhatlangClassifier struct {
	// Detections with lower confidence are reported as unknown (""). Zero accepts any detection.
	MinConfidence float64
	// Text shorter than this many runes (after trimming) is reported as unknown.
	MinRunes int
}

func NewWhatlangClassifier() *WhatlangClassifier {
	return &WhatlangClassifier{
		MinConfidence: 0.0,
		MinRunes:      3,
	}
}

// Returns the ISO 639-1 code of the detected language, or "" if unknown. Links, mentions, and the like are
// ignored.
func (c *WhatlangClassifier) Classify(ctx context.Context, text string) (string, error) {
	text = helpers.NaturalText(text)
	if text == "" || utf8.RuneCountInString(text) < c.MinRunes {
		return "", nil
	}
	info := whatlanggo.Detect(text)
	if info.Lang < 0 || info.Confidence < c.MinConfidence {
		return "", nil
	}
	return info.Lang.Iso6391(), nil
}
