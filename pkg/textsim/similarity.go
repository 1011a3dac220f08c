package textsim

import (
	"math"
	"strings"
	"unicode"
)

// MaxLengthDiffRatio is the relative word-count difference at which
// LengthSimilarity reaches zero.
const MaxLengthDiffRatio = 0.3

// TextSimilarity is the character-level sequence ratio of the lower-cased texts.
func TextSimilarity(a, b string) float64 {
	return NewSequenceMatcher([]rune(strings.ToLower(a)), []rune(strings.ToLower(b))).Ratio()
}

// WordSet returns the distinct lower-cased whitespace-separated words of text.
func WordSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(text)) {
		set[w] = struct{}{}
	}
	return set
}

// WordOverlap is the Jaccard similarity of the two texts' word sets. It is 0
// when either text has no words.
func WordOverlap(a, b string) float64 {
	wa, wb := WordSet(a), WordSet(b)
	if len(wa) == 0 || len(wb) == 0 {
		return 0
	}
	inter := 0
	for w := range wa {
		if _, ok := wb[w]; ok {
			inter++
		}
	}
	union := len(wa) + len(wb) - inter
	return float64(inter) / float64(union)
}

func stripPunct(text string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) {
			return ' '
		}
		return r
	}, strings.ToLower(text))
}

// LengthSimilarity compares word counts after punctuation is removed. The
// score falls linearly from 1 to 0 as the difference grows to
// MaxLengthDiffRatio of the original length. An empty original scores 0.
func LengthSimilarity(original, candidate string) float64 {
	lo := len(strings.Fields(stripPunct(original)))
	lc := len(strings.Fields(stripPunct(candidate)))
	if lo == 0 {
		return 0
	}
	ratio := math.Abs(float64(lo-lc)) / (float64(lo) * MaxLengthDiffRatio)
	return 1 - math.Min(1, ratio)
}
