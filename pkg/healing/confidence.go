// Package healing scores how far a chain output can be trusted, classifies
// what went wrong with it and tries to repair it.
package healing

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/agentic-turing/atm/pkg/stats"
	"github.com/agentic-turing/atm/pkg/textsim"
)

// Component weights of the overall confidence.
const (
	lexicalWeight    = 0.2
	semanticWeight   = 0.4
	structuralWeight = 0.2
	fluencyWeight    = 0.2

	reviewThreshold      = 0.7
	uncertaintyThreshold = 0.2
	lowComponent         = 0.6
)

var stopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "is": {}, "are": {}, "was": {}, "were": {},
	"and": {}, "or": {}, "to": {}, "in": {}, "on": {},
}

// Confidence scores a translation along four independent components.
type Confidence struct {
	Overall     float64 `json:"overall_confidence"`
	Lexical     float64 `json:"lexical_confidence"`
	Semantic    float64 `json:"semantic_confidence"`
	Structural  float64 `json:"structural_confidence"`
	Fluency     float64 `json:"fluency_confidence"`
	Uncertainty float64 `json:"uncertainty_estimate"`
	NeedsReview bool    `json:"needs_review"`
	Explanation string  `json:"confidence_explanation"`
}

// Estimator computes Confidence scores.
type Estimator struct {
	MaxFeatures int
	MinN, MaxN  int
}

// NewEstimator returns an estimator using 1-3 gram TF-IDF vectors.
func NewEstimator() *Estimator {
	return &Estimator{MaxFeatures: 1000, MinN: 1, MaxN: 3}
}

// Estimate scores translated against source.
func (e *Estimator) Estimate(source, translated string) Confidence {
	c := Confidence{
		Lexical:    lexicalConfidence(source, translated),
		Semantic:   e.semanticConfidence(source, translated),
		Structural: structuralConfidence(source, translated),
		Fluency:    fluencyConfidence(translated),
	}
	c.Overall = lexicalWeight*c.Lexical + semanticWeight*c.Semantic +
		structuralWeight*c.Structural + fluencyWeight*c.Fluency
	c.Uncertainty = stats.Std([]float64{c.Lexical, c.Semantic, c.Structural, c.Fluency}, 0)
	c.NeedsReview = c.Overall < reviewThreshold || c.Uncertainty > uncertaintyThreshold

	var low []string
	if c.Lexical < lowComponent {
		low = append(low, "lexical coverage")
	}
	if c.Semantic < lowComponent {
		low = append(low, "semantic similarity")
	}
	if c.Structural < lowComponent {
		low = append(low, "structural integrity")
	}
	if c.Fluency < lowComponent {
		low = append(low, "fluency")
	}
	if len(low) == 0 {
		c.Explanation = fmt.Sprintf("High confidence (%s): all metrics satisfactory", percent(c.Overall))
	} else {
		c.Explanation = fmt.Sprintf("Confidence %s: concerns in %s", percent(c.Overall), strings.Join(low, ", "))
	}
	return c
}

func percent(v float64) string {
	return fmt.Sprintf("%.2f%%", v*100)
}

// lexicalConfidence is the coverage of source content words plus a bonus
// for a similar word count.
func lexicalConfidence(source, target string) float64 {
	sourceWords := textsim.WordSet(source)
	targetWords := textsim.WordSet(target)
	if len(sourceWords) == 0 {
		return 0.5
	}

	content, covered := 0, 0
	for w := range sourceWords {
		if _, stop := stopWords[w]; stop {
			continue
		}
		content++
		if _, ok := targetWords[w]; ok {
			covered++
		}
	}
	if content == 0 {
		return 0.7
	}

	coverage := float64(covered) / float64(content)
	lengthRatio := float64(min(len(sourceWords), len(targetWords))) / float64(max(len(sourceWords), len(targetWords), 1))
	return 0.7*coverage + 0.3*lengthRatio
}

func (e *Estimator) semanticConfidence(source, target string) float64 {
	vectors, err := textsim.NewTFIDF(e.MinN, e.MaxN, e.MaxFeatures).FitTransform([]string{source, target})
	if err != nil {
		return 0.5
	}
	sim, err := textsim.CosineSimilarity(vectors[0], vectors[1])
	if err != nil {
		return 0.5
	}
	return sim
}

func sentenceCount(s string) int {
	return max(1, strings.Count(s, ".")+strings.Count(s, "!")+strings.Count(s, "?"))
}

// lengthRatio is the rune length of target relative to source, 1 for an
// empty source.
func lengthRatio(source, target string) float64 {
	n := utf8.RuneCountInString(source)
	if n == 0 {
		return 1
	}
	return float64(utf8.RuneCountInString(target)) / float64(n)
}

func structuralConfidence(source, target string) float64 {
	s, t := sentenceCount(source), sentenceCount(target)
	sentenceRatio := float64(min(s, t)) / float64(max(s, t))

	ratio := lengthRatio(source, target)
	lengthScore := 1 - abs(1-ratio)*0.5
	lengthScore = max(0, min(1, lengthScore))
	return 0.5*sentenceRatio + 0.5*lengthScore
}

// fluencyConfidence penalises repeated words, implausible word lengths and
// missing sentence punctuation.
func fluencyConfidence(text string) float64 {
	words := strings.Fields(text)
	if len(words) == 0 {
		return 0
	}

	counts := make(map[string]int, len(words))
	maxRepeat, totalLen := 0, 0
	for _, w := range words {
		counts[w]++
		maxRepeat = max(maxRepeat, counts[w])
		totalLen += utf8.RuneCountInString(w)
	}
	repeatPenalty := 1 - min(float64(maxRepeat)/5, 0.5)

	avgLen := float64(totalLen) / float64(len(words))
	lengthScore := 0.7
	if avgLen >= 3 && avgLen <= 10 {
		lengthScore = 1
	}

	punctScore := 0.8
	if strings.ContainsAny(text, ".!?") {
		punctScore = 1
	}
	return repeatPenalty * lengthScore * punctScore
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
