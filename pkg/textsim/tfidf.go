// Package textsim implements the local text similarity metrics used to measure
// semantic drift: a TF-IDF vectorizer, cosine distance, a Ratcliff/Obershelp
// sequence matcher and word-level overlap and length scores.
package textsim

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/pkg/errors"
)

// TFIDF is a term frequency / inverse document frequency vectorizer.
//
// Tokens are runs of at least two word characters after lower-casing.
// Features are the n-grams in [MinN, MaxN]; when MaxFeatures is positive only
// the most frequent terms across the corpus are kept. Rows are L2 normalised.
type TFIDF struct {
	MinN        int
	MaxN        int
	MaxFeatures int

	vocabulary map[string]int
	features   []string
	idf        []float64
}

// NewTFIDF returns a vectorizer over n-grams in [minN, maxN] keeping at most
// maxFeatures terms (0 keeps all).
func NewTFIDF(minN, maxN, maxFeatures int) *TFIDF {
	return &TFIDF{MinN: minN, MaxN: maxN, MaxFeatures: maxFeatures}
}

// Tokenize splits text into lower-cased tokens of two or more word characters.
func Tokenize(text string) []string {
	var tokens []string
	var current []rune
	flush := func() {
		if len(current) >= 2 {
			tokens = append(tokens, string(current))
		}
		current = current[:0]
	}
	for _, r := range strings.ToLower(text) {
		if isWordRune(r) {
			current = append(current, r)
			continue
		}
		flush()
	}
	flush()
	return tokens
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsNumber(r)
}

func (v *TFIDF) ngrams(text string) []string {
	tokens := Tokenize(text)
	minN, maxN := v.MinN, v.MaxN
	if minN < 1 {
		minN = 1
	}
	if maxN < minN {
		maxN = minN
	}

	var grams []string
	for n := minN; n <= maxN; n++ {
		for i := 0; i+n <= len(tokens); i++ {
			grams = append(grams, strings.Join(tokens[i:i+n], " "))
		}
	}
	return grams
}

// FitTransform learns the vocabulary and idf weights from texts and returns
// one normalised vector per text.
func (v *TFIDF) FitTransform(texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, errors.New("cannot vectorize an empty corpus")
	}

	counts := make([]map[string]int, len(texts))
	termFreq := make(map[string]int)
	docFreq := make(map[string]int)
	for i, text := range texts {
		counts[i] = make(map[string]int)
		for _, gram := range v.ngrams(text) {
			counts[i][gram]++
			termFreq[gram]++
		}
		for gram := range counts[i] {
			docFreq[gram]++
		}
	}
	if len(termFreq) == 0 {
		return nil, errors.New("empty vocabulary; texts contain no terms")
	}

	terms := make([]string, 0, len(termFreq))
	for term := range termFreq {
		terms = append(terms, term)
	}
	sort.Strings(terms)
	if v.MaxFeatures > 0 && len(terms) > v.MaxFeatures {
		sort.SliceStable(terms, func(i, j int) bool {
			return termFreq[terms[i]] > termFreq[terms[j]]
		})
		terms = terms[:v.MaxFeatures]
		sort.Strings(terms)
	}

	n := float64(len(texts))
	v.features = terms
	v.vocabulary = make(map[string]int, len(terms))
	v.idf = make([]float64, len(terms))
	for i, term := range terms {
		v.vocabulary[term] = i
		v.idf[i] = math.Log((1+n)/(1+float64(docFreq[term]))) + 1
	}

	matrix := make([][]float64, len(texts))
	for i := range texts {
		row := make([]float64, len(terms))
		for gram, c := range counts[i] {
			if idx, ok := v.vocabulary[gram]; ok {
				row[idx] = float64(c) * v.idf[idx]
			}
		}
		normalize(row)
		matrix[i] = row
	}
	return matrix, nil
}

// Features returns the learned terms in column order.
func (v *TFIDF) Features() []string {
	return v.features
}

func normalize(row []float64) {
	var sum float64
	for _, x := range row {
		sum += x * x
	}
	if sum == 0 {
		return
	}
	norm := math.Sqrt(sum)
	for i := range row {
		row[i] /= norm
	}
}

// CosineSimilarity returns the cosine of the angle between a and b. A zero
// vector has similarity 0 with everything.
func CosineSimilarity(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, errors.Errorf("vector dimensions mismatch: %d != %d", len(a), len(b))
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), nil
}

// CosineDistance is 1 - CosineSimilarity.
func CosineDistance(a, b []float64) (float64, error) {
	sim, err := CosineSimilarity(a, b)
	if err != nil {
		return 0, err
	}
	return 1 - sim, nil
}

// PairDistance fits a vectorizer on the two texts and returns their cosine distance.
func PairDistance(a, b string, minN, maxN, maxFeatures int) (float64, error) {
	matrix, err := NewTFIDF(minN, maxN, maxFeatures).FitTransform([]string{a, b})
	if err != nil {
		return 0, err
	}
	return CosineDistance(matrix[0], matrix[1])
}
