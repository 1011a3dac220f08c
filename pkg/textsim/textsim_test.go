package textsim

import (
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{"drops single characters", "A cat, a hat!", []string{"cat", "hat"}},
		{"keeps digits and underscore", "gpt_4o in 2024", []string{"gpt_4o", "in", "2024"}},
		{"unicode letters", "Le système fonctionne", []string{"le", "système", "fonctionne"}},
		{"hebrew", "המערכת עובדת", []string{"המערכת", "עובדת"}},
		{"empty", "  ", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Tokenize(tt.input))
		})
	}
}

func TestTFIDFUnigrams(t *testing.T) {
	v := NewTFIDF(1, 1, 0)
	matrix, err := v.FitTransform([]string{"a cat", "the cat sat"})
	require.NoError(t, err)

	assert.Equal(t, []string{"cat", "sat", "the"}, v.Features())
	require.Len(t, matrix, 2)
	assert.InDeltaSlice(t, []float64{1, 0, 0}, matrix[0], 1e-12)

	rare := math.Log(3.0/2.0) + 1
	norm := math.Sqrt(1 + 2*rare*rare)
	assert.InDeltaSlice(t, []float64{1 / norm, rare / norm, rare / norm}, matrix[1], 1e-12)

	dist, err := CosineDistance(matrix[0], matrix[1])
	require.NoError(t, err)
	assert.InDelta(t, 1-1/norm, dist, 1e-12)
}

func TestTFIDFNgramsAndMaxFeatures(t *testing.T) {
	v := NewTFIDF(1, 2, 0)
	_, err := v.FitTransform([]string{"red fox jumps"})
	require.NoError(t, err)
	assert.Equal(t, []string{"fox", "fox jumps", "jumps", "red", "red fox"}, v.Features())

	v = NewTFIDF(1, 1, 2)
	_, err = v.FitTransform([]string{"aa bb bb cc"})
	require.NoError(t, err)
	assert.Equal(t, []string{"aa", "bb"}, v.Features())
}

func TestTFIDFErrors(t *testing.T) {
	_, err := NewTFIDF(1, 1, 0).FitTransform(nil)
	assert.Error(t, err)

	_, err = NewTFIDF(1, 1, 0).FitTransform([]string{"a b c", "!"})
	assert.ErrorContains(t, err, "empty vocabulary")
}

func TestCosineDistance(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []float64
		expected float64
	}{
		{"identical", []float64{1, 2, 3}, []float64{1, 2, 3}, 0},
		{"orthogonal", []float64{1, 0, 0}, []float64{0, 1, 0}, 1},
		{"opposite", []float64{1, 0}, []float64{-1, 0}, 2},
		{"zero vector", []float64{0, 0}, []float64{1, 0}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := CosineDistance(tt.a, tt.b)
			require.NoError(t, err)
			assert.InDelta(t, tt.expected, d, 1e-12)
		})
	}

	_, err := CosineDistance([]float64{1}, []float64{1, 2})
	assert.ErrorContains(t, err, "dimensions mismatch")
}

func TestPairDistance(t *testing.T) {
	d, err := PairDistance("the system works", "The system works.", 1, 3, 1000)
	require.NoError(t, err)
	assert.InDelta(t, 0, d, 1e-12)

	d, err = PairDistance("the system works", "bananas are yellow", 1, 1, 500)
	require.NoError(t, err)
	assert.InDelta(t, 1, d, 1e-12)
}

func TestSequenceMatcherOpcodes(t *testing.T) {
	m := NewSequenceMatcher([]rune("qabxcd"), []rune("abycdf"))

	expected := []Opcode{
		{Tag: OpDelete, I1: 0, I2: 1, J1: 0, J2: 0},
		{Tag: OpEqual, I1: 1, I2: 3, J1: 0, J2: 2},
		{Tag: OpReplace, I1: 3, I2: 4, J1: 2, J2: 3},
		{Tag: OpEqual, I1: 4, I2: 6, J1: 3, J2: 5},
		{Tag: OpInsert, I1: 6, I2: 6, J1: 5, J2: 6},
	}
	if diff := cmp.Diff(expected, m.Opcodes()); diff != "" {
		t.Errorf("opcodes mismatch (-want +got):\n%s", diff)
	}
}

func TestSequenceMatcherMatchingBlocks(t *testing.T) {
	m := NewSequenceMatcher([]rune("abxcd"), []rune("abcd"))
	expected := []Match{{0, 0, 2}, {3, 2, 2}, {5, 4, 0}}
	assert.Equal(t, expected, m.MatchingBlocks())
	assert.InDelta(t, 8.0/9.0, m.Ratio(), 1e-12)
}

func TestSequenceMatcherWords(t *testing.T) {
	a := strings.Fields("the quick brown fox")
	b := strings.Fields("the slow brown fox")
	m := NewSequenceMatcher(a, b)

	assert.InDelta(t, 0.75, m.Ratio(), 1e-12)
	assert.Equal(t, Opcode{Tag: OpReplace, I1: 1, I2: 2, J1: 1, J2: 2}, m.Opcodes()[1])
}

func TestSequenceMatcherPopularElements(t *testing.T) {
	b := []rune(strings.Repeat("a", 250))
	// 'a' is popular in b so it can never anchor a match
	a := []rune("b" + strings.Repeat("a", 9))
	assert.Equal(t, 0.0, NewSequenceMatcher(a, b).Ratio())

	// a match at the window start still grows through popular elements
	a = []rune(strings.Repeat("a", 10))
	assert.InDelta(t, 20.0/260.0, NewSequenceMatcher(a, b).Ratio(), 1e-12)
}

func TestTextSimilarity(t *testing.T) {
	assert.InDelta(t, 8.0/9.0, TextSimilarity("hello", "helo"), 1e-12)
	assert.Equal(t, 1.0, TextSimilarity("Same Text", "same text"))
	assert.Equal(t, 1.0, TextSimilarity("", ""))
	assert.Equal(t, 0.0, TextSimilarity("abc", ""))
}

func TestWordOverlap(t *testing.T) {
	tests := []struct {
		name     string
		a, b     string
		expected float64
	}{
		{"partial", "the quick brown fox", "the lazy brown dog", 2.0 / 6.0},
		{"case insensitive", "The Cat", "the cat", 1},
		{"disjoint", "one two", "three four", 0},
		{"empty", "", "words", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, WordOverlap(tt.a, tt.b), 1e-12)
		})
	}
}

func TestLengthSimilarity(t *testing.T) {
	ten := "one two three four five six seven eight nine ten"
	tests := []struct {
		name     string
		a, b     string
		expected float64
	}{
		{"same length", ten, strings.ToUpper(ten), 1},
		{"two words shorter", ten, "one two three four five six seven eight", 1 - 2.0/3.0},
		{"punctuation ignored", "hello, world", "hello world !", 1},
		{"beyond max diff", ten, "one", 0},
		{"empty original", "", "text", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, LengthSimilarity(tt.a, tt.b), 1e-12)
		})
	}
}
