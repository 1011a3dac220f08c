package adversarial

import (
	"context"
	"slices"
	"strings"
	"testing"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-turing/atm/pkg/analysis"
	"github.com/agentic-turing/atm/pkg/report"
)

const sentence = "The artificial intelligence system can efficiently process natural language and understand complex semantic relationships within textual data."

func TestSanitize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"cyrillic homoglyphs", "Тһе ѕуѕтем", "The system"},
		{"zero width", "sys\u200btem\ufeff works\u2060", "system works"},
		{"compatibility forms", "ﬁle ＡＢＣ", "file ABC"},
		{"ascii look-alikes kept", "h3ll0 $5", "h3ll0 $5"},
		{"hebrew untouched", "שלום עולם", "שלום עולם"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Sanitize(tt.in))
		})
	}
}

func TestGeneratorDeterministic(t *testing.T) {
	a := NewGenerator(7).All(sentence)
	b := NewGenerator(7).All(sentence)
	if diff := cmp.Diff(a, b); diff != "" {
		t.Fatalf("same seed produced different attacks (-first +second):\n%s", diff)
	}
	require.Len(t, a, 8)
	types := make([]AttackType, len(a))
	for i, ex := range a {
		types[i] = ex.AttackType
	}
	assert.Equal(t, []AttackType{
		AttackHomoglyph, AttackHomoglyph, AttackInvisible, AttackTyposquat,
		AttackSynonym, AttackSynonym, AttackPermutation, AttackPunctuation,
	}, types)
}

func TestHomoglyph(t *testing.T) {
	g := NewGenerator(1)

	none := g.Homoglyph("Hello World", 0)
	assert.Equal(t, "Hello World", none.AdversarialText)
	assert.False(t, none.ExpectedToFool)

	all := g.Homoglyph("Hello World", 1)
	assert.Len(t, all.Changes, 10)
	assert.True(t, all.ExpectedToFool)
	assert.Equal(t, 11, utf8.RuneCountInString(all.AdversarialText))
	assert.Equal(t, ' ', []rune(all.AdversarialText)[5])
}

func TestInvisible(t *testing.T) {
	ex := NewGenerator(1).Invisible("abc def", 1)
	assert.Equal(t, 14, utf8.RuneCountInString(ex.AdversarialText))
	assert.Len(t, ex.Changes, 7)
	assert.Equal(t, "abc def", Sanitize(ex.AdversarialText))
}

func TestTyposquat(t *testing.T) {
	g := NewGenerator(3)
	assert.Equal(t, sentence, g.Typosquat(sentence, 0).AdversarialText)

	ex := g.Typosquat(sentence, 1)
	assert.Equal(t, len(strings.Fields(sentence)), len(strings.Fields(ex.AdversarialText)))
	for _, change := range ex.Changes {
		assert.Contains(t, change, "→")
	}
}

func TestSynonym(t *testing.T) {
	ex := NewGenerator(1).Synonym("Good data.", 1)
	words := strings.Fields(ex.AdversarialText)
	require.Len(t, words, 2)

	first := strings.ToLower(words[0])
	assert.Contains(t, synonyms["good"], first)
	assert.True(t, unicode.IsUpper([]rune(words[0])[0]))
	assert.True(t, strings.HasSuffix(words[1], "."))
	assert.Contains(t, synonyms["data"], strings.TrimSuffix(words[1], "."))
	assert.Len(t, ex.Changes, 2)
}

func TestPermute(t *testing.T) {
	g := NewGenerator(5)
	short := g.Permute("one two three", 2)
	assert.Equal(t, "one two three", short.AdversarialText)
	assert.Zero(t, short.PerturbationStrength)

	ex := g.Permute(sentence, 2)
	got, want := strings.Fields(ex.AdversarialText), strings.Fields(sentence)
	slices.Sort(got)
	slices.Sort(want)
	assert.Equal(t, want, got)
	assert.LessOrEqual(t, len(ex.Changes), 3)
}

func TestPunctuate(t *testing.T) {
	ex := NewGenerator(1).Punctuate(`He said "hi". Then left, quickly.`)
	assert.Equal(t, `He said 'hi',, Then left,, quickly.`, ex.AdversarialText)
	assert.Equal(t, []string{"Changed periods to commas", "Doubled commas", "Changed quote types"}, ex.Changes)
	assert.InDelta(t, 0.6, ex.PerturbationStrength, 1e-12)

	plain := NewGenerator(1).Punctuate("no marks here")
	assert.Empty(t, plain.Changes)
	assert.Zero(t, plain.PerturbationStrength)
}

func TestEffectiveness(t *testing.T) {
	assert.InDelta(t, 0, Effectiveness(Example{OriginalText: "alpha beta", AdversarialText: "alpha beta"}), 1e-12)
	assert.InDelta(t, 1, Effectiveness(Example{OriginalText: "alpha beta", AdversarialText: "gamma delta"}), 1e-12)
	assert.Equal(t, 0.25, Effectiveness(Example{OriginalText: "!", AdversarialText: "?", PerturbationStrength: 0.25}))
}

func TestScore(t *testing.T) {
	t.Run("untouched", func(t *testing.T) {
		var examples []Example
		for _, at := range AttackTypes {
			examples = append(examples, Example{OriginalText: "alpha beta", AdversarialText: "alpha beta", AttackType: at})
		}
		r := Score(examples)
		assert.InDelta(t, 100, r.Overall, 1e-9)
		assert.Equal(t, "A", r.Grade)
		assert.Equal(t, 0.1, r.CertifiedRadius)
		assert.Zero(t, r.VulnerabilityCount)
		assert.Equal(t, []string{"System shows good robustness"}, r.Recommendations)
	})

	t.Run("broken", func(t *testing.T) {
		var examples []Example
		for _, at := range AttackTypes {
			examples = append(examples, Example{
				OriginalText: "alpha beta", AdversarialText: "gamma delta", AttackType: at,
				PerturbationStrength: 0.2, Changes: []string{"x"}, ExpectedToFool: true,
			})
		}
		r := Score(examples)
		assert.InDelta(t, 0, r.Overall, 1e-9)
		assert.Equal(t, "F", r.Grade)
		assert.Equal(t, 6, r.VulnerabilityCount)
		assert.InDelta(t, 0.2, r.CertifiedRadius, 1e-12)
		assert.Equal(t, []string{
			"Add Unicode normalization preprocessing",
			"Implement paraphrase-aware translation",
			"Improve punctuation handling robustness",
			"Consider adversarial training",
		}, r.Recommendations)
	})
}

func TestGrade(t *testing.T) {
	for score, want := range map[float64]string{95: "A", 90: "A", 85: "B", 70: "C", 65: "D", 10: "F"} {
		assert.Equal(t, want, grade(score), "score %v", score)
	}
}

func TestAnalyze(t *testing.T) {
	e := &Evaluator{
		Results:   &analysis.Results{OriginalSentence: sentence},
		Generator: NewGenerator(DefaultSeed),
		Now:       func() time.Time { return time.Date(2025, 11, 27, 0, 0, 0, 0, time.UTC) },
	}
	rep, err := e.Analyze(context.Background())
	require.NoError(t, err)

	assert.Empty(t, rep.Error)
	assert.Len(t, rep.AdversarialExamples, 8)
	require.NotNil(t, rep.RobustnessScore)
	require.NotNil(t, rep.Sanitized)
	assert.Equal(t, 2, rep.AttackAnalysis[AttackHomoglyph].Count)
	assert.Equal(t, 2, rep.AttackAnalysis[AttackSynonym].Count)
	assert.Len(t, rep.AttackAnalysis, len(AttackTypes))
	assert.GreaterOrEqual(t, rep.Sanitized.Character, rep.RobustnessScore.Character)
	assert.Equal(t, rep.RobustnessScore.Overall, rep.Result.Metric1)
	assert.Equal(t, rep.Sanitized.Overall, rep.Result.Metric2)

	for _, ex := range rep.AdversarialExamples {
		assert.LessOrEqual(t, utf8.RuneCountInString(ex.Original), exampleTextLimit+3)
		assert.True(t, strings.HasSuffix(ex.Original, "..."))
	}

	path, err := Save(t.TempDir(), rep)
	require.NoError(t, err)
	var raw map[string]any
	require.NoError(t, report.ReadJSON(path, &raw))
	assert.Contains(t, raw, "attack_analysis")
	assert.Contains(t, raw, "robustness_score")
}

func TestAnalyzeEmptyOriginal(t *testing.T) {
	rep, err := NewEvaluator(&analysis.Results{}, 1).Analyze(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "original sentence is empty", rep.Error)
	assert.Nil(t, rep.RobustnessScore)
}
