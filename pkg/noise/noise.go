// Package noise produces the corrupted inputs fed into the first stage of the
// translation chain.
package noise

import (
	"math"
	"math/rand/v2"
	"slices"
	"strings"
	"unicode"

	"github.com/agentic-turing/atm/pkg/atmerr"
)

// TypoKind names a single corruption applied to a word
type TypoKind string

const (
	TypoSwap       TypoKind = "swap"
	TypoDrop       TypoKind = "drop"
	TypoDouble     TypoKind = "double"
	TypoSubstitute TypoKind = "substitute"
)

var typoKinds = []TypoKind{TypoSwap, TypoDrop, TypoDouble, TypoSubstitute}

var keyboardNeighbours = map[rune]string{
	'q': "wa", 'w': "qes", 'e': "wrd", 'r': "etf", 't': "ryg", 'y': "tuh", 'u': "yij", 'i': "uok", 'o': "ipl", 'p': "ol",
	'a': "qsz", 's': "adwx", 'd': "sfec", 'f': "dgrv", 'g': "fhtb", 'h': "gjyn", 'j': "hkum", 'k': "jlim", 'l': "kop",
	'z': "asx", 'x': "zsdc", 'c': "xdfv", 'v': "cfgb", 'b': "vghn", 'n': "bhjm", 'm': "njk",
}

// Injector corrupts text with spelling mistakes. The same seed and level always
// yield the same output.
type Injector struct {
	Seed int64
}

// Inject corrupts round(level% of eligible words). Eligible words have at least
// three letters. Level 0 returns text unchanged.
func (in Injector) Inject(text string, level int) string {
	if level <= 0 {
		return text
	}
	if level > 100 {
		level = 100
	}

	words := strings.Fields(text)
	var eligible []int
	for i, w := range words {
		if letterCount(w) >= 3 {
			eligible = append(eligible, i)
		}
	}

	n := int(math.Round(float64(level) / 100 * float64(len(eligible))))
	if n == 0 {
		return text
	}

	rng := rand.New(rand.NewPCG(uint64(in.Seed), uint64(level)))
	perm := rng.Perm(len(eligible))
	chosen := make([]int, 0, n)
	for _, p := range perm[:n] {
		chosen = append(chosen, eligible[p])
	}
	slices.Sort(chosen)

	for _, idx := range chosen {
		kind := typoKinds[rng.IntN(len(typoKinds))]
		words[idx] = applyTypo(words[idx], kind, rng)
	}
	return strings.Join(words, " ")
}

func letterCount(word string) int {
	n := 0
	for _, r := range word {
		if unicode.IsLetter(r) {
			n++
		}
	}
	return n
}

// applyTypo corrupts the letter core of word, keeping leading and trailing
// punctuation in place.
func applyTypo(word string, kind TypoKind, rng *rand.Rand) string {
	runes := []rune(word)
	start, end := 0, len(runes)
	for start < end && !unicode.IsLetter(runes[start]) {
		start++
	}
	for end > start && !unicode.IsLetter(runes[end-1]) {
		end--
	}
	core := slices.Clone(runes[start:end])
	if len(core) < 2 {
		return word
	}

	corrupted := corrupt(core, kind, rng)
	if string(corrupted) == string(core) {
		corrupted = corrupt(core, TypoDrop, rng)
	}

	out := make([]rune, 0, len(runes)+1)
	out = append(out, runes[:start]...)
	out = append(out, corrupted...)
	out = append(out, runes[end:]...)
	return string(out)
}

func corrupt(core []rune, kind TypoKind, rng *rand.Rand) []rune {
	out := slices.Clone(core)
	switch kind {
	case TypoSwap:
		i := rng.IntN(len(out) - 1)
		out[i], out[i+1] = out[i+1], out[i]
	case TypoDrop:
		i := rng.IntN(len(out))
		out = slices.Delete(out, i, i+1)
	case TypoDouble:
		i := rng.IntN(len(out))
		out = slices.Insert(out, i, out[i])
	case TypoSubstitute:
		i := rng.IntN(len(out))
		lower := unicode.ToLower(out[i])
		neighbours, ok := keyboardNeighbours[lower]
		if !ok {
			out = slices.Delete(out, i, i+1)
			break
		}
		repl := rune(neighbours[rng.IntN(len(neighbours))])
		if unicode.IsUpper(out[i]) {
			repl = unicode.ToUpper(repl)
		}
		out[i] = repl
	}
	return out
}

// Inputs returns the input for every level in levels. Hand-written inputs win;
// the others are generated from original.
func (in Injector) Inputs(original string, levels []int, configured map[int]string) map[int]string {
	inputs := make(map[int]string, len(levels))
	for _, level := range levels {
		if text, ok := configured[level]; ok && text != "" {
			inputs[level] = text
			continue
		}
		inputs[level] = in.Inject(original, level)
	}
	return inputs
}

// ValidateLevel checks that level is one of the configured levels
func ValidateLevel(level int, levels []int) error {
	if slices.Contains(levels, level) {
		return nil
	}
	return atmerr.New(atmerr.KindInvalidNoiseLevel, "invalid noise level", atmerr.Details{
		"noise_level":  level,
		"valid_levels": levels,
	})
}

// ErrorRate measures the share of words in noisy that differ from the word at
// the same position in original, as a percentage.
func ErrorRate(original, noisy string) float64 {
	a, b := strings.Fields(original), strings.Fields(noisy)
	if len(a) == 0 {
		return 0
	}
	diff := 0
	for i := range a {
		if i >= len(b) || a[i] != b[i] {
			diff++
		}
	}
	return float64(diff) / float64(len(a)) * 100
}
