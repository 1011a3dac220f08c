package adversarial

import (
	"sort"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Homoglyphs maps a lower-case ASCII letter to characters that render like it.
var Homoglyphs = map[rune][]rune{
	'a': {'а', 'ɑ', 'α', '@', '4'},
	'b': {'Ь', 'ḅ', '6'},
	'c': {'с', 'ⅽ', '('},
	'd': {'ԁ', 'ɗ'},
	'e': {'е', 'ė', '3'},
	'f': {'ƒ'},
	'g': {'ɡ', '9'},
	'h': {'һ', 'ḣ'},
	'i': {'і', 'ⅰ', '1', '!', 'l'},
	'j': {'ј'},
	'k': {'к', 'κ'},
	'l': {'ⅼ', '1', 'I', '|'},
	'm': {'м', 'ṁ'},
	'n': {'п', 'ṅ'},
	'o': {'о', '0', 'Ο', 'ᴏ'},
	'p': {'р', 'ρ'},
	'q': {'ԛ'},
	'r': {'г', 'ŕ'},
	's': {'ѕ', '$', '5'},
	't': {'т', '+'},
	'u': {'υ', 'ս', 'μ'},
	'v': {'ν', 'ѵ'},
	'w': {'ω', 'ѡ'},
	'x': {'х', '×'},
	'y': {'у', 'γ'},
	'z': {'ᴢ', '2'},
}

// Invisibles are the zero-width characters used by the injection attack.
var Invisibles = []rune{'\u200b', '\u200c', '\u200d', '\ufeff'}

// foldTable maps every non-ASCII homoglyph, and its upper-case form, back to
// the letter it imitates. ASCII look-alikes such as '0' or '$' are left alone.
var foldTable = buildFoldTable()

func buildFoldTable() map[rune]rune {
	letters := make([]rune, 0, len(Homoglyphs))
	for l := range Homoglyphs {
		letters = append(letters, l)
	}
	sort.Slice(letters, func(i, j int) bool { return letters[i] < letters[j] })

	table := make(map[rune]rune)
	add := func(from, to rune) {
		if from <= unicode.MaxASCII {
			return
		}
		if _, ok := table[from]; !ok {
			table[from] = to
		}
	}
	for _, l := range letters {
		for _, g := range Homoglyphs[l] {
			add(g, l)
			if up := unicode.ToUpper(g); up != g {
				add(up, unicode.ToUpper(l))
			}
		}
	}
	return table
}

func isInvisible(r rune) bool {
	switch r {
	case '\u200b', '\u200c', '\u200d', '\u2060', '\ufeff', '\u00ad':
		return true
	}
	return false
}

// Sanitize undoes character-level attacks: it strips zero-width characters,
// applies NFKC normalisation and folds known homoglyphs to ASCII.
func Sanitize(text string) string {
	t := transform.Chain(
		runes.Remove(runes.Predicate(isInvisible)),
		norm.NFKC,
		runes.Map(func(r rune) rune {
			if folded, ok := foldTable[r]; ok {
				return folded
			}
			return r
		}),
	)
	out, _, err := transform.String(t, text)
	if err != nil {
		return text
	}
	return out
}
