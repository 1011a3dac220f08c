// Package adversarial generates targeted perturbations of the input sentence,
// measures how far each one moves the text and undoes the character-level
// ones.
package adversarial

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"unicode"
	"unicode/utf8"
)

// AttackType names a perturbation strategy.
type AttackType string

const (
	AttackHomoglyph   AttackType = "homoglyph"
	AttackInvisible   AttackType = "invisible_injection"
	AttackTyposquat   AttackType = "typosquatting"
	AttackSynonym     AttackType = "synonym_substitution"
	AttackPermutation AttackType = "word_permutation"
	AttackPunctuation AttackType = "punctuation_manipulation"
)

// Category groups attack types for scoring.
type Category string

const (
	CategoryCharacter  Category = "character"
	CategoryWord       Category = "word"
	CategoryStructural Category = "structural"
)

// AttackTypes lists every attack in generation order.
var AttackTypes = []AttackType{
	AttackHomoglyph, AttackInvisible, AttackTyposquat,
	AttackSynonym, AttackPermutation, AttackPunctuation,
}

// Category returns the scoring group of t.
func (t AttackType) Category() Category {
	switch t {
	case AttackHomoglyph, AttackInvisible, AttackTyposquat:
		return CategoryCharacter
	case AttackSynonym, AttackPermutation:
		return CategoryWord
	default:
		return CategoryStructural
	}
}

// Example is one perturbed copy of the original text.
type Example struct {
	OriginalText         string     `json:"original_text"`
	AdversarialText      string     `json:"adversarial_text"`
	AttackType           AttackType `json:"attack_type"`
	PerturbationStrength float64    `json:"perturbation_strength"`
	Changes              []string   `json:"changes_made"`
	ExpectedToFool       bool       `json:"expected_to_fool"`
}

func newExample(original, adversarial string, t AttackType, strength float64, changes []string) Example {
	return Example{
		OriginalText:         original,
		AdversarialText:      adversarial,
		AttackType:           t,
		PerturbationStrength: strength,
		Changes:              changes,
		ExpectedToFool:       len(changes) > 0,
	}
}

var synonyms = map[string][]string{
	"good":       {"great", "excellent", "fine", "nice", "wonderful"},
	"bad":        {"poor", "terrible", "awful", "horrible", "dreadful"},
	"big":        {"large", "huge", "enormous", "massive", "giant"},
	"small":      {"tiny", "little", "miniature", "minute", "compact"},
	"fast":       {"quick", "rapid", "swift", "speedy", "hasty"},
	"slow":       {"gradual", "unhurried", "leisurely", "sluggish"},
	"happy":      {"joyful", "pleased", "glad", "content", "cheerful"},
	"sad":        {"unhappy", "sorrowful", "melancholy", "depressed"},
	"understand": {"comprehend", "grasp", "perceive", "realize"},
	"system":     {"framework", "structure", "architecture", "platform"},
	"process":    {"procedure", "method", "operation", "mechanism"},
	"data":       {"information", "records", "details", "facts"},
	"language":   {"tongue", "speech", "dialect", "vernacular"},
	"complex":    {"complicated", "intricate", "sophisticated", "elaborate"},
	"semantic":   {"meaningful", "significative", "semiotic"},
}

var adjacentKeys = map[rune]string{
	'q': "wa", 'w': "qeas", 'e': "wrd", 'r': "etf", 't': "ryg",
	'y': "tuh", 'u': "yij", 'i': "uok", 'o': "ipl", 'p': "ol",
	'a': "qwsz", 's': "awedxz", 'd': "serfcx", 'f': "drtgvc",
	'g': "ftyhbv", 'h': "gyujnb", 'j': "huikmn", 'k': "jiolm",
	'l': "kop", 'z': "asx", 'x': "zsdc", 'c': "xdfv", 'v': "cfgb",
	'b': "vghn", 'n': "bhjm", 'm': "njk",
}

const wordPunctuation = ".,!?;:"

// Generator produces seeded adversarial examples. Successive calls draw
// from the same stream, so a fixed seed reproduces a whole run.
type Generator struct {
	rng *rand.Rand
}

// NewGenerator returns a generator seeded with seed.
func NewGenerator(seed int64) *Generator {
	return &Generator{rng: rand.New(rand.NewPCG(uint64(seed), 0))}
}

func pick[T any](rng *rand.Rand, xs []T) T {
	return xs[rng.IntN(len(xs))]
}

// between returns a uniform integer in [lo, hi].
func (g *Generator) between(lo, hi int) int {
	return lo + g.rng.IntN(hi-lo+1)
}

// Homoglyph replaces a fraction of the letters with look-alike characters,
// keeping the case of the replaced letter.
func (g *Generator) Homoglyph(text string, rate float64) Example {
	chars := []rune(text)
	var changes []string
	for i, c := range chars {
		lower := unicode.ToLower(c)
		glyphs, ok := Homoglyphs[lower]
		if !ok || g.rng.Float64() >= rate {
			continue
		}
		replacement := pick(g.rng, glyphs)
		if unicode.IsUpper(c) {
			replacement = unicode.ToUpper(replacement)
		}
		chars[i] = replacement
		changes = append(changes, fmt.Sprintf("'%c'→'%c' at pos %d", lower, replacement, i))
	}
	return newExample(text, string(chars), AttackHomoglyph, rate, changes)
}

// Invisible inserts zero-width characters after a fraction of the positions.
func (g *Generator) Invisible(text string, rate float64) Example {
	chars := []rune(text)
	var changes []string
	for i := len(chars) - 1; i >= 0; i-- {
		if g.rng.Float64() >= rate {
			continue
		}
		inv := pick(g.rng, Invisibles)
		chars = append(chars[:i+1], append([]rune{inv}, chars[i+1:]...)...)
		changes = append(changes, fmt.Sprintf("Injected invisible char at pos %d", i))
	}
	return newExample(text, string(chars), AttackInvisible, rate, changes)
}

// Typosquat applies keyboard-realistic typos to a fraction of the longer
// words. Changed words come out lower-cased.
func (g *Generator) Typosquat(text string, rate float64) Example {
	words := strings.Fields(text)
	var changes []string
	for i, word := range words {
		if utf8.RuneCountInString(word) <= 3 || g.rng.Float64() >= rate {
			continue
		}
		chars := []rune(strings.ToLower(word))
		switch pick(g.rng, []string{"adjacent", "double", "swap", "delete"}) {
		case "adjacent":
			for j, c := range chars {
				keys, ok := adjacentKeys[c]
				if ok && g.rng.Float64() < 0.3 {
					chars[j] = pick(g.rng, []rune(keys))
					break
				}
			}
		case "double":
			if len(chars) > 4 {
				idx := g.between(1, len(chars)-1)
				chars = append(chars[:idx+1], chars[idx:]...)
			}
		case "swap":
			if len(chars) > 3 {
				idx := g.between(1, len(chars)-2)
				chars[idx], chars[idx+1] = chars[idx+1], chars[idx]
			}
		case "delete":
			if len(chars) > 4 {
				idx := g.between(1, len(chars)-2)
				chars = append(chars[:idx], chars[idx+1:]...)
			}
		}
		if typo := string(chars); typo != strings.ToLower(word) {
			words[i] = typo
			changes = append(changes, fmt.Sprintf("'%s'→'%s'", word, typo))
		}
	}
	return newExample(text, strings.Join(words, " "), AttackTyposquat, rate, changes)
}

// Synonym swaps known words for near-synonyms, keeping capitalisation and
// the first trailing punctuation mark.
func (g *Generator) Synonym(text string, rate float64) Example {
	words := strings.Fields(text)
	var changes []string
	for i, word := range words {
		options, ok := synonyms[strings.Trim(strings.ToLower(word), wordPunctuation)]
		if !ok || g.rng.Float64() >= rate {
			continue
		}
		synonym := pick(g.rng, options)
		if first, _ := utf8.DecodeRuneInString(word); unicode.IsUpper(first) {
			synonym = strings.ToUpper(synonym[:1]) + synonym[1:]
		}
		if idx := strings.IndexAny(word, wordPunctuation); idx >= 0 {
			synonym += word[idx : idx+1]
		}
		words[i] = synonym
		changes = append(changes, fmt.Sprintf("'%s'→'%s'", word, synonym))
	}
	return newExample(text, strings.Join(words, " "), AttackSynonym, rate, changes)
}

// Permute makes up to three local swaps of words at most maxShift apart.
func (g *Generator) Permute(text string, maxShift int) Example {
	words := strings.Fields(text)
	var changes []string
	if len(words) > 3 {
		for range min(3, len(words)/3) {
			i := g.between(1, len(words)-2)
			j := i + g.between(-maxShift, maxShift)
			j = max(0, min(len(words)-1, j))
			if i != j {
				words[i], words[j] = words[j], words[i]
				changes = append(changes, fmt.Sprintf("Swapped pos %d↔%d", i, j))
			}
		}
	}
	strength := float64(len(changes)) / float64(max(len(words), 1))
	return newExample(text, strings.Join(words, " "), AttackPermutation, strength, changes)
}

// Punctuate turns sentence breaks into commas, doubles commas and replaces
// double quotes with single ones.
func (g *Generator) Punctuate(text string) Example {
	var changes []string
	out := text
	if strings.Contains(out, ". ") {
		out = strings.ReplaceAll(out, ". ", ", ")
		changes = append(changes, "Changed periods to commas")
	}
	out = strings.ReplaceAll(out, ",", ",,")
	if strings.Contains(out, ",,") {
		changes = append(changes, "Doubled commas")
	}
	if strings.Contains(text, `"`) {
		out = strings.ReplaceAll(out, `"`, "'")
		changes = append(changes, "Changed quote types")
	}
	return newExample(text, out, AttackPunctuation, float64(len(changes))/5, changes)
}

// All runs every attack at its standard strengths.
func (g *Generator) All(text string) []Example {
	return []Example{
		g.Homoglyph(text, 0.1),
		g.Homoglyph(text, 0.2),
		g.Invisible(text, 0.05),
		g.Typosquat(text, 0.1),
		g.Synonym(text, 0.2),
		g.Synonym(text, 0.4),
		g.Permute(text, 2),
		g.Punctuate(text),
	}
}
