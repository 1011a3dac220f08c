package healing

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/agentic-turing/atm/pkg/logger"
	"github.com/agentic-turing/atm/pkg/textsim"
)

// Correction names the strategy used by an attempt.
type Correction string

const (
	CorrectionNone                 Correction = "none"
	CorrectionSemanticAlignment    Correction = "semantic_alignment"
	CorrectionVocabularyRepair     Correction = "vocabulary_repair"
	CorrectionStructureFix         Correction = "structure_fix"
	CorrectionHallucinationRemoval Correction = "hallucination_removal"
	CorrectionRevision             Correction = "llm_revision"
)

const (
	DefaultThreshold     = 0.7
	DefaultMaxIterations = 3

	maxShortInsertion = 3
	maxRepairedWords  = 3
	maxAppendedWords  = 5
)

var functionWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "is": {}, "are": {}, "was": {}, "were": {},
	"and": {}, "or": {}, "to": {}, "in": {}, "on": {}, "at": {}, "for": {},
	"of": {}, "with": {}, "that": {}, "this": {},
}

// Reviser produces a new candidate for a flawed translation, typically by
// asking a model to translate the source again.
type Reviser interface {
	Revise(ctx context.Context, source, current string, detection Detection) (string, error)
}

// Attempt records one correction attempt.
type Attempt struct {
	Number           int        `json:"attempt_number"`
	Input            string     `json:"input_text"`
	Output           string     `json:"output_text"`
	ConfidenceBefore float64    `json:"confidence_before"`
	ConfidenceAfter  float64    `json:"confidence_after"`
	CorrectionType   Correction `json:"correction_type"`
	Success          bool       `json:"success"`
}

// Result is the outcome of healing one translation.
type Result struct {
	OriginalInput         string    `json:"original_input"`
	FinalOutput           string    `json:"final_output"`
	TotalAttempts         int       `json:"total_attempts"`
	SuccessfulCorrections int       `json:"successful_corrections"`
	InitialConfidence     float64   `json:"initial_confidence"`
	FinalConfidence       float64   `json:"final_confidence"`
	Improvement           float64   `json:"confidence_improvement"`
	History               []Attempt `json:"healing_history"`
	Quality               string    `json:"overall_quality"`
	Interpretation        string    `json:"interpretation"`
}

// Healer repeatedly detects and corrects errors until the confidence reaches
// Threshold, no correction is recommended, or a correction fails to improve.
type Healer struct {
	Threshold     float64
	MaxIterations int
	Estimator     *Estimator
	Detector      *Detector
	// Reviser is tried before the local strategies when set.
	Reviser Reviser
}

// NewHealer returns a healer with the default threshold and iteration limit.
func NewHealer(reviser Reviser) *Healer {
	return &Healer{
		Threshold:     DefaultThreshold,
		MaxIterations: DefaultMaxIterations,
		Estimator:     NewEstimator(),
		Detector:      NewDetector(DefaultThreshold),
		Reviser:       reviser,
	}
}

type correction struct {
	text       string
	kind       Correction
	applied    bool
	confidence float64
	gain       float64
}

// Heal attempts to repair translated. It only fails when ctx is done.
func (h *Healer) Heal(ctx context.Context, source, translated string) (Result, error) {
	log := logger.G(ctx)
	current := translated
	initial := h.Estimator.Estimate(source, current)
	result := Result{OriginalInput: source, History: []Attempt{}}

	for i := 0; i < h.MaxIterations; i++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		confidence := h.Estimator.Estimate(source, current)
		if confidence.Overall >= h.Threshold {
			log.WithField("iteration", i).Debug("acceptable confidence reached")
			break
		}
		detection := h.Detector.Detect(source, current, &confidence)
		if !detection.CorrectionRecommended {
			break
		}

		fix := h.correct(ctx, source, current, detection, confidence)
		result.History = append(result.History, Attempt{
			Number:           i + 1,
			Input:            current,
			Output:           fix.text,
			ConfidenceBefore: confidence.Overall,
			ConfidenceAfter:  fix.confidence,
			CorrectionType:   fix.kind,
			Success:          fix.gain > 0,
		})
		log.WithFields(logrus.Fields{
			"attempt":    i + 1,
			"error_type": detection.Type,
			"correction": fix.kind,
			"gain":       fix.gain,
		}).Debug("healing attempt")

		if !fix.applied {
			break
		}
		current = fix.text
		result.SuccessfulCorrections++
	}

	final := h.Estimator.Estimate(source, current)
	result.FinalOutput = current
	result.TotalAttempts = len(result.History)
	result.InitialConfidence = initial.Overall
	result.FinalConfidence = final.Overall
	result.Improvement = final.Overall - initial.Overall
	result.Quality = quality(final.Overall)
	if result.SuccessfulCorrections > 0 {
		result.Interpretation = fmt.Sprintf(
			"Self-healing improved translation from %s to %s confidence over %d successful correction(s). Final quality: %s.",
			percent(initial.Overall), percent(final.Overall), result.SuccessfulCorrections, result.Quality)
	} else {
		result.Interpretation = fmt.Sprintf("No corrections applied. Original confidence: %s. Quality: %s.",
			percent(initial.Overall), result.Quality)
	}
	return result, nil
}

func quality(confidence float64) string {
	switch {
	case confidence >= 0.9:
		return "excellent"
	case confidence >= 0.7:
		return "good"
	case confidence >= 0.5:
		return "acceptable"
	default:
		return "poor"
	}
}

// correct tries the reviser, then the local strategy for the detected error
// type. A candidate is applied only when it raises the confidence.
func (h *Healer) correct(ctx context.Context, source, current string, detection Detection, confidence Confidence) correction {
	if h.Reviser != nil {
		revised, err := h.Reviser.Revise(ctx, source, current, detection)
		if err != nil {
			logger.G(ctx).WithError(err).Warn("revision failed, falling back to local correction")
		} else if fix := h.measure(source, current, revised, CorrectionRevision, confidence); fix.applied {
			return fix
		}
	}

	kind := CorrectionNone
	candidate := current
	switch detection.Type {
	case ErrorSemanticDrift:
		kind, candidate = CorrectionSemanticAlignment, realign(source, current)
	case ErrorLexicalLoss:
		kind, candidate = CorrectionVocabularyRepair, repairVocabulary(source, current, detection.Locations)
	case ErrorTruncation:
		kind, candidate = CorrectionStructureFix, fixStructure(source, current)
	case ErrorHallucination:
		kind, candidate = CorrectionHallucinationRemoval, removeHallucination(source, current)
	}
	return h.measure(source, current, candidate, kind, confidence)
}

func (h *Healer) measure(source, current, candidate string, kind Correction, before Confidence) correction {
	after := h.Estimator.Estimate(source, candidate)
	gain := after.Overall - before.Overall
	fix := correction{
		text:       current,
		kind:       kind,
		applied:    candidate != current && gain > 0,
		confidence: after.Overall,
		gain:       gain,
	}
	if fix.applied {
		fix.text = candidate
	}
	return fix
}

// realign keeps matching words, restores replaced and deleted source words
// and keeps only short insertions.
func realign(source, current string) string {
	sourceWords, currentWords := strings.Fields(source), strings.Fields(current)
	var aligned []string
	for _, op := range textsim.NewSequenceMatcher(sourceWords, currentWords).Opcodes() {
		switch op.Tag {
		case textsim.OpEqual:
			aligned = append(aligned, currentWords[op.J1:op.J2]...)
		case textsim.OpReplace, textsim.OpDelete:
			aligned = append(aligned, sourceWords[op.I1:op.I2]...)
		case textsim.OpInsert:
			if op.J2-op.J1 <= maxShortInsertion {
				aligned = append(aligned, currentWords[op.J1:op.J2]...)
			}
		}
	}
	return strings.Join(aligned, " ")
}

// repairVocabulary inserts missing source words at the proportional
// position they held in the source.
func repairVocabulary(source, current string, missing []string) string {
	if len(missing) == 0 {
		return current
	}
	currentWords := strings.Fields(current)
	sourceWords := strings.Fields(strings.ToLower(source))
	for _, word := range missing[:min(len(missing), maxRepairedWords)] {
		idx := indexOf(sourceWords, strings.ToLower(word))
		if idx < 0 {
			continue
		}
		at := idx * len(currentWords) / len(sourceWords)
		currentWords = append(currentWords[:at], append([]string{word}, currentWords[at:]...)...)
	}
	return strings.Join(currentWords, " ")
}

// fixStructure appends source words absent from a truncated output.
func fixStructure(source, current string) string {
	if float64(len([]rune(current))) >= float64(len([]rune(source)))*truncationRate {
		return current
	}
	lowered := strings.ToLower(current)
	currentWords := strings.Fields(current)
	added := 0
	for _, w := range strings.Fields(source) {
		if added == maxAppendedWords {
			break
		}
		if !strings.Contains(lowered, strings.ToLower(w)) {
			currentWords = append(currentWords, w)
			added++
		}
	}
	return strings.Join(currentWords, " ")
}

// removeHallucination drops words that are neither in the source nor
// function words.
func removeHallucination(source, current string) string {
	sourceWords := textsim.WordSet(source)
	var kept []string
	for _, w := range strings.Fields(current) {
		lw := strings.ToLower(w)
		_, inSource := sourceWords[lw]
		_, function := functionWords[lw]
		if inSource || function {
			kept = append(kept, w)
		}
	}
	return strings.Join(kept, " ")
}

func indexOf(words []string, w string) int {
	for i, candidate := range words {
		if candidate == w {
			return i
		}
	}
	return -1
}
