package healing

import (
	"strings"

	"github.com/agentic-turing/atm/pkg/textsim"
)

// ErrorType classifies what went wrong with a translation.
type ErrorType string

const (
	ErrorNone          ErrorType = "none"
	ErrorSemanticDrift ErrorType = "semantic_drift"
	ErrorLexicalLoss   ErrorType = "lexical_loss"
	ErrorHallucination ErrorType = "hallucination"
	ErrorTruncation    ErrorType = "truncation"
)

// Severity grades a detected error.
type Severity string

const (
	SeverityNone     Severity = "none"
	SeverityMinor    Severity = "minor"
	SeverityMajor    Severity = "major"
	SeverityCritical Severity = "critical"
)

const (
	maxLocations      = 10
	maxMissingWords   = 5
	hallucinationRate = 1.5
	truncationRate    = 0.5
)

// Detection is the outcome of checking one translation.
type Detection struct {
	Detected              bool        `json:"error_detected"`
	Type                  ErrorType   `json:"error_type"`
	Types                 []ErrorType `json:"error_types,omitempty"`
	Severity              Severity    `json:"error_severity"`
	Locations             []string    `json:"error_location"`
	CorrectionRecommended bool        `json:"correction_recommended"`
	DetectionConfidence   float64     `json:"detection_confidence"`
}

// Detector flags components that fall below Threshold.
type Detector struct {
	Threshold float64
	Estimator *Estimator
}

// NewDetector returns a detector flagging components below threshold.
func NewDetector(threshold float64) *Detector {
	return &Detector{Threshold: threshold, Estimator: NewEstimator()}
}

// Detect classifies the errors of translated. A nil confidence is estimated.
func (d *Detector) Detect(source, translated string, confidence *Confidence) Detection {
	if confidence == nil {
		c := d.Estimator.Estimate(source, translated)
		confidence = &c
	}

	var found []ErrorType
	var locations []string

	if confidence.Semantic < d.Threshold {
		found = append(found, ErrorSemanticDrift)
		sourceWords := strings.Fields(source)
		for _, op := range textsim.NewSequenceMatcher(sourceWords, strings.Fields(translated)).Opcodes() {
			if op.Tag == textsim.OpReplace || op.Tag == textsim.OpDelete {
				locations = append(locations, strings.Join(sourceWords[op.I1:op.I2], " "))
			}
		}
	}

	if confidence.Lexical < d.Threshold {
		found = append(found, ErrorLexicalLoss)
		locations = append(locations, missingWords(source, translated, maxMissingWords)...)
	}

	ratio := lengthRatio(source, translated)
	if ratio > hallucinationRate {
		found = append(found, ErrorHallucination)
	}
	if ratio < truncationRate {
		found = append(found, ErrorTruncation)
	}

	det := Detection{
		Type:                ErrorNone,
		Types:               found,
		Severity:            SeverityNone,
		Locations:           locations,
		DetectionConfidence: 1 - confidence.Uncertainty,
	}
	if len(locations) > maxLocations {
		det.Locations = locations[:maxLocations]
	}
	if det.Locations == nil {
		det.Locations = []string{}
	}
	if len(found) == 0 {
		return det
	}

	det.Detected = true
	det.Type = found[0]
	switch {
	case confidence.Overall < 0.4:
		det.Severity = SeverityCritical
	case confidence.Overall < 0.6:
		det.Severity = SeverityMajor
	default:
		det.Severity = SeverityMinor
	}
	det.CorrectionRecommended = det.Severity == SeverityCritical || det.Severity == SeverityMajor
	return det
}

// missingWords lists up to limit lower-cased source words absent from
// target, in source order.
func missingWords(source, target string, limit int) []string {
	targetWords := textsim.WordSet(target)
	seen := make(map[string]struct{})
	var missing []string
	for _, w := range strings.Fields(strings.ToLower(source)) {
		if _, ok := targetWords[w]; ok {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		missing = append(missing, w)
		if len(missing) == limit {
			break
		}
	}
	return missing
}
