package adversarial

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/agentic-turing/atm/pkg/analysis"
	"github.com/agentic-turing/atm/pkg/logger"
	"github.com/agentic-turing/atm/pkg/report"
	"github.com/agentic-turing/atm/pkg/stats"
	"github.com/agentic-turing/atm/pkg/textsim"
)

const (
	// ReportFileName is the report written under the results directory.
	ReportFileName = "adversarial_robustness.json"
	// DefaultSeed seeds the generator when none is configured.
	DefaultSeed = 42

	effectivenessFeatures  = 500
	vulnerabilityThreshold = 0.3
	exampleTextLimit       = 100
)

// Robustness is the overall assessment of a set of attacks, scored 0-100.
type Robustness struct {
	Overall            float64  `json:"overall_score"`
	Character          float64  `json:"character_robustness"`
	Word               float64  `json:"word_robustness"`
	Structural         float64  `json:"structural_robustness"`
	CertifiedRadius    float64  `json:"certified_radius"`
	VulnerabilityCount int      `json:"vulnerability_count"`
	Grade              string   `json:"robustness_grade"`
	Recommendations    []string `json:"recommendations"`
}

// ExampleSummary is the report form of an Example.
type ExampleSummary struct {
	AttackType           AttackType `json:"attack_type"`
	Original             string     `json:"original"`
	Adversarial          string     `json:"adversarial"`
	PerturbationStrength float64    `json:"perturbation_strength"`
	ChangesCount         int        `json:"changes_count"`
	Effectiveness        float64    `json:"effectiveness"`
}

// AttackStats aggregates the examples of one attack type.
type AttackStats struct {
	Count                int     `json:"count"`
	AverageEffectiveness float64 `json:"average_effectiveness"`
	Robustness           float64 `json:"robustness"`
}

// Report is the content of adversarial_robustness.json.
type Report struct {
	Metadata            report.Metadata            `json:"metadata"`
	AttackTypesTested   []AttackType               `json:"attack_types_tested"`
	Result              report.Result              `json:"result"`
	AdversarialExamples []ExampleSummary           `json:"adversarial_examples,omitempty"`
	RobustnessScore     *Robustness                `json:"robustness_score,omitempty"`
	AttackAnalysis      map[AttackType]AttackStats `json:"attack_analysis,omitempty"`
	Sanitized           *Robustness                `json:"sanitized_robustness_score,omitempty"`
	Error               string                     `json:"error,omitempty"`
}

// Evaluator attacks the original sentence and scores the damage.
type Evaluator struct {
	Results   *analysis.Results
	Generator *Generator
	Now       func() time.Time
}

// NewEvaluator returns an evaluator with a generator seeded with seed.
func NewEvaluator(results *analysis.Results, seed int64) *Evaluator {
	return &Evaluator{Results: results, Generator: NewGenerator(seed), Now: time.Now}
}

// Effectiveness is how far an example moved the text: one minus the cosine
// similarity of unigram TF-IDF vectors. When the texts have no terms the
// perturbation strength stands in.
func Effectiveness(ex Example) float64 {
	vectors, err := textsim.NewTFIDF(1, 1, effectivenessFeatures).FitTransform([]string{ex.OriginalText, ex.AdversarialText})
	if err != nil {
		return ex.PerturbationStrength
	}
	sim, err := textsim.CosineSimilarity(vectors[0], vectors[1])
	if err != nil {
		return ex.PerturbationStrength
	}
	return 1 - sim
}

// Score assesses a set of examples.
func Score(examples []Example) Robustness {
	byCategory := map[Category][]float64{}
	var perturbations []float64
	vulnerabilities := 0
	for _, ex := range examples {
		eff := Effectiveness(ex)
		cat := ex.AttackType.Category()
		byCategory[cat] = append(byCategory[cat], eff)
		if eff > vulnerabilityThreshold {
			vulnerabilities++
		}
		if ex.ExpectedToFool {
			perturbations = append(perturbations, ex.PerturbationStrength)
		}
	}

	robust := func(c Category) float64 {
		if len(byCategory[c]) == 0 {
			return 1
		}
		return 1 - stats.Mean(byCategory[c])
	}
	char, word, structural := robust(CategoryCharacter), robust(CategoryWord), robust(CategoryStructural)

	r := Robustness{
		Overall:            (0.4*char + 0.4*word + 0.2*structural) * 100,
		Character:          char * 100,
		Word:               word * 100,
		Structural:         structural * 100,
		CertifiedRadius:    0.1,
		VulnerabilityCount: vulnerabilities,
	}
	if len(perturbations) > 0 {
		r.CertifiedRadius = stats.Mean(perturbations)
	}
	r.Grade = grade(r.Overall)

	if char < 0.7 {
		r.Recommendations = append(r.Recommendations, "Add Unicode normalization preprocessing")
	}
	if word < 0.7 {
		r.Recommendations = append(r.Recommendations, "Implement paraphrase-aware translation")
	}
	if structural < 0.7 {
		r.Recommendations = append(r.Recommendations, "Improve punctuation handling robustness")
	}
	if vulnerabilities > 3 {
		r.Recommendations = append(r.Recommendations, "Consider adversarial training")
	}
	if len(r.Recommendations) == 0 {
		r.Recommendations = []string{"System shows good robustness"}
	}
	return r
}

func grade(score float64) string {
	switch {
	case score >= 90:
		return "A"
	case score >= 80:
		return "B"
	case score >= 70:
		return "C"
	case score >= 60:
		return "D"
	default:
		return "F"
	}
}

func truncate(s string) string {
	r := []rune(s)
	if len(r) <= exampleTextLimit {
		return s
	}
	return string(r[:exampleTextLimit]) + "..."
}

// Analyze generates the attacks and scores them before and after
// sanitization. Failures are recorded in the report.
func (e *Evaluator) Analyze(ctx context.Context) (*Report, error) {
	if e.Results == nil {
		return nil, errors.New("no drift results to analyze")
	}
	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	gen := e.Generator
	if gen == nil {
		gen = NewGenerator(DefaultSeed)
	}
	log := logger.G(ctx).WithField("analysis", "adversarial")

	rep := &Report{
		Metadata: report.NewMetadata("Adversarial Robustness Testing",
			"character, word and structural attacks on the input sentence", now()),
		AttackTypesTested: AttackTypes,
		Result:            report.Result{Name: "adversarial_robustness"},
	}

	original := e.Results.OriginalSentence
	if len(textsim.WordSet(original)) == 0 {
		err := errors.New("original sentence is empty")
		log.WithError(err).Error("attack generation failed")
		rep.Error = err.Error()
		rep.Result.Summary = "attack generation failed"
		return rep, nil
	}

	examples := gen.All(original)
	sanitized := make([]Example, len(examples))
	byType := map[AttackType][]float64{}
	for i, ex := range examples {
		eff := Effectiveness(ex)
		byType[ex.AttackType] = append(byType[ex.AttackType], eff)
		rep.AdversarialExamples = append(rep.AdversarialExamples, ExampleSummary{
			AttackType:           ex.AttackType,
			Original:             truncate(ex.OriginalText),
			Adversarial:          truncate(ex.AdversarialText),
			PerturbationStrength: ex.PerturbationStrength,
			ChangesCount:         len(ex.Changes),
			Effectiveness:        eff,
		})

		sanitized[i] = ex
		sanitized[i].AdversarialText = Sanitize(ex.AdversarialText)
		log.WithFields(logrus.Fields{"attack": ex.AttackType, "changes": len(ex.Changes), "effectiveness": eff}).Debug("evaluated attack")
	}

	score := Score(examples)
	rep.RobustnessScore = &score
	clean := Score(sanitized)
	rep.Sanitized = &clean

	rep.AttackAnalysis = make(map[AttackType]AttackStats, len(byType))
	for t, effs := range byType {
		avg := stats.Mean(effs)
		rep.AttackAnalysis[t] = AttackStats{Count: len(effs), AverageEffectiveness: avg, Robustness: (1 - avg) * 100}
	}

	rep.Result.Metric1 = score.Overall
	rep.Result.Metric2 = clean.Overall
	rep.Result.Summary = fmt.Sprintf("robustness %.1f/100 (%s), %.1f/100 (%s) after sanitization, %d vulnerabilities",
		score.Overall, score.Grade, clean.Overall, clean.Grade, score.VulnerabilityCount)
	log.WithFields(logrus.Fields{"score": score.Overall, "grade": score.Grade, "sanitized": clean.Overall}).Info("robustness evaluated")
	return rep, nil
}

// Save writes rep to dir and returns the path.
func Save(dir string, rep *Report) (string, error) {
	path := filepath.Join(dir, ReportFileName)
	return path, report.WriteJSON(path, rep)
}
