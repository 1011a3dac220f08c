package infotheory

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
)

// ReportFileName is the report written under the results directory.
const ReportFileName = "information_theory_analysis.json"

// Summary aggregates the per-level measures.
type Summary struct {
	MeanNormalizedMI   float64     `json:"mean_normalized_mi"`
	StdNormalizedMI    float64     `json:"std_normalized_mi"`
	MeanJensenShannon  float64     `json:"mean_jensen_shannon"`
	StdJensenShannon   float64     `json:"std_jensen_shannon"`
	CorrelationNoiseMI stats.Float `json:"correlation_noise_mi"`
}

// Report is the content of information_theory_analysis.json. A section
// that could not be computed is replaced by its error message.
type Report struct {
	Metadata                   report.Metadata              `json:"metadata"`
	Result                     report.Result                `json:"result"`
	EntropyAnalysis            map[string]Entropy           `json:"entropy_analysis,omitempty"`
	MutualInformation          map[string]MutualInformation `json:"mutual_information,omitempty"`
	KLDivergence               map[string]Divergence        `json:"kl_divergence,omitempty"`
	Summary                    *Summary                     `json:"summary,omitempty"`
	NoiseAnalysisError         string                       `json:"noise_analysis_error,omitempty"`
	InformationBottleneck      *Bottleneck                  `json:"information_bottleneck,omitempty"`
	InformationBottleneckError string                       `json:"information_bottleneck_error,omitempty"`
	TransferEntropy            []Transfer                   `json:"transfer_entropy,omitempty"`
	TransferEntropyError       string                       `json:"transfer_entropy_error,omitempty"`
}

// Analyzer runs the information-theoretic measures over the drift results.
type Analyzer struct {
	Results *analysis.Results
	// Intermediates holds the outputs of the stages before the last one, in
	// chain order, keyed by noise level.
	Intermediates map[int][]string
	// StageNames labels the chain agents for transfer entropy, first to last.
	StageNames []string
	Now        func() time.Time
}

// LoadIntermediates reads the stage files of every level under dir. Levels
// with a missing stage file are left out.
func LoadIntermediates(ctx context.Context, dir string, levels []int, files []string) (map[int][]string, error) {
	byFile := make([]map[int]string, len(files))
	for i, file := range files {
		outputs, _, err := analysis.LoadOutputs(ctx, dir, levels, file)
		if err != nil {
			return nil, err
		}
		byFile[i] = outputs
	}

	intermediates := make(map[int][]string)
levels:
	for _, level := range levels {
		texts := make([]string, len(files))
		for i := range files {
			text, ok := byFile[i][level]
			if !ok {
				continue levels
			}
			texts[i] = text
		}
		intermediates[level] = texts
	}
	return intermediates, nil
}

// Analyze computes every section. Section failures are logged and recorded
// in the report; Analyze itself only fails when results are missing.
func (a *Analyzer) Analyze(ctx context.Context) (*Report, error) {
	if a.Results == nil {
		return nil, errors.New("no drift results to analyze")
	}
	log := logger.G(ctx).WithField("analysis", "information_theory")

	rep := &Report{
		Metadata: report.NewMetadata("Information-Theoretic Analysis",
			"Shannon entropy, mutual information, KL and Jensen-Shannon divergence, information bottleneck and transfer entropy",
			a.now()),
	}

	if err := a.analyzeNoiseLevels(ctx, rep); err != nil {
		log.WithError(err).Error("noise level analysis failed")
		rep.NoiseAnalysisError = err.Error()
	}

	if b, err := a.bottleneck(); err != nil {
		log.WithError(err).Error("information bottleneck analysis failed")
		rep.InformationBottleneckError = err.Error()
	} else {
		rep.InformationBottleneck = &b
	}

	if transfers, err := a.transfers(); err != nil {
		log.WithError(err).Warn("transfer entropy skipped")
		rep.TransferEntropyError = err.Error()
	} else {
		rep.TransferEntropy = transfers
	}

	rep.Result = report.Result{Name: "information_theory"}
	if rep.Summary != nil {
		rep.Result.Metric1 = rep.Summary.MeanNormalizedMI
		rep.Result.Metric2 = rep.Summary.MeanJensenShannon
		rep.Result.Summary = fmt.Sprintf("mean normalized MI %.4f, mean Jensen-Shannon %.4f",
			rep.Summary.MeanNormalizedMI, rep.Summary.MeanJensenShannon)
	} else {
		rep.Result.Summary = "noise level analysis unavailable"
	}
	log.WithFields(logrus.Fields{
		"mean_nmi": rep.Result.Metric1,
		"mean_js":  rep.Result.Metric2,
	}).Info("information-theoretic analysis complete")
	return rep, nil
}

func (a *Analyzer) analyzeNoiseLevels(ctx context.Context, rep *Report) error {
	original := a.Results.OriginalSentence
	if len(words(original)) == 0 {
		return errors.New("original sentence is empty")
	}
	levels := a.Results.Levels()
	if len(levels) == 0 {
		return errors.New("no final outputs to analyze")
	}

	rep.EntropyAnalysis = map[string]Entropy{"original": CalculateEntropy(original, UnitWord)}
	rep.MutualInformation = make(map[string]MutualInformation, len(levels))
	rep.KLDivergence = make(map[string]Divergence, len(levels))

	nmis := make([]float64, 0, len(levels))
	jss := make([]float64, 0, len(levels))
	for _, level := range levels {
		key := fmt.Sprintf("noise_%d", level)
		final := a.Results.FinalOutputs[level]

		rep.EntropyAnalysis[key] = CalculateEntropy(final, UnitWord)
		mi := CalculateMutualInformation(original, final, "original", key)
		rep.MutualInformation[key] = mi
		div := CalculateDivergence(original, final, "original", key)
		rep.KLDivergence[key] = div

		nmis = append(nmis, mi.NormalizedMI)
		jss = append(jss, div.JensenShannon)
		logger.G(ctx).WithFields(logrus.Fields{
			"noise_level": level,
			"nmi":         mi.NormalizedMI,
			"js":          div.JensenShannon,
		}).Debug("measured information preservation")
	}

	summary := &Summary{
		MeanNormalizedMI:  stats.Mean(nmis),
		StdNormalizedMI:   stats.Std(nmis, 0),
		MeanJensenShannon: stats.Mean(jss),
		StdJensenShannon:  stats.Std(jss, 0),
	}
	if len(nmis) > 1 {
		index := make([]float64, len(nmis))
		for i := range index {
			index[i] = float64(i)
		}
		summary.CorrelationNoiseMI = stats.Float(stats.Pearson(index, nmis))
	}
	rep.Summary = summary
	return nil
}

// bottleneck analyses the lowest noise level, using its stage outputs as
// the compressed representation when they were loaded.
func (a *Analyzer) bottleneck() (Bottleneck, error) {
	levels := a.Results.Levels()
	if len(levels) == 0 {
		return Bottleneck{}, errors.New("no final outputs to analyze")
	}
	level := levels[0]
	final := a.Results.FinalOutputs[level]
	intermediates := a.Intermediates[level]
	if len(intermediates) == 0 {
		intermediates = []string{final}
	}
	return CalculateBottleneck(a.Results.OriginalSentence, intermediates, final), nil
}

// transfers measures the flow between consecutive agents, taking the noise
// levels as the time axis.
func (a *Analyzer) transfers() ([]Transfer, error) {
	var levels []int
	for _, level := range a.Results.Levels() {
		if len(a.Intermediates[level]) > 0 {
			levels = append(levels, level)
		}
	}
	if len(levels) == 0 {
		return nil, errors.New("no intermediate stage outputs available")
	}

	stages := len(a.Intermediates[levels[0]]) + 1
	series := make([][]string, stages)
	for _, level := range levels {
		texts := a.Intermediates[level]
		if len(texts)+1 != stages {
			return nil, errors.Errorf("noise level %d has %d stage outputs, want %d", level, len(texts), stages-1)
		}
		for i, text := range texts {
			series[i] = append(series[i], text)
		}
		series[stages-1] = append(series[stages-1], a.Results.FinalOutputs[level])
	}

	transfers := make([]Transfer, 0, stages-1)
	for i := 0; i+1 < stages; i++ {
		transfers = append(transfers, CalculateTransfer(series[i], series[i+1], a.stageName(i), a.stageName(i+1)))
	}
	return transfers, nil
}

func (a *Analyzer) stageName(i int) string {
	if i < len(a.StageNames) {
		return a.StageNames[i]
	}
	return fmt.Sprintf("agent_%d", i+1)
}

func (a *Analyzer) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

// Save writes rep to dir and returns the path.
func Save(dir string, rep *Report) (string, error) {
	path := filepath.Join(dir, ReportFileName)
	return path, report.WriteJSON(path, rep)
}
