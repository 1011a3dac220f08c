// Package analysis measures the semantic drift between the clean original
// sentence and the final English output of every noise level, using only
// local metrics.
package analysis

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/agentic-turing/atm/pkg/atmerr"
	"github.com/agentic-turing/atm/pkg/config"
	"github.com/agentic-turing/atm/pkg/logger"
	"github.com/agentic-turing/atm/pkg/report"
	"github.com/agentic-turing/atm/pkg/stats"
	"github.com/agentic-turing/atm/pkg/textsim"
)

const (
	// ResultsFileName is the drift report every downstream analyzer reads.
	ResultsFileName = "analysis_results_local.json"
	// MarkdownFileName is the human-readable drift report.
	MarkdownFileName = "semantic_drift_report.md"
	// DefaultFinalFile is the output of the last chain stage.
	DefaultFinalFile = "agent3_english.txt"

	// EmbeddingMaxFeatures and the n-gram range configure the drift vectorizer.
	EmbeddingMaxFeatures = 1000
	EmbeddingMinN        = 1
	EmbeddingMaxN        = 3
)

// Metric names used as keys of Results.Summary.
const (
	MetricCosineDistance   = "cosine_distance"
	MetricTextSimilarity   = "text_similarity"
	MetricWordOverlap      = "word_overlap"
	MetricLengthSimilarity = "length_similarity"
)

// Results is the content of analysis_results_local.json.
type Results struct {
	Result             report.Result            `json:"result"`
	OriginalSentence   string                   `json:"original_sentence"`
	FinalOutputs       map[int]string           `json:"final_outputs"`
	SemanticDistances  map[int]float64          `json:"semantic_distances"`
	TextSimilarities   map[int]float64          `json:"text_similarities"`
	WordOverlaps       map[int]float64          `json:"word_overlaps"`
	LengthSimilarities map[int]float64          `json:"length_similarities"`
	Summary            map[string]stats.Summary `json:"summary"`
	EmbeddingMethod    string                   `json:"embedding_method"`
	DistanceMetric     string                   `json:"distance_metric"`
	APIProvider        string                   `json:"api_provider"`
	GeneratedAt        time.Time                `json:"generated_at"`
}

// Levels returns the analysed noise levels in increasing order.
func (r *Results) Levels() []int {
	levels := make([]int, 0, len(r.FinalOutputs))
	for level := range r.FinalOutputs {
		levels = append(levels, level)
	}
	sort.Ints(levels)
	return levels
}

// Series returns m's values ordered by level, with their levels.
func Series(m map[int]float64) ([]int, []float64) {
	levels := make([]int, 0, len(m))
	for level := range m {
		levels = append(levels, level)
	}
	sort.Ints(levels)
	values := make([]float64, len(levels))
	for i, level := range levels {
		values[i] = m[level]
	}
	return levels, values
}

// Analyzer computes the drift metrics from the files written by the chain.
type Analyzer struct {
	Original   string
	Levels     []int
	OutputsDir string
	FinalFile  string
	Now        func() time.Time
}

// NewAnalyzer builds an analyzer over cfg's experiment and output directory.
func NewAnalyzer(cfg *config.Config) *Analyzer {
	return &Analyzer{
		Original:   cfg.Experiment.OriginalSentence,
		Levels:     cfg.Experiment.NoiseLevels,
		OutputsDir: cfg.Paths.Outputs,
		FinalFile:  DefaultFinalFile,
		Now:        time.Now,
	}
}

// LoadOutputs reads file from every level directory under dir. Missing files
// are skipped and reported in missing.
func LoadOutputs(ctx context.Context, dir string, levels []int, file string) (outputs map[int]string, missing []int, err error) {
	log := logger.G(ctx)
	outputs = make(map[int]string)
	for _, level := range levels {
		path := filepath.Join(dir, config.NoiseDirName(level), file)
		data, readErr := os.ReadFile(path)
		if os.IsNotExist(readErr) {
			log.WithFields(logrus.Fields{"noise_level": level, "path": path}).Warn("output file not found")
			missing = append(missing, level)
			continue
		}
		if readErr != nil {
			return nil, nil, atmerr.Wrap(readErr, atmerr.KindFileOperation,
				"cannot read output file", atmerr.Details{"file": path, "noise_level": level})
		}
		outputs[level] = strings.TrimSpace(string(data))
		log.WithFields(logrus.Fields{"noise_level": level, "chars": len(outputs[level])}).Debug("loaded output")
	}
	return outputs, missing, nil
}

// Analyze loads the final outputs and computes every metric.
func (a *Analyzer) Analyze(ctx context.Context) (*Results, error) {
	log := logger.G(ctx)
	finalFile := a.FinalFile
	if finalFile == "" {
		finalFile = DefaultFinalFile
	}

	finals, missing, err := LoadOutputs(ctx, a.OutputsDir, a.Levels, finalFile)
	if err != nil {
		return nil, err
	}
	if len(finals) == 0 {
		return nil, atmerr.New(atmerr.KindAnalysis, "no output files found; run the experiment first",
			atmerr.Details{"expected_files": len(a.Levels), "found": 0})
	}
	if len(missing) > 0 {
		log.WithField("missing_levels", missing).Warn("some noise levels have no output")
	}

	results := &Results{
		OriginalSentence:   a.Original,
		FinalOutputs:       finals,
		SemanticDistances:  make(map[int]float64),
		TextSimilarities:   make(map[int]float64),
		WordOverlaps:       make(map[int]float64),
		LengthSimilarities: make(map[int]float64),
		EmbeddingMethod:    "TF-IDF (local, no API)",
		DistanceMetric:     "cosine_distance",
		APIProvider:        "NONE - All local computation",
		GeneratedAt:        a.now(),
	}
	levels := results.Levels()

	texts := make([]string, 0, len(levels)+1)
	texts = append(texts, a.Original)
	for _, level := range levels {
		texts = append(texts, finals[level])
	}
	embeddings, err := textsim.NewTFIDF(EmbeddingMinN, EmbeddingMaxN, EmbeddingMaxFeatures).FitTransform(texts)
	if err != nil {
		return nil, atmerr.Wrap(err, atmerr.KindAnalysis, "TF-IDF embedding generation failed",
			atmerr.Details{"num_texts": len(texts)})
	}
	log.WithField("dimension", len(embeddings[0])).Info("generated embeddings")

	for i, level := range levels {
		final := finals[level]
		distance, err := textsim.CosineDistance(embeddings[0], embeddings[i+1])
		if err != nil {
			return nil, atmerr.Wrap(err, atmerr.KindAnalysis, "cosine distance calculation failed", nil)
		}
		results.SemanticDistances[level] = distance
		results.TextSimilarities[level] = textsim.TextSimilarity(a.Original, final)
		results.WordOverlaps[level] = textsim.WordOverlap(a.Original, final)
		results.LengthSimilarities[level] = textsim.LengthSimilarity(a.Original, final)

		log.WithFields(logrus.Fields{
			"noise_level":  level,
			"distance":     distance,
			"similarity":   results.TextSimilarities[level],
			"overlap":      results.WordOverlaps[level],
			"length_score": results.LengthSimilarities[level],
		}).Info("measured drift")
	}

	results.Summary = map[string]stats.Summary{
		MetricCosineDistance:   summarize(results.SemanticDistances),
		MetricTextSimilarity:   summarize(results.TextSimilarities),
		MetricWordOverlap:      summarize(results.WordOverlaps),
		MetricLengthSimilarity: summarize(results.LengthSimilarities),
	}
	distances := results.Summary[MetricCosineDistance]
	results.Result = report.Result{
		Name:    "semantic_drift",
		Metric1: distances.Mean,
		Metric2: results.Summary[MetricTextSimilarity].Mean,
		Summary: driftSummary(distances, len(levels)),
	}
	return results, nil
}

func (a *Analyzer) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

func summarize(m map[int]float64) stats.Summary {
	return stats.Summarize(Series(m))
}

func driftSummary(distances stats.Summary, n int) string {
	return fmt.Sprintf("mean cosine distance %.4f over %d noise levels, worst at %d%%",
		distances.Mean, n, distances.MaxLevel)
}

// Save writes the JSON results and the markdown report into dir and returns
// both paths.
func Save(dir string, results *Results) (jsonPath, markdownPath string, err error) {
	jsonPath = filepath.Join(dir, ResultsFileName)
	if err := report.WriteJSON(jsonPath, results); err != nil {
		return "", "", err
	}

	markdownPath = filepath.Join(dir, MarkdownFileName)
	f, err := createFile(markdownPath)
	if err != nil {
		return "", "", atmerr.Wrap(err, atmerr.KindFileOperation, "cannot create markdown report",
			atmerr.Details{"path": markdownPath})
	}
	if err := report.WriteDriftMarkdown(f, Drift(results)); err != nil {
		f.Close()
		return "", "", atmerr.Wrap(err, atmerr.KindFileOperation, "cannot write markdown report",
			atmerr.Details{"path": markdownPath})
	}
	if err := f.Close(); err != nil {
		return "", "", atmerr.Wrap(err, atmerr.KindFileOperation, "cannot close markdown report",
			atmerr.Details{"path": markdownPath})
	}
	return jsonPath, markdownPath, nil
}

var createFile = func(path string) (io.WriteCloser, error) {
	return os.Create(path)
}

// Drift converts results into the markdown report input.
func Drift(results *Results) report.Drift {
	d := report.Drift{Original: results.OriginalSentence, GeneratedAt: results.GeneratedAt}
	for _, level := range results.Levels() {
		d.Rows = append(d.Rows, report.DriftRow{
			Level:            level,
			Final:            results.FinalOutputs[level],
			CosineDistance:   results.SemanticDistances[level],
			TextSimilarity:   results.TextSimilarities[level],
			WordOverlap:      results.WordOverlaps[level],
			LengthSimilarity: results.LengthSimilarities[level],
		})
	}
	for _, m := range []struct{ key, name, better string }{
		{MetricCosineDistance, "Cosine distance", "lower"},
		{MetricTextSimilarity, "Text similarity", "higher"},
		{MetricWordOverlap, "Word overlap", "higher"},
		{MetricLengthSimilarity, "Length similarity", "higher"},
	} {
		if s, ok := results.Summary[m.key]; ok {
			d.Summaries = append(d.Summaries, report.MetricSummary{Name: m.name, Better: m.better, Summary: s})
		}
	}
	return d
}

// LoadResults reads analysis_results_local.json from dir.
func LoadResults(dir string) (*Results, error) {
	var results Results
	if err := report.ReadJSON(filepath.Join(dir, ResultsFileName), &results); err != nil {
		return nil, err
	}
	if len(results.FinalOutputs) == 0 && len(results.SemanticDistances) == 0 {
		return nil, atmerr.New(atmerr.KindAnalysis, "results file holds no noise levels",
			atmerr.Details{"path": filepath.Join(dir, ResultsFileName)})
	}
	return &results, nil
}
