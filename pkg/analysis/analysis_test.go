package analysis

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-turing/atm/pkg/atmerr"
	"github.com/agentic-turing/atm/pkg/config"
)

const original = "The artificial intelligence system can efficiently process natural language."

func writeOutput(t *testing.T, dir string, level int, file, content string) {
	t.Helper()
	levelDir := filepath.Join(dir, config.NoiseDirName(level))
	require.NoError(t, os.MkdirAll(levelDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(levelDir, file), []byte(content+"\n"), 0o644))
}

func newTestAnalyzer(dir string, levels ...int) *Analyzer {
	return &Analyzer{
		Original:   original,
		Levels:     levels,
		OutputsDir: dir,
		FinalFile:  DefaultFinalFile,
		Now:        func() time.Time { return time.Date(2025, 11, 27, 0, 0, 0, 0, time.UTC) },
	}
}

func TestAnalyze(t *testing.T) {
	dir := t.TempDir()
	writeOutput(t, dir, 0, DefaultFinalFile, original)
	writeOutput(t, dir, 25, DefaultFinalFile, "The AI system can process natural language efficiently.")
	writeOutput(t, dir, 50, DefaultFinalFile, "A computer handles speech.")

	results, err := newTestAnalyzer(dir, 0, 10, 25, 50).Analyze(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []int{0, 25, 50}, results.Levels())
	assert.Equal(t, original, results.FinalOutputs[0])

	assert.InDelta(t, 0, results.SemanticDistances[0], 1e-9)
	assert.Equal(t, 1.0, results.TextSimilarities[0])
	assert.Equal(t, 1.0, results.WordOverlaps[0])
	assert.Equal(t, 1.0, results.LengthSimilarities[0])

	assert.Greater(t, results.SemanticDistances[50], results.SemanticDistances[25])
	assert.Less(t, results.WordOverlaps[50], results.WordOverlaps[25])

	distances := results.Summary[MetricCosineDistance]
	assert.Equal(t, 50, distances.MaxLevel)
	assert.Equal(t, 0, distances.MinLevel)
	assert.Equal(t, "semantic_drift", results.Result.Name)
	assert.InDelta(t, distances.Mean, results.Result.Metric1, 1e-12)
	assert.Contains(t, results.Result.Summary, "worst at 50%")
}

func TestAnalyzeNoOutputs(t *testing.T) {
	_, err := newTestAnalyzer(t.TempDir(), 0, 10).Analyze(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, atmerr.ErrAnalysis))
	assert.Equal(t, atmerr.Details{"expected_files": 2, "found": 0}, atmerr.DetailsOf(err))
}

func TestLoadOutputsUnreadable(t *testing.T) {
	dir := t.TempDir()
	// a directory where the file should be cannot be read as a file
	require.NoError(t, os.MkdirAll(filepath.Join(dir, config.NoiseDirName(10), DefaultFinalFile), 0o755))

	_, _, err := LoadOutputs(context.Background(), dir, []int{10}, DefaultFinalFile)
	require.Error(t, err)
	assert.True(t, errors.Is(err, atmerr.ErrFileOperation))
}

func TestSaveAndLoadResults(t *testing.T) {
	outputs := t.TempDir()
	writeOutput(t, outputs, 0, DefaultFinalFile, original)
	writeOutput(t, outputs, 20, DefaultFinalFile, "The intelligent system processes language.")

	results, err := newTestAnalyzer(outputs, 0, 20).Analyze(context.Background())
	require.NoError(t, err)

	resultsDir := filepath.Join(t.TempDir(), "results")
	jsonPath, mdPath, err := Save(resultsDir, results)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(resultsDir, ResultsFileName), jsonPath)

	md, err := os.ReadFile(mdPath)
	require.NoError(t, err)
	assert.Contains(t, string(md), "# Semantic Drift Report")
	assert.Contains(t, string(md), "### Noise 20%")

	loaded, err := LoadResults(resultsDir)
	require.NoError(t, err)
	assert.Equal(t, results.FinalOutputs, loaded.FinalOutputs)
	assert.InDelta(t, results.SemanticDistances[20], loaded.SemanticDistances[20], 1e-12)
	assert.Equal(t, results.Summary, loaded.Summary)
}

type failingCloser struct {
	bytes.Buffer
}

func (*failingCloser) Close() error { return errors.New("disk full") }

func TestSaveReportsCloseError(t *testing.T) {
	outputs := t.TempDir()
	writeOutput(t, outputs, 0, DefaultFinalFile, original)
	results, err := newTestAnalyzer(outputs, 0).Analyze(context.Background())
	require.NoError(t, err)

	orig := createFile
	defer func() { createFile = orig }()
	w := &failingCloser{}
	createFile = func(string) (io.WriteCloser, error) { return w, nil }

	_, _, err = Save(t.TempDir(), results)
	require.Error(t, err)
	assert.Equal(t, atmerr.KindFileOperation, atmerr.KindOf(err))
	assert.Contains(t, err.Error(), "disk full")
	assert.Contains(t, w.String(), "# Semantic Drift Report")
}

func TestLoadResultsFromStringKeys(t *testing.T) {
	dir := t.TempDir()
	content := `{
  "original_sentence": "hello world",
  "final_outputs": {"0": "hello world", "10": "hello there"},
  "semantic_distances": {"0": 0.0, "10": 0.42},
  "text_similarities": {"0": 1.0, "10": 0.7}
}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ResultsFileName), []byte(content), 0o644))

	results, err := LoadResults(dir)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 10}, results.Levels())
	assert.Equal(t, 0.42, results.SemanticDistances[10])
}

func TestLoadResultsMissing(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadResults(dir)
	require.Error(t, err)
	assert.True(t, errors.Is(err, atmerr.ErrAnalysis))
	assert.Equal(t, filepath.Join(dir, ResultsFileName), atmerr.DetailsOf(err)["path"])
}

func TestSeries(t *testing.T) {
	levels, values := Series(map[int]float64{50: 0.5, 0: 0.1, 25: 0.3})
	assert.Equal(t, []int{0, 25, 50}, levels)
	assert.Equal(t, []float64{0.1, 0.3, 0.5}, values)
}
