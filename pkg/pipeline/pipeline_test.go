package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/agentic-turing/atm/pkg/atmerr"
	"github.com/agentic-turing/atm/pkg/config"
	"github.com/agentic-turing/atm/pkg/cost"
	"github.com/agentic-turing/atm/pkg/presenter"
	"github.com/agentic-turing/atm/pkg/skills"
	"github.com/agentic-turing/atm/pkg/store"
	llmtypes "github.com/agentic-turing/atm/pkg/types/llm"
)

type mapLoader map[string]*skills.Skill

func (m mapLoader) Load(name string) (*skills.Skill, error) {
	if s, ok := m[name]; ok {
		return s, nil
	}
	return nil, atmerr.New(atmerr.KindSkillNotFound, "skill not found", atmerr.Details{"skill": name})
}

func defaultLoader() mapLoader {
	m := mapLoader{}
	for _, s := range DefaultStages {
		m[s.Skill] = &skills.Skill{Name: s.Skill, Content: "Translate " + s.Source + " into " + s.Target + "."}
	}
	return m
}

type fakeRecorder struct {
	mu       sync.Mutex
	created  []int
	finished map[string]string
	errs     map[string]error
}

func (f *fakeRecorder) CreateRun(_ context.Context, level int, input string) (store.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, level)
	return store.Run{ID: fmt.Sprintf("run-%d", level), NoiseLevel: level, InputText: input}, nil
}

func (f *fakeRecorder) FinishRun(_ context.Context, id, final string, runErr error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.finished == nil {
		f.finished = map[string]string{}
		f.errs = map[string]error{}
	}
	f.finished[id] = final
	f.errs[id] = runErr
	return nil
}

// echo tags the last line of the prompt, which is the stage input.
func echo() llmtypes.TranslatorFunc {
	return func(_ context.Context, req llmtypes.Request) (llmtypes.Response, error) {
		lines := strings.Split(strings.TrimSpace(req.Prompt), "\n")
		return llmtypes.Response{
			Text:  "<" + lines[len(lines)-1] + ">",
			Model: req.Model,
			Usage: llmtypes.Usage{InputTokens: 1000, OutputTokens: 100},
		}, nil
	}
}

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		Model:     "claude-sonnet-4-5",
		MaxTokens: 512,
		Paths:     config.PathsConfig{Outputs: t.TempDir()},
		Experiment: config.ExperimentConfig{
			OriginalSentence: "The system works well.",
			NoiseLevels:      []int{0, 25, 50},
			NoisyInputs: map[int]string{
				0:  "The system works well.",
				25: "The sytem works well.",
				50: "Teh sytem wroks well.",
			},
		},
	}
}

func TestStageHelpers(t *testing.T) {
	assert.Equal(t, "agent3_english.txt", FinalFile(DefaultStages))
	assert.Equal(t, []string{"agent1_french.txt", "agent2_hebrew.txt"}, IntermediateFiles(DefaultStages))
	assert.Equal(t, []string{
		"english-to-french-translator",
		"french-to-hebrew-translator",
		"hebrew-to-english-translator",
	}, SkillNames(DefaultStages))

	assert.Empty(t, FinalFile(nil))
	assert.Nil(t, IntermediateFiles(nil))
	assert.Empty(t, IntermediateFiles(DefaultStages[:1]))
}

func TestRunChain(t *testing.T) {
	cfg := testConfig(t)
	rec := &fakeRecorder{}
	tracker := cost.NewTracker(config.CostTrackingConfig{Enabled: true})
	var out bytes.Buffer
	p := presenter.NewWithOptions(&out, &out, presenter.ColorNever)

	r := NewRunner(cfg, echo(), defaultLoader(), WithTracker(tracker), WithRecorder(rec), WithPresenter(p))
	res, err := r.RunChain(context.Background(), 25)
	require.NoError(t, err)

	assert.Equal(t, 25, res.NoiseLevel)
	assert.Equal(t, "run-25", res.RunID)
	assert.Equal(t, "The sytem works well.", res.Input)
	assert.Equal(t, []string{
		"<The sytem works well.>",
		"<<The sytem works well.>>",
		"<<<The sytem works well.>>>",
	}, res.Outputs)
	assert.Equal(t, res.Outputs[2], res.Final)
	assert.InDelta(t, 3*0.0045, res.Cost, 1e-12)

	dir := filepath.Join(cfg.Paths.Outputs, "noise_25")
	data, err := os.ReadFile(filepath.Join(dir, InputFileName))
	require.NoError(t, err)
	assert.Equal(t, "The sytem works well.\n", string(data))
	for i, stage := range DefaultStages {
		data, err := os.ReadFile(filepath.Join(dir, stage.OutputFile))
		require.NoError(t, err)
		assert.Equal(t, res.Outputs[i]+"\n", string(data))
	}

	calls := tracker.Calls()
	require.Len(t, calls, 3)
	for i, call := range calls {
		assert.Equal(t, i+1, call.Stage)
		assert.Equal(t, 25, call.NoiseLevel)
		assert.Equal(t, "run-25", call.RunID)
		assert.Equal(t, "func", call.Provider)
	}

	assert.Equal(t, []int{25}, rec.created)
	assert.Equal(t, res.Final, rec.finished["run-25"])
	assert.NoError(t, rec.errs["run-25"])
	assert.Contains(t, out.String(), "Noise level 25%")
	assert.Contains(t, out.String(), "[3] hebrew-to-english-translator")
}

func TestRunChainInvalidLevel(t *testing.T) {
	r := NewRunner(testConfig(t), echo(), defaultLoader())
	_, err := r.RunChain(context.Background(), 30)
	assert.ErrorIs(t, err, atmerr.ErrInvalidNoiseLevel)
}

func TestRunChainErrors(t *testing.T) {
	tests := []struct {
		name       string
		translator llmtypes.TranslatorFunc
		loader     mapLoader
		want       error
	}{
		{
			name: "api failure",
			translator: func(context.Context, llmtypes.Request) (llmtypes.Response, error) {
				return llmtypes.Response{}, errors.New("connection reset")
			},
			loader: defaultLoader(),
			want:   atmerr.ErrAPI,
		},
		{
			name: "empty translation",
			translator: func(context.Context, llmtypes.Request) (llmtypes.Response, error) {
				return llmtypes.Response{Text: "  \n"}, nil
			},
			loader: defaultLoader(),
			want:   atmerr.ErrTranslation,
		},
		{
			name:       "missing skill",
			translator: echo(),
			loader:     mapLoader{},
			want:       atmerr.ErrSkillNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &fakeRecorder{}
			r := NewRunner(testConfig(t), tt.translator, tt.loader, WithRecorder(rec))
			res, err := r.RunChain(context.Background(), 0)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.Empty(t, res.Final)
			assert.ErrorIs(t, rec.errs["run-0"], tt.want)
		})
	}
}

func TestRunChainAPIErrorDetails(t *testing.T) {
	calls := 0
	translator := llmtypes.TranslatorFunc(func(ctx context.Context, req llmtypes.Request) (llmtypes.Response, error) {
		calls++
		if calls == 2 {
			return llmtypes.Response{}, errors.New("rate limited")
		}
		return echo()(ctx, req)
	})

	r := NewRunner(testConfig(t), translator, defaultLoader())
	res, err := r.RunChain(context.Background(), 0)
	require.Error(t, err)
	assert.Len(t, res.Outputs, 1)

	details := atmerr.DetailsOf(err)
	assert.Equal(t, 2, details["stage"])
	assert.Equal(t, "french-to-hebrew-translator", details["skill"])
	assert.Equal(t, "func", details["provider"])
}

func TestRunChainSanitizer(t *testing.T) {
	cfg := testConfig(t)
	cfg.Experiment.NoisyInputs[50] = "The sy\u200bstem works well."

	var seen string
	translator := llmtypes.TranslatorFunc(func(ctx context.Context, req llmtypes.Request) (llmtypes.Response, error) {
		if seen == "" {
			lines := strings.Split(strings.TrimSpace(req.Prompt), "\n")
			seen = lines[len(lines)-1]
		}
		return echo()(ctx, req)
	})

	r := NewRunner(cfg, translator, defaultLoader(), WithSanitizer(true))
	assert.Equal(t, "The system works well.", r.Input(50))
	_, err := r.RunChain(context.Background(), 50)
	require.NoError(t, err)
	assert.Equal(t, "The system works well.", seen)

	plain := NewRunner(cfg, translator, defaultLoader())
	assert.Equal(t, "The sy\u200bstem works well.", plain.Input(50))
}

func TestRunChainCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	translator := llmtypes.TranslatorFunc(func(ctx context.Context, req llmtypes.Request) (llmtypes.Response, error) {
		cancel()
		return llmtypes.Response{}, ctx.Err()
	})

	rec := &fakeRecorder{}
	r := NewRunner(testConfig(t), translator, defaultLoader(), WithRecorder(rec))
	_, err := r.RunChain(ctx, 0)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, atmerr.KindOf(err))
	assert.Contains(t, rec.finished, "run-0")
}

func TestRunAll(t *testing.T) {
	defer goleak.VerifyNone(t)

	cfg := testConfig(t)
	translator := llmtypes.TranslatorFunc(func(ctx context.Context, req llmtypes.Request) (llmtypes.Response, error) {
		if strings.Contains(req.Prompt, "Teh sytem") {
			return llmtypes.Response{}, errors.New("upstream unavailable")
		}
		return echo()(ctx, req)
	})

	r := NewRunner(cfg, translator, defaultLoader())
	results, err := r.RunAll(context.Background(), []int{50, 25, 0}, 3)
	require.Error(t, err)

	var merr *multierror.Error
	require.True(t, errors.As(err, &merr))
	require.Len(t, merr.Errors, 1)
	assert.Contains(t, merr.Errors[0].Error(), "noise level 50")
	assert.ErrorIs(t, merr.Errors[0], atmerr.ErrAPI)

	require.Len(t, results, 2)
	assert.Equal(t, 0, results[0].NoiseLevel)
	assert.Equal(t, 25, results[1].NoiseLevel)

	_, statErr := os.Stat(filepath.Join(cfg.Paths.Outputs, "noise_0", "agent3_english.txt"))
	assert.NoError(t, statErr)
}

func TestRunAllSequential(t *testing.T) {
	defer goleak.VerifyNone(t)

	var (
		mu       sync.Mutex
		inFlight int
		peak     int
	)
	translator := llmtypes.TranslatorFunc(func(ctx context.Context, req llmtypes.Request) (llmtypes.Response, error) {
		mu.Lock()
		inFlight++
		peak = max(peak, inFlight)
		mu.Unlock()
		defer func() {
			mu.Lock()
			inFlight--
			mu.Unlock()
		}()
		return echo()(ctx, req)
	})

	r := NewRunner(testConfig(t), translator, defaultLoader())
	results, err := r.RunAll(context.Background(), []int{0, 25, 50}, 0)
	require.NoError(t, err)
	assert.Len(t, results, 3)
	assert.Equal(t, 1, peak)
}

func TestRunAllCancelled(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := NewRunner(testConfig(t), echo(), defaultLoader())
	results, err := r.RunAll(ctx, []int{0, 25, 50}, 2)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, results)
}
