package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-turing/atm/pkg/atmerr"
	"github.com/agentic-turing/atm/pkg/config"
	"github.com/agentic-turing/atm/pkg/pipeline"
	"github.com/agentic-turing/atm/pkg/skills"
	"github.com/agentic-turing/atm/pkg/store"
	llmtypes "github.com/agentic-turing/atm/pkg/types/llm"
)

// identity returns the stage input unchanged, which is the last prompt line.
func identity() llmtypes.TranslatorFunc {
	return func(_ context.Context, req llmtypes.Request) (llmtypes.Response, error) {
		lines := strings.Split(strings.TrimSpace(req.Prompt), "\n")
		return llmtypes.Response{
			Text:  lines[len(lines)-1],
			Model: req.Model,
			Usage: llmtypes.Usage{InputTokens: 1000, OutputTokens: 100},
		}, nil
	}
}

func scaffoldSkills(t *testing.T, cfg *config.Config) {
	t.Helper()
	require.NoError(t, initSkills(&SkillInitConfig{Dir: cfg.Paths.Skills}))
}

func TestRunRequiresNoiseOrAll(t *testing.T) {
	_, err := executeRoot(t, "run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "either --noise or --all is required")
}

func TestRunRejectsNoiseWithAll(t *testing.T) {
	_, err := executeRoot(t, "run", "--noise", "25", "--all")
	require.Error(t, err)
}

func TestGetRunConfigFromFlags(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want RunConfig
	}{
		{name: "defaults", want: RunConfig{Noise: -1}},
		{name: "single level", args: []string{"-n", "25", "--sanitize"}, want: RunConfig{Noise: 25, Sanitize: true}},
		{name: "all levels", args: []string{"--all", "-c", "3", "--no-history"}, want: RunConfig{Noise: -1, All: true, Concurrency: 3, NoHistory: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := newRunCmd()
			require.NoError(t, cmd.ParseFlags(tt.args))
			assert.Equal(t, tt.want, *getRunConfigFromFlags(cmd))
		})
	}
}

func TestCheckSkills(t *testing.T) {
	cfg := testConfig(t)

	discovery, err := newDiscovery(cfg)
	require.NoError(t, err)
	err = checkSkills(discovery, cfg, pipeline.DefaultStages)
	require.Error(t, err)
	assert.True(t, errors.Is(err, atmerr.ErrSkillNotFound))

	scaffoldSkills(t, cfg)
	require.NoError(t, checkSkills(discovery, cfg, pipeline.DefaultStages))

	cfg.Skills.Allowed = []string{"english-*"}
	err = checkSkills(discovery, cfg, pipeline.DefaultStages)
	require.Error(t, err)
	assert.Equal(t, atmerr.KindConfiguration, atmerr.KindOf(err))
	assert.Contains(t, err.Error(), "french-to-hebrew-translator")
}

func TestRunChainsSingleLevel(t *testing.T) {
	cfg := testConfig(t)
	scaffoldSkills(t, cfg)

	rc := &RunConfig{Noise: 25, NoHistory: true}
	require.NoError(t, runChains(context.Background(), cfg, rc, identity()))

	dir := cfg.OutputDir(25)
	for _, stage := range pipeline.DefaultStages {
		assert.FileExists(t, filepath.Join(dir, stage.OutputFile))
	}
	assert.FileExists(t, filepath.Join(dir, pipeline.InputFileName))
	assert.FileExists(t, cfg.ResultsFile(cfg.CostTracking.ReportFile))
	assert.NoFileExists(t, cfg.Paths.Database)
}

func TestRunChainsInvalidLevel(t *testing.T) {
	cfg := testConfig(t)
	scaffoldSkills(t, cfg)

	err := runChains(context.Background(), cfg, &RunConfig{Noise: 33, NoHistory: true}, identity())
	require.Error(t, err)
	assert.True(t, errors.Is(err, atmerr.ErrInvalidNoiseLevel))
}

func TestRunChainsAllRecordsHistory(t *testing.T) {
	cfg := testConfig(t)
	scaffoldSkills(t, cfg)

	rc := &RunConfig{Noise: -1, All: true, Concurrency: 2}
	require.NoError(t, runChains(context.Background(), cfg, rc, identity()))

	for _, level := range cfg.Experiment.NoiseLevels {
		assert.DirExists(t, cfg.OutputDir(level))
	}

	ctx := context.Background()
	st, err := store.Open(ctx, cfg.Paths.Database)
	require.NoError(t, err)
	defer st.Close()

	runs, err := st.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, runs, len(cfg.Experiment.NoiseLevels))
	for _, run := range runs {
		assert.Equal(t, store.StatusCompleted, run.Status)
	}

	summary, err := st.CostSummary(ctx, "USD")
	require.NoError(t, err)
	assert.Equal(t, 3*len(cfg.Experiment.NoiseLevels), summary.TotalCalls)
	assert.InDelta(t, 0.0045*float64(summary.TotalCalls), summary.TotalCost, 1e-9)
}

func TestSkillInitListShow(t *testing.T) {
	cfg := testConfig(t)
	scaffoldSkills(t, cfg)

	var names []string
	for _, spec := range skills.DefaultTranslators() {
		names = append(names, spec.Name)
		assert.FileExists(t, filepath.Join(cfg.Paths.Skills, spec.Name, "SKILL.md"))
	}

	// a second init without --force keeps the existing files
	path := filepath.Join(cfg.Paths.Skills, names[0], "SKILL.md")
	require.NoError(t, os.WriteFile(path, []byte("---\nname: "+names[0]+"\ndescription: edited\n---\n\nbody\n"), 0o644))
	require.NoError(t, initSkills(&SkillInitConfig{Dir: cfg.Paths.Skills}))
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "description: edited")

	var out strings.Builder
	require.NoError(t, listSkills(cfg, &out))
	assert.Contains(t, out.String(), "NAME")
	for _, name := range names {
		assert.Contains(t, out.String(), name)
	}

	out.Reset()
	require.NoError(t, showSkill(cfg, names[1], &out))
	assert.Contains(t, out.String(), "Name:        "+names[1])
	assert.Contains(t, out.String(), "## Instructions")

	err = showSkill(cfg, "missing-skill", &out)
	require.Error(t, err)

	require.NoError(t, initSkills(&SkillInitConfig{Dir: cfg.Paths.Skills, Force: true}))
	content, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(content), "description: edited")
}

func TestGetSkillInitConfigFromFlags(t *testing.T) {
	cfg := testConfig(t)

	cmd := &cobra.Command{}
	cmd.Flags().String("dir", "", "")
	cmd.Flags().Bool("force", false, "")
	assert.Equal(t, SkillInitConfig{Dir: cfg.Paths.Skills}, *getSkillInitConfigFromFlags(cmd, cfg))

	require.NoError(t, cmd.ParseFlags([]string{"--dir", "/tmp/skills", "--force"}))
	assert.Equal(t, SkillInitConfig{Dir: "/tmp/skills", Force: true}, *getSkillInitConfigFromFlags(cmd, cfg))
}
