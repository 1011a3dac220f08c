package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/agentic-turing/atm/pkg/adversarial"
	"github.com/agentic-turing/atm/pkg/atmerr"
	"github.com/agentic-turing/atm/pkg/config"
	"github.com/agentic-turing/atm/pkg/cost"
	"github.com/agentic-turing/atm/pkg/llm"
	"github.com/agentic-turing/atm/pkg/logger"
	"github.com/agentic-turing/atm/pkg/noise"
	"github.com/agentic-turing/atm/pkg/presenter"
	"github.com/agentic-turing/atm/pkg/skills"
	"github.com/agentic-turing/atm/pkg/store"
	"github.com/agentic-turing/atm/pkg/telemetry"
	llmtypes "github.com/agentic-turing/atm/pkg/types/llm"
)

// SkillLoader resolves a stage's skill by name
type SkillLoader interface {
	Load(name string) (*skills.Skill, error)
}

// RunRecorder persists the lifecycle of a chain run
type RunRecorder interface {
	CreateRun(ctx context.Context, noiseLevel int, input string) (store.Run, error)
	FinishRun(ctx context.Context, id, finalOutput string, runErr error) error
}

// Result is the outcome of one chain run
type Result struct {
	NoiseLevel int           `json:"noise_level"`
	RunID      string        `json:"run_id,omitempty"`
	Input      string        `json:"input"`
	Outputs    []string      `json:"outputs"`
	Final      string        `json:"final"`
	Cost       float64       `json:"cost"`
	Duration   time.Duration `json:"duration"`
}

// Runner executes the chain for configured noise levels
type Runner struct {
	translator llmtypes.Translator
	skills     SkillLoader
	stages     []Stage

	model       string
	maxTokens   int
	temperature float64

	original    string
	levels      []int
	noisyInputs map[int]string
	injector    noise.Injector
	outputsDir  string

	tracker   *cost.Tracker
	recorder  RunRecorder
	presenter presenter.Presenter
	sanitize  bool
}

// Option configures a Runner
type Option func(*Runner)

// WithStages replaces the default chain
func WithStages(stages []Stage) Option {
	return func(r *Runner) { r.stages = stages }
}

// WithTracker prices every translator call
func WithTracker(t *cost.Tracker) Option {
	return func(r *Runner) { r.tracker = t }
}

// WithRecorder records every run, e.g. in the store
func WithRecorder(rec RunRecorder) Option {
	return func(r *Runner) { r.recorder = rec }
}

// WithPresenter shows every finished chain
func WithPresenter(p presenter.Presenter) Option {
	return func(r *Runner) { r.presenter = p }
}

// WithSanitizer strips invisible characters and homoglyphs from the chain
// input before the first stage.
func WithSanitizer(enabled bool) Option {
	return func(r *Runner) { r.sanitize = enabled }
}

// NewRunner builds a runner over cfg's experiment
func NewRunner(cfg *config.Config, translator llmtypes.Translator, loader SkillLoader, opts ...Option) *Runner {
	r := &Runner{
		translator:  translator,
		skills:      loader,
		stages:      DefaultStages,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		original:    cfg.Experiment.OriginalSentence,
		levels:      cfg.Experiment.NoiseLevels,
		noisyInputs: cfg.Experiment.NoisyInputs,
		injector:    noise.Injector{Seed: cfg.Experiment.Seed},
		outputsDir:  cfg.Paths.Outputs,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Input returns the chain input of level: the configured noisy input when
// there is one, otherwise the generated corruption of the original sentence.
func (r *Runner) Input(level int) string {
	input := r.injector.Inputs(r.original, []int{level}, r.noisyInputs)[level]
	if r.sanitize {
		input = adversarial.Sanitize(input)
	}
	return input
}

// OutputDir is the directory holding the files of level
func (r *Runner) OutputDir(level int) string {
	return filepath.Join(r.outputsDir, config.NoiseDirName(level))
}

// RunChain runs every stage for level, writing the input and each stage
// output under the level's output directory.
func (r *Runner) RunChain(ctx context.Context, level int) (Result, error) {
	if err := noise.ValidateLevel(level, r.levels); err != nil {
		return Result{}, err
	}

	input := r.Input(level)
	res := Result{NoiseLevel: level, Input: input}
	start := time.Now()
	ctx = logger.WithFields(ctx, logrus.Fields{"noise_level": level})
	log := logger.G(ctx)

	dir := r.OutputDir(level)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return res, atmerr.Wrap(err, atmerr.KindFileOperation, "failed to create output directory", atmerr.Details{"path": dir})
	}
	if err := writeOutput(filepath.Join(dir, InputFileName), input); err != nil {
		return res, err
	}

	if r.recorder != nil {
		run, err := r.recorder.CreateRun(ctx, level, input)
		if err != nil {
			log.WithError(err).Warn("failed to record run start")
		} else {
			res.RunID = run.ID
			ctx = logger.WithFields(ctx, logrus.Fields{"run_id": run.ID})
			log = logger.G(ctx)
		}
	}

	log.Info("starting translation chain")
	err := telemetry.WithSpan(ctx, "pipeline.chain", func(ctx context.Context) error {
		text := input
		for _, stage := range r.stages {
			out, price, err := r.runStage(ctx, stage, level, res.RunID, text, dir)
			if err != nil {
				return err
			}
			res.Outputs = append(res.Outputs, out)
			res.Cost += price
			text = out
		}
		res.Final = text
		return nil
	}, attribute.Int("noise_level", level), attribute.Int("stages", len(r.stages)))
	res.Duration = time.Since(start)

	if r.recorder != nil && res.RunID != "" {
		// the run row is closed even when ctx was cancelled mid chain
		if ferr := r.recorder.FinishRun(context.WithoutCancel(ctx), res.RunID, res.Final, err); ferr != nil {
			log.WithError(ferr).Warn("failed to record run result")
		}
	}
	if err != nil {
		log.WithError(err).Error("translation chain failed")
		return res, err
	}

	log.WithFields(logrus.Fields{"duration": res.Duration, "cost": res.Cost}).Info("translation chain completed")
	if r.presenter != nil {
		stages := make([]presenter.StageOutput, len(res.Outputs))
		for i, out := range res.Outputs {
			stages[i] = presenter.StageOutput{Number: r.stages[i].Number, Skill: r.stages[i].Skill, Text: out}
		}
		r.presenter.Chain(level, input, stages)
	}
	return res, nil
}

func (r *Runner) runStage(ctx context.Context, stage Stage, level int, runID, input, dir string) (string, float64, error) {
	log := logger.G(ctx).WithFields(logrus.Fields{"stage": stage.Number, "skill": stage.Skill})
	var (
		text  string
		price float64
	)
	err := telemetry.WithSpan(ctx, "pipeline.stage", func(ctx context.Context) error {
		skill, err := r.skills.Load(stage.Skill)
		if err != nil {
			return err
		}

		log.Debug("calling translator")
		resp, err := r.translator.Complete(ctx, llmtypes.Request{
			Model:       r.model,
			Prompt:      skills.BuildPrompt(stage.Skill, skill, input),
			MaxTokens:   r.maxTokens,
			Temperature: r.temperature,
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if atmerr.KindOf(err) != "" {
				return err
			}
			return atmerr.Wrap(err, atmerr.KindAPI, "translation call failed", atmerr.Details{
				"stage":    stage.Number,
				"skill":    stage.Skill,
				"provider": r.translator.Name(),
			})
		}

		text = llm.CleanOutput(resp.Text)
		if text == "" {
			return atmerr.New(atmerr.KindTranslation, "empty translation", atmerr.Details{
				"stage":    stage.Number,
				"skill":    stage.Skill,
				"provider": r.translator.Name(),
			})
		}

		if r.tracker != nil {
			model := resp.Model
			if model == "" {
				model = r.model
			}
			price = r.tracker.Track(ctx, cost.Call{
				RunID:        runID,
				Provider:     r.translator.Name(),
				Model:        model,
				Stage:        stage.Number,
				NoiseLevel:   level,
				InputTokens:  resp.Usage.InputTokens,
				OutputTokens: resp.Usage.OutputTokens,
			})
		}
		telemetry.SetAttributes(ctx,
			attribute.Int("input_tokens", resp.Usage.InputTokens),
			attribute.Int("output_tokens", resp.Usage.OutputTokens))

		return writeOutput(filepath.Join(dir, stage.OutputFile), text)
	}, attribute.Int("stage", stage.Number), attribute.String("skill", stage.Skill), attribute.Int("noise_level", level))
	if err != nil {
		return "", 0, err
	}

	log.WithField("chars", len(text)).Info("stage completed")
	return text, price, nil
}

func writeOutput(path, text string) error {
	if err := os.WriteFile(path, []byte(text+"\n"), 0o644); err != nil {
		return atmerr.Wrap(err, atmerr.KindFileOperation, "failed to write output", atmerr.Details{"path": path})
	}
	return nil
}

// RunAll runs the chain for every level with at most concurrency chains in
// flight. A failing level does not stop the others; the failures are
// returned together. Results come back in level order and only hold the
// levels that completed.
func (r *Runner) RunAll(ctx context.Context, levels []int, concurrency int) ([]Result, error) {
	if concurrency < 1 {
		concurrency = 1
	}
	levels = append([]int(nil), levels...)
	sort.Ints(levels)

	results := make([]*Result, len(levels))
	var (
		mu   sync.Mutex
		errs *multierror.Error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, level := range levels {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := r.RunChain(gctx, level)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				mu.Lock()
				errs = multierror.Append(errs, errors.Wrapf(err, "noise level %d", level))
				mu.Unlock()
				return nil
			}
			results[i] = &res
			return nil
		})
	}
	waitErr := g.Wait()

	done := make([]Result, 0, len(levels))
	for _, res := range results {
		if res != nil {
			done = append(done, *res)
		}
	}
	if waitErr != nil {
		return done, waitErr
	}
	return done, errs.ErrorOrNil()
}
