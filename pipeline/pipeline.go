// Package pipeline runs the export chain that turns a composited raster into
// a stored or returned artifact. Steps run in order; hooks observe each step
// and transient failures are retried.
package pipeline

import (
	"context"
	"time"

	"github.com/Skryldev/mockup-studio/core"
	apperrors "github.com/Skryldev/mockup-studio/errors"
)

// Pipeline executes a sequence of Steps with hook and retry support.
type Pipeline struct {
	steps      []core.Step
	hooks      []core.Hook
	maxRetries int
	retryDelay time.Duration
}

// New returns a Pipeline running steps in order.
func New(steps ...core.Step) *Pipeline {
	return &Pipeline{steps: steps}
}

// Use appends steps. Returns the same Pipeline for chaining.
func (p *Pipeline) Use(s ...core.Step) *Pipeline {
	p.steps = append(p.steps, s...)
	return p
}

// AddHook registers observers.
func (p *Pipeline) AddHook(h ...core.Hook) *Pipeline {
	p.hooks = append(p.hooks, h...)
	return p
}

// WithRetry sets the retry budget for transient failures.
func (p *Pipeline) WithRetry(maxRetries int, delay time.Duration) *Pipeline {
	p.maxRetries = maxRetries
	p.retryDelay = delay
	return p
}

// Steps returns the step names in execution order.
func (p *Pipeline) Steps() []string {
	names := make([]string, len(p.steps))
	for i, s := range p.steps {
		names[i] = s.Name()
	}
	return names
}

// Run executes the pipeline on img and returns the final ImageData with the
// time spent in each step.
func (p *Pipeline) Run(ctx context.Context, img *core.ImageData) (*core.ImageData, map[string]time.Duration, error) {
	if img == nil || img.Image == nil {
		return nil, nil, apperrors.New(apperrors.CategoryPipeline, "pipeline.run", apperrors.ErrEmptyInput)
	}
	timings := make(map[string]time.Duration, len(p.steps))
	current := img

	for _, step := range p.steps {
		if err := ctx.Err(); err != nil {
			return nil, timings, apperrors.Wrap(apperrors.CategoryPipeline, step.Name(), err)
		}

		result, elapsed, err := p.runStep(ctx, step, current)
		timings[step.Name()] += elapsed
		if err != nil {
			return nil, timings, err
		}
		current = result
	}
	return current, timings, nil
}

// Process runs the pipeline and packages the outcome.
func (p *Pipeline) Process(ctx context.Context, img *core.ImageData) (*core.ProcessingResult, error) {
	start := time.Now()
	out, timings, err := p.Run(ctx, img)
	if err != nil {
		return nil, err
	}
	return &core.ProcessingResult{
		Primary:        out,
		Key:            out.Stored,
		ProcessingTime: time.Since(start),
		StepTimings:    timings,
	}, nil
}

// runStep executes a single step, calling hooks and retrying transient errors.
func (p *Pipeline) runStep(ctx context.Context, step core.Step, img *core.ImageData) (*core.ImageData, time.Duration, error) {
	p.callHooksBefore(ctx, step.Name(), img)

	var (
		result  *core.ImageData
		elapsed time.Duration
		err     error
	)

	attempts := p.maxRetries + 1
	for i := 0; i < attempts; i++ {
		start := time.Now()
		result, err = step.Execute(ctx, img)
		elapsed += time.Since(start)

		if err == nil || !apperrors.IsRetryable(err) || i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			err = apperrors.Wrap(apperrors.CategoryPipeline, step.Name(), ctx.Err())
			p.callHooksAfter(ctx, step.Name(), nil, elapsed, err)
			return nil, elapsed, err
		case <-time.After(p.retryDelay):
		}
	}

	p.callHooksAfter(ctx, step.Name(), result, elapsed, err)
	return result, elapsed, err
}

func (p *Pipeline) callHooksBefore(ctx context.Context, name string, img *core.ImageData) {
	for _, h := range p.hooks {
		h.BeforeStep(ctx, name, img)
	}
}

func (p *Pipeline) callHooksAfter(ctx context.Context, name string, img *core.ImageData, d time.Duration, err error) {
	for _, h := range p.hooks {
		h.AfterStep(ctx, name, img, d, err)
	}
}
