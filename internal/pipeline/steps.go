package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"market-digest/internal/metrics"
)

// Step is one named stage of a run.
type Step struct {
	Name string
	Run  func(ctx context.Context, pc *Context) error
}

// FatalError aborts the remaining steps.
type FatalError struct {
	Step string
	Err  error
}

func (e *FatalError) Error() string { return fmt.Sprintf("step %s: %v", e.Step, e.Err) }

func (e *FatalError) Unwrap() error { return e.Err }

// Fatal marks err as run-ending.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &FatalError{Err: err}
}

// StepRunner executes steps in declared order. Errors and panics become
// step_failed diagnostics; only FatalError stops the sequence.
type StepRunner struct {
	skip    map[string]struct{}
	only    map[string]struct{}
	metrics *metrics.Metrics
	logger  zerolog.Logger
	now     func() time.Time
}

// NewStepRunner builds a runner. A non-empty only set runs just those steps;
// skip removes steps from whatever remains.
func NewStepRunner(skip, only []string, m *metrics.Metrics, logger zerolog.Logger) *StepRunner {
	return &StepRunner{
		skip:    toSet(skip),
		only:    toSet(only),
		metrics: m,
		logger:  logger.With().Str("component", "steps").Logger(),
		now:     time.Now,
	}
}

func toSet(in []string) map[string]struct{} {
	out := make(map[string]struct{}, len(in))
	for _, s := range in {
		if s != "" {
			out[s] = struct{}{}
		}
	}
	return out
}

// Enabled reports whether name would run.
func (r *StepRunner) Enabled(name string) bool {
	if _, ok := r.skip[name]; ok {
		return false
	}
	if len(r.only) == 0 {
		return true
	}
	_, ok := r.only[name]
	return ok
}

// Run executes steps until they are exhausted or one returns a FatalError.
func (r *StepRunner) Run(ctx context.Context, pc *Context, steps []Step) error {
	for _, s := range steps {
		if !r.Enabled(s.Name) {
			pc.Diag("step_skipped:" + s.Name)
			r.metrics.ObserveStep(s.Name, metrics.StatusSkipped, 0)
			continue
		}

		start := r.now()
		err := r.runOne(ctx, pc, s)
		elapsed := r.now().Sub(start)
		pc.Perf["step_"+s.Name] = round3(elapsed.Seconds())

		var fatal *FatalError
		switch {
		case errors.As(err, &fatal):
			fatal.Step = s.Name
			r.metrics.ObserveStep(s.Name, metrics.StatusFailed, elapsed)
			pc.Diag(fmt.Sprintf("step_fatal:%s:%v", s.Name, fatal.Err))
			r.logger.Error().Err(fatal.Err).Str("step", s.Name).Msg("fatal step failure, aborting run")
			return fatal
		case err != nil:
			r.metrics.ObserveStep(s.Name, metrics.StatusFailed, elapsed)
			pc.Diag(fmt.Sprintf("step_failed:%s:%v", s.Name, err))
			r.logger.Warn().Err(err).Str("step", s.Name).Msg("step failed, continuing")
		default:
			r.metrics.ObserveStep(s.Name, metrics.StatusOK, elapsed)
		}
	}
	return nil
}

func (r *StepRunner) runOne(ctx context.Context, pc *Context, s Step) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return s.Run(ctx, pc)
}
