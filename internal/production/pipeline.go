package production

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"halcyon.studio/cinema/internal/domain"
	"halcyon.studio/cinema/internal/pkg/logger"
)

// StageSpec declares one pipeline stage. A failing Required stage
// aborts the run; any other failure is recorded and the run continues.
type StageSpec struct {
	Name     domain.Stage
	Weight   int
	Required bool
	// Enabled reports whether the stage applies to this run. Nil means always.
	Enabled func(r *Run) bool
	Run     func(ctx context.Context, r *Run) error
}

// Pipeline runs stages in the order given by its transition table.
type Pipeline struct {
	first       domain.Stage
	specs       map[domain.Stage]StageSpec
	transitions map[domain.Stage]domain.Stage
	total       int
}

// NewPipeline chains specs in order; the last one transitions to complete.
func NewPipeline(specs ...StageSpec) (*Pipeline, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("pipeline: no stages")
	}
	p := &Pipeline{
		first:       specs[0].Name,
		specs:       make(map[domain.Stage]StageSpec, len(specs)),
		transitions: make(map[domain.Stage]domain.Stage, len(specs)),
	}
	for i, s := range specs {
		if s.Name.Terminal() || s.Run == nil {
			return nil, fmt.Errorf("pipeline: invalid stage %q", s.Name)
		}
		if _, dup := p.specs[s.Name]; dup {
			return nil, fmt.Errorf("pipeline: duplicate stage %q", s.Name)
		}
		if s.Weight < 0 {
			return nil, fmt.Errorf("pipeline: negative weight for %q", s.Name)
		}
		p.specs[s.Name] = s
		p.total += s.Weight
		next := domain.StageComplete
		if i+1 < len(specs) {
			next = specs[i+1].Name
		}
		p.transitions[s.Name] = next
	}
	if p.total != 100 {
		return nil, fmt.Errorf("pipeline: weights sum to %d, want 100", p.total)
	}
	return p, nil
}

// Next returns the stage that follows s.
func (p *Pipeline) Next(s domain.Stage) (domain.Stage, bool) {
	next, ok := p.transitions[s]
	return next, ok
}

// Stages returns the stage names in execution order.
func (p *Pipeline) Stages() []domain.Stage {
	out := make([]domain.Stage, 0, len(p.specs))
	for s := p.first; !s.Terminal(); s = p.transitions[s] {
		out = append(out, s)
	}
	return out
}

// Execute walks the transition table. It returns the error of the
// required stage that aborted the run, if any.
func (p *Pipeline) Execute(ctx context.Context, r *Run) error {
	if r.progress == nil {
		r.progress = newTracker(nil, time.Now)
	}
	for stage := p.first; !stage.Terminal(); stage = p.transitions[stage] {
		spec := p.specs[stage]
		if err := ctx.Err(); err != nil {
			r.progress.fail(stage, "Cancelled")
			return err
		}
		if spec.Enabled != nil && !spec.Enabled(r) {
			r.progress.skip(spec)
			continue
		}

		r.progress.enter(spec)
		err := runStage(ctx, spec, r)
		if err != nil {
			if spec.Required {
				logger.Warn("required production stage failed",
					zap.String("stage", string(stage)),
					zap.String("project_id", r.Request.ProjectID),
					zap.Error(err),
				)
				r.progress.fail(stage, "Failed")
				return err
			}
			logger.Info("optional production stage failed, continuing",
				zap.String("stage", string(stage)),
				zap.String("project_id", r.Request.ProjectID),
				zap.Error(err),
			)
			r.warn(stage, err)
		}
		r.progress.leave(spec)
	}
	r.progress.complete()
	return nil
}

// runStage converts a panicking stage into a stage failure.
func runStage(ctx context.Context, spec StageSpec, r *Run) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("production stage panicked",
				zap.String("stage", string(spec.Name)),
				zap.Any("panic", rec),
				zap.ByteString("stack", debug.Stack()),
			)
			err = fmt.Errorf("stage %s: internal error", spec.Name)
		}
	}()
	return spec.Run(ctx, r)
}
