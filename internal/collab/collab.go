// Package collab defines the narrow interfaces to the external
// collaborators the pipeline leans on (vision analysis, principle
// detection, quality validation, high-fidelity interpolation) plus the
// shared timeout/fallback policy applied to every call across them.
package collab

import (
	"context"
	"image"
	"log/slog"
	"time"
)

// DefaultTimeout bounds a single collaborator call.
const DefaultTimeout = 60 * time.Second

// Analyzer turns two keyframes and an instruction into a MotionAnalysis.
type Analyzer interface {
	Analyze(ctx context.Context, start, end *image.RGBA, instruction string) (*MotionAnalysis, error)
}

// PrincipleDetector maps an analysis and instruction to weighted
// animation principles. Entries below 0.5 confidence are dropped by the
// detector itself.
type PrincipleDetector interface {
	Detect(ctx context.Context, analysis *MotionAnalysis, instruction string) (PrincipleSet, error)
}

// Validator scores a sampled subset of generated frames against the
// keyframes and the plan.
type Validator interface {
	Validate(ctx context.Context, start, end *image.RGBA, sampled []*image.RGBA, plan PlanSummary) (*ValidationReport, error)
}

// Interpolator is an optional higher-fidelity frame interpolator.
// Available is queried once per job; when false the object-based
// strategy is used without consulting Interpolate.
type Interpolator interface {
	Available() bool
	Interpolate(ctx context.Context, start, end *image.RGBA, t float64) (*image.RGBA, error)
}

// Call invokes one collaborator operation under the timeout and, on
// error or timeout, substitutes the fallback value. The pipeline never
// blocks indefinitely on a collaborator and collaborator failure is
// never fatal; degraded is true when the fallback was used.
func Call[T any](ctx context.Context, log *slog.Logger, name string, timeout time.Duration, op func(context.Context) (T, error), fallback func() T) (result T, degraded bool) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := op(callCtx)
	if err != nil {
		log.Warn("collaborator failed, using fallback", "collaborator", name, "error", err)
		return fallback(), true
	}
	return result, false
}
