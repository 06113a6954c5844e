// Package pipeline runs one in-betweening job as a bounded state
// machine: Analyze, Principles, Plan, Generate, Validate, then Refine
// or replan until the validator is satisfied or the iteration cap hits.
package pipeline

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ivlev/inbetween/internal/collab"
	"github.com/ivlev/inbetween/internal/extract"
	"github.com/ivlev/inbetween/internal/generate"
	"github.com/ivlev/inbetween/internal/plan"
	"github.com/ivlev/inbetween/internal/refine"
	"github.com/ivlev/inbetween/internal/render"
	"github.com/ivlev/inbetween/internal/system"
)

// State names one stage of the job lifecycle.
type State int

const (
	StateAnalyze State = iota
	StatePrinciples
	StatePlan
	StateGenerate
	StateValidate
	StateRefine
	StateDone
)

var stateNames = map[State]string{
	StateAnalyze:    "analyze",
	StatePrinciples: "principles",
	StatePlan:       "plan",
	StateGenerate:   "generate",
	StateValidate:   "validate",
	StateRefine:     "refine",
	StateDone:       "done",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// maxIterations strictly bounds refine/replan loops so every job
// terminates regardless of validation outcomes.
const maxIterations = 3

// next is the whole routing policy. Every state except Validate moves
// linearly forward; Validate routes on the report and the iteration
// count.
func next(s State, report *collab.ValidationReport, iterations int) State {
	switch s {
	case StateAnalyze:
		return StatePrinciples
	case StatePrinciples:
		return StatePlan
	case StatePlan:
		return StateGenerate
	case StateGenerate:
		return StateValidate
	case StateValidate:
		return routeValidation(report.Overall, iterations)
	case StateRefine:
		return StateValidate
	default:
		return StateDone
	}
}

func routeValidation(overall float64, iterations int) State {
	switch {
	case overall >= 8.0:
		return StateDone
	case overall < 6.0 && iterations < 2:
		return StatePlan
	case overall >= 6.0 && iterations < maxIterations:
		return StateRefine
	default:
		return StateDone
	}
}

// Message is one entry in the job's activity log.
type Message struct {
	Agent     string    `json:"agent"`
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	Details   string    `json:"details,omitempty"`
}

// Pair holds the two keyframes a job interpolates between.
type Pair struct {
	Start *image.RGBA
	End   *image.RGBA
}

// Result is the caller-facing output of a finished job.
type Result struct {
	JobID      string
	Frames     []*image.RGBA
	Plan       *plan.Plan
	Principles collab.PrincipleSet
	Validation *collab.ValidationReport
	Iterations int
	Log        []Message
}

// Options wires the orchestrator's collaborators and resources. Any
// collaborator may be nil; its documented fallback is used directly.
type Options struct {
	Analyzer     collab.Analyzer
	Detector     collab.PrincipleDetector
	Validator    collab.Validator
	Interpolator collab.Interpolator
	Workers      int
	Timeout      time.Duration
	Pool         *system.ImagePool
}

// Orchestrator executes jobs. Safe for concurrent Run calls: all
// per-job state lives in the run, and the shared pool and collaborators
// are concurrency-safe.
type Orchestrator struct {
	log       *slog.Logger
	analyzer  collab.Analyzer
	detector  collab.PrincipleDetector
	validator collab.Validator
	gen       *generate.Generator
	refiner   *refine.Refiner
	timeout   time.Duration
	pool      *system.ImagePool
}

func New(log *slog.Logger, opts Options) *Orchestrator {
	if opts.Pool == nil {
		opts.Pool = system.NewImagePool()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = collab.DefaultTimeout
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Orchestrator{
		log:       log,
		analyzer:  opts.Analyzer,
		detector:  opts.Detector,
		validator: opts.Validator,
		gen:       generate.New(log, opts.Interpolator, opts.Workers, opts.Timeout, opts.Pool),
		refiner:   refine.New(log, opts.Pool),
		timeout:   opts.Timeout,
		pool:      opts.Pool,
	}
}

// run owns all mutable job state. Stage outputs are populated
// monotonically; only a replan discards plan, frames and validation.
type run struct {
	jobID       string
	start, end  *image.RGBA
	startObj    *extract.Object
	endObj      *extract.Object
	instruction string

	analysis   *collab.MotionAnalysis
	principles collab.PrincipleSet
	plan       *plan.Plan
	frames     *generate.Sequence
	validation *collab.ValidationReport
	iterations int
	log        []Message
}

func (r *run) record(agent, action, details string) {
	r.log = append(r.log, Message{Agent: agent, Timestamp: time.Now(), Action: action, Details: details})
}

// Run executes one job to completion. Object-detection failure is the
// only hard failure; collaborator trouble degrades to fallbacks and the
// job still produces frames.
func (o *Orchestrator) Run(ctx context.Context, pair Pair, instruction string) (*Result, error) {
	jobID := uuid.NewString()
	log := o.log.With("job", jobID)
	log.Info("job started", "instruction", instruction)

	canvas := render.Canvas(pair.Start.Bounds(), pair.End.Bounds())
	r := &run{
		jobID:       jobID,
		start:       render.Fit(pair.Start, canvas),
		end:         render.Fit(pair.End, canvas),
		instruction: instruction,
	}

	var err error
	if r.startObj, err = extract.Extract(r.start); err != nil {
		return nil, fmt.Errorf("start keyframe: %w", err)
	}
	if r.endObj, err = extract.Extract(r.end); err != nil {
		return nil, fmt.Errorf("end keyframe: %w", err)
	}
	r.record("extractor", "objects_isolated",
		fmt.Sprintf("start area %d, end area %d", r.startObj.Area, r.endObj.Area))

	state := StateAnalyze
	for state != StateDone {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		log.Debug("state transition", "state", state.String(), "iterations", r.iterations)

		switch state {
		case StateAnalyze:
			o.analyze(ctx, log, r)
		case StatePrinciples:
			o.detect(ctx, log, r)
		case StatePlan:
			if err := o.buildPlan(r); err != nil {
				return nil, err
			}
		case StateGenerate:
			if err := o.generate(ctx, r); err != nil {
				return nil, err
			}
		case StateValidate:
			o.validate(ctx, log, r)
		case StateRefine:
			o.refine(r)
		}

		prev := state
		state = next(state, r.validation, r.iterations)

		switch {
		case prev == StateValidate && state == StatePlan:
			r.iterations++
			o.release(r.frames)
			r.discardForReplan()
			r.record("orchestrator", "replan",
				fmt.Sprintf("score %.1f, iteration %d", r.validation.Overall, r.iterations))
			r.validation = nil
		case prev == StateValidate && state == StateRefine:
			r.iterations++
			r.record("orchestrator", "refine_requested",
				fmt.Sprintf("score %.1f, iteration %d", r.validation.Overall, r.iterations))
		}
	}

	// Best-effort completion still tells the caller the result never
	// reached the acceptance bar.
	if r.validation.Overall < 8.0 {
		r.validation.NeedsRefinement = true
	}
	r.record("orchestrator", "done",
		fmt.Sprintf("score %.1f after %d iterations", r.validation.Overall, r.iterations))
	log.Info("job finished", "score", r.validation.Overall, "iterations", r.iterations,
		"frames", len(r.frames.Frames), "provenance", r.frames.Provenance)

	return &Result{
		JobID:      r.jobID,
		Frames:     r.frames.Frames,
		Plan:       r.plan,
		Principles: r.principles,
		Validation: r.validation,
		Iterations: r.iterations,
		Log:        r.log,
	}, nil
}

func (o *Orchestrator) analyze(ctx context.Context, log *slog.Logger, r *run) {
	var degraded bool
	if o.analyzer == nil {
		r.analysis, degraded = collab.DefaultAnalysis(), true
	} else {
		r.analysis, degraded = collab.Call(ctx, log, "analyzer", o.timeout,
			func(ctx context.Context) (*collab.MotionAnalysis, error) {
				return o.analyzer.Analyze(ctx, r.start, r.end, r.instruction)
			},
			collab.DefaultAnalysis)
	}

	// Detected centroids are ground truth for positions regardless of
	// what the collaborator reported.
	r.analysis.StartPos = collab.FromPoint(r.startObj.Centroid)
	r.analysis.EndPos = collab.FromPoint(r.endObj.Centroid)

	action := "motion_analyzed"
	if degraded {
		action = "motion_analysis_fallback"
	}
	r.record("analyzer", action,
		fmt.Sprintf("%s/%s", r.analysis.Category, r.analysis.Energy))
}

func (o *Orchestrator) detect(ctx context.Context, log *slog.Logger, r *run) {
	var degraded bool
	if o.detector == nil {
		r.principles, degraded = collab.HeuristicPrinciples(r.analysis), true
	} else {
		r.principles, degraded = collab.Call(ctx, log, "principle detector", o.timeout,
			func(ctx context.Context) (collab.PrincipleSet, error) {
				return o.detector.Detect(ctx, r.analysis, r.instruction)
			},
			func() collab.PrincipleSet { return collab.HeuristicPrinciples(r.analysis) })
	}

	action := "principles_detected"
	if degraded {
		action = "principles_heuristic"
	}
	r.record("detector", action, fmt.Sprintf("%d principles", len(r.principles)))
}

func (o *Orchestrator) buildPlan(r *run) error {
	p, err := plan.Build(r.analysis, r.principles, r.instruction)
	if err != nil {
		return fmt.Errorf("build plan: %w", err)
	}
	r.plan = p
	r.record("planner", "plan_built",
		fmt.Sprintf("%d frames, %s timing, %s arc", p.FrameCount, p.TimingCurve, p.ArcType))
	return nil
}

func (o *Orchestrator) generate(ctx context.Context, r *run) error {
	seq, err := o.gen.Generate(ctx, r.start, r.end, r.startObj, r.endObj, r.plan)
	if err != nil {
		return fmt.Errorf("generate frames: %w", err)
	}
	r.frames = seq
	r.record("generator", "frames_generated",
		fmt.Sprintf("%d frames via %s strategy", len(seq.Frames), seq.Provenance))
	return nil
}

func (o *Orchestrator) validate(ctx context.Context, log *slog.Logger, r *run) {
	sampled := sampleFrames(r.frames.Frames)

	var degraded bool
	if o.validator == nil {
		r.validation, degraded = collab.NeutralReport("no validator configured"), true
	} else {
		r.validation, degraded = collab.Call(ctx, log, "validator", o.timeout,
			func(ctx context.Context) (*collab.ValidationReport, error) {
				return o.validator.Validate(ctx, r.start, r.end, sampled, r.plan.Summary())
			},
			func() *collab.ValidationReport { return collab.NeutralReport("validator unavailable") })
	}

	action := "validated"
	if degraded {
		action = "validation_fallback"
	}
	r.record("validator", action, fmt.Sprintf("overall %.1f", r.validation.Overall))
}

func (o *Orchestrator) refine(r *run) {
	refined := o.refiner.Refine(r.frames, r.plan, r.validation, r.startObj, r.endObj)
	o.release(r.frames)
	r.frames = refined
	r.record("refiner", "refined", fmt.Sprintf("provenance %s", refined.Provenance))
}

func (r *run) discardForReplan() {
	r.plan = nil
	r.frames = nil
}

func (o *Orchestrator) release(seq *generate.Sequence) {
	for _, f := range seq.Frames {
		o.pool.Put(f)
	}
}

// sampleFrames bounds collaborator cost to a fixed subset: first frame,
// the quarter marks, and the last frame, deduplicated for short runs.
func sampleFrames(frames []*image.RGBA) []*image.RGBA {
	n := len(frames)
	if n == 0 {
		return nil
	}
	idx := []int{0, n / 4, n / 2, 3 * n / 4, n - 1}
	out := make([]*image.RGBA, 0, len(idx))
	last := -1
	for _, i := range idx {
		if i == last {
			continue
		}
		out = append(out, frames[i])
		last = i
	}
	return out
}
