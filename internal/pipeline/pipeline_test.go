package pipeline

import (
	"context"
	"errors"
	"image"
	"image/color"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ivlev/inbetween/internal/collab"
)

func discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func keyframePair() Pair {
	square := func(x0, y0 int, c color.NRGBA) *image.RGBA {
		img := image.NewRGBA(image.Rect(0, 0, 120, 120))
		for y := y0; y < y0+30; y++ {
			for x := x0; x < x0+30; x++ {
				img.Set(x, y, c)
			}
		}
		return img
	}
	return Pair{
		Start: square(10, 10, color.NRGBA{R: 255, A: 255}),
		End:   square(80, 80, color.NRGBA{B: 255, A: 255}),
	}
}

type scriptedValidator struct {
	scores []float64
	calls  int
}

func (v *scriptedValidator) Validate(context.Context, *image.RGBA, *image.RGBA, []*image.RGBA, collab.PlanSummary) (*collab.ValidationReport, error) {
	score := v.scores[len(v.scores)-1]
	if v.calls < len(v.scores) {
		score = v.scores[v.calls]
	}
	v.calls++
	return &collab.ValidationReport{
		Overall: score,
		Scores: collab.SubScores{
			Smoothness:   score,
			ArcAdherence: score,
			Volume:       score,
			Artifacts:    score,
			Style:        score,
		},
	}, nil
}

type failingAnalyzer struct{}

func (failingAnalyzer) Analyze(context.Context, *image.RGBA, *image.RGBA, string) (*collab.MotionAnalysis, error) {
	return nil, errors.New("vision backend unreachable")
}

func TestRunHappyPath(t *testing.T) {
	v := &scriptedValidator{scores: []float64{9.0}}
	o := New(discard(), Options{Validator: v, Workers: 2})

	res, err := o.Run(context.Background(), keyframePair(), "")
	require.NoError(t, err)

	require.Zero(t, res.Iterations)
	require.Equal(t, 1, v.calls)
	require.False(t, res.Validation.NeedsRefinement)
	require.Len(t, res.Frames, res.Plan.FrameCount)
	require.NotEmpty(t, res.JobID)
	require.NotEmpty(t, res.Log)
}

func TestRunTerminatesOnPersistentLowScore(t *testing.T) {
	v := &scriptedValidator{scores: []float64{5.0}}
	o := New(discard(), Options{Validator: v, Workers: 2})

	res, err := o.Run(context.Background(), keyframePair(), "")
	require.NoError(t, err)

	// Two replans are allowed, then the job accepts best effort.
	require.Equal(t, 2, res.Iterations)
	require.Equal(t, 3, v.calls)
	require.True(t, res.Validation.NeedsRefinement)
	require.Len(t, res.Frames, res.Plan.FrameCount)
}

func TestRunExhaustsRefinements(t *testing.T) {
	v := &scriptedValidator{scores: []float64{6.5}}
	o := New(discard(), Options{Validator: v, Workers: 2})

	res, err := o.Run(context.Background(), keyframePair(), "")
	require.NoError(t, err)

	require.Equal(t, 3, res.Iterations)
	require.Equal(t, 4, v.calls)
	require.True(t, res.Validation.NeedsRefinement)
}

func TestRunRefineThenAccept(t *testing.T) {
	v := &scriptedValidator{scores: []float64{6.5, 8.5}}
	o := New(discard(), Options{Validator: v, Workers: 2})

	res, err := o.Run(context.Background(), keyframePair(), "")
	require.NoError(t, err)

	require.Equal(t, 1, res.Iterations)
	require.Equal(t, 2, v.calls)
	require.False(t, res.Validation.NeedsRefinement)
}

func TestRunCompletesWhenAnalyzerFails(t *testing.T) {
	o := New(discard(), Options{Analyzer: failingAnalyzer{}, Workers: 2})

	res, err := o.Run(context.Background(), keyframePair(), "")
	require.NoError(t, err)
	require.NotEmpty(t, res.Frames, "analyzer failure must not kill the job")

	var fellBack bool
	for _, m := range res.Log {
		if m.Action == "motion_analysis_fallback" {
			fellBack = true
		}
	}
	require.True(t, fellBack, "log should show the analyzer fallback")
}

func TestRunNoCollaborators(t *testing.T) {
	o := New(discard(), Options{Workers: 2})

	res, err := o.Run(context.Background(), keyframePair(), "8 frames")
	require.NoError(t, err)

	require.Equal(t, 8, res.Plan.FrameCount)
	require.Len(t, res.Frames, 8)
	require.True(t, res.Validation.Fallback)
	require.NotEmpty(t, res.Principles, "heuristic principles must kick in")
}

type hungInterpolator struct{}

func (hungInterpolator) Available() bool { return true }

func (hungInterpolator) Interpolate(ctx context.Context, _, _ *image.RGBA, _ float64) (*image.RGBA, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestRunInterpolatorHonorsTimeout(t *testing.T) {
	v := &scriptedValidator{scores: []float64{9.0}}
	o := New(discard(), Options{
		Validator:    v,
		Interpolator: hungInterpolator{},
		Workers:      2,
		Timeout:      30 * time.Millisecond,
	})

	began := time.Now()
	res, err := o.Run(context.Background(), keyframePair(), "")
	elapsed := time.Since(began)

	require.NoError(t, err)
	require.Len(t, res.Frames, res.Plan.FrameCount, "job must finish on the object strategy")
	require.Less(t, elapsed, 2*time.Second, "hung interpolator must not stall the job")
}

func TestRunRejectsObjectlessKeyframe(t *testing.T) {
	pair := keyframePair()
	pair.Start = image.NewRGBA(image.Rect(0, 0, 120, 120))
	o := New(discard(), Options{Workers: 2})

	_, err := o.Run(context.Background(), pair, "")
	require.Error(t, err)
}

func TestRunCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	o := New(discard(), Options{Workers: 2})

	_, err := o.Run(ctx, keyframePair(), "")
	require.ErrorIs(t, err, context.Canceled)
}

func TestRoutingTable(t *testing.T) {
	cases := []struct {
		name       string
		overall    float64
		iterations int
		want       State
	}{
		{"accept at threshold", 8.0, 0, StateDone},
		{"accept above threshold", 9.5, 2, StateDone},
		{"replan on low score", 5.0, 0, StatePlan},
		{"replan second time", 3.2, 1, StatePlan},
		{"replan budget spent", 5.0, 2, StateDone},
		{"refine mid score", 6.5, 0, StateRefine},
		{"refine near cap", 7.9, 2, StateRefine},
		{"refine budget spent", 6.5, 3, StateDone},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			report := &collab.ValidationReport{Overall: tc.overall}
			require.Equal(t, tc.want, next(StateValidate, report, tc.iterations))
		})
	}
}

func TestLinearTransitions(t *testing.T) {
	require.Equal(t, StatePrinciples, next(StateAnalyze, nil, 0))
	require.Equal(t, StatePlan, next(StatePrinciples, nil, 0))
	require.Equal(t, StateGenerate, next(StatePlan, nil, 0))
	require.Equal(t, StateValidate, next(StateGenerate, nil, 0))
	require.Equal(t, StateValidate, next(StateRefine, nil, 1))
	require.Equal(t, StateDone, next(StateDone, nil, 0))
}

func TestSampleFrames(t *testing.T) {
	frames := make([]*image.RGBA, 8)
	for i := range frames {
		frames[i] = image.NewRGBA(image.Rect(0, 0, 1, 1))
	}

	sampled := sampleFrames(frames)
	require.Len(t, sampled, 5)
	require.Same(t, frames[0], sampled[0])
	require.Same(t, frames[2], sampled[1])
	require.Same(t, frames[4], sampled[2])
	require.Same(t, frames[6], sampled[3])
	require.Same(t, frames[7], sampled[4])

	short := sampleFrames(frames[:2])
	require.Len(t, short, 2)
}
