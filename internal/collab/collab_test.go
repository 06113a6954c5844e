package collab

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCallSuccess(t *testing.T) {
	got, degraded := Call(context.Background(), discard(), "analyzer", time.Second,
		func(ctx context.Context) (int, error) { return 42, nil },
		func() int { return -1 },
	)
	require.Equal(t, 42, got)
	require.False(t, degraded)
}

func TestCallErrorFallsBack(t *testing.T) {
	got, degraded := Call(context.Background(), discard(), "analyzer", time.Second,
		func(ctx context.Context) (int, error) { return 0, errors.New("unreachable") },
		func() int { return -1 },
	)
	require.Equal(t, -1, got)
	require.True(t, degraded)
}

func TestCallTimeoutFallsBack(t *testing.T) {
	start := time.Now()
	got, degraded := Call(context.Background(), discard(), "validator", 20*time.Millisecond,
		func(ctx context.Context) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		},
		func() string { return "fallback" },
	)
	require.Equal(t, "fallback", got)
	require.True(t, degraded)
	require.Less(t, time.Since(start), time.Second, "call must not block past its timeout")
}

func TestDecodeJSON(t *testing.T) {
	var v struct {
		Score float64 `json:"score"`
	}

	require.NoError(t, decodeJSON(`{"score": 7.5}`, &v))
	require.Equal(t, 7.5, v.Score)

	fenced := "```json\n{\"score\": 6.0}\n```"
	require.NoError(t, decodeJSON(fenced, &v))
	require.Equal(t, 6.0, v.Score)

	require.Error(t, decodeJSON("not json at all", &v))
}

func TestHeuristicPrinciples(t *testing.T) {
	set := HeuristicPrinciples(&MotionAnalysis{Category: MotionTranslation, Energy: EnergyMedium})

	timing, ok := set.Find(PrincipleTiming)
	require.True(t, ok)
	require.Equal(t, 1.0, timing.Confidence)

	_, ok = set.Find(PrincipleArc)
	require.True(t, ok, "translation should include arc")

	ease, ok := set.Find(PrincipleSlowInOut)
	require.True(t, ok, "medium energy should include slow_in_slow_out")
	require.Equal(t, "ease-in-out", ease.StringParam("ease_type", ""))

	// Deformation at explosive energy earns neither arc nor easing.
	set = HeuristicPrinciples(&MotionAnalysis{Category: MotionDeformation, Energy: EnergyExplosive})
	_, ok = set.Find(PrincipleArc)
	require.False(t, ok)
	_, ok = set.Find(PrincipleSlowInOut)
	require.False(t, ok)
	_, ok = set.Find(PrincipleTiming)
	require.True(t, ok, "timing always applies")
}

func TestNeutralReport(t *testing.T) {
	r := NeutralReport("connection refused")
	require.Equal(t, 8.0, r.Overall)
	require.True(t, r.Fallback)
	require.NotEmpty(t, r.Issues)
}

func TestPrincipleParams(t *testing.T) {
	p := Principle{Name: "arc", Params: map[string]any{"arc_type": "parabolic", "arc_intensity": 0.8, "delay": 2}}

	require.Equal(t, "parabolic", p.StringParam("arc_type", "none"))
	require.Equal(t, "none", p.StringParam("missing", "none"))
	require.Equal(t, 0.8, p.FloatParam("arc_intensity", 0))
	require.Equal(t, 2.0, p.FloatParam("delay", 0))
	require.Equal(t, 0.3, p.FloatParam("missing", 0.3))
}
