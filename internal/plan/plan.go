package plan

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/ivlev/inbetween/internal/collab"
	"github.com/ivlev/inbetween/internal/curves"
)

const (
	MinFrames = 2
	MaxFrames = 32
)

// Plan is the frame-by-frame generation plan the orchestrator hands to
// the generator. The two keyframes always occupy index 0 and
// FrameCount-1.
type Plan struct {
	FrameCount   int            `yaml:"frame_count"`
	TimingCurve  curves.Curve   `yaml:"timing_curve"`
	ArcType      curves.ArcType `yaml:"arc_type"`
	ArcIntensity float64        `yaml:"arc_intensity"`
	Schedule     []Entry        `yaml:"frame_schedule"`
}

// Entry is one frame of the schedule. TLinear runs monotonically from
// 0.0 to 1.0 inclusive; TEased is exactly 0.0 and 1.0 at the endpoints.
type Entry struct {
	FrameIndex  int              `yaml:"frame_index"`
	TLinear     float64          `yaml:"t_linear"`
	TEased      float64          `yaml:"t_eased"`
	ArcPosition *collab.Position `yaml:"arc_position,omitempty"`
}

// Summary is the context slice passed to the validator collaborator.
func (p *Plan) Summary() collab.PlanSummary {
	return collab.PlanSummary{
		FrameCount:  p.FrameCount,
		TimingCurve: string(p.TimingCurve),
		ArcType:     string(p.ArcType),
	}
}

// InvalidPlanError rejects a plan at the builder boundary, before the
// generator ever runs.
type InvalidPlanError struct {
	Reason string
}

func (e *InvalidPlanError) Error() string {
	return "invalid plan: " + e.Reason
}

// energyFrames maps motion energy to a frame count when the instruction
// doesn't request one explicitly.
var energyFrames = map[collab.Energy]int{
	collab.EnergyVerySlow:  16,
	collab.EnergySlow:      12,
	collab.EnergyMedium:    8,
	collab.EnergyFast:      6,
	collab.EnergyVeryFast:  4,
	collab.EnergyExplosive: 4,
}

// frameCountRe matches "12 frames" and "frames: 12" in an instruction.
var frameCountRe = regexp.MustCompile(`(?i)\b(\d+)\s*frames?\b|\bframes?\s*[:=]\s*(\d+)\b`)

// Build turns a motion analysis and a principle set into a validated
// generation plan. Pure: identical inputs yield identical plans.
func Build(analysis *collab.MotionAnalysis, principles collab.PrincipleSet, instruction string) (*Plan, error) {
	p := &Plan{
		FrameCount:  frameCount(analysis, instruction),
		TimingCurve: curves.Linear,
		ArcType:     curves.ArcNone,
	}

	if ease, ok := principles.Find(collab.PrincipleSlowInOut); ok && ease.Confidence >= 0.5 {
		if c := curves.Curve(ease.StringParam("ease_type", string(curves.EaseInOut))); c.Valid() {
			p.TimingCurve = c
		}
	}

	if arc, ok := principles.Find(collab.PrincipleArc); ok && arc.Confidence >= 0.5 {
		if a := curves.ArcType(arc.StringParam("arc_type", string(curves.ArcParabolic))); a.Valid() {
			p.ArcType = a
		}
		p.ArcIntensity = arc.FloatParam("arc_intensity", 0.5)
	}

	start := analysis.StartPos.Point()
	end := analysis.EndPos.Point()

	p.Schedule = make([]Entry, p.FrameCount)
	for i := range p.Schedule {
		// Guard the denominator: FrameCount=2 is just the two keyframes.
		tLinear := 0.0
		if p.FrameCount > 1 {
			tLinear = float64(i) / float64(p.FrameCount-1)
		}
		tEased := curves.Ease(tLinear, p.TimingCurve)

		entry := Entry{FrameIndex: i, TLinear: tLinear, TEased: tEased}
		if p.ArcType != curves.ArcNone {
			pos := collab.FromPoint(curves.ArcPosition(start, end, tEased, p.ArcType, p.ArcIntensity))
			entry.ArcPosition = &pos
		}
		p.Schedule[i] = entry
	}

	if err := Validate(p); err != nil {
		return nil, err
	}
	return p, nil
}

func frameCount(analysis *collab.MotionAnalysis, instruction string) int {
	if m := frameCountRe.FindStringSubmatch(instruction); m != nil {
		raw := m[1]
		if raw == "" {
			raw = m[2]
		}
		if n, err := strconv.Atoi(raw); err == nil {
			// The explicit request wins, clamped to the documented range.
			if n < MinFrames {
				return MinFrames
			}
			if n > MaxFrames {
				return MaxFrames
			}
			return n
		}
	}

	if n, ok := energyFrames[analysis.Energy]; ok {
		return n
	}
	return 8
}

// Validate rejects malformed plans. Nothing here clamps: a plan that
// fails validation never reaches the generator.
func Validate(p *Plan) error {
	if p.FrameCount < MinFrames {
		return &InvalidPlanError{Reason: fmt.Sprintf("frame_count %d < %d", p.FrameCount, MinFrames)}
	}
	if p.ArcIntensity < 0 || p.ArcIntensity > 1 {
		return &InvalidPlanError{Reason: fmt.Sprintf("arc_intensity %v outside [0,1]", p.ArcIntensity)}
	}
	if !p.TimingCurve.Valid() {
		return &InvalidPlanError{Reason: fmt.Sprintf("unknown timing curve %q", p.TimingCurve)}
	}
	if !p.ArcType.Valid() {
		return &InvalidPlanError{Reason: fmt.Sprintf("unknown arc type %q", p.ArcType)}
	}
	if len(p.Schedule) != p.FrameCount {
		return &InvalidPlanError{Reason: fmt.Sprintf("schedule has %d entries for frame_count %d", len(p.Schedule), p.FrameCount)}
	}

	last := len(p.Schedule) - 1
	if p.Schedule[0].TLinear != 0 || p.Schedule[0].TEased != 0 {
		return &InvalidPlanError{Reason: "schedule does not start at exactly 0.0"}
	}
	if p.Schedule[last].TLinear != 1 || p.Schedule[last].TEased != 1 {
		return &InvalidPlanError{Reason: "schedule does not end at exactly 1.0"}
	}
	for i := 1; i < len(p.Schedule); i++ {
		if p.Schedule[i].TLinear <= p.Schedule[i-1].TLinear {
			return &InvalidPlanError{Reason: fmt.Sprintf("t_linear not increasing at index %d", i)}
		}
	}

	return nil
}
