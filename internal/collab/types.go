package collab

import (
	"honnef.co/go/curve"
)

// MotionCategory is the coarse kind of movement between two keyframes.
type MotionCategory string

const (
	MotionTranslation MotionCategory = "translation"
	MotionRotation    MotionCategory = "rotation"
	MotionDeformation MotionCategory = "deformation"
	MotionOther       MotionCategory = "other"
)

// Energy is the discretized speed/weight of the motion.
type Energy string

const (
	EnergyVerySlow  Energy = "very-slow"
	EnergySlow      Energy = "slow"
	EnergyMedium    Energy = "medium"
	EnergyFast      Energy = "fast"
	EnergyVeryFast  Energy = "very-fast"
	EnergyExplosive Energy = "explosive"
)

// Position is a normalized [0,1]x[0,1] point as vision models report it.
type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

func (p Position) Point() curve.Point {
	return curve.Pt(p.X, p.Y)
}

func FromPoint(pt curve.Point) Position {
	return Position{X: pt.X, Y: pt.Y}
}

// MotionAnalysis describes what happens between the two keyframes.
// Produced once per run (by the Analyzer collaborator or the fallback)
// and immutable afterwards.
type MotionAnalysis struct {
	Category MotionCategory `json:"motion_type" yaml:"motion_type"`
	Energy   Energy         `json:"motion_energy" yaml:"motion_energy"`
	Style    string         `json:"style" yaml:"style"`
	StartPos Position       `json:"start_position" yaml:"start_position"`
	EndPos   Position       `json:"end_position" yaml:"end_position"`
}

// DefaultAnalysis is the conservative substitute used when the Analyzer
// collaborator fails: assume a plain translation at medium energy.
func DefaultAnalysis() *MotionAnalysis {
	return &MotionAnalysis{
		Category: MotionTranslation,
		Energy:   EnergyMedium,
		Style:    "unknown",
	}
}

// Principle is one confidence-scored animation guideline.
type Principle struct {
	Name       string         `json:"principle" yaml:"principle"`
	Confidence float64        `json:"confidence" yaml:"confidence"`
	Params     map[string]any `json:"parameters" yaml:"parameters"`
}

// Principle names used by the plan builder.
const (
	PrincipleTiming    = "timing"
	PrincipleArc       = "arc"
	PrincipleSlowInOut = "slow_in_slow_out"
)

// PrincipleSet is an ordered, confidence-filtered list of principles.
// The detector drops entries below 0.5; an empty set is still valid.
type PrincipleSet []Principle

// Find returns the named principle and whether it is present.
func (ps PrincipleSet) Find(name string) (Principle, bool) {
	for _, p := range ps {
		if p.Name == name {
			return p, true
		}
	}
	return Principle{}, false
}

// StringParam reads a string parameter, with a default for missing or
// mistyped values.
func (p Principle) StringParam(key, def string) string {
	if v, ok := p.Params[key].(string); ok {
		return v
	}
	return def
}

// FloatParam reads a numeric parameter, with a default for missing or
// mistyped values. JSON decoding yields float64; YAML may yield int.
func (p Principle) FloatParam(key string, def float64) float64 {
	switch v := p.Params[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return def
}

// HeuristicPrinciples derives a minimal principle set purely from the
// analysis. This is the documented PrincipleDetector fallback.
func HeuristicPrinciples(analysis *MotionAnalysis) PrincipleSet {
	set := PrincipleSet{
		{Name: PrincipleTiming, Confidence: 1.0, Params: map[string]any{"speed_category": string(analysis.Energy)}},
	}

	switch analysis.Category {
	case MotionRotation, MotionTranslation:
		set = append(set, Principle{
			Name:       PrincipleArc,
			Confidence: 0.7,
			Params:     map[string]any{"arc_type": "parabolic", "arc_intensity": 0.5},
		})
	}

	switch analysis.Energy {
	case EnergySlow, EnergyMedium:
		set = append(set, Principle{
			Name:       PrincipleSlowInOut,
			Confidence: 0.7,
			Params:     map[string]any{"ease_type": "ease-in-out"},
		})
	}

	return set
}

// SubScores are the per-dimension validation scores on a 0-10 scale.
type SubScores struct {
	Smoothness   float64 `json:"smoothness" yaml:"smoothness"`
	ArcAdherence float64 `json:"arc_adherence" yaml:"arc_adherence"`
	Volume       float64 `json:"volume" yaml:"volume"`
	// Artifacts is higher for fewer artifacts.
	Artifacts float64 `json:"artifacts" yaml:"artifacts"`
	Style     float64 `json:"style" yaml:"style"`
}

// ValidationReport is the Validator collaborator's quality assessment of
// one generated sequence. It drives the orchestrator's routing.
type ValidationReport struct {
	Overall         float64   `json:"score" yaml:"score"`
	Scores          SubScores `json:"scores" yaml:"scores"`
	Issues          []string  `json:"issues" yaml:"issues"`
	Suggestions     []string  `json:"suggestions" yaml:"suggestions"`
	NeedsRefinement bool      `json:"needs_refinement" yaml:"needs_refinement"`
	// Fallback marks a neutral report substituted after a validator failure.
	Fallback bool `json:"-" yaml:"-"`
}

// NeutralReport is substituted when the Validator collaborator fails, so
// a job can still terminate. 8.0 routes straight to Done.
func NeutralReport(reason string) *ValidationReport {
	return &ValidationReport{
		Overall: 8.0,
		Scores: SubScores{
			Smoothness:   8.0,
			ArcAdherence: 8.0,
			Volume:       8.0,
			Artifacts:    8.0,
			Style:        8.0,
		},
		Issues:   []string{"validation unavailable: " + reason},
		Fallback: true,
	}
}

// PlanSummary is the slice of the generation plan a validator needs for
// context.
type PlanSummary struct {
	FrameCount  int    `json:"num_frames"`
	TimingCurve string `json:"timing_curve"`
	ArcType     string `json:"arc_type"`
}
