package curves

import (
	"math"

	"honnef.co/go/curve"
)

// Curve names a timing reparameterization of linear progress.
type Curve string

const (
	Linear    Curve = "linear"
	EaseIn    Curve = "ease-in"
	EaseOut   Curve = "ease-out"
	EaseInOut Curve = "ease-in-out"
	Bounce    Curve = "bounce"
	Elastic   Curve = "elastic"
)

// ArcType names the shape of the motion path between two positions.
type ArcType string

const (
	ArcNone      ArcType = "none"
	ArcParabolic ArcType = "parabolic"
)

// Ease maps linear progress t in [0,1] onto the given curve.
// Ease(0)=0 and Ease(1)=1 hold exactly for every curve; frames at the
// schedule endpoints must reproduce the keyframes, not approximate them.
// Unknown curve names behave as linear.
func Ease(t float64, c Curve) float64 {
	switch c {
	case EaseIn:
		return t * t
	case EaseOut:
		return 1 - (1-t)*(1-t)
	case EaseInOut:
		if t < 0.5 {
			return 2 * t * t
		}
		return 1 - 2*(1-t)*(1-t)
	case Bounce:
		if t == 0 || t == 1 {
			return t
		}
		return bounceOut(t)
	case Elastic:
		if t == 0 || t == 1 {
			return t
		}
		const p = 0.3
		s := p / 4
		return math.Pow(2, -10*t)*math.Sin((t-s)*(2*math.Pi)/p) + 1
	default:
		return t
	}
}

// bounceOut is the classic piecewise-parabolic bounce. The last segment
// lands on 1.0 exactly.
func bounceOut(t float64) float64 {
	const n = 7.5625
	const d = 2.75
	switch {
	case t < 1/d:
		return n * t * t
	case t < 2/d:
		t -= 1.5 / d
		return n*t*t + 0.75
	case t < 2.5/d:
		t -= 2.25 / d
		return n*t*t + 0.9375
	default:
		t -= 2.625 / d
		return n*t*t + 0.984375
	}
}

// Valid reports whether c is a known timing curve.
func (c Curve) Valid() bool {
	switch c {
	case Linear, EaseIn, EaseOut, EaseInOut, Bounce, Elastic:
		return true
	}
	return false
}

// Valid reports whether a is a known arc type.
func (a ArcType) Valid() bool {
	return a == ArcNone || a == ArcParabolic
}

// ArcPosition returns the position at progress t on the path from start
// to end, in the same normalized coordinate space as the endpoints.
//
// ArcNone is a straight lerp. ArcParabolic lerps both axes and lifts y
// by -4·H·t·(1-t) with H = distance(start,end)·intensity·0.3. The offset
// vanishes at t=0 and t=1, so the path touches both endpoints exactly
// and bulges at the midpoint.
func ArcPosition(start, end curve.Point, t float64, typ ArcType, intensity float64) curve.Point {
	pos := start.Lerp(end, t)
	if typ != ArcParabolic {
		return pos
	}
	h := start.Distance(end) * intensity * 0.3
	pos.Y -= 4 * h * t * (1 - t)
	return pos
}
