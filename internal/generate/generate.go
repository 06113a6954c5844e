package generate

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"math"
	"time"

	"golang.org/x/sync/errgroup"
	"honnef.co/go/curve"

	"github.com/ivlev/inbetween/internal/collab"
	"github.com/ivlev/inbetween/internal/extract"
	"github.com/ivlev/inbetween/internal/plan"
	"github.com/ivlev/inbetween/internal/render"
	"github.com/ivlev/inbetween/internal/system"
)

// Provenance of a generated sequence, recorded so validation and logs
// can tell which strategy produced the frames.
const (
	ProvenanceObject       = "object"
	ProvenanceInterpolator = "interpolator"
)

// Sequence is one ordered run of RGBA frames, one per schedule entry.
type Sequence struct {
	Frames     []*image.RGBA
	Provenance string
}

// Generator produces a Sequence from a plan and a keyframe pair. The
// object-based strategy is always available; when a higher-fidelity
// external interpolator answers, it is preferred, with the object
// strategy as the failure fallback. Every Interpolate call runs under
// the per-call timeout, the same policy as the other collaborators.
type Generator struct {
	log     *slog.Logger
	interp  collab.Interpolator
	workers int
	timeout time.Duration
	pool    *system.ImagePool
}

func New(log *slog.Logger, interp collab.Interpolator, workers int, timeout time.Duration, pool *system.ImagePool) *Generator {
	if workers < 1 {
		workers = 1
	}
	if timeout <= 0 {
		timeout = collab.DefaultTimeout
	}
	return &Generator{log: log, interp: interp, workers: workers, timeout: timeout, pool: pool}
}

// Generate renders every schedule entry. Keyframes must already be
// fitted to a common canvas and the objects extracted from those fitted
// images.
func (g *Generator) Generate(ctx context.Context, start, end *image.RGBA, startObj, endObj *extract.Object, p *plan.Plan) (*Sequence, error) {
	if g.interp != nil && g.interp.Available() {
		seq, err := g.interpolatorStrategy(ctx, start, end, p)
		if err == nil {
			return seq, nil
		}
		// A timeout of one collaborator call is just a failed
		// collaborator. Only the job's own cancellation is fatal.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		g.log.Warn("external interpolator failed, falling back to object strategy", "error", err)
	}

	return g.objectStrategy(ctx, start, end, startObj, endObj, p)
}

// objectStrategy synthesizes each frame from the tracked objects.
// Deterministic: each worker writes only its own index.
func (g *Generator) objectStrategy(ctx context.Context, start, end *image.RGBA, startObj, endObj *extract.Object, p *plan.Plan) (*Sequence, error) {
	canvas := start.Bounds()
	frames := make([]*image.RGBA, len(p.Schedule))

	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(g.workers)

	for i, entry := range p.Schedule {
		group.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			switch {
			case entry.TEased == 0:
				frames[i] = g.clone(start)
			case entry.TEased == 1:
				frames[i] = g.clone(end)
			default:
				frames[i] = render.Synthesize(startObj, endObj, canvas, entry.TEased, arcPoint(entry), g.pool)
			}
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	return &Sequence{Frames: frames, Provenance: ProvenanceObject}, nil
}

// interpolatorStrategy delegates base frames to the external
// interpolator and warps them onto the planned arc. The warp is a
// whole-frame translation: cheap, but it shifts any background along
// with the object. That matches the upstream interpolators we wrap,
// which only know straight-line motion.
func (g *Generator) interpolatorStrategy(ctx context.Context, start, end *image.RGBA, p *plan.Plan) (*Sequence, error) {
	canvas := start.Bounds()
	frames := make([]*image.RGBA, len(p.Schedule))

	for i, entry := range p.Schedule {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		switch {
		case entry.TEased == 0:
			frames[i] = g.clone(start)
			continue
		case entry.TEased == 1:
			frames[i] = g.clone(end)
			continue
		}

		callCtx, cancel := context.WithTimeout(ctx, g.timeout)
		frame, err := g.interp.Interpolate(callCtx, start, end, entry.TEased)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("interpolate frame %d: %w", i, err)
		}
		frame = render.Fit(frame, canvas)

		if entry.ArcPosition != nil {
			frame = g.warpToArc(frame, entry, canvas)
		}
		frames[i] = frame
	}

	return &Sequence{Frames: frames, Provenance: ProvenanceInterpolator}, nil
}

// warpToArc shifts the frame so its detected object centroid lands on
// the planned arc position. Frames with no detectable object pass
// through unshifted.
func (g *Generator) warpToArc(frame *image.RGBA, entry plan.Entry, canvas image.Rectangle) *image.RGBA {
	obj, err := extract.Extract(frame)
	if err != nil {
		g.log.Debug("arc warp skipped, no object in interpolated frame", "frame", entry.FrameIndex)
		return frame
	}

	w, h := canvas.Dx(), canvas.Dy()
	dx := int(math.Round((entry.ArcPosition.X - obj.Centroid.X) * float64(w)))
	dy := int(math.Round((entry.ArcPosition.Y - obj.Centroid.Y) * float64(h)))
	if dx == 0 && dy == 0 {
		return frame
	}

	g.log.Debug("arc warp", "frame", entry.FrameIndex, "dx", dx, "dy", dy)

	shifted := g.pool.Get(canvas)
	for y := 0; y < h; y++ {
		sy := y - dy
		if sy < 0 || sy >= h {
			continue
		}
		for x := 0; x < w; x++ {
			sx := x - dx
			if sx < 0 || sx >= w {
				continue
			}
			do := shifted.PixOffset(canvas.Min.X+x, canvas.Min.Y+y)
			so := frame.PixOffset(canvas.Min.X+sx, canvas.Min.Y+sy)
			copy(shifted.Pix[do:do+4], frame.Pix[so:so+4])
		}
	}
	g.pool.Put(frame)
	return shifted
}

func (g *Generator) clone(img *image.RGBA) *image.RGBA {
	dst := g.pool.Get(img.Bounds())
	copy(dst.Pix, img.Pix)
	return dst
}

func arcPoint(entry plan.Entry) *curve.Point {
	if entry.ArcPosition == nil {
		return nil
	}
	p := entry.ArcPosition.Point()
	return &p
}
