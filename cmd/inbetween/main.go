package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/lmittmann/tint"

	"github.com/ivlev/inbetween/internal/collab"
	"github.com/ivlev/inbetween/internal/config"
	"github.com/ivlev/inbetween/internal/pipeline"
	"github.com/ivlev/inbetween/internal/plan"
	"github.com/ivlev/inbetween/internal/render"
	"github.com/ivlev/inbetween/internal/source"
	"github.com/ivlev/inbetween/internal/system"
)

const ollamaPort = 11434

func main() {
	cfg := config.Default()

	flag.StringVar(&cfg.StartPath, "start", "", "start keyframe (PNG/JPEG/PDF)")
	flag.StringVar(&cfg.EndPath, "end", "", "end keyframe (PNG/JPEG/PDF)")
	flag.IntVar(&cfg.StartPage, "start-page", 0, "page index when the start keyframe is a PDF")
	flag.IntVar(&cfg.EndPage, "end-page", 0, "page index when the end keyframe is a PDF")
	flag.StringVar(&cfg.Instruction, "instruction", "", "free-text animation instruction, e.g. \"bounce across, 12 frames\"")
	flag.StringVar(&cfg.OutputDir, "output", cfg.OutputDir, "output directory")
	flag.StringVar(&cfg.ModelID, "model", cfg.ModelID, "Ollama model for the vision collaborators")
	flag.StringVar(&cfg.OllamaURL, "ollama-url", cfg.OllamaURL, "Ollama base URL")
	flag.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "per-collaborator-call timeout")
	flag.IntVar(&cfg.Workers, "workers", 0, "render workers (0 = auto)")
	flag.IntVar(&cfg.MaxDim, "max-dim", cfg.MaxDim, "downscale keyframes so the longest side fits this")
	flag.IntVar(&cfg.DPI, "dpi", cfg.DPI, "render DPI for PDF keyframes")
	flag.BoolVar(&cfg.Verbose, "v", false, "debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	log := slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: level, TimeFormat: time.Kitchen}))

	if cfg.StartPath == "" || cfg.EndPath == "" {
		fmt.Fprintln(os.Stderr, "both -start and -end keyframes are required")
		flag.Usage()
		os.Exit(2)
	}

	if err := run(log, cfg); err != nil {
		log.Error("job failed", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger, cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start, end, err := source.LoadPair(
		source.Ref{Path: cfg.StartPath, Page: cfg.StartPage},
		source.Ref{Path: cfg.EndPath, Page: cfg.EndPage},
		cfg.DPI,
	)
	if err != nil {
		return err
	}
	start = downscale(start, cfg.MaxDim)
	end = downscale(end, cfg.MaxDim)
	log.Info("keyframes loaded",
		"start", cfg.StartPath, "end", cfg.EndPath,
		"size", fmt.Sprintf("%dx%d", start.Bounds().Dx(), start.Bounds().Dy()))

	workers := cfg.Workers
	if workers <= 0 {
		workers = system.RecommendedWorkers()
	}

	opts := pipeline.Options{
		Workers: workers,
		Timeout: cfg.Timeout,
		Pool:    system.NewImagePool(),
	}

	ollamaAddr := fmt.Sprintf("%s:%d", cfg.OllamaURL, ollamaPort)
	if collab.Ping(ollamaAddr) {
		log.Info("ollama reachable, enabling vision collaborators", "url", ollamaAddr, "model", cfg.ModelID)
		if opts.Analyzer, err = collab.NewOllamaAnalyzer(ctx, log, cfg.OllamaURL, ollamaPort, cfg.ModelID); err != nil {
			return fmt.Errorf("init analyzer: %w", err)
		}
		if opts.Detector, err = collab.NewOllamaPrincipleDetector(ctx, log, cfg.OllamaURL, ollamaPort, cfg.ModelID); err != nil {
			return fmt.Errorf("init principle detector: %w", err)
		}
		if opts.Validator, err = collab.NewOllamaValidator(ctx, log, cfg.OllamaURL, ollamaPort, cfg.ModelID); err != nil {
			return fmt.Errorf("init validator: %w", err)
		}
	} else {
		log.Warn("ollama unreachable, running with heuristic fallbacks", "url", ollamaAddr)
	}

	orch := pipeline.New(log, opts)
	res, err := orch.Run(ctx, pipeline.Pair{Start: start, End: end}, cfg.Instruction)
	if err != nil {
		return err
	}

	jobDir := filepath.Join(cfg.OutputDir, "job-"+res.JobID[:8])
	if err := os.MkdirAll(jobDir, 0755); err != nil {
		return err
	}

	for i, frame := range res.Frames {
		path := filepath.Join(jobDir, fmt.Sprintf("frame_%03d.png", i))
		if err := writePNG(path, frame); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	if err := plan.WritePlan(res.Plan, plan.PlanPath(jobDir)); err != nil {
		return fmt.Errorf("write plan: %w", err)
	}

	log.Info("frames written", "dir", jobDir, "count", len(res.Frames))
	log.Info("validation",
		"overall", res.Validation.Overall,
		"needs_refinement", res.Validation.NeedsRefinement,
		"iterations", res.Iterations)
	for _, issue := range res.Validation.Issues {
		log.Info("validation issue", "issue", issue)
	}
	return nil
}

// downscale keeps aspect ratio and only ever shrinks.
func downscale(img *image.RGBA, maxDim int) *image.RGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxDim <= 0 || (w <= maxDim && h <= maxDim) {
		return img
	}
	if w >= h {
		h = h * maxDim / w
		w = maxDim
	} else {
		w = w * maxDim / h
		h = maxDim
	}
	return render.Fit(img, image.Rect(0, 0, w, h))
}

func writePNG(path string, img *image.RGBA) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}
