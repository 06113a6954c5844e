package collab

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/agent-api/core"
	"github.com/agent-api/core/agent"
	"github.com/agent-api/core/agent/bootstrap"
	"github.com/agent-api/ollama"
	"github.com/go-logr/logr"
)

const analysisSystemPrompt = `You are an expert animation analyzer helping to create intermediate frames between two keyframes.
The image shows the starting keyframe on the left and the ending keyframe on the right.
Identify the single dominant moving object and describe the motion between the frames.

Respond with valid JSON only (no markdown, no explanations):
{
  "motion_type": "<translation|rotation|deformation|other>",
  "motion_energy": "<very-slow|slow|medium|fast|very-fast|explosive>",
  "style": "<line_art|cel_shaded|painted|sketch|pixel_art|unknown>",
  "start_position": {"x": <0-1>, "y": <0-1>},
  "end_position": {"x": <0-1>, "y": <0-1>}
}

Positions are the object's center, normalized to the width and height of a single keyframe.`

const principlesSystemPrompt = `You are an expert animation director deciding which of the classical animation principles apply to a motion.

Principles you may emit: "timing" (always applies, confidence 1.0), "arc" (motion should follow a curved path), "slow_in_slow_out" (ease at the extremes).

Respond with valid JSON only:
{
  "applicable_principles": [
    {"principle": "<name>", "confidence": <0-1>, "parameters": {...}}
  ]
}

Parameters: for "arc" use {"arc_type": "parabolic", "arc_intensity": <0-1>};
for "slow_in_slow_out" use {"ease_type": "<ease-in|ease-out|ease-in-out>"};
for "timing" use {"speed_category": "<energy>"}.
Only include principles with confidence >= 0.5.`

const validationSystemPrompt = `You are an expert animation quality assessor. The image is a film strip: the starting keyframe, several sampled intermediate frames, and the ending keyframe, left to right.

Score the sequence on a 0-10 scale per dimension and respond with valid JSON only:
{
  "score": <overall 0-10>,
  "smoothness": <0-10>,
  "arc_adherence": <0-10>,
  "volume": <0-10>,
  "artifacts": <0-10, higher means fewer artifacts>,
  "style": <0-10>,
  "issues": ["specific problems found"],
  "suggestions": ["potential fixes"],
  "needs_refinement": <boolean>
}

Be honest and critical.`

// Ping reports whether an Ollama server answers at baseURL.
func Ping(baseURL string) bool {
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(strings.TrimRight(baseURL, "/") + "/api/tags")
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// NewVisionAgent builds an Ollama-backed vision agent with the given
// system prompt. agent-api wants a logr logger, so the slog handler is
// bridged.
func NewVisionAgent(ctx context.Context, logger *slog.Logger, baseURL string, port int, modelID, systemPrompt string) (*agent.Agent, error) {
	lgr := logr.FromSlogHandler(logger.Handler())

	provider := ollama.NewProvider(&ollama.ProviderOpts{
		Logger:  &lgr,
		BaseURL: baseURL,
		Port:    port,
	})

	if err := provider.UseModel(ctx, &core.Model{ID: modelID}); err != nil {
		return nil, fmt.Errorf("use model %s: %w", modelID, err)
	}

	return agent.NewAgent(
		bootstrap.WithProvider(provider),
		bootstrap.WithSystemPrompt(systemPrompt),
		bootstrap.WithLogger(&lgr),
	)
}

// OllamaAnalyzer implements Analyzer over a local vision model.
type OllamaAnalyzer struct {
	agent *agent.Agent
	log   *slog.Logger
}

func NewOllamaAnalyzer(ctx context.Context, logger *slog.Logger, baseURL string, port int, modelID string) (*OllamaAnalyzer, error) {
	a, err := NewVisionAgent(ctx, logger, baseURL, port, modelID, analysisSystemPrompt)
	if err != nil {
		return nil, err
	}
	return &OllamaAnalyzer{agent: a, log: logger}, nil
}

func (a *OllamaAnalyzer) Analyze(ctx context.Context, start, end *image.RGBA, instruction string) (*MotionAnalysis, error) {
	strip, err := writeStrip([]*image.RGBA{start, end})
	if err != nil {
		return nil, err
	}
	defer os.Remove(strip)

	prompt := fmt.Sprintf("The artist's instruction for this motion: %q. Analyze the two keyframes.", instruction)
	content, err := runAgent(ctx, a.agent, prompt, strip)
	if err != nil {
		return nil, err
	}

	var resp MotionAnalysis
	if err := decodeJSON(content, &resp); err != nil {
		return nil, fmt.Errorf("malformed analysis response: %w", err)
	}

	resp.Category = normalizeCategory(resp.Category)
	resp.Energy = normalizeEnergy(resp.Energy)
	resp.StartPos = clampPosition(resp.StartPos)
	resp.EndPos = clampPosition(resp.EndPos)

	a.log.Debug("analysis received", "category", resp.Category, "energy", resp.Energy, "style", resp.Style)
	return &resp, nil
}

// OllamaPrincipleDetector implements PrincipleDetector over a text model.
type OllamaPrincipleDetector struct {
	agent *agent.Agent
	log   *slog.Logger
}

func NewOllamaPrincipleDetector(ctx context.Context, logger *slog.Logger, baseURL string, port int, modelID string) (*OllamaPrincipleDetector, error) {
	a, err := NewVisionAgent(ctx, logger, baseURL, port, modelID, principlesSystemPrompt)
	if err != nil {
		return nil, err
	}
	return &OllamaPrincipleDetector{agent: a, log: logger}, nil
}

func (d *OllamaPrincipleDetector) Detect(ctx context.Context, analysis *MotionAnalysis, instruction string) (PrincipleSet, error) {
	prompt := fmt.Sprintf(
		"Motion: %s at %s energy, style %s, from (%.2f, %.2f) to (%.2f, %.2f). Instruction: %q. Which principles apply?",
		analysis.Category, analysis.Energy, analysis.Style,
		analysis.StartPos.X, analysis.StartPos.Y, analysis.EndPos.X, analysis.EndPos.Y,
		instruction,
	)

	content, err := runAgent(ctx, d.agent, prompt, "")
	if err != nil {
		return nil, err
	}

	var resp struct {
		Applicable []Principle `json:"applicable_principles"`
	}
	if err := decodeJSON(content, &resp); err != nil {
		return nil, fmt.Errorf("malformed principles response: %w", err)
	}

	set := make(PrincipleSet, 0, len(resp.Applicable))
	for _, p := range resp.Applicable {
		if p.Confidence < 0.5 {
			continue
		}
		if p.Confidence > 1 {
			p.Confidence = 1
		}
		set = append(set, p)
	}

	d.log.Debug("principles received", "count", len(set))
	return set, nil
}

// OllamaValidator implements Validator over a local vision model.
type OllamaValidator struct {
	agent *agent.Agent
	log   *slog.Logger
}

func NewOllamaValidator(ctx context.Context, logger *slog.Logger, baseURL string, port int, modelID string) (*OllamaValidator, error) {
	a, err := NewVisionAgent(ctx, logger, baseURL, port, modelID, validationSystemPrompt)
	if err != nil {
		return nil, err
	}
	return &OllamaValidator{agent: a, log: logger}, nil
}

func (v *OllamaValidator) Validate(ctx context.Context, start, end *image.RGBA, sampled []*image.RGBA, plan PlanSummary) (*ValidationReport, error) {
	frames := make([]*image.RGBA, 0, len(sampled)+2)
	frames = append(frames, start)
	frames = append(frames, sampled...)
	frames = append(frames, end)

	strip, err := writeStrip(frames)
	if err != nil {
		return nil, err
	}
	defer os.Remove(strip)

	prompt := fmt.Sprintf(
		"Animation parameters: %d total frames, timing curve %s, arc type %s. Evaluate the strip.",
		plan.FrameCount, plan.TimingCurve, plan.ArcType,
	)

	content, err := runAgent(ctx, v.agent, prompt, strip)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Score           float64  `json:"score"`
		Smoothness      float64  `json:"smoothness"`
		ArcAdherence    float64  `json:"arc_adherence"`
		Volume          float64  `json:"volume"`
		Artifacts       float64  `json:"artifacts"`
		Style           float64  `json:"style"`
		Issues          []string `json:"issues"`
		Suggestions     []string `json:"suggestions"`
		NeedsRefinement bool     `json:"needs_refinement"`
	}
	if err := decodeJSON(content, &resp); err != nil {
		return nil, fmt.Errorf("malformed validation response: %w", err)
	}

	report := &ValidationReport{
		Overall: clampScore(resp.Score),
		Scores: SubScores{
			Smoothness:   clampScore(resp.Smoothness),
			ArcAdherence: clampScore(resp.ArcAdherence),
			Volume:       clampScore(resp.Volume),
			Artifacts:    clampScore(resp.Artifacts),
			Style:        clampScore(resp.Style),
		},
		Issues:          resp.Issues,
		Suggestions:     resp.Suggestions,
		NeedsRefinement: resp.NeedsRefinement,
	}

	v.log.Debug("validation received", "score", report.Overall, "issues", len(report.Issues))
	return report, nil
}

func runAgent(ctx context.Context, a *agent.Agent, prompt, imagePath string) (string, error) {
	opts := []agent.RunOptionFunc{agent.WithInput(prompt)}
	if imagePath != "" {
		opts = append(opts, agent.WithImagePath(imagePath))
	}

	response, err := a.Run(ctx, opts...)
	if err != nil {
		return "", err
	}
	if len(response.Messages) == 0 {
		return "", fmt.Errorf("no response messages received from model")
	}
	return response.Messages[len(response.Messages)-1].Content, nil
}

// decodeJSON parses a model response, tolerating markdown code fences.
func decodeJSON(content string, v any) error {
	text := strings.TrimSpace(content)
	if strings.HasPrefix(text, "```") {
		if idx := strings.Index(text, "\n"); idx >= 0 {
			text = text[idx+1:]
		}
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	}
	return json.Unmarshal([]byte(strings.TrimSpace(text)), v)
}

// writeStrip lays frames side by side on a white background and writes
// the strip to a temp PNG for the vision agent.
func writeStrip(frames []*image.RGBA) (string, error) {
	const gap = 4

	width, height := 0, 0
	for _, f := range frames {
		width += f.Bounds().Dx() + gap
		if f.Bounds().Dy() > height {
			height = f.Bounds().Dy()
		}
	}

	strip := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(strip, strip.Bounds(), image.White, image.Point{}, draw.Src)

	x := 0
	for _, f := range frames {
		r := image.Rect(x, 0, x+f.Bounds().Dx(), f.Bounds().Dy())
		draw.Draw(strip, r, f, f.Bounds().Min, draw.Over)
		x += f.Bounds().Dx() + gap
	}

	tmp, err := os.CreateTemp("", "inbetween_strip_*.png")
	if err != nil {
		return "", err
	}
	defer tmp.Close()

	if err := png.Encode(tmp, strip); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}

func normalizeCategory(c MotionCategory) MotionCategory {
	switch c {
	case MotionTranslation, MotionRotation, MotionDeformation:
		return c
	default:
		return MotionOther
	}
}

func normalizeEnergy(e Energy) Energy {
	switch e {
	case EnergyVerySlow, EnergySlow, EnergyMedium, EnergyFast, EnergyVeryFast, EnergyExplosive:
		return e
	default:
		return EnergyMedium
	}
}

func clampPosition(p Position) Position {
	return Position{X: clamp01(p.X), Y: clamp01(p.Y)}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 10 {
		return 10
	}
	return v
}
