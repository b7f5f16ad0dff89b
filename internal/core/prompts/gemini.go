// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package prompts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"text/template"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"google.golang.org/genai"

	"github.com/jaycherian/gcp-go-video-clone/internal/cloud"
	"github.com/jaycherian/gcp-go-video-clone/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-clone/internal/core/model"
)

// GeminiPromptGenerator asks a Gemini model to watch the source video and
// answer with a model.PromptPlan in JSON.
type GeminiPromptGenerator struct {
	model          cloud.ContentGenerator
	template       *template.Template
	veoStyle       string
	soraStyle      string
	maxInlineBytes int64

	inputTokenCounter  metric.Int64Counter
	outputTokenCounter metric.Int64Counter
	retryCounter       metric.Int64Counter
}

// NewGeminiPromptGenerator parses the clip template from templates, falling
// back to the built-in defaults for any empty field. Videos larger than
// maxInlineBytes are described by their timings only.
func NewGeminiPromptGenerator(m cloud.ContentGenerator, templates cloud.PromptTemplates, maxInlineBytes int64) (*GeminiPromptGenerator, error) {
	source := templates.ClipPrompt
	if source == "" {
		source = DefaultClipPrompt
	}
	tmpl, err := template.New("clip-prompt").Parse(source)
	if err != nil {
		return nil, fmt.Errorf("parsing clip prompt template: %w", err)
	}
	g := &GeminiPromptGenerator{
		model:          m,
		template:       tmpl,
		veoStyle:       orDefault(templates.VeoStyle, DefaultVeoStyle),
		soraStyle:      orDefault(templates.SoraStyle, DefaultSoraStyle),
		maxInlineBytes: maxInlineBytes,
	}
	meter := otel.Meter(cor.MeterName)
	g.inputTokenCounter, _ = meter.Int64Counter("prompt-writer.gemini.token.input")
	g.outputTokenCounter, _ = meter.Int64Counter("prompt-writer.gemini.token.output")
	g.retryCounter, _ = meter.Int64Counter("prompt-writer.gemini.token.retry")
	return g, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// Render executes the clip template for req.
func (g *GeminiPromptGenerator) Render(req Request) (string, error) {
	example, err := json.Marshal(model.GetExamplePromptPlan())
	if err != nil {
		return "", err
	}
	style := g.veoStyle
	if req.Model.IsSora() {
		style = g.soraStyle
	}
	params := map[string]interface{}{
		"STYLE":        style,
		"PRODUCT":      req.ProductName,
		"DURATION":     req.Duration,
		"CLIP_COUNT":   len(req.Segments),
		"SEGMENTS":     req.Segments,
		"SCENES":       req.Scenes,
		"EXAMPLE_JSON": string(example),
	}
	var buffer bytes.Buffer
	if err := g.template.Execute(&buffer, params); err != nil {
		return "", fmt.Errorf("failed to execute prompt template: %w", err)
	}
	return buffer.String(), nil
}

func (g *GeminiPromptGenerator) Generate(ctx context.Context, req Request) (*model.PromptPlan, error) {
	text, err := g.Render(req)
	if err != nil {
		return nil, err
	}

	parts := []*genai.Part{genai.NewPartFromText(text)}
	if video, ok := g.inlineVideo(ctx, req.VideoPath); ok {
		parts = append(parts, genai.NewPartFromBytes(video, "video/mp4"))
	}

	out, err := cloud.GenerateMultiModalResponse(ctx, g.inputTokenCounter, g.outputTokenCounter, g.retryCounter, 0, g.model, cloud.NewUserContent(parts...))
	if err != nil {
		return nil, fmt.Errorf("gemini request failed: %w", err)
	}
	return ParsePlan(out, req.Segments)
}

func (g *GeminiPromptGenerator) inlineVideo(ctx context.Context, path string) ([]byte, bool) {
	if path == "" {
		return nil, false
	}
	stat, err := os.Stat(path)
	if err != nil {
		slog.WarnContext(ctx, "source video unreadable, prompting from timings only", "path", path, "error", err)
		return nil, false
	}
	if g.maxInlineBytes > 0 && stat.Size() > g.maxInlineBytes {
		slog.WarnContext(ctx, "source video too large to inline, prompting from timings only", "path", path, "bytes", stat.Size())
		return nil, false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		slog.WarnContext(ctx, "source video unreadable, prompting from timings only", "path", path, "error", err)
		return nil, false
	}
	return data, true
}

// ParsePlan decodes the model's JSON answer and binds it to segments.
func ParsePlan(raw string, segments []model.ClipSegment) (*model.PromptPlan, error) {
	plan := &model.PromptPlan{}
	if err := json.Unmarshal([]byte(cloud.StripCodeFence(raw)), plan); err != nil {
		return nil, fmt.Errorf("failed to unmarshal prompt plan JSON: %w", err)
	}
	if err := Validate(plan, segments); err != nil {
		return nil, err
	}
	return plan, nil
}
