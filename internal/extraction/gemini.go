// Package extraction implements the pipeline's Extractor boundary against
// the Gemini API.
package extraction

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/mfigueredo/spendy/internal/pipeline"
)

// DefaultModel is the model used when none is configured.
const DefaultModel = "gemini-2.5-flash"

// GeminiExtractor sends extraction prompts to Gemini and returns the raw
// textual response. API credentials come from the environment
// (GEMINI_API_KEY or Application Default Credentials).
type GeminiExtractor struct {
	client *genai.Client
	model  string
}

// NewGeminiExtractor creates an extractor bound to the given model name.
func NewGeminiExtractor(ctx context.Context, model string) (*GeminiExtractor, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("extraction: create genai client: %w", err)
	}
	if model == "" {
		model = DefaultModel
	}
	return &GeminiExtractor{client: client, model: model}, nil
}

// Extract implements pipeline.Extractor. The response text is returned as-is;
// fence stripping and JSON recovery belong to the pipeline's parser.
func (e *GeminiExtractor) Extract(ctx context.Context, prompt pipeline.Prompt) (string, error) {
	contents := []*genai.Content{
		{
			Role:  "user",
			Parts: []*genai.Part{{Text: prompt.User}},
		},
	}

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: prompt.System}},
		},
		Temperature: genai.Ptr[float32](0.2),
	}

	resp, err := e.client.Models.GenerateContent(ctx, e.model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("extraction: generate content: %w", err)
	}

	return resp.Text(), nil
}

var _ pipeline.Extractor = (*GeminiExtractor)(nil)
