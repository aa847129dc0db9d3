package insight

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"threatwatch/internal/threat"
)

const systemPrompt = "You are a cybersecurity threat analyst. Analyze the given threat data and provide concise insights."

// Gemini backs the insight provider with Google's generative models.
type Gemini struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGemini dials the API. modelName defaults to gemini-pro when empty.
func NewGemini(ctx context.Context, apiKey, modelName string) (*Gemini, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	if modelName == "" {
		modelName = "gemini-pro"
	}
	model := client.GenerativeModel(modelName)
	model.SetTemperature(0.7)
	model.SetMaxOutputTokens(150)
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(systemPrompt)}}
	return &Gemini{client: client, model: model}, nil
}

// Analyze implements Provider.
func (g *Gemini) Analyze(ctx context.Context, t threat.Threat) (string, error) {
	payload, err := json.Marshal(map[string]any{
		"type":       t.Type,
		"severity":   t.Severity,
		"source":     t.Source,
		"indicators": t.Indicators,
		"status":     t.Status,
	})
	if err != nil {
		return "", err
	}
	resp, err := g.model.GenerateContent(ctx, genai.Text(payload))
	if err != nil {
		return "", fmt.Errorf("generate insight: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("no response candidates")
	}
	var out string
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			out += string(text)
		}
	}
	if out == "" {
		return "", fmt.Errorf("empty model response")
	}
	return out, nil
}

// Close releases the underlying client.
func (g *Gemini) Close() { g.client.Close() }
