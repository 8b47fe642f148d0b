package agent

import (
	"context"
	"fmt"
	"os"

	"google.golang.org/genai"

	"prpforge/internal/backlog"
	"prpforge/internal/prp"
)

// DefaultGeminiModel is used when config names no model.
const DefaultGeminiModel = "gemini-3-pro-preview"

// GeminiAgent generates research artifacts through Google's GenAI API.
// The key comes from GEMINI_API_KEY only.
type GeminiAgent struct {
	client *genai.Client
	model  string
}

// NewGeminiAgent builds the agent from the environment.
func NewGeminiAgent(ctx context.Context, model string) (*GeminiAgent, error) {
	key := os.Getenv("GEMINI_API_KEY")
	if key == "" {
		return nil, fmt.Errorf("%w: set GEMINI_API_KEY", ErrAPIKeyRequired)
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: key})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return &GeminiAgent{client: client, model: model}, nil
}

// Generate renders the research prompt and parses the JSON response.
// The API is asked for application/json directly; the fence-stripping
// in parseArtifact still applies for models that decorate anyway.
func (g *GeminiAgent) Generate(ctx context.Context, item backlog.Subtask, b backlog.Backlog) (*prp.Artifact, error) {
	prompt, err := buildPrompt(item, b)
	if err != nil {
		return nil, err
	}

	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(researchSystemPrompt, genai.RoleUser),
		ResponseMIMEType:  "application/json",
	}
	result, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	return parseArtifact(result.Text(), item.ID)
}
