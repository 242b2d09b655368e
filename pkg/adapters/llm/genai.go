// Package llm implements the ModelClient port against Gemini, plus a
// scripted client for tests and offline use.
package llm

import (
	"context"
	"fmt"
	"os"

	"google.golang.org/genai"
)

// DefaultModel is used when no model name is configured.
const DefaultModel = "gemini-2.5-flash"

// Client implements ports.ModelClient on the Gemini API.
type Client struct {
	client *genai.Client
	model  string
}

// New creates a Gemini-backed client. Credentials come from the
// environment (GOOGLE_API_KEY, or Vertex project settings picked up by the
// SDK).
func New(ctx context.Context, model string) (*Client, error) {
	if model == "" {
		model = DefaultModel
	}

	cfg := &genai.ClientConfig{}
	if project := os.Getenv("CONCIERGE_GCP_PROJECT"); project != "" {
		cfg.Project = project
		cfg.Location = os.Getenv("CONCIERGE_GCP_LOCATION")
		cfg.Backend = genai.BackendVertexAI
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}
	return &Client{client: client, model: model}, nil
}

// Complete sends one prompt under a system instruction and returns the
// model's text. Temperature is kept low: every caller wants structured,
// reproducible output, not prose.
func (c *Client) Complete(ctx context.Context, system, prompt string) (string, error) {
	temp := float32(0.1)

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		Temperature:       &temp,
	}

	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}
	res, err := c.client.Models.GenerateContent(ctx, c.model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("genai generate content: %w", err)
	}

	text := res.Text()
	if text == "" {
		return "", fmt.Errorf("genai returned empty text")
	}
	return text, nil
}
