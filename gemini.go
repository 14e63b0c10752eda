package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

var ErrNoAPIKey = errors.New("gemini API key not configured")

type geminiGenerator struct {
	client *genai.Client
	model  string
}

// newGenerator returns a Gemini-backed Generator, or one that always fails
// with ErrNoAPIKey when no key is configured so the site still serves.
func newGenerator(ctx context.Context, cfg GeminiConfig, httpClient *http.Client) (Generator, error) {
	if cfg.APIKey == "" {
		return unavailableGenerator{}, nil
	}

	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &geminiGenerator{client: client, model: cfg.Model}, nil
}

func (g *geminiGenerator) Generate(ctx context.Context, contents []Message, params GenerationParams) (string, error) {
	req := make([]*genai.Content, 0, len(contents))
	for _, m := range contents {
		req = append(req, &genai.Content{
			Role:  m.Role,
			Parts: []*genai.Part{{Text: m.Text}},
		})
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, req, &genai.GenerateContentConfig{
		Temperature: genai.Ptr(params.Temperature),
		TopP:        genai.Ptr(params.TopP),
		TopK:        genai.Ptr(params.TopK),
	})
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	return replyText(resp), nil
}

// replyText joins the non-thought text parts of the first candidate.
func replyText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	cand := resp.Candidates[0]
	if cand == nil || cand.Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range cand.Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		b.WriteString(part.Text)
	}
	return b.String()
}

type unavailableGenerator struct{}

func (unavailableGenerator) Generate(context.Context, []Message, GenerationParams) (string, error) {
	return "", ErrNoAPIKey
}
