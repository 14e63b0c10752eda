package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func TestNewGeneratorWithoutKey(t *testing.T) {
	gen, err := newGenerator(context.Background(), GeminiConfig{Model: "gemini-2.5-flash"}, nil)
	require.NoError(t, err)

	_, err = gen.Generate(context.Background(), nil, defaultGenerationParams)
	assert.True(t, errors.Is(err, ErrNoAPIKey))
}

func TestGeminiGenerate(t *testing.T) {
	var gotPath string
	var gotBody struct {
		Contents []struct {
			Role  string `json:"role"`
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"contents"`
		GenerationConfig struct {
			Temperature float64 `json:"temperature"`
			TopK        float64 `json:"topK"`
		} `json:"generationConfig"`
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"candidates": [{
				"content": {
					"role": "model",
					"parts": [{"text": "Planning...", "thought": true}, {"text": "Yes, "}, {"text": "I am."}]
				}
			}]
		}`))
	}))
	t.Cleanup(srv.Close)

	gen, err := newGenerator(context.Background(), GeminiConfig{
		APIKey:  "test-key",
		Model:   "gemini-test",
		BaseURL: srv.URL + "/",
	}, srv.Client())
	require.NoError(t, err)

	reply, err := gen.Generate(context.Background(), []Message{
		{Role: RoleUser, Text: "system"},
		{Role: RoleModel, Text: "greeting"},
		{Role: RoleUser, Text: "Are you open to remote work?"},
	}, defaultGenerationParams)
	require.NoError(t, err)
	assert.Equal(t, "Yes, I am.", reply)

	assert.True(t, strings.HasSuffix(gotPath, "models/gemini-test:generateContent"), gotPath)
	require.Len(t, gotBody.Contents, 3)
	assert.Equal(t, "model", gotBody.Contents[1].Role)
	assert.Equal(t, "Are you open to remote work?", gotBody.Contents[2].Parts[0].Text)
	assert.InDelta(t, 0.7, gotBody.GenerationConfig.Temperature, 0.001)
	assert.InDelta(t, 40, gotBody.GenerationConfig.TopK, 0.001)
}

func TestGeminiGenerateUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error": {"code": 500, "message": "boom", "status": "INTERNAL"}}`))
	}))
	t.Cleanup(srv.Close)

	gen, err := newGenerator(context.Background(), GeminiConfig{
		APIKey:  "test-key",
		Model:   "gemini-test",
		BaseURL: srv.URL + "/",
	}, srv.Client())
	require.NoError(t, err)

	_, err = gen.Generate(context.Background(), []Message{{Role: RoleUser, Text: "hi"}}, defaultGenerationParams)
	assert.Error(t, err)
}

func TestReplyText(t *testing.T) {
	assert.Empty(t, replyText(nil))
	assert.Empty(t, replyText(&genai.GenerateContentResponse{}))
	assert.Empty(t, replyText(&genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{}},
	}))

	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{
				{Text: "hidden", Thought: true},
				{Text: "visible"},
			}},
		}},
	}
	assert.Equal(t, "visible", replyText(resp))
}
