package planner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Oracle is the reasoning capability behind analysis answers: one call,
// one JSON document back. Tests inject a stub.
type Oracle interface {
	Reason(ctx context.Context, contract, userText string) ([]byte, error)
}

const oracleTimeout = 30 * time.Second

// GeminiOracle calls the Google Generative Language generateContent REST
// endpoint in JSON-response mode.
type GeminiOracle struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

// NewGeminiOracle creates an oracle for the given model. An empty API key
// yields a nil oracle so callers fall back deterministically.
func NewGeminiOracle(apiKey, model string) *GeminiOracle {
	if apiKey == "" {
		return nil
	}
	return &GeminiOracle{
		apiKey:  apiKey,
		model:   model,
		baseURL: "https://generativelanguage.googleapis.com",
		client:  &http.Client{Timeout: oracleTimeout},
	}
}

// SetBaseURL overrides the API host, for tests.
func (g *GeminiOracle) SetBaseURL(u string) { g.baseURL = u }

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// Reason sends the contract plus the caller's data and returns the model's
// JSON answer text.
func (g *GeminiOracle) Reason(ctx context.Context, contract, userText string) ([]byte, error) {
	payload := map[string]any{
		"contents": []map[string]any{
			{"role": "user", "parts": []map[string]string{{"text": contract + "\n\n" + userText}}},
		},
		"generationConfig": map[string]any{
			"temperature":      0.2,
			"responseMimeType": "application/json",
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("oracle marshal: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", g.baseURL, g.model, g.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("oracle request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("oracle call: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("oracle read: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("oracle status %d", resp.StatusCode)
	}

	var gr geminiResponse
	if err := json.Unmarshal(raw, &gr); err != nil {
		return nil, fmt.Errorf("oracle decode: %w", err)
	}
	if len(gr.Candidates) == 0 || len(gr.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("oracle returned no candidates")
	}
	return []byte(gr.Candidates[0].Content.Parts[0].Text), nil
}
