package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// OpenAI calls an OpenAI-compatible /v1/embeddings endpoint.
type OpenAI struct {
	client  *http.Client
	model   string
	apiKey  string
	baseURL string
	dim     int
}

// NewOpenAI creates an embedder for the given model. The returned vectors
// must have dim elements.
func NewOpenAI(model, apiKey, baseURL string, dim int) *OpenAI {
	if model == "" {
		model = "text-embedding-3-small"
	}
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	if dim <= 0 {
		dim = DefaultDim
	}
	return &OpenAI{
		client:  &http.Client{Timeout: 30 * time.Second},
		model:   model,
		apiKey:  apiKey,
		baseURL: baseURL,
		dim:     dim,
	}
}

func (o *OpenAI) Dim() int { return o.dim }

func (o *OpenAI) Embed(ctx context.Context, text string) ([]float64, error) {
	payload := map[string]any{
		"model":      o.model,
		"input":      text,
		"dimensions": o.dim,
	}

	body, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/v1/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create embeddings request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if o.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+o.apiKey)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call embeddings: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp map[string]any
		json.NewDecoder(resp.Body).Decode(&errResp)
		return nil, fmt.Errorf("embeddings status %d: %v", resp.StatusCode, errResp)
	}

	var result struct {
		Data []struct {
			Embedding []float64 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode embeddings response: %w", err)
	}
	if len(result.Data) == 0 {
		return nil, fmt.Errorf("embeddings: no data returned")
	}

	vec := result.Data[0].Embedding
	if len(vec) != o.dim {
		return nil, fmt.Errorf("embeddings: got %d dimensions, want %d", len(vec), o.dim)
	}
	return vec, nil
}
