// Package embedders provides the embedding collaborator used by the
// vector-store adapter.
package embedders

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cogitoproject/cogito/pkg/config"
)

// Embedder is the batch embedding contract: one dense vector per input, in
// input order.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// OpenAIEmbedder implements Embedder against an OpenAI-compatible
// embeddings endpoint.
type OpenAIEmbedder struct {
	config    *config.EmbedderConfig
	client    *http.Client
	apiKey    string
	baseURL   string
	model     string
	dimension int
	batchSize int
}

type openAIEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openAIEmbedResponse struct {
	Object string `json:"object"`
	Data   []struct {
		Object    string    `json:"object"`
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}

type openAIEmbedErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

func NewOpenAIEmbedderFromConfig(cfg *config.EmbedderConfig) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required for OpenAI embedder")
	}

	return &OpenAIEmbedder{
		config:    cfg,
		client:    &http.Client{Timeout: time.Duration(cfg.Timeout) * time.Second},
		apiKey:    cfg.APIKey,
		baseURL:   cfg.Host,
		model:     cfg.Model,
		dimension: cfg.Dimension,
		batchSize: cfg.BatchSize,
	}, nil
}

func (e *OpenAIEmbedder) Dimension() int {
	return e.dimension
}

// EmbedBatch embeds texts in API-sized batches and returns vectors in input
// order.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, 0, len(texts))

	for start := 0; start < len(texts); start += e.batchSize {
		end := start + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch, err := e.embed(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, batch...)
	}

	return vectors, nil
}

func (e *OpenAIEmbedder) embed(ctx context.Context, texts []string) ([][]float32, error) {
	reqBody, err := json.Marshal(openAIEmbedRequest{
		Model: e.model,
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", e.baseURL+"/embeddings", bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp openAIEmbedErrorResponse
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
			return nil, fmt.Errorf("embedding API error (HTTP %d): %s", resp.StatusCode, errResp.Error.Message)
		}
		return nil, fmt.Errorf("embedding API request failed with HTTP %d", resp.StatusCode)
	}

	var response openAIEmbedResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if len(response.Data) != len(texts) {
		return nil, fmt.Errorf("embedding API returned %d vectors for %d inputs",
			len(response.Data), len(texts))
	}

	// API order is not guaranteed; place by index.
	vectors := make([][]float32, len(texts))
	for _, d := range response.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, fmt.Errorf("embedding API returned out-of-range index %d", d.Index)
		}
		vectors[d.Index] = d.Embedding
	}

	return vectors, nil
}
