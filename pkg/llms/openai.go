package llms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cogitoproject/cogito/pkg/config"
	"github.com/cogitoproject/cogito/pkg/httpclient"
)

// OpenAIProvider implements Provider against any OpenAI-compatible
// chat-completions endpoint.
type OpenAIProvider struct {
	config     *config.LLMProviderConfig
	httpClient *httpclient.Client
}

type openAIRequest struct {
	Model           string          `json:"model"`
	Messages        []openAIMessage `json:"messages"`
	MaxTokens       *int            `json:"max_tokens,omitempty"`
	Temperature     float64         `json:"temperature"`
	Stream          bool            `json:"stream"`
	ToolChoice      string          `json:"tool_choice,omitempty"`
	ReasoningEffort string          `json:"reasoning_effort,omitempty"`
}

type openAIMessage struct {
	Role      string           `json:"role"`
	Content   interface{}      `json:"content"`
	ToolCalls []openAIToolCall `json:"tool_calls,omitempty"`
}

type openAIToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type openAIResponse struct {
	Choices []openAIChoice `json:"choices"`
	Usage   openAIUsage    `json:"usage"`
	Error   *openAIError   `json:"error,omitempty"`
}

type openAIChoice struct {
	Message      openAIMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type openAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type openAIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

func NewOpenAIProvider(apiKey string, model string) *OpenAIProvider {
	cfg := &config.LLMProviderConfig{
		Model:  model,
		APIKey: apiKey,
	}
	cfg.SetDefaults()
	cfg.APIKey = apiKey

	provider, _ := NewOpenAIProviderFromConfig(cfg)
	return provider
}

func NewOpenAIProviderFromConfig(cfg *config.LLMProviderConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required for OpenAI provider")
	}

	httpClient := httpclient.New(
		httpclient.WithHTTPClient(&http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		}),
		httpclient.WithMaxRetries(cfg.MaxRetries),
		httpclient.WithBaseDelay(time.Duration(cfg.RetryDelay)*time.Second),
		httpclient.WithHeaderParser(httpclient.ParseOpenAIRateLimitHeaders),
	)

	return &OpenAIProvider{
		config:     cfg,
		httpClient: httpClient,
	}, nil
}

// Generate performs a non-streaming completion. No tools are offered and
// tool_choice is pinned to "none"; if the model emits tool calls anyway the
// reply is treated as empty text.
func (p *OpenAIProvider) Generate(ctx context.Context, messages []Message, effort ReasoningEffort) (string, int, error) {
	request := p.buildRequest(messages, effort)

	response, err := p.makeRequest(ctx, request)
	if err != nil {
		return "", 0, err
	}

	if response.Error != nil {
		return "", 0, fmt.Errorf("OpenAI API error: %s", response.Error.Message)
	}

	if len(response.Choices) == 0 {
		return "", 0, fmt.Errorf("no response choices returned")
	}

	choice := response.Choices[0]
	tokensUsed := response.Usage.TotalTokens

	if len(choice.Message.ToolCalls) > 0 {
		slog.Warn("model attempted tool call despite tool_choice=none, treating reply as empty",
			"model", p.config.Model, "tool_calls", len(choice.Message.ToolCalls))
		return "", tokensUsed, nil
	}

	return collapseContent(choice.Message.Content), tokensUsed, nil
}

func (p *OpenAIProvider) GetModelName() string {
	return p.config.Model
}

func (p *OpenAIProvider) Close() error {
	return nil
}

func (p *OpenAIProvider) buildRequest(messages []Message, effort ReasoningEffort) openAIRequest {
	apiMessages := make([]openAIMessage, 0, len(messages))
	for _, msg := range messages {
		apiMessages = append(apiMessages, openAIMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}

	temperature := 0.7
	if p.config.Temperature != nil {
		temperature = *p.config.Temperature
	}

	request := openAIRequest{
		Model:       p.config.Model,
		Messages:    apiMessages,
		Temperature: temperature,
		Stream:      false,
		ToolChoice:  "none",
	}

	if p.config.MaxTokens > 0 {
		maxTokens := p.config.MaxTokens
		request.MaxTokens = &maxTokens
	}

	if effort != ReasoningEffortNone {
		request.ReasoningEffort = string(effort)
	}

	return request
}

func (p *OpenAIProvider) makeRequest(ctx context.Context, request openAIRequest) (*openAIResponse, error) {
	jsonData, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := p.config.Host + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.config.APIKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp openAIResponse
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != nil {
			return nil, fmt.Errorf("API error (HTTP %d): %s", resp.StatusCode, errResp.Error.Message)
		}
		return nil, fmt.Errorf("API request failed with HTTP %d", resp.StatusCode)
	}

	var response openAIResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return &response, nil
}

// collapseContent flattens the content field into plain text. Providers may
// return either a string or a list of typed content parts.
func collapseContent(content interface{}) string {
	switch v := content.(type) {
	case string:
		return v
	case []interface{}:
		var buf bytes.Buffer
		for _, part := range v {
			m, ok := part.(map[string]interface{})
			if !ok {
				continue
			}
			if m["type"] == "text" {
				if text, ok := m["text"].(string); ok {
					buf.WriteString(text)
				}
			}
		}
		return buf.String()
	default:
		return ""
	}
}
