package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ensembleworks/ensemble/pkg/models"
)

// OpenAIConfig configures the OpenAI-compatible chat completions client.
// Any provider speaking the same wire shape works (OpenAI, OpenRouter,
// local inference servers).
type OpenAIConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Timeout time.Duration
}

// OpenAIClient is an Invoker over the chat completions HTTP API.
type OpenAIClient struct {
	cfg        OpenAIConfig
	httpClient *http.Client
}

// NewOpenAIClient creates the client. Cancellation is per-request via ctx;
// the client timeout is the outer bound.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &OpenAIClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Invoke posts a chat completion and maps transport failures onto the
// error taxonomy.
func (c *OpenAIClient) Invoke(ctx context.Context, req Request) (*Response, error) {
	payload := chatRequest{
		Model:       req.ModelID,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.SystemPrompt != "" {
		payload.Messages = append(payload.Messages, chatMessage{Role: "system", Content: req.SystemPrompt})
	}
	payload.Messages = append(payload.Messages, chatMessage{Role: "user", Content: req.UserPrompt})

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		switch ctx.Err() {
		case context.DeadlineExceeded:
			return nil, models.WrapKind(models.ErrKindTimeout, err)
		case context.Canceled:
			return nil, models.WrapKind(models.ErrKindCancelled, err)
		}
		return nil, models.WrapKind(models.ErrKindProviderError, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, models.WrapKind(models.ErrKindProviderError, fmt.Errorf("read response: %w", err))
	}

	switch {
	case httpResp.StatusCode == http.StatusTooManyRequests:
		return nil, models.NewKindError(models.ErrKindRateLimited,
			fmt.Sprintf("provider rate limited model %s", req.ModelID))
	case httpResp.StatusCode != http.StatusOK:
		return nil, models.NewKindError(models.ErrKindProviderError,
			fmt.Sprintf("provider returned HTTP %d: %s", httpResp.StatusCode, truncateBody(respBody)))
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, models.WrapKind(models.ErrKindProviderError, fmt.Errorf("decode response: %w", err))
	}
	if parsed.Error != nil {
		return nil, models.NewKindError(models.ErrKindProviderError, parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return nil, models.NewKindError(models.ErrKindProviderError, "provider returned no choices")
	}

	choice := parsed.Choices[0]
	return &Response{
		Text:         choice.Message.Content,
		TokensIn:     parsed.Usage.PromptTokens,
		TokensOut:    parsed.Usage.CompletionTokens,
		FinishReason: choice.FinishReason,
	}, nil
}

func truncateBody(b []byte) string {
	const limit = 200
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}
