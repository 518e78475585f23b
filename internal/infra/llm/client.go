package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"indexwatch/internal/domain"
)

// Client talks to an OpenAI-compatible chat-completions endpoint. One
// request, one response, no streaming.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	maxTokens  int
	httpClient *http.Client
}

// Options configures a Client. An empty APIKey leaves the client
// unconfigured; completions then fail with ErrAssistantNotConfigured.
type Options struct {
	BaseURL   string
	APIKey    string
	Model     string
	MaxTokens int
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// NewClient creates a completion client.
func NewClient(opts Options) *Client {
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 512
	}
	return &Client{
		baseURL:   opts.BaseURL,
		apiKey:    opts.APIKey,
		model:     opts.Model,
		maxTokens: maxTokens,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// Complete sends the conversation turns and returns the completion text.
// Empty completions and transport failures map to ErrBackendFailure.
func (c *Client) Complete(ctx context.Context, turns []domain.ConversationTurn) (string, error) {
	if c.apiKey == "" {
		return "", domain.ErrAssistantNotConfigured
	}

	messages := make([]chatMessage, len(turns))
	for i, t := range turns {
		messages[i] = chatMessage{Role: t.Role, Content: t.Text}
	}

	body, err := json.Marshal(completionRequest{
		Model:     c.model,
		Messages:  messages,
		MaxTokens: c.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrBackendFailure, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrBackendFailure, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrBackendFailure, domain.NewTransportError("complete", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: unexpected status code %d", domain.ErrBackendFailure, resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrBackendFailure, err)
	}

	var parsed completionResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrBackendFailure, err)
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("%w: empty completion", domain.ErrBackendFailure)
	}
	return parsed.Choices[0].Message.Content, nil
}
