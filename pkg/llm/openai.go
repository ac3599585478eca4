package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIClient talks to any OpenAI-compatible chat completion endpoint
// (OpenAI, Groq, DeepSeek) via the go-openai SDK.
type OpenAIClient struct {
	client      *openai.Client
	model       string
	temperature *float32
	maxTokens   int

	maxRetries int
	retryDelay time.Duration
}

// OpenAIOptions configures an OpenAIClient.
type OpenAIOptions struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature *float32
	MaxTokens   int
}

// NewOpenAIClient creates a client for one provider endpoint.
func NewOpenAIClient(opts OpenAIOptions) (*OpenAIClient, error) {
	if opts.APIKey == "" {
		return nil, errors.New("API key not configured")
	}
	if opts.Model == "" {
		return nil, errors.New("model not configured")
	}

	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}

	return &OpenAIClient{
		client:      openai.NewClientWithConfig(cfg),
		model:       opts.Model,
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
		maxRetries:  3,
		retryDelay:  time.Second,
	}, nil
}

func (c *OpenAIClient) buildRequest(req Request, stream bool) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for _, msg := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}

	chatReq := openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   stream,
	}
	if c.temperature != nil {
		chatReq.Temperature = *c.temperature
	}
	if req.Temperature != nil {
		chatReq.Temperature = *req.Temperature
	}
	switch {
	case req.MaxTokens > 0:
		chatReq.MaxTokens = req.MaxTokens
	case c.maxTokens > 0:
		chatReq.MaxTokens = c.maxTokens
	}
	if req.JSONOnly {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}
	return chatReq
}

// Complete returns the full assistant response, retrying transient failures
// with linear backoff.
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (string, error) {
	chatReq := c.buildRequest(req, false)

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(c.retryDelay * time.Duration(attempt)):
			}
		}

		resp, err := c.client.CreateChatCompletion(ctx, chatReq)
		if err == nil {
			if len(resp.Choices) == 0 {
				return "", fmt.Errorf("%w: empty response", ErrUnavailable)
			}
			return resp.Choices[0].Message.Content, nil
		}

		lastErr = err
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if !isRetryable(err) {
			return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		slog.Warn("LLM request failed, retrying", "attempt", attempt+1, "error", err)
	}

	return "", fmt.Errorf("%w: max retries exceeded: %v", ErrUnavailable, lastErr)
}

// CompleteStream streams content deltas through onDelta and returns the
// accumulated response. Retries apply only to establishing the stream.
func (c *OpenAIClient) CompleteStream(ctx context.Context, req Request, onDelta func(delta string) error) (string, error) {
	chatReq := c.buildRequest(req, true)

	var stream *openai.ChatCompletionStream
	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(c.retryDelay * time.Duration(attempt)):
			}
		}

		stream, lastErr = c.client.CreateChatCompletionStream(ctx, chatReq)
		if lastErr == nil {
			break
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if !isRetryable(lastErr) {
			return "", fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
		}
	}
	if lastErr != nil {
		return "", fmt.Errorf("%w: max retries exceeded: %v", ErrUnavailable, lastErr)
	}
	defer stream.Close()

	var sb strings.Builder
	for {
		resp, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return sb.String(), nil
			}
			if ctx.Err() != nil {
				return sb.String(), ctx.Err()
			}
			return sb.String(), fmt.Errorf("%w: stream error: %v", ErrUnavailable, err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		sb.WriteString(delta)
		if onDelta != nil {
			if err := onDelta(delta); err != nil {
				return sb.String(), err
			}
		}
	}
}

// isRetryable classifies transient failures: rate limits, 5xx responses,
// and timeouts.
func isRetryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500
	}

	msg := err.Error()
	return strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "deadline exceeded") ||
		strings.Contains(msg, "connection refused")
}
