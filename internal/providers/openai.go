// Package providers implements inference.LLMClient over the OpenAI and
// Anthropic SDKs, plus any OpenAI-compatible endpoint via a base URL
// override.
package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/Tell-Me-Mo/insight-engine/internal/inference"

	openai "github.com/meguminnnnnnnnn/go-openai"
)

// OpenAIClient implements inference.LLMClient by calling the OpenAI SDK
// directly.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient creates an OpenAI client. baseURL is optional and enables
// OpenAI-compatible endpoints.
func NewOpenAIClient(apiKey, modelName, baseURL string) (*OpenAIClient, error) {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &OpenAIClient{
		client: openai.NewClientWithConfig(config),
		model:  modelName,
	}, nil
}

func (c *OpenAIClient) buildMessages(req inference.CompletionRequest) []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Prompt,
	})
	return msgs
}

// Complete performs one non-streaming completion.
func (c *OpenAIClient) Complete(ctx context.Context, req inference.CompletionRequest) (string, error) {
	chatReq := openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: c.buildMessages(req),
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}
	if req.Temperature > 0 {
		chatReq.Temperature = &req.Temperature
	}

	resp, err := c.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return "", fmt.Errorf("openai completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty response from OpenAI")
	}
	return resp.Choices[0].Message.Content, nil
}

// StreamCompletion streams text deltas. The error channel receives nil on
// successful completion (or the terminal error) and is then closed.
func (c *OpenAIClient) StreamCompletion(ctx context.Context, req inference.CompletionRequest) (<-chan string, <-chan error) {
	deltaCh := make(chan string, 16)
	errCh := make(chan error, 1)

	go func() {
		defer close(deltaCh)
		defer close(errCh)

		chatReq := openai.ChatCompletionRequest{
			Model:    c.model,
			Messages: c.buildMessages(req),
			Stream:   true,
		}
		if req.MaxTokens > 0 {
			chatReq.MaxTokens = req.MaxTokens
		}
		if req.Temperature > 0 {
			chatReq.Temperature = &req.Temperature
		}

		stream, err := c.client.CreateChatCompletionStream(ctx, chatReq)
		if err != nil {
			errCh <- fmt.Errorf("openai stream: %w", err)
			return
		}
		defer stream.Close()

		for {
			response, err := stream.Recv()
			if err != nil {
				// Some SDK paths wrap EOF rather than returning io.EOF.
				if errors.Is(err, io.EOF) || strings.Contains(err.Error(), "EOF") {
					errCh <- nil
					return
				}
				errCh <- fmt.Errorf("openai stream recv: %w", err)
				return
			}
			if len(response.Choices) == 0 {
				continue
			}
			if delta := response.Choices[0].Delta.Content; delta != "" {
				select {
				case deltaCh <- delta:
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				}
			}
		}
	}()

	return deltaCh, errCh
}
