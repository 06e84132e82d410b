package providers

import (
	"context"
	"fmt"

	"github.com/Tell-Me-Mo/insight-engine/internal/inference"

	anthropic "github.com/liushuangls/go-anthropic/v2"
)

// AnthropicClient implements inference.LLMClient by calling the Anthropic
// SDK directly.
type AnthropicClient struct {
	client *anthropic.Client
	model  string
}

// NewAnthropicClient creates an Anthropic client.
func NewAnthropicClient(apiKey, modelName string) (*AnthropicClient, error) {
	return &AnthropicClient{
		client: anthropic.NewClient(apiKey),
		model:  modelName,
	}, nil
}

func (c *AnthropicClient) buildRequest(req inference.CompletionRequest) anthropic.MessagesRequest {
	maxTokens := 4096
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}

	out := anthropic.MessagesRequest{
		Model: anthropic.Model(c.model),
		Messages: []anthropic.Message{
			{
				Role:    anthropic.RoleUser,
				Content: []anthropic.MessageContent{anthropic.NewTextMessageContent(req.Prompt)},
			},
		},
		MaxTokens: maxTokens,
	}
	if req.System != "" {
		out.MultiSystem = []anthropic.MessageSystemPart{{Type: "text", Text: req.System}}
	}
	if req.Temperature > 0 {
		t := req.Temperature
		out.Temperature = &t
	}
	return out
}

// Complete performs one non-streaming completion.
func (c *AnthropicClient) Complete(ctx context.Context, req inference.CompletionRequest) (string, error) {
	resp, err := c.client.CreateMessages(ctx, c.buildRequest(req))
	if err != nil {
		return "", fmt.Errorf("anthropic completion: %w", err)
	}
	var out string
	for _, content := range resp.Content {
		if content.Type == "text" && content.Text != nil {
			out += *content.Text
		}
	}
	return out, nil
}

// StreamCompletion streams text deltas via the SDK's callback API. The error
// channel receives nil on successful completion and is then closed.
func (c *AnthropicClient) StreamCompletion(ctx context.Context, req inference.CompletionRequest) (<-chan string, <-chan error) {
	deltaCh := make(chan string, 16)
	errCh := make(chan error, 1)

	go func() {
		defer close(deltaCh)
		defer close(errCh)

		streamReq := anthropic.MessagesStreamRequest{
			MessagesRequest: c.buildRequest(req),
		}

		var streamErr error
		streamReq.OnError = func(errResp anthropic.ErrorResponse) {
			if errResp.Error != nil {
				streamErr = fmt.Errorf("anthropic stream: %s", errResp.Error.Message)
			} else {
				streamErr = fmt.Errorf("anthropic stream error")
			}
		}
		streamReq.OnContentBlockDelta = func(delta anthropic.MessagesEventContentBlockDeltaData) {
			if delta.Delta.Type == "text_delta" && delta.Delta.Text != nil {
				select {
				case deltaCh <- *delta.Delta.Text:
				case <-ctx.Done():
				}
			}
		}

		_, err := c.client.CreateMessagesStream(ctx, streamReq)
		if err != nil {
			errCh <- fmt.Errorf("anthropic stream: %w", err)
			return
		}
		if streamErr != nil {
			errCh <- streamErr
			return
		}
		errCh <- nil
	}()

	return deltaCh, errCh
}
