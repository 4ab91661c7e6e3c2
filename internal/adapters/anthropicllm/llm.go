// Package anthropicllm implements the ports.LLM prompt-in/JSON-out contract
// over github.com/anthropics/anthropic-sdk-go. The request/response shape
// (single user turn, no tools, plain text response) is a deliberate
// simplification of other_examples' Anthropic streaming provider — this
// port needs one blocking call per report, not a streaming chat session —
// wrapped in a gobreaker circuit breaker the way kubernaut wraps its
// external LLM calls.
package anthropicllm

import (
	"context"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/sony/gobreaker"
)

// Client implements ports.LLM against the Anthropic Messages API.
type Client struct {
	client  anthropic.Client
	model   anthropic.Model
	breaker *gobreaker.CircuitBreaker
}

// New builds a Client. model is the Anthropic model identifier to invoke
// (e.g. "claude-sonnet-4-5"); apiKey is read by callers from config and
// passed through option.WithAPIKey.
func New(apiKey string, model string) *Client {
	return &Client{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  anthropic.Model(model),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "anthropic-llm",
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		}),
	}
}

// Invoke sends prompt as a single user turn and returns the concatenated
// text of the model's reply. maxTokens bounds the response length.
func (c *Client) Invoke(ctx context.Context, prompt string, maxTokens int) (string, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
			Model:     c.model,
			MaxTokens: int64(maxTokens),
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
			},
		})
		if err != nil {
			return "", fmt.Errorf("anthropicllm: create message: %w", err)
		}

		var text string
		for _, block := range msg.Content {
			if block.Type == "text" {
				text += block.Text
			}
		}
		return text, nil
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}
