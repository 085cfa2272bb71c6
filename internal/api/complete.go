package api

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/ShayCichocki/glassbox/pkg/models"
)

// Request is one single-turn completion request. The pipeline never holds
// multi-turn conversations: corrective context is embedded explicitly in
// the prompt by the invoker.
type Request struct {
	// System is the system prompt, optional.
	System string
	// Prompt is the user message.
	Prompt string
	// Tier selects the fast or deep model.
	Tier models.ModelTier
	// MaxTokens caps the response length. 0 uses the default.
	MaxTokens int
}

// Response is the raw completion text plus usage counters.
type Response struct {
	// Text is the concatenated text content of the response.
	Text string
	// InputTokens is the prompt token count the service reported.
	InputTokens int64
	// OutputTokens is the completion token count the service reported.
	OutputTokens int64
}

const defaultMaxTokens = 8192

// Complete sends one message and returns the raw text response.
// Transport errors come back unwrapped for the caller to classify.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     c.modelFor(req.Tier),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: req.System},
		}
	}

	resp, err := c.inner.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("messages.new: %w", err)
	}

	c.tracker.Add(resp.Usage.InputTokens, resp.Usage.OutputTokens)

	var text string
	for _, block := range resp.Content {
		if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
			text += variant.Text
		}
	}

	return &Response{
		Text:         text,
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}, nil
}
