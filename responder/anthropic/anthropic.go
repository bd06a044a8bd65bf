// Package anthropic provides a responder backed by the Anthropic Claude API.
package anthropic

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/parleyhq/parley/core"
	"github.com/parleyhq/parley/responder"
)

// Options configures the Anthropic responder (model id, temperature, max
// tokens, API key). Extend via functional options to preserve stability.
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
}

// Responder wraps the Anthropic Messages API behind responder.Responder.
type Responder struct {
	client *anthropic.Client
	opts   Options
}

var _ responder.Responder = (*Responder)(nil)

// New creates an Anthropic responder using the official client.
func New(optFns ...func(o *Options)) *Responder {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := anthropic.NewClient(clientOpts...)

	return &Responder{client: &client, opts: opts}
}

// NewFromClient creates an Anthropic responder from an existing client.
func NewFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Responder {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Responder{client: client, opts: opts}
}

func defaultOptions() Options {
	return Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
	}
}

// GenerateReply implements responder.Responder.
func (r *Responder) GenerateReply(ctx context.Context, systemPrompt, userMessage string, history []core.Turn, contextBlock string) (string, []core.Turn, error) {
	messages := buildMessages(history)
	messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(userMessage)))

	reply, err := r.complete(ctx, systemBlocks(systemPrompt, contextBlock), messages)
	if err != nil {
		return "", nil, err
	}
	return reply, responder.AppendExchange(history, userMessage, reply), nil
}

// Summarize implements responder.Responder.
func (r *Responder) Summarize(ctx context.Context, prompt, transcript, contextBlock string) (string, error) {
	messages := []anthropic.MessageParam{
		anthropic.NewUserMessage(anthropic.NewTextBlock(transcript)),
	}
	return r.complete(ctx, systemBlocks(prompt, contextBlock), messages)
}

func (r *Responder) complete(ctx context.Context, system []anthropic.TextBlockParam, messages []anthropic.MessageParam) (string, error) {
	params := anthropic.MessageNewParams{
		Model:       r.opts.Model,
		Messages:    messages,
		MaxTokens:   r.opts.MaxTokens,
		Temperature: anthropic.Float(r.opts.Temperature),
	}
	if len(system) > 0 {
		params.System = system
	}

	resp, err := r.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic api error: %w", err)
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.AsText().Text
		}
	}
	return text, nil
}

// buildMessages converts prior turns to Anthropic message params. System
// turns are excluded; the system prompt travels separately.
func buildMessages(history []core.Turn) []anthropic.MessageParam {
	var messages []anthropic.MessageParam
	for _, t := range history {
		if t.Content == "" {
			continue
		}
		switch core.CoerceRole(string(t.Role)) {
		case core.RoleUser:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(t.Content)))
		case core.RoleAssistant:
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(t.Content)))
		}
	}
	return messages
}

func systemBlocks(prompt, contextBlock string) []anthropic.TextBlockParam {
	var blocks []anthropic.TextBlockParam
	if prompt != "" {
		blocks = append(blocks, anthropic.TextBlockParam{Text: prompt})
	}
	if contextBlock != "" {
		blocks = append(blocks, anthropic.TextBlockParam{Text: contextBlock})
	}
	return blocks
}
