// Package openai provides a responder backed by the OpenAI Chat Completions
// API. It adapts parley's turn history into the SDK's message format and back.
package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/parleyhq/parley/core"
	"github.com/parleyhq/parley/responder"
)

// Options configure the OpenAI responder. Fields mirror a subset of Chat
// Completion parameters intentionally kept minimal; extend via functional
// options without breaking callers.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
}

// Responder wraps the OpenAI Chat Completions API behind responder.Responder.
type Responder struct {
	client *openai.Client
	opts   Options
}

var _ responder.Responder = (*Responder)(nil)

// New creates an OpenAI responder using the official client.
func New(optFns ...func(o *Options)) *Responder {
	client := openai.NewClient()
	return NewFromClient(&client, optFns...)
}

// NewFromClient creates an OpenAI responder from an existing client.
func NewFromClient(client *openai.Client, optFns ...func(o *Options)) *Responder {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Responder{client: client, opts: opts}
}

// GenerateReply implements responder.Responder.
func (r *Responder) GenerateReply(ctx context.Context, systemPrompt, userMessage string, history []core.Turn, contextBlock string) (string, []core.Turn, error) {
	messages := buildMessages(systemPrompt, contextBlock, history)
	messages = append(messages, openai.UserMessage(userMessage))

	reply, err := r.complete(ctx, messages)
	if err != nil {
		return "", nil, err
	}
	return reply, responder.AppendExchange(history, userMessage, reply), nil
}

// Summarize implements responder.Responder.
func (r *Responder) Summarize(ctx context.Context, prompt, transcript, contextBlock string) (string, error) {
	messages := buildMessages(prompt, contextBlock, nil)
	messages = append(messages, openai.UserMessage(transcript))
	return r.complete(ctx, messages)
}

func (r *Responder) complete(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	resp, err := r.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:               r.opts.Model,
		Messages:            messages,
		Temperature:         openai.Float(r.opts.Temperature),
		MaxCompletionTokens: openai.Int(r.opts.MaxCompletionTokens),
	})
	if err != nil {
		return "", fmt.Errorf("openai api error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai api returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// buildMessages converts the system prompt, per-user context block and prior
// turns into OpenAI chat messages.
func buildMessages(systemPrompt, contextBlock string, history []core.Turn) []openai.ChatCompletionMessageParamUnion {
	var messages []openai.ChatCompletionMessageParamUnion
	if systemPrompt != "" {
		messages = append(messages, openai.SystemMessage(systemPrompt))
	}
	if contextBlock != "" {
		messages = append(messages, openai.SystemMessage(contextBlock))
	}
	for _, t := range history {
		if t.Content == "" {
			continue
		}
		switch core.CoerceRole(string(t.Role)) {
		case core.RoleUser:
			messages = append(messages, openai.UserMessage(t.Content))
		case core.RoleSystem:
			messages = append(messages, openai.SystemMessage(t.Content))
		default:
			messages = append(messages, openai.AssistantMessage(t.Content))
		}
	}
	return messages
}
