package responder

import (
	"context"
	"fmt"
	"sync"

	"github.com/parleyhq/parley/core"
)

// Responder is the external capability producing chat replies and summaries.
// Both calls are potentially slow and potentially failing; callers treat them
// as synchronous and issue summarization off the request path.
type Responder interface {
	// GenerateReply produces the assistant's next reply. contextBlock
	// carries per-user context (profile lines, accumulated insight) distinct
	// from the system prompt. It returns the reply text plus the updated
	// history including the new user and assistant turns.
	GenerateReply(ctx context.Context, systemPrompt, userMessage string, history []core.Turn, contextBlock string) (string, []core.Turn, error)

	// Summarize renders a summary of transcript under the given prompt.
	// contextBlock carries prior insight text when available.
	Summarize(ctx context.Context, prompt, transcript, contextBlock string) (string, error)
}

// AppendExchange is a helper for adapters: it extends history with the user
// message and the generated reply, preserving order.
func AppendExchange(history []core.Turn, userMessage, reply string) []core.Turn {
	updated := make([]core.Turn, 0, len(history)+2)
	updated = append(updated, history...)
	updated = append(updated,
		core.Turn{Role: core.RoleUser, Content: userMessage},
		core.Turn{Role: core.RoleAssistant, Content: reply},
	)
	return updated
}

// Mock is a lightweight in-memory Responder useful for tests and examples.
// Replies can be scripted per user message; unscripted messages get a
// deterministic echo. Errors can be injected for either capability.
type Mock struct {
	mu             sync.Mutex
	replies        map[string]string
	replyErr       error
	summarizeErr   error
	summaryText    string
	generateCalls  int
	summarizeCalls int
}

// NewMock constructs a Mock with no scripted replies.
func NewMock() *Mock {
	return &Mock{replies: make(map[string]string), summaryText: "mock summary"}
}

// AddReply registers a deterministic reply for a user message.
func (m *Mock) AddReply(userMessage, reply string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies[userMessage] = reply
}

// SetSummary sets the text returned by Summarize.
func (m *Mock) SetSummary(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.summaryText = text
}

// FailGenerate injects an error returned by every subsequent GenerateReply.
func (m *Mock) FailGenerate(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replyErr = err
}

// FailSummarize injects an error returned by every subsequent Summarize.
func (m *Mock) FailSummarize(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.summarizeErr = err
}

// GenerateCalls reports how many times GenerateReply ran.
func (m *Mock) GenerateCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generateCalls
}

// SummarizeCalls reports how many times Summarize ran.
func (m *Mock) SummarizeCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.summarizeCalls
}

// GenerateReply implements Responder.
func (m *Mock) GenerateReply(ctx context.Context, systemPrompt, userMessage string, history []core.Turn, contextBlock string) (string, []core.Turn, error) {
	if err := ctx.Err(); err != nil {
		return "", nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.generateCalls++
	if m.replyErr != nil {
		return "", nil, m.replyErr
	}
	reply, ok := m.replies[userMessage]
	if !ok {
		reply = fmt.Sprintf("Mock reply to: %s", userMessage)
	}
	return reply, AppendExchange(history, userMessage, reply), nil
}

// Summarize implements Responder.
func (m *Mock) Summarize(ctx context.Context, prompt, transcript, contextBlock string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.summarizeCalls++
	if m.summarizeErr != nil {
		return "", m.summarizeErr
	}
	return m.summaryText, nil
}
