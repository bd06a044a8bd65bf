package enrich

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/parleyhq/parley/core"
	"github.com/parleyhq/parley/logging"
	"github.com/parleyhq/parley/responder"
)

// DefaultSummaryPrompt instructs the responder to condense a transcript.
const DefaultSummaryPrompt = "Summarize the following conversation transcript in a few sentences. " +
	"Focus on the user's interests, questions and decisions. " +
	"Prior insights about the user may be provided as context."

// DefaultInsightPrompt instructs the responder to fold a new summary into the
// accumulated user insight.
const DefaultInsightPrompt = "You maintain a running set of insights about a user. " +
	"Given the existing insights and a summary of the latest conversation, " +
	"produce an updated, concise insight text. Keep durable preferences, drop stale details."

// Options configures a Scheduler.
type Options struct {
	// Workers bounds concurrent enrichment runs. Defaults to 2.
	Workers int

	// QueueSize bounds pending session keys; Enqueue rejects beyond it.
	// Defaults to 32.
	QueueSize int

	SummaryPrompt string
	InsightPrompt string

	// AttachSummary stores the summary on the closed conversation. Defaults
	// to a direct store field update; wire the lifecycle controller's
	// AttachSummary to keep its cache coherent.
	AttachSummary func(ctx context.Context, sessionKey, summary string) error

	// UpdateInsight stores the regenerated account insight. Defaults to a
	// direct store field update; wire the controller's UpdateInsight.
	UpdateInsight func(ctx context.Context, accountID, insight string) error

	// Logger defaults to NoOp.
	Logger logging.Logger
}

// Scheduler is the bounded post-close enrichment pool.
type Scheduler struct {
	store  core.DocumentStore
	resp   responder.Responder
	logger logging.Logger

	summaryPrompt string
	insightPrompt string
	attachSummary func(ctx context.Context, sessionKey, summary string) error
	updateInsight func(ctx context.Context, accountID, insight string) error

	workers int
	tasks   chan string

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	group   *errgroup.Group
}

// New constructs a Scheduler over the given store and responder.
func New(store core.DocumentStore, resp responder.Responder, optFns ...func(o *Options)) *Scheduler {
	opts := Options{
		Workers:       2,
		QueueSize:     32,
		SummaryPrompt: DefaultSummaryPrompt,
		InsightPrompt: DefaultInsightPrompt,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 32
	}

	s := &Scheduler{
		store:         store,
		resp:          resp,
		logger:        opts.Logger,
		summaryPrompt: opts.SummaryPrompt,
		insightPrompt: opts.InsightPrompt,
		attachSummary: opts.AttachSummary,
		updateInsight: opts.UpdateInsight,
		workers:       opts.Workers,
		tasks:         make(chan string, opts.QueueSize),
	}
	if s.attachSummary == nil {
		s.attachSummary = s.storeAttachSummary
	}
	if s.updateInsight == nil {
		s.updateInsight = s.storeUpdateInsight
	}
	return s
}

// Enqueue schedules enrichment for a closed session without blocking. It
// reports false when the queue is full; the session stays Closed either way
// and can be re-enqueued later.
func (s *Scheduler) Enqueue(sessionKey string) bool {
	select {
	case s.tasks <- sessionKey:
		return true
	default:
		return false
	}
}

// Start launches the worker pool. Idempotent while running.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	g, ctx := errgroup.WithContext(ctx)
	s.group = g

	for i := 0; i < s.workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case key := <-s.tasks:
					if err := s.Enrich(ctx, key); err != nil {
						s.logger.Error("error enriching session %s: %v", key, err)
					}
				}
			}
		})
	}
}

// Stop cancels in-flight work and waits for the workers to exit. Queued but
// unstarted tasks are dropped; enrichment is best-effort by design.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel, group := s.cancel, s.group
	s.mu.Unlock()

	cancel()
	_ = group.Wait()
}

// Enrich performs one enrichment run against an already-Closed conversation:
// transcript, summary, insight. Each step is independent; the first failure
// does not abort the run, and all failures are joined into the returned error
// for the caller to log. Safe to re-run against the same conversation.
func (s *Scheduler) Enrich(ctx context.Context, sessionKey string) error {
	start := time.Now()

	doc, err := s.store.Get(ctx, core.CollectionConversations, sessionKey)
	if err != nil {
		return fmt.Errorf("load conversation: %w", err)
	}
	var conv core.Conversation
	if err := core.FromDocument(doc, &conv); err != nil {
		return fmt.Errorf("decode conversation: %w", err)
	}
	if conv.Status != core.StatusClosed {
		s.logger.Debug("skipping enrichment of non-closed session %s status=%s", sessionKey, conv.Status)
		return nil
	}

	transcript := RenderTranscript(conv.Messages)
	oldInsight := s.accountInsight(ctx, conv.AccountID)

	var errs []error
	summary, err := s.resp.Summarize(ctx, s.summaryPrompt, transcript, oldInsight)
	if err != nil {
		errs = append(errs, fmt.Errorf("summarize: %w", err))
	} else if summary != "" {
		if err := s.attachSummary(ctx, sessionKey, summary); err != nil {
			errs = append(errs, fmt.Errorf("attach summary: %w", err))
		}
	}

	if summary != "" && conv.AccountID != "" {
		input := renderInsightInput(oldInsight, summary)
		insight, err := s.resp.Summarize(ctx, s.insightPrompt, input, "")
		if err != nil {
			errs = append(errs, fmt.Errorf("update insight: %w", err))
		} else if insight != "" {
			if err := s.updateInsight(ctx, conv.AccountID, insight); err != nil {
				errs = append(errs, fmt.Errorf("store insight: %w", err))
			}
		}
	}

	err = errors.Join(errs...)
	if err == nil {
		s.logger.Info("enrichment completed session_key=%s duration=%s summary_chars=%d", sessionKey, time.Since(start), len(summary))
	}
	return err
}

func (s *Scheduler) accountInsight(ctx context.Context, accountID string) string {
	if accountID == "" {
		return ""
	}
	doc, err := s.store.Get(ctx, core.CollectionAccounts, accountID)
	if err != nil {
		return ""
	}
	var a core.Account
	if err := core.FromDocument(doc, &a); err != nil {
		return ""
	}
	return a.Insight
}

func (s *Scheduler) storeAttachSummary(ctx context.Context, sessionKey, summary string) error {
	_, err := s.store.UpdateFields(ctx, core.CollectionConversations, sessionKey, core.Document{"summary": summary})
	return err
}

func (s *Scheduler) storeUpdateInsight(ctx context.Context, accountID, insight string) error {
	_, err := s.store.UpdateFields(ctx, core.CollectionAccounts, accountID, core.Document{"insight": insight})
	return err
}

// RenderTranscript flattens turns into the "role: content" form handed to the
// responder's summarization capability.
func RenderTranscript(turns []core.Turn) string {
	var b strings.Builder
	for _, t := range turns {
		fmt.Fprintf(&b, "%s: %s\n\n", t.Role, t.Content)
	}
	return b.String()
}

func renderInsightInput(oldInsight, summary string) string {
	if oldInsight == "" {
		oldInsight = "(none)"
	}
	return fmt.Sprintf("## Existing insights\n%s\n\n## Latest conversation summary\n%s\n", oldInsight, summary)
}
