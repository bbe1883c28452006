// Package pipeline sequences the side effects that follow a sync: new
// articles are queued for embedding, and once an embedding batch completes
// clustering is signalled exactly once.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"feedsync/internal/domain"
)

type State int

const (
	StateIdle State = iota
	StateAwaitingEmbeddings
	StateClusterSignalEmitted
)

func (s State) String() string {
	switch s {
	case StateAwaitingEmbeddings:
		return "awaiting_embeddings"
	case StateClusterSignalEmitted:
		return "cluster_signal_emitted"
	default:
		return "idle"
	}
}

// Event is one of SyncCompleted, EmbeddingsCompleted or ManualSyncTriggered.
type Event interface {
	isEvent()
}

type SyncCompleted struct {
	FeedID        int64
	NewArticleIDs []int64
}

type EmbeddingsCompleted struct {
	domain.EmbeddingBatchCompleted
}

type ManualSyncTriggered struct {
	FeedIDs []int64
	Marked  int
}

func (SyncCompleted) isEvent()       {}
func (EmbeddingsCompleted) isEvent() {}
func (ManualSyncTriggered) isEvent() {}

type EmbeddingQueue interface {
	Enqueue(ctx context.Context, articleIDs []int64, priority int) error
}

type Signaler interface {
	PublishClusterSignal(ctx context.Context, signal domain.ClusterSignal) error
}

type FeedTrigger interface {
	TriggerNow(ctx context.Context, feedID int64) error
}

const defaultBuffer = 64

type Manager struct {
	queue    EmbeddingQueue
	signaler Signaler
	trigger  FeedTrigger
	events   chan Event
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	state   State
	pending int
	cycle   int64

	runMu    sync.RWMutex
	running  bool
	stopping chan struct{}
}

func NewManager(queue EmbeddingQueue, signaler Signaler, trigger FeedTrigger, logger *slog.Logger) *Manager {
	return &Manager{
		queue:    queue,
		signaler: signaler,
		trigger:  trigger,
		events:   make(chan Event, defaultBuffer),
		logger:   logger.With("component", "pipeline"),
		now:      time.Now,
		stopping: make(chan struct{}),
	}
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// ClusteringPending reports whether a cluster signal is armed.
func (m *Manager) ClusteringPending() bool {
	return m.State() == StateAwaitingEmbeddings
}

// Submit queues ev for Run, blocking while the buffer is full. When no Run
// loop is active, before it starts or after it stops, ev is handled on the
// caller's goroutine and its error returned.
func (m *Manager) Submit(ctx context.Context, ev Event) error {
	m.runMu.RLock()
	if !m.running {
		m.runMu.RUnlock()
		return m.Handle(ctx, ev)
	}

	select {
	case m.events <- ev:
		m.runMu.RUnlock()
		return nil
	case <-m.stopping:
		m.runMu.RUnlock()
		return m.Handle(ctx, ev)
	case <-ctx.Done():
		m.runMu.RUnlock()
		return ctx.Err()
	}
}

// Run handles submitted events until ctx is done. Events still buffered at
// that point are applied before it returns. Run must be called at most once.
func (m *Manager) Run(ctx context.Context) error {
	m.runMu.Lock()
	m.running = true
	m.runMu.Unlock()

	m.logger.Info("pipeline manager started")

	for {
		select {
		case <-ctx.Done():
			m.stop(context.WithoutCancel(ctx))
			m.logger.Info("pipeline manager stopped")
			return ctx.Err()
		case ev := <-m.events:
			m.handleLogged(ctx, ev)
		}
	}
}

func (m *Manager) stop(ctx context.Context) {
	// Unblock submitters waiting on a full buffer; they fall back to Handle.
	close(m.stopping)

	m.runMu.Lock()
	m.running = false
	m.runMu.Unlock()

	for {
		select {
		case ev := <-m.events:
			m.handleLogged(ctx, ev)
		default:
			return
		}
	}
}

func (m *Manager) handleLogged(ctx context.Context, ev Event) {
	if err := m.Handle(ctx, ev); err != nil {
		m.logger.ErrorContext(ctx, "failed to handle pipeline event",
			"event", fmt.Sprintf("%T", ev),
			"error", err,
		)
	}
}

// Handle applies ev synchronously.
func (m *Manager) Handle(ctx context.Context, ev Event) error {
	switch e := ev.(type) {
	case SyncCompleted:
		return m.onSyncCompleted(ctx, e)
	case EmbeddingsCompleted:
		return m.onEmbeddingsCompleted(ctx, e)
	case ManualSyncTriggered:
		if e.Marked > 0 {
			m.arm(0)
			m.logger.InfoContext(ctx, "clustering armed by manual sync", "feeds", len(e.FeedIDs), "marked", e.Marked)
		}
		return nil
	default:
		return fmt.Errorf("unknown pipeline event %T", ev)
	}
}

// SyncCompleted makes the manager usable as the synchronizer's notifier.
func (m *Manager) SyncCompleted(ctx context.Context, feedID int64, articleIDs []int64) error {
	return m.Submit(ctx, SyncCompleted{FeedID: feedID, NewArticleIDs: articleIDs})
}

// TriggerManualSync marks feeds due now and arms clustering when at least
// one of them was marked. It fails only when none could be marked.
func (m *Manager) TriggerManualSync(ctx context.Context, feedIDs []int64) (int, error) {
	var (
		marked int
		errs   []error
	)
	for _, id := range feedIDs {
		if err := m.trigger.TriggerNow(ctx, id); err != nil {
			m.logger.WarnContext(ctx, "failed to mark feed due", "feed_id", id, "error", err)
			errs = append(errs, err)
			continue
		}
		marked++
	}

	if marked == 0 && len(errs) > 0 {
		return 0, errors.Join(errs...)
	}

	return marked, m.Submit(ctx, ManualSyncTriggered{FeedIDs: feedIDs, Marked: marked})
}

func (m *Manager) onSyncCompleted(ctx context.Context, e SyncCompleted) error {
	if len(e.NewArticleIDs) == 0 {
		return nil
	}

	if err := m.queue.Enqueue(ctx, e.NewArticleIDs, domain.DefaultEmbeddingPriority); err != nil {
		return fmt.Errorf("enqueue embeddings for feed %d: %w", e.FeedID, err)
	}

	m.arm(len(e.NewArticleIDs))

	m.logger.InfoContext(ctx, "articles queued for embedding",
		"feed_id", e.FeedID,
		"articles", len(e.NewArticleIDs),
	)
	return nil
}

func (m *Manager) onEmbeddingsCompleted(ctx context.Context, e EmbeddingsCompleted) error {
	m.mu.Lock()
	if m.state != StateAwaitingEmbeddings {
		m.mu.Unlock()
		m.logger.DebugContext(ctx, "embedding batch completed with nothing pending", "processed", e.Processed)
		return nil
	}
	m.state = StateClusterSignalEmitted
	m.cycle++
	signal := domain.ClusterSignal{
		Cycle:        m.cycle,
		Reason:       "embedding_batch_completed",
		ArticleCount: m.pending,
		EmittedAt:    m.now(),
	}
	m.pending = 0
	m.mu.Unlock()

	if err := m.signaler.PublishClusterSignal(ctx, signal); err != nil {
		m.mu.Lock()
		// Re-arm unless a newer sync already did.
		if m.state == StateClusterSignalEmitted {
			m.state = StateAwaitingEmbeddings
		}
		m.pending += signal.ArticleCount
		m.mu.Unlock()
		return fmt.Errorf("publish cluster signal: %w", err)
	}

	m.logger.InfoContext(ctx, "cluster signal emitted",
		"cycle", signal.Cycle,
		"articles", signal.ArticleCount,
	)
	return nil
}

func (m *Manager) arm(articles int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state = StateAwaitingEmbeddings
	m.pending += articles
}
