// Package audit provides the asynchronous, ordered audit trail writer.
//
// Every engine decision and mutation produces an AuditEntry. Entries are
// enqueued without blocking the caller and persisted by a single writer
// goroutine, which preserves enqueue order. Failed writes park in a
// dead-letter buffer and are retried at a paced rate, so audit delivery
// is at-least-once rather than best-effort.
package audit

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/J41RO/MeStore-sub006/internal/access"
	"github.com/J41RO/MeStore-sub006/internal/db/models"
	"github.com/J41RO/MeStore-sub006/internal/repository"
	"github.com/J41RO/MeStore-sub006/internal/telemetry"
)

// ErrLoggerClosed is returned by Append after Close has been called.
var ErrLoggerClosed = errors.New("audit logger is closed")

const (
	// writeTimeout bounds a single store write so a hung database cannot
	// stall the writer goroutine indefinitely.
	writeTimeout = 5 * time.Second

	// redrivePoll is how often the writer re-checks the dead-letter
	// buffer while idle. Actual retry throughput is still capped by the
	// rate limiter.
	redrivePoll = 100 * time.Millisecond
)

// Logger accepts audit entries and persists them in the background.
//
// Concurrency model: Append only takes the mutex to push onto the queue,
// so callers never wait on the database. One writer goroutine owns all
// store writes; entries therefore reach the store in exactly the order
// they were enqueued. Entries whose write fails move to a bounded
// dead-letter buffer and are retried one at a time, paced by a rate
// limiter so a recovering database is not hammered. When the buffer is
// full the oldest parked entry is dropped and counted.
type Logger struct {
	repo    repository.AuditRepository
	metrics *telemetry.AuditMetrics
	limiter *rate.Limiter

	deadLetterLimit int

	mu           sync.Mutex
	queue        []*models.AuditEntry
	deadLetter   []*models.AuditEntry
	writing      bool
	closed       bool
	flushWaiters []chan struct{}

	wake chan struct{}
	done chan struct{}
}

// LoggerDependencies holds the injected collaborators for a Logger.
type LoggerDependencies struct {
	Repo    repository.AuditRepository
	Metrics *telemetry.AuditMetrics
}

// LoggerConfig holds tuning knobs for a Logger.
type LoggerConfig struct {
	// RedrivePerSecond caps dead-letter retry attempts per second.
	RedrivePerSecond int

	// DeadLetterLimit caps how many failed entries are kept for retry.
	DeadLetterLimit int
}

// NewLogger constructs a Logger and starts its writer goroutine.
// Call Close to drain the queue and stop the writer.
func NewLogger(deps LoggerDependencies, cfg LoggerConfig) (*Logger, error) {
	if deps.Repo == nil {
		return nil, fmt.Errorf("audit repository is required")
	}
	if deps.Metrics == nil {
		return nil, fmt.Errorf("audit metrics are required")
	}
	if cfg.RedrivePerSecond <= 0 {
		return nil, fmt.Errorf("redrive rate must be positive, got %d", cfg.RedrivePerSecond)
	}
	if cfg.DeadLetterLimit <= 0 {
		return nil, fmt.Errorf("dead-letter limit must be positive, got %d", cfg.DeadLetterLimit)
	}

	l := &Logger{
		repo:            deps.Repo,
		metrics:         deps.Metrics,
		limiter:         rate.NewLimiter(rate.Limit(cfg.RedrivePerSecond), cfg.RedrivePerSecond),
		deadLetterLimit: cfg.DeadLetterLimit,
		wake:            make(chan struct{}, 1),
		done:            make(chan struct{}),
	}

	go l.run()

	return l, nil
}

// Append enqueues an entry for background persistence and returns
// immediately. The entry's review flag is stamped here so callers cannot
// forget it: BLOCKED results and HIGH or CRITICAL risk always require
// review. Returns ErrLoggerClosed after Close.
func (l *Logger) Append(ctx context.Context, entry *models.AuditEntry) error {
	if entry == nil {
		return fmt.Errorf("audit entry is required")
	}
	if entry.ActorID == "" {
		return fmt.Errorf("audit entry missing actor ID")
	}
	if entry.ActionType == "" || entry.ActionName == "" {
		return fmt.Errorf("audit entry missing action")
	}

	stampReviewFlag(entry)
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrLoggerClosed
	}
	l.queue = append(l.queue, entry)
	l.mu.Unlock()

	l.metrics.EntryEnqueued(ctx)
	l.signal()

	return nil
}

// Flush blocks until every entry enqueued before the call has had a write
// attempt. Entries parked in the dead-letter buffer do not block Flush;
// they are retried in the background.
func (l *Logger) Flush(ctx context.Context) error {
	l.mu.Lock()
	if len(l.queue) == 0 && !l.writing {
		l.mu.Unlock()
		return nil
	}
	waiter := make(chan struct{})
	l.flushWaiters = append(l.flushWaiters, waiter)
	l.mu.Unlock()

	l.signal()

	select {
	case <-waiter:
		return nil
	case <-l.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting entries, drains the queue, makes one final retry
// pass over the dead-letter buffer, and waits for the writer to exit.
// Entries still unwritable at that point are logged and lost.
func (l *Logger) Close(ctx context.Context) error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()

	l.signal()

	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("audit logger shutdown: %w", ctx.Err())
	}
}

// QueueLen reports entries waiting for the writer. Intended for health
// reporting and tests.
func (l *Logger) QueueLen() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// DeadLetterLen reports entries parked after failed writes. Intended for
// health reporting and tests.
func (l *Logger) DeadLetterLen() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.deadLetter)
}

// signal wakes the writer without blocking. The buffer size of one makes
// repeated signals collapse into a single wakeup.
func (l *Logger) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// run is the writer goroutine. It drains the queue in order, retries
// dead letters while otherwise idle, and exits once closed and drained.
func (l *Logger) run() {
	defer close(l.done)

	for {
		if entry := l.takeNext(); entry != nil {
			l.persist(entry)
			continue
		}

		// Queue is empty. Retry one dead letter if the limiter allows.
		if l.peekDeadLetter() {
			if l.limiter.Allow() {
				l.redriveOne()
				continue
			}
			select {
			case <-l.wake:
			case <-time.After(redrivePoll):
			}
			continue
		}

		if l.isClosed() {
			l.shutdownDrain()
			return
		}

		<-l.wake
	}
}

// takeNext pops the oldest queued entry, or returns nil and releases any
// flush waiters when the queue is empty.
func (l *Logger) takeNext() *models.AuditEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.queue) == 0 {
		l.writing = false
		for _, waiter := range l.flushWaiters {
			close(waiter)
		}
		l.flushWaiters = nil
		return nil
	}

	entry := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	l.writing = true
	return entry
}

// persist writes one entry, parking it in the dead-letter buffer on
// failure.
func (l *Logger) persist(entry *models.AuditEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := l.repo.Insert(ctx, entry); err != nil {
		log.Printf("ERROR: Audit write failed for actor %s (%s %s): %v",
			entry.ActorID, entry.ActionType, entry.ActionName, err)
		l.park(entry)
		l.metrics.EntryDeadLettered(ctx)
		return
	}
	l.metrics.EntryWritten(ctx)
}

// park appends an entry to the dead-letter buffer, dropping the oldest
// parked entry when the buffer is full.
func (l *Logger) park(entry *models.AuditEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.deadLetter) >= l.deadLetterLimit {
		dropped := l.deadLetter[0]
		l.deadLetter[0] = nil
		l.deadLetter = l.deadLetter[1:]
		log.Printf("ERROR: Audit dead-letter buffer full, dropping entry for actor %s (%s %s)",
			dropped.ActorID, dropped.ActionType, dropped.ActionName)
		l.metrics.EntryDropped(context.Background())
	}
	l.deadLetter = append(l.deadLetter, entry)
}

func (l *Logger) peekDeadLetter() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.deadLetter) > 0
}

func (l *Logger) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// redriveOne retries the oldest dead letter. On success it stays gone;
// on failure it returns to the front of the buffer so order is kept.
func (l *Logger) redriveOne() {
	l.mu.Lock()
	if len(l.deadLetter) == 0 {
		l.mu.Unlock()
		return
	}
	entry := l.deadLetter[0]
	l.deadLetter[0] = nil
	l.deadLetter = l.deadLetter[1:]
	l.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := l.repo.Insert(ctx, entry); err != nil {
		l.mu.Lock()
		l.deadLetter = append([]*models.AuditEntry{entry}, l.deadLetter...)
		l.mu.Unlock()
		return
	}

	log.Printf("INFO: Audit dead-letter entry recovered for actor %s (%s %s)",
		entry.ActorID, entry.ActionType, entry.ActionName)
	l.metrics.EntryRedriven(ctx)
}

// shutdownDrain runs after Close once the main queue is empty: one
// unpaced retry attempt per dead letter, then report what is lost.
func (l *Logger) shutdownDrain() {
	l.mu.Lock()
	parked := l.deadLetter
	l.deadLetter = nil
	l.mu.Unlock()

	var lost int
	for _, entry := range parked {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := l.repo.Insert(ctx, entry)
		cancel()
		if err != nil {
			lost++
			continue
		}
		l.metrics.EntryRedriven(context.Background())
	}

	if lost > 0 {
		log.Printf("ERROR: Audit logger closed with %d unwritable entries lost", lost)
	}
}

// stampReviewFlag marks entries that demand human review. The flag is
// stamped centrally so every producer gets the same policy.
func stampReviewFlag(entry *models.AuditEntry) {
	if entry.RequiresReview {
		return
	}
	if entry.Result == access.ResultBlocked {
		entry.RequiresReview = true
		return
	}
	switch entry.RiskLevel {
	case access.RiskHigh, access.RiskCritical:
		entry.RequiresReview = true
	}
}
