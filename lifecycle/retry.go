// Package lifecycle implements subdevice registration, deletion,
// reregistration and status bookkeeping: everything that manages which
// devices the gateway currently knows about and keeps the platform's view
// of that set in sync.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// DefaultRetryCount and DefaultRetryTimeout match the archived gateway's
// registration retry constants (RETRY_COUNT, RETRY_TIMEOUT).
const (
	DefaultRetryCount   = 3
	DefaultRetryTimeout = 5 * time.Second
)

// SendFunc (re)transmits one retry-table entry.
type SendFunc func(ctx context.Context) error

// FailureFunc is invoked once an entry exhausts its retry budget without
// being Resolved.
type FailureFunc func()

type entry struct {
	send      SendFunc
	onFailure FailureFunc
	attempts  int
	next      time.Time
}

// RetryTable resends a pending request on a fixed timeout until either a
// matching response arrives (Resolve) or the retry budget is exhausted,
// at which point onFailure runs once and the entry is dropped.
//
// Grounded on the m_platformRetryMessageHandler decorator in
// original_source/src/service/DeviceRegistrationService.cpp, which wraps
// every registration/deletion request with exactly this retry-count and
// timeout pair; collapsed here into one reusable table instead of being
// duplicated per call site, and driven by a gocron job rather than a
// dedicated timer thread per entry.
type RetryTable struct {
	log     *slog.Logger
	count   int
	timeout time.Duration

	mu      sync.Mutex
	entries map[string]*entry

	sched gocron.Scheduler
	job   gocron.Job
}

// NewRetryTable creates a table with the given retry count and per-attempt
// timeout. A count <= 0 or timeout <= 0 falls back to the archived
// defaults.
func NewRetryTable(count int, timeout time.Duration, log *slog.Logger) *RetryTable {
	if count <= 0 {
		count = DefaultRetryCount
	}
	if timeout <= 0 {
		timeout = DefaultRetryTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	return &RetryTable{
		log:     log.With("component", "lifecycle.retry"),
		count:   count,
		timeout: timeout,
		entries: make(map[string]*entry),
	}
}

// Add sends immediately and registers key for retry. Adding over an
// existing key replaces it (the newer request supersedes the older one,
// e.g. a reregistration request for a device already awaiting a
// response).
func (t *RetryTable) Add(ctx context.Context, key string, send SendFunc, onFailure FailureFunc) {
	t.mu.Lock()
	t.entries[key] = &entry{
		send:      send,
		onFailure: onFailure,
		attempts:  1,
		next:      time.Now().Add(t.timeout),
	}
	t.mu.Unlock()

	if err := send(ctx); err != nil {
		t.log.Warn("initial send failed, will retry", "key", key, "error", err)
	}
}

// Resolve cancels retry for key, typically because the expected response
// arrived. Returns true if key was pending.
func (t *RetryTable) Resolve(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries[key]; !ok {
		return false
	}
	delete(t.entries, key)
	return true
}

// Pending reports whether key currently awaits a response.
func (t *RetryTable) Pending(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.entries[key]
	return ok
}

// sweep resends every entry whose timeout has elapsed, dropping and
// reporting failure for any that has exhausted its retry budget.
func (t *RetryTable) sweep(ctx context.Context) {
	now := time.Now()

	t.mu.Lock()
	due := make(map[string]*entry)
	for key, e := range t.entries {
		if now.Before(e.next) {
			continue
		}
		if e.attempts >= t.count {
			delete(t.entries, key)
			e.onFailure()
			continue
		}
		e.attempts++
		e.next = now.Add(t.timeout)
		due[key] = e
	}
	t.mu.Unlock()

	for key, e := range due {
		if err := e.send(ctx); err != nil {
			t.log.Warn("retry send failed", "key", key, "attempt", e.attempts, "error", err)
		}
	}
}

// Start registers the sweep as a recurring job on sched, checked at half
// the retry timeout so no entry waits much longer than its timeout to be
// resent.
func (t *RetryTable) Start(ctx context.Context, sched gocron.Scheduler) error {
	interval := t.timeout / 2
	if interval <= 0 {
		interval = time.Second
	}
	job, err := sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() { t.sweep(ctx) }),
	)
	if err != nil {
		return fmt.Errorf("lifecycle: registering retry sweep job: %w", err)
	}
	t.sched = sched
	t.job = job
	return nil
}

// Stop unregisters the sweep job. The shared scheduler is left running.
func (t *RetryTable) Stop() {
	if t.sched == nil || t.job == nil {
		return
	}
	if err := t.sched.RemoveJob(t.job.ID()); err != nil {
		t.log.Warn("failed to remove retry sweep job", "error", err)
	}
}
