// Package scheduler runs per-folder mail sync tasks with bounded
// concurrency. One folder failing or timing out never aborts the
// remaining folders; failures are collected and reported to the caller
// after all tasks finished.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/skylarkhq/skylark-sync/internal/providers"
)

// DefaultConcurrency bounds concurrent folder syncs when no limit is
// configured. Mobile radios degrade quickly past two parallel streams.
const DefaultConcurrency = 2

// Task is one folder sync request. A zero Timeout inherits the
// caller's context deadline.
type Task struct {
	Folder    providers.Folder
	Timeout   time.Duration
	ForceFull bool
}

// Report summarizes one scheduler run. Errors holds one entry per
// failed task; the run as a whole never fails.
type Report struct {
	Completed int
	Failed    int
	Errors    []error
}

// Scheduler fans folder sync tasks out to the mail provider
type Scheduler struct {
	mail  providers.MailProvider
	limit int
}

// New creates a scheduler syncing folders through mail, at most limit
// at a time
func New(mail providers.MailProvider, limit int) *Scheduler {
	if limit <= 0 {
		limit = DefaultConcurrency
	}
	return &Scheduler{mail: mail, limit: limit}
}

// Run executes all tasks for the account and blocks until every task
// finished or was abandoned because ctx ended. Per-task failures are
// contained in the returned report.
func (s *Scheduler) Run(ctx context.Context, account providers.AccountID, tasks []Task) *Report {
	report := &Report{}
	if len(tasks) == 0 {
		return report
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, s.limit)
	)

	for _, task := range tasks {
		wg.Add(1)
		go func(task Task) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				// The cycle ended before this task got a slot
				mu.Lock()
				report.Failed++
				report.Errors = append(report.Errors,
					fmt.Errorf("folder %s not started: %w", task.Folder.ID, ctx.Err()))
				mu.Unlock()
				return
			}

			if err := s.runTask(ctx, account, task); err != nil {
				slog.Warn("Folder sync failed",
					"account", account,
					"folder", task.Folder.ID,
					"folder_type", task.Folder.Type,
					"error", err)
				mu.Lock()
				report.Failed++
				report.Errors = append(report.Errors, err)
				mu.Unlock()
				return
			}

			mu.Lock()
			report.Completed++
			mu.Unlock()
		}(task)
	}

	wg.Wait()
	return report
}

func (s *Scheduler) runTask(ctx context.Context, account providers.AccountID, task Task) error {
	taskCtx := ctx
	if task.Timeout > 0 {
		var cancel context.CancelFunc
		taskCtx, cancel = context.WithTimeout(ctx, task.Timeout)
		defer cancel()
	}

	if err := s.mail.SyncEmails(taskCtx, account, task.Folder.ID, task.ForceFull); err != nil {
		return fmt.Errorf("folder %s (%s): %w", task.Folder.ID, task.Folder.Type, err)
	}
	return nil
}
