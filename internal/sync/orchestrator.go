// Package sync implements the per-account synchronization
// orchestrator: strategy selection between the initial, background and
// manual paths, the retry governor, and the state transitions every
// cycle goes through. All outcomes are observed through the shared
// state table or the manual-sync completion callback; nothing here
// returns an error to the triggering caller.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/skylarkhq/skylark-sync/internal/config"
	"github.com/skylarkhq/skylark-sync/internal/netgate"
	"github.com/skylarkhq/skylark-sync/internal/providers"
	"github.com/skylarkhq/skylark-sync/internal/status"
	"github.com/skylarkhq/skylark-sync/internal/sync/domains"
	"github.com/skylarkhq/skylark-sync/internal/sync/scheduler"
	"github.com/skylarkhq/skylark-sync/internal/sync/state"
	"github.com/skylarkhq/skylark-sync/internal/telemetry"
)

// Sync mode labels used in logs and metrics
const (
	// ModeInitial is the first full synchronization for an account
	ModeInitial = "initial"

	// ModeBackground is the incremental refresh of the main folders
	ModeBackground = "background"

	// ModeManual is a user-triggered forced sync
	ModeManual = "manual"
)

// runningTask is the cancellable handle of one in-flight sync task.
// Each account owns at most one.
type runningTask struct {
	cancel context.CancelFunc
}

// Orchestrator drives account synchronization. It owns no mail or
// domain logic itself; it decides when to sync, with what scope and
// timeouts, and records the outcome in the shared state table.
type Orchestrator struct {
	tuning    config.Tuning
	state     state.AccountStateService
	gate      netgate.Gate
	mail      providers.MailProvider
	catalog   providers.FolderCatalog
	scheduler *scheduler.Scheduler
	domains   *domains.Coordinator
	refresher providers.WidgetRefresher
	governor  *Governor
	metrics   *telemetry.SyncMetrics

	mu sync.Mutex
	// running holds the cancellable task handle per account
	running map[providers.AccountID]*runningTask
	// sessionSynced marks accounts that reached Synced in this process
	// lifetime; StartSyncIfNeeded is a no-op for them until a reset
	sessionSynced map[providers.AccountID]bool

	baseCtx    context.Context
	baseCancel context.CancelFunc
	wg         sync.WaitGroup
}

// Option configures optional orchestrator collaborators
type Option func(*Orchestrator)

// WithMetrics attaches sync metrics instruments
func WithMetrics(m *telemetry.SyncMetrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithWidgetRefresher attaches the external mail-count widget notifier
func WithWidgetRefresher(r providers.WidgetRefresher) Option {
	return func(o *Orchestrator) {
		o.refresher = r
	}
}

// NewOrchestrator creates an orchestrator over the given collaborators
func NewOrchestrator(
	tuning config.Tuning,
	stateSvc state.AccountStateService,
	gate netgate.Gate,
	mail providers.MailProvider,
	catalog providers.FolderCatalog,
	domainProviders []providers.DomainProvider,
	opts ...Option,
) *Orchestrator {
	baseCtx, baseCancel := context.WithCancel(context.Background())

	o := &Orchestrator{
		tuning:        tuning,
		state:         stateSvc,
		gate:          gate,
		mail:          mail,
		catalog:       catalog,
		scheduler:     scheduler.New(mail, tuning.FolderConcurrency),
		domains:       domains.New(domainProviders, tuning.ContactsTimeout, tuning.DomainTimeout),
		governor:      NewGovernor(tuning.MaxAttempts),
		running:       make(map[providers.AccountID]*runningTask),
		sessionSynced: make(map[providers.AccountID]bool),
		baseCtx:       baseCtx,
		baseCancel:    baseCancel,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// StartSyncIfNeeded triggers a sync for the account unless one is
// unnecessary or disallowed: already synced this session, already
// syncing, no network, or the retry governor denies the attempt. It
// never blocks on network work and never returns an error to the
// caller; outcomes are observed through the state table.
func (o *Orchestrator) StartSyncIfNeeded(ctx context.Context, account providers.AccountID) {
	log := slog.With("account", account)

	if err := o.state.EnsureAccount(ctx, account); err != nil {
		log.Error("Failed to create sync state for account", "error", err)
		return
	}

	o.mu.Lock()
	if o.sessionSynced[account] {
		o.mu.Unlock()
		log.Debug("Sync skipped", "reason", ReasonAlreadySynced)
		return
	}
	if o.running[account] != nil {
		o.mu.Unlock()
		log.Debug("Sync skipped", "reason", ReasonAlreadyInProgress)
		return
	}
	o.mu.Unlock()

	if !o.gate.IsAvailable(ctx) {
		o.state.SetNoNetwork(true)
		log.Info("Sync skipped", "reason", ReasonNoNetwork)
		return
	}
	o.state.SetNoNetwork(false)

	if o.governor.Exhausted(account) {
		log.Warn("Sync attempts exhausted, forcing account to synced",
			"reason", ReasonAttemptsExhausted, "attempts", o.governor.Attempts(account))
		o.forceSyncedDegraded(ctx, account)
		return
	}

	st, err := o.state.GetStatus(ctx, account)
	if err != nil || st == nil {
		log.Error("Failed to read sync state", "error", err)
		return
	}
	initialNeeded := !st.InitialSyncCompleted || st.StorageRecreated

	if o.governor.TryBeginAttempt(account) == AlreadyMaxedOut {
		o.forceSyncedDegraded(ctx, account)
		return
	}

	if initialNeeded {
		o.startInitial(ctx, account, log)
		return
	}
	o.startBackground(ctx, account, log)
}

// startInitial moves the account to Syncing and launches the blocking
// initial path in its own task
func (o *Orchestrator) startInitial(ctx context.Context, account providers.AccountID, log *slog.Logger) {
	now := time.Now()
	attempts := o.governor.Attempts(account)

	updated, err := o.state.UpdateStatusAtomically(ctx, account, func(st *status.AccountStatus) bool {
		if st.Phase == status.SyncPhaseSyncing {
			return false
		}
		st.Phase = status.SyncPhaseSyncing
		st.Message = "Initial sync in progress"
		st.AttemptCount = attempts
		st.LastAttempt = &now
		return true
	})
	if err != nil {
		log.Error("Failed to record sync start", "error", err)
		return
	}
	if !updated {
		log.Debug("Sync skipped", "reason", ReasonAlreadyInProgress)
		return
	}

	runCtx, task := o.beginTask(account)
	o.wg.Add(1)
	go o.runInitialCycle(runCtx, account, task)
}

// startBackground marks the account Synced right away (local data is
// already present and usable) and launches a detached incremental
// refresh whose result is only ever observed through the state table.
func (o *Orchestrator) startBackground(ctx context.Context, account providers.AccountID, log *slog.Logger) {
	now := time.Now()
	attempts := o.governor.Attempts(account)

	updated, err := o.state.UpdateStatusAtomically(ctx, account, func(st *status.AccountStatus) bool {
		if st.Phase == status.SyncPhaseSyncing {
			return false
		}
		st.Phase = status.SyncPhaseSynced
		st.Message = "Mailbox ready, refreshing in background"
		st.AttemptCount = attempts
		st.LastAttempt = &now
		return true
	})
	if err != nil {
		log.Error("Failed to record sync start", "error", err)
		return
	}
	if !updated {
		log.Debug("Sync skipped", "reason", ReasonAlreadyInProgress)
		return
	}

	o.mu.Lock()
	o.sessionSynced[account] = true
	o.mu.Unlock()

	runCtx, task := o.beginTask(account)
	o.wg.Add(1)
	go o.runBackgroundCycle(runCtx, account, task)
}

// ManualSync runs a user-triggered forced sync. It is a no-op if the
// account is already Syncing, and deliberately never touches the retry
// governor so user-triggered pulls stay available even for accounts
// whose automatic retries are exhausted. onComplete is invoked exactly
// once, also on rejection, failure or timeout; it may be nil.
func (o *Orchestrator) ManualSync(ctx context.Context, account providers.AccountID, onComplete func(error)) {
	done := callbackOnce(onComplete)
	log := slog.With("account", account)

	if err := o.state.EnsureAccount(ctx, account); err != nil {
		log.Error("Failed to create sync state for account", "error", err)
		done(fmt.Errorf("%w: %s", ErrAccountUnknown, account))
		return
	}

	if !o.gate.IsAvailable(ctx) {
		o.state.SetNoNetwork(true)
		log.Info("Manual sync rejected", "reason", ReasonNoNetwork)
		done(ErrNetworkUnavailable)
		return
	}
	o.state.SetNoNetwork(false)

	now := time.Now()
	updated, err := o.state.UpdateStatusAtomically(ctx, account, func(st *status.AccountStatus) bool {
		if st.Phase == status.SyncPhaseSyncing {
			return false
		}
		st.Phase = status.SyncPhaseSyncing
		st.Message = "Manual sync in progress"
		st.LastAttempt = &now
		return true
	})
	if err != nil {
		log.Error("Failed to record manual sync start", "error", err)
		done(err)
		return
	}
	if !updated {
		log.Debug("Manual sync rejected", "reason", ReasonAlreadyInProgress)
		done(ErrSyncInProgress)
		return
	}

	runCtx, task := o.beginTask(account)
	o.wg.Add(1)
	go o.runManualCycle(runCtx, account, task, done)
}

// ResetAccount cancels any in-flight sync for the account and returns
// it to Idle, clearing its attempt counter and the no-network flag
func (o *Orchestrator) ResetAccount(ctx context.Context, account providers.AccountID) error {
	o.mu.Lock()
	task := o.running[account]
	delete(o.running, account)
	delete(o.sessionSynced, account)
	o.mu.Unlock()

	if task != nil {
		task.cancel()
	}
	o.governor.Reset(account)
	o.state.SetNoNetwork(false)

	_, err := o.state.UpdateStatusAtomically(ctx, account, func(st *status.AccountStatus) bool {
		st.Phase = status.SyncPhaseIdle
		st.Message = "Reset"
		st.AttemptCount = 0
		return true
	})
	if err != nil {
		return fmt.Errorf("failed to reset account %s: %w", account, err)
	}

	slog.Info("Account sync state reset", "account", account)
	return nil
}

// Reset cancels all in-flight syncs and returns every known account to
// Idle
func (o *Orchestrator) Reset(ctx context.Context) error {
	statuses, err := o.state.ListStatuses(ctx)
	if err != nil {
		return fmt.Errorf("failed to list accounts: %w", err)
	}

	var errs []error
	for _, account := range state.SortedAccounts(statuses) {
		if err := o.ResetAccount(ctx, account); err != nil {
			errs = append(errs, err)
		}
	}
	o.governor.ResetAll()
	return errors.Join(errs...)
}

// IsSyncing reports whether any account is currently in phase Syncing
func (o *Orchestrator) IsSyncing() bool {
	return o.state.Flags().AnySyncing
}

// IsSynced reports whether any account has reached phase Synced
func (o *Orchestrator) IsSynced() bool {
	return o.state.Flags().AnySynced
}

// NoNetwork reports whether the last gated sync request found no
// usable network path
func (o *Orchestrator) NoNetwork() bool {
	return o.state.Flags().NoNetwork
}

// IsSyncingAccount reports whether the given account is in phase Syncing
func (o *Orchestrator) IsSyncingAccount(ctx context.Context, account providers.AccountID) bool {
	st, err := o.state.GetStatus(ctx, account)
	return err == nil && st != nil && st.Phase == status.SyncPhaseSyncing
}

// IsSyncedAccount reports whether the given account is in phase Synced
func (o *Orchestrator) IsSyncedAccount(ctx context.Context, account providers.AccountID) bool {
	st, err := o.state.GetStatus(ctx, account)
	return err == nil && st != nil && st.Phase == status.SyncPhaseSynced
}

// Shutdown cancels all in-flight sync tasks and waits for them to
// finish, bounded by ctx
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.baseCancel()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("sync tasks did not finish in time: %w", ctx.Err())
	}
}

// --- cycle execution ---

func (o *Orchestrator) runInitialCycle(ctx context.Context, account providers.AccountID, task *runningTask) {
	defer o.wg.Done()
	defer o.endTask(account, task)

	log := slog.With("account", account, "mode", ModeInitial, "cycle_id", uuid.NewString())
	start := time.Now()
	o.metrics.SyncStarted(ctx)
	o.metrics.RecordAttempt(ctx, account, ModeInitial)
	defer o.metrics.SyncFinished(context.WithoutCancel(ctx))

	log.Info("Initial sync started")
	err := o.syncInitial(ctx, account, log)
	o.metrics.RecordSyncDuration(context.WithoutCancel(ctx), account, ModeInitial, time.Since(start), err == nil)

	if ctx.Err() != nil {
		// Cancelled by a reset or shutdown; the canceller owns the
		// state transition. Leaving Syncing is corrected below only if
		// nobody else did.
		log.Info("Initial sync cancelled")
		o.leaveSyncing(account, status.SyncPhaseIdle, "Sync cancelled")
		return
	}

	if err != nil {
		log.Warn("Initial sync failed", "error", err, "duration", time.Since(start))
		// Degrade to Synced rather than leaving an error state dangling
		// in front of the UI; the attempt stays consumed so the retry
		// governor eventually stops automatic retries.
		o.leaveSyncing(account, status.SyncPhaseSynced, fmt.Sprintf("Sync failed: %v", err))
		return
	}

	log.Info("Initial sync completed", "duration", time.Since(start))
	o.governor.ResetOnSuccess(account)

	now := time.Now()
	updated, uerr := o.state.UpdateStatusAtomically(context.WithoutCancel(ctx), account, func(st *status.AccountStatus) bool {
		if st.Phase != status.SyncPhaseSyncing {
			return false
		}
		st.Phase = status.SyncPhaseSynced
		st.Message = "Initial sync completed"
		st.AttemptCount = 0
		st.LastSyncTime = &now
		st.InitialSyncCompleted = true
		st.StorageRecreated = false
		return true
	})
	if uerr != nil {
		log.Error("Failed to record sync completion", "error", uerr)
		return
	}
	if updated {
		o.mu.Lock()
		o.sessionSynced[account] = true
		o.mu.Unlock()
		o.refreshWidgets(account)
	}
}

func (o *Orchestrator) runBackgroundCycle(ctx context.Context, account providers.AccountID, task *runningTask) {
	defer o.wg.Done()
	defer o.endTask(account, task)

	log := slog.With("account", account, "mode", ModeBackground, "cycle_id", uuid.NewString())
	start := time.Now()
	o.metrics.SyncStarted(ctx)
	o.metrics.RecordAttempt(ctx, account, ModeBackground)
	defer o.metrics.SyncFinished(context.WithoutCancel(ctx))

	log.Info("Background refresh started")
	clean, err := o.syncBackground(ctx, account, log)
	o.metrics.RecordSyncDuration(context.WithoutCancel(ctx), account, ModeBackground, time.Since(start), err == nil && clean)

	if ctx.Err() != nil {
		log.Info("Background refresh cancelled")
		return
	}
	if err != nil {
		log.Warn("Background refresh failed", "error", err, "duration", time.Since(start))
		return
	}
	if !clean {
		log.Warn("Background refresh finished with folder failures", "duration", time.Since(start))
		return
	}

	log.Info("Background refresh completed", "duration", time.Since(start))
	o.governor.ResetOnSuccess(account)

	now := time.Now()
	updated, uerr := o.state.UpdateStatusAtomically(context.WithoutCancel(ctx), account, func(st *status.AccountStatus) bool {
		// A reset may have moved the account back to Idle meanwhile
		if st.Phase != status.SyncPhaseSynced {
			return false
		}
		st.Message = "Mail refreshed"
		st.AttemptCount = 0
		st.LastSyncTime = &now
		return true
	})
	if uerr != nil {
		log.Error("Failed to record sync completion", "error", uerr)
		return
	}
	if updated {
		o.refreshWidgets(account)
	}
}

func (o *Orchestrator) runManualCycle(ctx context.Context, account providers.AccountID, task *runningTask, done func(error)) {
	defer o.wg.Done()
	defer o.endTask(account, task)

	log := slog.With("account", account, "mode", ModeManual, "cycle_id", uuid.NewString())
	start := time.Now()
	o.metrics.SyncStarted(ctx)
	o.metrics.RecordAttempt(ctx, account, ModeManual)
	defer o.metrics.SyncFinished(context.WithoutCancel(ctx))

	log.Info("Manual sync started")
	err := o.syncManual(ctx, account, log)
	o.metrics.RecordSyncDuration(context.WithoutCancel(ctx), account, ModeManual, time.Since(start), err == nil)

	switch {
	case ctx.Err() != nil:
		log.Info("Manual sync cancelled")
		o.leaveSyncing(account, status.SyncPhaseIdle, "Sync cancelled")
	case err != nil:
		log.Warn("Manual sync failed", "error", err, "duration", time.Since(start))
		o.leaveSyncing(account, status.SyncPhaseSynced, fmt.Sprintf("Manual sync failed: %v", err))
	default:
		log.Info("Manual sync completed", "duration", time.Since(start))
		now := time.Now()
		updated, uerr := o.state.UpdateStatusAtomically(context.WithoutCancel(ctx), account, func(st *status.AccountStatus) bool {
			if st.Phase != status.SyncPhaseSyncing {
				return false
			}
			st.Phase = status.SyncPhaseSynced
			st.Message = "Manual sync completed"
			st.LastSyncTime = &now
			return true
		})
		if uerr != nil {
			log.Error("Failed to record sync completion", "error", uerr)
		} else if updated {
			o.refreshWidgets(account)
		}
	}

	done(err)
}

// --- sync paths ---

// syncInitial is the blocking full-scope path: folder discovery, all
// email folders through the scheduler, body prefetch, then all data
// domains in parallel. Only discovery failure or the umbrella timeout
// fails the cycle; everything after discovery is contained.
func (o *Orchestrator) syncInitial(ctx context.Context, account providers.AccountID, log *slog.Logger) error {
	cycleCtx, cancel := context.WithTimeout(ctx, o.tuning.InitialTimeout)
	defer cancel()

	folders, err := o.discoverFolders(cycleCtx, account)
	if err != nil {
		return err
	}

	tasks := make([]scheduler.Task, 0, len(folders))
	for _, folder := range folders {
		tasks = append(tasks, scheduler.Task{Folder: folder})
	}
	report := o.scheduler.Run(cycleCtx, account, tasks)
	log.Info("Folder sync stage finished",
		"completed", report.Completed, "failed", report.Failed)

	if cycleCtx.Err() != nil {
		return fmt.Errorf("initial sync did not finish in %s: %w", o.tuning.InitialTimeout, cycleCtx.Err())
	}

	if err := o.mail.PrefetchBodies(cycleCtx, account, o.tuning.PrefetchCount); err != nil {
		// Prefetch is an offline-availability optimization, not part of
		// the sync contract
		log.Warn("Body prefetch failed", "stage", StageBodyPrefetch, "error", err)
	}

	o.domains.Run(cycleCtx, account)

	if cycleCtx.Err() != nil {
		return fmt.Errorf("initial sync did not finish in %s: %w", o.tuning.InitialTimeout, cycleCtx.Err())
	}
	return nil
}

// syncBackground is the narrow incremental path: folder discovery,
// then only the inbox, sent and drafts folders with a short per-folder
// timeout. Returns whether the run was clean (no folder failures).
func (o *Orchestrator) syncBackground(ctx context.Context, account providers.AccountID, log *slog.Logger) (bool, error) {
	folders, err := o.discoverFolders(ctx, account)
	if err != nil {
		return false, err
	}

	var tasks []scheduler.Task
	for _, folder := range folders {
		switch folder.Type {
		case providers.FolderTypeInbox, providers.FolderTypeSent, providers.FolderTypeDrafts:
			tasks = append(tasks, scheduler.Task{
				Folder:  folder,
				Timeout: o.tuning.BackgroundFolderTimeout,
			})
		}
	}
	report := o.scheduler.Run(ctx, account, tasks)
	log.Info("Folder sync stage finished",
		"completed", report.Completed, "failed", report.Failed)
	return report.Failed == 0, nil
}

// syncManual is the user-triggered path: unconditional folder-list
// refresh, then every email folder, with inbox and sent forced to a
// full resync to recover from stale sync cursors
func (o *Orchestrator) syncManual(ctx context.Context, account providers.AccountID, log *slog.Logger) error {
	cycleCtx, cancel := context.WithTimeout(ctx, o.tuning.ManualTimeout)
	defer cancel()

	folders, err := o.discoverFolders(cycleCtx, account)
	if err != nil {
		return err
	}

	tasks := make([]scheduler.Task, 0, len(folders))
	for _, folder := range folders {
		task := scheduler.Task{
			Folder:  folder,
			Timeout: o.tuning.ManualFolderTimeout,
		}
		if folder.Type == providers.FolderTypeInbox || folder.Type == providers.FolderTypeSent {
			task.ForceFull = true
			task.Timeout = o.tuning.ManualForcedFolderTimeout
		}
		tasks = append(tasks, task)
	}
	report := o.scheduler.Run(cycleCtx, account, tasks)
	log.Info("Folder sync stage finished",
		"completed", report.Completed, "failed", report.Failed)

	if cycleCtx.Err() != nil {
		return fmt.Errorf("manual sync did not finish in %s: %w", o.tuning.ManualTimeout, cycleCtx.Err())
	}
	if report.Failed > 0 {
		return &Error{
			Err:     errors.Join(report.Errors...),
			Stage:   StageFolderSync,
			Message: fmt.Sprintf("%d of %d folders failed to sync", report.Failed, len(tasks)),
		}
	}
	return nil
}

// discoverFolders refreshes the folder table from the server and reads
// back the email folders to schedule. A stale folder table must never
// be read past this point, so discovery failure short-circuits the
// whole cycle.
func (o *Orchestrator) discoverFolders(ctx context.Context, account providers.AccountID) ([]providers.Folder, error) {
	if err := o.mail.SyncFolders(ctx, account); err != nil {
		return nil, &Error{
			Err:     err,
			Stage:   StageFolderDiscovery,
			Message: "Failed to refresh the folder list",
		}
	}

	all, err := o.catalog.ListFolders(ctx, account)
	if err != nil {
		return nil, &Error{
			Err:     err,
			Stage:   StageFolderDiscovery,
			Message: "Failed to read the folder table",
		}
	}

	folders := make([]providers.Folder, 0, len(all))
	for _, folder := range all {
		if folder.IsEmailFolder {
			folders = append(folders, folder)
		}
	}
	return folders, nil
}

// --- bookkeeping helpers ---

// beginTask registers a fresh cancellable task handle for the account,
// superseding (and cancelling) any previous one. A manual sync started
// while a detached background refresh is still running takes over the
// account's slot.
func (o *Orchestrator) beginTask(account providers.AccountID) (context.Context, *runningTask) {
	runCtx, cancel := context.WithCancel(o.baseCtx)
	task := &runningTask{cancel: cancel}

	o.mu.Lock()
	previous := o.running[account]
	o.running[account] = task
	o.mu.Unlock()

	if previous != nil {
		previous.cancel()
	}
	return runCtx, task
}

// endTask releases the account's task slot, unless a newer task
// already took it over
func (o *Orchestrator) endTask(account providers.AccountID, task *runningTask) {
	o.mu.Lock()
	if o.running[account] == task {
		delete(o.running, account)
	}
	o.mu.Unlock()
	task.cancel()
}

// leaveSyncing moves the account out of Syncing into the given phase.
// It is a no-op if something else (a reset, a newer sync) already
// moved the account on, so the most recent authority wins.
func (o *Orchestrator) leaveSyncing(account providers.AccountID, phase status.SyncPhase, message string) {
	_, err := o.state.UpdateStatusAtomically(context.Background(), account, func(st *status.AccountStatus) bool {
		if st.Phase != status.SyncPhaseSyncing {
			return false
		}
		st.Phase = phase
		st.Message = message
		return true
	})
	if err != nil {
		slog.Error("Failed to finalize sync state", "account", account, "error", err)
	}
}

// forceSyncedDegraded marks an attempt-exhausted account as Synced so
// the UI is never blocked behind a permanently failing account. The
// data may be stale or incomplete; the message says so.
func (o *Orchestrator) forceSyncedDegraded(ctx context.Context, account providers.AccountID) {
	_, err := o.state.UpdateStatusAtomically(ctx, account, func(st *status.AccountStatus) bool {
		if st.Phase == status.SyncPhaseSyncing {
			return false
		}
		st.Phase = status.SyncPhaseSynced
		st.Message = "Sync attempts exhausted, showing locally available data"
		return true
	})
	if err != nil {
		slog.Error("Failed to record degraded sync state", "account", account, "error", err)
		return
	}

	o.mu.Lock()
	o.sessionSynced[account] = true
	o.mu.Unlock()
}

// refreshWidgets notifies external mail-count widgets. Fire and
// forget; the refresher must not block.
func (o *Orchestrator) refreshWidgets(account providers.AccountID) {
	if o.refresher == nil {
		return
	}
	o.refresher.Refresh(account)
}

// callbackOnce wraps a completion callback so it runs at most once and
// tolerates nil
func callbackOnce(fn func(error)) func(error) {
	var once sync.Once
	return func(err error) {
		once.Do(func() {
			if fn != nil {
				fn(err)
			}
		})
	}
}
