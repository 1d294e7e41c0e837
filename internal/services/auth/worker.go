package auth

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/ternarybob/adwatch/internal/common"
	"github.com/ternarybob/adwatch/internal/interfaces"
	"github.com/ternarybob/adwatch/internal/models"
	"github.com/ternarybob/arbor"
)

// AccountUpdater is the registry-side sink for authorization outcomes. Both
// operations update account status, cookies, and queue membership together
// under the registry's lock, keeping the membership/status invariant intact.
type AccountUpdater interface {
	// MarkAuthorized persists the account as valid with its fresh session
	// cookies and, when metrics is non-nil, applies the immediate
	// post-authorization snapshot.
	MarkAuthorized(ctx context.Context, accountID string, cookies models.CookieSet, metrics *models.MetricsSnapshot)

	// MarkFailed transitions the account to invalid, clears its cookies,
	// and records the cause.
	MarkFailed(ctx context.Context, accountID string, cause error)
}

// Worker is the single-flight state machine that drains the authorization
// queue: at most one drain runs process-wide, the shared agent credential is
// resolved once per batch, and accounts are impersonated strictly
// sequentially because they share one browser context.
type Worker struct {
	queue     *Queue
	storage   interfaces.CredentialStorage
	validator interfaces.SessionValidator
	browser   interfaces.BrowserAutomation
	metrics   interfaces.MetricsClient
	accounts  AccountUpdater
	events    interfaces.EventService
	logger    arbor.ILogger

	// Drains run on the worker's own lifetime context, never a caller's:
	// an HTTP request context dies when the response is written, long
	// before a minutes-long interactive login finishes.
	ctx    context.Context
	cancel context.CancelFunc

	draining atomic.Bool
}

// NewWorker creates the authorization worker.
func NewWorker(
	queue *Queue,
	storage interfaces.CredentialStorage,
	validator interfaces.SessionValidator,
	browser interfaces.BrowserAutomation,
	metrics interfaces.MetricsClient,
	accounts AccountUpdater,
	events interfaces.EventService,
	logger arbor.ILogger,
) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		queue:     queue,
		storage:   storage,
		validator: validator,
		browser:   browser,
		metrics:   metrics,
		accounts:  accounts,
		events:    events,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// TriggerDrain starts a drain in the background unless one is already
// active. Returns true when a new drain was started. Safe to call from any
// goroutine; concurrent callers collapse onto the single in-flight drain.
func (w *Worker) TriggerDrain() bool {
	if w.ctx.Err() != nil {
		return false
	}
	if !w.draining.CompareAndSwap(false, true) {
		return false
	}

	// The goroutine body owns the guard: it must always run so the flag is
	// always released, even when the worker is closing concurrently.
	common.SafeGo(w.logger, "authDrain", func() {
		defer w.draining.Store(false)
		w.drainLoop(w.ctx)
	})
	return true
}

// Close cancels the active drain (if any) and refuses new ones.
func (w *Worker) Close() {
	w.cancel()
}

// IsDraining reports whether a drain is currently active.
func (w *Worker) IsDraining() bool {
	return w.draining.Load()
}

// Progress returns the current batch progress.
func (w *Worker) Progress() models.AuthProgress {
	return w.queue.ProgressSnapshot()
}

// CancelLogin aborts an in-flight interactive login. The active drain
// returns to idle without marking queued accounts invalid so the operator
// can retry.
func (w *Worker) CancelLogin() {
	w.browser.CancelLogin()
}

// drainLoop drains batches until the queue stays empty. Entries enqueued
// while a batch is processing are picked up by the next iteration, which is
// the explicit form of the drain's self-retrigger.
func (w *Worker) drainLoop(ctx context.Context) {
	for {
		batch := w.queue.Drain()
		if len(batch) == 0 {
			return
		}

		cancelled := w.runBatch(ctx, batch)
		if cancelled || ctx.Err() != nil {
			return
		}
	}
}

// runBatch executes one drain cycle over a fixed batch. Returns true when
// the cycle ended because the operator cancelled the interactive login.
func (w *Worker) runBatch(ctx context.Context, batch []string) (cancelled bool) {
	w.logger.Info().Int("accounts", len(batch)).Msg("Starting authorization batch")

	w.queue.BeginBatch(len(batch))
	w.notifyProgress(ctx)

	processed := 0

	// Fail closed: a panic anywhere in the cycle must not leave accounts
	// stuck in authorizing.
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			w.logger.Error().
				Str("panic", fmt.Sprintf("%v", r)).
				Str("stack", string(buf[:n])).
				Msg("Authorization batch panicked - failing remaining accounts")
			w.failRemaining(ctx, batch[processed:], fmt.Errorf("authorization cycle aborted: %v", r))
			w.queue.EndBatch()
			w.notifyProgress(ctx)
		}
	}()

	agentCookies, err := w.resolveAgent(ctx)
	if err != nil {
		if errors.Is(err, models.ErrLoginCancelled) {
			// Operator cancel: back to idle, statuses untouched, batch
			// stays queued for a retry.
			w.logger.Info().Msg("Authorization batch cancelled by operator")
			w.queue.Requeue(batch)
			w.queue.EndBatch()
			w.notifyProgress(ctx)
			return true
		}

		// Without a usable agent session impersonation is impossible; no
		// partial work is attempted.
		w.logger.Warn().Err(err).Msg("Agent authorization failed - failing whole batch")
		w.failRemaining(ctx, batch, err)
		processed = len(batch)
		w.queue.EndBatch()
		w.notifyProgress(ctx)
		return false
	}

	for _, accountID := range batch {
		if ctx.Err() != nil {
			w.failRemaining(ctx, batch[processed:], ctx.Err())
			processed = len(batch)
			break
		}

		w.queue.SetCurrent(accountID)
		w.notifyProgress(ctx)

		w.authorizeAccount(ctx, accountID, agentCookies)

		w.queue.Remove(accountID)
		w.queue.CompleteOne()
		processed++
		w.notifyProgress(ctx)
	}

	w.queue.EndBatch()
	w.notifyProgress(ctx)
	w.logger.Info().Int("accounts", len(batch)).Msg("Authorization batch complete")
	return false
}

// authorizeAccount performs the impersonation and immediate fetch for one
// account. One account's failure never aborts the batch.
func (w *Worker) authorizeAccount(ctx context.Context, accountID string, agentCookies models.CookieSet) {
	cookies, err := w.browser.Impersonate(ctx, accountID, agentCookies)
	if err != nil || cookies.Empty() {
		if err == nil {
			err = models.ErrImpersonationTimeout
		}
		w.logger.Warn().Err(err).Str("account_id", accountID).Msg("Impersonation failed")
		w.accounts.MarkFailed(ctx, accountID, err)
		return
	}

	// Fetch once right away so monitoring resumes without waiting for the
	// next sweep. A transient fetch failure is non-fatal: the session stays
	// valid and the account shows stale data until the sweep.
	snapshot, err := w.metrics.FetchMetrics(ctx, accountID, cookies)
	switch {
	case errors.Is(err, models.ErrCredentialInvalid):
		w.logger.Warn().Str("account_id", accountID).Msg("Impersonated session rejected on first fetch")
		w.accounts.MarkFailed(ctx, accountID, err)
	case err != nil:
		w.logger.Warn().Err(err).Str("account_id", accountID).Msg("Post-authorization fetch failed - keeping session")
		w.accounts.MarkAuthorized(ctx, accountID, cookies, nil)
	default:
		w.accounts.MarkAuthorized(ctx, accountID, cookies, snapshot)
	}
}

// resolveAgent makes the shared agent credential usable, re-probing before
// every batch: the stored valid status is advisory only, and one cheap probe
// beats a whole failed batch. This drain step is the sole writer of the
// agent credential.
func (w *Worker) resolveAgent(ctx context.Context) (models.CookieSet, error) {
	agent, err := w.storage.GetAgent(ctx)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
		}
		agent = models.NewAgentCredential()
	}

	if !agent.Cookies.Empty() && w.validator.ValidateAgent(ctx, agent.Cookies) {
		agent.Status = models.CredentialStatusValid
		agent.LastCheckedAt = time.Now()
		if err := w.storage.StoreAgent(ctx, agent); err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
		}
		w.notifyAgentStatus(ctx, agent.Status)
		return agent.Cookies, nil
	}

	w.logger.Info().Msg("Agent session invalid or absent - starting interactive login")

	cookies, err := w.browser.InteractiveLogin(ctx)
	if err != nil {
		if errors.Is(err, models.ErrLoginCancelled) {
			return nil, err
		}

		agent.Status = models.CredentialStatusInvalid
		agent.Cookies = nil
		agent.LastCheckedAt = time.Now()
		if storeErr := w.storage.StoreAgent(ctx, agent); storeErr != nil {
			w.logger.Error().Err(storeErr).Msg("Failed to persist invalid agent credential")
		}
		w.notifyAgentStatus(ctx, agent.Status)
		return nil, err
	}

	agent.Cookies = cookies
	agent.Status = models.CredentialStatusValid
	agent.LastCheckedAt = time.Now()
	if err := w.storage.StoreAgent(ctx, agent); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}

	w.notifyAgentStatus(ctx, agent.Status)
	return cookies, nil
}

// failRemaining marks every unprocessed account in the batch invalid and
// clears its queue membership - never leave an account silently stuck in
// authorizing.
func (w *Worker) failRemaining(ctx context.Context, accountIDs []string, cause error) {
	for _, accountID := range accountIDs {
		w.accounts.MarkFailed(ctx, accountID, cause)
		w.queue.Remove(accountID)
	}
}

func (w *Worker) notifyProgress(ctx context.Context) {
	if w.events == nil {
		return
	}
	w.events.Publish(ctx, interfaces.Event{
		Type:    interfaces.EventAuthProgress,
		Payload: w.queue.ProgressSnapshot(),
	})
}

func (w *Worker) notifyAgentStatus(ctx context.Context, status models.CredentialStatus) {
	if w.events == nil {
		return
	}
	w.events.Publish(ctx, interfaces.Event{
		Type:    interfaces.EventAgentStatusChanged,
		Payload: map[string]string{"status": string(status)},
	})
}
