package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/adwatch/internal/interfaces"
	"github.com/ternarybob/adwatch/internal/models"
	"github.com/ternarybob/adwatch/internal/services/auth"
	"github.com/ternarybob/arbor"
)

// DrainTrigger starts an authorization drain unless one is already active.
// The drain runs on the worker's own lifetime, detached from whatever
// caller context reached the registry.
type DrainTrigger interface {
	TriggerDrain() bool
}

// Service owns the in-memory map of monitored accounts and keeps account
// status, cookies, and authorization-queue membership in lockstep behind one
// mutex. Metrics snapshots are replaced more loosely since staleness is
// tolerated. All callers - handlers, the refresh loop, and the
// authorization worker - go through its operations.
type Service struct {
	mu       sync.Mutex
	accounts map[string]*models.MonitoredAccount
	inFlight map[string]bool // per-account refresh guard across sweep ticks

	queue     *auth.Queue
	drain     DrainTrigger
	storage   interfaces.CredentialStorage
	validator interfaces.SessionValidator
	metrics   interfaces.MetricsClient
	events    interfaces.EventService
	logger    arbor.ILogger
}

// NewService creates the account registry. The drain trigger is attached
// after the worker is constructed (the worker needs the registry as its
// account updater).
func NewService(
	queue *auth.Queue,
	storage interfaces.CredentialStorage,
	validator interfaces.SessionValidator,
	metrics interfaces.MetricsClient,
	events interfaces.EventService,
	logger arbor.ILogger,
) *Service {
	return &Service{
		accounts:  make(map[string]*models.MonitoredAccount),
		inFlight:  make(map[string]bool),
		queue:     queue,
		storage:   storage,
		validator: validator,
		metrics:   metrics,
		events:    events,
		logger:    logger,
	}
}

// SetDrainTrigger attaches the authorization worker.
func (s *Service) SetDrainTrigger(drain DrainTrigger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drain = drain
}

// Initialize loads all stored accounts, validates each stored session once,
// fetches metrics for the ones that validate, and enqueues everything that
// did not - establishing a consistent starting state after a cold start.
func (s *Service) Initialize(ctx context.Context) error {
	stored, err := s.storage.ListAccounts(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}

	s.mu.Lock()
	for _, cred := range stored {
		s.accounts[cred.AccountID] = &models.MonitoredAccount{
			AccountID:   cred.AccountID,
			DisplayName: cred.DisplayName,
			Credential:  cred,
		}
	}
	s.mu.Unlock()

	for _, cred := range stored {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if !cred.Cookies.Empty() && s.validator.ValidateAccount(ctx, cred.AccountID, cred.Cookies) {
			s.setStatus(ctx, cred.AccountID, models.AccountStatusValid)
			s.refreshAccount(ctx, cred.AccountID)
		} else {
			s.enqueueForAuth(ctx, cred.AccountID)
		}
	}

	s.logger.Info().Int("accounts", len(stored)).Msg("Registry initialized from store")
	s.triggerDrain()
	return nil
}

// AddAccount registers an account for monitoring. Idempotent: adding an
// already-registered ID returns the existing in-memory record without
// duplicating store rows or queue entries. A stored session is validated
// once; a valid one gets an immediate metrics fetch, anything else is
// enqueued for authorization.
func (s *Service) AddAccount(ctx context.Context, accountID, displayName string) (*models.MonitoredAccount, error) {
	if accountID == "" {
		return nil, fmt.Errorf("account ID is required")
	}

	s.mu.Lock()
	if existing, ok := s.accounts[accountID]; ok {
		s.mu.Unlock()
		return existing, nil
	}

	cred, err := s.storage.GetAccount(ctx, accountID)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			s.mu.Unlock()
			return nil, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
		}
		cred = &models.AccountCredential{
			AccountID:   accountID,
			DisplayName: displayName,
			Status:      models.AccountStatusUnknown,
		}
		if err := s.storage.StoreAccount(ctx, cred); err != nil {
			s.mu.Unlock()
			return nil, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
		}
	}

	account := &models.MonitoredAccount{
		AccountID:   accountID,
		DisplayName: cred.DisplayName,
		Credential:  cred,
	}
	s.accounts[accountID] = account
	s.mu.Unlock()

	s.notify(ctx, interfaces.EventAccountAdded, map[string]string{"account_id": accountID})

	if !cred.Cookies.Empty() && s.validator.ValidateAccount(ctx, accountID, cred.Cookies) {
		s.setStatus(ctx, accountID, models.AccountStatusValid)
		s.refreshAccount(ctx, accountID)
	} else {
		s.enqueueForAuth(ctx, accountID)
		s.triggerDrain()
	}

	return account, nil
}

// RemoveAccount deletes the account from the registry, the queue, and the
// store. Returns false when the account was not registered.
func (s *Service) RemoveAccount(ctx context.Context, accountID string) (bool, error) {
	s.mu.Lock()
	_, ok := s.accounts[accountID]
	if ok {
		delete(s.accounts, accountID)
		delete(s.inFlight, accountID)
		s.queue.Remove(accountID)
	}
	s.mu.Unlock()

	if !ok {
		return false, nil
	}

	if _, err := s.storage.DeleteAccount(ctx, accountID); err != nil {
		return true, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}

	s.notify(ctx, interfaces.EventAccountRemoved, map[string]string{"account_id": accountID})
	return true, nil
}

// GetMetrics returns the account's metrics, fetching fresh data when a
// session is available. An account mid-authorization gets its last-known
// snapshot back without new work - no duplicate enqueue, no external call.
// Session rejection clears cookies, enqueues, and still returns the stale
// snapshot rather than failing the caller.
func (s *Service) GetMetrics(ctx context.Context, accountID string) (*models.MonitoredAccount, error) {
	s.mu.Lock()
	account, ok := s.accounts[accountID]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("account %s is not registered", accountID)
	}
	status := account.Status()
	hasCookies := account.Credential != nil && !account.Credential.Cookies.Empty()
	s.mu.Unlock()

	switch {
	case status == models.AccountStatusAuthorizing:
		// Mid-authorization: stale read, no thundering herd.
	case hasCookies:
		s.refreshAccount(ctx, accountID)
	default:
		s.enqueueForAuth(ctx, accountID)
		s.triggerDrain()
	}

	return s.snapshotOf(accountID)
}

// ListAccounts returns a view of every registered account.
func (s *Service) ListAccounts() []models.AccountView {
	s.mu.Lock()
	defer s.mu.Unlock()

	views := make([]models.AccountView, 0, len(s.accounts))
	for _, account := range s.accounts {
		views = append(views, models.AccountView{
			AccountID:   account.AccountID,
			DisplayName: account.DisplayName,
			Status:      account.Status(),
			LiveCount:   len(account.LiveItems),
			EndedCount:  len(account.EndedItems),
			LastFetchAt: account.LastFetchAt,
		})
	}
	return views
}

// ReauthorizeAll pushes every registered account back through
// authorization. Used when the operator knows the agent session is gone.
func (s *Service) ReauthorizeAll(ctx context.Context) int {
	s.mu.Lock()
	ids := make([]string, 0, len(s.accounts))
	for id := range s.accounts {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		s.enqueueForAuth(ctx, id)
	}
	s.triggerDrain()
	return len(ids)
}

// MarkAuthorized implements auth.AccountUpdater: the worker reports a fresh
// session, optionally with the immediate post-authorization snapshot.
func (s *Service) MarkAuthorized(ctx context.Context, accountID string, cookies models.CookieSet, metrics *models.MetricsSnapshot) {
	s.mu.Lock()
	account, ok := s.accounts[accountID]
	if !ok {
		// Removed while authorizing; nothing to update.
		s.mu.Unlock()
		return
	}
	account.Credential.Cookies = cookies
	account.Credential.Status = models.AccountStatusValid
	if metrics != nil {
		account.ApplyMetrics(metrics, time.Now())
	}
	cred := *account.Credential
	s.queue.Remove(accountID)
	s.mu.Unlock()

	if err := s.storage.StoreAccount(ctx, &cred); err != nil {
		s.logger.Error().Err(err).Str("account_id", accountID).Msg("Failed to persist authorized credential")
	}

	s.notifyStatus(ctx, accountID, models.AccountStatusValid)
	if metrics != nil {
		s.notify(ctx, interfaces.EventMetricsUpdated, map[string]string{"account_id": accountID})
	}
}

// MarkFailed implements auth.AccountUpdater: the worker reports an
// authorization failure. Status goes to invalid and cookies are cleared;
// the last good snapshot is left in place.
func (s *Service) MarkFailed(ctx context.Context, accountID string, cause error) {
	s.mu.Lock()
	account, ok := s.accounts[accountID]
	if !ok {
		s.mu.Unlock()
		return
	}
	account.Credential.Invalidate()
	cred := *account.Credential
	s.queue.Remove(accountID)
	s.mu.Unlock()

	s.logger.Warn().Err(cause).Str("account_id", accountID).Msg("Account authorization failed")

	if err := s.storage.StoreAccount(ctx, &cred); err != nil {
		s.logger.Error().Err(err).Str("account_id", accountID).Msg("Failed to persist invalidated credential")
	}

	s.notifyStatus(ctx, accountID, models.AccountStatusInvalid)
}

// Progress returns the authorization queue's progress record.
func (s *Service) Progress() models.AuthProgress {
	return s.queue.ProgressSnapshot()
}

// refreshAccount fetches metrics for one account with a usable session. The
// per-account in-flight guard prevents overlapping refreshes when a fetch
// outlives the sweep interval.
func (s *Service) refreshAccount(ctx context.Context, accountID string) {
	if !s.beginRefresh(accountID) {
		return
	}
	defer s.endRefresh(accountID)

	s.mu.Lock()
	account, ok := s.accounts[accountID]
	if !ok || account.Credential == nil || account.Credential.Cookies.Empty() {
		s.mu.Unlock()
		return
	}
	cookies := account.Credential.Cookies
	s.mu.Unlock()

	snapshot, err := s.metrics.FetchMetrics(ctx, accountID, cookies)
	switch {
	case errors.Is(err, models.ErrCredentialInvalid):
		s.logger.Info().Str("account_id", accountID).Msg("Session rejected during refresh - re-authorizing")
		s.invalidateAndEnqueue(ctx, accountID)
		s.triggerDrain()
	case err != nil:
		// Transient: keep the session and the stale snapshot, retry on
		// the next tick.
		s.logger.Warn().Err(err).Str("account_id", accountID).Msg("Metrics refresh failed")
	default:
		s.mu.Lock()
		if account, ok := s.accounts[accountID]; ok {
			account.ApplyMetrics(snapshot, time.Now())
			// An enqueue may have raced this fetch; authorizing status and
			// queue membership win over a completed refresh.
			if account.Status() != models.AccountStatusAuthorizing {
				account.Credential.Status = models.AccountStatusValid
			}
		}
		s.mu.Unlock()
		s.notify(ctx, interfaces.EventMetricsUpdated, map[string]string{"account_id": accountID})
	}
}

// invalidateAndEnqueue clears a rejected session and queues the account for
// re-authorization, leaving snapshot data at its last good values.
func (s *Service) invalidateAndEnqueue(ctx context.Context, accountID string) {
	s.mu.Lock()
	account, ok := s.accounts[accountID]
	if !ok {
		s.mu.Unlock()
		return
	}
	account.Credential.Invalidate()
	cred := *account.Credential
	s.mu.Unlock()

	if err := s.storage.StoreAccount(ctx, &cred); err != nil {
		s.logger.Error().Err(err).Str("account_id", accountID).Msg("Failed to persist invalidated credential")
	}
	s.notifyStatus(ctx, accountID, models.AccountStatusInvalid)

	s.enqueueForAuth(ctx, accountID)
}

// enqueueForAuth moves the account into authorizing and adds it to the
// queue. Status and queue membership change together under the lock; an
// account already queued is left untouched.
func (s *Service) enqueueForAuth(ctx context.Context, accountID string) {
	s.mu.Lock()
	account, ok := s.accounts[accountID]
	if !ok || s.queue.Contains(accountID) {
		s.mu.Unlock()
		return
	}
	account.Credential.Status = models.AccountStatusAuthorizing
	cred := *account.Credential
	s.queue.Enqueue(accountID)
	s.mu.Unlock()

	if err := s.storage.StoreAccount(ctx, &cred); err != nil {
		s.logger.Error().Err(err).Str("account_id", accountID).Msg("Failed to persist authorizing status")
	}

	s.notifyStatus(ctx, accountID, models.AccountStatusAuthorizing)
}

// setStatus updates one account's status and persists the credential.
func (s *Service) setStatus(ctx context.Context, accountID string, status models.AccountStatus) {
	s.mu.Lock()
	account, ok := s.accounts[accountID]
	if !ok {
		s.mu.Unlock()
		return
	}
	account.Credential.Status = status
	cred := *account.Credential
	s.mu.Unlock()

	if err := s.storage.StoreAccount(ctx, &cred); err != nil {
		s.logger.Error().Err(err).Str("account_id", accountID).Msg("Failed to persist status change")
	}
	s.notifyStatus(ctx, accountID, status)
}

// snapshotOf returns a copy of the account aggregate safe for callers to
// read without holding the registry lock.
func (s *Service) snapshotOf(accountID string) (*models.MonitoredAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[accountID]
	if !ok {
		return nil, fmt.Errorf("account %s is not registered", accountID)
	}

	copy := *account
	cred := *account.Credential
	copy.Credential = &cred
	return &copy, nil
}

func (s *Service) beginRefresh(accountID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[accountID]
	if !ok || s.inFlight[accountID] {
		return false
	}
	if account.Status() == models.AccountStatusAuthorizing {
		return false
	}
	s.inFlight[accountID] = true
	return true
}

func (s *Service) endRefresh(accountID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, accountID)
}

func (s *Service) triggerDrain() {
	s.mu.Lock()
	drain := s.drain
	s.mu.Unlock()

	if drain != nil {
		drain.TriggerDrain()
	}
}

func (s *Service) notify(ctx context.Context, eventType interfaces.EventType, payload interface{}) {
	if s.events == nil {
		return
	}
	s.events.Publish(ctx, interfaces.Event{Type: eventType, Payload: payload})
}

func (s *Service) notifyStatus(ctx context.Context, accountID string, status models.AccountStatus) {
	s.notify(ctx, interfaces.EventAccountStatusChanged, map[string]string{
		"account_id": accountID,
		"status":     string(status),
	})
}
