package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ternarybob/adwatch/internal/models"
	"github.com/ternarybob/arbor"
)

type fakeStorage struct {
	mu       sync.Mutex
	agent    *models.AgentCredential
	accounts map[string]*models.AccountCredential
	storeErr error
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{accounts: make(map[string]*models.AccountCredential)}
}

func (s *fakeStorage) StoreAgent(ctx context.Context, cred *models.AgentCredential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.storeErr != nil {
		return s.storeErr
	}
	copy := *cred
	s.agent = &copy
	return nil
}

func (s *fakeStorage) GetAgent(ctx context.Context) (*models.AgentCredential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.agent == nil {
		return nil, models.ErrNotFound
	}
	copy := *s.agent
	return &copy, nil
}

func (s *fakeStorage) StoreAccount(ctx context.Context, cred *models.AccountCredential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copy := *cred
	s.accounts[cred.AccountID] = &copy
	return nil
}

func (s *fakeStorage) GetAccount(ctx context.Context, accountID string) (*models.AccountCredential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cred, ok := s.accounts[accountID]
	if !ok {
		return nil, models.ErrNotFound
	}
	copy := *cred
	return &copy, nil
}

func (s *fakeStorage) DeleteAccount(ctx context.Context, accountID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.accounts[accountID]
	delete(s.accounts, accountID)
	return ok, nil
}

func (s *fakeStorage) ListAccounts(ctx context.Context) ([]*models.AccountCredential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.AccountCredential
	for _, cred := range s.accounts {
		copy := *cred
		out = append(out, &copy)
	}
	return out, nil
}

type fakeValidator struct {
	agentValid   bool
	accountValid bool
}

func (v *fakeValidator) ValidateAgent(ctx context.Context, cookies models.CookieSet) bool {
	return v.agentValid && !cookies.Empty()
}

func (v *fakeValidator) ValidateAccount(ctx context.Context, accountID string, cookies models.CookieSet) bool {
	return v.accountValid && !cookies.Empty()
}

type fakeBrowser struct {
	mu          sync.Mutex
	loginFn     func(ctx context.Context) (models.CookieSet, error)
	impersonate func(ctx context.Context, accountID string, agentCookies models.CookieSet) (models.CookieSet, error)
	cancelled   bool
}

func (b *fakeBrowser) InteractiveLogin(ctx context.Context) (models.CookieSet, error) {
	if b.loginFn != nil {
		return b.loginFn(ctx)
	}
	return models.CookieSet{{Name: "agent", Value: "fresh"}}, nil
}

func (b *fakeBrowser) Impersonate(ctx context.Context, accountID string, agentCookies models.CookieSet) (models.CookieSet, error) {
	if b.impersonate != nil {
		return b.impersonate(ctx, accountID, agentCookies)
	}
	return models.CookieSet{{Name: "sid", Value: "session-" + accountID}}, nil
}

func (b *fakeBrowser) CancelLogin() {
	b.mu.Lock()
	b.cancelled = true
	b.mu.Unlock()
}

type fakeMetrics struct {
	fetchFn func(ctx context.Context, accountID string, cookies models.CookieSet) (*models.MetricsSnapshot, error)
}

func (m *fakeMetrics) FetchMetrics(ctx context.Context, accountID string, cookies models.CookieSet) (*models.MetricsSnapshot, error) {
	if m.fetchFn != nil {
		return m.fetchFn(ctx, accountID, cookies)
	}
	return &models.MetricsSnapshot{Live: []models.Snapshot{}, Ended: []models.Snapshot{}}, nil
}

type recordingUpdater struct {
	mu         sync.Mutex
	authorized map[string]*models.MetricsSnapshot
	failed     map[string]error
}

func newRecordingUpdater() *recordingUpdater {
	return &recordingUpdater{
		authorized: make(map[string]*models.MetricsSnapshot),
		failed:     make(map[string]error),
	}
}

func (u *recordingUpdater) MarkAuthorized(ctx context.Context, accountID string, cookies models.CookieSet, metrics *models.MetricsSnapshot) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.authorized[accountID] = metrics
}

func (u *recordingUpdater) MarkFailed(ctx context.Context, accountID string, cause error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.failed[accountID] = cause
}

type workerFixture struct {
	queue     *Queue
	storage   *fakeStorage
	validator *fakeValidator
	browser   *fakeBrowser
	metrics   *fakeMetrics
	updater   *recordingUpdater
	worker    *Worker
}

func newWorkerFixture() *workerFixture {
	f := &workerFixture{
		queue:     NewQueue(),
		storage:   newFakeStorage(),
		validator: &fakeValidator{agentValid: true, accountValid: true},
		browser:   &fakeBrowser{},
		metrics:   &fakeMetrics{},
		updater:   newRecordingUpdater(),
	}
	f.worker = NewWorker(f.queue, f.storage, f.validator, f.browser, f.metrics, f.updater, nil, arbor.NewLogger())
	return f
}

func validAgent() *models.AgentCredential {
	return &models.AgentCredential{
		ID:      models.AgentID,
		Status:  models.CredentialStatusValid,
		Cookies: models.CookieSet{{Name: "agent", Value: "stored"}},
	}
}

func TestDrainAuthorizesBatch(t *testing.T) {
	f := newWorkerFixture()
	f.storage.agent = validAgent()

	f.queue.Enqueue("1")
	f.queue.Enqueue("2")
	f.worker.drainLoop(context.Background())

	if len(f.updater.authorized) != 2 {
		t.Errorf("authorized %d accounts, want 2", len(f.updater.authorized))
	}
	if len(f.updater.failed) != 0 {
		t.Errorf("failed accounts: %v, want none", f.updater.failed)
	}
	if f.queue.Size() != 0 {
		t.Errorf("queue size = %d after drain, want 0", f.queue.Size())
	}
	if p := f.worker.Progress(); p.Running {
		t.Error("progress not reset to idle after drain")
	}
}

func TestPartialFailureIsolation(t *testing.T) {
	f := newWorkerFixture()
	f.storage.agent = validAgent()
	f.browser.impersonate = func(ctx context.Context, accountID string, _ models.CookieSet) (models.CookieSet, error) {
		if accountID == "2" {
			return nil, models.ErrImpersonationNotFound
		}
		return models.CookieSet{{Name: "sid", Value: accountID}}, nil
	}

	f.queue.Enqueue("1")
	f.queue.Enqueue("2")
	f.queue.Enqueue("3")
	f.worker.drainLoop(context.Background())

	if _, ok := f.updater.authorized["1"]; !ok {
		t.Error("account 1 not authorized")
	}
	if _, ok := f.updater.authorized["3"]; !ok {
		t.Error("account 3 not authorized despite account 2 failing")
	}
	if !errors.Is(f.updater.failed["2"], models.ErrImpersonationNotFound) {
		t.Errorf("account 2 failure = %v, want ErrImpersonationNotFound", f.updater.failed["2"])
	}
	if f.queue.Size() != 0 {
		t.Error("queue not empty after batch - an account is stuck")
	}
}

func TestAgentLoginTimeoutFailsWholeBatch(t *testing.T) {
	f := newWorkerFixture()
	f.validator.agentValid = false
	f.browser.loginFn = func(ctx context.Context) (models.CookieSet, error) {
		return nil, models.ErrLoginTimeout
	}

	f.queue.Enqueue("1")
	f.queue.Enqueue("2")
	f.worker.drainLoop(context.Background())

	if len(f.updater.authorized) != 0 {
		t.Error("accounts authorized without a usable agent session")
	}
	for _, id := range []string{"1", "2"} {
		if !errors.Is(f.updater.failed[id], models.ErrLoginTimeout) {
			t.Errorf("account %s failure = %v, want ErrLoginTimeout", id, f.updater.failed[id])
		}
	}
	if f.queue.Size() != 0 {
		t.Error("queue membership not cleared after failed batch")
	}
	if f.storage.agent == nil || f.storage.agent.Status != models.CredentialStatusInvalid {
		t.Error("agent credential not persisted as invalid after login timeout")
	}
}

func TestLoginCancelKeepsBatchQueued(t *testing.T) {
	f := newWorkerFixture()
	f.validator.agentValid = false
	f.browser.loginFn = func(ctx context.Context) (models.CookieSet, error) {
		return nil, models.ErrLoginCancelled
	}

	f.queue.Enqueue("1")
	f.queue.Enqueue("2")
	f.worker.drainLoop(context.Background())

	if len(f.updater.failed) != 0 {
		t.Errorf("cancel marked accounts invalid: %v", f.updater.failed)
	}
	if !f.queue.Contains("1") || !f.queue.Contains("2") {
		t.Error("cancelled batch not retained in queue for retry")
	}
	if p := f.worker.Progress(); p.Running {
		t.Error("progress not reset to idle after cancel")
	}
}

func TestAgentReprobedBeforeBatch(t *testing.T) {
	f := newWorkerFixture()
	// Stored status says valid, but the probe disagrees: the drain must
	// trust the probe and fall through to interactive login.
	f.storage.agent = validAgent()
	f.validator.agentValid = false

	var loginCalled bool
	f.browser.loginFn = func(ctx context.Context) (models.CookieSet, error) {
		loginCalled = true
		return models.CookieSet{{Name: "agent", Value: "fresh"}}, nil
	}

	f.queue.Enqueue("1")
	f.worker.drainLoop(context.Background())

	if !loginCalled {
		t.Error("stale stored valid status was trusted without a probe")
	}
	if _, ok := f.updater.authorized["1"]; !ok {
		t.Error("account not authorized after fresh login")
	}
	if f.storage.agent.Cookies[0].Value != "fresh" {
		t.Error("refreshed agent cookies not persisted")
	}
}

func TestImmediateFetchPopulatesSnapshot(t *testing.T) {
	f := newWorkerFixture()
	f.storage.agent = validAgent()
	f.metrics.fetchFn = func(ctx context.Context, accountID string, cookies models.CookieSet) (*models.MetricsSnapshot, error) {
		return &models.MetricsSnapshot{Ended: []models.Snapshot{{ID: "r1"}}}, nil
	}

	f.queue.Enqueue("123")
	f.worker.drainLoop(context.Background())

	snapshot := f.updater.authorized["123"]
	if snapshot == nil || len(snapshot.Ended) != 1 || snapshot.Ended[0].ID != "r1" {
		t.Errorf("post-authorization snapshot = %+v, want ended [r1]", snapshot)
	}
}

func TestTransientFetchFailureKeepsSessionValid(t *testing.T) {
	f := newWorkerFixture()
	f.storage.agent = validAgent()
	f.metrics.fetchFn = func(ctx context.Context, accountID string, cookies models.CookieSet) (*models.MetricsSnapshot, error) {
		return nil, models.ErrMetricsFetch
	}

	f.queue.Enqueue("1")
	f.worker.drainLoop(context.Background())

	snapshot, ok := f.updater.authorized["1"]
	if !ok {
		t.Fatal("transient fetch failure invalidated a fresh session")
	}
	if snapshot != nil {
		t.Error("snapshot applied despite fetch failure")
	}
	if len(f.updater.failed) != 0 {
		t.Errorf("failed accounts: %v, want none", f.updater.failed)
	}
}

func TestRejectedFirstFetchInvalidates(t *testing.T) {
	f := newWorkerFixture()
	f.storage.agent = validAgent()
	f.metrics.fetchFn = func(ctx context.Context, accountID string, cookies models.CookieSet) (*models.MetricsSnapshot, error) {
		return nil, models.ErrCredentialInvalid
	}

	f.queue.Enqueue("1")
	f.worker.drainLoop(context.Background())

	if !errors.Is(f.updater.failed["1"], models.ErrCredentialInvalid) {
		t.Errorf("failure = %v, want ErrCredentialInvalid", f.updater.failed["1"])
	}
}

func TestSelfRetriggerDrainsLateEnqueues(t *testing.T) {
	f := newWorkerFixture()
	f.storage.agent = validAgent()

	var once sync.Once
	f.browser.impersonate = func(ctx context.Context, accountID string, _ models.CookieSet) (models.CookieSet, error) {
		// A new account arrives while the first batch is mid-flight.
		once.Do(func() { f.queue.Enqueue("late") })
		return models.CookieSet{{Name: "sid", Value: accountID}}, nil
	}

	f.queue.Enqueue("1")
	f.worker.drainLoop(context.Background())

	if _, ok := f.updater.authorized["late"]; !ok {
		t.Error("late enqueue not drained by the self-retriggered batch")
	}
	if f.queue.Size() != 0 {
		t.Error("queue not empty after self-retriggered drain")
	}
}

func TestSingleFlightDrain(t *testing.T) {
	f := newWorkerFixture()
	f.storage.agent = validAgent()

	release := make(chan struct{})
	started := make(chan struct{})
	var starts sync.Once
	f.browser.impersonate = func(ctx context.Context, accountID string, _ models.CookieSet) (models.CookieSet, error) {
		starts.Do(func() { close(started) })
		<-release
		return models.CookieSet{{Name: "sid", Value: accountID}}, nil
	}

	f.queue.Enqueue("1")

	if !f.worker.TriggerDrain() {
		t.Fatal("first TriggerDrain() = false")
	}
	<-started

	// Concurrent triggers collapse onto the in-flight drain
	for i := 0; i < 5; i++ {
		if f.worker.TriggerDrain() {
			t.Fatal("TriggerDrain() started a second concurrent drain")
		}
	}

	close(release)

	deadline := time.After(5 * time.Second)
	for f.worker.IsDraining() {
		select {
		case <-deadline:
			t.Fatal("drain did not finish")
		case <-time.After(10 * time.Millisecond):
		}
	}

	if !f.worker.TriggerDrain() {
		t.Error("TriggerDrain() = false after the previous drain finished")
	}
}

func TestDrainGuardAlwaysReleased(t *testing.T) {
	f := newWorkerFixture()

	// Empty queue: the drain goroutine returns immediately, but the guard
	// must still be released so a later trigger can start a real drain.
	if !f.worker.TriggerDrain() {
		t.Fatal("TriggerDrain() = false on an idle worker")
	}

	deadline := time.After(5 * time.Second)
	for f.worker.IsDraining() {
		select {
		case <-deadline:
			t.Fatal("single-flight guard never released - worker wedged")
		case <-time.After(10 * time.Millisecond):
		}
	}

	if !f.worker.TriggerDrain() {
		t.Error("TriggerDrain() = false forever after an empty drain")
	}
}

func TestClosedWorkerRefusesDrains(t *testing.T) {
	f := newWorkerFixture()
	f.queue.Enqueue("1")
	f.worker.Close()

	if f.worker.TriggerDrain() {
		t.Error("closed worker started a drain")
	}
	if f.worker.IsDraining() {
		t.Error("closed worker reports an active drain")
	}
}

func TestCancelLoginDelegatesToBrowser(t *testing.T) {
	f := newWorkerFixture()
	f.worker.CancelLogin()

	f.browser.mu.Lock()
	defer f.browser.mu.Unlock()
	if !f.browser.cancelled {
		t.Error("CancelLogin() did not reach the browser collaborator")
	}
}
