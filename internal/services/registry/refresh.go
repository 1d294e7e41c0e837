package registry

import (
	"context"
	"time"

	"github.com/ternarybob/adwatch/internal/models"
)

// RefreshAll runs one metrics sweep over every registered account. Accounts
// mid-authorization are skipped; accounts with a session get a fetch;
// accounts without one are (re)enqueued so nothing stays invalid forever.
// Per-account work is bounded by fetchTimeout so one slow platform call
// cannot stall the rest of the sweep.
func (s *Service) RefreshAll(ctx context.Context, fetchTimeout time.Duration) {
	s.mu.Lock()
	ids := make([]string, 0, len(s.accounts))
	for id := range s.accounts {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	if len(ids) == 0 {
		return
	}

	s.logger.Debug().Int("accounts", len(ids)).Msg("Starting metrics sweep")

	enqueued := false
	for _, accountID := range ids {
		if ctx.Err() != nil {
			return
		}

		s.mu.Lock()
		account, ok := s.accounts[accountID]
		if !ok {
			s.mu.Unlock()
			continue
		}
		status := account.Status()
		hasCookies := account.Credential != nil && !account.Credential.Cookies.Empty()
		s.mu.Unlock()

		switch {
		case status == models.AccountStatusAuthorizing:
			continue
		case hasCookies:
			if fetchTimeout > 0 {
				fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
				s.refreshAccount(fetchCtx, accountID)
				cancel()
			} else {
				s.refreshAccount(ctx, accountID)
			}
		default:
			// Invalid or unknown with no session: keep retrying
			// authorization on every sweep.
			s.enqueueForAuth(ctx, accountID)
			enqueued = true
		}
	}

	if enqueued {
		s.triggerDrain()
	}
}

// RefreshLoop runs metrics sweeps at the given interval until the context is
// cancelled. One sweep runs at a time per loop; the per-account in-flight
// guard in refreshAccount additionally protects against overlap from other
// callers.
func (s *Service) RefreshLoop(ctx context.Context, interval, fetchTimeout time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug().Msg("Refresh loop stopped")
			return
		case <-ticker.C:
			s.RefreshAll(ctx, fetchTimeout)
		}
	}
}
