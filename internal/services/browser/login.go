package browser

import (
	"context"
	"errors"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/ternarybob/adwatch/internal/models"
)

// InteractiveLogin opens a visible browser window on the console login page
// and polls the identity endpoint at a fixed interval until the operator
// completes the login. Returns the captured session cookies on success,
// models.ErrLoginTimeout when the attempts are exhausted, and
// models.ErrLoginCancelled when ctx is cancelled or CancelLogin is called.
func (s *Service) InteractiveLogin(ctx context.Context) (models.CookieSet, error) {
	loginCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	browserCtx, browserCancel := s.newBrowserContext(loginCtx, s.auth.Headless)
	defer browserCancel()

	// Expose cancellation to CancelLogin for the lifetime of this call.
	s.setLoginCancel(cancel)
	defer s.clearLoginCancel()

	s.logger.Info().Str("url", s.platform.LoginURL).Msg("Opening interactive login window")

	if err := chromedp.Run(browserCtx, chromedp.Navigate(s.platform.LoginURL)); err != nil {
		if loginCtx.Err() != nil {
			return nil, models.ErrLoginCancelled
		}
		return nil, errors.Join(models.ErrLoginTimeout, err)
	}

	ticker := time.NewTicker(s.auth.LoginPollInterval)
	defer ticker.Stop()

	for attempt := 1; attempt <= s.auth.LoginPollAttempts; attempt++ {
		select {
		case <-loginCtx.Done():
			s.logger.Info().Int("attempt", attempt).Msg("Interactive login cancelled")
			return nil, models.ErrLoginCancelled
		case <-ticker.C:
		}

		cookies, err := s.captureCookies(browserCtx, s.platform.ConsoleURL)
		if err != nil {
			// The browser window was closed out from under us.
			if loginCtx.Err() != nil {
				return nil, models.ErrLoginCancelled
			}
			s.logger.Debug().Err(err).Int("attempt", attempt).Msg("Cookie capture failed during login poll")
			continue
		}
		if cookies.Empty() {
			continue
		}

		identity, err := s.prober.Probe(loginCtx, s.platform.ConsoleURL, cookies)
		if err != nil || identity.UserID == "" {
			s.logger.Debug().
				Int("attempt", attempt).
				Int("max_attempts", s.auth.LoginPollAttempts).
				Msg("Login not yet complete")
			continue
		}

		s.logger.Info().
			Str("user_id", identity.UserID).
			Int("cookies", len(cookies)).
			Msg("Interactive login completed")
		return cookies, nil
	}

	s.logger.Warn().
		Int("attempts", s.auth.LoginPollAttempts).
		Dur("interval", s.auth.LoginPollInterval).
		Msg("Interactive login timed out")
	return nil, models.ErrLoginTimeout
}
