package browser

import (
	"context"
	"sync"

	"github.com/chromedp/chromedp"
	"github.com/ternarybob/adwatch/internal/common"
	"github.com/ternarybob/adwatch/internal/models"
	"github.com/ternarybob/adwatch/internal/services/session"
	"github.com/ternarybob/arbor"
)

// IdentityProber detects login completion by probing the platform identity
// endpoint with the cookies captured so far.
type IdentityProber interface {
	Probe(ctx context.Context, baseURL string, cookies models.CookieSet) (*session.Identity, error)
}

// Service drives the interactive console session with chromedp. One shared
// browser context serves both login and impersonation, so the authorization
// worker serializes all calls; the internal mutex is a backstop, not an API.
type Service struct {
	platform *common.PlatformConfig
	auth     *common.AuthConfig
	prober   IdentityProber
	logger   arbor.ILogger

	mu          sync.Mutex
	loginCancel context.CancelFunc
}

// NewService creates a browser automation service.
func NewService(platform *common.PlatformConfig, auth *common.AuthConfig, prober IdentityProber, logger arbor.ILogger) *Service {
	return &Service{
		platform: platform,
		auth:     auth,
		prober:   prober,
		logger:   logger,
	}
}

// newBrowserContext creates a fresh chromedp browser context. Interactive
// login needs a visible window; impersonation can run headless.
func (s *Service) newBrowserContext(parent context.Context, headless bool) (context.Context, context.CancelFunc) {
	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(
		parent,
		append(
			chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", headless),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.UserAgent(s.platform.UserAgent),
		)...,
	)

	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)

	cancel := func() {
		browserCancel()
		allocatorCancel()
	}
	return browserCtx, cancel
}

// CancelLogin aborts an in-flight interactive login immediately by closing
// its browser context. The login call returns models.ErrLoginCancelled and
// queued accounts keep their status so the operator can retry.
func (s *Service) CancelLogin() {
	s.mu.Lock()
	cancel := s.loginCancel
	s.mu.Unlock()

	if cancel != nil {
		s.logger.Info().Msg("Cancelling in-flight interactive login")
		cancel()
	}
}

func (s *Service) setLoginCancel(cancel context.CancelFunc) {
	s.mu.Lock()
	s.loginCancel = cancel
	s.mu.Unlock()
}

func (s *Service) clearLoginCancel() {
	s.mu.Lock()
	s.loginCancel = nil
	s.mu.Unlock()
}
