package interfaces

import (
	"context"

	"github.com/ternarybob/adwatch/internal/models"
)

// BrowserAutomation drives the interactive console session. Impersonation
// reuses one shared browser context, so calls must never run concurrently;
// the authorization worker serializes them.
type BrowserAutomation interface {
	// InteractiveLogin opens a user-visible login flow on the console,
	// polls the identity endpoint at a fixed interval until the operator
	// completes login, and returns the captured session cookies. Returns
	// models.ErrLoginTimeout after the bounded number of attempts and
	// models.ErrLoginCancelled when ctx is cancelled by the operator.
	InteractiveLogin(ctx context.Context) (models.CookieSet, error)

	// Impersonate switches the console's active context to the target
	// account and returns the resulting session's cookies filtered to the
	// metrics API domain. Returns models.ErrImpersonationNotFound when the
	// account is absent from the console list and
	// models.ErrImpersonationTimeout when no new session materializes
	// within the bound.
	Impersonate(ctx context.Context, accountID string, agentCookies models.CookieSet) (models.CookieSet, error)

	// CancelLogin aborts an in-flight interactive login immediately.
	CancelLogin()
}
