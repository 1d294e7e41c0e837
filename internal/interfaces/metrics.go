package interfaces

import (
	"context"

	"github.com/ternarybob/adwatch/internal/models"
)

// SessionValidator probes the platform identity endpoint with a credential's
// cookies. One probe per call, no retries - callers own the retry policy.
// Network and parse failures are reported as invalid, not raised: this layer
// deliberately does not distinguish "network down" from "session expired".
type SessionValidator interface {
	ValidateAgent(ctx context.Context, cookies models.CookieSet) bool
	ValidateAccount(ctx context.Context, accountID string, cookies models.CookieSet) bool
}

// MetricsClient retrieves the live-stream metrics for one account.
// A models.ErrCredentialInvalid return signals session rejection and triggers
// invalidation; any other error is transient and leaves the last snapshot in
// place.
type MetricsClient interface {
	FetchMetrics(ctx context.Context, accountID string, cookies models.CookieSet) (*models.MetricsSnapshot, error)
}
