package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ternarybob/adwatch/internal/common"
	"github.com/ternarybob/adwatch/internal/models"
	"github.com/ternarybob/arbor"
)

// Identity is the payload returned by the platform identity endpoint.
type Identity struct {
	UserID    string `json:"user_id"`
	AccountID string `json:"account_id,omitempty"`
	Email     string `json:"email,omitempty"`
}

// Validator probes the platform identity endpoint to decide whether a
// session's cookies are still accepted. One probe per call, no retries;
// callers own the retry policy. Any network or parse failure reads as
// invalid - this layer deliberately does not distinguish "network down"
// from "session expired".
type Validator struct {
	client    *http.Client
	platform  *common.PlatformConfig
	logger    arbor.ILogger
}

// NewValidator creates a session validator for the configured platform.
func NewValidator(platform *common.PlatformConfig, logger arbor.ILogger) *Validator {
	return &Validator{
		client: &http.Client{
			Timeout: 15 * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				// A redirect from the identity endpoint means the session
				// was bounced to the login page.
				return http.ErrUseLastResponse
			},
		},
		platform: platform,
		logger:   logger,
	}
}

// ValidateAgent probes the console identity endpoint with the shared agent
// session's cookies.
func (v *Validator) ValidateAgent(ctx context.Context, cookies models.CookieSet) bool {
	identity, err := v.Probe(ctx, v.platform.ConsoleURL, cookies)
	if err != nil {
		v.logger.Debug().Err(err).Msg("Agent session probe failed")
		return false
	}
	return identity.UserID != ""
}

// ValidateAccount probes the metrics API identity endpoint with an account
// session's cookies. When the endpoint reports which account the session is
// scoped to, a mismatch reads as invalid.
func (v *Validator) ValidateAccount(ctx context.Context, accountID string, cookies models.CookieSet) bool {
	identity, err := v.Probe(ctx, v.platform.APIURL, cookies)
	if err != nil {
		v.logger.Debug().Err(err).Str("account_id", accountID).Msg("Account session probe failed")
		return false
	}
	if identity.AccountID != "" && identity.AccountID != accountID {
		v.logger.Warn().
			Str("expected", accountID).
			Str("actual", identity.AccountID).
			Msg("Session scoped to a different account")
		return false
	}
	return identity.UserID != ""
}

// Probe performs one identity request against baseURL and decodes the
// response. Used by ValidateAgent/ValidateAccount and by the interactive
// login poll to detect completion.
func (v *Validator) Probe(ctx context.Context, baseURL string, cookies models.CookieSet) (*Identity, error) {
	if cookies.Empty() {
		return nil, fmt.Errorf("no cookies to probe with")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+v.platform.IdentityPath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build identity request: %w", err)
	}
	if v.platform.UserAgent != "" {
		req.Header.Set("User-Agent", v.platform.UserAgent)
	}
	for _, c := range cookies {
		req.AddCookie(c.ToHTTPCookie())
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("identity probe failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("identity probe rejected: status %d", resp.StatusCode)
	}

	var identity Identity
	if err := json.NewDecoder(resp.Body).Decode(&identity); err != nil {
		return nil, fmt.Errorf("failed to decode identity response: %w", err)
	}

	return &identity, nil
}
