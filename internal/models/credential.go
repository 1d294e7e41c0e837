package models

import (
	"net/http"
	"strings"
	"time"
)

// AgentID is the fixed store key for the singleton agent credential.
const AgentID = "agent"

// CredentialStatus describes the last known state of the shared agent session.
type CredentialStatus string

const (
	CredentialStatusUnknown CredentialStatus = "unknown"
	CredentialStatusValid   CredentialStatus = "valid"
	CredentialStatusInvalid CredentialStatus = "invalid"
)

// AccountStatus describes the lifecycle state of a per-account session.
type AccountStatus string

const (
	AccountStatusUnknown     AccountStatus = "unknown"
	AccountStatusValid       AccountStatus = "valid"
	AccountStatusInvalid     AccountStatus = "invalid"
	AccountStatusAuthorizing AccountStatus = "authorizing"
)

// Cookie is one browser cookie captured from the platform console session.
type Cookie struct {
	Name      string    `json:"name"`
	Value     string    `json:"value"`
	Domain    string    `json:"domain"`
	Path      string    `json:"path"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
	HTTPOnly  bool      `json:"http_only"`
	Secure    bool      `json:"secure"`
	SameSite  string    `json:"same_site,omitempty"`
}

// ToHTTPCookie converts a captured cookie to the standard library form.
func (c *Cookie) ToHTTPCookie() *http.Cookie {
	cookie := &http.Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Domain:   c.Domain,
		Path:     c.Path,
		Secure:   c.Secure,
		HttpOnly: c.HTTPOnly,
	}

	if !c.ExpiresAt.IsZero() {
		cookie.Expires = c.ExpiresAt
	}

	switch strings.ToLower(c.SameSite) {
	case "strict":
		cookie.SameSite = http.SameSiteStrictMode
	case "lax":
		cookie.SameSite = http.SameSiteLaxMode
	case "none":
		cookie.SameSite = http.SameSiteNoneMode
	default:
		cookie.SameSite = http.SameSiteDefaultMode
	}

	return cookie
}

// CookieSet is an ordered collection of cookies belonging to one session.
type CookieSet []Cookie

// Empty reports whether the set holds no cookies.
func (s CookieSet) Empty() bool {
	return len(s) == 0
}

// FilterDomain returns the cookies whose domain matches the target domain,
// including parent-domain cookies (".platform.example" matches
// "api.platform.example").
func (s CookieSet) FilterDomain(domain string) CookieSet {
	if domain == "" {
		return s
	}

	var filtered CookieSet
	target := strings.ToLower(domain)
	for _, c := range s {
		d := strings.ToLower(strings.TrimPrefix(c.Domain, "."))
		if d == target || strings.HasSuffix(target, "."+d) {
			filtered = append(filtered, c)
		}
	}
	return filtered
}

// ToHTTPCookies converts the whole set to standard library cookies.
func (s CookieSet) ToHTTPCookies() []*http.Cookie {
	cookies := make([]*http.Cookie, len(s))
	for i := range s {
		cookies[i] = s[i].ToHTTPCookie()
	}
	return cookies
}

// AgentCredential is the shared operator-level login to the platform console.
// There is exactly one, created with status unknown on first run and never
// deleted.
type AgentCredential struct {
	ID            string           `json:"id"`
	Cookies       CookieSet        `json:"cookies"`
	Status        CredentialStatus `json:"status"`
	LastCheckedAt time.Time        `json:"last_checked_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// NewAgentCredential returns the initial agent credential record.
func NewAgentCredential() *AgentCredential {
	return &AgentCredential{
		ID:     AgentID,
		Status: CredentialStatusUnknown,
	}
}

// AccountCredential is the per-advertiser-account session obtained via
// impersonation. Invariant: Cookies is non-empty only while Status is valid,
// or authorizing with stale cookies still attached; a transition to invalid
// always clears Cookies.
type AccountCredential struct {
	AccountID   string        `json:"account_id"`
	DisplayName string        `json:"display_name,omitempty"`
	Cookies     CookieSet     `json:"cookies"`
	Status      AccountStatus `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// Invalidate marks the credential invalid and clears its cookies so a
// stale or poisoned session can never be reused.
func (c *AccountCredential) Invalidate() {
	c.Status = AccountStatusInvalid
	c.Cookies = nil
}
