package browser

import (
	"errors"
	"testing"

	"github.com/ternarybob/adwatch/internal/models"
)

const searchResultsHTML = `
<html><body>
<table class="account-results">
  <tr data-account-id="111">
    <td>Other Advertiser</td>
    <td><a data-action="impersonate" href="/accounts/111/impersonate">Switch</a></td>
  </tr>
  <tr data-account-id="123">
    <td>Acme Adverts</td>
    <td><a data-action="impersonate" href="/accounts/123/impersonate?token=t1">Switch</a></td>
  </tr>
</table>
</body></html>`

func TestFindImpersonationLink(t *testing.T) {
	href, err := findImpersonationLink(searchResultsHTML, "123")
	if err != nil {
		t.Fatalf("findImpersonationLink() error: %v", err)
	}
	if href != "/accounts/123/impersonate?token=t1" {
		t.Errorf("href = %q, want the row's impersonation link", href)
	}
}

func TestFindImpersonationLinkNotFound(t *testing.T) {
	_, err := findImpersonationLink(searchResultsHTML, "999")
	if !errors.Is(err, models.ErrImpersonationNotFound) {
		t.Errorf("error = %v, want ErrImpersonationNotFound", err)
	}
}

func TestFindImpersonationLinkRowWithoutAction(t *testing.T) {
	html := `<table><tr data-account-id="123"><td>No action here</td></tr></table>`
	_, err := findImpersonationLink(html, "123")
	if !errors.Is(err, models.ErrImpersonationNotFound) {
		t.Errorf("error = %v, want ErrImpersonationNotFound for a row with no action", err)
	}
}

func TestResolveConsoleURL(t *testing.T) {
	tests := []struct {
		name string
		base string
		href string
		want string
	}{
		{"relative", "https://console.example", "/accounts/123/impersonate", "https://console.example/accounts/123/impersonate"},
		{"absolute", "https://console.example", "https://sso.example/switch", "https://sso.example/switch"},
		{"with query", "https://console.example", "/switch?token=abc", "https://console.example/switch?token=abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveConsoleURL(tt.base, tt.href)
			if err != nil {
				t.Fatalf("resolveConsoleURL() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("resolveConsoleURL() = %q, want %q", got, tt.want)
			}
		})
	}
}
