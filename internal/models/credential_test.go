package models

import (
	"net/http"
	"testing"
)

func TestCookieSetFilterDomain(t *testing.T) {
	set := CookieSet{
		{Name: "api", Domain: "api.adplatform.example"},
		{Name: "parent", Domain: ".adplatform.example"},
		{Name: "console", Domain: "console.adplatform.example"},
		{Name: "other", Domain: "elsewhere.example"},
	}

	filtered := set.FilterDomain("api.adplatform.example")

	if len(filtered) != 2 {
		t.Fatalf("filtered %d cookies, want 2 (exact + parent-domain)", len(filtered))
	}
	names := map[string]bool{}
	for _, c := range filtered {
		names[c.Name] = true
	}
	if !names["api"] || !names["parent"] {
		t.Errorf("filtered set = %v, want api and parent cookies", names)
	}
}

func TestCookieSetFilterDomainEmptyTarget(t *testing.T) {
	set := CookieSet{{Name: "a", Domain: "x.example"}}
	if got := set.FilterDomain(""); len(got) != 1 {
		t.Errorf("empty target should pass cookies through, got %d", len(got))
	}
}

func TestAccountCredentialInvalidateClearsCookies(t *testing.T) {
	cred := &AccountCredential{
		AccountID: "123",
		Status:    AccountStatusValid,
		Cookies:   CookieSet{{Name: "sid", Value: "x"}},
	}

	cred.Invalidate()

	if cred.Status != AccountStatusInvalid {
		t.Errorf("status = %s, want invalid", cred.Status)
	}
	if !cred.Cookies.Empty() {
		t.Error("cookies not cleared on invalidation")
	}
}

func TestCookieToHTTPCookieSameSite(t *testing.T) {
	tests := []struct {
		in   string
		want http.SameSite
	}{
		{"Strict", http.SameSiteStrictMode},
		{"lax", http.SameSiteLaxMode},
		{"None", http.SameSiteNoneMode},
		{"", http.SameSiteDefaultMode},
	}

	for _, tt := range tests {
		c := Cookie{Name: "n", Value: "v", SameSite: tt.in}
		if got := c.ToHTTPCookie().SameSite; got != tt.want {
			t.Errorf("SameSite(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
