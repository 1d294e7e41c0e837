package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ternarybob/adwatch/internal/common"
	"github.com/ternarybob/adwatch/internal/models"
	"github.com/ternarybob/arbor"
)

func testCookies() models.CookieSet {
	return models.CookieSet{{Name: "session", Value: "good", Domain: "127.0.0.1", Path: "/"}}
}

func newTestValidator(serverURL string) *Validator {
	platform := &common.PlatformConfig{
		ConsoleURL:   serverURL,
		APIURL:       serverURL,
		IdentityPath: "/api/identity/me",
	}
	return NewValidator(platform, arbor.NewLogger())
}

func identityServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(handler))
	t.Cleanup(server.Close)
	return server
}

func TestValidateAgentAccepted(t *testing.T) {
	server := identityServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/identity/me" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if c, err := r.Cookie("session"); err != nil || c.Value != "good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(Identity{UserID: "op-1"})
	})

	v := newTestValidator(server.URL)
	if !v.ValidateAgent(context.Background(), testCookies()) {
		t.Error("ValidateAgent() = false for an accepted session")
	}
}

func TestValidateAgentRejected(t *testing.T) {
	server := identityServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	v := newTestValidator(server.URL)
	if v.ValidateAgent(context.Background(), testCookies()) {
		t.Error("ValidateAgent() = true for a rejected session")
	}
}

func TestValidateAgentRedirectToLoginIsInvalid(t *testing.T) {
	server := identityServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/login", http.StatusFound)
	})

	v := newTestValidator(server.URL)
	if v.ValidateAgent(context.Background(), testCookies()) {
		t.Error("ValidateAgent() = true when bounced to login")
	}
}

func TestValidateAgentNetworkFailureIsInvalid(t *testing.T) {
	server := identityServer(t, func(w http.ResponseWriter, r *http.Request) {})
	url := server.URL
	server.Close()

	v := newTestValidator(url)
	if v.ValidateAgent(context.Background(), testCookies()) {
		t.Error("ValidateAgent() = true when the endpoint is unreachable")
	}
}

func TestValidateAgentEmptyCookies(t *testing.T) {
	v := newTestValidator("http://127.0.0.1:1")
	if v.ValidateAgent(context.Background(), nil) {
		t.Error("ValidateAgent() = true with no cookies")
	}
}

func TestValidateAccountScopeMismatch(t *testing.T) {
	server := identityServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Identity{UserID: "op-1", AccountID: "999"})
	})

	v := newTestValidator(server.URL)
	if v.ValidateAccount(context.Background(), "123", testCookies()) {
		t.Error("ValidateAccount() = true for a session scoped to another account")
	}
	if !v.ValidateAccount(context.Background(), "999", testCookies()) {
		t.Error("ValidateAccount() = false for the correctly scoped account")
	}
}

func TestValidateAccountMalformedBodyIsInvalid(t *testing.T) {
	server := identityServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>not json</html>"))
	})

	v := newTestValidator(server.URL)
	if v.ValidateAccount(context.Background(), "123", testCookies()) {
		t.Error("ValidateAccount() = true for an unparseable identity response")
	}
}
