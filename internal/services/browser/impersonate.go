package browser

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/adwatch/internal/models"
)

// cookiePollInterval is how often the impersonation wait re-reads the
// browser's cookies while the new session materializes.
const cookiePollInterval = 500 * time.Millisecond

// Impersonate switches the console's active context to the target account
// and returns the resulting session's cookies filtered to the metrics API
// domain. The workflow mirrors what an operator does by hand: open the
// account search page with the advertiser category selected, search by ID,
// trigger the impersonation action on the matching row, then wait for the
// redirected session to set its cookies.
func (s *Service) Impersonate(ctx context.Context, accountID string, agentCookies models.CookieSet) (models.CookieSet, error) {
	browserCtx, browserCancel := s.newBrowserContext(ctx, true)
	defer browserCancel()

	if err := s.injectCookies(browserCtx, agentCookies); err != nil {
		return nil, fmt.Errorf("failed to seed agent session: %w", err)
	}

	searchURL := fmt.Sprintf("%s%s?category=%s&q=%s",
		s.platform.ConsoleURL,
		s.platform.SearchPath,
		url.QueryEscape(s.platform.Category),
		url.QueryEscape(accountID),
	)

	s.logger.Debug().
		Str("account_id", accountID).
		Str("url", searchURL).
		Msg("Loading account search page")

	var pageHTML string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(searchURL),
		chromedp.WaitReady("body"),
		chromedp.OuterHTML("html", &pageHTML),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load account search page: %w", err)
	}

	impersonateHref, err := findImpersonationLink(pageHTML, accountID)
	if err != nil {
		return nil, err
	}

	targetURL, err := resolveConsoleURL(s.platform.ConsoleURL, impersonateHref)
	if err != nil {
		return nil, fmt.Errorf("bad impersonation link %q: %w", impersonateHref, err)
	}

	s.logger.Debug().
		Str("account_id", accountID).
		Str("url", targetURL).
		Msg("Triggering impersonation")

	if err := chromedp.Run(browserCtx, chromedp.Navigate(targetURL)); err != nil {
		return nil, fmt.Errorf("impersonation navigation failed: %w", err)
	}

	return s.waitForSessionCookies(browserCtx, accountID)
}

// waitForSessionCookies polls the browser until cookies scoped to the
// metrics API domain appear, following any new-session redirection, bounded
// by the configured impersonation timeout.
func (s *Service) waitForSessionCookies(browserCtx context.Context, accountID string) (models.CookieSet, error) {
	deadline := time.Now().Add(s.auth.ImpersonationTimeout)

	for time.Now().Before(deadline) {
		cookies, err := s.captureCookies(browserCtx, s.platform.APIURL)
		if err != nil {
			return nil, fmt.Errorf("failed to read impersonated session cookies: %w", err)
		}

		filtered := cookies.FilterDomain(s.platform.CookieDomain)
		if !filtered.Empty() {
			s.logger.Info().
				Str("account_id", accountID).
				Int("cookies", len(filtered)).
				Msg("Impersonated session established")
			return filtered, nil
		}

		select {
		case <-browserCtx.Done():
			return nil, models.ErrImpersonationTimeout
		case <-time.After(cookiePollInterval):
		}
	}

	s.logger.Warn().
		Str("account_id", accountID).
		Dur("timeout", s.auth.ImpersonationTimeout).
		Msg("Impersonation produced no session cookies")
	return nil, models.ErrImpersonationTimeout
}

// findImpersonationLink locates the search-result row for the account and
// returns the href of its impersonation action. An empty result set or a
// missing row means the account is absent from the console's list.
func findImpersonationLink(pageHTML, accountID string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(pageHTML))
	if err != nil {
		return "", fmt.Errorf("failed to parse search results: %w", err)
	}

	var href string
	doc.Find(fmt.Sprintf("tr[data-account-id=%q]", accountID)).EachWithBreak(func(_ int, row *goquery.Selection) bool {
		link := row.Find("a[data-action='impersonate']").First()
		if link.Length() == 0 {
			return true
		}
		href, _ = link.Attr("href")
		return false
	})

	if href == "" {
		return "", models.ErrImpersonationNotFound
	}
	return href, nil
}

// resolveConsoleURL resolves a possibly relative impersonation href against
// the console base URL.
func resolveConsoleURL(baseURL, href string) (string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}
