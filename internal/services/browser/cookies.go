package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/adwatch/internal/models"
)

// captureCookies reads the cookies the browser currently holds for the
// given URL.
func (s *Service) captureCookies(browserCtx context.Context, url string) (models.CookieSet, error) {
	if err := chromedp.Run(browserCtx, network.Enable()); err != nil {
		return nil, fmt.Errorf("failed to enable network domain: %w", err)
	}

	var captured []*network.Cookie
	err := chromedp.Run(browserCtx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			cookies, err := network.GetCookies().WithURLs([]string{url}).Do(ctx)
			if err != nil {
				return err
			}
			captured = cookies
			return nil
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to read browser cookies: %w", err)
	}

	return fromCDPCookies(captured), nil
}

// injectCookies sets the given cookies into the browser session. Individual
// failures are logged and skipped so one bad cookie does not sink the rest.
func (s *Service) injectCookies(browserCtx context.Context, cookies models.CookieSet) error {
	if err := chromedp.Run(browserCtx, network.Enable()); err != nil {
		return fmt.Errorf("failed to enable network domain: %w", err)
	}

	return chromedp.Run(browserCtx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			for _, c := range cookies {
				action := network.SetCookie(c.Name, c.Value).
					WithDomain(c.Domain).
					WithPath(c.Path).
					WithSecure(c.Secure).
					WithHTTPOnly(c.HTTPOnly)
				if !c.ExpiresAt.IsZero() {
					expires := cdp.TimeSinceEpoch(c.ExpiresAt)
					action = action.WithExpires(&expires)
				}
				if err := action.Do(ctx); err != nil {
					s.logger.Warn().
						Err(err).
						Str("cookie_name", c.Name).
						Str("domain", c.Domain).
						Msg("Failed to inject cookie into browser")
				}
			}
			return nil
		}),
	)
}

// fromCDPCookies converts chromedp cookie records to the model form.
func fromCDPCookies(cookies []*network.Cookie) models.CookieSet {
	set := make(models.CookieSet, 0, len(cookies))
	for _, c := range cookies {
		cookie := models.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: c.SameSite.String(),
		}
		if c.Expires > 0 {
			cookie.ExpiresAt = time.Unix(int64(c.Expires), 0)
		}
		set = append(set, cookie)
	}
	return set
}
