package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"time"

	"github.com/ternarybob/adwatch/internal/common"
	"github.com/ternarybob/adwatch/internal/models"
	"github.com/ternarybob/arbor"
)

// streamPage is one page of the platform's stream list API.
type streamPage struct {
	Items   []streamItem `json:"items"`
	HasMore bool         `json:"has_more"`
}

type streamItem struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Status    string     `json:"status"` // "live" or "ended"
	Viewers   int64      `json:"viewers"`
	Likes     int64      `json:"likes"`
	Revenue   float64    `json:"revenue"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// Client retrieves live-stream metrics from the platform API using an
// impersonated account session. A 401/403 or a bounce to the login page maps
// to models.ErrCredentialInvalid; everything else is transient and leaves
// the caller's last snapshot in place.
type Client struct {
	platform *common.PlatformConfig
	timeout  time.Duration
	logger   arbor.ILogger
}

// NewClient creates a metrics client for the configured platform.
func NewClient(platform *common.PlatformConfig, fetchTimeout time.Duration, logger arbor.ILogger) *Client {
	if fetchTimeout <= 0 {
		fetchTimeout = 30 * time.Second
	}
	return &Client{
		platform: platform,
		timeout:  fetchTimeout,
		logger:   logger,
	}
}

// FetchMetrics pages through the account's stream list and returns the
// snapshot split into live and ended items.
func (c *Client) FetchMetrics(ctx context.Context, accountID string, cookies models.CookieSet) (*models.MetricsSnapshot, error) {
	if cookies.Empty() {
		return nil, models.ErrCredentialInvalid
	}

	client, err := c.newSessionClient(cookies)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrMetricsFetch, err)
	}

	snapshot := &models.MetricsSnapshot{
		Live:  []models.Snapshot{},
		Ended: []models.Snapshot{},
	}

	for page := 1; page <= c.platform.MaxPages; page++ {
		result, err := c.fetchPage(ctx, client, accountID, page)
		if err != nil {
			return nil, err
		}

		for _, item := range result.Items {
			row := models.Snapshot{
				ID:        item.ID,
				Title:     item.Title,
				Status:    item.Status,
				Viewers:   item.Viewers,
				Likes:     item.Likes,
				Revenue:   item.Revenue,
				StartedAt: item.StartedAt,
				EndedAt:   item.EndedAt,
			}
			if item.Status == "live" && item.EndedAt == nil {
				snapshot.Live = append(snapshot.Live, row)
			} else {
				snapshot.Ended = append(snapshot.Ended, row)
			}
		}

		if !result.HasMore {
			break
		}
	}

	return snapshot, nil
}

// newSessionClient builds an HTTP client with the account session's cookies
// set against the API base URL.
func (c *Client) newSessionClient(cookies models.CookieSet) (*http.Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	baseURL, err := url.Parse(c.platform.APIURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API base URL: %w", err)
	}
	jar.SetCookies(baseURL, cookies.ToHTTPCookies())

	return &http.Client{
		Jar:     jar,
		Timeout: c.timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}, nil
}

func (c *Client) fetchPage(ctx context.Context, client *http.Client, accountID string, page int) (*streamPage, error) {
	endpoint := fmt.Sprintf("%s/api/accounts/%s/streams", c.platform.APIURL, url.PathEscape(accountID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrMetricsFetch, err)
	}
	if c.platform.UserAgent != "" {
		req.Header.Set("User-Agent", c.platform.UserAgent)
	}

	q := req.URL.Query()
	q.Set("page", strconv.Itoa(page))
	q.Set("page_size", strconv.Itoa(c.platform.PageSize))
	req.URL.RawQuery = q.Encode()

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrMetricsFetch, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, models.ErrCredentialInvalid
	case resp.StatusCode >= 300 && resp.StatusCode < 400:
		// The API never redirects an authenticated call; this is the
		// login bounce.
		return nil, models.ErrCredentialInvalid
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: status %d", models.ErrMetricsFetch, resp.StatusCode)
	}

	var result streamPage
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrMetricsFetch, err)
	}

	return &result, nil
}
