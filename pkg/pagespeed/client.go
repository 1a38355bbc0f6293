// Package pagespeed wraps the Google PageSpeed Insights API.
package pagespeed

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://www.googleapis.com/pagespeedonline/v5/runPagespeed"

// Client fetches performance scores for a URL.
type Client interface {
	Score(ctx context.Context, pageURL string) (int, error)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a PageSpeed Insights client. An empty API key is
// accepted; Google serves unauthenticated requests at a lower quota.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		// Lighthouse runs are slow.
		http: &http.Client{Timeout: 90 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type runResponse struct {
	LighthouseResult struct {
		Categories struct {
			Performance struct {
				Score float64 `json:"score"`
			} `json:"performance"`
		} `json:"categories"`
	} `json:"lighthouseResult"`
}

// Score returns the performance score as an integer 0-100.
func (c *httpClient) Score(ctx context.Context, pageURL string) (int, error) {
	params := url.Values{}
	params.Set("url", pageURL)
	params.Set("category", "performance")
	if c.apiKey != "" {
		params.Set("key", c.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return 0, eris.Wrap(err, "pagespeed: create request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, eris.Wrap(err, "pagespeed: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, eris.Wrap(err, "pagespeed: read response")
	}
	if resp.StatusCode != http.StatusOK {
		return 0, eris.Errorf("pagespeed: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var result runResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return 0, eris.Wrap(err, "pagespeed: unmarshal response")
	}
	return int(result.LighthouseResult.Categories.Performance.Score*100 + 0.5), nil
}
