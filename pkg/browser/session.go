// Package browser provides an HTTP browsing session: page fetch with text
// extraction, link following, web search via the DuckDuckGo HTML endpoint,
// and page capture to disk.
package browser

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"golang.org/x/net/html"
)

const defaultSearchURL = "https://html.duckduckgo.com/html/"

const defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/127.0 Safari/537.36"

// SearchResult is one organic result from a web search.
type SearchResult struct {
	Title   string
	URL     string
	Snippet string
}

// Session is a stateful browsing session. A session that fails to start
// is reported by NewSession; individual page errors are per-call.
type Session interface {
	// Navigate fetches a page and returns its visible text.
	Navigate(ctx context.Context, pageURL string) (string, error)
	// Search runs a web search and returns organic results.
	Search(ctx context.Context, query string, max int) ([]SearchResult, error)
	// FindAndFollow navigates to the first link on the current page whose
	// anchor text contains the given fragment, returning the target text.
	FindAndFollow(ctx context.Context, linkText string) (string, error)
	// CapturePage stores the current page HTML under dir and returns the
	// file path.
	CapturePage(dir string) (string, error)
	// Close releases session resources.
	Close() error
}

// Option configures a session.
type Option func(*httpSession)

// WithSearchURL overrides the search endpoint.
func WithSearchURL(u string) Option {
	return func(s *httpSession) {
		s.searchURL = u
	}
}

// WithUserAgent overrides the request user agent.
func WithUserAgent(ua string) Option {
	return func(s *httpSession) {
		s.userAgent = ua
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(s *httpSession) {
		s.http = hc
	}
}

// WithMaxPageChars caps the extracted text length per page.
func WithMaxPageChars(n int) Option {
	return func(s *httpSession) {
		if n > 0 {
			s.maxPageChars = n
		}
	}
}

type httpSession struct {
	http         *http.Client
	searchURL    string
	userAgent    string
	maxPageChars int

	currentURL  string
	currentHTML string
	currentDoc  *html.Node
}

// NewSession creates a browsing session. It returns an error only when the
// session itself cannot be constructed, which callers treat as fatal for
// the whole batch rather than one record.
func NewSession(opts ...Option) (Session, error) {
	jar, err := newCookieJar()
	if err != nil {
		return nil, eris.Wrap(err, "browser: create cookie jar")
	}
	s := &httpSession{
		http: &http.Client{
			Timeout: 30 * time.Second,
			Jar:     jar,
		},
		searchURL:    defaultSearchURL,
		userAgent:    defaultUserAgent,
		maxPageChars: 20000,
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

func (s *httpSession) fetch(ctx context.Context, pageURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return eris.Wrapf(err, "browser: create request for %s", pageURL)
	}
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.http.Do(req)
	if err != nil {
		return eris.Wrapf(err, "browser: fetch %s", pageURL)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("browser: fetch %s: status %d", pageURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return eris.Wrapf(err, "browser: read %s", pageURL)
	}

	doc, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return eris.Wrapf(err, "browser: parse %s", pageURL)
	}

	s.currentURL = pageURL
	s.currentHTML = string(body)
	s.currentDoc = doc
	return nil
}

func (s *httpSession) Navigate(ctx context.Context, pageURL string) (string, error) {
	if err := s.fetch(ctx, pageURL); err != nil {
		return "", err
	}
	text := visibleText(s.currentDoc)
	if len(text) > s.maxPageChars {
		text = text[:s.maxPageChars]
	}
	return text, nil
}

func (s *httpSession) Search(ctx context.Context, query string, max int) ([]SearchResult, error) {
	if max <= 0 {
		max = 10
	}
	u := s.searchURL + "?" + url.Values{"q": {query}}.Encode()
	if err := s.fetch(ctx, u); err != nil {
		return nil, err
	}
	results := parseSearchResults(s.currentDoc)
	if len(results) > max {
		results = results[:max]
	}
	return results, nil
}

func (s *httpSession) FindAndFollow(ctx context.Context, linkText string) (string, error) {
	if s.currentDoc == nil {
		return "", eris.New("browser: no current page")
	}
	href := findLink(s.currentDoc, linkText)
	if href == "" {
		return "", eris.Errorf("browser: no link matching %q", linkText)
	}
	target, err := resolveURL(s.currentURL, href)
	if err != nil {
		return "", err
	}
	return s.Navigate(ctx, target)
}

func (s *httpSession) CapturePage(dir string) (string, error) {
	if s.currentHTML == "" {
		return "", eris.New("browser: no current page")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", eris.Wrap(err, "browser: create capture dir")
	}
	path := filepath.Join(dir, uuid.New().String()+".html")
	if err := os.WriteFile(path, []byte(s.currentHTML), 0o644); err != nil {
		return "", eris.Wrap(err, "browser: write capture")
	}
	return path, nil
}

func (s *httpSession) Close() error {
	s.currentDoc = nil
	s.currentHTML = ""
	s.http.CloseIdleConnections()
	return nil
}

func resolveURL(base, href string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", eris.Wrapf(err, "browser: parse base url %s", base)
	}
	h, err := url.Parse(href)
	if err != nil {
		return "", eris.Wrapf(err, "browser: parse href %s", href)
	}
	return b.ResolveReference(h).String(), nil
}
