// Package geocode resolves place names to coordinates via Nominatim
// (primary, free) and Google Geocoding (fallback, paid).
package geocode

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// Result holds the geocoding output for a location query.
type Result struct {
	Latitude  float64
	Longitude float64
	Source    string // "nominatim" or "google"
	Matched   bool
	// Paid reports whether a metered provider produced the result.
	Paid bool
}

// Provider represents a single geocoding backend.
type Provider interface {
	Name() string
	Geocode(ctx context.Context, location string) (*Result, error)
	Available() bool
}

// Client geocodes a location, trying each provider in order until one
// matches.
type Client interface {
	Geocode(ctx context.Context, location string) (*Result, error)
}

// Option configures the cascade geocoder.
type Option func(*cascade)

// WithGoogleAPIKey enables the Google Geocoding API fallback.
func WithGoogleAPIKey(key string) Option {
	return func(g *cascade) {
		g.providers = append(g.providers, newGoogleProvider(key, g.http))
	}
}

// WithHTTPClient sets the HTTP client used by all providers. Must precede
// provider options.
func WithHTTPClient(hc *http.Client) Option {
	return func(g *cascade) {
		g.http = hc
	}
}

// WithNominatimURL overrides the Nominatim base URL.
func WithNominatimURL(u string) Option {
	return func(g *cascade) {
		g.nominatimURL = u
	}
}

// WithRateLimit sets the requests-per-second limit for the free provider.
func WithRateLimit(rps float64) Option {
	return func(g *cascade) {
		g.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

type cascade struct {
	http         *http.Client
	nominatimURL string
	limiter      *rate.Limiter
	userAgent    string
	providers    []Provider
}

// NewClient creates a cascading geocoder. Nominatim always runs first;
// paid fallbacks are appended via options.
func NewClient(userAgent string, opts ...Option) Client {
	g := &cascade{
		http:         &http.Client{Timeout: 30 * time.Second},
		nominatimURL: defaultNominatimURL,
		limiter:      rate.NewLimiter(1, 1),
		userAgent:    userAgent,
	}
	for _, opt := range opts {
		opt(g)
	}
	primary := newNominatimProvider(g.nominatimURL, g.userAgent, g.http, g.limiter)
	g.providers = append([]Provider{primary}, g.providers...)
	return g
}

func (g *cascade) Geocode(ctx context.Context, location string) (*Result, error) {
	if location == "" {
		return &Result{Matched: false}, nil
	}
	for _, p := range g.providers {
		if !p.Available() {
			continue
		}
		result, err := p.Geocode(ctx, location)
		if err != nil || !result.Matched {
			continue
		}
		return result, nil
	}
	// No match from any provider. Not an error, just unmatched.
	return &Result{Matched: false}, nil
}
