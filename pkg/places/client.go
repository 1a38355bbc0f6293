// Package places wraps the Google Places API (new) text and nearby search.
package places

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://places.googleapis.com/v1"

const fieldMask = "places.displayName,places.formattedAddress,places.nationalPhoneNumber,places.websiteUri,places.location,places.primaryType"

// Client performs Google Places API operations.
type Client interface {
	TextSearch(ctx context.Context, query string) ([]Place, error)
	NearbySearch(ctx context.Context, lat, lng, radiusMeters float64, includedType string) ([]Place, error)
}

// Place represents a place returned by the API.
type Place struct {
	DisplayName struct {
		Text string `json:"text"`
	} `json:"displayName"`
	FormattedAddress    string `json:"formattedAddress"`
	NationalPhoneNumber string `json:"nationalPhoneNumber"`
	WebsiteURI          string `json:"websiteUri"`
	Location            struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"location"`
	PrimaryType string `json:"primaryType"`
}

type searchResponse struct {
	Places []Place `json:"places"`
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

// NewClient creates a Google Places API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type textSearchRequest struct {
	TextQuery string `json:"textQuery"`
}

func (c *httpClient) TextSearch(ctx context.Context, query string) ([]Place, error) {
	return c.search(ctx, "/places:searchText", textSearchRequest{TextQuery: query})
}

type nearbySearchRequest struct {
	IncludedTypes       []string `json:"includedTypes,omitempty"`
	MaxResultCount      int      `json:"maxResultCount"`
	LocationRestriction struct {
		Circle struct {
			Center struct {
				Latitude  float64 `json:"latitude"`
				Longitude float64 `json:"longitude"`
			} `json:"center"`
			Radius float64 `json:"radius"`
		} `json:"circle"`
	} `json:"locationRestriction"`
}

func (c *httpClient) NearbySearch(ctx context.Context, lat, lng, radiusMeters float64, includedType string) ([]Place, error) {
	req := nearbySearchRequest{MaxResultCount: 20}
	if includedType != "" {
		req.IncludedTypes = []string{includedType}
	}
	req.LocationRestriction.Circle.Center.Latitude = lat
	req.LocationRestriction.Circle.Center.Longitude = lng
	req.LocationRestriction.Circle.Radius = radiusMeters
	return c.search(ctx, "/places:searchNearby", req)
}

func (c *httpClient) search(ctx context.Context, path string, reqBody any) ([]Place, error) {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, eris.Wrap(err, "places: marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "places: create request")
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-Api-Key", c.apiKey)
	req.Header.Set("X-Goog-FieldMask", fieldMask)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "places: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "places: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("places: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var result searchResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "places: unmarshal response")
	}
	return result.Places, nil
}
