// Package osm queries OpenStreetMap services: Nominatim for place search
// and Overpass for POI extraction around a point.
package osm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

const (
	defaultNominatimURL = "https://nominatim.openstreetmap.org"
	defaultOverpassURL  = "https://overpass-api.de/api/interpreter"
)

// Client performs OpenStreetMap lookups.
type Client interface {
	Search(ctx context.Context, query string, limit int) ([]Place, error)
	POIsNear(ctx context.Context, lat, lng float64, radiusMeters int, amenity string) ([]POI, error)
}

// Place is a Nominatim search result.
type Place struct {
	DisplayName string  `json:"display_name"`
	Lat         string  `json:"lat"`
	Lon         string  `json:"lon"`
	Class       string  `json:"class"`
	Type        string  `json:"type"`
	Importance  float64 `json:"importance"`
}

// POI is an Overpass node with business tags.
type POI struct {
	ID      int64
	Name    string
	Phone   string
	Website string
	Amenity string
	Lat     float64
	Lng     float64
	Address string
}

// Option configures the client.
type Option func(*httpClient)

// WithNominatimURL overrides the Nominatim base URL.
func WithNominatimURL(u string) Option {
	return func(c *httpClient) {
		c.nominatimURL = u
	}
}

// WithOverpassURL overrides the Overpass interpreter URL.
func WithOverpassURL(u string) Option {
	return func(c *httpClient) {
		c.overpassURL = u
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	nominatimURL string
	overpassURL  string
	userAgent    string
	http         *http.Client
	limiter      *rate.Limiter
}

// NewClient creates an OpenStreetMap client. The user agent is mandatory
// under the Nominatim usage policy.
func NewClient(userAgent string, opts ...Option) Client {
	c := &httpClient{
		nominatimURL: defaultNominatimURL,
		overpassURL:  defaultOverpassURL,
		userAgent:    userAgent,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
		// Nominatim allows at most one request per second.
		limiter: rate.NewLimiter(1, 1),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) Search(ctx context.Context, query string, limit int) ([]Place, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "osm: rate limit wait")
	}
	if limit <= 0 {
		limit = 10
	}
	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("limit", fmt.Sprintf("%d", limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.nominatimURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "osm: create search request")
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "osm: send search request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "osm: read search response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("osm: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var places []Place
	if err := json.Unmarshal(body, &places); err != nil {
		return nil, eris.Wrap(err, "osm: unmarshal search response")
	}
	return places, nil
}

type overpassResponse struct {
	Elements []struct {
		ID   int64             `json:"id"`
		Lat  float64           `json:"lat"`
		Lon  float64           `json:"lon"`
		Tags map[string]string `json:"tags"`
	} `json:"elements"`
}

func (c *httpClient) POIsNear(ctx context.Context, lat, lng float64, radiusMeters int, amenity string) ([]POI, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "osm: rate limit wait")
	}

	filter := `["name"]`
	if amenity != "" {
		filter = fmt.Sprintf(`["amenity"=%q]["name"]`, amenity)
	}
	query := fmt.Sprintf(`[out:json][timeout:25];node%s(around:%d,%f,%f);out body;`,
		filter, radiusMeters, lat, lng)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.overpassURL,
		strings.NewReader(url.Values{"data": {query}}.Encode()))
	if err != nil {
		return nil, eris.Wrap(err, "osm: create overpass request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "osm: send overpass request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "osm: read overpass response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("osm: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var result overpassResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "osm: unmarshal overpass response")
	}

	var pois []POI
	for _, el := range result.Elements {
		name := el.Tags["name"]
		if name == "" {
			continue
		}
		pois = append(pois, POI{
			ID:      el.ID,
			Name:    name,
			Phone:   el.Tags["phone"],
			Website: el.Tags["website"],
			Amenity: el.Tags["amenity"],
			Lat:     el.Lat,
			Lng:     el.Lon,
			Address: formatAddress(el.Tags),
		})
	}
	return pois, nil
}

// formatAddress assembles a street address from addr:* tags.
func formatAddress(tags map[string]string) string {
	var parts []string
	if n, s := tags["addr:housenumber"], tags["addr:street"]; s != "" {
		if n != "" {
			parts = append(parts, n+" "+s)
		} else {
			parts = append(parts, s)
		}
	}
	for _, k := range []string{"addr:city", "addr:state", "addr:postcode"} {
		if v := tags[k]; v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, ", ")
}
