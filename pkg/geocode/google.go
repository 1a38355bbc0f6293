package geocode

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"

	"github.com/rotisserie/eris"
)

const googleGeocodeURL = "https://maps.googleapis.com/maps/api/geocode/json"

type googleProvider struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

func newGoogleProvider(apiKey string, hc *http.Client) *googleProvider {
	return &googleProvider{apiKey: apiKey, baseURL: googleGeocodeURL, http: hc}
}

func (p *googleProvider) Name() string { return "google" }

func (p *googleProvider) Available() bool { return p.apiKey != "" }

type googleGeocodeResponse struct {
	Status  string `json:"status"`
	Results []struct {
		Geometry struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}

func (p *googleProvider) Geocode(ctx context.Context, location string) (*Result, error) {
	params := url.Values{}
	params.Set("address", location)
	params.Set("key", p.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		p.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "google geocode: create request")
	}

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "google geocode: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "google geocode: read response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("google geocode: unexpected status %d", resp.StatusCode)
	}

	var result googleGeocodeResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "google geocode: unmarshal response")
	}
	if result.Status != "OK" || len(result.Results) == 0 {
		return &Result{Matched: false, Source: "google", Paid: true}, nil
	}

	loc := result.Results[0].Geometry.Location
	return &Result{
		Latitude:  loc.Lat,
		Longitude: loc.Lng,
		Source:    "google",
		Matched:   true,
		Paid:      true,
	}, nil
}
