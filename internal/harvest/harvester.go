// Package harvest acquires raw leads from external sources and feeds them
// through the store's dedup-checked insert path.
package harvest

import (
	"context"
	"math"
	"sync"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"go.uber.org/zap"

	"github.com/tmc-media/leadgen-cli/internal/cost"
	"github.com/tmc-media/leadgen-cli/internal/model"
	"github.com/tmc-media/leadgen-cli/internal/store"
	"github.com/tmc-media/leadgen-cli/pkg/browser"
	"github.com/tmc-media/leadgen-cli/pkg/geocode"
	"github.com/tmc-media/leadgen-cli/pkg/osm"
	"github.com/tmc-media/leadgen-cli/pkg/places"
)

// Result tallies one harvest run.
type Result struct {
	Found    int
	Inserted int
	Skipped  int
}

// Harvester pulls leads from whichever sources it was given clients for.
type Harvester struct {
	store    store.Store
	places   places.Client
	osm      osm.Client
	geocoder geocode.Client
	session  browser.Session
	costs    *cost.Logger
	calc     *cost.Calculator
	insertMu sync.Mutex
}

// Option configures a Harvester.
type Option func(*Harvester)

// WithPlaces attaches a Google Places client.
func WithPlaces(c places.Client) Option {
	return func(h *Harvester) { h.places = c }
}

// WithOSM attaches an OpenStreetMap client.
func WithOSM(c osm.Client) Option {
	return func(h *Harvester) { h.osm = c }
}

// WithGeocoder attaches a geocoding cascade.
func WithGeocoder(c geocode.Client) Option {
	return func(h *Harvester) { h.geocoder = c }
}

// WithSession attaches a browsing session for web-scrape sources.
func WithSession(s browser.Session) Option {
	return func(h *Harvester) { h.session = s }
}

// New creates a Harvester. Sources without a configured client return
// ErrSourceUnavailable from their harvest call.
func New(st store.Store, costs *cost.Logger, calc *cost.Calculator, opts ...Option) *Harvester {
	h := &Harvester{store: st, costs: costs, calc: calc}
	for _, o := range opts {
		o(h)
	}
	return h
}

// insert runs the shared insert path and logs the outcome. Batches are
// serialized so each one's identity preload observes every earlier
// batch's rows, even when harvest queries fan out concurrently.
func (h *Harvester) insert(ctx context.Context, source string, leads []model.Lead) (*Result, error) {
	h.insertMu.Lock()
	defer h.insertMu.Unlock()

	inserted, skipped, err := h.store.InsertLeads(ctx, leads)
	if err != nil {
		return nil, err
	}
	zap.L().Info("harvest complete",
		zap.String("source", source),
		zap.Int("found", len(leads)),
		zap.Int("inserted", inserted),
		zap.Int("skipped", skipped),
	)
	return &Result{Found: len(leads), Inserted: inserted, Skipped: skipped}, nil
}

// resolve geocodes a location string, logging the cost when the free
// provider missed and a paid fallback answered.
func (h *Harvester) resolve(ctx context.Context, location string) (*geocode.Result, error) {
	result, err := h.geocoder.Geocode(ctx, location)
	if err != nil {
		return nil, err
	}
	if result.Matched && result.Paid {
		h.costs.Log("geocode_"+result.Source, h.calc.GeocodeFallback(), location)
	}
	return result, nil
}

func coordOf(lng, lat float64) geom.Coord {
	return geom.Coord{lng, lat}
}

// metersBetween approximates the ground distance between two lon/lat
// coordinates using an equirectangular projection. Good to within a few
// meters at city scale.
func metersBetween(a, b geom.Coord) float64 {
	const meanEarthRadius = 6371000.0
	latScale := math.Cos((a[1] + b[1]) / 2 * math.Pi / 180)
	pa := geom.Coord{a[0] * latScale, a[1]}
	pb := geom.Coord{b[0] * latScale, b[1]}
	return xy.Distance(pa, pb) * math.Pi / 180 * meanEarthRadius
}
