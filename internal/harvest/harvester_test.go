package harvest

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/tmc-media/leadgen-cli/internal/cost"
	"github.com/tmc-media/leadgen-cli/internal/model"
	"github.com/tmc-media/leadgen-cli/internal/store/mocks"
	"github.com/tmc-media/leadgen-cli/pkg/browser"
	"github.com/tmc-media/leadgen-cli/pkg/geocode"
	"github.com/tmc-media/leadgen-cli/pkg/osm"
	"github.com/tmc-media/leadgen-cli/pkg/places"
)

type mockPlaces struct {
	mock.Mock
}

func (m *mockPlaces) TextSearch(ctx context.Context, query string) ([]places.Place, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]places.Place), args.Error(1)
}

func (m *mockPlaces) NearbySearch(ctx context.Context, lat, lng, radius float64, includedType string) ([]places.Place, error) {
	args := m.Called(ctx, lat, lng, radius, includedType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]places.Place), args.Error(1)
}

type mockOSM struct {
	mock.Mock
}

func (m *mockOSM) Search(ctx context.Context, query string, limit int) ([]osm.Place, error) {
	args := m.Called(ctx, query, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]osm.Place), args.Error(1)
}

func (m *mockOSM) POIsNear(ctx context.Context, lat, lng float64, radius int, amenity string) ([]osm.POI, error) {
	args := m.Called(ctx, lat, lng, radius, amenity)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]osm.POI), args.Error(1)
}

type mockGeocoder struct {
	mock.Mock
}

func (m *mockGeocoder) Geocode(ctx context.Context, location string) (*geocode.Result, error) {
	args := m.Called(ctx, location)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*geocode.Result), args.Error(1)
}

type mockSession struct {
	mock.Mock
}

func (m *mockSession) Navigate(ctx context.Context, u string) (string, error) {
	args := m.Called(ctx, u)
	return args.String(0), args.Error(1)
}

func (m *mockSession) Search(ctx context.Context, query string, max int) ([]browser.SearchResult, error) {
	args := m.Called(ctx, query, max)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]browser.SearchResult), args.Error(1)
}

func (m *mockSession) FindAndFollow(ctx context.Context, s string) (string, error) {
	args := m.Called(ctx, s)
	return args.String(0), args.Error(1)
}

func (m *mockSession) CapturePage(dir string) (string, error) {
	args := m.Called(dir)
	return args.String(0), args.Error(1)
}

func (m *mockSession) Close() error { return m.Called().Error(0) }

func place(name, addr, website string, lat, lng float64) places.Place {
	var p places.Place
	p.DisplayName.Text = name
	p.FormattedAddress = addr
	p.WebsiteURI = website
	p.Location.Latitude = lat
	p.Location.Longitude = lng
	return p
}

func TestPlacesHarvest(t *testing.T) {
	st := &mocks.MockStore{}
	mp := &mockPlaces{}

	mp.On("TextSearch", mock.Anything, "plumbers in springfield").Return([]places.Place{
		place("New Plumbing", "1 Pipe Rd, Springfield", "https://newplumbing.com", 39.8, -89.6),
		place("Known Plumbing", "2 Pipe Rd, Springfield", "", 39.8, -89.6),
	}, nil)

	st.On("LeadExists", mock.Anything, "New Plumbing", "1 Pipe Rd, Springfield").Return(false, nil)
	st.On("LeadExists", mock.Anything, "Known Plumbing", "2 Pipe Rd, Springfield").Return(true, nil)
	st.On("InsertLeads", mock.Anything, mock.MatchedBy(func(leads []model.Lead) bool {
		return len(leads) == 1 && leads[0].Name == "New Plumbing" &&
			leads[0].Domain == "newplumbing.com" &&
			leads[0].Source == "google_places"
	})).Return(1, 0, nil)

	h := New(st, cost.NewLogger(""), cost.NewCalculator(cost.DefaultRates()), WithPlaces(mp))
	r, err := h.Places(context.Background(), "plumbers", "springfield")
	require.NoError(t, err)
	assert.Equal(t, 1, r.Found)
	assert.Equal(t, 1, r.Inserted)
	st.AssertExpectations(t)
}

func TestPlacesHarvestUnconfigured(t *testing.T) {
	h := New(&mocks.MockStore{}, cost.NewLogger(""), cost.NewCalculator(cost.DefaultRates()))
	_, err := h.Places(context.Background(), "q", "loc")
	assert.ErrorIs(t, err, ErrSourceUnavailable)
}

func TestNearbyFiltersByDistance(t *testing.T) {
	st := &mocks.MockStore{}
	mp := &mockPlaces{}

	lat, lng := 39.8000, -89.6000
	anchor := &model.Lead{ID: 1, Name: "Anchor Co", Lat: &lat, Lng: &lng}
	st.On("GetLead", mock.Anything, int64(1)).Return(anchor, nil)

	mp.On("NearbySearch", mock.Anything, lat, lng, 500.0, "restaurant").Return([]places.Place{
		place("Close Diner", "3 Main St", "", 39.8010, -89.6000),  // ~110m away
		place("Far Diner", "9 Edge Rd", "", 39.8500, -89.6000),    // ~5.5km away
		place("Anchor Co", "same spot", "", 39.8000, -89.6000),    // the anchor itself
	}, nil)

	st.On("LeadExists", mock.Anything, "Close Diner", "3 Main St").Return(false, nil)
	st.On("InsertLeads", mock.Anything, mock.MatchedBy(func(leads []model.Lead) bool {
		return len(leads) == 1 && leads[0].Name == "Close Diner"
	})).Return(1, 0, nil)

	h := New(st, cost.NewLogger(""), cost.NewCalculator(cost.DefaultRates()), WithPlaces(mp))
	r, err := h.Nearby(context.Background(), 1, 500, "restaurant")
	require.NoError(t, err)
	assert.Equal(t, 1, r.Inserted)
}

func TestOSMHarvestLogsPaidGeocodeFallback(t *testing.T) {
	st := &mocks.MockStore{}
	mo := &mockOSM{}
	mg := &mockGeocoder{}

	mg.On("Geocode", mock.Anything, "springfield il").Return(&geocode.Result{
		Latitude: 39.8, Longitude: -89.65, Matched: true, Paid: true, Source: "google",
	}, nil)
	mo.On("POIsNear", mock.Anything, 39.8, -89.65, 1500, "cafe").Return([]osm.POI{
		{Name: "Bean There", Lat: 39.81, Lng: -89.64, Amenity: "cafe"},
	}, nil)
	st.On("LeadExists", mock.Anything, "Bean There", "").Return(false, nil)
	st.On("InsertLeads", mock.Anything, mock.Anything).Return(1, 0, nil)

	costPath := filepath.Join(t.TempDir(), "costs.csv")
	h := New(st, cost.NewLogger(costPath), cost.NewCalculator(cost.DefaultRates()),
		WithOSM(mo), WithGeocoder(mg))
	r, err := h.OSM(context.Background(), "springfield il", 1500, "cafe")
	require.NoError(t, err)
	assert.Equal(t, 1, r.Inserted)

	data, err := os.ReadFile(costPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "geocode_google")
	assert.Contains(t, string(data), "springfield il")
}

func TestOSMHarvestUnresolvableLocation(t *testing.T) {
	mg := &mockGeocoder{}
	mg.On("Geocode", mock.Anything, "nowhere").Return(&geocode.Result{Matched: false}, nil)

	h := New(&mocks.MockStore{}, cost.NewLogger(""), cost.NewCalculator(cost.DefaultRates()),
		WithOSM(&mockOSM{}), WithGeocoder(mg))
	_, err := h.OSM(context.Background(), "nowhere", 1000, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "could not be geocoded")
}

func TestLinkedInHarvest(t *testing.T) {
	st := &mocks.MockStore{}
	ms := &mockSession{}

	ms.On("Search", mock.Anything, `site:linkedin.com/in/ "marketing director" "springfield"`, 20).
		Return([]browser.SearchResult{
			{Title: "Jordan Reyes - Marketing Director | LinkedIn", URL: "https://www.linkedin.com/in/jordanreyes"},
			{Title: "Marketing jobs in Springfield", URL: "https://indeed.com/jobs"},
		}, nil)

	st.On("InsertLeads", mock.Anything, mock.MatchedBy(func(leads []model.Lead) bool {
		return len(leads) == 1 &&
			leads[0].Name == "Jordan Reyes" &&
			leads[0].Title == "Marketing Director" &&
			leads[0].RecordType == model.RecordTypePerson
	})).Return(1, 0, nil)

	h := New(st, cost.NewLogger(""), cost.NewCalculator(cost.DefaultRates()), WithSession(ms))
	r, err := h.LinkedIn(context.Background(), "marketing director", "springfield", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, r.Inserted)
}

func TestPlacesFanOut(t *testing.T) {
	st := &mocks.MockStore{}
	mp := &mockPlaces{}

	for _, q := range []string{"plumbers in x", "roofers in x"} {
		mp.On("TextSearch", mock.Anything, q).Return([]places.Place{
			place("Biz "+q, "addr "+q, "", 0, 0),
		}, nil)
	}
	st.On("LeadExists", mock.Anything, mock.Anything, mock.Anything).Return(false, nil)
	st.On("InsertLeads", mock.Anything, mock.Anything).Return(1, 0, nil)

	h := New(st, cost.NewLogger(""), cost.NewCalculator(cost.DefaultRates()), WithPlaces(mp))
	r, err := h.PlacesFanOut(context.Background(), []string{"plumbers", "roofers"}, "x", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, r.Inserted)
	assert.Equal(t, 2, r.Found)
}

// serialCheckStore flags InsertLeads calls that overlap in time. The
// dedup preload inside InsertLeads is only sound when batches commit one
// at a time.
type serialCheckStore struct {
	mocks.MockStore
	active  int32
	overlap int32
}

func (s *serialCheckStore) InsertLeads(ctx context.Context, leads []model.Lead) (int, int, error) {
	if atomic.AddInt32(&s.active, 1) > 1 {
		atomic.StoreInt32(&s.overlap, 1)
	}
	defer atomic.AddInt32(&s.active, -1)
	time.Sleep(10 * time.Millisecond)
	return s.MockStore.InsertLeads(ctx, leads)
}

func TestPlacesFanOutSerializesInserts(t *testing.T) {
	st := &serialCheckStore{}
	mp := &mockPlaces{}

	queries := []string{"plumbers", "roofers", "electricians", "painters"}
	for _, q := range queries {
		mp.On("TextSearch", mock.Anything, q+" in x").Return([]places.Place{
			place("Biz "+q, "addr "+q, "", 0, 0),
		}, nil)
	}
	st.On("LeadExists", mock.Anything, mock.Anything, mock.Anything).Return(false, nil)
	st.On("InsertLeads", mock.Anything, mock.Anything).Return(1, 0, nil)

	h := New(st, cost.NewLogger(""), cost.NewCalculator(cost.DefaultRates()), WithPlaces(mp))
	r, err := h.PlacesFanOut(context.Background(), queries, "x", 4)
	require.NoError(t, err)
	assert.Equal(t, 4, r.Inserted)
	assert.Zero(t, atomic.LoadInt32(&st.overlap), "concurrent queries must not insert concurrently")
}

func TestMetersBetween(t *testing.T) {
	// One degree of latitude is roughly 111km.
	a := geom.Coord{-89.6, 39.8}
	b := geom.Coord{-89.6, 40.8}
	assert.InDelta(t, 111000, metersBetween(a, b), 1500)

	assert.InDelta(t, 0, metersBetween(a, a), 0.001)
}
