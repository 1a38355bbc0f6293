package harvest

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/tmc-media/leadgen-cli/internal/model"
)

// ErrSourceUnavailable means the harvest source has no configured client.
var ErrSourceUnavailable = eris.New("harvest: source not configured")

// Places searches Google Places for businesses matching query in the
// given location and inserts them as business leads. Leads whose name and
// address prefix already exist are not even offered to the insert path.
func (h *Harvester) Places(ctx context.Context, query, location string) (*Result, error) {
	if h.places == nil {
		return nil, eris.Wrap(ErrSourceUnavailable, "places")
	}

	text := query
	if location != "" {
		text = fmt.Sprintf("%s in %s", query, location)
	}
	found, err := h.places.TextSearch(ctx, text)
	if err != nil {
		return nil, err
	}
	h.costs.Log("google_places", h.calc.PlacesSearch(), text)

	var leads []model.Lead
	for _, p := range found {
		exists, err := h.store.LeadExists(ctx, p.DisplayName.Text, p.FormattedAddress)
		if err != nil {
			return nil, err
		}
		if exists {
			zap.L().Debug("place already known",
				zap.String("name", p.DisplayName.Text))
			continue
		}
		lat, lng := p.Location.Latitude, p.Location.Longitude
		leads = append(leads, model.Lead{
			TS:           time.Now().UTC(),
			RecordType:   model.RecordTypeBusiness,
			Source:       "google_places",
			Name:         p.DisplayName.Text,
			Website:      p.WebsiteURI,
			Phone:        p.NationalPhoneNumber,
			Domain:       model.DomainFromURL(p.WebsiteURI),
			Lat:          &lat,
			Lng:          &lng,
			Address:      p.FormattedAddress,
			BusinessType: p.PrimaryType,
		})
	}
	return h.insert(ctx, "google_places", leads)
}

// Nearby finds businesses around an existing lead's coordinates and keeps
// only those within radiusMeters of it.
func (h *Harvester) Nearby(ctx context.Context, leadID int64, radiusMeters float64, businessType string) (*Result, error) {
	if h.places == nil {
		return nil, eris.Wrap(ErrSourceUnavailable, "places")
	}

	anchor, err := h.store.GetLead(ctx, leadID)
	if err != nil {
		return nil, err
	}
	if anchor.Lat == nil || anchor.Lng == nil {
		return nil, eris.Errorf("harvest: lead %d has no coordinates", leadID)
	}

	found, err := h.places.NearbySearch(ctx, *anchor.Lat, *anchor.Lng, radiusMeters, businessType)
	if err != nil {
		return nil, err
	}
	h.costs.Log("google_places", h.calc.PlacesSearch(),
		fmt.Sprintf("nearby lead %d r=%.0fm", leadID, radiusMeters))

	origin := coordOf(*anchor.Lng, *anchor.Lat)
	var leads []model.Lead
	for _, p := range found {
		if p.DisplayName.Text == anchor.Name {
			continue
		}
		// The API's circle is a hint, not a guarantee.
		if metersBetween(origin, coordOf(p.Location.Longitude, p.Location.Latitude)) > radiusMeters {
			continue
		}
		exists, err := h.store.LeadExists(ctx, p.DisplayName.Text, p.FormattedAddress)
		if err != nil {
			return nil, err
		}
		if exists {
			continue
		}
		lat, lng := p.Location.Latitude, p.Location.Longitude
		leads = append(leads, model.Lead{
			TS:           time.Now().UTC(),
			RecordType:   model.RecordTypeBusiness,
			Source:       "google_places_nearby",
			Name:         p.DisplayName.Text,
			Website:      p.WebsiteURI,
			Phone:        p.NationalPhoneNumber,
			Domain:       model.DomainFromURL(p.WebsiteURI),
			Lat:          &lat,
			Lng:          &lng,
			Address:      p.FormattedAddress,
			BusinessType: p.PrimaryType,
		})
	}
	return h.insert(ctx, "google_places_nearby", leads)
}
