package harvest

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/tmc-media/leadgen-cli/internal/model"
)

// OSM geocodes a location and collects named OpenStreetMap POIs around
// it. These leads are free but often carry only a name and coordinates.
func (h *Harvester) OSM(ctx context.Context, location string, radiusMeters int, amenity string) (*Result, error) {
	if h.osm == nil || h.geocoder == nil {
		return nil, eris.Wrap(ErrSourceUnavailable, "osm")
	}

	geo, err := h.resolve(ctx, location)
	if err != nil {
		return nil, err
	}
	if !geo.Matched {
		return nil, eris.Errorf("harvest: location %q could not be geocoded", location)
	}

	pois, err := h.osm.POIsNear(ctx, geo.Latitude, geo.Longitude, radiusMeters, amenity)
	if err != nil {
		return nil, err
	}

	var leads []model.Lead
	for _, p := range pois {
		exists, err := h.store.LeadExists(ctx, p.Name, p.Address)
		if err != nil {
			return nil, err
		}
		if exists {
			continue
		}
		lat, lng := p.Lat, p.Lng
		leads = append(leads, model.Lead{
			TS:           time.Now().UTC(),
			RecordType:   model.RecordTypeBusiness,
			Source:       "openstreetmap",
			Name:         p.Name,
			Website:      p.Website,
			Phone:        p.Phone,
			Domain:       model.DomainFromURL(p.Website),
			Lat:          &lat,
			Lng:          &lng,
			Address:      p.Address,
			BusinessType: p.Amenity,
		})
	}
	return h.insert(ctx, "openstreetmap", leads)
}
