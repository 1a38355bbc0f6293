package main

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tmc-media/leadgen-cli/internal/cost"
	"github.com/tmc-media/leadgen-cli/internal/harvest"
	"github.com/tmc-media/leadgen-cli/internal/store"
	"github.com/tmc-media/leadgen-cli/pkg/geocode"
	"github.com/tmc-media/leadgen-cli/pkg/osm"
	"github.com/tmc-media/leadgen-cli/pkg/places"
)

var (
	harvestLocation    string
	harvestRadius      float64
	harvestAmenity     string
	harvestConcurrency int
	harvestMax         int
	nearbyLeadID       int64
	nearbyType         string
)

var harvestCmd = &cobra.Command{
	Use:   "harvest",
	Short: "Acquire new leads from external sources",
}

var harvestPlacesCmd = &cobra.Command{
	Use:   "places <query>[,<query>...]",
	Short: "Search Google Places for businesses",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if cfg.Places.Key == "" {
			return eris.New("places api key is required (LEADGEN_PLACES_KEY)")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		h := newHarvester(st, harvest.WithPlaces(placesClient()))

		queries := splitQueries(args[0])
		var result *harvest.Result
		if len(queries) > 1 {
			result, err = h.PlacesFanOut(ctx, queries, harvestLocation, harvestConcurrency)
		} else {
			result, err = h.Places(ctx, queries[0], harvestLocation)
		}
		if err != nil {
			return eris.Wrap(err, "harvest places")
		}

		zap.L().Info("places harvest done",
			zap.Int("found", result.Found),
			zap.Int("inserted", result.Inserted),
			zap.Int("skipped", result.Skipped),
		)
		return nil
	},
}

var harvestNearbyCmd = &cobra.Command{
	Use:   "nearby",
	Short: "Find businesses around an existing lead",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if cfg.Places.Key == "" {
			return eris.New("places api key is required (LEADGEN_PLACES_KEY)")
		}
		if nearbyLeadID == 0 {
			return eris.New("--lead is required")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		h := newHarvester(st, harvest.WithPlaces(placesClient()))
		result, err := h.Nearby(ctx, nearbyLeadID, harvestRadius, nearbyType)
		if err != nil {
			return eris.Wrap(err, "harvest nearby")
		}

		zap.L().Info("nearby harvest done",
			zap.Int64("lead", nearbyLeadID),
			zap.Int("inserted", result.Inserted),
			zap.Int("skipped", result.Skipped),
		)
		return nil
	},
}

var harvestOSMCmd = &cobra.Command{
	Use:   "osm",
	Short: "Collect OpenStreetMap POIs around a location",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if harvestLocation == "" {
			return eris.New("--location is required")
		}
		if cfg.OSM.UserAgent == "" {
			return eris.New("osm user agent is required (LEADGEN_OSM_USER_AGENT)")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		geoOpts := []geocode.Option{geocode.WithNominatimURL(cfg.OSM.NominatimURL)}
		if cfg.Geocode.GoogleKey != "" {
			geoOpts = append(geoOpts, geocode.WithGoogleAPIKey(cfg.Geocode.GoogleKey))
		}

		h := newHarvester(st,
			harvest.WithOSM(osm.NewClient(cfg.OSM.UserAgent,
				osm.WithNominatimURL(cfg.OSM.NominatimURL),
				osm.WithOverpassURL(cfg.OSM.OverpassURL))),
			harvest.WithGeocoder(geocode.NewClient(cfg.OSM.UserAgent, geoOpts...)),
		)

		result, err := h.OSM(ctx, harvestLocation, int(harvestRadius), harvestAmenity)
		if err != nil {
			return eris.Wrap(err, "harvest osm")
		}

		zap.L().Info("osm harvest done",
			zap.Int("inserted", result.Inserted),
			zap.Int("skipped", result.Skipped),
		)
		return nil
	},
}

var harvestLinkedInCmd = &cobra.Command{
	Use:   "linkedin <role>",
	Short: "Search public LinkedIn profiles for a role in a location",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		session, err := initSession()
		if err != nil {
			return eris.Wrap(err, "init session")
		}
		defer session.Close()

		h := newHarvester(st, harvest.WithSession(session))
		result, err := h.LinkedIn(ctx, args[0], harvestLocation, harvestMax)
		if err != nil {
			return eris.Wrap(err, "harvest linkedin")
		}

		zap.L().Info("linkedin harvest done",
			zap.Int("inserted", result.Inserted),
			zap.Int("skipped", result.Skipped),
		)
		return nil
	},
}

func newHarvester(st store.Store, opts ...harvest.Option) *harvest.Harvester {
	return harvest.New(st, usageLogger(), cost.NewCalculator(rateTable()), opts...)
}

func placesClient() places.Client {
	return places.NewClient(cfg.Places.Key, places.WithBaseURL(cfg.Places.BaseURL))
}

func splitQueries(arg string) []string {
	parts := strings.Split(arg, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func init() {
	harvestCmd.PersistentFlags().StringVar(&harvestLocation, "location", "", "location to search in")
	harvestCmd.PersistentFlags().Float64Var(&harvestRadius, "radius", 1500, "search radius in meters")

	harvestPlacesCmd.Flags().IntVar(&harvestConcurrency, "concurrency", 3, "parallel queries for comma-separated searches")

	harvestNearbyCmd.Flags().Int64Var(&nearbyLeadID, "lead", 0, "anchor lead id (required)")
	harvestNearbyCmd.Flags().StringVar(&nearbyType, "type", "", "restrict to a Places business type")

	harvestOSMCmd.Flags().StringVar(&harvestAmenity, "amenity", "", "OSM amenity tag filter, e.g. restaurant")

	harvestLinkedInCmd.Flags().IntVar(&harvestMax, "max", 20, "maximum profiles to fetch")

	harvestCmd.AddCommand(harvestPlacesCmd, harvestNearbyCmd, harvestOSMCmd, harvestLinkedInCmd)
	rootCmd.AddCommand(harvestCmd)
}
