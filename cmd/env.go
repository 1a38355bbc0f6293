package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/tmc-media/leadgen-cli/internal/cost"
	"github.com/tmc-media/leadgen-cli/internal/gate"
	"github.com/tmc-media/leadgen-cli/internal/lookup"
	"github.com/tmc-media/leadgen-cli/internal/store"
	"github.com/tmc-media/leadgen-cli/pkg/browser"
	"github.com/tmc-media/leadgen-cli/pkg/cse"
	"github.com/tmc-media/leadgen-cli/pkg/llm"
)

func initStore(ctx context.Context) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.Path
		if dsn == "" {
			dsn = "leads.db"
		}
		st, err = store.NewSQLite(dsn,
			store.WithExistsPrefixLen(cfg.Store.ExistsPrefixLen))
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil,
			store.WithPostgresExistsPrefixLen(cfg.Store.ExistsPrefixLen))
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}

func usageLogger() *cost.Logger {
	return cost.NewLogger(cfg.Cost.LogFile)
}

// rateTable starts from default pricing with any configured overrides.
func rateTable() cost.Rates {
	rates := cost.DefaultRates()
	if cfg.CSE.CostPerQuery > 0 {
		rates.CSE = cfg.CSE.CostPerQuery
	}
	if cfg.Places.CostPerSearch > 0 {
		rates.Places = cfg.Places.CostPerSearch
	}
	if cfg.Geocode.CostPerFallback > 0 {
		rates.Geocode = cfg.Geocode.CostPerFallback
	}
	if cfg.Hunter.CostPerQuery > 0 {
		rates.Hunter = cfg.Hunter.CostPerQuery
	}
	return rates
}

func initGate() (*gate.Gate, error) {
	if cfg.LLM.Key == "" {
		return nil, eris.New("llm api key is required (LEADGEN_LLM_KEY)")
	}
	client := llm.NewClient(cfg.LLM.Key)
	return gate.New(client, cfg.LLM.Model, cfg.LLM.MaxTokens,
		usageLogger(), cost.NewCalculator(rateTable())), nil
}

func initSession() (browser.Session, error) {
	return browser.NewSession(
		browser.WithSearchURL(cfg.Browser.SearchURL),
		browser.WithUserAgent(cfg.Browser.UserAgent),
		browser.WithMaxPageChars(cfg.Browser.MaxPageChars),
	)
}

// initStrategy prefers the metered Custom Search API when configured and
// falls back to scraping through the browser session.
func initStrategy(session browser.Session) lookup.Strategy {
	if cfg.CSE.Key != "" && cfg.CSE.CX != "" {
		inner := lookup.NewCSEStrategy(
			cse.NewClient(cfg.CSE.Key, cfg.CSE.CX, cse.WithBaseURL(cfg.CSE.BaseURL)),
			usageLogger(), cost.NewCalculator(rateTable()))
		return lookup.NewThrottled(inner, courtesyRPS(cfg.Enrich.CourtesyDelayMs))
	}
	return lookup.NewBrowserStrategy(session)
}

// courtesyRPS converts a per-call delay into a limiter rate.
func courtesyRPS(delayMs int) float64 {
	if delayMs <= 0 {
		return 1
	}
	return 1000.0 / float64(delayMs)
}

func companyProfile() string {
	if cfg.Company.Profile != "" {
		return cfg.Company.Profile
	}
	return cfg.Enrich.CompanyProfile
}
