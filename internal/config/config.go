// Package config loads application configuration from file and environment
// and owns global logger initialization.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Places    PlacesConfig    `yaml:"places" mapstructure:"places"`
	CSE       CSEConfig       `yaml:"cse" mapstructure:"cse"`
	OSM       OSMConfig       `yaml:"osm" mapstructure:"osm"`
	Geocode   GeocodeConfig   `yaml:"geocode" mapstructure:"geocode"`
	Hunter    HunterConfig    `yaml:"hunter" mapstructure:"hunter"`
	PageSpeed PageSpeedConfig `yaml:"pagespeed" mapstructure:"pagespeed"`
	LLM       LLMConfig       `yaml:"llm" mapstructure:"llm"`
	Browser   BrowserConfig   `yaml:"browser" mapstructure:"browser"`
	Enrich    EnrichConfig    `yaml:"enrich" mapstructure:"enrich"`
	SmartList SmartListConfig `yaml:"smartlist" mapstructure:"smartlist"`
	Cost      CostConfig      `yaml:"cost" mapstructure:"cost"`
	Company   CompanyConfig   `yaml:"company" mapstructure:"company"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver          string `yaml:"driver" mapstructure:"driver"`
	Path            string `yaml:"path" mapstructure:"path"`
	DatabaseURL     string `yaml:"database_url" mapstructure:"database_url"`
	ExistsPrefixLen int    `yaml:"exists_prefix_len" mapstructure:"exists_prefix_len"`
}

// PlacesConfig holds Google Places API settings.
type PlacesConfig struct {
	Key           string  `yaml:"key" mapstructure:"key"`
	BaseURL       string  `yaml:"base_url" mapstructure:"base_url"`
	ResultLimit   int     `yaml:"result_limit" mapstructure:"result_limit"`
	CostPerSearch float64 `yaml:"cost_per_search" mapstructure:"cost_per_search"`
}

// CSEConfig holds Google Custom Search Engine settings.
type CSEConfig struct {
	Key          string  `yaml:"key" mapstructure:"key"`
	CX           string  `yaml:"cx" mapstructure:"cx"`
	BaseURL      string  `yaml:"base_url" mapstructure:"base_url"`
	CostPerQuery float64 `yaml:"cost_per_query" mapstructure:"cost_per_query"`
}

// OSMConfig holds OpenStreetMap (Nominatim/Overpass) settings. Nominatim's
// usage policy requires an identifying User-Agent on every request.
type OSMConfig struct {
	UserAgent    string `yaml:"user_agent" mapstructure:"user_agent"`
	NominatimURL string `yaml:"nominatim_url" mapstructure:"nominatim_url"`
	OverpassURL  string `yaml:"overpass_url" mapstructure:"overpass_url"`
}

// GeocodeConfig configures the free-then-paid geocode cascade.
type GeocodeConfig struct {
	GoogleKey       string  `yaml:"google_key" mapstructure:"google_key"`
	GoogleURL       string  `yaml:"google_url" mapstructure:"google_url"`
	CostPerFallback float64 `yaml:"cost_per_fallback" mapstructure:"cost_per_fallback"`
}

// HunterConfig holds Hunter.io email-finder settings.
type HunterConfig struct {
	Key          string  `yaml:"key" mapstructure:"key"`
	BaseURL      string  `yaml:"base_url" mapstructure:"base_url"`
	CostPerQuery float64 `yaml:"cost_per_query" mapstructure:"cost_per_query"`
}

// PageSpeedConfig holds PageSpeed Insights settings.
type PageSpeedConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// LLMConfig holds the validation-gate model settings.
type LLMConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	Model       string `yaml:"model" mapstructure:"model"`
	MaxTokens   int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// BrowserConfig configures the scrape-backed browser session.
type BrowserConfig struct {
	SearchURL     string `yaml:"search_url" mapstructure:"search_url"`
	UserAgent     string `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs   int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxPageChars  int    `yaml:"max_page_chars" mapstructure:"max_page_chars"`
	ScreenshotDir string `yaml:"screenshot_dir" mapstructure:"screenshot_dir"`
}

// EnrichConfig configures the find-and-fill orchestrator.
type EnrichConfig struct {
	CandidatesPerQuery int     `yaml:"candidates_per_query" mapstructure:"candidates_per_query"`
	CourtesyDelayMs    int     `yaml:"courtesy_delay_ms" mapstructure:"courtesy_delay_ms"`
	SelectLimit        int     `yaml:"select_limit" mapstructure:"select_limit"`
	ReportsDir         string  `yaml:"reports_dir" mapstructure:"reports_dir"`
	CompanyProfile     string  `yaml:"company_profile" mapstructure:"company_profile"`
	BasicDelayMs       int     `yaml:"basic_delay_ms" mapstructure:"basic_delay_ms"`
}

// SmartListConfig configures smart-list builds.
type SmartListConfig struct {
	MaxLeadsPerRun  int `yaml:"max_leads_per_run" mapstructure:"max_leads_per_run"`
	CourtesyDelayMs int `yaml:"courtesy_delay_ms" mapstructure:"courtesy_delay_ms"`
}

// CostConfig configures the API usage log sink.
type CostConfig struct {
	LogFile string `yaml:"log_file" mapstructure:"log_file"`
}

// CompanyConfig describes the company the leads are being qualified for;
// threaded into the strategist prompts.
type CompanyConfig struct {
	Profile string `yaml:"profile" mapstructure:"profile"`
}

// ServerConfig configures the dashboard API server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("LEADGEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "leads.db")
	v.SetDefault("store.exists_prefix_len", 15)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("places.base_url", "https://places.googleapis.com/v1")
	v.SetDefault("places.result_limit", 20)
	v.SetDefault("places.cost_per_search", 0.035)
	v.SetDefault("cse.base_url", "https://www.googleapis.com/customsearch/v1")
	v.SetDefault("cse.cost_per_query", 0.005)
	v.SetDefault("osm.nominatim_url", "https://nominatim.openstreetmap.org")
	v.SetDefault("osm.overpass_url", "https://overpass-api.de/api/interpreter")
	v.SetDefault("geocode.google_url", "https://maps.googleapis.com/maps/api/geocode/json")
	v.SetDefault("geocode.cost_per_fallback", 0.005)
	v.SetDefault("hunter.base_url", "https://api.hunter.io/v2")
	v.SetDefault("hunter.cost_per_query", 0.01)
	v.SetDefault("pagespeed.base_url", "https://www.googleapis.com/pagespeedonline/v5/runPagespeed")
	v.SetDefault("llm.model", "claude-haiku-4-5-20251001")
	v.SetDefault("llm.max_tokens", 1024)
	v.SetDefault("llm.timeout_secs", 120)
	v.SetDefault("browser.search_url", "https://html.duckduckgo.com/html/")
	v.SetDefault("browser.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36")
	v.SetDefault("browser.timeout_secs", 30)
	v.SetDefault("browser.max_page_chars", 4000)
	v.SetDefault("browser.screenshot_dir", "user_data/screenshots")
	v.SetDefault("enrich.candidates_per_query", 3)
	v.SetDefault("enrich.courtesy_delay_ms", 1000)
	v.SetDefault("enrich.basic_delay_ms", 500)
	v.SetDefault("enrich.select_limit", 100)
	v.SetDefault("enrich.reports_dir", "user_data/reports")
	v.SetDefault("smartlist.max_leads_per_run", 100)
	v.SetDefault("smartlist.courtesy_delay_ms", 500)
	v.SetDefault("cost.log_file", "user_data/api_usage.csv")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
