package cost

// Rates holds per-provider pricing configuration.
type Rates struct {
	LLM       map[string]ModelRate `yaml:"llm" mapstructure:"llm"`
	CSE       float64              `yaml:"cse_per_query" mapstructure:"cse_per_query"`
	Places    float64              `yaml:"places_per_search" mapstructure:"places_per_search"`
	Geocode   float64              `yaml:"geocode_per_fallback" mapstructure:"geocode_per_fallback"`
	Hunter    float64              `yaml:"hunter_per_query" mapstructure:"hunter_per_query"`
}

// ModelRate holds per-model token pricing (per million tokens).
type ModelRate struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// Calculator computes costs for API usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// LLM computes the cost of a model call from token counts. Unknown models
// cost zero.
func (c *Calculator) LLM(model string, inputTokens, outputTokens int64) float64 {
	rate, ok := c.rates.LLM[model]
	if !ok {
		return 0
	}
	return (float64(inputTokens)/1e6)*rate.Input + (float64(outputTokens)/1e6)*rate.Output
}

// CSEQuery returns the flat cost per Custom Search query.
func (c *Calculator) CSEQuery() float64 { return c.rates.CSE }

// PlacesSearch returns the flat cost per Places text search.
func (c *Calculator) PlacesSearch() float64 { return c.rates.Places }

// GeocodeFallback returns the cost of one paid-geocoder fallback call.
func (c *Calculator) GeocodeFallback() float64 { return c.rates.Geocode }

// HunterQuery returns the flat cost per Hunter email-finder query.
func (c *Calculator) HunterQuery() float64 { return c.rates.Hunter }

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		LLM: map[string]ModelRate{
			"claude-haiku-4-5-20251001":  {Input: 0.80, Output: 4.00},
			"claude-sonnet-4-5-20250929": {Input: 3.00, Output: 15.00},
		},
		CSE:     0.005,
		Places:  0.035,
		Geocode: 0.005,
		Hunter:  0.01,
	}
}
