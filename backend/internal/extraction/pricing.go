package extraction

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// fallbackCost is charged for models missing from the pricing table
const fallbackCost = 0.001

// Price is the USD cost per one million tokens.
type Price struct {
	Input  float64 `yaml:"input" json:"input"`
	Output float64 `yaml:"output" json:"output"`
}

// Pricing maps model ids to their token prices.
type Pricing map[string]Price

// DefaultPricing returns the built-in price table.
func DefaultPricing() Pricing {
	return Pricing{
		"gpt-4.1-mini":     {Input: 0.15, Output: 0.60},
		"gpt-4.1-nano":     {Input: 0.10, Output: 0.40},
		"gemini-2.5-flash": {Input: 0.075, Output: 0.30},
	}
}

// pricingFile is the on-disk layout:
//
//	models:
//	  gpt-4.1-mini:
//	    input: 0.15
//	    output: 0.60
type pricingFile struct {
	Models map[string]Price `yaml:"models"`
}

// LoadPricing reads a YAML pricing file and layers it over the defaults.
// An empty path returns the defaults.
func LoadPricing(path string) (Pricing, error) {
	p := DefaultPricing()
	if path == "" {
		return p, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pricing file: %w", err)
	}

	var f pricingFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse pricing file %s: %w", path, err)
	}
	for model, price := range f.Models {
		if price.Input < 0 || price.Output < 0 {
			return nil, fmt.Errorf("pricing for %s must not be negative", model)
		}
		p[model] = price
	}
	return p, nil
}

// EstimateCost assumes an even split between input and output tokens.
func (p Pricing) EstimateCost(tokens int, model string) float64 {
	price, ok := p[model]
	if !ok {
		return fallbackCost
	}
	avg := (price.Input + price.Output) / 2
	return float64(tokens) / 1_000_000 * avg
}
