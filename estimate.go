package infergate

import "math"

// EstimateTokens provides a rough token count for a prompt.
// Uses the approximation: ~4 chars per token, never below one token.
func EstimateTokens(prompt string) float64 {
	return math.Max(float64(len(prompt))/4, 1)
}

// EstimateCost prices a prompt at a tier's base cost per 100 tokens,
// rounded to 4 decimal places.
func EstimateCost(prompt string, baseCostUSD float64) float64 {
	cost := baseCostUSD * (EstimateTokens(prompt) / 100)
	return math.Round(cost*1e4) / 1e4
}
