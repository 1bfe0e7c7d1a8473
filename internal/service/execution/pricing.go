package execution

// Pricer estimates the cost of one execution from its resource usage.
type Pricer func(tokensUsed, apiCallsMade int64) float64

// NewLinearPricer prices tokens per thousand and API calls per call.
func NewLinearPricer(pricePerThousandTokens, pricePerAPICall float64) Pricer {
	return func(tokensUsed, apiCallsMade int64) float64 {
		if tokensUsed < 0 {
			tokensUsed = 0
		}
		if apiCallsMade < 0 {
			apiCallsMade = 0
		}
		return float64(tokensUsed)/1000.0*pricePerThousandTokens + float64(apiCallsMade)*pricePerAPICall
	}
}
