// cache_policy.go
// ---------------
// The per-category staleness table. Categories map to areas of the
// rate-negotiation API with different volatility: active negotiations and
// messaging churn quickly and are polled, analytics and AI recommendations
// barely move and are kept much longer.
package resilientclient

import "time"

// CachePolicy controls how long a fetched value stays fresh and whether it
// is actively polled in the background.
type CachePolicy struct {
	StaleAfter   time.Duration
	PollInterval time.Duration // zero disables polling
}

// DefaultPolicies returns the built-in policy table. Callers receive a fresh
// map and may mutate it freely.
func DefaultPolicies() map[Category]CachePolicy {
	return map[Category]CachePolicy{
		CategoryDefault:         {StaleAfter: 120 * time.Second},
		CategoryNegotiations:    {StaleAfter: 30 * time.Second, PollInterval: 60 * time.Second},
		CategoryRateLines:       {StaleAfter: 60 * time.Second},
		CategoryMessaging:       {StaleAfter: 30 * time.Second, PollInterval: 30 * time.Second},
		CategoryAnalytics:       {StaleAfter: 300 * time.Second},
		CategoryRecommendations: {StaleAfter: 600 * time.Second},
	}
}
