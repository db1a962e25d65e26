package model

import "time"

// Provider identifies the hosted language-model provider.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
)

// ValidProvider reports whether p is a known provider.
func ValidProvider(p Provider) bool {
	switch p {
	case ProviderAnthropic, ProviderOpenAI:
		return true
	}
	return false
}

// RateLimitSettings tunes batch throughput against the provider's global
// request budget. Loaded fresh from the settings store at the start of each
// batch run so operators can adjust behavior without a restart.
type RateLimitSettings struct {
	BatchSize    int      `json:"batch_size"`
	BatchDelayMs int      `json:"batch_delay_ms"`
	RetryWaitMs  int      `json:"retry_wait_ms"`
	MaxRetries   int      `json:"max_retries"`
	Provider     Provider `json:"provider"`
}

// DefaultRateLimitSettings are the hard-coded fallbacks used when the
// settings store is unreachable or holds unparseable values.
func DefaultRateLimitSettings() RateLimitSettings {
	return RateLimitSettings{
		BatchSize:    5,
		BatchDelayMs: 15000,
		RetryWaitMs:  60000,
		MaxRetries:   3,
		Provider:     ProviderAnthropic,
	}
}

// BatchDelay returns the inter-batch delay as a duration.
func (s RateLimitSettings) BatchDelay() time.Duration {
	return time.Duration(s.BatchDelayMs) * time.Millisecond
}

// RetryWait returns the rate-limit backoff as a duration.
func (s RateLimitSettings) RetryWait() time.Duration {
	return time.Duration(s.RetryWaitMs) * time.Millisecond
}
