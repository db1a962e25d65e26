package batch

import (
	"context"
	"errors"
	"strconv"

	"go.uber.org/zap"

	"github.com/sells-group/qna-cli/internal/model"
	"github.com/sells-group/qna-cli/internal/store"
)

// Setting keys under which rate-limit settings are persisted. The HTTP
// settings endpoint writes the same keys.
const (
	KeyBatchSize    = "rate_limit.batch_size"
	KeyBatchDelayMs = "rate_limit.batch_delay_ms"
	KeyRetryWaitMs  = "rate_limit.retry_wait_ms"
	KeyMaxRetries   = "rate_limit.max_retries"
	KeyProvider     = "rate_limit.provider"
)

// LoadSettings reads the live rate-limit settings from the store. Missing
// keys keep their default; an unreadable or unparsable value logs a warning
// and keeps the default rather than failing the run.
func LoadSettings(ctx context.Context, st store.Store) model.RateLimitSettings {
	settings := model.DefaultRateLimitSettings()

	settings.BatchSize = loadInt(ctx, st, KeyBatchSize, settings.BatchSize)
	settings.BatchDelayMs = loadInt(ctx, st, KeyBatchDelayMs, settings.BatchDelayMs)
	settings.RetryWaitMs = loadInt(ctx, st, KeyRetryWaitMs, settings.RetryWaitMs)
	settings.MaxRetries = loadInt(ctx, st, KeyMaxRetries, settings.MaxRetries)

	if raw, err := st.GetSetting(ctx, KeyProvider); err == nil {
		provider := model.Provider(raw)
		if model.ValidProvider(provider) {
			settings.Provider = provider
		} else {
			zap.L().Warn("ignoring invalid provider setting", zap.String("value", raw))
		}
	} else if !errors.Is(err, store.ErrNotFound) {
		zap.L().Warn("failed to load setting, using default", zap.String("key", KeyProvider), zap.Error(err))
	}

	return settings
}

func loadInt(ctx context.Context, st store.Store, key string, def int) int {
	raw, err := st.GetSetting(ctx, key)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			zap.L().Warn("failed to load setting, using default", zap.String("key", key), zap.Error(err))
		}
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		zap.L().Warn("ignoring invalid setting value", zap.String("key", key), zap.String("value", raw))
		return def
	}
	return n
}

// SaveSettings persists every rate-limit setting under its key.
func SaveSettings(ctx context.Context, st store.Store, settings model.RateLimitSettings) error {
	pairs := map[string]string{
		KeyBatchSize:    strconv.Itoa(settings.BatchSize),
		KeyBatchDelayMs: strconv.Itoa(settings.BatchDelayMs),
		KeyRetryWaitMs:  strconv.Itoa(settings.RetryWaitMs),
		KeyMaxRetries:   strconv.Itoa(settings.MaxRetries),
		KeyProvider:     string(settings.Provider),
	}
	for key, value := range pairs {
		if err := st.SetSetting(ctx, key, value); err != nil {
			return err
		}
	}
	return nil
}
