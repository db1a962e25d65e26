package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/sells-group/qna-cli/internal/batch"
	"github.com/sells-group/qna-cli/internal/model"
)

type settingsResponse struct {
	BatchSize    int    `json:"batchSize"`
	BatchDelayMs int    `json:"batchDelayMs"`
	RetryWaitMs  int    `json:"rateLimitRetryWaitMs"`
	MaxRetries   int    `json:"rateLimitMaxRetries"`
	Provider     string `json:"provider"`
}

// settingKeys maps API setting names onto their store keys.
var settingKeys = map[string]string{
	"batchSize":            batch.KeyBatchSize,
	"batchDelayMs":         batch.KeyBatchDelayMs,
	"rateLimitRetryWaitMs": batch.KeyRetryWaitMs,
	"rateLimitMaxRetries":  batch.KeyMaxRetries,
	"provider":             batch.KeyProvider,
}

func handleGetSettings(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		settings := batch.LoadSettings(r.Context(), deps.Store)
		writeJSON(w, http.StatusOK, settingsResponse{
			BatchSize:    settings.BatchSize,
			BatchDelayMs: settings.BatchDelayMs,
			RetryWaitMs:  settings.RetryWaitMs,
			MaxRetries:   settings.MaxRetries,
			Provider:     string(settings.Provider),
		})
	}
}

func handleSetSetting(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Key   string `json:"key"`
			Value string `json:"value"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		storeKey, ok := settingKeys[req.Key]
		if !ok {
			httpError(w, http.StatusBadRequest, "unknown setting %q", req.Key)
			return
		}

		if req.Key == "provider" {
			if !model.ValidProvider(model.Provider(req.Value)) {
				httpError(w, http.StatusBadRequest, "unknown provider %q", req.Value)
				return
			}
		} else {
			n, err := strconv.Atoi(req.Value)
			if err != nil || n < 0 {
				httpError(w, http.StatusBadRequest, "%s must be a non-negative integer", req.Key)
				return
			}
		}

		if err := deps.Store.SetSetting(r.Context(), storeKey, req.Value); err != nil {
			httpError(w, http.StatusInternalServerError, "failed to save setting")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
