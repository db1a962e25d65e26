package server

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

func handleSyncStatus(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h, err := deps.Tracker.Health(r.Context())
		if err != nil {
			httpError(w, http.StatusInternalServerError, "failed to read sync health")
			return
		}
		writeJSON(w, http.StatusOK, h)
	}
}

func handleSyncTrigger(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.SyncToken == "" {
			httpError(w, http.StatusForbidden, "sync trigger is not enabled")
			return
		}

		auth := r.Header.Get("Authorization")
		const prefix = "Bearer "
		if !strings.HasPrefix(auth, prefix) ||
			subtle.ConstantTimeCompare([]byte(auth[len(prefix):]), []byte(deps.SyncToken)) != 1 {
			httpError(w, http.StatusUnauthorized, "invalid or missing bearer token")
			return
		}

		report, err := deps.Syncer.Run(r.Context())
		if err != nil {
			zap.L().Error("sync trigger failed", zap.Error(err))
			httpError(w, http.StatusInternalServerError, "sync failed: %s", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}
