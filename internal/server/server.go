// Package server exposes the question-answering API over HTTP.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/sells-group/qna-cli/internal/answer"
	"github.com/sells-group/qna-cli/internal/kbsync"
	"github.com/sells-group/qna-cli/internal/model"
	"github.com/sells-group/qna-cli/internal/prompt"
	"github.com/sells-group/qna-cli/internal/ranker"
	"github.com/sells-group/qna-cli/internal/store"
	"github.com/sells-group/qna-cli/internal/synchealth"
)

// Answerer generates one answer under the given rate-limit settings.
// *answer.Generator satisfies it.
type Answerer interface {
	Answer(ctx context.Context, req answer.Request, settings model.RateLimitSettings) (*answer.Result, error)
}

// SyncRunner runs one knowledge sync pass. *kbsync.Syncer satisfies it.
type SyncRunner interface {
	Run(ctx context.Context) (*kbsync.Report, error)
}

// HealthReader reports the sync health aggregate. *synchealth.Tracker
// satisfies it.
type HealthReader interface {
	Health(ctx context.Context) (*synchealth.Health, error)
}

// Deps are the collaborators the handler needs.
type Deps struct {
	Store     store.Store
	Ranker    ranker.Ranker
	Generator Answerer
	Tracker   HealthReader
	Syncer    SyncRunner
	// Sections are the system-prompt sections used by the answer endpoint.
	Sections []prompt.Section
	// FallbackText is injected when no relevant knowledge is found.
	FallbackText string
	// MaxSkills caps prompt knowledge entries per answer.
	MaxSkills int
	// HistoryMaxTurns bounds how many prior turn pairs enter a request.
	HistoryMaxTurns int
	// SyncToken gates the sync-trigger endpoint. Empty disables the endpoint.
	SyncToken string
}

// NewHandler builds the API router.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	r.Get("/health", handleHealthz)
	r.Post("/api/skills/search", handleSearch(deps))
	r.Get("/api/settings/rate-limit", handleGetSettings(deps))
	r.Post("/api/settings/rate-limit", handleSetSetting(deps))
	r.Post("/api/answer", handleAnswer(deps))
	r.Get("/api/sync/status", handleSyncStatus(deps))
	r.Post("/api/sync/trigger", handleSyncTrigger(deps))

	return r
}

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}

func httpError(w http.ResponseWriter, code int, format string, args ...any) {
	writeJSON(w, code, map[string]string{"error": fmt.Sprintf(format, args...)})
}
