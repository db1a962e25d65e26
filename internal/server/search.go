package server

import (
	"encoding/json"
	"net/http"

	"github.com/sells-group/qna-cli/internal/model"
	"github.com/sells-group/qna-cli/internal/ranker"
	"github.com/sells-group/qna-cli/internal/store"
)

const (
	searchLimitDefault = 5
	searchLimitMax     = 20
)

type searchRequest struct {
	Query      string   `json:"query"`
	Tiers      []string `json:"tiers"`
	Categories []string `json:"categories"`
	ExcludeIDs []string `json:"excludeIds"`
	Limit      *int     `json:"limit"`
}

type searchSkill struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Tier       string   `json:"tier"`
	Categories []string `json:"categories"`
	Tags       []string `json:"tags"`
	Score      float64  `json:"score"`
}

type searchResponse struct {
	Skills       []searchSkill `json:"skills"`
	SearchMethod string        `json:"searchMethod"`
}

func handleSearch(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req searchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		if len(req.Tiers) == 0 {
			httpError(w, http.StatusBadRequest, "at least one tier is required")
			return
		}
		tiers := make([]model.Tier, 0, len(req.Tiers))
		for _, t := range req.Tiers {
			tier := model.Tier(t)
			if !model.ValidTier(tier) {
				httpError(w, http.StatusBadRequest, "unknown tier %q", t)
				return
			}
			tiers = append(tiers, tier)
		}

		limit := searchLimitDefault
		if req.Limit != nil {
			limit = *req.Limit
			if limit < 1 || limit > searchLimitMax {
				httpError(w, http.StatusBadRequest, "limit must be between 1 and %d", searchLimitMax)
				return
			}
		}

		skills, err := deps.Store.ListSkills(r.Context(), store.SkillFilter{
			Tiers:      tiers,
			Categories: req.Categories,
			ExcludeIDs: req.ExcludeIDs,
			ActiveOnly: true,
		})
		if err != nil {
			httpError(w, http.StatusInternalServerError, "failed to list skills")
			return
		}

		ranked := deps.Ranker.Rank(req.Query, skills)

		resp := searchResponse{Skills: []searchSkill{}, SearchMethod: "keyword"}
		for _, rs := range ranked {
			if len(resp.Skills) >= limit {
				break
			}
			// For a real query, zero-score entries carry no signal.
			if req.Query != "" && rs.Score <= 0 {
				continue
			}
			resp.Skills = append(resp.Skills, toSearchSkill(rs))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func toSearchSkill(rs ranker.ScoredSkill) searchSkill {
	return searchSkill{
		ID:         rs.Skill.ID,
		Name:       rs.Skill.Name,
		Tier:       string(rs.Skill.Tier),
		Categories: rs.Skill.Categories,
		Tags:       rs.Skill.Tags,
		Score:      rs.Score,
	}
}
