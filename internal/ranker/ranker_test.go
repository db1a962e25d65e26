package ranker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/qna-cli/internal/model"
)

func skill(id, name, content string, tags []string, updated time.Time) model.Skill {
	return model.Skill{
		ID:        id,
		Name:      name,
		Content:   content,
		Tags:      tags,
		Active:    true,
		UpdatedAt: updated,
	}
}

func TestRank_SSOScenario(t *testing.T) {
	now := time.Now()
	candidates := []model.Skill{
		skill("billing", "Billing FAQ", "How invoices and billing cycles work.", nil, now),
		skill("sso", "Authentication overview", "We support single sign-on SSO via SAML and OIDC.", []string{"security"}, now),
	}

	ranked := NewKeyword().Rank("SSO authentication", candidates)

	assert.Len(t, ranked, 2)
	assert.Equal(t, "sso", ranked[0].Skill.ID)
	assert.Greater(t, ranked[0].Score, 0.0)
	assert.Less(t, ranked[1].Score, ranked[0].Score)
}

func TestRank_OutputLengthEqualsInput(t *testing.T) {
	now := time.Now()
	candidates := []model.Skill{
		skill("a", "Alpha", "nothing relevant here", nil, now),
		skill("b", "Beta", "still nothing", nil, now),
		skill("c", "Gamma", "deployment runbook", nil, now),
	}

	ranked := NewKeyword().Rank("deployment", candidates)

	assert.Len(t, ranked, len(candidates))
	for i := 1; i < len(ranked); i++ {
		assert.GreaterOrEqual(t, ranked[i-1].Score, ranked[i].Score, "not sorted descending")
	}
}

func TestRank_EmptyQueryPreservesOrder(t *testing.T) {
	now := time.Now()
	candidates := []model.Skill{
		skill("z", "Zulu", "zulu content", nil, now),
		skill("a", "Alpha", "alpha content", nil, now),
	}

	ranked := NewKeyword().Rank("", candidates)

	assert.Len(t, ranked, 2)
	assert.Equal(t, "z", ranked[0].Skill.ID)
	assert.Equal(t, "a", ranked[1].Skill.ID)
	assert.Zero(t, ranked[0].Score)
	assert.Zero(t, ranked[1].Score)
}

func TestRank_NoOverlapScoresZero(t *testing.T) {
	ranked := NewKeyword().Rank("kubernetes", []model.Skill{
		skill("a", "Payroll", "salary bands and payroll dates", nil, time.Now()),
	})

	assert.Len(t, ranked, 1)
	assert.Zero(t, ranked[0].Score)
}

func TestRank_NameOutweighsTags(t *testing.T) {
	now := time.Now()
	candidates := []model.Skill{
		skill("tagged", "Misc notes", "general notes", []string{"encryption"}, now),
		skill("named", "Encryption policy", "general notes", nil, now),
	}

	ranked := NewKeyword().Rank("encryption", candidates)

	assert.Equal(t, "named", ranked[0].Skill.ID)
	assert.Greater(t, ranked[0].Score, ranked[1].Score)
}

func TestRank_PhraseBonus(t *testing.T) {
	now := time.Now()
	candidates := []model.Skill{
		skill("scattered", "Data policy", "retention is covered elsewhere; data lives in the warehouse", nil, now),
		skill("phrase", "Data retention", "our data retention policy is seven years", nil, now),
	}

	ranked := NewKeyword().Rank("data retention", candidates)

	assert.Equal(t, "phrase", ranked[0].Skill.ID)
	assert.Greater(t, ranked[0].Score, ranked[1].Score)
}

func TestRank_TieBreaksByMostRecentlyUpdated(t *testing.T) {
	older := time.Now().Add(-time.Hour)
	newer := time.Now()
	candidates := []model.Skill{
		skill("old", "Onboarding", "same words", nil, older),
		skill("new", "Onboarding", "same words", nil, newer),
	}

	ranked := NewKeyword().Rank("onboarding", candidates)

	assert.Equal(t, "new", ranked[0].Skill.ID)
	assert.Equal(t, ranked[0].Score, ranked[1].Score)
}

func TestRank_Deterministic(t *testing.T) {
	now := time.Now()
	candidates := []model.Skill{
		skill("a", "VPN setup", "wireguard config steps", []string{"network"}, now),
		skill("b", "Office access", "badge and vpn info", nil, now.Add(-time.Minute)),
	}

	first := NewKeyword().Rank("vpn access", candidates)
	second := NewKeyword().Rank("vpn access", candidates)

	assert.Equal(t, first, second)
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{name: "punctuation stripped", in: "What's our SLA, exactly?", want: []string{"what", "s", "our", "sla", "exactly"}},
		{name: "duplicates removed", in: "data data data", want: []string{"data"}},
		{name: "empty", in: "  ", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Tokenize(tt.in))
		})
	}
}
