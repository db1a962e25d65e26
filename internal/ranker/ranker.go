// Package ranker orders knowledge entries against a query using weighted
// keyword overlap. This is keyword search, not semantic search: the Ranker
// interface is deliberately narrow so an embedding-backed implementation
// can replace it without touching callers.
package ranker

import (
	"sort"
	"strings"

	"github.com/sells-group/qna-cli/internal/model"
)

// Scoring weights. Name and content matches carry more signal than tag
// matches; an exact phrase hit is worth more than any token overlap.
const (
	nameTokenWeight    = 3.0
	contentTokenWeight = 2.0
	tagTokenWeight     = 1.0
	phraseBonus        = 5.0
)

// ScoredSkill pairs a skill with its relevance score for one query.
type ScoredSkill struct {
	Skill model.Skill
	Score float64
}

// Ranker scores and orders candidate skills against a query.
type Ranker interface {
	Rank(query string, candidates []model.Skill) []ScoredSkill
}

// Keyword is the keyword-overlap Ranker. It is pure: same inputs always
// produce the same output, and it never drops candidates.
type Keyword struct{}

// NewKeyword returns the keyword ranker.
func NewKeyword() *Keyword {
	return &Keyword{}
}

// Rank scores every candidate and returns them ordered by descending score.
// Ties break by most recently updated skill first, so results are stable
// and deterministic. An empty query scores everything zero and preserves
// the caller's order, leaving the zero-signal decision to the caller.
//
// Candidates are expected to be pre-filtered (active, tier, category,
// exclusions) by the store; the ranker only scores what it is handed.
func (k *Keyword) Rank(query string, candidates []model.Skill) []ScoredSkill {
	out := make([]ScoredSkill, len(candidates))

	terms := Tokenize(query)
	phrase := normalize(query)

	for i, c := range candidates {
		out[i] = ScoredSkill{Skill: c, Score: score(terms, phrase, c)}
	}

	if len(terms) == 0 {
		return out
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Skill.UpdatedAt.After(out[j].Skill.UpdatedAt)
	})
	return out
}

func score(terms []string, phrase string, s model.Skill) float64 {
	if len(terms) == 0 {
		return 0
	}

	name := normalize(s.Name)
	content := normalize(s.Content)
	tags := normalize(strings.Join(s.Tags, " "))

	nameTokens := tokenSet(name)
	contentTokens := tokenSet(content)
	tagTokens := tokenSet(tags)

	var total float64
	matched := false
	for _, t := range terms {
		if nameTokens[t] {
			total += nameTokenWeight
			matched = true
		}
		if contentTokens[t] {
			total += contentTokenWeight
			matched = true
		}
		if tagTokens[t] {
			total += tagTokenWeight
			matched = true
		}
	}

	if !matched {
		return 0
	}

	// Exact phrase containment in name or content earns a fixed bonus.
	if len(terms) > 1 && (strings.Contains(name, phrase) || strings.Contains(content, phrase)) {
		total += phraseBonus
	}

	return total
}

// Tokenize lowercases the input, strips punctuation, and returns the
// distinct term tokens in first-seen order.
func Tokenize(s string) []string {
	fields := strings.Fields(normalize(s))

	seen := make(map[string]bool, len(fields))
	var out []string
	for _, f := range fields {
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}

func tokenSet(normalized string) map[string]bool {
	set := make(map[string]bool)
	for _, f := range strings.Fields(normalized) {
		set[f] = true
	}
	return set
}

// normalize lowercases s and replaces punctuation with spaces so phrase
// containment and token matching agree on word boundaries.
func normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r > 127:
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
