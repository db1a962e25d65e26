// Package prompt composes system prompts from ordered, toggleable sections
// plus retrieved knowledge and optional fallback material. Both the
// conversational and single-shot answer surfaces assemble prompts here so
// the two never diverge in shape.
package prompt

import (
	"strings"

	"github.com/sells-group/qna-cli/internal/ranker"
)

// Section is one toggleable block of the system prompt.
type Section struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Enabled bool   `json:"enabled"`
	Text    string `json:"text"`
}

const (
	knowledgeHeading = "Relevant knowledge"
	fallbackHeading  = "Additional reference material"
)

// Assemble renders enabled, non-blank sections in the caller-supplied order,
// followed by the knowledge block (if non-empty) and the fallback block (if
// present). Output is byte-identical for identical inputs.
func Assemble(sections []Section, knowledge, fallback string) string {
	var blocks []string

	for _, s := range sections {
		if !s.Enabled || strings.TrimSpace(s.Text) == "" {
			continue
		}
		blocks = append(blocks, renderBlock(s.Title, s.Text))
	}

	if strings.TrimSpace(knowledge) != "" {
		blocks = append(blocks, renderBlock(knowledgeHeading, knowledge))
	}

	if strings.TrimSpace(fallback) != "" {
		blocks = append(blocks, renderBlock(fallbackHeading, fallback))
	}

	return strings.Join(blocks, "\n\n")
}

func renderBlock(title, body string) string {
	body = strings.TrimSpace(body)
	title = strings.TrimSpace(title)
	if title == "" {
		return body
	}
	return "## " + title + "\n\n" + body
}

// KnowledgeBlock renders ranked skills into the knowledge text injected by
// Assemble. Zero-score entries carry no signal and are omitted; the caller
// decides whether an empty block warrants fallback content.
func KnowledgeBlock(ranked []ranker.ScoredSkill, limit int) (text string, usedIDs []string) {
	var b strings.Builder
	for _, r := range ranked {
		if r.Score <= 0 {
			continue
		}
		if limit > 0 && len(usedIDs) >= limit {
			break
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("### ")
		b.WriteString(r.Skill.Name)
		b.WriteString("\n\n")
		b.WriteString(strings.TrimSpace(r.Skill.Content))
		usedIDs = append(usedIDs, r.Skill.ID)
	}
	return b.String(), usedIDs
}
