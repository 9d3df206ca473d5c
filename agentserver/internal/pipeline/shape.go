package pipeline

import (
	"regexp"
	"strings"

	"github.com/couchrishi/sahabat/agentserver/internal/domain"
)

var paragraphBreak = regexp.MustCompile(`\n[ \t]*\n`)

// Paragraphs splits text on blank lines, dropping empty paragraphs.
func Paragraphs(text string) []string {
	var out []string
	for _, p := range paragraphBreak.Split(strings.TrimSpace(text), -1) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ShapeForTier applies the tier's format to a text answer. Free answers are
// collapsed into a single paragraph; Paid answers keep the model's Markdown.
func ShapeForTier(tier domain.Tier, text string) string {
	if tier == domain.TierPaid {
		return strings.TrimSpace(text)
	}
	paras := Paragraphs(text)
	for i, p := range paras {
		paras[i] = strings.Join(strings.Fields(p), " ")
	}
	return strings.Join(paras, " ")
}
