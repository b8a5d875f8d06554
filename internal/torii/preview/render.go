package preview

import (
	"fmt"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/bdobrica/Torii/internal/torii/ops"
)

const bannerRule = "============================================================"

// Render formats a preview as the approval banner shown to the human.
// Single-line fields render as "field: from → to"; multi-line text fields
// render as a unified diff so long description edits stay reviewable.
func Render(id string, kind ops.Kind, target string, p Preview) string {
	var sb strings.Builder

	sb.WriteString(bannerRule + "\n")
	sb.WriteString(fmt.Sprintf("⚠️  APPROVAL REQUIRED — %s\n", strings.ToUpper(string(kind))))
	sb.WriteString(bannerRule + "\n")
	sb.WriteString(fmt.Sprintf("Request ID: %s\n", id))
	if target != "" {
		sb.WriteString(fmt.Sprintf("Ticket:     %s\n", target))
	}

	sb.WriteString("\nPreview of changes:\n")
	for _, c := range p {
		switch {
		case isMultiline(c):
			sb.WriteString(fmt.Sprintf("  • %s:\n", c.Field))
			sb.WriteString(indent(textDiff(c.From, c.To), "      "))
		case c.From != "" && c.From != c.To:
			sb.WriteString(fmt.Sprintf("  • %s: %q → %q\n", c.Field, c.From, c.To))
		default:
			sb.WriteString(fmt.Sprintf("  • %s: %s\n", c.Field, c.To))
		}
	}

	sb.WriteString("\n" + bannerRule + "\n")
	sb.WriteString(fmt.Sprintf("Reply `approve %s` to proceed or `reject %s [reason]` to cancel.\n", id, id))
	sb.WriteString(bannerRule)
	return sb.String()
}

func isMultiline(c FieldChange) bool {
	return strings.Contains(c.From, "\n") || strings.Contains(c.To, "\n")
}

// textDiff renders a unified diff between the current and proposed value of
// a multi-line field.
func textDiff(from, to string) string {
	ud := difflib.UnifiedDiff{
		A:        difflib.SplitLines(from),
		B:        difflib.SplitLines(to),
		FromFile: "current",
		ToFile:   "proposed",
		Context:  3,
	}
	patch, err := difflib.GetUnifiedDiffString(ud)
	if err != nil || patch == "" {
		// Fall back to showing the proposed text verbatim.
		return to + "\n"
	}
	return patch
}

func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, line := range lines {
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n") + "\n"
}
