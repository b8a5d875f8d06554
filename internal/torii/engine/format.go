package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bdobrica/Torii/internal/torii/approvals"
	"github.com/bdobrica/Torii/internal/torii/ops"
)

// formatPendingList renders the pending approval requests as a fixed-width
// table.
func formatPendingList(reqs []*approvals.Request) string {
	if len(reqs) == 0 {
		return "No pending approvals."
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Pending approvals (%d):\n", len(reqs)))
	sb.WriteString(fmt.Sprintf("%-38s %-12s %-14s %s\n", "ID", "OPERATION", "TARGET", "CREATED"))
	sb.WriteString(strings.Repeat("-", 78) + "\n")
	for _, r := range reqs {
		target := r.Target
		if target == "" {
			if c, ok := r.Preview.Get("project"); ok {
				target = c.To
			}
		}
		sb.WriteString(fmt.Sprintf("%-38s %-12s %-14s %s\n",
			r.ID, string(r.Kind), truncate(target, 14), r.CreatedAt.Format("01-02 15:04")))
	}
	sb.WriteString("\nReply `approve <id>` or `reject <id> [reason]`.")
	return sb.String()
}

func formatStatuses(statuses []string) string {
	if len(statuses) == 0 {
		return "The tracker reports no statuses."
	}
	return "Known statuses: " + strings.Join(statuses, ", ")
}

// decisionErrorMessage converts ledger sentinel errors into the user-facing
// text shown in chat. These are conversation outcomes, not crashes.
func decisionErrorMessage(id string, err error) string {
	switch {
	case errors.Is(err, approvals.ErrNotFound):
		return fmt.Sprintf("❌ Approval request %s not found. Use `list pending approvals` to see open requests.", id)
	case errors.Is(err, approvals.ErrAlreadyDecided):
		return fmt.Sprintf("❌ Approval request %s was already decided: %v", id, err)
	default:
		return fmt.Sprintf("❌ Could not apply that decision: %v", err)
	}
}

// readErrorMessage converts Reader failures into user-facing text.
func readErrorMessage(q ops.Query, err error) string {
	switch {
	case ops.IsNotFound(err):
		if q.Key != "" {
			return fmt.Sprintf("Ticket %s was not found.", q.Key)
		}
		return "Nothing matching was found."
	case ops.IsTransient(err):
		return "The tracker is temporarily unreachable; please try again in a moment."
	default:
		return fmt.Sprintf("The tracker reported an error: %v.", err)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
