package tui

import (
	"fmt"
	"strings"

	"github.com/aretw0/parley/pkg/domain"
)

// SessionMarkdown formats a workflow state as markdown for terminal
// rendering.
func SessionMarkdown(state *domain.WorkflowState) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Session %s\n\n", state.SessionID)
	fmt.Fprintf(&b, "**Owner:** %s  \n", state.UserID)
	fmt.Fprintf(&b, "**Phase:** %s  \n", state.Phase)
	fmt.Fprintf(&b, "**Current node:** %s  \n", valueOr(state.CurrentNode, "(none)"))
	fmt.Fprintf(&b, "**Can advance:** %t\n\n", state.CanAdvance)

	b.WriteString("## Phase progress\n\n")
	for _, phase := range domain.Phases() {
		completion, visited := state.PhaseCompletion[phase]
		if !visited {
			continue
		}
		fmt.Fprintf(&b, "- %s `%s` %.0f%%\n", progressBar(completion), phase, completion*100)
	}

	if len(state.RequiredData) > 0 {
		b.WriteString("\n## Collected data\n\n")
		for field, done := range state.RequiredData {
			mark := " "
			if done {
				mark = "x"
			}
			fmt.Fprintf(&b, "- [%s] %s\n", mark, field)
		}
	}

	if len(state.Checkpoints) > 0 {
		b.WriteString("\n## Checkpoints\n\n")
		for _, cp := range state.Checkpoints {
			fmt.Fprintf(&b, "- `%s` (%s)\n", cp.Name, cp.TakenAt.Format("2006-01-02 15:04:05"))
		}
	}

	if len(state.ErrorRecovery) > 0 {
		b.WriteString("\n## Recent failures\n\n")
		for node, rec := range state.ErrorRecovery {
			fmt.Fprintf(&b, "- **%s**: %s (%s)\n", node, rec.Message, rec.Kind)
		}
	}

	fmt.Fprintf(&b, "\n_%d messages, %d audit entries_\n", len(state.MessageHistory), len(state.AuditTrail))
	return b.String()
}

// TrailMarkdown formats the audit trail as a markdown table.
func TrailMarkdown(trail []domain.AuditEntry) string {
	var b strings.Builder
	b.WriteString("# Audit trail\n\n")
	b.WriteString("| Time | Actor | Event | Fields |\n")
	b.WriteString("| --- | --- | --- | --- |\n")
	for _, entry := range trail {
		fmt.Fprintf(&b, "| %s | %s | %s | %s |\n",
			entry.Timestamp.Format("15:04:05"),
			entry.Actor,
			entry.Event,
			strings.Join(entry.FieldsChanged, ", "),
		)
	}
	return b.String()
}

func progressBar(completion float64) string {
	const width = 10
	filled := int(completion * width)
	if filled > width {
		filled = width
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func valueOr(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
