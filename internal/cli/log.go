package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/gzhole/skillgate/internal/engine"
	"github.com/gzhole/skillgate/internal/logger"
)

var (
	logFilterDecision string
	logFilterSession  string
	logLast           int
	logSummary        bool
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "View and filter the audit log",
	Long: `View the skillgate audit log with filtering and summary options.

Examples:
  skillgate log                        # Show all entries
  skillgate log --last 20              # Show last 20 entries
  skillgate log --decision block       # Show only blocked edits
  skillgate log --session S1           # Show one session
  skillgate log --summary              # Show summary stats`,
	Args: cobra.NoArgs,
	RunE: logCommand,
}

func init() {
	logCmd.Flags().StringVar(&logFilterDecision, "decision", "", "Filter by decision (allow, advise, block)")
	logCmd.Flags().StringVar(&logFilterSession, "session", "", "Filter by session id")
	logCmd.Flags().IntVar(&logLast, "last", 0, "Show last N entries")
	logCmd.Flags().BoolVar(&logSummary, "summary", false, "Show summary statistics")
	rootCmd.AddCommand(logCmd)
}

func logCommand(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	events, err := logger.ReadEvents(cfg.AuditLog)
	if err != nil {
		return err
	}

	if len(events) == 0 {
		fmt.Fprintln(out, "No audit log entries found.")
		return nil
	}

	filtered := filterEvents(events)

	if logLast > 0 && logLast < len(filtered) {
		filtered = filtered[len(filtered)-logLast:]
	}

	if logSummary {
		printSummary(out, events)
		return nil
	}

	printEvents(out, filtered)
	return nil
}

func filterEvents(events []logger.AuditEvent) []logger.AuditEvent {
	if logFilterDecision == "" && logFilterSession == "" {
		return events
	}

	var filtered []logger.AuditEvent
	for _, e := range events {
		if logFilterDecision != "" && !strings.EqualFold(e.Decision, logFilterDecision) {
			continue
		}
		if logFilterSession != "" && e.SessionID != logFilterSession {
			continue
		}
		filtered = append(filtered, e)
	}
	return filtered
}

func printEvents(w io.Writer, events []logger.AuditEvent) {
	for _, e := range events {
		subject := e.FilePath
		if e.Event == engine.EventPrompt {
			subject = fmt.Sprintf("%q", e.Prompt)
		}
		fmt.Fprintf(w, "%s %s %-6s %s\n", decisionIcon(e.Decision), formatTimestamp(e.Timestamp), e.Event, subject)

		if len(e.Skills) > 0 {
			fmt.Fprintf(w, "     Skills: %s\n", strings.Join(e.Skills, ", "))
		}
		if len(e.Suppressed) > 0 {
			fmt.Fprintf(w, "     Skipped: %s\n", strings.Join(e.Suppressed, ", "))
		}
		if e.Error != "" {
			fmt.Fprintf(w, "     Error: %s\n", e.Error)
		}
		if e.SessionID != "" {
			fmt.Fprintf(w, "     Session: %s\n", e.SessionID)
		}
		fmt.Fprintln(w)
	}
}

func printSummary(w io.Writer, all []logger.AuditEvent) {
	counts := map[string]int{}
	skillCounts := map[string]int{}
	errorCount := 0

	for _, e := range all {
		counts[e.Decision]++
		for _, s := range e.Skills {
			skillCounts[s]++
		}
		if e.Error != "" {
			errorCount++
		}
	}

	fmt.Fprintln(w, "═══════════════════════════════════════════")
	fmt.Fprintln(w, "  skillgate Audit Summary")
	fmt.Fprintln(w, "═══════════════════════════════════════════")
	fmt.Fprintf(w, "  Total events:    %d\n", len(all))
	fmt.Fprintf(w, "  allow:           %d\n", counts[string(engine.ActionAllow)])
	fmt.Fprintf(w, "  advise:          %d\n", counts[string(engine.ActionAdvise)])
	fmt.Fprintf(w, "  block:           %d\n", counts[string(engine.ActionBlock)])
	fmt.Fprintf(w, "  Errors:          %d\n", errorCount)
	fmt.Fprintln(w, "═══════════════════════════════════════════")

	fmt.Fprintf(w, "  First event:     %s\n", formatTimestamp(all[0].Timestamp))
	fmt.Fprintf(w, "  Last event:      %s\n", formatTimestamp(all[len(all)-1].Timestamp))

	if len(skillCounts) > 0 {
		names := make([]string, 0, len(skillCounts))
		for name := range skillCounts {
			names = append(names, name)
		}
		sort.Slice(names, func(i, j int) bool {
			if skillCounts[names[i]] != skillCounts[names[j]] {
				return skillCounts[names[i]] > skillCounts[names[j]]
			}
			return names[i] < names[j]
		})
		fmt.Fprintln(w)
		fmt.Fprintln(w, "  Skills surfaced:")
		for _, name := range names {
			fmt.Fprintf(w, "    %-32s %d\n", name, skillCounts[name])
		}
	}

	var blocked []logger.AuditEvent
	for _, e := range all {
		if e.Decision == string(engine.ActionBlock) {
			blocked = append(blocked, e)
		}
	}
	if len(blocked) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "  Blocked edits:")
		limit := len(blocked)
		if limit > 10 {
			limit = 10
		}
		for _, e := range blocked[len(blocked)-limit:] {
			fmt.Fprintf(w, "    %s %s (%s)\n", formatTimestamp(e.Timestamp), e.FilePath, strings.Join(e.Skills, ", "))
		}
	}

	fmt.Fprintln(w)
}

func decisionIcon(decision string) string {
	switch engine.Action(decision) {
	case engine.ActionBlock:
		return "🛑"
	case engine.ActionAdvise:
		return "💡"
	case engine.ActionAllow:
		return "✅"
	default:
		return "❓"
	}
}

func formatTimestamp(ts string) string {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return ts
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
