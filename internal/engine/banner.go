package engine

import (
	"strings"

	"github.com/gzhole/skillgate/internal/enforce"
	"github.com/gzhole/skillgate/internal/rules"
)

var bannerRule = strings.Repeat("━", 42)

var priorityHeadings = map[rules.Priority]string{
	rules.PriorityCritical: "⚠️  CRITICAL SKILLS (REQUIRED):",
	rules.PriorityHigh:     "📚 RECOMMENDED SKILLS:",
	rules.PriorityMedium:   "💡 SUGGESTED SKILLS:",
	rules.PriorityLow:      "📌 OPTIONAL SKILLS:",
}

// FormatBanner renders advisories grouped by priority, each skill annotated
// with the trigger kinds that fired. It returns "" for no advisories.
func FormatBanner(advisories []enforce.RuleDecision) string {
	if len(advisories) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(bannerRule + "\n")
	b.WriteString("🎯 SKILL ACTIVATION CHECK\n")
	b.WriteString(bannerRule + "\n\n")

	for _, p := range rules.Priorities {
		var group []enforce.RuleDecision
		for _, a := range advisories {
			if a.Match.Rule.Priority == p {
				group = append(group, a)
			}
		}
		if len(group) == 0 {
			continue
		}
		b.WriteString(priorityHeadings[p] + "\n")
		for _, a := range group {
			b.WriteString("  → " + a.Name())
			if kinds := a.Match.Kinds(); len(kinds) > 0 {
				parts := make([]string, len(kinds))
				for i, k := range kinds {
					parts[i] = string(k)
				}
				b.WriteString(" (" + strings.Join(parts, ", ") + ")")
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	b.WriteString("ACTION: Use Skill tool BEFORE responding\n")
	b.WriteString(bannerRule)
	return b.String()
}
