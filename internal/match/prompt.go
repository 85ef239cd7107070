package match

import (
	"strings"

	"github.com/gzhole/skillgate/internal/rules"
)

// Prompt matches a free-text prompt against every rule's prompt triggers.
// Keywords are case-insensitive substrings; intent patterns were compiled
// case-insensitive at load time. The result is ordered by priority. Errors
// are per-rule failures; the rules that produced them are left out.
func Prompt(rs *rules.RuleSet, prompt string) ([]Match, []error) {
	lower := strings.ToLower(prompt)

	var matches []Match
	var errs []error
	for _, rule := range rs.Rules() {
		if !rule.HasPromptTriggers() {
			continue
		}
		events, err := guard(rule, func() []Event {
			return promptEvents(rule, prompt, lower)
		})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if len(events) > 0 {
			matches = append(matches, Match{Rule: rule, Events: events})
		}
	}

	sortByPriority(matches)
	return matches, errs
}

func promptEvents(rule *rules.SkillRule, prompt, lower string) []Event {
	var events []Event
	for _, kw := range rule.PromptTriggers.Keywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			events = append(events, Event{Skill: rule.Name, On: KindKeyword, Value: kw})
		}
	}
	for i, re := range rule.IntentRegexps() {
		if re.MatchString(prompt) {
			events = append(events, Event{Skill: rule.Name, On: KindIntent, Value: rule.PromptTriggers.IntentPatterns[i]})
		}
	}
	return events
}
