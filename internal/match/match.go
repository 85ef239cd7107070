// Package match evaluates prompts and file events against a compiled rule
// set. Matching is pure: it reads nothing but its arguments.
package match

import (
	"fmt"
	"sort"

	skerrors "github.com/gzhole/skillgate/internal/errors"
	"github.com/gzhole/skillgate/internal/rules"
)

// Kind names the trigger that fired.
type Kind string

const (
	KindKeyword Kind = "keyword"
	KindIntent  Kind = "intent"
	KindPath    Kind = "path"
	KindContent Kind = "content"
)

// Event records one trigger firing for one skill.
type Event struct {
	Skill string
	On    Kind
	Value string
}

// Match is a distinct rule that fired, with every trigger that fired for it.
type Match struct {
	Rule   *rules.SkillRule
	Events []Event
}

// Kinds returns the distinct trigger kinds in first-fired order.
func (m Match) Kinds() []Kind {
	seen := make(map[Kind]bool, len(m.Events))
	var kinds []Kind
	for _, e := range m.Events {
		if !seen[e.On] {
			seen[e.On] = true
			kinds = append(kinds, e.On)
		}
	}
	return kinds
}

// Names returns the skill names of matches in order.
func Names(matches []Match) []string {
	names := make([]string, len(matches))
	for i, m := range matches {
		names[i] = m.Rule.Name
	}
	return names
}

// sortByPriority orders matches critical first, then by name.
func sortByPriority(matches []Match) {
	sort.SliceStable(matches, func(i, j int) bool {
		ri, rj := matches[i].Rule.Priority.Rank(), matches[j].Rule.Priority.Rank()
		if ri != rj {
			return ri < rj
		}
		return matches[i].Rule.Name < matches[j].Rule.Name
	})
}

// guard runs fn for one rule and turns a panic into a MatchError so a
// single misbehaving rule cannot abort the evaluation.
func guard(rule *rules.SkillRule, fn func() []Event) (events []Event, err error) {
	defer func() {
		if r := recover(); r != nil {
			events = nil
			err = &skerrors.MatchError{Rule: rule.Name, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	return fn(), nil
}
