package match

import (
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/gzhole/skillgate/internal/rules"
)

// FileEvent describes a file tool call.
type FileEvent struct {
	// Path is the path as the host sent it, usually absolute.
	Path string
	// RelPath is Path relative to the project root, or empty when the file
	// lies outside it.
	RelPath    string
	IsNewFile  bool
	NewContent string
	OldContent string
}

// candidate returns the slash-separated path that globs are tried against.
// The project-relative form wins; the host path is used only for files
// outside the project, so directories above the root never match.
func (ev FileEvent) candidate() string {
	if ev.RelPath != "" {
		return filepath.ToSlash(ev.RelPath)
	}
	return filepath.ToSlash(ev.Path)
}

// File matches a file event against every rule's file triggers. For each
// rule: createOnly skips existing files, any exclusion skips the rule, at
// least one inclusion must match, and when content patterns exist at least
// one must match the new content.
func File(rs *rules.RuleSet, ev FileEvent) ([]Match, []error) {
	path := ev.candidate()

	var matches []Match
	var errs []error
	for _, rule := range rs.Rules() {
		if !rule.HasFileTriggers() {
			continue
		}
		events, err := guard(rule, func() []Event {
			return fileEvents(rule, ev, path)
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

func fileEvents(rule *rules.SkillRule, ev FileEvent, path string) []Event {
	ft := rule.FileTriggers
	if ft.CreateOnly && !ev.IsNewFile {
		return nil
	}

	if path == "" {
		return nil
	}
	if _, excluded := firstGlobMatch(ft.PathExclusions, path); excluded {
		return nil
	}

	pattern, included := firstGlobMatch(ft.PathPatterns, path)
	if !included {
		return nil
	}
	events := []Event{{Skill: rule.Name, On: KindPath, Value: pattern}}

	contentRes := rule.ContentRegexps()
	if len(contentRes) == 0 {
		return events
	}
	for i, re := range contentRes {
		if re.MatchString(ev.NewContent) {
			return append(events, Event{Skill: rule.Name, On: KindContent, Value: ft.ContentPatterns[i]})
		}
	}
	return nil
}

// firstGlobMatch returns the first pattern that matches path.
func firstGlobMatch(patterns []string, path string) (string, bool) {
	for _, pattern := range patterns {
		if GlobMatch(pattern, path) {
			return pattern, true
		}
	}
	return "", false
}

// GlobMatch reports whether a slash-separated path matches pattern, where
// ** spans any number of directories and * stays within one segment. An
// invalid pattern never matches.
func GlobMatch(pattern, path string) bool {
	pattern = strings.TrimPrefix(pattern, "./")
	path = strings.TrimPrefix(path, "./")
	ok, err := doublestar.Match(pattern, path)
	return err == nil && ok
}
