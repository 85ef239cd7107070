package rules

import "regexp"

// SkillType separates rules that may block from rules that only suggest.
type SkillType string

const (
	TypeGuardrail SkillType = "guardrail"
	TypeDomain    SkillType = "domain"
)

type Enforcement string

const (
	EnforcementBlock   Enforcement = "block"
	EnforcementSuggest Enforcement = "suggest"
)

// Priority orders advisory output. It never affects matching.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// Priorities lists every priority from most to least urgent.
var Priorities = []Priority{PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow}

// Rank returns 0 for critical through 3 for low, and 4 for anything else.
func (p Priority) Rank() int {
	for i, known := range Priorities {
		if p == known {
			return i
		}
	}
	return len(Priorities)
}

// Document is the on-disk shape of skill-rules.json.
type Document struct {
	Version     string                `json:"version" yaml:"version" toml:"version"`
	Description string                `json:"description,omitempty" yaml:"description,omitempty" toml:"description,omitempty"`
	Skills      map[string]*SkillRule `json:"skills" yaml:"skills" toml:"skills"`
}

type SkillRule struct {
	// Name is filled from the document key.
	Name           string          `json:"-" yaml:"-" toml:"-"`
	Description    string          `json:"description,omitempty" yaml:"description,omitempty" toml:"description,omitempty"`
	Type           SkillType       `json:"type" yaml:"type" toml:"type"`
	Enforcement    Enforcement     `json:"enforcement" yaml:"enforcement" toml:"enforcement"`
	Priority       Priority        `json:"priority" yaml:"priority" toml:"priority"`
	PromptTriggers *PromptTriggers `json:"promptTriggers,omitempty" yaml:"promptTriggers,omitempty" toml:"promptTriggers,omitempty"`
	FileTriggers   *FileTriggers   `json:"fileTriggers,omitempty" yaml:"fileTriggers,omitempty" toml:"fileTriggers,omitempty"`
	BlockMessage   string          `json:"blockMessage,omitempty" yaml:"blockMessage,omitempty" toml:"blockMessage,omitempty"`
	SkipConditions *SkipConditions `json:"skipConditions,omitempty" yaml:"skipConditions,omitempty" toml:"skipConditions,omitempty"`

	intentRes  []*regexp.Regexp
	contentRes []*regexp.Regexp
}

type PromptTriggers struct {
	Keywords       []string `json:"keywords,omitempty" yaml:"keywords,omitempty" toml:"keywords,omitempty"`
	IntentPatterns []string `json:"intentPatterns,omitempty" yaml:"intentPatterns,omitempty" toml:"intentPatterns,omitempty"`
}

// FileTriggers select file tool calls by path and, optionally, new content.
// A nil PathPatterns means the key was absent; an empty non-nil slice means
// it was present but empty.
type FileTriggers struct {
	PathPatterns    []string `json:"pathPatterns" yaml:"pathPatterns" toml:"pathPatterns"`
	PathExclusions  []string `json:"pathExclusions,omitempty" yaml:"pathExclusions,omitempty" toml:"pathExclusions,omitempty"`
	ContentPatterns []string `json:"contentPatterns,omitempty" yaml:"contentPatterns,omitempty" toml:"contentPatterns,omitempty"`
	CreateOnly      bool     `json:"createOnly,omitempty" yaml:"createOnly,omitempty" toml:"createOnly,omitempty"`
}

type SkipConditions struct {
	SessionSkillUsed bool     `json:"sessionSkillUsed,omitempty" yaml:"sessionSkillUsed,omitempty" toml:"sessionSkillUsed,omitempty"`
	FileMarkers      []string `json:"fileMarkers,omitempty" yaml:"fileMarkers,omitempty" toml:"fileMarkers,omitempty"`
	EnvOverride      string   `json:"envOverride,omitempty" yaml:"envOverride,omitempty" toml:"envOverride,omitempty"`
}

// Blocks reports whether the rule rejects tool calls when it fires.
func (r *SkillRule) Blocks() bool {
	return r.Enforcement == EnforcementBlock
}

// IntentRegexps returns the compiled intent patterns, in document order.
func (r *SkillRule) IntentRegexps() []*regexp.Regexp {
	return r.intentRes
}

// ContentRegexps returns the compiled content patterns, in document order.
func (r *SkillRule) ContentRegexps() []*regexp.Regexp {
	return r.contentRes
}

// HasPromptTriggers reports whether the rule can match a prompt.
func (r *SkillRule) HasPromptTriggers() bool {
	return r.PromptTriggers != nil &&
		(len(r.PromptTriggers.Keywords) > 0 || len(r.PromptTriggers.IntentPatterns) > 0)
}

// HasFileTriggers reports whether the rule can match a file event.
func (r *SkillRule) HasFileTriggers() bool {
	return r.FileTriggers != nil && len(r.FileTriggers.PathPatterns) > 0
}

// Warning is a non-fatal finding from loading a rule store.
type Warning struct {
	Rule    string
	Message string
}

func (w Warning) String() string {
	if w.Rule == "" {
		return w.Message
	}
	return w.Rule + ": " + w.Message
}
