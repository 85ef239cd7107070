package rules

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	skerrors "github.com/gzhole/skillgate/internal/errors"
)

// Format is the serialization of a rule document.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// FormatFromPath picks a format from the file extension. Unknown extensions
// are read as JSON, since skill-rules.json is the canonical artifact.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".toml":
		return FormatTOML
	default:
		return FormatJSON
	}
}

// RuleSet is an immutable, compiled rule store. It is safe to share across
// goroutines once returned from Compile.
type RuleSet struct {
	version string
	rules   []*SkillRule
	byName  map[string]*SkillRule
}

// Version returns the document version string.
func (rs *RuleSet) Version() string {
	if rs == nil {
		return ""
	}
	return rs.version
}

// Rules returns every rule sorted by name. The slice must not be modified.
func (rs *RuleSet) Rules() []*SkillRule {
	if rs == nil {
		return nil
	}
	return rs.rules
}

// Get looks up a rule by name.
func (rs *RuleSet) Get(name string) (*SkillRule, bool) {
	if rs == nil {
		return nil, false
	}
	r, ok := rs.byName[name]
	return r, ok
}

func (rs *RuleSet) Len() int {
	if rs == nil {
		return 0
	}
	return len(rs.rules)
}

// Decode parses a rule document without validating it.
func Decode(data []byte, format Format) (*Document, error) {
	var doc Document
	var err error
	switch format {
	case FormatYAML:
		err = yaml.Unmarshal(data, &doc)
	case FormatTOML:
		err = toml.Unmarshal(data, &doc)
	default:
		if len(bytes.TrimSpace(data)) == 0 {
			return nil, skerrors.New("empty document")
		}
		err = json.Unmarshal(data, &doc)
	}
	if err != nil {
		return nil, skerrors.Wrapf(err, "parsing %s", format)
	}
	return &doc, nil
}

// ReadDocument reads and decodes a single rule file.
func ReadDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, skerrors.Wrapf(skerrors.ErrRulesNotFound, "%s", path)
		}
		return nil, skerrors.Wrapf(err, "reading %s", path)
	}
	doc, err := Decode(data, FormatFromPath(path))
	if err != nil {
		return nil, &skerrors.ConfigError{Path: path, Err: err}
	}
	return doc, nil
}

// Parse decodes and compiles a rule document held in memory.
func Parse(data []byte, format Format) (*RuleSet, []Warning, error) {
	doc, err := Decode(data, format)
	if err != nil {
		return nil, nil, &skerrors.ConfigError{Err: err}
	}
	return Compile(doc)
}

// Load reads the rule file at path, merges any enabled packs from the
// sibling skill-rules.d directory, and compiles the result.
func Load(path string) (*RuleSet, []Warning, error) {
	doc, err := ReadDocument(path)
	if err != nil {
		return nil, nil, err
	}

	merged, _, warnings, err := LoadPacks(PacksDir(path), doc)
	if err != nil {
		return nil, warnings, err
	}

	rs, more, err := Compile(merged)
	warnings = append(warnings, more...)
	if err != nil {
		var cfgErr *skerrors.ConfigError
		if skerrors.As(err, &cfgErr) && cfgErr.Path == "" {
			cfgErr.Path = path
		}
		return nil, warnings, err
	}
	return rs, warnings, nil
}

// Compile validates a document, applies defaults, and compiles every regex.
// The first invalid rule aborts compilation with a *errors.ConfigError.
func Compile(doc *Document) (*RuleSet, []Warning, error) {
	if doc == nil {
		return nil, nil, &skerrors.ConfigError{Err: skerrors.New("empty document")}
	}
	if strings.TrimSpace(doc.Version) == "" {
		return nil, nil, &skerrors.ConfigError{Err: skerrors.New("version is required")}
	}

	var warnings []Warning
	if len(doc.Skills) == 0 {
		warnings = append(warnings, Warning{Message: "no skills defined"})
	}

	names := make([]string, 0, len(doc.Skills))
	for name := range doc.Skills {
		names = append(names, name)
	}
	sort.Strings(names)

	rs := &RuleSet{
		version: doc.Version,
		rules:   make([]*SkillRule, 0, len(names)),
		byName:  make(map[string]*SkillRule, len(names)),
	}

	for _, name := range names {
		src := doc.Skills[name]
		if src == nil {
			return nil, warnings, &skerrors.ConfigError{Rule: name, Err: skerrors.New("rule body is empty")}
		}
		rule := *src
		rule.Name = name

		ws, err := compileRule(&rule)
		warnings = append(warnings, ws...)
		if err != nil {
			return nil, warnings, err
		}

		rs.rules = append(rs.rules, &rule)
		rs.byName[name] = &rule
	}

	return rs, warnings, nil
}

func compileRule(r *SkillRule) ([]Warning, error) {
	var warnings []Warning
	fail := func(pattern string, err error) error {
		return &skerrors.ConfigError{Rule: r.Name, Pattern: pattern, Err: err}
	}

	if strings.TrimSpace(r.Name) == "" {
		return nil, fail("", skerrors.New("rule name is empty"))
	}

	if r.Type == "" {
		r.Type = TypeDomain
	}
	if r.Enforcement == "" {
		r.Enforcement = EnforcementSuggest
	}
	if r.Priority == "" {
		r.Priority = PriorityMedium
	}

	switch r.Type {
	case TypeGuardrail, TypeDomain:
	default:
		return nil, fail("", skerrors.Newf("unknown type %q", r.Type))
	}
	switch r.Enforcement {
	case EnforcementBlock, EnforcementSuggest:
	default:
		return nil, fail("", skerrors.Newf("unknown enforcement %q", r.Enforcement))
	}
	if r.Priority.Rank() >= len(Priorities) {
		return nil, fail("", skerrors.Newf("unknown priority %q", r.Priority))
	}

	if r.Enforcement == EnforcementBlock {
		if r.Type != TypeGuardrail {
			return nil, fail("", skerrors.New("enforcement \"block\" requires type \"guardrail\""))
		}
		if strings.TrimSpace(r.BlockMessage) == "" {
			return nil, fail("", skerrors.New("blockMessage is required when enforcement is \"block\""))
		}
	}

	if pt := r.PromptTriggers; pt != nil {
		for _, kw := range pt.Keywords {
			if strings.TrimSpace(kw) == "" {
				warnings = append(warnings, Warning{Rule: r.Name, Message: "empty keyword matches every prompt"})
			}
		}
		r.intentRes = make([]*regexp.Regexp, 0, len(pt.IntentPatterns))
		for _, p := range pt.IntentPatterns {
			re, err := regexp.Compile(caseInsensitive(p))
			if err != nil {
				return warnings, fail(p, err)
			}
			r.intentRes = append(r.intentRes, re)
		}
	}

	if ft := r.FileTriggers; ft != nil {
		switch {
		case ft.PathPatterns == nil:
			warnings = append(warnings, Warning{Rule: r.Name, Message: "fileTriggers has no pathPatterns and will never fire"})
		case len(ft.PathPatterns) == 0:
			return warnings, fail("", skerrors.New("fileTriggers.pathPatterns is present but empty"))
		}
		for _, g := range append(append([]string{}, ft.PathPatterns...), ft.PathExclusions...) {
			if !doublestar.ValidatePattern(g) {
				return warnings, fail(g, skerrors.New("invalid glob"))
			}
		}
		r.contentRes = make([]*regexp.Regexp, 0, len(ft.ContentPatterns))
		for _, p := range ft.ContentPatterns {
			re, err := regexp.Compile(p)
			if err != nil {
				return warnings, fail(p, err)
			}
			r.contentRes = append(r.contentRes, re)
		}
	}

	if !r.HasPromptTriggers() && !r.HasFileTriggers() {
		warnings = append(warnings, Warning{Rule: r.Name, Message: "rule has no triggers and can never match"})
	}
	if sc := r.SkipConditions; sc != nil && sc.SessionSkillUsed && !r.Blocks() {
		warnings = append(warnings, Warning{Rule: r.Name, Message: "sessionSkillUsed only applies to blocking rules"})
	}

	return warnings, nil
}

// caseInsensitive forces case-insensitive matching on intent patterns. A
// pattern may still switch it back off with (?-i).
func caseInsensitive(p string) string {
	return "(?i)" + p
}
