// Package enforce turns raw matches into allow, suggest, or block decisions,
// applying each rule's skip conditions and the once-per-session guardrail
// bookkeeping.
package enforce

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/gzhole/skillgate/internal/config"
	"github.com/gzhole/skillgate/internal/match"
	"github.com/gzhole/skillgate/internal/rules"
	"github.com/gzhole/skillgate/internal/session"
)

type Verdict string

const (
	VerdictSuggest    Verdict = "suggest"
	VerdictBlock      Verdict = "block"
	VerdictSuppressed Verdict = "suppressed"
)

// Skip reasons recorded on suppressed decisions.
const (
	ReasonEnvOverride = "env_override"
	ReasonFileMarker  = "file_marker"
	ReasonSessionUsed = "session_used"
	// ReasonStateIO marks a once-per-session block released because the
	// session could not be saved.
	ReasonStateIO = "state_io"
)

// FilePathPlaceholder is substituted into block messages.
const FilePathPlaceholder = "{file_path}"

// RuleDecision is the outcome for one matched rule.
type RuleDecision struct {
	Match   match.Match
	Verdict Verdict
	Reason  string
	Message string
}

// Name is the rule's skill name.
func (d RuleDecision) Name() string {
	return d.Match.Rule.Name
}

// Decision is the combined outcome of one evaluation.
type Decision struct {
	Rules []RuleDecision
}

// Blocked reports whether any rule blocks.
func (d Decision) Blocked() bool {
	for _, r := range d.Rules {
		if r.Verdict == VerdictBlock {
			return true
		}
	}
	return false
}

// BlockMessages returns the messages of blocking rules, in priority order.
func (d Decision) BlockMessages() []string {
	var msgs []string
	for _, r := range d.Rules {
		if r.Verdict == VerdictBlock {
			msgs = append(msgs, r.Message)
		}
	}
	return msgs
}

// Advisories returns the rules that fired as suggestions.
func (d Decision) Advisories() []RuleDecision {
	var out []RuleDecision
	for _, r := range d.Rules {
		if r.Verdict == VerdictSuggest {
			out = append(out, r)
		}
	}
	return out
}

// Decider applies skip conditions and enforcement levels.
type Decider struct {
	store  session.Store
	lookup func(string) (string, bool)
	logger *slog.Logger
}

// NewDecider builds a Decider. lookup is usually os.LookupEnv; a nil logger
// discards.
func NewDecider(store session.Store, lookup func(string) (string, bool), logger *slog.Logger) *Decider {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if lookup == nil {
		lookup = func(string) (string, bool) { return "", false }
	}
	return &Decider{store: store, lookup: lookup, logger: logger}
}

// DecidePrompt applies only env overrides: prompt decisions are advisory
// and never touch session state.
func (d *Decider) DecidePrompt(matches []match.Match) Decision {
	var out Decision
	for _, m := range matches {
		rd := RuleDecision{Match: m, Verdict: VerdictSuggest}
		if d.envOverridden(m.Rule) {
			rd.Verdict = VerdictSuppressed
			rd.Reason = ReasonEnvOverride
		}
		out.Rules = append(out.Rules, rd)
	}
	return out
}

// DecideFile decides every matched rule for a file event. content is the
// text searched for file markers. Session state is read only when a rule
// needs it, and written once if any guardrail blocked. An unreadable state
// is treated as empty. When the state cannot be saved, once-per-session
// blocks are released, since they would otherwise repeat forever.
func (d *Decider) DecideFile(ctx context.Context, sessionID, filePath, content string, matches []match.Match) Decision {
	var out Decision
	var state *session.State
	stateLoaded := false

	loadState := func() *session.State {
		if stateLoaded {
			return state
		}
		stateLoaded = true
		st, err := d.store.Get(ctx, sessionID)
		if err != nil {
			d.logger.Warn("session state unreadable, treating as empty",
				"session", sessionID, "error", err)
			st = &session.State{}
		}
		state = st
		return state
	}

	var blocked []string
	for _, m := range matches {
		rule := m.Rule
		rd := RuleDecision{Match: m}

		switch {
		case d.envOverridden(rule):
			rd.Verdict, rd.Reason = VerdictSuppressed, ReasonEnvOverride
		case hasFileMarker(rule, content):
			rd.Verdict, rd.Reason = VerdictSuppressed, ReasonFileMarker
		case rule.SkipConditions != nil && rule.SkipConditions.SessionSkillUsed && rule.Blocks() &&
			loadState().HasSkill(rule.Name):
			rd.Verdict, rd.Reason = VerdictSuppressed, ReasonSessionUsed
		case rule.Blocks():
			rd.Verdict = VerdictBlock
			rd.Message = strings.ReplaceAll(rule.BlockMessage, FilePathPlaceholder, filePath)
			blocked = append(blocked, rule.Name)
		default:
			rd.Verdict = VerdictSuggest
		}

		out.Rules = append(out.Rules, rd)
	}

	if len(blocked) > 0 {
		if err := d.record(ctx, sessionID, loadState(), blocked); err != nil {
			d.release(&out, sessionID, err)
		}
	}
	return out
}

func (d *Decider) record(ctx context.Context, sessionID string, state *session.State, names []string) error {
	changed := false
	for _, n := range names {
		if state.AddSkill(n) {
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return d.store.Save(ctx, sessionID, state)
}

// release downgrades once-per-session blocks to allow after a failed save.
func (d *Decider) release(out *Decision, sessionID string, err error) {
	for i := range out.Rules {
		rd := &out.Rules[i]
		sc := rd.Match.Rule.SkipConditions
		if rd.Verdict != VerdictBlock || sc == nil || !sc.SessionSkillUsed {
			continue
		}
		rd.Verdict, rd.Reason, rd.Message = VerdictSuppressed, ReasonStateIO, ""
		d.logger.Warn("session state not saved, releasing guardrail",
			"session", sessionID, "skill", rd.Name(), "error", err)
	}
}

func (d *Decider) envOverridden(rule *rules.SkillRule) bool {
	if rule.SkipConditions == nil || rule.SkipConditions.EnvOverride == "" {
		return false
	}
	v, ok := d.lookup(rule.SkipConditions.EnvOverride)
	return ok && config.Truthy(v)
}

func hasFileMarker(rule *rules.SkillRule, content string) bool {
	if rule.SkipConditions == nil || content == "" {
		return false
	}
	for _, marker := range rule.SkipConditions.FileMarkers {
		if marker != "" && strings.Contains(content, marker) {
			return true
		}
	}
	return false
}
