// Package engine runs one evaluation end to end: it matches a prompt or a
// file event against the loaded rules, lets the enforcer decide, renders
// the advisory banner and writes the audit event.
//
// Every failure resolves to allow. A rule store that failed to load turns
// the engine into a no-op for the lifetime of the process.
package engine

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gzhole/skillgate/internal/enforce"
	skerrors "github.com/gzhole/skillgate/internal/errors"
	"github.com/gzhole/skillgate/internal/logger"
	"github.com/gzhole/skillgate/internal/logging"
	"github.com/gzhole/skillgate/internal/match"
	"github.com/gzhole/skillgate/internal/rules"
	"github.com/gzhole/skillgate/internal/session"
)

type Action string

const (
	ActionAllow  Action = "allow"
	ActionAdvise Action = "advise"
	ActionBlock  Action = "block"
)

// Audit event kinds.
const (
	EventPrompt = "prompt"
	EventFile   = "file"
)

// ToolWrite is the tool that creates files; a Write to a missing path is a
// new file.
const ToolWrite = "Write"

type PromptInput struct {
	SessionID string
	Prompt    string
}

type FileInput struct {
	SessionID string
	ToolName  string
	FilePath  string
	// Cwd resolves a relative FilePath and is the fallback project root.
	Cwd string
	// IsNewFile forces creation semantics. Otherwise it is derived from
	// ToolName and whether FilePath exists.
	IsNewFile  bool
	NewContent string
	OldContent string
}

// Outcome is what the host is told.
type Outcome struct {
	Action Action
	// Context is the advisory banner, set when Action is advise.
	Context string
	// BlockMessage is set when Action is block.
	BlockMessage string
	// Skills names the advised or blocking skills.
	Skills   []string
	Decision enforce.Decision
}

type Options struct {
	// RulesPath is loaded when Rules is nil.
	RulesPath string
	Rules     *rules.RuleSet
	// LoadErr short-circuits loading, for callers that failed to resolve
	// a rules path.
	LoadErr error

	Store  session.Store
	Audit  *logger.AuditLogger
	Logger *slog.Logger

	// LookupEnv defaults to os.LookupEnv.
	LookupEnv func(string) (string, bool)
	// ReadFile defaults to os.ReadFile.
	ReadFile func(string) ([]byte, error)
}

type Engine struct {
	rules    *rules.RuleSet
	loadErr  error
	decider  *enforce.Decider
	audit    *logger.AuditLogger
	logger   *slog.Logger
	env      func(string) (string, bool)
	readFile func(string) ([]byte, error)
}

// New builds an engine. It never fails: a load error is kept and every
// later evaluation allows.
func New(opts Options) *Engine {
	e := &Engine{
		rules:    opts.Rules,
		loadErr:  opts.LoadErr,
		audit:    opts.Audit,
		logger:   opts.Logger,
		env:      opts.LookupEnv,
		readFile: opts.ReadFile,
	}
	if e.logger == nil {
		e.logger = logging.NewDiscard()
	}
	if e.env == nil {
		e.env = os.LookupEnv
	}
	if e.readFile == nil {
		e.readFile = os.ReadFile
	}
	store := opts.Store
	if store == nil {
		store = session.NewMemoryStore()
	}
	e.decider = enforce.NewDecider(store, e.env, e.logger)

	if e.rules == nil && e.loadErr == nil {
		if opts.RulesPath == "" {
			e.loadErr = skerrors.Wrap(skerrors.ErrRulesNotFound, "no rules path")
		} else {
			var warnings []rules.Warning
			e.rules, warnings, e.loadErr = rules.Load(opts.RulesPath)
			for _, w := range warnings {
				e.logger.Info("rule warning", "rule", w.Rule, "detail", w.Message)
			}
		}
	}
	return e
}

// LoadErr is the error that disabled matching, if any.
func (e *Engine) LoadErr() error { return e.loadErr }

func (e *Engine) Rules() *rules.RuleSet { return e.rules }

// EvaluatePrompt suggests skills for a prompt. It never blocks.
func (e *Engine) EvaluatePrompt(ctx context.Context, in PromptInput) Outcome {
	ev := logger.AuditEvent{SessionID: in.SessionID, Event: EventPrompt, Prompt: in.Prompt}

	if e.disabled(&ev) {
		return e.finish(ev, Outcome{Action: ActionAllow})
	}

	matches, errs := match.Prompt(e.rules, in.Prompt)
	e.logMatchErrors(errs)

	decision := e.decider.DecidePrompt(matches)
	out := Outcome{Action: ActionAllow, Decision: decision}
	if adv := decision.Advisories(); len(adv) > 0 {
		out.Action = ActionAdvise
		out.Context = FormatBanner(adv)
		out.Skills = decisionNames(adv)
	}
	return e.finish(ev, out)
}

// EvaluateFile decides a file tool call. The file's current content on
// disk is read for skip markers.
func (e *Engine) EvaluateFile(ctx context.Context, in FileInput) Outcome {
	ev := logger.AuditEvent{
		SessionID: in.SessionID,
		Event:     EventFile,
		ToolName:  in.ToolName,
		FilePath:  in.FilePath,
	}

	if e.disabled(&ev) || in.FilePath == "" {
		return e.finish(ev, Outcome{Action: ActionAllow})
	}

	absPath := in.FilePath
	if !filepath.IsAbs(absPath) && in.Cwd != "" {
		absPath = filepath.Join(in.Cwd, absPath)
	}
	onDisk, exists := e.currentContent(absPath)

	fe := match.FileEvent{
		Path:       in.FilePath,
		RelPath:    e.relPath(in.FilePath, in.Cwd),
		IsNewFile:  in.IsNewFile || (in.ToolName == ToolWrite && !exists),
		NewContent: in.NewContent,
		OldContent: in.OldContent,
	}
	matches, errs := match.File(e.rules, fe)
	e.logMatchErrors(errs)

	markerText := onDisk
	if in.NewContent != "" {
		markerText += "\n" + in.NewContent
	}
	decision := e.decider.DecideFile(ctx, in.SessionID, in.FilePath, markerText, matches)

	out := Outcome{Action: ActionAllow, Decision: decision}
	switch {
	case decision.Blocked():
		out.Action = ActionBlock
		out.BlockMessage = strings.Join(decision.BlockMessages(), "\n\n")
		for _, rd := range decision.Rules {
			if rd.Verdict == enforce.VerdictBlock {
				out.Skills = append(out.Skills, rd.Name())
			}
		}
	case len(decision.Advisories()) > 0:
		adv := decision.Advisories()
		out.Action = ActionAdvise
		out.Context = FormatBanner(adv)
		out.Skills = decisionNames(adv)
	}
	return e.finish(ev, out)
}

// disabled reports whether matching is off, logging and recording why.
func (e *Engine) disabled(ev *logger.AuditEvent) bool {
	if e.loadErr == nil {
		return false
	}
	if skerrors.Is(e.loadErr, skerrors.ErrRulesNotFound) {
		e.logger.Info("no skill rules found; allowing", "error", e.loadErr)
	} else {
		e.logger.Error("skill rules invalid; allowing everything", "error", e.loadErr)
	}
	ev.Error = e.loadErr.Error()
	return true
}

func (e *Engine) logMatchErrors(errs []error) {
	for _, err := range errs {
		e.logger.Warn("rule skipped", "error", err)
	}
}

func (e *Engine) finish(ev logger.AuditEvent, out Outcome) Outcome {
	ev.Decision = string(out.Action)
	ev.Skills = out.Skills
	for _, rd := range out.Decision.Rules {
		if rd.Verdict == enforce.VerdictSuppressed {
			ev.Suppressed = append(ev.Suppressed, rd.Name()+":"+rd.Reason)
		}
	}
	if e.audit != nil {
		if err := e.audit.Log(ev); err != nil {
			e.logger.Warn("audit log failed", "error", err)
		}
	}
	return out
}

// currentContent reads path, treating a missing or unreadable file as
// empty.
func (e *Engine) currentContent(path string) (string, bool) {
	data, err := e.readFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			e.logger.Debug("file unreadable for markers", "path", path, "error", err)
		}
		return "", !os.IsNotExist(err)
	}
	return string(data), true
}

// relPath expresses path relative to the project root, preferring
// CLAUDE_PROJECT_DIR over cwd. It is empty when path lies outside.
func (e *Engine) relPath(path, cwd string) string {
	if !filepath.IsAbs(path) {
		rel := filepath.Clean(path)
		if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return ""
		}
		return rel
	}
	var roots []string
	if dir, ok := e.env(rules.EnvProjectDir); ok && dir != "" {
		roots = append(roots, dir)
	}
	if cwd != "" {
		roots = append(roots, cwd)
	}
	for _, root := range roots {
		rel, err := filepath.Rel(root, path)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		return rel
	}
	return ""
}

func decisionNames(ds []enforce.RuleDecision) []string {
	names := make([]string, len(ds))
	for i, d := range ds {
		names[i] = d.Name()
	}
	return names
}
