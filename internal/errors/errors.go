package errors

import (
	"fmt"

	crdb "github.com/cockroachdb/errors"
)

// Exit codes for the hook protocol.
const (
	// ExitAllow lets the host proceed.
	ExitAllow = 0

	// ExitFailure reports a CLI usage or system error outside the hook path.
	ExitFailure = 1

	// ExitBlock tells the host to reject the tool call and surface stderr.
	ExitBlock = 2
)

// Sentinel errors.
var (
	// ErrInvalidRules indicates the rule store failed validation.
	ErrInvalidRules = crdb.New("invalid skill rules")

	// ErrRulesNotFound indicates no rule store exists at any candidate path.
	ErrRulesNotFound = crdb.New("skill rules not found")

	// ErrStateIO indicates the session state file could not be read or written.
	ErrStateIO = crdb.New("session state I/O")

	// ErrMatch indicates a single rule failed while being evaluated.
	ErrMatch = crdb.New("rule evaluation failed")
)

// Re-exported helpers from cockroachdb/errors.
var (
	New    = crdb.New
	Newf   = crdb.Newf
	Wrap   = crdb.Wrap
	Wrapf  = crdb.Wrapf
	Is     = crdb.Is
	As     = crdb.As
	Mark   = crdb.Mark
)

// ConfigError describes a rule store that cannot be used. Rule and Pattern
// are empty when the problem is document-level.
type ConfigError struct {
	Path    string
	Rule    string
	Pattern string
	Err     error
}

func (e *ConfigError) Error() string {
	msg := "skill rules"
	if e.Path != "" {
		msg += " " + e.Path
	}
	if e.Rule != "" {
		msg += fmt.Sprintf(": rule %q", e.Rule)
	}
	if e.Pattern != "" {
		msg += fmt.Sprintf(": pattern %q", e.Pattern)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Is reports ConfigErrors as ErrInvalidRules so callers can test either way.
func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidRules
}

// MatchError isolates a failure inside one rule's evaluation.
type MatchError struct {
	Rule string
	Err  error
}

func (e *MatchError) Error() string {
	return fmt.Sprintf("rule %q: %v", e.Rule, e.Err)
}

func (e *MatchError) Unwrap() error {
	return e.Err
}

// Is reports MatchErrors as ErrMatch.
func (e *MatchError) Is(target error) bool {
	return target == ErrMatch
}

// ExitError carries a process exit code out of a cobra command.
type ExitError struct {
	Err  error
	Code int
}

// NewExitError creates an ExitError. err may be nil for a silent exit.
func NewExitError(err error, code int) *ExitError {
	return &ExitError{Err: err, Code: code}
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit code %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}
