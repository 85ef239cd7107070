// Package errors provides error handling conventions for skillgate.
//
// It re-exports the wrapping helpers from github.com/cockroachdb/errors so
// callers need a single import, defines sentinel errors for the failure
// kinds the evaluator distinguishes, and carries the exit codes the hook
// protocol understands.
//
// # Fail-open
//
// Every error kind here resolves to "allow" at the hook boundary. The only
// nonzero exit a host ever sees for a well-formed event is [ExitBlock],
// and that comes from a rule author's block message, never from an error:
//
//	var cfgErr *skerrors.ConfigError
//	if skerrors.As(err, &cfgErr) {
//	    logger.Error("rules unusable, allowing", "rule", cfgErr.Rule, "error", err)
//	}
package errors
