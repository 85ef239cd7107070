package cli

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/gzhole/skillgate/internal/engine"
	skerrors "github.com/gzhole/skillgate/internal/errors"
	"github.com/gzhole/skillgate/internal/hook"
)

var hookEvent string

var hookCmd = &cobra.Command{
	Use:   "hook",
	Short: "Hook handler for Claude Code prompt and file-edit events",
	Long: `Reads a hook JSON payload from stdin, evaluates it against the skill
rules and responds the way the host expects.

  UserPromptSubmit: advisory context as JSON on stdout, always exit 0
  PreToolUse:       exit 2 with the block message on stderr to block,
                    otherwise exit 0 (with advisory JSON when skills apply)

The event is auto-detected from the payload; --event forces it.
Set SKILLGATE_BYPASS=1 to allow everything.

Setup:
  skillgate setup claude-code`,
	Args: cobra.NoArgs,
	RunE: hookCommand,
}

func init() {
	hookCmd.Flags().StringVar(&hookEvent, "event", "", "Force the event kind: prompt or file")
	rootCmd.AddCommand(hookCmd)
}

func hookCommand(cmd *cobra.Command, args []string) error {
	stdin := cmd.InOrStdin()
	if isTerminal(stdin) {
		return skerrors.NewExitError(
			skerrors.New("hook reads a JSON payload on stdin; pipe one in or use `skillgate check`"),
			skerrors.ExitFailure)
	}

	// Drain stdin even when bypassed so the host never sees a broken pipe.
	data, err := io.ReadAll(stdin)
	if cfg.Bypass {
		return nil
	}
	if err != nil {
		diag.Warn("could not read hook input", "error", err)
		return nil
	}

	payload := hook.Decode(data)
	if payload.Raw {
		diag.Debug("hook input is not a JSON payload, treating it as a prompt")
	}

	kind := eventKind(payload)
	if kind == hook.KindUnsupported {
		diag.Debug("unsupported hook event", "event", payload.HookEventName, "tool", payload.ToolName)
		return nil
	}

	eng, cleanup := newEngine(payload.Cwd)
	defer cleanup()

	var out engine.Outcome
	switch kind {
	case hook.KindPrompt:
		out = eng.EvaluatePrompt(cmd.Context(), payload.PromptInput())
	case hook.KindFile:
		out = eng.EvaluateFile(cmd.Context(), payload.FileInput())
	}

	code, err := hook.Respond(cmd.OutOrStdout(), cmd.ErrOrStderr(), kind, out)
	if err != nil {
		diag.Warn("could not write hook response", "error", err)
	}
	if code != skerrors.ExitAllow {
		return skerrors.NewExitError(nil, code)
	}
	return nil
}

func eventKind(p *hook.Payload) hook.Kind {
	switch hookEvent {
	case "prompt":
		return hook.KindPrompt
	case "file":
		if p.ToolInput.FilePath == "" {
			return hook.KindUnsupported
		}
		return hook.KindFile
	default:
		return p.Kind()
	}
}
