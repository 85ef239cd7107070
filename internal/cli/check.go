package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/gzhole/skillgate/internal/enforce"
	"github.com/gzhole/skillgate/internal/engine"
	skerrors "github.com/gzhole/skillgate/internal/errors"
	"github.com/gzhole/skillgate/internal/session"
)

var (
	checkSession string
	checkContent string
	checkNew     bool
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Dry-run the rules against a prompt or a file edit",
	Long: `Evaluate a prompt or a file edit against the skill rules and print what
the hook would do. Session state is kept in memory, so nothing is recorded
and guardrails always fire as if the session were new.

  skillgate check prompt "how does the layout system work?"
  skillgate check file src/services/user.py --content "session.query(User)"
  echo "add a component" | skillgate check prompt`,
}

var checkPromptCmd = &cobra.Command{
	Use:   "prompt [text...]",
	Short: "Check a prompt (read from stdin when no text is given)",
	RunE:  checkPrompt,
}

var checkFileCmd = &cobra.Command{
	Use:   "file <path>",
	Short: "Check an edit to a file",
	Args:  cobra.ExactArgs(1),
	RunE:  checkFile,
}

func init() {
	checkFileCmd.Flags().StringVar(&checkContent, "content", "", "New content of the edit (\"-\" reads stdin)")
	checkFileCmd.Flags().BoolVar(&checkNew, "new", false, "Treat the file as newly created")
	checkCmd.PersistentFlags().StringVar(&checkSession, "session", "check", "Session id to evaluate under")
	checkCmd.AddCommand(checkPromptCmd)
	checkCmd.AddCommand(checkFileCmd)
	rootCmd.AddCommand(checkCmd)
}

func dryRunEngine() *engine.Engine {
	opts := engine.Options{Store: session.NewMemoryStore(), Logger: diag}
	if path, err := resolveRules(""); err != nil {
		opts.LoadErr = err
	} else {
		opts.RulesPath = path
	}
	return engine.New(opts)
}

func readStdin(cmd *cobra.Command) (string, error) {
	stdin := cmd.InOrStdin()
	if isTerminal(stdin) {
		return "", skerrors.New("refusing to read from a terminal; pass the text as arguments")
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", skerrors.Wrap(err, "reading stdin")
	}
	return strings.TrimSpace(string(data)), nil
}

func checkPrompt(cmd *cobra.Command, args []string) error {
	text := strings.Join(args, " ")
	if text == "" {
		var err error
		if text, err = readStdin(cmd); err != nil {
			return err
		}
	}

	eng := dryRunEngine()
	if err := eng.LoadErr(); err != nil {
		return skerrors.Wrap(err, "rules not loaded")
	}
	printOutcome(cmd.OutOrStdout(), eng.EvaluatePrompt(cmd.Context(), engine.PromptInput{
		SessionID: checkSession,
		Prompt:    text,
	}))
	return nil
}

func checkFile(cmd *cobra.Command, args []string) error {
	content := checkContent
	if content == "-" {
		var err error
		if content, err = readStdin(cmd); err != nil {
			return err
		}
	}

	eng := dryRunEngine()
	if err := eng.LoadErr(); err != nil {
		return skerrors.Wrap(err, "rules not loaded")
	}
	cwd, _ := os.Getwd()
	printOutcome(cmd.OutOrStdout(), eng.EvaluateFile(cmd.Context(), engine.FileInput{
		SessionID:  checkSession,
		ToolName:   "Edit",
		FilePath:   args[0],
		Cwd:        cwd,
		IsNewFile:  checkNew,
		NewContent: content,
	}))
	return nil
}

func printOutcome(w io.Writer, out engine.Outcome) {
	var label string
	switch out.Action {
	case engine.ActionBlock:
		label = color.New(color.FgRed, color.Bold).Sprint("BLOCK")
	case engine.ActionAdvise:
		label = color.New(color.FgYellow).Sprint("ADVISE")
	default:
		label = color.New(color.FgGreen).Sprint("ALLOW")
	}
	fmt.Fprintf(w, "Decision: %s\n", label)

	for _, rd := range out.Decision.Rules {
		kinds := make([]string, 0, len(rd.Match.Events))
		for _, k := range rd.Match.Kinds() {
			kinds = append(kinds, string(k))
		}
		line := fmt.Sprintf("  %-10s %s (%s)", rd.Verdict, rd.Name(), strings.Join(kinds, ", "))
		if rd.Verdict == enforce.VerdictSuppressed {
			line += " skipped: " + rd.Reason
		}
		fmt.Fprintln(w, line)
	}

	switch out.Action {
	case engine.ActionBlock:
		fmt.Fprintln(w)
		fmt.Fprintln(w, out.BlockMessage)
	case engine.ActionAdvise:
		fmt.Fprintln(w)
		fmt.Fprintln(w, out.Context)
	}
}
