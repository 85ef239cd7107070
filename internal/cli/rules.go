package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	skerrors "github.com/gzhole/skillgate/internal/errors"
	"github.com/gzhole/skillgate/internal/rules"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Validate and inspect skill rules",
	Long: `Validate and inspect the skill rule store.

Examples:
  skillgate rules validate                       # validate the resolved rule file
  skillgate rules validate .claude/skills/skill-rules.json
  skillgate rules list                           # list every skill and its triggers`,
}

var rulesValidateCmd = &cobra.Command{
	Use:   "validate [path]",
	Short: "Load a rule file with its packs and report errors and warnings",
	Args:  cobra.MaximumNArgs(1),
	RunE:  rulesValidate,
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List skills in the resolved rule file",
	Args:  cobra.NoArgs,
	RunE:  rulesList,
}

func init() {
	rulesCmd.AddCommand(rulesValidateCmd)
	rulesCmd.AddCommand(rulesListCmd)
	rootCmd.AddCommand(rulesCmd)
}

func rulesValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	path := ""
	if len(args) == 1 {
		path = args[0]
	} else {
		var err error
		if path, err = resolveRules(""); err != nil {
			return err
		}
	}

	rs, warnings, err := rules.Load(path)
	warn := color.New(color.FgYellow).SprintFunc()
	for _, w := range warnings {
		fmt.Fprintf(out, "%s %s\n", warn("⚠"), w)
	}
	if err != nil {
		fmt.Fprintf(out, "%s %v\n", color.New(color.FgRed).Sprint("✗"), err)
		return skerrors.NewExitError(err, skerrors.ExitFailure)
	}

	fmt.Fprintf(out, "%s %s: %d skills, version %s\n", color.New(color.FgGreen).Sprint("✅"), path, rs.Len(), rs.Version())
	return nil
}

func rulesList(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	path, err := resolveRules("")
	if err != nil {
		return err
	}
	rs, _, err := rules.Load(path)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Skills in %s:\n", path)
	fmt.Fprintln(out, strings.Repeat("─", 72))
	for _, r := range rs.Rules() {
		fmt.Fprintf(out, "  %-32s %-9s %-7s %s\n", r.Name, r.Type, r.Enforcement, r.Priority)
		if r.Description != "" {
			fmt.Fprintf(out, "       %s\n", r.Description)
		}
		if summary := triggerSummary(r); summary != "" {
			fmt.Fprintf(out, "       triggers: %s\n", summary)
		}
	}
	fmt.Fprintln(out, strings.Repeat("─", 72))
	if dir := rules.PacksDir(path); dirExists(dir) {
		fmt.Fprintf(out, "\nPacks directory: %s\n", dir)
	}
	return nil
}

func triggerSummary(r *rules.SkillRule) string {
	var parts []string
	if pt := r.PromptTriggers; pt != nil {
		if n := len(pt.Keywords); n > 0 {
			parts = append(parts, fmt.Sprintf("%d keywords", n))
		}
		if n := len(pt.IntentPatterns); n > 0 {
			parts = append(parts, fmt.Sprintf("%d intents", n))
		}
	}
	if ft := r.FileTriggers; ft != nil {
		if len(ft.PathPatterns) > 0 {
			parts = append(parts, "paths "+strings.Join(ft.PathPatterns, " "))
		}
		if n := len(ft.ContentPatterns); n > 0 {
			parts = append(parts, fmt.Sprintf("%d content patterns", n))
		}
		if ft.CreateOnly {
			parts = append(parts, "create only")
		}
	}
	return strings.Join(parts, "; ")
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
