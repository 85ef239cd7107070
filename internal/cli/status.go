package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/gzhole/skillgate/internal/config"
	"github.com/gzhole/skillgate/internal/hook"
	"github.com/gzhole/skillgate/internal/rules"
	"github.com/gzhole/skillgate/internal/session"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show skillgate status: hooks, rules, session state, audit log",
	Long: `Check whether skillgate is active: which Claude Code hooks are installed,
which rule file would be used, and where session state and the audit log live.

  skillgate status`,
	Args: cobra.NoArgs,
	RunE: statusCommand,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func statusCommand(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, "═══════════════════════════════════════════════════════")
	fmt.Fprintln(out, "  skillgate Status")
	fmt.Fprintln(out, "═══════════════════════════════════════════════════════")
	fmt.Fprintln(out)

	binPath, err := os.Executable()
	if err != nil {
		binPath = "unknown"
	}
	fmt.Fprintf(out, "  Binary:    %s (%s)\n", binPath, Version)
	fmt.Fprintf(out, "  Config:    %s\n", config.ConfigDir())
	if cfg.Bypass {
		fmt.Fprintln(out, "  ⚠  SKILLGATE_BYPASS is set: every event is allowed")
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, "─── Claude Code Hooks ─────────────────────────────────")
	checkClaudeHooks(out, claudeSettingsPath())
	fmt.Fprintln(out)

	fmt.Fprintln(out, "─── Rules ─────────────────────────────────────────────")
	checkRules(out)
	fmt.Fprintln(out)

	fmt.Fprintln(out, "─── Session State ─────────────────────────────────────")
	ids, err := session.NewFileStore(cfg.StateDir).List()
	switch {
	case err != nil:
		fmt.Fprintf(out, "  ⚠  %s: %v\n", cfg.StateDir, err)
	default:
		fmt.Fprintf(out, "  ✅ %s (%d sessions)\n", cfg.StateDir, len(ids))
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, "─── Audit Log ─────────────────────────────────────────")
	checkAuditLog(out)
	fmt.Fprintln(out)

	return nil
}

func checkClaudeHooks(out io.Writer, settingsPath string) {
	settings, err := readClaudeSettings(settingsPath)
	if err != nil {
		fmt.Fprintf(out, "  ⚠  %v\n", err)
		return
	}
	hooks, _ := settings["hooks"].(map[string]interface{})
	for _, event := range []string{hook.EventUserPromptSubmit, hook.EventPreToolUse} {
		entries, _ := hooks[event].([]interface{})
		if containsSkillgateEntry(entries) {
			fmt.Fprintf(out, "  ✅ %s: hook active (%s)\n", event, settingsPath)
		} else {
			fmt.Fprintf(out, "  ⬚  %s: not configured\n", event)
		}
	}
}

func checkRules(out io.Writer) {
	path, err := resolveRules("")
	if err != nil {
		fmt.Fprintf(out, "  ⬚  No rule file found; every event is allowed\n")
		for _, c := range rules.CandidatePaths(cfg.Rules, os.Getenv, mustGetwd()) {
			fmt.Fprintf(out, "       searched %s\n", c)
		}
		return
	}

	rs, warnings, err := rules.Load(path)
	if err != nil {
		fmt.Fprintf(out, "  ⚠  %s: %v\n", path, err)
		fmt.Fprintln(out, "       matching is disabled until this is fixed (fail open)")
		return
	}
	fmt.Fprintf(out, "  ✅ %s (%d skills, %d warnings)\n", path, rs.Len(), len(warnings))

	_, infos, _, _ := rules.LoadPacks(rules.PacksDir(path), &rules.Document{Skills: map[string]*rules.SkillRule{}})
	if len(infos) > 0 {
		enabled := 0
		for _, info := range infos {
			if info.Enabled {
				enabled++
			}
		}
		fmt.Fprintf(out, "  ✅ Rule packs: %d installed, %d enabled\n", len(infos), enabled)
	}
}

func checkAuditLog(out io.Writer) {
	path := cfg.AuditLog
	if !cfg.Audit || path == "" {
		fmt.Fprintln(out, "  ⬚  Audit logging disabled")
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		fmt.Fprintf(out, "  ⬚  %s (not yet created; will start on first event)\n", path)
		return
	}

	sizeKB := info.Size() / 1024
	if sizeKB == 0 {
		fmt.Fprintf(out, "  ✅ %s (<1 KB)\n", path)
	} else {
		fmt.Fprintf(out, "  ✅ %s (%d KB)\n", path, sizeKB)
	}
}

func mustGetwd() string {
	wd, _ := os.Getwd()
	return wd
}
