package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	skerrors "github.com/gzhole/skillgate/internal/errors"
	"github.com/gzhole/skillgate/internal/hook"
)

// hookCommandLine is what the host runs for every hooked event.
const hookCommandLine = "skillgate hook"

// fileToolMatcher selects the file-editing tools for PreToolUse.
const fileToolMatcher = "Edit|MultiEdit|Write"

var disableFlag bool

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Install skillgate hooks into an assistant's settings",
	Long: `Install or remove skillgate hooks.

  skillgate setup claude-code           # install UserPromptSubmit and PreToolUse hooks
  skillgate setup claude-code --disable # remove them`,
}

var setupClaudeCodeCmd = &cobra.Command{
	Use:   "claude-code",
	Short: "Set up skillgate for Claude Code (UserPromptSubmit + PreToolUse hooks)",
	Long: `Install or remove the hooks that run skillgate on every prompt and on every
Edit, MultiEdit and Write tool call. Settings live in ~/.claude/settings.json,
or $CLAUDE_CONFIG_DIR/settings.json when that is set.

  skillgate setup claude-code             # enable hooks
  skillgate setup claude-code --disable   # disable hooks`,
	Args: cobra.NoArgs,
	RunE: setupClaudeCodeCommand,
}

func init() {
	setupClaudeCodeCmd.Flags().BoolVar(&disableFlag, "disable", false, "Remove skillgate hooks")
	setupCmd.AddCommand(setupClaudeCodeCmd)
	rootCmd.AddCommand(setupCmd)
}

// claudeHookEntries are the entries inserted per hook event.
func claudeHookEntries() map[string]map[string]interface{} {
	handler := []interface{}{
		map[string]interface{}{
			"type":    "command",
			"command": hookCommandLine,
		},
	}
	return map[string]map[string]interface{}{
		hook.EventUserPromptSubmit: {"hooks": handler},
		hook.EventPreToolUse:       {"matcher": fileToolMatcher, "hooks": handler},
	}
}

func claudeSettingsPath() string {
	if dir := os.Getenv("CLAUDE_CONFIG_DIR"); dir != "" {
		return filepath.Join(dir, "settings.json")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.Getenv("HOME")
	}
	return filepath.Join(home, ".claude", "settings.json")
}

func setupClaudeCodeCommand(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	settingsPath := claudeSettingsPath()

	if disableFlag {
		return disableClaudeCodeHooks(out, settingsPath)
	}

	fmt.Fprintln(out, "═══════════════════════════════════════════════════════")
	fmt.Fprintln(out, "  skillgate + Claude Code (UserPromptSubmit + PreToolUse)")
	fmt.Fprintln(out, "═══════════════════════════════════════════════════════")
	fmt.Fprintln(out)

	if binPath, err := exec.LookPath("skillgate"); err != nil {
		fmt.Fprintln(out, "⚠  skillgate not found in PATH; the hooks will fail until it is installed.")
	} else {
		fmt.Fprintf(out, "✅ skillgate found: %s\n", binPath)
	}

	settings, err := readClaudeSettings(settingsPath)
	if err != nil {
		return err
	}

	hooks := getOrCreateMap(settings, "hooks")
	added := 0
	for _, event := range []string{hook.EventUserPromptSubmit, hook.EventPreToolUse} {
		entries := getOrCreateSlice(hooks, event)
		if containsSkillgateEntry(entries) {
			continue
		}
		hooks[event] = append(entries, claudeHookEntries()[event])
		added++
	}

	if added == 0 {
		fmt.Fprintf(out, "✅ Claude Code hooks already configured: %s\n", settingsPath)
		fmt.Fprintln(out)
		fmt.Fprintln(out, "To disable: skillgate setup claude-code --disable")
		return nil
	}

	settings["hooks"] = hooks
	if err := writeClaudeSettings(settingsPath, settings); err != nil {
		return err
	}

	fmt.Fprintf(out, "✅ Hooks installed: %s\n", settingsPath)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "How it works:")
	fmt.Fprintln(out, "  1. On each prompt, `skillgate hook` suggests matching skills as context")
	fmt.Fprintln(out, "  2. Before Edit, MultiEdit or Write, `skillgate hook` checks file rules")
	fmt.Fprintln(out, "  3. A guardrail blocks the edit once per session until its skill is used")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "To disable: skillgate setup claude-code --disable")
	return nil
}

func disableClaudeCodeHooks(out io.Writer, settingsPath string) error {
	if _, err := os.Stat(settingsPath); os.IsNotExist(err) {
		fmt.Fprintln(out, "ℹ  No settings.json found for Claude Code; nothing to disable.")
		return nil
	}

	settings, err := readClaudeSettings(settingsPath)
	if err != nil {
		return err
	}

	hooks, ok := settings["hooks"].(map[string]interface{})
	if !ok {
		fmt.Fprintln(out, "ℹ  Claude Code settings.json has no hooks; nothing to disable.")
		return nil
	}

	removed := false
	for _, event := range []string{hook.EventUserPromptSubmit, hook.EventPreToolUse} {
		entries, _ := hooks[event].([]interface{})
		var kept []interface{}
		for _, entry := range entries {
			if isSkillgateHookEntry(entry) {
				removed = true
				continue
			}
			kept = append(kept, entry)
		}
		if len(kept) == 0 {
			delete(hooks, event)
		} else {
			hooks[event] = kept
		}
	}

	if !removed {
		fmt.Fprintln(out, "ℹ  skillgate hooks not found in Claude Code settings; nothing to disable.")
		return nil
	}

	if len(hooks) == 0 {
		delete(settings, "hooks")
	} else {
		settings["hooks"] = hooks
	}

	if err := writeClaudeSettings(settingsPath, settings); err != nil {
		return err
	}

	fmt.Fprintln(out, "✅ skillgate hooks disabled for Claude Code")
	fmt.Fprintf(out, "   Settings: %s\n", settingsPath)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Re-enable anytime with: skillgate setup claude-code")
	return nil
}

func containsSkillgateEntry(entries []interface{}) bool {
	for _, e := range entries {
		if isSkillgateHookEntry(e) {
			return true
		}
	}
	return false
}

// isSkillgateHookEntry reports whether a hook entry runs skillgate, by bare
// name or absolute path.
func isSkillgateHookEntry(entry interface{}) bool {
	m, ok := entry.(map[string]interface{})
	if !ok {
		return false
	}
	subHooks, _ := m["hooks"].([]interface{})
	for _, h := range subHooks {
		hm, ok := h.(map[string]interface{})
		if !ok {
			continue
		}
		command, _ := hm["command"].(string)
		if command == hookCommandLine || strings.HasSuffix(command, "/"+hookCommandLine) {
			return true
		}
	}
	return false
}

func readClaudeSettings(path string) (map[string]interface{}, error) {
	settings := make(map[string]interface{})
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, skerrors.Wrapf(err, "failed to read %s", path)
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &settings); err != nil {
			return nil, skerrors.Wrapf(err, "failed to parse %s", path)
		}
	}
	return settings, nil
}

func writeClaudeSettings(path string, settings map[string]interface{}) error {
	out, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return skerrors.Wrap(err, "failed to marshal settings")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return skerrors.Wrapf(err, "failed to create %s", filepath.Dir(path))
	}
	if err := os.WriteFile(path, append(out, '\n'), 0644); err != nil {
		return skerrors.Wrapf(err, "failed to write %s", path)
	}
	return nil
}

func getOrCreateMap(parent map[string]interface{}, key string) map[string]interface{} {
	if v, ok := parent[key].(map[string]interface{}); ok {
		return v
	}
	m := make(map[string]interface{})
	parent[key] = m
	return m
}

func getOrCreateSlice(parent map[string]interface{}, key string) []interface{} {
	if v, ok := parent[key].([]interface{}); ok {
		return v
	}
	return nil
}
