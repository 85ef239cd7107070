package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	skerrors "github.com/gzhole/skillgate/internal/errors"
	"github.com/gzhole/skillgate/internal/hook"
)

const cliRules = `{
  "version": "1.0",
  "skills": {
    "frontend-dev-guidelines": {
      "type": "domain",
      "enforcement": "suggest",
      "priority": "high",
      "promptTriggers": {"keywords": ["layout"]}
    },
    "database-verification": {
      "type": "guardrail",
      "enforcement": "block",
      "priority": "critical",
      "blockMessage": "Use the database-verification skill before editing {file_path}",
      "fileTriggers": {
        "pathPatterns": ["src/**/*.py"],
        "contentPatterns": ["session\\.(query|add|commit)"]
      },
      "skipConditions": {"sessionSkillUsed": true}
    }
  }
}`

type env struct {
	rulesPath string
	stateDir  string
	auditLog  string
}

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

func newEnv(t *testing.T, rulesBody string) env {
	t.Helper()
	dir := t.TempDir()
	e := env{
		rulesPath: filepath.Join(dir, "skill-rules.json"),
		stateDir:  filepath.Join(dir, "state"),
		auditLog:  filepath.Join(dir, "audit.jsonl"),
	}
	if err := os.WriteFile(e.rulesPath, []byte(rulesBody), 0o644); err != nil {
		t.Fatal(err)
	}
	for _, k := range []string{"SKILLGATE_BYPASS", "SKILLGATE_RULES", "SKILLGATE_STATE_DIR", "SKILLGATE_AUDIT_LOG", "SKILLGATE_AUDIT", "CLAUDE_PROJECT_DIR", "CLAUDE_PLUGIN_ROOT"} {
		t.Setenv(k, "")
	}
	return e
}

func (e env) args(args ...string) []string {
	return append(args, "--rules", e.rulesPath, "--state-dir", e.stateDir, "--log", e.auditLog)
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func runCLI(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	resetFlags(rootCmd)

	var stdout, stderr bytes.Buffer
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return stdout.String(), stderr.String(), err
}

func exitCode(err error) int {
	if err == nil {
		return skerrors.ExitAllow
	}
	var exitErr *skerrors.ExitError
	if skerrors.As(err, &exitErr) {
		return exitErr.Code
	}
	return skerrors.ExitFailure
}

func TestHook_PromptAdvisory(t *testing.T) {
	e := newEnv(t, cliRules)
	payload := `{"session_id":"S1","prompt":"how does the layout system work?","cwd":"/p","hook_event_name":"UserPromptSubmit"}`

	stdout, _, err := runCLI(t, payload, e.args("hook")...)
	if err != nil {
		t.Fatalf("hook failed: %v", err)
	}

	var out hook.Output
	if err := json.Unmarshal([]byte(stdout), &out); err != nil {
		t.Fatalf("stdout is not hook JSON: %v\n%s", err, stdout)
	}
	if out.HookSpecificOutput.HookEventName != hook.EventUserPromptSubmit {
		t.Errorf("unexpected event name %q", out.HookSpecificOutput.HookEventName)
	}
	if !strings.Contains(out.HookSpecificOutput.AdditionalContext, "frontend-dev-guidelines") {
		t.Errorf("advisory does not name the skill:\n%s", out.HookSpecificOutput.AdditionalContext)
	}
}

func TestHook_FileBlocksOncePerSession(t *testing.T) {
	e := newEnv(t, cliRules)
	payload := `{"session_id":"S1","tool_name":"Edit","tool_input":{"file_path":"src/services/user.py","old_string":"","new_string":"session.query(User).all()"}}`

	_, stderr, err := runCLI(t, payload, e.args("hook")...)
	if code := exitCode(err); code != skerrors.ExitBlock {
		t.Fatalf("first event: expected exit %d, got %d (%v)", skerrors.ExitBlock, code, err)
	}
	if !strings.Contains(stderr, "Use the database-verification skill before editing src/services/user.py") {
		t.Errorf("block message missing from stderr: %q", stderr)
	}

	stdout, stderr, err := runCLI(t, payload, e.args("hook")...)
	if err != nil {
		t.Errorf("repeat event: expected allow, got %v", err)
	}
	if stdout != "" || stderr != "" {
		t.Errorf("repeat event: expected no output, got stdout=%q stderr=%q", stdout, stderr)
	}

	fresh := strings.Replace(payload, `"S1"`, `"S2"`, 1)
	if _, _, err := runCLI(t, fresh, e.args("hook")...); exitCode(err) != skerrors.ExitBlock {
		t.Errorf("new session: expected block, got %v", err)
	}
}

func TestHook_BrokenRulesFailOpen(t *testing.T) {
	broken := strings.Replace(cliRules, `"blockMessage": "Use the database-verification skill before editing {file_path}",`, "", 1)
	e := newEnv(t, broken)
	payload := `{"session_id":"S1","tool_name":"Edit","tool_input":{"file_path":"src/a.py","new_string":"session.add(x)"}}`

	stdout, _, err := runCLI(t, payload, e.args("hook")...)
	if err != nil {
		t.Errorf("expected allow with broken rules, got %v", err)
	}
	if stdout != "" {
		t.Errorf("expected no advisory, got %q", stdout)
	}
}

func TestHook_Bypass(t *testing.T) {
	e := newEnv(t, cliRules)
	t.Setenv("SKILLGATE_BYPASS", "1")
	payload := `{"session_id":"S1","tool_name":"Edit","tool_input":{"file_path":"src/a.py","new_string":"session.add(x)"}}`

	stdout, stderr, err := runCLI(t, payload, e.args("hook")...)
	if err != nil || stdout != "" || stderr != "" {
		t.Errorf("expected silent allow under bypass, got err=%v stdout=%q stderr=%q", err, stdout, stderr)
	}
}

func TestHook_UnparsableInputIsRawPrompt(t *testing.T) {
	e := newEnv(t, cliRules)
	stdout, _, err := runCLI(t, `{"prompt": fix the layout`, e.args("hook")...)
	if err != nil {
		t.Fatalf("expected allow for broken JSON, got %v", err)
	}
	if !strings.Contains(stdout, "frontend-dev-guidelines") {
		t.Errorf("expected broken JSON to be matched as a prompt, got %q", stdout)
	}
}

func TestHook_WritesAuditLog(t *testing.T) {
	e := newEnv(t, cliRules)
	if _, _, err := runCLI(t, "fix the layout", e.args("hook")...); err != nil {
		t.Fatal(err)
	}

	stdout, _, err := runCLI(t, "", e.args("log", "--decision", "advise")...)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(stdout, "frontend-dev-guidelines") {
		t.Errorf("expected the advise event in the log view:\n%s", stdout)
	}
}

func TestCheckPrompt(t *testing.T) {
	e := newEnv(t, cliRules)
	stdout, _, err := runCLI(t, "", e.args("check", "prompt", "fix", "the", "layout")...)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(stdout, "Decision: ADVISE") || !strings.Contains(stdout, "frontend-dev-guidelines (keyword)") {
		t.Errorf("unexpected check output:\n%s", stdout)
	}
}

func TestCheckFile_DoesNotRecordState(t *testing.T) {
	e := newEnv(t, cliRules)
	for i := 0; i < 2; i++ {
		stdout, _, err := runCLI(t, "", e.args("check", "file", "src/services/user.py", "--content", "session.commit()")...)
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(stdout, "Decision: BLOCK") {
			t.Errorf("run %d: expected BLOCK, got:\n%s", i, stdout)
		}
	}
	if _, err := os.Stat(e.stateDir); !os.IsNotExist(err) {
		t.Errorf("check must not write session state, stat err=%v", err)
	}
}

func TestRulesValidate(t *testing.T) {
	e := newEnv(t, cliRules)
	stdout, _, err := runCLI(t, "", e.args("rules", "validate")...)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(stdout, "2 skills") {
		t.Errorf("unexpected validate output:\n%s", stdout)
	}

	bad := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(bad, []byte(`{"version":"1","skills":{"x":{"promptTriggers":{"intentPatterns":["(["]}}}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := runCLI(t, "", e.args("rules", "validate", bad)...); exitCode(err) != skerrors.ExitFailure {
		t.Errorf("expected exit 1 for an invalid regex, got %v", err)
	}
}

func TestSessionShowAndClear(t *testing.T) {
	e := newEnv(t, cliRules)
	payload := `{"session_id":"S1","tool_name":"Write","tool_input":{"file_path":"src/db.py","content":"session.add(u)"}}`
	if _, _, err := runCLI(t, payload, e.args("hook")...); exitCode(err) != skerrors.ExitBlock {
		t.Fatalf("expected block, got %v", err)
	}

	stdout, _, err := runCLI(t, "", e.args("session", "show", "S1")...)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(stdout, "database-verification") {
		t.Errorf("expected recorded skill in session state:\n%s", stdout)
	}

	if _, _, err := runCLI(t, "", e.args("session", "clear", "S1")...); err != nil {
		t.Fatal(err)
	}
	if _, _, err := runCLI(t, payload, e.args("hook")...); exitCode(err) != skerrors.ExitBlock {
		t.Errorf("expected block again after clear, got %v", err)
	}
}

func TestPackEnableDisable(t *testing.T) {
	e := newEnv(t, cliRules)
	packs := filepath.Join(filepath.Dir(e.rulesPath), "skill-rules.d")
	if err := os.MkdirAll(packs, 0o755); err != nil {
		t.Fatal(err)
	}
	pack := "version: \"1\"\ndescription: extra\nskills:\n  api-docs:\n    promptTriggers:\n      keywords: [openapi]\n"
	if err := os.WriteFile(filepath.Join(packs, "docs.yaml"), []byte(pack), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, _, err := runCLI(t, "", e.args("pack", "disable", "docs")...); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(packs, "_docs.yaml")); err != nil {
		t.Errorf("expected disabled pack file: %v", err)
	}
	stdout, _, _ := runCLI(t, "", e.args("check", "prompt", "openapi")...)
	if !strings.Contains(stdout, "Decision: ALLOW") {
		t.Errorf("disabled pack should not match:\n%s", stdout)
	}

	if _, _, err := runCLI(t, "", e.args("pack", "enable", "docs")...); err != nil {
		t.Fatal(err)
	}
	stdout, _, _ = runCLI(t, "", e.args("check", "prompt", "openapi")...)
	if !strings.Contains(stdout, "api-docs") {
		t.Errorf("enabled pack should match:\n%s", stdout)
	}

	if _, _, err := runCLI(t, "", e.args("pack", "enable", "missing")...); err == nil {
		t.Error("expected an error for an unknown pack")
	}
}

func TestSetupClaudeCode(t *testing.T) {
	e := newEnv(t, cliRules)
	claudeDir := t.TempDir()
	t.Setenv("CLAUDE_CONFIG_DIR", claudeDir)
	settingsPath := filepath.Join(claudeDir, "settings.json")
	if err := os.WriteFile(settingsPath, []byte(`{"model":"opus","hooks":{"PreToolUse":[{"matcher":"Bash","hooks":[{"type":"command","command":"other"}]}]}}`), 0o644); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		if _, _, err := runCLI(t, "", e.args("setup", "claude-code")...); err != nil {
			t.Fatal(err)
		}
	}

	settings, err := readClaudeSettings(settingsPath)
	if err != nil {
		t.Fatal(err)
	}
	hooks := settings["hooks"].(map[string]interface{})
	pre := hooks[hook.EventPreToolUse].([]interface{})
	if len(pre) != 2 {
		t.Errorf("expected the existing and one skillgate PreToolUse entry, got %d", len(pre))
	}
	if m := pre[1].(map[string]interface{}); m["matcher"] != fileToolMatcher {
		t.Errorf("unexpected matcher %v", m["matcher"])
	}
	if prompt := hooks[hook.EventUserPromptSubmit].([]interface{}); len(prompt) != 1 {
		t.Errorf("expected one UserPromptSubmit entry, got %d", len(prompt))
	}

	if _, _, err := runCLI(t, "", e.args("setup", "claude-code", "--disable")...); err != nil {
		t.Fatal(err)
	}
	settings, err = readClaudeSettings(settingsPath)
	if err != nil {
		t.Fatal(err)
	}
	if settings["model"] != "opus" {
		t.Error("unrelated settings must survive")
	}
	hooks = settings["hooks"].(map[string]interface{})
	if _, ok := hooks[hook.EventUserPromptSubmit]; ok {
		t.Error("expected UserPromptSubmit entry removed")
	}
	if pre := hooks[hook.EventPreToolUse].([]interface{}); len(pre) != 1 {
		t.Errorf("expected only the foreign PreToolUse entry left, got %d", len(pre))
	}
}

func TestStatus(t *testing.T) {
	e := newEnv(t, cliRules)
	t.Setenv("CLAUDE_CONFIG_DIR", t.TempDir())
	stdout, _, err := runCLI(t, "", e.args("status")...)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{e.rulesPath + " (2 skills", "UserPromptSubmit: not configured", e.stateDir} {
		if !strings.Contains(stdout, want) {
			t.Errorf("status output missing %q:\n%s", want, stdout)
		}
	}
}
