package engine

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/gzhole/skillgate/internal/logger"
	"github.com/gzhole/skillgate/internal/rules"
	"github.com/gzhole/skillgate/internal/session"
)

const engineRules = `{
  "version": "1.0",
  "skills": {
    "frontend-dev-guidelines": {
      "type": "domain",
      "enforcement": "suggest",
      "priority": "high",
      "promptTriggers": {
        "keywords": ["layout"],
        "intentPatterns": ["(create|add).*?component"]
      }
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
      "skipConditions": {
        "sessionSkillUsed": true,
        "fileMarkers": ["@skip-validation"],
        "envOverride": "SKIP_DB_VERIFICATION"
      }
    },
    "migration-template": {
      "type": "domain",
      "enforcement": "suggest",
      "priority": "low",
      "fileTriggers": {
        "pathPatterns": ["migrations/*.sql"],
        "createOnly": true
      }
    }
  }
}`

const userEdit = "users = session.query(User).all()"

func noEnv(string) (string, bool) { return "", false }

func newTestEngine(t *testing.T, opts Options) *Engine {
	t.Helper()
	if opts.Rules == nil && opts.RulesPath == "" && opts.LoadErr == nil {
		rs, _, err := rules.Parse([]byte(engineRules), rules.FormatJSON)
		if err != nil {
			t.Fatalf("parse rules: %v", err)
		}
		opts.Rules = rs
	}
	if opts.LookupEnv == nil {
		opts.LookupEnv = noEnv
	}
	if opts.ReadFile == nil {
		opts.ReadFile = func(string) ([]byte, error) { return nil, os.ErrNotExist }
	}
	return New(opts)
}

func TestEvaluatePrompt_KeywordAdvises(t *testing.T) {
	e := newTestEngine(t, Options{})

	out := e.EvaluatePrompt(context.Background(), PromptInput{SessionID: "S1", Prompt: "how does the layout system work?"})

	if out.Action != ActionAdvise {
		t.Fatalf("expected advise, got %s", out.Action)
	}
	if diff := cmp.Diff([]string{"frontend-dev-guidelines"}, out.Skills); diff != "" {
		t.Errorf("skills mismatch (-want +got):\n%s", diff)
	}
	if !strings.Contains(out.Context, "📚 RECOMMENDED SKILLS:\n  → frontend-dev-guidelines (keyword)\n") {
		t.Errorf("banner missing annotated skill line:\n%s", out.Context)
	}
}

func TestEvaluatePrompt_NoMatchAllowsSilently(t *testing.T) {
	e := newTestEngine(t, Options{})

	out := e.EvaluatePrompt(context.Background(), PromptInput{Prompt: "what time is it?"})
	if out.Action != ActionAllow || out.Context != "" {
		t.Errorf("expected silent allow, got %+v", out)
	}
}

func TestEvaluateFile_GuardrailOncePerSession(t *testing.T) {
	store := session.NewFileStore(t.TempDir())
	e := newTestEngine(t, Options{Store: store})
	ctx := context.Background()

	in := FileInput{
		SessionID:  "S1",
		ToolName:   "Edit",
		FilePath:   "src/services/user.py",
		NewContent: userEdit,
	}

	first := e.EvaluateFile(ctx, in)
	if first.Action != ActionBlock {
		t.Fatalf("first event: expected block, got %s", first.Action)
	}
	if first.BlockMessage != "Use the database-verification skill before editing src/services/user.py" {
		t.Errorf("unexpected block message %q", first.BlockMessage)
	}

	state, err := store.Get(ctx, "S1")
	if err != nil {
		t.Fatal(err)
	}
	if !state.HasSkill("database-verification") {
		t.Errorf("expected S1 state to record the guardrail, got %v", state.SkillsUsed)
	}

	if again := e.EvaluateFile(ctx, in); again.Action != ActionAllow {
		t.Errorf("repeat in S1: expected allow, got %s", again.Action)
	}

	in.SessionID = "S2"
	if fresh := e.EvaluateFile(ctx, in); fresh.Action != ActionBlock {
		t.Errorf("new session S2: expected block, got %s", fresh.Action)
	}
}

func TestEvaluateFile_UnwritableStateDirNeverBlocksForever(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(blocker, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	e := newTestEngine(t, Options{Store: session.NewFileStore(filepath.Join(blocker, "sessions"))})

	in := FileInput{
		SessionID:  "S1",
		ToolName:   "Edit",
		FilePath:   "src/services/user.py",
		NewContent: userEdit,
	}
	for i := 0; i < 5; i++ {
		if out := e.EvaluateFile(context.Background(), in); out.Action == ActionBlock {
			t.Fatalf("attempt %d: blocked although the session could not be recorded", i)
		}
	}
}

func TestEvaluateFile_FileMarkerOnDisk(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "src", "services", "user.py")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("# @skip-validation\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	e := newTestEngine(t, Options{ReadFile: os.ReadFile})
	out := e.EvaluateFile(context.Background(), FileInput{
		SessionID:  "brand-new",
		ToolName:   "Edit",
		FilePath:   path,
		Cwd:        dir,
		NewContent: userEdit,
	})
	if out.Action != ActionAllow {
		t.Errorf("expected marker to suppress the block, got %s", out.Action)
	}
}

func TestEvaluateFile_MarkerInNewContent(t *testing.T) {
	e := newTestEngine(t, Options{})
	out := e.EvaluateFile(context.Background(), FileInput{
		SessionID:  "S9",
		ToolName:   "Edit",
		FilePath:   "src/services/user.py",
		NewContent: "# @skip-validation\n" + userEdit,
	})
	if out.Action != ActionAllow {
		t.Errorf("expected marker in new content to suppress the block, got %s", out.Action)
	}
}

func TestEvaluateFile_EnvOverride(t *testing.T) {
	e := newTestEngine(t, Options{LookupEnv: func(k string) (string, bool) {
		if k == "SKIP_DB_VERIFICATION" {
			return "1", true
		}
		return "", false
	}})
	out := e.EvaluateFile(context.Background(), FileInput{
		SessionID:  "S1",
		ToolName:   "Edit",
		FilePath:   "src/services/user.py",
		NewContent: userEdit,
	})
	if out.Action != ActionAllow {
		t.Errorf("expected env override to allow, got %s", out.Action)
	}
}

func TestEvaluateFile_ProjectRelativePath(t *testing.T) {
	e := newTestEngine(t, Options{LookupEnv: func(k string) (string, bool) {
		if k == rules.EnvProjectDir {
			return "/work/proj", true
		}
		return "", false
	}})
	out := e.EvaluateFile(context.Background(), FileInput{
		SessionID:  "S1",
		ToolName:   "Edit",
		FilePath:   "/work/proj/src/services/user.py",
		NewContent: userEdit,
	})
	if out.Action != ActionBlock {
		t.Errorf("expected absolute path under the project to block, got %s", out.Action)
	}
}

func TestEvaluateFile_CreateOnlyAdvisesOnWriteOfMissingFile(t *testing.T) {
	e := newTestEngine(t, Options{})
	ctx := context.Background()

	out := e.EvaluateFile(ctx, FileInput{
		ToolName:   ToolWrite,
		FilePath:   "migrations/0042_add_users.sql",
		NewContent: "CREATE TABLE users();",
	})
	if out.Action != ActionAdvise {
		t.Fatalf("expected advise for a new migration, got %s", out.Action)
	}
	if !strings.Contains(out.Context, "📌 OPTIONAL SKILLS:\n  → migration-template (path)\n") {
		t.Errorf("unexpected banner:\n%s", out.Context)
	}

	existing := newTestEngine(t, Options{ReadFile: func(string) ([]byte, error) { return []byte("--"), nil }})
	if out := existing.EvaluateFile(ctx, FileInput{ToolName: ToolWrite, FilePath: "migrations/0001.sql"}); out.Action != ActionAllow {
		t.Errorf("expected allow when the file exists, got %s", out.Action)
	}
}

func TestNew_ConfigErrorAllowsEverything(t *testing.T) {
	path := filepath.Join(t.TempDir(), "skill-rules.json")
	broken := strings.Replace(engineRules,
		`"blockMessage": "Use the database-verification skill before editing {file_path}",`, "", 1)
	if err := os.WriteFile(path, []byte(broken), 0o644); err != nil {
		t.Fatal(err)
	}

	e := newTestEngine(t, Options{RulesPath: path})
	if e.LoadErr() == nil {
		t.Fatal("expected a load error for a block rule without blockMessage")
	}

	ctx := context.Background()
	if out := e.EvaluatePrompt(ctx, PromptInput{Prompt: "fix the layout"}); out.Action != ActionAllow || out.Context != "" {
		t.Errorf("prompt: expected silent allow, got %+v", out)
	}
	out := e.EvaluateFile(ctx, FileInput{SessionID: "S1", ToolName: "Edit", FilePath: "src/a.py", NewContent: userEdit})
	if out.Action != ActionAllow {
		t.Errorf("file: expected allow, got %s", out.Action)
	}
}

func TestNew_MissingRulesPathAllows(t *testing.T) {
	e := New(Options{})
	if e.LoadErr() == nil {
		t.Fatal("expected a load error with no rules path")
	}
	if out := e.EvaluatePrompt(context.Background(), PromptInput{Prompt: "layout"}); out.Action != ActionAllow {
		t.Errorf("expected allow, got %s", out.Action)
	}
}

func TestEvaluate_WritesAuditEvents(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "audit.jsonl")
	audit, err := logger.New(logPath)
	if err != nil {
		t.Fatal(err)
	}
	e := newTestEngine(t, Options{Audit: audit})
	ctx := context.Background()

	e.EvaluatePrompt(ctx, PromptInput{SessionID: "S1", Prompt: "add a button component"})
	e.EvaluateFile(ctx, FileInput{SessionID: "S1", ToolName: "Edit", FilePath: "src/x.py", NewContent: userEdit})
	_ = audit.Close()

	events, err := logger.ReadEvents(logPath)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 audit events, got %d", len(events))
	}
	if events[0].Event != EventPrompt || events[0].Decision != string(ActionAdvise) {
		t.Errorf("unexpected prompt event %+v", events[0])
	}
	if events[1].Event != EventFile || events[1].Decision != string(ActionBlock) {
		t.Errorf("unexpected file event %+v", events[1])
	}
	if diff := cmp.Diff([]string{"database-verification"}, events[1].Skills); diff != "" {
		t.Errorf("skills mismatch (-want +got):\n%s", diff)
	}
}
