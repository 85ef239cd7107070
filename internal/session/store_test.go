package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	skerrors "github.com/gzhole/skillgate/internal/errors"
)

func TestState_AddSkill(t *testing.T) {
	st := &State{}
	if !st.AddSkill("b") || !st.AddSkill("a") {
		t.Fatal("expected first adds to change state")
	}
	if st.AddSkill("b") {
		t.Error("expected duplicate add to be a no-op")
	}
	if diff := cmp.Diff([]string{"a", "b"}, st.SkillsUsed); diff != "" {
		t.Errorf("skills mismatch (-want +got):\n%s", diff)
	}
	if !st.HasSkill("a") || st.HasSkill("c") {
		t.Error("HasSkill reported wrong membership")
	}
}

func TestMemoryStore_Isolation(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	st, err := m.Get(ctx, "S1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(st.SkillsUsed) != 0 {
		t.Errorf("expected empty state, got %v", st.SkillsUsed)
	}

	st.AddSkill("db-verify")
	if err := m.Save(ctx, "S1", st); err != nil {
		t.Fatal(err)
	}
	st.AddSkill("mutated-after-save")

	got, _ := m.Get(ctx, "S1")
	if diff := cmp.Diff([]string{"db-verify"}, got.SkillsUsed); diff != "" {
		t.Errorf("stored state mismatch (-want +got):\n%s", diff)
	}

	other, _ := m.Get(ctx, "S2")
	if other.HasSkill("db-verify") {
		t.Error("sessions must not share state")
	}
}

func TestFileStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "sessions")
	fs := NewFileStore(dir)

	st, err := fs.Get(ctx, "S1")
	if err != nil {
		t.Fatalf("missing session must not error: %v", err)
	}
	if len(st.SkillsUsed) != 0 {
		t.Errorf("expected empty state, got %v", st.SkillsUsed)
	}

	st.AddSkill("db-verify")
	if err := fs.Save(ctx, "S1", st); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	info, err := os.Stat(fs.Path("S1"))
	if err != nil {
		t.Fatalf("state file missing: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("expected 0600 permissions, got %v", info.Mode().Perm())
	}

	got, err := fs.Get(ctx, "S1")
	if err != nil {
		t.Fatal(err)
	}
	if !got.HasSkill("db-verify") {
		t.Errorf("expected db-verify after reload, got %v", got.SkillsUsed)
	}

	ids, err := fs.List()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"S1"}, ids); diff != "" {
		t.Errorf("ids mismatch (-want +got):\n%s", diff)
	}

	if err := fs.Clear("S1"); err != nil {
		t.Fatal(err)
	}
	if err := fs.Clear("S1"); err != nil {
		t.Errorf("clearing twice must not error: %v", err)
	}
	got, _ = fs.Get(ctx, "S1")
	if got.HasSkill("db-verify") {
		t.Error("expected state cleared")
	}
}

func TestFileStore_CorruptFile(t *testing.T) {
	ctx := context.Background()
	fs := NewFileStore(t.TempDir())
	if err := os.WriteFile(fs.Path("bad"), []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	_, err := fs.Get(ctx, "bad")
	if !skerrors.Is(err, skerrors.ErrStateIO) {
		t.Errorf("expected ErrStateIO, got %v", err)
	}
}

func TestFileStore_ConcurrentSavesNeverTruncate(t *testing.T) {
	ctx := context.Background()
	fs := NewFileStore(t.TempDir())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			st := &State{}
			st.AddSkill(fmt.Sprintf("skill-%02d", i))
			if err := fs.Save(ctx, "S1", st); err != nil {
				t.Errorf("save %d failed: %v", i, err)
			}
		}(i)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			if _, err := fs.Get(ctx, "S1"); err != nil {
				t.Errorf("concurrent read saw a broken file: %v", err)
				return
			}
		}
	}()

	wg.Wait()
	<-done

	st, err := fs.Get(ctx, "S1")
	if err != nil {
		t.Fatalf("final read failed: %v", err)
	}
	if len(st.SkillsUsed) != 1 {
		t.Errorf("expected exactly one skill from the last writer, got %v", st.SkillsUsed)
	}

	entries, _ := os.ReadDir(fs.Dir)
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".tmp" {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestFileStore_SimilarIDsDoNotShareState(t *testing.T) {
	ctx := context.Background()
	fs := NewFileStore(t.TempDir())

	st := &State{}
	st.AddSkill("database-verification")
	if err := fs.Save(ctx, "a/b", st); err != nil {
		t.Fatal(err)
	}

	other, err := fs.Get(ctx, "a_b")
	if err != nil {
		t.Fatal(err)
	}
	if other.HasSkill("database-verification") {
		t.Error("session a_b must not see state saved by session a/b")
	}
	if fs.Path("a/b") == fs.Path("a_b") {
		t.Errorf("distinct ids share a state file %s", fs.Path("a/b"))
	}
}

func TestSanitizeID(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "default"},
		{"abc-123_DEF", "abc-123_DEF"},
		{"../../etc/passwd", ".._.._etc_passwd-3754d6cb"},
		{"a.b", "a.b"},
		{"s p/ace", "s_p_ace-8e6f4945"},
		{"a/b", "a_b-c14cddc0"},
		{"a_b", "a_b"},
	}
	for _, tt := range tests {
		if got := SanitizeID(tt.in); got != tt.want {
			t.Errorf("SanitizeID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
