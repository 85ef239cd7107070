package rules

import (
	"os"
	"path/filepath"

	skerrors "github.com/gzhole/skillgate/internal/errors"
)

// DefaultFileName is the canonical rule store artifact.
const DefaultFileName = "skill-rules.json"

// Environment variables set by the assistant host.
const (
	EnvPluginRoot = "CLAUDE_PLUGIN_ROOT"
	EnvProjectDir = "CLAUDE_PROJECT_DIR"
)

// CandidatePaths lists where the rule store is looked for, most specific
// first: an explicit path, the plugin's hooks directory, the project's
// .claude/skills directory, then the same under cwd.
func CandidatePaths(explicit string, getenv func(string) string, cwd string) []string {
	if explicit != "" {
		return []string{explicit}
	}

	var paths []string
	if root := getenv(EnvPluginRoot); root != "" {
		paths = append(paths, filepath.Join(root, "hooks", DefaultFileName))
	}
	if dir := getenv(EnvProjectDir); dir != "" {
		paths = append(paths, filepath.Join(dir, ".claude", "skills", DefaultFileName))
	}
	if cwd != "" {
		paths = append(paths, filepath.Join(cwd, ".claude", "skills", DefaultFileName))
	}
	return paths
}

// ResolvePath returns the first candidate that exists. An explicit path is
// returned as-is only if it exists too.
func ResolvePath(explicit string, getenv func(string) string, cwd string) (string, error) {
	candidates := CandidatePaths(explicit, getenv, cwd)
	for _, p := range candidates {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p, nil
		}
	}
	return "", skerrors.Wrapf(skerrors.ErrRulesNotFound, "searched %v", candidates)
}
