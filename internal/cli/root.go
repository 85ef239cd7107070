package cli

import (
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/gzhole/skillgate/internal/config"
	"github.com/gzhole/skillgate/internal/engine"
	"github.com/gzhole/skillgate/internal/logger"
	"github.com/gzhole/skillgate/internal/logging"
	"github.com/gzhole/skillgate/internal/rules"
	"github.com/gzhole/skillgate/internal/session"
)

var (
	configPath   string
	rulesPath    string
	stateDir     string
	auditLogPath string
	logLevel     string
)

// Resolved once per invocation by PersistentPreRunE.
var (
	cfg  *config.Config
	diag *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "skillgate",
	Short: "skillgate - skill activation hooks for AI coding assistants",
	Long: `skillgate matches prompts and file edits from an AI coding assistant
against declarative skill rules (skill-rules.json). It suggests the skills
that apply and blocks edits until a guardrail skill has been used, at most
once per session.

Every failure fails open: a broken rule file never blocks your work.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadSettings,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default: $XDG_CONFIG_HOME/skillgate/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&rulesPath, "rules", "", "Path to skill-rules.json (default: search plugin root, project and cwd)")
	rootCmd.PersistentFlags().StringVar(&stateDir, "state-dir", "", "Directory for per-session state files")
	rootCmd.PersistentFlags().StringVar(&auditLogPath, "log", "", "Path to audit log file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Diagnostic level: debug, info, warn, error")
}

func Execute() error {
	return rootCmd.Execute()
}

var flagKeys = map[string]string{
	"rules":     config.KeyRules,
	"state-dir": config.KeyStateDir,
	"log":       config.KeyAuditLog,
	"log-level": config.KeyLogLevel,
}

// loadSettings merges flags, env and the config file. A broken config
// never stops the hook: it falls back to defaults with a warning.
func loadSettings(cmd *cobra.Command, args []string) error {
	v := config.NewViper()
	flags := cmd.Root().PersistentFlags()
	for name, key := range flagKeys {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			return err
		}
	}

	c, err := config.Load(v, configPath)
	if err != nil && cmd.Name() != "hook" {
		return err
	}
	if err != nil {
		c = config.Defaults()
	}
	cfg = c
	diag = logging.New(logging.Config{
		Level:  logging.ParseLevel(cfg.LogLevel),
		Format: logging.Format(cfg.LogFormat),
		Output: cmd.ErrOrStderr(),
	})
	if err != nil {
		diag.Warn("config unreadable, using defaults", "error", err)
	}
	return nil
}

// resolveRules finds the rule file for a project directory.
func resolveRules(cwd string) (string, error) {
	if cwd == "" {
		cwd, _ = os.Getwd()
	}
	return rules.ResolvePath(cfg.Rules, os.Getenv, cwd)
}

// newEngine wires the engine to the file-backed session store and the
// audit log. The returned func closes the audit log.
func newEngine(cwd string) (*engine.Engine, func()) {
	opts := engine.Options{
		Store:  session.NewFileStore(cfg.StateDir),
		Logger: diag,
	}
	if path, err := resolveRules(cwd); err != nil {
		opts.LoadErr = err
	} else {
		opts.RulesPath = path
	}

	cleanup := func() {}
	if cfg.Audit && cfg.AuditLog != "" {
		audit, err := logger.New(cfg.AuditLog)
		if err != nil {
			diag.Warn("audit log unavailable", "error", err)
		} else {
			opts.Audit = audit
			cleanup = func() { _ = audit.Close() }
		}
	}
	return engine.New(opts), cleanup
}

// isTerminal reports whether r is an interactive terminal. Commands that
// read a payload from stdin refuse terminals instead of hanging.
func isTerminal(r io.Reader) bool {
	f, ok := r.(interface{ Fd() uintptr })
	return ok && term.IsTerminal(int(f.Fd()))
}
