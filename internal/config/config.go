// Package config resolves skillgate settings from flags, SKILLGATE_*
// environment variables and an optional config file, using Viper.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"

	skerrors "github.com/gzhole/skillgate/internal/errors"
)

// AppName names the config and state directories.
const AppName = "skillgate"

// EnvPrefix is prepended to every key when read from the environment.
const EnvPrefix = "SKILLGATE"

// Keys understood by Load.
const (
	KeyRules     = "rules"
	KeyStateDir  = "state_dir"
	KeyAuditLog  = "audit_log"
	KeyAudit     = "audit"
	KeyLogLevel  = "log_level"
	KeyLogFormat = "log_format"
	KeyBypass    = "bypass"
)

type Config struct {
	// Rules is an explicit rule document path. Empty means search the
	// usual locations.
	Rules    string
	StateDir string
	AuditLog string
	Audit    bool
	LogLevel string
	// LogFormat is text or json.
	LogFormat string
	// Bypass makes the hook drain stdin and allow everything.
	Bypass bool
}

// ConfigDir is where config.yaml is searched for.
func ConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

func DefaultStateDir() string {
	return filepath.Join(xdg.StateHome, AppName, "sessions")
}

func DefaultAuditLog() string {
	return filepath.Join(xdg.StateHome, AppName, "audit.jsonl")
}

// Defaults is the configuration used when no file or environment applies,
// and the fallback when a config file is broken.
func Defaults() *Config {
	return &Config{
		StateDir:  DefaultStateDir(),
		AuditLog:  DefaultAuditLog(),
		Audit:     true,
		LogLevel:  "warn",
		LogFormat: "text",
	}
}

// NewViper returns a Viper instance with defaults, env binding and the
// config search path set. Flags are bound by the caller.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(ConfigDir())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault(KeyRules, "")
	v.SetDefault(KeyStateDir, DefaultStateDir())
	v.SetDefault(KeyAuditLog, DefaultAuditLog())
	v.SetDefault(KeyAudit, true)
	v.SetDefault(KeyLogLevel, "warn")
	v.SetDefault(KeyLogFormat, "text")
	v.SetDefault(KeyBypass, false)
	return v
}

// Load reads the config file and returns the merged settings.
// An explicit path must exist. Without one a missing file is fine.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		switch {
		case skerrors.As(err, &notFound):
			if path != "" {
				return nil, skerrors.Wrapf(err, "config file not found at %s", path)
			}
		case path != "" && os.IsNotExist(err):
			return nil, skerrors.Wrapf(err, "config file not found at %s", path)
		default:
			return nil, skerrors.Wrap(err, "reading config file")
		}
	}

	return &Config{
		Rules:     v.GetString(KeyRules),
		StateDir:  v.GetString(KeyStateDir),
		AuditLog:  v.GetString(KeyAuditLog),
		Audit:     v.GetBool(KeyAudit),
		LogLevel:  v.GetString(KeyLogLevel),
		LogFormat: v.GetString(KeyLogFormat),
		Bypass:    Truthy(v.GetString(KeyBypass)),
	}, nil
}

// Truthy reports whether an environment value means "on". Empty, 0, false,
// no and off are false; anything else is true.
func Truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "0", "false", "no", "off":
		return false
	}
	return true
}
