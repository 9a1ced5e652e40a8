// Package config builds the immutable daemon configuration once at startup.
// Precedence: process environment, then the optional YAML config file, then
// defaults. Business logic never reads the environment directly.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// SubmoduleStrategy selects how submodule checkouts are updated.
type SubmoduleStrategy string

const (
	// StrategyRemote fast-forwards each submodule to its own remote branch
	// tip, falling back to the recorded commit if that fails.
	StrategyRemote SubmoduleStrategy = "remote"
	// StrategyRecorded checks out the SHA recorded in the parent repository.
	StrategyRecorded SubmoduleStrategy = "recorded"
)

// Config is the complete daemon configuration. It is constructed once and
// passed by value into every component.
type Config struct {
	RepoDir    string `yaml:"repo_dir"`
	PublicDir  string `yaml:"public_dir"`
	StagingDir string `yaml:"staging_dir"`
	GitRef     string `yaml:"git_ref"`

	SubmoduleStrategy SubmoduleStrategy `yaml:"submodule_strategy"`

	MonitorInterval time.Duration `yaml:"monitor_interval"`
	WatchInterval   time.Duration `yaml:"watch_interval"`
	DebounceWindow  time.Duration `yaml:"debounce_window"`
	LoopGuardWindow time.Duration `yaml:"loop_guard_window"`

	WatchContent bool   `yaml:"watch_content"`
	WatchPublic  bool   `yaml:"watch_public"`
	ContentDir   string `yaml:"content_dir"`
	PublicWatch  string `yaml:"public_watch_dir"`

	ContentSubmodule string `yaml:"content_submodule"`
	PublishSubmodule string `yaml:"publish_submodule"`

	ListenAddr    string `yaml:"listen_addr"`
	WebhookSecret string `yaml:"webhook_secret"`
	HookName      string `yaml:"hook_name"`

	APIBaseURL string `yaml:"api_base_url"`

	AuthorName  string `yaml:"git_author_name"`
	AuthorEmail string `yaml:"git_author_email"`

	FingerprintFile string `yaml:"fingerprint_file"`
	LockFile        string `yaml:"lock_file"`
	HistoryDB       string `yaml:"history_db"`

	NATSURL        string `yaml:"nats_url"`
	MetricsEnabled bool   `yaml:"metrics_enabled"`
}

// Default returns the built-in configuration, matching the layout the
// deployment containers use under /srv.
func Default() Config {
	return Config{
		RepoDir:           "/srv/repo",
		PublicDir:         "/srv/public",
		StagingDir:        "/srv/staging",
		GitRef:            "main",
		SubmoduleStrategy: StrategyRemote,
		MonitorInterval:   30 * time.Second,
		WatchInterval:     2 * time.Second,
		DebounceWindow:    2 * time.Second,
		LoopGuardWindow:   10 * time.Second,
		WatchContent:      true,
		WatchPublic:       true,
		ContentSubmodule:  "redpen-content",
		PublishSubmodule:  "redpen-publish",
		ListenAddr:        "0.0.0.0:9000",
		HookName:          "redpen-publish",
		AuthorName:        "content-sync bot",
		AuthorEmail:       "content-sync@localhost",
		MetricsEnabled:    true,
	}
}

// Load builds a Config from the optional YAML file at path (empty path skips
// the file) and the process environment.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path) // #nosec G304 - operator-supplied config path
		if err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	cfg.applyDerived()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyDerived fills paths that default relative to other settings.
func (c *Config) applyDerived() {
	if c.ContentDir == "" {
		c.ContentDir = filepath.Join(filepath.Dir(c.RepoDir), "content")
	}
	if c.PublicWatch == "" {
		c.PublicWatch = c.PublicDir
	}
	if c.FingerprintFile == "" {
		c.FingerprintFile = filepath.Join(c.RepoDir, ".sync.fingerprint")
	}
	if c.LockFile == "" {
		c.LockFile = filepath.Join(c.RepoDir, ".sync.lock")
	}
}

// Validate checks invariants that would make the daemon unrunnable.
func (c Config) Validate() error {
	if c.RepoDir == "" {
		return fmt.Errorf("repo_dir must be set")
	}
	if c.PublicDir == "" {
		return fmt.Errorf("public_dir must be set")
	}
	if c.StagingDir == "" {
		return fmt.Errorf("staging_dir must be set")
	}
	if c.GitRef == "" {
		return fmt.Errorf("git_ref must be set")
	}
	switch c.SubmoduleStrategy {
	case StrategyRemote, StrategyRecorded:
	default:
		return fmt.Errorf("submodule_strategy must be %q or %q, got %q",
			StrategyRemote, StrategyRecorded, c.SubmoduleStrategy)
	}
	if c.MonitorInterval <= 0 || c.WatchInterval <= 0 {
		return fmt.Errorf("monitor_interval and watch_interval must be positive")
	}
	if c.DebounceWindow < 0 || c.LoopGuardWindow < 0 {
		return fmt.Errorf("debounce_window and loop_guard_window must not be negative")
	}
	return nil
}

func applyEnv(cfg *Config) {
	envString("REPO_DIR", &cfg.RepoDir)
	envString("PUBLIC_DIR", &cfg.PublicDir)
	envString("STAGING_DIR", &cfg.StagingDir)
	envString("GIT_REF", &cfg.GitRef)
	if v := os.Getenv("SUBMODULE_STRATEGY"); v != "" {
		cfg.SubmoduleStrategy = SubmoduleStrategy(v)
	}
	envDuration("MONITOR_INTERVAL", &cfg.MonitorInterval)
	envDuration("WATCH_INTERVAL", &cfg.WatchInterval)
	envDuration("DEBOUNCE_WINDOW", &cfg.DebounceWindow)
	envDuration("LOOP_GUARD_WINDOW", &cfg.LoopGuardWindow)
	envBool("WATCH_CONTENT", &cfg.WatchContent)
	envBool("WATCH_PUBLIC", &cfg.WatchPublic)
	envString("CONTENT_DIR", &cfg.ContentDir)
	envString("PUBLIC_WATCH_DIR", &cfg.PublicWatch)
	envString("CONTENT_SUBMODULE", &cfg.ContentSubmodule)
	envString("PUBLISH_SUBMODULE", &cfg.PublishSubmodule)
	envString("LISTEN_ADDR", &cfg.ListenAddr)
	envString("WEBHOOK_SECRET", &cfg.WebhookSecret)
	envString("HOOK_NAME", &cfg.HookName)
	envString("API_BASE_URL", &cfg.APIBaseURL)
	envString("GIT_AUTHOR_NAME", &cfg.AuthorName)
	envString("GIT_AUTHOR_EMAIL", &cfg.AuthorEmail)
	envString("FINGERPRINT_FILE", &cfg.FingerprintFile)
	envString("LOCK_FILE", &cfg.LockFile)
	envString("HISTORY_DB", &cfg.HistoryDB)
	envString("NATS_URL", &cfg.NATSURL)
	envBool("METRICS_ENABLED", &cfg.MetricsEnabled)
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

// envDuration accepts Go duration syntax ("45s", "2m") and, for compatibility
// with the older deployment files, bare integers meaning seconds.
func envDuration(key string, dst *time.Duration) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if d, err := time.ParseDuration(v); err == nil {
		*dst = d
		return
	}
	if secs, err := strconv.Atoi(v); err == nil {
		*dst = time.Duration(secs) * time.Second
	}
}
