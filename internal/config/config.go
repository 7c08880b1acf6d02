// Package config handles loading, saving, and resolving the gitlab-sync
// configuration file.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/sirupsen/logrus"
	"go.yaml.in/yaml/v3"
)

const (
	// LocalConfigFilename is the per-directory gitlab-sync config file.
	LocalConfigFilename = "gitlab-sync.yaml"
	// ConfigAPIVersion is the current config schema apiVersion.
	ConfigAPIVersion = "skaphos.io/gitlab-sync/v1beta1"
	// ConfigKind is the current config schema kind.
	ConfigKind = "GitLabSyncConfig"
	// EnvConfig overrides the config location.
	EnvConfig = "GITLAB_SYNC_CONFIG"

	appName = "gitlab-sync"
)

// ErrNotFound is returned by Load when the config file does not exist.
var ErrNotFound = errors.New("configuration file not found")

//go:embed sample.yaml
var sample []byte

// GitLab describes the forge and the group to mirror.
type GitLab struct {
	URL              string `yaml:"url"`
	Token            string `yaml:"token,omitempty"`
	Group            string `yaml:"group"`
	Protocol         string `yaml:"protocol"`
	IncludeSubgroups bool   `yaml:"include_subgroups"`
	UseKeyring       bool   `yaml:"use_keyring"`
}

// Sync holds defaults for sync operations.
type Sync struct {
	RemoteName     string   `yaml:"remote_name"`
	Root           string   `yaml:"root"`
	Layout         string   `yaml:"layout"`
	Exclude        []string `yaml:"exclude,omitempty"`
	Concurrency    int      `yaml:"concurrency"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
}

// Log configures the rotating log file.
type Log struct {
	File       string `yaml:"file"`
	Level      string `yaml:"level"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// Config represents the gitlab-sync configuration.
type Config struct {
	APIVersion string `yaml:"apiVersion"`
	Kind       string `yaml:"kind"`
	GitLab     GitLab `yaml:"gitlab"`
	Sync       Sync   `yaml:"sync"`
	Log        Log    `yaml:"log"`
}

// DefaultConfig returns a Config with sensible defaults applied.
func DefaultConfig() Config {
	return Config{
		APIVersion: ConfigAPIVersion,
		Kind:       ConfigKind,
		GitLab: GitLab{
			URL:      "https://gitlab.com",
			Protocol: "ssh",
		},
		Sync: Sync{
			RemoteName:  "gitlab",
			Root:        ".",
			Layout:      "flat",
			Concurrency: 1,
		},
		Log: Log{
			File:       appName + ".log",
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// ConfigDir returns the user-level config directory.
func ConfigDir() string {
	return filepath.Join(xdg.ConfigHome, appName)
}

// ConfigPath resolves the config file path from an override, the
// GITLAB_SYNC_CONFIG env var, or the user-level default.
func ConfigPath(override string) string {
	if override != "" {
		return filePath(override)
	}
	if env := os.Getenv(EnvConfig); env != "" {
		return filePath(env)
	}
	return filepath.Join(ConfigDir(), "config.yaml")
}

// InitConfigPath resolves where "gitlab-sync init" writes config.
// Order: explicit override, GITLAB_SYNC_CONFIG, then the local file in cwd.
func InitConfigPath(override, cwd string) (string, error) {
	if override != "" || os.Getenv(EnvConfig) != "" {
		return ConfigPath(override), nil
	}
	cwd, err := workingDir(cwd)
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, LocalConfigFilename), nil
}

// ResolveConfigPath resolves config for runtime commands.
// Order: explicit override, GITLAB_SYNC_CONFIG, nearest local file in
// cwd/parents, then the user config directory. When none exists the init
// path is returned so a later Load reports ErrNotFound for it.
func ResolveConfigPath(override, cwd string) (string, error) {
	if override != "" || os.Getenv(EnvConfig) != "" {
		return ConfigPath(override), nil
	}
	cwd, err := workingDir(cwd)
	if err != nil {
		return "", err
	}

	localPath, err := FindNearestConfigPath(cwd)
	if err != nil {
		return "", err
	}
	if localPath != "" {
		return localPath, nil
	}

	global := ConfigPath("")
	if _, err := os.Stat(global); err == nil {
		return global, nil
	}
	return filepath.Join(cwd, LocalConfigFilename), nil
}

// FindNearestConfigPath searches cwd and each parent directory for gitlab-sync.yaml.
// It returns an empty string when no local config file is found.
func FindNearestConfigPath(cwd string) (string, error) {
	dir := cwd
	for {
		candidate := filepath.Join(dir, LocalConfigFilename)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		} else if !os.IsNotExist(err) {
			return "", err
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

// Load reads and validates the config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	applyConfigGVK(&cfg)
	if err := validateConfigGVK(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &cfg, nil
}

// Validate checks field values that defaults cannot fix.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.GitLab.Group) == "" {
		errs = append(errs, errors.New("gitlab.group is required"))
	}
	switch strings.ToLower(c.GitLab.Protocol) {
	case "ssh", "http", "https":
	default:
		errs = append(errs, fmt.Errorf("unsupported gitlab.protocol %q (expected ssh, http, or https)", c.GitLab.Protocol))
	}
	switch c.Sync.Layout {
	case "flat", "namespace":
	default:
		errs = append(errs, fmt.Errorf("unsupported sync.layout %q (expected flat or namespace)", c.Sync.Layout))
	}
	for _, pattern := range c.Sync.Exclude {
		if !doublestar.ValidatePattern(pattern) {
			errs = append(errs, fmt.Errorf("invalid sync.exclude pattern %q", pattern))
		}
	}
	if c.Sync.Concurrency < 0 {
		errs = append(errs, fmt.Errorf("sync.concurrency must not be negative, got %d", c.Sync.Concurrency))
	}
	if c.Sync.TimeoutSeconds < 0 {
		errs = append(errs, fmt.Errorf("sync.timeout_seconds must not be negative, got %d", c.Sync.TimeoutSeconds))
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	return errors.Join(errs...)
}

// ResolvePath resolves a config-relative path against the config file
// location. Absolute paths are returned unchanged.
func ResolvePath(configPath, p string) string {
	if strings.TrimSpace(p) == "" {
		return ""
	}
	if filepath.IsAbs(p) || strings.TrimSpace(configPath) == "" {
		return filepath.Clean(p)
	}
	return filepath.Clean(filepath.Join(filepath.Dir(configPath), p))
}

// Save writes the config to the given path.
func Save(cfg *Config, path string) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	applyConfigGVK(cfg)
	if err := validateConfigGVK(cfg); err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// WriteSample writes the commented sample config. It refuses to overwrite
// an existing file.
func WriteSample(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(sample); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// Sample returns the embedded sample config.
func Sample() []byte {
	return append([]byte(nil), sample...)
}

func applyDefaults(cfg *Config) {
	defaults := DefaultConfig()
	if strings.TrimSpace(cfg.GitLab.URL) == "" {
		cfg.GitLab.URL = defaults.GitLab.URL
	}
	if strings.TrimSpace(cfg.GitLab.Protocol) == "" {
		cfg.GitLab.Protocol = defaults.GitLab.Protocol
	}
	if strings.TrimSpace(cfg.Sync.RemoteName) == "" {
		cfg.Sync.RemoteName = defaults.Sync.RemoteName
	}
	if strings.TrimSpace(cfg.Sync.Root) == "" {
		cfg.Sync.Root = defaults.Sync.Root
	}
	if strings.TrimSpace(cfg.Sync.Layout) == "" {
		cfg.Sync.Layout = defaults.Sync.Layout
	}
	if cfg.Sync.Concurrency == 0 {
		cfg.Sync.Concurrency = defaults.Sync.Concurrency
	}
	if strings.TrimSpace(cfg.Log.Level) == "" {
		cfg.Log.Level = defaults.Log.Level
	}
	if cfg.Log.MaxSizeMB <= 0 {
		cfg.Log.MaxSizeMB = defaults.Log.MaxSizeMB
	}
	if cfg.Log.MaxBackups < 0 {
		cfg.Log.MaxBackups = defaults.Log.MaxBackups
	}
}

func workingDir(cwd string) (string, error) {
	if strings.TrimSpace(cwd) != "" {
		return cwd, nil
	}
	return os.Getwd()
}

func filePath(p string) string {
	if isConfigFilePath(p) {
		return p
	}
	return filepath.Join(p, "config.yaml")
}

func isConfigFilePath(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func applyConfigGVK(cfg *Config) {
	if cfg == nil {
		return
	}
	if strings.TrimSpace(cfg.APIVersion) == "" {
		cfg.APIVersion = ConfigAPIVersion
	}
	if strings.TrimSpace(cfg.Kind) == "" {
		cfg.Kind = ConfigKind
	}
}

func validateConfigGVK(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if cfg.APIVersion != ConfigAPIVersion {
		return fmt.Errorf("unsupported config apiVersion %q (expected %q)", cfg.APIVersion, ConfigAPIVersion)
	}
	if cfg.Kind != ConfigKind {
		return fmt.Errorf("unsupported config kind %q (expected %q)", cfg.Kind, ConfigKind)
	}
	return nil
}
