// Package config loads and persists minotaur's TOML configuration,
// merging a user-global file with an optional per-project override the
// way git layers .gitconfig files.
package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/rs/zerolog/log"

	minoerrors "github.com/minotaur-dev/minotaur/pkg/errors"
)

// GeneralConfig holds cross-cutting application settings.
type GeneralConfig struct {
	Verbose   bool   `toml:"verbose"`
	LogFormat string `toml:"log_format"`
	AuditLog  bool   `toml:"audit_log"`
}

func defaultGeneralConfig() GeneralConfig {
	return GeneralConfig{Verbose: false, LogFormat: "text", AuditLog: true}
}

// VMConfig controls the Lima microVM backing the macOS runtime.
type VMConfig struct {
	Name     string `toml:"name"`
	Distro   string `toml:"distro"`
	CPUs     int    `toml:"cpus"`
	MemoryMB int    `toml:"memory_mb"`
}

func defaultVMConfig() VMConfig {
	return VMConfig{Name: "minotaur", Distro: "alpine", CPUs: 2, MemoryMB: 2048}
}

// ContainerConfig holds defaults applied to every sandbox container
// absent a more specific override from the run invocation.
type ContainerConfig struct {
	Image   string            `toml:"image"`
	Packages []string         `toml:"packages"`
	Env     map[string]string `toml:"env"`
	Volumes []string          `toml:"volumes"`
	Network string            `toml:"network"`
	Workdir string            `toml:"workdir"`
}

func defaultContainerConfig() ContainerConfig {
	return ContainerConfig{
		Image:    "fedora:41",
		Packages: []string{"git", "curl", "which"},
		Env:      map[string]string{},
		Volumes:  nil,
		Network:  "host",
		Workdir:  "/workspace",
	}
}

// AWSConfig holds AWS STS session-credential defaults.
type AWSConfig struct {
	SessionDurationSecs int    `toml:"session_duration_secs"`
	RoleARN             string `toml:"role_arn"`
	ExternalID          string `toml:"external_id"`
	Profile             string `toml:"profile"`
	Region              string `toml:"region"`
}

func defaultAWSConfig() AWSConfig {
	return AWSConfig{SessionDurationSecs: 3600}
}

// GCPConfig holds GCP credential defaults.
type GCPConfig struct {
	Project        string `toml:"project"`
	ServiceAccount string `toml:"service_account"`
}

// AzureConfig holds Azure credential defaults.
type AzureConfig struct {
	Subscription string `toml:"subscription"`
	Tenant       string `toml:"tenant"`
}

// GithubConfig holds GitHub host defaults, for GitHub Enterprise support.
type GithubConfig struct {
	Host string `toml:"host"`
}

func defaultGithubConfig() GithubConfig {
	return GithubConfig{Host: "github.com"}
}

// CredentialsConfig groups per-provider credential settings.
type CredentialsConfig struct {
	AWS    AWSConfig    `toml:"aws"`
	GCP    GCPConfig    `toml:"gcp"`
	Azure  AzureConfig  `toml:"azure"`
	GitHub GithubConfig `toml:"github"`
}

func defaultCredentialsConfig() CredentialsConfig {
	return CredentialsConfig{AWS: defaultAWSConfig(), GitHub: defaultGithubConfig()}
}

// SessionConfig holds session lifecycle defaults.
type SessionConfig struct {
	Shell             string `toml:"shell"`
	AutoCleanupHours  int    `toml:"auto_cleanup_hours"`
	MaxSessions       int    `toml:"max_sessions"`
	DefaultProjectDir string `toml:"default_project_dir"`
}

func defaultSessionConfig() SessionConfig {
	return SessionConfig{Shell: "/bin/bash", AutoCleanupHours: 24, MaxSessions: 10}
}

// CacheConfig holds dependency-cache volume defaults.
type CacheConfig struct {
	Enabled    bool `toml:"enabled"`
	GCDays     int  `toml:"gc_days"`
	MaxTotalGB int  `toml:"max_total_gb"`
}

func defaultCacheConfig() CacheConfig {
	return CacheConfig{Enabled: true, GCDays: 30, MaxTotalGB: 50}
}

// Config is the root of minotaur's persisted configuration.
type Config struct {
	General     GeneralConfig     `toml:"general"`
	VM          VMConfig          `toml:"vm"`
	Container   ContainerConfig   `toml:"container"`
	Credentials CredentialsConfig `toml:"credentials"`
	Session     SessionConfig     `toml:"session"`
	Cache       CacheConfig       `toml:"cache"`
}

// Default returns the configuration minotaur uses when no config file is
// present or a field is left unset.
func Default() Config {
	return Config{
		General:     defaultGeneralConfig(),
		VM:          defaultVMConfig(),
		Container:   defaultContainerConfig(),
		Credentials: defaultCredentialsConfig(),
		Session:     defaultSessionConfig(),
		Cache:       defaultCacheConfig(),
	}
}

// Manager loads and saves a Config at a specific file path.
type Manager struct {
	path string
}

// New constructs a Manager rooted at the default per-user config path.
func New() (*Manager, error) {
	path, err := DefaultConfigPath()
	if err != nil {
		return nil, err
	}
	return &Manager{path: path}, nil
}

// WithPath constructs a Manager rooted at an explicit config file path,
// bypassing XDG lookup. Used by tests and `--config`.
func WithPath(path string) *Manager {
	return &Manager{path: path}
}

// Path returns the config file path this Manager reads and writes.
func (m *Manager) Path() string { return m.path }

// DefaultConfigPath returns `<user config dir>/minotaur/config.toml`.
func DefaultConfigPath() (string, error) {
	dir, err := userConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "minotaur", "config.toml"), nil
}

// StateDir returns the directory minotaur uses for session records,
// cached credentials, and the audit log.
func StateDir() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", minoerrors.IO("resolving home directory", err)
	}
	if xdg := os.Getenv("XDG_STATE_HOME"); xdg != "" {
		return filepath.Join(xdg, "minotaur"), nil
	}
	return filepath.Join(home, ".local", "state", "minotaur"), nil
}

// SessionsDir returns the directory holding one JSON file per session.
func SessionsDir() (string, error) {
	state, err := StateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(state, "sessions"), nil
}

// CredentialsDir returns the path of the directory holding cached provider
// credentials; it does not create it (EnsureStateDirs and the credential
// cache create it with 0700 permissions).
func CredentialsDir() (string, error) {
	state, err := StateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(state, "credentials"), nil
}

// AuditLogPath returns the path to the append-only audit log file.
func AuditLogPath() (string, error) {
	state, err := StateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(state, "audit.log"), nil
}

// UserConfigDir returns the XDG-aware user config root (not
// minotaur-specific), exported for packages that resolve their own
// project-local/user-global/built-in tiers under it, such as pkg/layer.
func UserConfigDir() (string, error) {
	return userConfigDir()
}

func userConfigDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return xdg, nil
	}
	home, err := homedir.Dir()
	if err != nil {
		return "", minoerrors.IO("resolving home directory", err)
	}
	return filepath.Join(home, ".config"), nil
}

// EnsureStateDirs creates the state, sessions, and credentials
// directories, locking the credentials directory down to 0700.
func EnsureStateDirs() error {
	state, err := StateDir()
	if err != nil {
		return err
	}
	sessions, err := SessionsDir()
	if err != nil {
		return err
	}
	credentials, err := CredentialsDir()
	if err != nil {
		return err
	}

	for _, dir := range []string{state, sessions, credentials} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return minoerrors.IO("creating directory "+dir, err)
		}
	}

	if err := os.Chmod(credentials, 0o700); err != nil {
		return minoerrors.IO("setting credentials directory permissions", err)
	}
	return nil
}

// Load reads the config file at m.path, falling back to Default() if it
// does not exist.
func (m *Manager) Load() (Config, error) {
	if _, err := os.Stat(m.path); os.IsNotExist(err) {
		log.Debug().Str("path", m.path).Msg("config file not found, using defaults")
		return Default(), nil
	}

	return m.LoadFromFile(m.path)
}

// LoadFromFile reads and merges a TOML config file over Default().
func (m *Manager) LoadFromFile(path string) (Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, minoerrors.ConfigInvalid(path, err.Error())
	}
	return cfg, nil
}

// Save writes cfg to m.path as pretty-printed TOML, creating parent
// directories as needed.
func (m *Manager) Save(cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return minoerrors.IO("creating config directory", err)
	}

	f, err := os.Create(m.path)
	if err != nil {
		return minoerrors.IO("creating config file "+m.path, err)
	}
	defer f.Close()

	enc := toml.NewEncoder(f)
	if err := enc.Encode(cfg); err != nil {
		return minoerrors.Serialization("encoding config", err)
	}

	log.Info().Str("path", m.path).Msg("configuration saved")
	return nil
}

// MergeProjectOverride layers a `.minotaur.toml` found in projectDir on
// top of base, field by field at the section level: any section present
// in the project file replaces base's section wholesale. Returns base
// unchanged if no project override file exists.
func MergeProjectOverride(base Config, projectDir string) (Config, error) {
	path := filepath.Join(projectDir, ".minotaur.toml")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return base, nil
	}

	var override Config
	meta, err := toml.DecodeFile(path, &override)
	if err != nil {
		return Config{}, minoerrors.ConfigInvalid(path, err.Error())
	}

	merged := base
	if meta.IsDefined("general") {
		merged.General = override.General
	}
	if meta.IsDefined("vm") {
		merged.VM = override.VM
	}
	if meta.IsDefined("container") {
		merged.Container = override.Container
	}
	if meta.IsDefined("credentials") {
		merged.Credentials = override.Credentials
	}
	if meta.IsDefined("session") {
		merged.Session = override.Session
	}
	if meta.IsDefined("cache") {
		merged.Cache = override.Cache
	}
	return merged, nil
}
