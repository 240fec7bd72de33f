// Package config holds the pkgng configuration: the configured repositories
// and the settings that locate catalogs, the package cache and the install root.
// A Config is loaded once and handed to every component constructor.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"

	"github.com/glorpus-work/pkgng/pkg/errors"
	"github.com/glorpus-work/pkgng/pkg/fsutil"
)

// Config represents the application configuration.
type Config struct {
	Repositories []*RepositoryConfig `yaml:"repositories"`
	Settings     Settings            `yaml:"settings"`
}

// SignatureType selects how a repository's catalog archives are authenticated.
type SignatureType string

// Supported signature types.
const (
	SignatureNone   SignatureType = "none"
	SignaturePubkey SignatureType = "pubkey"
)

// SignatureConfig names the key used to verify a repository.
type SignatureConfig struct {
	Type SignatureType `yaml:"type"`
	// Key is the path to a PEM RSA public key or an armored OpenPGP key.
	Key string `yaml:"key,omitempty"`
}

// AuthConfig holds the credentials sent to a repository site. Values may
// reference environment variables as $NAME or ${NAME}.
type AuthConfig struct {
	// Type is basic, bearer or header.
	Type     string            `yaml:"type"`
	Username string            `yaml:"username,omitempty"`
	Password string            `yaml:"password,omitempty"`
	Token    string            `yaml:"token,omitempty"`
	Headers  map[string]string `yaml:"headers,omitempty"`
}

// RepositoryConfig represents a single remote repository.
type RepositoryConfig struct {
	Name        string          `yaml:"name"`
	URL         string          `yaml:"url"`
	Enabled     bool            `yaml:"enabled"`
	Signature   SignatureConfig `yaml:"signature,omitempty"`
	Auth        *AuthConfig     `yaml:"auth,omitempty"`
	Incremental bool            `yaml:"incremental"`
}

// UnmarshalYAML decodes a repository entry. Repositories are enabled unless
// the entry says otherwise.
func (r *RepositoryConfig) UnmarshalYAML(node *yaml.Node) error {
	type plain RepositoryConfig
	raw := plain{Enabled: true}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	*r = RepositoryConfig(raw)
	return nil
}

// Settings represents general application settings.
type Settings struct {
	// Catalog and cache locations
	DBDir    string `yaml:"db_dir,omitempty"`
	CacheDir string `yaml:"cache_dir,omitempty"`
	RootDir  string `yaml:"root_dir,omitempty"`

	// ABI is the platform string remote catalogs must match. Detected from
	// ABIReference when empty.
	ABI          string `yaml:"abi,omitempty"`
	ABIReference string `yaml:"abi_reference,omitempty"`
	RepoExt      string `yaml:"repo_ext,omitempty"`

	AssumeYes       bool `yaml:"assume_yes"`
	AutoUpdate      bool `yaml:"autoupdate"`
	HandleRCScripts bool `yaml:"handle_rc_scripts"`
	AddMissingDeps  bool `yaml:"add_missing_deps"`
	RegisterShlibs  bool `yaml:"register_shlibs"`
	DeveloperMode   bool `yaml:"developer_mode"`

	HTTPTimeout time.Duration `yaml:"http_timeout"`
	UserAgent   string        `yaml:"user_agent,omitempty"`
	LogLevel    string        `yaml:"log_level"`
}

// Default configuration values.
const (
	DefaultHTTPTimeout  = 30 * time.Second
	DefaultRepoExt      = "txz"
	DefaultABIReference = "/bin/sh"
	DefaultLogLevel     = "info"

	// LocalCatalogName is the catalog of installed packages.
	LocalCatalogName = "local"

	// YAMLIndent is the number of spaces to use for YAML indentation.
	YAMLIndent = 2

	systemConfigPath = "/usr/local/etc/pkg.yaml"
	appName          = "pkgng"
)

// DefaultConfig returns a configuration with sensible defaults. The superuser
// gets the system locations, everybody else gets XDG directories.
func DefaultConfig() *Config {
	s := Settings{
		ABIReference: DefaultABIReference,
		RepoExt:      DefaultRepoExt,
		AutoUpdate:   true,
		HTTPTimeout:  DefaultHTTPTimeout,
		LogLevel:     DefaultLogLevel,
	}
	if os.Geteuid() == 0 {
		s.DBDir = "/var/db/pkg"
		s.CacheDir = "/var/cache/pkg"
		s.RootDir = "/"
	} else {
		s.DBDir = filepath.Join(xdg.DataHome, appName, "db")
		s.CacheDir = filepath.Join(xdg.CacheHome, appName)
		s.RootDir = filepath.Join(xdg.DataHome, appName, "root")
	}
	return &Config{
		Repositories: []*RepositoryConfig{},
		Settings:     s,
	}
}

// LoadConfig loads configuration from a file. A missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, errors.ErrEmptyConfigPath
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInvalidConfigPath, err.Error())
	}

	file, err := os.Open(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, errors.Wrapf(err, "failed to open config file: %s", path)
	}
	defer func() { _ = file.Close() }()

	return LoadConfigFromReader(file)
}

// LoadConfigFromReader loads configuration from an io.Reader.
func LoadConfigFromReader(reader io.Reader) (*Config, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config data")
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, errors.Wrap(errors.ErrConfigParse, err.Error())
	}
	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// SaveConfig writes the configuration to path through a temporary file.
func (c *Config) SaveConfig(path string) error {
	if path == "" {
		return errors.ErrEmptyConfigPath
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return errors.Wrap(errors.ErrInvalidConfigPath, err.Error())
	}
	if err := fsutil.EnsureFileDir(absPath); err != nil {
		return errors.Wrap(errors.ErrConfigDirectory, err.Error())
	}

	file, err := os.CreateTemp(filepath.Dir(absPath), ".pkg.yaml-*")
	if err != nil {
		return errors.Wrap(errors.ErrConfigFileCreate, err.Error())
	}
	tempPath := file.Name()
	defer func() { _ = os.Remove(tempPath) }()

	encoder := yaml.NewEncoder(file)
	encoder.SetIndent(YAMLIndent)
	if err := encoder.Encode(c); err != nil {
		_ = file.Close()
		return errors.Wrap(errors.ErrConfigEncode, err.Error())
	}
	_ = encoder.Close()
	if err := file.Close(); err != nil {
		return errors.Wrap(errors.ErrConfigEncode, err.Error())
	}
	if err := os.Chmod(tempPath, fsutil.FileModeDefault); err != nil {
		return errors.Wrap(errors.ErrConfigFileCreate, err.Error())
	}
	return os.Rename(tempPath, absPath)
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c == nil {
		return errors.ErrConfigValidation
	}
	seen := make(map[string]bool, len(c.Repositories))
	for i, repo := range c.Repositories {
		switch {
		case repo.Name == "":
			return fmt.Errorf("%w: repository at index %d has no name", errors.ErrConfigValidation, i)
		case repo.Name == LocalCatalogName:
			return fmt.Errorf("%w: repository name %q is reserved", errors.ErrConfigValidation, repo.Name)
		case strings.ContainsAny(repo.Name, `/\`):
			return fmt.Errorf("%w: repository name %q contains a path separator", errors.ErrConfigValidation, repo.Name)
		case repo.URL == "":
			return fmt.Errorf("%w: repository %s has no url", errors.ErrConfigValidation, repo.Name)
		case seen[repo.Name]:
			return fmt.Errorf("%w: repository %s is defined twice", errors.ErrConfigValidation, repo.Name)
		}
		seen[repo.Name] = true

		switch repo.Signature.Type {
		case "", SignatureNone:
		case SignaturePubkey:
			if repo.Signature.Key == "" {
				return fmt.Errorf("%w: repository %s uses pubkey signatures without a key", errors.ErrConfigValidation, repo.Name)
			}
		default:
			return fmt.Errorf("%w: repository %s has unknown signature type %q", errors.ErrConfigValidation, repo.Name, repo.Signature.Type)
		}
		if err := repo.Auth.validate(); err != nil {
			return fmt.Errorf("%w: repository %s: %v", errors.ErrConfigValidation, repo.Name, err)
		}
	}

	if c.Settings.HTTPTimeout < 0 {
		return fmt.Errorf("%w: http_timeout cannot be negative", errors.ErrConfigValidation)
	}
	switch strings.ToLower(c.Settings.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("%w: invalid log level %q", errors.ErrConfigValidation, c.Settings.LogLevel)
	}
	return nil
}

func (a *AuthConfig) validate() error {
	if a == nil {
		return nil
	}
	switch a.Type {
	case "basic":
		if a.Username == "" {
			return fmt.Errorf("basic auth without a username")
		}
	case "bearer":
		if a.Token == "" {
			return fmt.Errorf("bearer auth without a token")
		}
	case "header":
		if len(a.Headers) == 0 {
			return fmt.Errorf("header auth without headers")
		}
	default:
		return fmt.Errorf("unknown auth type %q", a.Type)
	}
	return nil
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() (string, error) {
	if os.Geteuid() == 0 {
		return systemConfigPath, nil
	}
	path, err := xdg.ConfigFile(filepath.Join(appName, "pkg.yaml"))
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}
	return path, nil
}

// Repository returns the repository called name, or nil.
func (c *Config) Repository(name string) *RepositoryConfig {
	for _, repo := range c.Repositories {
		if repo.Name == name {
			return repo
		}
	}
	return nil
}

// EnabledRepositories returns the enabled repositories in configuration order.
func (c *Config) EnabledRepositories() []*RepositoryConfig {
	var repos []*RepositoryConfig
	for _, repo := range c.Repositories {
		if repo.Enabled {
			repos = append(repos, repo)
		}
	}
	return repos
}

// CatalogPath returns the local mirror catalog of the named repository.
func (c *Config) CatalogPath(repo string) string {
	return filepath.Join(c.Settings.DBDir, repo+".sqlite")
}

// LocalCatalogPath returns the catalog of installed packages.
func (c *Config) LocalCatalogPath() string {
	return c.CatalogPath(LocalCatalogName)
}

// CachePath returns where a package with the given repository path is cached.
func (c *Config) CachePath(repoPath string) string {
	return filepath.Join(c.Settings.CacheDir, filepath.FromSlash(strings.TrimPrefix(repoPath, "/")))
}

// applyDefaults fills in missing values with defaults.
func (c *Config) applyDefaults() {
	defaults := DefaultConfig().Settings

	if c.Settings.DBDir == "" {
		c.Settings.DBDir = defaults.DBDir
	}
	if c.Settings.CacheDir == "" {
		c.Settings.CacheDir = defaults.CacheDir
	}
	if c.Settings.RootDir == "" {
		c.Settings.RootDir = defaults.RootDir
	}
	if c.Settings.ABIReference == "" {
		c.Settings.ABIReference = defaults.ABIReference
	}
	if c.Settings.RepoExt == "" {
		c.Settings.RepoExt = defaults.RepoExt
	}
	if c.Settings.HTTPTimeout == 0 {
		c.Settings.HTTPTimeout = defaults.HTTPTimeout
	}
	if c.Settings.LogLevel == "" {
		c.Settings.LogLevel = defaults.LogLevel
	}
}
