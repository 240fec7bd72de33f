package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SettingKeys lists the keys SetValue and GetValue accept.
var SettingKeys = []string{
	"db_dir", "cache_dir", "root_dir", "abi", "abi_reference", "repo_ext",
	"assume_yes", "autoupdate", "handle_rc_scripts", "add_missing_deps",
	"register_shlibs", "developer_mode", "http_timeout", "user_agent", "log_level",
}

// SetValue overrides a setting by its configuration key, as given on the
// command line with -o KEY=VALUE. Keys are case-insensitive.
func (c *Config) SetValue(key, value string) error {
	s := &c.Settings
	switch strings.ToLower(key) {
	case "db_dir":
		s.DBDir = value
	case "cache_dir":
		s.CacheDir = value
	case "root_dir":
		s.RootDir = value
	case "abi":
		s.ABI = value
	case "abi_reference":
		s.ABIReference = value
	case "repo_ext":
		s.RepoExt = value
	case "user_agent":
		s.UserAgent = value
	case "log_level":
		s.LogLevel = value
	case "http_timeout":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for %s: %s", key, value)
		}
		s.HTTPTimeout = d
	default:
		b, ok := c.boolSetting(key)
		if !ok {
			return fmt.Errorf("unknown configuration key: %s", key)
		}
		v, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean value for %s: %s", key, value)
		}
		*b = v
	}
	return nil
}

// GetValue returns a setting rendered as a string.
func (c *Config) GetValue(key string) (string, error) {
	s := c.Settings
	switch strings.ToLower(key) {
	case "db_dir":
		return s.DBDir, nil
	case "cache_dir":
		return s.CacheDir, nil
	case "root_dir":
		return s.RootDir, nil
	case "abi":
		return s.ABI, nil
	case "abi_reference":
		return s.ABIReference, nil
	case "repo_ext":
		return s.RepoExt, nil
	case "user_agent":
		return s.UserAgent, nil
	case "log_level":
		return s.LogLevel, nil
	case "http_timeout":
		return s.HTTPTimeout.String(), nil
	}
	if b, ok := c.boolSetting(key); ok {
		return strconv.FormatBool(*b), nil
	}
	return "", fmt.Errorf("unknown configuration key: %s", key)
}

func (c *Config) boolSetting(key string) (*bool, bool) {
	s := &c.Settings
	switch strings.ToLower(key) {
	case "assume_yes":
		return &s.AssumeYes, true
	case "autoupdate":
		return &s.AutoUpdate, true
	case "handle_rc_scripts":
		return &s.HandleRCScripts, true
	case "add_missing_deps":
		return &s.AddMissingDeps, true
	case "register_shlibs":
		return &s.RegisterShlibs, true
	case "developer_mode":
		return &s.DeveloperMode, true
	}
	return nil, false
}
