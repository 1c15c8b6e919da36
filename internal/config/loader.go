package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/nso-developer/nsocmd/internal/errors"
	"github.com/spf13/viper"
)

const (
	// ConfigFileName is the project config file name.
	ConfigFileName = ".nsocmd.yaml"
	// GlobalConfigDir is the directory for global config, relative to $HOME.
	GlobalConfigDir = ".config/nsocmd"
	// GlobalConfigFile is the global config file name.
	GlobalConfigFile = "config.yaml"

	// EnvPrefix prefixes environment overrides: NSOCMD_TIME_LIMIT,
	// NSOCMD_SSH_HOST, ...
	EnvPrefix = "NSOCMD"
	// TargetEnv names the target container, for compatibility with
	// existing CI setups.
	TargetEnv = "NSO_CNT"
)

// NewViper returns a viper instance with defaults and environment bindings
// set. Callers bind flags on it before calling Load.
func NewViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("target", TargetEnv, EnvPrefix+"_TARGET")

	return v
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("target", d.Target)
	v.SetDefault("style", d.Style)
	v.SetDefault("time_limit", d.TimeLimit)
	v.SetDefault("suppress_error", d.SuppressError)
	v.SetDefault("on_fail", d.OnFail)
	v.SetDefault("cli.runtime", d.CLI.Runtime)
	v.SetDefault("cli.user", d.CLI.User)
	v.SetDefault("cli.prelude", d.CLI.Prelude)
	v.SetDefault("ssh.host", d.SSH.Host)
	v.SetDefault("ssh.user", d.SSH.User)
	v.SetDefault("ssh.identity_file", d.SSH.IdentityFile)
	v.SetDefault("ssh.known_hosts", d.SSH.KnownHosts)
	v.SetDefault("ssh.strict_host_key_checking", d.SSH.StrictHostKeyChecking)
	v.SetDefault("ssh.timeout", d.SSH.Timeout)
	v.SetDefault("output.format", d.Output.Format)
	v.SetDefault("output.color", d.Output.Color)
	v.SetDefault("log.debug", d.Log.Debug)
	v.SetDefault("log.format", d.Log.Format)
}

// Find locates the config file using the search order:
// 1. Explicit path (from --config flag)
// 2. .nsocmd.yaml in current directory
// 3. ~/.config/nsocmd/config.yaml (global defaults)
//
// Returns the path to the config file, or empty string if not found.
func Find(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			if os.IsNotExist(err) {
				return "", errors.WrapWithCode(err, errors.ErrConfig,
					"Specified config file not found: "+explicit,
					"Check the path is correct")
			}
			return "", errors.WrapWithCode(err, errors.ErrConfig,
				"Cannot access config file: "+explicit,
				"Check file permissions")
		}
		return explicit, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", errors.WrapWithCode(err, errors.ErrConfig,
			"Cannot determine current directory",
			"Check directory permissions")
	}
	localConfig := filepath.Join(cwd, ConfigFileName)
	if _, err := os.Stat(localConfig); err == nil {
		return localConfig, nil
	}

	if home, err := os.UserHomeDir(); err == nil && home != "" {
		globalConfig := filepath.Join(home, GlobalConfigDir, GlobalConfigFile)
		if _, err := os.Stat(globalConfig); err == nil {
			return globalConfig, nil
		}
	}

	return "", nil
}

// Load reads the config file at path (if any) into v and returns the
// merged, validated Config. Precedence: flags > environment > file >
// defaults.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if os.IsNotExist(err) {
				return nil, errors.WrapWithCode(err, errors.ErrConfig,
					"Config file not found",
					"Create "+ConfigFileName+" or specify one with --config")
			}
			return nil, errors.WrapWithCode(err, errors.ErrConfig,
				"Failed to read config file",
				"Check the file exists and is valid YAML")
		}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		where := "your settings"
		if path != "" {
			where = path
		}
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Invalid config format",
			"Check the values in "+where)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
