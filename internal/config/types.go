package config

import (
	"time"

	"github.com/nso-developer/nsocmd/pkg/sshutil"
)

// Defaults applied when neither flags, environment nor config file set a
// value.
const (
	DefaultTarget     = "ncs-test"
	DefaultTimeLimit  = 300 // seconds
	DefaultOnFail     = "show al:alarms"
	DefaultRuntime    = "docker"
	DefaultUser       = "admin"
	DefaultPrelude    = "unhide debug"
	DefaultSSHTimeout = sshutil.DefaultTimeout
)

// Config represents the resolved nsocmd settings.
type Config struct {
	// Target is the NSO container name.
	Target string `yaml:"target" mapstructure:"target"`

	// Style selects the NSO CLI flavour: "", "cisco" or "juniper".
	Style string `yaml:"style" mapstructure:"style" validate:"omitempty,oneof=cisco juniper"`

	// TimeLimit is the retry budget in seconds.
	TimeLimit int `yaml:"time_limit" mapstructure:"time_limit" validate:"gte=0"`

	SuppressError bool `yaml:"suppress_error" mapstructure:"suppress_error"`

	// OnFail overrides the command run after a failure.
	OnFail string `yaml:"on_fail" mapstructure:"on_fail"`

	CLI    CLIConfig    `yaml:"cli" mapstructure:"cli"`
	SSH    SSHConfig    `yaml:"ssh" mapstructure:"ssh"`
	Output OutputConfig `yaml:"output" mapstructure:"output"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// CLIConfig controls how NSO CLI commands are wrapped.
type CLIConfig struct {
	// Runtime is the container runtime binary (docker, podman).
	Runtime string `yaml:"runtime" mapstructure:"runtime" validate:"required"`

	// User is the NSO user ncs_cli logs in as.
	User string `yaml:"user" mapstructure:"user" validate:"required"`

	// Prelude is sent before every command. Empty disables it.
	Prelude string `yaml:"prelude" mapstructure:"prelude"`
}

// SSHConfig selects remote execution. Commands run locally when Host is
// empty.
type SSHConfig struct {
	// Host is an SSH destination: alias, host, user@host or user@host:port.
	Host string `yaml:"host" mapstructure:"host"`

	// User is the login user when Host has no user@ part.
	User string `yaml:"user" mapstructure:"user"`

	// IdentityFile is tried before the SSH agent and the default keys.
	IdentityFile string `yaml:"identity_file" mapstructure:"identity_file"`

	// KnownHosts defaults to ~/.ssh/known_hosts.
	KnownHosts string `yaml:"known_hosts" mapstructure:"known_hosts"`

	StrictHostKeyChecking bool `yaml:"strict_host_key_checking" mapstructure:"strict_host_key_checking"`

	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout" validate:"gt=0"`
}

// OutputConfig controls what the user sees.
type OutputConfig struct {
	// Format is "text" or "json".
	Format string `yaml:"format" mapstructure:"format" validate:"oneof=text json"`

	// Color is "auto", "always" or "never".
	Color string `yaml:"color" mapstructure:"color" validate:"oneof=auto always never"`
}

// LogConfig controls diagnostic logging on stderr.
type LogConfig struct {
	Debug bool `yaml:"debug" mapstructure:"debug"`

	// Format is "console" or "json".
	Format string `yaml:"format" mapstructure:"format" validate:"oneof=console json"`
}

// DefaultConfig returns a Config with defaults.
func DefaultConfig() *Config {
	return &Config{
		Target:    DefaultTarget,
		TimeLimit: DefaultTimeLimit,
		CLI: CLIConfig{
			Runtime: DefaultRuntime,
			User:    DefaultUser,
			Prelude: DefaultPrelude,
		},
		SSH: SSHConfig{
			StrictHostKeyChecking: true,
			Timeout:               DefaultSSHTimeout,
		},
		Output: OutputConfig{
			Format: "text",
			Color:  "auto",
		},
		Log: LogConfig{
			Format: "console",
		},
	}
}

// TimeLimitDuration returns TimeLimit as a duration.
func (c *Config) TimeLimitDuration() time.Duration {
	return SecondsDuration(c.TimeLimit)
}

// DialOptions returns the sshutil options for the configured docker host.
func (c SSHConfig) DialOptions() sshutil.Options {
	return sshutil.Options{
		User:                  c.User,
		IdentityFile:          c.IdentityFile,
		KnownHostsFile:        c.KnownHosts,
		InsecureIgnoreHostKey: !c.StrictHostKeyChecking,
		Timeout:               c.Timeout,
	}
}

// SecondsDuration converts whole seconds, as used by time_limit, to a
// duration.
func SecondsDuration(secs int) time.Duration {
	return time.Duration(secs) * time.Second
}
