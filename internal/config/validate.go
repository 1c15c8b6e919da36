package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/nso-developer/nsocmd/internal/errors"
)

var validate = validator.New()

// Validate checks the config for errors and returns structured error
// messages.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New(errors.ErrConfig,
			"Config is nil",
			"This is unexpected - try running the command again.")
	}
	if err := validate.Struct(cfg); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			"Invalid configuration",
			describe(err))
	}
	return nil
}

// describe turns validator errors into user-facing hints keyed by the
// config file names.
func describe(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	hints := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		hints = append(hints, hint(fe))
	}
	return strings.Join(hints, "\n  ")
}

func hint(fe validator.FieldError) string {
	key := configKey(fe.Namespace())
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("'%s' can't be empty.", key)
	case "oneof":
		return fmt.Sprintf("'%s' is %q, want one of: %s.", key, fmt.Sprint(fe.Value()), strings.ReplaceAll(fe.Param(), " ", ", "))
	case "gte":
		return fmt.Sprintf("'%s' can't be negative.", key)
	case "gt":
		return fmt.Sprintf("'%s' must be positive.", key)
	}
	return fmt.Sprintf("'%s' failed the %s check.", key, fe.Tag())
}

var keyNames = map[string]string{
	"Target":                "target",
	"Style":                 "style",
	"TimeLimit":             "time_limit",
	"CLI":                   "cli",
	"Runtime":               "runtime",
	"User":                  "user",
	"SSH":                   "ssh",
	"Timeout":               "timeout",
	"StrictHostKeyChecking": "strict_host_key_checking",
	"IdentityFile":          "identity_file",
	"KnownHosts":            "known_hosts",
	"Output":                "output",
	"Format":                "format",
	"Color":                 "color",
	"Log":                   "log",
}

// configKey maps a validator namespace like "Config.Output.Format" to the
// config key "output.format".
func configKey(namespace string) string {
	parts := strings.Split(namespace, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	for i, p := range parts {
		if k, ok := keyNames[p]; ok {
			parts[i] = k
		} else {
			parts[i] = strings.ToLower(p)
		}
	}
	return strings.Join(parts, ".")
}
