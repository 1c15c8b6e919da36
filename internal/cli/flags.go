package cli

import (
	"github.com/nso-developer/nsocmd/internal/config"
	"github.com/nso-developer/nsocmd/internal/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// globalFlags are shared by the root command and batch.
type globalFlags struct {
	configPath      string
	cisco           bool
	juniper         bool
	insecureHostKey bool
}

// runFlags apply to a single command on the root.
type runFlags struct {
	successPattern string
	failPattern    string
	retry          bool
	shell          bool
}

// flagKeys maps config keys to the flags that override them.
var flagKeys = map[string]string{
	"target":         "nso-cnt",
	"time_limit":     "time-limit",
	"suppress_error": "suppress-error",
	"on_fail":        "on-fail",
	"cli.runtime":    "runtime",
	"ssh.host":       "ssh",
	"output.format":  "output",
	"output.color":   "color",
	"log.debug":      "debug",
	"log.format":     "log-format",
}

// addGlobalFlags registers the persistent flags on the root command.
func addGlobalFlags(cmd *cobra.Command, g *globalFlags) {
	pf := cmd.PersistentFlags()
	pf.StringVar(&g.configPath, "config", "", "config file (default: ./"+config.ConfigFileName+" or ~/"+config.GlobalConfigDir+"/"+config.GlobalConfigFile+")")
	pf.StringP("nso-cnt", "n", config.DefaultTarget, "name of the NSO container (env "+config.TargetEnv+")")
	pf.BoolVarP(&g.cisco, "cisco", "C", false, "use the Cisco-style NSO CLI")
	pf.BoolVarP(&g.juniper, "juniper", "J", false, "use the Juniper-style NSO CLI")
	pf.IntP("time-limit", "t", config.DefaultTimeLimit, "time limit in seconds for retries")
	pf.StringP("on-fail", "e", "", "command to run after failure (default \""+config.DefaultOnFail+"\" for NSO CLI commands)")
	pf.Bool("suppress-error", false, "suppress failure output during retries; the final failure is still shown")
	pf.String("runtime", config.DefaultRuntime, "container runtime used to reach the NSO container")
	pf.String("ssh", "", "run on a remote docker host over SSH (alias, host or user@host:port)")
	pf.BoolVar(&g.insecureHostKey, "insecure-host-key", false, "skip SSH host key verification")
	pf.String("output", "text", "output format: text or json")
	pf.String("color", "auto", "color output: auto, always or never")
	pf.Bool("debug", false, "enable debug logging on stderr")
	pf.String("log-format", "console", "log format: console or json")

	cmd.MarkFlagsMutuallyExclusive("cisco", "juniper")
	cmd.SetGlobalNormalizationFunc(normalizeFlagName)
}

// addRunFlags registers the flags that shape a single command.
func addRunFlags(cmd *cobra.Command, r *runFlags) {
	f := cmd.Flags()
	f.StringVarP(&r.successPattern, "success-pattern", "s", "", "succeed if the pattern matches the output; without it output passes through unchecked")
	f.StringVarP(&r.failPattern, "fail-pattern", "f", "", "fail immediately, without retrying, if the pattern matches the output")
	f.BoolVarP(&r.retry, "retry", "r", false, "retry on failure: ncs_cli exiting on error, or the success pattern not matching")
	f.BoolVarP(&r.shell, "shell", "b", false, "run the command in a shell, not the NSO CLI")
}

// normalizeFlagName accepts --target as an alias for --nso-cnt.
func normalizeFlagName(_ *pflag.FlagSet, name string) pflag.NormalizedName {
	if name == "target" {
		name = "nso-cnt"
	}
	return pflag.NormalizedName(name)
}

// bindFlags binds the override flags in fs to their config keys and
// applies the flags that don't map one to one.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet, g *globalFlags) error {
	for key, name := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return errors.WrapWithCode(err, errors.ErrConfig,
				"Can't bind --"+name,
				"This is a bug; please report it.")
		}
	}

	switch {
	case g.cisco:
		v.Set("style", "cisco")
	case g.juniper:
		v.Set("style", "juniper")
	}
	if g.insecureHostKey {
		v.Set("ssh.strict_host_key_checking", false)
	}
	return nil
}
