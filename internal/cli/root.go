package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/nso-developer/nsocmd/internal/config"
	"github.com/nso-developer/nsocmd/internal/engine"
	"github.com/nso-developer/nsocmd/internal/errors"
	"github.com/nso-developer/nsocmd/internal/exec"
	"github.com/nso-developer/nsocmd/internal/logger"
	"github.com/nso-developer/nsocmd/internal/nsocli"
	"github.com/nso-developer/nsocmd/internal/ui"
	"github.com/spf13/cobra"
)

// newExecutor picks the executor for cfg: local by default, SSH when a
// remote docker host is configured. The returned func releases it.
var newExecutor = func(cfg *config.Config, log logger.Logger) (exec.Executor, func()) {
	if cfg.SSH.Host == "" {
		return exec.NewLocalExecutor(), func() {}
	}
	ex := exec.NewSSHExecutor(cfg.SSH.Host, cfg.SSH.DialOptions(), log.With("component", "ssh"))
	return ex, func() { _ = ex.Close() }
}

// session is the state of one CLI invocation, built once flags are parsed.
type session struct {
	flags globalFlags

	cfg      *config.Config
	runID    string
	log      logger.Logger
	reporter ui.Reporter
	engine   *engine.Engine
	release  func()
}

func newRootCmd() *cobra.Command {
	s := &session{}
	var rf runFlags

	cmd := &cobra.Command{
		Use:   "nsocmd [flags] <command>",
		Short: "Run NSO CLI commands in a container, with output patterns and retries",
		Long: `Run a command through ncs_cli in an NSO container and check its output.

Commands run in the container given by --nso-cnt (or $NSO_CNT) through
"docker exec ... ncs_cli". Use --shell to run a plain shell command instead.

Without patterns the output passes through unchecked. With --success-pattern
the command fails unless the pattern matches; with --retry it is retried
every 5 seconds until it matches or --time-limit runs out. A match of
--fail-pattern fails immediately, without retrying.

After a failure the --on-fail command runs once ("show al:alarms" by default
for NSO CLI commands).

Examples:
  nsocmd "show ncs-state version"
  nsocmd -r -t 120 -s "result true" "devices device ce0 sync-from"
  nsocmd -f "Error" "config; devices global-settings read-timeout 60; commit"
  nsocmd -b "ls /var/log/ncs"`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := s.open(cmd); err != nil {
				return err
			}
			defer s.close()
			return s.runCommand(cmd.Context(), args[0], rf)
		},
	}

	addGlobalFlags(cmd, &s.flags)
	addRunFlags(cmd, &rf)

	cmd.AddCommand(newBatchCmd(s))
	cmd.AddCommand(newVersionCmd())
	return cmd
}

// open resolves the configuration and wires the engine.
func (s *session) open(cmd *cobra.Command) error {
	v := config.NewViper()
	if err := bindFlags(v, cmd.Flags(), &s.flags); err != nil {
		return err
	}
	path, err := config.Find(s.flags.configPath)
	if err != nil {
		return err
	}
	cfg, err := config.Load(v, path)
	if err != nil {
		return err
	}
	s.cfg = cfg

	s.runID = uuid.NewString()
	s.log = logger.New(logger.Options{
		Debug:  cfg.Log.Debug,
		Format: cfg.Log.Format,
		Name:   "nsocmd",
		Output: cmd.ErrOrStderr(),
	}).With("run", s.runID)
	logger.SetDefault(s.log)
	if path != "" {
		s.log.Debug("loaded config from %s", path)
	}

	out := cmd.OutOrStdout()
	if err := ui.ConfigureColors(cfg.Output.Color, out); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig, "Invalid --color", "Use auto, always or never.")
	}
	if cfg.Output.Format == "json" {
		s.reporter = ui.NewJSONReporter(out, s.runID)
	} else {
		s.reporter = ui.NewTextReporter(out)
	}

	if cfg.SSH.Host != "" && !cfg.SSH.StrictHostKeyChecking {
		ui.PrintWarning(cmd.ErrOrStderr(), fmt.Sprintf("SSH host key checking is disabled for %s", cfg.SSH.Host))
	}

	style, _ := nsocli.ParseStyle(cfg.Style)
	formatter := &nsocli.Formatter{
		Runtime: cfg.CLI.Runtime,
		User:    cfg.CLI.User,
		Prelude: cfg.CLI.Prelude,
		Style:   style,
	}

	executor, release := newExecutor(cfg, s.log)
	s.release = release
	s.engine = engine.New(executor, formatter, s.reporter,
		engine.WithLogger(s.log.With("component", "engine")))

	s.log.Debug("target=%s style=%q ssh=%q", cfg.Target, cfg.Style, cfg.SSH.Host)
	return nil
}

func (s *session) close() {
	if s.release != nil {
		s.release()
	}
}

// Execute runs the CLI with the process arguments. Errors other than
// *errors.ExitError have already been printed to stderr.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return nil
	}
	if _, ok := errors.GetExitCode(err); ok {
		return err
	}

	msg := err.Error()
	if !strings.HasPrefix(msg, "✗") {
		msg = "✗ " + msg + "\n\n  Run 'nsocmd --help' for usage.\n"
	}
	fmt.Fprint(stderr, msg)
	return err
}
