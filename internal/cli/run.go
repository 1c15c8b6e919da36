package cli

import (
	"context"

	"github.com/nso-developer/nsocmd/internal/config"
	"github.com/nso-developer/nsocmd/internal/engine"
	"github.com/nso-developer/nsocmd/internal/errors"
)

// runCommand runs a single command from the command line.
func (s *session) runCommand(ctx context.Context, command string, rf runFlags) error {
	req := engine.Request{
		Target:              s.cfg.Target,
		Command:             command,
		SuccessPattern:      rf.successPattern,
		FailPattern:         rf.failPattern,
		TimeLimit:           s.cfg.TimeLimitDuration(),
		Retry:               rf.retry,
		Shell:               rf.shell,
		SuppressErrorOutput: s.cfg.SuppressError,
	}

	res := s.execute(ctx, req, onFailCommand(s.cfg.OnFail, rf.shell))
	if !res.Succeeded() {
		return errors.NewExitError(1)
	}
	return nil
}

// execute runs req and, when it doesn't succeed, the on-fail command.
// The on-fail command's own result is ignored.
func (s *session) execute(ctx context.Context, req engine.Request, onFail string) engine.Result {
	res := s.engine.Execute(ctx, req)
	if res.Kind == engine.OutcomeTimeLimitExceeded {
		s.reporter.TimeLimitExceeded(req.TimeLimit)
	}
	s.reporter.Finish(res)
	s.log.Debug("%s after %d attempt(s)", res.Kind, res.Attempts)

	if res.Succeeded() || onFail == "" {
		return res
	}
	if ctx.Err() != nil {
		s.log.Debug("interrupted, skipping on-fail command")
		return res
	}

	s.reporter.OnFail(onFail)
	s.engine.Execute(ctx, engine.Request{
		Target:  req.Target,
		Command: onFail,
		Shell:   req.Shell,
	})
	return res
}

// onFailCommand returns the command to run after a failure. NSO CLI
// commands fall back to showing alarms; shell commands have no default.
func onFailCommand(configured string, shell bool) string {
	if configured == "" && !shell {
		return config.DefaultOnFail
	}
	return configured
}
