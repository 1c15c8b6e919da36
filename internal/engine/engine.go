// Package engine runs a command against an NSO container, classifies the
// output with success/fail patterns and retries on a fixed interval until
// the command succeeds or the time limit runs out.
//
// An attempt is classified as:
//
//	FatalTransportError  the target or the container runtime can't be
//	                     reached; never retried
//	Failure              fail pattern matched (never retried), ncs_cli
//	                     rejected the command (exit 8), non-zero exit,
//	                     success pattern not matched, or the executor
//	                     failed unexpectedly (all retried)
//	Success              success pattern matched, or no patterns set
//
// The fail pattern is checked before the exit status, so a matching fail
// pattern stops the loop even when ncs_cli also rejected the command.
//
// Retries happen only when Request.Retry is set and another attempt would
// start within Request.TimeLimit of the first one. The first attempt always
// runs.
//
// An Engine is not safe for concurrent use. Requests executed one after
// another on the same Engine share its duplicate-failure state.
package engine

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/nso-developer/nsocmd/internal/errors"
	"github.com/nso-developer/nsocmd/internal/exec"
	"github.com/nso-developer/nsocmd/internal/logger"
)

const (
	// RetryInterval is the pause between attempts.
	RetryInterval = 5 * time.Second

	// StopOnErrorExit is the exit status of "ncs_cli --stop-on-error" when
	// it rejects a command (syntax and other application errors).
	StopOnErrorExit = 8

	unhandledReport = "Unhandled error executing command"
)

// Formatter turns a target and raw command into an invocation string.
type Formatter interface {
	Format(target, command string) string
}

// Engine executes Requests. Create one with New.
type Engine struct {
	executor  exec.Executor
	formatter Formatter
	reporter  Reporter
	clock     Clock
	log       logger.Logger
	dedupe    dedupe
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithLogger sets the diagnostic logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// New creates an Engine. formatter may be nil if every request runs in
// shell mode; reporter may be nil to discard events.
func New(executor exec.Executor, formatter Formatter, reporter Reporter, opts ...Option) *Engine {
	if reporter == nil {
		reporter = NopReporter{}
	}
	e := &Engine{
		executor:  executor,
		formatter: formatter,
		reporter:  reporter,
		clock:     realClock{},
		log:       logger.Noop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs req until it succeeds, fails for good, or runs out of time.
// It blocks for the whole retry loop.
func (e *Engine) Execute(ctx context.Context, req Request) Result {
	p, err := req.compile()
	if err != nil {
		e.reporter.Error(err)
		return Result{Kind: OutcomeFailure, Err: err}
	}
	if !req.Shell && e.formatter == nil {
		err := errors.New(errors.ErrConfig,
			"No formatter configured for NSO CLI commands",
			"Use shell mode (--shell).")
		e.reporter.Error(err)
		return Result{Kind: OutcomeFailure, Err: err}
	}

	invocation := req.Command
	if !req.Shell {
		invocation = e.formatter.Format(req.Target, req.Command)
	}
	e.reporter.Executing(invocation)

	start := e.clock.Now()
	policy := retryPolicy(req, e.clock)

	for number := 1; ; number++ {
		a, retryable := e.attempt(ctx, req, p, invocation, start, number)
		e.log.Debug("attempt %d: %s exit=%d elapsed=%ds",
			a.Number, a.Classification, a.ExitCode, a.ElapsedSeconds())

		switch a.Classification {
		case Success:
			e.reporter.Success(a)
			return Result{Kind: OutcomeSuccess, Attempts: number, Last: a}
		case FatalTransportError:
			e.report(req, a, false)
			return Result{Kind: OutcomeTransportFatal, Attempts: number, Last: a, Err: a.Err}
		}

		interval := backoff.Stop
		if retryable && req.Retry {
			interval = policy.NextBackOff()
		}
		next := interval != backoff.Stop
		e.report(req, a, next)

		if !next {
			kind := OutcomeFailure
			if retryable && req.Retry {
				kind = OutcomeTimeLimitExceeded
			}
			return Result{Kind: kind, Attempts: number, Last: a, Err: a.Err}
		}

		if err := e.clock.Sleep(ctx, interval); err != nil {
			e.log.Debug("retry sleep interrupted: %v", err)
			return Result{Kind: OutcomeFailure, Attempts: number, Last: a, Err: err}
		}
	}
}

// retryPolicy returns the pause before each retry: RetryInterval while the
// next attempt would start within req.TimeLimit of the first, then
// backoff.Stop.
func retryPolicy(req Request, clock Clock) backoff.BackOff {
	if !req.Retry || req.TimeLimit <= 0 {
		return &backoff.StopBackOff{}
	}
	return backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(RetryInterval),
		backoff.WithMaxInterval(RetryInterval),
		backoff.WithMultiplier(1),
		backoff.WithRandomizationFactor(0),
		backoff.WithMaxElapsedTime(req.TimeLimit),
		backoff.WithClockProvider(clock),
	)
}

// attempt runs the invocation once and classifies the result. The second
// return value tells whether a Failure may be retried.
func (e *Engine) attempt(ctx context.Context, req Request, p patterns, invocation string, start time.Time, number int) (Attempt, bool) {
	res, err := e.executor.Run(ctx, invocation)

	a := Attempt{
		Number:  number,
		Elapsed: e.clock.Now().Sub(start),
	}
	if res != nil {
		a.Output = string(res.Output)
		a.ExitCode = res.ExitCode
	}

	if err != nil {
		a.Err = err
		if errors.IsCode(err, errors.ErrTransport) {
			a.Classification = FatalTransportError
			a.Report = err.Error()
			return a, false
		}
		a.Classification = Failure
		a.Report = unhandledReport
		if ctx.Err() != nil {
			return a, false
		}
		e.reporter.Error(err)
		return a, true
	}

	if exec.IsRuntimeUnavailable(a.Output, a.ExitCode) {
		a.Classification = FatalTransportError
		a.Report = a.Output
		a.Err = errors.WrapWithCode(firstLine(a.Output), errors.ErrTransport,
			"Container runtime is not reachable",
			"Start the docker daemon, or check --runtime and DOCKER_HOST.")
		return a, false
	}

	if name, missing := exec.IsTargetNotFound(a.Output, a.ExitCode); missing {
		if name == "" {
			name = req.Target
		}
		a.Classification = FatalTransportError
		a.Report = a.Output
		a.Err = errors.New(errors.ErrTransport,
			fmt.Sprintf("No NSO container %s", name),
			"Check the container is running: docker ps")
		return a, false
	}

	if p.fail != nil && p.fail.MatchString(a.Output) {
		a.Classification = Failure
		a.Report = a.Output
		return a, false
	}

	if a.ExitCode == StopOnErrorExit && !req.Shell {
		a.Classification = Failure
		a.Report = fmt.Sprintf("\"ncs_cli --stop-on-error\" stopped execution:\n\n%s", a.Output)
		return a, true
	}

	if a.ExitCode != 0 {
		a.Classification = Failure
		status := fmt.Sprintf("exit status %d", a.ExitCode)
		if cmd, notFound := exec.IsCommandNotFound(a.Output, a.ExitCode); notFound && cmd != "" {
			status += fmt.Sprintf(", '%s' not found", cmd)
		}
		a.Report = fmt.Sprintf("Command failed (%s):\n\n%s", status, a.Output)
		return a, true
	}

	if p.success != nil {
		if p.success.MatchString(a.Output) {
			a.Classification = Success
			return a, false
		}
		a.Classification = Failure
		a.Report = a.Output
		return a, true
	}

	a.Classification = Success
	return a, false
}

func firstLine(output string) error {
	line, _, _ := strings.Cut(strings.TrimSpace(output), "\n")
	return stderrors.New(line)
}

// report routes a failing attempt through duplicate suppression.
func (e *Engine) report(req Request, a Attempt, willRetry bool) {
	if !e.dedupe.admit(a.Report, req.SuppressErrorOutput, !willRetry) {
		e.log.Debug("attempt %d: failure output unchanged, not reported", a.Number)
		return
	}
	if a.Classification == FatalTransportError {
		e.reporter.TransportFatal(req.Target, a)
		return
	}
	e.reporter.Failure(a, willRetry)
}
