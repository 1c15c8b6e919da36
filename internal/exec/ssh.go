package exec

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/nso-developer/nsocmd/internal/errors"
	"github.com/nso-developer/nsocmd/internal/logger"
	"github.com/nso-developer/nsocmd/pkg/sshutil"
	"github.com/sony/gobreaker"
)

// Dialer opens an SSH connection to host.
type Dialer func(host string, opts sshutil.Options) (sshutil.SSHClient, error)

// breakerTrip is the number of consecutive session failures after which
// the remote host is treated as unreachable.
const breakerTrip = 3

// SSHExecutor runs invocations on a remote docker host over SSH. The
// connection is opened on first use and reopened after a session failure.
//
// A failed dial, or a circuit breaker opened by repeated session failures,
// is reported as errors.ErrTransport. A single session failure is reported
// as errors.ErrSSH so the caller may retry it.
//
// An in-flight command is not interrupted when ctx is cancelled.
type SSHExecutor struct {
	Host    string
	Options sshutil.Options

	dial    Dialer
	client  sshutil.SSHClient
	breaker *gobreaker.CircuitBreaker
	log     logger.Logger
}

// NewSSHExecutor returns an executor that dials host with sshutil.Dial.
func NewSSHExecutor(host string, opts sshutil.Options, log logger.Logger) *SSHExecutor {
	return NewSSHExecutorWithDialer(host, opts, log, func(h string, o sshutil.Options) (sshutil.SSHClient, error) {
		c, err := sshutil.Dial(h, o)
		if err != nil {
			return nil, err
		}
		return c, nil
	})
}

// NewSSHExecutorWithDialer is NewSSHExecutor with a custom dialer.
func NewSSHExecutorWithDialer(host string, opts sshutil.Options, log logger.Logger, dial Dialer) *SSHExecutor {
	if log == nil {
		log = logger.Noop()
	}
	if opts.Log == nil {
		opts.Log = log
	}
	s := &SSHExecutor{
		Host:    host,
		Options: opts,
		dial:    dial,
		log:     log,
	}
	s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "ssh:" + host,
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerTrip
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			s.log.Warn("circuit %s: %s -> %s", name, from, to)
		},
	})
	return s
}

// Run executes invocation on the remote host and captures combined output.
func (s *SSHExecutor) Run(ctx context.Context, invocation string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "Command was interrupted")
	}

	if s.client == nil {
		c, err := s.dial(s.Host, s.Options)
		if err != nil {
			return nil, errors.WrapWithCode(err, errors.ErrTransport,
				fmt.Sprintf("Can't reach docker host '%s'", s.Host),
				"Check --ssh and that the host accepts SSH connections.")
		}
		s.log.Debug("connected to %s (%s)", c.GetHost(), c.GetAddress())
		s.client = c
	}

	start := time.Now()
	v, err := s.breaker.Execute(func() (interface{}, error) {
		out, code, err := s.client.ExecCombined(invocation)
		if err != nil {
			return nil, err
		}
		return &Result{Output: out, ExitCode: code}, nil
	})
	if err != nil {
		if stderrors.Is(err, gobreaker.ErrOpenState) || stderrors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, errors.WrapWithCode(err, errors.ErrTransport,
				fmt.Sprintf("SSH sessions to '%s' keep failing", s.Host),
				"The host may be overloaded or refusing new sessions.")
		}
		s.log.Debug("session on %s failed, reconnecting next attempt: %v", s.Host, err)
		s.reset()
		var nErr *errors.Error
		if stderrors.As(err, &nErr) {
			return nil, err
		}
		return nil, errors.WrapWithCode(err, errors.ErrSSH,
			fmt.Sprintf("Failed to execute command on %s", s.Host), "")
	}

	res := v.(*Result)
	res.Duration = time.Since(start)
	return res, nil
}

// Close closes the SSH connection, if one is open.
func (s *SSHExecutor) Close() error {
	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	return err
}

func (s *SSHExecutor) reset() {
	if s.client != nil {
		_ = s.client.Close()
		s.client = nil
	}
}
