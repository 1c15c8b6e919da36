// Package exec runs invocation strings and captures their combined output.
//
// Two executors are provided: LocalExecutor runs the invocation through a
// local shell, SSHExecutor runs it on a remote docker host. Both return
// structured errors coded errors.ErrTransport when the target can't be
// reached at all, which callers treat as fatal.
package exec

import (
	"context"
	"regexp"
	"time"
)

// Result is the captured outcome of one invocation.
type Result struct {
	// Output holds stdout and stderr interleaved as written.
	Output   []byte
	ExitCode int
	Duration time.Duration
}

// Executor runs an invocation string to completion.
//
// A non-zero exit code with a nil error means the command ran but failed.
// A non-nil error means the command could not be run; errors coded
// errors.ErrTransport mean the target itself is unreachable.
type Executor interface {
	Run(ctx context.Context, invocation string) (*Result, error)
}

// targetNotFoundPatterns detect container runtimes reporting that the target
// container doesn't exist. Podman ends its message with docker's lowercased
// wording, so it is matched first.
var targetNotFoundPatterns = []*regexp.Regexp{
	// podman: Error: no container with name or ID "ncs-test" found: no such container
	regexp.MustCompile(`no container with name or ID "([^"]+)" found`),
	// docker: Error response from daemon: No such container: ncs-test
	regexp.MustCompile(`No such container:?[ \t]*(\S*)`),
}

// runtimeUnavailablePatterns detect the container runtime itself being down.
var runtimeUnavailablePatterns = []*regexp.Regexp{
	regexp.MustCompile(`Cannot connect to the Docker daemon`),
	regexp.MustCompile(`(?i)cannot connect to Podman`),
}

// commandNotFoundPatterns extract the missing command name from shell
// errors. These require exit code 127.
var commandNotFoundPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)bash: (\S+): command not found`),
	regexp.MustCompile(`(?i)zsh: command not found: (\S+)`),
	regexp.MustCompile(`(?i)sh: \d+: (\S+): not found`),
	regexp.MustCompile(`(?i)(\S+): command not found`),
	regexp.MustCompile(`(?i)(\S+): not found`),
}

// IsTargetNotFound reports whether a failed invocation's output says the
// target container doesn't exist. Returns the container name when the
// runtime printed one.
func IsTargetNotFound(output string, exitCode int) (string, bool) {
	if exitCode == 0 {
		return "", false
	}
	for _, pattern := range targetNotFoundPatterns {
		if m := pattern.FindStringSubmatch(output); m != nil {
			return m[1], true
		}
	}
	return "", false
}

// IsRuntimeUnavailable reports whether a failed invocation's output says the
// container runtime (e.g. the docker daemon) isn't reachable.
func IsRuntimeUnavailable(output string, exitCode int) bool {
	if exitCode == 0 {
		return false
	}
	for _, pattern := range runtimeUnavailablePatterns {
		if pattern.MatchString(output) {
			return true
		}
	}
	return false
}

// IsCommandNotFound checks if the output indicates a missing command.
// Returns the command name (if extractable) and whether it's a
// command-not-found error.
func IsCommandNotFound(output string, exitCode int) (string, bool) {
	if exitCode != 127 {
		return "", false
	}
	for _, pattern := range commandNotFoundPatterns {
		if m := pattern.FindStringSubmatch(output); len(m) > 1 {
			return m[1], true
		}
	}
	return "", true
}
