package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/nso-developer/nsocmd/internal/errors"
	"github.com/nso-developer/nsocmd/internal/exec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock advances only when Sleep is called.
type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

type step struct {
	output string
	exit   int
	err    error
}

// scriptedExecutor returns its steps in order, repeating the last one.
type scriptedExecutor struct {
	steps       []step
	invocations []string
}

func (s *scriptedExecutor) Run(_ context.Context, invocation string) (*exec.Result, error) {
	s.invocations = append(s.invocations, invocation)
	st := s.steps[len(s.steps)-1]
	if i := len(s.invocations) - 1; i < len(s.steps) {
		st = s.steps[i]
	}
	if st.err != nil {
		return nil, st.err
	}
	return &exec.Result{Output: []byte(st.output), ExitCode: st.exit}, nil
}

type failureEvent struct {
	report    string
	number    int
	willRetry bool
}

type recordingReporter struct {
	executing []string
	successes []Attempt
	failures  []failureEvent
	fatal     []Attempt
	errs      []error
}

func (r *recordingReporter) Executing(invocation string) {
	r.executing = append(r.executing, invocation)
}

func (r *recordingReporter) Success(a Attempt) { r.successes = append(r.successes, a) }

func (r *recordingReporter) Failure(a Attempt, willRetry bool) {
	r.failures = append(r.failures, failureEvent{report: a.Report, number: a.Number, willRetry: willRetry})
}

func (r *recordingReporter) TransportFatal(_ string, a Attempt) { r.fatal = append(r.fatal, a) }

func (r *recordingReporter) Error(err error) { r.errs = append(r.errs, err) }

type fixedFormatter struct{}

func (fixedFormatter) Format(target, command string) string {
	return "cli[" + target + "] " + command
}

func newTestEngine(steps ...step) (*Engine, *scriptedExecutor, *recordingReporter, *fakeClock) {
	ex := &scriptedExecutor{steps: steps}
	rep := &recordingReporter{}
	clk := newFakeClock()
	return New(ex, fixedFormatter{}, rep, WithClock(clk)), ex, rep, clk
}

func TestExecute_PassThroughWithoutPatterns(t *testing.T) {
	outputs := []string{"", "anything", "ERROR: looks bad but nobody asked", "% Invalid input"}
	for _, out := range outputs {
		t.Run(fmt.Sprintf("%q", out), func(t *testing.T) {
			eng, ex, rep, _ := newTestEngine(step{output: out})

			res := eng.Execute(context.Background(), Request{
				Target: "ncs", Command: "show x", Retry: true, TimeLimit: time.Minute,
			})

			assert.True(t, res.Succeeded())
			assert.Equal(t, 1, res.Attempts)
			assert.Len(t, ex.invocations, 1)
			require.Len(t, rep.successes, 1)
			assert.Equal(t, out, rep.successes[0].Output)
			assert.Empty(t, rep.failures)
		})
	}
}

func TestExecute_SuccessPatternScenario(t *testing.T) {
	eng, ex, rep, _ := newTestEngine(step{output: "system OK ready"})

	res := eng.Execute(context.Background(), Request{
		Target: "ncs-test", Command: "show version", SuccessPattern: "OK",
	})

	assert.Equal(t, OutcomeSuccess, res.Kind)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, Success, res.Last.Classification)
	assert.Equal(t, []string{"cli[ncs-test] show version"}, ex.invocations)
	assert.Equal(t, ex.invocations, rep.executing)
}

func TestExecute_FailPatternStopsImmediately(t *testing.T) {
	eng, ex, rep, clk := newTestEngine(step{output: "ERROR: bad syntax"})

	res := eng.Execute(context.Background(), Request{
		Target: "ncs-test", Command: "show x", FailPattern: "ERROR",
		Retry: true, TimeLimit: 300 * time.Second,
	})

	assert.Equal(t, OutcomeFailure, res.Kind)
	assert.Equal(t, 1, res.Attempts)
	assert.Len(t, ex.invocations, 1)
	assert.Empty(t, clk.sleeps)
	require.Len(t, rep.failures, 1)
	assert.Equal(t, "ERROR: bad syntax", rep.failures[0].report)
	assert.False(t, rep.failures[0].willRetry)
}

func TestExecute_FailPatternTakesPrecedenceOverStopOnError(t *testing.T) {
	eng, ex, _, _ := newTestEngine(step{output: "Error: element does not exist", exit: StopOnErrorExit})

	res := eng.Execute(context.Background(), Request{
		Target: "ncs", Command: "show x", FailPattern: "does not exist",
		Retry: true, TimeLimit: time.Minute,
	})

	assert.Equal(t, OutcomeFailure, res.Kind)
	assert.Len(t, ex.invocations, 1)
}

func TestExecute_NoRetryMakesOneAttempt(t *testing.T) {
	tests := []struct {
		name string
		req  Request
		step step
	}{
		{"pattern mismatch", Request{SuccessPattern: "OK"}, step{output: "nope"}},
		{"stop on error", Request{}, step{output: "syntax error", exit: StopOnErrorExit}},
		{"non-zero exit", Request{}, step{output: "boom", exit: 1}},
		{"unhandled error", Request{}, step{err: fmt.Errorf("broken pipe")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng, ex, rep, clk := newTestEngine(tt.step)
			req := tt.req
			req.Target, req.Command, req.TimeLimit = "ncs", "show x", time.Hour

			res := eng.Execute(context.Background(), req)

			assert.Equal(t, OutcomeFailure, res.Kind)
			assert.Equal(t, 1, res.Attempts)
			assert.Len(t, ex.invocations, 1)
			assert.Empty(t, clk.sleeps)
			require.Len(t, rep.failures, 1)
			assert.False(t, rep.failures[0].willRetry)
		})
	}
}

func TestExecute_RetriesUntilTimeLimit(t *testing.T) {
	tests := []struct {
		limit    time.Duration
		attempts int
	}{
		{0, 1},
		{4 * time.Second, 1},
		{5 * time.Second, 2},
		{12 * time.Second, 3},
		{300 * time.Second, 61},
	}
	for _, tt := range tests {
		t.Run(tt.limit.String(), func(t *testing.T) {
			eng, ex, _, clk := newTestEngine(step{output: "not yet"})

			res := eng.Execute(context.Background(), Request{
				Target: "ncs", Command: "show x", SuccessPattern: "OK",
				Retry: true, TimeLimit: tt.limit,
			})

			assert.Equal(t, OutcomeTimeLimitExceeded, res.Kind)
			assert.Equal(t, tt.attempts, res.Attempts)
			assert.Len(t, ex.invocations, tt.attempts)
			assert.Len(t, clk.sleeps, tt.attempts-1)
			for _, d := range clk.sleeps {
				assert.Equal(t, RetryInterval, d)
			}
		})
	}
}

// slowExecutor moves the clock forward by cost on every run.
type slowExecutor struct {
	clk  *fakeClock
	cost time.Duration
	runs int
}

func (s *slowExecutor) Run(context.Context, string) (*exec.Result, error) {
	s.runs++
	s.clk.now = s.clk.now.Add(s.cost)
	return &exec.Result{Output: []byte("not yet\n")}, nil
}

func TestExecute_TimeLimitCountsCommandDuration(t *testing.T) {
	clk := newFakeClock()
	ex := &slowExecutor{clk: clk, cost: 3 * time.Second}
	eng := New(ex, fixedFormatter{}, nil, WithClock(clk))

	res := eng.Execute(context.Background(), Request{
		Target: "ncs", Command: "show x", SuccessPattern: "OK",
		Retry: true, TimeLimit: 12 * time.Second,
	})

	// 0s-3s, sleep to 8s, 8s-11s; a third attempt would start at 16s.
	assert.Equal(t, OutcomeTimeLimitExceeded, res.Kind)
	assert.Equal(t, 2, ex.runs)
	assert.Equal(t, []time.Duration{RetryInterval}, clk.sleeps)
}

func TestRetryPolicy(t *testing.T) {
	tests := []struct {
		name  string
		req   Request
		pause []time.Duration
	}{
		{"no retry", Request{TimeLimit: time.Minute}, nil},
		{"zero limit", Request{Retry: true}, nil},
		{"under one interval", Request{Retry: true, TimeLimit: 4 * time.Second}, nil},
		{"exact interval", Request{Retry: true, TimeLimit: 5 * time.Second}, []time.Duration{RetryInterval}},
		{"twelve seconds", Request{Retry: true, TimeLimit: 12 * time.Second}, []time.Duration{RetryInterval, RetryInterval}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clk := newFakeClock()
			policy := retryPolicy(tt.req, clk)

			var got []time.Duration
			for d := policy.NextBackOff(); d != backoff.Stop; d = policy.NextBackOff() {
				require.Less(t, len(got), 100, "policy never stopped")
				got = append(got, d)
				clk.now = clk.now.Add(d)
			}
			assert.Equal(t, tt.pause, got)
		})
	}
}

func TestExecute_RetryThenSuccess(t *testing.T) {
	eng, ex, rep, _ := newTestEngine(
		step{output: "starting"},
		step{output: "% syntax error", exit: StopOnErrorExit},
		step{output: "status OK"},
	)

	res := eng.Execute(context.Background(), Request{
		Target: "ncs", Command: "show x", SuccessPattern: "OK",
		Retry: true, TimeLimit: time.Minute,
	})

	assert.True(t, res.Succeeded())
	assert.Equal(t, 3, res.Attempts)
	assert.Len(t, ex.invocations, 3)
	assert.Equal(t, 10*time.Second, res.Last.Elapsed)
	require.Len(t, rep.failures, 2)
	assert.Equal(t, "starting", rep.failures[0].report)
	assert.Contains(t, rep.failures[1].report, `"ncs_cli --stop-on-error" stopped execution`)
	assert.True(t, rep.failures[1].willRetry)
}

func TestExecute_ShellModeExitEightIsPlainFailure(t *testing.T) {
	eng, ex, rep, _ := newTestEngine(step{output: "eight", exit: 8})

	res := eng.Execute(context.Background(), Request{Command: "exit 8", Shell: true})

	assert.Equal(t, OutcomeFailure, res.Kind)
	assert.Equal(t, []string{"exit 8"}, ex.invocations)
	require.Len(t, rep.failures, 1)
	assert.Contains(t, rep.failures[0].report, "exit status 8")
}

func TestExecute_CommandNotFoundHint(t *testing.T) {
	eng, _, rep, _ := newTestEngine(step{output: "bash: ncs_cli: command not found", exit: 127})

	eng.Execute(context.Background(), Request{Target: "ncs", Command: "show x"})

	require.Len(t, rep.failures, 1)
	assert.Contains(t, rep.failures[0].report, "'ncs_cli' not found")
}

func TestExecute_DedupeIdenticalFailures(t *testing.T) {
	tests := []struct {
		name     string
		suppress bool
		reports  []string
	}{
		{"suppressed", true, []string{"same"}},
		{"shown", false, []string{"same", "same"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Attempts at 0s and 5s; the second is final.
			eng, _, rep, _ := newTestEngine(step{output: "same"})

			res := eng.Execute(context.Background(), Request{
				Target: "ncs", Command: "show x", SuccessPattern: "OK",
				Retry: true, TimeLimit: 5 * time.Second, SuppressErrorOutput: tt.suppress,
			})

			require.Equal(t, 2, res.Attempts)
			var got []string
			for _, f := range rep.failures {
				got = append(got, f.report)
			}
			assert.Equal(t, tt.reports, got)
			assert.False(t, rep.failures[len(rep.failures)-1].willRetry)
		})
	}
}

func TestExecute_DedupeChangingOutput(t *testing.T) {
	eng, _, rep, _ := newTestEngine(
		step{output: "a"}, step{output: "a"}, step{output: "b"}, step{output: "b"}, step{output: "b"},
	)

	eng.Execute(context.Background(), Request{
		Target: "ncs", Command: "show x", SuccessPattern: "OK",
		Retry: true, TimeLimit: 20 * time.Second,
	})

	require.Len(t, rep.failures, 3)
	assert.Equal(t, "a", rep.failures[0].report)
	assert.Equal(t, 1, rep.failures[0].number)
	assert.Equal(t, "b", rep.failures[1].report)
	assert.Equal(t, 3, rep.failures[1].number)
	assert.Equal(t, "b", rep.failures[2].report)
	assert.Equal(t, 5, rep.failures[2].number)
	assert.False(t, rep.failures[2].willRetry)
}

func TestExecute_SuppressShowsOnlyFinal(t *testing.T) {
	eng, _, rep, _ := newTestEngine(step{output: "a"}, step{output: "b"}, step{output: "c"})

	eng.Execute(context.Background(), Request{
		Target: "ncs", Command: "show x", SuccessPattern: "OK",
		Retry: true, TimeLimit: 10 * time.Second, SuppressErrorOutput: true,
	})

	require.Len(t, rep.failures, 1)
	assert.Equal(t, "c", rep.failures[0].report)
	assert.Equal(t, 3, rep.failures[0].number)
}

func TestExecute_DedupeSharedAcrossRequests(t *testing.T) {
	ex := &scriptedExecutor{steps: []step{{output: "same"}}}
	rep := &recordingReporter{}
	eng := New(ex, fixedFormatter{}, rep, WithClock(newFakeClock()))
	req := Request{
		Target: "ncs", Command: "show x", SuccessPattern: "OK",
		Retry: true, TimeLimit: 5 * time.Second,
	}

	eng.Execute(context.Background(), req)
	eng.Execute(context.Background(), req)

	// First request: attempt 1 shown, attempt 2 final. Second request:
	// attempt 1 matches the last text, attempt 2 final.
	require.Len(t, rep.failures, 3)
	assert.Equal(t, []bool{true, false, false}, []bool{
		rep.failures[0].willRetry, rep.failures[1].willRetry, rep.failures[2].willRetry,
	})

	other := New(ex, fixedFormatter{}, &recordingReporter{}, WithClock(newFakeClock()))
	assert.Empty(t, other.dedupe.last)
}

func TestExecute_TransportFatal(t *testing.T) {
	tests := []struct {
		name    string
		step    step
		wantErr string
	}{
		{"no such container", step{output: "Error response from daemon: No such container: ncs-test\n", exit: 1}, "No NSO container ncs-test"},
		{"podman", step{output: `Error: no container with name or ID "nso-dev" found: no such container`, exit: 125}, "No NSO container nso-dev"},
		{"docker daemon down", step{output: "Cannot connect to the Docker daemon at unix:///var/run/docker.sock. Is the docker daemon running?\n", exit: 1}, "Container runtime is not reachable"},
		{"executor transport error", step{err: errors.New(errors.ErrTransport, "ssh host unreachable", "")}, "ssh host unreachable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng, ex, rep, clk := newTestEngine(tt.step)

			res := eng.Execute(context.Background(), Request{
				Target: "ncs-test", Command: "show x", SuccessPattern: "OK",
				Retry: true, TimeLimit: time.Hour,
			})

			assert.Equal(t, OutcomeTransportFatal, res.Kind)
			assert.Equal(t, 1, res.Attempts)
			assert.Len(t, ex.invocations, 1)
			assert.Empty(t, clk.sleeps)
			assert.Len(t, rep.fatal, 1)
			assert.Empty(t, rep.failures)
			require.Error(t, res.Err)
			assert.True(t, errors.IsCode(res.Err, errors.ErrTransport))
			assert.Contains(t, res.Err.Error(), tt.wantErr)
		})
	}
}

func TestExecute_UnhandledErrorIsRetried(t *testing.T) {
	eng, ex, rep, _ := newTestEngine(step{err: fmt.Errorf("pipe closed")}, step{output: "OK"})

	res := eng.Execute(context.Background(), Request{
		Target: "ncs", Command: "show x", SuccessPattern: "OK",
		Retry: true, TimeLimit: time.Minute,
	})

	assert.True(t, res.Succeeded())
	assert.Len(t, ex.invocations, 2)
	require.Len(t, rep.errs, 1)
	require.Len(t, rep.failures, 1)
	assert.Equal(t, "Unhandled error executing command", rep.failures[0].report)
}

func TestExecute_CancelledDuringRetry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	eng, ex, _, _ := newTestEngine(step{output: "nope"})

	res := eng.Execute(ctx, Request{
		Target: "ncs", Command: "show x", SuccessPattern: "OK",
		Retry: true, TimeLimit: time.Minute,
	})

	assert.Equal(t, OutcomeFailure, res.Kind)
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.Len(t, ex.invocations, 1)
}

func TestExecute_InvalidRequest(t *testing.T) {
	tests := []struct {
		name string
		req  Request
	}{
		{"missing command", Request{Target: "ncs"}},
		{"missing target", Request{Command: "show x"}},
		{"negative limit", Request{Target: "ncs", Command: "show x", TimeLimit: -time.Second}},
		{"bad success pattern", Request{Target: "ncs", Command: "show x", SuccessPattern: "("}},
		{"bad fail pattern", Request{Target: "ncs", Command: "show x", FailPattern: "[a-"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng, ex, rep, _ := newTestEngine(step{output: "OK"})

			res := eng.Execute(context.Background(), tt.req)

			assert.Equal(t, OutcomeFailure, res.Kind)
			assert.Zero(t, res.Attempts)
			assert.Empty(t, ex.invocations)
			assert.True(t, errors.IsCode(res.Err, errors.ErrConfig))
			assert.Len(t, rep.errs, 1)
		})
	}
}

func TestExecute_NoFormatter(t *testing.T) {
	eng := New(&scriptedExecutor{steps: []step{{}}}, nil, nil, WithClock(newFakeClock()))

	res := eng.Execute(context.Background(), Request{Target: "ncs", Command: "show x"})

	assert.Equal(t, OutcomeFailure, res.Kind)
	assert.True(t, errors.IsCode(res.Err, errors.ErrConfig))
}

func TestExecute_MultilinePatterns(t *testing.T) {
	eng, _, _, _ := newTestEngine(step{output: "line one\nstatus OK\nline three\n"})

	res := eng.Execute(context.Background(), Request{
		Target: "ncs", Command: "show x", SuccessPattern: "^status OK$",
	})

	assert.True(t, res.Succeeded())
}

func TestExecute_ShellEchoWithLocalExecutor(t *testing.T) {
	rep := &recordingReporter{}
	eng := New(exec.NewLocalExecutor(), nil, rep)

	res := eng.Execute(context.Background(), Request{Command: "echo hi", Shell: true})

	assert.True(t, res.Succeeded())
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, "hi\n", res.Last.Output)
	assert.Equal(t, []string{"echo hi"}, rep.executing)
}

func TestDedupeAdmit(t *testing.T) {
	var d dedupe

	assert.True(t, d.admit("x", false, false))
	assert.False(t, d.admit("x", false, false))
	assert.True(t, d.admit("x", false, true), "final is always admitted")
	assert.True(t, d.admit("y", false, false))
	assert.False(t, d.admit("z", true, false), "suppressed")
	assert.Equal(t, "y", d.last)
	assert.True(t, d.admit("z", true, true))
	assert.Equal(t, "z", d.last)
}
