package engine

import "time"

// Classification is the verdict for a single attempt.
type Classification int

const (
	Success Classification = iota
	Failure
	FatalTransportError
)

func (c Classification) String() string {
	switch c {
	case Success:
		return "success"
	case Failure:
		return "failure"
	case FatalTransportError:
		return "fatal-transport-error"
	}
	return "unknown"
}

// Attempt is the outcome of one run of the command.
type Attempt struct {
	Number         int // 1-based
	Classification Classification

	// Output is the raw combined output.
	Output   string
	ExitCode int

	// Report is the failure text shown to the user and used to suppress
	// repeats. Empty for successful attempts.
	Report string

	// Elapsed is measured from the start of the first attempt.
	Elapsed time.Duration

	// Err is set when the command could not be run.
	Err error
}

// ElapsedSeconds returns Elapsed truncated to whole seconds.
func (a Attempt) ElapsedSeconds() int {
	return int(a.Elapsed / time.Second)
}

// OutcomeKind is the overall result of Execute.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	// OutcomeFailure covers fail-pattern matches, failures with retry off,
	// and invalid requests.
	OutcomeFailure
	// OutcomeTimeLimitExceeded means retries were requested and the time
	// budget ran out before the command succeeded.
	OutcomeTimeLimitExceeded
	// OutcomeTransportFatal means the target could not be reached.
	OutcomeTransportFatal
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	case OutcomeTimeLimitExceeded:
		return "time-limit-exceeded"
	case OutcomeTransportFatal:
		return "transport-fatal"
	}
	return "unknown"
}

// Result is returned by Engine.Execute.
type Result struct {
	Kind     OutcomeKind
	Attempts int
	// Last is the final attempt; zero when the request was invalid.
	Last Attempt
	Err  error
}

// Succeeded reports whether the command ultimately succeeded.
func (r Result) Succeeded() bool {
	return r.Kind == OutcomeSuccess
}
