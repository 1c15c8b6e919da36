package engine

// Reporter presents engine events to the user. Failures reach the reporter
// only after duplicate suppression.
type Reporter interface {
	// Executing is called once per request with the invocation string.
	Executing(invocation string)
	// Success is called for the attempt that succeeded.
	Success(a Attempt)
	// Failure is called for a reported failing attempt. willRetry tells
	// whether another attempt follows.
	Failure(a Attempt, willRetry bool)
	// TransportFatal is called when the target can't be reached.
	TransportFatal(target string, a Attempt)
	// Error is called for errors that prevented an attempt from running.
	Error(err error)
}

// NopReporter discards all events.
type NopReporter struct{}

func (NopReporter) Executing(string)               {}
func (NopReporter) Success(Attempt)                {}
func (NopReporter) Failure(Attempt, bool)          {}
func (NopReporter) TransportFatal(string, Attempt) {}
func (NopReporter) Error(error)                    {}

// dedupe remembers the last reported failure text so that a retry loop
// producing the same failure repeatedly prints it once.
type dedupe struct {
	last string
}

// admit decides whether a failure is reported and records it if so.
// Final failures are always reported. Otherwise a failure is reported when
// output isn't suppressed and its text differs from the last one reported.
func (d *dedupe) admit(text string, suppress, final bool) bool {
	if final || (!suppress && text != d.last) {
		d.last = text
		return true
	}
	return false
}
