package ui

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"sync"
	"time"

	"github.com/nso-developer/nsocmd/internal/engine"
	"github.com/nso-developer/nsocmd/internal/errors"
)

// Event names written by JSONReporter.
const (
	EventExecuting      = "executing"
	EventSuccess        = "success"
	EventFailure        = "failure"
	EventTransportFatal = "transport_fatal"
	EventError          = "error"
	EventStep           = "step"
	EventTimeLimit      = "time_limit_exceeded"
	EventOnFail         = "on_fail"
	EventResult         = "result"
)

// Event is one line of JSON output.
type Event struct {
	Event      string     `json:"event"`
	Run        string     `json:"run,omitempty"`
	Invocation string     `json:"invocation,omitempty"`
	Command    string     `json:"command,omitempty"`
	Target     string     `json:"target,omitempty"`
	Attempt    int        `json:"attempt,omitempty"`
	Elapsed    *int       `json:"elapsed_seconds,omitempty"`
	ExitCode   *int       `json:"exit_code,omitempty"`
	Output     string     `json:"output,omitempty"`
	Report     string     `json:"report,omitempty"`
	WillRetry  *bool      `json:"will_retry,omitempty"`
	Step       int        `json:"step,omitempty"`
	Steps      int        `json:"steps,omitempty"`
	Name       string     `json:"name,omitempty"`
	Limit      int        `json:"time_limit_seconds,omitempty"`
	Outcome    string     `json:"outcome,omitempty"`
	Attempts   int        `json:"attempts,omitempty"`
	Error      *ErrorInfo `json:"error,omitempty"`
}

// ErrorInfo is the machine-readable form of an error.
type ErrorInfo struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
}

// ErrorToJSON converts an error to ErrorInfo. Structured errors keep their
// code; anything else is coded UNKNOWN.
func ErrorToJSON(err error) *ErrorInfo {
	if err == nil {
		return nil
	}
	var e *errors.Error
	if stderrors.As(err, &e) {
		msg := e.Message
		if e.Cause != nil {
			msg += ": " + e.Cause.Error()
		}
		return &ErrorInfo{Code: e.Code, Message: msg, Suggestion: e.Suggestion}
	}
	return &ErrorInfo{Code: "UNKNOWN", Message: err.Error()}
}

// JSONReporter writes one JSON object per line.
type JSONReporter struct {
	mu  sync.Mutex
	enc *json.Encoder
	run string
}

// NewJSONReporter creates a JSONReporter. run tags every event when set.
func NewJSONReporter(w io.Writer, run string) *JSONReporter {
	return &JSONReporter{enc: json.NewEncoder(w), run: run}
}

func (r *JSONReporter) Executing(invocation string) {
	r.emit(Event{Event: EventExecuting, Invocation: invocation})
}

func (r *JSONReporter) Success(a engine.Attempt) {
	ev := attemptEvent(EventSuccess, a)
	ev.Output = a.Output
	r.emit(ev)
}

func (r *JSONReporter) Failure(a engine.Attempt, willRetry bool) {
	ev := attemptEvent(EventFailure, a)
	ev.Output = a.Output
	ev.Report = a.Report
	ev.WillRetry = &willRetry
	r.emit(ev)
}

func (r *JSONReporter) TransportFatal(target string, a engine.Attempt) {
	ev := attemptEvent(EventTransportFatal, a)
	ev.Target = target
	ev.Output = a.Output
	ev.Error = ErrorToJSON(a.Err)
	r.emit(ev)
}

func (r *JSONReporter) Error(err error) {
	r.emit(Event{Event: EventError, Error: ErrorToJSON(err)})
}

func (r *JSONReporter) Step(index, total int, name string) {
	r.emit(Event{Event: EventStep, Step: index, Steps: total, Name: name})
}

func (r *JSONReporter) TimeLimitExceeded(limit time.Duration) {
	r.emit(Event{Event: EventTimeLimit, Limit: int(limit / time.Second)})
}

func (r *JSONReporter) OnFail(command string) {
	r.emit(Event{Event: EventOnFail, Command: command})
}

func (r *JSONReporter) Finish(res engine.Result) {
	r.emit(Event{
		Event:    EventResult,
		Outcome:  res.Kind.String(),
		Attempts: res.Attempts,
		Error:    ErrorToJSON(res.Err),
	})
}

func attemptEvent(name string, a engine.Attempt) Event {
	secs := a.ElapsedSeconds()
	code := a.ExitCode
	return Event{
		Event:    name,
		Attempt:  a.Number,
		Elapsed:  &secs,
		ExitCode: &code,
	}
}

func (r *JSONReporter) emit(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev.Run = r.run
	_ = r.enc.Encode(ev)
}

var _ Reporter = (*JSONReporter)(nil)
