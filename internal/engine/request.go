package engine

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/nso-developer/nsocmd/internal/errors"
)

// Request describes one command to run. It is not modified by the engine.
type Request struct {
	// Target is the container the NSO CLI command is sent to.
	// Not needed in shell mode.
	Target string `validate:"required_unless=Shell true"`

	// Command is the raw NSO CLI (or shell, see Shell) command text.
	Command string `validate:"required"`

	// SuccessPattern and FailPattern are unanchored regular expressions
	// matched in multiline mode against the captured output.
	SuccessPattern string
	FailPattern    string

	// TimeLimit is the wall-clock budget for retries.
	TimeLimit time.Duration `validate:"gte=0"`

	Retry bool

	// Shell runs Command verbatim instead of through ncs_cli.
	Shell bool

	// SuppressErrorOutput hides intermediate failures; the final one is
	// always reported.
	SuppressErrorOutput bool
}

var validate = validator.New()

type patterns struct {
	success *regexp.Regexp
	fail    *regexp.Regexp
}

// Validate checks the request fields and that both patterns compile.
func (r Request) Validate() error {
	_, err := r.compile()
	return err
}

func (r Request) compile() (patterns, error) {
	var p patterns

	if err := validate.Struct(r); err != nil {
		return p, errors.WrapWithCode(err, errors.ErrConfig,
			"Invalid command request",
			describeValidation(err))
	}

	var err error
	if p.success, err = compilePattern("success", r.SuccessPattern); err != nil {
		return p, err
	}
	if p.fail, err = compilePattern("fail", r.FailPattern); err != nil {
		return p, err
	}
	return p, nil
}

func compilePattern(kind, expr string) (*regexp.Regexp, error) {
	if expr == "" {
		return nil, nil
	}
	re, err := regexp.Compile("(?m)" + expr)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			fmt.Sprintf("Invalid %s pattern %q", kind, expr),
			"Patterns use Go regular expression syntax (RE2).")
	}
	return re, nil
}

func describeValidation(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return ""
	}
	var hints []string
	for _, fe := range verrs {
		switch fe.Field() {
		case "Target":
			hints = append(hints, "A target container is required unless running in shell mode (--nso-cnt).")
		case "Command":
			hints = append(hints, "A command is required.")
		case "TimeLimit":
			hints = append(hints, "The time limit can't be negative.")
		default:
			hints = append(hints, fe.Error())
		}
	}
	return strings.Join(hints, "\n  ")
}
