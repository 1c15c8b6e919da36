package config

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"io"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/nso-developer/nsocmd/internal/errors"
	"gopkg.in/yaml.v3"
)

// Plan is a batch of commands run one after another.
//
//	target: ncs-test
//	continue_on_failure: false
//	steps:
//	  - name: wait for sync
//	    command: devices device ce0 sync-from
//	    success_pattern: result true
//	    retry: true
//	    time_limit: 120
//	  - command: ls /tmp
//	    shell: true
type Plan struct {
	// Target is the default container for steps that don't name one.
	Target string `yaml:"target"`

	// ContinueOnFailure keeps running later steps after a failed step.
	// A transport failure always stops the plan.
	ContinueOnFailure bool `yaml:"continue_on_failure"`

	Steps []Step `yaml:"steps" validate:"required,min=1,dive"`
}

// Step is one command in a Plan. Unset optional fields fall back to the
// command-line settings.
type Step struct {
	Name           string `yaml:"name"`
	Command        string `yaml:"command" validate:"required"`
	Target         string `yaml:"target"`
	SuccessPattern string `yaml:"success_pattern"`
	FailPattern    string `yaml:"fail_pattern"`
	Retry          bool   `yaml:"retry"`
	Shell          bool   `yaml:"shell"`

	// TimeLimit is in seconds.
	TimeLimit     *int  `yaml:"time_limit" validate:"omitempty,gte=0"`
	SuppressError *bool `yaml:"suppress_error"`

	// OnFail runs after the step fails. Nil uses the default diagnostic
	// command; an empty string disables it.
	OnFail *string `yaml:"on_fail"`
}

// DisplayName returns the step name, or its command when unnamed.
func (s Step) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	return s.Command
}

// LoadPlan reads and validates a plan file. A path of "-" reads stdin.
func LoadPlan(path string) (*Plan, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrPlan,
			"Can't read plan file "+path,
			"Check the path is correct")
	}
	return ParsePlan(data, path)
}

// ParsePlan decodes and validates plan YAML. source names the plan in
// error messages.
func ParsePlan(data []byte, source string) (*Plan, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var plan Plan
	if err := dec.Decode(&plan); err != nil {
		if stderrors.Is(err, io.EOF) {
			return nil, errors.New(errors.ErrPlan,
				"Plan "+source+" is empty",
				"Add a 'steps' list with at least one command.")
		}
		return nil, errors.WrapWithCode(err, errors.ErrPlan,
			"Invalid plan "+source,
			"Check the YAML syntax and field names.")
	}

	if err := validate.Struct(&plan); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrPlan,
			"Invalid plan "+source,
			describePlan(err))
	}
	return &plan, nil
}

func describePlan(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	var b bytes.Buffer
	for i, fe := range verrs {
		if i > 0 {
			b.WriteString("\n  ")
		}
		switch fe.StructField() {
		case "Steps":
			b.WriteString("The plan needs at least one step.")
		case "Command":
			fmt.Fprintf(&b, "%s needs a 'command'.", stepName(fe.Namespace()))
		case "TimeLimit":
			fmt.Fprintf(&b, "%s has a negative 'time_limit'.", stepName(fe.Namespace()))
		default:
			b.WriteString(fe.Error())
		}
	}
	return b.String()
}

// stepName turns "Plan.Steps[2].Command" into "Step 3".
func stepName(namespace string) string {
	var idx int
	if _, err := fmt.Sscanf(namespace, "Plan.Steps[%d]", &idx); err == nil {
		return fmt.Sprintf("Step %d", idx+1)
	}
	return "A step"
}
