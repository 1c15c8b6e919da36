package cli

import (
	"context"

	"github.com/nso-developer/nsocmd/internal/config"
	"github.com/nso-developer/nsocmd/internal/engine"
	"github.com/nso-developer/nsocmd/internal/errors"
	"github.com/spf13/cobra"
)

func newBatchCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "batch <plan.yaml>",
		Short: "Run the commands of a YAML plan in order",
		Long: `Run each step of a plan file in order, with the same pattern, retry and
on-fail handling as a single command. Use "-" to read the plan from stdin.

Steps inherit the command-line settings (target, time limit, on-fail,
suppress-error) unless they set their own. The plan stops at the first
failed step unless continue_on_failure is set; a step that can't reach its
container always stops it.

Example plan:
  target: ncs-test
  steps:
    - name: wait for sync
      command: devices device ce0 sync-from
      success_pattern: result true
      retry: true
      time_limit: 120
    - command: ls /var/log/ncs
      shell: true`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			plan, err := config.LoadPlan(args[0])
			if err != nil {
				return err
			}
			if err := s.open(cmd); err != nil {
				return err
			}
			defer s.close()
			return s.runPlan(cmd.Context(), plan)
		},
	}
}

// runPlan runs the plan's steps on one engine, so a failure repeated by
// consecutive steps is printed once.
func (s *session) runPlan(ctx context.Context, plan *config.Plan) error {
	failed := 0
	for i, step := range plan.Steps {
		s.reporter.Step(i+1, len(plan.Steps), step.DisplayName())

		res := s.execute(ctx, s.stepRequest(plan, step), stepOnFail(s.cfg.OnFail, step))
		if res.Succeeded() {
			continue
		}
		failed++

		if res.Kind == engine.OutcomeTransportFatal || !plan.ContinueOnFailure || ctx.Err() != nil {
			s.log.Debug("stopping plan after step %d (%s)", i+1, res.Kind)
			break
		}
	}

	if failed > 0 {
		return errors.NewExitError(1)
	}
	return nil
}

// stepRequest builds the engine request for step. Step settings win over
// plan settings, which win over the command line.
func (s *session) stepRequest(plan *config.Plan, step config.Step) engine.Request {
	target := s.cfg.Target
	if plan.Target != "" {
		target = plan.Target
	}
	if step.Target != "" {
		target = step.Target
	}

	limit := s.cfg.TimeLimitDuration()
	if step.TimeLimit != nil {
		limit = config.SecondsDuration(*step.TimeLimit)
	}

	suppress := s.cfg.SuppressError
	if step.SuppressError != nil {
		suppress = *step.SuppressError
	}

	return engine.Request{
		Target:              target,
		Command:             step.Command,
		SuccessPattern:      step.SuccessPattern,
		FailPattern:         step.FailPattern,
		TimeLimit:           limit,
		Retry:               step.Retry,
		Shell:               step.Shell,
		SuppressErrorOutput: suppress,
	}
}

func stepOnFail(configured string, step config.Step) string {
	if step.OnFail != nil {
		return *step.OnFail
	}
	return onFailCommand(configured, step.Shell)
}
