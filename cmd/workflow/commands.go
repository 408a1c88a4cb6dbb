package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	workflow "github.com/intrafind/ihub-apps-sub010"
)

// withRuntime builds the runtime for a command and closes it afterwards.
// The context is cancelled on interrupt.
func (c *cli) withRuntime(cmd *cobra.Command, fn func(ctx context.Context, rt *runtime) error) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	rt, err := newRuntime(ctx, c.config, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(ctx, rt)
}

func (c *cli) runCmd() *cobra.Command {
	var (
		inputs  []string
		user    string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "run <workflow.yaml>",
		Short: "Start an execution of a workflow file",
		Example: `  workflow run review.yaml -i document=draft.md
  workflow run review.yaml -i 'tags=["a","b"]' --timeout 5m`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wf, err := workflow.LoadFile(args[0])
			if err != nil {
				return err
			}
			input, err := parseAssignments(inputs)
			if err != nil {
				return err
			}
			return c.withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
				if timeout > 0 {
					var cancel context.CancelFunc
					ctx, cancel = context.WithTimeout(ctx, timeout)
					defer cancel()
				}
				state, err := rt.engine.Start(ctx, wf, input, workflow.ExecutionContext{User: user})
				if err != nil {
					return err
				}
				return c.report(cmd, state)
			})
		},
	}
	cmd.Flags().StringArrayVarP(&inputs, "input", "i", nil, "input in key=value form, values are parsed as JSON when possible")
	cmd.Flags().StringVar(&user, "user", os.Getenv("USER"), "user recorded in the execution context")
	cmd.Flags().DurationVarP(&timeout, "timeout", "t", 0, "cancel the execution after this duration")
	return cmd
}

func (c *cli) resumeCmd() *cobra.Command {
	var (
		response string
		data     []string
		file     string
	)
	cmd := &cobra.Command{
		Use:     "resume <execution-id>",
		Short:   "Answer the pending checkpoint of a paused execution",
		Example: `  workflow resume exec_01h... --response approve -d feedback="looks good"`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := parseAssignments(data)
			if err != nil {
				return err
			}
			return c.withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
				state, err := rt.engine.GetState(ctx, args[0])
				if err != nil {
					return err
				}
				if state == nil {
					return fmt.Errorf("%w: %s", workflow.ErrExecutionNotFound, args[0])
				}
				if state.PendingCheckpoint == nil {
					return fmt.Errorf("%w: status is %s", workflow.ErrNotPaused, state.Status)
				}
				wf, err := rt.workflowFor(file, state.WorkflowID)
				if err != nil {
					return err
				}
				state, err = rt.engine.Resume(ctx, args[0], workflow.HumanResponse{
					CheckpointID: state.PendingCheckpoint.ID,
					Response:     response,
					Data:         values,
				}, workflow.ResumeOptions{Workflow: wf})
				if err != nil {
					return err
				}
				return c.report(cmd, state)
			})
		},
	}
	cmd.Flags().StringVarP(&response, "response", "r", "", "the chosen option value")
	cmd.Flags().StringArrayVarP(&data, "data", "d", nil, "response data in key=value form")
	cmd.Flags().StringVarP(&file, "file", "f", "", "workflow file, when the stored definition should not be used")
	if err := cmd.MarkFlagRequired("response"); err != nil {
		panic(err)
	}
	return cmd
}

func (c *cli) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <execution-id>",
		Short: "Show the state of an execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
				state, err := rt.engine.GetState(ctx, args[0])
				if err != nil {
					return err
				}
				if state == nil {
					return fmt.Errorf("%w: %s", workflow.ErrExecutionNotFound, args[0])
				}
				return c.show(cmd, state)
			})
		},
	}
}

func (c *cli) cancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <execution-id>",
		Short: "Cancel an execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
				if err := rt.engine.Cancel(ctx, args[0]); err != nil {
					return err
				}
				state, err := rt.engine.GetState(ctx, args[0])
				if err != nil {
					return err
				}
				return c.show(cmd, state)
			})
		},
	}
}

func (c *cli) listCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored executions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
				summaries, err := rt.engine.List(ctx)
				if err != nil {
					return err
				}
				if status != "" {
					filtered := summaries[:0]
					for _, s := range summaries {
						if string(s.Status) == status {
							filtered = append(filtered, s)
						}
					}
					summaries = filtered
				}
				if c.json {
					return writeJSON(cmd.OutOrStdout(), summaries)
				}
				printSummaries(cmd.OutOrStdout(), summaries)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "only list executions with this status")
	return cmd
}

func (c *cli) validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <workflow.yaml>...",
		Short: "Check workflow files for errors",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			failed := 0
			for _, path := range args {
				wf, err := workflow.LoadFile(path)
				if err != nil {
					failed++
					printInvalid(cmd.OutOrStdout(), path, err)
					continue
				}
				printValid(cmd.OutOrStdout(), path, wf)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d workflow files are invalid", failed, len(args))
			}
			return nil
		},
	}
}

// report prints the state left by run or resume. A failed execution is
// reported as an error so the process exits non-zero.
func (c *cli) report(cmd *cobra.Command, state *workflow.ExecutionState) error {
	if err := c.show(cmd, state); err != nil {
		return err
	}
	if state.Status == workflow.ExecutionStatusFailed {
		if last := state.LastError(); last != nil {
			return fmt.Errorf("execution %s failed: %s", state.ExecutionID, last.Message)
		}
		return fmt.Errorf("execution %s failed", state.ExecutionID)
	}
	return nil
}

func (c *cli) show(cmd *cobra.Command, state *workflow.ExecutionState) error {
	if c.json {
		return writeJSON(cmd.OutOrStdout(), state)
	}
	printState(cmd.OutOrStdout(), state)
	return nil
}

// parseAssignments parses key=value pairs. Values are decoded as JSON when
// possible and kept as strings otherwise.
func parseAssignments(pairs []string) (map[string]any, error) {
	values := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid assignment %q, use key=value", pair)
		}
		var value any
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			value = raw
		}
		values[key] = value
	}
	return values, nil
}
