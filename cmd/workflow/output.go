package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	workflow "github.com/intrafind/ihub-apps-sub010"
)

var (
	headerColor = color.New(color.FgCyan, color.Bold)
	labelColor  = color.New(color.FgWhite)
	okColor     = color.New(color.FgGreen)
	warnColor   = color.New(color.FgYellow)
	errColor    = color.New(color.FgRed)
	noteColor   = color.New(color.FgMagenta)
)

func statusColor(status workflow.ExecutionStatus) *color.Color {
	switch status {
	case workflow.ExecutionStatusCompleted:
		return okColor
	case workflow.ExecutionStatusPaused, workflow.ExecutionStatusRunning, workflow.ExecutionStatusPending:
		return warnColor
	case workflow.ExecutionStatusFailed:
		return errColor
	case workflow.ExecutionStatusCancelled:
		return noteColor
	}
	// Custom terminal statuses set by end nodes.
	return okColor
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printState(w io.Writer, state *workflow.ExecutionState) {
	headerColor.Fprintf(w, "Execution %s\n", state.ExecutionID)
	labelColor.Fprintf(w, "  Workflow: %s\n", state.WorkflowID)
	labelColor.Fprint(w, "  Status:   ")
	statusColor(state.Status).Fprintln(w, state.Status)
	if state.CurrentNode != "" && !state.Status.IsTerminal() {
		labelColor.Fprintf(w, "  Node:     %s\n", state.CurrentNode)
	}
	if len(state.CompletedNodes) > 0 {
		labelColor.Fprintf(w, "  Steps:    %d (%d iterations)\n", len(state.CompletedNodes), state.Iterations)
	}
	if !state.CompletedAt.IsZero() {
		labelColor.Fprintf(w, "  Duration: %s\n", state.CompletedAt.Sub(state.CreatedAt).Round(time.Millisecond))
	}
	for _, rec := range state.Errors {
		errColor.Fprintf(w, "  Error:    [%s] %s", rec.Type, rec.Message)
		if rec.NodeID != "" {
			errColor.Fprintf(w, " (node %s)", rec.NodeID)
		}
		fmt.Fprintln(w)
	}

	if cp := state.PendingCheckpoint; cp != nil {
		fmt.Fprintln(w)
		warnColor.Fprintf(w, "Waiting for input at %s\n", cp.NodeID)
		if cp.Message != "" {
			fmt.Fprintf(w, "  %s\n", cp.Message)
		}
		for _, opt := range cp.Options {
			if opt.Label != "" {
				fmt.Fprintf(w, "  - %s: %s\n", opt.Value, opt.Label)
			} else {
				fmt.Fprintf(w, "  - %s\n", opt.Value)
			}
		}
		printValues(w, "Data", cp.Data)
		noteColor.Fprintf(w, "Resume with: workflow resume %s --response <option>\n", state.ExecutionID)
	}
	printValues(w, "Outputs", state.Output)
}

func printValues(w io.Writer, title string, values map[string]any) {
	if len(values) == 0 {
		return
	}
	fmt.Fprintln(w)
	noteColor.Fprintf(w, "%s:\n", title)
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if encoded, err := json.Marshal(values[key]); err == nil {
			fmt.Fprintf(w, "  %s: %s\n", key, encoded)
		} else {
			fmt.Fprintf(w, "  %s: %v\n", key, values[key])
		}
	}
}

func printSummaries(w io.Writer, summaries []*workflow.ExecutionSummary) {
	if len(summaries) == 0 {
		labelColor.Fprintln(w, "No executions")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "EXECUTION\tWORKFLOW\tSTATUS\tCREATED\tERROR")
	for _, s := range summaries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			s.ExecutionID, s.WorkflowID, s.Status, s.CreatedAt.Local().Format(time.DateTime), s.Error)
	}
	tw.Flush()
}

func printValid(w io.Writer, path string, wf *workflow.Workflow) {
	okColor.Fprint(w, "✓ ")
	fmt.Fprintf(w, "%s: %s (%d nodes, %d edges)\n", path, wf.ID(), len(wf.Nodes()), len(wf.Edges()))
}

func printInvalid(w io.Writer, path string, err error) {
	errColor.Fprint(w, "✗ ")
	fmt.Fprintf(w, "%s: %v\n", path, err)
}
