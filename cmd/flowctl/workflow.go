package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"sphere_canvas/internal/compiler"
	"sphere_canvas/internal/config"
	"sphere_canvas/internal/domain"
	"sphere_canvas/internal/execution"
	"sphere_canvas/internal/graph"
	"sphere_canvas/internal/interchange"
	"sphere_canvas/internal/store"
)

var (
	compileWalk bool
	runRecord   bool
	runJSON     bool
)

var validateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Check that a workflow file compiles",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := readGraph(cmd, args[0])
		if err != nil {
			return err
		}
		if err := compiler.Validate(compiler.FromDocument(doc)); err != nil {
			return fmt.Errorf("%s: %w", args[0], err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "ok: %s nodes=%d connections=%d\n", doc.Name, len(doc.Nodes), len(doc.Connections))
		return nil
	},
}

var compileCmd = &cobra.Command{
	Use:   "compile <file>",
	Short: "Print the workflow definition a file compiles to",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := readGraph(cmd, args[0])
		if err != nil {
			return err
		}
		comp, err := compiler.Compile(compiler.FromDocument(doc))
		if err != nil {
			return fmt.Errorf("compile %s: %w", args[0], err)
		}
		for _, n := range comp.Notes {
			fmt.Fprintf(cmd.ErrOrStderr(), "note: %s\n", n)
		}
		if compileWalk {
			fmt.Fprintf(cmd.ErrOrStderr(), "walk: %s\n", strings.Join(comp.Walk, " -> "))
		}
		return printJSON(cmd.OutOrStdout(), comp.Workflow)
	},
}

var runCmd = &cobra.Command{
	Use:   "run <file>",
	Short: "Compile a workflow file and execute it on the server",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		doc, err := readGraph(cmd, args[0])
		if err != nil {
			return err
		}
		comp, err := compiler.Compile(compiler.FromDocument(doc))
		if err != nil {
			return fmt.Errorf("compile %s: %w", args[0], err)
		}
		for _, n := range comp.Notes {
			fmt.Fprintf(cmd.ErrOrStderr(), "note: %s\n", n)
		}
		client, err := newClient(cfg)
		if err != nil {
			return err
		}

		res, runErr := execution.Submit(ctx, client, comp.Workflow)
		if runRecord {
			record := store.RunFromResult("", res)
			if runErr != nil {
				record = store.RunFromResult("", domain.ExecutionResult{WorkflowID: comp.Workflow.WorkflowID, Status: "error", Error: runErr.Error()})
			}
			if err := recordRun(cmd, cfg, record); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: run not recorded: %v\n", err)
			}
		}
		if runErr != nil {
			var stepErr *execution.StepError
			if errors.As(runErr, &stepErr) {
				return fmt.Errorf("%s: %w", stepErr.UserMessage(), runErr)
			}
			return runErr
		}

		if runJSON {
			if err := printJSON(cmd.OutOrStdout(), res); err != nil {
				return err
			}
		} else {
			printResult(cmd, doc, res)
		}
		if !res.Success {
			return fmt.Errorf("workflow %s failed: %s", res.WorkflowID, firstNonEmpty(res.Error, res.Status))
		}
		return nil
	},
}

func recordRun(cmd *cobra.Command, cfg config.Config, run domain.RunRecord) error {
	lib, err := openLibrary(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = lib.Close()
	}()
	_, err = lib.RecordRun(cmd.Context(), run)
	return err
}

func printResult(cmd *cobra.Command, doc domain.Document, res domain.ExecutionResult) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "workflow=%s success=%t status=%s duration=%.2fs\n", res.WorkflowID, res.Success, res.Status, res.DurationSeconds)
	names := map[string]string{}
	for _, n := range doc.Nodes {
		names[n.ID] = n.ID + "(" + string(n.Type()) + ")"
	}
	plan := execution.NewPlan(doc.Connections, res.ExecutionPath)
	steps := make([]string, 0, len(plan.Steps))
	for _, s := range plan.Steps {
		steps = append(steps, firstNonEmpty(names[s.NodeID], s.NodeID))
	}
	if len(steps) > 0 {
		fmt.Fprintf(out, "path: %s\n", strings.Join(steps, " -> "))
	}
	for _, r := range res.Results {
		fmt.Fprintf(out, "  %-12s %-10s %s\n", r.TaskID, r.Status, r.ResultText())
	}
	if res.Error != "" {
		fmt.Fprintf(out, "error: %s\n", res.Error)
	}
}

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List the agents the execution server offers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		client, err := newClient(cfg)
		if err != nil {
			return err
		}
		agents, err := client.ListAgents(cmd.Context())
		if err != nil {
			return fmt.Errorf("list agents: %w", err)
		}
		for _, a := range agents {
			fmt.Fprintf(cmd.OutOrStdout(), "%-10s %-12s %-10s %s\n", a.ID, a.Name, a.Status, a.Role)
		}
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <workflow-id>",
	Short: "Show a workflow's status on the execution server",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		client, err := newClient(cfg)
		if err != nil {
			return err
		}
		st, err := client.WorkflowStatus(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("workflow status: %w", err)
		}
		return printJSON(cmd.OutOrStdout(), st)
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <workflow-id>",
	Short: "Delete a workflow from the execution server",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		client, err := newClient(cfg)
		if err != nil {
			return err
		}
		if err := client.DeleteWorkflow(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("delete workflow: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
		return nil
	},
}

var examplesCmd = &cobra.Command{
	Use:   "examples [name]",
	Short: "List the built-in examples or print one as JSON",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			for _, name := range graph.ExampleNames() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		}
		doc, ok := graph.Example(args[0])
		if !ok {
			return fmt.Errorf("unknown example %q", args[0])
		}
		body, err := interchange.Export(doc)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(body)
		return err
	},
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func init() {
	compileCmd.Flags().BoolVar(&compileWalk, "walk", false, "print the visited node ids to stderr")
	runCmd.Flags().BoolVar(&runRecord, "record", true, "record the run in the graph library")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "print the raw execution result")

	rootCmd.AddCommand(validateCmd, compileCmd, runCmd, agentsCmd, statusCmd, deleteCmd, examplesCmd)
}
