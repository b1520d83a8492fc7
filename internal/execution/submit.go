package execution

import (
	"context"
	"fmt"

	"sphere_canvas/internal/domain"
)

// API is the part of the execution service Submit needs.
type API interface {
	CreateWorkflow(ctx context.Context, wf domain.Workflow) error
	AddTask(ctx context.Context, workflowID string, task domain.CompiledTask) error
	Execute(ctx context.Context, workflowID string) (domain.ExecutionResult, error)
}

type Step string

const (
	StepCreate  Step = "create"
	StepAddTask Step = "add_task"
	StepExecute Step = "execute"
)

// StepError reports which part of the create, populate, execute sequence failed. Nothing after the
// failed step was sent.
type StepError struct {
	Step       Step
	WorkflowID string
	TaskID     string
	Err        error
}

func (e *StepError) Error() string {
	if e.TaskID != "" {
		return fmt.Sprintf("%s workflow=%s task=%s: %v", e.Step, e.WorkflowID, e.TaskID, e.Err)
	}
	return fmt.Sprintf("%s workflow=%s: %v", e.Step, e.WorkflowID, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// UserMessage is the text shown to the user for a failed submission: the server's own message when
// it sent one, otherwise a generic line naming the step.
func (e *StepError) UserMessage() string {
	if msg, ok := ServerMessage(e.Err); ok {
		return msg
	}
	switch e.Step {
	case StepCreate:
		return "Failed to create workflow. Is the execution server running?"
	case StepAddTask:
		return fmt.Sprintf("Failed to add task %s", e.TaskID)
	default:
		return "Failed to execute workflow"
	}
}

// Submit creates the workflow shell, adds every task in order and triggers execution. A result with
// success=false is returned as-is; only transport and API failures are errors.
func Submit(ctx context.Context, api API, wf domain.Workflow) (domain.ExecutionResult, error) {
	if err := api.CreateWorkflow(ctx, wf); err != nil {
		return domain.ExecutionResult{}, &StepError{Step: StepCreate, WorkflowID: wf.WorkflowID, Err: err}
	}
	for _, task := range wf.Tasks {
		if err := ctx.Err(); err != nil {
			return domain.ExecutionResult{}, &StepError{Step: StepAddTask, WorkflowID: wf.WorkflowID, TaskID: task.TaskID, Err: err}
		}
		if err := api.AddTask(ctx, wf.WorkflowID, task); err != nil {
			return domain.ExecutionResult{}, &StepError{Step: StepAddTask, WorkflowID: wf.WorkflowID, TaskID: task.TaskID, Err: err}
		}
	}
	result, err := api.Execute(ctx, wf.WorkflowID)
	if err != nil {
		return domain.ExecutionResult{}, &StepError{Step: StepExecute, WorkflowID: wf.WorkflowID, Err: err}
	}
	if result.WorkflowID == "" {
		result.WorkflowID = wf.WorkflowID
	}
	return result, nil
}
