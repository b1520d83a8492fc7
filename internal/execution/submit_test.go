package execution

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"sphere_canvas/internal/domain"
)

type fakeAPI struct {
	calls      []string
	failCreate error
	failTask   string
	taskErr    error
	execErr    error
	result     domain.ExecutionResult
}

func (f *fakeAPI) CreateWorkflow(_ context.Context, wf domain.Workflow) error {
	f.calls = append(f.calls, "create:"+wf.WorkflowID)
	return f.failCreate
}

func (f *fakeAPI) AddTask(_ context.Context, workflowID string, task domain.CompiledTask) error {
	f.calls = append(f.calls, "task:"+task.TaskID)
	if task.TaskID == f.failTask {
		return f.taskErr
	}
	return nil
}

func (f *fakeAPI) Execute(_ context.Context, workflowID string) (domain.ExecutionResult, error) {
	f.calls = append(f.calls, "execute:"+workflowID)
	return f.result, f.execErr
}

func sampleWorkflow() domain.Workflow {
	return domain.Workflow{
		WorkflowID: "visual_workflow_42",
		Name:       "Morning",
		Tasks: []domain.CompiledTask{
			{TaskID: "agent_a", AgentName: "home", RetryCount: 1, OnFailure: "stop"},
			{TaskID: "agent_b", AgentName: "finance", RetryCount: 1, OnFailure: "stop"},
		},
		StartTaskID: "agent_a",
	}
}

func TestSubmitRunsSequenceInOrder(t *testing.T) {
	api := &fakeAPI{result: domain.ExecutionResult{Success: false, Status: "failed", ExecutionPath: []string{"agent_a"}}}

	res, err := Submit(context.Background(), api, sampleWorkflow())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	got := strings.Join(api.calls, " ")
	want := "create:visual_workflow_42 task:agent_a task:agent_b execute:visual_workflow_42"
	if got != want {
		t.Fatalf("calls=%q want=%q", got, want)
	}
	if res.Success || res.WorkflowID != "visual_workflow_42" {
		t.Fatalf("result=%+v", res)
	}
}

func TestSubmitStopsAtFirstFailure(t *testing.T) {
	notFound := &APIError{StatusCode: http.StatusNotFound, Message: "Workflow not found"}
	tests := []struct {
		name      string
		api       *fakeAPI
		wantStep  Step
		wantCalls int
		wantMsg   string
	}{
		{
			name:      "create",
			api:       &fakeAPI{failCreate: errors.New("connection refused")},
			wantStep:  StepCreate,
			wantCalls: 1,
			wantMsg:   "Failed to create workflow. Is the execution server running?",
		},
		{
			name:      "add task",
			api:       &fakeAPI{failTask: "agent_a", taskErr: notFound},
			wantStep:  StepAddTask,
			wantCalls: 2,
			wantMsg:   "Workflow not found",
		},
		{
			name:      "execute",
			api:       &fakeAPI{execErr: &APIError{StatusCode: http.StatusInternalServerError}},
			wantStep:  StepExecute,
			wantCalls: 4,
			wantMsg:   "Failed to execute workflow",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Submit(context.Background(), tc.api, sampleWorkflow())
			var stepErr *StepError
			if !errors.As(err, &stepErr) {
				t.Fatalf("err=%v want StepError", err)
			}
			if stepErr.Step != tc.wantStep {
				t.Fatalf("step=%s want=%s", stepErr.Step, tc.wantStep)
			}
			if len(tc.api.calls) != tc.wantCalls {
				t.Fatalf("calls=%v", tc.api.calls)
			}
			if msg := stepErr.UserMessage(); msg != tc.wantMsg {
				t.Fatalf("user message=%q want=%q", msg, tc.wantMsg)
			}
		})
	}
}

func TestSubmitStopsWhenContextCancelled(t *testing.T) {
	api := &fakeAPI{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Submit(ctx, api, sampleWorkflow())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v want context.Canceled", err)
	}
	if len(api.calls) != 1 {
		t.Fatalf("calls=%v", api.calls)
	}
}
