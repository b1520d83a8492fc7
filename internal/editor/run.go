package editor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sphere_canvas/internal/compiler"
	"sphere_canvas/internal/domain"
	"sphere_canvas/internal/events"
	"sphere_canvas/internal/execution"
	"sphere_canvas/internal/notify"
	"sphere_canvas/internal/store"
)

const eventsSubscriber = "editor"

// Compile validates and compiles the current graph without sending anything.
func (s *Session) Compile() (compiler.Compilation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return compiler.Compile(s.graph)
}

// Execute compiles the graph, runs the create, populate, execute sequence and starts the replay
// of the returned execution path. Validation errors are reported without contacting the server.
func (s *Session) Execute(ctx context.Context) (domain.ExecutionResult, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return domain.ExecutionResult{}, ErrBusy
	}
	comp, err := compiler.Compile(s.graph)
	if err != nil {
		s.mu.Unlock()
		s.notify(notify.LevelError, "%v", err)
		return domain.ExecutionResult{}, fmt.Errorf("compile workflow: %w", err)
	}
	s.running = true
	graphID := s.libraryID
	prev := s.replay
	s.replay = nil
	s.canvas.ClearExecuted()
	s.mu.Unlock()

	if prev != nil {
		prev.Cancel()
	}
	for _, n := range comp.Notes {
		s.notify(notify.LevelWarning, "%s", n.String())
	}

	wf := comp.Workflow
	s.logger.Printf("workflow submit workflow_id=%s tasks=%d", wf.WorkflowID, len(wf.Tasks))
	started := time.Now()
	res, err := execution.Submit(ctx, s.api, wf)

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	if err != nil {
		s.logger.Printf("workflow submit failed workflow_id=%s duration=%s err=%v", wf.WorkflowID, time.Since(started).Round(time.Millisecond), err)
		msg := err.Error()
		var stepErr *execution.StepError
		if errors.As(err, &stepErr) {
			msg = stepErr.UserMessage()
		}
		s.notify(notify.LevelError, "%s", msg)
		s.recordRun(ctx, graphID, domain.ExecutionResult{WorkflowID: wf.WorkflowID, Status: "error", Error: err.Error()})
		s.changed()
		return domain.ExecutionResult{}, err
	}

	s.logger.Printf("workflow finished workflow_id=%s success=%t status=%s duration_seconds=%.2f path=%d", wf.WorkflowID, res.Success, res.Status, res.DurationSeconds, len(res.ExecutionPath))
	if res.Success {
		s.notify(notify.LevelSuccess, "Workflow completed in %.2fs", res.DurationSeconds)
	} else {
		reason := res.Error
		if reason == "" {
			reason = res.Status
		}
		s.notify(notify.LevelError, "Workflow failed: %s", reason)
	}
	s.recordRun(ctx, graphID, res)
	s.startReplay(res)
	return res, nil
}

func (s *Session) recordRun(ctx context.Context, graphID string, res domain.ExecutionResult) {
	if s.library == nil {
		return
	}
	run, err := s.library.RecordRun(ctx, store.RunFromResult(graphID, res))
	if err != nil {
		s.logger.Printf("run record failed workflow_id=%s err=%v", res.WorkflowID, err)
		s.notify(notify.LevelWarning, "Run history not saved: %v", err)
		return
	}
	s.logger.Printf("run recorded id=%s workflow_id=%s", run.ID, run.WorkflowID)
}

func (s *Session) startReplay(res domain.ExecutionResult) {
	s.mu.Lock()
	s.lastRun = &res
	plan := execution.NewPlan(s.graph.Connections(), res.ExecutionPath)
	r := execution.NewReplay(plan, s.cfg.StepDelay, s.cfg.Scheduler)
	s.replay = r
	s.mu.Unlock()

	r.Start(func(step execution.ReplayStep) {
		s.revealStep(r, step)
	}, func() {
		s.logger.Printf("replay finished workflow_id=%s steps=%d", res.WorkflowID, len(plan.Steps))
		s.changed()
	})
}

// revealStep highlights a replay step unless r was replaced or cancelled since the step fired.
func (s *Session) revealStep(r *execution.Replay, step execution.ReplayStep) {
	s.mu.Lock()
	live := s.replay == r && r.State() != execution.ReplayCancelled
	if live {
		s.canvas.MarkExecuted(step.NodeID, step.ConnectionID)
	}
	s.mu.Unlock()
	if live {
		s.changed()
	}
}

// CancelReplay stops the running replay. Highlights revealed so far stay.
func (s *Session) CancelReplay() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.replay == nil {
		return false
	}
	return s.replay.Cancel()
}

// ReplayProgress reports how many path elements have been revealed.
func (s *Session) ReplayProgress() (revealed, total int, state execution.ReplayState) {
	s.mu.Lock()
	r := s.replay
	s.mu.Unlock()
	if r == nil {
		return 0, 0, ""
	}
	return r.Revealed(), len(r.Plan().Steps), r.State()
}

// RefreshAgents replaces the agent catalog with the server's. On failure the current catalog
// stays.
func (s *Session) RefreshAgents(ctx context.Context) error {
	agents, err := s.api.ListAgents(ctx)
	if err != nil {
		s.notify(notify.LevelWarning, "Could not refresh agents: %v", err)
		return fmt.Errorf("refresh agents: %w", err)
	}
	if len(agents) == 0 {
		return nil
	}
	s.mu.Lock()
	s.agents = agents
	s.mu.Unlock()
	s.logger.Printf("agents refreshed count=%d", len(agents))
	return nil
}

// CheckHealth pings the execution server and records the outcome.
func (s *Session) CheckHealth(ctx context.Context) HealthState {
	h, err := s.api.Health(ctx)
	state := HealthState{Checked: true, OK: err == nil, Health: h, CheckedAt: time.Now()}
	if err != nil {
		state.Err = err.Error()
	}
	s.mu.Lock()
	was := s.health
	s.health = state
	s.mu.Unlock()

	if was.Checked && was.OK != state.OK {
		if state.OK {
			s.logger.Printf("execution server reachable service=%q version=%s", h.Service, h.Version)
			s.notify(notify.LevelSuccess, "Execution server is back")
		} else {
			s.logger.Printf("execution server unreachable err=%v", err)
			s.notify(notify.LevelWarning, "Execution server unreachable")
		}
	}
	return state
}

// HandleEvent turns a server event about a workflow into a notification.
func (s *Session) HandleEvent(evt domain.SystemEvent) {
	msg, ok := events.Describe(evt)
	if !ok {
		return
	}
	level := notify.LevelInfo
	if evt.Type == domain.SystemEventWorkflowCompleted && evt.Success != nil && !*evt.Success {
		level = notify.LevelWarning
	}
	s.notes.Push(level, msg)
}

// Start runs the health poller and, when an event bus is configured, the event loop. Both stop
// when ctx is done; Wait blocks until they have.
func (s *Session) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.healthLoop(ctx)
	}()

	if s.events != nil {
		ch := s.events.Register(eventsSubscriber)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.events.Unregister(eventsSubscriber)
			for {
				select {
				case <-ctx.Done():
					return
				case evt, ok := <-ch:
					if !ok {
						return
					}
					s.HandleEvent(evt)
					s.changed()
				}
			}
		}()
	}
}

func (s *Session) Wait() {
	s.wg.Wait()
}

func (s *Session) healthLoop(ctx context.Context) {
	check := func() {
		checkCtx, cancel := context.WithTimeout(ctx, s.cfg.HealthInterval)
		defer cancel()
		s.CheckHealth(checkCtx)
		s.changed()
	}
	check()
	ticker := time.NewTicker(s.cfg.HealthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			check()
		}
	}
}
