package execution

import (
	"sync"
	"time"

	"sphere_canvas/internal/domain"
)

const DefaultStepDelay = 800 * time.Millisecond

// ReplayStep is one element of an execution path. ConnectionID is the connection that led into
// NodeID from the previous path element, empty for the first step or when no connection joins them.
type ReplayStep struct {
	Index        int
	NodeID       string
	ConnectionID string
}

type Plan struct {
	Steps []ReplayStep
}

// NewPlan pairs each consecutive pair of path ids with the first connection joining them.
func NewPlan(connections []domain.Connection, path []string) Plan {
	steps := make([]ReplayStep, 0, len(path))
	for i, nodeID := range path {
		step := ReplayStep{Index: i, NodeID: nodeID}
		if i > 0 {
			prev := path[i-1]
			for _, c := range connections {
				if c.From == prev && c.To == nodeID {
					step.ConnectionID = c.ID
					break
				}
			}
		}
		steps = append(steps, step)
	}
	return Plan{Steps: steps}
}

// Connections lists the traversed connection ids in path order.
func (p Plan) Connections() []string {
	out := make([]string, 0, len(p.Steps))
	for _, s := range p.Steps {
		if s.ConnectionID != "" {
			out = append(out, s.ConnectionID)
		}
	}
	return out
}

type Timer interface {
	Stop() bool
}

type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type systemScheduler struct{}

func (systemScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// SystemScheduler schedules on real time.
func SystemScheduler() Scheduler { return systemScheduler{} }

type ReplayState string

const (
	ReplayPending   ReplayState = "pending"
	ReplayRevealing ReplayState = "revealing"
	ReplayDone      ReplayState = "done"
	ReplayCancelled ReplayState = "cancelled"
)

// Replay reveals a plan one step at a time. The first step is revealed as soon as Start is called,
// every later one after the step delay.
type Replay struct {
	mu       sync.Mutex
	plan     Plan
	delay    time.Duration
	sched    Scheduler
	state    ReplayState
	next     int
	timer    Timer
	onStep   func(ReplayStep)
	onFinish func()
}

func NewReplay(plan Plan, delay time.Duration, sched Scheduler) *Replay {
	if delay <= 0 {
		delay = DefaultStepDelay
	}
	if sched == nil {
		sched = SystemScheduler()
	}
	return &Replay{
		plan:  plan,
		delay: delay,
		sched: sched,
		state: ReplayPending,
	}
}

// Start begins revealing. onFinish runs once after the last step and never after Cancel. Start on
// a replay that is not pending does nothing.
func (r *Replay) Start(onStep func(ReplayStep), onFinish func()) {
	r.mu.Lock()
	if r.state != ReplayPending {
		r.mu.Unlock()
		return
	}
	if onStep == nil {
		onStep = func(ReplayStep) {}
	}
	r.onStep = onStep
	r.onFinish = onFinish
	if len(r.plan.Steps) == 0 {
		r.state = ReplayDone
		r.mu.Unlock()
		if onFinish != nil {
			onFinish()
		}
		return
	}
	r.state = ReplayRevealing
	r.mu.Unlock()

	r.advance()
}

func (r *Replay) advance() {
	r.mu.Lock()
	if r.state != ReplayRevealing {
		r.mu.Unlock()
		return
	}
	step := r.plan.Steps[r.next]
	r.next++
	r.timer = nil
	finished := r.next >= len(r.plan.Steps)
	if finished {
		r.state = ReplayDone
	}
	r.mu.Unlock()

	r.onStep(step)
	if finished {
		if r.onFinish != nil {
			r.onFinish()
		}
		return
	}

	r.mu.Lock()
	if r.state == ReplayRevealing {
		r.timer = r.sched.AfterFunc(r.delay, r.advance)
	}
	r.mu.Unlock()
}

// Cancel stops a running replay. It reports whether there was anything to stop.
func (r *Replay) Cancel() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != ReplayPending && r.state != ReplayRevealing {
		return false
	}
	r.state = ReplayCancelled
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	return true
}

func (r *Replay) State() ReplayState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Revealed is the number of steps shown so far.
func (r *Replay) Revealed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.next
}

func (r *Replay) Plan() Plan {
	return r.plan
}
