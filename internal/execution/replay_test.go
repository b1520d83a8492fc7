package execution

import (
	"reflect"
	"sync"
	"testing"
	"time"

	"sphere_canvas/internal/domain"
)

type fakeTimer struct {
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

type fakeScheduler struct {
	mu     sync.Mutex
	delays []time.Duration
	queue  []func()
	timers []*fakeTimer
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	tm := &fakeTimer{}
	s.delays = append(s.delays, d)
	s.queue = append(s.queue, f)
	s.timers = append(s.timers, tm)
	return tm
}

// fire runs the oldest pending callback unless its timer was stopped.
func (s *fakeScheduler) fire() bool {
	s.mu.Lock()
	if len(s.queue) == 0 {
		s.mu.Unlock()
		return false
	}
	f, tm := s.queue[0], s.timers[0]
	s.queue, s.timers = s.queue[1:], s.timers[1:]
	s.mu.Unlock()
	if !tm.stopped {
		f()
	}
	return true
}

func TestNewPlanMatchesConsecutivePairs(t *testing.T) {
	conns := []domain.Connection{
		{ID: "c1", From: "start", To: "a"},
		{ID: "c2", From: "a", To: "b"},
		{ID: "c2dup", From: "a", To: "b"},
		{ID: "c3", From: "b", To: "end"},
	}
	plan := NewPlan(conns, []string{"a", "b", "x", "end"})

	want := []ReplayStep{
		{Index: 0, NodeID: "a"},
		{Index: 1, NodeID: "b", ConnectionID: "c2"},
		{Index: 2, NodeID: "x"},
		{Index: 3, NodeID: "end"},
	}
	if !reflect.DeepEqual(plan.Steps, want) {
		t.Fatalf("steps=%+v", plan.Steps)
	}
	if got := plan.Connections(); !reflect.DeepEqual(got, []string{"c2"}) {
		t.Fatalf("connections=%v", got)
	}
}

func TestReplayRevealsFirstStepImmediately(t *testing.T) {
	sched := &fakeScheduler{}
	plan := NewPlan([]domain.Connection{{ID: "c1", From: "a", To: "b"}}, []string{"a", "b", "c"})
	r := NewReplay(plan, 800*time.Millisecond, sched)

	var seen []string
	finished := 0
	r.Start(func(s ReplayStep) { seen = append(seen, s.NodeID+"/"+s.ConnectionID) }, func() { finished++ })

	if r.State() != ReplayRevealing || r.Revealed() != 1 {
		t.Fatalf("state=%s revealed=%d", r.State(), r.Revealed())
	}
	if !reflect.DeepEqual(seen, []string{"a/"}) {
		t.Fatalf("seen=%v", seen)
	}
	for sched.fire() {
	}
	if !reflect.DeepEqual(seen, []string{"a/", "b/c1", "c/"}) {
		t.Fatalf("seen=%v", seen)
	}
	if r.State() != ReplayDone || finished != 1 {
		t.Fatalf("state=%s finished=%d", r.State(), finished)
	}
	for _, d := range sched.delays {
		if d != 800*time.Millisecond {
			t.Fatalf("delay=%s", d)
		}
	}
	if len(sched.delays) != 2 {
		t.Fatalf("scheduled=%d want=2", len(sched.delays))
	}
}

func TestReplayCancelStopsPendingStep(t *testing.T) {
	sched := &fakeScheduler{}
	r := NewReplay(NewPlan(nil, []string{"a", "b", "c"}), time.Second, sched)
	steps := 0
	finished := false
	r.Start(func(ReplayStep) { steps++ }, func() { finished = true })

	if !r.Cancel() {
		t.Fatalf("cancel reported nothing to stop")
	}
	if !sched.timers[0].stopped {
		t.Fatalf("pending timer not stopped")
	}
	for sched.fire() {
	}
	if steps != 1 || finished || r.State() != ReplayCancelled {
		t.Fatalf("steps=%d finished=%v state=%s", steps, finished, r.State())
	}
	if r.Cancel() {
		t.Fatalf("second cancel should report false")
	}
}

func TestReplayEmptyPlanFinishesAtOnce(t *testing.T) {
	r := NewReplay(Plan{}, 0, &fakeScheduler{})
	finished := false
	r.Start(nil, func() { finished = true })
	if !finished || r.State() != ReplayDone {
		t.Fatalf("finished=%v state=%s", finished, r.State())
	}
	r.Start(nil, func() { t.Fatalf("restart should be ignored") })
}
