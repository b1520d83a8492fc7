package notify

import (
	"testing"
	"time"
)

type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time { return f.now }

func TestNotificationsExpireAfterLifetime(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	changes := 0
	c := NewCenter(3*time.Second, WithClock(clock.Now), OnChange(func() { changes++ }))

	c.Error("create workflow failed")
	clock.now = clock.now.Add(2 * time.Second)
	c.Info("second")

	if got := len(c.Active()); got != 2 {
		t.Fatalf("active=%d want=2", got)
	}

	clock.now = clock.now.Add(1500 * time.Millisecond)
	active := c.Active()
	if len(active) != 1 || active[0].Message != "second" {
		t.Fatalf("active=%+v", active)
	}

	if removed := c.Prune(); removed != 1 {
		t.Fatalf("pruned=%d want=1", removed)
	}
	clock.now = clock.now.Add(2 * time.Second)
	if removed := c.Prune(); removed != 1 {
		t.Fatalf("pruned=%d want=1", removed)
	}
	if len(c.Active()) != 0 {
		t.Fatalf("expected no active notifications")
	}
	// two pushes and two prunes
	if changes != 4 {
		t.Fatalf("changes=%d want=4", changes)
	}
}

func TestDefaultLifetime(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	c := NewCenter(0, WithClock(clock.Now))
	n := c.Warn("cycle")
	if n.ExpiresAt.Sub(n.CreatedAt) != 3*time.Second {
		t.Fatalf("lifetime=%s", n.ExpiresAt.Sub(n.CreatedAt))
	}
	if n.Level != LevelWarning || n.ID != 1 {
		t.Fatalf("notification=%+v", n)
	}
}
