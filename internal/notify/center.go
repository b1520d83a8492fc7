package notify

import (
	"sync"
	"time"
)

type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

type Notification struct {
	ID        int
	Level     Level
	Message   string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Center keeps transient notifications. Each one disappears after the configured lifetime; nothing
// has to dismiss it. Safe for concurrent use.
type Center struct {
	mu       sync.Mutex
	lifetime time.Duration
	now      func() time.Time
	nextID   int
	items    []Notification
	onChange func()
}

type Option func(*Center)

func WithClock(now func() time.Time) Option {
	return func(c *Center) {
		c.now = now
	}
}

// OnChange registers fn to run after a notification is pushed or pruned.
func OnChange(fn func()) Option {
	return func(c *Center) {
		c.onChange = fn
	}
}

func NewCenter(lifetime time.Duration, opts ...Option) *Center {
	if lifetime <= 0 {
		lifetime = 3 * time.Second
	}
	c := &Center{
		lifetime: lifetime,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Center) Push(level Level, message string) Notification {
	c.mu.Lock()
	now := c.now()
	c.nextID++
	n := Notification{
		ID:        c.nextID,
		Level:     level,
		Message:   message,
		CreatedAt: now,
		ExpiresAt: now.Add(c.lifetime),
	}
	c.items = append(c.items, n)
	fn := c.onChange
	c.mu.Unlock()

	if fn != nil {
		fn()
	}
	return n
}

func (c *Center) Info(message string) Notification    { return c.Push(LevelInfo, message) }
func (c *Center) Success(message string) Notification { return c.Push(LevelSuccess, message) }
func (c *Center) Warn(message string) Notification    { return c.Push(LevelWarning, message) }
func (c *Center) Error(message string) Notification   { return c.Push(LevelError, message) }

// Active returns the notifications that have not expired yet, oldest first.
func (c *Center) Active() []Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	out := make([]Notification, 0, len(c.items))
	for _, n := range c.items {
		if now.Before(n.ExpiresAt) {
			out = append(out, n)
		}
	}
	return out
}

// Prune drops expired notifications and reports how many were removed.
func (c *Center) Prune() int {
	c.mu.Lock()
	now := c.now()
	kept := c.items[:0]
	for _, n := range c.items {
		if now.Before(n.ExpiresAt) {
			kept = append(kept, n)
		}
	}
	removed := len(c.items) - len(kept)
	c.items = kept
	fn := c.onChange
	c.mu.Unlock()

	if removed > 0 && fn != nil {
		fn()
	}
	return removed
}
