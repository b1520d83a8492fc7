package editor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"sphere_canvas/internal/canvas"
	"sphere_canvas/internal/domain"
	"sphere_canvas/internal/execution"
	"sphere_canvas/internal/fs"
	"sphere_canvas/internal/graph"
	"sphere_canvas/internal/notify"
	"sphere_canvas/internal/policy"
)

var (
	ErrBusy      = errors.New("a workflow execution is already in flight")
	ErrNoLibrary = errors.New("no graph library configured")
	ErrNoExports = errors.New("no export directory configured")
)

// API is the execution service as the editor uses it.
type API interface {
	execution.API
	ListAgents(ctx context.Context) ([]domain.Agent, error)
	Health(ctx context.Context) (domain.Health, error)
}

type Library interface {
	SaveGraph(ctx context.Context, g domain.SavedGraph) (domain.SavedGraph, error)
	GetGraph(ctx context.Context, id string) (domain.SavedGraph, error)
	ListGraphs(ctx context.Context) ([]domain.GraphSummary, error)
	RecordRun(ctx context.Context, run domain.RunRecord) (domain.RunRecord, error)
	ListRuns(ctx context.Context, graphID string, limit int) ([]domain.RunRecord, error)
}

type Exports interface {
	WriteFile(relPath string, content []byte) (string, fs.Operation, error)
	ReadFile(relPath string) ([]byte, error)
}

type Notifier interface {
	Push(level notify.Level, message string) notify.Notification
}

type Events interface {
	Register(subscriberID string) <-chan domain.SystemEvent
	Unregister(subscriberID string)
}

type Config struct {
	Name           string
	Canvas         canvas.Config
	StepDelay      time.Duration
	HealthInterval time.Duration
	Policy         policy.Config
	Scheduler      execution.Scheduler
}

func (c Config) withDefaults() Config {
	if c.Name == "" {
		c.Name = "Untitled Workflow"
	}
	if c.StepDelay <= 0 {
		c.StepDelay = execution.DefaultStepDelay
	}
	if c.HealthInterval <= 0 {
		c.HealthInterval = 5 * time.Second
	}
	if c.Scheduler == nil {
		c.Scheduler = execution.SystemScheduler()
	}
	return c
}

// Deps are the collaborators of a session. API and Notifier are required; the rest are optional.
type Deps struct {
	API      API
	Notifier Notifier
	Library  Library
	Exports  Exports
	Events   Events
	Logger   *log.Logger
}

type HealthState struct {
	Checked   bool
	OK        bool
	Health    domain.Health
	Err       string
	CheckedAt time.Time
}

// Session is one open editor: the graph, its canvas and every user action on them. All methods
// are safe for concurrent use; replay steps, health checks and server events arrive on other
// goroutines.
type Session struct {
	mu     sync.Mutex
	cfg    Config
	graph  *graph.Graph
	canvas *canvas.Controller
	policy *policy.Engine

	api      API
	notes    Notifier
	library  Library
	exports  Exports
	events   Events
	logger   *log.Logger
	onChange func()

	agents    []domain.Agent
	libraryID string
	running   bool
	replay    *execution.Replay
	lastRun   *domain.ExecutionResult
	health    HealthState

	wg sync.WaitGroup
}

func New(cfg Config, deps Deps) (*Session, error) {
	if deps.API == nil {
		return nil, fmt.Errorf("execution API is required")
	}
	if deps.Notifier == nil {
		return nil, fmt.Errorf("notifier is required")
	}
	if deps.Logger == nil {
		deps.Logger = log.Default()
	}
	cfg = cfg.withDefaults()
	g := graph.New(cfg.Name)
	return &Session{
		cfg:     cfg,
		graph:   g,
		canvas:  canvas.NewController(g, cfg.Canvas),
		policy:  policy.New(cfg.Policy),
		api:     deps.API,
		notes:   deps.Notifier,
		library: deps.Library,
		exports: deps.Exports,
		events:  deps.Events,
		logger:  deps.Logger,
		agents:  domain.DefaultAgents(),
	}, nil
}

// OnChange registers fn to run after state changes that happen off the caller's goroutine.
func (s *Session) OnChange(fn func()) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

func (s *Session) changed() {
	s.mu.Lock()
	fn := s.onChange
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (s *Session) notify(level notify.Level, format string, args ...any) {
	s.notes.Push(level, fmt.Sprintf(format, args...))
}

// View runs fn with read access to the graph and canvas.
func (s *Session) View(fn func(g *graph.Graph, c *canvas.Controller)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.graph, s.canvas)
}

// Update runs fn with write access to the canvas, for viewport operations such as zoom and pan.
func (s *Session) Update(fn func(c *canvas.Controller)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.canvas)
}

func (s *Session) Document() domain.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.graph.Document()
}

func (s *Session) Agents() []domain.Agent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Agent(nil), s.agents...)
}

func (s *Session) LibraryID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.libraryID
}

func (s *Session) Health() HealthState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.health
}

func (s *Session) LastResult() (domain.ExecutionResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastRun == nil {
		return domain.ExecutionResult{}, false
	}
	return *s.lastRun, true
}

// Running reports whether an execution request is in flight.
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
