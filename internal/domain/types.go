package domain

import (
	"encoding/json"
	"time"
)

type NodeType string

const (
	NodeTypeStart     NodeType = "start"
	NodeTypeAgent     NodeType = "agent"
	NodeTypeCondition NodeType = "condition"
	NodeTypeBranch    NodeType = "branch"
	NodeTypeEnd       NodeType = "end"
)

// NodeTypes lists every node type in toolbar order.
func NodeTypes() []NodeType {
	return []NodeType{NodeTypeStart, NodeTypeAgent, NodeTypeCondition, NodeTypeBranch, NodeTypeEnd}
}

type ConditionOperator string

const (
	OperatorContains    ConditionOperator = "contains"
	OperatorEquals      ConditionOperator = "equals"
	OperatorGreaterThan ConditionOperator = "greater_than"
	OperatorLessThan    ConditionOperator = "less_than"
	OperatorNotContains ConditionOperator = "not_contains"
)

func ConditionOperators() []ConditionOperator {
	return []ConditionOperator{OperatorContains, OperatorEquals, OperatorGreaterThan, OperatorLessThan, OperatorNotContains}
}

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (p Point) Add(o Point) Point {
	return Point{X: p.X + o.X, Y: p.Y + o.Y}
}

func (p Point) Sub(o Point) Point {
	return Point{X: p.X - o.X, Y: p.Y - o.Y}
}

func (p Point) Scale(f float64) Point {
	return Point{X: p.X * f, Y: p.Y * f}
}

type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Rect is an axis-aligned box in logical graph space.
type Rect struct {
	MinX float64 `json:"min_x"`
	MinY float64 `json:"min_y"`
	MaxX float64 `json:"max_x"`
	MaxY float64 `json:"max_y"`
}

func (r Rect) Width() float64  { return r.MaxX - r.MinX }
func (r Rect) Height() float64 { return r.MaxY - r.MinY }

func (r Rect) Contains(p Point) bool {
	return p.X >= r.MinX && p.X <= r.MaxX && p.Y >= r.MinY && p.Y <= r.MaxY
}

type Node struct {
	ID       string
	Position Point
	Data     NodeData
}

// Type reports the node type carried by its data variant.
func (n Node) Type() NodeType {
	if n.Data == nil {
		return ""
	}
	return n.Data.nodeType()
}

type Connection struct {
	ID    string `json:"id"`
	From  string `json:"from"`
	To    string `json:"to"`
	Label string `json:"label,omitempty"`
}

// Document is the interchange form of a graph: the export file, the library record body and the
// HCL authoring target all decode into it.
type Document struct {
	Name        string       `json:"name"`
	Nodes       []Node       `json:"nodes"`
	Connections []Connection `json:"connections"`
}

type Agent struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Role        string `json:"role"`
	Description string `json:"description"`
	Status      string `json:"status"`
}

// DefaultAgents is the agent catalog used until the server's list has been fetched.
func DefaultAgents() []Agent {
	return []Agent{
		{ID: "home", Name: "JARVIS", Role: "Home Automation Manager", Description: "Control smart home devices", Status: "active"},
		{ID: "calendar", Name: "Assistant", Role: "Calendar & Email Manager", Description: "Manage calendar and emails", Status: "active"},
		{ID: "finance", Name: "FinanceBot", Role: "Financial Planning Assistant", Description: "Manage finances and investments", Status: "active"},
	}
}

const (
	DefaultRetryCount = 1
	OnFailureStop     = "stop"
)

type CompiledTask struct {
	TaskID     string  `json:"task_id"`
	AgentName  string  `json:"agent_name"`
	Request    string  `json:"request"`
	RetryCount int     `json:"retry_count"`
	OnFailure  string  `json:"on_failure"`
	NextTaskID *string `json:"next_task_id,omitempty"`
}

type Workflow struct {
	WorkflowID  string         `json:"workflow_id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Tasks       []CompiledTask `json:"tasks"`
	StartTaskID string         `json:"start_task_id"`
}

type ExecutionResult struct {
	Success         bool         `json:"success"`
	WorkflowID      string       `json:"workflow_id,omitempty"`
	Status          string       `json:"status"`
	DurationSeconds float64      `json:"duration_seconds"`
	ExecutionPath   []string     `json:"execution_path"`
	Results         []TaskResult `json:"results"`
	Error           string       `json:"error,omitempty"`
}

type TaskResult struct {
	TaskID string          `json:"task_id"`
	Status string          `json:"status"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// ResultText renders the task result for display. String results are unquoted, anything else is
// returned as raw JSON.
func (r TaskResult) ResultText() string {
	if len(r.Result) == 0 || string(r.Result) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(r.Result, &s); err == nil {
		return s
	}
	return string(r.Result)
}

type WorkflowStatus struct {
	WorkflowID      string   `json:"workflow_id"`
	Name            string   `json:"name"`
	Status          string   `json:"status"`
	TotalTasks      int      `json:"total_tasks"`
	Completed       int      `json:"completed"`
	Failed          int      `json:"failed"`
	Pending         int      `json:"pending"`
	ExecutionPath   []string `json:"execution_path"`
	ProgressPercent float64  `json:"progress_percent"`
	Error           string   `json:"error,omitempty"`
}

type Health struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Version   string `json:"version"`
	Timestamp string `json:"timestamp"`
}

type SystemEventType string

const (
	SystemEventWorkflowCreated   SystemEventType = "workflow_created"
	SystemEventWorkflowStarted   SystemEventType = "workflow_started"
	SystemEventWorkflowCompleted SystemEventType = "workflow_completed"
)

type SystemEvent struct {
	Type       SystemEventType
	WorkflowID string
	Success    *bool
	Data       map[string]any
	Timestamp  time.Time
}

type GraphSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	NodeCount int       `json:"node_count"`
	UpdatedAt time.Time `json:"updated_at"`
}

type SavedGraph struct {
	ID        string    `json:"id"`
	Slug      string    `json:"slug"`
	Document  Document  `json:"document"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type RunRecord struct {
	ID              string       `json:"id"`
	GraphID         string       `json:"graph_id,omitempty"`
	WorkflowID      string       `json:"workflow_id"`
	Success         bool         `json:"success"`
	Status          string       `json:"status"`
	DurationSeconds float64      `json:"duration_seconds"`
	ExecutionPath   []string     `json:"execution_path"`
	Results         []TaskResult `json:"results"`
	Error           string       `json:"error,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
}
