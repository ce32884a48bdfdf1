package session

import (
	"context"
	"time"
)

// ToolDefinition describes one tool available to the model this step.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ToolCall is a single tool invocation the model asked for.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// ToolResult is what came back from executing a ToolCall.
type ToolResult struct {
	Content    string
	IsError    bool
	Duration   time.Duration
	UIMetadata map[string]any // present for MCP-UI tools (§4.10)
}

// LLMResponse is one model turn: free text plus zero or more tool calls.
type LLMResponse struct {
	Text      string
	ToolCalls []ToolCall
}

// Model streams (or, for simplicity, returns in one shot) the assistant's
// next turn given the running message list and the in-scope tool set.
type Model interface {
	Generate(ctx context.Context, messages []Message, tools []ToolDefinition) (LLMResponse, error)
}

// ToolExecutor dispatches non-HITL, non-memory tool calls (external tools,
// spec §4.10 step 3's "External tools" branch).
type ToolExecutor interface {
	ListTools(ctx context.Context) ([]ToolDefinition, error)
	Execute(ctx context.Context, call ToolCall) (ToolResult, error)
}

// MCPUIResolver loads UI metadata for an MCP-UI tool result when the tool
// instance itself doesn't carry a resource_uri — looked up by app_id in the
// relational store (spec §4.10 step 3).
type MCPUIResolver interface {
	ResolveResourceURI(ctx context.Context, appID string) (string, bool, error)
}

// TaskStatus mirrors the todoread tool's per-task status values used by
// goal-completion evaluation (spec §4.10).
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskCancelled  TaskStatus = "cancelled"
	TaskFailed     TaskStatus = "failed"
)

// Task is one entry returned by the todoread tool.
type Task struct {
	ID     string
	Status TaskStatus
}

// TaskReader reads the current task list via the todoread tool, when one is
// registered for this session.
type TaskReader interface {
	ReadTasks(ctx context.Context) ([]Task, bool, error)
}

// GoalCheck is the outcome of a goal-completion evaluation.
type GoalCheck struct {
	Achieved    bool
	Source      string // "tasks", "llm_self_check", "assistant_text"
	Pending     int
	ShouldStop  bool
	Reason      string
}

// Config configures one Processor.Run call (spec §4.10's per-turn inputs).
type Config struct {
	MaxSteps           int
	MaxNoProgressSteps int
	ForcedSkillName    string
	AllowedTools       map[string]bool // nil/empty means "all tools in scope"
	Model              string
}

// SkillReminderTemplate is the synthetic system message appended when a
// forced skill is active beyond step 1.
const SkillReminderTemplate = `[SKILL REMINDER] You are executing forced skill "/%s". Follow the skill instructions from the system prompt precisely.%s`

// ProcessorState is the suspension checkpoint persisted alongside a pending
// HITL request (spec §4.10's "Suspension & resume"). A fresh Processor is
// constructed from this state once a response arrives.
type ProcessorState struct {
	Messages           []Message
	PendingToolCallID  string
	LastSequenceNumber int
	StepCount          int
	ForcedSkillName    string
	AllowedTools       map[string]bool
	Scoping            map[string]any
}

// EventType enumerates the typed events a Processor.Run emits (spec §4.10).
type EventType string

const (
	EventThought                EventType = "thought"
	EventAct                    EventType = "act"
	EventObserve                EventType = "observe"
	EventTextDelta              EventType = "text_delta"
	EventToolCallStarted        EventType = "tool_call_started"
	EventMCPAppResult           EventType = "mcp_app_result"
	EventHITLAsked              EventType = "hitl_asked"
	EventHITLAnswered           EventType = "hitl_answered"
	EventSkillExecutionComplete EventType = "skill_execution_complete"
	EventFinish                 EventType = "finish"
	EventErr                    EventType = "error"
)

// Event is one entry in the typed event stream, carrying a monotonic
// sequence number so downstream consumers can detect gaps (spec §5's
// ordering guarantee across HITL boundaries).
type Event struct {
	SequenceNumber int
	Type           EventType
	Payload        map[string]any
}

// FinishReason classifies why a Run call ended.
type FinishReason string

const (
	FinishGoalAchieved FinishReason = "goal_achieved"
	FinishMaxSteps     FinishReason = "max_steps"
	FinishModelError   FinishReason = "model_error"
	FinishSuspended    FinishReason = "suspended"
)
