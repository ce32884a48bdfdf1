package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/memstack/memstack/pkg/hitl"
)

// MemoryOps is the narrow subset of episode ingestion/search a Processor
// needs to serve the "Memory tools" branch of tool dispatch (spec §4.10
// step 3) — EpisodeIngester.AddEpisode / SearchEngine.Search, generalized
// behind an interface so Processor doesn't depend on pkg/episode directly.
type MemoryOps interface {
	AddEpisode(ctx context.Context, content, projectID string) (string, error)
	Search(ctx context.Context, query, projectID string, limit int) ([]map[string]any, error)
}

// hitlToolNames maps the four HITL tool names a model can call to their
// request type (spec §4.10 step 3's "HITL tool" branch).
var hitlToolNames = map[string]hitl.Type{
	"request_clarification": hitl.TypeClarification,
	"request_decision":       hitl.TypeDecision,
	"request_env_vars":       hitl.TypeEnvVar,
	"request_permission":     hitl.TypePermission,
}

const (
	toolAddEpisode   = "add_episode"
	toolSearchMemory = "search_memory"
)

// essentialTools are always available once a forced skill is active,
// regardless of the skill's own tool set: abort lets the model bail out,
// todowrite/todoread drive goal-completion tracking (spec §4.10/§8's
// "Forced-skill tool set" rule).
var essentialTools = map[string]bool{
	"abort":     true,
	"todowrite": true,
	"todoread":  true,
}

// Processor is the tool-calling state machine (SessionProcessor, spec
// §4.10). One Processor drives one turn: a bounded number of steps, each
// a single model call followed by dispatch of any tool calls it produced.
//
// Unlike the Python original's async-generator-of-events shape, Run
// returns its full event list (and, on suspension, a *hitl.PendingError)
// synchronously once the turn ends — Model.Generate here is a single
// non-streaming call rather than a token stream, so there is nothing
// useful to deliver incrementally ahead of that boundary. A streaming
// Model implementation can still emit partial EventTextDelta events from
// inside Generate by writing to a channel the caller owns; Processor
// itself only needs the final LLMResponse.
type Processor struct {
	model       Model
	tools       ToolExecutor
	hitlHandler *hitl.Handler
	mcpResolver MCPUIResolver
	taskReader  TaskReader
	memory      MemoryOps
	goalChecker *GoalChecker

	config          Config
	messages        []Message
	step            int
	seq             int
	noProgressSteps int
}

// New constructs a Processor for one turn. initialState is nil for a fresh
// session; non-nil when resuming after a HITL answer (spec §4.10's
// "Suspension & resume" — last_sequence_number + 1 continuity).
func New(model Model, tools ToolExecutor, hitlHandler *hitl.Handler, mcpResolver MCPUIResolver, taskReader TaskReader, memory MemoryOps, config Config, initialState *ProcessorState) *Processor {
	p := &Processor{
		model:       model,
		tools:       tools,
		hitlHandler: hitlHandler,
		mcpResolver: mcpResolver,
		taskReader:  taskReader,
		memory:      memory,
		config:      config,
	}
	p.goalChecker = NewGoalChecker(model, taskReader)
	if initialState != nil {
		p.messages = append([]Message{}, initialState.Messages...)
		p.step = initialState.StepCount
		p.seq = initialState.LastSequenceNumber
		if config.ForcedSkillName == "" {
			p.config.ForcedSkillName = initialState.ForcedSkillName
		}
		if config.AllowedTools == nil {
			p.config.AllowedTools = initialState.AllowedTools
		}
	}
	return p
}

// Run drives the step loop until suspension, goal achievement, a model
// error, or max_steps. pending is non-nil only on suspension; err is
// non-nil only when listing tools or evaluating the goal fails. Both are
// nil when the turn ends at max_steps, on goal achievement, on a task-list
// stop, or on a model error (reported as error and finish events).
func (p *Processor) Run(ctx context.Context) (events []Event, state ProcessorState, pending *hitl.PendingError, err error) {
	if len(p.messages) == 0 {
		return nil, p.snapshot(), nil, fmt.Errorf("session: Run called with no messages")
	}

	for p.step < p.config.MaxSteps {
		p.step++

		if p.config.ForcedSkillName != "" && p.step > 1 {
			p.messages = append(p.messages, Message{Role: RoleSystem, Content: p.skillReminder()})
		}

		toolDefs, err := p.inScopeTools(ctx)
		if err != nil {
			return events, p.snapshot(), nil, err
		}

		resp, genErr := p.model.Generate(ctx, p.messages, toolDefs)
		if genErr != nil {
			events = append(events, p.emit(EventErr, map[string]any{"error": genErr.Error()}))
			events = append(events, p.emit(EventFinish, map[string]any{"reason": FinishModelError}))
			return events, p.snapshot(), nil, nil
		}

		if resp.Text != "" {
			events = append(events, p.emit(EventTextDelta, map[string]any{"text": resp.Text}))
		}
		p.messages = append(p.messages, Message{Role: RoleAssistant, Content: resp.Text})

		progressed := false
		for _, call := range resp.ToolCalls {
			events = append(events, p.emit(EventAct, map[string]any{"tool": call.Name, "arguments": call.Arguments, "call_id": call.ID}))

			if reqType, isHITL := hitlToolNames[call.Name]; isHITL {
				value, hitlErr := p.dispatchHITL(ctx, reqType, call)
				if pe, ok := hitl.AsPendingError(hitlErr); ok {
					events = append(events, p.emit(EventHITLAsked, map[string]any{
						"request_id": pe.RequestID, "hitl_type": pe.HITLType, "call_id": call.ID,
					}))
					state := p.snapshot()
					state.PendingToolCallID = call.ID
					return events, state, pe, nil
				}
				if hitlErr != nil {
					p.appendToolError(call, hitlErr)
					continue
				}
				events = append(events, p.emit(EventHITLAnswered, map[string]any{"call_id": call.ID, "hitl_type": string(reqType)}))
				p.appendToolResult(call, toJSONString(value), false)
				progressed = true
				continue
			}

			result, toolErr := p.dispatchTool(ctx, call)
			if toolErr != nil {
				events = append(events, p.emit(EventObserve, map[string]any{"call_id": call.ID, "error": toolErr.Error()}))
				p.appendToolError(call, toolErr)
				continue
			}

			observePayload := map[string]any{"call_id": call.ID, "result": result.Content, "duration_ms": result.Duration.Milliseconds(), "is_error": result.IsError}
			if result.UIMetadata != nil {
				observePayload["ui_metadata"] = result.UIMetadata
				events = append(events, p.emit(EventMCPAppResult, map[string]any{"call_id": call.ID, "ui_metadata": result.UIMetadata}))
			}
			events = append(events, p.emit(EventObserve, observePayload))
			p.appendToolResult(call, result.Content, result.IsError)
			if !result.IsError {
				progressed = true
			}
		}

		noProgress := 0
		if !progressed {
			noProgress = p.consecutiveNoProgress() + 1
		}
		p.setConsecutiveNoProgress(noProgress)

		shouldCheck := len(resp.ToolCalls) > 0 || noProgress >= p.config.MaxNoProgressSteps
		if shouldCheck {
			check, checkErr := p.goalChecker.Evaluate(ctx, p.messages)
			if checkErr != nil {
				return events, p.snapshot(), nil, checkErr
			}
			if check.Achieved {
				events = append(events, p.emit(EventFinish, map[string]any{"reason": FinishGoalAchieved, "source": check.Source}))
				return events, p.snapshot(), nil, nil
			}
			if check.ShouldStop {
				events = append(events, p.emit(EventFinish, map[string]any{"reason": "bounded", "source": check.Source}))
				return events, p.snapshot(), nil, nil
			}
		}
	}

	events = append(events, p.emit(EventFinish, map[string]any{"reason": FinishMaxSteps}))
	return events, p.snapshot(), nil, nil
}

// consecutiveNoProgress/setConsecutiveNoProgress track no-progress steps via
// a field on Config's scoping-free state — kept on Processor itself since it
// resets per no-progress streak, not something that needs to survive a HITL
// suspension beyond what ProcessorState already carries via StepCount.
func (p *Processor) consecutiveNoProgress() int { return p.noProgressSteps }

func (p *Processor) setConsecutiveNoProgress(n int) { p.noProgressSteps = n }

func (p *Processor) dispatchHITL(ctx context.Context, t hitl.Type, call ToolCall) (any, error) {
	switch t {
	case hitl.TypeClarification:
		var data hitl.ClarificationRequestData
		if err := decodeArgs(call.Arguments, &data); err != nil {
			return nil, err
		}
		return p.hitlHandler.RequestClarification(ctx, data, 0)
	case hitl.TypeDecision:
		var data hitl.DecisionRequestData
		if err := decodeArgs(call.Arguments, &data); err != nil {
			return nil, err
		}
		return p.hitlHandler.RequestDecision(ctx, data, 0)
	case hitl.TypeEnvVar:
		var data hitl.EnvVarRequestData
		if err := decodeArgs(call.Arguments, &data); err != nil {
			return nil, err
		}
		return p.hitlHandler.RequestEnvVars(ctx, data, 0)
	case hitl.TypePermission:
		var data hitl.PermissionRequestData
		if err := decodeArgs(call.Arguments, &data); err != nil {
			return nil, err
		}
		return p.hitlHandler.RequestPermission(ctx, data, 0)
	default:
		return nil, fmt.Errorf("session: unknown hitl type %q", t)
	}
}

func (p *Processor) dispatchTool(ctx context.Context, call ToolCall) (ToolResult, error) {
	switch call.Name {
	case toolAddEpisode:
		if p.memory == nil {
			return ToolResult{}, fmt.Errorf("session: add_episode called but no memory ops configured")
		}
		content, _ := call.Arguments["content"].(string)
		projectID, _ := call.Arguments["project_id"].(string)
		uuid, err := p.memory.AddEpisode(ctx, content, projectID)
		if err != nil {
			return ToolResult{}, err
		}
		return ToolResult{Content: fmt.Sprintf(`{"episode_uuid":%q}`, uuid)}, nil
	case toolSearchMemory:
		if p.memory == nil {
			return ToolResult{}, fmt.Errorf("session: search_memory called but no memory ops configured")
		}
		query, _ := call.Arguments["query"].(string)
		projectID, _ := call.Arguments["project_id"].(string)
		limit := 10
		if l, ok := call.Arguments["limit"].(float64); ok && l > 0 {
			limit = int(l)
		}
		results, err := p.memory.Search(ctx, query, projectID, limit)
		if err != nil {
			return ToolResult{}, err
		}
		return ToolResult{Content: toJSONString(results)}, nil
	default:
		result, err := p.tools.Execute(ctx, call)
		if err != nil {
			return ToolResult{}, err
		}
		if result.UIMetadata == nil && p.mcpResolver != nil {
			if appID, ok := call.Arguments["app_id"].(string); ok && appID != "" {
				if uri, found, resolveErr := p.mcpResolver.ResolveResourceURI(ctx, appID); resolveErr == nil && found {
					result.UIMetadata = map[string]any{"resource_uri": uri}
				}
			}
		}
		return result, nil
	}
}

// inScopeTools computes the available-tool set for the current step. With
// no forced skill (or no skill-specific tool restriction), every tool the
// executor reports is in scope. Otherwise the in-scope set is
// matched_skill.tools ∪ {abort, todowrite, todoread}, intersected against
// what ListTools actually reports this turn; if the skill's own tools (T)
// don't intersect what's available at all, the set falls back to just the
// essentials rather than reopening the full tool list (spec §4.10/§8).
func (p *Processor) inScopeTools(ctx context.Context) ([]ToolDefinition, error) {
	tools, err := p.tools.ListTools(ctx)
	if err != nil {
		return nil, fmt.Errorf("session: list tools: %w", err)
	}
	if p.config.ForcedSkillName == "" || len(p.config.AllowedTools) == 0 {
		return tools, nil
	}

	filtered := make([]ToolDefinition, 0, len(tools))
	skillToolAvailable := false
	for _, t := range tools {
		if p.config.AllowedTools[t.Name] {
			skillToolAvailable = true
		}
		if p.config.AllowedTools[t.Name] || essentialTools[t.Name] {
			filtered = append(filtered, t)
		}
	}

	if !skillToolAvailable {
		filtered = filtered[:0]
		for _, t := range tools {
			if essentialTools[t.Name] {
				filtered = append(filtered, t)
			}
		}
	}
	return filtered, nil
}

func (p *Processor) skillReminder() string {
	if len(p.config.AllowedTools) == 0 {
		return fmt.Sprintf(SkillReminderTemplate, p.config.ForcedSkillName, "")
	}
	names := make([]string, 0, len(p.config.AllowedTools))
	for name := range p.config.AllowedTools {
		names = append(names, name)
	}
	sort.Strings(names)
	clause := fmt.Sprintf(" Use ONLY these tools: %v.", names)
	return fmt.Sprintf(SkillReminderTemplate, p.config.ForcedSkillName, clause)
}

func (p *Processor) appendToolResult(call ToolCall, content string, isError bool) {
	p.messages = append(p.messages, Message{Role: RoleUser, Content: content})
	_ = isError // role kept uniform with the teacher's user-role observation convention
}

func (p *Processor) appendToolError(call ToolCall, err error) {
	p.appendToolResult(call, fmt.Sprintf("Error: %s", err.Error()), true)
}

func (p *Processor) emit(t EventType, payload map[string]any) Event {
	p.seq++
	return Event{SequenceNumber: p.seq, Type: t, Payload: payload}
}

func (p *Processor) snapshot() ProcessorState {
	return ProcessorState{
		Messages:           append([]Message{}, p.messages...),
		LastSequenceNumber: p.seq,
		StepCount:          p.step,
		ForcedSkillName:    p.config.ForcedSkillName,
		AllowedTools:       p.config.AllowedTools,
	}
}

func decodeArgs(args map[string]any, out any) error {
	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("session: marshal tool arguments: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("session: decode tool arguments: %w", err)
	}
	return nil
}

func toJSONString(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(raw)
}
