package session

import (
	"context"
	"encoding/json"
	"fmt"
)

// selfCheckPrompt is appended as a user turn when no task list is available
// and goal completion must be judged by asking the model directly.
const selfCheckPrompt = `Based on the conversation so far, has the user's goal been fully achieved? ` +
	`Respond with ONLY a JSON object of the form {"goal_achieved": true|false, "reason": "..."}.`

// GoalChecker evaluates whether a session's goal has been achieved, called
// opportunistically when no-progress steps accumulate or after a batch of
// tool calls (spec §4.10's "Goal-completion evaluation").
type GoalChecker struct {
	model      Model
	taskReader TaskReader
}

// NewGoalChecker constructs a GoalChecker. taskReader may be nil if no
// todoread tool is registered for this session.
func NewGoalChecker(model Model, taskReader TaskReader) *GoalChecker {
	return &GoalChecker{model: model, taskReader: taskReader}
}

// Evaluate prefers task-list inspection over an LLM self-check, per spec.
func (g *GoalChecker) Evaluate(ctx context.Context, messages []Message) (GoalCheck, error) {
	if g.taskReader != nil {
		tasks, ok, err := g.taskReader.ReadTasks(ctx)
		if err != nil {
			return GoalCheck{}, fmt.Errorf("session: read tasks: %w", err)
		}
		if ok {
			return evaluateFromTasks(tasks), nil
		}
	}
	return g.evaluateFromSelfCheck(ctx, messages)
}

func evaluateFromTasks(tasks []Task) GoalCheck {
	pending := 0
	anyFailed := false
	for _, t := range tasks {
		switch t.Status {
		case TaskPending, TaskInProgress:
			pending++
		case TaskFailed:
			anyFailed = true
		}
	}
	if anyFailed {
		return GoalCheck{Achieved: false, Source: "tasks", ShouldStop: true}
	}
	if pending > 0 {
		return GoalCheck{Achieved: false, Source: "tasks", Pending: pending}
	}
	// Every task is in the terminal-success set (completed|cancelled).
	return GoalCheck{Achieved: true, Source: "tasks"}
}

func (g *GoalChecker) evaluateFromSelfCheck(ctx context.Context, messages []Message) (GoalCheck, error) {
	prompt := append(append([]Message{}, messages...), Message{Role: RoleUser, Content: selfCheckPrompt})
	resp, err := g.model.Generate(ctx, prompt, nil)
	if err != nil {
		return GoalCheck{}, fmt.Errorf("session: self-check generate: %w", err)
	}

	obj, ok := extractJSONObject(resp.Text)
	if !ok {
		return GoalCheck{Achieved: false, Source: "assistant_text"}, nil
	}

	achieved, _ := obj["goal_achieved"].(bool)
	reason, _ := obj["reason"].(string)
	if achieved {
		return GoalCheck{Achieved: true, Source: "llm_self_check", Reason: reason}, nil
	}
	return GoalCheck{Achieved: false, Source: "llm_self_check", Reason: reason}, nil
}

// extractJSONObject scans text for the first balanced top-level {...} span
// and attempts to unmarshal it as a JSON object. Brace-counting tolerates
// braces that appear inside quoted string values (e.g. a "reason" field
// that itself mentions "{foo}") by tracking whether the scanner is
// currently inside a string literal and respecting backslash escapes.
func extractJSONObject(text string) (map[string]any, bool) {
	start := -1
	depth := 0
	inString := false
	escaped := false

	for i, r := range text {
		if start == -1 {
			if r == '{' {
				start = i
				depth = 1
			}
			continue
		}

		if escaped {
			escaped = false
			continue
		}
		switch r {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					candidate := text[start : i+1]
					var obj map[string]any
					if err := json.Unmarshal([]byte(candidate), &obj); err == nil {
						return obj, true
					}
					// Malformed despite balancing — keep scanning for a
					// later, valid candidate rather than giving up.
					start = -1
				}
			}
		}
	}
	return nil, false
}
