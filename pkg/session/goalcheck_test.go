package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateFromTasksAllTerminalSuccess(t *testing.T) {
	check := evaluateFromTasks([]Task{
		{ID: "1", Status: TaskCompleted},
		{ID: "2", Status: TaskCancelled},
	})
	assert.True(t, check.Achieved)
	assert.Equal(t, "tasks", check.Source)
}

func TestEvaluateFromTasksPendingBlocks(t *testing.T) {
	check := evaluateFromTasks([]Task{
		{ID: "1", Status: TaskCompleted},
		{ID: "2", Status: TaskPending},
	})
	assert.False(t, check.Achieved)
	assert.Equal(t, 1, check.Pending)
	assert.False(t, check.ShouldStop)
}

func TestEvaluateFromTasksFailedStops(t *testing.T) {
	check := evaluateFromTasks([]Task{
		{ID: "1", Status: TaskFailed},
		{ID: "2", Status: TaskInProgress},
	})
	assert.False(t, check.Achieved)
	assert.True(t, check.ShouldStop)
}

func TestEvaluateFromTasksEmptyListAchieved(t *testing.T) {
	check := evaluateFromTasks(nil)
	assert.True(t, check.Achieved)
}

func TestExtractJSONObjectSimple(t *testing.T) {
	obj, ok := extractJSONObject(`{"goal_achieved": true, "reason": "done"}`)
	require.True(t, ok)
	assert.Equal(t, true, obj["goal_achieved"])
	assert.Equal(t, "done", obj["reason"])
}

func TestExtractJSONObjectWithSurroundingText(t *testing.T) {
	obj, ok := extractJSONObject("Sure, here's my answer:\n{\"goal_achieved\": false, \"reason\": \"still working\"}\nLet me know.")
	require.True(t, ok)
	assert.Equal(t, false, obj["goal_achieved"])
}

func TestExtractJSONObjectTolerantOfBracesInStrings(t *testing.T) {
	obj, ok := extractJSONObject(`{"goal_achieved": true, "reason": "mentions {foo} and {bar} inline"}`)
	require.True(t, ok)
	assert.Equal(t, "mentions {foo} and {bar} inline", obj["reason"])
}

func TestExtractJSONObjectSkipsMalformedCandidate(t *testing.T) {
	obj, ok := extractJSONObject(`{not valid json} then {"goal_achieved": true, "reason": "ok"}`)
	require.True(t, ok)
	assert.Equal(t, true, obj["goal_achieved"])
}

func TestExtractJSONObjectNoObjectFound(t *testing.T) {
	_, ok := extractJSONObject("no json here at all")
	assert.False(t, ok)
}

type fakeTaskReader struct {
	tasks []Task
	ok    bool
	err   error
}

func (f *fakeTaskReader) ReadTasks(ctx context.Context) ([]Task, bool, error) {
	return f.tasks, f.ok, f.err
}

type fakeModel struct {
	resp LLMResponse
	err  error
}

func (f *fakeModel) Generate(ctx context.Context, messages []Message, tools []ToolDefinition) (LLMResponse, error) {
	return f.resp, f.err
}

func TestGoalCheckerPrefersTasksOverSelfCheck(t *testing.T) {
	reader := &fakeTaskReader{tasks: []Task{{ID: "1", Status: TaskCompleted}}, ok: true}
	model := &fakeModel{resp: LLMResponse{Text: `{"goal_achieved": false, "reason": "nope"}`}}
	checker := NewGoalChecker(model, reader)

	check, err := checker.Evaluate(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	require.NoError(t, err)
	assert.True(t, check.Achieved)
	assert.Equal(t, "tasks", check.Source)
}

func TestGoalCheckerFallsBackToSelfCheckWhenNoTasks(t *testing.T) {
	reader := &fakeTaskReader{ok: false}
	model := &fakeModel{resp: LLMResponse{Text: `{"goal_achieved": true, "reason": "all done"}`}}
	checker := NewGoalChecker(model, reader)

	check, err := checker.Evaluate(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	require.NoError(t, err)
	assert.True(t, check.Achieved)
	assert.Equal(t, "llm_self_check", check.Source)
}

func TestGoalCheckerSelfCheckWithoutTaskReader(t *testing.T) {
	model := &fakeModel{resp: LLMResponse{Text: "I think we're still working on it."}}
	checker := NewGoalChecker(model, nil)

	check, err := checker.Evaluate(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	require.NoError(t, err)
	assert.False(t, check.Achieved)
	assert.Equal(t, "assistant_text", check.Source)
}
