package hitl

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestClarificationReturnsPendingErrorWhenNoPreinjection(t *testing.T) {
	h := NewHandler(nil, nil, NewRegistry(), "conv-1", "tenant-1", "proj-1", nil, 60*time.Second, nil)

	value, err := h.RequestClarification(context.Background(), ClarificationRequestData{
		Question:          "Which branch?",
		ClarificationType: ClarificationScope,
	}, 0)

	assert.Nil(t, value)
	var pending *PendingError
	require.ErrorAs(t, err, &pending)
	assert.Equal(t, TypeClarification, pending.HITLType)
	assert.Equal(t, "conv-1", pending.ConversationID)
	assert.True(t, h.registry.HasWaiter(pending.RequestID))
}

func TestPeekPreinjectedResponseDoesNotConsume(t *testing.T) {
	preinjected := &Response{HITLType: TypeDecision, ResponseData: map[string]any{"decision": "rollback"}}
	h := NewHandler(nil, nil, NewRegistry(), "conv-1", "tenant-1", "proj-1", nil, 60*time.Second, preinjected)

	_, ok := h.PeekPreinjectedResponse(TypeDecision)
	assert.True(t, ok)
	_, ok = h.PeekPreinjectedResponse(TypeDecision)
	assert.True(t, ok, "peeking twice must not consume")
}

func TestRequestDecisionShortCircuitsOnMatchingPreinjection(t *testing.T) {
	preinjected := &Response{HITLType: TypeDecision, ResponseData: map[string]any{"decision": "rollback"}}
	h := NewHandler(nil, nil, NewRegistry(), "conv-1", "tenant-1", "proj-1", nil, 60*time.Second, preinjected)

	value, err := h.RequestDecision(context.Background(), DecisionRequestData{Question: "Rollback or forward-fix?"}, 0)
	require.NoError(t, err)
	assert.Equal(t, "rollback", value.(map[string]any)["decision"])

	_, ok := h.PeekPreinjectedResponse(TypeDecision)
	assert.False(t, ok, "a consumed preinjection must not be observed again")
}

func TestRequestPermissionUsesDefaultResponseWhenPreinjectionTimedOut(t *testing.T) {
	preinjected := &Response{HITLType: TypePermission, TimedOut: true}
	h := NewHandler(nil, nil, NewRegistry(), "conv-1", "tenant-1", "proj-1", nil, 60*time.Second, preinjected)

	value, err := h.RequestPermission(context.Background(), PermissionRequestData{ToolName: "shell", RiskLevel: RiskCritical}, 0)
	require.NoError(t, err)
	assert.Equal(t, string(PermissionDeny), value.(map[string]any)["action"])
}

func TestRequestClarificationIgnoresPreinjectionOfDifferentType(t *testing.T) {
	preinjected := &Response{HITLType: TypeDecision, ResponseData: map[string]any{"decision": "x"}}
	h := NewHandler(nil, nil, NewRegistry(), "conv-1", "tenant-1", "proj-1", nil, 60*time.Second, preinjected)

	_, err := h.RequestClarification(context.Background(), ClarificationRequestData{Question: "q"}, 0)
	var pending *PendingError
	require.ErrorAs(t, err, &pending)
}

func TestDeliverResponseWakesRegisteredWaiterWithoutEntClient(t *testing.T) {
	h := NewHandler(nil, nil, NewRegistry(), "conv-1", "tenant-1", "proj-1", nil, 60*time.Second, nil)

	_, err := h.RequestEnvVars(context.Background(), EnvVarRequestData{ToolName: "github", Fields: []EnvVarField{{Name: "TOKEN"}}}, 0)
	var pending *PendingError
	require.ErrorAs(t, err, &pending)

	require.NoError(t, h.DeliverResponse(context.Background(), pending.RequestID, map[string]any{"values": map[string]any{"TOKEN": "abc"}}, false, false))
	assert.False(t, h.registry.HasWaiter(pending.RequestID))
}

func TestCancelRequestRemovesWaiterWithoutEntClient(t *testing.T) {
	h := NewHandler(nil, nil, NewRegistry(), "conv-1", "tenant-1", "proj-1", nil, 60*time.Second, nil)

	_, err := h.RequestDecision(context.Background(), DecisionRequestData{Question: "q"}, 0)
	var pending *PendingError
	require.ErrorAs(t, err, &pending)

	require.NoError(t, h.CancelRequest(context.Background(), pending.RequestID, nil))
	assert.False(t, h.registry.HasWaiter(pending.RequestID))
}

func TestGetPendingRequestsReturnsNilWithoutEntClient(t *testing.T) {
	h := NewHandler(nil, nil, NewRegistry(), "conv-1", "tenant-1", "proj-1", nil, 60*time.Second, nil)
	reqs, err := h.GetPendingRequests(context.Background())
	require.NoError(t, err)
	assert.Nil(t, reqs)
}
