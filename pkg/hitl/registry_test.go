package hitl

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndDeliverInvokesCallback(t *testing.T) {
	r := NewRegistry()
	var got Response
	r.RegisterWaiter("clar_1", "conv-1", TypeClarification, func(resp Response) { got = resp })

	ok := r.DeliverResponse("clar_1", Response{RequestID: "clar_1", HITLType: TypeClarification, ResponseData: map[string]any{"answer": "yes"}})
	assert.True(t, ok)
	assert.Equal(t, "yes", got.ResponseData["answer"])
	assert.False(t, r.HasWaiter("clar_1"))
}

func TestDeliverResponseReturnsFalseForUnknownRequest(t *testing.T) {
	r := NewRegistry()
	assert.False(t, r.DeliverResponse("missing", Response{}))
}

func TestWaitForResponseUnblocksOnDelivery(t *testing.T) {
	r := NewRegistry()
	r.RegisterWaiter("deci_1", "conv-1", TypeDecision, nil)

	go func() {
		time.Sleep(5 * time.Millisecond)
		r.DeliverResponse("deci_1", Response{RequestID: "deci_1", HITLType: TypeDecision, ResponseData: map[string]any{"decision": "a"}})
	}()

	resp, found := r.WaitForResponse(context.Background(), "deci_1", time.Second)
	require.True(t, found)
	assert.Equal(t, "a", resp.ResponseData["decision"])
}

func TestWaitForResponseTimesOutWithoutDelivery(t *testing.T) {
	r := NewRegistry()
	r.RegisterWaiter("deci_2", "conv-1", TypeDecision, nil)

	_, found := r.WaitForResponse(context.Background(), "deci_2", 5*time.Millisecond)
	assert.False(t, found)
}

func TestGetWaitersByConversation(t *testing.T) {
	r := NewRegistry()
	r.RegisterWaiter("clar_1", "conv-1", TypeClarification, nil)
	r.RegisterWaiter("deci_1", "conv-1", TypeDecision, nil)
	r.RegisterWaiter("clar_2", "conv-2", TypeClarification, nil)

	waiters := r.GetWaitersByConversation("conv-1")
	assert.Len(t, waiters, 2)
}

func TestUnregisterWaiterRemovesWithoutDelivery(t *testing.T) {
	r := NewRegistry()
	r.RegisterWaiter("clar_1", "conv-1", TypeClarification, nil)
	r.UnregisterWaiter("clar_1")
	assert.False(t, r.HasWaiter("clar_1"))
	assert.False(t, r.DeliverResponse("clar_1", Response{}))
}

func TestCleanupExpiredRemovesOldWaitersAndCountsTimeouts(t *testing.T) {
	r := NewRegistry()
	r.RegisterWaiter("clar_1", "conv-1", TypeClarification, nil)
	time.Sleep(5 * time.Millisecond)

	removed := r.CleanupExpired(time.Millisecond)
	assert.Equal(t, 1, removed)
	assert.False(t, r.HasWaiter("clar_1"))
	assert.Equal(t, int64(1), r.Stats().TotalTimeouts)
}

func TestStatsTracksRegisteredAndDelivered(t *testing.T) {
	r := NewRegistry()
	r.RegisterWaiter("clar_1", "conv-1", TypeClarification, nil)
	r.DeliverResponse("clar_1", Response{RequestID: "clar_1"})

	stats := r.Stats()
	assert.Equal(t, int64(1), stats.TotalRegistered)
	assert.Equal(t, int64(1), stats.TotalDelivered)
}
