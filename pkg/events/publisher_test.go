package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTruncateIfNeeded(t *testing.T) {
	t.Run("passes through normal payload", func(t *testing.T) {
		payload, _ := json.Marshal(HITLRequestedPayload{
			Type:           EventTypeClarificationAsked,
			RequestID:      "req-123",
			ConversationID: "conv-abc",
		})

		result, err := truncateIfNeeded(string(payload))
		require.NoError(t, err)
		assert.Contains(t, result, EventTypeClarificationAsked)
		assert.Contains(t, result, "conv-abc")
	})

	t.Run("truncates oversized payload", func(t *testing.T) {
		longData := make(map[string]any, 1)
		blob := make([]byte, 8000)
		for i := range blob {
			blob[i] = 'a'
		}
		longData["blob"] = string(blob)

		payload, _ := json.Marshal(HITLRequestedPayload{
			Type:           EventTypeClarificationAsked,
			RequestID:      "req-123",
			ConversationID: "conv-abc",
			RequestData:    longData,
		})

		result, err := truncateIfNeeded(string(payload))
		require.NoError(t, err)
		assert.Contains(t, result, "truncated")
		assert.Less(t, len(result), 8000)
	})

	t.Run("does not truncate small payload", func(t *testing.T) {
		payload, _ := json.Marshal(HITLAnsweredPayload{
			Type:           EventTypeClarificationAnswered,
			RequestID:      "req-1",
			ConversationID: "conv-1",
		})

		result, err := truncateIfNeeded(string(payload))
		require.NoError(t, err)
		assert.NotContains(t, result, "truncated")
	})

	t.Run("empty JSON object", func(t *testing.T) {
		result, err := truncateIfNeeded("{}")
		require.NoError(t, err)
		assert.Equal(t, "{}", result)
	})
}

func TestInjectDBEventIDAndTruncate(t *testing.T) {
	t.Run("injects db_event_id into normal payload", func(t *testing.T) {
		payload, _ := json.Marshal(HITLRequestedPayload{
			Type:           EventTypeClarificationAsked,
			RequestID:      "req-1",
			ConversationID: "conv-1",
		})

		result, err := injectDBEventIDAndTruncate(payload, 42)
		require.NoError(t, err)
		assert.Contains(t, result, `"db_event_id":42`)
		assert.Contains(t, result, "req-1")
	})

	t.Run("truncated payload preserves db_event_id", func(t *testing.T) {
		blob := make([]byte, 8000)
		for i := range blob {
			blob[i] = 'x'
		}
		payload, _ := json.Marshal(HITLRequestedPayload{
			Type:           EventTypeClarificationAsked,
			RequestID:      "req-456",
			ConversationID: "conv-789",
			RequestData:    map[string]any{"blob": string(blob)},
		})

		result, err := injectDBEventIDAndTruncate(payload, 42)
		require.NoError(t, err)
		assert.Contains(t, result, `"truncated":true`)
		assert.Contains(t, result, `"db_event_id":42`)
	})
}

func TestNewEventPublisher(t *testing.T) {
	publisher := NewEventPublisher(nil)
	assert.NotNil(t, publisher)
	assert.Nil(t, publisher.db)
}

func TestHITLRequestedPayload_JSON(t *testing.T) {
	payload := HITLRequestedPayload{
		Type:           EventTypeClarificationAsked,
		RequestID:      "req-123",
		ConversationID: "conv-abc",
		HITLType:       "clarification",
		RequestData:    map[string]any{"question": "which environment?"},
		TimeoutSeconds: 300,
		Timestamp:      "2026-02-10T12:00:00Z",
	}

	data, err := json.Marshal(payload)
	require.NoError(t, err)

	var decoded HITLRequestedPayload
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, EventTypeClarificationAsked, decoded.Type)
	assert.Equal(t, "req-123", decoded.RequestID)
	assert.Equal(t, "conv-abc", decoded.ConversationID)
	assert.Equal(t, 300, decoded.TimeoutSeconds)
}

func TestHITLAnsweredPayload_JSON(t *testing.T) {
	payload := HITLAnsweredPayload{
		Type:           EventTypeClarificationAnswered,
		RequestID:      "req-123",
		ConversationID: "conv-abc",
		HITLType:       "clarification",
		ResponseData:   map[string]any{"answer": "staging"},
		Timestamp:      "2026-02-10T12:00:01Z",
	}

	data, err := json.Marshal(payload)
	require.NoError(t, err)

	var decoded HITLAnsweredPayload
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, EventTypeClarificationAnswered, decoded.Type)
	assert.Equal(t, "staging", decoded.ResponseData["answer"])
}

func TestHITLCancelledPayload_JSON(t *testing.T) {
	reason := "timed out"
	payload := HITLCancelledPayload{
		Type:           EventTypeHITLCancelled,
		RequestID:      "req-9",
		ConversationID: "conv-9",
		HITLType:       "decision",
		Reason:         &reason,
		Timestamp:      "2026-02-10T12:00:02Z",
	}

	data, err := json.Marshal(payload)
	require.NoError(t, err)
	assert.Contains(t, string(data), "timed out")
}
