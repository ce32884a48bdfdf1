// Package events provides real-time event delivery via WebSocket and
// PostgreSQL NOTIFY/LISTEN for cross-pod distribution. The only events
// MemStack publishes through this bus are HITL lifecycle transitions
// (asked/answered/cancelled) — see pkg/hitl, which is the sole caller
// of EventPublisher's typed methods.
package events

// HITL event types (stored in DB + NOTIFY). Clarification, decision and
// env-var each have an asked/answered pair; permission has only an asked
// event. One cancellation event is shared across all four types.
const (
	EventTypeClarificationAsked    = "clarification_asked"
	EventTypeClarificationAnswered = "clarification_answered"
	EventTypeDecisionAsked         = "decision_asked"
	EventTypeDecisionAnswered      = "decision_answered"
	EventTypeEnvVarRequested       = "env_var_requested"
	EventTypeEnvVarProvided        = "env_var_provided"
	EventTypePermissionAsked       = "permission_asked"
	EventTypeHITLCancelled         = "hitl_request_cancelled"
)

// GlobalSessionsChannel is the channel for session-level status events.
// The session list page subscribes to this for real-time updates.
const GlobalSessionsChannel = "sessions"

// SessionChannel returns the channel name for a specific session's events.
// Format: "session:{session_id}"
func SessionChannel(sessionID string) string {
	return "session:" + sessionID
}

// ClientMessage is the JSON structure for client → server WebSocket messages.
type ClientMessage struct {
	Action      string `json:"action"`                  // "subscribe", "unsubscribe", "catchup", "ping"
	Channel     string `json:"channel,omitempty"`       // Channel name (e.g., "session:abc-123")
	LastEventID *int   `json:"last_event_id,omitempty"` // For catchup
}
