package hitl

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Strategy supplies the per-type behaviour HITLHandler needs: how to turn a
// typed request payload into a persisted Request, how to pull the tool's
// return value out of a raw response, and what to return when the request
// was cancelled or timed out instead of answered.
//
// The four concrete strategies below were designed from the calling-code
// contract in ray_hitl_handler.py (strategy.create_request /
// get_default_response / extract_response_value) and the dataclass shapes
// exercised by test_hitl_types.py — the upstream temporal_hitl_handler.py
// module that defines these classes was retrieved only as a 46-line import
// header, not its class bodies, so there was nothing to port line-for-line.
type Strategy interface {
	Type() Type
	// CreateRequest builds a Request ready for persistence from typed
	// request data (one of *RequestData above).
	CreateRequest(data any, conversationID, tenantID, projectID string, messageID *string, timeoutSeconds int) (Request, error)
	// ExtractResponseValue maps a human's raw response_data into the
	// shape the originating tool call expects as its return value.
	ExtractResponseValue(responseData map[string]any) (any, error)
	// DefaultResponse is returned when the request was cancelled or timed
	// out rather than answered.
	DefaultResponse(req Request) any
}

func newRequest(t Type, conversationID, tenantID, projectID string, messageID *string, timeoutSeconds int, data any) Request {
	now := time.Now()
	return Request{
		ID:             t.RequestIDPrefix() + uuid.New().String()[:8],
		HITLType:       t,
		ConversationID: conversationID,
		TenantID:       tenantID,
		ProjectID:      projectID,
		MessageID:      messageID,
		TimeoutSeconds: timeoutSeconds,
		CreatedAt:      now,
		ExpiresAt:      now.Add(time.Duration(timeoutSeconds) * time.Second),
		Status:         StatusPending,
		RequestData:    data,
	}
}

// ClarificationStrategy implements Strategy for clarification requests.
type ClarificationStrategy struct{}

func (ClarificationStrategy) Type() Type { return TypeClarification }

func (ClarificationStrategy) CreateRequest(data any, conversationID, tenantID, projectID string, messageID *string, timeoutSeconds int) (Request, error) {
	rd, ok := data.(ClarificationRequestData)
	if !ok {
		return Request{}, fmt.Errorf("hitl: expected ClarificationRequestData, got %T", data)
	}
	return newRequest(TypeClarification, conversationID, tenantID, projectID, messageID, timeoutSeconds, rd), nil
}

func (ClarificationStrategy) ExtractResponseValue(responseData map[string]any) (any, error) {
	answer, ok := responseData["answer"]
	if !ok {
		return nil, fmt.Errorf("hitl: clarification response missing 'answer'")
	}
	return map[string]any{"answer": answer}, nil
}

func (ClarificationStrategy) DefaultResponse(req Request) any {
	rd, _ := req.RequestData.(ClarificationRequestData)
	if rd.DefaultValue != nil {
		return map[string]any{"answer": *rd.DefaultValue}
	}
	return map[string]any{"answer": nil}
}

// DecisionStrategy implements Strategy for decision requests.
type DecisionStrategy struct{}

func (DecisionStrategy) Type() Type { return TypeDecision }

func (DecisionStrategy) CreateRequest(data any, conversationID, tenantID, projectID string, messageID *string, timeoutSeconds int) (Request, error) {
	rd, ok := data.(DecisionRequestData)
	if !ok {
		return Request{}, fmt.Errorf("hitl: expected DecisionRequestData, got %T", data)
	}
	return newRequest(TypeDecision, conversationID, tenantID, projectID, messageID, timeoutSeconds, rd), nil
}

func (DecisionStrategy) ExtractResponseValue(responseData map[string]any) (any, error) {
	decision, ok := responseData["decision"]
	if !ok {
		return nil, fmt.Errorf("hitl: decision response missing 'decision'")
	}
	return map[string]any{"decision": decision}, nil
}

func (DecisionStrategy) DefaultResponse(req Request) any {
	rd, _ := req.RequestData.(DecisionRequestData)
	if rd.DefaultOption != nil {
		return map[string]any{"decision": *rd.DefaultOption}
	}
	return map[string]any{"decision": nil}
}

// EnvVarStrategy implements Strategy for environment-variable collection
// requests.
type EnvVarStrategy struct{}

func (EnvVarStrategy) Type() Type { return TypeEnvVar }

func (EnvVarStrategy) CreateRequest(data any, conversationID, tenantID, projectID string, messageID *string, timeoutSeconds int) (Request, error) {
	rd, ok := data.(EnvVarRequestData)
	if !ok {
		return Request{}, fmt.Errorf("hitl: expected EnvVarRequestData, got %T", data)
	}
	return newRequest(TypeEnvVar, conversationID, tenantID, projectID, messageID, timeoutSeconds, rd), nil
}

func (EnvVarStrategy) ExtractResponseValue(responseData map[string]any) (any, error) {
	values, ok := responseData["values"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("hitl: env_var response missing 'values'")
	}
	return map[string]any{"values": values}, nil
}

func (EnvVarStrategy) DefaultResponse(req Request) any {
	rd, _ := req.RequestData.(EnvVarRequestData)
	values := make(map[string]any, len(rd.Fields))
	for _, f := range rd.Fields {
		if f.DefaultValue != nil {
			values[f.Name] = *f.DefaultValue
		} else {
			values[f.Name] = nil
		}
	}
	return map[string]any{"values": values}
}

// PermissionStrategy implements Strategy for permission requests.
type PermissionStrategy struct{}

func (PermissionStrategy) Type() Type { return TypePermission }

func (PermissionStrategy) CreateRequest(data any, conversationID, tenantID, projectID string, messageID *string, timeoutSeconds int) (Request, error) {
	rd, ok := data.(PermissionRequestData)
	if !ok {
		return Request{}, fmt.Errorf("hitl: expected PermissionRequestData, got %T", data)
	}
	return newRequest(TypePermission, conversationID, tenantID, projectID, messageID, timeoutSeconds, rd), nil
}

func (PermissionStrategy) ExtractResponseValue(responseData map[string]any) (any, error) {
	action, ok := responseData["action"]
	if !ok {
		return nil, fmt.Errorf("hitl: permission response missing 'action'")
	}
	remember, _ := responseData["remember"].(bool)
	return map[string]any{"action": action, "remember": remember}, nil
}

func (PermissionStrategy) DefaultResponse(req Request) any {
	// A permission request that times out or is cancelled defaults to deny
	// — the risky action never runs without an affirmative answer.
	return map[string]any{"action": string(PermissionDeny), "remember": false}
}

// strategyFor returns the built-in Strategy for t, or nil if t is unknown.
func strategyFor(t Type) Strategy {
	switch t {
	case TypeClarification:
		return ClarificationStrategy{}
	case TypeDecision:
		return DecisionStrategy{}
	case TypeEnvVar:
		return EnvVarStrategy{}
	case TypePermission:
		return PermissionStrategy{}
	default:
		return nil
	}
}
