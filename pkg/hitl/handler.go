package hitl

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/memstack/memstack/ent"
	"github.com/memstack/memstack/ent/hitlrequest"
	"github.com/memstack/memstack/pkg/events"
)

// Handler is the per-session suspension primitive (ray_hitl_handler.py's
// RayHITLHandler): it builds typed HITL requests, persists them, publishes
// a user-facing event, and returns a *PendingError for the driver to
// propagate — or, if a pre-injected response is present from resuming a
// prior suspension, short-circuits straight to the answer (spec §4.9).
type Handler struct {
	client    *ent.Client
	publisher *events.EventPublisher
	registry  *Registry

	conversationID string
	tenantID       string
	projectID      string
	messageID      *string
	defaultTimeout time.Duration

	mu          sync.Mutex
	preinjected *Response
	inFlight    map[string]Type
}

// NewHandler constructs a Handler for one session. preinjected is non-nil
// only when resuming a session after a HITL answer arrived — see
// ProcessorState in pkg/session for how it is threaded through.
func NewHandler(client *ent.Client, publisher *events.EventPublisher, registry *Registry, conversationID, tenantID, projectID string, messageID *string, defaultTimeout time.Duration, preinjected *Response) *Handler {
	return &Handler{
		client:         client,
		publisher:      publisher,
		registry:       registry,
		conversationID: conversationID,
		tenantID:       tenantID,
		projectID:      projectID,
		messageID:      messageID,
		defaultTimeout: defaultTimeout,
		preinjected:    preinjected,
		inFlight:       make(map[string]Type),
	}
}

// PeekPreinjectedResponse returns the cached pre-injected response iff its
// HITLType matches t. Peeking never consumes — re-creating a Handler
// mid-turn (§4.10's fresh-SessionProcessor-per-resume contract) must still
// observe the same pre-injection on its first matching call.
func (h *Handler) PeekPreinjectedResponse(t Type) (Response, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.preinjected == nil || h.preinjected.HITLType != t {
		return Response{}, false
	}
	return *h.preinjected, true
}

// consumePreinjectedResponse clears the cached pre-injection iff it matches
// t, returning the value that was consumed.
func (h *Handler) consumePreinjectedResponse(t Type) (Response, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.preinjected == nil || h.preinjected.HITLType != t {
		return Response{}, false
	}
	resp := *h.preinjected
	h.preinjected = nil
	return resp, true
}

// RequestClarification asks the human to disambiguate scope/approach/a
// prerequisite. Returns the extracted answer if a matching pre-injection
// was present, otherwise a *PendingError.
func (h *Handler) RequestClarification(ctx context.Context, data ClarificationRequestData, timeout time.Duration) (any, error) {
	return h.executeHITLRequest(ctx, TypeClarification, data, timeout)
}

// RequestDecision asks the human to pick a branch/method/confirm/assess risk.
func (h *Handler) RequestDecision(ctx context.Context, data DecisionRequestData, timeout time.Duration) (any, error) {
	return h.executeHITLRequest(ctx, TypeDecision, data, timeout)
}

// RequestEnvVars asks the human to supply one or more tool env vars.
func (h *Handler) RequestEnvVars(ctx context.Context, data EnvVarRequestData, timeout time.Duration) (any, error) {
	return h.executeHITLRequest(ctx, TypeEnvVar, data, timeout)
}

// RequestPermission asks the human to allow/deny a risky tool action.
func (h *Handler) RequestPermission(ctx context.Context, data PermissionRequestData, timeout time.Duration) (any, error) {
	return h.executeHITLRequest(ctx, TypePermission, data, timeout)
}

// executeHITLRequest is the core persist-then-publish-then-suspend flow
// (ray_hitl_handler.py's _execute_hitl_request).
func (h *Handler) executeHITLRequest(ctx context.Context, t Type, data any, timeout time.Duration) (any, error) {
	strategy := strategyFor(t)
	if strategy == nil {
		return nil, fmt.Errorf("hitl: no strategy registered for type %q", t)
	}
	if timeout <= 0 {
		timeout = h.defaultTimeout
	}

	if preinjected, ok := h.consumePreinjectedResponse(t); ok {
		req, err := strategy.CreateRequest(data, h.conversationID, h.tenantID, h.projectID, h.messageID, int(timeout.Seconds()))
		if err != nil {
			return nil, err
		}
		if preinjected.Cancelled || preinjected.TimedOut {
			return strategy.DefaultResponse(req), nil
		}
		return strategy.ExtractResponseValue(preinjected.ResponseData)
	}

	req, err := strategy.CreateRequest(data, h.conversationID, h.tenantID, h.projectID, h.messageID, int(timeout.Seconds()))
	if err != nil {
		return nil, err
	}

	if h.client != nil {
		if err := h.persistRequest(ctx, req); err != nil {
			return nil, fmt.Errorf("hitl: persist request: %w", err)
		}
	}

	h.registry.RegisterWaiter(req.ID, h.conversationID, t, nil)
	h.mu.Lock()
	h.inFlight[req.ID] = t
	h.mu.Unlock()

	if h.publisher != nil {
		if err := h.publishRequested(ctx, req); err != nil {
			// Best-effort: a lost SSE event does not invalidate the
			// suspension, it just means the client has to poll.
			_ = err
		}
	}

	return nil, &PendingError{
		RequestID:      req.ID,
		HITLType:       t,
		RequestData:    data,
		ConversationID: h.conversationID,
		MessageID:      h.messageID,
		TimeoutSeconds: int(timeout.Seconds()),
	}
}

// DeliverResponse persists a human's answer, updates the request's status,
// and wakes anyone registered in the in-process Registry for requestID.
func (h *Handler) DeliverResponse(ctx context.Context, requestID string, responseData map[string]any, cancelled, timedOut bool) error {
	h.mu.Lock()
	t, known := h.inFlight[requestID]
	delete(h.inFlight, requestID)
	h.mu.Unlock()
	if !known {
		t = Type("")
	}

	status := hitlrequest.StatusAnswered
	switch {
	case cancelled:
		status = hitlrequest.StatusCancelled
	case timedOut:
		status = hitlrequest.StatusTimeout
	}

	if h.client != nil {
		if err := h.client.HITLRequest.UpdateOneID(requestID).SetStatus(status).Exec(ctx); err != nil {
			return fmt.Errorf("hitl: update request status: %w", err)
		}
		if !cancelled && !timedOut {
			if _, err := h.client.HITLResponse.Create().
				SetID(requestID + "_resp").
				SetRequestID(requestID).
				SetHitlType(hitlrequest.HitlType(string(t))).
				SetResponseData(responseData).
				Save(ctx); err != nil {
				return fmt.Errorf("hitl: persist response: %w", err)
			}
		}
	}

	resp := Response{RequestID: requestID, HITLType: t, ResponseData: responseData, Cancelled: cancelled, TimedOut: timedOut}
	h.registry.DeliverResponse(requestID, resp)

	if h.publisher != nil && !cancelled {
		_ = h.publishAnswered(ctx, resp)
	}
	return nil
}

// GetPendingRequests returns every request still awaiting an answer for
// this handler's conversation.
func (h *Handler) GetPendingRequests(ctx context.Context) ([]Request, error) {
	if h.client == nil {
		return nil, nil
	}
	rows, err := h.client.HITLRequest.Query().
		Where(hitlrequest.ConversationIDEQ(h.conversationID), hitlrequest.StatusEQ(hitlrequest.StatusPending)).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("hitl: query pending requests: %w", err)
	}

	out := make([]Request, 0, len(rows))
	for _, row := range rows {
		out = append(out, Request{
			ID:             row.ID,
			HITLType:       Type(row.HitlType),
			ConversationID: row.ConversationID,
			TenantID:       row.TenantID,
			ProjectID:      row.ProjectID,
			MessageID:      row.MessageID,
			TimeoutSeconds: row.TimeoutSeconds,
			CreatedAt:      row.CreatedAt,
			ExpiresAt:      row.ExpiresAt,
			Status:         Status(row.Status),
			RequestData:    row.Payload,
		})
	}
	return out, nil
}

// CancelRequest removes requestID's waiter and marks it cancelled, emitting
// a cancellation event.
func (h *Handler) CancelRequest(ctx context.Context, requestID string, reason *string) error {
	h.mu.Lock()
	t := h.inFlight[requestID]
	delete(h.inFlight, requestID)
	h.mu.Unlock()

	h.registry.UnregisterWaiter(requestID)

	if h.client != nil {
		if err := h.client.HITLRequest.UpdateOneID(requestID).SetStatus(hitlrequest.StatusCancelled).Exec(ctx); err != nil {
			return fmt.Errorf("hitl: cancel request: %w", err)
		}
	}

	if h.publisher != nil {
		_ = h.publisher.PublishHITLCancelled(ctx, h.conversationID, events.HITLCancelledPayload{
			Type:           events.EventTypeHITLCancelled,
			RequestID:      requestID,
			ConversationID: h.conversationID,
			HITLType:       string(t),
			Reason:         reason,
			Timestamp:      time.Now().Format(time.RFC3339Nano),
		})
	}
	return nil
}

func (h *Handler) persistRequest(ctx context.Context, req Request) error {
	payload, err := toPayloadMap(req.RequestData)
	if err != nil {
		return err
	}
	_, err = h.client.HITLRequest.Create().
		SetID(req.ID).
		SetHitlType(hitlrequest.HitlType(string(req.HITLType))).
		SetConversationID(req.ConversationID).
		SetTenantID(req.TenantID).
		SetProjectID(req.ProjectID).
		SetNillableMessageID(req.MessageID).
		SetTimeoutSeconds(req.TimeoutSeconds).
		SetCreatedAt(req.CreatedAt).
		SetExpiresAt(req.ExpiresAt).
		SetStatus(hitlrequest.StatusPending).
		SetPayload(payload).
		Save(ctx)
	return err
}

var eventTypeForAsked = map[Type]string{
	TypeClarification: events.EventTypeClarificationAsked,
	TypeDecision:       events.EventTypeDecisionAsked,
	TypeEnvVar:         events.EventTypeEnvVarRequested,
	TypePermission:     events.EventTypePermissionAsked,
}

var eventTypeForAnswered = map[Type]string{
	TypeClarification: events.EventTypeClarificationAnswered,
	TypeDecision:       events.EventTypeDecisionAnswered,
	TypeEnvVar:         events.EventTypeEnvVarProvided,
	TypePermission:     events.EventTypePermissionAsked, // no distinct "answered" type defined on the wire
}

func (h *Handler) publishRequested(ctx context.Context, req Request) error {
	eventType, ok := eventTypeForAsked[req.HITLType]
	if !ok {
		return fmt.Errorf("hitl: no asked-event mapping for type %q", req.HITLType)
	}
	return h.publisher.PublishHITLRequested(ctx, h.conversationID, events.HITLRequestedPayload{
		Type:           eventType,
		RequestID:      req.ID,
		ConversationID: h.conversationID,
		HITLType:       string(req.HITLType),
		RequestData:    req.RequestData,
		TimeoutSeconds: req.TimeoutSeconds,
		Timestamp:      time.Now().Format(time.RFC3339Nano),
	})
}

func (h *Handler) publishAnswered(ctx context.Context, resp Response) error {
	eventType, ok := eventTypeForAnswered[resp.HITLType]
	if !ok {
		return fmt.Errorf("hitl: no answered-event mapping for type %q", resp.HITLType)
	}
	return h.publisher.PublishHITLAnswered(ctx, h.conversationID, events.HITLAnsweredPayload{
		Type:           eventType,
		RequestID:      resp.RequestID,
		ConversationID: h.conversationID,
		HITLType:       string(resp.HITLType),
		ResponseData:   resp.ResponseData,
		Timestamp:      time.Now().Format(time.RFC3339Nano),
	})
}

// toPayloadMap round-trips a typed request payload through JSON so it can
// be stored in the ent JSON column, which ent types as map[string]any.
func toPayloadMap(data any) (map[string]any, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("hitl: marshal request payload: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("hitl: unmarshal request payload: %w", err)
	}
	return m, nil
}
