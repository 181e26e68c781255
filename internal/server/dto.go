package server

import (
	"encoding/json"

	"colabora/internal/domain"
)

// Request payloads

// CreateProjectRequest is the body for POST /projects.
type CreateProjectRequest struct {
	ID          string `json:"id,omitempty"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// CreateStageRequest is the body for POST /projects/{project_id}/stages.
type CreateStageRequest struct {
	Name     string `json:"name"`
	Position int    `json:"position,omitempty"`
}

// CreateObservationRequest is the body for POST /projects/{project_id}/observations.
type CreateObservationRequest struct {
	Body string `json:"body"`
}

// CreateCollaborationRequest is the body for POST /requests.
type CreateCollaborationRequest struct {
	ProjectID   string `json:"project_id"`
	NeedRef     string `json:"need_ref,omitempty"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	RequestType string `json:"request_type" enum:"ECON,MAT,MO,OTRO"`
	TargetQty   *int64 `json:"target_qty,omitempty"`
}

// CreateCommitmentRequest is the body for POST /commitments.
type CreateCommitmentRequest struct {
	RequestID   string `json:"request_id"`
	ActorLabel  string `json:"actor_label,omitempty"`
	Amount      *int64 `json:"amount,omitempty"`
	Description string `json:"description,omitempty"`
}

// Responses

// OKResponse acknowledges a lifecycle transition.
type OKResponse struct {
	OK bool `json:"ok"`
}

// EventResponse mirrors domain.Event with the payload decoded so API
// consumers get an object, not a string of JSON.
type EventResponse struct {
	ID         int64           `json:"id"`
	TS         string          `json:"ts" format:"date-time"`
	Type       string          `json:"type"`
	ProjectID  string          `json:"project_id,omitempty"`
	EntityKind string          `json:"entity_kind"`
	EntityID   string          `json:"entity_id,omitempty"`
	ActorID    string          `json:"actor_id"`
	Payload    json.RawMessage `json:"payload"`
}

func eventResponse(e domain.Event) EventResponse {
	payload := json.RawMessage("{}")
	if e.Payload != "" && json.Valid([]byte(e.Payload)) {
		payload = json.RawMessage(e.Payload)
	}
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		ProjectID:  e.ProjectID,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    payload,
	}
}

func mapEvents(items []domain.Event) []EventResponse {
	res := make([]EventResponse, 0, len(items))
	for _, e := range items {
		res = append(res, eventResponse(e))
	}
	return res
}
