package domain

// RequestType classifies the resource a collaboration request asks for.
const (
	RequestTypeEconomic  = "ECON"
	RequestTypeMaterials = "MAT"
	RequestTypeLabor     = "MO"
	RequestTypeOther     = "OTRO"
)

// RequestTypes lists every accepted request type.
var RequestTypes = []string{RequestTypeEconomic, RequestTypeMaterials, RequestTypeLabor, RequestTypeOther}

// Request lifecycle statuses.
const (
	RequestOpen      = "OPEN"
	RequestReserved  = "RESERVED"
	RequestCompleted = "COMPLETED"
)

// Commitment lifecycle statuses. FULFILLED and CANCELLED are terminal.
const (
	CommitmentActive    = "ACTIVE"
	CommitmentFulfilled = "FULFILLED"
	CommitmentCancelled = "CANCELLED"
)

type Project struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status" enum:"active,archived"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

type Stage struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	Name      string `json:"name"`
	Position  int    `json:"position"`
	Status    string `json:"status" enum:"pending,running,done"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Observation struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	Author    string `json:"author"`
	Body      string `json:"body"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// CollaborationRequest solicits resources for a project. Quantities are whole
// units; TargetQty is nil for unbounded requests. ReservedQty and FulfilledQty
// are mutated only by the commitment lifecycle engine.
type CollaborationRequest struct {
	ID           string `json:"id"`
	ProjectID    string `json:"project_id"`
	NeedRef      string `json:"need_ref,omitempty"`
	Title        string `json:"title"`
	Description  string `json:"description,omitempty"`
	RequestType  string `json:"request_type" enum:"ECON,MAT,MO,OTRO"`
	TargetQty    *int64 `json:"target_qty,omitempty"`
	ReservedQty  int64  `json:"reserved_qty"`
	FulfilledQty int64  `json:"fulfilled_qty"`
	Status       string `json:"status" enum:"OPEN,RESERVED,COMPLETED"`
	CreatedAt    string `json:"created_at" format:"date-time"`
	UpdatedAt    string `json:"updated_at" format:"date-time"`
}

// Commitment is an actor's pledge against a request. Amount, once committed,
// never changes.
type Commitment struct {
	ID          string `json:"id"`
	RequestID   string `json:"request_id"`
	ActorLabel  string `json:"actor_label,omitempty"`
	Amount      *int64 `json:"amount,omitempty"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status" enum:"ACTIVE,FULFILLED,CANCELLED"`
	CommittedAt string `json:"committed_at" format:"date-time"`
	UpdatedAt   string `json:"updated_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type User struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"-"`
	CreatedAt    string `json:"created_at" format:"date-time"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// ValidRequestType reports whether t is one of the accepted request types.
func ValidRequestType(t string) bool {
	for _, rt := range RequestTypes {
		if rt == t {
			return true
		}
	}
	return false
}
