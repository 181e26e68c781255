// Package engine orchestrates every state mutation in the system. Each
// exported operation is one unit of work: begin a transaction (taking the
// database write lock), read current state, apply one transition rule,
// append an audit event and commit — or roll back with no partial effect.
package engine

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"colabora/internal/apperr"
	"colabora/internal/config"
	"colabora/internal/domain"
	"colabora/internal/engine/status"
	"colabora/internal/events"
	"colabora/internal/repo"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) nowStr() string {
	return e.now().UTC().Format(time.RFC3339)
}

// ProjectCreateOptions are parameters for creating a project.
type ProjectCreateOptions struct {
	ID          string
	Title       string
	Description string
	ActorID     string
}

func (e Engine) CreateProject(ctx context.Context, opts ProjectCreateOptions) (domain.Project, error) {
	if opts.Title == "" {
		return domain.Project{}, apperr.Validation("title is required")
	}
	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	p := domain.Project{
		ID:          id,
		Title:       opts.Title,
		Description: opts.Description,
		Status:      "active",
		CreatedAt:   e.nowStr(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertProjectTx(ctx, tx, p); err != nil {
		return domain.Project{}, err
	}
	if err := e.Events.Append(ctx, tx, events.Entry{
		Type: "project.created", ProjectID: p.ID, EntityKind: "project", EntityID: p.ID,
		ActorID: opts.ActorID, Payload: events.Payload{"title": p.Title},
	}); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

// RequestCreateOptions are parameters for creating a collaboration request.
type RequestCreateOptions struct {
	ID          string
	ProjectID   string
	NeedRef     string
	Title       string
	Description string
	RequestType string
	TargetQty   *int64
	ActorID     string
}

func (e Engine) CreateRequest(ctx context.Context, opts RequestCreateOptions) (domain.CollaborationRequest, error) {
	if opts.Title == "" {
		return domain.CollaborationRequest{}, apperr.Validation("title is required")
	}
	if opts.ProjectID == "" {
		return domain.CollaborationRequest{}, apperr.Validation("project is required")
	}
	if !domain.ValidRequestType(opts.RequestType) {
		return domain.CollaborationRequest{}, apperr.Validation("unknown request_type %q", opts.RequestType)
	}
	if opts.TargetQty != nil && *opts.TargetQty < 0 {
		return domain.CollaborationRequest{}, apperr.Validation("target_qty must not be negative")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.CollaborationRequest{}, err
	}
	defer tx.Rollback()

	req, err := e.insertRequestTx(ctx, tx, opts)
	if err != nil {
		return domain.CollaborationRequest{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.CollaborationRequest{}, err
	}
	return req, nil
}

func (e Engine) insertRequestTx(ctx context.Context, tx *sql.Tx, opts RequestCreateOptions) (domain.CollaborationRequest, error) {
	if _, err := e.Repo.GetProjectTx(ctx, tx, opts.ProjectID); err != nil {
		if err == repo.ErrNotFound {
			return domain.CollaborationRequest{}, apperr.NotFound("project %s", opts.ProjectID)
		}
		return domain.CollaborationRequest{}, err
	}
	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := e.nowStr()
	req := domain.CollaborationRequest{
		ID:          id,
		ProjectID:   opts.ProjectID,
		NeedRef:     opts.NeedRef,
		Title:       opts.Title,
		Description: opts.Description,
		RequestType: opts.RequestType,
		TargetQty:   opts.TargetQty,
		Status:      status.Recompute(opts.TargetQty, 0, 0),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := e.Repo.InsertRequestTx(ctx, tx, req); err != nil {
		return domain.CollaborationRequest{}, err
	}
	if err := e.Events.Append(ctx, tx, events.Entry{
		Type: "request.created", ProjectID: req.ProjectID, EntityKind: "request", EntityID: req.ID,
		ActorID: opts.ActorID, Payload: events.Payload{"title": req.Title, "request_type": req.RequestType, "status": req.Status},
	}); err != nil {
		return domain.CollaborationRequest{}, err
	}
	return req, nil
}

// NeedImport is one line of a batch request import.
type NeedImport struct {
	NeedRef     string `json:"need_ref,omitempty"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	RequestType string `json:"request_type" enum:"ECON,MAT,MO,OTRO"`
	TargetQty   *int64 `json:"target_qty,omitempty"`
}

// ImportNeeds batch-creates requests from an external needs list. The whole
// batch commits or none of it does.
func (e Engine) ImportNeeds(ctx context.Context, projectID string, needs []NeedImport, actorID string) ([]domain.CollaborationRequest, error) {
	if len(needs) == 0 {
		return nil, apperr.Validation("needs list is empty")
	}
	for i, n := range needs {
		if n.Title == "" {
			return nil, apperr.Validation("needs[%d]: title is required", i)
		}
		if !domain.ValidRequestType(n.RequestType) {
			return nil, apperr.Validation("needs[%d]: unknown request_type %q", i, n.RequestType)
		}
		if n.TargetQty != nil && *n.TargetQty < 0 {
			return nil, apperr.Validation("needs[%d]: target_qty must not be negative", i)
		}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	created := make([]domain.CollaborationRequest, 0, len(needs))
	for _, n := range needs {
		req, err := e.insertRequestTx(ctx, tx, RequestCreateOptions{
			ProjectID:   projectID,
			NeedRef:     n.NeedRef,
			Title:       n.Title,
			Description: n.Description,
			RequestType: n.RequestType,
			TargetQty:   n.TargetQty,
			ActorID:     actorID,
		})
		if err != nil {
			return nil, err
		}
		created = append(created, req)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return created, nil
}

func (e Engine) CreateStage(ctx context.Context, s domain.Stage, actorID string) (domain.Stage, error) {
	if s.Name == "" {
		return s, apperr.Validation("name is required")
	}
	if _, err := e.Repo.GetProject(ctx, s.ProjectID); err != nil {
		if err == repo.ErrNotFound {
			return s, apperr.NotFound("project %s", s.ProjectID)
		}
		return s, err
	}
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	if s.Status == "" {
		s.Status = "pending"
	}
	s.CreatedAt = e.nowStr()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return s, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertStageTx(ctx, tx, s); err != nil {
		return s, err
	}
	if err := e.Events.Append(ctx, tx, events.Entry{
		Type: "stage.created", ProjectID: s.ProjectID, EntityKind: "stage", EntityID: s.ID,
		ActorID: actorID, Payload: events.Payload{"name": s.Name},
	}); err != nil {
		return s, err
	}
	if err := tx.Commit(); err != nil {
		return s, err
	}
	return s, nil
}

func (e Engine) AddObservation(ctx context.Context, o domain.Observation, actorID string) (domain.Observation, error) {
	if o.Body == "" {
		return o, apperr.Validation("body is required")
	}
	if _, err := e.Repo.GetProject(ctx, o.ProjectID); err != nil {
		if err == repo.ErrNotFound {
			return o, apperr.NotFound("project %s", o.ProjectID)
		}
		return o, err
	}
	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	if o.Author == "" {
		o.Author = actorID
	}
	o.CreatedAt = e.nowStr()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return o, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertObservationTx(ctx, tx, o); err != nil {
		return o, err
	}
	if err := e.Events.Append(ctx, tx, events.Entry{
		Type: "observation.added", ProjectID: o.ProjectID, EntityKind: "observation", EntityID: o.ID,
		ActorID: actorID,
	}); err != nil {
		return o, err
	}
	if err := tx.Commit(); err != nil {
		return o, err
	}
	return o, nil
}
