package engine

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"colabora/internal/apperr"
	"colabora/internal/domain"
	"colabora/internal/engine/status"
	"colabora/internal/events"
	"colabora/internal/repo"
)

// CommitmentCreateOptions are parameters for pledging against a request.
type CommitmentCreateOptions struct {
	ID          string
	RequestID   string
	ActorLabel  string
	Amount      *int64
	Description string
	ActorID     string
}

// CreateCommitment registers an ACTIVE commitment against an OPEN request and
// reserves its amount. The request moves to RESERVED directly, not through
// the status recompute: a request under NGO review is reserved no matter what
// its quantity totals say.
func (e Engine) CreateCommitment(ctx context.Context, opts CommitmentCreateOptions) (domain.Commitment, error) {
	if opts.RequestID == "" {
		return domain.Commitment{}, apperr.Validation("request is required")
	}
	if opts.Amount != nil && *opts.Amount < 0 {
		return domain.Commitment{}, apperr.Validation("amount must not be negative")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Commitment{}, err
	}
	defer tx.Rollback()

	req, err := e.Repo.GetRequestTx(ctx, tx, opts.RequestID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Commitment{}, apperr.NotFound("associated collaboration request %s missing", opts.RequestID)
		}
		return domain.Commitment{}, err
	}
	if req.Status != domain.RequestOpen {
		return domain.Commitment{}, apperr.BusinessLogic("only an OPEN request can be reserved (current status %s)", req.Status)
	}
	if opts.Amount != nil && req.TargetQty != nil && req.ReservedQty+*opts.Amount > *req.TargetQty {
		return domain.Commitment{}, apperr.Validation("reservation of %d exceeds target_qty (%d already reserved of %d)",
			*opts.Amount, req.ReservedQty, *req.TargetQty)
	}

	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := e.nowStr()
	c := domain.Commitment{
		ID:          id,
		RequestID:   req.ID,
		ActorLabel:  opts.ActorLabel,
		Amount:      opts.Amount,
		Description: opts.Description,
		Status:      domain.CommitmentActive,
		CommittedAt: now,
		UpdatedAt:   now,
	}
	if err := e.Repo.InsertCommitmentTx(ctx, tx, c); err != nil {
		return domain.Commitment{}, err
	}
	if opts.Amount != nil {
		req.ReservedQty += *opts.Amount
	}
	req.Status = domain.RequestReserved
	req.UpdatedAt = now
	if err := e.Repo.UpdateRequestStateTx(ctx, tx, req); err != nil {
		return domain.Commitment{}, err
	}
	if err := e.Events.Append(ctx, tx, events.Entry{
		Type: "commitment.created", ProjectID: req.ProjectID, EntityKind: "commitment", EntityID: c.ID,
		ActorID: opts.ActorID, Payload: events.Payload{"request_id": req.ID, "actor_label": c.ActorLabel, "amount": c.Amount},
	}); err != nil {
		return domain.Commitment{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Commitment{}, err
	}
	return c, nil
}

// AcceptCommitment records the requester's acceptance of an active
// commitment. The request is marked COMPLETED directly; no quantity moves
// until the commitment is executed.
func (e Engine) AcceptCommitment(ctx context.Context, commitmentID, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	c, req, err := e.loadCommitmentAndRequest(ctx, tx, commitmentID)
	if err != nil {
		return err
	}
	if c.Status != domain.CommitmentActive {
		return apperr.BusinessLogic("only active commitments can be accepted (current status %s)", c.Status)
	}
	req.Status = domain.RequestCompleted
	req.UpdatedAt = e.nowStr()
	if err := e.Repo.UpdateRequestStateTx(ctx, tx, req); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, events.Entry{
		Type: "commitment.accepted", ProjectID: req.ProjectID, EntityKind: "commitment", EntityID: c.ID,
		ActorID: actorID, Payload: events.Payload{"request_id": req.ID},
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// RejectCommitment cancels an active commitment and reopens its request so
// other actors can see it again. Statuses reset; reserved_qty is not rolled
// back (nothing ever moved to fulfilled on a merely-active commitment).
func (e Engine) RejectCommitment(ctx context.Context, commitmentID, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	c, req, err := e.loadCommitmentAndRequest(ctx, tx, commitmentID)
	if err != nil {
		return err
	}
	if c.Status != domain.CommitmentActive {
		return apperr.BusinessLogic("only active commitments can be rejected (current status %s)", c.Status)
	}
	now := e.nowStr()
	if err := e.Repo.UpdateCommitmentStatusTx(ctx, tx, c.ID, domain.CommitmentCancelled, now); err != nil {
		return err
	}
	req.Status = domain.RequestOpen
	req.UpdatedAt = now
	if err := e.Repo.UpdateRequestStateTx(ctx, tx, req); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, events.Entry{
		Type: "commitment.rejected", ProjectID: req.ProjectID, EntityKind: "commitment", EntityID: c.ID,
		ActorID: actorID, Payload: events.Payload{"request_id": req.ID},
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// ExecuteCommitment fulfils a commitment: its amount moves from reserved to
// fulfilled on the request (reserved clamped at zero) and the request status
// is recomputed. Executing twice is a reported business error, never a silent
// no-op, so fulfilled_qty can never be double-credited.
func (e Engine) ExecuteCommitment(ctx context.Context, commitmentID, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	c, req, err := e.loadCommitmentAndRequest(ctx, tx, commitmentID)
	if err != nil {
		return err
	}
	switch c.Status {
	case domain.CommitmentFulfilled:
		return apperr.ErrAlreadyExecuted
	case domain.CommitmentCancelled:
		return apperr.BusinessLogic("a cancelled commitment cannot be executed")
	}

	now := e.nowStr()
	var amt int64
	if c.Amount != nil {
		amt = *c.Amount
	}
	if amt > 0 {
		req.ReservedQty -= amt
		if req.ReservedQty < 0 {
			req.ReservedQty = 0
		}
		req.FulfilledQty += amt
	}
	if err := e.Repo.UpdateCommitmentStatusTx(ctx, tx, c.ID, domain.CommitmentFulfilled, now); err != nil {
		return err
	}
	req.Status = status.Recompute(req.TargetQty, req.ReservedQty, req.FulfilledQty)
	req.UpdatedAt = now
	if err := e.Repo.UpdateRequestStateTx(ctx, tx, req); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, events.Entry{
		Type: "commitment.executed", ProjectID: req.ProjectID, EntityKind: "commitment", EntityID: c.ID,
		ActorID: actorID, Payload: events.Payload{"request_id": req.ID, "amount": amt, "request_status": req.Status},
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// loadCommitmentAndRequest reads both rows inside tx, translating missing
// rows into the error kinds the boundary maps to 404.
func (e Engine) loadCommitmentAndRequest(ctx context.Context, tx *sql.Tx, commitmentID string) (domain.Commitment, domain.CollaborationRequest, error) {
	c, err := e.Repo.GetCommitmentTx(ctx, tx, commitmentID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return c, domain.CollaborationRequest{}, apperr.NotFound("commitment %s", commitmentID)
		}
		return c, domain.CollaborationRequest{}, err
	}
	req, err := e.Repo.GetRequestTx(ctx, tx, c.RequestID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return c, req, apperr.NotFound("associated collaboration request %s missing", c.RequestID)
		}
		return c, req, err
	}
	return c, req, nil
}
