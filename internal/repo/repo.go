// Package repo is the SQL persistence collaborator for the lifecycle engine
// and the HTTP layer. Methods ending in Tx run on a caller-owned transaction;
// the engine uses them for its read-modify-write units of work.
package repo

import (
	"context"
	"database/sql"
	"strings"

	"colabora/internal/apperr"
	"colabora/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

// ErrNotFound is what row lookups return for missing rows.
var ErrNotFound = apperr.ErrNotFound

const requestColumns = `id,project_id,COALESCE(need_ref,''),title,COALESCE(description,''),request_type,target_qty,reserved_qty,fulfilled_qty,status,created_at,updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (domain.CollaborationRequest, error) {
	var r domain.CollaborationRequest
	var target sql.NullInt64
	err := row.Scan(&r.ID, &r.ProjectID, &r.NeedRef, &r.Title, &r.Description, &r.RequestType,
		&target, &r.ReservedQty, &r.FulfilledQty, &r.Status, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return r, ErrNotFound
	}
	if target.Valid {
		r.TargetQty = &target.Int64
	}
	return r, err
}

func (r Repo) InsertRequestTx(ctx context.Context, tx *sql.Tx, req domain.CollaborationRequest) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO collaboration_requests(id,project_id,need_ref,title,description,request_type,target_qty,reserved_qty,fulfilled_qty,status,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		req.ID, req.ProjectID, nullable(req.NeedRef), req.Title, nullable(req.Description), req.RequestType,
		nullableInt(req.TargetQty), req.ReservedQty, req.FulfilledQty, req.Status, req.CreatedAt, req.UpdatedAt)
	return err
}

func (r Repo) GetRequest(ctx context.Context, id string) (domain.CollaborationRequest, error) {
	return scanRequest(r.DB.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM collaboration_requests WHERE id=?`, id))
}

// GetRequestTx reads a request inside tx. With immediate transactions this is
// the read-for-update: the row cannot change under the caller until commit.
func (r Repo) GetRequestTx(ctx context.Context, tx *sql.Tx, id string) (domain.CollaborationRequest, error) {
	return scanRequest(tx.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM collaboration_requests WHERE id=?`, id))
}

// UpdateRequestStateTx persists the quantity fields and status together.
func (r Repo) UpdateRequestStateTx(ctx context.Context, tx *sql.Tx, req domain.CollaborationRequest) error {
	res, err := tx.ExecContext(ctx, `UPDATE collaboration_requests SET reserved_qty=?, fulfilled_qty=?, status=?, updated_at=? WHERE id=?`,
		req.ReservedQty, req.FulfilledQty, req.Status, req.UpdatedAt, req.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// RequestFilters narrows ListRequests. Status "ALL" or "" means no filter.
type RequestFilters struct {
	ProjectID string
	NeedRef   string
	Status    string
}

func (r Repo) ListRequests(ctx context.Context, f RequestFilters) ([]domain.CollaborationRequest, error) {
	var (
		clauses []string
		args    []any
	)
	if f.ProjectID != "" {
		clauses = append(clauses, "project_id=?")
		args = append(args, f.ProjectID)
	}
	if f.NeedRef != "" {
		clauses = append(clauses, "need_ref=?")
		args = append(args, f.NeedRef)
	}
	if f.Status != "" && f.Status != "ALL" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	query := `SELECT ` + requestColumns + ` FROM collaboration_requests`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.CollaborationRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, req)
	}
	return res, rows.Err()
}

// CountRequestsByStatus returns request counts per status for a project.
func (r Repo) CountRequestsByStatus(ctx context.Context, projectID string) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, COUNT(*) FROM collaboration_requests WHERE project_id=? GROUP BY status`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

const commitmentColumns = `id,request_id,COALESCE(actor_label,''),amount,COALESCE(description,''),status,committed_at,updated_at`

func scanCommitment(row rowScanner) (domain.Commitment, error) {
	var c domain.Commitment
	var amount sql.NullInt64
	err := row.Scan(&c.ID, &c.RequestID, &c.ActorLabel, &amount, &c.Description, &c.Status, &c.CommittedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	if amount.Valid {
		c.Amount = &amount.Int64
	}
	return c, err
}

func (r Repo) InsertCommitmentTx(ctx context.Context, tx *sql.Tx, c domain.Commitment) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO commitments(id,request_id,actor_label,amount,description,status,committed_at,updated_at)
VALUES (?,?,?,?,?,?,?,?)`,
		c.ID, c.RequestID, nullable(c.ActorLabel), nullableInt(c.Amount), nullable(c.Description), c.Status, c.CommittedAt, c.UpdatedAt)
	return err
}

func (r Repo) GetCommitment(ctx context.Context, id string) (domain.Commitment, error) {
	return scanCommitment(r.DB.QueryRowContext(ctx, `SELECT `+commitmentColumns+` FROM commitments WHERE id=?`, id))
}

func (r Repo) GetCommitmentTx(ctx context.Context, tx *sql.Tx, id string) (domain.Commitment, error) {
	return scanCommitment(tx.QueryRowContext(ctx, `SELECT `+commitmentColumns+` FROM commitments WHERE id=?`, id))
}

func (r Repo) UpdateCommitmentStatusTx(ctx context.Context, tx *sql.Tx, id, status, updatedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE commitments SET status=?, updated_at=? WHERE id=?`, status, updatedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListCommitmentsByRequest(ctx context.Context, requestID string) ([]domain.Commitment, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+commitmentColumns+` FROM commitments WHERE request_id=? ORDER BY committed_at DESC, id DESC`, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Commitment
	for rows.Next() {
		c, err := scanCommitment(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableInt(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}
